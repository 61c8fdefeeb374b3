package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ClientMetrics records outbound store API calls.
type ClientMetrics struct {
	duration *prometheus.HistogramVec
}

// NewClientMetrics registers the store client metrics on the provided registerer.
func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	if reg == nil {
		return &ClientMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "woocommerce_request_duration_seconds",
		Help:    "Duration of WooCommerce REST calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})
	reg.MustRegister(duration)
	return &ClientMetrics{duration: duration}
}

// ObserveRequest records one call. A zero status means no response arrived.
func (m *ClientMetrics) ObserveRequest(operation string, status int, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.duration.WithLabelValues(normalizeLabel(operation), code).Observe(duration.Seconds())
}
