package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// QueryMetrics tracks the query cache's fetch lifecycle per dataset. Keys are
// reduced to their dataset prefix so listing parameters never become labels.
type QueryMetrics struct {
	fetches      *prometheus.CounterVec
	deduplicated *prometheus.CounterVec
	discarded    *prometheus.CounterVec
}

// NewQueryMetrics registers the query cache metrics on the provided registerer.
func NewQueryMetrics(reg prometheus.Registerer) *QueryMetrics {
	if reg == nil {
		return &QueryMetrics{}
	}
	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "query_fetch_total",
		Help: "Settled query fetches by dataset and result.",
	}, []string{"dataset", "result"})
	deduplicated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "query_fetch_deduplicated_total",
		Help: "Fetch requests that joined an in-flight fetch instead of starting one.",
	}, []string{"dataset"})
	discarded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "query_stale_results_discarded_total",
		Help: "Fetch results dropped because a newer generation was triggered.",
	}, []string{"dataset"})
	reg.MustRegister(fetches, deduplicated, discarded)
	return &QueryMetrics{
		fetches:      fetches,
		deduplicated: deduplicated,
		discarded:    discarded,
	}
}

// ObserveFetch counts a settled fetch; result is "success" or "error".
func (m *QueryMetrics) ObserveFetch(key, result string) {
	if m == nil || m.fetches == nil {
		return
	}
	m.fetches.WithLabelValues(datasetLabel(key), normalizeLabel(result)).Inc()
}

func (m *QueryMetrics) IncDeduplicated(key string) {
	if m == nil || m.deduplicated == nil {
		return
	}
	m.deduplicated.WithLabelValues(datasetLabel(key)).Inc()
}

func (m *QueryMetrics) IncDiscarded(key string) {
	if m == nil || m.discarded == nil {
		return
	}
	m.discarded.WithLabelValues(datasetLabel(key)).Inc()
}

// datasetLabel cuts key at its first parameter separator:
// "products?page=2" and "popular-products:10" become "products" and
// "popular-products".
func datasetLabel(key string) string {
	if i := strings.IndexAny(key, ":?"); i >= 0 {
		key = key[:i]
	}
	return normalizeLabel(key)
}
