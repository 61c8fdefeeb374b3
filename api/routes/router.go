package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/stockpulse-backend/api/controllers"
	"github.com/angelmondragon/stockpulse-backend/api/middleware"
	"github.com/angelmondragon/stockpulse-backend/pkg/config"
	"github.com/angelmondragon/stockpulse-backend/pkg/logger"
)

// RouterParams carries the router's dependencies. ReadyChecks lists only the
// stores that are configured; Gatherer defaults to the prometheus default
// registry.
type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	Dashboard   controllers.DashboardService
	ReadyChecks []controllers.ReadyCheck
	Gatherer    prometheus.Gatherer
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger
	gatherer := params.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.ReadyChecks...))
	})

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/forecast/seasonal", controllers.SeasonalForecast(params.Dashboard, logg))
		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ListProducts(params.Dashboard, logg))
			r.Get("/popular", controllers.PopularProducts(params.Dashboard, logg))
		})
		r.Route("/queries", func(r chi.Router) {
			r.Get("/", controllers.ListQueries(params.Dashboard, logg))
			r.Post("/{key}/refetch", controllers.RefetchQuery(params.Dashboard, logg))
			r.Post("/{key}/invalidate", controllers.InvalidateQuery(params.Dashboard, logg))
		})
	})

	return r
}
