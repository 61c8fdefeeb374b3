package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/stockpulse-backend/api/responses"
	"github.com/angelmondragon/stockpulse-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/stockpulse-backend/pkg/errors"
	"github.com/angelmondragon/stockpulse-backend/pkg/logger"
)

const readyPingTimeout = 2 * time.Second

// Pinger is satisfied by the redis and database clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyCheck names an optional backing store probed by the readiness route.
type ReadyCheck struct {
	Name   string
	Pinger Pinger
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-StockPulse-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready once every configured store answers a ping.
// Stores that are not configured are simply not passed in.
func HealthReady(cfg *config.Config, logg *logger.Logger, checks ...ReadyCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-StockPulse-Env", cfg.App.Env)
		results := make(map[string]string, len(checks))
		for _, check := range checks {
			if check.Pinger == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(r.Context(), readyPingTimeout)
			err := check.Pinger.Ping(ctx)
			cancel()
			if err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, check.Name+" not ready").
						WithDetails(map[string]any{"check": check.Name}))
				return
			}
			results[check.Name] = "ok"
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": results})
	}
}
