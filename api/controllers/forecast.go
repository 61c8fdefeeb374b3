package controllers

import (
	"net/http"

	"github.com/angelmondragon/stockpulse-backend/api/responses"
	pkgerrors "github.com/angelmondragon/stockpulse-backend/pkg/errors"
	"github.com/angelmondragon/stockpulse-backend/pkg/logger"
)

// SeasonalForecast serves the twelve-month forecast state.
func SeasonalForecast(svc DashboardService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dashboard service unavailable"))
			return
		}
		view, err := svc.SeasonalForecast(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
