package controllers

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/stockpulse-backend/api/responses"
	pkgerrors "github.com/angelmondragon/stockpulse-backend/pkg/errors"
	"github.com/angelmondragon/stockpulse-backend/pkg/logger"
)

// ListQueries reports every cached dataset and its state.
func ListQueries(svc DashboardService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dashboard service unavailable"))
			return
		}
		responses.WriteSuccess(w, svc.States())
	}
}

// RefetchQuery refreshes a dataset and responds once it settles.
func RefetchQuery(svc DashboardService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := queryKeyParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Refetch(r.Context(), key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// InvalidateQuery starts a new generation and responds immediately.
func InvalidateQuery(svc DashboardService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := queryKeyParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Invalidate(r.Context(), key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, view)
	}
}

// queryKeyParam reads {key}. Product listing keys carry a query string, so
// callers percent-encode them.
func queryKeyParam(r *http.Request) (string, error) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || key == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid query key").WithDetails(map[string]any{"field": "key"})
	}
	return key, nil
}
