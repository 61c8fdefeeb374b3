package controllers

import (
	"net/http"

	"github.com/angelmondragon/stockpulse-backend/api/responses"
	"github.com/angelmondragon/stockpulse-backend/api/validators"
	"github.com/angelmondragon/stockpulse-backend/internal/forecast"
	pkgerrors "github.com/angelmondragon/stockpulse-backend/pkg/errors"
	"github.com/angelmondragon/stockpulse-backend/pkg/logger"
	"github.com/angelmondragon/stockpulse-backend/pkg/woocommerce"
)

const maxSearchLen = 100

// PopularProducts serves the ranked product list for ?limit (1..100, default 10).
func PopularProducts(svc DashboardService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dashboard service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", forecast.DefaultPopularLimit, 1, forecast.MaxPopularLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.PopularProducts(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

type productListQuery struct {
	Page        int    `query:"page" validate:"min=1"`
	PerPage     int    `query:"per_page" validate:"min=1,max=100"`
	Search      string `query:"search"`
	Category    string `query:"category" validate:"omitempty,numeric"`
	StockStatus string `query:"stock_status" validate:"omitempty,oneof=instock outofstock onbackorder"`
}

func (q productListQuery) params() woocommerce.ProductParams {
	return woocommerce.ProductParams{
		Page:        q.Page,
		PerPage:     q.PerPage,
		Search:      q.Search,
		Category:    q.Category,
		StockStatus: q.StockStatus,
	}
}

// ListProducts serves a cached page of the raw catalog.
func ListProducts(svc DashboardService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dashboard service unavailable"))
			return
		}
		page, err := validators.ParseQueryInt(r, "page", 1, 1, 10000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		perPage, err := validators.ParseQueryInt(r, "per_page", 20, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query := productListQuery{
			Page:        page,
			PerPage:     perPage,
			Search:      validators.ParseQueryString(r, "search", maxSearchLen),
			Category:    validators.ParseQueryString(r, "category", 20),
			StockStatus: validators.ParseQueryString(r, "stock_status", 20),
		}
		if err := validators.ValidateStruct(query); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Products(r.Context(), query.params())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
