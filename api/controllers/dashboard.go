package controllers

import (
	"context"

	"github.com/angelmondragon/stockpulse-backend/internal/dashboard"
	"github.com/angelmondragon/stockpulse-backend/pkg/woocommerce"
)

// DashboardService is the read/revalidate surface the dataset routes need.
// Implemented by *dashboard.Service.
type DashboardService interface {
	SeasonalForecast(ctx context.Context) (dashboard.StateView, error)
	PopularProducts(ctx context.Context, limit int) (dashboard.StateView, error)
	Products(ctx context.Context, params woocommerce.ProductParams) (dashboard.StateView, error)
	Refetch(ctx context.Context, key string) (dashboard.StateView, error)
	Invalidate(ctx context.Context, key string) (dashboard.StateView, error)
	States() []dashboard.StateView
}
