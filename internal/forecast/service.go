package forecast

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/stockpulse-backend/pkg/logger"
	"github.com/angelmondragon/stockpulse-backend/pkg/woocommerce"
)

const (
	DefaultPopularLimit = 10
	MaxPopularLimit     = 100

	defaultOrderLookback  = 365 * 24 * time.Hour
	defaultBaselineWindow = 7 * 24 * time.Hour
	ordersPerPage         = 100
	stockCandidates       = 100
)

var forecastOrderStatuses = []string{"completed", "processing"}

// ProductSource is the platform surface the datasets read from.
// Implemented by *woocommerce.Client.
type ProductSource interface {
	FetchProducts(ctx context.Context, params woocommerce.ProductParams) ([]woocommerce.RawProduct, error)
	FetchOrders(ctx context.Context, params woocommerce.OrderParams) ([]woocommerce.RawOrder, error)
	HandleFailure(ctx context.Context, op string, err error) error
}

// ServiceParams configure the forecast service.
type ServiceParams struct {
	Source              ProductSource
	Logger              *logger.Logger
	Model               SeasonalModel
	Baselines           BaselineStore
	Ranking             RankingMetric
	CurrencySymbol      string
	DefaultReorderPoint int
	// OrderLookback bounds the order history window feeding the seasonal model.
	OrderLookback time.Duration
	// BaselineWindow is how long a popularity baseline is kept before it is
	// replaced by the latest figures.
	BaselineWindow time.Duration
	Now            func() time.Time
}

// Service produces the dashboard datasets from the platform client.
type Service struct {
	source         ProductSource
	logg           *logger.Logger
	model          SeasonalModel
	baselines      BaselineStore
	ranking        RankingMetric
	currency       string
	reorderPoint   int
	lookback       time.Duration
	baselineWindow time.Duration
	now            func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Source == nil {
		return nil, errors.New("product source required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	model := params.Model
	if model == nil {
		model = TopSellersModel{}
	}
	baselines := params.Baselines
	if baselines == nil {
		baselines = NewMemoryBaselineStore()
	}
	ranking := params.Ranking
	if ranking == "" {
		ranking = RankBySales
	}
	lookback := params.OrderLookback
	if lookback <= 0 {
		lookback = defaultOrderLookback
	}
	window := params.BaselineWindow
	if window <= 0 {
		window = defaultBaselineWindow
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		source:         params.Source,
		logg:           logg,
		model:          model,
		baselines:      baselines,
		ranking:        ranking,
		currency:       params.CurrencySymbol,
		reorderPoint:   params.DefaultReorderPoint,
		lookback:       lookback,
		baselineWindow: window,
		now:            now,
	}, nil
}

func (s *Service) Model() SeasonalModel {
	return s.model
}

func (s *Service) Ranking() RankingMetric {
	return s.ranking
}

// GetSeasonalForecast returns exactly MonthsPerYear entries, or an empty slice
// when the platform call failed and the client degrades to empty results.
func (s *Service) GetSeasonalForecast(ctx context.Context) ([]SeasonalForecastEntry, error) {
	ctx = s.logg.WithField(ctx, "forecast_model", s.model.Name())
	if !s.model.NeedsOrders() {
		return s.model.Forecast(nil)
	}

	orders, err := s.source.FetchOrders(ctx, woocommerce.OrderParams{
		After:   s.now().Add(-s.lookback),
		PerPage: ordersPerPage,
		Status:  forecastOrderStatuses,
	})
	if err != nil {
		if herr := s.source.HandleFailure(ctx, "list_orders", err); herr != nil {
			return nil, herr
		}
		return []SeasonalForecastEntry{}, nil
	}

	entries, err := s.model.Forecast(SalesFromOrders(orders))
	if err != nil {
		s.logg.Error(ctx, "seasonal forecast transform failed", err)
		return nil, err
	}
	return entries, nil
}

// GetPopularProducts returns at most limit products ranked by the configured
// metric. limit defaults to DefaultPopularLimit and is capped at MaxPopularLimit.
func (s *Service) GetPopularProducts(ctx context.Context, limit int) ([]PopularProduct, error) {
	limit = NormalizeLimit(limit)
	ctx = s.logg.WithFields(ctx, map[string]any{"ranking": string(s.ranking), "limit": limit})

	params := woocommerce.ProductParams{PerPage: limit, OrderBy: "popularity", Order: "desc"}
	if s.ranking == RankByStock {
		// The platform has no stock ordering, so rank a wider candidate set locally.
		params = woocommerce.ProductParams{PerPage: stockCandidates}
	}

	raw, err := s.source.FetchProducts(ctx, params)
	if err != nil {
		if herr := s.source.HandleFailure(ctx, "list_products", err); herr != nil {
			return nil, herr
		}
		return []PopularProduct{}, nil
	}

	snap := s.loadBaseline(ctx)
	var previous map[int]int64
	if snap != nil {
		previous = snap.Values
	}

	products, err := ToPopularProducts(raw, limit, PopularityOptions{
		Metric:              s.ranking,
		Baseline:            previous,
		CurrencySymbol:      s.currency,
		DefaultReorderPoint: s.reorderPoint,
	})
	if err != nil {
		s.logg.Error(ctx, "popular products transform failed", err)
		return nil, err
	}

	if snap == nil || s.now().Sub(snap.TakenAt) >= s.baselineWindow {
		s.saveBaseline(ctx, raw)
	}
	return products, nil
}

// GetProducts lists raw products under the client's failure policy.
func (s *Service) GetProducts(ctx context.Context, params woocommerce.ProductParams) ([]woocommerce.RawProduct, error) {
	products, err := s.source.FetchProducts(ctx, params)
	if err != nil {
		if herr := s.source.HandleFailure(ctx, "list_products", err); herr != nil {
			return nil, herr
		}
		return []woocommerce.RawProduct{}, nil
	}
	return products, nil
}

// NormalizeLimit applies the popular-products default and cap.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPopularLimit
	case limit > MaxPopularLimit:
		return MaxPopularLimit
	default:
		return limit
	}
}

// Baseline failures never fail the dataset; trends just read as stable.
func (s *Service) loadBaseline(ctx context.Context) *Snapshot {
	snap, err := s.baselines.Load(ctx, s.ranking)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "popularity baseline unavailable")
		return nil
	}
	return snap
}

func (s *Service) saveBaseline(ctx context.Context, raw []woocommerce.RawProduct) {
	snap := Snapshot{TakenAt: s.now().UTC(), Values: Baseline(raw, s.ranking), Metric: s.ranking}
	if err := s.baselines.Save(ctx, snap); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "popularity baseline not saved")
	}
}
