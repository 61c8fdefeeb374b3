package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/stockpulse-backend/internal/forecast"
	"github.com/angelmondragon/stockpulse-backend/internal/query"
	pkgerrors "github.com/angelmondragon/stockpulse-backend/pkg/errors"
	"github.com/angelmondragon/stockpulse-backend/pkg/logger"
	"github.com/angelmondragon/stockpulse-backend/pkg/woocommerce"
)

const (
	KeySeasonalForecast = "seasonal-forecast"
	popularPrefix       = "popular-products"
	productsPrefix      = "products"

	defaultReadWait = 10 * time.Second
)

// PopularKey is the cache key of the popular-products dataset for limit.
func PopularKey(limit int) string {
	return popularPrefix + ":" + strconv.Itoa(forecast.NormalizeLimit(limit))
}

// Retained reports whether key outlives its readers in the query cache. The
// seasonal and popular datasets are few and refreshed in the background;
// product listings vary with every filter and are evicted once idle.
func Retained(key string) bool {
	return key != productsPrefix && !strings.HasPrefix(key, productsPrefix+"?")
}

// ProductsKey derives a stable cache key from listing parameters.
func ProductsKey(params woocommerce.ProductParams) string {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(params.PerPage))
	}
	set("orderby", params.OrderBy)
	set("order", params.Order)
	set("status", params.Status)
	set("category", params.Category)
	set("search", params.Search)
	set("stock_status", params.StockStatus)
	if encoded := q.Encode(); encoded != "" {
		return productsPrefix + "?" + encoded
	}
	return productsPrefix
}

// Datasets produces the raw dataset values. Implemented by *forecast.Service.
type Datasets interface {
	GetSeasonalForecast(ctx context.Context) ([]forecast.SeasonalForecastEntry, error)
	GetPopularProducts(ctx context.Context, limit int) ([]forecast.PopularProduct, error)
	GetProducts(ctx context.Context, params woocommerce.ProductParams) ([]woocommerce.RawProduct, error)
}

// ErrorView is the client-safe form of a query error.
type ErrorView struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// StateView is what consumers render. Empty separates "loaded, nothing to
// show" from an error, since transport failures degrade to empty data.
type StateView struct {
	Key         string       `json:"key"`
	Data        any          `json:"data"`
	IsLoading   bool         `json:"isLoading"`
	Error       *ErrorView   `json:"error,omitempty"`
	Status      query.Status `json:"status"`
	Generation  uint64       `json:"generation"`
	UpdatedAt   *time.Time   `json:"updatedAt,omitempty"`
	Empty       bool         `json:"empty"`
	Subscribers int          `json:"subscribers"`
}

// ServiceParams configure the dashboard service.
type ServiceParams struct {
	Datasets Datasets
	Cache    *query.Cache
	Logger   *logger.Logger
	// ReadWait bounds how long a read waits for a loading dataset before it
	// returns the current, possibly stale, state.
	ReadWait time.Duration
}

// Service binds the named dashboard datasets to the query cache.
type Service struct {
	datasets Datasets
	cache    *query.Cache
	logg     *logger.Logger
	readWait time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Datasets == nil {
		return nil, errors.New("datasets required")
	}
	if params.Cache == nil {
		return nil, errors.New("query cache required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	wait := params.ReadWait
	if wait <= 0 {
		wait = defaultReadWait
	}
	return &Service{datasets: params.Datasets, cache: params.Cache, logg: logg, readWait: wait}, nil
}

func (s *Service) SeasonalForecast(ctx context.Context) (StateView, error) {
	return read(ctx, s, KeySeasonalForecast, s.seasonalFetcher())
}

func (s *Service) PopularProducts(ctx context.Context, limit int) (StateView, error) {
	limit = forecast.NormalizeLimit(limit)
	return read(ctx, s, PopularKey(limit), s.popularFetcher(limit))
}

func (s *Service) Products(ctx context.Context, params woocommerce.ProductParams) (StateView, error) {
	return read(ctx, s, ProductsKey(params), func(ctx context.Context) ([]woocommerce.RawProduct, error) {
		return s.datasets.GetProducts(ctx, params)
	})
}

// Refetch refreshes a known dataset and waits for it to settle.
func (s *Service) Refetch(ctx context.Context, key string) (StateView, error) {
	ctx = s.logg.WithQueryKey(ctx, key)
	st, err := s.cache.Refetch(ctx, key)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return StateView{}, err
		}
		return StateView{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "refetch interrupted")
	}
	s.logg.Info(ctx, "dataset refetched")
	return s.view(key, st), nil
}

// Invalidate starts a new generation for key without waiting for it.
func (s *Service) Invalidate(ctx context.Context, key string) (StateView, error) {
	if !s.cache.Invalidate(key) {
		return StateView{}, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("query %q not found", key))
	}
	s.logg.Info(s.logg.WithQueryKey(ctx, key), "dataset invalidated")
	st, _ := s.cache.Snapshot(key)
	return s.view(key, st), nil
}

// States lists every cached dataset.
func (s *Service) States() []StateView {
	keys := s.cache.Keys()
	views := make([]StateView, 0, len(keys))
	for _, key := range keys {
		if st, ok := s.cache.Snapshot(key); ok {
			views = append(views, s.view(key, st))
		}
	}
	return views
}

func (s *Service) seasonalFetcher() query.Fetcher[[]forecast.SeasonalForecastEntry] {
	return s.datasets.GetSeasonalForecast
}

func (s *Service) popularFetcher(limit int) query.Fetcher[[]forecast.PopularProduct] {
	return func(ctx context.Context) ([]forecast.PopularProduct, error) {
		return s.datasets.GetPopularProducts(ctx, limit)
	}
}

// read subscribes for the duration of one request. A read that outlives
// ReadWait returns the loading state, with stale data if there is any.
func read[T any](ctx context.Context, s *Service, key string, fetch query.Fetcher[T]) (StateView, error) {
	q := query.Use(s.cache, key, fetch)
	defer q.Close()

	waitCtx, cancel := context.WithTimeout(ctx, s.readWait)
	defer cancel()
	if _, err := q.Wait(waitCtx); err != nil && ctx.Err() != nil {
		return StateView{}, ctx.Err()
	}
	st, _ := s.cache.Snapshot(key)
	return s.view(key, st), nil
}

func (s *Service) view(key string, st query.State[any]) StateView {
	v := StateView{
		Key:         key,
		IsLoading:   st.IsLoading,
		Status:      st.Status,
		Generation:  st.Generation,
		Subscribers: s.cache.Subscribers(key),
	}
	if st.HasData {
		v.Data = st.Data
		v.Empty = isEmpty(st.Data)
	}
	if !st.UpdatedAt.IsZero() {
		updated := st.UpdatedAt.UTC()
		v.UpdatedAt = &updated
	}
	if st.Err != nil {
		code, msg, details := pkgerrors.Public(st.Err)
		v.Error = &ErrorView{Code: string(code), Message: msg, Details: details}
	}
	return v
}

func isEmpty(data any) bool {
	if data == nil {
		return true
	}
	rv := reflect.ValueOf(data)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer:
		return rv.IsNil()
	}
	return false
}
