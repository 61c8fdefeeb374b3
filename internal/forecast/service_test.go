package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/stockpulse-backend/pkg/errors"
	"github.com/angelmondragon/stockpulse-backend/pkg/logger"
	"github.com/angelmondragon/stockpulse-backend/pkg/woocommerce"
)

type fakeSource struct {
	products    []woocommerce.RawProduct
	orders      []woocommerce.RawOrder
	err         error
	degrade     bool
	productCall woocommerce.ProductParams
	orderCall   woocommerce.OrderParams
	calls       int32
}

func (f *fakeSource) FetchProducts(_ context.Context, params woocommerce.ProductParams) ([]woocommerce.RawProduct, error) {
	atomic.AddInt32(&f.calls, 1)
	f.productCall = params
	if f.err != nil {
		return nil, f.err
	}
	return f.products, nil
}

func (f *fakeSource) FetchOrders(_ context.Context, params woocommerce.OrderParams) ([]woocommerce.RawOrder, error) {
	atomic.AddInt32(&f.calls, 1)
	f.orderCall = params
	if f.err != nil {
		return nil, f.err
	}
	return f.orders, nil
}

func (f *fakeSource) HandleFailure(_ context.Context, _ string, err error) error {
	if f.degrade && pkgerrors.IsTransport(err) {
		return nil
	}
	return err
}

func transportErr() error {
	return pkgerrors.Wrap(pkgerrors.CodeTransport, errors.New("dial tcp: refused"), "woocommerce list failed")
}

func fixedNow() time.Time {
	return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
}

func newTestService(t *testing.T, src ProductSource, params ServiceParams) *Service {
	t.Helper()
	params.Source = src
	if params.Now == nil {
		params.Now = fixedNow
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return svc
}

func TestNewServiceRequiresSource(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestGetSeasonalForecastFromOrders(t *testing.T) {
	src := &fakeSource{orders: []woocommerce.RawOrder{
		{ID: 1, Status: "completed", DateCreated: woocommerce.Timestamp{Time: time.Date(2023, 12, 3, 0, 0, 0, 0, time.UTC)},
			LineItems: []woocommerce.LineItem{{ProductID: 9, Name: "Holiday Gifts", Quantity: 8}}},
	}}
	svc := newTestService(t, src, ServiceParams{OrderLookback: 24 * time.Hour})

	entries, err := svc.GetSeasonalForecast(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, MonthsPerYear)
	assert.Equal(t, "Holiday Gifts", entries[11].TopProduct)
	assert.Equal(t, 100, entries[11].TopMetric)
	assert.Equal(t, fixedNow().Add(-24*time.Hour), src.orderCall.After)
	assert.Equal(t, []string{"completed", "processing"}, src.orderCall.Status)
}

func TestGetSeasonalForecastStaticModelMakesNoCall(t *testing.T) {
	src := &fakeSource{}
	svc := newTestService(t, src, ServiceParams{Model: StaticModel{}})
	entries, err := svc.GetSeasonalForecast(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, MonthsPerYear)
	assert.Zero(t, atomic.LoadInt32(&src.calls))
}

func TestGetSeasonalForecastDegradesToEmpty(t *testing.T) {
	svc := newTestService(t, &fakeSource{err: transportErr(), degrade: true}, ServiceParams{})
	entries, err := svc.GetSeasonalForecast(context.Background())
	require.NoError(t, err)
	require.NotNil(t, entries)
	assert.Empty(t, entries)

	loud := newTestService(t, &fakeSource{err: transportErr()}, ServiceParams{})
	_, err = loud.GetSeasonalForecast(context.Background())
	assert.True(t, pkgerrors.IsTransport(err))
}

func TestGetSeasonalForecastSurfacesMalformed(t *testing.T) {
	src := &fakeSource{orders: []woocommerce.RawOrder{
		{ID: 1, Status: "completed", DateCreated: woocommerce.Timestamp{Time: fixedNow()},
			LineItems: []woocommerce.LineItem{{ProductID: 0, Name: "ghost", Quantity: 1}}},
	}, degrade: true}
	svc := newTestService(t, src, ServiceParams{})
	_, err := svc.GetSeasonalForecast(context.Background())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsMalformed(err))
}

func TestGetPopularProductsLimitNormalization(t *testing.T) {
	src := &fakeSource{products: mockCatalog()}
	svc := newTestService(t, src, ServiceParams{})

	got, err := svc.GetPopularProducts(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, got, 5)
	assert.Equal(t, DefaultPopularLimit, src.productCall.PerPage)
	assert.Equal(t, "popularity", src.productCall.OrderBy)

	_, err = svc.GetPopularProducts(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, MaxPopularLimit, src.productCall.PerPage)
}

func TestGetPopularProductsStockRankingFetchesCandidates(t *testing.T) {
	src := &fakeSource{products: mockCatalog()}
	svc := newTestService(t, src, ServiceParams{Ranking: RankByStock, DefaultReorderPoint: 30})
	got, err := svc.GetPopularProducts(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(142), got[0].SalesOrStock)
	assert.Empty(t, src.productCall.OrderBy)
	assert.Equal(t, stockCandidates, src.productCall.PerPage)
}

func TestGetPopularProductsTrendAcrossBaselineWindow(t *testing.T) {
	now := fixedNow()
	clock := func() time.Time { return now }
	src := &fakeSource{products: mockCatalog()}
	store := NewMemoryBaselineStore()
	svc := newTestService(t, src, ServiceParams{Baselines: store, BaselineWindow: time.Hour, Now: clock})

	first, err := svc.GetPopularProducts(context.Background(), 5)
	require.NoError(t, err)
	for _, p := range first {
		assert.Equal(t, TrendStable, p.Trend)
	}

	src.products = mockCatalog()
	src.products[1].TotalSales = 350
	src.products[3].TotalSales = 280
	now = now.Add(10 * time.Minute)

	second, err := svc.GetPopularProducts(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, TrendUp, second[0].Trend)
	assert.Equal(t, int64(8), second[0].GrowthOrReorderPoint)
	assert.Equal(t, TrendDown, second[1].Trend)

	snap, _ := store.Load(context.Background(), RankBySales)
	assert.Equal(t, int64(342), snap.Values[1], "baseline is kept inside its window")

	now = now.Add(time.Hour)
	_, err = svc.GetPopularProducts(context.Background(), 5)
	require.NoError(t, err)
	snap, _ = store.Load(context.Background(), RankBySales)
	assert.Equal(t, int64(350), snap.Values[1], "baseline rotates after its window")
}

type failingStore struct{}

func (failingStore) Load(context.Context, RankingMetric) (*Snapshot, error) {
	return nil, errors.New("redis down")
}
func (failingStore) Save(context.Context, Snapshot) error { return errors.New("redis down") }

func TestGetPopularProductsToleratesBaselineFailures(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "forecast-test", Output: buf})
	svc := newTestService(t, &fakeSource{products: mockCatalog()}, ServiceParams{Baselines: failingStore{}, Logger: logg})
	got, err := svc.GetPopularProducts(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Contains(t, buf.String(), "popularity baseline unavailable")
}

func TestGetPopularProductsDegradesToEmpty(t *testing.T) {
	svc := newTestService(t, &fakeSource{err: transportErr(), degrade: true}, ServiceParams{})
	got, err := svc.GetPopularProducts(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGetProductsAppliesPolicy(t *testing.T) {
	svc := newTestService(t, &fakeSource{err: transportErr(), degrade: true}, ServiceParams{})
	got, err := svc.GetProducts(context.Background(), woocommerce.ProductParams{})
	require.NoError(t, err)
	assert.Empty(t, got)

	svc = newTestService(t, &fakeSource{products: mockCatalog()}, ServiceParams{})
	got, err = svc.GetProducts(context.Background(), woocommerce.ProductParams{Search: "watch"})
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, 10, NormalizeLimit(-3))
	assert.Equal(t, 10, NormalizeLimit(0))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, 100, NormalizeLimit(101))
}

func TestPopularProductsAgainstStoreServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wp-json/wc/v3/products", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "name": "Premium Headphones", "total_sales": 342, "stock_quantity": 142, "price": "129.99"},
			{"id": 2, "name": "Smart Watch", "total_sales": "285", "stock_quantity": 25, "price": "199.99"},
			{"id": 3, "name": "Wireless Earbuds", "total_sales": 253, "stock_quantity": 0, "price": "89.99"},
			{"id": 4, "name": "Fitness Tracker", "total_sales": 210, "stock_quantity": 89, "price": "79.99"},
			{"id": 5, "name": "Bluetooth Speaker", "total_sales": 198, "stock_quantity": 35, "price": "69.99"},
		})
	}))
	defer srv.Close()

	client := woocommerce.NewClient(woocommerce.Config{BaseURL: srv.URL, ConsumerKey: "ck", ConsumerSecret: "cs"}, nil,
		woocommerce.WithHTTPClient(srv.Client()))
	svc := newTestService(t, client, ServiceParams{})

	got, err := svc.GetPopularProducts(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{342, 285, 253}, []int64{got[0].SalesOrStock, got[1].SalesOrStock, got[2].SalesOrStock})
}
