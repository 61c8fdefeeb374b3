package forecast

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/stockpulse-backend/pkg/errors"
	"github.com/angelmondragon/stockpulse-backend/pkg/woocommerce"
)

const defaultCurrencySymbol = "$"

// PopularityOptions tunes ToPopularProducts.
type PopularityOptions struct {
	Metric RankingMetric
	// Baseline holds each product's previous metric value keyed by product id.
	// Products without a baseline have zero growth.
	Baseline            map[int]int64
	CurrencySymbol      string
	DefaultReorderPoint int
}

// ToPopularProducts ranks products by the chosen metric, descending, keeping
// the platform's order for ties, and truncates the result to limit entries.
func ToPopularProducts(raw []woocommerce.RawProduct, limit int, opts PopularityOptions) ([]PopularProduct, error) {
	for i, p := range raw {
		if p.ID == 0 {
			return nil, malformed(i, "id")
		}
		if strings.TrimSpace(p.Name) == "" {
			return nil, malformed(i, "name")
		}
	}
	if limit < 0 {
		limit = 0
	}

	metric := opts.Metric
	if metric == "" {
		metric = RankBySales
	}
	symbol := opts.CurrencySymbol
	if symbol == "" {
		symbol = defaultCurrencySymbol
	}

	ranked := make([]woocommerce.RawProduct, len(raw))
	copy(ranked, raw)
	sort.SliceStable(ranked, func(i, j int) bool {
		return MetricValue(ranked[i], metric) > MetricValue(ranked[j], metric)
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]PopularProduct, 0, len(ranked))
	for _, p := range ranked {
		value := MetricValue(p, metric)
		var growth int64
		if prev, ok := opts.Baseline[p.ID]; ok {
			growth = value - prev
		}
		reorder := ReorderPoint(p, opts.DefaultReorderPoint)

		item := PopularProduct{
			ID:           p.ID,
			Name:         strings.TrimSpace(p.Name),
			SalesOrStock: value,
			Image:        p.PrimaryImage(),
			Status:       StockStatus(p, reorder),
			Trend:        ClassifyTrend(float64(growth)),
		}
		if price, ok := FormatPrice(p.Price, symbol); ok {
			item.Price = price
		}
		if metric == RankByStock {
			item.GrowthOrReorderPoint = int64(reorder)
		} else {
			item.GrowthOrReorderPoint = growth
		}
		out = append(out, item)
	}
	return out, nil
}

// MetricValue extracts the ranking figure for a product.
func MetricValue(p woocommerce.RawProduct, metric RankingMetric) int64 {
	if metric == RankByStock {
		return int64(p.Stock())
	}
	return int64(p.TotalSales)
}

// Baseline captures the metric of every product so the next ranking can
// compute growth against it.
func Baseline(raw []woocommerce.RawProduct, metric RankingMetric) map[int]int64 {
	values := make(map[int]int64, len(raw))
	for _, p := range raw {
		if p.ID == 0 {
			continue
		}
		values[p.ID] = MetricValue(p, metric)
	}
	return values
}

// ClassifyTrend maps a growth figure onto a trend direction.
func ClassifyTrend(growth float64) Trend {
	switch {
	case growth > 0:
		return TrendUp
	case growth < 0:
		return TrendDown
	default:
		return TrendStable
	}
}

// ReorderPoint prefers the product's own low-stock threshold.
func ReorderPoint(p woocommerce.RawProduct, fallback int) int {
	if p.LowStockAmount != nil && *p.LowStockAmount > 0 {
		return *p.LowStockAmount
	}
	return fallback
}

// StockStatus classifies availability. The platform's outofstock and
// onbackorder statuses win over the managed quantity; products whose stock is
// not managed follow stock_status only.
func StockStatus(p woocommerce.RawProduct, reorderPoint int) StockState {
	switch {
	case strings.EqualFold(p.StockStatus, woocommerce.StockStatusOutOfStock):
		return StockOutOfStock
	case strings.EqualFold(p.StockStatus, woocommerce.StockStatusOnBackorder):
		return StockOnBackorder
	}
	if p.StockQuantity == nil {
		return StockInStock
	}
	qty := *p.StockQuantity
	switch {
	case qty <= 0:
		return StockOutOfStock
	case qty <= reorderPoint:
		return StockLow
	default:
		return StockInStock
	}
}

// FormatPrice renders a platform price string with two decimals. It reports
// false when the price is missing or not a number.
func FormatPrice(raw, symbol string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return "", false
	}
	return symbol + amount.StringFixed(2), true
}

func malformed(index int, field string) error {
	return pkgerrors.New(pkgerrors.CodeMalformed, fmt.Sprintf("record %d is missing %s", index, field)).
		WithDetails(map[string]any{"index": index, "field": field})
}
