package forecast

import "time"

// MonthsPerYear is the fixed length of every seasonal forecast.
const MonthsPerYear = 12

var monthLabels = [MonthsPerYear]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// MonthLabel returns the short label for a zero-based month ordinal.
func MonthLabel(ordinal int) string {
	if ordinal < 0 || ordinal >= MonthsPerYear {
		return ""
	}
	return monthLabels[ordinal]
}

// SeasonalForecastEntry holds one calendar month's two leading products.
// Month is zero-based so entries can be indexed by time.Month()-1.
type SeasonalForecastEntry struct {
	Month         int    `json:"month"`
	Label         string `json:"label"`
	TopProduct    string `json:"topProduct"`
	TopMetric     int    `json:"topMetric"`
	SecondProduct string `json:"secondProduct"`
	SecondMetric  int    `json:"secondMetric"`
	TopImage      string `json:"topImage,omitempty"`
	SecondImage   string `json:"secondImage,omitempty"`
	NoData        bool   `json:"noData"`
}

// SaleRecord is one product's sold quantity attributed to a calendar month.
type SaleRecord struct {
	ProductID int
	Name      string
	Image     string
	Month     time.Month
	Quantity  int
}

type RankingMetric string

const (
	RankBySales RankingMetric = "sales"
	RankByStock RankingMetric = "stock"
)

// ParseRankingMetric defaults to sales for anything other than "stock".
func ParseRankingMetric(raw string) RankingMetric {
	if RankingMetric(raw) == RankByStock {
		return RankByStock
	}
	return RankBySales
}

type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

type StockState string

const (
	StockInStock    StockState = "in_stock"
	StockLow        StockState = "low_stock"
	StockOutOfStock StockState = "out_of_stock"
	// StockOnBackorder still takes orders whatever the managed quantity says.
	StockOnBackorder StockState = "on_backorder"
)

// PopularProduct is a ranked product ready for the popularity cards.
// GrowthOrReorderPoint carries the growth figure when ranking by sales and
// the reorder point when ranking by stock.
type PopularProduct struct {
	ID                   int        `json:"id"`
	Name                 string     `json:"name"`
	SalesOrStock         int64      `json:"salesOrStock"`
	Image                string     `json:"image,omitempty"`
	Price                string     `json:"price,omitempty"`
	Status               StockState `json:"status"`
	Trend                Trend      `json:"trend"`
	GrowthOrReorderPoint int64      `json:"growthOrReorderPoint"`
}
