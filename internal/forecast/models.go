package forecast

import "strings"

const (
	ModelTopSellers = "orders"
	ModelStatic     = "static"
)

// SeasonalModel turns monthly sales into a twelve-month forecast. Swapping the
// model changes where the numbers come from without touching consumers.
type SeasonalModel interface {
	Name() string
	// NeedsOrders reports whether Forecast consumes order history. Models that
	// return false are called with nil records and trigger no network call.
	NeedsOrders() bool
	Forecast(records []SaleRecord) ([]SeasonalForecastEntry, error)
}

// ParseModel maps the configured forecast source onto a model.
func ParseModel(source string) SeasonalModel {
	if strings.EqualFold(strings.TrimSpace(source), ModelStatic) {
		return StaticModel{}
	}
	return TopSellersModel{}
}

// TopSellersModel projects last year's best sellers onto each month.
type TopSellersModel struct{}

func (TopSellersModel) Name() string      { return ModelTopSellers }
func (TopSellersModel) NeedsOrders() bool { return true }

func (TopSellersModel) Forecast(records []SaleRecord) ([]SeasonalForecastEntry, error) {
	return ToSeasonalForecast(records)
}

// StaticModel serves an illustrative dataset for demo stores without order history.
type StaticModel struct{}

func (StaticModel) Name() string      { return ModelStatic }
func (StaticModel) NeedsOrders() bool { return false }

func (StaticModel) Forecast([]SaleRecord) ([]SeasonalForecastEntry, error) {
	out := make([]SeasonalForecastEntry, MonthsPerYear)
	copy(out, staticForecast[:])
	return out, nil
}

var staticForecast = [MonthsPerYear]SeasonalForecastEntry{
	{Month: 0, Label: "Jan", TopProduct: "Winter Gear", TopMetric: 85, SecondProduct: "Thermal Wear", SecondMetric: 75,
		TopImage: "https://images.unsplash.com/photo-1483917128463-5ca305343bd9", SecondImage: "https://images.unsplash.com/photo-1544787219-7f47ccb76574"},
	{Month: 1, Label: "Feb", TopProduct: "Valentine Gifts", TopMetric: 95, SecondProduct: "Accessories", SecondMetric: 90,
		TopImage: "https://images.unsplash.com/photo-1494336956603-39e73c031f5c", SecondImage: "https://images.unsplash.com/photo-1526081347589-7fa3cb41b4b2"},
	{Month: 2, Label: "Mar", TopProduct: "Spring Collection", TopMetric: 80, SecondProduct: "Outdoor Gear", SecondMetric: 75,
		TopImage: "https://images.unsplash.com/photo-1522438823541-d077e0a978e1", SecondImage: "https://images.unsplash.com/photo-1558910018-dc378dc62554"},
	{Month: 3, Label: "Apr", TopProduct: "Rain Gear", TopMetric: 85, SecondProduct: "Home Decor", SecondMetric: 70,
		TopImage: "https://images.unsplash.com/photo-1519904981063-b0cf448d479e", SecondImage: "https://images.unsplash.com/photo-1616046229478-9901c5536a45"},
	{Month: 4, Label: "May", TopProduct: "Summer Wear", TopMetric: 90, SecondProduct: "Beach Items", SecondMetric: 85,
		TopImage: "https://images.unsplash.com/photo-1533678265838-c3cc4ecad7a3", SecondImage: "https://images.unsplash.com/photo-1524656855800-59465ebcec69"},
	{Month: 5, Label: "Jun", TopProduct: "Outdoor Sports", TopMetric: 95, SecondProduct: "Camping Gear", SecondMetric: 90,
		TopImage: "https://images.unsplash.com/photo-1480714378408-67cf0d13bc1b", SecondImage: "https://images.unsplash.com/photo-1570197788417-0e82375c9371"},
	{Month: 6, Label: "Jul", TopProduct: "Swimwear", TopMetric: 92, SecondProduct: "Travel Accessories", SecondMetric: 84},
	{Month: 7, Label: "Aug", TopProduct: "Back to School", TopMetric: 96, SecondProduct: "Backpacks", SecondMetric: 88},
	{Month: 8, Label: "Sep", TopProduct: "Fall Collection", TopMetric: 82, SecondProduct: "Home Office", SecondMetric: 76},
	{Month: 9, Label: "Oct", TopProduct: "Halloween Costumes", TopMetric: 90, SecondProduct: "Knitwear", SecondMetric: 78},
	{Month: 10, Label: "Nov", TopProduct: "Holiday Electronics", TopMetric: 98, SecondProduct: "Winter Coats", SecondMetric: 86},
	{Month: 11, Label: "Dec", TopProduct: "Holiday Gifts", TopMetric: 99, SecondProduct: "Party Supplies", SecondMetric: 91},
}
