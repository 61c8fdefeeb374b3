package forecast

import (
	"math"
	"sort"
	"strings"

	"github.com/angelmondragon/stockpulse-backend/pkg/woocommerce"
)

type productTally struct {
	id       int
	name     string
	image    string
	quantity int
}

// ToSeasonalForecast ranks products per calendar month by sold quantity and
// keeps the top two. It always returns MonthsPerYear entries ordered Jan..Dec;
// months without sales get a NoData entry. Scores are scaled against the
// best-selling month/product pair so every metric falls in [0,100].
func ToSeasonalForecast(records []SaleRecord) ([]SeasonalForecastEntry, error) {
	var months [MonthsPerYear][]*productTally
	var index [MonthsPerYear]map[int]*productTally

	for i, rec := range records {
		if err := validateSaleRecord(i, rec); err != nil {
			return nil, err
		}
		if rec.Quantity <= 0 {
			continue
		}
		m := int(rec.Month) - 1
		if index[m] == nil {
			index[m] = map[int]*productTally{}
		}
		tally, ok := index[m][rec.ProductID]
		if !ok {
			tally = &productTally{id: rec.ProductID, name: strings.TrimSpace(rec.Name)}
			index[m][rec.ProductID] = tally
			months[m] = append(months[m], tally)
		}
		tally.quantity += rec.Quantity
		if tally.image == "" {
			tally.image = strings.TrimSpace(rec.Image)
		}
	}

	peak := 0
	for _, tallies := range months {
		for _, t := range tallies {
			if t.quantity > peak {
				peak = t.quantity
			}
		}
	}

	out := make([]SeasonalForecastEntry, MonthsPerYear)
	for m := range out {
		out[m] = monthEntry(m, months[m], peak)
	}
	return out, nil
}

func monthEntry(month int, tallies []*productTally, peak int) SeasonalForecastEntry {
	entry := SeasonalForecastEntry{Month: month, Label: MonthLabel(month)}
	if len(tallies) == 0 || peak == 0 {
		entry.NoData = true
		return entry
	}
	ranked := make([]*productTally, len(tallies))
	copy(ranked, tallies)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].quantity > ranked[j].quantity
	})

	entry.TopProduct = ranked[0].name
	entry.TopMetric = score(ranked[0].quantity, peak)
	entry.TopImage = ranked[0].image
	if len(ranked) > 1 {
		entry.SecondProduct = ranked[1].name
		entry.SecondMetric = score(ranked[1].quantity, peak)
		entry.SecondImage = ranked[1].image
	}
	return entry
}

func score(quantity, peak int) int {
	if peak <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(quantity) / float64(peak)))
}

func validateSaleRecord(i int, rec SaleRecord) error {
	switch {
	case rec.ProductID == 0:
		return malformed(i, "id")
	case strings.TrimSpace(rec.Name) == "":
		return malformed(i, "name")
	case rec.Month < 1 || rec.Month > 12:
		return malformed(i, "month")
	}
	return nil
}

// SalesFromOrders flattens order line items into monthly sale records dated
// by order creation. Cancelled, failed and refunded orders are skipped, as are
// orders without a creation date.
func SalesFromOrders(orders []woocommerce.RawOrder) []SaleRecord {
	records := []SaleRecord{}
	for _, order := range orders {
		switch strings.ToLower(order.Status) {
		case woocommerce.OrderStatusCancelled, woocommerce.OrderStatusFailed, woocommerce.OrderStatusRefunded:
			continue
		}
		if order.DateCreated.IsZero() {
			continue
		}
		month := order.DateCreated.Month()
		for _, item := range order.LineItems {
			rec := SaleRecord{
				ProductID: item.ProductID,
				Name:      item.Name,
				Month:     month,
				Quantity:  item.Quantity,
			}
			if item.Image != nil {
				rec.Image = item.Image.Src
			}
			records = append(records, rec)
		}
	}
	return records
}
