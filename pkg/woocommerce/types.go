package woocommerce

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Stock status values reported by the platform.
const (
	StockStatusInStock     = "instock"
	StockStatusOutOfStock  = "outofstock"
	StockStatusOnBackorder = "onbackorder"
)

// Order status values that never count as a sale.
const (
	OrderStatusCancelled = "cancelled"
	OrderStatusFailed    = "failed"
	OrderStatusRefunded  = "refunded"
)

type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Image struct {
	Src string `json:"src"`
}

// RawProduct is the subset of the products resource the dashboard reads.
// Unknown fields are ignored.
type RawProduct struct {
	ID             int        `json:"id"`
	Name           string     `json:"name"`
	StockQuantity  *int       `json:"stock_quantity"`
	StockStatus    string     `json:"stock_status"`
	Categories     []Category `json:"categories"`
	Price          string     `json:"price"`
	Images         []Image    `json:"images,omitempty"`
	TotalSales     FlexInt    `json:"total_sales"`
	LowStockAmount *int       `json:"low_stock_amount,omitempty"`
	DateCreated    string     `json:"date_created,omitempty"`
}

// Stock returns the stock quantity, treating an unmanaged stock as zero.
func (p RawProduct) Stock() int {
	if p.StockQuantity == nil {
		return 0
	}
	return *p.StockQuantity
}

// PrimaryImage returns the first image source or an empty string.
func (p RawProduct) PrimaryImage() string {
	for _, img := range p.Images {
		if src := strings.TrimSpace(img.Src); src != "" {
			return src
		}
	}
	return ""
}

type LineItem struct {
	ProductID int    `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Total     string `json:"total"`
	Image     *Image `json:"image,omitempty"`
}

// RawOrder is the subset of the orders resource used to derive monthly sales.
type RawOrder struct {
	ID          int        `json:"id"`
	Status      string     `json:"status"`
	DateCreated Timestamp  `json:"date_created"`
	LineItems   []LineItem `json:"line_items"`
}

// FlexInt decodes numbers that the platform sometimes serializes as strings.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*f = 0
			return nil
		}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*f = FlexInt(n)
		return nil
	}
	fl, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("decode flexible integer %q: %w", raw, err)
	}
	*f = FlexInt(int64(fl))
	return nil
}

// Timestamp decodes the platform's zone-less ISO8601 timestamps as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("decode timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format("2006-01-02T15:04:05"))
}

// ProductParams filters, paginates and orders a products listing.
type ProductParams struct {
	Page        int    `validate:"omitempty,min=1"`
	PerPage     int    `validate:"omitempty,min=1,max=100"`
	OrderBy     string `validate:"omitempty,oneof=date id include title slug price popularity rating menu_order modified"`
	Order       string `validate:"omitempty,oneof=asc desc"`
	Status      string `validate:"omitempty,oneof=any draft pending private publish"`
	Category    string
	Search      string
	StockStatus string `validate:"omitempty,oneof=instock outofstock onbackorder"`
}

func (p ProductParams) values() url.Values {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(p.PerPage))
	}
	setIfPresent(q, "orderby", p.OrderBy)
	setIfPresent(q, "order", p.Order)
	setIfPresent(q, "status", p.Status)
	setIfPresent(q, "category", p.Category)
	setIfPresent(q, "search", p.Search)
	setIfPresent(q, "stock_status", p.StockStatus)
	return q
}

// OrderParams selects the order history window.
type OrderParams struct {
	After   time.Time
	Before  time.Time
	Page    int      `validate:"omitempty,min=1"`
	PerPage int      `validate:"omitempty,min=1,max=100"`
	Status  []string `validate:"omitempty,dive,oneof=any pending processing on-hold completed cancelled refunded failed trash"`
}

func (p OrderParams) values() url.Values {
	q := url.Values{}
	if !p.After.IsZero() {
		q.Set("after", p.After.UTC().Format(time.RFC3339))
	}
	if !p.Before.IsZero() {
		q.Set("before", p.Before.UTC().Format(time.RFC3339))
	}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(p.PerPage))
	}
	if len(p.Status) > 0 {
		q.Set("status", strings.Join(p.Status, ","))
	}
	return q
}

func setIfPresent(q url.Values, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		q.Set(key, v)
	}
}

// APIError is the platform's error body for non-2xx responses.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("woocommerce api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("woocommerce api error %d: %s", e.StatusCode, e.Message)
}
