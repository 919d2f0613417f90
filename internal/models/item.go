package models

import (
	"fmt"
	"strings"
	"time"
)

// Date is a calendar date serialized as "2006-01-02", the format the
// report layer expects in the output JSON.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format("2006-01-02") + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return fmt.Errorf("failed to parse date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

func (d Date) String() string {
	return d.Format("2006-01-02")
}

// LineItem is the harvested unit: one purchased product within an order.
// TotalPrice is the quantity-scaled total in yen, not the unit price.
// ProductID is empty only when the source product page is gone.
type LineItem struct {
	Name         string `json:"name"`
	ProductID    string `json:"productId"`
	URL          string `json:"url"`
	Quantity     int    `json:"quantity"`
	TotalPrice   int    `json:"totalPrice"`
	Category     string `json:"category"`
	Subcategory  string `json:"subcategory"`
	Seller       string `json:"seller"`
	PurchaseDate Date   `json:"purchaseDate"`
}

// CategoryInfo is the breadcrumb-derived classification of a product.
// Both fields empty is the terminal degraded result, not an error.
type CategoryInfo struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
}

// CrawlCursor identifies the exact resumption point of a harvest.
// Page is 1-based.
type CrawlCursor struct {
	Year int `json:"year"`
	Page int `json:"page"`
}

// CrawlState is the checkpointed progress of a harvest. Items holds every
// LineItem accumulated through the last completed page.
type CrawlState struct {
	Cursor CrawlCursor `json:"cursor"`
	Items  []LineItem  `json:"items"`
}

// Empty reports whether the state carries no progress at all.
func (s *CrawlState) Empty() bool {
	return s.Cursor.Year == 0 && s.Cursor.Page == 0 && len(s.Items) == 0
}
