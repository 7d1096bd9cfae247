// Package reports builds profitability and inventory read models from the
// costing ledgers. Summaries are cached behind versioned Redis keys and
// rebuilt on demand; valuation snapshots persist to Postgres.
package reports

import (
	"errors"
	"math"
	"regexp"
	"time"
)

// Sentinel errors surfaced to transport and job layers.
var (
	ErrInvalidPeriod  = errors.New("reports: invalid period")
	ErrSnapshotExists = errors.New("reports: valuation snapshot already captured for that day")
)

const uncategorized = "Uncategorized"

// Reorder status labels ship on the advice rows. Rows that are fine are
// omitted, so only the flagged states appear on the wire.
const (
	ReorderStatusOut = "out"
	ReorderStatusLow = "low"
)

// Window bounds a reporting period. Zero endpoints are unbounded, so the
// zero Window spans all time. Both endpoints are inclusive.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && t.After(w.End) {
		return false
	}
	return true
}

var periodPattern = regexp.MustCompile(`^(all|\d{4}|\d{4}-\d{2})$`)

// PeriodWindow translates a period expression into a reporting window.
// Accepted forms are "all", "YYYY" and "YYYY-MM"; the empty string means
// all time. The returned year scopes the monthly series and is zero when
// the series should bucket across every year.
func PeriodWindow(period string) (Window, int, error) {
	if period == "" || period == "all" {
		return Window{}, 0, nil
	}
	if !periodPattern.MatchString(period) {
		return Window{}, 0, ErrInvalidPeriod
	}
	if len(period) == 4 {
		start, err := time.Parse("2006", period)
		if err != nil {
			return Window{}, 0, ErrInvalidPeriod
		}
		end := start.AddDate(1, 0, 0).Add(-time.Nanosecond)
		return Window{Start: start, End: end}, start.Year(), nil
	}
	start, err := time.Parse("2006-01", period)
	if err != nil {
		return Window{}, 0, ErrInvalidPeriod
	}
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return Window{Start: start, End: end}, start.Year(), nil
}

// ProductRow is one product's contribution to a period summary.
type ProductRow struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	UnitsSold float64 `json:"units_sold"`
	Revenue   float64 `json:"revenue"`
	Cost      float64 `json:"cost"`
	Profit    float64 `json:"profit"`
}

// MonthlyRow is one bucket of the twelve-month series.
type MonthlyRow struct {
	Month     string  `json:"month"`
	Orders    int     `json:"orders_count"`
	UnitsSold float64 `json:"units_sold"`
	Revenue   float64 `json:"revenue"`
	Cost      float64 `json:"cost"`
	Profit    float64 `json:"profit"`
}

// PeriodSummary is the profitability read model for one period.
type PeriodSummary struct {
	Period     string             `json:"period"`
	Revenue    float64            `json:"revenue"`
	COGS       float64            `json:"cogs"`
	Profit     float64            `json:"profit"`
	UnitsSold  float64            `json:"units_sold"`
	ByProduct  []ProductRow       `json:"by_product"`
	ByCategory map[string]float64 `json:"by_category"`
	Monthly    []MonthlyRow       `json:"monthly"`
}

// Rounded returns a copy with money fields rounded to cents. Aggregation
// runs on raw floats; rounding happens once, at the presentation edge.
func (s PeriodSummary) Rounded() PeriodSummary {
	out := s
	out.Revenue = round2(s.Revenue)
	out.COGS = round2(s.COGS)
	out.Profit = round2(s.Profit)
	out.ByProduct = make([]ProductRow, len(s.ByProduct))
	for i, row := range s.ByProduct {
		row.Revenue = round2(row.Revenue)
		row.Cost = round2(row.Cost)
		row.Profit = round2(row.Profit)
		out.ByProduct[i] = row
	}
	out.ByCategory = make(map[string]float64, len(s.ByCategory))
	for category, revenue := range s.ByCategory {
		out.ByCategory[category] = round2(revenue)
	}
	out.Monthly = make([]MonthlyRow, len(s.Monthly))
	for i, row := range s.Monthly {
		row.Revenue = round2(row.Revenue)
		row.Cost = round2(row.Cost)
		row.Profit = round2(row.Profit)
		out.Monthly[i] = row
	}
	return out
}

// StockRow is one product's position in an inventory snapshot.
type StockRow struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	OnHand    float64 `json:"on_hand"`
	UnitCost  float64 `json:"unit_cost"`
	Value     float64 `json:"value"`
}

// InventorySnapshot values the stock held at a point in time.
type InventorySnapshot struct {
	AsOf       time.Time  `json:"as_of"`
	Rows       []StockRow `json:"rows"`
	TotalUnits float64    `json:"total_units"`
	TotalValue float64    `json:"total_value"`
}

// Rounded returns a copy with money fields rounded to cents.
func (s InventorySnapshot) Rounded() InventorySnapshot {
	out := s
	out.TotalValue = round2(s.TotalValue)
	out.Rows = make([]StockRow, len(s.Rows))
	for i, row := range s.Rows {
		row.UnitCost = round2(row.UnitCost)
		row.Value = round2(row.Value)
		out.Rows[i] = row
	}
	return out
}

// Product is a catalog entry carrying the replenishment policy.
type Product struct {
	ID               int64
	Name             string
	Category         string
	ReorderThreshold float64
	RestockTarget    float64
	Active           bool
}

// ReorderSuggestion flags a product whose stock fell to or below its
// reorder threshold.
type ReorderSuggestion struct {
	ProductID        int64   `json:"product_id"`
	Name             string  `json:"name"`
	Category         string  `json:"category"`
	OnHand           float64 `json:"on_hand"`
	ReorderThreshold float64 `json:"reorder_threshold"`
	RestockTarget    float64 `json:"restock_target"`
	SuggestedQty     float64 `json:"suggested_qty"`
	Status           string  `json:"status"`
}

// ValuationSnapshot is a persisted record of total inventory value,
// captured at most once per day.
type ValuationSnapshot struct {
	ID           int64     `json:"id"`
	Reference    string    `json:"reference"`
	AsOf         time.Time `json:"as_of"`
	TotalUnits   float64   `json:"total_units"`
	TotalValue   float64   `json:"total_value"`
	ProductCount int       `json:"product_count"`
	CreatedAt    time.Time `json:"created_at"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
