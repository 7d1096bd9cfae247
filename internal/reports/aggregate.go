package reports

import (
	"sort"
	"time"

	"github.com/costwise/costwise/internal/costing"
	"github.com/costwise/costwise/internal/ledger"
)

// Aggregator folds replayed sale outputs into a period summary. Feed it
// every output from every ledger: the window filter decides what lands in
// the totals, while the monthly series buckets by calendar month within
// its own year scope. Outputs must arrive in ledger order per product so
// that first appearance fixes the pre-sort row order.
type Aggregator struct {
	window     Window
	year       int
	revenue    float64
	cogs       float64
	units      float64
	order      []int64
	byProduct  map[int64]*ProductRow
	byCategory map[string]float64
	monthly    [12]monthlyBucket
}

type monthlyBucket struct {
	sales   map[int64]struct{}
	units   float64
	revenue float64
	cost    float64
}

// NewAggregator prepares an aggregator for the given window. year scopes
// the monthly series to one calendar year; zero buckets across all years.
func NewAggregator(window Window, year int) *Aggregator {
	a := &Aggregator{
		window:     window,
		year:       year,
		byProduct:  make(map[int64]*ProductRow),
		byCategory: make(map[string]float64),
	}
	for m := range a.monthly {
		a.monthly[m].sales = make(map[int64]struct{})
	}
	return a
}

// Add folds one sale output into the summary. info supplies the resolved
// display name and category for the product.
func (a *Aggregator) Add(out costing.SaleOutput, info ledger.ProductInfo) {
	if a.window.Contains(out.Date) {
		a.revenue += out.Revenue
		a.cogs += out.COGS
		a.units += out.Qty

		row, ok := a.byProduct[out.ProductID]
		if !ok {
			category := info.Category
			if category == "" {
				category = uncategorized
			}
			row = &ProductRow{ProductID: out.ProductID, Name: info.Name, Category: category}
			a.byProduct[out.ProductID] = row
			a.order = append(a.order, out.ProductID)
		}
		row.UnitsSold += out.Qty
		row.Revenue += out.Revenue
		row.Cost += out.COGS
		a.byCategory[row.Category] += out.Revenue
	}

	if a.year == 0 || out.Date.Year() == a.year {
		bucket := &a.monthly[int(out.Date.Month())-1]
		bucket.sales[out.SaleID] = struct{}{}
		bucket.units += out.Qty
		bucket.revenue += out.Revenue
		bucket.cost += out.COGS
	}
}

// Summary finalises the read model. Product rows sort by profit
// descending with the accumulation order breaking ties, so two runs over
// the same ledgers render identically.
func (a *Aggregator) Summary(period string) PeriodSummary {
	rows := make([]ProductRow, 0, len(a.order))
	for _, id := range a.order {
		row := *a.byProduct[id]
		row.Profit = row.Revenue - row.Cost
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Profit > rows[j].Profit
	})

	monthly := make([]MonthlyRow, len(a.monthly))
	for m := range a.monthly {
		bucket := a.monthly[m]
		monthly[m] = MonthlyRow{
			Month:     time.Month(m + 1).String()[:3],
			Orders:    len(bucket.sales),
			UnitsSold: bucket.units,
			Revenue:   bucket.revenue,
			Cost:      bucket.cost,
			Profit:    bucket.revenue - bucket.cost,
		}
	}

	return PeriodSummary{
		Period:     period,
		Revenue:    a.revenue,
		COGS:       a.cogs,
		Profit:     a.revenue - a.cogs,
		UnitsSold:  a.units,
		ByProduct:  rows,
		ByCategory: a.byCategory,
		Monthly:    monthly,
	}
}
