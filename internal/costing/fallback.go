package costing

import (
	"time"

	"github.com/costwise/costwise/internal/ledger"
)

// FallbackCosts computes the global weighted-average purchase cost per product
// over all purchase events up to the cutoff (unbounded when zero). Products
// without purchases are absent from the map, so lookups yield zero. The
// result feeds Replay as the last-resort cost basis.
func FallbackCosts(set ledger.LedgerSet, cutoff time.Time) map[int64]float64 {
	costs := make(map[int64]float64, len(set.Events))
	for id, events := range set.Events {
		var costSum, qtySum float64
		for _, ev := range events {
			if ev.Kind != ledger.EventPurchase {
				continue
			}
			if !cutoff.IsZero() && ev.Date.After(cutoff) {
				continue
			}
			costSum += ev.Qty * ev.UnitCost
			qtySum += ev.Qty
		}
		if qtySum > 0 {
			costs[id] = costSum / qtySum
		}
	}
	return costs
}
