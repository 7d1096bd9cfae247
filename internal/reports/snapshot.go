package reports

import (
	"sort"
	"time"

	"github.com/costwise/costwise/internal/costing"
	"github.com/costwise/costwise/internal/ledger"
)

// BuildSnapshot values the stock held at the cutoff by replaying each
// product's ledger up to that instant. A zero cutoff values everything.
// Rows carry only products with stock on hand, most valuable first.
func BuildSnapshot(set ledger.LedgerSet, cutoff time.Time) InventorySnapshot {
	snap := InventorySnapshot{
		AsOf: cutoff,
		Rows: make([]StockRow, 0, len(set.Products)),
	}
	for _, id := range set.Products {
		state := costing.StateAt(set.Events[id], cutoff)
		if state.OnHand <= 0 {
			continue
		}
		info := set.Info[id]
		category := info.Category
		if category == "" {
			category = uncategorized
		}
		value := state.OnHand * state.AvgCost
		snap.Rows = append(snap.Rows, StockRow{
			ProductID: id,
			Name:      info.Name,
			Category:  category,
			OnHand:    state.OnHand,
			UnitCost:  state.AvgCost,
			Value:     value,
		})
		snap.TotalUnits += state.OnHand
		snap.TotalValue += value
	}
	sort.SliceStable(snap.Rows, func(i, j int) bool {
		return snap.Rows[i].Value > snap.Rows[j].Value
	})
	return snap
}

// BuildReorderAdvice compares current stock against each active product's
// replenishment policy. Products at or below threshold come back flagged,
// exhausted ones first, then by how little remains.
func BuildReorderAdvice(set ledger.LedgerSet, products []Product, cutoff time.Time) []ReorderSuggestion {
	suggestions := make([]ReorderSuggestion, 0)
	for _, product := range products {
		if !product.Active {
			continue
		}
		state := costing.StateAt(set.Events[product.ID], cutoff)
		status := reorderStatus(state.OnHand, product.ReorderThreshold)
		if status == "" {
			continue
		}
		suggested := product.RestockTarget - state.OnHand
		if suggested < 0 {
			suggested = 0
		}
		category := product.Category
		if category == "" {
			category = uncategorized
		}
		suggestions = append(suggestions, ReorderSuggestion{
			ProductID:        product.ID,
			Name:             product.Name,
			Category:         category,
			OnHand:           state.OnHand,
			ReorderThreshold: product.ReorderThreshold,
			RestockTarget:    product.RestockTarget,
			SuggestedQty:     suggested,
			Status:           status,
		})
	}
	sort.SliceStable(suggestions, func(i, j int) bool {
		ri, rj := statusRank(suggestions[i].Status), statusRank(suggestions[j].Status)
		if ri != rj {
			return ri < rj
		}
		if suggestions[i].OnHand != suggestions[j].OnHand {
			return suggestions[i].OnHand < suggestions[j].OnHand
		}
		return suggestions[i].ProductID < suggestions[j].ProductID
	})
	return suggestions
}

// reorderStatus returns the flag for the given stock level, or "" when the
// product does not need attention.
func reorderStatus(onHand, threshold float64) string {
	switch {
	case onHand <= 0:
		return ReorderStatusOut
	case onHand <= threshold:
		return ReorderStatusLow
	default:
		return ""
	}
}

func statusRank(status string) int {
	if status == ReorderStatusOut {
		return 0
	}
	return 1
}
