package ledger

import "sort"

// BuildLedgers groups events per product and sorts each ledger by date with
// purchases ordered before sales at equal timestamps, so a same-day purchase
// is sellable by a same-day sale. First-appearance order and product display
// metadata are captured alongside.
func BuildLedgers(events []Event) LedgerSet {
	set := LedgerSet{
		Events: make(map[int64][]Event),
		Info:   make(map[int64]ProductInfo),
	}
	for _, ev := range events {
		if _, seen := set.Events[ev.ProductID]; !seen {
			set.Products = append(set.Products, ev.ProductID)
		}
		set.Events[ev.ProductID] = append(set.Events[ev.ProductID], ev)

		info := set.Info[ev.ProductID]
		if ev.ProductName != "" {
			info.Name = ev.ProductName
		}
		if ev.Category != "" {
			info.Category = ev.Category
		}
		set.Info[ev.ProductID] = info
	}
	for _, ledger := range set.Events {
		sort.SliceStable(ledger, func(i, j int) bool {
			if !ledger[i].Date.Equal(ledger[j].Date) {
				return ledger[i].Date.Before(ledger[j].Date)
			}
			return kindRank(ledger[i].Kind) < kindRank(ledger[j].Kind)
		})
	}
	return set
}
