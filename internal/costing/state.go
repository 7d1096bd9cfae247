// Package costing implements the moving-average cost state machine replayed
// over product ledgers.
package costing

import (
	"math"
	"time"

	"github.com/costwise/costwise/internal/ledger"
)

// State is the running stock position of one product. It is never stored, only
// re-derived by replay. AvgCost equals Value/OnHand whenever OnHand is
// positive and resets to zero at zero stock.
type State struct {
	OnHand  float64
	AvgCost float64
	Value   float64
}

// SaleOutput is the costed result of one sale event.
type SaleOutput struct {
	Date        time.Time
	ProductID   int64
	SaleID      int64
	ProductName string
	Category    string
	Qty         float64
	Revenue     float64
	COGS        float64
}

// Replay runs the state machine over a product's sorted ledger, emitting one
// output per sale event. Every event is processed so later sales always see
// the carried-over cost basis; callers filter outputs to their window.
// fallbackCost substitutes for a zero average cost, covering sales recorded
// before any purchase history is visible.
func Replay(events []ledger.Event, fallbackCost float64) ([]SaleOutput, State) {
	var state State
	var outputs []SaleOutput
	for _, ev := range events {
		next, out, emitted := apply(state, ev, fallbackCost)
		state = next
		if emitted {
			outputs = append(outputs, out)
		}
	}
	return outputs, state
}

// StateAt replays the ledger halting at the first event dated after the
// cutoff; events at the cutoff itself are included. A zero cutoff replays
// everything.
func StateAt(events []ledger.Event, cutoff time.Time) State {
	var state State
	for _, ev := range events {
		if !cutoff.IsZero() && ev.Date.After(cutoff) {
			break
		}
		state, _, _ = apply(state, ev, 0)
	}
	return state
}

func apply(state State, ev ledger.Event, fallbackCost float64) (State, SaleOutput, bool) {
	switch ev.Kind {
	case ledger.EventPurchase:
		state.Value += ev.Qty * ev.UnitCost
		state.OnHand += ev.Qty
		state.AvgCost = averageCost(state)
		return state, SaleOutput{}, false
	case ledger.EventSale:
		unitCost := state.AvgCost
		if unitCost == 0 && fallbackCost > 0 {
			unitCost = fallbackCost
		}
		cogs := ev.Qty * unitCost
		out := SaleOutput{
			Date:        ev.Date,
			ProductID:   ev.ProductID,
			SaleID:      ev.SaleID,
			ProductName: ev.ProductName,
			Category:    ev.Category,
			Qty:         ev.Qty,
			Revenue:     ev.Qty * ev.UnitPrice,
			COGS:        cogs,
		}
		// Overselling clamps at zero rather than going negative.
		state.OnHand = math.Max(0, state.OnHand-ev.Qty)
		state.Value = math.Max(0, state.Value-cogs)
		state.AvgCost = averageCost(state)
		return state, out, true
	}
	return state, SaleOutput{}, false
}

func averageCost(state State) float64 {
	if state.OnHand > 0 {
		return state.Value / state.OnHand
	}
	return 0
}
