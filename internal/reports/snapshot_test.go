package reports

import (
	"testing"
	"time"

	"github.com/costwise/costwise/internal/ledger"
)

func purchaseEvent(date string, productID int64, qty, unitCost float64) ledger.Event {
	return ledger.Event{Kind: ledger.EventPurchase, Date: day(date), ProductID: productID, Qty: qty, UnitCost: unitCost}
}

func saleEvent(date string, productID int64, qty float64) ledger.Event {
	return ledger.Event{Kind: ledger.EventSale, Date: day(date), ProductID: productID, Qty: qty, UnitPrice: 10}
}

func testLedgerSet() ledger.LedgerSet {
	return ledger.LedgerSet{
		Products: []int64{1, 2, 3},
		Events: map[int64][]ledger.Event{
			1: {purchaseEvent("2024-01-01", 1, 10, 2), saleEvent("2024-02-01", 1, 4)},
			2: {purchaseEvent("2024-01-05", 2, 5, 8), saleEvent("2024-03-01", 2, 5)},
			3: {purchaseEvent("2024-02-10", 3, 2, 50)},
		},
		Info: map[int64]ledger.ProductInfo{
			1: {Name: "Mug", Category: "Kitchen"},
			2: {Name: "Cap"},
			3: {Name: "Lamp", Category: "Decor"},
		},
	}
}

func TestBuildSnapshotValuesRemainingStock(t *testing.T) {
	snap := BuildSnapshot(testLedgerSet(), time.Time{})
	if len(snap.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(snap.Rows))
	}
	// Product 2 sold out entirely, so the lamp (100) outranks the mugs (12).
	if snap.Rows[0].ProductID != 3 || snap.Rows[1].ProductID != 1 {
		t.Fatalf("unexpected row order: %+v", snap.Rows)
	}
	if snap.Rows[0].Value != 100 {
		t.Fatalf("expected lamp value 100, got %.2f", snap.Rows[0].Value)
	}
	if snap.TotalUnits != 8 {
		t.Fatalf("expected 8 units on hand, got %.2f", snap.TotalUnits)
	}
	if snap.TotalValue != 112 {
		t.Fatalf("expected total value 112, got %.2f", snap.TotalValue)
	}
}

func TestBuildSnapshotHonoursCutoff(t *testing.T) {
	snap := BuildSnapshot(testLedgerSet(), day("2024-01-31"))
	// Only the first two purchases happened by then.
	if len(snap.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(snap.Rows))
	}
	if snap.Rows[0].ProductID != 2 {
		t.Fatalf("expected caps first at 40, got %+v", snap.Rows[0])
	}
	if snap.TotalValue != 60 {
		t.Fatalf("expected total value 60, got %.2f", snap.TotalValue)
	}
	if !snap.AsOf.Equal(day("2024-01-31")) {
		t.Fatalf("expected as_of preserved, got %s", snap.AsOf)
	}
}

func TestBuildReorderAdviceFlagsLowAndOut(t *testing.T) {
	products := []Product{
		{ID: 1, Name: "Mug", Category: "Kitchen", ReorderThreshold: 10, RestockTarget: 20, Active: true},
		{ID: 2, Name: "Cap", ReorderThreshold: 3, RestockTarget: 12, Active: true},
		{ID: 3, Name: "Lamp", Category: "Decor", ReorderThreshold: 1, RestockTarget: 4, Active: true},
		{ID: 4, Name: "Retired", ReorderThreshold: 5, RestockTarget: 10, Active: false},
	}
	suggestions := BuildReorderAdvice(testLedgerSet(), products, time.Time{})

	// Caps are out (0 on hand), mugs are low (6 <= 10), lamps are fine
	// and the inactive product never shows up.
	if len(suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(suggestions))
	}
	first := suggestions[0]
	if first.ProductID != 2 || first.Status != ReorderStatusOut {
		t.Fatalf("expected caps flagged out first, got %+v", first)
	}
	if first.SuggestedQty != 12 {
		t.Fatalf("expected suggested qty 12, got %.2f", first.SuggestedQty)
	}
	if first.Category != "Uncategorized" {
		t.Fatalf("expected category fallback, got %q", first.Category)
	}
	second := suggestions[1]
	if second.ProductID != 1 || second.Status != ReorderStatusLow {
		t.Fatalf("expected mugs flagged low, got %+v", second)
	}
	if second.SuggestedQty != 14 {
		t.Fatalf("expected suggested qty 14, got %.2f", second.SuggestedQty)
	}
}

func TestBuildReorderAdviceUnknownProductCountsAsOut(t *testing.T) {
	products := []Product{
		{ID: 99, Name: "Ghost", ReorderThreshold: 5, RestockTarget: 8, Active: true},
	}
	suggestions := BuildReorderAdvice(testLedgerSet(), products, time.Time{})
	if len(suggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(suggestions))
	}
	if suggestions[0].Status != ReorderStatusOut || suggestions[0].OnHand != 0 {
		t.Fatalf("expected ghost product out with zero stock, got %+v", suggestions[0])
	}
}
