package ledger

import (
	"testing"
	"time"
)

func day(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return t
}

func TestBuildLedgersSortsByDateWithPurchaseFirst(t *testing.T) {
	events := []Event{
		{Kind: EventSale, Date: day("2024-01-10"), ProductID: 1, Qty: 2, SaleID: 7},
		{Kind: EventPurchase, Date: day("2024-01-10"), ProductID: 1, Qty: 10, UnitCost: 2},
		{Kind: EventPurchase, Date: day("2024-01-02"), ProductID: 1, Qty: 5, UnitCost: 1},
	}

	set := BuildLedgers(events)
	ledger := set.Events[1]
	if len(ledger) != 3 {
		t.Fatalf("expected 3 events, got %d", len(ledger))
	}
	if !ledger[0].Date.Equal(day("2024-01-02")) {
		t.Fatalf("expected earliest event first, got %v", ledger[0].Date)
	}
	if ledger[1].Kind != EventPurchase || ledger[2].Kind != EventSale {
		t.Fatalf("expected purchase before sale at equal dates, got %s then %s", ledger[1].Kind, ledger[2].Kind)
	}
}

func TestBuildLedgersKeepsFirstAppearanceOrder(t *testing.T) {
	events := []Event{
		{Kind: EventPurchase, Date: day("2024-01-05"), ProductID: 9, Qty: 1},
		{Kind: EventPurchase, Date: day("2024-01-01"), ProductID: 3, Qty: 1},
		{Kind: EventSale, Date: day("2024-01-06"), ProductID: 9, Qty: 1, SaleID: 1},
		{Kind: EventSale, Date: day("2024-01-07"), ProductID: 5, Qty: 1, SaleID: 2},
	}

	set := BuildLedgers(events)
	want := []int64{9, 3, 5}
	if len(set.Products) != len(want) {
		t.Fatalf("expected %d products, got %d", len(want), len(set.Products))
	}
	for i, id := range want {
		if set.Products[i] != id {
			t.Fatalf("expected product %d at position %d, got %d", id, i, set.Products[i])
		}
	}
}

func TestBuildLedgersCollectsProductInfo(t *testing.T) {
	events := []Event{
		{Kind: EventPurchase, Date: day("2024-01-01"), ProductID: 1, Qty: 1, ProductName: "Widget"},
		{Kind: EventSale, Date: day("2024-01-02"), ProductID: 1, Qty: 1, SaleID: 1, ProductName: "Widget Pro", Category: "Hardware"},
		{Kind: EventSale, Date: day("2024-01-03"), ProductID: 2, Qty: 1, SaleID: 2},
	}

	set := BuildLedgers(events)
	info := set.Info[1]
	if info.Name != "Widget Pro" {
		t.Fatalf("expected later name to win, got %q", info.Name)
	}
	if info.Category != "Hardware" {
		t.Fatalf("expected category Hardware, got %q", info.Category)
	}
	if got := set.Info[2]; got.Name != "" || got.Category != "" {
		t.Fatalf("expected empty info for product 2, got %+v", got)
	}
}
