package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func datePtr(value string) *time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestNormalizeAllocatesExtrasByCostShare(t *testing.T) {
	orders := []PurchaseOrder{{
		ID:           1,
		PurchaseDate: datePtr("2024-03-01"),
		ShippingCost: 10,
		Lines: []PurchaseOrderLine{
			{ProductID: 1, Quantity: 5, UnitCost: 1},
			{ProductID: 2, Quantity: 5, UnitCost: 3},
		},
	}}

	events := Normalize(orders, nil, nil)
	require.Len(t, events, 2)
	require.InDelta(t, 1.50, events[0].UnitCost, 1e-9)
	require.InDelta(t, 4.50, events[1].UnitCost, 1e-9)
}

func TestNormalizeAllocatesExtrasByQuantityWhenCostsZero(t *testing.T) {
	orders := []PurchaseOrder{{
		ID:           2,
		PurchaseDate: datePtr("2024-03-01"),
		ShippingCost: 6,
		HandlingCost: 3,
		Lines: []PurchaseOrderLine{
			{ProductID: 1, Quantity: 2, UnitCost: 0},
			{ProductID: 2, Quantity: 1, UnitCost: 0},
		},
	}}

	events := Normalize(orders, nil, nil)
	require.Len(t, events, 2)
	require.InDelta(t, 3.0, events[0].UnitCost, 1e-9)
	require.InDelta(t, 3.0, events[1].UnitCost, 1e-9)
}

func TestNormalizeSkipsAllocationWithoutExtras(t *testing.T) {
	orders := []PurchaseOrder{{
		ID:           3,
		PurchaseDate: datePtr("2024-03-01"),
		Lines:        []PurchaseOrderLine{{ProductID: 1, Quantity: 10, UnitCost: 2}},
	}}

	events := Normalize(orders, nil, nil)
	require.Len(t, events, 1)
	require.InDelta(t, 2.0, events[0].UnitCost, 1e-9)
	require.InDelta(t, 10.0, events[0].Qty, 1e-9)
}

func TestNormalizeDateFallbackChain(t *testing.T) {
	cases := []struct {
		name  string
		order PurchaseOrder
		want  string
	}{
		{
			name: "purchase date wins",
			order: PurchaseOrder{
				PurchaseDate: datePtr("2024-01-05"),
				ReceivedDate: datePtr("2024-01-09"),
				CreatedAt:    datePtr("2024-01-01"),
			},
			want: "2024-01-05",
		},
		{
			name: "received date next",
			order: PurchaseOrder{
				ReceivedDate: datePtr("2024-01-09"),
				OrderDate:    datePtr("2024-01-02"),
			},
			want: "2024-01-09",
		},
		{
			name:  "order date next",
			order: PurchaseOrder{OrderDate: datePtr("2024-01-02"), CreatedAt: datePtr("2024-01-01")},
			want:  "2024-01-02",
		},
		{
			name:  "created at last",
			order: PurchaseOrder{CreatedAt: datePtr("2024-01-01")},
			want:  "2024-01-01",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.order.Lines = []PurchaseOrderLine{{ProductID: 1, Quantity: 1, UnitCost: 1}}
			events := Normalize([]PurchaseOrder{tc.order}, nil, nil)
			require.Len(t, events, 1)
			require.Equal(t, tc.want, events[0].Date.Format("2006-01-02"))
		})
	}
}

func TestNormalizeDropsDirtyRecords(t *testing.T) {
	orders := []PurchaseOrder{
		{
			// No date candidate at all, the whole order is dropped.
			ID:    10,
			Lines: []PurchaseOrderLine{{ProductID: 1, Quantity: 5, UnitCost: 2}},
		},
		{
			ID:           11,
			PurchaseDate: datePtr("2024-02-01"),
			Lines: []PurchaseOrderLine{
				{ProductID: 0, Quantity: 5, UnitCost: 2},
				{ProductID: 2, Quantity: 0, UnitCost: 2},
				{ProductID: 3, Quantity: -4, UnitCost: 2},
				{ProductID: 4, Quantity: 5, UnitCost: 2},
			},
		},
	}
	sales := []SaleRecord{
		{ID: 20, Lines: []SaleLine{{ProductID: 4, Quantity: 1, UnitPrice: 5}}},
		{
			ID:       21,
			SaleDate: datePtr("2024-02-02"),
			Lines: []SaleLine{
				{ProductID: 0, Quantity: 1, UnitPrice: 5},
				{ProductID: 4, Quantity: 2, UnitPrice: 5},
			},
		},
	}

	events := Normalize(orders, sales, nil)
	require.Len(t, events, 2)
	require.Equal(t, EventPurchase, events[0].Kind)
	require.Equal(t, int64(4), events[0].ProductID)
	require.Equal(t, EventSale, events[1].Kind)
	require.Equal(t, int64(21), events[1].SaleID)
}

func TestNormalizeExtrasSpreadOverSurvivingLinesOnly(t *testing.T) {
	orders := []PurchaseOrder{{
		ID:           12,
		PurchaseDate: datePtr("2024-02-01"),
		ShippingCost: 10,
		Lines: []PurchaseOrderLine{
			{ProductID: 1, Quantity: 0, UnitCost: 99},
			{ProductID: 2, Quantity: 5, UnitCost: 2},
		},
	}}

	events := Normalize(orders, nil, nil)
	require.Len(t, events, 1)
	require.InDelta(t, 4.0, events[0].UnitCost, 1e-9)
}

func TestNormalizeUnallocatableExtrasDropped(t *testing.T) {
	orders := []PurchaseOrder{{
		ID:           13,
		PurchaseDate: datePtr("2024-02-01"),
		ShippingCost: 25,
		Lines:        []PurchaseOrderLine{{ProductID: 1, Quantity: 0, UnitCost: 0}},
	}}

	events := Normalize(orders, nil, nil)
	require.Empty(t, events)
}
