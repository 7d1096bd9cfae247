package e2e

import (
	"context"
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/costwise/costwise/internal/ledger"
	"github.com/costwise/costwise/internal/reports"
)

// buildPreviewDataset fabricates two years of weekly trading across forty
// products. Sales only ever move half of what is on hand, so no product is
// oversold and no sale hits the fallback-cost path.
func buildPreviewDataset() ([]ledger.PurchaseOrder, []ledger.SaleRecord) {
	rng := rand.New(rand.NewSource(11))

	const productCount = 40
	available := make([]float64, productCount+1)

	var orders []ledger.PurchaseOrder
	var sales []ledger.SaleRecord

	start := day("2024-01-01")
	id := int64(1)
	for week := 0; week < 104; week++ {
		orderedAt := start.AddDate(0, 0, week*7)
		order := ledger.PurchaseOrder{
			ID:           id,
			PurchaseDate: &orderedAt,
			ShippingCost: float64(rng.Intn(40)),
			HandlingCost: float64(rng.Intn(20)),
		}
		id++
		for n := 0; n < 3; n++ {
			productID := int64(rng.Intn(productCount) + 1)
			qty := float64(rng.Intn(41) + 10)
			order.Lines = append(order.Lines, ledger.PurchaseOrderLine{
				ProductID: productID,
				Quantity:  qty,
				UnitCost:  float64(rng.Intn(9) + 1),
			})
			available[productID] += qty
		}
		orders = append(orders, order)

		soldAt := orderedAt.AddDate(0, 0, 3)
		sale := ledger.SaleRecord{ID: id, SaleDate: &soldAt}
		id++
		for n := 0; n < 2; n++ {
			productID := int64(rng.Intn(productCount) + 1)
			qty := math.Floor(available[productID] / 2)
			if qty <= 0 {
				continue
			}
			sale.Lines = append(sale.Lines, ledger.SaleLine{
				ProductID: productID,
				Quantity:  qty,
				UnitPrice: float64(rng.Intn(12) + 4),
			})
			available[productID] -= qty
		}
		if len(sale.Lines) > 0 {
			sales = append(sales, sale)
		}
	}
	return orders, sales
}

// TestPreviewIndependentOfWorkerCount replays the same history on a serial
// service and a wide worker pool. The summaries must match bit for bit.
func TestPreviewIndependentOfWorkerCount(t *testing.T) {
	orders, sales := buildPreviewDataset()

	serial := reports.NewService(&memoryRepo{}, nil, quietLogger(), 1)
	parallel := reports.NewService(&memoryRepo{}, nil, quietLogger(), 8)

	for _, period := range []string{"all", "2024", "2024-06", "2025"} {
		a, err := serial.Preview(context.Background(), orders, sales, period)
		if err != nil {
			t.Fatalf("serial preview %s: %v", period, err)
		}
		b, err := parallel.Preview(context.Background(), orders, sales, period)
		if err != nil {
			t.Fatalf("parallel preview %s: %v", period, err)
		}
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("period %s: serial and parallel summaries differ\nserial: %+v\nparallel: %+v", period, a, b)
		}
	}
}

// TestPurchaseValueConservation checks the books balance: every unit of
// cost that entered through a purchase order, freight included, must end
// up either in cost of goods sold or in the value of the remaining stock.
func TestPurchaseValueConservation(t *testing.T) {
	orders, sales := buildPreviewDataset()

	var purchased float64
	for _, order := range orders {
		purchased += order.ShippingCost + order.HandlingCost
		for _, line := range order.Lines {
			purchased += line.Quantity * line.UnitCost
		}
	}

	service := reports.NewService(&memoryRepo{}, nil, quietLogger(), 4)
	summary, err := service.Preview(context.Background(), orders, sales, "all")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}

	set := ledger.BuildLedgers(ledger.Normalize(orders, sales, quietLogger()))
	ending := reports.BuildSnapshot(set, time.Time{})

	got := summary.COGS + ending.TotalValue
	if diff := math.Abs(purchased - got); diff > purchased*1e-9 {
		t.Fatalf("conservation broken: purchased %.4f, cogs+ending %.4f (diff %.6f)", purchased, got, diff)
	}
}
