// Package ledger normalizes raw purchase-order and sale records into dated,
// cost-allocated events grouped per product.
package ledger

import (
	"errors"
	"time"
)

// EventKind enumerates the two movement kinds a product ledger holds.
type EventKind string

const (
	// EventPurchase represents an inbound purchase-order line.
	EventPurchase EventKind = "PURCHASE"
	// EventSale represents an outbound sale line.
	EventSale EventKind = "SALE"
)

// PurchaseOrder is an immutable order header with its lines. Date candidates
// are kept separate so the normalizer can apply the fallback chain.
type PurchaseOrder struct {
	ID           int64
	PurchaseDate *time.Time
	ReceivedDate *time.Time
	OrderDate    *time.Time
	CreatedAt    *time.Time
	ShippingCost float64
	HandlingCost float64
	Lines        []PurchaseOrderLine
}

// PurchaseOrderLine is one product position on an order. Name and category are
// optional and filled when the data source joins them in.
type PurchaseOrderLine struct {
	ProductID    int64
	Quantity     float64
	UnitCost     float64
	ProductName  string
	CategoryName string
}

// SaleRecord is an immutable sale header with its lines.
type SaleRecord struct {
	ID        int64
	SaleDate  *time.Time
	CreatedAt *time.Time
	Lines     []SaleLine
}

// SaleLine is one product position on a sale.
type SaleLine struct {
	ProductID    int64
	Quantity     float64
	UnitPrice    float64
	ProductName  string
	CategoryName string
}

// Event is the canonical movement shape both report builders consume. UnitCost
// carries the effective per-unit cost for purchases, UnitPrice and SaleID are
// set for sales only.
type Event struct {
	Kind        EventKind
	Date        time.Time
	ProductID   int64
	Qty         float64
	UnitCost    float64
	UnitPrice   float64
	SaleID      int64
	ProductName string
	Category    string
}

// ProductInfo carries display metadata gathered from lines.
type ProductInfo struct {
	Name     string
	Category string
}

// LedgerSet groups chronologically sorted events per product. Products holds
// the ids in first-appearance order, which downstream sorts use as the
// deterministic tie-break.
type LedgerSet struct {
	Products []int64
	Events   map[int64][]Event
	Info     map[int64]ProductInfo
}

// EventDate resolves the order date using the fallback chain
// purchase_date, received_date, order_date, created_at.
func (po PurchaseOrder) EventDate() *time.Time {
	return coalesceDate(po.PurchaseDate, po.ReceivedDate, po.OrderDate, po.CreatedAt)
}

// EventDate resolves the sale date using sale_date then created_at.
func (s SaleRecord) EventDate() *time.Time {
	return coalesceDate(s.SaleDate, s.CreatedAt)
}

func coalesceDate(candidates ...*time.Time) *time.Time {
	for _, c := range candidates {
		if c != nil && !c.IsZero() {
			return c
		}
	}
	return nil
}

func kindRank(kind EventKind) int {
	if kind == EventPurchase {
		return 0
	}
	return 1
}

// ErrInvalidInput signals a contract violation: the top-level payload is not a
// JSON array. Unlike dirty records, this is fatal to the request.
var ErrInvalidInput = errors.New("ledger: input must be a JSON array")
