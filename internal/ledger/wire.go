package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Date is a best-effort timestamp as serialized by the upstream tool. Nulls,
// non-strings and unparseable values leave it invalid; whether that drops the
// record is the normalizer's call, not a parse failure.
type Date struct {
	Time  time.Time
	Valid bool
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	d.Time = time.Time{}
	d.Valid = false
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil || raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			d.Time = t.UTC()
			d.Valid = true
			return nil
		}
	}
	return nil
}

func (d Date) ptr() *time.Time {
	if !d.Valid {
		return nil
	}
	t := d.Time
	return &t
}

type orderPayload struct {
	ID           int64              `json:"id"`
	PurchaseDate Date               `json:"purchase_date"`
	ReceivedDate Date               `json:"received_date"`
	OrderDate    Date               `json:"order_date"`
	CreatedAt    Date               `json:"created_at"`
	ShippingCost float64            `json:"shipping_cost"`
	HandlingCost float64            `json:"handling_cost"`
	Lines        []orderLinePayload `json:"lines"`
}

type orderLinePayload struct {
	ProductID    int64       `json:"product_id"`
	Quantity     float64     `json:"quantity"`
	UnitCost     float64     `json:"unit_cost"`
	ProductName  string      `json:"product_name"`
	CategoryName string      `json:"category_name"`
	Product      *productRef `json:"product"`
}

type salePayload struct {
	ID        int64             `json:"id"`
	SaleDate  Date              `json:"sale_date"`
	CreatedAt Date              `json:"created_at"`
	Lines     []saleLinePayload `json:"lines"`
}

type saleLinePayload struct {
	ProductID    int64       `json:"product_id"`
	Quantity     float64     `json:"quantity"`
	UnitPrice    float64     `json:"unit_price"`
	ProductName  string      `json:"product_name"`
	CategoryName string      `json:"category_name"`
	Product      *productRef `json:"product"`
}

// productRef covers the nested product shape some records carry instead of
// flat id and name columns.
type productRef struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	CategoryName string       `json:"category_name"`
	Category     *categoryRef `json:"category"`
}

type categoryRef struct {
	Name string `json:"name"`
}

// ParseOrders decodes a JSON array of purchase orders. A payload whose top
// level is not an array yields ErrInvalidInput.
func ParseOrders(data []byte) ([]PurchaseOrder, error) {
	if err := requireArray(data); err != nil {
		return nil, err
	}
	var payload []orderPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("ledger: parse orders: %w", err)
	}
	orders := make([]PurchaseOrder, 0, len(payload))
	for _, raw := range payload {
		po := PurchaseOrder{
			ID:           raw.ID,
			PurchaseDate: raw.PurchaseDate.ptr(),
			ReceivedDate: raw.ReceivedDate.ptr(),
			OrderDate:    raw.OrderDate.ptr(),
			CreatedAt:    raw.CreatedAt.ptr(),
			ShippingCost: raw.ShippingCost,
			HandlingCost: raw.HandlingCost,
			Lines:        make([]PurchaseOrderLine, 0, len(raw.Lines)),
		}
		for _, line := range raw.Lines {
			id, name, category := resolveProduct(line.ProductID, line.ProductName, line.CategoryName, line.Product)
			po.Lines = append(po.Lines, PurchaseOrderLine{
				ProductID:    id,
				Quantity:     line.Quantity,
				UnitCost:     line.UnitCost,
				ProductName:  name,
				CategoryName: category,
			})
		}
		orders = append(orders, po)
	}
	return orders, nil
}

// ParseSales decodes a JSON array of sale records. A payload whose top level
// is not an array yields ErrInvalidInput.
func ParseSales(data []byte) ([]SaleRecord, error) {
	if err := requireArray(data); err != nil {
		return nil, err
	}
	var payload []salePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("ledger: parse sales: %w", err)
	}
	sales := make([]SaleRecord, 0, len(payload))
	for _, raw := range payload {
		sale := SaleRecord{
			ID:        raw.ID,
			SaleDate:  raw.SaleDate.ptr(),
			CreatedAt: raw.CreatedAt.ptr(),
			Lines:     make([]SaleLine, 0, len(raw.Lines)),
		}
		for _, line := range raw.Lines {
			id, name, category := resolveProduct(line.ProductID, line.ProductName, line.CategoryName, line.Product)
			sale.Lines = append(sale.Lines, SaleLine{
				ProductID:    id,
				Quantity:     line.Quantity,
				UnitPrice:    line.UnitPrice,
				ProductName:  name,
				CategoryName: category,
			})
		}
		sales = append(sales, sale)
	}
	return sales, nil
}

// resolveProduct collapses the flat and nested product shapes into one. Flat
// columns win when both are present.
func resolveProduct(id int64, name, category string, ref *productRef) (int64, string, string) {
	if ref != nil {
		if id == 0 {
			id = ref.ID
		}
		if name == "" {
			name = ref.Name
		}
		if category == "" {
			category = ref.CategoryName
			if category == "" && ref.Category != nil {
				category = ref.Category.Name
			}
		}
	}
	return id, name, category
}

func requireArray(data []byte) error {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return ErrInvalidInput
	}
	return nil
}
