package reports

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/costwise/costwise/internal/ledger"
)

// Repository provides PostgreSQL backed persistence. Source documents are
// read flattened with their lines and regrouped in memory.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

// ListPurchaseOrders returns every purchase order joined with its lines
// and product labels, ordered so lines of one order arrive together.
func (r *Repository) ListPurchaseOrders(ctx context.Context) ([]ledger.PurchaseOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT po.id, po.purchase_date, po.received_date, po.order_date, po.created_at,
po.shipping_cost, po.handling_cost,
l.product_id, l.quantity, l.unit_cost,
COALESCE(p.name, ''), COALESCE(c.name, '')
FROM purchase_orders po
JOIN purchase_order_lines l ON l.purchase_order_id = po.id
LEFT JOIN products p ON p.id = l.product_id
LEFT JOIN categories c ON c.id = p.category_id
ORDER BY po.id, l.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []ledger.PurchaseOrder
	for rows.Next() {
		var (
			order ledger.PurchaseOrder
			line  ledger.PurchaseOrderLine
		)
		if err := rows.Scan(&order.ID, &order.PurchaseDate, &order.ReceivedDate, &order.OrderDate, &order.CreatedAt,
			&order.ShippingCost, &order.HandlingCost,
			&line.ProductID, &line.Quantity, &line.UnitCost,
			&line.ProductName, &line.CategoryName); err != nil {
			return nil, err
		}
		if n := len(orders); n > 0 && orders[n-1].ID == order.ID {
			orders[n-1].Lines = append(orders[n-1].Lines, line)
			continue
		}
		order.Lines = []ledger.PurchaseOrderLine{line}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListSales returns every sale joined with its lines and product labels.
func (r *Repository) ListSales(ctx context.Context) ([]ledger.SaleRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.sale_date, s.created_at,
l.product_id, l.quantity, l.unit_price,
COALESCE(p.name, ''), COALESCE(c.name, '')
FROM sales s
JOIN sale_lines l ON l.sale_id = s.id
LEFT JOIN products p ON p.id = l.product_id
LEFT JOIN categories c ON c.id = p.category_id
ORDER BY s.id, l.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []ledger.SaleRecord
	for rows.Next() {
		var (
			sale ledger.SaleRecord
			line ledger.SaleLine
		)
		if err := rows.Scan(&sale.ID, &sale.SaleDate, &sale.CreatedAt,
			&line.ProductID, &line.Quantity, &line.UnitPrice,
			&line.ProductName, &line.CategoryName); err != nil {
			return nil, err
		}
		if n := len(sales); n > 0 && sales[n-1].ID == sale.ID {
			sales[n-1].Lines = append(sales[n-1].Lines, line)
			continue
		}
		sale.Lines = []ledger.SaleLine{line}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

// ListProducts returns the catalog with replenishment policy fields.
func (r *Repository) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.name, COALESCE(c.name, ''), p.reorder_threshold, p.restock_target, p.is_active
FROM products p
LEFT JOIN categories c ON c.id = p.category_id
ORDER BY p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var product Product
		if err := rows.Scan(&product.ID, &product.Name, &product.Category, &product.ReorderThreshold, &product.RestockTarget, &product.Active); err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

// InsertValuationSnapshot persists a snapshot. The table holds one row
// per calendar day; a duplicate day maps to ErrSnapshotExists.
func (r *Repository) InsertValuationSnapshot(ctx context.Context, snap ValuationSnapshot) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO valuation_snapshots (reference, as_of, total_units, total_value, product_count, created_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		snap.Reference, snap.AsOf, snap.TotalUnits, snap.TotalValue, snap.ProductCount, snap.CreatedAt).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrSnapshotExists
		}
		return 0, err
	}
	return id, nil
}

// ListValuationSnapshots returns the newest snapshots first.
func (r *Repository) ListValuationSnapshots(ctx context.Context, limit int) ([]ValuationSnapshot, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, reference, as_of, total_units, total_value, product_count, created_at
FROM valuation_snapshots
ORDER BY as_of DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []ValuationSnapshot
	for rows.Next() {
		var snap ValuationSnapshot
		if err := rows.Scan(&snap.ID, &snap.Reference, &snap.AsOf, &snap.TotalUnits, &snap.TotalValue, &snap.ProductCount, &snap.CreatedAt); err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snaps, nil
}
