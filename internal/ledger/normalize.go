package ledger

import "log/slog"

// Normalize converts raw records into canonical events. Records without a
// resolvable date and lines without a product or a positive quantity are
// excluded and logged, never fatal. Order-level shipping and handling are
// folded into the per-unit cost of each surviving purchase line.
func Normalize(orders []PurchaseOrder, sales []SaleRecord, logger *slog.Logger) []Event {
	if logger == nil {
		logger = slog.Default()
	}
	events := make([]Event, 0, len(orders)+len(sales))
	for _, po := range orders {
		events = append(events, normalizeOrder(po, logger)...)
	}
	for _, sale := range sales {
		events = append(events, normalizeSale(sale, logger)...)
	}
	return events
}

func normalizeOrder(po PurchaseOrder, logger *slog.Logger) []Event {
	date := po.EventDate()
	if date == nil {
		logger.Warn("dropping undated purchase order", slog.Int64("order_id", po.ID))
		return nil
	}

	lines := make([]PurchaseOrderLine, 0, len(po.Lines))
	for _, line := range po.Lines {
		if line.ProductID == 0 {
			logger.Warn("dropping order line without product", slog.Int64("order_id", po.ID))
			continue
		}
		if line.Quantity <= 0 {
			logger.Warn("dropping order line with non-positive quantity",
				slog.Int64("order_id", po.ID), slog.Int64("product_id", line.ProductID))
			continue
		}
		lines = append(lines, line)
	}

	extra := po.ShippingCost + po.HandlingCost
	if len(lines) == 0 {
		if extra > 0 {
			logger.Warn("order extras left unallocated, no allocatable lines",
				slog.Int64("order_id", po.ID), slog.Float64("extra", extra))
		}
		return nil
	}

	shares := allocateExtra(extra, lines)
	events := make([]Event, 0, len(lines))
	for i, line := range lines {
		cost := line.UnitCost
		if shares != nil {
			cost += shares[i] / line.Quantity
		}
		events = append(events, Event{
			Kind:        EventPurchase,
			Date:        *date,
			ProductID:   line.ProductID,
			Qty:         line.Quantity,
			UnitCost:    cost,
			ProductName: line.ProductName,
			Category:    line.CategoryName,
		})
	}
	return events
}

// allocateExtra distributes the order-level extra across lines proportionally
// to qty*unit_cost, falling back to quantity share when every line cost is
// zero. Lines are already filtered to positive quantities, so the quantity sum
// is positive whenever any line survives.
func allocateExtra(extra float64, lines []PurchaseOrderLine) []float64 {
	if extra <= 0 {
		return nil
	}
	var costSum, qtySum float64
	for _, line := range lines {
		costSum += line.Quantity * line.UnitCost
		qtySum += line.Quantity
	}
	shares := make([]float64, len(lines))
	if costSum > 0 {
		for i, line := range lines {
			shares[i] = extra * (line.Quantity * line.UnitCost / costSum)
		}
		return shares
	}
	for i, line := range lines {
		shares[i] = extra * (line.Quantity / qtySum)
	}
	return shares
}

func normalizeSale(sale SaleRecord, logger *slog.Logger) []Event {
	date := sale.EventDate()
	if date == nil {
		logger.Warn("dropping undated sale", slog.Int64("sale_id", sale.ID))
		return nil
	}

	events := make([]Event, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		if line.ProductID == 0 {
			logger.Warn("dropping sale line without product", slog.Int64("sale_id", sale.ID))
			continue
		}
		if line.Quantity <= 0 {
			logger.Warn("dropping sale line with non-positive quantity",
				slog.Int64("sale_id", sale.ID), slog.Int64("product_id", line.ProductID))
			continue
		}
		events = append(events, Event{
			Kind:        EventSale,
			Date:        *date,
			ProductID:   line.ProductID,
			Qty:         line.Quantity,
			UnitPrice:   line.UnitPrice,
			SaleID:      sale.ID,
			ProductName: line.ProductName,
			Category:    line.CategoryName,
		})
	}
	return events
}
