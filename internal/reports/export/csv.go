// Package export renders report read models into downloadable formats.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/costwise/costwise/internal/reports"
)

// WriteSummaryCSV serialises the period totals as metric/value rows.
func WriteSummaryCSV(w io.Writer, summary reports.PeriodSummary) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Metric", "Value"}); err != nil {
		return err
	}
	records := [][]string{
		{"Period", summary.Period},
		{"Revenue", formatFloat(summary.Revenue)},
		{"Cost of Goods Sold", formatFloat(summary.COGS)},
		{"Profit", formatFloat(summary.Profit)},
		{"Units Sold", formatFloat(summary.UnitsSold)},
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteProductRowsCSV emits the per-product profitability table.
func WriteProductRowsCSV(w io.Writer, rows []reports.ProductRow) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Product ID", "Name", "Category", "Units Sold", "Revenue", "Cost", "Profit"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			strconv.FormatInt(row.ProductID, 10),
			row.Name,
			row.Category,
			formatFloat(row.UnitsSold),
			formatFloat(row.Revenue),
			formatFloat(row.Cost),
			formatFloat(row.Profit),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteMonthlyCSV emits the twelve-month series.
func WriteMonthlyCSV(w io.Writer, rows []reports.MonthlyRow) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Month", "Orders", "Units Sold", "Revenue", "Cost", "Profit"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.Month,
			strconv.Itoa(row.Orders),
			formatFloat(row.UnitsSold),
			formatFloat(row.Revenue),
			formatFloat(row.Cost),
			formatFloat(row.Profit),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteInventoryCSV emits the valued stock positions of a snapshot.
func WriteInventoryCSV(w io.Writer, snap reports.InventorySnapshot) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Product ID", "Name", "Category", "On Hand", "Unit Cost", "Value"}); err != nil {
		return err
	}
	for _, row := range snap.Rows {
		if err := writer.Write([]string{
			strconv.FormatInt(row.ProductID, 10),
			row.Name,
			row.Category,
			formatFloat(row.OnHand),
			formatFloat(row.UnitCost),
			formatFloat(row.Value),
		}); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{"", "", "Total", formatFloat(snap.TotalUnits), "", formatFloat(snap.TotalValue)}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
