package export

import (
	"io"

	"github.com/xuri/excelize/v2"

	"paintstore/backend/internal/domain"
)

const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const sheetName = "Sheet1"

// ExcelExporter is one spreadsheet row.
type ExcelExporter interface {
	GetCellValues() []any
}

type inventoryRow domain.InventoryRow

func (r inventoryRow) GetCellValues() []any {
	status := "ok"
	switch {
	case r.OutOfStock:
		status = "out of stock"
	case r.LowStock:
		status = "low stock"
	}
	return []any{r.Company, r.ProductName, r.PackingSize, r.ColorName, r.ColorCode, r.StockQuantity, r.Rate.InexactFloat64(), r.StockValue.InexactFloat64(), status}
}

type debtRow domain.CustomerAccount

func (r debtRow) GetCellValues() []any {
	oldest := ""
	if !r.OldestBillDate.IsZero() {
		oldest = r.OldestBillDate.Format("2006-01-02")
	}
	return []any{r.CustomerName, r.CustomerPhone, r.BillCount, r.TotalAmount.InexactFloat64(), r.TotalPaid.InexactFloat64(), r.TotalOutstanding.InexactFloat64(), oldest}
}

type salesRow domain.SalesBucket

func (r salesRow) GetCellValues() []any {
	return []any{r.Period, r.Transactions, r.Revenue.InexactFloat64(), r.Collected.InexactFloat64(), r.Outstanding.InexactFloat64()}
}

func Inventory(w io.Writer, report domain.InventoryReport) error {
	rows := make([]ExcelExporter, 0, len(report.Rows)+1)
	for _, r := range report.Rows {
		rows = append(rows, inventoryRow(r))
	}
	total := footer{"Total", "", "", "", "", report.TotalUnits, "", report.TotalValue.InexactFloat64(), ""}
	rows = append(rows, total)
	return write(w, rows, "Company", "Product", "Packing", "Color", "Code", "Stock", "Rate", "Value", "Status")
}

func CustomerDebts(w io.Writer, report domain.CustomerDebtReport) error {
	rows := make([]ExcelExporter, 0, len(report.Customers)+1)
	for _, c := range report.Customers {
		rows = append(rows, debtRow(c))
	}
	rows = append(rows, footer{"Total", "", "", "", "", report.TotalOutstanding.InexactFloat64(), ""})
	return write(w, rows, "Customer", "Phone", "Bills", "Total", "Paid", "Outstanding", "Oldest bill")
}

func Sales(w io.Writer, report domain.SalesReport) error {
	rows := make([]ExcelExporter, 0, len(report.Buckets))
	for _, b := range report.Buckets {
		rows = append(rows, salesRow(b))
	}
	return write(w, rows, "Period", "Transactions", "Revenue", "Collected", "Outstanding")
}

type footer []any

func (f footer) GetCellValues() []any { return f }

func write(w io.Writer, data []ExcelExporter, headings ...string) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for i, h := range headings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
	}

	for rowNo, d := range data {
		for col, value := range d.GetCellValues() {
			cell, err := excelize.CoordinatesToCellName(col+1, rowNo+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return err
			}
		}
	}

	return f.Write(w)
}
