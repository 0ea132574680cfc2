package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"paintstore/backend/internal/domain"
)

func readRows(t *testing.T, buf *bytes.Buffer) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	return rows
}

func TestInventoryWorkbook(t *testing.T) {
	var buf bytes.Buffer
	err := Inventory(&buf, domain.InventoryReport{
		Rows: []domain.InventoryRow{
			{Company: "Nippon", ProductName: "Weatherbond", PackingSize: "4L", ColorName: "Sky Blue", ColorCode: "NB-12", StockQuantity: 3, Rate: decimal.RequireFromString("1200.50"), StockValue: decimal.RequireFromString("3601.50"), LowStock: true},
			{Company: "Dulux", ProductName: "Gloss", PackingSize: "1L", ColorName: "White", StockQuantity: 0, Rate: decimal.NewFromInt(300), StockValue: decimal.Zero, OutOfStock: true},
		},
		TotalUnits: 3,
		TotalValue: decimal.RequireFromString("3601.50"),
	})
	require.NoError(t, err)

	rows := readRows(t, &buf)
	require.Len(t, rows, 4)
	require.Equal(t, "Company", rows[0][0])
	require.Equal(t, "Sky Blue", rows[1][3])
	require.Equal(t, "3601.5", rows[1][7])
	require.Equal(t, "low stock", rows[1][8])
	require.Equal(t, "out of stock", rows[2][8])
	require.Equal(t, "Total", rows[3][0])
}

func TestCustomerDebtWorkbook(t *testing.T) {
	var buf bytes.Buffer
	err := CustomerDebts(&buf, domain.CustomerDebtReport{
		Customers: []domain.CustomerAccount{{
			CustomerName:     "Ali",
			CustomerPhone:    "+923001234567",
			BillCount:        2,
			TotalAmount:      decimal.NewFromInt(1000),
			TotalPaid:        decimal.NewFromInt(250),
			TotalOutstanding: decimal.NewFromInt(750),
			OldestBillDate:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		}},
		TotalOutstanding: decimal.NewFromInt(750),
	})
	require.NoError(t, err)

	rows := readRows(t, &buf)
	require.Len(t, rows, 3)
	require.Equal(t, []string{"Ali", "+923001234567", "2", "1000", "250", "750", "2026-03-01"}, rows[1])
}
