package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PeriodTotals struct {
	Revenue      decimal.Decimal `json:"revenue"`
	Transactions int             `json:"transactions"`
}

type InventoryTotals struct {
	TotalProducts int             `json:"totalProducts"`
	TotalVariants int             `json:"totalVariants"`
	TotalColors   int             `json:"totalColors"`
	LowStock      int             `json:"lowStock"`
	OutOfStock    int             `json:"outOfStock"`
	StockValue    decimal.Decimal `json:"stockValue"`
}

type UnpaidTotals struct {
	Count            int             `json:"count"`
	Customers        int             `json:"customers"`
	TotalOutstanding decimal.Decimal `json:"totalOutstanding"`
}

type DailyRevenue struct {
	Date         string          `json:"date"`
	Revenue      decimal.Decimal `json:"revenue"`
	Transactions int             `json:"transactions"`
}

type DashboardStats struct {
	TodaySales   PeriodTotals    `json:"todaySales"`
	MonthlySales PeriodTotals    `json:"monthlySales"`
	Inventory    InventoryTotals `json:"inventory"`
	UnpaidBills  UnpaidTotals    `json:"unpaidBills"`
	RecentSales  []Sale          `json:"recentSales"`
	DailySeries  []DailyRevenue  `json:"dailyRevenue"`
	GeneratedAt  time.Time       `json:"generatedAt"`
}

type InventoryRow struct {
	ColorID       string          `json:"colorId"`
	Company       string          `json:"company"`
	ProductName   string          `json:"productName"`
	PackingSize   string          `json:"packingSize"`
	ColorName     string          `json:"colorName"`
	ColorCode     string          `json:"colorCode"`
	StockQuantity int             `json:"stockQuantity"`
	Rate          decimal.Decimal `json:"rate"`
	StockValue    decimal.Decimal `json:"stockValue"`
	LowStock      bool            `json:"lowStock"`
	OutOfStock    bool            `json:"outOfStock"`
}

type InventoryReport struct {
	Rows       []InventoryRow  `json:"rows"`
	TotalUnits int             `json:"totalUnits"`
	TotalValue decimal.Decimal `json:"totalValue"`
}

type CustomerDebtReport struct {
	Customers        []CustomerAccount `json:"customers"`
	TotalOutstanding decimal.Decimal   `json:"totalOutstanding"`
}

type SalesBucket struct {
	Period       string          `json:"period"`
	Transactions int             `json:"transactions"`
	Revenue      decimal.Decimal `json:"revenue"`
	Collected    decimal.Decimal `json:"collected"`
	Outstanding  decimal.Decimal `json:"outstanding"`
}

type SalesReport struct {
	StartDate string          `json:"startDate"`
	EndDate   string          `json:"endDate"`
	GroupBy   string          `json:"groupBy"`
	Buckets   []SalesBucket   `json:"buckets"`
	Revenue   decimal.Decimal `json:"revenue"`
	Collected decimal.Decimal `json:"collected"`
}
