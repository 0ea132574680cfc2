package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

// Open reports whether a sale in this status still carries a balance.
func (s PaymentStatus) Open() bool {
	return s == PaymentUnpaid || s == PaymentPartial
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentUnpaid, PaymentPartial, PaymentPaid:
		return true
	}
	return false
}

type Product struct {
	ID          string    `json:"id"`
	Company     string    `json:"company"`
	ProductName string    `json:"productName"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Variant struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"productId"`
	PackingSize string          `json:"packingSize"`
	Rate        decimal.Decimal `json:"rate"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Color is the stock-keeping unit: one shade of one variant.
type Color struct {
	ID            string    `json:"id"`
	VariantID     string    `json:"variantId"`
	ColorName     string    `json:"colorName"`
	ColorCode     string    `json:"colorCode"`
	StockQuantity int       `json:"stockQuantity"`
	CreatedAt     time.Time `json:"createdAt"`
}

// StockUnit is a color joined with its variant and product.
type StockUnit struct {
	Color   Color   `json:"color"`
	Variant Variant `json:"variant"`
	Product Product `json:"product"`
}

type Sale struct {
	ID            string          `json:"id"`
	CustomerName  string          `json:"customerName"`
	CustomerPhone string          `json:"customerPhone"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	AmountPaid    decimal.Decimal `json:"amountPaid"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Outstanding is the unpaid balance, never negative.
func (s Sale) Outstanding() decimal.Decimal {
	out := s.TotalAmount.Sub(s.AmountPaid)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

type SaleItem struct {
	ID       string          `json:"id"`
	SaleID   string          `json:"saleId"`
	ColorID  string          `json:"colorId"`
	Quantity int             `json:"quantity"`
	Rate     decimal.Decimal `json:"rate"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type SalePayment struct {
	ID        string          `json:"id"`
	SaleID    string          `json:"saleId"`
	Amount    decimal.Decimal `json:"amount"`
	BatchID   string          `json:"batchId,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type SaleReturn struct {
	ID         string    `json:"id"`
	SaleID     string    `json:"saleId"`
	SaleItemID string    `json:"saleItemId"`
	ColorID    string    `json:"colorId"`
	Quantity   int       `json:"quantity"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type StockMovement struct {
	ID          string    `json:"id"`
	ColorID     string    `json:"colorId"`
	Delta       int       `json:"delta"`
	Reason      string    `json:"reason"`
	ReferenceID string    `json:"referenceId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

const (
	MovementSale       = "sale"
	MovementItemDelete = "item_delete"
	MovementReturn     = "return"
	MovementSaleDelete = "sale_delete"
	MovementStockIn    = "stock_in"
)

type StockAdjustment struct {
	ColorID     string
	Delta       int
	Reason      string
	ReferenceID string
}

type AuditLog struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SaleLine is a sale item joined with what it sold.
type SaleLine struct {
	SaleItem
	ColorName   string `json:"colorName"`
	ColorCode   string `json:"colorCode"`
	PackingSize string `json:"packingSize"`
	ProductName string `json:"productName"`
	Company     string `json:"company"`
}

type SaleDetail struct {
	Sale
	Items    []SaleLine    `json:"items"`
	Payments []SalePayment `json:"payments"`
	Returns  []SaleReturn  `json:"returns"`
}

type SaleFilter struct {
	Statuses []PaymentStatus
	Phone    string
	From     time.Time
	To       time.Time
	Limit    int
}

type ColorFilter struct {
	VariantID string
	Query     string
}

// CustomerAccount is every open bill of one phone number rolled up.
type CustomerAccount struct {
	CustomerName     string          `json:"customerName"`
	CustomerPhone    string          `json:"customerPhone"`
	Bills            []Sale          `json:"bills"`
	BillCount        int             `json:"billCount"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	TotalPaid        decimal.Decimal `json:"totalPaid"`
	TotalOutstanding decimal.Decimal `json:"totalOutstanding"`
	OldestBillDate   time.Time       `json:"oldestBillDate"`
}

type Allocation struct {
	SaleID      string          `json:"saleId"`
	Applied     decimal.Decimal `json:"applied"`
	Outstanding decimal.Decimal `json:"outstandingBefore"`
}

type AllocationResult struct {
	BatchID       string          `json:"batchId"`
	CustomerPhone string          `json:"customerPhone"`
	Amount        decimal.Decimal `json:"amount"`
	Allocations   []Allocation    `json:"allocations"`
	Sales         []Sale          `json:"sales"`
	Remaining     decimal.Decimal `json:"remainingOutstanding"`
}

type CustomerSummary struct {
	CustomerName  string          `json:"customerName"`
	CustomerPhone string          `json:"customerPhone"`
	SaleCount     int             `json:"saleCount"`
	Outstanding   decimal.Decimal `json:"outstanding"`
	LastSaleAt    time.Time       `json:"lastSaleAt"`
}

type CustomerSuggestion struct {
	CustomerSummary
	Score      float64 `json:"score"`
	ReasonCode string  `json:"reasonCode"`
}

type BulkResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type Backup struct {
	Version    int             `json:"version"`
	ExportedAt time.Time       `json:"exportedAt"`
	Products   []Product       `json:"products"`
	Variants   []Variant       `json:"variants"`
	Colors     []Color         `json:"colors"`
	Sales      []Sale          `json:"sales"`
	SaleItems  []SaleItem      `json:"saleItems"`
	Payments   []SalePayment   `json:"payments"`
	Returns    []SaleReturn    `json:"returns"`
	Movements  []StockMovement `json:"movements"`
}

const BackupVersion = 1
