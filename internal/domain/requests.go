package domain

import "github.com/shopspring/decimal"

type SaleItemInput struct {
	ColorID  string          `json:"colorId" validate:"required"`
	Quantity int             `json:"quantity" validate:"gt=0"`
	Rate     decimal.Decimal `json:"rate" validate:"gte=0"`
	// Subtotal is accepted for compatibility; the server recomputes it.
	Subtotal decimal.Decimal `json:"subtotal"`
}

type CreateSaleRequest struct {
	CustomerName  string          `json:"customerName" validate:"required,max=120"`
	CustomerPhone string          `json:"customerPhone" validate:"required,max=32"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	AmountPaid    decimal.Decimal `json:"amountPaid" validate:"gte=0"`
	PaymentStatus PaymentStatus   `json:"paymentStatus,omitempty"`
	Items         []SaleItemInput `json:"items" validate:"required,min=1,dive"`
}

type CreateSaleResponse struct {
	Sale
	Items  []SaleItem `json:"items"`
	Merged bool       `json:"merged"`
}

type PaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type ReturnItemRequest struct {
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason,omitempty" validate:"max=500"`
}

type ProductRequest struct {
	Company     string `json:"company" validate:"required,max=120"`
	ProductName string `json:"productName" validate:"required,max=160"`
}

type VariantRequest struct {
	ProductID   string          `json:"productId" validate:"required"`
	PackingSize string          `json:"packingSize" validate:"required,max=60"`
	Rate        decimal.Decimal `json:"rate" validate:"gte=0"`
}

type ColorRequest struct {
	VariantID     string `json:"variantId" validate:"required"`
	ColorName     string `json:"colorName" validate:"required,max=120"`
	ColorCode     string `json:"colorCode" validate:"max=60"`
	StockQuantity int    `json:"stockQuantity" validate:"gte=0"`
}

type ColorUpdateRequest struct {
	ColorName *string `json:"colorName,omitempty"`
	ColorCode *string `json:"colorCode,omitempty"`
}

type RateUpdate struct {
	VariantID string          `json:"variantId"`
	Rate      decimal.Decimal `json:"rate"`
}

type StockInRequest struct {
	ColorID  string `json:"colorId,omitempty"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes,omitempty"`
}

type SalesReportQuery struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	GroupBy   string `json:"groupBy"`
}
