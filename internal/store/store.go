package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paintstore/backend/internal/domain"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	// ErrInsufficientStock wraps ErrConflict.
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", ErrConflict)
)

type Reader interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListVariants(ctx context.Context, productID string) ([]domain.Variant, error)
	GetVariant(ctx context.Context, id string) (*domain.Variant, error)
	ListColors(ctx context.Context, filter domain.ColorFilter) ([]domain.Color, error)
	GetColor(ctx context.Context, id string) (*domain.Color, error)
	ListStockUnits(ctx context.Context) ([]domain.StockUnit, error)
	ListStockMovements(ctx context.Context, colorID string, limit int) ([]domain.StockMovement, error)

	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
	// FindOpenSaleByPhone returns the most recent unpaid or partial sale for
	// phone, or ErrNotFound.
	FindOpenSaleByPhone(ctx context.Context, phone string) (*domain.Sale, error)
	ListOpenSalesByPhone(ctx context.Context, phone string) ([]domain.Sale, error)
	GetSaleItem(ctx context.Context, id string) (*domain.SaleItem, error)
	ListSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error)
	ListSaleLines(ctx context.Context, saleID string) ([]domain.SaleLine, error)
	ListPayments(ctx context.Context, saleID string) ([]domain.SalePayment, error)
	ListReturns(ctx context.Context, saleID string) ([]domain.SaleReturn, error)
	ListCustomers(ctx context.Context) ([]domain.CustomerSummary, error)

	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

type Writer interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	CreateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error)
	UpdateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error)
	DeleteVariant(ctx context.Context, id string) error
	CreateColor(ctx context.Context, color domain.Color) (*domain.Color, error)
	UpdateColor(ctx context.Context, color domain.Color) (*domain.Color, error)
	DeleteColor(ctx context.Context, id string) error

	// AdjustStock applies stock_quantity += delta in one step and records a
	// stock movement. It never clamps; ErrInsufficientStock is returned when
	// negative stock is disallowed and the result would be below zero.
	AdjustStock(ctx context.Context, adj domain.StockAdjustment) (*domain.Color, error)

	InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	UpdateSaleTotals(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id string) error
	InsertSaleItem(ctx context.Context, item domain.SaleItem) (*domain.SaleItem, error)
	UpdateSaleItem(ctx context.Context, item domain.SaleItem) (*domain.SaleItem, error)
	DeleteSaleItem(ctx context.Context, id string) error
	InsertPayment(ctx context.Context, payment domain.SalePayment) error
	InsertReturn(ctx context.Context, ret domain.SaleReturn) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
}

// Tx is one unit of work. Every write made through it commits or rolls back
// together.
type Tx interface {
	Reader
	Writer
	// LockCustomer serialises units of work touching the same phone.
	LockCustomer(ctx context.Context, phone string) error
}

type Repository interface {
	Reader
	// WithTx runs fn in a unit of work. A non-nil error from fn rolls back
	// every write fn made.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	Export(ctx context.Context) (*domain.Backup, error)
	Import(ctx context.Context, backup domain.Backup) error
}

// Options shared by the repository implementations.
type Options struct {
	AllowNegativeStock bool
}
