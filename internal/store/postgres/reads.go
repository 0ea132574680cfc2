package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"paintstore/backend/internal/domain"
	"paintstore/backend/internal/store"
)

type reader struct {
	q queryer
}

type rowScanner interface {
	Scan(dest ...any) error
}

const saleColumns = `id, customer_name, customer_phone, total_amount, amount_paid, payment_status, created_at`

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var status string
	err := row.Scan(&sale.ID, &sale.CustomerName, &sale.CustomerPhone, &sale.TotalAmount, &sale.AmountPaid, &status, &sale.CreatedAt)
	sale.PaymentStatus = domain.PaymentStatus(status)
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, err
}

func collect[T any](rows *sql.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	defer rows.Close()
	out := make([]T, 0, 16)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func notFound(err error, what string, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", store.ErrNotFound, what, id)
	}
	return err
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Company, &p.ProductName, &p.CreatedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, err
}

func (r reader) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, company, product_name, created_at
		FROM products
		ORDER BY company, product_name
	`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanProduct)
}

func (r reader) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(r.q.QueryRowContext(ctx, `
		SELECT id, company, product_name, created_at FROM products WHERE id = $1
	`, id))
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return &p, nil
}

func scanVariant(row rowScanner) (domain.Variant, error) {
	var v domain.Variant
	err := row.Scan(&v.ID, &v.ProductID, &v.PackingSize, &v.Rate, &v.CreatedAt)
	v.CreatedAt = v.CreatedAt.UTC()
	return v, err
}

func (r reader) ListVariants(ctx context.Context, productID string) ([]domain.Variant, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, product_id, packing_size, rate, created_at
		FROM variants
		WHERE ($1 = '' OR product_id = $1)
		ORDER BY product_id, packing_size
	`, productID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanVariant)
}

func (r reader) GetVariant(ctx context.Context, id string) (*domain.Variant, error) {
	v, err := scanVariant(r.q.QueryRowContext(ctx, `
		SELECT id, product_id, packing_size, rate, created_at FROM variants WHERE id = $1
	`, id))
	if err != nil {
		return nil, notFound(err, "variant", id)
	}
	return &v, nil
}

func scanColor(row rowScanner) (domain.Color, error) {
	var c domain.Color
	err := row.Scan(&c.ID, &c.VariantID, &c.ColorName, &c.ColorCode, &c.StockQuantity, &c.CreatedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	return c, err
}

func (r reader) ListColors(ctx context.Context, filter domain.ColorFilter) ([]domain.Color, error) {
	query := "%" + strings.ToLower(strings.TrimSpace(filter.Query)) + "%"
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, variant_id, color_name, color_code, stock_quantity, created_at
		FROM colors
		WHERE ($1 = '' OR variant_id = $1)
		  AND (lower(color_name) LIKE $2 OR lower(color_code) LIKE $2)
		ORDER BY color_name, id
	`, filter.VariantID, query)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanColor)
}

func (r reader) GetColor(ctx context.Context, id string) (*domain.Color, error) {
	c, err := scanColor(r.q.QueryRowContext(ctx, `
		SELECT id, variant_id, color_name, color_code, stock_quantity, created_at FROM colors WHERE id = $1
	`, id))
	if err != nil {
		return nil, notFound(err, "color", id)
	}
	return &c, nil
}

func (r reader) ListStockUnits(ctx context.Context) ([]domain.StockUnit, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT c.id, c.variant_id, c.color_name, c.color_code, c.stock_quantity, c.created_at,
		       v.id, v.product_id, v.packing_size, v.rate, v.created_at,
		       p.id, p.company, p.product_name, p.created_at
		FROM colors c
		JOIN variants v ON v.id = c.variant_id
		JOIN products p ON p.id = v.product_id
		ORDER BY p.company, p.product_name, v.packing_size, c.color_name, c.id
	`)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row rowScanner) (domain.StockUnit, error) {
		var u domain.StockUnit
		err := row.Scan(
			&u.Color.ID, &u.Color.VariantID, &u.Color.ColorName, &u.Color.ColorCode, &u.Color.StockQuantity, &u.Color.CreatedAt,
			&u.Variant.ID, &u.Variant.ProductID, &u.Variant.PackingSize, &u.Variant.Rate, &u.Variant.CreatedAt,
			&u.Product.ID, &u.Product.Company, &u.Product.ProductName, &u.Product.CreatedAt,
		)
		return u, err
	})
}

func scanMovement(row rowScanner) (domain.StockMovement, error) {
	var m domain.StockMovement
	var ref sql.NullString
	err := row.Scan(&m.ID, &m.ColorID, &m.Delta, &m.Reason, &ref, &m.CreatedAt)
	m.ReferenceID = ref.String
	m.CreatedAt = m.CreatedAt.UTC()
	return m, err
}

func (r reader) ListStockMovements(ctx context.Context, colorID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 1000
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, color_id, delta, reason, reference_id, created_at
		FROM stock_movements
		WHERE ($1 = '' OR color_id = $1)
		ORDER BY seq DESC
		LIMIT $2
	`, colorID, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanMovement)
}

func (r reader) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(r.q.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "sale", id)
	}
	return &sale, nil
}

func (r reader) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	where := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("payment_status = ANY($%d)", len(args)))
	}
	if filter.Phone != "" {
		args = append(args, filter.Phone)
		where = append(where, fmt.Sprintf("customer_phone = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}

	query := `SELECT ` + saleColumns + ` FROM sales`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanSale)
}

func (r reader) FindOpenSaleByPhone(ctx context.Context, phone string) (*domain.Sale, error) {
	sale, err := scanSale(r.q.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE customer_phone = $1 AND payment_status IN ('unpaid', 'partial')
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, phone))
	if err != nil {
		return nil, notFound(err, "open sale for", phone)
	}
	return &sale, nil
}

func (r reader) ListOpenSalesByPhone(ctx context.Context, phone string) ([]domain.Sale, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE customer_phone = $1 AND payment_status IN ('unpaid', 'partial')
		ORDER BY created_at, id
	`, phone)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanSale)
}

func scanItem(row rowScanner) (domain.SaleItem, error) {
	var item domain.SaleItem
	err := row.Scan(&item.ID, &item.SaleID, &item.ColorID, &item.Quantity, &item.Rate, &item.Subtotal)
	return item, err
}

func (r reader) GetSaleItem(ctx context.Context, id string) (*domain.SaleItem, error) {
	item, err := scanItem(r.q.QueryRowContext(ctx, `
		SELECT id, sale_id, color_id, quantity, rate, subtotal FROM sale_items WHERE id = $1
	`, id))
	if err != nil {
		return nil, notFound(err, "sale item", id)
	}
	return &item, nil
}

func (r reader) ListSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, sale_id, color_id, quantity, rate, subtotal
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY seq
	`, saleID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanItem)
}

func (r reader) ListSaleLines(ctx context.Context, saleID string) ([]domain.SaleLine, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT i.id, i.sale_id, i.color_id, i.quantity, i.rate, i.subtotal,
		       COALESCE(c.color_name, ''), COALESCE(c.color_code, ''),
		       COALESCE(v.packing_size, ''), COALESCE(p.product_name, ''), COALESCE(p.company, '')
		FROM sale_items i
		LEFT JOIN colors c ON c.id = i.color_id
		LEFT JOIN variants v ON v.id = c.variant_id
		LEFT JOIN products p ON p.id = v.product_id
		WHERE i.sale_id = $1
		ORDER BY i.seq
	`, saleID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row rowScanner) (domain.SaleLine, error) {
		var l domain.SaleLine
		err := row.Scan(&l.ID, &l.SaleID, &l.ColorID, &l.Quantity, &l.Rate, &l.Subtotal,
			&l.ColorName, &l.ColorCode, &l.PackingSize, &l.ProductName, &l.Company)
		return l, err
	})
}

func scanPayment(row rowScanner) (domain.SalePayment, error) {
	var p domain.SalePayment
	var batch sql.NullString
	err := row.Scan(&p.ID, &p.SaleID, &p.Amount, &batch, &p.CreatedAt)
	p.BatchID = batch.String
	p.CreatedAt = p.CreatedAt.UTC()
	return p, err
}

func (r reader) ListPayments(ctx context.Context, saleID string) ([]domain.SalePayment, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, sale_id, amount, batch_id, created_at
		FROM sale_payments
		WHERE ($1 = '' OR sale_id = $1)
		ORDER BY seq
	`, saleID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPayment)
}

func scanReturn(row rowScanner) (domain.SaleReturn, error) {
	var ret domain.SaleReturn
	err := row.Scan(&ret.ID, &ret.SaleID, &ret.SaleItemID, &ret.ColorID, &ret.Quantity, &ret.Reason, &ret.CreatedAt)
	ret.CreatedAt = ret.CreatedAt.UTC()
	return ret, err
}

func (r reader) ListReturns(ctx context.Context, saleID string) ([]domain.SaleReturn, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, sale_id, sale_item_id, color_id, quantity, reason, created_at
		FROM sale_returns
		WHERE ($1 = '' OR sale_id = $1)
		ORDER BY seq
	`, saleID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanReturn)
}

func (r reader) ListCustomers(ctx context.Context) ([]domain.CustomerSummary, error) {
	rows, err := r.q.QueryContext(ctx, `
		WITH latest AS (
			SELECT DISTINCT ON (customer_phone) customer_phone, customer_name
			FROM sales
			ORDER BY customer_phone, created_at DESC, id DESC
		)
		SELECT s.customer_phone, l.customer_name, COUNT(*),
		       COALESCE(SUM(CASE WHEN s.payment_status IN ('unpaid', 'partial')
		                         THEN GREATEST(s.total_amount - s.amount_paid, 0) ELSE 0 END), 0),
		       MAX(s.created_at)
		FROM sales s
		JOIN latest l ON l.customer_phone = s.customer_phone
		GROUP BY s.customer_phone, l.customer_name
		ORDER BY MAX(s.created_at) DESC, s.customer_phone
	`)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row rowScanner) (domain.CustomerSummary, error) {
		var c domain.CustomerSummary
		var outstanding decimal.Decimal
		err := row.Scan(&c.CustomerPhone, &c.CustomerName, &c.SaleCount, &outstanding, &c.LastSaleAt)
		c.Outstanding = outstanding
		c.LastSaleAt = c.LastSaleAt.UTC()
		return c, err
	})
}

func (r reader) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, nullTime(from), nullTime(to), limit)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row rowScanner) (domain.AuditLog, error) {
		var entry domain.AuditLog
		err := row.Scan(&entry.ID, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt)
		entry.CreatedAt = entry.CreatedAt.UTC()
		return entry, err
	})
}
