package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"paintstore/backend/internal/domain"
	"paintstore/backend/internal/store"
	"paintstore/backend/internal/xid"
)

// txQueries is the store.Tx over one *sql.Tx.
type txQueries struct {
	reader
	tx   *sql.Tx
	opts store.Options
}

func (t *txQueries) LockCustomer(ctx context.Context, phone string) error {
	_, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "customer:"+phone)
	return err
}

func (t *txQueries) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	product.CreatedAt = orNow(product.CreatedAt)
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO products (id, company, product_name, created_at)
		VALUES ($1,$2,$3,$4)
	`, product.ID, product.Company, product.ProductName, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: product %s already exists", store.ErrConflict, product.ID)
		}
		return nil, err
	}
	return &product, nil
}

func (t *txQueries) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	p, err := scanProduct(t.tx.QueryRowContext(ctx, `
		UPDATE products SET company = $2, product_name = $3
		WHERE id = $1
		RETURNING id, company, product_name, created_at
	`, product.ID, product.Company, product.ProductName))
	if err != nil {
		return nil, notFound(err, "product", product.ID)
	}
	return &p, nil
}

func (t *txQueries) DeleteProduct(ctx context.Context, id string) error {
	return t.deleteRow(ctx, `DELETE FROM products WHERE id = $1`, id, "product", "still has variants")
}

func (t *txQueries) CreateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error) {
	if variant.ID == "" {
		variant.ID = xid.New("var")
	}
	variant.CreatedAt = orNow(variant.CreatedAt)
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO variants (id, product_id, packing_size, rate, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, variant.ID, variant.ProductID, variant.PackingSize, variant.Rate, variant.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: unknown product %s", store.ErrValidation, variant.ProductID)
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: variant %s already exists", store.ErrConflict, variant.ID)
		}
		return nil, err
	}
	return &variant, nil
}

func (t *txQueries) UpdateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error) {
	v, err := scanVariant(t.tx.QueryRowContext(ctx, `
		UPDATE variants SET packing_size = $2, rate = $3
		WHERE id = $1
		RETURNING id, product_id, packing_size, rate, created_at
	`, variant.ID, variant.PackingSize, variant.Rate))
	if err != nil {
		return nil, notFound(err, "variant", variant.ID)
	}
	return &v, nil
}

func (t *txQueries) DeleteVariant(ctx context.Context, id string) error {
	return t.deleteRow(ctx, `DELETE FROM variants WHERE id = $1`, id, "variant", "still has colors")
}

func (t *txQueries) CreateColor(ctx context.Context, color domain.Color) (*domain.Color, error) {
	if color.ID == "" {
		color.ID = xid.New("col")
	}
	color.CreatedAt = orNow(color.CreatedAt)
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO colors (id, variant_id, color_name, color_code, stock_quantity, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, color.ID, color.VariantID, color.ColorName, color.ColorCode, color.StockQuantity, color.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: unknown variant %s", store.ErrValidation, color.VariantID)
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: color %s already exists", store.ErrConflict, color.ID)
		}
		return nil, err
	}
	return &color, nil
}

func (t *txQueries) UpdateColor(ctx context.Context, color domain.Color) (*domain.Color, error) {
	c, err := scanColor(t.tx.QueryRowContext(ctx, `
		UPDATE colors SET color_name = $2, color_code = $3
		WHERE id = $1
		RETURNING id, variant_id, color_name, color_code, stock_quantity, created_at
	`, color.ID, color.ColorName, color.ColorCode))
	if err != nil {
		return nil, notFound(err, "color", color.ID)
	}
	return &c, nil
}

func (t *txQueries) DeleteColor(ctx context.Context, id string) error {
	return t.deleteRow(ctx, `DELETE FROM colors WHERE id = $1`, id, "color", "is referenced by sales")
}

func (t *txQueries) deleteRow(ctx context.Context, query string, id string, what string, conflict string) error {
	res, err := t.tx.ExecContext(ctx, query, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s %s %s", store.ErrConflict, what, id, conflict)
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s %s", store.ErrNotFound, what, id)
	}
	return nil
}

// AdjustStock is a single conditional UPDATE; the guard is evaluated on the
// row version the update sees, so concurrent decrements cannot both pass it.
func (t *txQueries) AdjustStock(ctx context.Context, adj domain.StockAdjustment) (*domain.Color, error) {
	c, err := scanColor(t.tx.QueryRowContext(ctx, `
		UPDATE colors
		SET stock_quantity = stock_quantity + $2
		WHERE id = $1 AND ($3 OR $2 >= 0 OR stock_quantity + $2 >= 0)
		RETURNING id, variant_id, color_name, color_code, stock_quantity, created_at
	`, adj.ColorID, adj.Delta, t.opts.AllowNegativeStock))
	if errors.Is(err, sql.ErrNoRows) {
		current, getErr := t.GetColor(ctx, adj.ColorID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: color %s has %d, needs %d", store.ErrInsufficientStock, current.ID, current.StockQuantity, -adj.Delta)
	}
	if err != nil {
		return nil, err
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, color_id, delta, reason, reference_id, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, xid.New("mov"), adj.ColorID, adj.Delta, adj.Reason, nullIfEmpty(adj.ReferenceID))
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (t *txQueries) InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	sale.CreatedAt = orNow(sale.CreatedAt)
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sales (id, customer_name, customer_phone, total_amount, amount_paid, payment_status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, sale.ID, sale.CustomerName, sale.CustomerPhone, sale.TotalAmount, sale.AmountPaid, string(sale.PaymentStatus), sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sale %s already exists", store.ErrConflict, sale.ID)
		}
		return nil, err
	}
	return &sale, nil
}

func (t *txQueries) UpdateSaleTotals(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	updated, err := scanSale(t.tx.QueryRowContext(ctx, `
		UPDATE sales SET total_amount = $2, amount_paid = $3, payment_status = $4
		WHERE id = $1
		RETURNING `+saleColumns,
		sale.ID, sale.TotalAmount, sale.AmountPaid, string(sale.PaymentStatus)))
	if err != nil {
		return nil, notFound(err, "sale", sale.ID)
	}
	return &updated, nil
}

// DeleteSale relies on ON DELETE CASCADE for items, payments and returns.
func (t *txQueries) DeleteSale(ctx context.Context, id string) error {
	return t.deleteRow(ctx, `DELETE FROM sales WHERE id = $1`, id, "sale", "")
}

func (t *txQueries) InsertSaleItem(ctx context.Context, item domain.SaleItem) (*domain.SaleItem, error) {
	if item.ID == "" {
		item.ID = xid.New("item")
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sale_items (id, sale_id, color_id, quantity, rate, subtotal)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, item.ID, item.SaleID, item.ColorID, item.Quantity, item.Rate, item.Subtotal)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: sale %s or color %s does not exist", store.ErrValidation, item.SaleID, item.ColorID)
		}
		return nil, err
	}
	return &item, nil
}

func (t *txQueries) UpdateSaleItem(ctx context.Context, item domain.SaleItem) (*domain.SaleItem, error) {
	updated, err := scanItem(t.tx.QueryRowContext(ctx, `
		UPDATE sale_items SET quantity = $2, subtotal = $3
		WHERE id = $1
		RETURNING id, sale_id, color_id, quantity, rate, subtotal
	`, item.ID, item.Quantity, item.Subtotal))
	if err != nil {
		return nil, notFound(err, "sale item", item.ID)
	}
	return &updated, nil
}

func (t *txQueries) DeleteSaleItem(ctx context.Context, id string) error {
	return t.deleteRow(ctx, `DELETE FROM sale_items WHERE id = $1`, id, "sale item", "")
}

func (t *txQueries) InsertPayment(ctx context.Context, payment domain.SalePayment) error {
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sale_payments (id, sale_id, amount, batch_id, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, payment.ID, payment.SaleID, payment.Amount, nullIfEmpty(payment.BatchID), orNow(payment.CreatedAt))
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: sale %s", store.ErrNotFound, payment.SaleID)
	}
	return err
}

func (t *txQueries) InsertReturn(ctx context.Context, ret domain.SaleReturn) error {
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sale_returns (id, sale_id, sale_item_id, color_id, quantity, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, ret.ID, ret.SaleID, ret.SaleItemID, ret.ColorID, ret.Quantity, ret.Reason, orNow(ret.CreatedAt))
	return err
}

func (t *txQueries) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	return insertAudit(ctx, t.tx, entry)
}

func insertAudit(ctx context.Context, q queryer, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO audit_logs (id, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.ID, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, orNow(entry.CreatedAt))
	return err
}
