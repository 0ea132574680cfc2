package postgres

import (
	"context"
	"time"

	"paintstore/backend/internal/domain"
)

func (t *txQueries) exportAll(ctx context.Context) (*domain.Backup, error) {
	b := &domain.Backup{Version: domain.BackupVersion, ExportedAt: time.Now().UTC()}
	var err error
	if b.Products, err = t.ListProducts(ctx); err != nil {
		return nil, err
	}
	if b.Variants, err = t.ListVariants(ctx, ""); err != nil {
		return nil, err
	}
	if b.Colors, err = t.ListColors(ctx, domain.ColorFilter{}); err != nil {
		return nil, err
	}

	rows, err := t.tx.QueryContext(ctx, `SELECT `+saleColumns+` FROM sales ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	if b.Sales, err = collect(rows, scanSale); err != nil {
		return nil, err
	}

	rows, err = t.tx.QueryContext(ctx, `
		SELECT i.id, i.sale_id, i.color_id, i.quantity, i.rate, i.subtotal
		FROM sale_items i JOIN sales s ON s.id = i.sale_id
		ORDER BY s.created_at, s.id, i.seq
	`)
	if err != nil {
		return nil, err
	}
	if b.SaleItems, err = collect(rows, scanItem); err != nil {
		return nil, err
	}

	if b.Payments, err = t.ListPayments(ctx, ""); err != nil {
		return nil, err
	}
	if b.Returns, err = t.ListReturns(ctx, ""); err != nil {
		return nil, err
	}

	rows, err = t.tx.QueryContext(ctx, `
		SELECT id, color_id, delta, reason, reference_id, created_at FROM stock_movements ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	if b.Movements, err = collect(rows, scanMovement); err != nil {
		return nil, err
	}
	return b, nil
}

// replaceAll swaps the whole dataset for b. Audit logs are kept.
func (t *txQueries) replaceAll(ctx context.Context, b domain.Backup) error {
	for _, table := range []string{"stock_movements", "sale_returns", "sale_payments", "sale_items", "sales", "colors", "variants", "products"} {
		if _, err := t.tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return err
		}
	}

	for _, p := range b.Products {
		if _, err := t.CreateProduct(ctx, p); err != nil {
			return err
		}
	}
	for _, v := range b.Variants {
		if _, err := t.CreateVariant(ctx, v); err != nil {
			return err
		}
	}
	for _, c := range b.Colors {
		if _, err := t.CreateColor(ctx, c); err != nil {
			return err
		}
	}
	for _, s := range b.Sales {
		if _, err := t.InsertSale(ctx, s); err != nil {
			return err
		}
	}
	for _, item := range b.SaleItems {
		if _, err := t.InsertSaleItem(ctx, item); err != nil {
			return err
		}
	}
	for _, p := range b.Payments {
		if err := t.InsertPayment(ctx, p); err != nil {
			return err
		}
	}
	for _, r := range b.Returns {
		if err := t.InsertReturn(ctx, r); err != nil {
			return err
		}
	}
	for _, m := range b.Movements {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO stock_movements (id, color_id, delta, reason, reference_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, m.ID, m.ColorID, m.Delta, m.Reason, nullIfEmpty(m.ReferenceID), orNow(m.CreatedAt))
		if err != nil {
			return err
		}
	}
	return nil
}
