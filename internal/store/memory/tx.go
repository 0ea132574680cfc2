package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"paintstore/backend/internal/domain"
	"paintstore/backend/internal/store"
	"paintstore/backend/internal/xid"
)

// txView is a unit of work over the live state. Every write pushes an undo
// step; rollback replays them newest first.
type txView struct {
	*state
	opts store.Options
	undo []func()
}

func (t *txView) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.state.reindex()
}

func setEntry[K comparable, V any](t *txView, m map[K]V, key K, val V) {
	prev, existed := m[key]
	t.undo = append(t.undo, func() {
		if existed {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
	m[key] = val
}

func deleteEntry[K comparable, V any](t *txView, m map[K]V, key K) {
	prev, existed := m[key]
	if !existed {
		return
	}
	t.undo = append(t.undo, func() { m[key] = prev })
	delete(m, key)
}

func appendEntry[V any](t *txView, list *[]V, val V) {
	n := len(*list)
	t.undo = append(t.undo, func() { *list = (*list)[:n] })
	*list = append(*list, val)
}

func replaceList[V any](t *txView, list *[]V, next []V) {
	prev := *list
	t.undo = append(t.undo, func() { *list = prev })
	*list = next
}

func (t *txView) LockCustomer(_ context.Context, _ string) error {
	return nil
}

func (t *txView) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := t.products[product.ID]; exists {
		return nil, fmt.Errorf("%w: product %s already exists", store.ErrConflict, product.ID)
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	setEntry(t, t.products, product.ID, product)
	return &product, nil
}

func (t *txView) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	existing, ok := t.products[product.ID]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, product.ID)
	}
	existing.Company = product.Company
	existing.ProductName = product.ProductName
	setEntry(t, t.products, existing.ID, existing)
	return &existing, nil
}

func (t *txView) DeleteProduct(_ context.Context, id string) error {
	if _, ok := t.products[id]; !ok {
		return fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	for _, v := range t.variants {
		if v.ProductID == id {
			return fmt.Errorf("%w: product %s still has variants", store.ErrConflict, id)
		}
	}
	deleteEntry(t, t.products, id)
	return nil
}

func (t *txView) CreateVariant(_ context.Context, variant domain.Variant) (*domain.Variant, error) {
	if _, ok := t.products[variant.ProductID]; !ok {
		return nil, fmt.Errorf("%w: unknown product %s", store.ErrValidation, variant.ProductID)
	}
	if variant.ID == "" {
		variant.ID = xid.New("var")
	}
	if variant.CreatedAt.IsZero() {
		variant.CreatedAt = time.Now().UTC()
	}
	setEntry(t, t.variants, variant.ID, variant)
	return &variant, nil
}

func (t *txView) UpdateVariant(_ context.Context, variant domain.Variant) (*domain.Variant, error) {
	existing, ok := t.variants[variant.ID]
	if !ok {
		return nil, fmt.Errorf("%w: variant %s", store.ErrNotFound, variant.ID)
	}
	existing.PackingSize = variant.PackingSize
	existing.Rate = variant.Rate
	setEntry(t, t.variants, existing.ID, existing)
	return &existing, nil
}

func (t *txView) DeleteVariant(_ context.Context, id string) error {
	if _, ok := t.variants[id]; !ok {
		return fmt.Errorf("%w: variant %s", store.ErrNotFound, id)
	}
	for _, c := range t.colors {
		if c.VariantID == id {
			return fmt.Errorf("%w: variant %s still has colors", store.ErrConflict, id)
		}
	}
	deleteEntry(t, t.variants, id)
	return nil
}

func (t *txView) CreateColor(_ context.Context, color domain.Color) (*domain.Color, error) {
	if _, ok := t.variants[color.VariantID]; !ok {
		return nil, fmt.Errorf("%w: unknown variant %s", store.ErrValidation, color.VariantID)
	}
	if color.ID == "" {
		color.ID = xid.New("col")
	}
	if color.CreatedAt.IsZero() {
		color.CreatedAt = time.Now().UTC()
	}
	setEntry(t, t.colors, color.ID, color)
	return &color, nil
}

// UpdateColor edits descriptive fields only; stock moves through AdjustStock.
func (t *txView) UpdateColor(_ context.Context, color domain.Color) (*domain.Color, error) {
	existing, ok := t.colors[color.ID]
	if !ok {
		return nil, fmt.Errorf("%w: color %s", store.ErrNotFound, color.ID)
	}
	existing.ColorName = color.ColorName
	existing.ColorCode = color.ColorCode
	setEntry(t, t.colors, existing.ID, existing)
	return &existing, nil
}

func (t *txView) DeleteColor(_ context.Context, id string) error {
	if _, ok := t.colors[id]; !ok {
		return fmt.Errorf("%w: color %s", store.ErrNotFound, id)
	}
	for _, item := range t.items {
		if item.ColorID == id {
			return fmt.Errorf("%w: color %s is referenced by sales", store.ErrConflict, id)
		}
	}
	deleteEntry(t, t.colors, id)
	kept := make([]domain.StockMovement, 0, len(t.movements))
	for _, m := range t.movements {
		if m.ColorID != id {
			kept = append(kept, m)
		}
	}
	replaceList(t, &t.movements, kept)
	return nil
}

func (t *txView) AdjustStock(_ context.Context, adj domain.StockAdjustment) (*domain.Color, error) {
	color, ok := t.colors[adj.ColorID]
	if !ok {
		return nil, fmt.Errorf("%w: color %s", store.ErrNotFound, adj.ColorID)
	}
	next := color.StockQuantity + adj.Delta
	if adj.Delta < 0 && next < 0 && !t.opts.AllowNegativeStock {
		return nil, fmt.Errorf("%w: color %s has %d, needs %d", store.ErrInsufficientStock, color.ID, color.StockQuantity, -adj.Delta)
	}
	color.StockQuantity = next
	setEntry(t, t.colors, color.ID, color)
	appendEntry(t, &t.movements, domain.StockMovement{
		ID:          xid.New("mov"),
		ColorID:     color.ID,
		Delta:       adj.Delta,
		Reason:      adj.Reason,
		ReferenceID: adj.ReferenceID,
		CreatedAt:   time.Now().UTC(),
	})
	return &color, nil
}

func (t *txView) putSale(sale domain.Sale) {
	if prev, ok := t.sales[sale.ID]; ok {
		t.unindex(prev)
	}
	setEntry(t, t.sales, sale.ID, sale)
	t.index(sale)
}

func (t *txView) InsertSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if _, exists := t.sales[sale.ID]; exists {
		return nil, fmt.Errorf("%w: sale %s already exists", store.ErrConflict, sale.ID)
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	t.putSale(sale)
	return &sale, nil
}

func (t *txView) UpdateSaleTotals(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	existing, ok := t.sales[sale.ID]
	if !ok {
		return nil, fmt.Errorf("%w: sale %s", store.ErrNotFound, sale.ID)
	}
	existing.TotalAmount = sale.TotalAmount
	existing.AmountPaid = sale.AmountPaid
	existing.PaymentStatus = sale.PaymentStatus
	t.putSale(existing)
	return &existing, nil
}

// DeleteSale removes the sale with its items, payments and returns. Stock
// is the caller's concern.
func (t *txView) DeleteSale(_ context.Context, id string) error {
	sale, ok := t.sales[id]
	if !ok {
		return fmt.Errorf("%w: sale %s", store.ErrNotFound, id)
	}
	for _, itemID := range t.itemsBySale[id] {
		deleteEntry(t, t.items, itemID)
	}
	deleteEntry(t, t.itemsBySale, id)
	replaceList(t, &t.payments, slices.DeleteFunc(slices.Clone(t.payments), func(p domain.SalePayment) bool { return p.SaleID == id }))
	replaceList(t, &t.returns, slices.DeleteFunc(slices.Clone(t.returns), func(r domain.SaleReturn) bool { return r.SaleID == id }))
	t.unindex(sale)
	deleteEntry(t, t.sales, id)
	return nil
}

func (t *txView) InsertSaleItem(_ context.Context, item domain.SaleItem) (*domain.SaleItem, error) {
	if _, ok := t.sales[item.SaleID]; !ok {
		return nil, fmt.Errorf("%w: sale %s", store.ErrNotFound, item.SaleID)
	}
	if _, ok := t.colors[item.ColorID]; !ok {
		return nil, fmt.Errorf("%w: unknown color %s", store.ErrValidation, item.ColorID)
	}
	if item.ID == "" {
		item.ID = xid.New("item")
	}
	setEntry(t, t.items, item.ID, item)
	ids := append(slices.Clone(t.itemsBySale[item.SaleID]), item.ID)
	setEntry(t, t.itemsBySale, item.SaleID, ids)
	return &item, nil
}

func (t *txView) UpdateSaleItem(_ context.Context, item domain.SaleItem) (*domain.SaleItem, error) {
	existing, ok := t.items[item.ID]
	if !ok {
		return nil, fmt.Errorf("%w: sale item %s", store.ErrNotFound, item.ID)
	}
	existing.Quantity = item.Quantity
	existing.Subtotal = item.Subtotal
	setEntry(t, t.items, existing.ID, existing)
	return &existing, nil
}

func (t *txView) DeleteSaleItem(_ context.Context, id string) error {
	item, ok := t.items[id]
	if !ok {
		return fmt.Errorf("%w: sale item %s", store.ErrNotFound, id)
	}
	deleteEntry(t, t.items, id)
	ids := slices.DeleteFunc(slices.Clone(t.itemsBySale[item.SaleID]), func(v string) bool { return v == id })
	setEntry(t, t.itemsBySale, item.SaleID, ids)
	return nil
}

func (t *txView) InsertPayment(_ context.Context, payment domain.SalePayment) error {
	if _, ok := t.sales[payment.SaleID]; !ok {
		return fmt.Errorf("%w: sale %s", store.ErrNotFound, payment.SaleID)
	}
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	appendEntry(t, &t.payments, payment)
	return nil
}

func (t *txView) InsertReturn(_ context.Context, ret domain.SaleReturn) error {
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	appendEntry(t, &t.returns, ret)
	return nil
}

func (t *txView) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	appendEntry(t, &t.auditLogs, fillAudit(entry))
	return nil
}
