package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"paintstore/backend/internal/domain"
	"paintstore/backend/internal/store"
)

// Read methods on state assume the caller holds the store lock.

func (st *state) ListProducts(_ context.Context) ([]domain.Product, error) {
	products := make([]domain.Product, 0, len(st.products))
	for _, p := range st.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := cmp.Compare(a.Company, b.Company); c != 0 {
			return c
		}
		return cmp.Compare(a.ProductName, b.ProductName)
	})
	return products, nil
}

func (st *state) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	p, ok := st.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	return &p, nil
}

func (st *state) ListVariants(_ context.Context, productID string) ([]domain.Variant, error) {
	variants := make([]domain.Variant, 0, len(st.variants))
	for _, v := range st.variants {
		if productID != "" && v.ProductID != productID {
			continue
		}
		variants = append(variants, v)
	}
	slices.SortFunc(variants, func(a, b domain.Variant) int {
		if c := cmp.Compare(a.ProductID, b.ProductID); c != 0 {
			return c
		}
		return cmp.Compare(a.PackingSize, b.PackingSize)
	})
	return variants, nil
}

func (st *state) GetVariant(_ context.Context, id string) (*domain.Variant, error) {
	v, ok := st.variants[id]
	if !ok {
		return nil, fmt.Errorf("%w: variant %s", store.ErrNotFound, id)
	}
	return &v, nil
}

func (st *state) ListColors(_ context.Context, filter domain.ColorFilter) ([]domain.Color, error) {
	query := strings.ToLower(strings.TrimSpace(filter.Query))
	colors := make([]domain.Color, 0, len(st.colors))
	for _, c := range st.colors {
		if filter.VariantID != "" && c.VariantID != filter.VariantID {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(c.ColorName), query) && !strings.Contains(strings.ToLower(c.ColorCode), query) {
			continue
		}
		colors = append(colors, c)
	}
	slices.SortFunc(colors, func(a, b domain.Color) int {
		if c := cmp.Compare(a.ColorName, b.ColorName); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return colors, nil
}

func (st *state) GetColor(_ context.Context, id string) (*domain.Color, error) {
	c, ok := st.colors[id]
	if !ok {
		return nil, fmt.Errorf("%w: color %s", store.ErrNotFound, id)
	}
	return &c, nil
}

func (st *state) ListStockUnits(_ context.Context) ([]domain.StockUnit, error) {
	units := make([]domain.StockUnit, 0, len(st.colors))
	for _, c := range st.colors {
		v := st.variants[c.VariantID]
		units = append(units, domain.StockUnit{Color: c, Variant: v, Product: st.products[v.ProductID]})
	}
	slices.SortFunc(units, compareStockUnits)
	return units, nil
}

func compareStockUnits(a, b domain.StockUnit) int {
	if c := cmp.Compare(a.Product.Company, b.Product.Company); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Product.ProductName, b.Product.ProductName); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Variant.PackingSize, b.Variant.PackingSize); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Color.ColorName, b.Color.ColorName); c != 0 {
		return c
	}
	return cmp.Compare(a.Color.ID, b.Color.ID)
}

func (st *state) ListStockMovements(_ context.Context, colorID string, limit int) ([]domain.StockMovement, error) {
	out := make([]domain.StockMovement, 0, 16)
	for i := len(st.movements) - 1; i >= 0; i-- {
		m := st.movements[i]
		if colorID != "" && m.ColorID != colorID {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (st *state) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	sale, ok := st.sales[id]
	if !ok {
		return nil, fmt.Errorf("%w: sale %s", store.ErrNotFound, id)
	}
	return &sale, nil
}

func (st *state) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	sales := make([]domain.Sale, 0, len(st.sales))
	for _, sale := range st.sales {
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, sale.PaymentStatus) {
			continue
		}
		if filter.Phone != "" && sale.CustomerPhone != filter.Phone {
			continue
		}
		if !filter.From.IsZero() && sale.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !sale.CreatedAt.Before(filter.To) {
			continue
		}
		sales = append(sales, sale)
	}
	slices.SortFunc(sales, newestFirst)
	if filter.Limit > 0 && len(sales) > filter.Limit {
		sales = sales[:filter.Limit]
	}
	return sales, nil
}

func newestFirst(a, b domain.Sale) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

func (st *state) FindOpenSaleByPhone(ctx context.Context, phone string) (*domain.Sale, error) {
	open, _ := st.ListOpenSalesByPhone(ctx, phone)
	if len(open) == 0 {
		return nil, fmt.Errorf("%w: open sale for %s", store.ErrNotFound, phone)
	}
	latest := open[len(open)-1]
	return &latest, nil
}

// ListOpenSalesByPhone returns the phone's open sales, oldest first.
func (st *state) ListOpenSalesByPhone(_ context.Context, phone string) ([]domain.Sale, error) {
	ids := st.openByPhone[phone]
	sales := make([]domain.Sale, 0, len(ids))
	for id := range ids {
		if sale, ok := st.sales[id]; ok {
			sales = append(sales, sale)
		}
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int { return newestFirst(b, a) })
	return sales, nil
}

func (st *state) GetSaleItem(_ context.Context, id string) (*domain.SaleItem, error) {
	item, ok := st.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: sale item %s", store.ErrNotFound, id)
	}
	return &item, nil
}

func (st *state) ListSaleItems(_ context.Context, saleID string) ([]domain.SaleItem, error) {
	ids := st.itemsBySale[saleID]
	items := make([]domain.SaleItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := st.items[id]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (st *state) ListSaleLines(ctx context.Context, saleID string) ([]domain.SaleLine, error) {
	items, _ := st.ListSaleItems(ctx, saleID)
	lines := make([]domain.SaleLine, 0, len(items))
	for _, item := range items {
		line := domain.SaleLine{SaleItem: item}
		if c, ok := st.colors[item.ColorID]; ok {
			line.ColorName = c.ColorName
			line.ColorCode = c.ColorCode
			if v, ok := st.variants[c.VariantID]; ok {
				line.PackingSize = v.PackingSize
				if p, ok := st.products[v.ProductID]; ok {
					line.ProductName = p.ProductName
					line.Company = p.Company
				}
			}
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (st *state) ListPayments(_ context.Context, saleID string) ([]domain.SalePayment, error) {
	out := make([]domain.SalePayment, 0, 4)
	for _, p := range st.payments {
		if saleID == "" || p.SaleID == saleID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (st *state) ListReturns(_ context.Context, saleID string) ([]domain.SaleReturn, error) {
	out := make([]domain.SaleReturn, 0, 2)
	for _, r := range st.returns {
		if saleID == "" || r.SaleID == saleID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (st *state) ListCustomers(_ context.Context) ([]domain.CustomerSummary, error) {
	byPhone := make(map[string]*domain.CustomerSummary)
	for _, sale := range st.sales {
		c, ok := byPhone[sale.CustomerPhone]
		if !ok {
			c = &domain.CustomerSummary{CustomerPhone: sale.CustomerPhone, Outstanding: decimal.Zero}
			byPhone[sale.CustomerPhone] = c
		}
		c.SaleCount++
		if !sale.CreatedAt.Before(c.LastSaleAt) {
			c.LastSaleAt = sale.CreatedAt
			c.CustomerName = sale.CustomerName
		}
		if sale.PaymentStatus.Open() {
			c.Outstanding = c.Outstanding.Add(sale.Outstanding())
		}
	}
	out := make([]domain.CustomerSummary, 0, len(byPhone))
	for _, c := range byPhone {
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b domain.CustomerSummary) int {
		if c := b.LastSaleAt.Compare(a.LastSaleAt); c != 0 {
			return c
		}
		return cmp.Compare(a.CustomerPhone, b.CustomerPhone)
	})
	return out, nil
}

func (st *state) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	out := make([]domain.AuditLog, 0, 32)
	for i := len(st.auditLogs) - 1; i >= 0; i-- {
		entry := st.auditLogs[i]
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !entry.CreatedAt.Before(to) {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (st *state) backup() domain.Backup {
	ctx := context.Background()
	b := domain.Backup{Version: domain.BackupVersion, ExportedAt: time.Now().UTC()}
	b.Products, _ = st.ListProducts(ctx)
	b.Variants, _ = st.ListVariants(ctx, "")
	b.Colors, _ = st.ListColors(ctx, domain.ColorFilter{})
	b.Sales, _ = st.ListSales(ctx, domain.SaleFilter{})
	slices.Reverse(b.Sales)
	b.SaleItems = make([]domain.SaleItem, 0, len(st.items))
	for _, sale := range b.Sales {
		items, _ := st.ListSaleItems(ctx, sale.ID)
		b.SaleItems = append(b.SaleItems, items...)
	}
	b.Payments = slices.Clone(st.payments)
	b.Returns = slices.Clone(st.returns)
	b.Movements = slices.Clone(st.movements)
	return b
}

func stateFromBackup(b domain.Backup) (*state, error) {
	st := newState()
	for _, p := range b.Products {
		st.products[p.ID] = p
	}
	for _, v := range b.Variants {
		st.variants[v.ID] = v
	}
	for _, c := range b.Colors {
		st.colors[c.ID] = c
	}
	for _, sale := range b.Sales {
		st.sales[sale.ID] = sale
	}
	for _, item := range b.SaleItems {
		if _, ok := st.sales[item.SaleID]; !ok {
			return nil, fmt.Errorf("%w: sale item %s references unknown sale", store.ErrValidation, item.ID)
		}
		st.items[item.ID] = item
		st.itemsBySale[item.SaleID] = append(st.itemsBySale[item.SaleID], item.ID)
	}
	st.payments = append(st.payments, b.Payments...)
	st.returns = append(st.returns, b.Returns...)
	st.movements = append(st.movements, b.Movements...)
	st.reindex()
	return st, nil
}

func (st *state) reindex() {
	st.openByPhone = make(map[string]map[string]struct{})
	for _, sale := range st.sales {
		st.index(sale)
	}
}

func (st *state) index(sale domain.Sale) {
	if !sale.PaymentStatus.Open() {
		return
	}
	ids, ok := st.openByPhone[sale.CustomerPhone]
	if !ok {
		ids = make(map[string]struct{})
		st.openByPhone[sale.CustomerPhone] = ids
	}
	ids[sale.ID] = struct{}{}
}

func (st *state) unindex(sale domain.Sale) {
	ids, ok := st.openByPhone[sale.CustomerPhone]
	if !ok {
		return
	}
	delete(ids, sale.ID)
	if len(ids) == 0 {
		delete(st.openByPhone, sale.CustomerPhone)
	}
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
