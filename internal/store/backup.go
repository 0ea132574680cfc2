package store

import (
	"fmt"

	"paintstore/backend/internal/domain"
	"paintstore/backend/internal/ledger"
)

// ValidateBackup checks that every reference inside a backup resolves, that
// each sale total equals the sum of its item subtotals, and that each
// payment status agrees with the total and the amount paid.
func ValidateBackup(b domain.Backup) error {
	if b.Version != domain.BackupVersion {
		return fmt.Errorf("%w: unsupported backup version %d", ErrValidation, b.Version)
	}

	products := make(map[string]struct{}, len(b.Products))
	for _, p := range b.Products {
		if p.ID == "" {
			return fmt.Errorf("%w: product without id", ErrValidation)
		}
		products[p.ID] = struct{}{}
	}
	variants := make(map[string]struct{}, len(b.Variants))
	for _, v := range b.Variants {
		if _, ok := products[v.ProductID]; !ok {
			return fmt.Errorf("%w: variant %s references unknown product %s", ErrValidation, v.ID, v.ProductID)
		}
		variants[v.ID] = struct{}{}
	}
	colors := make(map[string]struct{}, len(b.Colors))
	for _, c := range b.Colors {
		if _, ok := variants[c.VariantID]; !ok {
			return fmt.Errorf("%w: color %s references unknown variant %s", ErrValidation, c.ID, c.VariantID)
		}
		colors[c.ID] = struct{}{}
	}
	sales := make(map[string]struct{}, len(b.Sales))
	itemsBySale := make(map[string][]domain.SaleItem, len(b.Sales))
	for _, s := range b.Sales {
		if s.ID == "" || s.CustomerPhone == "" {
			return fmt.Errorf("%w: sale without id or phone", ErrValidation)
		}
		if !s.PaymentStatus.Valid() {
			return fmt.Errorf("%w: sale %s has status %q", ErrValidation, s.ID, s.PaymentStatus)
		}
		sales[s.ID] = struct{}{}
	}
	for _, item := range b.SaleItems {
		if _, ok := sales[item.SaleID]; !ok {
			return fmt.Errorf("%w: sale item %s references unknown sale %s", ErrValidation, item.ID, item.SaleID)
		}
		if _, ok := colors[item.ColorID]; !ok {
			return fmt.Errorf("%w: sale item %s references unknown color %s", ErrValidation, item.ID, item.ColorID)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: sale item %s has quantity %d", ErrValidation, item.ID, item.Quantity)
		}
		if want := ledger.LineSubtotal(item.Quantity, item.Rate); !item.Subtotal.Equal(want) {
			return fmt.Errorf("%w: sale item %s subtotal %s, expected %s", ErrValidation, item.ID, item.Subtotal, want)
		}
		itemsBySale[item.SaleID] = append(itemsBySale[item.SaleID], item)
	}
	for _, s := range b.Sales {
		if s.AmountPaid.IsNegative() {
			return fmt.Errorf("%w: sale %s has negative amount paid", ErrValidation, s.ID)
		}
		want := ledger.Recalculate(s, itemsBySale[s.ID])
		if !s.TotalAmount.Equal(want.TotalAmount) {
			return fmt.Errorf("%w: sale %s total %s does not match its items (%s)", ErrValidation, s.ID, s.TotalAmount, want.TotalAmount)
		}
		if s.PaymentStatus != want.PaymentStatus {
			return fmt.Errorf("%w: sale %s status %q, expected %q", ErrValidation, s.ID, s.PaymentStatus, want.PaymentStatus)
		}
	}
	for _, p := range b.Payments {
		if _, ok := sales[p.SaleID]; !ok {
			return fmt.Errorf("%w: payment %s references unknown sale %s", ErrValidation, p.ID, p.SaleID)
		}
	}
	for _, r := range b.Returns {
		if _, ok := sales[r.SaleID]; !ok {
			return fmt.Errorf("%w: return %s references unknown sale %s", ErrValidation, r.ID, r.SaleID)
		}
	}
	for _, m := range b.Movements {
		if _, ok := colors[m.ColorID]; !ok {
			return fmt.Errorf("%w: stock movement %s references unknown color %s", ErrValidation, m.ID, m.ColorID)
		}
	}
	return nil
}
