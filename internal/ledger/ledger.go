// Package ledger holds the pure billing arithmetic: sale totals, payment
// status derivation, open-bill consolidation and oldest-first allocation.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"paintstore/backend/internal/domain"
)

var (
	ErrNonPositiveAmount = errors.New("payment amount must be greater than zero")
	ErrExceedsBalance    = errors.New("payment amount exceeds outstanding balance")
	ErrNoOpenBills       = errors.New("customer has no unpaid bills")
)

// PaymentStatusFor derives a sale's status from its total and paid amount.
// A zero total counts as paid.
func PaymentStatusFor(total decimal.Decimal, paid decimal.Decimal) domain.PaymentStatus {
	if paid.GreaterThanOrEqual(total) {
		return domain.PaymentPaid
	}
	if paid.IsPositive() {
		return domain.PaymentPartial
	}
	return domain.PaymentUnpaid
}

func LineSubtotal(quantity int, rate decimal.Decimal) decimal.Decimal {
	return rate.Mul(decimal.NewFromInt(int64(quantity)))
}

func SumSubtotals(items []domain.SaleItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal)
	}
	return total
}

// Recalculate returns the sale with total and status rebuilt from its
// current items. AmountPaid is never touched.
func Recalculate(sale domain.Sale, items []domain.SaleItem) domain.Sale {
	sale.TotalAmount = SumSubtotals(items)
	sale.PaymentStatus = PaymentStatusFor(sale.TotalAmount, sale.AmountPaid)
	return sale
}

// Consolidate groups open sales by phone. Bills inside an account are
// oldest first; accounts are ordered by outstanding balance, largest first.
func Consolidate(sales []domain.Sale) []domain.CustomerAccount {
	byPhone := make(map[string]*domain.CustomerAccount)
	order := make([]string, 0)
	for _, sale := range sales {
		if !sale.PaymentStatus.Open() {
			continue
		}
		acct, ok := byPhone[sale.CustomerPhone]
		if !ok {
			acct = &domain.CustomerAccount{
				CustomerPhone:    sale.CustomerPhone,
				TotalAmount:      decimal.Zero,
				TotalPaid:        decimal.Zero,
				TotalOutstanding: decimal.Zero,
			}
			byPhone[sale.CustomerPhone] = acct
			order = append(order, sale.CustomerPhone)
		}
		acct.Bills = append(acct.Bills, sale)
	}

	accounts := make([]domain.CustomerAccount, 0, len(order))
	for _, phone := range order {
		acct := byPhone[phone]
		SortOldestFirst(acct.Bills)
		var latest time.Time
		for _, bill := range acct.Bills {
			acct.TotalAmount = acct.TotalAmount.Add(bill.TotalAmount)
			acct.TotalPaid = acct.TotalPaid.Add(bill.AmountPaid)
			acct.TotalOutstanding = acct.TotalOutstanding.Add(bill.Outstanding())
			if !bill.CreatedAt.Before(latest) {
				latest = bill.CreatedAt
				acct.CustomerName = bill.CustomerName
			}
		}
		acct.BillCount = len(acct.Bills)
		acct.OldestBillDate = acct.Bills[0].CreatedAt
		accounts = append(accounts, *acct)
	}

	sort.SliceStable(accounts, func(i, j int) bool {
		cmp := accounts[i].TotalOutstanding.Cmp(accounts[j].TotalOutstanding)
		if cmp != 0 {
			return cmp > 0
		}
		return accounts[i].CustomerPhone < accounts[j].CustomerPhone
	})
	return accounts
}

// SortOldestFirst orders sales by creation time, then id.
func SortOldestFirst(sales []domain.Sale) {
	sort.SliceStable(sales, func(i, j int) bool {
		if !sales[i].CreatedAt.Equal(sales[j].CreatedAt) {
			return sales[i].CreatedAt.Before(sales[j].CreatedAt)
		}
		return sales[i].ID < sales[j].ID
	})
}

// PlanAllocation splits amount across the account's bills oldest first.
// The applied slices always sum to exactly amount.
func PlanAllocation(acct domain.CustomerAccount, amount decimal.Decimal) ([]domain.Allocation, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	if len(acct.Bills) == 0 || !acct.TotalOutstanding.IsPositive() {
		return nil, ErrNoOpenBills
	}
	if amount.GreaterThan(acct.TotalOutstanding) {
		return nil, fmt.Errorf("%w: amount %s, outstanding %s", ErrExceedsBalance, amount.StringFixed(2), acct.TotalOutstanding.StringFixed(2))
	}

	bills := make([]domain.Sale, len(acct.Bills))
	copy(bills, acct.Bills)
	SortOldestFirst(bills)

	remaining := amount
	plan := make([]domain.Allocation, 0, len(bills))
	for _, bill := range bills {
		if !remaining.IsPositive() {
			break
		}
		outstanding := bill.Outstanding()
		if !outstanding.IsPositive() {
			continue
		}
		applied := decimal.Min(remaining, outstanding)
		plan = append(plan, domain.Allocation{
			SaleID:      bill.ID,
			Applied:     applied,
			Outstanding: outstanding,
		})
		remaining = remaining.Sub(applied)
	}
	return plan, nil
}
