package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"paintstore/backend/internal/domain"
	"paintstore/backend/internal/ledger"
	"paintstore/backend/internal/store"
	"paintstore/backend/internal/xid"
)

// FindOpenSaleByPhone returns the customer's most recent unpaid or partial
// sale.
func (s *Service) FindOpenSaleByPhone(ctx context.Context, rawPhone string) (*domain.Sale, error) {
	key, err := s.normalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}
	return s.repo.FindOpenSaleByPhone(ctx, key)
}

// ListCustomerAccounts consolidates every open bill by phone.
func (s *Service) ListCustomerAccounts(ctx context.Context) ([]domain.CustomerAccount, error) {
	open, err := s.ListUnpaidSales(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.Consolidate(open), nil
}

func (s *Service) GetCustomerAccount(ctx context.Context, rawPhone string) (*domain.CustomerAccount, error) {
	key, err := s.normalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}
	open, err := s.repo.ListOpenSalesByPhone(ctx, key)
	if err != nil {
		return nil, err
	}
	accounts := ledger.Consolidate(open)
	if len(accounts) == 0 {
		return nil, fmt.Errorf("%w: %v (%s)", store.ErrNotFound, ledger.ErrNoOpenBills, key)
	}
	return &accounts[0], nil
}

// AllocatePayment spreads one customer payment over their open bills,
// oldest first. Every slice commits together or not at all.
func (s *Service) AllocatePayment(ctx context.Context, rawPhone string, amount decimal.Decimal) (*domain.AllocationResult, error) {
	key, err := s.normalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, ledger.ErrNonPositiveAmount)
	}
	if err := money("amount", amount); err != nil {
		return nil, err
	}

	release, err := s.lockCustomer(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	var result *domain.AllocationResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockCustomer(ctx, key); err != nil {
			return err
		}
		open, err := tx.ListOpenSalesByPhone(ctx, key)
		if err != nil {
			return err
		}
		accounts := ledger.Consolidate(open)
		if len(accounts) == 0 {
			return fmt.Errorf("%w: %v (%s)", store.ErrNotFound, ledger.ErrNoOpenBills, key)
		}
		account := accounts[0]

		plan, err := ledger.PlanAllocation(account, amount)
		if err != nil {
			if errors.Is(err, ledger.ErrNoOpenBills) {
				return fmt.Errorf("%w: %v", store.ErrNotFound, err)
			}
			return fmt.Errorf("%w: %v", store.ErrValidation, err)
		}

		bills := make(map[string]domain.Sale, len(account.Bills))
		for _, bill := range account.Bills {
			bills[bill.ID] = bill
		}

		res := &domain.AllocationResult{
			BatchID:       xid.New("batch"),
			CustomerPhone: key,
			Amount:        amount,
			Allocations:   plan,
			Sales:         make([]domain.Sale, 0, len(plan)),
			Remaining:     account.TotalOutstanding.Sub(amount),
		}
		for _, slice := range plan {
			updated, err := s.applyPaymentTx(ctx, tx, bills[slice.SaleID], slice.Applied, res.BatchID)
			if err != nil {
				return err
			}
			res.Sales = append(res.Sales, *updated)
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PaymentApplied("allocation", amount.InexactFloat64())
	s.committed(ctx, "customer_payment", "customer", key, fmt.Sprintf("batch=%s,amount=%s,bills=%d", result.BatchID, amount.StringFixed(2), len(result.Allocations)))
	return result, nil
}

func (s *Service) SuggestCustomers(ctx context.Context, query string, limit int) ([]domain.CustomerSuggestion, error) {
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}
	return s.suggester.Suggest(query, customers, limit, s.now()), nil
}
