package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"paintstore/backend/internal/domain"
	"paintstore/backend/internal/ledger"
	"paintstore/backend/internal/store"
	"paintstore/backend/internal/xid"
)

var ErrReturnExceedsPurchase = fmt.Errorf("%w: Return quantity exceeds purchased quantity", store.ErrValidation)

// CreateSale records a sale. An unpaid or partial sale for a phone that
// already has an open bill is merged into that bill instead: its items are
// added there and the request's amountPaid is not registered.
func (s *Service) CreateSale(ctx context.Context, req domain.CreateSaleRequest) (domain.CreateSaleResponse, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	if err := s.check(req); err != nil {
		return domain.CreateSaleResponse{}, err
	}
	if err := money("amountPaid", req.AmountPaid); err != nil {
		return domain.CreateSaleResponse{}, err
	}
	for i, item := range req.Items {
		if err := money(fmt.Sprintf("items[%d].rate", i), item.Rate); err != nil {
			return domain.CreateSaleResponse{}, err
		}
	}
	phoneKey, err := s.normalizePhone(req.CustomerPhone)
	if err != nil {
		return domain.CreateSaleResponse{}, err
	}

	total := decimal.Zero
	for _, item := range req.Items {
		total = total.Add(ledger.LineSubtotal(item.Quantity, item.Rate))
	}
	status := ledger.PaymentStatusFor(total, req.AmountPaid)

	if status.Open() {
		release, err := s.lockCustomer(ctx, phoneKey)
		if err != nil {
			return domain.CreateSaleResponse{}, err
		}
		defer release()
	}

	var resp domain.CreateSaleResponse
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		resp = domain.CreateSaleResponse{}
		if status.Open() {
			if err := tx.LockCustomer(ctx, phoneKey); err != nil {
				return err
			}
			existing, err := tx.FindOpenSaleByPhone(ctx, phoneKey)
			switch {
			case err == nil:
				return s.mergeIntoOpenSale(ctx, tx, existing, req.Items, &resp)
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		sale, err := tx.InsertSale(ctx, domain.Sale{
			ID:            xid.New("sale"),
			CustomerName:  req.CustomerName,
			CustomerPhone: phoneKey,
			TotalAmount:   total,
			AmountPaid:    req.AmountPaid,
			PaymentStatus: status,
			CreatedAt:     s.now(),
		})
		if err != nil {
			return err
		}
		for _, input := range req.Items {
			item, err := s.addItemTx(ctx, tx, sale.ID, input)
			if err != nil {
				return err
			}
			resp.Items = append(resp.Items, *item)
		}
		if req.AmountPaid.IsPositive() {
			if err := tx.InsertPayment(ctx, domain.SalePayment{
				ID:        xid.New("pay"),
				SaleID:    sale.ID,
				Amount:    req.AmountPaid,
				CreatedAt: s.now(),
			}); err != nil {
				return err
			}
		}
		resp.Sale = *sale
		return nil
	})
	if err != nil {
		return domain.CreateSaleResponse{}, err
	}

	s.metrics.SaleRecorded(resp.Merged)
	s.recordStockMoves(domain.MovementSale, len(req.Items))
	action := "sale_create"
	if resp.Merged {
		action = "sale_merge"
	}
	s.committed(ctx, action, "sale", resp.ID, fmt.Sprintf("phone=%s,items=%d,total=%s", phoneKey, len(req.Items), resp.TotalAmount.StringFixed(2)))
	return resp, nil
}

func (s *Service) mergeIntoOpenSale(ctx context.Context, tx store.Tx, sale *domain.Sale, inputs []domain.SaleItemInput, resp *domain.CreateSaleResponse) error {
	for _, input := range inputs {
		item, err := s.addItemTx(ctx, tx, sale.ID, input)
		if err != nil {
			return err
		}
		resp.Items = append(resp.Items, *item)
	}
	updated, err := recalculateTx(ctx, tx, sale.ID)
	if err != nil {
		return err
	}
	resp.Sale = *updated
	resp.Merged = true
	return nil
}

// addItemTx inserts one line and takes its quantity out of stock. The
// caller recalculates the sale.
func (s *Service) addItemTx(ctx context.Context, tx store.Tx, saleID string, input domain.SaleItemInput) (*domain.SaleItem, error) {
	color, err := tx.GetColor(ctx, input.ColorID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: color %s does not exist", store.ErrValidation, input.ColorID)
	}
	if err != nil {
		return nil, err
	}

	item, err := tx.InsertSaleItem(ctx, domain.SaleItem{
		ID:       xid.New("item"),
		SaleID:   saleID,
		ColorID:  color.ID,
		Quantity: input.Quantity,
		Rate:     input.Rate,
		Subtotal: ledger.LineSubtotal(input.Quantity, input.Rate),
	})
	if err != nil {
		return nil, err
	}
	if _, err := tx.AdjustStock(ctx, domain.StockAdjustment{
		ColorID:     color.ID,
		Delta:       -input.Quantity,
		Reason:      domain.MovementSale,
		ReferenceID: saleID,
	}); err != nil {
		return nil, err
	}
	return item, nil
}

// recalculateTx rebuilds total and status from the sale's current items.
func recalculateTx(ctx context.Context, tx store.Tx, saleID string) (*domain.Sale, error) {
	sale, err := tx.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	items, err := tx.ListSaleItems(ctx, saleID)
	if err != nil {
		return nil, err
	}
	next := ledger.Recalculate(*sale, items)
	return tx.UpdateSaleTotals(ctx, next)
}

// lockSale loads a sale and takes its customer's lock for the rest of the
// unit of work.
func lockSale(ctx context.Context, tx store.Tx, saleID string) (*domain.Sale, error) {
	sale, err := tx.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if err := tx.LockCustomer(ctx, sale.CustomerPhone); err != nil {
		return nil, err
	}
	return sale, nil
}

func (s *Service) AddSaleItem(ctx context.Context, saleID string, input domain.SaleItemInput) (*domain.SaleItem, error) {
	if err := s.check(input); err != nil {
		return nil, err
	}
	if err := money("rate", input.Rate); err != nil {
		return nil, err
	}

	var item *domain.SaleItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := lockSale(ctx, tx, saleID); err != nil {
			return err
		}
		added, err := s.addItemTx(ctx, tx, saleID, input)
		if err != nil {
			return err
		}
		if _, err := recalculateTx(ctx, tx, saleID); err != nil {
			return err
		}
		item = added
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordStockMoves(domain.MovementSale, 1)
	s.committed(ctx, "sale_item_add", "sale", saleID, fmt.Sprintf("item=%s,color=%s,qty=%d", item.ID, item.ColorID, item.Quantity))
	return item, nil
}

func (s *Service) DeleteSaleItem(ctx context.Context, itemID string) error {
	var item *domain.SaleItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		item, err = tx.GetSaleItem(ctx, itemID)
		if err != nil {
			return err
		}
		if _, err := lockSale(ctx, tx, item.SaleID); err != nil {
			return err
		}
		return removeItemTx(ctx, tx, *item, domain.MovementItemDelete)
	})
	if err != nil {
		return err
	}

	s.recordStockMoves(domain.MovementItemDelete, 1)
	s.committed(ctx, "sale_item_delete", "sale", item.SaleID, fmt.Sprintf("item=%s,color=%s,qty=%d", item.ID, item.ColorID, item.Quantity))
	return nil
}

// removeItemTx puts the whole line back in stock, deletes it and
// recalculates the sale.
func removeItemTx(ctx context.Context, tx store.Tx, item domain.SaleItem, reason string) error {
	if _, err := tx.AdjustStock(ctx, domain.StockAdjustment{
		ColorID:     item.ColorID,
		Delta:       item.Quantity,
		Reason:      reason,
		ReferenceID: item.SaleID,
	}); err != nil {
		return err
	}
	if err := tx.DeleteSaleItem(ctx, item.ID); err != nil {
		return err
	}
	_, err := recalculateTx(ctx, tx, item.SaleID)
	return err
}

// ReturnSaleItem takes quantity back from a line. Returning the full
// quantity removes the line.
func (s *Service) ReturnSaleItem(ctx context.Context, itemID string, req domain.ReturnItemRequest) error {
	if err := s.check(req); err != nil {
		return err
	}
	if req.Quantity <= 0 {
		return fmt.Errorf("%w: return quantity must be greater than zero", store.ErrValidation)
	}

	var item *domain.SaleItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		item, err = tx.GetSaleItem(ctx, itemID)
		if err != nil {
			return err
		}
		if req.Quantity > item.Quantity {
			return ErrReturnExceedsPurchase
		}
		if _, err := lockSale(ctx, tx, item.SaleID); err != nil {
			return err
		}

		if err := tx.InsertReturn(ctx, domain.SaleReturn{
			ID:         xid.New("ret"),
			SaleID:     item.SaleID,
			SaleItemID: item.ID,
			ColorID:    item.ColorID,
			Quantity:   req.Quantity,
			Reason:     strings.TrimSpace(req.Reason),
			CreatedAt:  s.now(),
		}); err != nil {
			return err
		}

		if req.Quantity == item.Quantity {
			return removeItemTx(ctx, tx, *item, domain.MovementReturn)
		}

		remaining := item.Quantity - req.Quantity
		if _, err := tx.UpdateSaleItem(ctx, domain.SaleItem{
			ID:       item.ID,
			Quantity: remaining,
			Subtotal: ledger.LineSubtotal(remaining, item.Rate),
		}); err != nil {
			return err
		}
		if _, err := tx.AdjustStock(ctx, domain.StockAdjustment{
			ColorID:     item.ColorID,
			Delta:       req.Quantity,
			Reason:      domain.MovementReturn,
			ReferenceID: item.SaleID,
		}); err != nil {
			return err
		}
		_, err = recalculateTx(ctx, tx, item.SaleID)
		return err
	})
	if err != nil {
		return err
	}

	s.recordStockMoves(domain.MovementReturn, 1)
	s.committed(ctx, "sale_item_return", "sale", item.SaleID, fmt.Sprintf("item=%s,qty=%d,reason=%s", item.ID, req.Quantity, req.Reason))
	return nil
}

func (s *Service) UpdateSalePayment(ctx context.Context, saleID string, amount decimal.Decimal) (*domain.Sale, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, ledger.ErrNonPositiveAmount)
	}
	if err := money("amount", amount); err != nil {
		return nil, err
	}

	var updated *domain.Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sale, err := lockSale(ctx, tx, saleID)
		if err != nil {
			return err
		}
		updated, err = s.applyPaymentTx(ctx, tx, *sale, amount, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PaymentApplied("sale", amount.InexactFloat64())
	s.committed(ctx, "sale_payment", "sale", saleID, fmt.Sprintf("amount=%s,status=%s", amount.StringFixed(2), updated.PaymentStatus))
	return updated, nil
}

// applyPaymentTx adds amount to the sale's paid total, re-derives its
// status and writes the payment row. Both single-sale payments and
// customer allocations go through here.
func (s *Service) applyPaymentTx(ctx context.Context, tx store.Tx, sale domain.Sale, amount decimal.Decimal, batchID string) (*domain.Sale, error) {
	sale.AmountPaid = sale.AmountPaid.Add(amount)
	sale.PaymentStatus = ledger.PaymentStatusFor(sale.TotalAmount, sale.AmountPaid)
	updated, err := tx.UpdateSaleTotals(ctx, sale)
	if err != nil {
		return nil, err
	}
	if err := tx.InsertPayment(ctx, domain.SalePayment{
		ID:        xid.New("pay"),
		SaleID:    sale.ID,
		Amount:    amount,
		BatchID:   batchID,
		CreatedAt: s.now(),
	}); err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteSale restocks every line, then removes the sale with its items,
// payments and returns.
func (s *Service) DeleteSale(ctx context.Context, saleID string) error {
	var lines int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := lockSale(ctx, tx, saleID); err != nil {
			return err
		}
		items, err := tx.ListSaleItems(ctx, saleID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if _, err := tx.AdjustStock(ctx, domain.StockAdjustment{
				ColorID:     item.ColorID,
				Delta:       item.Quantity,
				Reason:      domain.MovementSaleDelete,
				ReferenceID: saleID,
			}); err != nil {
				return err
			}
		}
		lines = len(items)
		return tx.DeleteSale(ctx, saleID)
	})
	if err != nil {
		return err
	}

	s.recordStockMoves(domain.MovementSaleDelete, lines)
	s.committed(ctx, "sale_delete", "sale", saleID, fmt.Sprintf("items=%d", lines))
	return nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (*domain.SaleDetail, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.ListSaleLines(ctx, saleID)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPayments(ctx, saleID)
	if err != nil {
		return nil, err
	}
	returns, err := s.repo.ListReturns(ctx, saleID)
	if err != nil {
		return nil, err
	}
	return &domain.SaleDetail{Sale: *sale, Items: lines, Payments: payments, Returns: returns}, nil
}

type SaleQuery struct {
	Status string
	Phone  string
	From   string
	To     string
	Limit  int
}

func (s *Service) ListSales(ctx context.Context, q SaleQuery) ([]domain.Sale, error) {
	filter := domain.SaleFilter{Limit: q.Limit}
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 200
	}
	for _, raw := range strings.Split(q.Status, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		status := domain.PaymentStatus(strings.ToLower(raw))
		if !status.Valid() {
			return nil, fmt.Errorf("%w: unknown payment status %q", store.ErrValidation, raw)
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	if q.Phone = strings.TrimSpace(q.Phone); q.Phone != "" {
		key, err := s.normalizePhone(q.Phone)
		if err != nil {
			return nil, err
		}
		filter.Phone = key
	}
	loc := s.now().Location()
	if q.From != "" {
		from, err := parseDate(q.From, loc)
		if err != nil {
			return nil, err
		}
		filter.From = from
	}
	if q.To != "" {
		to, err := parseDate(q.To, loc)
		if err != nil {
			return nil, err
		}
		filter.To = to.AddDate(0, 0, 1)
	}
	return s.repo.ListSales(ctx, filter)
}

// ListUnpaidSales returns every unpaid or partial sale, newest first.
func (s *Service) ListUnpaidSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx, domain.SaleFilter{Statuses: []domain.PaymentStatus{domain.PaymentUnpaid, domain.PaymentPartial}})
}

func (s *Service) recordStockMoves(reason string, n int) {
	for i := 0; i < n; i++ {
		s.metrics.StockAdjusted(reason)
	}
}
