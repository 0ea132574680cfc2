package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"paintstore/backend/internal/cache"
	"paintstore/backend/internal/domain"
	"paintstore/backend/internal/ledger"
	"paintstore/backend/internal/lock"
	"paintstore/backend/internal/store"
	"paintstore/backend/internal/store/memory"
)

const (
	alicePhone = "03001234567"
	aliceKey   = "+923001234567"
	bobPhone   = "03219876543"
)

// stepClock advances by step on every reading so creation order is strict.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), step: time.Minute}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

type fixture struct {
	svc   *Service
	repo  *memory.Store
	clock *stepClock
	// white has 50 units at 1000.00, blue 5 units at 250.50, red none.
	white domain.Color
	blue  domain.Color
	red   domain.Color
}

func newFixture(t *testing.T, opts ...func(*Options)) *fixture {
	t.Helper()
	repo := memory.New(store.Options{})
	clock := newStepClock()
	o := Options{Clock: clock.Now, PhoneRegion: "PK"}
	for _, fn := range opts {
		fn(&o)
	}
	svc := New(repo, o)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, domain.ProductRequest{Company: "Nippon", ProductName: "Weatherbond"})
	require.NoError(t, err)
	gallon, err := svc.CreateVariant(ctx, domain.VariantRequest{ProductID: product.ID, PackingSize: "4L", Rate: money2("1000.00")})
	require.NoError(t, err)
	quart, err := svc.CreateVariant(ctx, domain.VariantRequest{ProductID: product.ID, PackingSize: "1L", Rate: money2("250.50")})
	require.NoError(t, err)

	white, err := svc.CreateColor(ctx, domain.ColorRequest{VariantID: gallon.ID, ColorName: "Pure White", StockQuantity: 50})
	require.NoError(t, err)
	blue, err := svc.CreateColor(ctx, domain.ColorRequest{VariantID: quart.ID, ColorName: "Sky Blue", StockQuantity: 5})
	require.NoError(t, err)
	red, err := svc.CreateColor(ctx, domain.ColorRequest{VariantID: quart.ID, ColorName: "Signal Red"})
	require.NoError(t, err)

	return &fixture{svc: svc, repo: repo, clock: clock, white: *white, blue: *blue, red: *red}
}

func money2(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, money2(want).Equal(got), "want %s, got %s", want, got.StringFixed(2))
}

func (f *fixture) stock(t *testing.T, colorID string) int {
	t.Helper()
	c, err := f.repo.GetColor(context.Background(), colorID)
	require.NoError(t, err)
	return c.StockQuantity
}

func (f *fixture) sale(t *testing.T, phone string, paid string, items ...domain.SaleItemInput) domain.CreateSaleResponse {
	t.Helper()
	resp, err := f.svc.CreateSale(context.Background(), domain.CreateSaleRequest{
		CustomerName:  "Alice",
		CustomerPhone: phone,
		AmountPaid:    money2(paid),
		Items:         items,
	})
	require.NoError(t, err)
	return resp
}

func line(c domain.Color, qty int, rate string) domain.SaleItemInput {
	return domain.SaleItemInput{ColorID: c.ID, Quantity: qty, Rate: money2(rate)}
}

// seedOpenBill writes an open bill directly, bypassing the merge rule, the
// way imported or legacy data can hold several open bills per phone.
func (f *fixture) seedOpenBill(t *testing.T, phone string, total string, paid string) domain.Sale {
	t.Helper()
	var sale *domain.Sale
	err := f.repo.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		sale, err = tx.InsertSale(ctx, domain.Sale{
			CustomerName:  "Alice",
			CustomerPhone: phone,
			TotalAmount:   money2(total),
			AmountPaid:    money2(paid),
			PaymentStatus: ledger.PaymentStatusFor(money2(total), money2(paid)),
			CreatedAt:     f.clock.Now(),
		})
		if err != nil {
			return err
		}
		_, err = tx.InsertSaleItem(ctx, domain.SaleItem{SaleID: sale.ID, ColorID: f.white.ID, Quantity: 1, Rate: money2(total), Subtotal: money2(total)})
		return err
	})
	require.NoError(t, err)
	return *sale
}

func TestCreateSaleRecomputesTotalsAndTakesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.CreateSale(ctx, domain.CreateSaleRequest{
		CustomerName:  "  Alice  ",
		CustomerPhone: alicePhone,
		TotalAmount:   money2("1.00"),
		AmountPaid:    money2("500.00"),
		Items: []domain.SaleItemInput{
			{ColorID: f.white.ID, Quantity: 2, Rate: money2("1000.00"), Subtotal: money2("3.00")},
			{ColorID: f.blue.ID, Quantity: 3, Rate: money2("250.50")},
		},
	})
	require.NoError(t, err)
	require.False(t, resp.Merged)
	require.Equal(t, "Alice", resp.CustomerName)
	require.Equal(t, aliceKey, resp.CustomerPhone)
	requireMoney(t, "2751.50", resp.TotalAmount)
	requireMoney(t, "500.00", resp.AmountPaid)
	require.Equal(t, domain.PaymentPartial, resp.PaymentStatus)
	require.Len(t, resp.Items, 2)
	requireMoney(t, "2000.00", resp.Items[0].Subtotal)

	require.Equal(t, 48, f.stock(t, f.white.ID))
	require.Equal(t, 2, f.stock(t, f.blue.ID))

	detail, err := f.svc.GetSale(ctx, resp.ID)
	require.NoError(t, err)
	require.Len(t, detail.Items, 2)
	require.Equal(t, "Pure White", detail.Items[0].ColorName)
	require.Equal(t, "Weatherbond", detail.Items[0].ProductName)
	require.Len(t, detail.Payments, 1)
	requireMoney(t, "500.00", detail.Payments[0].Amount)
}

func TestCreateSaleZeroTotalIsPaid(t *testing.T) {
	f := newFixture(t)

	resp := f.sale(t, alicePhone, "0", line(f.white, 1, "0"))
	require.Equal(t, domain.PaymentPaid, resp.PaymentStatus)
}

func TestCreateSaleMergesIntoOpenBill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.sale(t, alicePhone, "100.00", line(f.white, 1, "1000.00"))
	require.Equal(t, domain.PaymentPartial, first.PaymentStatus)

	second, err := f.svc.CreateSale(ctx, domain.CreateSaleRequest{
		CustomerName:  "Alice K",
		CustomerPhone: "+92 300 1234567",
		AmountPaid:    money2("400.00"),
		Items:         []domain.SaleItemInput{line(f.blue, 2, "250.50")},
	})
	require.NoError(t, err)
	require.True(t, second.Merged)
	require.Equal(t, first.ID, second.ID)
	requireMoney(t, "1501.00", second.TotalAmount)
	requireMoney(t, "100.00", second.AmountPaid)
	require.Equal(t, domain.PaymentPartial, second.PaymentStatus)
	require.Len(t, second.Items, 1)

	open, err := f.repo.ListOpenSalesByPhone(ctx, aliceKey)
	require.NoError(t, err)
	require.Len(t, open, 1)

	items, err := f.repo.ListSaleItems(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 3, f.stock(t, f.blue.ID))

	payments, err := f.repo.ListPayments(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
}

func TestCreateSaleFullyPaidNeverMerges(t *testing.T) {
	f := newFixture(t)

	open := f.sale(t, alicePhone, "0", line(f.white, 1, "1000.00"))
	paid := f.sale(t, alicePhone, "250.50", line(f.blue, 1, "250.50"))

	require.False(t, paid.Merged)
	require.NotEqual(t, open.ID, paid.ID)
	require.Equal(t, domain.PaymentPaid, paid.PaymentStatus)
}

func TestCreateSaleOversellRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateSale(ctx, domain.CreateSaleRequest{
		CustomerName:  "Alice",
		CustomerPhone: alicePhone,
		Items:         []domain.SaleItemInput{line(f.white, 2, "1000.00"), line(f.blue, 6, "250.50")},
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	require.ErrorIs(t, err, store.ErrConflict)

	require.Equal(t, 50, f.stock(t, f.white.ID))
	require.Equal(t, 5, f.stock(t, f.blue.ID))
	sales, err := f.repo.ListSales(ctx, domain.SaleFilter{})
	require.NoError(t, err)
	require.Empty(t, sales)
}

func TestCreateSaleRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	valid := func() domain.CreateSaleRequest {
		return domain.CreateSaleRequest{CustomerName: "Alice", CustomerPhone: alicePhone, Items: []domain.SaleItemInput{line(f.white, 1, "1000.00")}}
	}

	cases := map[string]func(r *domain.CreateSaleRequest){
		"missing name":    func(r *domain.CreateSaleRequest) { r.CustomerName = " " },
		"no items":        func(r *domain.CreateSaleRequest) { r.Items = nil },
		"zero quantity":   func(r *domain.CreateSaleRequest) { r.Items[0].Quantity = 0 },
		"negative rate":   func(r *domain.CreateSaleRequest) { r.Items[0].Rate = money2("-1") },
		"sub-cent rate":   func(r *domain.CreateSaleRequest) { r.Items[0].Rate = money2("10.005") },
		"negative paid":   func(r *domain.CreateSaleRequest) { r.AmountPaid = money2("-5") },
		"bad phone":       func(r *domain.CreateSaleRequest) { r.CustomerPhone = "12" },
		"unknown color":   func(r *domain.CreateSaleRequest) { r.Items[0].ColorID = "col-missing" },
		"missing colorId": func(r *domain.CreateSaleRequest) { r.Items[0].ColorID = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := valid()
			mutate(&req)
			_, err := f.svc.CreateSale(ctx, req)
			require.ErrorIs(t, err, store.ErrValidation)
		})
	}
	require.Equal(t, 50, f.stock(t, f.white.ID))
}

func TestAddSaleItemReopensPaidSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	paid := f.sale(t, alicePhone, "1000.00", line(f.white, 1, "1000.00"))
	require.Equal(t, domain.PaymentPaid, paid.PaymentStatus)

	item, err := f.svc.AddSaleItem(ctx, paid.ID, line(f.blue, 2, "250.50"))
	require.NoError(t, err)
	requireMoney(t, "501.00", item.Subtotal)

	sale, err := f.repo.GetSale(ctx, paid.ID)
	require.NoError(t, err)
	requireMoney(t, "1501.00", sale.TotalAmount)
	requireMoney(t, "1000.00", sale.AmountPaid)
	require.Equal(t, domain.PaymentPartial, sale.PaymentStatus)
	require.Equal(t, 3, f.stock(t, f.blue.ID))

	found, err := f.svc.FindOpenSaleByPhone(ctx, alicePhone)
	require.NoError(t, err)
	require.Equal(t, paid.ID, found.ID)

	_, err = f.svc.AddSaleItem(ctx, "sale-missing", line(f.blue, 1, "250.50"))
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.svc.AddSaleItem(ctx, paid.ID, line(f.red, 0, "250.50"))
	require.ErrorIs(t, err, store.ErrValidation)
}

func TestDeleteSaleItemRestocksAndRecalculates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp := f.sale(t, alicePhone, "0", line(f.white, 2, "1000.00"), line(f.blue, 1, "250.50"))
	require.Equal(t, 48, f.stock(t, f.white.ID))

	require.NoError(t, f.svc.DeleteSaleItem(ctx, resp.Items[0].ID))
	require.Equal(t, 50, f.stock(t, f.white.ID))
	sale, err := f.repo.GetSale(ctx, resp.ID)
	require.NoError(t, err)
	requireMoney(t, "250.50", sale.TotalAmount)
	require.Equal(t, domain.PaymentUnpaid, sale.PaymentStatus)

	require.NoError(t, f.svc.DeleteSaleItem(ctx, resp.Items[1].ID))
	sale, err = f.repo.GetSale(ctx, resp.ID)
	require.NoError(t, err)
	require.True(t, sale.TotalAmount.IsZero())
	require.Equal(t, domain.PaymentPaid, sale.PaymentStatus)

	require.ErrorIs(t, f.svc.DeleteSaleItem(ctx, resp.Items[1].ID), store.ErrNotFound)
}

func TestReturnSaleItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp := f.sale(t, alicePhone, "1000.00", line(f.white, 4, "1000.00"))
	itemID := resp.Items[0].ID

	err := f.svc.ReturnSaleItem(ctx, itemID, domain.ReturnItemRequest{Quantity: 5})
	require.ErrorIs(t, err, ErrReturnExceedsPurchase)
	require.ErrorIs(t, f.svc.ReturnSaleItem(ctx, itemID, domain.ReturnItemRequest{Quantity: 0}), store.ErrValidation)

	require.NoError(t, f.svc.ReturnSaleItem(ctx, itemID, domain.ReturnItemRequest{Quantity: 1, Reason: "wrong shade"}))
	item, err := f.repo.GetSaleItem(ctx, itemID)
	require.NoError(t, err)
	require.Equal(t, 3, item.Quantity)
	requireMoney(t, "3000.00", item.Subtotal)
	require.Equal(t, 47, f.stock(t, f.white.ID))
	sale, err := f.repo.GetSale(ctx, resp.ID)
	require.NoError(t, err)
	requireMoney(t, "3000.00", sale.TotalAmount)
	require.Equal(t, domain.PaymentPartial, sale.PaymentStatus)

	require.NoError(t, f.svc.ReturnSaleItem(ctx, itemID, domain.ReturnItemRequest{Quantity: 3}))
	_, err = f.repo.GetSaleItem(ctx, itemID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Equal(t, 50, f.stock(t, f.white.ID))

	sale, err = f.repo.GetSale(ctx, resp.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentPaid, sale.PaymentStatus)

	returns, err := f.repo.ListReturns(ctx, resp.ID)
	require.NoError(t, err)
	require.Len(t, returns, 2)
	require.Equal(t, "wrong shade", returns[0].Reason)

	moves, err := f.repo.ListStockMovements(ctx, f.white.ID, 10)
	require.NoError(t, err)
	require.Equal(t, domain.MovementReturn, moves[0].Reason)
	require.Equal(t, 3, moves[0].Delta)
}

func TestUpdateSalePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.sale(t, alicePhone, "0", line(f.white, 1, "1000.00"))

	_, err := f.svc.UpdateSalePayment(ctx, resp.ID, decimal.Zero)
	require.ErrorIs(t, err, store.ErrValidation)
	_, err = f.svc.UpdateSalePayment(ctx, "sale-missing", money2("1"))
	require.ErrorIs(t, err, store.ErrNotFound)

	sale, err := f.svc.UpdateSalePayment(ctx, resp.ID, money2("400.00"))
	require.NoError(t, err)
	require.Equal(t, domain.PaymentPartial, sale.PaymentStatus)

	sale, err = f.svc.UpdateSalePayment(ctx, resp.ID, money2("600.00"))
	require.NoError(t, err)
	require.Equal(t, domain.PaymentPaid, sale.PaymentStatus)
	requireMoney(t, "1000.00", sale.AmountPaid)

	payments, err := f.repo.ListPayments(ctx, resp.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)

	_, err = f.svc.FindOpenSaleByPhone(ctx, alicePhone)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteSaleRestocksEveryLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.sale(t, alicePhone, "100.00", line(f.white, 3, "1000.00"), line(f.blue, 2, "250.50"))

	require.NoError(t, f.svc.DeleteSale(ctx, resp.ID))

	require.Equal(t, 50, f.stock(t, f.white.ID))
	require.Equal(t, 5, f.stock(t, f.blue.ID))
	_, err := f.repo.GetSale(ctx, resp.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	payments, err := f.repo.ListPayments(ctx, "")
	require.NoError(t, err)
	require.Empty(t, payments)
	require.ErrorIs(t, f.svc.DeleteSale(ctx, resp.ID), store.ErrNotFound)
}

func TestAllocatePaymentOldestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	oldest := f.seedOpenBill(t, aliceKey, "100.00", "0")
	middle := f.seedOpenBill(t, aliceKey, "200.00", "50.00")
	newest := f.seedOpenBill(t, aliceKey, "300.00", "0")
	f.seedOpenBill(t, "+923219876543", "999.00", "0")

	account, err := f.svc.GetCustomerAccount(ctx, alicePhone)
	require.NoError(t, err)
	require.Equal(t, 3, account.BillCount)
	requireMoney(t, "550.00", account.TotalOutstanding)

	res, err := f.svc.AllocatePayment(ctx, alicePhone, money2("200.00"))
	require.NoError(t, err)
	require.Len(t, res.Allocations, 2)
	require.Equal(t, oldest.ID, res.Allocations[0].SaleID)
	requireMoney(t, "100.00", res.Allocations[0].Applied)
	require.Equal(t, middle.ID, res.Allocations[1].SaleID)
	requireMoney(t, "100.00", res.Allocations[1].Applied)
	requireMoney(t, "350.00", res.Remaining)

	got, err := f.repo.GetSale(ctx, oldest.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentPaid, got.PaymentStatus)
	got, err = f.repo.GetSale(ctx, middle.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentPartial, got.PaymentStatus)
	requireMoney(t, "150.00", got.AmountPaid)
	got, err = f.repo.GetSale(ctx, newest.ID)
	require.NoError(t, err)
	require.True(t, got.AmountPaid.IsZero())

	payments, err := f.repo.ListPayments(ctx, "")
	require.NoError(t, err)
	require.Len(t, payments, 2)
	for _, p := range payments {
		require.Equal(t, res.BatchID, p.BatchID)
	}
}

func TestAllocatePaymentExactSplitClosesEveryBill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedOpenBill(t, aliceKey, "33.33", "0")
	f.seedOpenBill(t, aliceKey, "33.33", "0")
	f.seedOpenBill(t, aliceKey, "33.34", "0")

	res, err := f.svc.AllocatePayment(ctx, aliceKey, money2("100.00"))
	require.NoError(t, err)
	sum := decimal.Zero
	for _, a := range res.Allocations {
		sum = sum.Add(a.Applied)
	}
	requireMoney(t, "100.00", sum)
	require.True(t, res.Remaining.IsZero())

	open, err := f.repo.ListOpenSalesByPhone(ctx, aliceKey)
	require.NoError(t, err)
	require.Empty(t, open)
}

func TestAllocatePaymentRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AllocatePayment(ctx, alicePhone, money2("10"))
	require.ErrorIs(t, err, store.ErrNotFound)

	f.seedOpenBill(t, aliceKey, "100.00", "0")
	_, err = f.svc.AllocatePayment(ctx, alicePhone, money2("100.01"))
	require.ErrorIs(t, err, store.ErrValidation)
	_, err = f.svc.AllocatePayment(ctx, alicePhone, money2("-1"))
	require.ErrorIs(t, err, store.ErrValidation)
	_, err = f.svc.AllocatePayment(ctx, "abc", money2("1"))
	require.ErrorIs(t, err, store.ErrValidation)

	account, err := f.svc.GetCustomerAccount(ctx, alicePhone)
	require.NoError(t, err)
	requireMoney(t, "100.00", account.TotalOutstanding)
}

type failingRepo struct {
	*memory.Store
	failPaymentAt  int
	failParentRead bool
}

func (r *failingRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return r.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, &failingTx{Tx: tx, failAt: r.failPaymentAt, failParentRead: r.failParentRead})
	})
}

type failingTx struct {
	store.Tx
	failAt         int
	calls          int
	failParentRead bool
}

func (t *failingTx) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if t.failParentRead {
		return nil, errors.New("connection reset")
	}
	return t.Tx.GetProduct(ctx, id)
}

func (t *failingTx) GetVariant(ctx context.Context, id string) (*domain.Variant, error) {
	if t.failParentRead {
		return nil, errors.New("connection reset")
	}
	return t.Tx.GetVariant(ctx, id)
}

func (t *failingTx) InsertPayment(ctx context.Context, payment domain.SalePayment) error {
	t.calls++
	if t.calls == t.failAt {
		return errors.New("disk full")
	}
	return t.Tx.InsertPayment(ctx, payment)
}

func TestAllocatePaymentIsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.seedOpenBill(t, aliceKey, "100.00", "0")
	f.seedOpenBill(t, aliceKey, "100.00", "0")

	svc := New(&failingRepo{Store: f.repo, failPaymentAt: 2}, Options{Clock: f.clock.Now})
	_, err := svc.AllocatePayment(ctx, alicePhone, money2("150.00"))
	require.Error(t, err)

	got, err := f.repo.GetSale(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, got.AmountPaid.IsZero())
	require.Equal(t, domain.PaymentUnpaid, got.PaymentStatus)
	payments, err := f.repo.ListPayments(ctx, "")
	require.NoError(t, err)
	require.Empty(t, payments)
}

func TestCatalogParentLookupErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateColor(ctx, domain.ColorRequest{VariantID: "var-missing", ColorName: "Ochre"})
	require.ErrorIs(t, err, store.ErrValidation)
	_, err = f.svc.CreateVariant(ctx, domain.VariantRequest{ProductID: "prd-missing", PackingSize: "1L", Rate: money2("100")})
	require.ErrorIs(t, err, store.ErrValidation)

	svc := New(&failingRepo{Store: f.repo, failParentRead: true}, Options{Clock: f.clock.Now})
	_, err = svc.CreateColor(ctx, domain.ColorRequest{VariantID: f.white.VariantID, ColorName: "Ochre"})
	require.Error(t, err)
	require.NotErrorIs(t, err, store.ErrValidation)
	_, err = svc.CreateVariant(ctx, domain.VariantRequest{ProductID: "prd-any", PackingSize: "1L", Rate: money2("100")})
	require.Error(t, err)
	require.NotErrorIs(t, err, store.ErrValidation)
}

type stubLocker struct {
	err error
}

func (l stubLocker) Acquire(context.Context, string) (func(), error) {
	return nil, l.err
}

func TestCustomerLockFailures(t *testing.T) {
	ctx := context.Background()
	req := func(f *fixture) domain.CreateSaleRequest {
		return domain.CreateSaleRequest{
			CustomerName:  "Alice",
			CustomerPhone: alicePhone,
			Items:         []domain.SaleItemInput{line(f.white, 1, "1000.00")},
		}
	}

	busy := newFixture(t, func(o *Options) { o.Locker = stubLocker{err: lock.ErrBusy} })
	_, err := busy.svc.CreateSale(ctx, req(busy))
	require.ErrorIs(t, err, store.ErrConflict)
	_, err = busy.svc.AllocatePayment(ctx, alicePhone, money2("10"))
	require.ErrorIs(t, err, store.ErrConflict)

	down := errors.New("dial tcp: connection refused")
	broken := newFixture(t, func(o *Options) { o.Locker = stubLocker{err: down} })
	_, err = broken.svc.CreateSale(ctx, req(broken))
	require.ErrorIs(t, err, down)
	require.NotErrorIs(t, err, store.ErrConflict)
	_, err = broken.svc.AllocatePayment(ctx, alicePhone, money2("10"))
	require.ErrorIs(t, err, down)
	require.NotErrorIs(t, err, store.ErrConflict)
	require.Equal(t, 50, broken.stock(t, broken.white.ID))
}

func TestConcurrentCreateSaleKeepsOneOpenBill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateSale(ctx, domain.CreateSaleRequest{
				CustomerName:  "Alice",
				CustomerPhone: alicePhone,
				Items:         []domain.SaleItemInput{line(f.white, 2, "1000.00")},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	open, err := f.repo.ListOpenSalesByPhone(ctx, aliceKey)
	require.NoError(t, err)
	require.Len(t, open, 1)
	requireMoney(t, "20000.00", open[0].TotalAmount)
	require.Equal(t, 30, f.stock(t, f.white.ID))
}

func TestConcurrentAllocationsNeverOverpay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedOpenBill(t, aliceKey, "300.00", "0")
	f.seedOpenBill(t, aliceKey, "250.00", "0")

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.AllocatePayment(ctx, alicePhone, money2("300.00"))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, store.ErrValidation)
	}
	require.Equal(t, 1, succeeded)

	account, err := f.svc.GetCustomerAccount(ctx, alicePhone)
	require.NoError(t, err)
	requireMoney(t, "250.00", account.TotalOutstanding)
}

func TestDashboardStatsInvalidatedByWrites(t *testing.T) {
	mr := miniredis.RunT(t)
	client := cache.NewRedisClient(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, func(o *Options) {
		o.Cache = cache.NewRedisCache(client, "test", time.Minute)
	})
	ctx := context.Background()

	stats, err := f.svc.DashboardStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, stats.TodaySales.Transactions)
	require.Equal(t, 1, stats.Inventory.TotalProducts)
	require.Equal(t, 2, stats.Inventory.TotalVariants)
	require.Equal(t, 3, stats.Inventory.TotalColors)
	require.Equal(t, 1, stats.Inventory.LowStock)
	require.Equal(t, 1, stats.Inventory.OutOfStock)
	requireMoney(t, "51252.50", stats.Inventory.StockValue)
	require.Len(t, stats.DailySeries, 30)

	f.sale(t, alicePhone, "500.00", line(f.white, 1, "1000.00"))
	f.sale(t, bobPhone, "250.50", line(f.blue, 1, "250.50"))

	stats, err = f.svc.DashboardStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.TodaySales.Transactions)
	requireMoney(t, "1250.50", stats.TodaySales.Revenue)
	requireMoney(t, "1250.50", stats.MonthlySales.Revenue)
	require.Equal(t, 1, stats.UnpaidBills.Count)
	require.Equal(t, 1, stats.UnpaidBills.Customers)
	requireMoney(t, "500.00", stats.UnpaidBills.TotalOutstanding)
	require.Len(t, stats.RecentSales, 2)
	last := stats.DailySeries[len(stats.DailySeries)-1]
	require.Equal(t, "2026-03-10", last.Date)
	require.Equal(t, 2, last.Transactions)
}

func TestDashboardStatsSurvivesRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := cache.NewRedisClient(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, func(o *Options) {
		o.Cache = cache.NewRedisCache(client, "test", time.Minute)
	})
	ctx := context.Background()
	f.sale(t, alicePhone, "0", line(f.white, 1, "1000.00"))
	mr.Close()

	stats, err := f.svc.DashboardStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TodaySales.Transactions)
	require.Equal(t, 3, stats.Inventory.TotalColors)
	requireMoney(t, "1000.00", stats.UnpaidBills.TotalOutstanding)
}

func TestReports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sale(t, alicePhone, "200.00", line(f.white, 1, "1000.00"))
	f.sale(t, bobPhone, "0", line(f.blue, 2, "250.50"))

	debts, err := f.svc.CustomerDebtReport(ctx)
	require.NoError(t, err)
	require.Len(t, debts.Customers, 2)
	require.Equal(t, aliceKey, debts.Customers[0].CustomerPhone)
	requireMoney(t, "1301.00", debts.TotalOutstanding)

	inv, err := f.svc.InventoryReport(ctx)
	require.NoError(t, err)
	require.Len(t, inv.Rows, 3)
	require.Equal(t, 52, inv.TotalUnits)

	report, err := f.svc.SalesReport(ctx, domain.SalesReportQuery{StartDate: "2026-03-01", EndDate: "2026-03-31", GroupBy: "month"})
	require.NoError(t, err)
	require.Len(t, report.Buckets, 1)
	require.Equal(t, "2026-03", report.Buckets[0].Period)
	require.Equal(t, 2, report.Buckets[0].Transactions)
	requireMoney(t, "1501.00", report.Revenue)
	requireMoney(t, "200.00", report.Collected)

	_, err = f.svc.SalesReport(ctx, domain.SalesReportQuery{GroupBy: "hour"})
	require.ErrorIs(t, err, store.ErrValidation)
	_, err = f.svc.SalesReport(ctx, domain.SalesReportQuery{StartDate: "2026-03-31", EndDate: "2026-03-01"})
	require.ErrorIs(t, err, store.ErrValidation)
}

func TestCatalogGuardsAndBulkOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sale(t, alicePhone, "0", line(f.white, 1, "1000.00"))

	require.ErrorIs(t, f.svc.DeleteProduct(ctx, mustVariant(t, f, f.white.VariantID).ProductID), store.ErrConflict)
	require.ErrorIs(t, f.svc.DeleteVariant(ctx, f.white.VariantID), store.ErrConflict)
	require.ErrorIs(t, f.svc.DeleteColor(ctx, f.white.ID), store.ErrConflict)
	require.NoError(t, f.svc.DeleteColor(ctx, f.red.ID))

	results, err := f.svc.BulkUpdateRates(ctx, []domain.RateUpdate{
		{VariantID: f.white.VariantID, Rate: money2("1100.00")},
		{VariantID: "var-missing", Rate: money2("1")},
		{VariantID: f.blue.VariantID, Rate: money2("-2")},
	})
	require.NoError(t, err)
	require.True(t, results[0].Success)
	require.False(t, results[1].Success)
	require.False(t, results[2].Success)
	requireMoney(t, "1100.00", mustVariant(t, f, f.white.VariantID).Rate)

	stockResults, err := f.svc.BulkStockIn(ctx, []domain.StockInRequest{
		{ColorID: f.blue.ID, Quantity: 10},
		{ColorID: f.blue.ID, Quantity: 0},
	})
	require.NoError(t, err)
	require.True(t, stockResults[0].Success)
	require.False(t, stockResults[1].Success)
	require.Equal(t, 15, f.stock(t, f.blue.ID))

	moves, err := f.svc.ListStockMovements(ctx, f.blue.ID, 0)
	require.NoError(t, err)
	require.Len(t, moves, 2)
	require.Equal(t, domain.MovementStockIn, moves[0].Reason)
}

func mustVariant(t *testing.T, f *fixture, id string) *domain.Variant {
	t.Helper()
	v, err := f.repo.GetVariant(context.Background(), id)
	require.NoError(t, err)
	return v
}

func TestSuggestCustomers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sale(t, alicePhone, "0", line(f.white, 1, "1000.00"))
	_, err := f.svc.CreateSale(ctx, domain.CreateSaleRequest{
		CustomerName:  "Bob Painter",
		CustomerPhone: bobPhone,
		AmountPaid:    money2("250.50"),
		Items:         []domain.SaleItemInput{line(f.blue, 1, "250.50")},
	})
	require.NoError(t, err)

	got, err := f.svc.SuggestCustomers(ctx, "0321", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Bob Painter", got[0].CustomerName)

	got, err = f.svc.SuggestCustomers(ctx, "ali", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, aliceKey, got[0].CustomerPhone)
}

func TestBackupRoundTripReplacesData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sale(t, alicePhone, "0", line(f.white, 1, "1000.00"))

	backup, err := f.svc.ExportBackup(ctx)
	require.NoError(t, err)
	require.Len(t, backup.Sales, 1)

	other := newFixture(t)
	require.NoError(t, other.svc.ImportBackup(ctx, *backup))
	sales, err := other.svc.ListUnpaidSales(ctx)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	require.Equal(t, 49, other.stock(t, f.white.ID))

	backup.Version = 99
	require.ErrorIs(t, other.svc.ImportBackup(ctx, *backup), store.ErrValidation)

	logs, err := other.svc.ListAuditLogs(ctx, "", 10)
	require.NoError(t, err)
	require.Equal(t, "database_import", logs[0].Action)
}

func TestImportBackupRejectsInconsistentSales(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sale(t, alicePhone, "0", line(f.white, 1, "1000.00"))

	backup, err := f.svc.ExportBackup(ctx)
	require.NoError(t, err)

	tampered := func(edit func(b *domain.Backup)) domain.Backup {
		b := *backup
		b.Sales = append([]domain.Sale(nil), backup.Sales...)
		b.SaleItems = append([]domain.SaleItem(nil), backup.SaleItems...)
		edit(&b)
		return b
	}
	cases := map[string]domain.Backup{
		"status contradicts balance": tampered(func(b *domain.Backup) { b.Sales[0].PaymentStatus = domain.PaymentPaid }),
		"total differs from items":   tampered(func(b *domain.Backup) { b.Sales[0].TotalAmount = money2("5") }),
		"subtotal differs from rate": tampered(func(b *domain.Backup) { b.SaleItems[0].Subtotal = money2("1") }),
	}

	other := newFixture(t)
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, other.svc.ImportBackup(ctx, b), store.ErrValidation)
		})
	}

	require.NoError(t, other.svc.ImportBackup(ctx, *backup))
	account, err := other.svc.GetCustomerAccount(ctx, alicePhone)
	require.NoError(t, err)
	requireMoney(t, "1000.00", account.TotalOutstanding)
}
