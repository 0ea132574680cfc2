package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"paintstore/backend/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPaymentStatusFor(t *testing.T) {
	cases := []struct {
		total, paid string
		want        domain.PaymentStatus
	}{
		{"100", "0", domain.PaymentUnpaid},
		{"100", "0.01", domain.PaymentPartial},
		{"100", "99.99", domain.PaymentPartial},
		{"100", "100", domain.PaymentPaid},
		{"100", "150", domain.PaymentPaid},
		{"0", "0", domain.PaymentPaid},
	}
	for _, tc := range cases {
		got := PaymentStatusFor(d(tc.total), d(tc.paid))
		require.Equal(t, tc.want, got, "total=%s paid=%s", tc.total, tc.paid)
	}
}

func TestRecalculateKeepsAmountPaid(t *testing.T) {
	sale := domain.Sale{ID: "s1", AmountPaid: d("150"), TotalAmount: d("999")}
	items := []domain.SaleItem{
		{Quantity: 2, Rate: d("100"), Subtotal: LineSubtotal(2, d("100"))},
		{Quantity: 1, Rate: d("80.50"), Subtotal: LineSubtotal(1, d("80.50"))},
	}

	got := Recalculate(sale, items)
	require.True(t, got.TotalAmount.Equal(d("280.50")))
	require.True(t, got.AmountPaid.Equal(d("150")))
	require.Equal(t, domain.PaymentPartial, got.PaymentStatus)

	empty := Recalculate(sale, nil)
	require.True(t, empty.TotalAmount.IsZero())
	require.Equal(t, domain.PaymentPaid, empty.PaymentStatus)
}

func TestConsolidateGroupsOpenBillsByPhone(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sales := []domain.Sale{
		{ID: "b2", CustomerName: "Ali", CustomerPhone: "+923001111111", TotalAmount: d("300"), AmountPaid: d("0"), PaymentStatus: domain.PaymentUnpaid, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "b1", CustomerName: "Ali K", CustomerPhone: "+923001111111", TotalAmount: d("200"), AmountPaid: d("50"), PaymentStatus: domain.PaymentPartial, CreatedAt: base},
		{ID: "c1", CustomerName: "Sara", CustomerPhone: "+923002222222", TotalAmount: d("900"), AmountPaid: d("0"), PaymentStatus: domain.PaymentUnpaid, CreatedAt: base.Add(time.Hour)},
		{ID: "p1", CustomerName: "Ali", CustomerPhone: "+923001111111", TotalAmount: d("50"), AmountPaid: d("50"), PaymentStatus: domain.PaymentPaid, CreatedAt: base},
	}

	accounts := Consolidate(sales)
	require.Len(t, accounts, 2)

	require.Equal(t, "+923002222222", accounts[0].CustomerPhone)
	ali := accounts[1]
	require.Equal(t, 2, ali.BillCount)
	require.Equal(t, "b1", ali.Bills[0].ID)
	require.Equal(t, "b2", ali.Bills[1].ID)
	require.Equal(t, "Ali", ali.CustomerName)
	require.True(t, ali.TotalAmount.Equal(d("500")))
	require.True(t, ali.TotalPaid.Equal(d("50")))
	require.True(t, ali.TotalOutstanding.Equal(d("450")))
	require.True(t, ali.OldestBillDate.Equal(base))
}

func TestPlanAllocationOldestFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	acct := Consolidate([]domain.Sale{
		{ID: "b2", CustomerPhone: "p", TotalAmount: d("300"), AmountPaid: d("0"), PaymentStatus: domain.PaymentUnpaid, CreatedAt: base.Add(time.Hour)},
		{ID: "b1", CustomerPhone: "p", TotalAmount: d("200"), AmountPaid: d("50"), PaymentStatus: domain.PaymentPartial, CreatedAt: base},
	})[0]

	plan, err := PlanAllocation(acct, d("200"))
	require.NoError(t, err)
	require.Len(t, plan, 2)
	require.Equal(t, "b1", plan[0].SaleID)
	require.True(t, plan[0].Applied.Equal(d("150")))
	require.Equal(t, "b2", plan[1].SaleID)
	require.True(t, plan[1].Applied.Equal(d("50")))

	exact, err := PlanAllocation(acct, d("100"))
	require.NoError(t, err)
	require.Len(t, exact, 1)
	require.True(t, exact[0].Applied.Equal(d("100")))
}

func TestPlanAllocationSumsExactly(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sales := make([]domain.Sale, 0, 3)
	for i, total := range []string{"33.33", "33.33", "33.34"} {
		sales = append(sales, domain.Sale{
			ID:            string(rune('a' + i)),
			CustomerPhone: "p",
			TotalAmount:   d(total),
			AmountPaid:    decimal.Zero,
			PaymentStatus: domain.PaymentUnpaid,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		})
	}
	acct := Consolidate(sales)[0]

	plan, err := PlanAllocation(acct, d("100"))
	require.NoError(t, err)
	sum := decimal.Zero
	for _, a := range plan {
		sum = sum.Add(a.Applied)
	}
	require.True(t, sum.Equal(d("100")))
}

func TestPlanAllocationRejectsBadAmounts(t *testing.T) {
	acct := Consolidate([]domain.Sale{
		{ID: "b1", CustomerPhone: "p", TotalAmount: d("100"), AmountPaid: decimal.Zero, PaymentStatus: domain.PaymentUnpaid},
	})[0]

	_, err := PlanAllocation(acct, decimal.Zero)
	require.True(t, errors.Is(err, ErrNonPositiveAmount))

	_, err = PlanAllocation(acct, d("-5"))
	require.True(t, errors.Is(err, ErrNonPositiveAmount))

	_, err = PlanAllocation(acct, d("100.01"))
	require.True(t, errors.Is(err, ErrExceedsBalance))

	_, err = PlanAllocation(domain.CustomerAccount{}, d("1"))
	require.True(t, errors.Is(err, ErrNoOpenBills))
}
