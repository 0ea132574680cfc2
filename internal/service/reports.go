package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"paintstore/backend/internal/cache"
	"paintstore/backend/internal/domain"
	"paintstore/backend/internal/ledger"
	"paintstore/backend/internal/store"
)

const (
	dateLayout       = "2006-01-02"
	recentSalesLimit = 5
	dailySeriesDays  = 30
)

func parseDate(raw string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", store.ErrValidation, raw)
	}
	return t, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DashboardStats is cached per day until the next write. Concurrent
// requests on a cold cache share one build.
func (s *Service) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	now := s.now()
	key := cache.Key("dashboard", now.Format(dateLayout))

	v, err, _ := s.flight.Do(key, func() (any, error) {
		var stats domain.DashboardStats
		err := s.cache.FetchJSON(ctx, key, &stats, func(ctx context.Context) (any, error) {
			started := time.Now()
			built, err := s.buildDashboard(ctx, now)
			s.metrics.ObserveDashboardBuild(time.Since(started))
			return built, err
		})
		return stats, err
	})
	if err != nil {
		return domain.DashboardStats{}, err
	}
	return v.(domain.DashboardStats), nil
}

func (s *Service) buildDashboard(ctx context.Context, now time.Time) (domain.DashboardStats, error) {
	today := startOfDay(now)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
	seriesStart := today.AddDate(0, 0, -(dailySeriesDays - 1))
	windowStart := monthStart
	if seriesStart.Before(windowStart) {
		windowStart = seriesStart
	}

	stats := domain.DashboardStats{GeneratedAt: now}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sales, err := s.repo.ListSales(gctx, domain.SaleFilter{From: windowStart})
		if err != nil {
			return err
		}
		stats.TodaySales = periodTotals(sales, today)
		stats.MonthlySales = periodTotals(sales, monthStart)
		stats.DailySeries = dailySeries(sales, seriesStart, dailySeriesDays)
		return nil
	})
	g.Go(func() error {
		inv, err := s.inventoryTotals(gctx)
		if err != nil {
			return err
		}
		stats.Inventory = inv
		return nil
	})
	g.Go(func() error {
		open, err := s.ListUnpaidSales(gctx)
		if err != nil {
			return err
		}
		stats.UnpaidBills = unpaidTotals(open)
		return nil
	})
	g.Go(func() error {
		recent, err := s.repo.ListSales(gctx, domain.SaleFilter{Limit: recentSalesLimit})
		if err != nil {
			return err
		}
		stats.RecentSales = recent
		return nil
	})

	if err := g.Wait(); err != nil {
		return domain.DashboardStats{}, err
	}
	return stats, nil
}

func periodTotals(sales []domain.Sale, from time.Time) domain.PeriodTotals {
	out := domain.PeriodTotals{Revenue: decimal.Zero}
	for _, sale := range sales {
		if sale.CreatedAt.Before(from) {
			continue
		}
		out.Revenue = out.Revenue.Add(sale.TotalAmount)
		out.Transactions++
	}
	return out
}

// dailySeries buckets sales per calendar day, zero-filled, oldest first.
func dailySeries(sales []domain.Sale, start time.Time, days int) []domain.DailyRevenue {
	series := make([]domain.DailyRevenue, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i).Format(dateLayout)
		series[i] = domain.DailyRevenue{Date: date, Revenue: decimal.Zero}
		index[date] = i
	}
	for _, sale := range sales {
		i, ok := index[sale.CreatedAt.In(start.Location()).Format(dateLayout)]
		if !ok {
			continue
		}
		series[i].Revenue = series[i].Revenue.Add(sale.TotalAmount)
		series[i].Transactions++
	}
	return series
}

func unpaidTotals(open []domain.Sale) domain.UnpaidTotals {
	out := domain.UnpaidTotals{TotalOutstanding: decimal.Zero}
	phones := make(map[string]struct{})
	for _, sale := range open {
		out.Count++
		out.TotalOutstanding = out.TotalOutstanding.Add(sale.Outstanding())
		phones[sale.CustomerPhone] = struct{}{}
	}
	out.Customers = len(phones)
	return out
}

func (s *Service) inventoryTotals(ctx context.Context) (domain.InventoryTotals, error) {
	var products []domain.Product
	var variants []domain.Variant
	var units []domain.StockUnit

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		products, err = s.repo.ListProducts(gctx)
		return err
	})
	g.Go(func() (err error) {
		variants, err = s.repo.ListVariants(gctx, "")
		return err
	})
	g.Go(func() (err error) {
		units, err = s.repo.ListStockUnits(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.InventoryTotals{}, err
	}

	out := domain.InventoryTotals{
		TotalProducts: len(products),
		TotalVariants: len(variants),
		TotalColors:   len(units),
		StockValue:    decimal.Zero,
	}
	for _, u := range units {
		row := s.inventoryRow(u)
		if row.OutOfStock {
			out.OutOfStock++
		} else if row.LowStock {
			out.LowStock++
		}
		out.StockValue = out.StockValue.Add(row.StockValue)
	}
	return out, nil
}

func (s *Service) inventoryRow(u domain.StockUnit) domain.InventoryRow {
	qty := u.Color.StockQuantity
	value := decimal.Zero
	if qty > 0 {
		value = ledger.LineSubtotal(qty, u.Variant.Rate)
	}
	return domain.InventoryRow{
		ColorID:       u.Color.ID,
		Company:       u.Product.Company,
		ProductName:   u.Product.ProductName,
		PackingSize:   u.Variant.PackingSize,
		ColorName:     u.Color.ColorName,
		ColorCode:     u.Color.ColorCode,
		StockQuantity: qty,
		Rate:          u.Variant.Rate,
		StockValue:    value,
		LowStock:      qty > 0 && qty <= s.lowStockThreshold,
		OutOfStock:    qty <= 0,
	}
}

func (s *Service) InventoryReport(ctx context.Context) (domain.InventoryReport, error) {
	units, err := s.repo.ListStockUnits(ctx)
	if err != nil {
		return domain.InventoryReport{}, err
	}
	report := domain.InventoryReport{Rows: make([]domain.InventoryRow, 0, len(units)), TotalValue: decimal.Zero}
	for _, u := range units {
		row := s.inventoryRow(u)
		report.Rows = append(report.Rows, row)
		if row.StockQuantity > 0 {
			report.TotalUnits += row.StockQuantity
		}
		report.TotalValue = report.TotalValue.Add(row.StockValue)
	}
	return report, nil
}

func (s *Service) CustomerDebtReport(ctx context.Context) (domain.CustomerDebtReport, error) {
	accounts, err := s.ListCustomerAccounts(ctx)
	if err != nil {
		return domain.CustomerDebtReport{}, err
	}
	report := domain.CustomerDebtReport{Customers: accounts, TotalOutstanding: decimal.Zero}
	for _, a := range accounts {
		report.TotalOutstanding = report.TotalOutstanding.Add(a.TotalOutstanding)
	}
	return report, nil
}

// SalesReport buckets sales in [StartDate, EndDate] by day, ISO week or
// month. Both dates default to the last 30 days.
func (s *Service) SalesReport(ctx context.Context, q domain.SalesReportQuery) (domain.SalesReport, error) {
	now := s.now()
	loc := now.Location()
	groupBy := strings.ToLower(strings.TrimSpace(q.GroupBy))
	if groupBy == "" {
		groupBy = "day"
	}
	if groupBy != "day" && groupBy != "week" && groupBy != "month" {
		return domain.SalesReport{}, fmt.Errorf("%w: groupBy must be day, week or month", store.ErrValidation)
	}

	end := startOfDay(now)
	if q.EndDate != "" {
		parsed, err := parseDate(q.EndDate, loc)
		if err != nil {
			return domain.SalesReport{}, err
		}
		end = parsed
	}
	start := end.AddDate(0, 0, -(dailySeriesDays - 1))
	if q.StartDate != "" {
		parsed, err := parseDate(q.StartDate, loc)
		if err != nil {
			return domain.SalesReport{}, err
		}
		start = parsed
	}
	if end.Before(start) {
		return domain.SalesReport{}, fmt.Errorf("%w: endDate is before startDate", store.ErrValidation)
	}

	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{From: start, To: end.AddDate(0, 0, 1)})
	if err != nil {
		return domain.SalesReport{}, err
	}

	report := domain.SalesReport{
		StartDate: start.Format(dateLayout),
		EndDate:   end.Format(dateLayout),
		GroupBy:   groupBy,
		Buckets:   make([]domain.SalesBucket, 0),
		Revenue:   decimal.Zero,
		Collected: decimal.Zero,
	}
	index := make(map[string]int)
	for i := len(sales) - 1; i >= 0; i-- {
		sale := sales[i]
		period := bucketLabel(sale.CreatedAt.In(loc), groupBy)
		at, ok := index[period]
		if !ok {
			at = len(report.Buckets)
			index[period] = at
			report.Buckets = append(report.Buckets, domain.SalesBucket{
				Period:      period,
				Revenue:     decimal.Zero,
				Collected:   decimal.Zero,
				Outstanding: decimal.Zero,
			})
		}
		b := &report.Buckets[at]
		b.Transactions++
		b.Revenue = b.Revenue.Add(sale.TotalAmount)
		b.Collected = b.Collected.Add(sale.AmountPaid)
		b.Outstanding = b.Outstanding.Add(sale.Outstanding())
		report.Revenue = report.Revenue.Add(sale.TotalAmount)
		report.Collected = report.Collected.Add(sale.AmountPaid)
	}
	return report, nil
}

func bucketLabel(t time.Time, groupBy string) string {
	switch groupBy {
	case "week":
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case "month":
		return t.Format("2006-01")
	}
	return t.Format(dateLayout)
}
