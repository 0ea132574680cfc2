package httpapi

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"paintstore/backend/internal/domain"
	"paintstore/backend/internal/export"
)

func (a *API) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.service.DashboardStats(r.Context())
	if err != nil {
		a.degrade(w, r, "handleDashboardStats", err, domain.DashboardStats{
			RecentSales: []domain.Sale{},
			DailySeries: []domain.DailyRevenue{},
		})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	logs, err := a.service.ListAuditLogs(r.Context(), q.Get("date"), parsePositiveLimit(q.Get("limit"), 100, 500))
	if err != nil {
		a.degrade(w, r, "handleAuditLogs", err, []domain.AuditLog{})
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func salesReportQuery(r *http.Request) domain.SalesReportQuery {
	q := r.URL.Query()
	return domain.SalesReportQuery{
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
		GroupBy:   q.Get("groupBy"),
	}
}

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.SalesReport(r.Context(), salesReportQuery(r))
	if err != nil {
		a.degrade(w, r, "handleSalesReport", err, domain.SalesReport{Buckets: []domain.SalesBucket{}})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleSalesReportExport(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.SalesReport(r.Context(), salesReportQuery(r))
	if err != nil {
		a.fail(w, r, "handleSalesReportExport", err)
		return
	}
	a.writeSpreadsheet(w, r, "sales-report", func(out io.Writer) error {
		return export.Sales(out, report)
	})
}

func (a *API) handleDebtReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.CustomerDebtReport(r.Context())
	if err != nil {
		a.degrade(w, r, "handleDebtReport", err, domain.CustomerDebtReport{Customers: []domain.CustomerAccount{}})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleDebtReportExport(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.CustomerDebtReport(r.Context())
	if err != nil {
		a.fail(w, r, "handleDebtReportExport", err)
		return
	}
	a.writeSpreadsheet(w, r, "customer-debts", func(out io.Writer) error {
		return export.CustomerDebts(out, report)
	})
}

func (a *API) handleInventoryReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.InventoryReport(r.Context())
	if err != nil {
		a.degrade(w, r, "handleInventoryReport", err, domain.InventoryReport{Rows: []domain.InventoryRow{}})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleInventoryReportExport(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.InventoryReport(r.Context())
	if err != nil {
		a.fail(w, r, "handleInventoryReportExport", err)
		return
	}
	a.writeSpreadsheet(w, r, "inventory", func(out io.Writer) error {
		return export.Inventory(out, report)
	})
}

// writeSpreadsheet renders into memory first so a failed render still gets
// a JSON error instead of a truncated file.
func (a *API) writeSpreadsheet(w http.ResponseWriter, r *http.Request, name string, render func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		a.fail(w, r, "writeSpreadsheet", err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-%s.xlsx"`, name, time.Now().Format("2006-01-02")))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (a *API) handleDatabaseExport(w http.ResponseWriter, r *http.Request) {
	backup, err := a.service.ExportBackup(r.Context())
	if err != nil {
		a.fail(w, r, "handleDatabaseExport", err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="paintstore-backup-%s.json"`, backup.ExportedAt.Format("2006-01-02")))
	writeJSON(w, http.StatusOK, backup)
}

func (a *API) handleDatabaseImport(w http.ResponseWriter, r *http.Request) {
	var backup domain.Backup
	if err := decodeJSON(r, &backup); err != nil {
		a.fail(w, r, "handleDatabaseImport", err)
		return
	}
	if err := a.service.ImportBackup(r.Context(), backup); err != nil {
		a.fail(w, r, "handleDatabaseImport", err)
		return
	}
	writeSuccess(w)
}
