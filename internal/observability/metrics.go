package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the HTTP and business collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	salesTotal        *prometheus.CounterVec
	paymentsTotal     *prometheus.CounterVec
	paymentAmount     prometheus.Counter
	stockAdjustments  *prometheus.CounterVec
	dashboardDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paintstore_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paintstore_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	sales := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paintstore_sales_total",
		Help: "Sales written, by outcome (created or merged).",
	}, []string{"outcome"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paintstore_payments_total",
		Help: "Payments applied, by kind (sale or allocation).",
	}, []string{"kind"})
	paymentAmount := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "paintstore_payment_amount_total",
		Help: "Sum of applied payment amounts.",
	})
	stock := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paintstore_stock_adjustments_total",
		Help: "Stock adjustments by reason.",
	}, []string{"reason"})
	dashboard := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "paintstore_dashboard_build_seconds",
		Help:    "Time spent aggregating dashboard stats on a cache miss.",
		Buckets: prometheus.DefBuckets,
	})
	registry.MustRegister(requests, duration, sales, payments, paymentAmount, stock, dashboard)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		salesTotal:        sales,
		paymentsTotal:     payments,
		paymentAmount:     paymentAmount,
		stockAdjustments:  stock,
		dashboardDuration: dashboard,
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

func (m *Metrics) SaleRecorded(merged bool) {
	if m == nil {
		return
	}
	outcome := "created"
	if merged {
		outcome = "merged"
	}
	m.salesTotal.WithLabelValues(outcome).Inc()
}

// PaymentApplied records one payment; amount is in currency units.
func (m *Metrics) PaymentApplied(kind string, amount float64) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(kind).Inc()
	m.paymentAmount.Add(amount)
}

func (m *Metrics) StockAdjusted(reason string) {
	if m == nil {
		return
	}
	m.stockAdjustments.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveDashboardBuild(d time.Duration) {
	if m == nil {
		return
	}
	m.dashboardDuration.Observe(d.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
