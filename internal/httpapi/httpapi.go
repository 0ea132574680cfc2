package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/sirupsen/logrus"
	"github.com/unrolled/secure"

	"paintstore/backend/internal/logging"
	"paintstore/backend/internal/observability"
	"paintstore/backend/internal/service"
	"paintstore/backend/internal/store"
)

const (
	moduleName       = "httpapi"
	maxJSONBody      = 1 << 20
	maxImportBody    = 32 << 20
	importPath       = "/api/database/import"
	defaultRateLimit = 600
)

type Options struct {
	AllowedOrigin      string
	RateLimitPerMinute int
	CSRFEnabled        bool
	Logger             logrus.FieldLogger
	Metrics            *observability.Metrics
}

type API struct {
	service       *service.Service
	logger        logrus.FieldLogger
	metrics       *observability.Metrics
	allowedOrigin string
	rateLimit     int
	csrfEnabled   bool
	csrfSecret    []byte
}

func New(svc *service.Service, opts Options) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.RateLimitPerMinute <= 0 {
		opts.RateLimitPerMinute = defaultRateLimit
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	return &API{
		service:       svc,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		allowedOrigin: opts.AllowedOrigin,
		rateLimit:     opts.RateLimitPerMinute,
		csrfEnabled:   opts.CSRFEnabled,
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (Unix time truncated to the hour), hex-encoded.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	return a.csrfTokenForHour(time.Now().UTC().Truncate(time.Hour).Unix())
}

// validateCSRFToken accepts the current or previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	current := time.Now().UTC().Truncate(time.Hour).Unix()
	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current-3600)))
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		a.requestLog,
		middleware.Recoverer,
		a.secureHeaders(),
		a.cors,
		a.metrics.Middleware,
	)

	r.Get("/healthz", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(
			httprate.Limit(a.rateLimit, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					writeError(w, http.StatusTooManyRequests, errors.New("too many requests"))
				}),
			),
			limitBody,
			a.checkCSRF,
		)

		r.Get("/csrf-token", a.handleCSRFToken)
		r.Get("/dashboard-stats", a.handleDashboardStats)
		r.Get("/audit-logs", a.handleAuditLogs)

		r.Route("/sales", func(r chi.Router) {
			r.Get("/", a.handleListSales)
			r.Post("/", a.handleCreateSale)
			r.Get("/unpaid", a.handleUnpaidSales)
			r.Get("/{id}", a.handleGetSale)
			r.Delete("/{id}", a.handleDeleteSale)
			r.Post("/{id}/payment", a.handleSalePayment)
			r.Post("/{id}/items", a.handleAddSaleItem)
		})
		r.Delete("/sale-items/{id}", a.handleDeleteSaleItem)
		r.Post("/sale-items/{id}/return", a.handleReturnSaleItem)

		r.Route("/customers", func(r chi.Router) {
			r.Get("/unpaid", a.handleCustomerAccounts)
			r.Get("/suggestions", a.handleCustomerSuggestions)
			r.Get("/{phone}/account", a.handleCustomerAccount)
			r.Get("/{phone}/open-sale", a.handleOpenSale)
			r.Post("/{phone}/payments", a.handleCustomerPayment)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", a.handleListProducts)
			r.Post("/", a.handleCreateProduct)
			r.Get("/{id}", a.handleGetProduct)
			r.Put("/{id}", a.handleUpdateProduct)
			r.Delete("/{id}", a.handleDeleteProduct)
			r.Get("/{id}/variants", a.handleListVariants)
		})
		r.Route("/variants", func(r chi.Router) {
			r.Get("/", a.handleListVariants)
			r.Post("/", a.handleCreateVariant)
			r.Post("/bulk-rates", a.handleBulkRates)
			r.Get("/{id}", a.handleGetVariant)
			r.Put("/{id}", a.handleUpdateVariant)
			r.Delete("/{id}", a.handleDeleteVariant)
			r.Patch("/{id}/rate", a.handleVariantRate)
			r.Get("/{id}/colors", a.handleListColors)
		})
		r.Route("/colors", func(r chi.Router) {
			r.Get("/", a.handleListColors)
			r.Post("/", a.handleCreateColor)
			r.Get("/stock", a.handleStockUnits)
			r.Post("/bulk-stock-in", a.handleBulkStockIn)
			r.Get("/{id}", a.handleGetColor)
			r.Patch("/{id}", a.handleUpdateColor)
			r.Delete("/{id}", a.handleDeleteColor)
			r.Post("/{id}/stock-in", a.handleStockIn)
			r.Get("/{id}/movements", a.handleStockMovements)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/sales", a.handleSalesReport)
			r.Get("/sales/export", a.handleSalesReportExport)
			r.Get("/customer-debts", a.handleDebtReport)
			r.Get("/customer-debts/export", a.handleDebtReportExport)
			r.Get("/inventory", a.handleInventoryReport)
			r.Get("/inventory/export", a.handleInventoryReportExport)
		})

		r.Get("/database/export", a.handleDatabaseExport)
		r.Post("/database/import", a.handleDatabaseImport)
	})

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleCSRFToken returns a stateless token valid for the current hour
// bucket. Mutating requests carry it in X-CSRF-Token.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"csrfToken": a.generateCSRFToken(),
	})
}

func (a *API) checkCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.csrfEnabled {
			next.ServeHTTP(w, r)
			return
		}
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
		if !a.validateCSRFToken(token) {
			writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) secureHeaders() func(http.Handler) http.Handler {
	return secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
	}).Handler
}

func (a *API) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			limit := int64(maxJSONBody)
			if r.URL.Path == importPath {
				limit = maxImportBody
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.logger.WithFields(logrus.Fields{
			"requestId": middleware.GetReqID(r.Context()),
			"method":    r.Method,
			"path":      r.URL.Path,
			"status":    ww.Status(),
			"bytes":     ww.BytesWritten(),
			"duration":  time.Since(startedAt).String(),
		}).Info("request")
	})
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status. Unexpected errors are logged and
// masked.
func (a *API) fail(w http.ResponseWriter, r *http.Request, funcName string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.LogError(a.logger, moduleName, funcName, r.Method+" "+r.URL.Path, middleware.GetReqID(r.Context()), err)
	}
	writeError(w, status, err)
}

// degrade serves a read endpoint: caller errors still surface, anything
// unexpected is logged and answered with the empty result.
func (a *API) degrade(w http.ResponseWriter, r *http.Request, funcName string, err error, empty any) {
	if statusFor(err) < http.StatusInternalServerError {
		writeError(w, statusFor(err), err)
		return
	}
	logging.LogError(a.logger, moduleName, funcName, "serving empty result", middleware.GetReqID(r.Context()), err)
	writeJSON(w, http.StatusOK, empty)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body too large", store.ErrValidation)
		}
		return fmt.Errorf("%w: invalid JSON body: %v", store.ErrValidation, err)
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 4xx messages are user-facing; 5xx details stay in the logs.
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
