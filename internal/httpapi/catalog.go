package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"paintstore/backend/internal/domain"
)

type rateRequest struct {
	Rate decimal.Decimal `json:"rate"`
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.degrade(w, r, "handleListProducts", err, []domain.Product{})
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, "handleGetProduct", err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, "handleCreateProduct", err)
		return
	}

	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.fail(w, r, "handleCreateProduct", err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, "handleUpdateProduct", err)
		return
	}

	product, err := a.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, "handleUpdateProduct", err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, "handleDeleteProduct", err)
		return
	}
	writeSuccess(w)
}

// handleListVariants serves both /products/{id}/variants and
// /variants?productId=.
func (a *API) handleListVariants(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	if productID == "" {
		productID = r.URL.Query().Get("productId")
	}
	variants, err := a.service.ListVariants(r.Context(), productID)
	if err != nil {
		a.degrade(w, r, "handleListVariants", err, []domain.Variant{})
		return
	}
	writeJSON(w, http.StatusOK, variants)
}

func (a *API) handleGetVariant(w http.ResponseWriter, r *http.Request) {
	variant, err := a.service.GetVariant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, "handleGetVariant", err)
		return
	}
	writeJSON(w, http.StatusOK, variant)
}

func (a *API) handleCreateVariant(w http.ResponseWriter, r *http.Request) {
	var req domain.VariantRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, "handleCreateVariant", err)
		return
	}

	variant, err := a.service.CreateVariant(r.Context(), req)
	if err != nil {
		a.fail(w, r, "handleCreateVariant", err)
		return
	}
	writeJSON(w, http.StatusCreated, variant)
}

func (a *API) handleUpdateVariant(w http.ResponseWriter, r *http.Request) {
	var req domain.VariantRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, "handleUpdateVariant", err)
		return
	}

	variant, err := a.service.UpdateVariant(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, "handleUpdateVariant", err)
		return
	}
	writeJSON(w, http.StatusOK, variant)
}

func (a *API) handleVariantRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, "handleVariantRate", err)
		return
	}

	variant, err := a.service.UpdateVariantRate(r.Context(), chi.URLParam(r, "id"), req.Rate)
	if err != nil {
		a.fail(w, r, "handleVariantRate", err)
		return
	}
	writeJSON(w, http.StatusOK, variant)
}

func (a *API) handleBulkRates(w http.ResponseWriter, r *http.Request) {
	var updates []domain.RateUpdate
	if err := decodeJSON(r, &updates); err != nil {
		a.fail(w, r, "handleBulkRates", err)
		return
	}

	results, err := a.service.BulkUpdateRates(r.Context(), updates)
	if err != nil {
		a.fail(w, r, "handleBulkRates", err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (a *API) handleDeleteVariant(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteVariant(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, "handleDeleteVariant", err)
		return
	}
	writeSuccess(w)
}

// handleListColors serves /variants/{id}/colors and
// /colors?variantId=&q=.
func (a *API) handleListColors(w http.ResponseWriter, r *http.Request) {
	variantID := chi.URLParam(r, "id")
	if variantID == "" {
		variantID = r.URL.Query().Get("variantId")
	}
	colors, err := a.service.ListColors(r.Context(), variantID, r.URL.Query().Get("q"))
	if err != nil {
		a.degrade(w, r, "handleListColors", err, []domain.Color{})
		return
	}
	writeJSON(w, http.StatusOK, colors)
}

func (a *API) handleStockUnits(w http.ResponseWriter, r *http.Request) {
	units, err := a.service.ListStockUnits(r.Context())
	if err != nil {
		a.degrade(w, r, "handleStockUnits", err, []domain.StockUnit{})
		return
	}
	writeJSON(w, http.StatusOK, units)
}

func (a *API) handleGetColor(w http.ResponseWriter, r *http.Request) {
	color, err := a.service.GetColor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, "handleGetColor", err)
		return
	}
	writeJSON(w, http.StatusOK, color)
}

func (a *API) handleCreateColor(w http.ResponseWriter, r *http.Request) {
	var req domain.ColorRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, "handleCreateColor", err)
		return
	}

	color, err := a.service.CreateColor(r.Context(), req)
	if err != nil {
		a.fail(w, r, "handleCreateColor", err)
		return
	}
	writeJSON(w, http.StatusCreated, color)
}

func (a *API) handleUpdateColor(w http.ResponseWriter, r *http.Request) {
	var req domain.ColorUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, "handleUpdateColor", err)
		return
	}

	color, err := a.service.UpdateColor(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, "handleUpdateColor", err)
		return
	}
	writeJSON(w, http.StatusOK, color)
}

func (a *API) handleDeleteColor(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteColor(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, "handleDeleteColor", err)
		return
	}
	writeSuccess(w)
}

func (a *API) handleStockIn(w http.ResponseWriter, r *http.Request) {
	var req domain.StockInRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, "handleStockIn", err)
		return
	}

	color, err := a.service.StockIn(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, "handleStockIn", err)
		return
	}
	writeJSON(w, http.StatusOK, color)
}

func (a *API) handleBulkStockIn(w http.ResponseWriter, r *http.Request) {
	var reqs []domain.StockInRequest
	if err := decodeJSON(r, &reqs); err != nil {
		a.fail(w, r, "handleBulkStockIn", err)
		return
	}

	results, err := a.service.BulkStockIn(r.Context(), reqs)
	if err != nil {
		a.fail(w, r, "handleBulkStockIn", err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (a *API) handleStockMovements(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	moves, err := a.service.ListStockMovements(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		a.degrade(w, r, "handleStockMovements", err, []domain.StockMovement{})
		return
	}
	writeJSON(w, http.StatusOK, moves)
}
