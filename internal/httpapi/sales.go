package httpapi

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"paintstore/backend/internal/domain"
	"paintstore/backend/internal/service"
	"paintstore/backend/internal/store"
)

func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, "handleCreateSale", err)
		return
	}

	resp, err := a.service.CreateSale(r.Context(), req)
	if err != nil {
		a.fail(w, r, "handleCreateSale", err)
		return
	}
	status := http.StatusCreated
	if resp.Merged {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sales, err := a.service.ListSales(r.Context(), service.SaleQuery{
		Status: q.Get("status"),
		Phone:  q.Get("phone"),
		From:   q.Get("from"),
		To:     q.Get("to"),
		Limit:  parsePositiveLimit(q.Get("limit"), 200, 1000),
	})
	if err != nil {
		a.degrade(w, r, "handleListSales", err, []domain.Sale{})
		return
	}
	writeJSON(w, http.StatusOK, sales)
}

func (a *API) handleUnpaidSales(w http.ResponseWriter, r *http.Request) {
	sales, err := a.service.ListUnpaidSales(r.Context())
	if err != nil {
		a.degrade(w, r, "handleUnpaidSales", err, []domain.Sale{})
		return
	}
	writeJSON(w, http.StatusOK, sales)
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	detail, err := a.service.GetSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, "handleGetSale", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteSale(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, "handleDeleteSale", err)
		return
	}
	writeSuccess(w)
}

func (a *API) handleSalePayment(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, "handleSalePayment", err)
		return
	}

	sale, err := a.service.UpdateSalePayment(r.Context(), chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		a.fail(w, r, "handleSalePayment", err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (a *API) handleAddSaleItem(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleItemInput
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, "handleAddSaleItem", err)
		return
	}

	item, err := a.service.AddSaleItem(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, "handleAddSaleItem", err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (a *API) handleDeleteSaleItem(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteSaleItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, "handleDeleteSaleItem", err)
		return
	}
	writeSuccess(w)
}

func (a *API) handleReturnSaleItem(w http.ResponseWriter, r *http.Request) {
	var req domain.ReturnItemRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, "handleReturnSaleItem", err)
		return
	}

	if err := a.service.ReturnSaleItem(r.Context(), chi.URLParam(r, "id"), req); err != nil {
		a.fail(w, r, "handleReturnSaleItem", err)
		return
	}
	writeSuccess(w)
}

func (a *API) handleCustomerAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := a.service.ListCustomerAccounts(r.Context())
	if err != nil {
		a.degrade(w, r, "handleCustomerAccounts", err, []domain.CustomerAccount{})
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (a *API) handleCustomerSuggestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	suggestions, err := a.service.SuggestCustomers(r.Context(), q.Get("q"), parsePositiveLimit(q.Get("limit"), 8, 50))
	if err != nil {
		a.degrade(w, r, "handleCustomerSuggestions", err, []domain.CustomerSuggestion{})
		return
	}
	writeJSON(w, http.StatusOK, suggestions)
}

func (a *API) handleCustomerAccount(w http.ResponseWriter, r *http.Request) {
	account, err := a.service.GetCustomerAccount(r.Context(), phoneParam(r))
	if err != nil {
		a.fail(w, r, "handleCustomerAccount", err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// handleOpenSale answers null when the customer has no open bill so the
// point-of-sale screen can probe before ringing up.
func (a *API) handleOpenSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.FindOpenSaleByPhone(r.Context(), phoneParam(r))
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	if err != nil {
		a.fail(w, r, "handleOpenSale", err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (a *API) handleCustomerPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, "handleCustomerPayment", err)
		return
	}

	result, err := a.service.AllocatePayment(r.Context(), phoneParam(r), req.Amount)
	if err != nil {
		a.fail(w, r, "handleCustomerPayment", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// phoneParam returns the {phone} segment unescaped; clients may send
// "+92 300 1234567" as typed.
func phoneParam(r *http.Request) string {
	raw := chi.URLParam(r, "phone")
	if unescaped, err := url.PathUnescape(raw); err == nil {
		return unescaped
	}
	return raw
}
