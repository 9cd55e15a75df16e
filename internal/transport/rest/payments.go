package rest

import (
	"net/http"

	"paytrack/internal/domain"
	"paytrack/internal/service"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	payments, err := h.payments.List(r.Context(), service.ListFilter{
		Status: q.Get("status"),
		Search: q.Get("search"),
	})
	if err != nil {
		h.fail(w, r, "list payments", err)
		return
	}
	if payments == nil {
		payments = []domain.Payment{}
	}

	Success(w, "", payments)
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "get payment", err)
		return
	}

	Success(w, "", p)
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	raw, err := decodePayment(r)
	if err != nil {
		h.fail(w, r, "create payment", err)
		return
	}

	p, err := h.payments.Create(r.Context(), raw)
	if err != nil {
		h.fail(w, r, "create payment", err)
		return
	}

	Created(w, "payment created", p)
}

func (h *Handler) updatePayment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	raw, err := decodePayment(r)
	if err != nil {
		h.fail(w, r, "update payment", err)
		return
	}

	p, err := h.payments.Update(r.Context(), chi.URLParam(r, "id"), raw)
	if err != nil {
		h.fail(w, r, "update payment", err)
		return
	}

	Success(w, "payment updated", p)
}

func (h *Handler) deletePayment(w http.ResponseWriter, r *http.Request) {
	if err := h.payments.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, "delete payment", err)
		return
	}

	Success(w, "payment deleted", nil)
}

func (h *Handler) deleteAllPayments(w http.ResponseWriter, r *http.Request) {
	n, err := h.payments.DeleteAll(r.Context())
	if err != nil {
		h.fail(w, r, "delete payments", err)
		return
	}

	Success(w, "payments deleted", map[string]any{"deleted": n})
}
