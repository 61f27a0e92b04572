package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/submission"
)

// StatusRequest is the body of a status update.
type StatusRequest struct {
	Status string `json:"status"`
}

type validator interface {
	Validate() error
}

// submitHandler decodes a submission, validates it and either runs it or,
// with ?async=true and async intake enabled, queues it on the event bus.
func submitHandler[R any, PR interface {
	*R
	validator
}, O any](h *Handler, kind domain.EntityKind, run func(context.Context, string, PR) (O, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		accountID := AccountID(ctx)

		req := PR(new(R))
		if err := decodeJSON(w, r, req); err != nil {
			writeError(w, err)
			return
		}

		if h.asyncIntake && r.URL.Query().Get("async") == "true" {
			if err := req.Validate(); err != nil {
				writeError(w, err)
				return
			}
			h.enqueue(w, r, kind, req)
			return
		}

		out, err := run(ctx, accountID, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

// enqueue publishes a validated submission for the intake worker.
func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, kind domain.EntityKind, req any) {
	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	env, err := submission.NewEnvelope(kind, req)
	if err != nil {
		writeError(w, err)
		return
	}
	payload, err := json.Marshal(env)
	if err != nil {
		writeError(w, fmt.Errorf("failed to encode submission: %w", err))
		return
	}
	if err := h.bus.Publish(r.Context(), AccountID(r.Context()), domain.TopicSubmissionReceived, payload); err != nil {
		writeError(w, fmt.Errorf("failed to queue submission: %w", err))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"kind":   string(kind),
	})
}

// CreateSupplier handles POST /suppliers.
func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req submission.SupplierRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	sup, err := h.submissions.CreateSupplier(r.Context(), AccountID(r.Context()), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sup)
}

// ListSuppliers handles GET /suppliers.
func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	list, err := h.submissions.ListSuppliers(r.Context(), AccountID(r.Context()))
	respond(w, list, err)
}

// GetSupplier handles GET /suppliers/{id}.
func (h *Handler) GetSupplier(w http.ResponseWriter, r *http.Request) {
	sup, err := h.submissions.GetSupplier(r.Context(), AccountID(r.Context()), chi.URLParam(r, "id"))
	respond(w, sup, err)
}

// UpdateSupplierStatus handles PUT /suppliers/{id}/status.
func (h *Handler) UpdateSupplierStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	sup, err := h.submissions.UpdateSupplierStatus(r.Context(), AccountID(r.Context()),
		chi.URLParam(r, "id"), domain.SupplierStatus(req.Status))
	respond(w, sup, err)
}

// SubmitInvoice handles POST /invoices.
func (h *Handler) SubmitInvoice(w http.ResponseWriter, r *http.Request) {
	submitHandler[submission.InvoiceRequest](h, domain.EntityInvoice, h.submissions.SubmitInvoice)(w, r)
}

// ListInvoices handles GET /invoices.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	list, err := h.submissions.ListInvoices(r.Context(), AccountID(r.Context()))
	respond(w, list, err)
}

// GetInvoice handles GET /invoices/{id}.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.submissions.GetInvoice(r.Context(), AccountID(r.Context()), chi.URLParam(r, "id"))
	respond(w, inv, err)
}

// UpdateInvoiceStatus handles PUT /invoices/{id}/status.
func (h *Handler) UpdateInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	inv, err := h.submissions.ReviewInvoice(r.Context(), AccountID(r.Context()),
		chi.URLParam(r, "id"), domain.InvoiceStatus(req.Status))
	respond(w, inv, err)
}

// SubmitShipment handles POST /shipments.
func (h *Handler) SubmitShipment(w http.ResponseWriter, r *http.Request) {
	submitHandler[submission.ShipmentRequest](h, domain.EntityShipment, h.submissions.SubmitShipment)(w, r)
}

// ListShipments handles GET /shipments.
func (h *Handler) ListShipments(w http.ResponseWriter, r *http.Request) {
	list, err := h.submissions.ListShipments(r.Context(), AccountID(r.Context()))
	respond(w, list, err)
}

// GetShipment handles GET /shipments/{id}.
func (h *Handler) GetShipment(w http.ResponseWriter, r *http.Request) {
	sh, err := h.submissions.GetShipment(r.Context(), AccountID(r.Context()), chi.URLParam(r, "id"))
	respond(w, sh, err)
}

// UpdateShipmentStatus handles PUT /shipments/{id}/status.
func (h *Handler) UpdateShipmentStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	sh, err := h.submissions.UpdateShipmentStatus(r.Context(), AccountID(r.Context()),
		chi.URLParam(r, "id"), domain.ShipmentStatus(req.Status))
	respond(w, sh, err)
}

// SubmitTransaction handles POST /transactions.
func (h *Handler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	submitHandler[submission.TransactionRequest](h, domain.EntityTransaction, h.submissions.SubmitTransaction)(w, r)
}

// ListTransactions handles GET /transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	list, err := h.submissions.ListTransactions(r.Context(), AccountID(r.Context()))
	respond(w, list, err)
}

// GetTransaction handles GET /transactions/{id}.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.submissions.GetTransaction(r.Context(), AccountID(r.Context()), chi.URLParam(r, "id"))
	respond(w, tx, err)
}

// respond writes v with 200, or the mapped error.
func respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
