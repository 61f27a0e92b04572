package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/alerting"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// RaiseAlert handles POST /alerts for manually raised alerts. With dedup
// enabled a duplicate returns 409 and the existing alert.
func (h *Handler) RaiseAlert(w http.ResponseWriter, r *http.Request) {
	var d alerting.Draft
	if err := decodeJSON(w, r, &d); err != nil {
		writeError(w, err)
		return
	}

	alert, err := h.alerts.Raise(r.Context(), AccountID(r.Context()), &d)
	if errors.Is(err, alerting.ErrDuplicateAlert) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": err.Error(),
			"alert": alert,
		})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

// ListAlerts handles GET /alerts. ?status=active or ?status=resolved
// narrows the list.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alerts.List(r.Context(), AccountID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	active, resolved := domain.PartitionAlerts(alerts)
	switch r.URL.Query().Get("status") {
	case "active":
		alerts = nonNil(active)
	case "resolved":
		alerts = nonNil(resolved)
	}
	writeJSON(w, http.StatusOK, alerts)
}

// GetAlert handles GET /alerts/{id}.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.alerts.Get(r.Context(), AccountID(r.Context()), chi.URLParam(r, "id"))
	respond(w, alert, err)
}

// ResolveAlert handles POST /alerts/{id}/resolve.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.alerts.Resolve(r.Context(), AccountID(r.Context()), chi.URLParam(r, "id"))
	respond(w, alert, err)
}

// Summary handles GET /reports/summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.submissions.Summary(r.Context(), AccountID(r.Context()))
	respond(w, sum, err)
}

func nonNil(alerts []*domain.FraudAlert) []*domain.FraudAlert {
	if alerts == nil {
		return []*domain.FraudAlert{}
	}
	return alerts
}
