package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/alerting"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/submission"
	"github.com/opensource-finance/kestrel/internal/throttle"
)

const maxBodyBytes = 1 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	repo        domain.Repository
	cache       domain.Cache
	bus         domain.EventBus
	engine      *rules.Engine
	submissions *submission.Service
	alerts      *alerting.Manager
	asyncIntake bool
	version     string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		repo:        deps.Repo,
		cache:       deps.Cache,
		bus:         deps.Bus,
		engine:      deps.Engine,
		submissions: deps.Submissions,
		alerts:      deps.Alerts,
		asyncIntake: deps.AsyncIntake,
		version:     deps.Version,
	}
}

// Health reports the status of every backing component.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	components := map[string]string{}

	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			components[name] = err.Error()
			status = "degraded"
			return
		}
		components[name] = "ok"
	}
	if h.repo != nil {
		check("repository", h.repo.Ping)
	}
	if h.cache != nil {
		check("cache", h.cache.Ping)
	}
	if h.bus != nil {
		check("eventBus", h.bus.Ping)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    h.version,
		"components": components,
	})
}

// Ready returns whether the server can serve traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
				"error": err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns the rules currently loaded in the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.engine.Loaded()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": loaded,
		"count": len(loaded),
	})
}

// GetRule returns one loaded rule.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")
	for _, rule := range h.engine.Loaded() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	EntityKind  domain.EntityKind `json:"entityKind"`
	Expression  string            `json:"expression"`
	Points      int               `json:"points"`
	Enabled     bool              `json:"enabled"`
}

// CreateRule validates a rule and saves it globally. The engine picks it
// up on POST /rules/reload.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	cfg := &domain.RuleConfig{
		ID:          req.ID,
		TenantID:    rules.GlobalTenant,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		EntityKind:  req.EntityKind,
		Expression:  req.Expression,
		Points:      req.Points,
		Enabled:     req.Enabled,
	}
	if err := h.engine.ValidateRule(cfg); err != nil {
		writeError(w, err)
		return
	}
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}
	if err := h.repo.SaveRuleConfig(r.Context(), rules.GlobalTenant, cfg); err != nil {
		writeError(w, fmt.Errorf("failed to save rule: %w", err))
		return
	}

	slog.Info("rule created", "id", cfg.ID, "kind", cfg.EntityKind)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    cfg,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules replaces the engine's rules with those in the database.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	configs, err := h.repo.ListRuleConfigs(r.Context(), rules.GlobalTenant)
	if err != nil {
		writeError(w, fmt.Errorf("failed to load rules: %w", err))
		return
	}
	if err := h.engine.ReloadRules(configs); err != nil {
		writeError(w, err)
		return
	}

	slog.Info("rules reloaded from database", "count", len(configs))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   len(configs),
	})
}

// statusFor maps package sentinels to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, submission.ErrValidation),
		errors.Is(err, alerting.ErrInvalidDraft),
		errors.Is(err, rules.ErrInvalidRule),
		errors.Is(err, repository.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, alerting.ErrDuplicateAlert):
		return http.StatusConflict
	case errors.Is(err, throttle.ErrLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON request body: %v", submission.ErrValidation, err)
	}
	return nil
}
