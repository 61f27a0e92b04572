package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
)

var (
	// ErrDuplicateAlert is returned by Raise when dedup is enabled and an
	// unresolved alert for the same entity and type exists.
	ErrDuplicateAlert = errors.New("unresolved alert already exists for entity")

	// ErrInvalidDraft is returned when a draft is missing required fields.
	ErrInvalidDraft = errors.New("invalid alert")
)

// Store is the persistence the manager needs.
type Store interface {
	SaveAlert(ctx context.Context, accountID string, alert *domain.FraudAlert) error
	SaveAlertUnique(ctx context.Context, accountID string, alert *domain.FraudAlert) (*domain.FraudAlert, error)
	GetAlert(ctx context.Context, accountID string, alertID string) (*domain.FraudAlert, error)
	ListAlerts(ctx context.Context, accountID string) ([]*domain.FraudAlert, error)
	ResolveAlert(ctx context.Context, accountID string, alertID string, at time.Time) error
}

// Manager creates, lists and resolves alerts.
type Manager struct {
	store Store
	now   func() time.Time
	dedup bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithDedup rejects raises that would duplicate an unresolved alert.
func WithDedup(enabled bool) Option {
	return func(m *Manager) { m.dedup = enabled }
}

// NewManager creates an alert manager.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{store: store, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now returns the manager's current time in UTC.
func (m *Manager) Now() time.Time {
	return m.now().UTC()
}

// NewAlert turns a draft into an unresolved alert created at the given time.
// It does not store the alert.
func NewAlert(accountID string, d *Draft, at time.Time) *domain.FraudAlert {
	return &domain.FraudAlert{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		EntityType:  d.EntityType,
		EntityID:    d.EntityID,
		AlertType:   d.AlertType,
		Severity:    d.Severity,
		Description: d.Description,
		CreatedAt:   at.UTC(),
	}
}

// Raise stores a new unresolved alert. Without dedup, raising twice for the
// same entity creates two alerts.
func (m *Manager) Raise(ctx context.Context, accountID string, d *Draft) (*domain.FraudAlert, error) {
	if err := validateDraft(d); err != nil {
		return nil, err
	}

	alert := NewAlert(accountID, d, m.Now())
	if m.dedup {
		existing, err := m.store.SaveAlertUnique(ctx, accountID, alert)
		if err != nil {
			return nil, fmt.Errorf("failed to save alert: %w", err)
		}
		if existing != nil {
			return existing, ErrDuplicateAlert
		}
	} else if err := m.store.SaveAlert(ctx, accountID, alert); err != nil {
		return nil, fmt.Errorf("failed to save alert: %w", err)
	}

	metrics.AlertsRaisedTotal.WithLabelValues(string(alert.Severity)).Inc()
	slog.Info("alert raised",
		"account_id", accountID,
		"alert_id", alert.ID,
		"entity_type", alert.EntityType,
		"entity_id", alert.EntityID,
		"severity", alert.Severity,
	)
	return alert, nil
}

// List returns every alert of the account, newest first. Callers partition
// active and resolved alerts themselves.
func (m *Manager) List(ctx context.Context, accountID string) ([]*domain.FraudAlert, error) {
	return m.store.ListAlerts(ctx, accountID)
}

// Get returns one alert.
func (m *Manager) Get(ctx context.Context, accountID, alertID string) (*domain.FraudAlert, error) {
	return m.store.GetAlert(ctx, accountID, alertID)
}

// Resolve marks an alert resolved and stamps the resolution time. Resolving
// an already resolved alert keeps it resolved and moves the timestamp.
func (m *Manager) Resolve(ctx context.Context, accountID, alertID string) (*domain.FraudAlert, error) {
	if err := m.store.ResolveAlert(ctx, accountID, alertID, m.Now()); err != nil {
		return nil, err
	}
	metrics.AlertsResolvedTotal.Inc()

	alert, err := m.store.GetAlert(ctx, accountID, alertID)
	if err != nil {
		return nil, err
	}
	slog.Info("alert resolved", "account_id", accountID, "alert_id", alertID)
	return alert, nil
}

func validateDraft(d *Draft) error {
	switch {
	case d == nil:
		return fmt.Errorf("%w: missing alert", ErrInvalidDraft)
	case !d.EntityType.Valid():
		return fmt.Errorf("%w: unknown entity type %q", ErrInvalidDraft, d.EntityType)
	case d.EntityID == "":
		return fmt.Errorf("%w: entity id is required", ErrInvalidDraft)
	case d.AlertType == "":
		return fmt.Errorf("%w: alert type is required", ErrInvalidDraft)
	case !d.Severity.Valid():
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidDraft, d.Severity)
	}
	return nil
}
