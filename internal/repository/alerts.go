package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const alertColumns = `id, account_id, entity_type, entity_id, alert_type, severity, description, is_resolved, resolved_at, created_at`

// SaveAlert stores a manually raised alert and its event.
func (r *SQLRepository) SaveAlert(ctx context.Context, accountID string, alert *domain.FraudAlert) error {
	if accountID == "" {
		return fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		return r.insertAlert(ctx, tx, accountID, alert)
	})
}

// GetAlert retrieves an alert by ID with account isolation.
func (r *SQLRepository) GetAlert(ctx context.Context, accountID string, alertID string) (*domain.FraudAlert, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	query := `SELECT ` + alertColumns + ` FROM fraud_alerts WHERE account_id = ? AND id = ?`

	a, err := scanAlert(r.db.QueryRowContext(ctx, r.rebind(query), accountID, alertID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListAlerts returns every alert of an account, newest first, resolved or not.
func (r *SQLRepository) ListAlerts(ctx context.Context, accountID string) ([]*domain.FraudAlert, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	query := `SELECT ` + alertColumns + ` FROM fraud_alerts WHERE account_id = ? ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := []*domain.FraudAlert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// FindOpenAlert returns the newest unresolved alert for an entity and alert
// type, or nil when there is none.
func (r *SQLRepository) FindOpenAlert(ctx context.Context, accountID string, entityType domain.EntityKind, entityID string, alertType string) (*domain.FraudAlert, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}
	return r.findOpenAlert(ctx, r.db, accountID, entityType, entityID, alertType)
}

// SaveAlertUnique stores alert unless an unresolved alert with the same
// entity and alert type exists, in which case that alert is returned and
// nothing is written. The check and the insert run in one transaction that
// holds the write lock, so concurrent callers insert at most one alert.
func (r *SQLRepository) SaveAlertUnique(ctx context.Context, accountID string, alert *domain.FraudAlert) (*domain.FraudAlert, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	var existing *domain.FraudAlert
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if r.driver == "postgres" {
			key := strings.Join([]string{accountID, string(alert.EntityType), alert.EntityID, alert.AlertType}, "|")
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
				return fmt.Errorf("failed to lock alert key: %w", err)
			}
		}

		found, err := r.findOpenAlert(ctx, tx, accountID, alert.EntityType, alert.EntityID, alert.AlertType)
		if err != nil {
			return err
		}
		if found != nil {
			existing = found
			return nil
		}
		return r.insertAlert(ctx, tx, accountID, alert)
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLRepository) findOpenAlert(ctx context.Context, q querier, accountID string, entityType domain.EntityKind, entityID string, alertType string) (*domain.FraudAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM fraud_alerts
		WHERE account_id = ? AND entity_type = ? AND entity_id = ? AND alert_type = ? AND is_resolved = 0
		ORDER BY created_at DESC
		LIMIT 1`

	a, err := scanAlert(q.QueryRowContext(ctx, r.rebind(query), accountID, string(entityType), entityID, alertType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// ResolveAlert marks an alert resolved at the given time and queues the
// resolved event. Resolving again overwrites the timestamp.
func (r *SQLRepository) ResolveAlert(ctx context.Context, accountID string, alertID string, at time.Time) error {
	if accountID == "" {
		return fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	at = at.UTC()
	return r.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			r.rebind(`UPDATE fraud_alerts SET is_resolved = 1, resolved_at = ? WHERE account_id = ? AND id = ?`),
			at, accountID, alertID,
		)
		if err != nil {
			return err
		}
		if err := expectOneRow(result); err != nil {
			return err
		}
		return r.insertOutbox(ctx, tx, accountID, domain.TopicAlertResolved,
			domain.AlertResolvedEvent{AlertID: alertID, ResolvedAt: at}, at)
	})
}

func scanAlert(row scanner) (*domain.FraudAlert, error) {
	var a domain.FraudAlert
	var entityType, severity string
	var description sql.NullString
	var resolved int
	var resolvedAt sql.NullTime

	if err := row.Scan(
		&a.ID, &a.AccountID, &entityType, &a.EntityID, &a.AlertType,
		&severity, &description, &resolved, &resolvedAt, &a.CreatedAt,
	); err != nil {
		return nil, err
	}

	a.EntityType = domain.EntityKind(entityType)
	a.Severity = domain.Severity(severity)
	a.Description = description.String
	a.IsResolved = resolved == 1
	a.ResolvedAt = timePtr(resolvedAt)
	return &a, nil
}
