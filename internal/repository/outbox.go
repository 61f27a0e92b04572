package repository

import (
	"context"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// PendingOutbox returns undelivered events across all accounts, oldest first.
func (r *SQLRepository) PendingOutbox(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, account_id, topic, payload, created_at
		FROM outbox
		WHERE dispatched_at IS NULL
		ORDER BY created_at
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []*domain.OutboxEvent{}
	for rows.Next() {
		var e domain.OutboxEvent
		var payload string
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Topic, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payload = []byte(payload)
		events = append(events, &e)
	}
	return events, rows.Err()
}

// MarkDispatched records that events were handed to the event bus.
func (r *SQLRepository) MarkDispatched(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, at.UTC())
	for _, id := range ids {
		args = append(args, id)
	}

	query := `UPDATE outbox SET dispatched_at = ? WHERE id IN (` + placeholders(len(ids)) + `)`
	_, err := r.db.ExecContext(ctx, r.rebind(query), args...)
	return err
}
