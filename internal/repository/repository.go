// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/pressly/goose/v3"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

var _ domain.Repository = (*SQLRepository)(nil)

// New opens the configured database and applies pending migrations.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &SQLRepository{db: db, driver: cfg.Driver}
	if err := repo.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repo, nil
}

func (r *SQLRepository) migrate(ctx context.Context) error {
	dialect := goose.DialectSQLite3
	if r.driver == "postgres" {
		dialect = goose.DialectPostgres
	}

	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	provider, err := goose.NewProvider(dialect, r.db, migrations)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	_, err = provider.Up(ctx)
	return err
}

// DB exposes the connection pool for stats collection.
func (r *SQLRepository) DB() *sql.DB {
	return r.db
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// withTx runs fn inside a database transaction, committing on success.
func (r *SQLRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// insertOutbox queues an event in the same transaction as the change it describes.
func (r *SQLRepository) insertOutbox(ctx context.Context, tx *sql.Tx, accountID, topic string, payload any, at time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", topic, err)
	}

	query := `
		INSERT INTO outbox (id, account_id, topic, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, r.rebind(query), uuid.New().String(), accountID, topic, string(body), at)
	if err != nil {
		return fmt.Errorf("failed to queue %s event: %w", topic, err)
	}
	return nil
}

// insertAlert writes an alert row and its raised event.
func (r *SQLRepository) insertAlert(ctx context.Context, tx *sql.Tx, accountID string, a *domain.FraudAlert) error {
	query := `
		INSERT INTO fraud_alerts (
			id, account_id, entity_type, entity_id, alert_type,
			severity, description, is_resolved, resolved_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := tx.ExecContext(ctx, r.rebind(query),
		a.ID, accountID, string(a.EntityType), a.EntityID, a.AlertType,
		string(a.Severity), a.Description, boolInt(a.IsResolved), nullTime(a.ResolvedAt), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	a.AccountID = accountID
	return r.insertOutbox(ctx, tx, accountID, domain.TopicAlertRaised, a, a.CreatedAt)
}

// saveScored writes a scored record, its optional alert and the events
// describing both in one transaction.
func (r *SQLRepository) saveScored(ctx context.Context, accountID string, insert func(tx *sql.Tx) error, event domain.ScoredEvent, at time.Time, alert *domain.FraudAlert) error {
	if accountID == "" {
		return fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := insert(tx); err != nil {
			return err
		}
		if alert != nil {
			if err := r.insertAlert(ctx, tx, accountID, alert); err != nil {
				return err
			}
			event.AlertID = alert.ID
		}
		return r.insertOutbox(ctx, tx, accountID, domain.TopicEntityScored, event, at)
	})
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}

// placeholders returns "?, ?, ?" for n parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

type scanner interface {
	Scan(dest ...any) error
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullPositive(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n > 0}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
