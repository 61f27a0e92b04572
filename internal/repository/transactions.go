package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const transactionSelect = `
	SELECT t.id, t.account_id, t.supplier_id, COALESCE(s.name, ''), t.amount,
		   t.transaction_type, t.fraud_score, t.ml_label, t.is_suspicious, t.created_at
	FROM transactions t
	LEFT JOIN suppliers s ON s.id = t.supplier_id AND s.account_id = t.account_id
`

// SaveTransaction stores a scored transaction and its optional alert atomically.
func (r *SQLRepository) SaveTransaction(ctx context.Context, accountID string, t *domain.Transaction, alert *domain.FraudAlert) error {
	insert := func(tx *sql.Tx) error {
		query := `
			INSERT INTO transactions (
				id, account_id, supplier_id, amount, transaction_type,
				fraud_score, ml_label, is_suspicious, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := tx.ExecContext(ctx, r.rebind(query),
			t.ID, accountID, nullString(t.SupplierID), t.Amount, string(t.Type),
			t.FraudScore, string(t.Label), boolInt(t.IsSuspicious), t.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}
		return nil
	}

	event := domain.ScoredEvent{
		EntityType: domain.EntityTransaction,
		EntityID:   t.ID,
		Score:      t.FraudScore,
		Status:     string(t.Label),
	}
	if err := r.saveScored(ctx, accountID, insert, event, t.CreatedAt, alert); err != nil {
		return err
	}
	t.AccountID = accountID
	return nil
}

// GetTransaction retrieves a transaction by ID with account isolation.
func (r *SQLRepository) GetTransaction(ctx context.Context, accountID string, txID string) (*domain.Transaction, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	query := transactionSelect + ` WHERE t.account_id = ? AND t.id = ?`

	t, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), accountID, txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// ListTransactions returns all transactions of an account with supplier names, newest first.
func (r *SQLRepository) ListTransactions(ctx context.Context, accountID string) ([]*domain.Transaction, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	query := transactionSelect + ` WHERE t.account_id = ? ORDER BY t.created_at DESC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := []*domain.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func scanTransaction(row scanner) (*domain.Transaction, error) {
	var t domain.Transaction
	var supplierID sql.NullString
	var txType, label string
	var suspicious int

	if err := row.Scan(
		&t.ID, &t.AccountID, &supplierID, &t.SupplierName, &t.Amount,
		&txType, &t.FraudScore, &label, &suspicious, &t.CreatedAt,
	); err != nil {
		return nil, err
	}

	t.SupplierID = supplierID.String
	t.Type = domain.TransactionType(txType)
	t.Label = domain.Label(label)
	t.IsSuspicious = suspicious == 1
	return &t, nil
}
