package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const supplierColumns = `id, account_id, name, contact_email, phone, address, status, risk_score, created_at, updated_at`

// SaveSupplier stores a new supplier with account isolation.
func (r *SQLRepository) SaveSupplier(ctx context.Context, accountID string, s *domain.Supplier) error {
	if accountID == "" {
		return fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	query := `INSERT INTO suppliers (` + supplierColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		s.ID, accountID, s.Name,
		nullString(s.ContactEmail), nullString(s.Phone), nullString(s.Address),
		string(s.Status), s.RiskScore, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert supplier: %w", err)
	}
	s.AccountID = accountID
	return nil
}

// GetSupplier retrieves a supplier by ID with account isolation.
func (r *SQLRepository) GetSupplier(ctx context.Context, accountID string, supplierID string) (*domain.Supplier, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	query := `SELECT ` + supplierColumns + ` FROM suppliers WHERE account_id = ? AND id = ?`

	s, err := scanSupplier(r.db.QueryRowContext(ctx, r.rebind(query), accountID, supplierID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// ListSuppliers returns all suppliers of an account, newest first.
func (r *SQLRepository) ListSuppliers(ctx context.Context, accountID string) ([]*domain.Supplier, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	query := `SELECT ` + supplierColumns + ` FROM suppliers WHERE account_id = ? ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := []*domain.Supplier{}
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, rows.Err()
}

// UpdateSupplierStatus changes a supplier's status.
func (r *SQLRepository) UpdateSupplierStatus(ctx context.Context, accountID string, supplierID string, status domain.SupplierStatus) error {
	if accountID == "" {
		return fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	query := `UPDATE suppliers SET status = ?, updated_at = ? WHERE account_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), string(status), time.Now().UTC(), accountID, supplierID)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

func scanSupplier(row scanner) (*domain.Supplier, error) {
	var s domain.Supplier
	var email, phone, address sql.NullString
	var status string

	if err := row.Scan(
		&s.ID, &s.AccountID, &s.Name, &email, &phone, &address,
		&status, &s.RiskScore, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}

	s.ContactEmail = email.String
	s.Phone = phone.String
	s.Address = address.String
	s.Status = domain.SupplierStatus(status)
	return &s, nil
}

func expectOneRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
