package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const invoiceSelect = `
	SELECT i.id, i.account_id, i.supplier_id, COALESCE(s.name, ''), i.invoice_number,
		   i.amount, i.expected_amount, i.issue_date, i.due_date,
		   i.fraud_score, i.status, i.created_at, i.updated_at
	FROM invoices i
	LEFT JOIN suppliers s ON s.id = i.supplier_id AND s.account_id = i.account_id
`

// SaveInvoice stores a scored invoice and its optional alert atomically.
func (r *SQLRepository) SaveInvoice(ctx context.Context, accountID string, inv *domain.Invoice, alert *domain.FraudAlert) error {
	insert := func(tx *sql.Tx) error {
		query := `
			INSERT INTO invoices (
				id, account_id, supplier_id, invoice_number, amount, expected_amount,
				issue_date, due_date, fraud_score, status, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := tx.ExecContext(ctx, r.rebind(query),
			inv.ID, accountID, nullString(inv.SupplierID), inv.InvoiceNumber,
			inv.Amount, inv.ExpectedAmount, inv.IssueDate, nullTime(inv.DueDate),
			inv.FraudScore, string(inv.Status), inv.CreatedAt, inv.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert invoice: %w", err)
		}
		return nil
	}

	event := domain.ScoredEvent{
		EntityType: domain.EntityInvoice,
		EntityID:   inv.ID,
		Score:      inv.FraudScore,
		Status:     string(inv.Status),
	}
	if err := r.saveScored(ctx, accountID, insert, event, inv.CreatedAt, alert); err != nil {
		return err
	}
	inv.AccountID = accountID
	return nil
}

// GetInvoice retrieves an invoice by ID with account isolation.
func (r *SQLRepository) GetInvoice(ctx context.Context, accountID string, invoiceID string) (*domain.Invoice, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	query := invoiceSelect + ` WHERE i.account_id = ? AND i.id = ?`

	inv, err := scanInvoice(r.db.QueryRowContext(ctx, r.rebind(query), accountID, invoiceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return inv, err
}

// ListInvoices returns all invoices of an account with supplier names, newest first.
func (r *SQLRepository) ListInvoices(ctx context.Context, accountID string) ([]*domain.Invoice, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	query := invoiceSelect + ` WHERE i.account_id = ? ORDER BY i.created_at DESC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := []*domain.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// UpdateInvoiceStatus applies a reviewer decision. The current status is
// read and checked in the same transaction as the update.
func (r *SQLRepository) UpdateInvoiceStatus(ctx context.Context, accountID string, invoiceID string, status domain.InvoiceStatus) error {
	if accountID == "" {
		return fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx,
			r.rebind(`SELECT status FROM invoices WHERE account_id = ? AND id = ?`),
			accountID, invoiceID,
		).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if !domain.InvoiceStatus(current).CanTransitionTo(status) {
			return fmt.Errorf("%w: invoice %s -> %s", domain.ErrInvalidTransition, current, status)
		}

		_, err = tx.ExecContext(ctx,
			r.rebind(`UPDATE invoices SET status = ?, updated_at = ? WHERE account_id = ? AND id = ?`),
			string(status), time.Now().UTC(), accountID, invoiceID,
		)
		return err
	})
}

func scanInvoice(row scanner) (*domain.Invoice, error) {
	var inv domain.Invoice
	var supplierID sql.NullString
	var dueDate sql.NullTime
	var status string

	if err := row.Scan(
		&inv.ID, &inv.AccountID, &supplierID, &inv.SupplierName, &inv.InvoiceNumber,
		&inv.Amount, &inv.ExpectedAmount, &inv.IssueDate, &dueDate,
		&inv.FraudScore, &status, &inv.CreatedAt, &inv.UpdatedAt,
	); err != nil {
		return nil, err
	}

	inv.SupplierID = supplierID.String
	inv.DueDate = timePtr(dueDate)
	inv.Status = domain.InvoiceStatus(status)
	return &inv, nil
}
