package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const shipmentSelect = `
	SELECT sh.id, sh.account_id, sh.supplier_id, COALESCE(s.name, ''), sh.tracking_number,
		   sh.expected_quantity, sh.received_quantity, sh.shipped_date, sh.delivery_date,
		   sh.fraud_score, sh.status, sh.created_at, sh.updated_at
	FROM shipments sh
	LEFT JOIN suppliers s ON s.id = sh.supplier_id AND s.account_id = sh.account_id
`

// SaveShipment stores a scored shipment and its optional alert atomically.
// Zero quantities are stored as NULL.
func (r *SQLRepository) SaveShipment(ctx context.Context, accountID string, sh *domain.Shipment, alert *domain.FraudAlert) error {
	insert := func(tx *sql.Tx) error {
		query := `
			INSERT INTO shipments (
				id, account_id, supplier_id, tracking_number, expected_quantity, received_quantity,
				shipped_date, delivery_date, fraud_score, status, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := tx.ExecContext(ctx, r.rebind(query),
			sh.ID, accountID, nullString(sh.SupplierID), nullString(sh.TrackingNumber),
			nullPositive(sh.ExpectedQuantity), nullPositive(sh.ReceivedQuantity),
			nullTime(sh.ShippedDate), nullTime(sh.DeliveryDate),
			sh.FraudScore, string(sh.Status), sh.CreatedAt, sh.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert shipment: %w", err)
		}
		return nil
	}

	event := domain.ScoredEvent{
		EntityType: domain.EntityShipment,
		EntityID:   sh.ID,
		Score:      sh.FraudScore,
		Status:     string(sh.Status),
	}
	if err := r.saveScored(ctx, accountID, insert, event, sh.CreatedAt, alert); err != nil {
		return err
	}
	sh.AccountID = accountID
	return nil
}

// GetShipment retrieves a shipment by ID with account isolation.
func (r *SQLRepository) GetShipment(ctx context.Context, accountID string, shipmentID string) (*domain.Shipment, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	query := shipmentSelect + ` WHERE sh.account_id = ? AND sh.id = ?`

	sh, err := scanShipment(r.db.QueryRowContext(ctx, r.rebind(query), accountID, shipmentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sh, err
}

// ListShipments returns all shipments of an account with supplier names, newest first.
func (r *SQLRepository) ListShipments(ctx context.Context, accountID string) ([]*domain.Shipment, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	query := shipmentSelect + ` WHERE sh.account_id = ? ORDER BY sh.created_at DESC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shipments := []*domain.Shipment{}
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		shipments = append(shipments, sh)
	}
	return shipments, rows.Err()
}

// UpdateShipmentStatus applies an operator status change after checking
// the transition in the same transaction.
func (r *SQLRepository) UpdateShipmentStatus(ctx context.Context, accountID string, shipmentID string, status domain.ShipmentStatus) error {
	if accountID == "" {
		return fmt.Errorf("%w: accountID is required", ErrInvalidInput)
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx,
			r.rebind(`SELECT status FROM shipments WHERE account_id = ? AND id = ?`),
			accountID, shipmentID,
		).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if !domain.ShipmentStatus(current).CanTransitionTo(status) {
			return fmt.Errorf("%w: shipment %s -> %s", domain.ErrInvalidTransition, current, status)
		}

		_, err = tx.ExecContext(ctx,
			r.rebind(`UPDATE shipments SET status = ?, updated_at = ? WHERE account_id = ? AND id = ?`),
			string(status), time.Now().UTC(), accountID, shipmentID,
		)
		return err
	})
}

func scanShipment(row scanner) (*domain.Shipment, error) {
	var sh domain.Shipment
	var supplierID, tracking sql.NullString
	var expected, received sql.NullInt64
	var shipped, delivered sql.NullTime
	var status string

	if err := row.Scan(
		&sh.ID, &sh.AccountID, &supplierID, &sh.SupplierName, &tracking,
		&expected, &received, &shipped, &delivered,
		&sh.FraudScore, &status, &sh.CreatedAt, &sh.UpdatedAt,
	); err != nil {
		return nil, err
	}

	sh.SupplierID = supplierID.String
	sh.TrackingNumber = tracking.String
	sh.ExpectedQuantity = expected.Int64
	sh.ReceivedQuantity = received.Int64
	sh.ShippedDate = timePtr(shipped)
	sh.DeliveryDate = timePtr(delivered)
	sh.Status = domain.ShipmentStatus(status)
	return &sh, nil
}
