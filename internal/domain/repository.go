// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All account-facing methods require accountID for strict isolation.
type Repository interface {
	// Supplier operations
	SaveSupplier(ctx context.Context, accountID string, s *Supplier) error
	GetSupplier(ctx context.Context, accountID string, supplierID string) (*Supplier, error)
	ListSuppliers(ctx context.Context, accountID string) ([]*Supplier, error)
	UpdateSupplierStatus(ctx context.Context, accountID string, supplierID string, status SupplierStatus) error

	// Scored submissions. Each call writes the record, the optional alert
	// and their outbox events in one database transaction.
	SaveInvoice(ctx context.Context, accountID string, inv *Invoice, alert *FraudAlert) error
	SaveShipment(ctx context.Context, accountID string, sh *Shipment, alert *FraudAlert) error
	SaveTransaction(ctx context.Context, accountID string, tx *Transaction, alert *FraudAlert) error

	GetInvoice(ctx context.Context, accountID string, invoiceID string) (*Invoice, error)
	ListInvoices(ctx context.Context, accountID string) ([]*Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, accountID string, invoiceID string, status InvoiceStatus) error

	GetShipment(ctx context.Context, accountID string, shipmentID string) (*Shipment, error)
	ListShipments(ctx context.Context, accountID string) ([]*Shipment, error)
	UpdateShipmentStatus(ctx context.Context, accountID string, shipmentID string, status ShipmentStatus) error

	GetTransaction(ctx context.Context, accountID string, txID string) (*Transaction, error)
	ListTransactions(ctx context.Context, accountID string) ([]*Transaction, error)

	// Alert operations
	SaveAlert(ctx context.Context, accountID string, alert *FraudAlert) error
	// SaveAlertUnique returns the unresolved alert for the same entity and
	// alert type instead of saving, if one exists.
	SaveAlertUnique(ctx context.Context, accountID string, alert *FraudAlert) (*FraudAlert, error)
	GetAlert(ctx context.Context, accountID string, alertID string) (*FraudAlert, error)
	ListAlerts(ctx context.Context, accountID string) ([]*FraudAlert, error)
	FindOpenAlert(ctx context.Context, accountID string, entityType EntityKind, entityID string, alertType string) (*FraudAlert, error)
	ResolveAlert(ctx context.Context, accountID string, alertID string, at time.Time) error

	// Rule configuration operations
	SaveRuleConfig(ctx context.Context, tenantID string, rule *RuleConfig) error
	ListRuleConfigs(ctx context.Context, tenantID string) ([]*RuleConfig, error)

	// Outbox operations span all accounts and are used by the relay only.
	PendingOutbox(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkDispatched(ctx context.Context, ids []string, at time.Time) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific. PostgresURL, when set, overrides the other fields.
	PostgresURL      string
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
