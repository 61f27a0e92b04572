// Package submission orchestrates intake of suppliers, invoices, shipments
// and transactions: validation, scoring, a single transactional write and
// the metrics and spans around it.
package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/report"
	"github.com/opensource-finance/kestrel/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("kestrel-submission")

// Service handles submissions and entity reviews for one repository.
type Service struct {
	repo      domain.Repository
	processor *decision.Processor
	now       func() time.Time
}

// NewService creates a submission service.
func NewService(repo domain.Repository, processor *decision.Processor) *Service {
	return &Service{repo: repo, processor: processor, now: time.Now}
}

// SetClock overrides the time source used for supplier stamps.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateSupplier registers a supplier. New suppliers are active with a
// zero risk score unless a status is given.
func (s *Service) CreateSupplier(ctx context.Context, accountID string, req *SupplierRequest) (*domain.Supplier, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sup := &domain.Supplier{
		ID:           uuid.New().String(),
		Name:         req.Name,
		ContactEmail: req.ContactEmail,
		Phone:        req.Phone,
		Address:      req.Address,
		Status:       req.Status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if sup.Status == "" {
		sup.Status = domain.SupplierActive
	}

	if err := s.repo.SaveSupplier(ctx, accountID, sup); err != nil {
		return nil, err
	}
	slog.Info("supplier registered", "account_id", accountID, "supplier_id", sup.ID)
	return sup, nil
}

// GetSupplier returns one supplier.
func (s *Service) GetSupplier(ctx context.Context, accountID, id string) (*domain.Supplier, error) {
	return s.repo.GetSupplier(ctx, accountID, id)
}

// ListSuppliers returns the account's suppliers, newest first.
func (s *Service) ListSuppliers(ctx context.Context, accountID string) ([]*domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx, accountID)
}

// UpdateSupplierStatus changes a supplier's trading status.
func (s *Service) UpdateSupplierStatus(ctx context.Context, accountID, id string, status domain.SupplierStatus) (*domain.Supplier, error) {
	if !status.Valid() {
		return nil, invalid("unknown supplier status %q", status)
	}
	if err := s.repo.UpdateSupplierStatus(ctx, accountID, id, status); err != nil {
		return nil, err
	}
	return s.repo.GetSupplier(ctx, accountID, id)
}

// SubmitInvoice validates, scores and stores an invoice together with the
// alert it raises.
func (s *Service) SubmitInvoice(ctx context.Context, accountID string, req *InvoiceRequest) (*decision.Outcome[*domain.Invoice], error) {
	ctx, span := s.startSpan(ctx, domain.EntityInvoice, accountID)
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, s.fail(span, domain.EntityInvoice, "validation", err)
	}
	supplierName, err := s.supplierName(ctx, accountID, req.SupplierID)
	if err != nil {
		return nil, s.fail(span, domain.EntityInvoice, reason(err), err)
	}

	out, err := s.processor.Invoice(ctx, accountID, req.record(s.now().UTC()))
	if err != nil {
		return nil, s.fail(span, domain.EntityInvoice, "rules", err)
	}
	if err := s.repo.SaveInvoice(ctx, accountID, out.Record, out.Alert); err != nil {
		return nil, s.fail(span, domain.EntityInvoice, "store", err)
	}
	out.Record.SupplierName = supplierName

	s.observe(span, domain.EntityInvoice, string(out.Record.Status), out.Record.FraudScore, out.Alert)
	return out, nil
}

// SubmitShipment validates, scores and stores a shipment together with the
// alert it raises.
func (s *Service) SubmitShipment(ctx context.Context, accountID string, req *ShipmentRequest) (*decision.Outcome[*domain.Shipment], error) {
	ctx, span := s.startSpan(ctx, domain.EntityShipment, accountID)
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, s.fail(span, domain.EntityShipment, "validation", err)
	}
	supplierName, err := s.supplierName(ctx, accountID, req.SupplierID)
	if err != nil {
		return nil, s.fail(span, domain.EntityShipment, reason(err), err)
	}

	out, err := s.processor.Shipment(ctx, accountID, req.record())
	if err != nil {
		return nil, s.fail(span, domain.EntityShipment, "rules", err)
	}
	if err := s.repo.SaveShipment(ctx, accountID, out.Record, out.Alert); err != nil {
		return nil, s.fail(span, domain.EntityShipment, "store", err)
	}
	out.Record.SupplierName = supplierName

	s.observe(span, domain.EntityShipment, string(out.Record.Status), out.Record.FraudScore, out.Alert)
	return out, nil
}

// SubmitTransaction validates, scores, classifies and stores a transaction
// together with the alert it raises.
func (s *Service) SubmitTransaction(ctx context.Context, accountID string, req *TransactionRequest) (*decision.Outcome[*domain.Transaction], error) {
	ctx, span := s.startSpan(ctx, domain.EntityTransaction, accountID)
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, s.fail(span, domain.EntityTransaction, "validation", err)
	}
	supplierName, err := s.supplierName(ctx, accountID, req.SupplierID)
	if err != nil {
		return nil, s.fail(span, domain.EntityTransaction, reason(err), err)
	}

	out, err := s.processor.Transaction(ctx, accountID, req.record())
	if err != nil {
		return nil, s.fail(span, domain.EntityTransaction, "rules", err)
	}
	if err := s.repo.SaveTransaction(ctx, accountID, out.Record, out.Alert); err != nil {
		return nil, s.fail(span, domain.EntityTransaction, "store", err)
	}
	out.Record.SupplierName = supplierName

	s.observe(span, domain.EntityTransaction, string(out.Record.Label), out.Record.FraudScore, out.Alert)
	return out, nil
}

// Submit decodes an envelope and runs the matching submission.
func (s *Service) Submit(ctx context.Context, accountID string, env *Envelope) (any, error) {
	switch env.Kind {
	case domain.EntityInvoice:
		var req InvoiceRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return nil, invalid("malformed invoice payload: %v", err)
		}
		return s.SubmitInvoice(ctx, accountID, &req)
	case domain.EntityShipment:
		var req ShipmentRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return nil, invalid("malformed shipment payload: %v", err)
		}
		return s.SubmitShipment(ctx, accountID, &req)
	case domain.EntityTransaction:
		var req TransactionRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return nil, invalid("malformed transaction payload: %v", err)
		}
		return s.SubmitTransaction(ctx, accountID, &req)
	}
	return nil, invalid("unknown submission kind %q", env.Kind)
}

// GetInvoice returns one invoice.
func (s *Service) GetInvoice(ctx context.Context, accountID, id string) (*domain.Invoice, error) {
	return s.repo.GetInvoice(ctx, accountID, id)
}

// ListInvoices returns the account's invoices, newest first.
func (s *Service) ListInvoices(ctx context.Context, accountID string) ([]*domain.Invoice, error) {
	return s.repo.ListInvoices(ctx, accountID)
}

// ReviewInvoice approves or rejects an invoice.
func (s *Service) ReviewInvoice(ctx context.Context, accountID, id string, status domain.InvoiceStatus) (*domain.Invoice, error) {
	if !status.Valid() {
		return nil, invalid("unknown invoice status %q", status)
	}
	if err := s.repo.UpdateInvoiceStatus(ctx, accountID, id, status); err != nil {
		return nil, err
	}
	slog.Info("invoice reviewed", "account_id", accountID, "invoice_id", id, "status", status)
	return s.repo.GetInvoice(ctx, accountID, id)
}

// GetShipment returns one shipment.
func (s *Service) GetShipment(ctx context.Context, accountID, id string) (*domain.Shipment, error) {
	return s.repo.GetShipment(ctx, accountID, id)
}

// ListShipments returns the account's shipments, newest first.
func (s *Service) ListShipments(ctx context.Context, accountID string) ([]*domain.Shipment, error) {
	return s.repo.ListShipments(ctx, accountID)
}

// UpdateShipmentStatus moves a shipment along its delivery lifecycle.
func (s *Service) UpdateShipmentStatus(ctx context.Context, accountID, id string, status domain.ShipmentStatus) (*domain.Shipment, error) {
	if !status.Valid() {
		return nil, invalid("unknown shipment status %q", status)
	}
	if err := s.repo.UpdateShipmentStatus(ctx, accountID, id, status); err != nil {
		return nil, err
	}
	slog.Info("shipment status updated", "account_id", accountID, "shipment_id", id, "status", status)
	return s.repo.GetShipment(ctx, accountID, id)
}

// GetTransaction returns one transaction.
func (s *Service) GetTransaction(ctx context.Context, accountID, id string) (*domain.Transaction, error) {
	return s.repo.GetTransaction(ctx, accountID, id)
}

// ListTransactions returns the account's transactions, newest first.
func (s *Service) ListTransactions(ctx context.Context, accountID string) ([]*domain.Transaction, error) {
	return s.repo.ListTransactions(ctx, accountID)
}

// Summary loads every record of the account and aggregates the dashboard.
func (s *Service) Summary(ctx context.Context, accountID string) (*report.Summary, error) {
	var snap report.Snapshot
	var err error

	if snap.Suppliers, err = s.repo.ListSuppliers(ctx, accountID); err != nil {
		return nil, fmt.Errorf("failed to load suppliers: %w", err)
	}
	if snap.Invoices, err = s.repo.ListInvoices(ctx, accountID); err != nil {
		return nil, fmt.Errorf("failed to load invoices: %w", err)
	}
	if snap.Shipments, err = s.repo.ListShipments(ctx, accountID); err != nil {
		return nil, fmt.Errorf("failed to load shipments: %w", err)
	}
	if snap.Transactions, err = s.repo.ListTransactions(ctx, accountID); err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	if snap.Alerts, err = s.repo.ListAlerts(ctx, accountID); err != nil {
		return nil, fmt.Errorf("failed to load alerts: %w", err)
	}
	return report.Build(snap), nil
}

// supplierName resolves an optional supplier reference. An unknown
// supplier is a validation error.
func (s *Service) supplierName(ctx context.Context, accountID, supplierID string) (string, error) {
	if supplierID == "" {
		return "", nil
	}
	sup, err := s.repo.GetSupplier(ctx, accountID, supplierID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", invalid("unknown supplier %q", supplierID)
	}
	if err != nil {
		return "", err
	}
	return sup.Name, nil
}

func (s *Service) startSpan(ctx context.Context, kind domain.EntityKind, accountID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "submit "+string(kind),
		trace.WithAttributes(
			attribute.String("entity.kind", string(kind)),
			attribute.String("account.id", accountID),
		),
	)
}

func (s *Service) fail(span trace.Span, kind domain.EntityKind, why string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	metrics.SubmissionErrorsTotal.WithLabelValues(string(kind), why).Inc()
	if why != "validation" {
		slog.Error("submission failed", "kind", kind, "reason", why, "error", err)
	}
	return err
}

func (s *Service) observe(span trace.Span, kind domain.EntityKind, status string, score int, alert *domain.FraudAlert) {
	metrics.ObserveSubmission(string(kind), status, score)
	span.SetAttributes(
		attribute.Int("fraud.score", score),
		attribute.String("fraud.status", status),
	)
	if alert == nil {
		return
	}
	metrics.AlertsRaisedTotal.WithLabelValues(string(alert.Severity)).Inc()
	span.SetAttributes(attribute.String("alert.id", alert.ID))
	slog.Info("alert raised",
		"account_id", alert.AccountID,
		"alert_id", alert.ID,
		"entity_type", alert.EntityType,
		"entity_id", alert.EntityID,
		"severity", alert.Severity,
	)
}

func reason(err error) string {
	if errors.Is(err, ErrValidation) {
		return "validation"
	}
	return "store"
}
