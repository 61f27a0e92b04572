package submission

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// ErrValidation is returned when a request is rejected before any write.
var ErrValidation = errors.New("validation failed")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// SupplierRequest is the body of a supplier registration.
type SupplierRequest struct {
	Name         string                `json:"name"`
	ContactEmail string                `json:"contactEmail,omitempty"`
	Phone        string                `json:"phone,omitempty"`
	Address      string                `json:"address,omitempty"`
	Status       domain.SupplierStatus `json:"status,omitempty"`
}

// Validate checks required fields and enums.
func (r *SupplierRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return invalid("name is required")
	}
	if r.Status != "" && !r.Status.Valid() {
		return invalid("unknown supplier status %q", r.Status)
	}
	return nil
}

// InvoiceRequest is the body of an invoice submission.
type InvoiceRequest struct {
	SupplierID     string              `json:"supplierId,omitempty"`
	InvoiceNumber  string              `json:"invoiceNumber"`
	Amount         decimal.NullDecimal `json:"amount"`
	ExpectedAmount decimal.NullDecimal `json:"expectedAmount"`
	IssueDate      *time.Time          `json:"issueDate,omitempty"`
	DueDate        *time.Time          `json:"dueDate,omitempty"`
}

// Validate checks required fields and amount signs.
func (r *InvoiceRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.InvoiceNumber) == "":
		return invalid("invoiceNumber is required")
	case !r.Amount.Valid:
		return invalid("amount is required")
	case r.Amount.Decimal.IsNegative():
		return invalid("amount must not be negative")
	case r.ExpectedAmount.Valid && r.ExpectedAmount.Decimal.IsNegative():
		return invalid("expectedAmount must not be negative")
	}
	return nil
}

func (r *InvoiceRequest) record(now time.Time) *domain.Invoice {
	inv := &domain.Invoice{
		SupplierID:     r.SupplierID,
		InvoiceNumber:  strings.TrimSpace(r.InvoiceNumber),
		Amount:         r.Amount.Decimal,
		ExpectedAmount: r.ExpectedAmount,
		IssueDate:      now,
		DueDate:        r.DueDate,
	}
	if r.IssueDate != nil {
		inv.IssueDate = r.IssueDate.UTC()
	}
	return inv
}

// ShipmentRequest is the body of a shipment submission. Absent quantities
// leave the shipment unevaluated.
type ShipmentRequest struct {
	SupplierID       string     `json:"supplierId,omitempty"`
	TrackingNumber   string     `json:"trackingNumber,omitempty"`
	ExpectedQuantity *int64     `json:"expectedQuantity,omitempty"`
	ReceivedQuantity *int64     `json:"receivedQuantity,omitempty"`
	ShippedDate      *time.Time `json:"shippedDate,omitempty"`
	DeliveryDate     *time.Time `json:"deliveryDate,omitempty"`
}

// Validate rejects negative quantities.
func (r *ShipmentRequest) Validate() error {
	if r.ExpectedQuantity != nil && *r.ExpectedQuantity < 0 {
		return invalid("expectedQuantity must not be negative")
	}
	if r.ReceivedQuantity != nil && *r.ReceivedQuantity < 0 {
		return invalid("receivedQuantity must not be negative")
	}
	return nil
}

func (r *ShipmentRequest) record() *domain.Shipment {
	sh := &domain.Shipment{
		SupplierID:     r.SupplierID,
		TrackingNumber: strings.TrimSpace(r.TrackingNumber),
		ShippedDate:    r.ShippedDate,
		DeliveryDate:   r.DeliveryDate,
	}
	if r.ExpectedQuantity != nil {
		sh.ExpectedQuantity = *r.ExpectedQuantity
	}
	if r.ReceivedQuantity != nil {
		sh.ReceivedQuantity = *r.ReceivedQuantity
	}
	return sh
}

// TransactionRequest is the body of a transaction submission.
type TransactionRequest struct {
	SupplierID string                 `json:"supplierId,omitempty"`
	Amount     decimal.NullDecimal    `json:"amount"`
	Type       domain.TransactionType `json:"transactionType"`
}

// Validate checks the amount and transaction type.
func (r *TransactionRequest) Validate() error {
	switch {
	case !r.Amount.Valid:
		return invalid("amount is required")
	case r.Amount.Decimal.IsNegative():
		return invalid("amount must not be negative")
	case !r.Type.Valid():
		return invalid("unknown transaction type %q", r.Type)
	}
	return nil
}

func (r *TransactionRequest) record() *domain.Transaction {
	return &domain.Transaction{
		SupplierID: r.SupplierID,
		Amount:     r.Amount.Decimal,
		Type:       r.Type,
	}
}

// Envelope carries a submission of any kind over the event bus.
type Envelope struct {
	Kind    domain.EntityKind `json:"kind"`
	Payload json.RawMessage   `json:"payload"`
}

// NewEnvelope encodes a request for asynchronous intake.
func NewEnvelope(kind domain.EntityKind, req any) (*Envelope, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s submission: %w", kind, err)
	}
	return &Envelope{Kind: kind, Payload: payload}, nil
}
