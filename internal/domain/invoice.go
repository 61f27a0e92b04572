package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the review status of an invoice.
type InvoiceStatus string

const (
	InvoicePending  InvoiceStatus = "pending"
	InvoiceFlagged  InvoiceStatus = "flagged"
	InvoiceApproved InvoiceStatus = "approved"
	InvoiceRejected InvoiceStatus = "rejected"
)

// Valid reports whether s is a known invoice status.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoicePending, InvoiceFlagged, InvoiceApproved, InvoiceRejected:
		return true
	}
	return false
}

// Terminal reports whether no further status change is allowed.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceApproved || s == InvoiceRejected
}

// CanTransitionTo reports whether a reviewer may move an invoice from s to next.
// Scoring only ever produces pending or flagged; approval and rejection are
// set by a reviewer.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	if s.Terminal() {
		return false
	}
	return next == InvoiceApproved || next == InvoiceRejected
}

// Invoice is a supplier-issued bill, scored once at submission.
type Invoice struct {
	ID             string              `json:"id"`
	AccountID      string              `json:"accountId"`
	SupplierID     string              `json:"supplierId,omitempty"`
	SupplierName   string              `json:"supplierName,omitempty"`
	InvoiceNumber  string              `json:"invoiceNumber"`
	Amount         decimal.Decimal     `json:"amount"`
	ExpectedAmount decimal.NullDecimal `json:"expectedAmount"`
	IssueDate      time.Time           `json:"issueDate"`
	DueDate        *time.Time          `json:"dueDate,omitempty"`
	FraudScore     int                 `json:"fraudScore"`
	Status         InvoiceStatus       `json:"status"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}
