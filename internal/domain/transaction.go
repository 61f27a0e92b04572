package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the kind of money movement.
type TransactionType string

const (
	TxPayment    TransactionType = "payment"
	TxRefund     TransactionType = "refund"
	TxAdjustment TransactionType = "adjustment"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TxPayment, TxRefund, TxAdjustment:
		return true
	}
	return false
}

// Label is the classifier verdict attached to a transaction.
type Label string

const (
	LabelNormal     Label = "normal"
	LabelSuspicious Label = "suspicious"
	LabelFraudulent Label = "fraudulent"
)

// Valid reports whether l is a known label.
func (l Label) Valid() bool {
	switch l {
	case LabelNormal, LabelSuspicious, LabelFraudulent:
		return true
	}
	return false
}

// Transaction is a financial movement with a supplier, scored once at submission.
type Transaction struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"accountId"`
	SupplierID   string          `json:"supplierId,omitempty"`
	SupplierName string          `json:"supplierName,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Type         TransactionType `json:"transactionType"`
	FraudScore   int             `json:"fraudScore"`
	Label        Label           `json:"mlLabel"`
	IsSuspicious bool            `json:"isSuspicious"`
	CreatedAt    time.Time       `json:"createdAt"`
}
