package domain

import "time"

// SupplierStatus is the trading status of a supplier.
type SupplierStatus string

const (
	SupplierActive      SupplierStatus = "active"
	SupplierSuspended   SupplierStatus = "suspended"
	SupplierBlacklisted SupplierStatus = "blacklisted"
)

// Valid reports whether s is a known supplier status.
func (s SupplierStatus) Valid() bool {
	switch s {
	case SupplierActive, SupplierSuspended, SupplierBlacklisted:
		return true
	}
	return false
}

// Supplier is a counterparty that issues invoices and ships goods.
// Suppliers are never deleted; only their status changes.
type Supplier struct {
	ID           string         `json:"id"`
	AccountID    string         `json:"accountId"`
	Name         string         `json:"name"`
	ContactEmail string         `json:"contactEmail,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	Address      string         `json:"address,omitempty"`
	Status       SupplierStatus `json:"status"`
	RiskScore    int            `json:"riskScore"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}
