package domain

import "time"

// Severity is the urgency of a fraud alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Alert types raised by the built-in policy.
const (
	AlertInvoiceMismatch      = "Invoice Mismatch"
	AlertQuantityManipulation = "Quantity Manipulation"
	AlertSuspiciousPrefix     = "Suspicious "
)

// FraudAlert is a durable review obligation tied to one scored record.
// It is created unresolved and resolved at most once logically; it is never deleted.
type FraudAlert struct {
	ID          string     `json:"id"`
	AccountID   string     `json:"accountId"`
	EntityType  EntityKind `json:"entityType"`
	EntityID    string     `json:"entityId"`
	AlertType   string     `json:"alertType"`
	Severity    Severity   `json:"severity"`
	Description string     `json:"description"`
	IsResolved  bool       `json:"isResolved"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Active reports whether the alert still needs review.
func (a *FraudAlert) Active() bool {
	return !a.IsResolved
}

// PartitionAlerts splits alerts into active and resolved, preserving order.
func PartitionAlerts(alerts []*FraudAlert) (active, resolved []*FraudAlert) {
	for _, a := range alerts {
		if a.IsResolved {
			resolved = append(resolved, a)
		} else {
			active = append(active, a)
		}
	}
	return active, resolved
}
