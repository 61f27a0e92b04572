// Package alerting decides when a scored record needs human review and
// manages the lifecycle of the resulting fraud alerts.
package alerting

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// Thresholds sets the severity cut points.
type Thresholds struct {
	// HighAbove upgrades invoice and shipment alerts from medium to high.
	HighAbove int

	// CriticalAbove upgrades transaction alerts from medium to critical.
	CriticalAbove int
}

// DefaultThresholds returns the standard severity cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{HighAbove: 70, CriticalAbove: 60}
}

// Draft is an alert decided by the policy but not yet stored.
type Draft struct {
	EntityType  domain.EntityKind `json:"entityType"`
	EntityID    string            `json:"entityId"`
	AlertType   string            `json:"alertType"`
	Severity    domain.Severity   `json:"severity"`
	Description string            `json:"description"`
}

// Policy maps scored records to alert drafts.
type Policy struct {
	th Thresholds
}

// NewPolicy creates a policy with the given thresholds.
func NewPolicy(th Thresholds) *Policy {
	return &Policy{th: th}
}

// ForInvoice returns a draft when the invoice was flagged, nil otherwise.
func (p *Policy) ForInvoice(inv *domain.Invoice) *Draft {
	if inv.Status != domain.InvoiceFlagged {
		return nil
	}
	return &Draft{
		EntityType:  domain.EntityInvoice,
		EntityID:    inv.ID,
		AlertType:   domain.AlertInvoiceMismatch,
		Severity:    p.highOrMedium(inv.FraudScore),
		Description: fmt.Sprintf("Invoice %s flagged with fraud score %d%%. Amount deviation detected.", inv.InvoiceNumber, inv.FraudScore),
	}
}

// ForShipment returns a draft when the shipment was flagged, nil otherwise.
func (p *Policy) ForShipment(sh *domain.Shipment) *Draft {
	if sh.Status != domain.ShipmentFlagged {
		return nil
	}
	return &Draft{
		EntityType:  domain.EntityShipment,
		EntityID:    sh.ID,
		AlertType:   domain.AlertQuantityManipulation,
		Severity:    p.highOrMedium(sh.FraudScore),
		Description: fmt.Sprintf("Shipment %s flagged. Expected: %d, Received: %d.", sh.TrackingNumber, sh.ExpectedQuantity, sh.ReceivedQuantity),
	}
}

// ForTransaction returns a draft when the transaction is suspicious, nil otherwise.
func (p *Policy) ForTransaction(tx *domain.Transaction) *Draft {
	if !tx.IsSuspicious {
		return nil
	}
	severity := domain.SeverityMedium
	if tx.FraudScore > p.th.CriticalAbove {
		severity = domain.SeverityCritical
	}
	return &Draft{
		EntityType:  domain.EntityTransaction,
		EntityID:    tx.ID,
		AlertType:   domain.AlertSuspiciousPrefix + string(tx.Type),
		Severity:    severity,
		Description: fmt.Sprintf("Transaction of $%s classified as %s (score: %d%%).", FormatAmount(tx.Amount), tx.Label, tx.FraudScore),
	}
}

func (p *Policy) highOrMedium(score int) domain.Severity {
	if score > p.th.HighAbove {
		return domain.SeverityHigh
	}
	return domain.SeverityMedium
}

// FormatAmount renders an amount with thousands separators and no
// trailing zeros, e.g. 150000.50 as "150,000.5".
func FormatAmount(d decimal.Decimal) string {
	s := d.String()
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
