// Package report aggregates stored records into summary statistics.
// Every function is a pure projection over the given slices.
package report

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Rate is a whole-number percentage that may be not applicable.
type Rate struct {
	Value      int
	Applicable bool
}

// NotApplicable is the rate of an empty population where zero would
// be misleading.
var NotApplicable = Rate{}

// Percent returns an applicable rate.
func Percent(v int) Rate {
	return Rate{Value: v, Applicable: true}
}

// String renders the rate as "30%" or "N/A".
func (r Rate) String() string {
	if !r.Applicable {
		return "N/A"
	}
	return strconv.Itoa(r.Value) + "%"
}

// MarshalJSON encodes the value, or null when not applicable.
func (r Rate) MarshalJSON() ([]byte, error) {
	if !r.Applicable {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

// UnmarshalJSON decodes a number or null.
func (r *Rate) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = NotApplicable
		return nil
	}
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = Percent(v)
	return nil
}

func percentOf(part, total int) int {
	return int(math.Round(100 * float64(part) / float64(total)))
}

// DetectionRate is the share of suspicious and fraudulent transactions.
// An empty population has a detection rate of zero.
func DetectionRate(txs []*domain.Transaction) int {
	if len(txs) == 0 {
		return 0
	}
	flagged := 0
	for _, tx := range txs {
		if tx.Label == domain.LabelSuspicious || tx.Label == domain.LabelFraudulent {
			flagged++
		}
	}
	return percentOf(flagged, len(txs))
}

// ResolutionRate is the share of resolved alerts, or NotApplicable when
// there are none.
func ResolutionRate(alerts []*domain.FraudAlert) Rate {
	if len(alerts) == 0 {
		return NotApplicable
	}
	resolved := 0
	for _, a := range alerts {
		if a.IsResolved {
			resolved++
		}
	}
	return Percent(percentOf(resolved, len(alerts)))
}

// CountByLabel counts transactions per classifier label.
func CountByLabel(txs []*domain.Transaction) map[domain.Label]int {
	out := map[domain.Label]int{
		domain.LabelNormal:     0,
		domain.LabelSuspicious: 0,
		domain.LabelFraudulent: 0,
	}
	for _, tx := range txs {
		out[tx.Label]++
	}
	return out
}

// CountBySeverity counts alerts per severity.
func CountBySeverity(alerts []*domain.FraudAlert) map[domain.Severity]int {
	out := map[domain.Severity]int{
		domain.SeverityMedium:   0,
		domain.SeverityHigh:     0,
		domain.SeverityCritical: 0,
	}
	for _, a := range alerts {
		out[a.Severity]++
	}
	return out
}

// CountBySupplierStatus counts suppliers per status.
func CountBySupplierStatus(suppliers []*domain.Supplier) map[domain.SupplierStatus]int {
	out := map[domain.SupplierStatus]int{
		domain.SupplierActive:      0,
		domain.SupplierSuspended:   0,
		domain.SupplierBlacklisted: 0,
	}
	for _, s := range suppliers {
		out[s.Status]++
	}
	return out
}

// CountByInvoiceStatus counts invoices per status.
func CountByInvoiceStatus(invoices []*domain.Invoice) map[domain.InvoiceStatus]int {
	out := map[domain.InvoiceStatus]int{
		domain.InvoicePending:  0,
		domain.InvoiceFlagged:  0,
		domain.InvoiceApproved: 0,
		domain.InvoiceRejected: 0,
	}
	for _, inv := range invoices {
		out[inv.Status]++
	}
	return out
}

// CountByShipmentStatus counts shipments per status.
func CountByShipmentStatus(shipments []*domain.Shipment) map[domain.ShipmentStatus]int {
	out := map[domain.ShipmentStatus]int{
		domain.ShipmentInTransit: 0,
		domain.ShipmentDelivered: 0,
		domain.ShipmentFlagged:   0,
		domain.ShipmentDelayed:   0,
	}
	for _, sh := range shipments {
		out[sh.Status]++
	}
	return out
}
