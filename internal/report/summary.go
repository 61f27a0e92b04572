package report

import "github.com/opensource-finance/kestrel/internal/domain"

// RecentAlertLimit caps the alerts carried on a Summary.
const RecentAlertLimit = 5

// Snapshot is the set of records a summary is built from. Alerts are
// expected newest first.
type Snapshot struct {
	Suppliers    []*domain.Supplier
	Invoices     []*domain.Invoice
	Shipments    []*domain.Shipment
	Transactions []*domain.Transaction
	Alerts       []*domain.FraudAlert
}

// Summary holds dashboard totals and report breakdowns for one account.
type Summary struct {
	TotalSuppliers    int `json:"totalSuppliers"`
	TotalInvoices     int `json:"totalInvoices"`
	TotalShipments    int `json:"totalShipments"`
	TotalTransactions int `json:"totalTransactions"`
	TotalAlerts       int `json:"totalAlerts"`
	ActiveAlerts      int `json:"activeAlerts"`
	ResolvedAlerts    int `json:"resolvedAlerts"`
	FlaggedInvoices   int `json:"flaggedInvoices"`
	FlaggedShipments  int `json:"flaggedShipments"`

	DetectionRate  int  `json:"detectionRate"`
	ResolutionRate Rate `json:"resolutionRate"`

	ByLabel          map[domain.Label]int          `json:"byLabel"`
	BySeverity       map[domain.Severity]int       `json:"bySeverity"`
	BySupplierStatus map[domain.SupplierStatus]int `json:"bySupplierStatus"`
	ByInvoiceStatus  map[domain.InvoiceStatus]int  `json:"byInvoiceStatus"`
	ByShipmentStatus map[domain.ShipmentStatus]int `json:"byShipmentStatus"`

	RecentAlerts []*domain.FraudAlert `json:"recentAlerts"`
}

// Build computes a Summary from a snapshot.
func Build(s Snapshot) *Summary {
	active, resolved := domain.PartitionAlerts(s.Alerts)

	sum := &Summary{
		TotalSuppliers:    len(s.Suppliers),
		TotalInvoices:     len(s.Invoices),
		TotalShipments:    len(s.Shipments),
		TotalTransactions: len(s.Transactions),
		TotalAlerts:       len(s.Alerts),
		ActiveAlerts:      len(active),
		ResolvedAlerts:    len(resolved),
		DetectionRate:     DetectionRate(s.Transactions),
		ResolutionRate:    ResolutionRate(s.Alerts),
		ByLabel:           CountByLabel(s.Transactions),
		BySeverity:        CountBySeverity(s.Alerts),
		BySupplierStatus:  CountBySupplierStatus(s.Suppliers),
		ByInvoiceStatus:   CountByInvoiceStatus(s.Invoices),
		ByShipmentStatus:  CountByShipmentStatus(s.Shipments),
	}
	sum.FlaggedInvoices = sum.ByInvoiceStatus[domain.InvoiceFlagged]
	sum.FlaggedShipments = sum.ByShipmentStatus[domain.ShipmentFlagged]

	recent := s.Alerts
	if len(recent) > RecentAlertLimit {
		recent = recent[:RecentAlertLimit]
	}
	sum.RecentAlerts = append([]*domain.FraudAlert{}, recent...)
	return sum
}
