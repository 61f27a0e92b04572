package domain

import "time"

// ShipmentStatus is the delivery status of a shipment.
type ShipmentStatus string

const (
	ShipmentInTransit ShipmentStatus = "in_transit"
	ShipmentDelivered ShipmentStatus = "delivered"
	ShipmentFlagged   ShipmentStatus = "flagged"
	ShipmentDelayed   ShipmentStatus = "delayed"
)

// Valid reports whether s is a known shipment status.
func (s ShipmentStatus) Valid() bool {
	switch s {
	case ShipmentInTransit, ShipmentDelivered, ShipmentFlagged, ShipmentDelayed:
		return true
	}
	return false
}

// CanTransitionTo reports whether an operator may move a shipment from s to next.
// Delivered and flagged are terminal; delayed is only reachable by hand.
func (s ShipmentStatus) CanTransitionTo(next ShipmentStatus) bool {
	switch s {
	case ShipmentInTransit:
		return next == ShipmentDelivered || next == ShipmentDelayed || next == ShipmentFlagged
	case ShipmentDelayed:
		return next == ShipmentDelivered || next == ShipmentFlagged
	}
	return false
}

// Shipment is a physical delivery from a supplier, scored once at submission.
// A zero quantity means the quantity was not supplied.
type Shipment struct {
	ID               string         `json:"id"`
	AccountID        string         `json:"accountId"`
	SupplierID       string         `json:"supplierId,omitempty"`
	SupplierName     string         `json:"supplierName,omitempty"`
	TrackingNumber   string         `json:"trackingNumber,omitempty"`
	ExpectedQuantity int64          `json:"expectedQuantity"`
	ReceivedQuantity int64          `json:"receivedQuantity"`
	ShippedDate      *time.Time     `json:"shippedDate,omitempty"`
	DeliveryDate     *time.Time     `json:"deliveryDate,omitempty"`
	FraudScore       int            `json:"fraudScore"`
	Status           ShipmentStatus `json:"status"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}
