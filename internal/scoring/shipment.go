package scoring

import "github.com/opensource-finance/kestrel/internal/domain"

// Factor names for shipments.
const (
	FactorQuantityDeviation = "quantity_deviation"
	FactorOverReceipt       = "over_receipt"
)

// EvaluateShipment scores received against expected quantity. Nothing is
// evaluated unless both quantities are positive; evaluated is false then.
func EvaluateShipment(expected, received int64, th ShipmentThresholds) (r Result, evaluated bool) {
	if expected <= 0 || received <= 0 {
		return r, false
	}

	diff := expected - received
	if diff < 0 {
		diff = -diff
	}
	if float64(diff)/float64(expected) > th.DeviationRatio {
		r.Add(FactorQuantityDeviation, th.DeviationPoints)
	}
	if float64(received) > float64(expected)*th.OverReceiptRatio {
		r.Add(FactorOverReceipt, th.OverReceiptPoints)
	}
	return r, true
}

// ShipmentStatus classifies a shipment score. Unevaluated shipments stay
// in transit.
func ShipmentStatus(evaluated bool, score int, th ShipmentThresholds) domain.ShipmentStatus {
	switch {
	case !evaluated:
		return domain.ShipmentInTransit
	case score > th.FlagAbove:
		return domain.ShipmentFlagged
	default:
		return domain.ShipmentDelivered
	}
}

// ShipmentScore is EvaluateShipment followed by ShipmentStatus.
func ShipmentScore(expected, received int64, th ShipmentThresholds) (int, domain.ShipmentStatus) {
	r, evaluated := EvaluateShipment(expected, received, th)
	score := r.Score()
	return score, ShipmentStatus(evaluated, score, th)
}
