package scoring

import "github.com/shopspring/decimal"

// InvoiceThresholds configures the invoice evaluator.
type InvoiceThresholds struct {
	// DeviationRatio is the relative difference from the expected amount
	// above which DeviationPoints apply.
	DeviationRatio  decimal.Decimal
	DeviationPoints int

	// HighAmount is the absolute amount above which HighAmountPoints apply.
	HighAmount       decimal.Decimal
	HighAmountPoints int

	// OverbillRatio is the multiple of the expected amount above which
	// OverbillPoints apply.
	OverbillRatio  decimal.Decimal
	OverbillPoints int

	// FlagAbove is the score above which an invoice is flagged.
	FlagAbove int
}

// DefaultInvoiceThresholds returns the standard invoice rules.
func DefaultInvoiceThresholds() InvoiceThresholds {
	return InvoiceThresholds{
		DeviationRatio:   decimal.RequireFromString("0.20"),
		DeviationPoints:  40,
		HighAmount:       decimal.NewFromInt(50000),
		HighAmountPoints: 20,
		OverbillRatio:    decimal.RequireFromString("1.5"),
		OverbillPoints:   30,
		FlagAbove:        50,
	}
}

// ShipmentThresholds configures the shipment evaluator.
type ShipmentThresholds struct {
	DeviationRatio  float64
	DeviationPoints int

	// OverReceiptRatio is the multiple of the expected quantity above which
	// OverReceiptPoints apply.
	OverReceiptRatio  float64
	OverReceiptPoints int

	FlagAbove int
}

// DefaultShipmentThresholds returns the standard shipment rules.
func DefaultShipmentThresholds() ShipmentThresholds {
	return ShipmentThresholds{
		DeviationRatio:    0.15,
		DeviationPoints:   40,
		OverReceiptRatio:  1.3,
		OverReceiptPoints: 30,
		FlagAbove:         50,
	}
}

// TransactionThresholds configures the transaction evaluator and classifier.
type TransactionThresholds struct {
	VeryHighAmount       decimal.Decimal
	VeryHighAmountPoints int

	HighAmount       decimal.Decimal
	HighAmountPoints int

	LargeRefund       decimal.Decimal
	LargeRefundPoints int

	AdjustmentPoints int

	// Label cut points, compared against the raw score.
	FraudulentAbove float64
	SuspiciousAbove float64
}

// DefaultTransactionThresholds returns the standard transaction rules.
func DefaultTransactionThresholds() TransactionThresholds {
	return TransactionThresholds{
		VeryHighAmount:       decimal.NewFromInt(100000),
		VeryHighAmountPoints: 35,
		HighAmount:           decimal.NewFromInt(50000),
		HighAmountPoints:     15,
		LargeRefund:          decimal.NewFromInt(10000),
		LargeRefundPoints:    25,
		AdjustmentPoints:     10,
		FraudulentAbove:      60,
		SuspiciousAbove:      35,
	}
}

// Thresholds groups the per-kind thresholds.
type Thresholds struct {
	Invoice     InvoiceThresholds
	Shipment    ShipmentThresholds
	Transaction TransactionThresholds
}

// DefaultThresholds returns the standard thresholds for every kind.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Invoice:     DefaultInvoiceThresholds(),
		Shipment:    DefaultShipmentThresholds(),
		Transaction: DefaultTransactionThresholds(),
	}
}
