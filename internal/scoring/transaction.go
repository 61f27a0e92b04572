package scoring

import (
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// Factor names for transactions.
const (
	FactorVeryHighAmount = "very_high_amount"
	FactorLargeRefund    = "large_refund"
	FactorAdjustment     = "adjustment"
)

// EvaluateTransaction scores a transaction. noise must come from a
// NoiseSource and is carried on the result.
func EvaluateTransaction(amount decimal.Decimal, txType domain.TransactionType, noise float64, th TransactionThresholds) Result {
	r := Result{Noise: noise}

	if amount.GreaterThan(th.VeryHighAmount) {
		r.Add(FactorVeryHighAmount, th.VeryHighAmountPoints)
	}
	if amount.GreaterThan(th.HighAmount) {
		r.Add(FactorHighAmount, th.HighAmountPoints)
	}
	if txType == domain.TxRefund && amount.GreaterThan(th.LargeRefund) {
		r.Add(FactorLargeRefund, th.LargeRefundPoints)
	}
	if txType == domain.TxAdjustment {
		r.Add(FactorAdjustment, th.AdjustmentPoints)
	}
	return r
}

// Classify maps a raw transaction score to a label and the suspicious flag.
func Classify(raw float64, th TransactionThresholds) (domain.Label, bool) {
	switch {
	case raw > th.FraudulentAbove:
		return domain.LabelFraudulent, true
	case raw > th.SuspiciousAbove:
		return domain.LabelSuspicious, true
	default:
		return domain.LabelNormal, false
	}
}

// TransactionScore is EvaluateTransaction followed by Classify.
func TransactionScore(amount decimal.Decimal, txType domain.TransactionType, noise float64, th TransactionThresholds) (int, domain.Label, bool) {
	r := EvaluateTransaction(amount, txType, noise, th)
	label, suspicious := Classify(r.Raw(), th)
	return r.Score(), label, suspicious
}
