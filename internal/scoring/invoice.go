package scoring

import (
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// Factor names for invoices.
const (
	FactorAmountDeviation = "amount_deviation"
	FactorHighAmount      = "high_amount"
	FactorOverbilling     = "overbilling"
)

// EvaluateInvoice scores an invoice amount against an optional expected
// amount. Expected-amount rules are skipped when it is absent or zero.
func EvaluateInvoice(amount decimal.Decimal, expected decimal.NullDecimal, th InvoiceThresholds) Result {
	var r Result

	hasExpected := expected.Valid && expected.Decimal.IsPositive()
	if hasExpected {
		deviation := amount.Sub(expected.Decimal).Abs().Div(expected.Decimal)
		if deviation.GreaterThan(th.DeviationRatio) {
			r.Add(FactorAmountDeviation, th.DeviationPoints)
		}
	}
	if amount.GreaterThan(th.HighAmount) {
		r.Add(FactorHighAmount, th.HighAmountPoints)
	}
	if hasExpected && amount.GreaterThan(expected.Decimal.Mul(th.OverbillRatio)) {
		r.Add(FactorOverbilling, th.OverbillPoints)
	}
	return r
}

// InvoiceStatus classifies an invoice score. Scoring never approves or
// rejects an invoice.
func InvoiceStatus(score int, th InvoiceThresholds) domain.InvoiceStatus {
	if score > th.FlagAbove {
		return domain.InvoiceFlagged
	}
	return domain.InvoicePending
}

// InvoiceScore is EvaluateInvoice followed by InvoiceStatus.
func InvoiceScore(amount decimal.Decimal, expected decimal.NullDecimal, th InvoiceThresholds) (int, domain.InvoiceStatus) {
	score := EvaluateInvoice(amount, expected, th).Score()
	return score, InvoiceStatus(score, th)
}
