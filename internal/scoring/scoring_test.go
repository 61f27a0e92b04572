package scoring

import (
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func expected(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(s))
}

func TestInvoiceScore(t *testing.T) {
	th := DefaultInvoiceThresholds()

	tests := []struct {
		name     string
		amount   string
		expected decimal.NullDecimal
		score    int
		status   domain.InvoiceStatus
	}{
		{"matches expected", "100", expected("100"), 0, domain.InvoicePending},
		{"deviation and high amount", "60000", expected("40000"), 60, domain.InvoiceFlagged},
		{"all three rules", "90000", expected("40000"), 90, domain.InvoiceFlagged},
		{"deviation at boundary", "120", expected("100"), 0, domain.InvoicePending},
		{"deviation just above boundary", "120.01", expected("100"), 40, domain.InvoicePending},
		{"underbilled", "50", expected("100"), 40, domain.InvoicePending},
		{"no expected amount", "60000", decimal.NullDecimal{}, 20, domain.InvoicePending},
		{"zero expected amount is ignored", "10", expected("0"), 0, domain.InvoicePending},
		{"high amount at boundary", "50000", decimal.NullDecimal{}, 0, domain.InvoicePending},
		{"overbilled small invoice", "200", expected("100"), 70, domain.InvoiceFlagged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, status := InvoiceScore(dec(tt.amount), tt.expected, th)
			assert.Equal(t, tt.score, score)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestEvaluateInvoiceFactors(t *testing.T) {
	r := EvaluateInvoice(dec("60000"), expected("40000"), DefaultInvoiceThresholds())

	assert.Equal(t, []Factor{
		{Name: FactorAmountDeviation, Points: 40},
		{Name: FactorHighAmount, Points: 20},
	}, r.Factors)
	assert.Equal(t, 60, r.Points())
}

func TestShipmentScore(t *testing.T) {
	th := DefaultShipmentThresholds()

	tests := []struct {
		name               string
		expected, received int64
		score              int
		status             domain.ShipmentStatus
	}{
		{"no quantities", 0, 0, 0, domain.ShipmentInTransit},
		{"missing received", 100, 0, 0, domain.ShipmentInTransit},
		{"missing expected", 0, 100, 0, domain.ShipmentInTransit},
		{"exact delivery", 100, 100, 0, domain.ShipmentDelivered},
		{"over receipt", 100, 140, 70, domain.ShipmentFlagged},
		{"short delivery", 100, 80, 40, domain.ShipmentDelivered},
		{"deviation at boundary", 100, 115, 0, domain.ShipmentDelivered},
		{"over receipt at boundary", 100, 130, 40, domain.ShipmentDelivered},
		{"negative quantities", -5, 10, 0, domain.ShipmentInTransit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, status := ShipmentScore(tt.expected, tt.received, th)
			assert.Equal(t, tt.score, score)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestShipmentFlagThresholdIsConfigurable(t *testing.T) {
	th := DefaultShipmentThresholds()
	th.FlagAbove = 30

	score, status := ShipmentScore(100, 80, th)
	assert.Equal(t, 40, score)
	assert.Equal(t, domain.ShipmentFlagged, status)
}

func TestTransactionScore(t *testing.T) {
	th := DefaultTransactionThresholds()

	tests := []struct {
		name       string
		amount     string
		txType     domain.TransactionType
		noise      float64
		score      int
		label      domain.Label
		suspicious bool
	}{
		{"small payment", "100", domain.TxPayment, 0, 0, domain.LabelNormal, false},
		{"small payment with noise", "100", domain.TxPayment, 9.9, 10, domain.LabelNormal, false},
		{"high payment", "60000", domain.TxPayment, 0, 15, domain.LabelNormal, false},
		{"very high payment", "150000", domain.TxPayment, 0, 50, domain.LabelSuspicious, true},
		{"very high refund", "150000", domain.TxRefund, 0, 75, domain.LabelFraudulent, true},
		{"large refund", "20000", domain.TxRefund, 0, 25, domain.LabelNormal, false},
		{"label follows raw score not rounded score", "20000", domain.TxRefund, 9.5, 35, domain.LabelNormal, false},
		{"adjustment", "10", domain.TxAdjustment, 0, 10, domain.LabelNormal, false},
		{"very high adjustment", "150000", domain.TxAdjustment, 5, 65, domain.LabelFraudulent, true},
		{"refund at boundary", "10000", domain.TxRefund, 0, 0, domain.LabelNormal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, label, suspicious := TransactionScore(dec(tt.amount), tt.txType, tt.noise, th)
			assert.Equal(t, tt.score, score)
			assert.Equal(t, tt.label, label)
			assert.Equal(t, tt.suspicious, suspicious)
		})
	}
}

func TestClassifyUsesRawScore(t *testing.T) {
	th := DefaultTransactionThresholds()

	label, suspicious := Classify(35.4, th)
	assert.Equal(t, domain.LabelSuspicious, label)
	assert.True(t, suspicious)

	label, suspicious = Classify(35, th)
	assert.Equal(t, domain.LabelNormal, label)
	assert.False(t, suspicious)

	label, _ = Classify(60.01, th)
	assert.Equal(t, domain.LabelFraudulent, label)
}

func TestTransactionScoreIsDeterministic(t *testing.T) {
	th := DefaultTransactionThresholds()
	for i := 0; i < 100; i++ {
		a, la, sa := TransactionScore(dec("75000"), domain.TxRefund, 3.7, th)
		b, lb, sb := TransactionScore(dec("75000"), domain.TxRefund, 3.7, th)
		require.Equal(t, a, b)
		require.Equal(t, la, lb)
		require.Equal(t, sa, sb)
	}
}

func TestScoresAreBounded(t *testing.T) {
	amounts := []string{"0", "1", "9999.99", "10000.01", "50000.01", "100000.01", "99999999"}
	types := []domain.TransactionType{domain.TxPayment, domain.TxRefund, domain.TxAdjustment}

	for _, a := range amounts {
		for _, e := range amounts {
			score, _ := InvoiceScore(dec(a), expected(e), DefaultInvoiceThresholds())
			assert.GreaterOrEqual(t, score, 0)
			assert.LessOrEqual(t, score, domain.MaxScore)
		}
		for _, typ := range types {
			score, _, _ := TransactionScore(dec(a), typ, MaxNoise-0.001, DefaultTransactionThresholds())
			assert.GreaterOrEqual(t, score, 0)
			assert.LessOrEqual(t, score, domain.MaxScore)
		}
	}

	quantities := []int64{0, 1, 15, 100, 131, 1000000}
	for _, e := range quantities {
		for _, r := range quantities {
			score, _ := ShipmentScore(e, r, DefaultShipmentThresholds())
			assert.GreaterOrEqual(t, score, 0)
			assert.LessOrEqual(t, score, domain.MaxScore)
		}
	}
}

func TestResultClamps(t *testing.T) {
	var r Result
	r.Add("a", 80)
	r.Add("b", 60)
	r.Noise = 4

	assert.Equal(t, 140, r.Points())
	assert.Equal(t, 100.0, r.Raw())
	assert.Equal(t, 100, r.Score())

	var neg Result
	neg.Add("discount", -30)
	assert.Equal(t, 0, neg.Score())
}

func TestResultRoundsHalfUp(t *testing.T) {
	r := Result{Noise: 0.5}
	r.Add("x", 40)
	assert.Equal(t, 41, r.Score())

	r.Noise = 0.49
	assert.Equal(t, 40, r.Score())
}

func TestAddIgnoresZeroPoints(t *testing.T) {
	var r Result
	r.Add("nothing", 0)
	assert.Empty(t, r.Factors)
}

func TestSeededNoise(t *testing.T) {
	a := NewSeededNoise(42)
	b := NewSeededNoise(42)

	for i := 0; i < 1000; i++ {
		va, vb := a.Next(), b.Next()
		require.Equal(t, va, vb)
		require.GreaterOrEqual(t, va, 0.0)
		require.Less(t, va, MaxNoise)
	}
}

func TestFixedNoise(t *testing.T) {
	assert.Equal(t, 3.5, FixedNoise(3.5).Next())
	assert.Equal(t, 0.0, FixedNoise(-1).Next())
	assert.Less(t, FixedNoise(25).Next(), MaxNoise)
}
