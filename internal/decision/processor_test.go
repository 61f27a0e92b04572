package decision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/alerting"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stubRules struct {
	hits  []domain.RuleHit
	err   error
	calls []*rules.Input
}

func (s *stubRules) Evaluate(_ context.Context, in *rules.Input) ([]domain.RuleHit, error) {
	s.calls = append(s.calls, in)
	return s.hits, s.err
}

func newProcessor(opts ...Option) *Processor {
	base := []Option{
		WithNoise(scoring.FixedNoise(0)),
		WithClock(func() time.Time { return fixedNow }),
	}
	return NewProcessor(alerting.NewPolicy(alerting.DefaultThresholds()), append(base, opts...)...)
}

func TestInvoiceFlaggedRaisesAlert(t *testing.T) {
	p := newProcessor()
	inv := &domain.Invoice{
		InvoiceNumber:  "INV-1",
		Amount:         decimal.RequireFromString("60000"),
		ExpectedAmount: decimal.NewNullDecimal(decimal.RequireFromString("40000")),
	}

	out, err := p.Invoice(context.Background(), "acct-1", inv)
	require.NoError(t, err)

	// deviation 50% (40) + high amount (20) + overbilling 1.5x is not exceeded
	assert.Equal(t, 60, out.Record.FraudScore)
	assert.Equal(t, domain.InvoiceFlagged, out.Record.Status)
	assert.NotEmpty(t, out.Record.ID)
	assert.Equal(t, "acct-1", out.Record.AccountID)
	assert.Equal(t, fixedNow, out.Record.CreatedAt)

	require.NotNil(t, out.Alert)
	assert.Equal(t, domain.EntityInvoice, out.Alert.EntityType)
	assert.Equal(t, inv.ID, out.Alert.EntityID)
	assert.Equal(t, domain.AlertInvoiceMismatch, out.Alert.AlertType)
	assert.Equal(t, domain.SeverityMedium, out.Alert.Severity)
	assert.Equal(t, "acct-1", out.Alert.AccountID)
	assert.False(t, out.Alert.IsResolved)
	assert.Len(t, out.Factors, 2)
}

func TestInvoicePendingHasNoAlert(t *testing.T) {
	p := newProcessor()
	inv := &domain.Invoice{
		InvoiceNumber: "INV-2",
		Amount:        decimal.RequireFromString("1200"),
	}

	out, err := p.Invoice(context.Background(), "acct-1", inv)
	require.NoError(t, err)

	assert.Equal(t, 0, out.Record.FraudScore)
	assert.Equal(t, domain.InvoicePending, out.Record.Status)
	assert.Nil(t, out.Alert)
	assert.NotNil(t, out.Factors)
	assert.Empty(t, out.Factors)
}

func TestInvoiceCustomRulePointsTipStatus(t *testing.T) {
	stub := &stubRules{hits: []domain.RuleHit{{RuleID: "vip-supplier", Name: "VIP", Points: 35}}}
	p := newProcessor(WithRules(stub))
	inv := &domain.Invoice{
		InvoiceNumber: "INV-3",
		SupplierID:    "sup-9",
		Amount:        decimal.RequireFromString("51000"),
	}

	out, err := p.Invoice(context.Background(), "acct-1", inv)
	require.NoError(t, err)

	assert.Equal(t, 55, out.Record.FraudScore)
	assert.Equal(t, domain.InvoiceFlagged, out.Record.Status)
	assert.Contains(t, out.Factors, scoring.Factor{Name: RulePrefix + "vip-supplier", Points: 35})

	require.Len(t, stub.calls, 1)
	assert.Equal(t, domain.EntityInvoice, stub.calls[0].Kind)
	assert.Equal(t, "sup-9", stub.calls[0].SupplierID)
	assert.False(t, stub.calls[0].HasExpected)
	assert.InDelta(t, 51000.0, stub.calls[0].Amount, 0.001)
}

func TestCustomRulesClampAtMaxScore(t *testing.T) {
	stub := &stubRules{hits: []domain.RuleHit{{RuleID: "a", Points: 90}, {RuleID: "b", Points: 90}}}
	p := newProcessor(WithRules(stub))

	out, err := p.Invoice(context.Background(), "acct-1", &domain.Invoice{
		InvoiceNumber: "INV-4",
		Amount:        decimal.RequireFromString("10"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MaxScore, out.Record.FraudScore)
	assert.Equal(t, domain.SeverityHigh, out.Alert.Severity)
}

func TestOversizedRuleStillFlagsInvoice(t *testing.T) {
	engine, err := rules.NewEngine(2)
	require.NoError(t, err)
	defer engine.Close()
	require.NoError(t, engine.LoadRule(&domain.RuleConfig{
		ID:         "big",
		Name:       "Scaled amount",
		EntityKind: domain.EntityInvoice,
		Expression: "amount * 1e15",
		Enabled:    true,
	}))
	p := newProcessor(WithRules(engine))

	out, err := p.Invoice(context.Background(), "acct-1", &domain.Invoice{
		InvoiceNumber:  "INV-5",
		Amount:         decimal.RequireFromString("60000"),
		ExpectedAmount: decimal.NewNullDecimal(decimal.RequireFromString("40000")),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.MaxScore, out.Record.FraudScore)
	assert.Equal(t, domain.InvoiceFlagged, out.Record.Status)
	require.NotNil(t, out.Alert)
	assert.Equal(t, domain.SeverityHigh, out.Alert.Severity)
}

func TestRuleErrorAbortsDecision(t *testing.T) {
	stub := &stubRules{err: context.Canceled}
	p := newProcessor(WithRules(stub))

	_, err := p.Transaction(context.Background(), "acct-1", &domain.Transaction{
		Amount: decimal.RequireFromString("10"),
		Type:   domain.TxPayment,
	})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestShipmentOverReceipt(t *testing.T) {
	p := newProcessor()
	sh := &domain.Shipment{TrackingNumber: "TRK-1", ExpectedQuantity: 100, ReceivedQuantity: 140}

	out, err := p.Shipment(context.Background(), "acct-1", sh)
	require.NoError(t, err)

	assert.Equal(t, 70, out.Record.FraudScore)
	assert.Equal(t, domain.ShipmentFlagged, out.Record.Status)
	require.NotNil(t, out.Alert)
	assert.Equal(t, domain.AlertQuantityManipulation, out.Alert.AlertType)
	assert.Equal(t, domain.SeverityMedium, out.Alert.Severity)
	assert.Equal(t, "Shipment TRK-1 flagged. Expected: 100, Received: 140.", out.Alert.Description)
}

func TestShipmentWithoutQuantitiesSkipsRules(t *testing.T) {
	stub := &stubRules{hits: []domain.RuleHit{{RuleID: "x", Points: 80}}}
	p := newProcessor(WithRules(stub))

	out, err := p.Shipment(context.Background(), "acct-1", &domain.Shipment{ExpectedQuantity: 100})
	require.NoError(t, err)

	assert.Equal(t, 0, out.Record.FraudScore)
	assert.Equal(t, domain.ShipmentInTransit, out.Record.Status)
	assert.Nil(t, out.Alert)
	assert.Empty(t, stub.calls)
}

func TestTransactionClassification(t *testing.T) {
	tests := []struct {
		name       string
		amount     string
		txType     domain.TransactionType
		noise      float64
		score      int
		label      domain.Label
		suspicious bool
		severity   domain.Severity
	}{
		{"small payment", "500", domain.TxPayment, 3, 3, domain.LabelNormal, false, ""},
		{"high payment", "60000", domain.TxPayment, 0, 15, domain.LabelNormal, false, ""},
		{"very high payment", "150000", domain.TxPayment, 0, 50, domain.LabelSuspicious, true, domain.SeverityMedium},
		{"very high payment with noise", "150000", domain.TxPayment, 9.9, 60, domain.LabelSuspicious, true, domain.SeverityMedium},
		{"large refund", "60000", domain.TxRefund, 0, 40, domain.LabelSuspicious, true, domain.SeverityMedium},
		{"very large refund", "150000", domain.TxRefund, 0, 75, domain.LabelFraudulent, true, domain.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProcessor(WithNoise(scoring.FixedNoise(tt.noise)))
			out, err := p.Transaction(context.Background(), "acct-1", &domain.Transaction{
				Amount: decimal.RequireFromString(tt.amount),
				Type:   tt.txType,
			})
			require.NoError(t, err)

			assert.Equal(t, tt.score, out.Record.FraudScore)
			assert.Equal(t, tt.label, out.Record.Label)
			assert.Equal(t, tt.suspicious, out.Record.IsSuspicious)
			if tt.severity == "" {
				assert.Nil(t, out.Alert)
				return
			}
			require.NotNil(t, out.Alert)
			assert.Equal(t, tt.severity, out.Alert.Severity)
			assert.Equal(t, domain.AlertSuspiciousPrefix+string(tt.txType), out.Alert.AlertType)
		})
	}
}
