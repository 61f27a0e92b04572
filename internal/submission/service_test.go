package submission

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/alerting"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const acct = "acct-1"

func newTestService(t *testing.T, noise float64) (*Service, *repository.SQLRepository) {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "submission.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	proc := decision.NewProcessor(
		alerting.NewPolicy(alerting.DefaultThresholds()),
		decision.WithNoise(scoring.FixedNoise(noise)),
	)
	return NewService(repo, proc), repo
}

func amount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func qty(n int64) *int64 { return &n }

func TestSubmitInvoiceStoresRecordAndAlert(t *testing.T) {
	svc, repo := newTestService(t, 0)
	ctx := context.Background()

	sup, err := svc.CreateSupplier(ctx, acct, &SupplierRequest{Name: "Acme Corp"})
	require.NoError(t, err)
	assert.Equal(t, domain.SupplierActive, sup.Status)

	out, err := svc.SubmitInvoice(ctx, acct, &InvoiceRequest{
		SupplierID:     sup.ID,
		InvoiceNumber:  "INV-100",
		Amount:         amount("75000"),
		ExpectedAmount: amount("40000"),
	})
	require.NoError(t, err)

	// deviation (40) + high amount (20) + overbilling (30)
	assert.Equal(t, 90, out.Record.FraudScore)
	assert.Equal(t, domain.InvoiceFlagged, out.Record.Status)
	assert.Equal(t, "Acme Corp", out.Record.SupplierName)
	require.NotNil(t, out.Alert)
	assert.Equal(t, domain.SeverityHigh, out.Alert.Severity)

	stored, err := svc.GetInvoice(ctx, acct, out.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, 90, stored.FraudScore)
	assert.Equal(t, "Acme Corp", stored.SupplierName)

	alert, err := repo.GetAlert(ctx, acct, out.Alert.ID)
	require.NoError(t, err)
	assert.Equal(t, out.Record.ID, alert.EntityID)
	assert.Equal(t, "Invoice INV-100 flagged with fraud score 90%. Amount deviation detected.", alert.Description)

	events, err := repo.PendingOutbox(ctx, 10)
	require.NoError(t, err)
	topics := make([]string, len(events))
	for i, e := range events {
		topics[i] = e.Topic
	}
	assert.ElementsMatch(t, []string{domain.TopicAlertRaised, domain.TopicEntityScored}, topics)
}

func TestValidationRejectsWithoutWrites(t *testing.T) {
	svc, repo := newTestService(t, 0)
	ctx := context.Background()

	tests := []struct {
		name   string
		submit func() error
	}{
		{"missing invoice number", func() error {
			_, err := svc.SubmitInvoice(ctx, acct, &InvoiceRequest{Amount: amount("10")})
			return err
		}},
		{"missing invoice amount", func() error {
			_, err := svc.SubmitInvoice(ctx, acct, &InvoiceRequest{InvoiceNumber: "INV-1"})
			return err
		}},
		{"negative invoice amount", func() error {
			_, err := svc.SubmitInvoice(ctx, acct, &InvoiceRequest{InvoiceNumber: "INV-1", Amount: amount("-5")})
			return err
		}},
		{"negative quantity", func() error {
			_, err := svc.SubmitShipment(ctx, acct, &ShipmentRequest{ExpectedQuantity: qty(-1)})
			return err
		}},
		{"bad transaction type", func() error {
			_, err := svc.SubmitTransaction(ctx, acct, &TransactionRequest{Amount: amount("10"), Type: "wire"})
			return err
		}},
		{"unknown supplier", func() error {
			_, err := svc.SubmitTransaction(ctx, acct, &TransactionRequest{SupplierID: "nope", Amount: amount("10"), Type: domain.TxPayment})
			return err
		}},
		{"supplier without name", func() error {
			_, err := svc.CreateSupplier(ctx, acct, &SupplierRequest{Name: "  "})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.submit()
			assert.True(t, errors.Is(err, ErrValidation), "got %v", err)
		})
	}

	invoices, err := svc.ListInvoices(ctx, acct)
	require.NoError(t, err)
	assert.Empty(t, invoices)

	events, err := repo.PendingOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSubmitShipment(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()

	out, err := svc.SubmitShipment(ctx, acct, &ShipmentRequest{
		TrackingNumber:   "TRK-7",
		ExpectedQuantity: qty(100),
		ReceivedQuantity: qty(95),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Record.FraudScore)
	assert.Equal(t, domain.ShipmentDelivered, out.Record.Status)
	assert.Nil(t, out.Alert)

	pending, err := svc.SubmitShipment(ctx, acct, &ShipmentRequest{ExpectedQuantity: qty(100)})
	require.NoError(t, err)
	assert.Equal(t, domain.ShipmentInTransit, pending.Record.Status)

	updated, err := svc.UpdateShipmentStatus(ctx, acct, pending.Record.ID, domain.ShipmentDelayed)
	require.NoError(t, err)
	assert.Equal(t, domain.ShipmentDelayed, updated.Status)

	_, err = svc.UpdateShipmentStatus(ctx, acct, out.Record.ID, domain.ShipmentInTransit)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}

func TestSubmitTransactionUsesNoise(t *testing.T) {
	svc, _ := newTestService(t, 9.6)
	ctx := context.Background()

	out, err := svc.SubmitTransaction(ctx, acct, &TransactionRequest{
		Amount: amount("60000"),
		Type:   domain.TxRefund,
	})
	require.NoError(t, err)

	// 15 + 25 + 9.6 = 49.6
	assert.Equal(t, 50, out.Record.FraudScore)
	assert.Equal(t, domain.LabelSuspicious, out.Record.Label)
	assert.True(t, out.Record.IsSuspicious)
	require.NotNil(t, out.Alert)
	assert.Equal(t, "Suspicious refund", out.Alert.AlertType)
	assert.Equal(t, "Transaction of $60,000 classified as suspicious (score: 50%).", out.Alert.Description)
}

func TestReviewInvoice(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()

	out, err := svc.SubmitInvoice(ctx, acct, &InvoiceRequest{InvoiceNumber: "INV-9", Amount: amount("100")})
	require.NoError(t, err)
	assert.Equal(t, domain.InvoicePending, out.Record.Status)

	_, err = svc.ReviewInvoice(ctx, acct, out.Record.ID, "paid")
	assert.True(t, errors.Is(err, ErrValidation))

	approved, err := svc.ReviewInvoice(ctx, acct, out.Record.ID, domain.InvoiceApproved)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceApproved, approved.Status)

	_, err = svc.ReviewInvoice(ctx, acct, out.Record.ID, domain.InvoiceRejected)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	_, err = svc.ReviewInvoice(ctx, acct, "missing", domain.InvoiceApproved)
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestSubmitEnvelope(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()

	env, err := NewEnvelope(domain.EntityTransaction, &TransactionRequest{Amount: amount("20"), Type: domain.TxAdjustment})
	require.NoError(t, err)

	res, err := svc.Submit(ctx, acct, env)
	require.NoError(t, err)
	out, ok := res.(*decision.Outcome[*domain.Transaction])
	require.True(t, ok)
	assert.Equal(t, 10, out.Record.FraudScore)

	_, err = svc.Submit(ctx, acct, &Envelope{Kind: "order", Payload: []byte(`{}`)})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = svc.Submit(ctx, acct, &Envelope{Kind: domain.EntityInvoice, Payload: []byte(`{`)})
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestSummary(t *testing.T) {
	svc, repo := newTestService(t, 0)
	ctx := context.Background()

	_, err := svc.CreateSupplier(ctx, acct, &SupplierRequest{Name: "A"})
	require.NoError(t, err)
	_, err = svc.SubmitInvoice(ctx, acct, &InvoiceRequest{InvoiceNumber: "I-1", Amount: amount("60000"), ExpectedAmount: amount("30000")})
	require.NoError(t, err)
	_, err = svc.SubmitTransaction(ctx, acct, &TransactionRequest{Amount: amount("150000"), Type: domain.TxPayment})
	require.NoError(t, err)
	_, err = svc.SubmitTransaction(ctx, acct, &TransactionRequest{Amount: amount("10"), Type: domain.TxPayment})
	require.NoError(t, err)

	alerts, err := repo.ListAlerts(ctx, acct)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	require.NoError(t, repo.ResolveAlert(ctx, acct, alerts[0].ID, time.Now()))

	sum, err := svc.Summary(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.TotalSuppliers)
	assert.Equal(t, 1, sum.FlaggedInvoices)
	assert.Equal(t, 2, sum.TotalTransactions)
	assert.Equal(t, 50, sum.DetectionRate)
	assert.Equal(t, 1, sum.ActiveAlerts)
	assert.Equal(t, 50, sum.ResolutionRate.Value)

	empty, err := svc.Summary(ctx, "acct-2")
	require.NoError(t, err)
	assert.False(t, empty.ResolutionRate.Applicable)
}
