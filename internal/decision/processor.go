// Package decision combines the built-in scoring rules, loaded custom rules
// and the alert policy into one decision per submission. It performs no I/O:
// the caller persists the returned record and alert together.
package decision

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/alerting"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// RulePrefix prefixes the factor name of a custom rule hit.
const RulePrefix = "rule:"

// RuleEvaluator returns the custom rules that fired for an input.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, input *rules.Input) ([]domain.RuleHit, error)
}

// Processor scores submissions and decides whether they raise an alert.
type Processor struct {
	Thresholds scoring.Thresholds

	rules  RuleEvaluator
	noise  scoring.NoiseSource
	policy *alerting.Policy
	now    func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithRules adds custom rule points on top of the built-in rules.
func WithRules(r RuleEvaluator) Option {
	return func(p *Processor) { p.rules = r }
}

// WithNoise sets the transaction perturbation source.
func WithNoise(n scoring.NoiseSource) Option {
	return func(p *Processor) { p.noise = n }
}

// WithThresholds overrides the scoring thresholds.
func WithThresholds(th scoring.Thresholds) Option {
	return func(p *Processor) { p.Thresholds = th }
}

// WithClock sets the time source used for created and updated stamps.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// NewProcessor creates a processor with default thresholds and a
// time-seeded noise source.
func NewProcessor(policy *alerting.Policy, opts ...Option) *Processor {
	p := &Processor{
		Thresholds: scoring.DefaultThresholds(),
		noise:      scoring.NewSeededNoise(0),
		policy:     policy,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Outcome is the decision for one submission.
type Outcome[T any] struct {
	Record  T                  `json:"record"`
	Alert   *domain.FraudAlert `json:"alert,omitempty"`
	Factors []scoring.Factor   `json:"factors"`
}

// Invoice scores an invoice, sets its fraud score and status, and builds
// the alert it raises, if any.
func (p *Processor) Invoice(ctx context.Context, accountID string, inv *domain.Invoice) (*Outcome[*domain.Invoice], error) {
	now := p.stamp()
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	inv.AccountID = accountID
	inv.CreatedAt, inv.UpdatedAt = now, now

	result := scoring.EvaluateInvoice(inv.Amount, inv.ExpectedAmount, p.Thresholds.Invoice)
	in := &rules.Input{
		Kind:        domain.EntityInvoice,
		SupplierID:  inv.SupplierID,
		Amount:      inv.Amount.InexactFloat64(),
		HasExpected: inv.ExpectedAmount.Valid,
	}
	if inv.ExpectedAmount.Valid {
		in.ExpectedAmount = inv.ExpectedAmount.Decimal.InexactFloat64()
	}
	if err := p.applyRules(ctx, in, &result); err != nil {
		return nil, err
	}

	inv.FraudScore = result.Score()
	inv.Status = scoring.InvoiceStatus(inv.FraudScore, p.Thresholds.Invoice)

	return &Outcome[*domain.Invoice]{
		Record:  inv,
		Alert:   p.alert(accountID, p.policy.ForInvoice(inv), now),
		Factors: factors(result),
	}, nil
}

// Shipment scores a shipment. A shipment without both quantities is not
// evaluated: it stays in transit with score zero and custom rules are
// skipped.
func (p *Processor) Shipment(ctx context.Context, accountID string, sh *domain.Shipment) (*Outcome[*domain.Shipment], error) {
	now := p.stamp()
	if sh.ID == "" {
		sh.ID = uuid.New().String()
	}
	sh.AccountID = accountID
	sh.CreatedAt, sh.UpdatedAt = now, now

	result, evaluated := scoring.EvaluateShipment(sh.ExpectedQuantity, sh.ReceivedQuantity, p.Thresholds.Shipment)
	if evaluated {
		in := &rules.Input{
			Kind:             domain.EntityShipment,
			SupplierID:       sh.SupplierID,
			ExpectedQuantity: sh.ExpectedQuantity,
			ReceivedQuantity: sh.ReceivedQuantity,
		}
		if err := p.applyRules(ctx, in, &result); err != nil {
			return nil, err
		}
	}

	sh.FraudScore = result.Score()
	sh.Status = scoring.ShipmentStatus(evaluated, sh.FraudScore, p.Thresholds.Shipment)

	return &Outcome[*domain.Shipment]{
		Record:  sh,
		Alert:   p.alert(accountID, p.policy.ForShipment(sh), now),
		Factors: factors(result),
	}, nil
}

// Transaction scores a transaction with one draw from the noise source,
// classifies it and builds the alert it raises, if any.
func (p *Processor) Transaction(ctx context.Context, accountID string, tx *domain.Transaction) (*Outcome[*domain.Transaction], error) {
	now := p.stamp()
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	tx.AccountID = accountID
	tx.CreatedAt = now

	result := scoring.EvaluateTransaction(tx.Amount, tx.Type, p.noise.Next(), p.Thresholds.Transaction)
	in := &rules.Input{
		Kind:       domain.EntityTransaction,
		SupplierID: tx.SupplierID,
		Amount:     tx.Amount.InexactFloat64(),
		TxType:     string(tx.Type),
	}
	if err := p.applyRules(ctx, in, &result); err != nil {
		return nil, err
	}

	raw := result.Raw()
	tx.FraudScore = result.Score()
	tx.Label, tx.IsSuspicious = scoring.Classify(raw, p.Thresholds.Transaction)

	return &Outcome[*domain.Transaction]{
		Record:  tx,
		Alert:   p.alert(accountID, p.policy.ForTransaction(tx), now),
		Factors: factors(result),
	}, nil
}

func (p *Processor) applyRules(ctx context.Context, in *rules.Input, result *scoring.Result) error {
	if p.rules == nil {
		return nil
	}
	hits, err := p.rules.Evaluate(ctx, in)
	if err != nil {
		return err
	}
	for _, hit := range hits {
		result.Add(RulePrefix+hit.RuleID, hit.Points)
	}
	return nil
}

func (p *Processor) alert(accountID string, d *alerting.Draft, at time.Time) *domain.FraudAlert {
	if d == nil {
		return nil
	}
	return alerting.NewAlert(accountID, d, at)
}

func (p *Processor) stamp() time.Time {
	return p.now().UTC()
}

func factors(r scoring.Result) []scoring.Factor {
	if r.Factors == nil {
		return []scoring.Factor{}
	}
	return r.Factors
}
