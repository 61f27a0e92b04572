package rules

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func rule(id string, kind domain.EntityKind, expr string, points int) *domain.RuleConfig {
	return &domain.RuleConfig{
		ID:         id,
		TenantID:   GlobalTenant,
		Name:       "Rule " + id,
		EntityKind: kind,
		Expression: expr,
		Points:     points,
		Enabled:    true,
	}
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}
}

func TestLoadRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	if err := engine.LoadRule(rule("round-amount", domain.EntityInvoice, "amount > 100.0", 5)); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount())
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	tests := []struct {
		name string
		expr string
	}{
		{"syntax error", "this is not valid CEL !!!"},
		{"unknown variable", "po_number == invoice_number"},
		{"string result", "tx_type + \"x\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.LoadRule(rule("bad", domain.EntityTransaction, tt.expr, 1))
			if !errors.Is(err, ErrInvalidRule) {
				t.Errorf("expected ErrInvalidRule, got %v", err)
			}
		})
	}
}

func TestValidateRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	valid := rule("ok", domain.EntityShipment, "received_quantity == 0", 10)
	if err := engine.ValidateRule(valid); err != nil {
		t.Errorf("expected valid rule, got %v", err)
	}
	if engine.RulesCount() != 0 {
		t.Error("validation must not load the rule")
	}

	noKind := rule("no-kind", "", "true", 1)
	if err := engine.ValidateRule(noKind); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("expected ErrInvalidRule for missing kind, got %v", err)
	}

	noName := rule("no-name", domain.EntityInvoice, "true", 1)
	noName.Name = ""
	if err := engine.ValidateRule(noName); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("expected ErrInvalidRule for missing name, got %v", err)
	}

	if err := engine.ValidateRule(nil); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("expected ErrInvalidRule for nil, got %v", err)
	}
}

func TestEvaluateBooleanRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	engine.LoadRule(rule("missing-expected", domain.EntityInvoice, "!has_expected && amount > 10000.0", 15))

	ctx := context.Background()

	input := &Input{Kind: domain.EntityInvoice, Amount: 20000, ExpectedAmount: 19000, HasExpected: true}
	hits, err := engine.Evaluate(ctx, input)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits with expected amount, got %v", hits)
	}

	input.HasExpected = false
	hits, _ = engine.Evaluate(ctx, input)
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].RuleID != "missing-expected" || hits[0].Points != 15 {
		t.Errorf("unexpected hit %+v", hits[0])
	}
}

func TestEvaluateNumericRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	engine.LoadRule(rule("shortfall", domain.EntityShipment,
		"expected_quantity > 0 && received_quantity < expected_quantity ? (expected_quantity - received_quantity) / 10 : 0", 0))
	engine.LoadRule(rule("scaled", domain.EntityShipment, "received_quantity > 1000 ? 12.6 : 0.0", 0))

	hits, _ := engine.Evaluate(context.Background(), &Input{
		Kind: domain.EntityShipment, ExpectedQuantity: 2000, ReceivedQuantity: 1500,
	})
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].RuleID != "scaled" || hits[0].Points != 13 {
		t.Errorf("expected rounded double points, got %+v", hits[0])
	}
	if hits[1].RuleID != "shortfall" || hits[1].Points != 50 {
		t.Errorf("expected int points, got %+v", hits[1])
	}
}

func TestEvaluateFiltersByKind(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	engine.LoadRule(rule("refund-any", domain.EntityTransaction, "tx_type == 'refund'", 20))
	engine.LoadRule(rule("invoice-any", domain.EntityInvoice, "true", 5))

	hits, _ := engine.Evaluate(context.Background(), &Input{Kind: domain.EntityTransaction, TxType: "refund"})
	if len(hits) != 1 || hits[0].RuleID != "refund-any" {
		t.Errorf("expected only the transaction rule, got %v", hits)
	}

	hits, _ = engine.Evaluate(context.Background(), &Input{Kind: domain.EntityShipment})
	if len(hits) != 0 {
		t.Errorf("expected no hits for shipment, got %v", hits)
	}
}

func TestEvaluateRuntimeErrorContributesNothing(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	engine.LoadRule(rule("div", domain.EntityShipment, "100 / received_quantity > 1", 10))
	engine.LoadRule(rule("ok", domain.EntityShipment, "true", 3))

	hits, err := engine.Evaluate(context.Background(), &Input{Kind: domain.EntityShipment})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].RuleID != "ok" {
		t.Errorf("expected only the healthy rule to hit, got %v", hits)
	}
}

func TestParallelExecution(t *testing.T) {
	engine, _ := NewEngine(3)
	defer engine.Close()

	for i := 0; i < 10; i++ {
		engine.LoadRule(rule(fmt.Sprintf("rule-%02d", i), domain.EntityTransaction, "amount > 0.0", 1))
	}

	if engine.RulesCount() != 10 {
		t.Fatalf("expected 10 rules, got %d", engine.RulesCount())
	}

	hits, err := engine.Evaluate(context.Background(), &Input{Kind: domain.EntityTransaction, Amount: 100})
	if err != nil {
		t.Fatalf("parallel evaluation failed: %v", err)
	}
	if len(hits) != 10 {
		t.Fatalf("expected 10 hits, got %d", len(hits))
	}
	for i, h := range hits {
		if want := fmt.Sprintf("rule-%02d", i); h.RuleID != want {
			t.Errorf("hit %d: expected %s, got %s", i, want, h.RuleID)
		}
	}
}

func TestEvaluateCancelledContext(t *testing.T) {
	engine, _ := NewEngine(2)
	defer engine.Close()
	engine.LoadRule(rule("r", domain.EntityInvoice, "true", 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.Evaluate(ctx, &Input{Kind: domain.EntityInvoice}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestReloadRules(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	engine.LoadRule(rule("old", domain.EntityInvoice, "true", 1))

	disabled := rule("disabled", domain.EntityInvoice, "true", 1)
	disabled.Enabled = false

	err := engine.ReloadRules([]*domain.RuleConfig{
		rule("b-new", domain.EntityInvoice, "true", 1),
		rule("a-new", domain.EntityShipment, "true", 1),
		disabled,
	})
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	loaded := engine.Loaded()
	if len(loaded) != 2 {
		t.Fatalf("expected 2 loaded rules, got %d", len(loaded))
	}
	if loaded[0].ID != "a-new" || loaded[1].ID != "b-new" {
		t.Errorf("expected rules ordered by id, got %s, %s", loaded[0].ID, loaded[1].ID)
	}

	err = engine.ReloadRules([]*domain.RuleConfig{rule("broken", domain.EntityInvoice, "((", 1)})
	if err == nil {
		t.Fatal("expected reload error")
	}
	if engine.RulesCount() != 2 {
		t.Errorf("failed reload must keep previous rules, have %d", engine.RulesCount())
	}
}

func TestLoadRuleReplacesSameID(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	engine.LoadRule(rule("moving", domain.EntityInvoice, "true", 5))
	engine.LoadRule(rule("moving", domain.EntityShipment, "true", 7))

	if engine.RulesCount() != 1 {
		t.Fatalf("expected replacement, have %d rules", engine.RulesCount())
	}
	if hits, _ := engine.Evaluate(context.Background(), &Input{Kind: domain.EntityInvoice}); len(hits) != 0 {
		t.Errorf("replaced rule still evaluated for old kind: %v", hits)
	}
	hits, _ := engine.Evaluate(context.Background(), &Input{Kind: domain.EntityShipment})
	if len(hits) != 1 || hits[0].Points != 7 {
		t.Errorf("expected replacement to score 7, got %v", hits)
	}
}

func TestEvaluateBoundsRulePoints(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	tests := []struct {
		name string
		expr string
		cfg  int
		want int
	}{
		{"huge double", "amount * 1e15", 0, domain.MaxScore},
		{"huge negative double", "-amount * 1e300", 0, -domain.MaxScore},
		{"huge int", "9223372036854775807", 0, domain.MaxScore},
		{"huge configured points", "true", 1 << 40, domain.MaxScore},
		{"infinity", "amount / 0.0", 0, 0},
		{"nan", "0.0 / 0.0", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := engine.ReloadRules([]*domain.RuleConfig{rule("r", domain.EntityInvoice, tt.expr, tt.cfg)}); err != nil {
				t.Fatalf("reload failed: %v", err)
			}
			hits, err := engine.Evaluate(context.Background(), &Input{Kind: domain.EntityInvoice, Amount: 60000})
			if err != nil {
				t.Fatalf("evaluation failed: %v", err)
			}
			got := 0
			if len(hits) == 1 {
				got = hits[0].Points
			}
			if got != tt.want {
				t.Errorf("expected %d points, got %d (hits %v)", tt.want, got, hits)
			}
		})
	}
}
