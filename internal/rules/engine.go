// Package rules evaluates operator-supplied CEL expressions. Custom rules
// add points on top of the built-in evaluators for one entity kind.
package rules

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/kestrel/internal/domain"
	"golang.org/x/sync/errgroup"
)

// GlobalTenant marks rules that apply to every account.
const GlobalTenant = "*"

// ErrInvalidRule is returned when a rule config fails validation.
var ErrInvalidRule = errors.New("invalid rule")

// Input holds the submission fields exposed to rule expressions.
type Input struct {
	Kind             domain.EntityKind
	SupplierID       string
	Amount           float64
	ExpectedAmount   float64
	HasExpected      bool
	ExpectedQuantity int64
	ReceivedQuantity int64
	TxType           string
}

func (in *Input) activation() map[string]any {
	return map[string]any{
		"kind":              string(in.Kind),
		"supplier_id":       in.SupplierID,
		"amount":            in.Amount,
		"expected_amount":   in.ExpectedAmount,
		"has_expected":      in.HasExpected,
		"expected_quantity": in.ExpectedQuantity,
		"received_quantity": in.ReceivedQuantity,
		"tx_type":           in.TxType,
	}
}

// Engine holds compiled rules indexed by entity kind.
type Engine struct {
	env      *cel.Env
	parallel int

	mu     sync.RWMutex
	byID   map[string]*program
	byKind map[domain.EntityKind][]*program
}

type program struct {
	cfg *domain.RuleConfig
	prg cel.Program
}

// NewEngine creates an engine that evaluates up to parallel rules at once.
func NewEngine(parallel int) (*Engine, error) {
	if parallel <= 0 {
		parallel = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("supplier_id", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("expected_amount", cel.DoubleType),
		cel.Variable("has_expected", cel.BoolType),
		cel.Variable("expected_quantity", cel.IntType),
		cel.Variable("received_quantity", cel.IntType),
		cel.Variable("tx_type", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{env: env, parallel: parallel}
	e.install(map[string]*program{})
	return e, nil
}

// ValidateRule checks required fields and compiles the expression without
// loading it.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: rule config is required", ErrInvalidRule)
	}
	switch {
	case cfg.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidRule)
	case cfg.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	case !cfg.EntityKind.Valid():
		return fmt.Errorf("%w: unknown entity kind %q", ErrInvalidRule, cfg.EntityKind)
	case cfg.Expression == "":
		return fmt.Errorf("%w: expression is required", ErrInvalidRule)
	}
	_, err := e.compile(cfg)
	return err
}

// LoadRule compiles cfg and adds it, replacing a rule with the same ID.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	p, err := e.compile(cfg)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	next := maps.Clone(e.byID)
	next[cfg.ID] = p
	e.install(next)
	return nil
}

// ReloadRules replaces every loaded rule with the enabled ones in configs.
// On a compile error the current rules stay in place.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	next := make(map[string]*program, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		p, err := e.compile(cfg)
		if err != nil {
			return err
		}
		next[cfg.ID] = p
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.install(next)
	return nil
}

// Evaluate runs the rules loaded for the input's kind and returns those
// that contributed points, ordered by rule ID. A rule failing at runtime
// contributes nothing.
func (e *Engine) Evaluate(ctx context.Context, input *Input) ([]domain.RuleHit, error) {
	e.mu.RLock()
	progs := e.byKind[input.Kind]
	e.mu.RUnlock()

	if len(progs) == 0 {
		return nil, nil
	}

	activation := input.activation()
	scores := make([]int, len(progs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallel)
	for i, p := range progs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scores[i] = p.score(activation)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var hits []domain.RuleHit
	for i, p := range progs {
		if scores[i] != 0 {
			hits = append(hits, domain.RuleHit{RuleID: p.cfg.ID, Name: p.cfg.Name, Points: scores[i]})
		}
	}
	return hits, nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.byID)
}

// Loaded returns the loaded rule configs ordered by ID.
func (e *Engine) Loaded() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.RuleConfig, 0, len(e.byID))
	for _, p := range e.byID {
		out = append(out, p.cfg)
	}
	slices.SortFunc(out, func(a, b *domain.RuleConfig) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Close unloads every rule.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.install(map[string]*program{})
	return nil
}

// install swaps in a new rule set. Callers hold mu.
func (e *Engine) install(byID map[string]*program) {
	byKind := make(map[domain.EntityKind][]*program)
	for _, p := range byID {
		byKind[p.cfg.EntityKind] = append(byKind[p.cfg.EntityKind], p)
	}
	for _, progs := range byKind {
		slices.SortFunc(progs, func(a, b *program) int { return cmp.Compare(a.cfg.ID, b.cfg.ID) })
	}
	e.byID = byID
	e.byKind = byKind
}

func (e *Engine) compile(cfg *domain.RuleConfig) (*program, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: failed to compile rule %s: %v", ErrInvalidRule, cfg.ID, issues.Err())
	}

	switch out := ast.OutputType(); out {
	case cel.BoolType, cel.IntType, cel.DoubleType:
	default:
		return nil, fmt.Errorf("%w: rule %s must return bool, int or double, got %s", ErrInvalidRule, cfg.ID, out)
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}
	return &program{cfg: cfg, prg: prg}, nil
}

func (p *program) score(activation map[string]any) int {
	out, _, err := p.prg.Eval(activation)
	if err != nil {
		slog.Warn("custom rule evaluation failed", "rule_id", p.cfg.ID, "error", err)
		return 0
	}
	return points(out, p.cfg.Points)
}

// points maps a result to points: true yields the configured points and
// numbers are rounded and used directly. Every contribution is bounded to
// one full score either way; NaN and infinities contribute nothing.
func points(val ref.Val, configured int) int {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return boundPoints(float64(configured))
		}
	case types.Double:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return boundPoints(math.Round(f))
	case types.Int:
		return boundPoints(float64(v))
	}
	return 0
}

func boundPoints(f float64) int {
	return int(math.Max(-domain.MaxScore, math.Min(f, domain.MaxScore)))
}
