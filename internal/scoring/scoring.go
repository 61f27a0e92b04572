// Package scoring turns raw submission fields into a bounded fraud score
// and a status or label.
//
// Every rule contributes a fixed number of points. Points are additive
// and the total is clamped to [0, 100]. The transaction evaluator adds a
// bounded perturbation supplied by the caller, so every function here is
// deterministic for identical inputs.
package scoring

import (
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Factor names a rule that contributed points to a score.
type Factor struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// Result accumulates the factors of one evaluation.
type Result struct {
	Factors []Factor `json:"factors"`

	// Noise is the perturbation added to the points. Zero outside of
	// transaction scoring.
	Noise float64 `json:"noise,omitempty"`
}

// Add records a factor. Zero-point factors are ignored.
func (r *Result) Add(name string, points int) {
	if points == 0 {
		return
	}
	r.Factors = append(r.Factors, Factor{Name: name, Points: points})
}

// Points is the unclamped sum of all factors.
func (r Result) Points() int {
	total := 0
	for _, f := range r.Factors {
		total += f.Points
	}
	return total
}

// Raw is points plus noise, clamped to [0, MaxScore].
func (r Result) Raw() float64 {
	raw := float64(r.Points()) + r.Noise
	return math.Max(0, math.Min(raw, domain.MaxScore))
}

// Score is Raw rounded half up to an integer.
func (r Result) Score() int {
	return domain.ClampScore(int(math.Floor(r.Raw() + 0.5)))
}
