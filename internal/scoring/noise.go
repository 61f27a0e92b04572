package scoring

import (
	"math/rand/v2"
	"sync"
	"time"
)

// MaxNoise is the exclusive upper bound of a transaction perturbation.
const MaxNoise = 10.0

// NoiseSource yields perturbations in [0, MaxNoise).
type NoiseSource interface {
	Next() float64
}

// SeededNoise draws uniform perturbations from a seeded generator.
// Safe for concurrent use.
type SeededNoise struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededNoise creates a generator. A zero seed uses the current time.
func NewSeededNoise(seed uint64) *SeededNoise {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &SeededNoise{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Next returns the next perturbation.
func (n *SeededNoise) Next() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rng.Float64() * MaxNoise
}

// FixedNoise always returns the same perturbation, clamped to [0, MaxNoise).
type FixedNoise float64

// Next returns the fixed value.
func (f FixedNoise) Next() float64 {
	v := float64(f)
	if v < 0 {
		return 0
	}
	if v >= MaxNoise {
		return MaxNoise - 1e-9
	}
	return v
}
