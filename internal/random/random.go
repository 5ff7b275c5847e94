// Package random provides the single seedable source of randomness shared by
// role resolution and the epidemic model.
package random

import (
	"math/rand/v2"
	"time"
)

// Source is the subset of *rand.Rand the simulator draws from.
type Source interface {
	Float64() float64
	IntN(n int) int
	Perm(n int) []int
}

// New returns a PCG-backed source. Identical seeds yield identical draws.
func New(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewSeed derives a seed from the wall clock for runs without --seed.
func NewSeed() uint64 {
	return uint64(time.Now().UnixNano())
}

// Bernoulli draws once and reports success with probability p.
// p <= 0 never succeeds; p >= 1 always succeeds.
func Bernoulli(src Source, p float64) bool {
	return src.Float64() < p
}

// Sample draws k distinct elements of population uniformly without
// replacement. k is clamped to [0, len(population)]. The result follows the
// order of a single permutation draw, so it is reproducible for a seed.
func Sample[T any](src Source, population []T, k int) []T {
	if k > len(population) {
		k = len(population)
	}
	if k <= 0 {
		return []T{}
	}
	perm := src.Perm(len(population))
	out := make([]T, k)
	for i := 0; i < k; i++ {
		out[i] = population[perm[i]]
	}
	return out
}
