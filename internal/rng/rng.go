// Package rng hands out named, independently seeded random streams so that
// stochastic stages are reproducible and do not perturb each other.
package rng

import (
	"hash/fnv"
	"math/rand"
)

// DefaultSeed is the base seed used when none is configured.
const DefaultSeed int64 = 42

// Stream names used by the refinement stages.
const (
	IsolationForest = "isolation_forest"
	KMeans          = "kmeans"
)

// Factory derives streams from a base seed.
type Factory struct {
	seed int64
}

// New creates a factory with the given base seed.
func New(seed int64) Factory {
	return Factory{seed: seed}
}

// Fresh returns a new stream for name in its initial state. Every call
// with the same name yields the same sequence.
func (f Factory) Fresh(name string) *rand.Rand {
	return rand.New(rand.NewSource(DeriveSeed(f.seed, name))) // #nosec G404 -- reproducibility, not secrecy
}

// DeriveSeed mixes a stream name into the base seed.
func DeriveSeed(base int64, name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64()) ^ base // #nosec G115 -- bit mixing
}
