package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFactory_SameSeedSameSequence(t *testing.T) {
	a := New(DefaultSeed).Fresh(KMeans)
	b := New(DefaultSeed).Fresh(KMeans)

	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Int63(), b.Int63())
	}
}

func TestFactory_StreamsAreIndependent(t *testing.T) {
	f := New(DefaultSeed)

	assert.NotEqual(t, f.Fresh(KMeans).Int63(), f.Fresh(IsolationForest).Int63())
	assert.NotEqual(t, DeriveSeed(1, KMeans), DeriveSeed(2, KMeans))
}

func TestFactory_FreshRestarts(t *testing.T) {
	f := New(DefaultSeed)
	r := f.Fresh(IsolationForest)
	first := r.Int63()
	_ = r.Int63()

	assert.NotSame(t, r, f.Fresh(IsolationForest))
	assert.Equal(t, first, f.Fresh(IsolationForest).Int63())
}
