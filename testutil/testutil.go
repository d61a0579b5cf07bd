// Package testutil provides deterministic data generators shared by the
// package tests and benchmarks.
package testutil

import (
	"math/rand"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)), // nolint gosec
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Float64 returns, as a float64, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// NormFloat64 returns a normally distributed pseudo-random number.
func (r *RNG) NormFloat64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.NormFloat64()
}

// FillUniform fills dst with random values in range [0, 1).
// Locks only once per call (preferred over calling Float64 in a loop).
func (r *RNG) FillUniform(dst []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float64()
	}
}

// FillNormal fills dst with Gaussian values of the given mean and standard
// deviation.
func (r *RNG) FillNormal(dst []float64, mean, stddev float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.NormFloat64()*stddev + mean
	}
}

// Blob appends n points drawn from an isotropic Gaussian around center to
// dst and returns the extended buffer. center's length fixes the
// dimensionality.
func (r *RNG) Blob(dst []float64, n int, center []float64, stddev float64) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < n; i++ {
		for _, c := range center {
			dst = append(dst, c+r.rand.NormFloat64()*stddev)
		}
	}
	return dst
}

// TwoBlobs returns a row-major matrix of 2n points in d dimensions: n points
// around the origin and n points around (offset, offset, ...). With a large
// offset relative to stddev the clusters are well separated.
func (r *RNG) TwoBlobs(n, d int, offset, stddev float64) []float64 {
	lo := make([]float64, d)
	hi := make([]float64, d)
	for i := range hi {
		hi[i] = offset
	}

	data := make([]float64, 0, 2*n*d)
	data = r.Blob(data, n, lo, stddev)
	data = r.Blob(data, n, hi, stddev)
	return data
}
