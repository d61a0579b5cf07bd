package tsnego

import (
	"math"
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting run metrics.
// Implement this interface to integrate with monitoring systems.
type MetricsCollector interface {
	// RecordAffinities is called once per run after the similarity model is
	// built. duration is the time taken, err is nil if successful.
	RecordAffinities(duration time.Duration, err error)

	// RecordIteration is called after each optimization iteration.
	RecordIteration(iter int, duration time.Duration)

	// RecordDivergence is called at each divergence-reporting interval.
	RecordDivergence(iter int, kl float64)

	// RecordRun is called once at the end of a run.
	// duration is the total time taken, err is nil if successful.
	RecordRun(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAffinities(time.Duration, error) {}
func (NoopMetricsCollector) RecordIteration(int, time.Duration)    {}
func (NoopMetricsCollector) RecordDivergence(int, float64)         {}
func (NoopMetricsCollector) RecordRun(time.Duration, error)        {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AffinityNanos   atomic.Int64
	AffinityErrors  atomic.Int64
	IterationCount  atomic.Int64
	IterationNanos  atomic.Int64
	RunCount        atomic.Int64
	RunErrors       atomic.Int64
	RunNanos        atomic.Int64
	lastDivergence  atomic.Uint64 // float64 bits
	DivergenceCount atomic.Int64
}

// RecordAffinities implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAffinities(duration time.Duration, err error) {
	b.AffinityNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AffinityErrors.Add(1)
	}
}

// RecordIteration implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIteration(iter int, duration time.Duration) {
	b.IterationCount.Add(1)
	b.IterationNanos.Add(duration.Nanoseconds())
}

// RecordDivergence implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDivergence(iter int, kl float64) {
	b.DivergenceCount.Add(1)
	b.lastDivergence.Store(math.Float64bits(kl))
}

// RecordRun implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRun(duration time.Duration, err error) {
	b.RunCount.Add(1)
	b.RunNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RunErrors.Add(1)
	}
}

// LastDivergence returns the most recently recorded KL divergence, or NaN if
// none was recorded yet.
func (b *BasicMetricsCollector) LastDivergence() float64 {
	if b.DivergenceCount.Load() == 0 {
		return math.NaN()
	}
	return math.Float64frombits(b.lastDivergence.Load())
}
