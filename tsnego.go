// Package tsnego computes low-dimensional embeddings of high-dimensional
// feature vectors using the Barnes-Hut approximation of t-distributed
// Stochastic Neighbor Embedding (t-SNE).
//
// The engine has three parts:
//
//   - affinity: a high-dimensional neighbor-similarity model built from
//     adaptive-bandwidth Gaussian kernels calibrated to a target perplexity
//   - sptree: a space-partitioning tree over the embedding that answers
//     approximate repulsive-force queries in sub-linear time per point
//   - solver: the gradient-descent loop with momentum, adaptive gains and a
//     two-phase early-exaggeration schedule
//
// # Quick Start
//
// Embed 10-dimensional vectors into the plane:
//
//	ts, err := tsnego.New(func(o *tsnego.Options) {
//	    o.Perplexity = 30
//	    o.Seed = 42
//	})
//	if err != nil {
//	    panic(err)
//	}
//	embedding, err := ts.Embed(vectors, n, 10) // n×2 row-major result
//
// Runs are deterministic for a fixed seed, including when Workers > 1. The
// whole computation is a single blocking call; nothing persists between
// calls.
//
// # Ownership
//
// Embed reads the input buffer and never writes to it. The returned buffer
// is freshly allocated and owned by the caller. An initial embedding passed
// to EmbedFrom is copied, not mutated.
package tsnego

import (
	"math/rand"
	"time"

	"github.com/hupe1980/tsnego/affinity"
	"github.com/hupe1980/tsnego/distance"
	"github.com/hupe1980/tsnego/solver"
)

// initStdDev is the standard deviation of the random initial embedding.
const initStdDev = 1e-4

// TSNE runs Barnes-Hut t-SNE embeddings with a fixed set of options.
// A TSNE value is immutable and safe for concurrent use; every Embed call
// carries its own state.
type TSNE struct {
	opts    Options
	logger  *Logger
	metrics MetricsCollector
}

// New creates a TSNE instance. Option validation happens here, before any
// data is touched.
func New(optFns ...func(o *Options)) (*TSNE, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dims <= 0 {
		return nil, &ErrInvalidDimension{Dimension: opts.Dims}
	}
	if opts.Perplexity <= 0 {
		return nil, &ErrInvalidPerplexity{Perplexity: opts.Perplexity}
	}
	if opts.Theta < 0 || opts.Theta > 1 {
		return nil, &ErrInvalidTheta{Theta: opts.Theta}
	}
	if opts.MaxIter < 0 {
		return nil, &ErrInvalidIterations{Iterations: opts.MaxIter}
	}

	logger := opts.Logger
	if logger == nil {
		logger = NoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NoopMetricsCollector{}
	}

	return &TSNE{opts: opts, logger: logger, metrics: metrics}, nil
}

// Embed computes an embedding of the n rows of input (row-major, d columns),
// starting from a seeded random initialization. The result is an n×Dims
// row-major buffer.
func (t *TSNE) Embed(input []float64, n, d int) ([]float64, error) {
	return t.run(input, n, d, nil)
}

// EmbedFrom is Embed with a caller-supplied initial embedding (n×Dims,
// row-major) instead of random initialization. The initial buffer is copied;
// with MaxIter == 0 the copy is returned unchanged.
func (t *TSNE) EmbedFrom(input []float64, n, d int, initial []float64) ([]float64, error) {
	if initial == nil {
		return nil, &ErrSizeMismatch{Name: "initial embedding", Expected: n * t.opts.Dims, Actual: 0}
	}
	return t.run(input, n, d, initial)
}

// Run embeds input (n×d) with a one-shot parameter set, mirroring the
// classic operator signature. initial may be nil unless skipRandomInit is
// set.
func Run(input []float64, n, d int, initial []float64, dims int, perplexity, theta float64, seed int64, skipRandomInit bool, maxIter int) ([]float64, error) {
	ts, err := New(func(o *Options) {
		o.Dims = dims
		o.Perplexity = perplexity
		o.Theta = theta
		o.Seed = seed
		o.MaxIter = maxIter
	})
	if err != nil {
		return nil, err
	}
	if skipRandomInit {
		return ts.EmbedFrom(input, n, d, initial)
	}
	return ts.Embed(input, n, d)
}

// run drives the full pipeline: input normalization, similarity model,
// initialization, and the two-phase optimization schedule.
func (t *TSNE) run(input []float64, n, d int, initial []float64) ([]float64, error) {
	runStart := time.Now()

	y, err := t.embed(input, n, d, initial)

	t.metrics.RecordRun(time.Since(runStart), err)
	t.logger.LogRunDone(n, t.opts.Dims, time.Since(runStart), err)

	return y, err
}

func (t *TSNE) embed(input []float64, n, d int, initial []float64) ([]float64, error) {
	opts := t.opts

	if n <= 1 {
		return nil, ErrTooFewPoints
	}
	if d <= 0 {
		return nil, &ErrInvalidDimension{Dimension: d}
	}
	if len(input) < n*d {
		return nil, &ErrSizeMismatch{Name: "input", Expected: n * d, Actual: len(input)}
	}
	if initial != nil && len(initial) != n*opts.Dims {
		return nil, &ErrSizeMismatch{Name: "initial embedding", Expected: n * opts.Dims, Actual: len(initial)}
	}

	t.logger.LogRunStart(n, d, opts.Dims, opts.Perplexity, opts.Theta, opts.MaxIter)

	rng := rand.New(rand.NewSource(opts.Seed)) // nolint gosec

	// Normalize a private copy of the input so the bandwidth search is
	// well-conditioned; the caller's buffer is never written.
	data := make([]float64, n*d)
	copy(data, input[:n*d])
	distance.CenterInPlace(data, n, d)
	if maxAbs := distance.MaxAbs(data); maxAbs > 0 {
		distance.ScaleInPlace(data, 1/maxAbs)
	}

	affStart := time.Now()
	table, err := affinity.Compute(data, n, d, opts.Perplexity, func(o *affinity.Options) {
		o.Exact = opts.Theta == 0
		o.RNG = rng
		o.Workers = opts.Workers
	})
	t.metrics.RecordAffinities(time.Since(affStart), err)
	if err != nil {
		t.logger.LogAffinities(n, 0, opts.Theta == 0, time.Since(affStart), err)
		return nil, err
	}
	t.logger.LogAffinities(n, table.NNZ(), opts.Theta == 0, time.Since(affStart), nil)

	// Early exaggeration inflates attraction until StopLyingIter.
	lying := opts.Exaggeration > 1 && opts.MaxIter > 0
	if lying {
		table.Scale(opts.Exaggeration)
	}

	y := make([]float64, n*opts.Dims)
	if initial != nil {
		copy(y, initial)
	} else {
		for i := range y {
			y[i] = rng.NormFloat64() * initStdDev
		}
	}

	s, err := solver.New(table, y, n, opts.Dims, func(o *solver.Options) {
		o.LearningRate = opts.LearningRate
		o.InitialMomentum = opts.InitialMomentum
		o.FinalMomentum = opts.FinalMomentum
		o.MomentumSwitchIter = opts.MomentumSwitchIter
		o.Theta = opts.Theta
		o.Workers = opts.Workers
	})
	if err != nil {
		return nil, err
	}

	for iter := 0; iter < opts.MaxIter; iter++ {
		if lying && iter == opts.StopLyingIter {
			table.Scale(1 / opts.Exaggeration)
			lying = false
			t.logger.LogPhase(iter, "exaggeration removed")
		}
		if iter == opts.MomentumSwitchIter {
			t.logger.LogPhase(iter, "final momentum")
		}

		iterStart := time.Now()
		if err := s.Step(iter); err != nil {
			return nil, err
		}
		t.metrics.RecordIteration(iter, time.Since(iterStart))

		if opts.EvalInterval > 0 && (iter%opts.EvalInterval == opts.EvalInterval-1 || iter == opts.MaxIter-1) {
			kl, err := s.KLDivergence()
			if err != nil {
				return nil, err
			}
			t.metrics.RecordDivergence(iter, kl)
			t.logger.LogProgress(iter, kl)
		}
	}

	return s.Embedding(), nil
}
