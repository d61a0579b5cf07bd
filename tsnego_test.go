package tsnego_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/tsnego"
	"github.com/hupe1980/tsnego/distance"
	"github.com/hupe1980/tsnego/testutil"
)

func TestNewValidation(t *testing.T) {
	t.Run("ZeroDims", func(t *testing.T) {
		_, err := tsnego.New(func(o *tsnego.Options) { o.Dims = 0 })
		var want *tsnego.ErrInvalidDimension
		require.ErrorAs(t, err, &want)
		assert.Equal(t, 0, want.Dimension)
	})

	t.Run("NegativePerplexity", func(t *testing.T) {
		_, err := tsnego.New(func(o *tsnego.Options) { o.Perplexity = -1 })
		var want *tsnego.ErrInvalidPerplexity
		assert.ErrorAs(t, err, &want)
	})

	t.Run("NegativeTheta", func(t *testing.T) {
		_, err := tsnego.New(func(o *tsnego.Options) { o.Theta = -0.1 })
		var want *tsnego.ErrInvalidTheta
		assert.ErrorAs(t, err, &want)
	})

	t.Run("ThetaAboveOne", func(t *testing.T) {
		_, err := tsnego.New(func(o *tsnego.Options) { o.Theta = 1.5 })
		var want *tsnego.ErrInvalidTheta
		assert.ErrorAs(t, err, &want)
	})

	t.Run("NegativeIterations", func(t *testing.T) {
		_, err := tsnego.New(func(o *tsnego.Options) { o.MaxIter = -1 })
		var want *tsnego.ErrInvalidIterations
		assert.ErrorAs(t, err, &want)
	})
}

func TestEmbedValidation(t *testing.T) {
	ts, err := tsnego.New()
	require.NoError(t, err)

	t.Run("TooFewPoints", func(t *testing.T) {
		_, err := ts.Embed([]float64{1, 2}, 1, 2)
		assert.ErrorIs(t, err, tsnego.ErrTooFewPoints)
	})

	t.Run("ShortBuffer", func(t *testing.T) {
		_, err := ts.Embed([]float64{1, 2, 3}, 2, 2)
		var want *tsnego.ErrSizeMismatch
		assert.ErrorAs(t, err, &want)
	})

	t.Run("NilInitial", func(t *testing.T) {
		_, err := ts.EmbedFrom(make([]float64, 4), 2, 2, nil)
		var want *tsnego.ErrSizeMismatch
		assert.ErrorAs(t, err, &want)
	})

	t.Run("WrongInitialShape", func(t *testing.T) {
		_, err := ts.EmbedFrom(make([]float64, 4), 2, 2, make([]float64, 3))
		var want *tsnego.ErrSizeMismatch
		assert.ErrorAs(t, err, &want)
	})
}

func TestEmbedShapeAndFiniteness(t *testing.T) {
	const (
		n = 120
		d = 10
	)

	gen := testutil.NewRNG(1)
	data := make([]float64, n*d)
	gen.FillNormal(data, 0, 1)

	ts, err := tsnego.New(func(o *tsnego.Options) {
		o.Perplexity = 10
		o.MaxIter = 60
		o.Seed = 5
		o.EvalInterval = 0
	})
	require.NoError(t, err)

	embedding, err := ts.Embed(data, n, d)
	require.NoError(t, err)
	require.Len(t, embedding, n*2)

	for _, v := range embedding {
		require.False(t, math.IsNaN(v))
		require.False(t, math.IsInf(v, 0))
	}
}

func TestEmbedThreeDimensions(t *testing.T) {
	const (
		n = 80
		d = 6
	)

	gen := testutil.NewRNG(2)
	data := make([]float64, n*d)
	gen.FillUniform(data)

	ts, err := tsnego.New(func(o *tsnego.Options) {
		o.Dims = 3
		o.Perplexity = 8
		o.MaxIter = 40
		o.EvalInterval = 0
	})
	require.NoError(t, err)

	embedding, err := ts.Embed(data, n, d)
	require.NoError(t, err)
	assert.Len(t, embedding, n*3)
}

func TestEmbedDeterministic(t *testing.T) {
	const (
		n = 90
		d = 8
	)

	gen := testutil.NewRNG(3)
	data := make([]float64, n*d)
	gen.FillNormal(data, 0, 1)

	run := func(workers int) []float64 {
		ts, err := tsnego.New(func(o *tsnego.Options) {
			o.Perplexity = 10
			o.MaxIter = 50
			o.Seed = 1234
			o.Workers = workers
			o.EvalInterval = 0
		})
		require.NoError(t, err)

		embedding, err := ts.Embed(data, n, d)
		require.NoError(t, err)
		return embedding
	}

	first := run(1)
	second := run(1)
	parallel := run(6)

	assert.Equal(t, first, second)
	assert.Equal(t, first, parallel)
}

func TestEmbedFromZeroIterations(t *testing.T) {
	const (
		n = 40
		d = 5
	)

	gen := testutil.NewRNG(4)
	data := make([]float64, n*d)
	gen.FillUniform(data)

	initial := make([]float64, n*2)
	gen.FillNormal(initial, 0, 1e-4)
	want := make([]float64, len(initial))
	copy(want, initial)

	ts, err := tsnego.New(func(o *tsnego.Options) {
		o.Perplexity = 5
		o.MaxIter = 0
	})
	require.NoError(t, err)

	embedding, err := ts.EmbedFrom(data, n, d, initial)
	require.NoError(t, err)

	// The initial coordinates come back unchanged and the caller's buffer
	// was not written.
	assert.Equal(t, want, embedding)
	assert.Equal(t, want, initial)
	assert.NotSame(t, &initial[0], &embedding[0])
}

func TestEmbedInputNotMutated(t *testing.T) {
	const (
		n = 50
		d = 4
	)

	gen := testutil.NewRNG(6)
	data := make([]float64, n*d)
	gen.FillNormal(data, 3, 2)
	orig := make([]float64, len(data))
	copy(orig, data)

	ts, err := tsnego.New(func(o *tsnego.Options) {
		o.Perplexity = 5
		o.MaxIter = 20
		o.EvalInterval = 0
	})
	require.NoError(t, err)

	_, err = ts.Embed(data, n, d)
	require.NoError(t, err)
	assert.Equal(t, orig, data)
}

func TestEmbedSeparatesClusters(t *testing.T) {
	const (
		half = 60
		d    = 10
	)
	n := 2 * half

	gen := testutil.NewRNG(7)
	data := gen.TwoBlobs(half, d, 10, 0.5)

	ts, err := tsnego.New(func(o *tsnego.Options) {
		o.Perplexity = 15
		o.MaxIter = 400
		o.Seed = 7
		o.EvalInterval = 0
	})
	require.NoError(t, err)

	y, err := ts.Embed(data, n, d)
	require.NoError(t, err)

	// Mean intra-cluster distance must be well below the distance between
	// the cluster centroids.
	centroid := func(lo, hi int) (cx, cy float64) {
		for i := lo; i < hi; i++ {
			cx += y[i*2]
			cy += y[i*2+1]
		}
		m := float64(hi - lo)
		return cx / m, cy / m
	}

	ax, ay := centroid(0, half)
	bx, by := centroid(half, n)
	between := math.Hypot(ax-bx, ay-by)

	spread := func(lo, hi int, cx, cy float64) float64 {
		var sum float64
		for i := lo; i < hi; i++ {
			sum += math.Hypot(y[i*2]-cx, y[i*2+1]-cy)
		}
		return sum / float64(hi-lo)
	}

	intraA := spread(0, half, ax, ay)
	intraB := spread(half, n, bx, by)

	assert.Greater(t, between, 2*intraA)
	assert.Greater(t, between, 2*intraB)
}

func TestEmbedExactPath(t *testing.T) {
	const (
		n = 60
		d = 4
	)

	gen := testutil.NewRNG(8)
	data := make([]float64, n*d)
	gen.FillNormal(data, 0, 1)

	// Theta 0 switches both the affinity model and the force computation to
	// their exact variants.
	ts, err := tsnego.New(func(o *tsnego.Options) {
		o.Theta = 0
		o.Perplexity = 8
		o.MaxIter = 30
		o.EvalInterval = 0
	})
	require.NoError(t, err)

	embedding, err := ts.Embed(data, n, d)
	require.NoError(t, err)
	assert.Len(t, embedding, n*2)
}

func TestEmbedPerplexityTooLargeForDataset(t *testing.T) {
	gen := testutil.NewRNG(9)
	data := make([]float64, 20*3)
	gen.FillUniform(data)

	ts, err := tsnego.New(func(o *tsnego.Options) {
		o.Perplexity = 30
	})
	require.NoError(t, err)

	_, err = ts.Embed(data, 20, 3)
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	const (
		n = 70
		d = 5
	)

	gen := testutil.NewRNG(10)
	data := make([]float64, n*d)
	gen.FillNormal(data, 0, 1)

	t.Run("RandomInit", func(t *testing.T) {
		y, err := tsnego.Run(data, n, d, nil, 2, 8, 0.5, 42, false, 30)
		require.NoError(t, err)
		assert.Len(t, y, n*2)
	})

	t.Run("SuppliedInit", func(t *testing.T) {
		initial := make([]float64, n*2)
		gen.FillNormal(initial, 0, 1e-4)

		y, err := tsnego.Run(data, n, d, initial, 2, 8, 0.5, 42, true, 0)
		require.NoError(t, err)
		assert.Equal(t, initial, y)
	})

	t.Run("BadParams", func(t *testing.T) {
		_, err := tsnego.Run(data, n, d, nil, 2, 8, 2.0, 42, false, 30)
		assert.Error(t, err)
	})
}

func TestMetricsCollection(t *testing.T) {
	const (
		n = 60
		d = 4
	)

	gen := testutil.NewRNG(11)
	data := make([]float64, n*d)
	gen.FillUniform(data)

	metrics := &tsnego.BasicMetricsCollector{}

	ts, err := tsnego.New(func(o *tsnego.Options) {
		o.Perplexity = 5
		o.MaxIter = 25
		o.EvalInterval = 10
		o.Metrics = metrics
	})
	require.NoError(t, err)

	_, err = ts.Embed(data, n, d)
	require.NoError(t, err)

	assert.Equal(t, int64(25), metrics.IterationCount.Load())
	assert.Equal(t, int64(1), metrics.RunCount.Load())
	assert.Equal(t, int64(0), metrics.RunErrors.Load())
	// Reports at iterations 9, 19 and the final iteration 24.
	assert.Equal(t, int64(3), metrics.DivergenceCount.Load())
	assert.False(t, math.IsNaN(metrics.LastDivergence()))
}

func TestEmbedCentersResult(t *testing.T) {
	const (
		n = 50
		d = 6
	)

	gen := testutil.NewRNG(12)
	data := make([]float64, n*d)
	gen.FillNormal(data, 0, 1)

	ts, err := tsnego.New(func(o *tsnego.Options) {
		o.Perplexity = 6
		o.MaxIter = 15
		o.EvalInterval = 0
	})
	require.NoError(t, err)

	y, err := ts.Embed(data, n, d)
	require.NoError(t, err)

	mean := distance.Mean(y, n, 2)
	assert.InDelta(t, 0, mean[0], 1e-9)
	assert.InDelta(t, 0, mean[1], 1e-9)
}
