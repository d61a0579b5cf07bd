package sptree

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/tsnego/testutil"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		points []float64
		n      int
		dims   int
	}{
		{"ZeroPoints", []float64{}, 0, 2},
		{"ZeroDims", []float64{1, 2}, 2, 0},
		{"ShortBuffer", []float64{1, 2, 3}, 2, 2},
		{"FanoutOverflow", make([]float64, 21), 1, 21},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.points, tt.n, tt.dims)
			assert.Error(t, err)
		})
	}
}

func TestMassInvariant(t *testing.T) {
	const (
		n    = 500
		dims = 2
	)

	gen := testutil.NewRNG(3)
	points := make([]float64, n*dims)
	gen.FillNormal(points, 0, 1)

	tree, err := New(points, n, dims)
	require.NoError(t, err)

	assert.Equal(t, float64(n), tree.Mass())
	assert.NoError(t, tree.checkMass())
}

func TestRootCenterOfMass(t *testing.T) {
	points := []float64{
		-1, -1,
		1, -1,
		-1, 1,
		1, 1,
		0, 4,
	}

	tree, err := New(points, 5, 2)
	require.NoError(t, err)

	com := tree.com(0)
	assert.InDelta(t, 0, com[0], 1e-12)
	assert.InDelta(t, 0.8, com[1], 1e-12)
}

func TestOctreeFanout(t *testing.T) {
	gen := testutil.NewRNG(8)
	points := make([]float64, 20*3)
	gen.FillUniform(points)

	tree, err := New(points, 20, 3)
	require.NoError(t, err)

	assert.Equal(t, 8, tree.fanout)
	assert.NoError(t, tree.checkMass())
	assert.Equal(t, float64(20), tree.Mass())
}

// exactForces computes the repulsive force and partition-function share of
// point i by direct pairwise summation.
func exactForces(points []float64, n, dims, i int, neg []float64) (sumQ float64) {
	yi := points[i*dims : (i+1)*dims]
	for j := 0; j < n; j++ {
		if j == i {
			continue
		}
		yj := points[j*dims : (j+1)*dims]
		var distSq float64
		for d := 0; d < dims; d++ {
			diff := yi[d] - yj[d]
			distSq += diff * diff
		}
		q := 1 / (1 + distSq)
		sumQ += q
		for d := 0; d < dims; d++ {
			neg[d] += q * q * (yi[d] - yj[d])
		}
	}
	return sumQ
}

func TestZeroThetaMatchesExactSum(t *testing.T) {
	const (
		n    = 200
		dims = 2
	)

	gen := testutil.NewRNG(17)
	points := make([]float64, n*dims)
	gen.FillNormal(points, 0, 1)

	tree, err := New(points, n, dims)
	require.NoError(t, err)

	for _, i := range []int{0, 42, n - 1} {
		approx := make([]float64, dims)
		sumQ := tree.ComputeNonEdgeForces(int32(i), 0, approx)

		exact := make([]float64, dims)
		wantQ := exactForces(points, n, dims, i, exact)

		assert.InDelta(t, wantQ, sumQ, 1e-9)
		for d := 0; d < dims; d++ {
			assert.InDelta(t, exact[d], approx[d], 1e-9)
		}
	}
}

func TestApproximationError(t *testing.T) {
	const (
		n    = 400
		dims = 2
	)

	gen := testutil.NewRNG(23)
	points := make([]float64, n*dims)
	gen.FillNormal(points, 0, 5)

	tree, err := New(points, n, dims)
	require.NoError(t, err)

	for _, i := range []int{0, 100, n - 1} {
		approx := make([]float64, dims)
		sumQ := tree.ComputeNonEdgeForces(int32(i), 0.5, approx)

		exact := make([]float64, dims)
		wantQ := exactForces(points, n, dims, i, exact)

		// theta = 0.5 trades accuracy for speed but stays close.
		assert.InDelta(t, wantQ, sumQ, 0.05*wantQ+1e-6)
		for d := 0; d < dims; d++ {
			assert.InDelta(t, exact[d], approx[d], 0.05*math.Abs(exact[d])+1e-2)
		}
	}
}

func TestCoincidentPointsAggregate(t *testing.T) {
	// 100 copies of the same point must not subdivide forever.
	const n = 100
	points := make([]float64, n*2)
	for i := 0; i < n; i++ {
		points[i*2] = 1.5
		points[i*2+1] = -2.5
	}

	tree, err := New(points, n, 2)
	require.NoError(t, err)

	assert.Equal(t, float64(n), tree.Mass())
	assert.Equal(t, 1, tree.NumNodes())

	com := tree.com(0)
	assert.InDelta(t, 1.5, com[0], 1e-12)
	assert.InDelta(t, -2.5, com[1], 1e-12)
}

func TestDepthLimitAggregates(t *testing.T) {
	// Two points closer together than 2^-6 of the box force the depth guard.
	points := []float64{
		0, 0,
		1e-9, 0,
		1, 1,
	}

	tree, err := New(points, 3, 2, func(o *Options) {
		o.MaxDepth = 6
	})
	require.NoError(t, err)

	assert.Equal(t, float64(3), tree.Mass())
	assert.NoError(t, tree.checkMass())
}

func TestSelfExcluded(t *testing.T) {
	points := []float64{
		0, 0,
		3, 4,
	}

	tree, err := New(points, 2, 2)
	require.NoError(t, err)

	neg := make([]float64, 2)
	sumQ := tree.ComputeNonEdgeForces(0, 0, neg)

	// Only the other point contributes: q = 1/(1+25).
	assert.InDelta(t, 1.0/26, sumQ, 1e-12)
	assert.InDelta(t, (1.0/26)*(1.0/26)*(-3), neg[0], 1e-12)
	assert.InDelta(t, (1.0/26)*(1.0/26)*(-4), neg[1], 1e-12)
}
