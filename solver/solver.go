// Package solver owns the low-dimensional coordinates and runs the
// gradient-descent iterations of the embedding engine. Each step combines
// sparse attractive forces from the joint probability table with repulsive
// forces approximated by a space-partitioning tree rebuilt over the current
// coordinates, then applies a momentum update with adaptive per-coordinate
// gains and recenters the embedding.
package solver

import (
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/tsnego/affinity"
	"github.com/hupe1980/tsnego/distance"
	"github.com/hupe1980/tsnego/sptree"
)

// zFloor keeps the partition function away from zero when all points
// coincide.
const zFloor = 1e-12

// Options contains configuration options for the solver.
type Options struct {
	// LearningRate scales the gradient in the velocity update.
	LearningRate float64

	// InitialMomentum applies before MomentumSwitchIter, FinalMomentum after.
	InitialMomentum    float64
	FinalMomentum      float64
	MomentumSwitchIter int

	// Theta is the Barnes-Hut accuracy knob; 0 yields the exact pairwise sum.
	Theta float64

	// MaxDepth bounds subdivision of the per-iteration tree.
	MaxDepth int

	// Workers bounds the number of concurrent per-point force computations.
	// Results do not depend on it. Defaults to GOMAXPROCS.
	Workers int
}

// DefaultOptions contains the default configuration options for the solver.
var DefaultOptions = Options{
	LearningRate:       200,
	InitialMomentum:    0.5,
	FinalMomentum:      0.8,
	MomentumSwitchIter: 250,
	Theta:              0.5,
	MaxDepth:           sptree.DefaultMaxDepth,
}

// Solver carries the embedding coordinates and the per-coordinate velocity
// and gain state across iterations.
type Solver struct {
	table *affinity.Table
	n     int
	dims  int
	opts  Options

	y     []float64 // embedding, n×dims
	vel   []float64 // velocity, n×dims
	gains []float64 // adaptive step-size multipliers, n×dims

	// scratch, reused across iterations
	pos    []float64
	neg    []float64
	zParts []float64
	grad   []float64
}

// New creates a solver over the given joint table, taking ownership of the
// initial coordinate buffer y (n×dims, row-major).
func New(table *affinity.Table, y []float64, n, dims int, optFns ...func(o *Options)) (*Solver, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if table == nil || table.N != n {
		return nil, fmt.Errorf("solver: table does not cover %d points", n)
	}
	if dims <= 0 {
		return nil, fmt.Errorf("solver: dimensionality must be positive, got %d", dims)
	}
	if len(y) != n*dims {
		return nil, fmt.Errorf("solver: coordinate buffer holds %d values, need %d", len(y), n*dims)
	}
	if opts.LearningRate <= 0 {
		return nil, fmt.Errorf("solver: learning rate must be positive, got %g", opts.LearningRate)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}

	s := &Solver{
		table:  table,
		n:      n,
		dims:   dims,
		opts:   opts,
		y:      y,
		vel:    make([]float64, n*dims),
		gains:  make([]float64, n*dims),
		pos:    make([]float64, n*dims),
		neg:    make([]float64, n*dims),
		zParts: make([]float64, n),
		grad:   make([]float64, n*dims),
	}
	for i := range s.gains {
		s.gains[i] = 1
	}

	return s, nil
}

// Embedding exposes the coordinate buffer. It is owned by the solver and
// mutated by every Step; callers wanting a stable copy must clone it.
func (s *Solver) Embedding() []float64 { return s.y }

// Step runs one optimization iteration. iter selects the momentum phase.
func (s *Solver) Step(iter int) error {
	if err := s.gradient(); err != nil {
		return err
	}

	momentum := s.opts.InitialMomentum
	if iter >= s.opts.MomentumSwitchIter {
		momentum = s.opts.FinalMomentum
	}

	// Gains grow additively while the gradient opposes the velocity (the
	// descent direction still agrees with the motion) and shrink
	// multiplicatively otherwise.
	for i := range s.grad {
		if sign(s.grad[i]) != sign(s.vel[i]) {
			s.gains[i] += 0.2
		} else {
			s.gains[i] *= 0.8
		}
		if s.gains[i] < 0.01 {
			s.gains[i] = 0.01
		}

		s.vel[i] = momentum*s.vel[i] - s.opts.LearningRate*s.gains[i]*s.grad[i]
		s.y[i] += s.vel[i]
	}

	distance.CenterInPlace(s.y, s.n, s.dims)

	return nil
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// gradient fills s.grad with the KL gradient at the current coordinates.
func (s *Solver) gradient() error {
	tree, err := sptree.New(s.y, s.n, s.dims, func(o *sptree.Options) {
		o.MaxDepth = s.opts.MaxDepth
	})
	if err != nil {
		return err
	}

	clear(s.pos)
	clear(s.neg)

	s.forces(tree)

	// The partition function is reduced sequentially so the result does not
	// depend on worker scheduling.
	z := zFloor
	for _, part := range s.zParts {
		z += part
	}

	invZ := 1 / z
	for i := range s.grad {
		s.grad[i] = s.pos[i] - s.neg[i]*invZ
	}

	return nil
}

// forces computes attractive and repulsive forces for every point. The tree
// is read-only here and per-point outputs are disjoint, so points are
// processed in parallel chunks.
func (s *Solver) forces(tree *sptree.Tree) {
	chunk := (s.n + s.opts.Workers - 1) / s.opts.Workers
	if chunk < 1 {
		chunk = 1
	}

	g := &errgroup.Group{}
	g.SetLimit(s.opts.Workers)
	for start := 0; start < s.n; start += chunk {
		start := start
		end := min(start+chunk, s.n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				s.pointForces(tree, i)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// pointForces accumulates point i's attraction over its table row and its
// Barnes-Hut repulsion, recording the partition-function share.
func (s *Solver) pointForces(tree *sptree.Tree, i int) {
	yi := s.y[i*s.dims : (i+1)*s.dims]
	attr := s.pos[i*s.dims : (i+1)*s.dims]

	cols, vals := s.table.Row(i)
	for idx, j := range cols {
		yj := s.y[int(j)*s.dims : (int(j)+1)*s.dims]

		distSq := 0.0
		for d := range yi {
			diff := yi[d] - yj[d]
			distSq += diff * diff
		}
		coef := vals[idx] / (1 + distSq)
		for d := range yi {
			attr[d] += coef * (yi[d] - yj[d])
		}
	}

	s.zParts[i] = tree.ComputeNonEdgeForces(int32(i), s.opts.Theta, s.neg[i*s.dims:(i+1)*s.dims])
}

// KLDivergence approximates the Kullback-Leibler divergence between the
// joint table and the embedding's Student-t distribution, using the same
// Barnes-Hut machinery as the gradient. It is observational only; the
// iteration count is fixed regardless of its value.
func (s *Solver) KLDivergence() (float64, error) {
	tree, err := sptree.New(s.y, s.n, s.dims, func(o *sptree.Options) {
		o.MaxDepth = s.opts.MaxDepth
	})
	if err != nil {
		return 0, err
	}

	z := zFloor
	buf := make([]float64, s.dims)
	for i := 0; i < s.n; i++ {
		clear(buf)
		z += tree.ComputeNonEdgeForces(int32(i), s.opts.Theta, buf)
	}

	var c float64
	for i := 0; i < s.n; i++ {
		yi := s.y[i*s.dims : (i+1)*s.dims]
		cols, vals := s.table.Row(i)
		for idx, j := range cols {
			yj := s.y[int(j)*s.dims : (int(j)+1)*s.dims]
			q := 1 / (1 + distance.SquaredL2(yi, yj)) / z
			p := vals[idx]
			c += p * math.Log((p+affinity.MinProbability)/(q+affinity.MinProbability))
		}
	}

	return c, nil
}
