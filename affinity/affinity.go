// Package affinity builds the high-dimensional neighbor-similarity model for
// the embedding engine: per-point Gaussian kernels with bandwidths calibrated
// so each point's conditional distribution over its neighbors has the entropy
// implied by the target perplexity. Conditionals are symmetrized into a single
// joint distribution over point pairs, stored sparsely.
//
// Two paths are provided. The exact path considers every other point as a
// neighbor and is quadratic in the number of points. The approximate path
// restricts each point to its 3·perplexity nearest neighbors, located with a
// vantage-point tree over the input space, and is the default for Barnes-Hut
// runs.
package affinity

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/tsnego/distance"
	"github.com/hupe1980/tsnego/vptree"
)

const (
	// entropyTol is the tolerance on the entropy gap in the bandwidth search.
	entropyTol = 1e-5

	// maxBetaIter bounds the bandwidth search per point. Bracket expansion is
	// folded into the bisection, so the budget covers both.
	maxBetaIter = 200

	// MinProbability is the floor applied to joint probabilities so that
	// downstream divisions never see a zero.
	MinProbability = 1e-12
)

// ErrPerplexityNotConverged reports a point whose bandwidth search could not
// reach the target entropy within the iteration budget. This indicates
// degenerate input, typically a point whose candidate neighbors are all
// duplicates of one another.
type ErrPerplexityNotConverged struct {
	Point int
}

func (e *ErrPerplexityNotConverged) Error() string {
	return fmt.Sprintf("affinity: perplexity search did not converge for point %d", e.Point)
}

// ErrPerplexityTooLarge indicates that the dataset is too small for the
// requested perplexity on the approximate path, which needs 3·perplexity
// neighbors per point.
type ErrPerplexityTooLarge struct {
	Perplexity float64
	N          int
}

func (e *ErrPerplexityTooLarge) Error() string {
	return fmt.Sprintf("affinity: perplexity %g too large for %d points", e.Perplexity, e.N)
}

// Options contains configuration options for the affinity computation.
type Options struct {
	// Exact selects the dense quadratic path instead of the nearest-neighbor
	// approximation.
	Exact bool

	// Neighbors overrides the neighbor count of the approximate path.
	// Defaults to 3·perplexity.
	Neighbors int

	// RNG drives vantage-point selection during tree construction. Defaults
	// to a generator seeded with 0; pass the run's generator for reproducible
	// end-to-end behavior.
	RNG *rand.Rand

	// Workers bounds the number of concurrent per-point calibrations.
	// Defaults to GOMAXPROCS.
	Workers int
}

// DefaultOptions contains the default configuration options.
var DefaultOptions = Options{}

// Compute returns the symmetrized joint probability table for the n rows of
// data (row-major, d columns) at the given perplexity.
func Compute(data []float64, n, d int, perplexity float64, optFns ...func(o *Options)) (*Table, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if n <= 1 {
		return nil, fmt.Errorf("affinity: need at least two points, got %d", n)
	}
	if d <= 0 {
		return nil, fmt.Errorf("affinity: dimensionality must be positive, got %d", d)
	}
	if len(data) < n*d {
		return nil, fmt.Errorf("affinity: data buffer holds %d values, need %d", len(data), n*d)
	}
	if perplexity <= 0 {
		return nil, fmt.Errorf("affinity: perplexity must be positive, got %g", perplexity)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.RNG == nil {
		opts.RNG = rand.New(rand.NewSource(0)) // nolint gosec
	}

	if opts.Exact {
		return computeExact(data, n, d, perplexity, &opts)
	}
	return computeApprox(data, n, d, perplexity, &opts)
}

// computeExact builds the joint table from the full conditional matrix.
func computeExact(data []float64, n, d int, perplexity float64, opts *Options) (*Table, error) {
	cond := make([]float64, n*n)
	errs := make([]error, n)

	chunk := chunkSize(n, opts.Workers)
	g := &errgroup.Group{}
	g.SetLimit(opts.Workers)
	for start := 0; start < n; start += chunk {
		start := start
		end := min(start+chunk, n)
		g.Go(func() error {
			sqd := make([]float64, n-1)
			probs := make([]float64, n-1)
			for i := start; i < end; i++ {
				k := 0
				for j := 0; j < n; j++ {
					if j == i {
						continue
					}
					sqd[k] = distance.SquaredL2Rows(data, i, j, d)
					k++
				}
				if !calibrate(sqd, perplexity, probs) {
					errs[i] = &ErrPerplexityNotConverged{Point: i}
					continue
				}
				k = 0
				row := cond[i*n : (i+1)*n]
				for j := 0; j < n; j++ {
					if j == i {
						continue
					}
					row[j] = probs[k]
					k++
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("affinity: point %d: %w", i, err)
		}
	}

	// Symmetrize: P(i,j) = (p(j|i) + p(i|j)) / 2N, which sums to one because
	// each conditional row sums to one.
	tb := &Table{
		N:      n,
		RowPtr: make([]int64, n+1),
		Cols:   make([]int32, 0, n*(n-1)),
		Vals:   make([]float64, 0, n*(n-1)),
	}
	inv := 1 / (2 * float64(n))
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			v := (cond[i*n+j] + cond[j*n+i]) * inv
			if v < MinProbability {
				v = MinProbability
			}
			tb.Cols = append(tb.Cols, int32(j))
			tb.Vals = append(tb.Vals, v)
		}
		tb.RowPtr[i+1] = int64(len(tb.Cols))
	}

	return tb, nil
}

// computeApprox builds the joint table from per-point nearest-neighbor
// conditionals found with a vantage-point tree.
func computeApprox(data []float64, n, d int, perplexity float64, opts *Options) (*Table, error) {
	k := opts.Neighbors
	if k <= 0 {
		k = int(3 * perplexity)
	}
	if k < 1 {
		k = 1
	}
	if k > n-1 {
		return nil, &ErrPerplexityTooLarge{Perplexity: perplexity, N: n}
	}

	tree, err := vptree.New(data, n, d, opts.RNG)
	if err != nil {
		return nil, err
	}

	cols := make([]int32, n*k)
	vals := make([]float64, n*k)
	errs := make([]error, n)

	chunk := chunkSize(n, opts.Workers)
	g := &errgroup.Group{}
	g.SetLimit(opts.Workers)
	for start := 0; start < n; start += chunk {
		start := start
		end := min(start+chunk, n)
		g.Go(func() error {
			sqd := make([]float64, k)
			probs := make([]float64, k)
			for i := start; i < end; i++ {
				q := data[i*d : (i+1)*d]

				// Ask for one extra neighbor and drop the self-match. With
				// duplicate rows the self-match may lose the tie; either way
				// exactly k candidates remain.
				idx, dist := tree.Search(q, k+1)
				neighbors := cols[i*k : (i+1)*k]
				m := 0
				for pos, j := range idx {
					if j == int32(i) || m == k {
						continue
					}
					neighbors[m] = j
					sqd[m] = dist[pos] * dist[pos]
					m++
				}

				if !calibrate(sqd, perplexity, probs) {
					errs[i] = &ErrPerplexityNotConverged{Point: i}
					continue
				}
				copy(vals[i*k:(i+1)*k], probs)
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("affinity: point %d: %w", i, err)
		}
	}

	return symmetrize(cols, vals, n, k), nil
}

// calibrate runs the bandwidth (precision) search for one point. sqd holds
// squared distances to the candidate neighbors; on success probs holds the
// normalized conditional distribution over them.
//
// The search bisects on beta, doubling or halving while the bracket is still
// one-sided, until the entropy of the induced distribution is within
// entropyTol of log(perplexity).
func calibrate(sqd []float64, perplexity float64, probs []float64) bool {
	target := math.Log(perplexity)

	beta := 1.0
	betaMin := math.Inf(-1)
	betaMax := math.Inf(1)

	var sumP float64
	for iter := 0; iter < maxBetaIter; iter++ {
		sumP = math.SmallestNonzeroFloat64
		for i, dd := range sqd {
			p := math.Exp(-beta * dd)
			probs[i] = p
			sumP += p
		}
		var hSum float64
		for i, dd := range sqd {
			hSum += dd * probs[i]
		}
		h := math.Log(sumP) + beta*hSum/sumP

		diff := h - target
		if math.Abs(diff) < entropyTol {
			inv := 1 / sumP
			for i := range probs {
				probs[i] *= inv
			}
			return true
		}

		if diff > 0 {
			betaMin = beta
			if math.IsInf(betaMax, 1) {
				beta *= 2
			} else {
				beta = (beta + betaMax) / 2
			}
		} else {
			betaMax = beta
			if math.IsInf(betaMin, -1) {
				beta /= 2
			} else {
				beta = (beta + betaMin) / 2
			}
		}
	}

	return false
}

// symmetrize folds the directed conditional rows (fixed k entries per point)
// into a symmetric joint table normalized to sum to one.
func symmetrize(cols []int32, vals []float64, n, k int) *Table {
	// Accumulate p(j|i) + p(i|j) under a canonical (low, high) pair key.
	pairs := make(map[int64]float64, n*k)
	for i := 0; i < n; i++ {
		for pos := 0; pos < k; pos++ {
			j := int(cols[i*k+pos])
			lo, hi := i, j
			if lo > hi {
				lo, hi = hi, lo
			}
			pairs[int64(lo)*int64(n)+int64(hi)] += vals[i*k+pos]
		}
	}

	keys := make([]int64, 0, len(pairs))
	for key := range pairs {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })

	counts := make([]int64, n+1)
	for _, key := range keys {
		lo := int(key / int64(n))
		hi := int(key % int64(n))
		counts[lo+1]++
		counts[hi+1]++
	}
	for i := 0; i < n; i++ {
		counts[i+1] += counts[i]
	}

	tb := &Table{
		N:      n,
		RowPtr: counts,
		Cols:   make([]int32, counts[n]),
		Vals:   make([]float64, counts[n]),
	}

	next := make([]int64, n)
	copy(next, counts[:n])
	var total float64
	for _, key := range keys {
		lo := int(key / int64(n))
		hi := int(key % int64(n))
		v := pairs[key]
		total += 2 * v

		tb.Cols[next[lo]] = int32(hi)
		tb.Vals[next[lo]] = v
		next[lo]++
		tb.Cols[next[hi]] = int32(lo)
		tb.Vals[next[hi]] = v
		next[hi]++
	}

	// Keys were emitted in (low, high) order, so columns within each row are
	// already sorted for the low side; the high side receives its entries in
	// increasing low order as well.
	if total > 0 {
		tb.Scale(1 / total)
	}
	for i, v := range tb.Vals {
		if v < MinProbability {
			tb.Vals[i] = MinProbability
		}
	}

	return tb
}

func chunkSize(n, workers int) int {
	c := (n + workers - 1) / workers
	if c < 1 {
		c = 1
	}
	return c
}
