// Package sptree implements an axis-aligned space-partitioning tree over the
// embedding coordinates (a quadtree in 2D, an octree in 3D, 2^dims children in
// general) with Barnes-Hut style approximate force queries.
//
// The tree is rebuilt from scratch for every optimization pass. Nodes live in
// a flat arena and reference their children by integer handles, so a rebuild
// is a single slice truncation away and there is no pointer-chasing cleanup.
// Once built, the tree is read-only and safe for concurrent queries.
package sptree

import (
	"fmt"
	"math"
)

const absent = int32(-1)

// DefaultMaxDepth bounds subdivision. Cells at this depth stop splitting and
// accumulate any further points as a single aggregate, which keeps clusters of
// near-coincident points from subdividing without end.
const DefaultMaxDepth = 32

type node struct {
	firstChild int32   // handle of child 0; children are contiguous; absent for leaves
	pointIndex int32   // occupant of a leaf, absent when empty
	mass       float64 // number of points accumulated in this subtree
}

// Tree is a Barnes-Hut space-partitioning tree over n points in dims
// dimensions. It references the coordinate buffer it was built from; the
// buffer must not change while the tree is queried.
type Tree struct {
	points   []float64
	n        int
	dims     int
	fanout   int // 2^dims
	maxDepth int

	nodes   []node
	centers []float64 // per node: cell center, dims values
	widths  []float64 // per node: cell half-width per dimension, dims values
	coms    []float64 // per node: center of mass, dims values
}

// New builds a tree over the n rows of points (row-major, dims columns).
func New(points []float64, n, dims int, optFns ...func(o *Options)) (*Tree, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if n <= 0 {
		return nil, fmt.Errorf("sptree: number of points must be positive, got %d", n)
	}
	if dims <= 0 {
		return nil, fmt.Errorf("sptree: dimensionality must be positive, got %d", dims)
	}
	if dims > 20 {
		return nil, fmt.Errorf("sptree: dimensionality %d exceeds the supported fanout", dims)
	}
	if len(points) < n*dims {
		return nil, fmt.Errorf("sptree: point buffer holds %d values, need %d", len(points), n*dims)
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}

	t := &Tree{
		points:   points,
		n:        n,
		dims:     dims,
		fanout:   1 << dims,
		maxDepth: opts.MaxDepth,
		nodes:    make([]node, 0, 2*n),
		centers:  make([]float64, 0, 2*n*dims),
		widths:   make([]float64, 0, 2*n*dims),
		coms:     make([]float64, 0, 2*n*dims),
	}

	center, halfWidth := boundingBox(points, n, dims)
	t.newNode(center, halfWidth)

	for i := 0; i < n; i++ {
		t.insert(0, int32(i), 0)
	}

	return t, nil
}

// Options contains configuration options for tree construction.
type Options struct {
	// MaxDepth is the maximum subdivision depth. Beyond it points are grouped
	// into the deepest cell instead of splitting further.
	MaxDepth int
}

// DefaultOptions contains the default configuration options for the tree.
var DefaultOptions = Options{
	MaxDepth: DefaultMaxDepth,
}

// NumNodes returns the number of allocated tree nodes.
func (t *Tree) NumNodes() int { return len(t.nodes) }

// Mass returns the total number of points indexed by the tree.
func (t *Tree) Mass() float64 {
	if len(t.nodes) == 0 {
		return 0
	}
	return t.nodes[0].mass
}

// boundingBox computes the cell center and per-dimension half-widths covering
// all points, padded so boundary points fall strictly inside.
func boundingBox(points []float64, n, dims int) (center, halfWidth []float64) {
	center = make([]float64, dims)
	halfWidth = make([]float64, dims)

	minC := make([]float64, dims)
	maxC := make([]float64, dims)
	copy(minC, points[:dims])
	copy(maxC, points[:dims])
	for i := 1; i < n; i++ {
		row := points[i*dims : (i+1)*dims]
		for d, v := range row {
			if v < minC[d] {
				minC[d] = v
			}
			if v > maxC[d] {
				maxC[d] = v
			}
		}
	}

	for d := 0; d < dims; d++ {
		center[d] = (minC[d] + maxC[d]) / 2
		halfWidth[d] = (maxC[d]-minC[d])/2 + 1e-5
	}

	return center, halfWidth
}

// newNode appends a node with the given cell geometry and returns its handle.
func (t *Tree) newNode(center, halfWidth []float64) int32 {
	id := int32(len(t.nodes))
	t.nodes = append(t.nodes, node{firstChild: absent, pointIndex: absent})
	t.centers = append(t.centers, center...)
	t.widths = append(t.widths, halfWidth...)
	t.coms = append(t.coms, make([]float64, t.dims)...)
	return id
}

func (t *Tree) row(i int32) []float64 {
	return t.points[int(i)*t.dims : (int(i)+1)*t.dims]
}

func (t *Tree) center(id int32) []float64 {
	return t.centers[int(id)*t.dims : (int(id)+1)*t.dims]
}

func (t *Tree) width(id int32) []float64 {
	return t.widths[int(id)*t.dims : (int(id)+1)*t.dims]
}

func (t *Tree) com(id int32) []float64 {
	return t.coms[int(id)*t.dims : (int(id)+1)*t.dims]
}

// insert adds point p to the subtree rooted at id, updating mass and center
// of mass along the way.
func (t *Tree) insert(id, p int32, depth int) {
	point := t.row(p)

	// Running center of mass.
	t.nodes[id].mass++
	mass := t.nodes[id].mass
	com := t.com(id)
	for d := range com {
		com[d] += (point[d] - com[d]) / mass
	}

	if t.nodes[id].firstChild != absent {
		t.insert(t.childFor(id, point), p, depth+1)
		return
	}

	if t.nodes[id].pointIndex == absent {
		t.nodes[id].pointIndex = p
		return
	}

	resident := t.nodes[id].pointIndex

	// Coincident points and cells at the depth limit are aggregated in place:
	// the mass and center of mass already account for the new point.
	if depth >= t.maxDepth || coincident(point, t.row(resident)) {
		return
	}

	t.subdivide(id)
	t.nodes[id].pointIndex = absent

	// The resident moves down one level; its mass was already counted here.
	residentRow := t.row(resident)
	t.insert(t.childFor(id, residentRow), resident, depth+1)
	t.insert(t.childFor(id, point), p, depth+1)
}

func coincident(a, b []float64) bool {
	for d := range a {
		if a[d] != b[d] {
			return false
		}
	}
	return true
}

// subdivide allocates the 2^dims children of node id.
func (t *Tree) subdivide(id int32) {
	first := int32(len(t.nodes))

	center := make([]float64, t.dims)
	copy(center, t.center(id))
	halfWidth := make([]float64, t.dims)
	copy(halfWidth, t.width(id))

	childCenter := make([]float64, t.dims)
	childWidth := make([]float64, t.dims)
	for d := range childWidth {
		childWidth[d] = halfWidth[d] / 2
	}

	for c := 0; c < t.fanout; c++ {
		for d := 0; d < t.dims; d++ {
			if c&(1<<d) != 0 {
				childCenter[d] = center[d] + childWidth[d]
			} else {
				childCenter[d] = center[d] - childWidth[d]
			}
		}
		t.newNode(childCenter, childWidth)
	}

	t.nodes[id].firstChild = first
}

// childFor returns the handle of the child cell containing the point.
func (t *Tree) childFor(id int32, point []float64) int32 {
	center := t.center(id)
	c := int32(0)
	for d := 0; d < t.dims; d++ {
		if point[d] > center[d] {
			c |= 1 << d
		}
	}
	return t.nodes[id].firstChild + c
}

// ComputeNonEdgeForces accumulates the Barnes-Hut approximation of the
// repulsive force acting on point target into neg (length dims) and returns
// this point's contribution to the partition function.
//
// A subtree is summarized by its center of mass when its widest half-extent
// over the distance to the target falls below theta. theta = 0 forces full
// recursion, which reproduces the exact pairwise sum.
func (t *Tree) ComputeNonEdgeForces(target int32, theta float64, neg []float64) (sumQ float64) {
	point := t.row(target)
	return t.nonEdge(0, target, point, theta*theta, neg)
}

func (t *Tree) nonEdge(id, target int32, point []float64, thetaSq float64, neg []float64) (sumQ float64) {
	nd := &t.nodes[id]
	if nd.mass == 0 {
		return 0
	}
	// Skip the target's own singleton leaf; aggregated leaves still
	// contribute their mass (with zero displacement, only the partition
	// function is affected).
	if nd.firstChild == absent && nd.pointIndex == target && nd.mass == 1 {
		return 0
	}

	com := t.com(id)
	var distSq float64
	for d := range point {
		diff := point[d] - com[d]
		distSq += diff * diff
	}

	maxWidth := 0.0
	for _, w := range t.width(id) {
		if w > maxWidth {
			maxWidth = w
		}
	}

	// Summarize when the cell looks small from the target: width/dist < theta.
	if nd.firstChild == absent || maxWidth*maxWidth < thetaSq*distSq {
		q := 1 / (1 + distSq)
		sumQ = nd.mass * q
		mult := sumQ * q
		for d := range neg {
			neg[d] += mult * (point[d] - com[d])
		}
		return sumQ
	}

	for c := int32(0); c < int32(t.fanout); c++ {
		sumQ += t.nonEdge(nd.firstChild+c, target, point, thetaSq, neg)
	}
	return sumQ
}

// checkMass verifies that every internal node's mass equals the sum of its
// children's masses. It exists for tests and debugging.
func (t *Tree) checkMass() error {
	for id := range t.nodes {
		nd := &t.nodes[id]
		if nd.firstChild == absent {
			continue
		}
		var sum float64
		for c := 0; c < t.fanout; c++ {
			sum += t.nodes[int(nd.firstChild)+c].mass
		}
		if math.Abs(sum-nd.mass) > 1e-9 {
			return fmt.Errorf("sptree: node %d mass %g, children sum %g", id, nd.mass, sum)
		}
	}
	return nil
}
