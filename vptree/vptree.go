// Package vptree implements a vantage-point tree over the rows of a flat
// row-major matrix. It answers exact k-nearest-neighbor queries in the input
// space and is used to sparsify the high-dimensional affinity computation.
//
// Nodes live in a flat arena and reference each other by integer handles, so
// the whole tree is released in one step when it goes out of scope.
package vptree

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/hupe1980/tsnego/distance"
	"github.com/hupe1980/tsnego/internal/queue"
)

const absent = int32(-1)

type node struct {
	index     int32   // row index of the vantage point
	threshold float64 // median distance from the vantage point to its subtree
	left      int32   // subtree closer than threshold, absent if empty
	right     int32   // subtree at or beyond threshold, absent if empty
}

// Tree is a vantage-point tree over row indices of a caller-owned matrix.
// The tree keeps a reference to the data buffer; the caller must not mutate
// it while the tree is in use. Tree is safe for concurrent Search calls.
type Tree struct {
	data  []float64
	n     int
	d     int
	nodes []node
	root  int32
}

// New builds a vantage-point tree over the n rows of data (row-major, d
// columns). Vantage points are chosen with the supplied generator, so the
// tree shape is deterministic for a fixed seed.
func New(data []float64, n, d int, rng *rand.Rand) (*Tree, error) {
	if n <= 0 {
		return nil, fmt.Errorf("vptree: number of points must be positive, got %d", n)
	}
	if d <= 0 {
		return nil, fmt.Errorf("vptree: dimensionality must be positive, got %d", d)
	}
	if len(data) < n*d {
		return nil, fmt.Errorf("vptree: data buffer holds %d values, need %d", len(data), n*d)
	}

	t := &Tree{
		data:  data,
		n:     n,
		d:     d,
		nodes: make([]node, 0, n),
	}

	items := make([]int32, n)
	for i := range items {
		items[i] = int32(i)
	}
	t.root = t.build(items, rng)

	return t, nil
}

// Len returns the number of points indexed by the tree.
func (t *Tree) Len() int { return t.n }

func (t *Tree) row(i int32) []float64 {
	return t.data[int(i)*t.d : (int(i)+1)*t.d]
}

// build recursively constructs the subtree over items and returns its handle.
func (t *Tree) build(items []int32, rng *rand.Rand) int32 {
	if len(items) == 0 {
		return absent
	}

	// Move a random vantage point to the front.
	pick := rng.Intn(len(items))
	items[0], items[pick] = items[pick], items[0]

	id := int32(len(t.nodes))
	t.nodes = append(t.nodes, node{index: items[0], left: absent, right: absent})

	if len(items) == 1 {
		return id
	}

	vantage := t.row(items[0])
	rest := items[1:]

	// Partition around the median distance. Ties fall back to index order to
	// keep the layout independent of sort internals.
	sort.Slice(rest, func(a, b int) bool {
		da := distance.SquaredL2(vantage, t.row(rest[a]))
		db := distance.SquaredL2(vantage, t.row(rest[b]))
		if da == db {
			return rest[a] < rest[b]
		}
		return da < db
	})

	median := len(rest) / 2
	t.nodes[id].threshold = distance.L2(vantage, t.row(rest[median]))

	left := t.build(rest[:median], rng)
	right := t.build(rest[median:], rng)
	t.nodes[id].left = left
	t.nodes[id].right = right

	return id
}

// Search returns the k nearest neighbors of q, ordered from nearest to
// farthest. The query point itself is returned when it is indexed by the
// tree; callers that do not want the self-match should ask for k+1 neighbors
// and drop it. k is capped at the number of indexed points.
func (t *Tree) Search(q []float64, k int) (indices []int32, distances []float64) {
	if k <= 0 {
		return nil, nil
	}
	if k > t.n {
		k = t.n
	}

	h := &queue.PriorityQueue{Max: true, Items: make([]queue.PriorityQueueItem, 0, k+1)}
	tau := math.Inf(1)
	t.search(t.root, q, k, h, &tau)

	indices = make([]int32, h.Len())
	distances = make([]float64, h.Len())
	for i := h.Len() - 1; i >= 0; i-- {
		item, _ := heap.Pop(h).(queue.PriorityQueueItem)
		indices[i] = item.Index
		distances[i] = item.Distance
	}

	return indices, distances
}

func (t *Tree) search(id int32, q []float64, k int, h *queue.PriorityQueue, tau *float64) {
	if id == absent {
		return
	}
	nd := &t.nodes[id]

	dist := distance.L2(q, t.row(nd.index))
	if dist < *tau {
		if h.Len() == k {
			heap.Pop(h)
		}
		heap.Push(h, queue.PriorityQueueItem{Index: nd.index, Distance: dist})
		if h.Len() == k {
			*tau = h.Top().Distance
		}
	}

	if nd.left == absent && nd.right == absent {
		return
	}

	// Descend into the side containing the query first; visit the other side
	// only if the current radius still reaches across the threshold.
	if dist < nd.threshold {
		if dist-*tau <= nd.threshold {
			t.search(nd.left, q, k, h, tau)
		}
		if dist+*tau >= nd.threshold {
			t.search(nd.right, q, k, h, tau)
		}
		return
	}
	if dist+*tau >= nd.threshold {
		t.search(nd.right, q, k, h, tau)
	}
	if dist-*tau <= nd.threshold {
		t.search(nd.left, q, k, h, tau)
	}
}
