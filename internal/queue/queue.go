// Package queue provides a distance-ordered priority queue used by the
// nearest-neighbor search over the input space.
package queue

import "container/heap"

// Compile time check to ensure PriorityQueue satisfies the heap interface.
var _ heap.Interface = (*PriorityQueue)(nil)

// PriorityQueueItem represents an item in the priority queue.
type PriorityQueueItem struct {
	Index    int32   // Index identifies the point the item refers to.
	Distance float64 // Distance is the priority of the item in the queue.
}

// PriorityQueue implements heap.Interface over PriorityQueueItems.
// With Max set, the queue surfaces the farthest item first, which is the
// ordering a bounded k-nearest-neighbor candidate list needs.
type PriorityQueue struct {
	Max   bool
	Items []PriorityQueueItem
}

// Len returns the number of elements in the priority queue.
func (pq *PriorityQueue) Len() int { return len(pq.Items) }

// Less reports whether the element with index i should sort before the element with index j.
func (pq *PriorityQueue) Less(i, j int) bool {
	if pq.Max {
		return pq.Items[i].Distance > pq.Items[j].Distance
	}
	return pq.Items[i].Distance < pq.Items[j].Distance
}

// Swap swaps the elements with indexes i and j.
func (pq *PriorityQueue) Swap(i, j int) {
	pq.Items[i], pq.Items[j] = pq.Items[j], pq.Items[i]
}

// Push adds x to the priority queue.
func (pq *PriorityQueue) Push(x any) {
	item, _ := x.(PriorityQueueItem)
	pq.Items = append(pq.Items, item)
}

// Pop removes and returns the top element from the priority queue.
func (pq *PriorityQueue) Pop() any {
	old := pq.Items
	n := len(old)
	item := old[n-1]
	pq.Items = old[:n-1]
	return item
}

// Top returns the top element of the priority queue without removing it.
// The queue must not be empty.
func (pq *PriorityQueue) Top() PriorityQueueItem {
	return pq.Items[0]
}
