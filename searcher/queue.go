// Package searcher provides the scoring/merge engine: it accumulates
// per-dimension dot-product contributions over posting lists and selects
// the top-k scored points.
package searcher

import (
	"github.com/hupe1980/sparsevec/core"
)

// ScoredPoint is one search result: a point offset and its dot-product score.
type ScoredPoint struct {
	Offset core.PointOffset
	Score  float32
}

// Better reports whether a ranks before b: descending score, ties broken by
// ascending point offset. All result ordering in sparsevec goes through this
// single definition.
func Better(a, b ScoredPoint) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Offset < b.Offset
}

// TopKQueue is a bounded min-heap over ScoredPoints: the worst kept result
// sits at the root so a full queue can reject or evict in O(log k).
//
// Optimized: value-based storage for cache locality and zero allocations in
// the steady state.
type TopKQueue struct {
	capacity int
	items    []ScoredPoint
}

// NewTopK creates a bounded queue keeping the k best results.
func NewTopK(k int) *TopKQueue {
	return &TopKQueue{
		capacity: k,
		items:    make([]ScoredPoint, 0, k),
	}
}

// Len returns the number of queued results.
func (q *TopKQueue) Len() int { return len(q.items) }

// Push offers a result. If the queue is full and the result does not beat
// the current worst, it is dropped.
func (q *TopKQueue) Push(item ScoredPoint) {
	if q.capacity <= 0 {
		return
	}
	if len(q.items) < q.capacity {
		q.items = append(q.items, item)
		q.siftUp(len(q.items) - 1)
		return
	}
	if Better(item, q.items[0]) {
		q.items[0] = item
		q.siftDown(0)
	}
}

// WorstScore returns the root's score and true when the queue is full.
// Callers can use it to prune scoring work.
func (q *TopKQueue) WorstScore() (float32, bool) {
	if len(q.items) < q.capacity || len(q.items) == 0 {
		return 0, false
	}
	return q.items[0].Score, true
}

// Results drains the queue and returns results ordered best-first.
// The queue is empty afterwards.
func (q *TopKQueue) Results() []ScoredPoint {
	out := make([]ScoredPoint, len(q.items))
	for i := len(q.items) - 1; i >= 0; i-- {
		out[i] = q.pop()
	}
	return out
}

// pop removes and returns the worst queued result.
func (q *TopKQueue) pop() ScoredPoint {
	n := len(q.items)
	item := q.items[0]
	q.items[0] = q.items[n-1]
	q.items = q.items[:n-1]
	if len(q.items) > 0 {
		q.siftDown(0)
	}
	return item
}

// less reports whether item i should sit above item j in the min-heap,
// i.e. i is worse than j.
func (q *TopKQueue) less(i, j int) bool {
	return Better(q.items[j], q.items[i])
}

func (q *TopKQueue) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !q.less(i, parent) {
			break
		}
		q.items[i], q.items[parent] = q.items[parent], q.items[i]
		i = parent
	}
}

func (q *TopKQueue) siftDown(i int) {
	n := len(q.items)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		child := left
		if right := left + 1; right < n && q.less(right, left) {
			child = right
		}
		if !q.less(child, i) {
			break
		}
		q.items[i], q.items[child] = q.items[child], q.items[i]
		i = child
	}
}
