package searcher

import (
	"github.com/hupe1980/sparsevec/core"
	"github.com/hupe1980/sparsevec/index/inverted"
	"github.com/hupe1980/sparsevec/sparse"
)

// Predicate decides whether a point offset participates in scoring.
type Predicate func(core.PointOffset) bool

// Score computes the top-k dot-product matches for query against an
// inverted index.
//
// For each nonzero query dimension (walked in the query's own index order,
// keeping repeated queries deterministic) the posting list is fetched and
// every entry contributes w_q * w_p to the point's running total. Only
// points sharing at least one dimension with the query acquire an entry;
// points with zero overlap are excluded rather than reported at score 0.
//
// Points failing the filter are excluded at accumulation time: the
// predicate is cheap (bitmap-backed or nil) so skipping them early avoids
// scoring dead work.
func Score(query sparse.Vector, idx inverted.Index, topK int, filter Predicate) []ScoredPoint {
	if topK <= 0 || query.IsEmpty() {
		return nil
	}

	scores := make(map[core.PointOffset]float32)
	for i, dim := range query.Indices {
		wq := query.Values[i]
		for _, e := range idx.PostingList(dim) {
			if filter != nil && !filter(e.Offset) {
				continue
			}
			scores[e.Offset] += wq * e.Weight
		}
	}

	// Selection is deterministic regardless of map iteration order: the
	// (score desc, offset asc) order is total.
	q := NewTopK(topK)
	for offset, score := range scores {
		q.Push(ScoredPoint{Offset: offset, Score: score})
	}
	return q.Results()
}
