package sparsevec

import (
	"context"
	"time"

	"github.com/hupe1980/sparsevec/core"
	"github.com/hupe1980/sparsevec/filter"
	"github.com/hupe1980/sparsevec/searcher"
	"github.com/hupe1980/sparsevec/sparse"
)

// cancelCheckInterval bounds how many candidates a full scan examines
// between context checks.
const cancelCheckInterval = 512

// Search returns the top-k dot-product matches for query, best first.
// Ties are broken by ascending point offset, so repeated queries return
// identical slices. pred may be nil to accept every point.
//
// Mode selection is transparent: a full scan over storage is used while
// the available vector count is below the configured threshold or no
// index has been built yet, and the accelerated index path otherwise.
// Both paths produce identical results, including the exclusion of
// points sharing no dimension with the query.
func (s *SparseVectorIndex) Search(ctx context.Context, query sparse.Vector, topK int, pred searcher.Predicate) ([]searcher.ScoredPoint, error) {
	start := time.Now()
	results, fullScan, err := s.search(ctx, query, topK, pred)
	s.metrics.RecordSearch(topK, fullScan, time.Since(start), err)
	s.logger.LogSearch(ctx, topK, len(results), fullScan, err)
	return results, err
}

func (s *SparseVectorIndex) search(ctx context.Context, query sparse.Vector, topK int, pred searcher.Predicate) ([]searcher.ScoredPoint, bool, error) {
	if topK <= 0 {
		return nil, false, ErrInvalidK
	}
	if s.closed.Load() {
		return nil, false, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	st := s.state.Load()
	if st == nil || st.index == nil || s.storage.AvailableVectorCount() < s.opts.fullScanThreshold {
		results, err := s.fullScan(ctx, query, topK, pred)
		return results, true, err
	}

	results, err := s.accelerated(ctx, query, topK, pred, st)
	return results, false, err
}

// fullScan scores every stored vector directly, bypassing the index.
// Points that were upserted or removed after the last build need no
// special handling here because storage is always current.
func (s *SparseVectorIndex) fullScan(ctx context.Context, query sparse.Vector, topK int, pred searcher.Predicate) ([]searcher.ScoredPoint, error) {
	q := searcher.NewTopK(topK)

	checked := 0
	for offset, vec := range s.storage.All() {
		checked++
		if checked%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if pred != nil && !pred(offset) {
			continue
		}

		score, shared := query.DotShared(vec)
		if !shared {
			continue
		}
		q.Push(searcher.ScoredPoint{Offset: offset, Score: score})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return q.Results(), nil
}

// accelerated scores through the built index, then patches in points
// whose stored vector changed after the build. Pending points are
// excluded from the index pass (their posting entries are stale) and
// re-scored against current storage instead.
func (s *SparseVectorIndex) accelerated(ctx context.Context, query sparse.Vector, topK int, pred searcher.Predicate, st *indexState) ([]searcher.ScoredPoint, error) {
	// st carries its own pending set, so the exclusion always matches
	// the index generation being scored.
	s.pendingMu.RLock()
	var pending *filter.Bitmap
	if !st.pending.IsEmpty() {
		pending = st.pending.Clone()
	}
	s.pendingMu.RUnlock()

	combined := pred
	if excl := pending.Excluding(); excl != nil {
		inner := pred
		combined = func(offset core.PointOffset) bool {
			return excl(offset) && (inner == nil || inner(offset))
		}
	}

	s.indexMu.RLock()
	hits := searcher.Score(query, st.index, topK, combined)
	s.indexMu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pending == nil {
		return hits, nil
	}

	q := searcher.NewTopK(topK)
	for _, hit := range hits {
		q.Push(hit)
	}
	for offset := range pending.Iterator() {
		if pred != nil && !pred(offset) {
			continue
		}
		vec, ok := s.storage.GetVector(offset)
		if !ok {
			// Removed since the build; the index exclusion above
			// already hides its stale postings.
			continue
		}
		score, shared := query.DotShared(vec)
		if !shared {
			continue
		}
		q.Push(searcher.ScoredPoint{Offset: offset, Score: score})
	}
	return q.Results(), nil
}
