package searcher

import (
	"context"
	"iter"
	"testing"

	"github.com/hupe1980/sparsevec/core"
	"github.com/hupe1980/sparsevec/index/inverted"
	"github.com/hupe1980/sparsevec/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scoreSource []sparse.Vector

func (s scoreSource) Len() int { return len(s) }

func (s scoreSource) All() iter.Seq2[core.PointOffset, sparse.Vector] {
	return func(yield func(core.PointOffset, sparse.Vector) bool) {
		for i, vec := range s {
			if !yield(core.PointOffset(i), vec) {
				return
			}
		}
	}
}

func buildIndex(t *testing.T, vectors ...sparse.Vector) inverted.Index {
	t.Helper()
	idx, err := inverted.Build(context.Background(), scoreSource(vectors))
	require.NoError(t, err)
	return idx
}

func TestScore(t *testing.T) {
	idx := buildIndex(t,
		sparse.MustNew([]core.DimID{1, 2}, []float32{1, 1}), // point 0
		sparse.MustNew([]core.DimID{2, 3}, []float32{2, 2}), // point 1
		sparse.MustNew([]core.DimID{4}, []float32{5}),       // point 2: disjoint
	)

	query := sparse.MustNew([]core.DimID{1, 2}, []float32{1, 1})

	t.Run("RanksByDotProduct", func(t *testing.T) {
		results := Score(query, idx, 10, nil)
		// point 0: 1*1 + 1*1 = 2; point 1: 1*2 = 2; point 2 shares nothing.
		require.Len(t, results, 2, "disjoint point must be excluded, not scored 0")
		assert.Equal(t, core.PointOffset(0), results[0].Offset, "tie broken by ascending offset")
		assert.Equal(t, core.PointOffset(1), results[1].Offset)
		assert.InDelta(t, 2.0, results[0].Score, 1e-6)
		assert.InDelta(t, 2.0, results[1].Score, 1e-6)
	})

	t.Run("TopKTruncates", func(t *testing.T) {
		results := Score(query, idx, 1, nil)
		require.Len(t, results, 1)
		assert.Equal(t, core.PointOffset(0), results[0].Offset)
	})

	t.Run("FilterExcludes", func(t *testing.T) {
		results := Score(query, idx, 10, func(o core.PointOffset) bool { return o != 0 })
		require.Len(t, results, 1)
		assert.Equal(t, core.PointOffset(1), results[0].Offset)
	})

	t.Run("EmptyQuery", func(t *testing.T) {
		assert.Empty(t, Score(sparse.Vector{}, idx, 10, nil))
	})

	t.Run("SelfQueryScoresSquaredNorm", func(t *testing.T) {
		self := sparse.MustNew([]core.DimID{2, 3}, []float32{2, 2})
		results := Score(self, idx, 10, nil)
		require.NotEmpty(t, results)
		assert.Equal(t, core.PointOffset(1), results[0].Offset)
		assert.InDelta(t, float64(self.NormSquared()), float64(results[0].Score), 1e-5)
	})
}

func TestScoreDeterministic(t *testing.T) {
	idx := buildIndex(t,
		sparse.MustNew([]core.DimID{1}, []float32{1}),
		sparse.MustNew([]core.DimID{1}, []float32{1}),
		sparse.MustNew([]core.DimID{1}, []float32{1}),
		sparse.MustNew([]core.DimID{1}, []float32{1}),
	)
	query := sparse.MustNew([]core.DimID{1}, []float32{1})

	first := Score(query, idx, 2, nil)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Score(query, idx, 2, nil), "repeated identical queries must be deterministic")
	}
}
