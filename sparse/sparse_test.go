package sparse

import (
	"math/rand"
	"testing"

	"github.com/hupe1980/sparsevec/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		v, err := New([]core.DimID{1, 3, 7}, []float32{0.5, 1.0, 2.0})
		require.NoError(t, err)
		assert.Equal(t, 3, v.Len())
		assert.False(t, v.IsEmpty())
	})

	t.Run("Empty", func(t *testing.T) {
		v, err := New(nil, nil)
		require.NoError(t, err)
		assert.True(t, v.IsEmpty())
		assert.Zero(t, v.NormSquared())
	})

	t.Run("LengthMismatch", func(t *testing.T) {
		_, err := New([]core.DimID{1, 2}, []float32{0.5})
		require.Error(t, err)
		assert.IsType(t, &ErrMalformedVector{}, err)
	})

	t.Run("Unsorted", func(t *testing.T) {
		_, err := New([]core.DimID{3, 1}, []float32{0.5, 1.0})
		require.Error(t, err)
		assert.IsType(t, &ErrMalformedVector{}, err)
	})

	t.Run("Duplicate", func(t *testing.T) {
		_, err := New([]core.DimID{1, 1}, []float32{0.5, 1.0})
		require.Error(t, err)
		assert.IsType(t, &ErrMalformedVector{}, err)
	})
}

func TestDot(t *testing.T) {
	a := MustNew([]core.DimID{1, 3, 5}, []float32{1, 2, 3})
	b := MustNew([]core.DimID{3, 5, 7}, []float32{10, 20, 30})

	// Shared dims: 3 and 5 -> 2*10 + 3*20 = 80
	assert.InDelta(t, 80.0, a.Dot(b), 1e-6)
	assert.InDelta(t, 80.0, b.Dot(a), 1e-6)

	t.Run("Disjoint", func(t *testing.T) {
		c := MustNew([]core.DimID{2, 4}, []float32{1, 1})
		assert.Zero(t, a.Dot(c))
	})

	t.Run("Empty", func(t *testing.T) {
		var empty Vector
		assert.Zero(t, a.Dot(empty))
		assert.Zero(t, empty.Dot(a))
	})

	t.Run("SelfDotIsNormSquared", func(t *testing.T) {
		assert.InDelta(t, float64(a.NormSquared()), float64(a.Dot(a)), 1e-6)
	})
}

func TestDotShared(t *testing.T) {
	a := MustNew([]core.DimID{1, 3, 5}, []float32{1, 2, 3})

	t.Run("Overlap", func(t *testing.T) {
		b := MustNew([]core.DimID{3, 5, 7}, []float32{10, 20, 30})
		score, shared := a.DotShared(b)
		assert.True(t, shared)
		assert.InDelta(t, 80.0, score, 1e-6)
	})

	t.Run("Disjoint", func(t *testing.T) {
		c := MustNew([]core.DimID{2, 4}, []float32{1, 1})
		score, shared := a.DotShared(c)
		assert.False(t, shared)
		assert.Zero(t, score)
	})

	t.Run("ZeroWeightOverlapStillShared", func(t *testing.T) {
		// An explicitly stored zero weight is still a shared dimension.
		z := MustNew([]core.DimID{3}, []float32{0})
		score, shared := a.DotShared(z)
		assert.True(t, shared)
		assert.Zero(t, score)
	})

	t.Run("Empty", func(t *testing.T) {
		var empty Vector
		_, shared := a.DotShared(empty)
		assert.False(t, shared)
	})
}

func TestRandomFixture(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))

	for i := 0; i < 100; i++ {
		v := Random(rnd, 50)
		require.GreaterOrEqual(t, v.Len(), 1)
		require.LessOrEqual(t, v.Len(), 50)

		// Indices must be unique, sorted and in range.
		for j, d := range v.Indices {
			assert.Less(t, int(d), 50)
			if j > 0 {
				assert.Greater(t, d, v.Indices[j-1])
			}
		}
	}
}
