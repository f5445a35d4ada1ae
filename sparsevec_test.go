package sparsevec

import (
	"context"
	"iter"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/sparsevec/core"
	"github.com/hupe1980/sparsevec/filter"
	"github.com/hupe1980/sparsevec/index/inverted"
	"github.com/hupe1980/sparsevec/sparse"
	"github.com/hupe1980/sparsevec/vectorstore"
)

// cancelDuringScanStore cancels an armed context partway through a
// storage scan, simulating a caller abandoning a build in flight.
type cancelDuringScanStore struct {
	*vectorstore.Memory
	remaining int
	cancel    context.CancelFunc
}

func (c *cancelDuringScanStore) arm(afterVectors int, cancel context.CancelFunc) {
	c.remaining = afterVectors
	c.cancel = cancel
}

func (c *cancelDuringScanStore) All() iter.Seq2[core.PointOffset, sparse.Vector] {
	return func(yield func(core.PointOffset, sparse.Vector) bool) {
		for offset, vec := range c.Memory.All() {
			if c.cancel != nil {
				c.remaining--
				if c.remaining == 0 {
					c.cancel()
				}
			}
			if !yield(offset, vec) {
				return
			}
		}
	}
}

func newPopulatedStore(t *testing.T, n int) *vectorstore.Memory {
	t.Helper()

	rnd := rand.New(rand.NewSource(42))
	store := vectorstore.NewMemory()
	for i := 0; i < n; i++ {
		require.NoError(t, store.InsertVector(core.PointOffset(i), sparse.Random(rnd, 1000)))
	}
	return store
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		idx, err := Open(ctx, vectorstore.NewMemory())
		require.NoError(t, err)
		defer idx.Close()

		assert.Equal(t, inverted.IndexTypeRAM, idx.IndexType())
		assert.Equal(t, 0, idx.AvailableVectorCount())
		assert.Equal(t, 0, idx.IndexedVectorCount())
	})

	t.Run("mmap requires path", func(t *testing.T) {
		_, err := Open(ctx, vectorstore.NewMemory(), WithIndexType(inverted.IndexTypeMmap))
		require.Error(t, err)
	})

	t.Run("negative threshold rejected", func(t *testing.T) {
		_, err := Open(ctx, vectorstore.NewMemory(), WithFullScanThreshold(-1))
		require.Error(t, err)
	})
}

func TestBuildIndexWithProgress(t *testing.T) {
	ctx := context.Background()

	t.Run("indexes all stored vectors", func(t *testing.T) {
		store := newPopulatedStore(t, 100)
		idx, err := Open(ctx, store)
		require.NoError(t, err)
		defer idx.Close()

		require.NoError(t, idx.BuildIndexWithProgress(ctx, nil))
		assert.Equal(t, 100, idx.IndexedVectorCount())
		assert.Equal(t, idx.AvailableVectorCount(), idx.IndexedVectorCount())
	})

	t.Run("progress is monotonic and complete", func(t *testing.T) {
		store := newPopulatedStore(t, 100)
		idx, err := Open(ctx, store)
		require.NoError(t, err)
		defer idx.Close()

		var calls []int
		require.NoError(t, idx.BuildIndexWithProgress(ctx, func(indexed, total int) {
			assert.Equal(t, 100, total)
			calls = append(calls, indexed)
		}))

		require.NotEmpty(t, calls)
		assert.Equal(t, 0, calls[0])
		assert.Equal(t, 100, calls[len(calls)-1])
		for i := 1; i < len(calls); i++ {
			assert.GreaterOrEqual(t, calls[i], calls[i-1])
		}
	})

	t.Run("cancelled build leaves state unchanged", func(t *testing.T) {
		store := newPopulatedStore(t, 100)
		idx, err := Open(ctx, store)
		require.NoError(t, err)
		defer idx.Close()

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err = idx.BuildIndexWithProgress(cancelled, nil)
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, idx.IndexedVectorCount())

		// A later build still succeeds.
		require.NoError(t, idx.BuildIndexWithProgress(ctx, nil))
		assert.Equal(t, 100, idx.IndexedVectorCount())
	})

	t.Run("cancellation mid build reverts to prior index", func(t *testing.T) {
		scanner := &cancelDuringScanStore{Memory: vectorstore.NewMemory()}
		rnd := rand.New(rand.NewSource(21))
		for i := 0; i < 600; i++ {
			require.NoError(t, scanner.InsertVector(core.PointOffset(i), sparse.Random(rnd, 1000)))
		}

		idx, err := Open(ctx, scanner, WithFullScanThreshold(1))
		require.NoError(t, err)
		defer idx.Close()
		require.NoError(t, idx.BuildIndexWithProgress(ctx, nil))
		require.Equal(t, 600, idx.IndexedVectorCount())

		query := sparse.Random(rnd, 1000)
		want, err := idx.Search(ctx, query, 10, nil)
		require.NoError(t, err)

		// Cancel while the rebuild is scanning storage.
		cancelled, cancel := context.WithCancel(ctx)
		scanner.arm(100, cancel)

		err = idx.BuildIndexWithProgress(cancelled, nil)
		require.ErrorIs(t, err, context.Canceled)

		// The prior index keeps serving, postings untouched.
		assert.Equal(t, 600, idx.IndexedVectorCount())
		got, err := idx.Search(ctx, query, 10, nil)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("empty storage", func(t *testing.T) {
		idx, err := Open(ctx, vectorstore.NewMemory())
		require.NoError(t, err)
		defer idx.Close()

		require.NoError(t, idx.BuildIndexWithProgress(ctx, nil))
		assert.Equal(t, 0, idx.IndexedVectorCount())
	})

	t.Run("upsert racing a build stays searchable", func(t *testing.T) {
		store := newPopulatedStore(t, 10)
		idx, err := Open(ctx, store, WithFullScanThreshold(1))
		require.NoError(t, err)
		defer idx.Close()
		require.NoError(t, idx.BuildIndexWithProgress(ctx, nil))

		// The write lands after the rebuild has scanned storage, so the
		// published index cannot contain it.
		var once sync.Once
		require.NoError(t, idx.BuildIndexWithProgress(ctx, func(indexed, total int) {
			once.Do(func() {
				require.NoError(t, idx.InsertOrUpdate(ctx, 99, sparse.MustNew([]core.DimID{4242}, []float32{1.5})))
			})
		}))

		assert.Equal(t, 11, idx.AvailableVectorCount())

		results, err := idx.Search(ctx, sparse.MustNew([]core.DimID{4242}, []float32{2}), 5, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, core.PointOffset(99), results[0].Offset)
		assert.InEpsilon(t, float32(3), results[0].Score, 1e-6)

		// The next build folds the point into the index proper.
		require.NoError(t, idx.BuildIndexWithProgress(ctx, nil))
		assert.Equal(t, uint64(0), idx.PendingCount())
		assert.Equal(t, 11, idx.IndexedVectorCount())

		results, err = idx.Search(ctx, sparse.MustNew([]core.DimID{4242}, []float32{2}), 5, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, core.PointOffset(99), results[0].Offset)
	})

	t.Run("remove racing a build stays retracted", func(t *testing.T) {
		store := newPopulatedStore(t, 10)
		idx, err := Open(ctx, store, WithFullScanThreshold(1))
		require.NoError(t, err)
		defer idx.Close()
		require.NoError(t, idx.BuildIndexWithProgress(ctx, nil))

		vec, ok := store.GetVector(5)
		require.True(t, ok)

		// The removal lands after the rebuild has scanned storage, so
		// the published index still carries the point's postings.
		var once sync.Once
		require.NoError(t, idx.BuildIndexWithProgress(ctx, func(indexed, total int) {
			once.Do(func() {
				require.NoError(t, idx.Remove(ctx, 5))
			})
		}))

		results, err := idx.Search(ctx, vec, 10, nil)
		require.NoError(t, err)
		for _, r := range results {
			assert.NotEqual(t, core.PointOffset(5), r.Offset)
		}
	})
}

func TestSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("self query scores norm squared", func(t *testing.T) {
		store := newPopulatedStore(t, 50)
		idx, err := Open(ctx, store)
		require.NoError(t, err)
		defer idx.Close()

		require.NoError(t, idx.BuildIndexWithProgress(ctx, nil))

		for offset := core.PointOffset(0); offset < 50; offset += 7 {
			vec, ok := store.GetVector(offset)
			require.True(t, ok)
			if vec.IsEmpty() {
				continue
			}

			results, err := idx.Search(ctx, vec, 50, nil)
			require.NoError(t, err)
			require.NotEmpty(t, results)
			assert.InDelta(t, float64(vec.NormSquared()), float64(results[0].Score), 1e-3)
		}
	})

	t.Run("full scan and accelerated agree", func(t *testing.T) {
		store := newPopulatedStore(t, 100)

		scanIdx, err := Open(ctx, store, WithFullScanThreshold(200))
		require.NoError(t, err)
		defer scanIdx.Close()
		require.NoError(t, scanIdx.BuildIndexWithProgress(ctx, nil))

		fastIdx, err := Open(ctx, store, WithFullScanThreshold(50))
		require.NoError(t, err)
		defer fastIdx.Close()
		require.NoError(t, fastIdx.BuildIndexWithProgress(ctx, nil))

		rnd := rand.New(rand.NewSource(7))
		for i := 0; i < 20; i++ {
			query := sparse.Random(rnd, 1000)

			scanned, err := scanIdx.Search(ctx, query, 10, nil)
			require.NoError(t, err)
			accelerated, err := fastIdx.Search(ctx, query, 10, nil)
			require.NoError(t, err)

			assert.Equal(t, scanned, accelerated)
		}
	})

	t.Run("filter excludes points in both modes", func(t *testing.T) {
		store := newPopulatedStore(t, 100)
		idx, err := Open(ctx, store, WithFullScanThreshold(50))
		require.NoError(t, err)
		defer idx.Close()
		require.NoError(t, idx.BuildIndexWithProgress(ctx, nil))

		allowed := filter.NewBitmap()
		for i := 0; i < 100; i += 2 {
			allowed.Add(core.PointOffset(i))
		}

		query := sparse.Random(rand.New(rand.NewSource(3)), 1000)
		results, err := idx.Search(ctx, query, 100, allowed.AsPredicate())
		require.NoError(t, err)
		for _, r := range results {
			assert.True(t, allowed.Contains(r.Offset))
		}
	})

	t.Run("no overlap yields no results", func(t *testing.T) {
		store := vectorstore.NewMemory()
		require.NoError(t, store.InsertVector(0, sparse.MustNew([]core.DimID{1, 2}, []float32{1, 1})))

		idx, err := Open(ctx, store)
		require.NoError(t, err)
		defer idx.Close()

		results, err := idx.Search(ctx, sparse.MustNew([]core.DimID{5}, []float32{1}), 10, nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("invalid k", func(t *testing.T) {
		idx, err := Open(ctx, vectorstore.NewMemory())
		require.NoError(t, err)
		defer idx.Close()

		_, err = idx.Search(ctx, sparse.MustNew([]core.DimID{1}, []float32{1}), 0, nil)
		require.ErrorIs(t, err, ErrInvalidK)
	})

	t.Run("empty stored vector is counted but never matches", func(t *testing.T) {
		store := vectorstore.NewMemory()
		require.NoError(t, store.InsertVector(0, sparse.MustNew([]core.DimID{1}, []float32{1})))
		var empty sparse.Vector
		require.NoError(t, store.InsertVector(1, empty))

		idx, err := Open(ctx, store, WithFullScanThreshold(1))
		require.NoError(t, err)
		defer idx.Close()
		require.NoError(t, idx.BuildIndexWithProgress(ctx, nil))

		assert.Equal(t, 2, idx.IndexedVectorCount())

		results, err := idx.Search(ctx, sparse.MustNew([]core.DimID{1}, []float32{1}), 10, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, core.PointOffset(0), results[0].Offset)
	})

	t.Run("empty query", func(t *testing.T) {
		store := newPopulatedStore(t, 10)
		idx, err := Open(ctx, store)
		require.NoError(t, err)
		defer idx.Close()

		results, err := idx.Search(ctx, sparse.Vector{}, 10, nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestMutableUpdates(t *testing.T) {
	ctx := context.Background()

	t.Run("upsert changes dimensions in place", func(t *testing.T) {
		store := vectorstore.NewMemory()
		for i := 0; i < 10; i++ {
			require.NoError(t, store.InsertVector(core.PointOffset(i), sparse.MustNew([]core.DimID{99}, []float32{0.1})))
		}

		idx, err := Open(ctx, store, WithFullScanThreshold(1))
		require.NoError(t, err)
		defer idx.Close()
		require.NoError(t, idx.BuildIndexWithProgress(ctx, nil))

		require.NoError(t, idx.InsertOrUpdate(ctx, 3, sparse.MustNew([]core.DimID{1, 3}, []float32{1, 1})))
		require.NoError(t, idx.InsertOrUpdate(ctx, 3, sparse.MustNew([]core.DimID{2, 3}, []float32{2, 2})))

		// The old dimension stops matching.
		results, err := idx.Search(ctx, sparse.MustNew([]core.DimID{1}, []float32{1}), 10, nil)
		require.NoError(t, err)
		assert.Empty(t, results)

		// The new dimensions match with the new weights.
		results, err = idx.Search(ctx, sparse.MustNew([]core.DimID{2}, []float32{1}), 10, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, core.PointOffset(3), results[0].Offset)
		assert.InEpsilon(t, float32(2), results[0].Score, 1e-6)

		assert.Equal(t, uint64(0), idx.PendingCount())
	})

	t.Run("remove retracts the point", func(t *testing.T) {
		store := newPopulatedStore(t, 20)
		idx, err := Open(ctx, store, WithFullScanThreshold(1))
		require.NoError(t, err)
		defer idx.Close()
		require.NoError(t, idx.BuildIndexWithProgress(ctx, nil))

		vec, ok := store.GetVector(5)
		require.True(t, ok)
		require.NoError(t, idx.Remove(ctx, 5))

		results, err := idx.Search(ctx, vec, 20, nil)
		require.NoError(t, err)
		for _, r := range results {
			assert.NotEqual(t, core.PointOffset(5), r.Offset)
		}
	})
}

func TestPendingMerge(t *testing.T) {
	ctx := context.Background()

	openCompact := func(t *testing.T, store vectorstore.Store) *SparseVectorIndex {
		t.Helper()
		idx, err := Open(ctx, store,
			WithIndexType(inverted.IndexTypeCompact),
			WithPath(t.TempDir()),
			WithFullScanThreshold(1),
		)
		require.NoError(t, err)
		t.Cleanup(func() { idx.Close() })
		return idx
	}

	t.Run("upsert after build is searchable", func(t *testing.T) {
		store := newPopulatedStore(t, 20)
		idx := openCompact(t, store)
		require.NoError(t, idx.BuildIndexWithProgress(ctx, nil))

		updated := sparse.MustNew([]core.DimID{1234}, []float32{9})
		require.NoError(t, idx.InsertOrUpdate(ctx, 7, updated))
		assert.Equal(t, uint64(1), idx.PendingCount())

		results, err := idx.Search(ctx, sparse.MustNew([]core.DimID{1234}, []float32{1}), 5, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, core.PointOffset(7), results[0].Offset)
		assert.InEpsilon(t, float32(9), results[0].Score, 1e-6)
	})

	t.Run("remove after build stops matching", func(t *testing.T) {
		store := newPopulatedStore(t, 20)
		idx := openCompact(t, store)
		require.NoError(t, idx.BuildIndexWithProgress(ctx, nil))

		vec, ok := store.GetVector(3)
		require.True(t, ok)
		require.NoError(t, idx.Remove(ctx, 3))

		results, err := idx.Search(ctx, vec, 20, nil)
		require.NoError(t, err)
		for _, r := range results {
			assert.NotEqual(t, core.PointOffset(3), r.Offset)
		}
	})

	t.Run("rebuild publishes index and pending together", func(t *testing.T) {
		store := newPopulatedStore(t, 20)
		idx := openCompact(t, store)
		require.NoError(t, idx.BuildIndexWithProgress(ctx, nil))

		require.NoError(t, idx.InsertOrUpdate(ctx, 7, sparse.MustNew([]core.DimID{9}, []float32{1})))

		before := idx.state.Load()
		require.True(t, before.pending.Contains(7))

		require.NoError(t, idx.BuildIndexWithProgress(ctx, nil))

		after := idx.state.Load()
		require.NotSame(t, before, after)
		assert.True(t, after.pending.IsEmpty())

		// A search still holding the superseded state must keep seeing
		// its own pending marks, so the clear may not mutate in place.
		assert.True(t, before.pending.Contains(7))
	})

	t.Run("rebuild clears pending", func(t *testing.T) {
		store := newPopulatedStore(t, 20)
		idx := openCompact(t, store)
		require.NoError(t, idx.BuildIndexWithProgress(ctx, nil))

		require.NoError(t, idx.InsertOrUpdate(ctx, 2, sparse.MustNew([]core.DimID{7}, []float32{1})))
		require.NoError(t, idx.InsertOrUpdate(ctx, 4, sparse.MustNew([]core.DimID{8}, []float32{1})))
		assert.Equal(t, uint64(2), idx.PendingCount())

		require.NoError(t, idx.BuildIndexWithProgress(ctx, nil))
		assert.Equal(t, uint64(0), idx.PendingCount())
		assert.Equal(t, 20, idx.IndexedVectorCount())
	})
}

func TestPersistence(t *testing.T) {
	ctx := context.Background()

	for _, indexType := range []inverted.IndexType{inverted.IndexTypeCompact, inverted.IndexTypeMmap} {
		t.Run(indexType.String(), func(t *testing.T) {
			dir := t.TempDir()
			store := newPopulatedStore(t, 60)
			query := sparse.Random(rand.New(rand.NewSource(11)), 1000)

			idx, err := Open(ctx, store, WithIndexType(indexType), WithPath(dir), WithFullScanThreshold(1))
			require.NoError(t, err)
			require.NoError(t, idx.BuildIndexWithProgress(ctx, nil))

			want, err := idx.Search(ctx, query, 10, nil)
			require.NoError(t, err)
			require.NoError(t, idx.Close())

			reopened, err := Open(ctx, store, WithIndexType(indexType), WithPath(dir), WithFullScanThreshold(1))
			require.NoError(t, err)
			defer reopened.Close()

			assert.Equal(t, 60, reopened.IndexedVectorCount())

			got, err := reopened.Search(ctx, query, 10, nil)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	t.Run("count mismatch fails open", func(t *testing.T) {
		dir := t.TempDir()
		store := newPopulatedStore(t, 30)

		idx, err := Open(ctx, store, WithIndexType(inverted.IndexTypeCompact), WithPath(dir))
		require.NoError(t, err)
		require.NoError(t, idx.BuildIndexWithProgress(ctx, nil))
		require.NoError(t, idx.Close())

		require.NoError(t, store.InsertVector(100, sparse.MustNew([]core.DimID{1}, []float32{1})))

		_, err = Open(ctx, store, WithIndexType(inverted.IndexTypeCompact), WithPath(dir))
		var inconsistent *ErrInconsistentState
		require.ErrorAs(t, err, &inconsistent)
		assert.Equal(t, 30, inconsistent.IndexedCount)
		assert.Equal(t, 31, inconsistent.AvailableCount)
	})

	t.Run("discard stale recovers", func(t *testing.T) {
		dir := t.TempDir()
		store := newPopulatedStore(t, 30)

		idx, err := Open(ctx, store, WithIndexType(inverted.IndexTypeCompact), WithPath(dir))
		require.NoError(t, err)
		require.NoError(t, idx.BuildIndexWithProgress(ctx, nil))
		require.NoError(t, idx.Close())

		require.NoError(t, store.InsertVector(100, sparse.MustNew([]core.DimID{1}, []float32{1})))

		recovered, err := Open(ctx, store,
			WithIndexType(inverted.IndexTypeCompact),
			WithPath(dir),
			WithDiscardStale(),
		)
		require.NoError(t, err)
		defer recovered.Close()

		assert.Equal(t, 0, recovered.IndexedVectorCount())
		require.NoError(t, recovered.BuildIndexWithProgress(ctx, nil))
		assert.Equal(t, 31, recovered.IndexedVectorCount())
	})

	t.Run("missing path starts unbuilt", func(t *testing.T) {
		idx, err := Open(ctx, newPopulatedStore(t, 5),
			WithIndexType(inverted.IndexTypeCompact),
			WithPath(t.TempDir()),
		)
		require.NoError(t, err)
		defer idx.Close()

		assert.Equal(t, 0, idx.IndexedVectorCount())
	})
}

func TestClose(t *testing.T) {
	ctx := context.Background()

	idx, err := Open(ctx, newPopulatedStore(t, 10))
	require.NoError(t, err)
	require.NoError(t, idx.BuildIndexWithProgress(ctx, nil))

	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close()) // idempotent

	_, err = idx.Search(ctx, sparse.MustNew([]core.DimID{1}, []float32{1}), 10, nil)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, idx.InsertOrUpdate(ctx, 0, sparse.MustNew([]core.DimID{1}, []float32{1})), ErrClosed)
	require.ErrorIs(t, idx.Remove(ctx, 0), ErrClosed)
	require.ErrorIs(t, idx.BuildIndexWithProgress(ctx, nil), ErrClosed)
}

func TestResourceLimits(t *testing.T) {
	ctx := context.Background()

	t.Run("bounded workers still index everything", func(t *testing.T) {
		store := newPopulatedStore(t, 100)
		idx, err := Open(ctx, store, WithMaxBuildWorkers(2))
		require.NoError(t, err)
		defer idx.Close()

		require.NoError(t, idx.BuildIndexWithProgress(ctx, nil))
		assert.Equal(t, 100, idx.IndexedVectorCount())
	})

	t.Run("memory limit fails the build", func(t *testing.T) {
		store := newPopulatedStore(t, 100)
		idx, err := Open(ctx, store, WithMemoryLimit(16))
		require.NoError(t, err)
		defer idx.Close()

		err = idx.BuildIndexWithProgress(ctx, nil)
		require.Error(t, err)
		assert.Equal(t, 0, idx.IndexedVectorCount())
	})
}
