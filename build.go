package sparsevec

import (
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/sparsevec/core"
	"github.com/hupe1980/sparsevec/filter"
	"github.com/hupe1980/sparsevec/index/inverted"
	"github.com/hupe1980/sparsevec/sparse"
)

// ProgressFunc observes build progress. It is invoked from the build's
// controlling goroutine at least once per completed batch with monotonic
// counts; it exists purely for observability and cannot abort the build.
type ProgressFunc func(indexed, total int)

// buildBatchSize is the number of vectors handed to one build worker at
// a time; it also sets the progress reporting granularity.
const buildBatchSize = 4096

type buildPoint struct {
	offset core.PointOffset
	vec    sparse.Vector
}

// sliceSource adapts a point slice to the inverted index build input.
type sliceSource []buildPoint

func (s sliceSource) Len() int { return len(s) }

func (s sliceSource) All() iter.Seq2[core.PointOffset, sparse.Vector] {
	return func(yield func(core.PointOffset, sparse.Vector) bool) {
		for _, p := range s {
			if !yield(p.offset, p.vec) {
				return
			}
		}
	}
}

// BuildIndexWithProgress rebuilds the inverted index from the current
// contents of vector storage.
//
// Workers partition the point range into contiguous batches bounded by
// the configured worker budget; each batch is indexed independently and
// the results are merged single-threaded, so no posting list is shared
// between workers. The new index is published by an atomic swap only on
// full success; on error or cancellation the previous state is kept
// untouched. Concurrent searches keep running against the previous
// state throughout.
//
// progress may be nil.
func (s *SparseVectorIndex) BuildIndexWithProgress(ctx context.Context, progress ProgressFunc) error {
	start := time.Now()
	indexed, err := s.buildIndex(ctx, progress)
	s.metrics.RecordBuild(indexed, time.Since(start), err)
	s.logger.LogBuild(ctx, indexed, time.Since(start), err)
	return err
}

func (s *SparseVectorIndex) buildIndex(ctx context.Context, progress ProgressFunc) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	// Flag the build before scanning storage. Writes from here on are
	// marked pending on every variant: they may or may not make the
	// storage scan, and if they miss it the pending mark is the only
	// thing that repairs the published index.
	s.writeMu.Lock()
	s.building = true
	s.pendingMu.RLock()
	pendingAtStart := s.state.Load().pending.Clone()
	s.pendingMu.RUnlock()
	s.writeMu.Unlock()

	defer func() {
		s.writeMu.Lock()
		s.building = false
		s.writeMu.Unlock()
	}()

	points := make([]buildPoint, 0, s.storage.AvailableVectorCount())
	for offset, vec := range s.storage.All() {
		points = append(points, buildPoint{offset: offset, vec: vec})
	}
	total := len(points)

	estimate := estimatePostingBytes(points)
	if err := s.res.AcquireMemory(estimate); err != nil {
		return 0, err
	}
	defer s.res.ReleaseMemory(estimate)

	parts, err := s.buildPartitions(ctx, points, progress)
	if err != nil {
		return 0, err
	}

	merged := inverted.NewRAM()
	for _, part := range parts {
		merged.Merge(part)
	}

	idx, err := s.materialize(ctx, merged, total)
	if err != nil {
		return 0, err
	}

	s.publish(idx, pendingAtStart)
	return total, nil
}

// buildPartitions indexes contiguous batches of points in parallel and
// returns the per-batch sub-indexes in point order.
func (s *SparseVectorIndex) buildPartitions(ctx context.Context, points []buildPoint, progress ProgressFunc) ([]*inverted.RAM, error) {
	total := len(points)
	batchCount := (total + buildBatchSize - 1) / buildBatchSize
	parts := make([]*inverted.RAM, batchCount)
	completed := make(chan int, batchCount)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < batchCount; i++ {
		lo := i * buildBatchSize
		hi := min(lo+buildBatchSize, total)

		g.Go(func() error {
			if err := s.res.AcquireWorker(gctx); err != nil {
				return err
			}
			defer s.res.ReleaseWorker()

			part, err := inverted.Build(gctx, sliceSource(points[lo:hi]))
			if err != nil {
				return err
			}
			parts[i] = part
			completed <- hi - lo
			return nil
		})
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- g.Wait()
		close(completed)
	}()

	if progress != nil {
		progress(0, total)
	}
	done := 0
	for n := range completed {
		done += n
		if progress != nil {
			progress(done, total)
		}
	}

	if err := <-waitErr; err != nil {
		return nil, err
	}
	return parts, nil
}

// materialize turns the merged mutable index into the configured
// variant, persisting sealed variants when a path is set.
func (s *SparseVectorIndex) materialize(ctx context.Context, merged *inverted.RAM, total int) (inverted.Index, error) {
	switch s.opts.indexType {
	case inverted.IndexTypeRAM:
		return merged, nil

	case inverted.IndexTypeCompact:
		compact := inverted.FromRAM(merged)
		if s.opts.path != "" {
			if err := s.persistSealed(ctx, compact, total, false); err != nil {
				return nil, err
			}
		}
		return compact, nil

	case inverted.IndexTypeMmap:
		compact := inverted.FromRAM(merged)
		if err := s.persistSealed(ctx, compact, total, true); err != nil {
			return nil, err
		}
		return inverted.OpenMmap(filepath.Join(s.opts.path, postingsFileName))

	default:
		return nil, fmt.Errorf("sparsevec: unknown index type %d", s.opts.indexType)
	}
}

// persistSealed writes the sealed posting data plus the config record.
func (s *SparseVectorIndex) persistSealed(ctx context.Context, compact *inverted.Compact, total int, forMmap bool) error {
	if err := os.MkdirAll(s.opts.path, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	path := filepath.Join(s.opts.path, postingsFileName)

	var err error
	if forMmap {
		err = compact.SaveForMmap(path)
	} else {
		err = compact.Save(path)
	}
	s.logger.LogPersist(ctx, path, err)
	if err != nil {
		return err
	}

	// Charge the flush against the IO budget after the fact; the next
	// IO-bound operation waits out any overdraft.
	if fi, statErr := os.Stat(path); statErr == nil {
		if err := s.res.AcquireIO(ctx, int(fi.Size())); err != nil {
			return err
		}
	}

	return saveConfig(s.opts.path, configRecord{
		SchemaVersion:      configSchemaVersion,
		IndexType:          s.opts.indexType,
		FullScanThreshold:  s.opts.fullScanThreshold,
		IndexedVectorCount: total,
	})
}

// publish swaps the freshly built index in together with its pending
// set: marks the build covered are dropped, marks made during the build
// carry over. The old state keeps its own bitmap untouched, so searches
// still holding it see a matched (index, pending) pair. A superseded
// mmap handle is retired rather than closed so in-flight searches can
// finish against it.
func (s *SparseVectorIndex) publish(idx inverted.Index, coveredPending *filter.Bitmap) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	old := s.state.Load()
	nextPending := old.pending.Clone()
	nextPending.AndNot(coveredPending)

	s.indexMu.Lock()
	s.state.Store(&indexState{index: idx, pending: nextPending})
	s.indexMu.Unlock()

	if old.index != nil && old.index != idx {
		if closer, ok := old.index.(io.Closer); ok {
			s.retired = append(s.retired, closer)
		}
	}
}

func estimatePostingBytes(points []buildPoint) int64 {
	var entries int64
	for _, p := range points {
		entries += int64(p.vec.Len())
	}
	// One posting entry is an offset plus a weight, 8 bytes.
	return entries * 8
}
