package sparsevec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/sparsevec/core"
	"github.com/hupe1980/sparsevec/filter"
	"github.com/hupe1980/sparsevec/index/inverted"
	"github.com/hupe1980/sparsevec/internal/resource"
	"github.com/hupe1980/sparsevec/sparse"
	"github.com/hupe1980/sparsevec/vectorstore"
)

// indexState is the atomically swapped search state. A nil index means
// the orchestrator is unbuilt and serves queries by full scan only.
//
// pending travels with the index it annotates: a search that loads a
// state sees exactly the pending marks accumulated against that index,
// never the cleared set of a newer one.
type indexState struct {
	index   inverted.Index
	pending *filter.Bitmap
}

// SparseVectorIndex orchestrates a sparse-vector segment: it owns the
// inverted index lifecycle (build, persist, swap) and decides per query
// between a full linear scan and an index-accelerated scan.
//
// Vector storage is an external collaborator; the orchestrator never
// deletes or rewrites stored vectors beyond the write-through of
// InsertOrUpdate and Remove.
//
// All methods are safe for concurrent use. Readers operate against an
// immutable snapshot swapped in atomically when a build completes.
type SparseVectorIndex struct {
	opts    options
	storage vectorstore.Store
	res     *resource.Controller
	logger  *Logger
	metrics MetricsCollector

	state atomic.Pointer[indexState]

	// indexMu guards in-place mutation of a mutable index; readers of
	// the accelerated path hold it shared.
	indexMu sync.RWMutex

	// writeMu serializes write-through operations and state publication.
	writeMu sync.Mutex

	// building reports an in-flight build. Guarded by writeMu; writes
	// that land while a build scans storage may be missed by it, so they
	// are marked pending on every variant.
	building bool

	// buildMu serializes builds.
	buildMu sync.Mutex

	// pendingMu guards mutation of the current state's pending bitmap.
	pendingMu sync.RWMutex

	// retired holds superseded mmap handles; concurrent searches may
	// still read a replaced mapping, so it is only unmapped on Close.
	retired []io.Closer

	closed atomic.Bool
}

// Open creates an orchestrator over the given vector storage.
//
// When WithPath points at a directory with compatible persisted state,
// the sealed index is loaded and search is index-accelerated from the
// start. Missing state is not an error; the orchestrator starts unbuilt
// and answers queries by full scan until the first build. Persisted
// state that disagrees with storage fails with ErrInconsistentState
// unless WithDiscardStale is set.
func Open(ctx context.Context, storage vectorstore.Store, optFns ...Option) (*SparseVectorIndex, error) {
	opts := applyOptions(optFns)

	if opts.indexType == inverted.IndexTypeMmap && opts.path == "" {
		return nil, errors.New("sparsevec: mmap index requires a path")
	}
	if opts.fullScanThreshold < 0 {
		return nil, fmt.Errorf("sparsevec: negative full scan threshold %d", opts.fullScanThreshold)
	}

	s := &SparseVectorIndex{
		opts:    opts,
		storage: storage,
		res: resource.NewController(resource.Config{
			MaxBuildWorkers:    opts.maxBuildWorkers,
			MemoryLimitBytes:   opts.memoryLimitBytes,
			IOLimitBytesPerSec: opts.ioLimitBytesPerSec,
		}),
		logger:  opts.logger,
		metrics: opts.metricsCollector,
	}
	s.state.Store(&indexState{pending: filter.NewBitmap()})

	if opts.path != "" {
		if err := s.loadPersisted(ctx); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// loadPersisted restores a sealed index from the configured path.
func (s *SparseVectorIndex) loadPersisted(ctx context.Context) error {
	rec, err := loadConfig(s.opts.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // nothing persisted, start unbuilt
		}
		if s.opts.discardStale {
			s.logger.WarnContext(ctx, "discarding unreadable persisted config", "path", s.opts.path, "error", err)
			return nil
		}
		return fmt.Errorf("sparsevec: load config: %w", err)
	}

	if !rec.IndexType.Persisted() {
		return nil
	}

	if rec.IndexType != s.opts.indexType {
		// A rebuild in the requested variant supersedes the old files.
		s.logger.WarnContext(ctx, "persisted index type differs from configuration, starting unbuilt",
			"persisted", rec.IndexType.String(),
			"configured", s.opts.indexType.String(),
		)
		return nil
	}

	available := s.storage.AvailableVectorCount()
	if rec.IndexedVectorCount != available {
		if s.opts.discardStale {
			s.logger.WarnContext(ctx, "discarding stale persisted index",
				"indexed", rec.IndexedVectorCount,
				"available", available,
			)
			return nil
		}
		return &ErrInconsistentState{IndexedCount: rec.IndexedVectorCount, AvailableCount: available}
	}

	path := filepath.Join(s.opts.path, postingsFileName)

	var idx inverted.Index
	switch rec.IndexType {
	case inverted.IndexTypeCompact:
		idx, err = inverted.OpenCompact(path)
	case inverted.IndexTypeMmap:
		idx, err = inverted.OpenMmap(path)
	}
	if err != nil {
		if s.opts.discardStale {
			s.logger.WarnContext(ctx, "discarding unreadable persisted postings", "path", path, "error", err)
			return nil
		}
		return &ErrInconsistentState{IndexedCount: rec.IndexedVectorCount, AvailableCount: available, cause: err}
	}

	if idx.IndexedVectorCount() != rec.IndexedVectorCount {
		s.closeIndex(idx)
		if s.opts.discardStale {
			return nil
		}
		return &ErrInconsistentState{IndexedCount: idx.IndexedVectorCount(), AvailableCount: available}
	}

	s.state.Store(&indexState{index: idx, pending: s.state.Load().pending})
	return nil
}

// IndexedVectorCount returns the number of vectors reflected in the
// inverted index. It is 0 while unbuilt and may lag
// AvailableVectorCount until the next build completes.
func (s *SparseVectorIndex) IndexedVectorCount() int {
	st := s.state.Load()
	if st.index == nil {
		return 0
	}
	return st.index.IndexedVectorCount()
}

// AvailableVectorCount returns the number of vectors in storage.
func (s *SparseVectorIndex) AvailableVectorCount() int {
	return s.storage.AvailableVectorCount()
}

// IndexType returns the configured inverted index variant.
func (s *SparseVectorIndex) IndexType() inverted.IndexType {
	return s.opts.indexType
}

// PendingCount returns the number of points awaiting the next rebuild.
func (s *SparseVectorIndex) PendingCount() uint64 {
	st := s.state.Load()
	s.pendingMu.RLock()
	defer s.pendingMu.RUnlock()
	return st.pending.Cardinality()
}

// InsertOrUpdate writes the vector through to storage and keeps the
// index in sync: mutable indexes are updated in place, immutable ones
// mark the point pending until the next rebuild.
func (s *SparseVectorIndex) InsertOrUpdate(ctx context.Context, offset core.PointOffset, vec sparse.Vector) error {
	start := time.Now()
	err := s.insertOrUpdate(offset, vec)
	s.metrics.RecordUpsert(time.Since(start), err)
	s.logger.LogUpsert(ctx, uint32(offset), vec.Len(), err)
	return err
}

func (s *SparseVectorIndex) insertOrUpdate(offset core.PointOffset, vec sparse.Vector) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.storage.InsertVector(offset, vec); err != nil {
		return fmt.Errorf("insert vector: %w", err)
	}

	st := s.state.Load()

	if mut, ok := st.index.(inverted.MutableIndex); ok {
		s.indexMu.Lock()
		mut.Upsert(offset, vec)
		s.indexMu.Unlock()
		if !s.building {
			return nil
		}
		// An in-flight build may have scanned storage before this write;
		// the pending mark survives the swap and repairs the new index.
	} else if st.index == nil && !s.building {
		return nil // unbuilt, full scan serves the point
	}

	s.markPending(st, offset)
	return nil
}

// markPending records offset against the current state's pending set.
// Callers hold writeMu, so the state cannot be republished underneath.
func (s *SparseVectorIndex) markPending(st *indexState, offset core.PointOffset) {
	s.pendingMu.Lock()
	st.pending.Add(offset)
	s.pendingMu.Unlock()
}

// Remove deletes the vector from storage and retracts it from the
// index; on immutable variants the point is marked pending so the
// accelerated path stops returning it immediately.
func (s *SparseVectorIndex) Remove(ctx context.Context, offset core.PointOffset) error {
	start := time.Now()
	err := s.remove(offset)
	s.metrics.RecordRemove(time.Since(start), err)
	s.logger.LogRemove(ctx, uint32(offset), err)
	return err
}

func (s *SparseVectorIndex) remove(offset core.PointOffset) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.storage.DeleteVector(offset); err != nil {
		return fmt.Errorf("delete vector: %w", err)
	}

	st := s.state.Load()

	if mut, ok := st.index.(inverted.MutableIndex); ok {
		s.indexMu.Lock()
		mut.Remove(offset)
		s.indexMu.Unlock()
		if !s.building {
			return nil
		}
		// Same as insert: the build may republish postings for this
		// point, so keep it pending until a build covers the removal.
	} else if st.index == nil && !s.building {
		return nil
	}

	s.markPending(st, offset)
	return nil
}

// Close releases resources held by the orchestrator, including any
// memory-mapped index segments.
func (s *SparseVectorIndex) Close() error {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	var firstErr error

	st := s.state.Swap(&indexState{pending: filter.NewBitmap()})
	if err := s.closeIndex(st.index); err != nil {
		firstErr = err
	}

	s.writeMu.Lock()
	retired := s.retired
	s.retired = nil
	s.writeMu.Unlock()

	for _, c := range retired {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (s *SparseVectorIndex) closeIndex(idx inverted.Index) error {
	if c, ok := idx.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
