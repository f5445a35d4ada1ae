package sparsevec

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/hupe1980/sparsevec/blobstore"
	"github.com/hupe1980/sparsevec/index/inverted"
)

// offloadChunkSize is the copy unit for blob transfers; each chunk is
// charged against the IO budget before it moves.
const offloadChunkSize = 1 << 20

// archivedFiles are the on-disk artifacts that make up a persisted
// index, in upload order. The config record goes last so a partial
// offload is never mistaken for a complete one.
var archivedFiles = []string{postingsFileName, configFileName}

// OffloadTo copies the persisted index files to a blob store under the
// given prefix. The index must be a persisted variant with a path
// configured and must have been built; the live in-memory state is not
// touched.
func (s *SparseVectorIndex) OffloadTo(ctx context.Context, store blobstore.BlobStore, prefix string) error {
	err := s.offload(ctx, store, prefix)
	s.logger.LogOffload(ctx, "upload", prefix, err)
	return err
}

func (s *SparseVectorIndex) offload(ctx context.Context, store blobstore.BlobStore, prefix string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.requirePersisted(); err != nil {
		return err
	}

	for _, name := range archivedFiles {
		if err := s.uploadFile(ctx, store, prefix, name); err != nil {
			return fmt.Errorf("offload %s: %w", name, err)
		}
	}
	return nil
}

func (s *SparseVectorIndex) uploadFile(ctx context.Context, store blobstore.BlobStore, prefix, name string) error {
	f, err := os.Open(filepath.Join(s.opts.path, name))
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := store.Create(ctx, path.Join(prefix, name))
	if err != nil {
		return err
	}

	if err := s.copyRated(ctx, w, f); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// RestoreFrom downloads previously offloaded index files from a blob
// store into the configured path and loads the restored index. Existing
// local files under the path are overwritten.
func (s *SparseVectorIndex) RestoreFrom(ctx context.Context, store blobstore.BlobStore, prefix string) error {
	err := s.restore(ctx, store, prefix)
	s.logger.LogOffload(ctx, "download", prefix, err)
	return err
}

func (s *SparseVectorIndex) restore(ctx context.Context, store blobstore.BlobStore, prefix string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.requirePersisted(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.opts.path, 0o755); err != nil {
		return err
	}

	// Download the postings before the config record so loadPersisted
	// never sees a config pointing at missing data.
	for _, name := range archivedFiles {
		if err := s.downloadFile(ctx, store, prefix, name); err != nil {
			return fmt.Errorf("restore %s: %w", name, err)
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Retire the current index before loading the restored one so
	// in-flight searches can finish against the old mapping. Pending
	// marks carry over; re-scoring them against storage stays correct
	// whatever the restored index contains.
	s.indexMu.Lock()
	old := s.state.Load()
	s.state.Store(&indexState{pending: old.pending})
	s.indexMu.Unlock()
	if old != nil && old.index != nil {
		if closer, ok := old.index.(io.Closer); ok {
			s.retired = append(s.retired, closer)
		}
	}

	return s.loadPersisted(ctx)
}

func (s *SparseVectorIndex) downloadFile(ctx context.Context, store blobstore.BlobStore, prefix, name string) error {
	blob, err := store.Open(ctx, path.Join(prefix, name))
	if err != nil {
		return err
	}
	defer blob.Close()

	r, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return err
	}
	defer r.Close()

	dst := filepath.Join(s.opts.path, name)
	tmp, err := os.CreateTemp(s.opts.path, name+".tmp-*")
	if err != nil {
		return err
	}

	if err := s.copyRated(ctx, tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// copyRated copies src to dst in fixed-size chunks, acquiring IO budget
// for each chunk before it is transferred.
func (s *SparseVectorIndex) copyRated(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, offloadChunkSize)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if err := s.res.AcquireIO(ctx, n); err != nil {
				return err
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

func (s *SparseVectorIndex) requirePersisted() error {
	if s.opts.path == "" || s.opts.indexType == inverted.IndexTypeRAM {
		return ErrNotPersisted
	}
	return nil
}
