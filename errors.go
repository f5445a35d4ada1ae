package sparsevec

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrClosed is returned when operating on a closed index.
	ErrClosed = errors.New("index is closed")

	// ErrNotPersisted is returned when an operation requires a persisted
	// sealed index but the configured index type never writes one.
	ErrNotPersisted = errors.New("index type is not persisted")
)

// ErrInconsistentState indicates that persisted index state disagrees with
// vector storage at open time. The caller must decide whether to rebuild
// or abort.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInconsistentState struct {
	IndexedCount   int
	AvailableCount int
	cause          error
}

func (e *ErrInconsistentState) Error() string {
	return fmt.Sprintf("inconsistent state: persisted index covers %d vectors, storage has %d", e.IndexedCount, e.AvailableCount)
}

func (e *ErrInconsistentState) Unwrap() error { return e.cause }
