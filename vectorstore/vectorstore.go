// Package vectorstore defines the raw sparse vector storage collaborator
// consumed by the index orchestrator, plus reference implementations.
//
// Storage operates on internal point offsets only; mapping external IDs to
// offsets is the job of an ID tracker outside this module.
package vectorstore

import (
	"iter"

	"github.com/hupe1980/sparsevec/core"
	"github.com/hupe1980/sparsevec/sparse"
)

// Store is the vector storage contract.
//
// Once a point is inserted it must remain retrievable until deleted.
// Implementations must be safe for concurrent readers; writes are
// serialized by the caller.
type Store interface {
	// InsertVector stores (or replaces) the vector at the given offset.
	InsertVector(offset core.PointOffset, vec sparse.Vector) error

	// GetVector returns the vector at the given offset.
	GetVector(offset core.PointOffset) (sparse.Vector, bool)

	// DeleteVector removes the vector at the given offset.
	DeleteVector(offset core.PointOffset) error

	// AvailableVectorCount returns the number of stored (non-deleted) vectors.
	AvailableVectorCount() int

	// All iterates stored vectors in ascending offset order. The yielded
	// vectors must be treated as read-only.
	All() iter.Seq2[core.PointOffset, sparse.Vector]
}
