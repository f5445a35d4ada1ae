package vectorstore

import (
	"iter"
	"sync"

	"github.com/hupe1980/sparsevec/core"
	"github.com/hupe1980/sparsevec/sparse"
)

// Compile-time check to ensure Memory satisfies the Store interface.
var _ Store = (*Memory)(nil)

// Memory is an in-memory Store keeping vectors in a dense slice indexed by
// point offset. Deleted slots become nil holes; offsets are assigned by the
// caller and may arrive out of order.
type Memory struct {
	mu      sync.RWMutex
	vectors []*sparse.Vector
	count   int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// InsertVector stores (or replaces) the vector at the given offset.
func (m *Memory) InsertVector(offset core.PointOffset, vec sparse.Vector) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for core.PointOffset(len(m.vectors)) <= offset {
		m.vectors = append(m.vectors, nil)
	}
	if m.vectors[offset] == nil {
		m.count++
	}
	v := vec.Clone()
	m.vectors[offset] = &v
	return nil
}

// GetVector returns the vector at the given offset.
func (m *Memory) GetVector(offset core.PointOffset) (sparse.Vector, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if int(offset) >= len(m.vectors) || m.vectors[offset] == nil {
		return sparse.Vector{}, false
	}
	return *m.vectors[offset], true
}

// DeleteVector removes the vector at the given offset. Deleting an absent
// offset is a no-op.
func (m *Memory) DeleteVector(offset core.PointOffset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int(offset) < len(m.vectors) && m.vectors[offset] != nil {
		m.vectors[offset] = nil
		m.count--
	}
	return nil
}

// AvailableVectorCount returns the number of stored vectors.
func (m *Memory) AvailableVectorCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}

// All iterates stored vectors in ascending offset order.
//
// Iteration works on a snapshot of the slot table, so concurrent writes
// do not invalidate the sequence.
func (m *Memory) All() iter.Seq2[core.PointOffset, sparse.Vector] {
	m.mu.RLock()
	snapshot := make([]*sparse.Vector, len(m.vectors))
	copy(snapshot, m.vectors)
	m.mu.RUnlock()

	return func(yield func(core.PointOffset, sparse.Vector) bool) {
		for i, v := range snapshot {
			if v == nil {
				continue
			}
			if !yield(core.PointOffset(i), *v) {
				return
			}
		}
	}
}
