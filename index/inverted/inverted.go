// Package inverted provides the sparse inverted index: per-dimension posting
// lists mapping a dimension to the points that have a nonzero weight there.
//
// Three variants share one capability set:
//
//   - RAM: mutable, growable posting lists. Used during active ingestion.
//   - Compact: immutable, built once from a RAM index; posting lists are
//     flattened into one contiguous slab for cache-friendly scans.
//   - Mmap: same physical layout as Compact, backed by a file, for datasets
//     exceeding memory.
//
// Only the RAM variant supports incremental mutation; the sealed variants
// are rebuilt wholesale. Capability mismatches are resolved by the caller
// (the orchestrator keeps a pending-reindex set), not by runtime checks
// inside the variants.
package inverted

import (
	"fmt"
	"iter"

	"github.com/hupe1980/sparsevec/core"
	"github.com/hupe1980/sparsevec/sparse"
)

// IndexType identifies an inverted index variant. The set is closed.
type IndexType uint8

const (
	// IndexTypeRAM is the mutable in-memory variant.
	IndexTypeRAM IndexType = 1
	// IndexTypeCompact is the immutable in-memory variant.
	IndexTypeCompact IndexType = 2
	// IndexTypeMmap is the memory-mapped variant.
	IndexTypeMmap IndexType = 3
)

// String returns a string representation of the IndexType.
func (t IndexType) String() string {
	switch t {
	case IndexTypeRAM:
		return "ram"
	case IndexTypeCompact:
		return "compact"
	case IndexTypeMmap:
		return "mmap"
	default:
		return "unknown"
	}
}

// Mutable reports whether the variant supports incremental upsert/remove.
func (t IndexType) Mutable() bool { return t == IndexTypeRAM }

// Persisted reports whether the variant is re-opened from an index file
// instead of being rebuilt from raw vectors.
func (t IndexType) Persisted() bool { return t == IndexTypeCompact || t == IndexTypeMmap }

// MarshalText implements encoding.TextMarshaler for config records.
func (t IndexType) MarshalText() ([]byte, error) {
	s := t.String()
	if s == "unknown" {
		return nil, fmt.Errorf("inverted: cannot marshal index type %d", uint8(t))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for config records.
func (t *IndexType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "ram":
		*t = IndexTypeRAM
	case "compact":
		*t = IndexTypeCompact
	case "mmap":
		*t = IndexTypeMmap
	default:
		return fmt.Errorf("inverted: unknown index type %q", text)
	}
	return nil
}

// Index is the capability set shared by all inverted index variants.
//
// PostingList never fails: an unseen dimension yields an empty list. The
// returned slice aliases index-internal (or mmapped) memory and must be
// treated as read-only.
type Index interface {
	// PostingList returns the posting entries for a dimension, ordered by
	// ascending point offset.
	PostingList(dim core.DimID) []Entry

	// IndexedVectorCount returns the number of distinct points represented.
	IndexedVectorCount() int

	// PostingCount returns the total number of posting entries.
	PostingCount() uint64

	// MaxDim returns the exclusive upper bound of dimensions seen.
	MaxDim() core.DimID

	// Type returns the variant tag.
	Type() IndexType
}

// MutableIndex extends Index with single-point mutation. Only the RAM
// variant implements it.
type MutableIndex interface {
	Index

	// Upsert replaces all posting entries for a point with the entries of
	// the given vector. Dimensions no longer present are removed; new
	// dimensions create new posting lists.
	Upsert(offset core.PointOffset, vec sparse.Vector)

	// Remove deletes all posting entries for a point.
	Remove(offset core.PointOffset)
}

// Source is a finite, sized sequence of (point offset, sparse vector) pairs
// consumed by Build. Len must be known up front for preallocation.
type Source interface {
	Len() int
	All() iter.Seq2[core.PointOffset, sparse.Vector]
}
