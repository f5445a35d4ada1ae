package inverted

import (
	"github.com/hupe1980/sparsevec/core"
)

// Compile-time check to ensure Compact satisfies the Index interface.
var _ Index = (*Compact)(nil)

// Compact is the immutable in-memory inverted index variant.
//
// All posting entries live in one contiguous slab; a prefix-sum table maps
// each dimension to its slice of the slab. Built once from a RAM snapshot,
// never mutated.
type Compact struct {
	// offsets has MaxDim+1 elements; posting list for dim d is
	// entries[offsets[d]:offsets[d+1]].
	offsets    []uint64
	entries    []Entry
	pointCount int
}

// FromRAM flattens a RAM index into a Compact index.
func FromRAM(ram *RAM) *Compact {
	maxDim := ram.MaxDim()

	offsets := make([]uint64, maxDim+1)
	entries := make([]Entry, 0, ram.PostingCount())

	for dim := core.DimID(0); dim < maxDim; dim++ {
		offsets[dim] = uint64(len(entries))
		entries = append(entries, ram.PostingList(dim)...)
	}
	offsets[maxDim] = uint64(len(entries))

	return &Compact{
		offsets:    offsets,
		entries:    entries,
		pointCount: ram.IndexedVectorCount(),
	}
}

// PostingList returns the posting entries for a dimension.
func (c *Compact) PostingList(dim core.DimID) []Entry {
	if int(dim) >= len(c.offsets)-1 {
		return nil
	}
	return c.entries[c.offsets[dim]:c.offsets[dim+1]]
}

// IndexedVectorCount returns the number of distinct points represented.
func (c *Compact) IndexedVectorCount() int { return c.pointCount }

// PostingCount returns the total number of posting entries.
func (c *Compact) PostingCount() uint64 { return uint64(len(c.entries)) }

// MaxDim returns the exclusive upper bound of dimensions seen.
func (c *Compact) MaxDim() core.DimID { return core.DimID(len(c.offsets) - 1) }

// Type returns IndexTypeCompact.
func (c *Compact) Type() IndexType { return IndexTypeCompact }
