package inverted

import (
	"context"

	"github.com/hupe1980/sparsevec/core"
	"github.com/hupe1980/sparsevec/sparse"
)

// Compile-time checks to ensure RAM satisfies required interfaces.
var _ Index = (*RAM)(nil)
var _ MutableIndex = (*RAM)(nil)

// cancelCheckInterval is the number of vectors processed between cooperative
// cancellation checks during a bulk build.
const cancelCheckInterval = 512

// RAM is the mutable in-memory inverted index variant.
//
// Posting lists are growable and ordered by point offset. RAM tracks the
// dimensions of every indexed point so that Upsert can retract entries for
// dimensions no longer present without consulting vector storage.
//
// RAM is not safe for concurrent use; the orchestrator serializes mutation
// and publishes immutable snapshots for readers.
type RAM struct {
	postings []PostingList // indexed by DimID
	// pointDims records the nonzero dimensions of each indexed point.
	// Required for upsert retraction and for IndexedVectorCount.
	pointDims    map[core.PointOffset][]core.DimID
	postingCount uint64
}

// NewRAM creates an empty mutable inverted index.
func NewRAM() *RAM {
	return &RAM{
		pointDims: make(map[core.PointOffset][]core.DimID),
	}
}

// Build constructs a RAM index from a sized sequence of vectors in a single
// pass. Cancellation is checked every cancelCheckInterval vectors; on
// cancellation the partially-built index is discarded and ctx.Err() is
// returned.
func Build(ctx context.Context, src Source) (*RAM, error) {
	idx := &RAM{
		pointDims: make(map[core.PointOffset][]core.DimID, src.Len()),
	}

	processed := 0
	for offset, vec := range src.All() {
		if processed%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		processed++

		idx.bulkAppend(offset, vec)
	}

	// Storage iteration order is not guaranteed to follow offsets.
	for d := range idx.postings {
		idx.postings[d].sortByOffset()
	}

	return idx, nil
}

// bulkAppend adds a vector without keeping posting lists sorted. Used by
// Build; callers must sort afterwards.
func (r *RAM) bulkAppend(offset core.PointOffset, vec sparse.Vector) {
	if vec.IsEmpty() {
		// Empty vectors occupy no posting list but still count as indexed.
		r.pointDims[offset] = nil
		return
	}

	dims := make([]core.DimID, len(vec.Indices))
	copy(dims, vec.Indices)
	r.pointDims[offset] = dims

	for i, dim := range vec.Indices {
		r.grow(dim)
		r.postings[dim].Append(offset, vec.Values[i])
		r.postingCount++
	}
}

// grow ensures the posting table covers dim.
func (r *RAM) grow(dim core.DimID) {
	for core.DimID(len(r.postings)) <= dim {
		r.postings = append(r.postings, PostingList{})
	}
}

// PostingList returns the posting entries for a dimension.
func (r *RAM) PostingList(dim core.DimID) []Entry {
	if dim >= core.DimID(len(r.postings)) {
		return nil
	}
	return r.postings[dim].Entries()
}

// IndexedVectorCount returns the number of distinct points represented.
func (r *RAM) IndexedVectorCount() int { return len(r.pointDims) }

// PostingCount returns the total number of posting entries.
func (r *RAM) PostingCount() uint64 { return r.postingCount }

// MaxDim returns the exclusive upper bound of dimensions seen.
func (r *RAM) MaxDim() core.DimID { return core.DimID(len(r.postings)) }

// Type returns IndexTypeRAM.
func (r *RAM) Type() IndexType { return IndexTypeRAM }

// Upsert replaces all posting entries for a point with the entries of vec.
func (r *RAM) Upsert(offset core.PointOffset, vec sparse.Vector) {
	if oldDims, ok := r.pointDims[offset]; ok {
		// Retract dimensions that are no longer present. Dimensions shared
		// with the new vector are overwritten in place below.
		for _, dim := range oldDims {
			if containsDim(vec.Indices, dim) {
				continue
			}
			if r.postings[dim].Remove(offset) {
				r.postingCount--
			}
		}
	}

	dims := make([]core.DimID, len(vec.Indices))
	copy(dims, vec.Indices)
	r.pointDims[offset] = dims

	for i, dim := range vec.Indices {
		r.grow(dim)
		before := r.postings[dim].Len()
		r.postings[dim].Upsert(offset, vec.Values[i])
		if r.postings[dim].Len() > before {
			r.postingCount++
		}
	}
}

// Remove deletes all posting entries for a point.
func (r *RAM) Remove(offset core.PointOffset) {
	dims, ok := r.pointDims[offset]
	if !ok {
		return
	}
	for _, dim := range dims {
		if r.postings[dim].Remove(offset) {
			r.postingCount--
		}
	}
	delete(r.pointDims, offset)
}

// Merge appends all postings of other into r. Both inputs must carry
// disjoint point ranges with every offset in other greater than every
// offset in r for the shared dimensions; parallel builds partition the
// point range contiguously, so appending preserves offset order.
func (r *RAM) Merge(other *RAM) {
	for dim := core.DimID(0); dim < other.MaxDim(); dim++ {
		entries := other.PostingList(dim)
		if len(entries) == 0 {
			continue
		}
		r.grow(dim)
		r.postings[dim].entries = append(r.postings[dim].entries, entries...)
	}
	for offset, dims := range other.pointDims {
		r.pointDims[offset] = dims
	}
	r.postingCount += other.postingCount
}

// containsDim reports whether sorted dims contains dim.
func containsDim(dims []core.DimID, dim core.DimID) bool {
	lo, hi := 0, len(dims)
	for lo < hi {
		mid := (lo + hi) / 2
		if dims[mid] < dim {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo < len(dims) && dims[lo] == dim
}
