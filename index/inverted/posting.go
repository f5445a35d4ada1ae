package inverted

import (
	"sort"
	"unsafe"

	"github.com/hupe1980/sparsevec/core"
)

// Entry is one posting: a point offset and the weight the point has at the
// posting list's dimension.
//
// The layout is fixed at 8 bytes (little-endian on disk) so that compact
// slabs and mmapped files can be viewed as []Entry without decoding.
type Entry struct {
	Offset core.PointOffset
	Weight float32
}

// Compile-time check that Entry keeps its wire size.
var _ = [1]struct{}{}[unsafe.Sizeof(Entry{})-entrySize]

const entrySize = 8

// PostingList is a growable posting list ordered by ascending point offset.
type PostingList struct {
	entries []Entry
}

// Entries returns the underlying entry slice. Read-only for callers.
func (p *PostingList) Entries() []Entry { return p.entries }

// Len returns the number of entries.
func (p *PostingList) Len() int { return len(p.entries) }

// search returns the position of offset in the list and whether it is present.
func (p *PostingList) search(offset core.PointOffset) (int, bool) {
	i := sort.Search(len(p.entries), func(i int) bool {
		return p.entries[i].Offset >= offset
	})
	return i, i < len(p.entries) && p.entries[i].Offset == offset
}

// Upsert inserts or updates the entry for a point, keeping offset order.
func (p *PostingList) Upsert(offset core.PointOffset, weight float32) {
	i, found := p.search(offset)
	if found {
		p.entries[i].Weight = weight
		return
	}
	p.entries = append(p.entries, Entry{})
	copy(p.entries[i+1:], p.entries[i:])
	p.entries[i] = Entry{Offset: offset, Weight: weight}
}

// Remove deletes the entry for a point, if present.
func (p *PostingList) Remove(offset core.PointOffset) bool {
	i, found := p.search(offset)
	if !found {
		return false
	}
	p.entries = append(p.entries[:i], p.entries[i+1:]...)
	return true
}

// Append adds an entry without searching. The caller must append in
// ascending offset order; bulk builders use this on the hot path.
func (p *PostingList) Append(offset core.PointOffset, weight float32) {
	p.entries = append(p.entries, Entry{Offset: offset, Weight: weight})
}

// sortByOffset restores offset order after out-of-order bulk appends.
func (p *PostingList) sortByOffset() {
	sort.Slice(p.entries, func(i, j int) bool {
		return p.entries[i].Offset < p.entries[j].Offset
	})
}
