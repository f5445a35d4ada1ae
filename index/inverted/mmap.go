package inverted

import (
	"bytes"
	"fmt"

	"github.com/hupe1980/sparsevec/core"
	"github.com/hupe1980/sparsevec/internal/mmap"
	"github.com/hupe1980/sparsevec/persistence"
)

// Compile-time check to ensure Mmap satisfies the Index interface.
var _ Index = (*Mmap)(nil)

// Mmap is the memory-mapped inverted index variant.
//
// It shares the sealed on-disk layout with Compact and serves posting lists
// as zero-copy views into the mapped region. The mapping stays alive until
// Close; callers must not retain posting slices across Close.
type Mmap struct {
	file       *mmap.File
	offsets    []uint64
	entries    []Entry
	pointCount int
}

// OpenMmap maps a sealed index file and validates its header and checksum.
func OpenMmap(path string) (*Mmap, error) {
	f, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}

	idx, err := fromMapped(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	// Posting lookups jump between dimensions.
	_ = f.Advise(mmap.AccessRandom)

	return idx, nil
}

func fromMapped(f *mmap.File) (*Mmap, error) {
	data := f.Data
	if len(data) < persistence.HeaderSize {
		return nil, fmt.Errorf("inverted: index file too small for header: %d bytes", len(data))
	}

	br := persistence.NewBinaryReader(bytes.NewReader(data[:persistence.HeaderSize]))
	header, err := br.ReadHeader()
	if err != nil {
		return nil, err
	}
	if err := validateSealedType(header.IndexType); err != nil {
		return nil, err
	}
	if header.DataOffset != persistence.HeaderSize {
		return nil, fmt.Errorf("inverted: unexpected data offset %d", header.DataOffset)
	}

	offsets, entries, err := sealedSections(header, data)
	if err != nil {
		return nil, err
	}

	return &Mmap{
		file:       f,
		offsets:    offsets,
		entries:    entries,
		pointCount: int(header.PointCount),
	}, nil
}

// Close unmaps the index file. Posting slices become invalid.
func (m *Mmap) Close() error {
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	m.offsets = nil
	m.entries = nil
	return err
}

// PostingList returns the posting entries for a dimension as a view into
// the mapped file.
func (m *Mmap) PostingList(dim core.DimID) []Entry {
	if int(dim) >= len(m.offsets)-1 {
		return nil
	}
	return m.entries[m.offsets[dim]:m.offsets[dim+1]]
}

// IndexedVectorCount returns the number of distinct points represented.
func (m *Mmap) IndexedVectorCount() int { return m.pointCount }

// PostingCount returns the total number of posting entries.
func (m *Mmap) PostingCount() uint64 { return uint64(len(m.entries)) }

// MaxDim returns the exclusive upper bound of dimensions seen.
func (m *Mmap) MaxDim() core.DimID { return core.DimID(len(m.offsets) - 1) }

// Type returns IndexTypeMmap.
func (m *Mmap) Type() IndexType { return IndexTypeMmap }
