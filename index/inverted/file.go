package inverted

import (
	"fmt"
	"io"
	"os"
	"unsafe"

	"github.com/hupe1980/sparsevec/persistence"
)

// On-disk layout (little-endian):
//
//	[ 64-byte persistence.FileHeader ]
//	[ (MaxDim+1) x uint64 prefix-sum offsets ]
//	[ PostingCount x 8-byte Entry ]
//
// Both sealed variants (compact, mmap) share this layout; the header's
// index type records the serving mode intended at save time, and either
// open path accepts either value. The header checksum covers everything
// after the header.

// Save writes the compact index to path atomically.
func (c *Compact) Save(path string) error {
	return persistence.SaveToFile(path, func(w io.Writer) error {
		return c.writeTo(w, persistence.IndexTypeCompact)
	})
}

// SaveForMmap writes the compact index to path atomically, tagged for
// mmap serving.
func (c *Compact) SaveForMmap(path string) error {
	return persistence.SaveToFile(path, func(w io.Writer) error {
		return c.writeTo(w, persistence.IndexTypeMmap)
	})
}

func (c *Compact) writeTo(w io.Writer, indexType uint8) error {
	ch := persistence.NewChecksumWriter(io.Discard)
	_, _ = ch.Write(uint64Bytes(c.offsets))
	_, _ = ch.Write(entryBytes(c.entries))

	bw := persistence.NewBinaryWriter(w)
	header := &persistence.FileHeader{
		IndexType:    indexType,
		PointCount:   uint64(c.pointCount),
		PostingCount: uint64(len(c.entries)),
		MaxDim:       uint32(c.MaxDim()),
		DataOffset:   persistence.HeaderSize,
		Checksum:     ch.Sum(),
	}
	if err := bw.WriteHeader(header); err != nil {
		return err
	}
	if err := bw.WriteUint64Slice(c.offsets); err != nil {
		return err
	}
	if len(c.entries) > 0 {
		if _, err := w.Write(entryBytes(c.entries)); err != nil {
			return err
		}
	}
	return nil
}

// OpenCompact reads a sealed index file into memory.
func OpenCompact(path string) (*Compact, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	fileSize := uint64(fi.Size())

	var c *Compact
	err = persistence.LoadFromFile(path, func(r io.Reader) error {
		br := persistence.NewBinaryReader(r)
		header, err := br.ReadHeader()
		if err != nil {
			return err
		}
		if err := validateSealedType(header.IndexType); err != nil {
			return err
		}

		// Bound the header-declared section sizes by the actual file
		// size before allocating; a corrupt header must not dictate the
		// allocation. The first clause also keeps the sum overflow-free.
		offTableLen := (uint64(header.MaxDim) + 1) * 8
		if header.PostingCount > fileSize/entrySize ||
			persistence.HeaderSize+offTableLen+header.PostingCount*entrySize > fileSize {
			return fmt.Errorf("inverted: index file truncated: %d bytes, header wants %d postings over %d dims",
				fileSize, header.PostingCount, uint64(header.MaxDim)+1)
		}

		offsets, err := br.ReadUint64Slice(int(header.MaxDim) + 1)
		if err != nil {
			return err
		}

		entries := make([]Entry, header.PostingCount)
		if len(entries) > 0 {
			if _, err := io.ReadFull(r, entryBytes(entries)); err != nil {
				return err
			}
		}

		ch := persistence.NewChecksumWriter(io.Discard)
		_, _ = ch.Write(uint64Bytes(offsets))
		_, _ = ch.Write(entryBytes(entries))
		if ch.Sum() != header.Checksum {
			return fmt.Errorf("%w: got 0x%08x, want 0x%08x", persistence.ErrInvalidChecksum, ch.Sum(), header.Checksum)
		}

		for d := 1; d < len(offsets); d++ {
			if offsets[d] < offsets[d-1] || offsets[d] > header.PostingCount {
				return fmt.Errorf("inverted: corrupt offset table at dim %d", d)
			}
		}

		c = &Compact{
			offsets:    offsets,
			entries:    entries,
			pointCount: int(header.PointCount),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func validateSealedType(indexType uint8) error {
	if indexType != persistence.IndexTypeCompact && indexType != persistence.IndexTypeMmap {
		return fmt.Errorf("%w: got %d", persistence.ErrInvalidIndex, indexType)
	}
	return nil
}

// sealedSections slices an on-disk image into its offsets table and entry
// slab, validating sizes against the header.
func sealedSections(header *persistence.FileHeader, data []byte) (offsets []uint64, entries []Entry, err error) {
	offTableLen := (int(header.MaxDim) + 1) * 8
	entriesLen := int(header.PostingCount) * entrySize
	want := persistence.HeaderSize + offTableLen + entriesLen
	if len(data) < want {
		return nil, nil, fmt.Errorf("inverted: index file truncated: %d bytes, want %d", len(data), want)
	}

	offBytes := data[persistence.HeaderSize : persistence.HeaderSize+offTableLen]
	entBytes := data[persistence.HeaderSize+offTableLen : want]

	ch := persistence.NewChecksumWriter(io.Discard)
	_, _ = ch.Write(offBytes)
	_, _ = ch.Write(entBytes)
	if ch.Sum() != header.Checksum {
		return nil, nil, fmt.Errorf("%w: got 0x%08x, want 0x%08x", persistence.ErrInvalidChecksum, ch.Sum(), header.Checksum)
	}

	offsets = unsafe.Slice((*uint64)(unsafe.Pointer(&offBytes[0])), int(header.MaxDim)+1)
	if header.PostingCount > 0 {
		entries = unsafe.Slice((*Entry)(unsafe.Pointer(&entBytes[0])), int(header.PostingCount))
	}

	// Validate the prefix sums before trusting them for slicing.
	for d := 1; d < len(offsets); d++ {
		if offsets[d] < offsets[d-1] || offsets[d] > header.PostingCount {
			return nil, nil, fmt.Errorf("inverted: corrupt offset table at dim %d", d)
		}
	}

	return offsets, entries, nil
}

func uint64Bytes(s []uint64) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8)
}

func entryBytes(s []Entry) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*entrySize)
}
