package persistence

import "errors"

const (
	// MagicNumber identifies sparsevec binary files (ASCII: "SPV0")
	MagicNumber = 0x53505630
	// Version is the current file format version (v1.0.0)
	Version = 0x00010000

	// Index types
	IndexTypeCompact = 1
	IndexTypeMmap    = 2
)

var (
	ErrInvalidMagic    = errors.New("invalid magic number")
	ErrInvalidVersion  = errors.New("unsupported version")
	ErrInvalidIndex    = errors.New("invalid index type")
	ErrInvalidChecksum = errors.New("checksum mismatch")
)

// FileHeader is the 64-byte header at the start of every index file.
// Layout optimized for mmap compatibility and cache alignment.
type FileHeader struct {
	Magic        uint32 // 0x53505630 ("SPV0")
	Version      uint32 // File format version
	IndexType    uint8  // 1=Compact, 2=Mmap
	Padding1     [3]byte
	PointCount   uint64 // Distinct points represented in the index
	PostingCount uint64 // Total posting entries across all dimensions
	MaxDim       uint32 // Highest dimension id + 1 (posting list table size)
	DataOffset   uint64 // Offset to posting data section
	Checksum     uint32 // CRC32 of the posting data section
	Padding2     [4]byte
	Reserved     [16]byte // Future use
}

// HeaderSize is the encoded size of FileHeader in bytes.
const HeaderSize = 64
