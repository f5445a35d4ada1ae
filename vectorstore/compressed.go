package vectorstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"math"
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/sparsevec/core"
	"github.com/hupe1980/sparsevec/sparse"
)

// Compile-time check to ensure Compressed satisfies the Store interface.
var _ Store = (*Compressed)(nil)

// blockHeaderSize is the per-vector header: uncompressed size + compressed
// size (0 = stored uncompressed).
const blockHeaderSize = 8

// Compressed is an in-memory Store keeping each vector as an LZ4 block.
//
// Sparse embeddings often carry long runs of similar weights; block
// compression trades a decode on every read for a smaller resident set.
// Use Memory when read latency matters more than footprint.
type Compressed struct {
	mu     sync.RWMutex
	blocks [][]byte
	count  int
}

// NewCompressed creates an empty LZ4-compressed store.
func NewCompressed() *Compressed {
	return &Compressed{}
}

// InsertVector stores (or replaces) the vector at the given offset.
func (c *Compressed) InsertVector(offset core.PointOffset, vec sparse.Vector) error {
	block, err := encodeBlock(vec)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for core.PointOffset(len(c.blocks)) <= offset {
		c.blocks = append(c.blocks, nil)
	}
	if c.blocks[offset] == nil {
		c.count++
	}
	c.blocks[offset] = block
	return nil
}

// GetVector returns the vector at the given offset.
func (c *Compressed) GetVector(offset core.PointOffset) (sparse.Vector, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if int(offset) >= len(c.blocks) || c.blocks[offset] == nil {
		return sparse.Vector{}, false
	}
	vec, err := decodeBlock(c.blocks[offset])
	if err != nil {
		// A block we wrote ourselves must decode; anything else is a
		// programming error, not a recoverable condition.
		panic(fmt.Sprintf("vectorstore: corrupt vector block at offset %d: %v", offset, err))
	}
	return vec, true
}

// DeleteVector removes the vector at the given offset.
func (c *Compressed) DeleteVector(offset core.PointOffset) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if int(offset) < len(c.blocks) && c.blocks[offset] != nil {
		c.blocks[offset] = nil
		c.count--
	}
	return nil
}

// AvailableVectorCount returns the number of stored vectors.
func (c *Compressed) AvailableVectorCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}

// All iterates stored vectors in ascending offset order.
func (c *Compressed) All() iter.Seq2[core.PointOffset, sparse.Vector] {
	c.mu.RLock()
	snapshot := make([][]byte, len(c.blocks))
	copy(snapshot, c.blocks)
	c.mu.RUnlock()

	return func(yield func(core.PointOffset, sparse.Vector) bool) {
		for i, block := range snapshot {
			if block == nil {
				continue
			}
			vec, err := decodeBlock(block)
			if err != nil {
				panic(fmt.Sprintf("vectorstore: corrupt vector block at offset %d: %v", i, err))
			}
			if !yield(core.PointOffset(i), vec) {
				return
			}
		}
	}
}

// encodeBlock serializes a vector and LZ4-compresses it. If compression
// doesn't help (ratio > 0.9), the raw encoding is stored instead.
func encodeBlock(vec sparse.Vector) ([]byte, error) {
	raw := encodeVector(vec)

	maxCompressedSize := lz4.CompressBlockBound(len(raw))
	compressed := make([]byte, maxCompressedSize)
	n, err := lz4.CompressBlock(raw, compressed, nil)
	if err != nil {
		return nil, err
	}

	if n == 0 || float64(n) > float64(len(raw))*0.9 {
		block := make([]byte, blockHeaderSize+len(raw))
		binary.LittleEndian.PutUint32(block[0:], uint32(len(raw)))
		binary.LittleEndian.PutUint32(block[4:], 0) // 0 = uncompressed
		copy(block[blockHeaderSize:], raw)
		return block, nil
	}

	block := make([]byte, blockHeaderSize+n)
	binary.LittleEndian.PutUint32(block[0:], uint32(len(raw)))
	binary.LittleEndian.PutUint32(block[4:], uint32(n))
	copy(block[blockHeaderSize:], compressed[:n])
	return block, nil
}

// decodeBlock reverses encodeBlock.
func decodeBlock(block []byte) (sparse.Vector, error) {
	if len(block) < blockHeaderSize {
		return sparse.Vector{}, errors.New("block too small for header")
	}

	uncompressedSize := binary.LittleEndian.Uint32(block[0:])
	compressedSize := binary.LittleEndian.Uint32(block[4:])

	var raw []byte
	if compressedSize == 0 {
		if uint32(len(block)) < blockHeaderSize+uncompressedSize {
			return sparse.Vector{}, errors.New("block data too small")
		}
		raw = block[blockHeaderSize : blockHeaderSize+uncompressedSize]
	} else {
		if uint32(len(block)) < blockHeaderSize+compressedSize {
			return sparse.Vector{}, errors.New("compressed block data too small")
		}
		raw = make([]byte, uncompressedSize)
		n, err := lz4.UncompressBlock(block[blockHeaderSize:blockHeaderSize+compressedSize], raw)
		if err != nil {
			return sparse.Vector{}, err
		}
		if uint32(n) != uncompressedSize {
			return sparse.Vector{}, errors.New("decompressed size mismatch")
		}
	}

	return decodeVector(raw)
}

// encodeVector packs a vector as: count uint32, count x uint32 dims,
// count x float32 weights (little-endian).
func encodeVector(vec sparse.Vector) []byte {
	n := vec.Len()
	raw := make([]byte, 4+n*8)
	binary.LittleEndian.PutUint32(raw[0:], uint32(n))
	for i, dim := range vec.Indices {
		binary.LittleEndian.PutUint32(raw[4+i*4:], uint32(dim))
	}
	base := 4 + n*4
	for i, w := range vec.Values {
		binary.LittleEndian.PutUint32(raw[base+i*4:], math.Float32bits(w))
	}
	return raw
}

// decodeVector reverses encodeVector.
func decodeVector(raw []byte) (sparse.Vector, error) {
	if len(raw) < 4 {
		return sparse.Vector{}, errors.New("vector encoding too small")
	}
	n := int(binary.LittleEndian.Uint32(raw[0:]))
	if len(raw) != 4+n*8 {
		return sparse.Vector{}, fmt.Errorf("vector encoding size mismatch: %d entries in %d bytes", n, len(raw))
	}
	if n == 0 {
		return sparse.Vector{}, nil
	}

	indices := make([]core.DimID, n)
	for i := range indices {
		indices[i] = core.DimID(binary.LittleEndian.Uint32(raw[4+i*4:]))
	}
	base := 4 + n*4
	values := make([]float32, n)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[base+i*4:]))
	}

	return sparse.New(indices, values)
}
