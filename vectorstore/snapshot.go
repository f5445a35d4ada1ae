package vectorstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/hupe1980/sparsevec/core"
	"github.com/hupe1980/sparsevec/persistence"
	"github.com/hupe1980/sparsevec/sparse"
)

// snapshotMagic identifies a vector store snapshot stream ("SVSS").
const snapshotMagic uint32 = 0x53565353

// snapshotVersion is the snapshot stream format version.
const snapshotVersion uint32 = 1

// ErrInvalidSnapshot indicates the snapshot stream is not in the expected
// format or was produced by an incompatible version.
var ErrInvalidSnapshot = errors.New("vectorstore: invalid snapshot")

// WriteSnapshot serializes every stored vector to w as a zstd-compressed
// stream. The snapshot captures offsets alongside vectors, so holes left by
// deletions survive a round trip.
func WriteSnapshot(w io.Writer, store Store) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}

	header := [3]uint32{snapshotMagic, snapshotVersion, uint32(store.AvailableVectorCount())}
	if err := binary.Write(enc, binary.LittleEndian, header[:]); err != nil {
		enc.Close()
		return fmt.Errorf("write snapshot header: %w", err)
	}

	for offset, vec := range store.All() {
		if err := writeSnapshotVector(enc, offset, vec); err != nil {
			enc.Close()
			return err
		}
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush zstd stream: %w", err)
	}

	return nil
}

// ReadSnapshot restores vectors from a snapshot stream into store. The
// target store is expected to be empty; existing offsets are overwritten.
func ReadSnapshot(r io.Reader, store Store) error {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()

	var header [3]uint32
	if err := binary.Read(dec, binary.LittleEndian, header[:]); err != nil {
		return fmt.Errorf("read snapshot header: %w", err)
	}

	if header[0] != snapshotMagic {
		return fmt.Errorf("%w: bad magic 0x%08X", ErrInvalidSnapshot, header[0])
	}

	if header[1] != snapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, header[1])
	}

	count := int(header[2])
	for i := 0; i < count; i++ {
		offset, vec, err := readSnapshotVector(dec)
		if err != nil {
			return fmt.Errorf("read vector %d of %d: %w", i, count, err)
		}

		if err := store.InsertVector(offset, vec); err != nil {
			return fmt.Errorf("restore vector at offset %d: %w", offset, err)
		}
	}

	return nil
}

// SaveSnapshotToFile writes a snapshot of store to filename atomically.
func SaveSnapshotToFile(filename string, store Store) error {
	return persistence.SaveToFile(filename, func(w io.Writer) error {
		return WriteSnapshot(w, store)
	})
}

// LoadSnapshotFromFile restores a snapshot from filename into store.
func LoadSnapshotFromFile(filename string, store Store) error {
	return persistence.LoadFromFile(filename, func(r io.Reader) error {
		return ReadSnapshot(r, store)
	})
}

func writeSnapshotVector(w io.Writer, offset core.PointOffset, vec sparse.Vector) error {
	head := [2]uint32{uint32(offset), uint32(vec.Len())}
	if err := binary.Write(w, binary.LittleEndian, head[:]); err != nil {
		return fmt.Errorf("write vector header at offset %d: %w", offset, err)
	}

	if err := binary.Write(w, binary.LittleEndian, vec.Indices); err != nil {
		return fmt.Errorf("write vector indices at offset %d: %w", offset, err)
	}

	if err := binary.Write(w, binary.LittleEndian, vec.Values); err != nil {
		return fmt.Errorf("write vector values at offset %d: %w", offset, err)
	}

	return nil
}

func readSnapshotVector(r io.Reader) (core.PointOffset, sparse.Vector, error) {
	var head [2]uint32
	if err := binary.Read(r, binary.LittleEndian, head[:]); err != nil {
		return 0, sparse.Vector{}, err
	}

	n := int(head[1])
	indices := make([]core.DimID, n)
	values := make([]float32, n)

	if err := binary.Read(r, binary.LittleEndian, indices); err != nil {
		return 0, sparse.Vector{}, err
	}

	if err := binary.Read(r, binary.LittleEndian, values); err != nil {
		return 0, sparse.Vector{}, err
	}

	vec, err := sparse.New(indices, values)
	if err != nil {
		return 0, sparse.Vector{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	return core.PointOffset(head[0]), vec, nil
}
