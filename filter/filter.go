// Package filter provides the point filtering primitives used at search
// time and for tracking pending index work.
package filter

import (
	"io"
	"iter"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/sparsevec/core"
)

// Bitmap is a 32-bit Roaring Bitmap keyed by point offset.
// It wraps the official roaring implementation.
type Bitmap struct {
	rb *roaring.Bitmap
}

// NewBitmap creates a new empty bitmap.
func NewBitmap() *Bitmap {
	return &Bitmap{
		rb: roaring.New(),
	}
}

// BitmapOf creates a bitmap containing the given offsets.
func BitmapOf(offsets ...core.PointOffset) *Bitmap {
	b := NewBitmap()
	for _, offset := range offsets {
		b.Add(offset)
	}
	return b
}

// Add adds a point offset to the bitmap.
func (b *Bitmap) Add(offset core.PointOffset) {
	b.rb.Add(uint32(offset))
}

// Remove removes a point offset from the bitmap.
func (b *Bitmap) Remove(offset core.PointOffset) {
	b.rb.Remove(uint32(offset))
}

// Contains checks if a point offset is in the bitmap.
func (b *Bitmap) Contains(offset core.PointOffset) bool {
	return b.rb.Contains(uint32(offset))
}

// IsEmpty returns true if the bitmap is empty.
func (b *Bitmap) IsEmpty() bool {
	return b.rb.IsEmpty()
}

// Cardinality returns the number of offsets in the bitmap.
func (b *Bitmap) Cardinality() uint64 {
	return b.rb.GetCardinality()
}

// Clone returns a deep copy of the bitmap.
func (b *Bitmap) Clone() *Bitmap {
	return &Bitmap{
		rb: b.rb.Clone(),
	}
}

// Clear removes all offsets from the bitmap.
func (b *Bitmap) Clear() {
	b.rb.Clear()
}

// And computes the intersection with another bitmap in place.
func (b *Bitmap) And(other *Bitmap) {
	b.rb.And(other.rb)
}

// Or computes the union with another bitmap in place.
func (b *Bitmap) Or(other *Bitmap) {
	b.rb.Or(other.rb)
}

// AndNot removes every offset of other from the bitmap in place.
func (b *Bitmap) AndNot(other *Bitmap) {
	b.rb.AndNot(other.rb)
}

// Iterator returns an iterator over the bitmap in ascending offset order.
func (b *Bitmap) Iterator() iter.Seq[core.PointOffset] {
	return func(yield func(core.PointOffset) bool) {
		it := b.rb.Iterator()
		for it.HasNext() {
			if !yield(core.PointOffset(it.Next())) {
				return
			}
		}
	}
}

// AsPredicate returns a membership predicate over the bitmap. A nil bitmap
// yields a nil predicate, meaning no filtering.
func (b *Bitmap) AsPredicate() func(core.PointOffset) bool {
	if b == nil {
		return nil
	}
	return b.Contains
}

// Excluding returns a predicate accepting every offset NOT in the bitmap.
func (b *Bitmap) Excluding() func(core.PointOffset) bool {
	if b == nil {
		return nil
	}
	return func(offset core.PointOffset) bool {
		return !b.Contains(offset)
	}
}

// WriteTo serializes the bitmap to w in the portable roaring format.
func (b *Bitmap) WriteTo(w io.Writer) (int64, error) {
	return b.rb.WriteTo(w)
}

// ReadFrom deserializes a bitmap from r, replacing the current contents.
func (b *Bitmap) ReadFrom(r io.Reader) (int64, error) {
	return b.rb.ReadFrom(r)
}
