// Package sparse provides the canonical sparse vector representation used
// throughout sparsevec: parallel slices of sorted, unique dimension indices
// and their nonzero weights.
package sparse

import (
	"fmt"

	"github.com/hupe1980/sparsevec/core"
)

// ErrMalformedVector indicates that a vector could not be constructed from
// the supplied indices and values.
type ErrMalformedVector struct {
	Reason string
}

func (e *ErrMalformedVector) Error() string {
	return fmt.Sprintf("malformed sparse vector: %s", e.Reason)
}

// Vector is a sparse vector: a sorted sequence of (dimension, weight) pairs.
//
// Invariants (enforced by New):
//   - len(Indices) == len(Values)
//   - Indices are unique and strictly ascending
//
// The zero-length vector is valid. Vectors are treated as immutable after
// construction; callers must not mutate the slices.
type Vector struct {
	Indices []core.DimID
	Values  []float32
}

// New validates indices/values and returns a Vector.
// The input slices are retained, not copied.
func New(indices []core.DimID, values []float32) (Vector, error) {
	if len(indices) != len(values) {
		return Vector{}, &ErrMalformedVector{
			Reason: fmt.Sprintf("indices/values length mismatch: %d vs %d", len(indices), len(values)),
		}
	}
	for i := 1; i < len(indices); i++ {
		if indices[i] <= indices[i-1] {
			return Vector{}, &ErrMalformedVector{
				Reason: fmt.Sprintf("indices must be unique and sorted ascending: index %d at position %d", indices[i], i),
			}
		}
	}
	return Vector{Indices: indices, Values: values}, nil
}

// MustNew is like New but panics on malformed input. Intended for tests and
// fixtures where the input is known to be valid.
func MustNew(indices []core.DimID, values []float32) Vector {
	v, err := New(indices, values)
	if err != nil {
		panic(err)
	}
	return v
}

// Len returns the number of nonzero entries.
func (v Vector) Len() int { return len(v.Indices) }

// IsEmpty reports whether the vector has no nonzero entries.
func (v Vector) IsEmpty() bool { return len(v.Indices) == 0 }

// Dot computes the dot product against another sparse vector using a sorted
// merge walk over both index sequences.
func (v Vector) Dot(other Vector) float32 {
	var score float32
	i, j := 0, 0
	for i < len(v.Indices) && j < len(other.Indices) {
		switch {
		case v.Indices[i] == other.Indices[j]:
			score += v.Values[i] * other.Values[j]
			i++
			j++
		case v.Indices[i] < other.Indices[j]:
			i++
		default:
			j++
		}
	}
	return score
}

// DotShared is Dot plus a flag reporting whether the vectors share at
// least one dimension. Scan paths use the flag to distinguish "scores
// zero" from "has no overlap at all".
func (v Vector) DotShared(other Vector) (float32, bool) {
	var score float32
	shared := false
	i, j := 0, 0
	for i < len(v.Indices) && j < len(other.Indices) {
		switch {
		case v.Indices[i] == other.Indices[j]:
			score += v.Values[i] * other.Values[j]
			shared = true
			i++
			j++
		case v.Indices[i] < other.Indices[j]:
			i++
		default:
			j++
		}
	}
	return score, shared
}

// NormSquared returns the squared L2 norm, i.e. Dot(v, v).
func (v Vector) NormSquared() float32 {
	var sum float32
	for _, w := range v.Values {
		sum += w * w
	}
	return sum
}

// Clone returns a deep copy of the vector.
func (v Vector) Clone() Vector {
	if v.IsEmpty() {
		return Vector{}
	}
	indices := make([]core.DimID, len(v.Indices))
	copy(indices, v.Indices)
	values := make([]float32, len(v.Values))
	copy(values, v.Values)
	return Vector{Indices: indices, Values: values}
}
