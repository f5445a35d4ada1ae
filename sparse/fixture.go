package sparse

import (
	"math/rand"

	"github.com/hupe1980/sparsevec/core"
)

// Random returns a random sparse vector with 1..=maxDim nonzero entries,
// dimension indices drawn from [0, maxDim) and weights in [0, 1).
//
// Intended for tests and benchmarks that need realistic sparse data.
func Random(rnd *rand.Rand, maxDim int) Vector {
	n := rnd.Intn(maxDim) + 1
	return RandomWithSize(rnd, maxDim, n)
}

// RandomWithSize returns a random sparse vector with exactly n distinct
// dimensions drawn from [0, maxDim).
func RandomWithSize(rnd *rand.Rand, maxDim, n int) Vector {
	if n > maxDim {
		n = maxDim
	}

	seen := make(map[core.DimID]struct{}, n)
	indices := make([]core.DimID, 0, n)
	for len(indices) < n {
		d := core.DimID(rnd.Intn(maxDim))
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		indices = append(indices, d)
	}
	sortDims(indices)

	values := make([]float32, n)
	for i := range values {
		values[i] = rnd.Float32()
	}

	return MustNew(indices, values)
}

func sortDims(dims []core.DimID) {
	// Insertion sort; fixture vectors are small.
	for i := 1; i < len(dims); i++ {
		for j := i; j > 0 && dims[j] < dims[j-1]; j-- {
			dims[j], dims[j-1] = dims[j-1], dims[j]
		}
	}
}
