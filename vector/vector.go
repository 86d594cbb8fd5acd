// Package vector projects decoded image records into numeric feature vectors.
package vector

import (
	"iter"

	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/anskarl/swiftlearner/idx"
)

// Projector maps a single record element-wise into a vector.
type Projector[T any] func(idx.Record) []T

// Float32 keeps the raw magnitude of every pixel, range [0,255].
func Float32(r idx.Record) []float32 {
	return magnitudes[float32](r)
}

// Float64 is Float32 at double precision.
func Float64(r idx.Record) []float64 {
	return magnitudes[float64](r)
}

// Binary maps a pixel to 1 if it is above idx.BinarizationThreshold and to 0
// otherwise.
func Binary(r idx.Record) []int {
	out := make([]int, len(r))
	for i, b := range r {
		if b > idx.BinarizationThreshold {
			out[i] = 1
		}
	}
	return out
}

func magnitudes[T constraints.Float](r idx.Record) []T {
	out := make([]T, len(r))
	for i, b := range r {
		out[i] = T(b)
	}
	return out
}

// Map applies p lazily to every record of records.
func Map[T any](records iter.Seq[idx.Record], p Projector[T]) iter.Seq[[]T] {
	return func(yield func([]T) bool) {
		for r := range records {
			if !yield(p(r)) {
				return
			}
		}
	}
}

// Blas32 wraps v as a unit-stride gonum vector without copying.
func Blas32(v []float32) blas32.Vector {
	return blas32.Vector{N: len(v), Inc: 1, Data: v}
}

// ToFloat32 converts any projected vector to float32, the element type vector
// stores such as HDF5 files and Weaviate expect.
func ToFloat32[T constraints.Integer | constraints.Float](v []T) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
