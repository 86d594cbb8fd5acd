// Package dataset pairs decoded MNIST labels with projected images.
//
// Composition is pull based: Pair and Take wrap iter.Seq values and do no
// work until ranged over. Only Shuffle needs the bounded pairs materialized.
package dataset

import (
	"iter"
	"math/rand/v2"
	"slices"

	"github.com/anskarl/swiftlearner/idx"
)

// Example is one labeled feature vector.
type Example[T any] struct {
	Label  idx.Label `json:"label"`
	Vector []T       `json:"vector"`
}

// TrainTest holds the two bounded splits of a composition.
type TrainTest[T any] struct {
	Train []Example[T]
	Test  []Example[T]
}

// Options bounds and orders a composition.
type Options struct {
	// Samples bounds each split independently. Asking for more pairs than a
	// split holds returns what is there.
	Samples int
	// Seed fixes the training permutation of the shuffled compositions. A nil
	// Seed draws a fresh one per call.
	Seed *uint64
}

// DefaultOptions requests the full training split, which is also the bound
// applied to the test split.
func DefaultOptions() Options {
	return Options{Samples: idx.TrainSize}
}

// Pair zips labels and vectors by position and stops at the shorter input.
func Pair[T any](labels iter.Seq[idx.Label], vectors iter.Seq[[]T]) iter.Seq[Example[T]] {
	return func(yield func(Example[T]) bool) {
		nextVector, stop := iter.Pull(vectors)
		defer stop()

		for label := range labels {
			v, ok := nextVector()
			if !ok {
				return
			}
			if !yield(Example[T]{Label: label, Vector: v}) {
				return
			}
		}
	}
}

// Take yields at most the first n elements of seq.
func Take[T any](seq iter.Seq[T], n int) iter.Seq[T] {
	return func(yield func(T) bool) {
		if n <= 0 {
			return
		}
		taken := 0
		for v := range seq {
			if !yield(v) {
				return
			}
			taken++
			if taken == n {
				return
			}
		}
	}
}

// Shuffle returns a uniformly permuted copy of examples. The generator is
// built from seed alone, so equal seeds give equal orders.
func Shuffle[T any](examples []T, seed *uint64) []T {
	out := slices.Clone(examples)
	newRand(seed).Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

func newRand(seed *uint64) *rand.Rand {
	if seed == nil {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(*seed, *seed))
}

// Seed is a convenience for filling Options.Seed.
func Seed(s uint64) *uint64 {
	return &s
}
