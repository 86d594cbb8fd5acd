package dataset

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anskarl/swiftlearner/idx"
)

func labelsOf[T any](examples []Example[T]) []idx.Label {
	out := make([]idx.Label, len(examples))
	for i, e := range examples {
		out[i] = e.Label
	}
	return out
}

func TestPair(t *testing.T) {
	labels := slices.Values([]idx.Label{5, 0, 4, 1, 9})

	t.Run("positional", func(t *testing.T) {
		vectors := slices.Values([][]int{{0}, {1}, {2}, {3}, {4}})
		pairs := slices.Collect(Pair(labels, vectors))

		require.Equal(t, []idx.Label{5, 0, 4, 1, 9}, labelsOf(pairs))
		for i, p := range pairs {
			require.Equal(t, []int{i}, p.Vector)
		}
	})

	t.Run("fewer vectors", func(t *testing.T) {
		vectors := slices.Values([][]int{{0}, {1}, {2}})
		require.Len(t, slices.Collect(Pair(labels, vectors)), 3)
	})

	t.Run("fewer labels", func(t *testing.T) {
		vectors := slices.Values(make([][]int, 8))
		require.Len(t, slices.Collect(Pair(labels, vectors)), 5)
	})
}

func TestTake(t *testing.T) {
	seq := slices.Values([]int{10, 11, 12, 13, 14})

	tests := []struct {
		n    int
		want []int
	}{
		{2, []int{10, 11}},
		{5, []int{10, 11, 12, 13, 14}},
		{60000, []int{10, 11, 12, 13, 14}},
		{0, nil},
		{-1, nil},
	}

	for _, test := range tests {
		got := slices.Collect(Take(seq, test.n))
		require.Equal(t, test.want, got, "n=%d", test.n)
		require.Len(t, got, min(max(test.n, 0), 5))
	}
}

func TestShuffle(t *testing.T) {
	examples := make([]Example[int], 100)
	for i := range examples {
		examples[i] = Example[int]{Label: idx.Label(i % 10), Vector: []int{i}}
	}
	original := slices.Clone(examples)

	a := Shuffle(examples, Seed(42))
	b := Shuffle(examples, Seed(42))
	c := Shuffle(examples, Seed(7))

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Equal(t, original, examples, "input must not be reordered")
	require.ElementsMatch(t, examples, a)
	require.NotEqual(t, examples, a)

	require.ElementsMatch(t, examples, Shuffle(examples, nil))
	require.Empty(t, Shuffle([]Example[int]{}, Seed(1)))
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	require.Equal(t, idx.TrainSize, opts.Samples)
	require.Nil(t, opts.Seed)
}
