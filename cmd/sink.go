package cmd

import (
	"github.com/anskarl/swiftlearner/dataset"
	"github.com/anskarl/swiftlearner/source"
)

// Sink receives the composed splits of an export, one call per split.
type Sink[T any] interface {
	WriteSplit(split source.Split, examples []dataset.Example[T]) error
	Close() error
}
