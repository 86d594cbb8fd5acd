package cmd

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/anskarl/swiftlearner/dataset"
	"github.com/anskarl/swiftlearner/source"
)

type jsonlRow[T any] struct {
	Split string `json:"split"`
	dataset.Example[T]
}

// JSONLSink writes one JSON object per example, train rows first.
type JSONLSink[T any] struct {
	w   io.WriteCloser
	buf *bufio.Writer
	enc *json.Encoder
}

func NewJSONLSink[T any](w io.WriteCloser) *JSONLSink[T] {
	buf := bufio.NewWriter(w)
	return &JSONLSink[T]{w: w, buf: buf, enc: json.NewEncoder(buf)}
}

func (s *JSONLSink[T]) WriteSplit(split source.Split, examples []dataset.Example[T]) error {
	for i, e := range examples {
		if err := s.enc.Encode(jsonlRow[T]{Split: split.String(), Example: e}); err != nil {
			return errors.Wrapf(err, "write %s example %d", split, i)
		}

		if (i+1)%10000 == 0 {
			log.Printf("Exported %d/%d %s rows", i+1, len(examples), split)
		}
	}
	return nil
}

func (s *JSONLSink[T]) Close() error {
	if err := s.buf.Flush(); err != nil {
		s.w.Close()
		return errors.Wrap(err, "flush jsonl output")
	}
	return s.w.Close()
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
