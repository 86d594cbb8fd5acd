// Package source resolves the four MNIST files to decompressed byte streams.
//
// Sources are the only place where decoding can fail: a missing file, a bad
// download or a corrupt archive is reported as an *UnavailableError, which
// matches ErrUnavailable under errors.Is.
package source

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/anskarl/swiftlearner/idx"
)

type Split int

const (
	Train Split = iota
	Test
)

func (s Split) String() string {
	if s == Test {
		return "test"
	}
	return "train"
}

type Kind int

const (
	Images Kind = iota
	Labels
)

func (k Kind) String() string {
	if k == Labels {
		return "labels"
	}
	return "images"
}

// Resource identifies one of the four files of the distribution.
type Resource struct {
	Split Split
	Kind  Kind
}

var (
	TrainImages = Resource{Train, Images}
	TrainLabels = Resource{Train, Labels}
	TestImages  = Resource{Test, Images}
	TestLabels  = Resource{Test, Labels}
)

// NumResources is the number of distinct resources, see Resource.Index.
const NumResources = 4

// Resources lists every resource in Index order.
func Resources() []Resource {
	return []Resource{TrainImages, TrainLabels, TestImages, TestLabels}
}

// Index returns a dense position in [0, NumResources).
func (r Resource) Index() int {
	return int(r.Split)*2 + int(r.Kind)
}

func (r Resource) String() string {
	return fmt.Sprintf("%s-%s", r.Split, r.Kind)
}

// FileName is the uncompressed file name used by the original distribution.
func (r Resource) FileName() string {
	prefix := "train"
	if r.Split == Test {
		prefix = "t10k"
	}
	if r.Kind == Labels {
		return prefix + "-labels-idx1-ubyte"
	}
	return prefix + "-images-idx3-ubyte"
}

// ArchiveName is FileName with the gzip extension.
func (r Resource) ArchiveName() string {
	return r.FileName() + ".gz"
}

// HeaderSize is the number of header bytes preceding the payload.
func (r Resource) HeaderSize() int {
	if r.Kind == Labels {
		return idx.LabelHeaderSize
	}
	return idx.ImageHeaderSize
}

// Source opens a decompressed byte stream for a resource. Callers read the
// stream once and close it.
type Source interface {
	Open(ctx context.Context, res Resource) (io.ReadCloser, error)
}

// ErrUnavailable is matched by every error a Source reports.
var ErrUnavailable = errors.New("resource unavailable")

// UnavailableError describes why a resource could not be opened.
type UnavailableError struct {
	Resource Resource
	Location string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("mnist %s unavailable at %q: %v", e.Resource, e.Location, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

func unavailable(res Resource, location string, err error) error {
	return &UnavailableError{Resource: res, Location: location, Err: err}
}

type first []Source

// First tries each source in order and returns the first stream that opens.
// Only unavailability falls through; the last such error is returned when no
// source has the resource.
func First(sources ...Source) Source {
	return first(sources)
}

func (f first) Open(ctx context.Context, res Resource) (io.ReadCloser, error) {
	var lastErr error = unavailable(res, "", errors.New("no sources configured"))
	for _, s := range f {
		rc, err := s.Open(ctx, res)
		if err == nil {
			return rc, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
