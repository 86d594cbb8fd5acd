package dataset

import (
	"context"
	"io"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/anskarl/swiftlearner/idx"
	"github.com/anskarl/swiftlearner/source"
	"github.com/anskarl/swiftlearner/vector"
)

// LoaderConfig carries the optional collaborators of a Loader.
type LoaderConfig struct {
	Logger  logrus.FieldLogger
	Metrics *Metrics
}

// Loader reads each of the four MNIST resources at most once and derives every
// projection and pairing from the cached bytes. It is safe for concurrent use.
type Loader struct {
	src     source.Source
	log     logrus.FieldLogger
	metrics *Metrics
	cache   [source.NumResources]cached
}

type cached struct {
	mu  sync.Mutex
	raw []byte
	ok  bool
}

func NewLoader(src source.Source, cfg LoaderConfig) *Loader {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Loader{src: src, log: logger, metrics: cfg.Metrics}
}

// raw returns the full decompressed file, header included. A successful read
// is cached for the lifetime of the loader; a failed one is not, so callers
// may retry.
func (l *Loader) raw(ctx context.Context, res source.Resource) ([]byte, error) {
	c := &l.cache[res.Index()]
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ok {
		l.metrics.observeHit(res)
		return c.raw, nil
	}

	start := time.Now()
	rc, err := l.src.Open(ctx, res)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, &source.UnavailableError{Resource: res, Err: errors.Wrap(err, "read")}
	}
	took := time.Since(start)

	records := len(idx.StripHeader(raw, res.HeaderSize()))
	if res.Kind == source.Images {
		records /= idx.ImageSize
	}

	l.metrics.observeLoad(res, len(raw), records, took)
	l.log.WithFields(logrus.Fields{
		"resource": res.String(),
		"bytes":    len(raw),
		"records":  records,
		"duration": took,
	}).Debug("Decoded resource")

	c.raw, c.ok = raw, true
	return raw, nil
}

func (l *Loader) payload(ctx context.Context, res source.Resource) ([]byte, error) {
	raw, err := l.raw(ctx, res)
	if err != nil {
		return nil, err
	}
	return idx.StripHeader(raw, res.HeaderSize()), nil
}

// Warm reads all four resources so later calls never touch the source.
func (l *Loader) Warm(ctx context.Context) error {
	for _, res := range source.Resources() {
		if _, err := l.raw(ctx, res); err != nil {
			return err
		}
	}
	return nil
}

// Images returns the decoded image records of a split.
func (l *Loader) Images(ctx context.Context, split source.Split) (iter.Seq[idx.Record], error) {
	payload, err := l.payload(ctx, source.Resource{Split: split, Kind: source.Images})
	if err != nil {
		return nil, err
	}
	return idx.Images(payload), nil
}

// Labels returns the decoded labels of a split.
func (l *Loader) Labels(ctx context.Context, split source.Split) (iter.Seq[idx.Label], error) {
	payload, err := l.payload(ctx, source.Resource{Split: split, Kind: source.Labels})
	if err != nil {
		return nil, err
	}
	return idx.Labels(payload), nil
}

// Headers reports the header fields of a split as stored in its files. ok is
// false for a file too short to hold its header.
func (l *Loader) Headers(ctx context.Context, split source.Split) (img idx.ImageHeader, lbl idx.LabelHeader, ok bool, err error) {
	rawImages, err := l.raw(ctx, source.Resource{Split: split, Kind: source.Images})
	if err != nil {
		return img, lbl, false, err
	}
	rawLabels, err := l.raw(ctx, source.Resource{Split: split, Kind: source.Labels})
	if err != nil {
		return img, lbl, false, err
	}
	img, imgOK := idx.ParseImageHeader(rawImages)
	lbl, lblOK := idx.ParseLabelHeader(rawLabels)
	return img, lbl, imgOK && lblOK, nil
}

// Examples lazily pairs the labels of a split with projected images, bounded
// to n pairs.
func Examples[T any](ctx context.Context, l *Loader, split source.Split, p vector.Projector[T], n int) (iter.Seq[Example[T]], error) {
	labels, err := l.Labels(ctx, split)
	if err != nil {
		return nil, err
	}
	images, err := l.Images(ctx, split)
	if err != nil {
		return nil, err
	}
	return Take(Pair(labels, vector.Map(images, p)), n), nil
}

// Compose materializes both splits in their original order.
func Compose[T any](ctx context.Context, l *Loader, p vector.Projector[T], opts Options) (TrainTest[T], error) {
	train, err := Examples(ctx, l, source.Train, p, opts.Samples)
	if err != nil {
		return TrainTest[T]{}, err
	}
	test, err := Examples(ctx, l, source.Test, p, opts.Samples)
	if err != nil {
		return TrainTest[T]{}, err
	}
	return TrainTest[T]{Train: slices.Collect(train), Test: slices.Collect(test)}, nil
}

// ComposeShuffled is Compose with the bounded training split permuted by
// opts.Seed. The test split keeps its original order.
func ComposeShuffled[T any](ctx context.Context, l *Loader, p vector.Projector[T], opts Options) (TrainTest[T], error) {
	tt, err := Compose(ctx, l, p, opts)
	if err != nil {
		return tt, err
	}
	tt.Train = Shuffle(tt.Train, opts.Seed)
	return tt, nil
}

func (l *Loader) Float32(ctx context.Context, opts Options) (TrainTest[float32], error) {
	return Compose(ctx, l, vector.Float32, opts)
}

func (l *Loader) Float64(ctx context.Context, opts Options) (TrainTest[float64], error) {
	return Compose(ctx, l, vector.Float64, opts)
}

func (l *Loader) Binary(ctx context.Context, opts Options) (TrainTest[int], error) {
	return Compose(ctx, l, vector.Binary, opts)
}

func (l *Loader) ShuffledFloat32(ctx context.Context, opts Options) (TrainTest[float32], error) {
	return ComposeShuffled(ctx, l, vector.Float32, opts)
}

func (l *Loader) ShuffledFloat64(ctx context.Context, opts Options) (TrainTest[float64], error) {
	return ComposeShuffled(ctx, l, vector.Float64, opts)
}

func (l *Loader) ShuffledBinary(ctx context.Context, opts Options) (TrainTest[int], error) {
	return ComposeShuffled(ctx, l, vector.Binary, opts)
}
