package dataset

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anskarl/swiftlearner/idx"
	"github.com/anskarl/swiftlearner/source"
	"github.com/anskarl/swiftlearner/vector"
)

func imageFile(pixels ...byte) []byte {
	count := len(pixels)
	raw := make([]byte, idx.ImageHeaderSize, idx.ImageHeaderSize+count*idx.ImageSize)
	binary.BigEndian.PutUint32(raw[0:4], 2051)
	binary.BigEndian.PutUint32(raw[4:8], uint32(count))
	binary.BigEndian.PutUint32(raw[8:12], idx.ImageHeight)
	binary.BigEndian.PutUint32(raw[12:16], idx.ImageWidth)
	for _, p := range pixels {
		img := make([]byte, idx.ImageSize)
		for j := range img {
			img[j] = p
		}
		raw = append(raw, img...)
	}
	return raw
}

func labelFile(labels ...byte) []byte {
	raw := make([]byte, idx.LabelHeaderSize)
	binary.BigEndian.PutUint32(raw[0:4], 2049)
	binary.BigEndian.PutUint32(raw[4:8], uint32(len(labels)))
	return append(raw, labels...)
}

// each image is filled with a single value so pairing can be checked
// through the first pixel
func fixture() source.Memory {
	return source.Memory{
		source.TrainImages: imageFile(10, 20, 30, 140, 250),
		source.TrainLabels: labelFile(5, 0, 4, 1, 9),
		source.TestImages:  imageFile(1, 200, 3),
		source.TestLabels:  labelFile(7, 2, 1),
	}
}

type countingSource struct {
	src   source.Source
	opens [source.NumResources]atomic.Int32
}

func (c *countingSource) Open(ctx context.Context, res source.Resource) (io.ReadCloser, error) {
	c.opens[res.Index()].Add(1)
	return c.src.Open(ctx, res)
}

func TestComposeScenario(t *testing.T) {
	l := NewLoader(fixture(), LoaderConfig{})

	tt, err := l.Float32(context.Background(), DefaultOptions())
	require.NoError(t, err)

	require.Equal(t, []idx.Label{5, 0, 4, 1, 9}, labelsOf(tt.Train))
	for i, want := range []float32{10, 20, 30, 140, 250} {
		require.Len(t, tt.Train[i].Vector, idx.ImageSize)
		require.Equal(t, want, tt.Train[i].Vector[0])
	}
	require.Equal(t, []idx.Label{7, 2, 1}, labelsOf(tt.Test))
}

func TestComposeBounded(t *testing.T) {
	l := NewLoader(fixture(), LoaderConfig{})

	tt, err := l.Binary(context.Background(), Options{Samples: 2})
	require.NoError(t, err)
	require.Equal(t, []idx.Label{5, 0}, labelsOf(tt.Train))
	require.Equal(t, []idx.Label{7, 2}, labelsOf(tt.Test))

	tt, err = l.Binary(context.Background(), Options{Samples: idx.TrainSize})
	require.NoError(t, err)
	require.Len(t, tt.Train, 5)
	require.Len(t, tt.Test, 3)
	require.Equal(t, 1, tt.Test[1].Vector[0])
	require.Equal(t, 0, tt.Test[0].Vector[0])
}

func TestComposeLengthMismatch(t *testing.T) {
	src := fixture()
	src[source.TrainLabels] = labelFile(5, 0, 4)
	// a trailing partial image is dropped
	src[source.TestImages] = append(imageFile(1, 2), make([]byte, idx.ImageSize/2)...)

	tt, err := NewLoader(src, LoaderConfig{}).Float64(context.Background(), DefaultOptions())
	require.NoError(t, err)
	require.Len(t, tt.Train, 3)
	require.Len(t, tt.Test, 2)
}

func TestShuffledCompositions(t *testing.T) {
	l := NewLoader(fixture(), LoaderConfig{})
	ctx := context.Background()
	opts := Options{Samples: 4, Seed: Seed(3)}

	plain, err := l.Float64(ctx, opts)
	require.NoError(t, err)

	first, err := l.ShuffledFloat64(ctx, opts)
	require.NoError(t, err)
	second, err := l.ShuffledFloat64(ctx, opts)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.ElementsMatch(t, plain.Train, first.Train)
	require.Equal(t, plain.Test, first.Test)

	f32, err := l.ShuffledFloat32(ctx, opts)
	require.NoError(t, err)
	require.Len(t, f32.Train, 4)

	bin, err := l.ShuffledBinary(ctx, Options{Samples: 5})
	require.NoError(t, err)
	require.ElementsMatch(t, []idx.Label{5, 0, 4, 1, 9}, labelsOf(bin.Train))
}

func TestLoaderDecodesOnce(t *testing.T) {
	src := &countingSource{src: fixture()}
	metrics := NewMetrics(prometheus.NewRegistry())
	l := NewLoader(src, LoaderConfig{Metrics: metrics})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Float32(ctx, DefaultOptions())
			assert.NoError(t, err)
			_, err = l.Binary(ctx, DefaultOptions())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for _, res := range source.Resources() {
		require.EqualValues(t, 1, src.opens[res.Index()].Load(), res.String())
	}

	require.Equal(t, float64(5), testutil.ToFloat64(metrics.RecordsDecoded.WithLabelValues(source.TrainImages.String())))
	require.Equal(t, float64(len(fixture()[source.TestLabels])), testutil.ToFloat64(metrics.BytesRead.WithLabelValues(source.TestLabels.String())))
	require.Equal(t, float64(15), testutil.ToFloat64(metrics.CacheHits.WithLabelValues(source.TrainImages.String())))
}

func TestLoaderUnavailable(t *testing.T) {
	src := fixture()
	delete(src, source.TestImages)
	l := NewLoader(src, LoaderConfig{})

	_, err := l.Float32(context.Background(), DefaultOptions())
	require.Error(t, err)
	require.True(t, errors.Is(err, source.ErrUnavailable))

	// failures are not cached
	src[source.TestImages] = imageFile(1)
	tt, err := l.Float32(context.Background(), DefaultOptions())
	require.NoError(t, err)
	require.Len(t, tt.Test, 1)
}

func TestLoaderHeaders(t *testing.T) {
	l := NewLoader(fixture(), LoaderConfig{})
	img, lbl, ok, err := l.Headers(context.Background(), source.Train)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(5), img.Count)
	require.Equal(t, uint32(2049), lbl.Magic)
	require.NoError(t, l.Warm(context.Background()))
}

func TestExamplesCustomProjector(t *testing.T) {
	l := NewLoader(fixture(), LoaderConfig{})
	firstPixel := vector.Projector[byte](func(r idx.Record) []byte { return []byte{r[0]} })

	seq, err := Examples(context.Background(), l, source.Test, firstPixel, 10)
	require.NoError(t, err)

	var got []byte
	for e := range seq {
		got = append(got, e.Vector[0])
	}
	require.Equal(t, []byte{1, 200, 3}, got)
}
