package source

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipped(t *testing.T, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func readAll(t *testing.T, src Source, res Resource) []byte {
	t.Helper()
	rc, err := src.Open(context.Background(), res)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return b
}

func TestResourceNames(t *testing.T) {
	tests := []struct {
		res    Resource
		file   string
		header int
		index  int
	}{
		{TrainImages, "train-images-idx3-ubyte", 16, 0},
		{TrainLabels, "train-labels-idx1-ubyte", 8, 1},
		{TestImages, "t10k-images-idx3-ubyte", 16, 2},
		{TestLabels, "t10k-labels-idx1-ubyte", 8, 3},
	}

	for _, test := range tests {
		t.Run(test.res.String(), func(t *testing.T) {
			assert.Equal(t, test.file, test.res.FileName())
			assert.Equal(t, test.file+".gz", test.res.ArchiveName())
			assert.Equal(t, test.header, test.res.HeaderSize())
			assert.Equal(t, test.index, test.res.Index())
		})
	}
	require.Len(t, Resources(), NumResources)
}

func TestDir(t *testing.T) {
	dir := t.TempDir()
	raw := []byte{0, 0, 8, 1, 0, 0, 0, 2, 7, 3}
	require.NoError(t, os.WriteFile(filepath.Join(dir, TrainLabels.ArchiveName()), gzipped(t, raw), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, TestLabels.FileName()), raw, 0o644))

	src := Dir{Path: dir}

	t.Run("archive", func(t *testing.T) {
		require.Equal(t, raw, readAll(t, src, TrainLabels))
	})

	t.Run("uncompressed fallback", func(t *testing.T) {
		require.Equal(t, raw, readAll(t, src, TestLabels))
	})

	t.Run("missing", func(t *testing.T) {
		_, err := src.Open(context.Background(), TrainImages)
		require.Error(t, err)
		require.True(t, errors.Is(err, ErrUnavailable))

		var unavailableErr *UnavailableError
		require.True(t, errors.As(err, &unavailableErr))
		require.Equal(t, TrainImages, unavailableErr.Resource)
	})

	t.Run("checksum mismatch", func(t *testing.T) {
		verified := Dir{Path: dir, VerifyChecksums: true}
		_, err := verified.Open(context.Background(), TrainLabels)
		require.True(t, errors.Is(err, ErrUnavailable))
		require.True(t, errors.Is(err, ErrChecksumMismatch))
	})

	t.Run("corrupt archive", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, TestImages.ArchiveName()), []byte("not gzip"), 0o644))
		_, err := src.Open(context.Background(), TestImages)
		require.True(t, errors.Is(err, ErrUnavailable))
	})
}

func TestMemory(t *testing.T) {
	src := Memory{TrainLabels: {1, 2, 3}}
	require.Equal(t, []byte{1, 2, 3}, readAll(t, src, TrainLabels))

	_, err := src.Open(context.Background(), TestLabels)
	require.True(t, errors.Is(err, ErrUnavailable))
}

func TestFirst(t *testing.T) {
	src := First(Memory{}, Memory{TestLabels: {9}})
	require.Equal(t, []byte{9}, readAll(t, src, TestLabels))

	_, err := src.Open(context.Background(), TrainImages)
	require.True(t, errors.Is(err, ErrUnavailable))

	_, err = First().Open(context.Background(), TrainImages)
	require.True(t, errors.Is(err, ErrUnavailable))
}

// publishDigest makes archive the published archive of res for one test.
func publishDigest(t *testing.T, res Resource, archive []byte) {
	t.Helper()
	previous, had := archiveDigests[res]
	sum := sha256.Sum256(archive)
	archiveDigests[res] = hex.EncodeToString(sum[:])
	t.Cleanup(func() {
		if had {
			archiveDigests[res] = previous
		} else {
			delete(archiveDigests, res)
		}
	})
}

func TestHTTP(t *testing.T) {
	raw := []byte{0, 0, 8, 1, 0, 0, 0, 1, 4}
	archive := gzipped(t, raw)
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/"+TrainLabels.ArchiveName() {
			http.NotFound(w, r)
			return
		}
		w.Write(archive)
	}))
	defer server.Close()

	t.Run("streaming", func(t *testing.T) {
		src := NewHTTP(server.URL, "")
		require.Equal(t, raw, readAll(t, src, TrainLabels))
	})

	t.Run("cached", func(t *testing.T) {
		dir := t.TempDir()
		src := NewHTTP(server.URL+"/", dir)
		before := hits.Load()

		require.Equal(t, raw, readAll(t, src, TrainLabels))
		require.Equal(t, raw, readAll(t, src, TrainLabels))
		require.Equal(t, before+1, hits.Load())
		require.FileExists(t, filepath.Join(dir, TrainLabels.ArchiveName()))
	})

	t.Run("not found", func(t *testing.T) {
		src := NewHTTP(server.URL, "")
		_, err := src.Open(context.Background(), TestImages)
		require.True(t, errors.Is(err, ErrUnavailable))
	})

	t.Run("streaming checksum mismatch", func(t *testing.T) {
		src := NewHTTP(server.URL, "")
		src.VerifyChecksums = true

		_, err := src.Open(context.Background(), TrainLabels)
		require.True(t, errors.Is(err, ErrUnavailable))
		require.True(t, errors.Is(err, ErrChecksumMismatch))
	})

	t.Run("streaming verified", func(t *testing.T) {
		publishDigest(t, TrainLabels, archive)
		src := NewHTTP(server.URL, "")
		src.VerifyChecksums = true

		require.Equal(t, raw, readAll(t, src, TrainLabels))
	})
}

func TestHTTPRejectedArchiveIsNotCached(t *testing.T) {
	raw := []byte{0, 0, 8, 1, 0, 0, 0, 1, 4}
	good := gzipped(t, raw)
	bad := good[:len(good)-4]
	publishDigest(t, TrainLabels, good)

	var served atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if served.Add(1) == 1 {
			w.Write(bad)
			return
		}
		w.Write(good)
	}))
	defer server.Close()

	dir := t.TempDir()
	src := NewHTTP(server.URL, dir)
	src.VerifyChecksums = true

	_, err := src.Open(context.Background(), TrainLabels)
	require.True(t, errors.Is(err, ErrChecksumMismatch))
	require.NoFileExists(t, filepath.Join(dir, TrainLabels.ArchiveName()))

	require.Equal(t, raw, readAll(t, src, TrainLabels))
	require.Equal(t, int32(2), served.Load())
	require.FileExists(t, filepath.Join(dir, TrainLabels.ArchiveName()))
}
