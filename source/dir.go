package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrChecksumMismatch is wrapped into the UnavailableError of an archive whose
// digest differs from the published one.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// SHA-256 digests of the published gzip archives.
var archiveDigests = map[Resource]string{
	TrainImages: "440fcabf73cc546fa21475e81ea370265605f56be210a4024d2ca8f203523609",
	TrainLabels: "3552534a0a558bbed6aed32b30c495cca23d567ec52cac8be1a0730e8010255c",
	TestImages:  "8d422c7b0a1c1c79245a5bcf07fe86e33eeafee792b84584aec276f5a2dbc4e6",
	TestLabels:  "f7ae60f92e00ec6debd23a6088c31dbd2371eca3ffa0defaefb259924204aec6",
}

// Dir reads the distribution from a local directory. For every resource it
// prefers the gzip archive and falls back to the uncompressed file.
type Dir struct {
	Path string
	// VerifyChecksums compares archives against the published digests before
	// decompressing them. Uncompressed files are never verified.
	VerifyChecksums bool
}

func (d Dir) Open(ctx context.Context, res Resource) (io.ReadCloser, error) {
	archive := filepath.Join(d.Path, res.ArchiveName())
	if _, err := os.Stat(archive); err == nil {
		return d.openArchive(res, archive)
	}

	plain := filepath.Join(d.Path, res.FileName())
	f, err := os.Open(plain)
	if err != nil {
		return nil, unavailable(res, d.Path, err)
	}

	log.WithFields(log.Fields{"resource": res, "file": plain}).Debug("Opened uncompressed file")
	return f, nil
}

func (d Dir) openArchive(res Resource, path string) (io.ReadCloser, error) {
	if d.VerifyChecksums {
		if err := verifyArchive(res, path); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, unavailable(res, path, err)
	}

	rc, err := gunzip(f)
	if err != nil {
		f.Close()
		return nil, unavailable(res, path, err)
	}

	log.WithFields(log.Fields{"resource": res, "file": path}).Debug("Opened archive")
	return rc, nil
}

func verifyArchive(res Resource, path string) error {
	if _, ok := archiveDigests[res]; !ok {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return unavailable(res, path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return unavailable(res, path, errors.Wrap(err, "hash archive"))
	}

	return matchDigest(res, path, h.Sum(nil))
}

// matchDigest fails with ErrChecksumMismatch when res has a published digest
// other than sum.
func matchDigest(res Resource, location string, sum []byte) error {
	want, ok := archiveDigests[res]
	if !ok {
		return nil
	}

	if got := hex.EncodeToString(sum); got != want {
		return unavailable(res, location, errors.Wrapf(ErrChecksumMismatch, "got %s, want %s", got, want))
	}
	return nil
}

type gzipReadCloser struct {
	*gzip.Reader
	underlying io.Closer
}

func (g gzipReadCloser) Close() error {
	err := g.Reader.Close()
	if cerr := g.underlying.Close(); err == nil {
		err = cerr
	}
	return err
}

// gunzip wraps rc so that closing the result closes both readers.
func gunzip(rc io.ReadCloser) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(rc)
	if err != nil {
		return nil, errors.Wrap(err, "gzip")
	}
	return gzipReadCloser{Reader: zr, underlying: rc}, nil
}
