package source

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultBaseURL hosts the gzip archives under their original names.
const DefaultBaseURL = "https://ossci-datasets.s3.amazonaws.com/mnist/"

// HTTP downloads the gzip archives. When CacheDir is set an archive is saved
// there once and later opened through Dir, otherwise the response body is
// decompressed as it streams. With VerifyChecksums an archive is hashed before
// any of it is decompressed or cached.
type HTTP struct {
	BaseURL         string
	CacheDir        string
	VerifyChecksums bool
	Client          *retryablehttp.Client
}

// NewHTTP returns an HTTP source with a retrying client logging through logrus.
func NewHTTP(baseURL, cacheDir string) *HTTP {
	client := retryablehttp.NewClient()
	client.RetryMax = 4
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 10 * time.Second
	client.Logger = leveledLogger{log.StandardLogger()}

	return &HTTP{
		BaseURL:  baseURL,
		CacheDir: cacheDir,
		Client:   client,
	}
}

func (h *HTTP) url(res Resource) string {
	base := h.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + res.ArchiveName()
}

func (h *HTTP) Open(ctx context.Context, res Resource) (io.ReadCloser, error) {
	if h.CacheDir != "" {
		cached := Dir{Path: h.CacheDir, VerifyChecksums: h.VerifyChecksums}
		if _, err := os.Stat(filepath.Join(h.CacheDir, res.ArchiveName())); err == nil {
			return cached.Open(ctx, res)
		}
		if err := h.download(ctx, res); err != nil {
			return nil, err
		}
		return cached.Open(ctx, res)
	}

	body, err := h.get(ctx, res)
	if err != nil {
		return nil, err
	}
	if h.VerifyChecksums {
		if body, err = h.verified(res, body); err != nil {
			return nil, err
		}
	}
	rc, err := gunzip(body)
	if err != nil {
		body.Close()
		return nil, unavailable(res, h.url(res), err)
	}
	return rc, nil
}

func (h *HTTP) get(ctx context.Context, res Resource) (io.ReadCloser, error) {
	url := h.url(res)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, unavailable(res, url, err)
	}

	client := h.Client
	if client == nil {
		client = retryablehttp.NewClient()
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, unavailable(res, url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, unavailable(res, url, errors.Errorf("bad status: %s", resp.Status))
	}
	return resp.Body, nil
}

// verified reads the whole archive and checks its digest. The archives are
// small enough to hold in memory.
func (h *HTTP) verified(res Resource, body io.ReadCloser) (io.ReadCloser, error) {
	defer body.Close()

	archive, err := io.ReadAll(body)
	if err != nil {
		return nil, unavailable(res, h.url(res), errors.Wrap(err, "download"))
	}

	sum := sha256.Sum256(archive)
	if err := matchDigest(res, h.url(res), sum[:]); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(archive)), nil
}

// download stores the archive in CacheDir, writing to a temporary file first so
// an interrupted or rejected transfer never leaves an archive behind.
func (h *HTTP) download(ctx context.Context, res Resource) error {
	if err := os.MkdirAll(h.CacheDir, 0o755); err != nil {
		return unavailable(res, h.CacheDir, err)
	}

	body, err := h.get(ctx, res)
	if err != nil {
		return err
	}
	defer body.Close()

	log.WithFields(log.Fields{"url": h.url(res), "dir": h.CacheDir}).Info("Downloading archive")
	start := time.Now()

	tmp, err := os.CreateTemp(h.CacheDir, res.ArchiveName()+".*")
	if err != nil {
		return unavailable(res, h.CacheDir, err)
	}
	defer os.Remove(tmp.Name())

	digest := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, digest), body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return unavailable(res, h.url(res), errors.Wrap(err, "download"))
	}

	if h.VerifyChecksums {
		if err := matchDigest(res, h.url(res), digest.Sum(nil)); err != nil {
			return err
		}
	}

	target := filepath.Join(h.CacheDir, res.ArchiveName())
	if err := os.Rename(tmp.Name(), target); err != nil {
		return unavailable(res, target, err)
	}

	log.WithFields(log.Fields{"file": target, "bytes": n, "duration": time.Since(start)}).Info("Downloaded archive")
	return nil
}

// leveledLogger adapts logrus to retryablehttp.LeveledLogger.
type leveledLogger struct {
	l *log.Logger
}

func (l leveledLogger) fields(keysAndValues []interface{}) log.Fields {
	f := log.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.l.WithFields(l.fields(keysAndValues)).Error(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.l.WithFields(l.fields(keysAndValues)).Debug(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.l.WithFields(l.fields(keysAndValues)).Debug(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.l.WithFields(l.fields(keysAndValues)).Warn(msg)
}
