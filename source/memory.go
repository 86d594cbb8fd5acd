package source

import (
	"bytes"
	"context"
	"io"

	"github.com/pkg/errors"
)

// Memory serves already decompressed files held in memory, header included.
type Memory map[Resource][]byte

func (m Memory) Open(ctx context.Context, res Resource) (io.ReadCloser, error) {
	raw, ok := m[res]
	if !ok {
		return nil, unavailable(res, "memory", errors.New("not loaded"))
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}
