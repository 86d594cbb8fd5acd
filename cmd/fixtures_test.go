package cmd

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anskarl/swiftlearner/dataset"
	"github.com/anskarl/swiftlearner/idx"
	"github.com/anskarl/swiftlearner/source"
)

// imageFile builds an image file holding one image per value, every pixel
// of the image set to that value.
func imageFile(pixels ...byte) []byte {
	raw := make([]byte, idx.ImageHeaderSize, idx.ImageHeaderSize+len(pixels)*idx.ImageSize)
	binary.BigEndian.PutUint32(raw[0:], 2051)
	binary.BigEndian.PutUint32(raw[4:], uint32(len(pixels)))
	binary.BigEndian.PutUint32(raw[8:], uint32(idx.ImageHeight))
	binary.BigEndian.PutUint32(raw[12:], uint32(idx.ImageWidth))
	for _, p := range pixels {
		raw = append(raw, bytes.Repeat([]byte{p}, idx.ImageSize)...)
	}
	return raw
}

func labelFile(labels ...byte) []byte {
	raw := make([]byte, idx.LabelHeaderSize, idx.LabelHeaderSize+len(labels))
	binary.BigEndian.PutUint32(raw[0:], 2049)
	binary.BigEndian.PutUint32(raw[4:], uint32(len(labels)))
	return append(raw, labels...)
}

func fixture() source.Memory {
	return source.Memory{
		source.TrainImages: imageFile(10, 20, 30, 140, 250),
		source.TrainLabels: labelFile(5, 0, 4, 1, 9),
		source.TestImages:  imageFile(1, 200, 3),
		source.TestLabels:  labelFile(7, 2, 1),
	}
}

func newTestLoader() *dataset.Loader {
	return dataset.NewLoader(fixture(), dataset.LoaderConfig{})
}

// writeDataDir stores files uncompressed under their canonical names.
func writeDataDir(t *testing.T, files source.Memory) string {
	dir := t.TempDir()
	for res, raw := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, res.FileName()), raw, 0o644))
	}
	return dir
}
