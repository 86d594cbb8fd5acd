// Package idx decodes the IDX container format used by the MNIST distribution.
//
// Both image and label files start with a fixed big-endian header followed by one
// byte per pixel or per label. Decoding is permissive: headers are never validated
// and a payload that does not divide into whole records loses its trailing bytes.
package idx

import "encoding/binary"

const (
	ImageWidth  = 28
	ImageHeight = 28
	ImageSize   = ImageWidth * ImageHeight

	TrainSize = 60000
	TestSize  = 10000

	BinarizationThreshold = 127

	// magic, count, rows, cols
	ImageHeaderSize = 16
	// magic, count
	LabelHeaderSize = 8
)

// StripHeader drops the first offset bytes of raw. The returned payload shares
// memory with raw. A raw slice shorter than the header yields an empty payload.
func StripHeader(raw []byte, offset int) []byte {
	if offset < 0 {
		offset = 0
	}
	if len(raw) < offset {
		return raw[len(raw):]
	}
	return raw[offset:]
}

// ImageHeader holds the fields of an image file header as stored, without
// any check that they describe the payload.
type ImageHeader struct {
	Magic uint32 `json:"magic"`
	Count uint32 `json:"count"`
	Rows  uint32 `json:"rows"`
	Cols  uint32 `json:"cols"`
}

// LabelHeader holds the fields of a label file header.
type LabelHeader struct {
	Magic uint32 `json:"magic"`
	Count uint32 `json:"count"`
}

// ParseImageHeader reads the header fields from the start of raw. ok is false
// when raw is too short to hold a full header.
func ParseImageHeader(raw []byte) (h ImageHeader, ok bool) {
	if len(raw) < ImageHeaderSize {
		return h, false
	}
	h.Magic = binary.BigEndian.Uint32(raw[0:4])
	h.Count = binary.BigEndian.Uint32(raw[4:8])
	h.Rows = binary.BigEndian.Uint32(raw[8:12])
	h.Cols = binary.BigEndian.Uint32(raw[12:16])
	return h, true
}

// ParseLabelHeader is the label file counterpart of ParseImageHeader.
func ParseLabelHeader(raw []byte) (h LabelHeader, ok bool) {
	if len(raw) < LabelHeaderSize {
		return h, false
	}
	h.Magic = binary.BigEndian.Uint32(raw[0:4])
	h.Count = binary.BigEndian.Uint32(raw[4:8])
	return h, true
}
