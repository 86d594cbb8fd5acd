package idx

import "iter"

// Record is one flattened 28x28 grayscale image in row-major order. Records
// produced by Images always hold exactly ImageSize bytes.
type Record []byte

// Label is the digit class of the image at the same position.
type Label uint8

// ImageCount returns how many whole records payload contains.
func ImageCount(payload []byte) int {
	return len(payload) / ImageSize
}

// Images yields the payload in consecutive ImageSize chunks. A trailing chunk
// shorter than ImageSize is dropped. Yielded records alias payload and must
// not be modified.
func Images(payload []byte) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		n := ImageCount(payload)
		for i := 0; i < n; i++ {
			start := i * ImageSize
			if !yield(Record(payload[start : start+ImageSize : start+ImageSize])) {
				return
			}
		}
	}
}

// Labels yields one label per payload byte. Values are not range checked.
func Labels(payload []byte) iter.Seq[Label] {
	return func(yield func(Label) bool) {
		for _, b := range payload {
			if !yield(Label(b)) {
				return
			}
		}
	}
}
