// Package formats describes the binary artifacts produced by the asset
// pipeline and provides decoders for them.
//
// All artifacts are little-endian. Offsets are absolute file offsets unless
// noted otherwise.
package formats

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Decoding errors shared by all artifact formats.
var (
	ErrInvalidMagic       = errors.New("invalid magic")
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrTruncated          = errors.New("truncated data")
	ErrBadOffset          = errors.New("offset out of range")
	ErrMisaligned         = errors.New("misaligned record")
)

// reader performs bounds-checked little-endian reads from a byte slice.
type reader struct {
	data []byte
}

func (r reader) span(off, n int64) ([]byte, error) {
	if off < 0 || n < 0 || off+n > int64(len(r.data)) {
		return nil, fmt.Errorf("%w: need %d bytes at %d, have %d", ErrTruncated, n, off, len(r.data))
	}
	return r.data[off : off+n], nil
}

func (r reader) u32(off int64) (uint32, error) {
	b, err := r.span(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r reader) u64(off int64) (uint64, error) {
	b, err := r.span(off, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r reader) f32(off int64) (float32, error) {
	v, err := r.u32(off)
	return math.Float32frombits(v), err
}

func (r reader) magic(off int64, want string) error {
	b, err := r.span(off, int64(len(want)))
	if err != nil {
		return err
	}
	if string(b) != want {
		return fmt.Errorf("%w: expected %q, got %q", ErrInvalidMagic, want, b)
	}
	return nil
}

// table validates that count records of size bytes fit at off.
func (r reader) table(off, count, size int64) error {
	if off < 0 || off+count*size > int64(len(r.data)) {
		return fmt.Errorf("%w: %d records of %d bytes at %d (file is %d bytes)",
			ErrBadOffset, count, size, off, len(r.data))
	}
	return nil
}
