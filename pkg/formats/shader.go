package formats

import (
	"fmt"
	"math/bits"
	"os"
)

// Shader permutation library (RDHS) layout.
const (
	ShaderMagic           = "RDHS"
	ShaderVersion         = 1
	ShaderSectionMagic    = "LTEM"
	ShaderHeaderSize      = 16 // magic, version, section magic, permutation count
	PermutationHeaderSize = 24 // mask (8), payload length, reserved, next offset, padding
	PermutationAlign      = 8
)

// Permutation is one decoded permutation record.
type Permutation struct {
	Offset  int64  // file offset of the record's mask field
	Mask    uint64 // selected feature flags, by source bit index
	Stride  uint32 // distance to the next record (or end of file)
	Payload []byte
}

// FlagCount returns the number of feature flags enabled in this permutation.
func (p Permutation) FlagCount() int {
	return bits.OnesCount64(p.Mask)
}

// ShaderLibrary is a decoded permutation container.
type ShaderLibrary struct {
	Version      uint32
	Permutations []Permutation
}

// Select returns the first permutation whose flags are all enabled in
// active. Records are stored most-specific first, so this is the best match;
// the flagless permutation matches anything.
func (l *ShaderLibrary) Select(active uint64) (Permutation, bool) {
	for _, p := range l.Permutations {
		if p.Mask&^active == 0 {
			return p, true
		}
	}
	return Permutation{}, false
}

// ParseShaderLibrary decodes an RDHS file, following the next-record chain.
func ParseShaderLibrary(data []byte) (*ShaderLibrary, error) {
	r := reader{data}
	if err := r.magic(0, ShaderMagic); err != nil {
		return nil, err
	}
	version, err := r.u32(4)
	if err != nil {
		return nil, err
	}
	if version != ShaderVersion {
		return nil, fmt.Errorf("%w: RDHS version %d", ErrUnsupportedVersion, version)
	}
	if err := r.magic(8, ShaderSectionMagic); err != nil {
		return nil, err
	}
	count, err := r.u32(12)
	if err != nil {
		return nil, err
	}

	lib := &ShaderLibrary{Version: version, Permutations: make([]Permutation, 0, min(count, 1<<16))}
	off := int64(ShaderHeaderSize)
	for i := uint32(0); i < count; i++ {
		if (off-ShaderHeaderSize)%PermutationAlign != 0 {
			return nil, fmt.Errorf("%w: permutation %d at %d", ErrMisaligned, i, off)
		}
		hdr, err := r.span(off, PermutationHeaderSize)
		if err != nil {
			return nil, fmt.Errorf("permutation %d header: %w", i, err)
		}
		hr := reader{hdr}
		mask, _ := hr.u64(0)
		payloadLen, _ := hr.u32(8)
		stride, _ := hr.u32(16)

		payload, err := r.span(off+PermutationHeaderSize, int64(payloadLen))
		if err != nil {
			return nil, fmt.Errorf("permutation %d payload: %w", i, err)
		}
		if int64(stride) < PermutationHeaderSize+int64(payloadLen) || off+int64(stride) > int64(len(data)) {
			return nil, fmt.Errorf("%w: permutation %d stride %d", ErrBadOffset, i, stride)
		}

		lib.Permutations = append(lib.Permutations, Permutation{
			Offset:  off,
			Mask:    mask,
			Stride:  stride,
			Payload: payload,
		})
		off += int64(stride)
	}

	if off != int64(len(data)) {
		return nil, fmt.Errorf("%w: %d trailing bytes after last permutation", ErrBadOffset, int64(len(data))-off)
	}
	return lib, nil
}

// ParseShaderLibraryFile decodes an RDHS file from disk.
func ParseShaderLibraryFile(path string) (*ShaderLibrary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading RDHS file: %w", err)
	}
	return ParseShaderLibrary(data)
}
