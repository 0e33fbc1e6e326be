package formats

import (
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
)

// Texture (TEXR) layout.
const (
	TextureMagic      = "TEXR"
	TextureVersion    = 0
	TextureHeaderSize = 32
	TextureDataAlign  = 8
)

// PixelFormat identifies the texel layout of a TEXR payload.
type PixelFormat uint32

// Pixel formats.
const (
	PixelFormatRGBA8 PixelFormat = 0 // 8-bit non-premultiplied RGBA
)

// BytesPerPixel returns the texel size in bytes.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case PixelFormatRGBA8:
		return 4
	default:
		return 0
	}
}

// Compression identifies how a TEXR payload is stored.
type Compression uint32

// Compression schemes.
const (
	CompressionNone Compression = 0
	CompressionZstd Compression = 1
)

// String returns the scheme name.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", uint32(c))
	}
}

// Texture is a decoded TEXR file. Pixels are always uncompressed.
type Texture struct {
	Width       uint32
	Height      uint32
	Format      PixelFormat
	Compression Compression
	StoredSize  uint32 // payload size on disk
	Pixels      []byte
}

// ParseTexture decodes a TEXR file.
func ParseTexture(data []byte) (*Texture, error) {
	r := reader{data}
	if err := r.magic(0, TextureMagic); err != nil {
		return nil, err
	}

	var hdr [7]uint32
	for i := range hdr {
		v, err := r.u32(4 + int64(i)*4)
		if err != nil {
			return nil, err
		}
		hdr[i] = v
	}
	if hdr[0] != TextureVersion {
		return nil, fmt.Errorf("%w: TEXR version %d", ErrUnsupportedVersion, hdr[0])
	}

	tex := &Texture{
		Width:       hdr[1],
		Height:      hdr[2],
		Format:      PixelFormat(hdr[3]),
		Compression: Compression(hdr[4]),
		StoredSize:  hdr[5],
	}
	bpp := tex.Format.BytesPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("%w: pixel format %d", ErrUnsupportedVersion, tex.Format)
	}

	dataOfs := int64(hdr[6])
	if dataOfs%TextureDataAlign != 0 {
		return nil, fmt.Errorf("%w: pixel data at %d", ErrMisaligned, dataOfs)
	}
	stored, err := r.span(dataOfs, int64(tex.StoredSize))
	if err != nil {
		return nil, fmt.Errorf("pixel data: %w", err)
	}

	switch tex.Compression {
	case CompressionNone:
		tex.Pixels = stored
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		defer dec.Close()
		tex.Pixels, err = dec.DecodeAll(stored, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress pixel data: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: compression %s", ErrUnsupportedVersion, tex.Compression)
	}

	want := int64(tex.Width) * int64(tex.Height) * int64(bpp)
	if int64(len(tex.Pixels)) != want {
		return nil, fmt.Errorf("%w: %d pixel bytes for %dx%d", ErrTruncated, len(tex.Pixels), tex.Width, tex.Height)
	}
	return tex, nil
}

// ParseTextureFile decodes a TEXR file from disk.
func ParseTextureFile(path string) (*Texture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading TEXR file: %w", err)
	}
	return ParseTexture(data)
}
