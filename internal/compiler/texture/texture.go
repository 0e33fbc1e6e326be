// Package texture converts TGA, BMP and PNG images into TEXR artifacts.
package texture

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ftrvxmtrx/tga"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/Faultbox/midgard-assets/internal/compiler"
	"github.com/Faultbox/midgard-assets/internal/logger"
	"github.com/Faultbox/midgard-assets/pkg/binwriter"
	"github.com/Faultbox/midgard-assets/pkg/formats"
)

var decoders = map[string]func(io.Reader) (image.Image, error){
	".tga": tga.Decode,
	".bmp": bmp.Decode,
	".png": png.Decode,
}

// Compiler builds TEXR textures.
type Compiler struct {
	compress bool
	level    zstd.EncoderLevel
	maxSize  int
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithCompression stores pixel data zstd-compressed at the named level
// ("fastest", "default", "better" or "best").
func WithCompression(level string) Option {
	return func(c *Compiler) {
		c.compress = true
		if ok, l := zstd.EncoderLevelFromString(level); ok {
			c.level = l
		}
	}
}

// WithMaxSize scales images down so neither side exceeds n pixels.
// n <= 0 disables scaling.
func WithMaxSize(n int) Option {
	return func(c *Compiler) { c.maxSize = n }
}

// New returns a texture compiler. Pixel data is stored uncompressed unless
// WithCompression is given.
func New(opts ...Option) *Compiler {
	c := &Compiler{level: zstd.SpeedDefault}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements compiler.Compiler.
func (c *Compiler) Name() string { return "texture" }

// Compile decodes input and writes one TEXR file to outputs[0].
func (c *Compiler) Compile(ctx context.Context, input string, outputs []string) error {
	if len(outputs) != 1 {
		return fmt.Errorf("texture compiler needs 1 output, got %d", len(outputs))
	}

	img, err := Load(input)
	if err != nil {
		return err
	}
	srcBounds := img.Bounds()
	img = Fit(img, c.maxSize)
	if err := ctx.Err(); err != nil {
		return err
	}

	compression := formats.CompressionNone
	if c.compress {
		compression = formats.CompressionZstd
	}
	var stored int
	err = compiler.WriteArtifact(outputs[0], func(w *binwriter.Writer) error {
		n, err := Encode(w, img, compression, c.level)
		stored = n
		return err
	})
	if err != nil {
		return err
	}

	logger.Named("texture").Info("compiled texture",
		zap.String("input", input),
		zap.Int("width", img.Rect.Dx()),
		zap.Int("height", img.Rect.Dy()),
		zap.Bool("scaled", img.Rect.Size() != srcBounds.Size()),
		zap.Stringer("compression", compression),
		zap.Int("stored", stored))
	return nil
}

// Load decodes the image at path, picking the decoder by extension, and
// converts it to non-premultiplied RGBA.
func Load(path string) (*image.NRGBA, error) {
	ext := strings.ToLower(filepath.Ext(path))
	decode, ok := decoders[ext]
	if !ok {
		return nil, compiler.InputErrorf(path, "unsupported image type %q", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, compiler.InputErrorf(path, "open image: %w", err)
	}
	defer f.Close()

	img, err := decode(f)
	if err != nil {
		return nil, compiler.InputErrorf(path, "decode %s: %w", ext, err)
	}
	if img.Bounds().Empty() {
		return nil, compiler.InputErrorf(path, "image has no pixels")
	}
	return toNRGBA(img), nil
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) && n.Stride == 4*n.Rect.Dx() {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Fit scales img down with Catmull-Rom filtering so that neither side
// exceeds maxSize, keeping the aspect ratio. Images already within bounds
// are returned unchanged.
func Fit(img *image.NRGBA, maxSize int) *image.NRGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if maxSize <= 0 || (w <= maxSize && h <= maxSize) {
		return img
	}
	if w >= h {
		h = max(1, h*maxSize/w)
		w = maxSize
	} else {
		w = max(1, w*maxSize/h)
		h = maxSize
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// Encode writes img as a TEXR texture and returns the stored payload size.
func Encode(w *binwriter.Writer, img *image.NRGBA, compression formats.Compression, level zstd.EncoderLevel) (int, error) {
	pix := img.Pix
	if compression == formats.CompressionZstd {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
		if err != nil {
			return 0, fmt.Errorf("zstd encoder: %w", err)
		}
		pix = enc.EncodeAll(img.Pix, nil)
		if err := enc.Close(); err != nil {
			return 0, fmt.Errorf("zstd encoder: %w", err)
		}
	}

	w.WriteString(formats.TextureMagic)
	w.WriteUint32(formats.TextureVersion)
	w.WriteLen(img.Rect.Dx())
	w.WriteLen(img.Rect.Dy())
	w.WriteUint32(uint32(formats.PixelFormatRGBA8))
	w.WriteUint32(uint32(compression))
	w.WriteLen(len(pix))
	ofsData := w.Reserve32()
	w.Align(formats.TextureDataAlign)
	w.PatchOffset(ofsData)
	w.WriteBytes(pix)
	return len(pix), w.Err()
}
