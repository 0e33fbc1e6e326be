// Package encoding provides text decoding for source asset files and helpers
// for the NUL-terminated strings stored in compiled artifacts.
package encoding

import (
	"bytes"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// NewReader returns a reader that yields UTF-8 text. A UTF-8 BOM is stripped;
// UTF-16 input with a BOM is transcoded. Input without a BOM passes through
// unchanged, so legacy 8-bit paths are preserved byte for byte.
func NewReader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(transform.Nop))
}

// DecodeText converts raw file contents to UTF-8 using the same rules as NewReader.
func DecodeText(data []byte) (string, error) {
	out, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// CString returns the bytes of data up to the first NUL as a string.
// If there is no terminator, the whole slice is returned.
func CString(data []byte) string {
	if idx := bytes.IndexByte(data, 0); idx >= 0 {
		data = data[:idx]
	}
	return string(data)
}
