// Package binwriter provides a little-endian binary writer with backpatching
// support, so formats whose header fields are only known after later content
// can be produced in one forward pass.
package binwriter

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"fortio.org/safecast"
	"go.uber.org/multierr"
)

// Placeholder is the sentinel written by Reserve32 until the field is patched.
const Placeholder uint32 = 0xDEADBEEF

// padByte is the filler used by Align.
const padByte = 0x00

// Writer errors.
var (
	ErrPatchOutOfRange = errors.New("patch position beyond write cursor")
	ErrBadAlignment    = errors.New("alignment must be positive")
	ErrOverflow        = errors.New("value does not fit in 32 bits")
)

// Pos is an absolute offset in the output stream.
type Pos int64

// Writer appends fixed-width little-endian values to a seekable sink.
//
// Errors are sticky: the first failure is recorded, every later call becomes
// a no-op, and Err or Close reports it.
type Writer struct {
	sink    io.WriteSeeker
	buf     *bufio.Writer
	off     int64
	err     error
	scratch [8]byte
}

// New wraps a seekable sink. Positions are absolute offsets in the sink.
func New(ws io.WriteSeeker) *Writer {
	w := &Writer{sink: ws, buf: bufio.NewWriter(ws)}
	off, err := ws.Seek(0, io.SeekCurrent)
	if err != nil {
		w.err = fmt.Errorf("query sink position: %w", err)
	}
	w.off = off
	return w
}

// Create opens path for read-write, truncating any existing file.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return New(f), nil
}

func (w *Writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *Writer) write(p []byte) {
	if w.err != nil {
		return
	}
	n, err := w.buf.Write(p)
	w.off += int64(n)
	if err != nil {
		w.fail(fmt.Errorf("write at %d: %w", w.off, err))
	}
}

// WriteBytes appends raw bytes.
func (w *Writer) WriteBytes(p []byte) {
	w.write(p)
}

// WriteString appends the bytes of s without a terminator.
func (w *Writer) WriteString(s string) {
	if w.err != nil {
		return
	}
	n, err := w.buf.WriteString(s)
	w.off += int64(n)
	if err != nil {
		w.fail(fmt.Errorf("write at %d: %w", w.off, err))
	}
}

// WriteByte appends a single byte.
func (w *Writer) WriteByte(b byte) error {
	w.scratch[0] = b
	w.write(w.scratch[:1])
	return w.err
}

// WriteUint32 appends v as 4 little-endian bytes.
func (w *Writer) WriteUint32(v uint32) {
	binary.LittleEndian.PutUint32(w.scratch[:4], v)
	w.write(w.scratch[:4])
}

// WriteInt32 appends v as 4 little-endian bytes.
func (w *Writer) WriteInt32(v int32) {
	w.WriteUint32(uint32(v))
}

// WriteUint64 appends v as 8 little-endian bytes.
func (w *Writer) WriteUint64(v uint64) {
	binary.LittleEndian.PutUint64(w.scratch[:8], v)
	w.write(w.scratch[:8])
}

// WriteInt64 appends v as 8 little-endian bytes.
func (w *Writer) WriteInt64(v int64) {
	w.WriteUint64(uint64(v))
}

// WriteFloat32 appends the raw IEEE-754 bit pattern of f.
func (w *Writer) WriteFloat32(f float32) {
	w.WriteUint32(math.Float32bits(f))
}

// WriteLen appends a count or length as a 32-bit value.
func (w *Writer) WriteLen(n int) {
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		w.fail(fmt.Errorf("%w: %d", ErrOverflow, n))
		return
	}
	w.WriteUint32(v)
}

// Reserve32 writes a placeholder and returns its position for a later Patch32.
func (w *Writer) Reserve32() Pos {
	pos := Pos(w.off)
	w.WriteUint32(Placeholder)
	return pos
}

// Patch32 overwrites the 4 bytes at pos and restores the write cursor.
func (w *Writer) Patch32(pos Pos, v uint32) {
	if w.err != nil {
		return
	}
	if pos < 0 || int64(pos)+4 > w.off {
		w.fail(fmt.Errorf("%w: %d (cursor %d)", ErrPatchOutOfRange, pos, w.off))
		return
	}
	if err := w.buf.Flush(); err != nil {
		w.fail(fmt.Errorf("flush before patch: %w", err))
		return
	}
	if _, err := w.sink.Seek(int64(pos), io.SeekStart); err != nil {
		w.fail(fmt.Errorf("seek to %d: %w", pos, err))
		return
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	if _, err := w.sink.Write(b[:]); err != nil {
		w.fail(fmt.Errorf("patch at %d: %w", pos, err))
		return
	}
	if _, err := w.sink.Seek(w.off, io.SeekStart); err != nil {
		w.fail(fmt.Errorf("seek back to %d: %w", w.off, err))
	}
}

// PatchInt overwrites the 4 bytes at pos with v, which must fit in 32 bits.
func (w *Writer) PatchInt(pos Pos, v int64) {
	u, err := safecast.Conv[uint32](v)
	if err != nil {
		w.fail(fmt.Errorf("%w: %d", ErrOverflow, v))
		return
	}
	w.Patch32(pos, u)
}

// PatchOffset overwrites the 4 bytes at pos with the current cursor.
func (w *Writer) PatchOffset(pos Pos) {
	w.PatchInt(pos, w.off)
}

// Offset returns the current write cursor.
func (w *Writer) Offset() int64 {
	return w.off
}

// Align pads with zero bytes until Offset is a multiple of n.
func (w *Writer) Align(n int) {
	if n <= 0 {
		w.fail(fmt.Errorf("%w: %d", ErrBadAlignment, n))
		return
	}
	pad := (int64(n) - w.off%int64(n)) % int64(n)
	for ; pad > 0; pad-- {
		w.WriteByte(padByte)
	}
}

// Err returns the first error encountered, if any.
func (w *Writer) Err() error {
	return w.err
}

// Flush writes buffered data to the sink.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	if err := w.buf.Flush(); err != nil {
		w.fail(fmt.Errorf("flush: %w", err))
	}
	return w.err
}

// Close flushes and closes the sink when it is an io.Closer.
func (w *Writer) Close() error {
	err := w.Flush()
	if c, ok := w.sink.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	return err
}
