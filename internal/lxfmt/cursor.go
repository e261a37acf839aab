// Linear executable byte cursor.
// All multi-byte values in LE/LX files are stored little-endian on disk.
package lxfmt

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/lunixbochs/struc"
)

var (
	ErrOutOfRange    = errors.New("cursor: read out of range")
	ErrUnterminated  = errors.New("cursor: unterminated string")
	ErrNegativeCount = errors.New("cursor: negative length")
)

// Cursor reads little-endian values from a random-access byte source of
// known size. Sequential reads advance the position; the *At variants read
// at an explicit absolute offset and leave the position untouched.
type Cursor struct {
	r    io.ReaderAt
	size int64
	pos  int64
}

// NewCursor creates a cursor over r, which holds size bytes.
func NewCursor(r io.ReaderAt, size int64) *Cursor {
	return &Cursor{r: r, size: size}
}

// NewBytesCursor creates a cursor over an in-memory buffer.
func NewBytesCursor(data []byte) *Cursor {
	return &Cursor{r: bytesReaderAt(data), size: int64(len(data))}
}

type bytesReaderAt []byte

func (b bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the length of the underlying source.
func (c *Cursor) Size() int64 { return c.size }

// Position returns the current read position.
func (c *Cursor) Position() int64 { return c.pos }

// Remaining returns bytes left to read from the current position.
func (c *Cursor) Remaining() int64 { return c.size - c.pos }

// Seek sets the absolute read position. Seeking to the end of the source is
// allowed; seeking past it is not.
func (c *Cursor) Seek(off int64) error {
	if off < 0 || off > c.size {
		return ErrOutOfRange
	}
	c.pos = off
	return nil
}

// Skip advances the position by n bytes.
func (c *Cursor) Skip(n int64) error {
	return c.Seek(c.pos + n)
}

// fits reports whether n bytes can be read at off.
func (c *Cursor) fits(off, n int64) bool {
	return off >= 0 && n >= 0 && off <= c.size && n <= c.size-off
}

func (c *Cursor) readAt(buf []byte, off int64) error {
	if !c.fits(off, int64(len(buf))) {
		return ErrOutOfRange
	}
	if len(buf) == 0 {
		return nil
	}
	n, err := c.r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return ErrOutOfRange
	}
	return err
}

// BytesAt reads n bytes at the absolute offset off into a new slice.
func (c *Cursor) BytesAt(off int64, n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeCount
	}
	buf := make([]byte, n)
	if err := c.readAt(buf, off); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadAt fills buf from the absolute offset off.
func (c *Cursor) ReadAt(buf []byte, off int64) error {
	return c.readAt(buf, off)
}

// Uint8At reads a byte at the absolute offset off.
func (c *Cursor) Uint8At(off int64) (uint8, error) {
	var b [1]byte
	if err := c.readAt(b[:], off); err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16At reads a little-endian uint16 at the absolute offset off.
func (c *Cursor) Uint16At(off int64) (uint16, error) {
	var b [2]byte
	if err := c.readAt(b[:], off); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

// Uint32At reads a little-endian uint32 at the absolute offset off.
func (c *Cursor) Uint32At(off int64) (uint32, error) {
	var b [4]byte
	if err := c.readAt(b[:], off); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// ReadBytes reads n bytes into a new slice.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	b, err := c.BytesAt(c.pos, n)
	if err != nil {
		return nil, err
	}
	c.pos += int64(n)
	return b, nil
}

// ReadUint8 reads a byte.
func (c *Cursor) ReadUint8() (uint8, error) {
	v, err := c.Uint8At(c.pos)
	if err != nil {
		return 0, err
	}
	c.pos++
	return v, nil
}

// ReadUint16 reads a little-endian uint16.
func (c *Cursor) ReadUint16() (uint16, error) {
	v, err := c.Uint16At(c.pos)
	if err != nil {
		return 0, err
	}
	c.pos += 2
	return v, nil
}

// ReadUint32 reads a little-endian uint32.
func (c *Cursor) ReadUint32() (uint32, error) {
	v, err := c.Uint32At(c.pos)
	if err != nil {
		return 0, err
	}
	c.pos += 4
	return v, nil
}

// ReadString reads a fixed-length string of n bytes.
func (c *Cursor) ReadString(n int) (string, error) {
	b, err := c.ReadBytes(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadCString reads a NUL-terminated string. The terminator is consumed but
// not returned.
func (c *Cursor) ReadCString() (string, error) {
	var out []byte
	var b [1]byte
	for off := c.pos; off < c.size; off++ {
		if err := c.readAt(b[:], off); err != nil {
			return "", err
		}
		if b[0] == 0 {
			c.pos = off + 1
			return string(out), nil
		}
		out = append(out, b[0])
	}
	return "", ErrUnterminated
}

// Unpack decodes a fixed-layout struct at the current position and advances
// past it. Field layout follows struc rules, little-endian.
func (c *Cursor) Unpack(v any) error {
	n, err := c.UnpackAt(c.pos, v)
	if err != nil {
		return err
	}
	c.pos += int64(n)
	return nil
}

// UnpackAt decodes a fixed-layout struct at the absolute offset off and
// returns its encoded size.
func (c *Cursor) UnpackAt(off int64, v any) (int, error) {
	n, err := struc.Sizeof(v)
	if err != nil {
		return 0, err
	}
	if !c.fits(off, int64(n)) {
		return 0, ErrOutOfRange
	}
	sr := io.NewSectionReader(c.r, off, int64(n))
	if err := struc.UnpackWithOrder(sr, v, binary.LittleEndian); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, ErrOutOfRange
		}
		return 0, err
	}
	return n, nil
}
