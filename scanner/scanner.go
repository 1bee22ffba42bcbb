// Package scanner provides the bounded byte cursor every decoder reads through.
//
// A Cursor wraps an immutable buffer and a window [lo, hi] inside it. Every
// read that would cross hi fails with ErrOutOfBounds instead of returning a
// partial value, and offsets read from the stream itself must be validated
// with CheckPosition before they are trusted.
package scanner

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrOutOfBounds is returned by any read or seek that leaves the cursor window.
	ErrOutOfBounds = errors.New("read out of bounds")

	// ErrTooLarge is returned by New when the input exceeds Config.MaxSize.
	ErrTooLarge = errors.New("input exceeds size limit")
)

type ReaderAt interface {
	ReadAt(p []byte, off int64) (n int, err error)
}

type Config struct {
	// MaxSize caps the number of bytes loaded from the reader. Zero means no cap.
	MaxSize int64
	// WindowSize is the chunk used while loading. Default: 64 KiB.
	WindowSize int64
}

// Cursor is a forward/random access reader over a read-only byte buffer.
// Multi-byte values are big endian. Copies of a Cursor share the buffer but
// not the position.
type Cursor struct {
	data []byte
	lo   int64
	hi   int64
	pos  int64
}

// New loads the whole ReaderAt into memory and returns a cursor over it.
func New(r ReaderAt, cfg Config) (*Cursor, error) {
	chunk := cfg.WindowSize
	if chunk <= 0 {
		chunk = 64 * 1024
	}
	var buf bytes.Buffer
	for off := int64(0); ; off += chunk {
		tmp := make([]byte, chunk)
		n, err := r.ReadAt(tmp, off)
		if n > 0 {
			buf.Write(tmp[:n])
		}
		if cfg.MaxSize > 0 && int64(buf.Len()) > cfg.MaxSize {
			return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, cfg.MaxSize)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if int64(n) < chunk {
			break
		}
	}
	return FromBytes(buf.Bytes()), nil
}

// FromBytes returns a cursor over data. The caller must not mutate data afterwards.
func FromBytes(data []byte) *Cursor {
	return &Cursor{data: data, hi: int64(len(data))}
}

// Clone returns an independent cursor at the same position.
func (c *Cursor) Clone() *Cursor {
	cp := *c
	return &cp
}

// Section returns a cursor restricted to [begin, end], positioned at begin.
// Offsets stay absolute so entries and diagnostics keep referring to the file.
func (c *Cursor) Section(begin, end int64) (*Cursor, error) {
	if begin > end || !c.CheckPosition(begin) || !c.CheckPosition(end) {
		return nil, fmt.Errorf("section [%d,%d]: %w", begin, end, ErrOutOfBounds)
	}
	cp := *c
	cp.lo, cp.hi, cp.pos = begin, end, begin
	return &cp, nil
}

// Size is the absolute end of the cursor window.
func (c *Cursor) Size() int64 { return c.hi }

// Begin is the absolute start of the cursor window.
func (c *Cursor) Begin() int64 { return c.lo }

// Tell returns the current absolute offset.
func (c *Cursor) Tell() int64 { return c.pos }

// Remaining returns the number of bytes between the position and the window end.
func (c *Cursor) Remaining() int64 { return c.hi - c.pos }

// AtEnd reports whether the position reached the window end.
func (c *Cursor) AtEnd() bool { return c.pos >= c.hi }

// CheckPosition reports whether off lies inside the window, end included.
func (c *Cursor) CheckPosition(off int64) bool { return off >= c.lo && off <= c.hi }

func (c *Cursor) Seek(offset int64) error {
	if !c.CheckPosition(offset) {
		return fmt.Errorf("seek %d: %w", offset, ErrOutOfBounds)
	}
	c.pos = offset
	return nil
}

// Skip advances the position by n bytes.
func (c *Cursor) Skip(n int64) error {
	if n < 0 || n > c.Remaining() {
		return fmt.Errorf("skip %d at %d: %w", n, c.pos, ErrOutOfBounds)
	}
	c.pos += n
	return nil
}

// readExact is the single choke point for every read.
func (c *Cursor) readExact(n int64) ([]byte, error) {
	if n < 0 || n > c.Remaining() {
		return nil, fmt.Errorf("read %d bytes at %d: %w", n, c.pos, ErrOutOfBounds)
	}
	b := c.data[c.pos : c.pos+n : c.pos+n]
	c.pos += n
	return b, nil
}

// ReadBytes returns the next n bytes. The span aliases the immutable buffer.
func (c *Cursor) ReadBytes(n int64) ([]byte, error) { return c.readExact(n) }

// ReadUint reads an unsigned integer of width 1, 2, 4 or 8 bytes.
func (c *Cursor) ReadUint(width int) (uint64, error) {
	switch width {
	case 1, 2, 4, 8:
	default:
		return 0, fmt.Errorf("unsupported integer width %d", width)
	}
	b, err := c.readExact(int64(width))
	if err != nil {
		return 0, err
	}
	switch width {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.BigEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.BigEndian.Uint32(b)), nil
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadInt reads a two's-complement integer of width 1, 2, 4 or 8 bytes.
func (c *Cursor) ReadInt(width int) (int64, error) {
	v, err := c.ReadUint(width)
	if err != nil {
		return 0, err
	}
	switch width {
	case 1:
		return int64(int8(v)), nil
	case 2:
		return int64(int16(v)), nil
	case 4:
		return int64(int32(v)), nil
	}
	return int64(v), nil
}

func (c *Cursor) U8() (uint8, error) {
	v, err := c.ReadUint(1)
	return uint8(v), err
}

func (c *Cursor) U16() (uint16, error) {
	v, err := c.ReadUint(2)
	return uint16(v), err
}

func (c *Cursor) U32() (uint32, error) {
	v, err := c.ReadUint(4)
	return uint32(v), err
}

func (c *Cursor) I8() (int8, error) {
	v, err := c.ReadInt(1)
	return int8(v), err
}

func (c *Cursor) I16() (int16, error) {
	v, err := c.ReadInt(2)
	return int16(v), err
}

func (c *Cursor) I32() (int32, error) {
	v, err := c.ReadInt(4)
	return int32(v), err
}

// PascalString reads a length byte followed by that many bytes.
func (c *Cursor) PascalString() ([]byte, error) {
	start := c.pos
	n, err := c.U8()
	if err != nil {
		return nil, err
	}
	s, err := c.readExact(int64(n))
	if err != nil {
		c.pos = start
		return nil, err
	}
	return s, nil
}

// Fixed32 reads a 16.16 fixed-point value (integer word then fraction word).
func (c *Cursor) Fixed32() (float64, error) {
	v, err := c.I32()
	if err != nil {
		return 0, err
	}
	return float64(v) / 65536, nil
}

// DecimalFixed reads an i16 integer word followed by an i16 numerator over 10000.
func (c *Cursor) DecimalFixed() (float64, error) {
	i, err := c.I16()
	if err != nil {
		return 0, err
	}
	f, err := c.I16()
	if err != nil {
		return 0, err
	}
	return Fixed(int32(i), int32(f), 10000), nil
}

// Fixed combines an integer part with a separately stored fractional numerator.
// The numerator keeps its own sign, so (-1, 32768, 65536) is -0.5 and (-1, -5000, 10000) is -1.5.
func Fixed(intPart, frac int32, divisor float64) float64 {
	if divisor == 0 {
		return float64(intPart)
	}
	return float64(intPart) + float64(frac)/divisor
}

// Fields reads a run of fixed-size fields and keeps the first error. Once a
// read fails every later read returns zero without moving the cursor, so a
// record is read in one go and checked once with Err.
type Fields struct {
	c   *Cursor
	err error
}

func (c *Cursor) Fields() *Fields { return &Fields{c: c} }

func (f *Fields) Err() error { return f.err }

func (f *Fields) uint(width int) uint64 {
	if f.err != nil {
		return 0
	}
	v, err := f.c.ReadUint(width)
	f.err = err
	return v
}

func (f *Fields) U8() uint8   { return uint8(f.uint(1)) }
func (f *Fields) U16() uint16 { return uint16(f.uint(2)) }
func (f *Fields) U32() uint32 { return uint32(f.uint(4)) }
func (f *Fields) I16() int16  { return int16(f.uint(2)) }
func (f *Fields) I32() int32  { return int32(f.uint(4)) }

// Fixed32 reads a 16.16 fixed-point value.
func (f *Fields) Fixed32() float64 { return float64(f.I32()) / 65536 }

func (f *Fields) Bytes(n int64) []byte {
	if f.err != nil {
		return nil
	}
	b, err := f.c.ReadBytes(n)
	f.err = err
	return b
}
