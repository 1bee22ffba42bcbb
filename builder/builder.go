// Package builder assembles big-endian binary records with a fluent API.
// Decoder tests use it to craft documents byte by byte.
package builder

import (
	"encoding/binary"
	"math"
)

// Buffer accumulates bytes. Every method returns the buffer so calls chain.
type Buffer struct {
	b     []byte
	marks map[string]int
}

func New() *Buffer {
	return &Buffer{marks: make(map[string]int)}
}

func (w *Buffer) Len() int { return len(w.b) }

// Bytes returns a copy of the accumulated bytes.
func (w *Buffer) Bytes() []byte { return append([]byte(nil), w.b...) }

func (w *Buffer) U8(v uint8) *Buffer { w.b = append(w.b, v); return w }

func (w *Buffer) U16(v uint16) *Buffer {
	w.b = binary.BigEndian.AppendUint16(w.b, v)
	return w
}

func (w *Buffer) U32(v uint32) *Buffer {
	w.b = binary.BigEndian.AppendUint32(w.b, v)
	return w
}

func (w *Buffer) I16(v int16) *Buffer { return w.U16(uint16(v)) }
func (w *Buffer) I32(v int32) *Buffer { return w.U32(uint32(v)) }

func (w *Buffer) F64(v float64) *Buffer {
	w.b = binary.BigEndian.AppendUint64(w.b, math.Float64bits(v))
	return w
}

// Raw appends data unchanged.
func (w *Buffer) Raw(data []byte) *Buffer { w.b = append(w.b, data...); return w }

// Str appends s unchanged.
func (w *Buffer) Str(s string) *Buffer { return w.Raw([]byte(s)) }

// Zeros appends n zero bytes.
func (w *Buffer) Zeros(n int) *Buffer { return w.Raw(make([]byte, n)) }

// Pstr appends a Pascal string.
func (w *Buffer) Pstr(s string) *Buffer { return w.U8(uint8(len(s))).Str(s) }

// PadEven appends a zero byte when the length is odd.
func (w *Buffer) PadEven() *Buffer {
	if len(w.b)%2 == 1 {
		w.b = append(w.b, 0)
	}
	return w
}

// PadTo appends zero bytes up to offset n.
func (w *Buffer) PadTo(n int) *Buffer {
	for len(w.b) < n {
		w.b = append(w.b, 0)
	}
	return w
}

// Fixed32 appends a 16.16 fixed value.
func (w *Buffer) Fixed32(v float64) *Buffer { return w.I32(int32(math.Round(v * 65536))) }

// DFix appends an integer word and a numerator over 10000.
func (w *Buffer) DFix(intPart, frac int16) *Buffer { return w.I16(intPart).I16(frac) }

// Mark remembers the current offset under name.
func (w *Buffer) Mark(name string) *Buffer {
	w.marks[name] = len(w.b)
	return w
}

// Offset returns a remembered offset, or -1.
func (w *Buffer) Offset(name string) int {
	if off, ok := w.marks[name]; ok {
		return off
	}
	return -1
}

// PatchU16 overwrites two bytes at off.
func (w *Buffer) PatchU16(off int, v uint16) *Buffer {
	binary.BigEndian.PutUint16(w.b[off:], v)
	return w
}

// PatchU32 overwrites four bytes at off.
func (w *Buffer) PatchU32(off int, v uint32) *Buffer {
	binary.BigEndian.PutUint32(w.b[off:], v)
	return w
}

// Since returns the number of bytes written after the named mark.
func (w *Buffer) Since(name string) int { return len(w.b) - w.marks[name] }

// PrintInfo appends a 120-byte print record. Rectangles are top, left, bottom, right.
func (w *Buffer) PrintInfo(res int16, page, paper [4]int16) *Buffer {
	w.U16(3).I16(0).I16(res).I16(res)
	for _, v := range page {
		w.I16(v)
	}
	for _, v := range paper {
		w.I16(v)
	}
	return w.Zeros(96)
}
