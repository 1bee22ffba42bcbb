package filters

import "fmt"

const (
	lzwClear    = 256
	lzwEOD      = 257
	lzwFirst    = 258
	lzwMinWidth = 9
	lzwMaxWidth = 12
	lzwMaxCodes = 1 << lzwMaxWidth
)

type bitReader struct {
	data []byte
	pos  int
}

// read returns the next width bits, most significant bit first.
func (r *bitReader) read(width int) (int, bool) {
	if r.pos+width > len(r.data)*8 {
		return 0, false
	}
	v := 0
	for i := 0; i < width; i++ {
		b := r.data[r.pos>>3]
		v = v<<1 | int(b>>(7-uint(r.pos&7))&1)
		r.pos++
	}
	return v, true
}

type lzwTable struct {
	prefix [lzwMaxCodes]uint16
	suffix [lzwMaxCodes]byte
	first  [lzwMaxCodes]byte
	length [lzwMaxCodes]int
}

func newLZWTable() *lzwTable {
	t := &lzwTable{}
	for i := 0; i < 256; i++ {
		t.suffix[i] = byte(i)
		t.first[i] = byte(i)
		t.length[i] = 1
	}
	return t
}

// appendEntry writes the string for code at the end of out.
func (t *lzwTable) appendEntry(out []byte, code int) []byte {
	n := t.length[code]
	start := len(out)
	out = append(out, make([]byte, n)...)
	for i := start + n - 1; i >= start; i-- {
		out[i] = t.suffix[code]
		code = int(t.prefix[code])
	}
	return out
}

// Decompress decodes the container LZW stream: MSB-first codes growing from
// 9 to 12 bits, 256 clears the dictionary and 257 ends the data. limit <= 0
// disables the output cap.
func Decompress(data []byte, limit int64) ([]byte, error) {
	br := bitReader{data: data}
	t := newLZWTable()
	width, next, prev := lzwMinWidth, lzwFirst, -1
	var out []byte
	for {
		code, ok := br.read(width)
		if !ok {
			return out, fmt.Errorf("lzw: no end code after %d bytes: %w", len(out), ErrTruncated)
		}
		switch code {
		case lzwClear:
			width, next, prev = lzwMinWidth, lzwFirst, -1
			continue
		case lzwEOD:
			return out, nil
		}
		if prev < 0 {
			if code > 255 {
				return out, fmt.Errorf("lzw: code %d after reset: %w", code, ErrBadCode)
			}
			out = append(out, byte(code))
			prev = code
		} else {
			if code > next {
				return out, fmt.Errorf("lzw: code %d, next free %d: %w", code, next, ErrBadCode)
			}
			var head byte
			if code < next {
				out = t.appendEntry(out, code)
				head = t.first[code]
			} else {
				out = t.appendEntry(out, prev)
				head = t.first[prev]
				out = append(out, head)
			}
			if next >= lzwMaxCodes {
				return out, fmt.Errorf("lzw: %w", ErrDictionaryOverflow)
			}
			t.prefix[next] = uint16(prev)
			t.suffix[next] = head
			t.first[next] = t.first[prev]
			t.length[next] = t.length[prev] + 1
			next++
			if next == (1<<width)-1 && width < lzwMaxWidth {
				width++
			}
			prev = code
		}
		if limit > 0 && int64(len(out)) > limit {
			return nil, fmt.Errorf("lzw: more than %d bytes: %w", limit, ErrOutputLimit)
		}
	}
}

type bitWriter struct {
	out []byte
	acc byte
	n   uint
}

func (w *bitWriter) write(code, width int) {
	for i := width - 1; i >= 0; i-- {
		w.acc = w.acc<<1 | byte(code>>uint(i)&1)
		w.n++
		if w.n == 8 {
			w.out = append(w.out, w.acc)
			w.acc, w.n = 0, 0
		}
	}
}

func (w *bitWriter) bytes() []byte {
	if w.n > 0 {
		w.out = append(w.out, w.acc<<(8-w.n))
		w.acc, w.n = 0, 0
	}
	return w.out
}

// Compress is the inverse of Decompress. It emits a clear code whenever the
// dictionary fills up.
func Compress(data []byte) []byte { return compress(data, true) }

func compress(data []byte, reset bool) []byte {
	w := &bitWriter{}
	width, next := lzwMinWidth, lzwFirst
	if len(data) == 0 {
		w.write(lzwEOD, width)
		return w.bytes()
	}
	dict := make(map[string]int)
	grow := func() {
		if next < lzwMaxCodes {
			next++
			if next == 1<<width && width < lzwMaxWidth {
				width++
			}
		}
	}
	s, cur := string(data[:1]), int(data[0])
	for _, c := range data[1:] {
		key := s + string([]byte{c})
		if code, ok := dict[key]; ok {
			s, cur = key, code
			continue
		}
		w.write(cur, width)
		if next < lzwMaxCodes {
			dict[key] = next
		}
		grow()
		if reset && next == lzwMaxCodes {
			w.write(lzwClear, width)
			dict = make(map[string]int)
			width, next = lzwMinWidth, lzwFirst
		}
		s, cur = string([]byte{c}), int(c)
	}
	w.write(cur, width)
	grow()
	w.write(lzwEOD, width)
	return w.bytes()
}
