package formats

import (
	"fmt"

	"github.com/wudi/legacydoc/coords"
	"github.com/wudi/legacydoc/filters"
	"github.com/wudi/legacydoc/fonts"
	"github.com/wudi/legacydoc/ir/semantic"
	"github.com/wudi/legacydoc/observability"
	"github.com/wudi/legacydoc/printinfo"
	"github.com/wudi/legacydoc/scanner"
)

// Record readers shared by several format families.

// ReadFonts reads `u16 n; n x {u16 id; pstr name}` into doc.Fonts.
func (s *Session) ReadFonts(c *scanner.Cursor, doc *semantic.Document) error {
	n, err := c.U16()
	if err != nil {
		return err
	}
	if err := s.CheckCount(c, int(n), 3); err != nil {
		return err
	}
	for i := 0; i < int(n); i++ {
		id, err := c.U16()
		if err != nil {
			return err
		}
		name, err := c.PascalString()
		if err != nil {
			return err
		}
		doc.Fonts[int(id)] = fonts.MacRoman.Decode(name)
	}
	return nil
}

// ReadColors reads `u16 n; n x {u16 index; u16 r, g, b}` into the palette.
func (s *Session) ReadColors(c *scanner.Cursor, doc *semantic.Document) error {
	n, err := c.U16()
	if err != nil {
		return err
	}
	if err := s.CheckCount(c, int(n), 8); err != nil {
		return err
	}
	for i := 0; i < int(n); i++ {
		var v [4]uint16
		for k := range v {
			if v[k], err = c.U16(); err != nil {
				return err
			}
		}
		doc.Palette.SetColor(int(v[0]), semantic.ColorFrom16(v[1], v[2], v[3]))
	}
	return nil
}

// ReadPatterns reads `u16 n; n x {u16 index; 8 bytes}` into the palette.
func (s *Session) ReadPatterns(c *scanner.Cursor, doc *semantic.Document) error {
	n, err := c.U16()
	if err != nil {
		return err
	}
	if err := s.CheckCount(c, int(n), 10); err != nil {
		return err
	}
	for i := 0; i < int(n); i++ {
		idx, err := c.U16()
		if err != nil {
			return err
		}
		b, err := c.ReadBytes(8)
		if err != nil {
			return err
		}
		var p semantic.Pattern
		copy(p[:], b)
		doc.Palette.SetPattern(int(idx), p)
	}
	return nil
}

// ReadPrintInfo replaces the default layout when the print record is valid.
// An invalid record is reported and the default layout is kept.
func (s *Session) ReadPrintInfo(c *scanner.Cursor, doc *semantic.Document) error {
	off := c.Tell()
	rec, err := printinfo.Read(c)
	if err != nil {
		return s.Anomaly("printinfo", off, err)
	}
	layout, err := rec.Layout()
	if err != nil {
		return s.Anomaly("printinfo", off, err)
	}
	doc.Layout = layout
	return nil
}

// ReadPicture reads `i16 top,left,bottom,right; u8 kind; u8 reserved` and the
// payload up to the end of c: raw QuickDraw bytes for kind 0, or
// `u16 rowBytes; u16 width; u16 height; PackBits data` for kind 1.
func (s *Session) ReadPicture(c *scanner.Cursor, id int) (*semantic.Picture, error) {
	box, err := ReadBox16(c)
	if err != nil {
		return nil, err
	}
	kind, err := c.U8()
	if err != nil {
		return nil, err
	}
	if err := c.Skip(1); err != nil {
		return nil, err
	}
	pic := &semantic.Picture{ID: id, Box: box}
	switch kind {
	case 0:
		pic.Kind = semantic.PictureQuickDraw
		if pic.Data, err = c.ReadBytes(c.Remaining()); err != nil {
			return nil, err
		}
	case 1:
		var dims [3]uint16
		for i := range dims {
			if dims[i], err = c.U16(); err != nil {
				return nil, err
			}
		}
		packed, err := c.ReadBytes(c.Remaining())
		if err != nil {
			return nil, err
		}
		bits, err := filters.UnpackBitmap(packed, int(dims[0]), int(dims[1]), int(dims[2]))
		if err != nil {
			return nil, err
		}
		pic.Kind = semantic.PictureBitmap
		pic.Data = packed
		pic.Bitmap = &semantic.Bitmap{RowBytes: int(dims[0]), Width: int(dims[1]), Height: int(dims[2]), Bits: bits}
	default:
		return nil, fmt.Errorf("picture kind %d", kind)
	}
	return pic, nil
}

// ReadBox16 reads an i16 top,left,bottom,right rectangle.
func ReadBox16(c *scanner.Cursor) (coords.Box, error) {
	var v [4]int16
	var err error
	for i := range v {
		if v[i], err = c.I16(); err != nil {
			return coords.Box{}, err
		}
	}
	return coords.BoxFromEdges(float64(v[0]), float64(v[1]), float64(v[2]), float64(v[3])), nil
}

// ReadBoxFixed reads a 16.16 fixed top,left,bottom,right rectangle.
func ReadBoxFixed(c *scanner.Cursor) (coords.Box, error) {
	var v [4]float64
	var err error
	for i := range v {
		if v[i], err = c.Fixed32(); err != nil {
			return coords.Box{}, err
		}
	}
	return coords.BoxFromEdges(v[0], v[1], v[2], v[3]), nil
}

// ReadBoxDecimal reads a dfix top,left,bottom,right rectangle.
func ReadBoxDecimal(c *scanner.Cursor) (coords.Box, error) {
	var v [4]float64
	var err error
	for i := range v {
		if v[i], err = c.DecimalFixed(); err != nil {
			return coords.Box{}, err
		}
	}
	return coords.BoxFromEdges(v[0], v[1], v[2], v[3]), nil
}

// SkipPad skips the pad byte following an odd-length block.
func SkipPad(c *scanner.Cursor, n int64) error {
	if n%2 == 1 {
		return c.Skip(1)
	}
	return nil
}

// Justify maps the stored alignment code; unknown codes read as left.
func Justify(v uint8) semantic.Justify {
	if v > uint8(semantic.JustifyFull) {
		return semantic.JustifyLeft
	}
	return semantic.Justify(v)
}

// TabAlign maps the stored tab alignment; unknown codes read as left.
func TabAlign(v uint8) semantic.TabAlign {
	if v > uint8(semantic.TabDecimal) {
		return semantic.TabLeft
	}
	return semantic.TabAlign(v)
}

// Wrap maps the stored wrap mode; unknown codes read as none.
func Wrap(v uint8) semantic.Wrap {
	if v > uint8(semantic.WrapThrough) {
		return semantic.WrapNone
	}
	return semantic.Wrap(v)
}

// FrameKind maps the shared shape kind code (0 empty .. 6 picture).
func FrameKind(v uint8) semantic.FrameKind {
	if v > uint8(semantic.FramePicture) {
		return semantic.FrameEmpty
	}
	return semantic.FrameKind(v)
}

// MakeFont builds a font run value from stored fields.
func MakeFont(doc *semantic.Document, id int, size float64, style uint16, color semantic.Color) semantic.Font {
	if size <= 0 {
		size = semantic.DefaultFont().Size
	}
	return semantic.Font{ID: id, Name: fonts.Name(doc.Fonts, id), Size: size, Flags: semantic.FontFlagsFromMac(style), Color: color}
}

// ReadFixedStyles reads `u16 n; n x {u16 recLen; u16 id; fix32 left,
// firstDelta, right; u8 justify; u8 nTabs; fix32 interline, before, after;
// nTabs x {fix32 pos; u8 align; u8 leader; u16 reserved}}` into styles.
// A broken style is an anomaly; the next one is found from recLen.
func (s *Session) ReadFixedStyles(c *scanner.Cursor, styles map[int]semantic.ParagraphStyle) error {
	n, err := c.U16()
	if err != nil {
		return err
	}
	if err := s.CheckCount(c, int(n), 4); err != nil {
		return err
	}
	for i := 0; i < int(n); i++ {
		start := c.Tell()
		recLen, err := c.U16()
		if err != nil {
			return err
		}
		end := c.Tell() + int64(recLen)
		body, err := c.Section(c.Tell(), end)
		if err != nil {
			return fmt.Errorf("style %d at %d: %w", i, start, err)
		}
		id, style, err := readFixedStyle(body)
		if err != nil {
			if ferr := s.Anomaly("style", start, err); ferr != nil {
				return ferr
			}
		} else {
			styles[id] = style
		}
		if err := c.Seek(end); err != nil {
			return err
		}
	}
	return nil
}

func readFixedStyle(c *scanner.Cursor) (int, semantic.ParagraphStyle, error) {
	p := semantic.DefaultParagraph()
	id, err := c.U16()
	if err != nil {
		return 0, p, err
	}
	var m [3]float64
	for i := range m {
		if m[i], err = c.Fixed32(); err != nil {
			return 0, p, err
		}
	}
	p.LeftMargin, p.FirstLineOffset, p.RightMargin = m[0], m[1], m[2]
	fs := c.Fields()
	just := fs.U8()
	nTabs := fs.U8()
	if err := fs.Err(); err != nil {
		return 0, p, err
	}
	p.Justify = Justify(just)
	var sp [3]float64
	for i := range sp {
		if sp[i], err = c.Fixed32(); err != nil {
			return 0, p, err
		}
	}
	if sp[0] > 0 {
		p.Interline = sp[0]
	}
	p.SpaceBefore, p.SpaceAfter = sp[1], sp[2]
	for i := 0; i < int(nTabs); i++ {
		fs := c.Fields()
		pos := fs.Fixed32()
		align := fs.U8()
		leader := fs.U8()
		fs.U16()
		if err := fs.Err(); err != nil {
			return 0, p, err
		}
		p.Tabs = append(p.Tabs, semantic.Tab{Pos: pos, Align: TabAlign(align), Leader: leader})
	}
	return int(id), p, nil
}

// Fill returns the colour of fg drawn through pattern over white. Pattern 0
// draws nothing.
func (s *Session) Fill(doc *semantic.Document, pattern int, fg semantic.Color) (semantic.Color, bool) {
	if pattern == 0 {
		return semantic.White, false
	}
	p, ok := doc.Palette.Pattern(pattern)
	if !ok {
		s.Log.Warn("invalid pattern id", observability.Int("id", pattern))
		return fg, true
	}
	return p.Blend(fg, semantic.White), true
}
