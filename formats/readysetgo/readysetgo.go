// Package readysetgo decodes ReadySetGo page layout documents.
//
// Both generations share a 0x20-byte header followed by a chain of typed
// records. Generation 1 uses 16-bit record lengths and integer coordinates;
// generation 2 uses 32-bit lengths, decimal fixed coordinates, a color table
// and linked text boxes. Each generation is its own Decoder.
package readysetgo

import (
	"context"
	"fmt"

	"github.com/wudi/legacydoc/formats"
	"github.com/wudi/legacydoc/ir/raw"
	"github.com/wudi/legacydoc/ir/semantic"
	"github.com/wudi/legacydoc/observability"
	"github.com/wudi/legacydoc/scanner"
)

const (
	Format     = "ReadySetGo"
	magic      = 0x0190
	headerSize = 0x20
)

// Record types.
const (
	recPage       = 1
	recShape      = 2
	recText       = 3
	recPicture    = 4
	recFonts      = 5
	recParaStyles = 6
	recColors     = 8
	recPatterns   = 9
	recHeaders    = 10
	recEnd        = 0xFF
)

// Generation selects the record layout.
type Generation int

const (
	Gen1 Generation = 1
	Gen2 Generation = 2
)

var tagNames = map[int]string{
	recPage: "Page", recShape: "Shape", recText: "Text", recPicture: "Picture",
	recFonts: "Fonts", recParaStyles: "ParaStyles", 7: "Reserved7",
	recColors: "Colors", recPatterns: "Patterns", recHeaders: "HeaderFooter",
	11: "Reserved11", 12: "Reserved12",
}

func tagName(t int) string {
	if n, ok := tagNames[t]; ok {
		return n
	}
	return fmt.Sprintf("Type%d", t)
}

type Decoder struct {
	gen Generation
}

func NewGen1() *Decoder { return &Decoder{gen: Gen1} }
func NewGen2() *Decoder { return &Decoder{gen: Gen2} }

func (d *Decoder) Name() string { return fmt.Sprintf("%s%d", Format, d.gen) }

func (d *Decoder) Generation() Generation { return d.gen }

func (d *Decoder) maxType() int {
	if d.gen == Gen1 {
		return recParaStyles
	}
	return 12
}

// readRecordHeader reads {u16 type; u16|u32 length}.
func (d *Decoder) readRecordHeader(c *scanner.Cursor) (raw.Header, error) {
	typ, err := c.U16()
	if err != nil {
		return raw.Header{}, err
	}
	var length int64
	if d.gen == Gen1 {
		v, err := c.U16()
		if err != nil {
			return raw.Header{}, err
		}
		length = int64(v)
	} else {
		v, err := c.U32()
		if err != nil {
			return raw.Header{}, err
		}
		length = int64(v)
	}
	h := raw.Header{Tag: tagName(int(typ)), ID: int64(typ), Length: length}
	switch {
	case typ == recEnd:
		if length != 0 {
			return h, fmt.Errorf("end record with %d bytes: %w", length, raw.ErrBadLength)
		}
		h.End = true
	case typ == 0 || int(typ) > d.maxType():
		return h, fmt.Errorf("type %d: %w", typ, raw.ErrIllegalRecord)
	}
	return h, nil
}

type header struct {
	version   int
	numPages  int
	width     int16
	height    int16
	hasMaster bool
	reserved  []byte
}

func readHeader(c *scanner.Cursor) (header, error) {
	var h header
	m, err := c.U16()
	if err != nil {
		return h, err
	}
	if m != magic {
		return h, fmt.Errorf("bad magic %#04x", m)
	}
	fs := c.Fields()
	v := fs.U16()
	n := fs.U16()
	h.width = fs.I16()
	h.height = fs.I16()
	master := fs.U8()
	rest := fs.Bytes(headerSize - 11)
	if err := fs.Err(); err != nil {
		return h, err
	}
	h.version, h.numPages, h.hasMaster, h.reserved = int(v), int(n), master != 0, rest
	return h, nil
}

func (d *Decoder) Identify(c *scanner.Cursor) formats.Identification {
	c = c.Clone()
	id := formats.Identification{Format: Format, Kind: semantic.KindLayout}
	if err := c.Seek(0); err != nil {
		return id
	}
	h, err := readHeader(c)
	if err != nil {
		return id
	}
	id.Version = h.version
	id.Confidence = formats.ConfidencePoor
	if _, err := raw.Replay(c, d.readRecordHeader, 0); err == nil {
		id.Confidence = formats.ConfidenceExcellent
	}
	return id
}

func (d *Decoder) controls() semantic.ControlMap {
	m := semantic.ControlMap{
		0x09: {Kind: semantic.CtrlTab},
		0x0D: {Kind: semantic.CtrlParagraph},
		0x0B: {Kind: semantic.CtrlLineBreak},
		0x04: {Kind: semantic.CtrlField, Field: semantic.FieldPageNumber},
	}
	if d.gen == Gen2 {
		m[0x03] = semantic.Control{Kind: semantic.CtrlField, Field: semantic.FieldDate}
		m[0x0C] = semantic.Control{Kind: semantic.CtrlPageBreak}
	}
	return m
}

// state collects the records of one walk. Cross references are resolved once
// the walk is over since a record may refer to one declared later.
type state struct {
	gen     Generation
	s       *formats.Session
	doc     *semantic.Document
	page    int
	pageSet bool
	shapes  []shape
	texts   []text
	styles  map[int]semantic.ParagraphStyle
	hdrs    []hdrRange
}

func (d *Decoder) Decode(ctx context.Context, s *formats.Session) (*semantic.Document, error) {
	c := s.Input.Clone()
	if err := c.Seek(0); err != nil {
		return nil, s.Structural("readysetgo header: %v", err)
	}
	h, err := readHeader(c)
	if err != nil {
		return nil, s.Structural("readysetgo header: %v", err)
	}
	doc := semantic.NewDocument(Format, h.version)
	doc.Kind = semantic.KindLayout
	doc.Controls = d.controls()
	doc.PageCount = h.numPages
	if h.width > 0 && h.height > 0 {
		doc.Layout = semantic.PageLayout{PaperWidth: float64(h.width), PaperHeight: float64(h.height)}
	}
	s.Reserved(doc, "header", 11, h.reserved)
	for i := 0; i < h.numPages && i < s.Limits.MaxListSize; i++ {
		doc.Page(i).UsesMaster = h.hasMaster
	}

	st := &state{gen: d.gen, s: s, doc: doc, styles: make(map[int]semantic.ParagraphStyle)}
	w := s.Walker(c, d.readRecordHeader)
	for w.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec := w.Record()
		e, ok := s.Table.Insert(rec.Tag, raw.Entry{Begin: rec.Payload, Length: rec.Length, ID: int(rec.ID)})
		if !ok {
			continue
		}
		body, err := rec.Body(s.Input)
		if err == nil {
			err = st.record(int(rec.ID), body)
		}
		if err != nil {
			if ferr := s.Anomaly(rec.Tag, rec.Offset, rec.Skip(err)); ferr != nil {
				return nil, ferr
			}
			continue
		}
		s.Table.MarkParsed(e)
	}
	if err := w.Err(); err != nil {
		// Records read before the break stay in the document.
		if ferr := s.Anomaly("records", w.Offset(), err); ferr != nil {
			return nil, ferr
		}
	}

	st.buildZones()
	st.buildFrames()
	st.buildHeaders()
	if d.gen == Gen2 {
		doc.ResolveFrameLinks(s.Log)
	}
	s.Finish()
	return doc, nil
}

func (st *state) record(typ int, c *scanner.Cursor) error {
	switch typ {
	case recPage:
		return st.readPage(c)
	case recShape:
		return st.readShape(c)
	case recText:
		return st.readText(c)
	case recPicture:
		id, err := c.U16()
		if err != nil {
			return err
		}
		pic, err := st.s.ReadPicture(c, int(id))
		if err != nil {
			return err
		}
		st.doc.Pictures[pic.ID] = pic
		return nil
	case recFonts:
		return st.s.ReadFonts(c, st.doc)
	case recParaStyles:
		return st.readParaStyles(c)
	case recColors:
		return st.s.ReadColors(c, st.doc)
	case recPatterns:
		return st.s.ReadPatterns(c, st.doc)
	case recHeaders:
		return st.readHeaders(c)
	default:
		b, err := c.ReadBytes(c.Remaining())
		if err != nil {
			return err
		}
		st.s.Log.Debug("reserved record skipped", observability.Int("type", typ), observability.Int("length", len(b)))
		st.s.Reserved(st.doc, tagName(typ), c.Begin(), b)
		return nil
	}
}

func (st *state) readPage(c *scanner.Cursor) error {
	number, err := c.U16()
	if err != nil {
		return err
	}
	flags, err := c.U16()
	if err != nil {
		return err
	}
	st.pageSet = true
	if number == 0 {
		st.page = semantic.NoLink
		return nil
	}
	if int(number) > st.s.Limits.MaxListSize {
		return fmt.Errorf("page number %d exceeds limit %d", number, st.s.Limits.MaxListSize)
	}
	st.page = int(number) - 1
	st.doc.Page(st.page).UsesMaster = flags&1 != 0
	return nil
}
