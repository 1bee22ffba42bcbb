// Package wordmaker decodes WordMaker documents.
//
// A WordMaker file has no directory: a fixed header gives the size of every
// section and the sections follow back to back. The body, header and footer
// texts form one character stream; font and tab runs address positions in
// that stream.
package wordmaker

import (
	"bytes"
	"context"
	"fmt"

	"github.com/wudi/legacydoc/fonts"
	"github.com/wudi/legacydoc/formats"
	"github.com/wudi/legacydoc/ir/raw"
	"github.com/wudi/legacydoc/ir/semantic"
	"github.com/wudi/legacydoc/observability"
	"github.com/wudi/legacydoc/printinfo"
	"github.com/wudi/legacydoc/scanner"
	"github.com/wudi/legacydoc/security"
)

const (
	Name       = "WordMaker"
	magic      = 0x574D
	headerSize = 0x20
	paraSize   = 10
	fontSize   = 8
)

// Text zone ids.
const (
	bodyZone = iota
	headerZone
	footerZone
)

var controls = semantic.ControlMap{
	0x09: {Kind: semantic.CtrlTab},
	0x0D: {Kind: semantic.CtrlParagraph},
	0x0B: {Kind: semantic.CtrlLineBreak},
	0x0C: {Kind: semantic.CtrlPageBreak},
	0x00: {Kind: semantic.CtrlField, Field: semantic.FieldPageNumber},
	0x05: {Kind: semantic.CtrlField, Field: semantic.FieldPageCount},
	0x02: {Kind: semantic.CtrlField, Field: semantic.FieldDate},
}

type Decoder struct{}

func New() *Decoder { return &Decoder{} }

func (*Decoder) Name() string { return Name }

type header struct {
	version      int
	textLength   int64
	nFonts       int
	nParagraphs  int
	nFontRuns    int
	hasPrintInfo bool
	headerLength int64
	footerLength int64
	firstPage    int
	nTabRuns     int
	reserved     []byte
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
	textLen := fs.U32()
	nFonts := fs.U16()
	nParas := fs.U16()
	nRuns := fs.U16()
	pi := fs.U8()
	res1 := fs.Bytes(1)
	hdrLen := fs.U16()
	ftrLen := fs.U16()
	first := fs.U16()
	nTabs := fs.U16()
	res2 := fs.Bytes(8)
	if err := fs.Err(); err != nil {
		return h, err
	}
	if v < 1 || v > 3 {
		return h, fmt.Errorf("unknown version %d", v)
	}
	h = header{
		version:      int(v),
		textLength:   int64(textLen),
		nFonts:       int(nFonts),
		nParagraphs:  int(nParas),
		nFontRuns:    int(nRuns),
		hasPrintInfo: pi != 0,
		headerLength: int64(hdrLen),
		footerLength: int64(ftrLen),
		firstPage:    int(first),
		nTabRuns:     int(nTabs),
		reserved:     append(res1, res2...),
	}
	return h, nil
}

type paraRec struct {
	offset      int64
	left        int16
	firstIndent int16
	right       int16
	justify     uint8
	spacing     uint8
	before      int16
}

type fontRun struct {
	pos   int64
	font  int
	size  float64
	style uint8
}

type tabRun struct {
	pos  int64
	tabs []semantic.Tab
}

// sections is what a sequential read recovered. Fields past the first
// failure stay empty.
type sections struct {
	printInfo *scanner.Cursor
	haveBody  bool
	body      []byte
	header    []byte
	footer    []byte
	paras     []paraRec
	fonts     []fontRun
	tabs      []tabRun
	names     map[int][]byte
	end       int64
}

func checkCount(c *scanner.Cursor, n, minItem int, limits security.Limits) error {
	if n > limits.MaxListSize {
		return fmt.Errorf("list of %d items exceeds limit %d", n, limits.MaxListSize)
	}
	if int64(n)*int64(minItem) > c.Remaining() {
		return fmt.Errorf("list of %d items needs %d bytes, %d left: %w", n, n*minItem, c.Remaining(), scanner.ErrOutOfBounds)
	}
	return nil
}

// readSections walks the sections in file order starting after the header.
func readSections(c *scanner.Cursor, h header, limits security.Limits) (*sections, error) {
	out := &sections{names: make(map[int][]byte)}
	if h.hasPrintInfo {
		pi, err := c.Section(c.Tell(), c.Tell()+printinfo.Size)
		if err != nil {
			return out, fmt.Errorf("print record: %w", err)
		}
		out.printInfo = pi
		if err := c.Skip(printinfo.Size); err != nil {
			return out, fmt.Errorf("print record: %w", err)
		}
	}
	var err error
	if out.body, err = c.ReadBytes(h.textLength); err != nil {
		return out, fmt.Errorf("body text: %w", err)
	}
	out.haveBody = true
	if out.header, err = c.ReadBytes(h.headerLength); err != nil {
		return out, fmt.Errorf("header text: %w", err)
	}
	if out.footer, err = c.ReadBytes(h.footerLength); err != nil {
		return out, fmt.Errorf("footer text: %w", err)
	}

	if err := checkCount(c, h.nParagraphs, paraSize, limits); err != nil {
		return out, fmt.Errorf("paragraphs: %w", err)
	}
	for i := 0; i < h.nParagraphs; i++ {
		p := paraRec{offset: c.Tell()}
		fs := c.Fields()
		p.left = fs.I16()
		p.firstIndent = fs.I16()
		p.right = fs.I16()
		p.justify = fs.U8()
		p.spacing = fs.U8()
		p.before = fs.I16()
		if err := fs.Err(); err != nil {
			return out, fmt.Errorf("paragraph %d: %w", i, err)
		}
		out.paras = append(out.paras, p)
	}

	if err := checkCount(c, h.nFontRuns, fontSize, limits); err != nil {
		return out, fmt.Errorf("font runs: %w", err)
	}
	for i := 0; i < h.nFontRuns; i++ {
		fs := c.Fields()
		pos := fs.U32()
		font := fs.U16()
		size := fs.U8()
		style := fs.U8()
		if err := fs.Err(); err != nil {
			return out, fmt.Errorf("font run %d: %w", i, err)
		}
		out.fonts = append(out.fonts, fontRun{pos: int64(pos), font: int(font), size: float64(size), style: style})
	}

	if err := checkCount(c, h.nTabRuns, 6, limits); err != nil {
		return out, fmt.Errorf("tab runs: %w", err)
	}
	for i := 0; i < h.nTabRuns; i++ {
		fs := c.Fields()
		pos := fs.U32()
		n := fs.U8()
		fs.Bytes(1)
		if err := fs.Err(); err != nil {
			return out, fmt.Errorf("tab run %d: %w", i, err)
		}
		run := tabRun{pos: int64(pos)}
		for k := 0; k < int(n); k++ {
			at := fs.I16()
			align := fs.U8()
			leader := fs.U8()
			if err := fs.Err(); err != nil {
				return out, fmt.Errorf("tab run %d: %w", i, err)
			}
			run.tabs = append(run.tabs, semantic.Tab{Pos: float64(at), Align: formats.TabAlign(align), Leader: leader})
		}
		out.tabs = append(out.tabs, run)
	}

	if err := checkCount(c, h.nFonts, 3, limits); err != nil {
		return out, fmt.Errorf("fonts: %w", err)
	}
	for i := 0; i < h.nFonts; i++ {
		id, err := c.U16()
		if err != nil {
			return out, fmt.Errorf("font %d: %w", i, err)
		}
		name, err := c.PascalString()
		if err != nil {
			return out, fmt.Errorf("font %d: %w", i, err)
		}
		out.names[int(id)] = name
	}
	out.end = c.Tell()
	return out, nil
}

func (*Decoder) Identify(c *scanner.Cursor) formats.Identification {
	c = c.Clone()
	id := formats.Identification{Format: Name, Kind: semantic.KindText}
	if err := c.Seek(0); err != nil {
		return id
	}
	h, err := readHeader(c)
	if err != nil {
		return id
	}
	id.Version = h.version
	id.Confidence = formats.ConfidencePoor
	if sec, err := readSections(c, h, security.DefaultLimits()); err == nil && sec.end == c.Size() {
		id.Confidence = formats.ConfidenceExcellent
	}
	return id
}

func (d *Decoder) Decode(ctx context.Context, s *formats.Session) (*semantic.Document, error) {
	c := s.Input.Clone()
	if err := c.Seek(0); err != nil {
		return nil, s.Structural("wordmaker header: %v", err)
	}
	h, err := readHeader(c)
	if err != nil {
		return nil, s.Structural("wordmaker header: %v", err)
	}
	doc := semantic.NewDocument(Name, h.version)
	doc.Controls = controls
	if h.firstPage > 0 {
		doc.FirstPageNumber = h.firstPage
	}
	s.Reserved(doc, "header", 0x0F, h.reserved)

	start := c.Tell()
	sec, err := readSections(c, h, s.Limits)
	if !sec.haveBody {
		return nil, s.Structural("wordmaker: %v", err)
	}
	if err != nil {
		if ferr := s.Anomaly("sections", c.Tell(), err); ferr != nil {
			return nil, ferr
		}
	} else if sec.end != c.Size() {
		s.Log.Debug("trailing bytes after fonts", observability.Int64("count", c.Size()-sec.end))
	}
	entry, inserted := s.Table.Insert("Sections", raw.Entry{Begin: start, Length: c.Tell() - start})
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}

	if sec.printInfo != nil {
		if err := s.ReadPrintInfo(sec.printInfo, doc); err != nil {
			return nil, err
		}
	}
	for id, name := range sec.names {
		doc.Fonts[id] = fonts.MacRoman.Decode(name)
	}
	build(s, doc, sec)
	if inserted && err == nil {
		s.Table.MarkParsed(entry)
	}
	s.Finish()
	return doc, nil
}

// build splits the shared character stream into zones and applies the
// paragraph, font and tab runs to each.
func build(s *formats.Session, doc *semantic.Document, sec *sections) {
	texts := []struct {
		id   int
		text []byte
	}{{bodyZone, sec.body}, {headerZone, sec.header}, {footerZone, sec.footer}}

	para := 0
	var base int64
	for _, t := range texts {
		if t.id != bodyZone && len(t.text) == 0 {
			continue
		}
		z := semantic.NewTextZone(t.id, t.text)
		end := base + int64(len(t.text))
		// One paragraph record per paragraph, in stream order.
		for pos := 0; pos < len(t.text) || pos == 0; {
			if para < len(sec.paras) {
				z.AddParagraph(pos, paragraph(sec.paras[para]))
				para++
			}
			next := bytes.IndexByte(t.text[pos:], 0x0D)
			if next < 0 || pos+next+1 >= len(t.text) {
				break
			}
			pos += next + 1
		}
		for i, r := range sec.fonts {
			if r.pos >= end {
				continue
			}
			pos := r.pos - base
			if pos < 0 {
				// A run begun in an earlier section continues here unless
				// the next run replaces it before this section starts.
				if i+1 < len(sec.fonts) && sec.fonts[i+1].pos <= base {
					continue
				}
				pos = 0
			}
			z.AddFont(int(pos), formats.MakeFont(doc, r.font, r.size, uint16(r.style), semantic.Black))
		}
		for _, r := range sec.tabs {
			if r.pos >= base && r.pos < end {
				z.AddTabs(int(r.pos-base), r.tabs)
			}
		}
		doc.AddZone(z)
		switch t.id {
		case headerZone:
			doc.HeaderFooters = append(doc.HeaderFooters, semantic.HeaderFooter{Kind: semantic.Header, Zone: headerZone})
		case footerZone:
			doc.HeaderFooters = append(doc.HeaderFooters, semantic.HeaderFooter{Kind: semantic.Footer, Zone: footerZone})
		}
		base = end
	}
	if para < len(sec.paras) {
		s.Log.Debug("unused paragraph records", observability.Int("count", len(sec.paras)-para))
	}
	doc.BodyZone = bodyZone
}

var spacing = map[uint8]float64{0: 1, 1: 1.5, 2: 2}

func paragraph(r paraRec) semantic.ParagraphStyle {
	p := semantic.DefaultParagraph()
	p.LeftMargin = float64(r.left)
	p.FirstLineOffset = float64(r.firstIndent) - float64(r.left)
	p.RightMargin = float64(r.right)
	p.Justify = formats.Justify(r.justify)
	if v, ok := spacing[r.spacing]; ok {
		p.Interline = v
	}
	p.SpaceBefore = float64(r.before)
	return p
}
