// Package studentwriting decodes Student Writing Center documents: reports and
// letters built around one flowing text zone, and newsletters and signs built
// from positioned frames.
//
// The file is a directory of tagged entries. The directory is the master
// structure; every entry it lists is validated on its own and a broken entry
// never takes its siblings down.
package studentwriting

import (
	"context"
	"fmt"

	"github.com/wudi/legacydoc/coords"
	"github.com/wudi/legacydoc/formats"
	"github.com/wudi/legacydoc/ir/raw"
	"github.com/wudi/legacydoc/ir/semantic"
	"github.com/wudi/legacydoc/observability"
	"github.com/wudi/legacydoc/scanner"
)

const (
	Name       = "StudentWritingCenter"
	magic      = "SWCD"
	headerSize = 0x10
	dirEntry   = 16
	frameSize  = 40
)

// Directory tags.
const (
	TagDocInfo   = "DOCI"
	TagPrintInfo = "PINF"
	TagFonts     = "FONT"
	TagColors    = "COLR"
	TagStyles    = "STYL"
	TagText      = "TEXT"
	TagFrames    = "FRAM"
	TagPicture   = "PICT"
	TagNotes     = "NOTE"
	TagUnknown   = "Unknown"
)

var knownTags = map[string]bool{
	TagDocInfo: true, TagPrintInfo: true, TagFonts: true, TagColors: true, TagStyles: true,
	TagText: true, TagFrames: true, TagPicture: true, TagNotes: true,
}

// DocKind is the document template chosen when the file was created.
type DocKind int

const (
	Report DocKind = iota
	Newsletter
	Letter
	Sign
)

func (k DocKind) flowing() bool { return k == Report || k == Letter }

// Frame flags.
const (
	frameFilled   = 1 << 0
	frameNoBorder = 1 << 1
)

var controls = semantic.ControlMap{
	0x09: {Kind: semantic.CtrlTab},
	0x0D: {Kind: semantic.CtrlParagraph},
	0x0B: {Kind: semantic.CtrlLineBreak},
	0x0C: {Kind: semantic.CtrlPageBreak},
	0x01: {Kind: semantic.CtrlField, Field: semantic.FieldPageNumber},
	0x02: {Kind: semantic.CtrlField, Field: semantic.FieldDate},
	0x03: {Kind: semantic.CtrlField, Field: semantic.FieldTime},
	0x1F: {Kind: semantic.CtrlAnchor},
}

type Decoder struct{}

func New() *Decoder { return &Decoder{} }

func (*Decoder) Name() string { return Name }

type header struct {
	version   int
	kind      DocKind
	dirOffset int64
	entries   int
}

func readHeader(c *scanner.Cursor) (header, error) {
	var h header
	m, err := c.ReadBytes(4)
	if err != nil {
		return h, err
	}
	if string(m) != magic {
		return h, fmt.Errorf("bad magic %q", m)
	}
	fs := c.Fields()
	v := fs.U16()
	k := fs.U16()
	dir := fs.U32()
	n := fs.U16()
	if err := fs.Err(); err != nil {
		return h, err
	}
	if v < 1 || v > 2 {
		return h, fmt.Errorf("unknown version %d", v)
	}
	h.version, h.kind, h.dirOffset, h.entries = int(v), DocKind(k), int64(dir), int(n)
	return h, nil
}

func docKind(k DocKind) semantic.DocKind {
	if k.flowing() {
		return semantic.KindText
	}
	return semantic.KindLayout
}

type dirEntryRec struct {
	tag           string
	id            int
	flags         uint16
	begin, length int64
}

// readDirectory fails when the directory itself leaves the file.
func readDirectory(c *scanner.Cursor, h header) ([]dirEntryRec, error) {
	end := h.dirOffset + int64(h.entries)*dirEntry
	if h.dirOffset < headerSize || !c.CheckPosition(h.dirOffset) || !c.CheckPosition(end) {
		return nil, fmt.Errorf("directory [%d,%d] outside file of %d bytes", h.dirOffset, end, c.Size())
	}
	if err := c.Seek(h.dirOffset); err != nil {
		return nil, err
	}
	out := make([]dirEntryRec, 0, h.entries)
	for i := 0; i < h.entries; i++ {
		fs := c.Fields()
		tag := fs.Bytes(4)
		id := fs.U16()
		flags := fs.U16()
		begin := fs.U32()
		length := fs.U32()
		if err := fs.Err(); err != nil {
			return nil, err
		}
		out = append(out, dirEntryRec{tag: string(tag), id: int(id), flags: flags, begin: int64(begin), length: int64(length)})
	}
	return out, nil
}

func (*Decoder) Identify(c *scanner.Cursor) formats.Identification {
	c = c.Clone()
	id := formats.Identification{Format: Name}
	if err := c.Seek(0); err != nil {
		return id
	}
	h, err := readHeader(c)
	if err != nil {
		return id
	}
	id.Version, id.Kind = h.version, docKind(h.kind)
	id.Confidence = formats.ConfidencePoor
	dir, err := readDirectory(c, h)
	if err != nil {
		return id
	}
	for _, e := range dir {
		if e.tag == TagText && e.begin >= headerSize && e.length <= c.Size()-e.begin {
			id.Confidence = formats.ConfidenceExcellent
			break
		}
	}
	return id
}

type state struct {
	s      *formats.Session
	doc    *semantic.Document
	kind   DocKind
	styles map[int]semantic.ParagraphStyle
	header int
	footer int
	frames bool
}

func (d *Decoder) Decode(ctx context.Context, s *formats.Session) (*semantic.Document, error) {
	c := s.Input.Clone()
	if err := c.Seek(0); err != nil {
		return nil, s.Structural("student writing header: %v", err)
	}
	h, err := readHeader(c)
	if err != nil {
		return nil, s.Structural("student writing header: %v", err)
	}
	dir, err := readDirectory(c, h)
	if err != nil {
		return nil, s.Structural("student writing directory: %v", err)
	}
	doc := semantic.NewDocument(Name, h.version)
	doc.Kind = docKind(h.kind)
	doc.Controls = controls
	st := &state{s: s, doc: doc, kind: h.kind, styles: make(map[int]semantic.ParagraphStyle), header: semantic.NoLink, footer: semantic.NoLink}

	for _, e := range dir {
		tag := e.tag
		if !knownTags[tag] {
			s.Log.Debug("unknown directory tag", observability.String("tag", fmt.Sprintf("%q", e.tag)), observability.Int64("begin", e.begin))
			tag = TagUnknown
		}
		s.Table.Insert(tag, raw.Entry{Begin: e.begin, Length: e.length, ID: e.id})
	}

	// Shared tables come first so text and frames can resolve against them.
	order := []struct {
		tag string
		fn  func(*raw.Entry, *scanner.Cursor) error
	}{
		{TagPrintInfo, func(_ *raw.Entry, c *scanner.Cursor) error { return s.ReadPrintInfo(c, doc) }},
		{TagFonts, func(_ *raw.Entry, c *scanner.Cursor) error { return s.ReadFonts(c, doc) }},
		{TagColors, func(_ *raw.Entry, c *scanner.Cursor) error { return s.ReadColors(c, doc) }},
		{TagStyles, st.readStyles},
		{TagDocInfo, st.readDocInfo},
		{TagText, st.readText},
		{TagPicture, st.readPicture},
		{TagFrames, st.readFrames},
		{TagNotes, st.readNotes},
	}
	for _, step := range order {
		for _, e := range s.Table.FindAll(step.tag) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			body, err := s.Input.Section(e.Begin, e.End())
			if err == nil {
				err = step.fn(e, body)
			}
			if err != nil {
				if ferr := s.Anomaly(e.Type, e.Begin, err); ferr != nil {
					return nil, ferr
				}
				continue
			}
			s.Table.MarkParsed(e)
		}
	}

	if h.kind.flowing() {
		if _, ok := doc.Zones[doc.BodyZone]; !ok {
			return nil, s.Structural("student writing: body zone %d missing", doc.BodyZone)
		}
	} else {
		doc.BodyZone = semantic.NoLink
		if !st.frames {
			return nil, s.Structural("student writing: frame list missing")
		}
	}
	st.headerFooters()
	doc.ResolveFrameLinks(s.Log)
	s.Finish()
	return doc, nil
}

func (st *state) readDocInfo(_ *raw.Entry, c *scanner.Cursor) error {
	fs := c.Fields()
	pages := fs.U16()
	body := fs.U16()
	hdr := fs.I16()
	ftr := fs.I16()
	first := fs.U16()
	flags := fs.U16()
	if err := fs.Err(); err != nil {
		return err
	}
	st.doc.PageCount = int(pages)
	st.doc.BodyZone = int(body)
	st.doc.FirstPageNumber = int(first)
	if hdr >= 0 {
		st.header = int(hdr)
	}
	if ftr >= 0 {
		st.footer = int(ftr)
	}
	if flags != 0 {
		st.s.Log.Debug("document flags", observability.Int("flags", int(flags)))
	}
	return nil
}

func (st *state) headerFooters() {
	for _, hf := range []semantic.HeaderFooter{{Kind: semantic.Header, Zone: st.header}, {Kind: semantic.Footer, Zone: st.footer}} {
		if hf.Zone == semantic.NoLink {
			continue
		}
		if _, ok := st.doc.Zones[hf.Zone]; !ok {
			st.s.Log.Warn("header/footer zone missing", observability.Int("zone", hf.Zone))
			continue
		}
		st.doc.HeaderFooters = append(st.doc.HeaderFooters, hf)
	}
}

func (st *state) readStyles(_ *raw.Entry, c *scanner.Cursor) error {
	return st.s.ReadFixedStyles(c, st.styles)
}

func (st *state) readText(e *raw.Entry, c *scanner.Cursor) error {
	n, err := c.U32()
	if err != nil {
		return err
	}
	chars, err := c.ReadBytes(int64(n))
	if err != nil {
		return err
	}
	if err := formats.SkipPad(c, int64(n)); err != nil {
		return err
	}
	z := semantic.NewTextZone(e.ID, chars)
	np, err := c.U16()
	if err != nil {
		return err
	}
	if err := st.s.CheckCount(c, int(np), 6); err != nil {
		return err
	}
	for i := 0; i < int(np); i++ {
		fs := c.Fields()
		pos := fs.U32()
		id := fs.U16()
		if err := fs.Err(); err != nil {
			return err
		}
		style, ok := st.styles[int(id)]
		if !ok {
			st.s.Log.Warn("unknown paragraph style", observability.Int("zone", e.ID), observability.Int("style", int(id)))
			style = semantic.DefaultParagraph()
		}
		z.AddParagraph(int(pos), style)
	}
	nf, err := c.U16()
	if err != nil {
		return err
	}
	if err := st.s.CheckCount(c, int(nf), 12); err != nil {
		return err
	}
	for i := 0; i < int(nf); i++ {
		fs := c.Fields()
		pos := fs.U32()
		font := fs.U16()
		size := fs.U16()
		style := fs.U16()
		color := fs.U16()
		if err := fs.Err(); err != nil {
			return err
		}
		z.AddFont(int(pos), formats.MakeFont(st.doc, int(font), float64(size), style, st.doc.PaletteColor(int(color), st.s.Log)))
	}
	if _, dup := st.doc.Zones[e.ID]; dup {
		st.s.Log.Warn("duplicate text zone replaced", observability.Int("zone", e.ID))
	}
	st.doc.AddZone(z)
	return nil
}

func (st *state) readPicture(e *raw.Entry, c *scanner.Cursor) error {
	pic, err := st.s.ReadPicture(c, e.ID)
	if err != nil {
		return err
	}
	st.doc.Pictures[pic.ID] = pic
	return nil
}

func link(v int16) int {
	if v < 0 {
		return semantic.NoLink
	}
	return int(v)
}

func (st *state) readFrames(_ *raw.Entry, c *scanner.Cursor) error {
	n, err := c.U16()
	if err != nil {
		return err
	}
	if err := st.s.CheckCount(c, int(n), frameSize); err != nil {
		return err
	}
	m := st.doc.Layout.Margins
	shift := coords.Translate(m.Left, m.Top)
	for i := 0; i < int(n); i++ {
		off := c.Tell()
		fs := c.Fields()
		id := fs.U16()
		page := fs.U16()
		kind := fs.U8()
		wrap := fs.U8()
		flags := fs.U16()
		if err := fs.Err(); err != nil {
			return err
		}
		box, err := formats.ReadBoxFixed(c)
		if err != nil {
			return err
		}
		tz := fs.I16()
		pic := fs.I16()
		lw := fs.U16()
		lc := fs.U16()
		fc := fs.U16()
		prev := fs.I16()
		next := fs.I16()
		res := fs.Bytes(2)
		if err := fs.Err(); err != nil {
			return err
		}
		st.s.Reserved(st.doc, "frame", off+38, res)

		f := semantic.NewFrame(int(id), int(page))
		f.Kind = formats.FrameKind(kind)
		f.Box = box.Apply(shift)
		f.Style.Wrap = formats.Wrap(wrap)
		if flags&frameNoBorder == 0 {
			f.Style.LineWidth = float64(lw) / 256
			f.Style.LineColor = st.doc.PaletteColor(int(lc), st.s.Log)
		}
		if flags&frameFilled != 0 {
			f.Style.Filled = true
			f.Style.FillColor = st.doc.PaletteColor(int(fc), st.s.Log)
		}
		f.Prev, f.Next = link(prev), link(next)
		if z := link(tz); z != semantic.NoLink {
			if _, ok := st.doc.Zones[z]; ok {
				f.TextZone = z
			} else {
				st.s.Log.Warn("frame text zone missing", observability.Int("frame", f.ID), observability.Int("zone", z))
			}
		}
		if p := link(pic); p != semantic.NoLink {
			if _, ok := st.doc.Pictures[p]; ok {
				f.Picture = p
			} else {
				st.s.Log.Warn("frame picture missing", observability.Int("frame", f.ID), observability.Int("picture", p))
			}
		}
		if _, dup := st.doc.Frames[f.ID]; dup {
			st.s.Log.Warn("duplicate frame id", observability.Int("frame", f.ID))
			continue
		}
		if int(page) >= st.s.Limits.MaxListSize {
			st.s.Log.Warn("frame page out of range", observability.Int("frame", f.ID), observability.Int("page", int(page)))
			continue
		}
		st.doc.AddFrame(f)
	}
	st.frames = true
	return nil
}

func (st *state) readNotes(_ *raw.Entry, c *scanner.Cursor) error {
	n, err := c.U16()
	if err != nil {
		return err
	}
	if err := st.s.CheckCount(c, int(n), 6); err != nil {
		return err
	}
	body, ok := st.doc.Zones[st.doc.BodyZone]
	if !ok {
		return fmt.Errorf("notes without body zone %d", st.doc.BodyZone)
	}
	for i := 0; i < int(n); i++ {
		fs := c.Fields()
		pos := fs.U32()
		zone := fs.U16()
		if err := fs.Err(); err != nil {
			return err
		}
		if int64(pos) >= int64(body.Len()) {
			st.s.Log.Warn("note anchor outside body", observability.Int64("pos", int64(pos)))
			continue
		}
		if _, ok := st.doc.Zones[int(zone)]; !ok {
			st.s.Log.Warn("note zone missing", observability.Int("zone", int(zone)))
			continue
		}
		body.AddAnchor(int(pos), semantic.SubDocument{Kind: semantic.SubText, ID: int(zone), Note: semantic.NoteFootnote})
	}
	return nil
}
