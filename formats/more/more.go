// Package more decodes documents written by the More outline processor.
//
// A More file starts with a 0x80-byte header holding a fixed table of eight
// zones. The outline (Topics) is the body and is required; every other zone is
// optional and decoded independently.
package more

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/legacydoc/formats"
	"github.com/wudi/legacydoc/ir/raw"
	"github.com/wudi/legacydoc/ir/semantic"
	"github.com/wudi/legacydoc/observability"
	"github.com/wudi/legacydoc/scanner"
)

const (
	Name       = "More"
	magic      = 0x4D52
	headerSize = 0x80
	topicSize  = 20
	runSize    = 8
	indentStep = 18
	// anchorByte is inserted into the body text to carry a comment or note.
	anchorByte = 0x1F
)

// Zone slot names, in header order.
const (
	ZonePrintInfo    = "PrintInfo"
	ZoneDocInfo      = "DocInfo"
	ZoneFonts        = "Fonts"
	ZoneRulers       = "Rulers"
	ZoneTopics       = "Topics"
	ZoneComments     = "Comments"
	ZoneSpeakerNotes = "SpeakerNotes"
	ZoneSlides       = "Slides"
)

var slots = []string{ZonePrintInfo, ZoneDocInfo, ZoneFonts, ZoneRulers, ZoneTopics, ZoneComments, ZoneSpeakerNotes, ZoneSlides}

// Text zone ids.
const (
	bodyZone    = 0
	headerZone  = 1
	footerZone  = 2
	commentBase = 1 << 16
	noteBase    = 2 << 16
)

// Topic flags.
const (
	flagCollapsed = 1 << iota
	flagHidden
	flagPageBreak
	flagBullet
)

var controls = semantic.ControlMap{
	0x09: {Kind: semantic.CtrlTab},
	0x0D: {Kind: semantic.CtrlParagraph},
	0x0B: {Kind: semantic.CtrlLineBreak},
	0x0C: {Kind: semantic.CtrlPageBreak},
	0x01: {Kind: semantic.CtrlField, Field: semantic.FieldPageNumber},
	0x02: {Kind: semantic.CtrlField, Field: semantic.FieldDate},
	0x03: {Kind: semantic.CtrlField, Field: semantic.FieldTime},
	anchorByte: {Kind: semantic.CtrlAnchor},
}

type Decoder struct{}

func New() *Decoder { return &Decoder{} }

func (*Decoder) Name() string { return Name }

type slot struct {
	name          string
	begin, length int64
}

func readHeader(c *scanner.Cursor) (version int, table []slot, err error) {
	v, err := c.U16()
	if err != nil {
		return 0, nil, err
	}
	m, err := c.U16()
	if err != nil {
		return 0, nil, err
	}
	if m != magic || (v != 6 && v != 8) {
		return 0, nil, fmt.Errorf("bad magic %#x version %d", m, v)
	}
	for _, name := range slots {
		b, err := c.U32()
		if err != nil {
			return 0, nil, err
		}
		l, err := c.U32()
		if err != nil {
			return 0, nil, err
		}
		table = append(table, slot{name: name, begin: int64(b), length: int64(l)})
	}
	return int(v), table, nil
}

func (*Decoder) Identify(c *scanner.Cursor) formats.Identification {
	c = c.Clone()
	id := formats.Identification{Format: Name, Kind: semantic.KindText}
	if err := c.Seek(0); err != nil {
		return id
	}
	version, table, err := readHeader(c)
	if err != nil {
		return id
	}
	id.Version = productVersion(version)
	id.Confidence = formats.ConfidencePoor
	if c.Size() < headerSize {
		return id
	}
	haveTopics := false
	for _, s := range table {
		if s.begin == 0 && s.length == 0 {
			continue
		}
		if s.begin < headerSize || s.length > c.Size()-s.begin {
			return id
		}
		if s.name == ZoneTopics && s.length >= 2 {
			haveTopics = true
		}
	}
	if haveTopics {
		id.Confidence = formats.ConfidenceExcellent
	}
	return id
}

type topic struct {
	offset    int64
	level     int
	flags     uint8
	ruler     int
	textBegin int64
	textLen   int64
	comment   int
	note      int
}

type state struct {
	s       *formats.Session
	doc     *semantic.Document
	rulers  []semantic.ParagraphStyle
	topics  []topic
	slides  [][2]int
	entries map[string]*raw.Entry
}

func (d *Decoder) Decode(ctx context.Context, s *formats.Session) (*semantic.Document, error) {
	c := s.Input.Clone()
	if err := c.Seek(0); err != nil {
		return nil, s.Structural("more header: %v", err)
	}
	version, table, err := readHeader(c)
	if err != nil {
		return nil, s.Structural("more header: %v", err)
	}
	doc := semantic.NewDocument(Name, productVersion(version))
	doc.Kind = semantic.KindText
	doc.Controls = controls
	st := &state{s: s, doc: doc, entries: make(map[string]*raw.Entry)}
	s.Reserved(doc, "header", 0x44, mustBytes(c, headerSize-0x44))

	for _, sl := range table {
		if sl.begin == 0 && sl.length == 0 {
			continue
		}
		if e, ok := s.Table.Insert(sl.name, raw.Entry{Begin: sl.begin, Length: sl.length}); ok {
			st.entries[sl.name] = e
		}
	}
	if _, ok := st.entries[ZoneTopics]; !ok {
		return nil, s.Structural("more: topic zone missing or out of bounds")
	}

	steps := []struct {
		zone string
		fn   func(*scanner.Cursor) error
	}{
		{ZonePrintInfo, func(c *scanner.Cursor) error { return s.ReadPrintInfo(c, doc) }},
		{ZoneFonts, func(c *scanner.Cursor) error { return s.ReadFonts(c, doc) }},
		{ZoneRulers, st.readRulers},
		{ZoneDocInfo, st.readDocInfo},
		{ZoneComments, func(c *scanner.Cursor) error { return st.readTextList(c, commentBase) }},
		{ZoneSpeakerNotes, func(c *scanner.Cursor) error { return st.readTextList(c, noteBase) }},
		{ZoneSlides, st.readSlides},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, ok := st.entries[step.zone]
		if !ok {
			continue
		}
		if err := st.zone(e, step.fn); err != nil {
			return nil, err
		}
	}

	// The outline is the body: failing to read it fails the document.
	topics := st.entries[ZoneTopics]
	body, err := s.Input.Section(topics.Begin, topics.End())
	if err != nil {
		return nil, s.Structural("more topics: %v", err)
	}
	if err := st.readTopics(body); err != nil {
		return nil, s.Structural("more topics: %v", err)
	}
	s.Table.MarkParsed(topics)
	if err := st.buildBody(); err != nil {
		return nil, err
	}
	if len(st.slides) > 0 {
		doc.PageCount = len(st.slides)
	}
	s.Finish()
	return doc, nil
}

func mustBytes(c *scanner.Cursor, n int64) []byte {
	b, err := c.ReadBytes(n)
	if err != nil {
		return nil
	}
	return b
}

// zone runs fn over an optional entry, routing failures through the session.
func (st *state) zone(e *raw.Entry, fn func(*scanner.Cursor) error) error {
	c, err := st.s.Input.Section(e.Begin, e.End())
	if err == nil {
		err = fn(c)
	}
	if errors.Is(err, formats.ErrStructural) {
		return err
	}
	if err != nil {
		return st.s.Anomaly(e.Type, e.Begin, err)
	}
	st.s.Table.MarkParsed(e)
	return nil
}

func (st *state) readRulers(c *scanner.Cursor) error {
	n, err := c.U16()
	if err != nil {
		return err
	}
	if err := st.s.CheckCount(c, int(n), 2); err != nil {
		return err
	}
	for i := 0; i < int(n); i++ {
		start := c.Tell()
		recLen, err := c.U16()
		if err != nil {
			return err
		}
		end := c.Tell() + int64(recLen)
		if !c.CheckPosition(end) {
			return fmt.Errorf("ruler %d at %d: length %d: %w", i, start, recLen, raw.ErrBadLength)
		}
		body, err := c.Section(c.Tell(), end)
		if err != nil {
			return err
		}
		style, err := readRuler(body)
		if err != nil {
			if ferr := st.s.Anomaly("ruler", start, err); ferr != nil {
				return ferr
			}
			style = semantic.DefaultParagraph()
		} else if body.Remaining() > 0 {
			st.s.Log.Debug("ruler has trailing bytes", observability.Int("ruler", i), observability.Int64("extra", body.Remaining()))
		}
		st.rulers = append(st.rulers, style)
		if err := c.Seek(end); err != nil {
			return err
		}
	}
	return nil
}

func readRuler(c *scanner.Cursor) (semantic.ParagraphStyle, error) {
	p := semantic.DefaultParagraph()
	var w [3]int16
	var err error
	for i := range w {
		if w[i], err = c.I16(); err != nil {
			return p, err
		}
	}
	p.LeftMargin, p.FirstLineOffset, p.RightMargin = float64(w[0]), float64(w[1]), float64(w[2])
	just, err := c.U8()
	if err != nil {
		return p, err
	}
	p.Justify = formats.Justify(just)
	nTabs, err := c.U8()
	if err != nil {
		return p, err
	}
	var sp [3]int16
	for i := range sp {
		if sp[i], err = c.I16(); err != nil {
			return p, err
		}
	}
	if sp[0] > 0 {
		p.Interline = float64(sp[0]) / 100
	}
	p.SpaceBefore, p.SpaceAfter = float64(sp[1]), float64(sp[2])
	for i := 0; i < int(nTabs); i++ {
		pos, err := c.I16()
		if err != nil {
			return p, err
		}
		align, err := c.U8()
		if err != nil {
			return p, err
		}
		leader, err := c.U8()
		if err != nil {
			return p, err
		}
		p.Tabs = append(p.Tabs, semantic.Tab{Pos: float64(pos), Align: formats.TabAlign(align), Leader: leader})
	}
	return p, nil
}

func (st *state) readDocInfo(c *scanner.Cursor) error {
	first, err := c.U16()
	if err != nil {
		return err
	}
	st.doc.FirstPageNumber = int(first)
	kinds := []struct {
		id   int
		kind semantic.HeaderFooterKind
	}{{headerZone, semantic.Header}, {footerZone, semantic.Footer}}
	for _, k := range kinds {
		begin, err := c.U32()
		if err != nil {
			return err
		}
		length, err := c.U32()
		if err != nil {
			return err
		}
		if length == 0 {
			continue
		}
		ok, err := st.textZone(k.kind.String(), k.id, int64(begin), int64(length))
		if err != nil {
			return err
		}
		if ok {
			st.doc.HeaderFooters = append(st.doc.HeaderFooters, semantic.HeaderFooter{Kind: k.kind, Zone: k.id})
		}
	}
	return nil
}

// readTextList reads `u16 n; n x {u32 begin; u32 length}` text blocks as zones base+i.
func (st *state) readTextList(c *scanner.Cursor, base int) error {
	n, err := c.U16()
	if err != nil {
		return err
	}
	if err := st.s.CheckCount(c, int(n), 8); err != nil {
		return err
	}
	for i := 0; i < int(n); i++ {
		begin, err := c.U32()
		if err != nil {
			return err
		}
		length, err := c.U32()
		if err != nil {
			return err
		}
		if _, err := st.textZone("Text", base+i, int64(begin), int64(length)); err != nil {
			return err
		}
	}
	return nil
}

// textZone decodes one text block into zone id. A broken block is reported
// and left out; the error is only set when the session refuses to go on.
func (st *state) textZone(tag string, id int, begin, length int64) (bool, error) {
	e, ok := st.s.Table.Insert(tag, raw.Entry{Begin: begin, Length: length, ID: id})
	if !ok {
		return false, nil
	}
	c, err := st.s.Input.Section(e.Begin, e.End())
	var z *semantic.TextZone
	if err == nil {
		z, err = st.readTextBlock(c, id)
	}
	if err != nil {
		return false, st.s.Anomaly("text", begin, err)
	}
	st.s.Table.MarkParsed(e)
	st.doc.AddZone(z)
	return true, nil
}

// readTextBlock reads `u16 nChars; chars; pad; u16 nRuns; runs`.
func (st *state) readTextBlock(c *scanner.Cursor, id int) (*semantic.TextZone, error) {
	n, err := c.U16()
	if err != nil {
		return nil, err
	}
	text, err := c.ReadBytes(int64(n))
	if err != nil {
		return nil, err
	}
	if err := formats.SkipPad(c, int64(n)); err != nil {
		return nil, err
	}
	z := semantic.NewTextZone(id, text)
	if c.AtEnd() {
		return z, nil
	}
	nRuns, err := c.U16()
	if err != nil {
		return nil, err
	}
	if err := st.s.CheckCount(c, int(nRuns), runSize); err != nil {
		return nil, err
	}
	for i := 0; i < int(nRuns); i++ {
		fs := c.Fields()
		pos := fs.U16()
		fontID := fs.U16()
		size := fs.U8()
		style := fs.U8()
		colorID := fs.U16()
		if err := fs.Err(); err != nil {
			return nil, err
		}
		color := st.doc.PaletteColor(int(colorID), st.s.Log)
		z.AddFont(int(pos), formats.MakeFont(st.doc, int(fontID), float64(size), uint16(style), color))
	}
	return z, nil
}

func (st *state) readSlides(c *scanner.Cursor) error {
	n, err := c.U16()
	if err != nil {
		return err
	}
	if err := st.s.CheckCount(c, int(n), 8); err != nil {
		return err
	}
	for i := 0; i < int(n); i++ {
		fs := c.Fields()
		first := fs.U16()
		last := fs.U16()
		fs.U32()
		if err := fs.Err(); err != nil {
			return err
		}
		st.slides = append(st.slides, [2]int{int(first), int(last)})
	}
	return nil
}

func (st *state) readTopics(c *scanner.Cursor) error {
	n, err := c.U16()
	if err != nil {
		return err
	}
	if err := st.s.CheckCount(c, int(n), topicSize); err != nil {
		return err
	}
	for i := 0; i < int(n); i++ {
		t := topic{offset: c.Tell()}
		fs := c.Fields()
		level := fs.U8()
		flags := fs.U8()
		ruler := fs.U16()
		begin := fs.U32()
		length := fs.U32()
		comment := fs.I16()
		note := fs.I16()
		reserved := fs.Bytes(4)
		if err := fs.Err(); err != nil {
			return err
		}
		st.s.Reserved(st.doc, "topic", t.offset+16, reserved)
		t.level, t.flags = int(level), flags
		t.ruler = int(ruler)
		if ruler == 0xFFFF {
			t.ruler = semantic.NoLink
		}
		t.textBegin, t.textLen = int64(begin), int64(length)
		t.comment, t.note = int(comment), int(note)
		st.topics = append(st.topics, t)
	}
	return nil
}

// buildBody lays the visible topics out as one paragraph each.
func (st *state) buildBody() error {
	slideStart := make(map[int]bool)
	for i, sl := range st.slides {
		if i > 0 {
			slideStart[sl[0]] = true
		}
	}
	var text []byte
	body := semantic.NewTextZone(bodyZone, nil)
	for i, t := range st.topics {
		if t.flags&flagHidden != 0 {
			continue
		}
		start := len(text)
		style := semantic.DefaultParagraph()
		if t.ruler != semantic.NoLink {
			if t.ruler < len(st.rulers) {
				style = st.rulers[t.ruler]
			} else if err := st.s.Anomaly("topic", t.offset, fmt.Errorf("ruler %d of %d", t.ruler, len(st.rulers))); err != nil {
				return err
			}
		}
		style.LeftMargin += float64(indentStep * t.level)
		style.ListLevel = t.level
		style.Bullet = t.flags&flagBullet != 0
		style.BreakBefore = t.flags&flagPageBreak != 0 || slideStart[i]
		body.AddParagraph(start, style)

		if t.textLen > 0 {
			z, ok, err := st.topicText(t)
			if err != nil {
				return err
			}
			if ok {
				text = append(text, z.Text...)
				for pos := 0; pos < len(z.Text); pos = z.NextFontChange(pos) {
					body.AddFont(start+pos, z.FontAt(pos))
				}
			}
		}
		if t.comment >= 0 && st.anchor(body, len(text), commentBase+t.comment, semantic.NoteComment) {
			text = append(text, anchorByte)
		}
		if t.note >= 0 && st.anchor(body, len(text), noteBase+t.note, semantic.NoteSpeaker) {
			text = append(text, anchorByte)
		}
		text = append(text, 0x0D)
	}
	body.Text = text
	st.doc.AddZone(body)
	st.doc.BodyZone = bodyZone
	return nil
}

func (st *state) topicText(t topic) (*semantic.TextZone, bool, error) {
	e, ok := st.s.Table.Insert("TopicText", raw.Entry{Begin: t.textBegin, Length: t.textLen})
	if !ok {
		return nil, false, nil
	}
	c, err := st.s.Input.Section(e.Begin, e.End())
	var z *semantic.TextZone
	if err == nil {
		z, err = st.readTextBlock(c, bodyZone)
	}
	if err != nil {
		return nil, false, st.s.Anomaly("topic text", t.textBegin, err)
	}
	st.s.Table.MarkParsed(e)
	return z, true, nil
}

func (st *state) anchor(body *semantic.TextZone, pos, zone int, kind semantic.NoteKind) bool {
	if _, ok := st.doc.Zones[zone]; !ok {
		st.s.Log.Warn("topic note missing", observability.Int("zone", zone))
		return false
	}
	body.AddAnchor(pos, semantic.SubDocument{Kind: semantic.SubText, ID: zone, Note: kind})
	return true
}

// productVersion maps the file version word (6, 8) to the release (2, 3).
func productVersion(v int) int { return v/2 - 1 }
