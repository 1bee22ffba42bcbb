// Package ragtime decodes RagTime documents: page layouts, spreadsheets and
// drawings assembled from text, picture and sheet zones placed in frames.
//
// After a 0x10-byte header the file is a chain of tagged records. A PACK
// record holds an LZW-compressed chain of its own, so zones may be nested a
// few containers deep. Records are collected from every container first and
// decoded in dependency order afterwards, since frames and anchors routinely
// refer to zones stored later in the file.
package ragtime

import (
	"context"
	"fmt"

	"github.com/wudi/legacydoc/filters"
	"github.com/wudi/legacydoc/formats"
	"github.com/wudi/legacydoc/ir/raw"
	"github.com/wudi/legacydoc/ir/semantic"
	"github.com/wudi/legacydoc/observability"
	"github.com/wudi/legacydoc/scanner"
)

const (
	Name       = "RagTime"
	magic1     = 0x43232B44
	magic2     = 0xA4434DA5
	headerSize = 0x10
	none32     = 0xFFFFFFFF
)

// Record tags.
const (
	TagDocInfo    = "DOCI"
	TagPrintInfo  = "PINF"
	TagColors     = "COLR"
	TagPatterns   = "PATT"
	TagFonts      = "FONT"
	TagParaStyles = "PSTY"
	TagCharStyles = "CSTY"
	TagText       = "TEXT"
	TagFrames     = "FRAM"
	TagPicture    = "PICT"
	TagSheet      = "SHET"
	TagLayout     = "LAYO"
	TagHeaders    = "HDFT"
	TagPacked     = "PACK"
	TagEnd        = "END "
)

// Version 1 stores the zone id of these records as the first payload word.
var zoneTags = map[string]bool{TagText: true, TagPicture: true, TagSheet: true}

// DocKind is the document type stored in the header.
type DocKind int

const (
	Layout DocKind = iota
	Spreadsheet
	Drawing
)

func (k DocKind) semantic() semantic.DocKind {
	switch k {
	case Spreadsheet:
		return semantic.KindSpreadsheet
	case Drawing:
		return semantic.KindDrawing
	}
	return semantic.KindLayout
}

var controls = semantic.ControlMap{
	0x09: {Kind: semantic.CtrlTab},
	0x0D: {Kind: semantic.CtrlParagraph},
	0x0B: {Kind: semantic.CtrlLineBreak},
	0x0C: {Kind: semantic.CtrlPageBreak},
	0x01: {Kind: semantic.CtrlField, Field: semantic.FieldPageNumber},
	0x02: {Kind: semantic.CtrlField, Field: semantic.FieldPageCount},
	0x03: {Kind: semantic.CtrlField, Field: semantic.FieldDate},
	0x04: {Kind: semantic.CtrlField, Field: semantic.FieldTime},
	0x1F: {Kind: semantic.CtrlAnchor},
}

type Decoder struct{}

func New() *Decoder { return &Decoder{} }

func (*Decoder) Name() string { return Name }

type header struct {
	version  int
	kind     DocKind
	reserved []byte
}

func readHeader(c *scanner.Cursor) (header, error) {
	var h header
	fs := c.Fields()
	m1 := fs.U32()
	m2 := fs.U32()
	if err := fs.Err(); err != nil {
		return h, err
	}
	if m1 != magic1 || m2 != magic2 {
		return h, fmt.Errorf("bad magic %#08x %#08x", m1, m2)
	}
	v := fs.U16()
	k := fs.U16()
	res := fs.Bytes(4)
	if err := fs.Err(); err != nil {
		return h, err
	}
	if v < 1 || v > 2 {
		return h, fmt.Errorf("unknown version %d", v)
	}
	if k > uint16(Drawing) {
		return h, fmt.Errorf("unknown document kind %d", k)
	}
	h.version, h.kind, h.reserved = int(v), DocKind(k), res
	return h, nil
}

func validTag(t []byte) bool {
	for _, b := range t {
		if b < 0x20 || b > 0x7E {
			return false
		}
	}
	return true
}

// recordHeader returns the header reader of a format version: `{tag[4]; u32
// length}` for version 1 and `{tag[4]; u32 id; u32 length}` for version 2.
func recordHeader(version int) raw.HeaderFunc {
	return func(c *scanner.Cursor) (raw.Header, error) {
		tag, err := c.ReadBytes(4)
		if err != nil {
			return raw.Header{}, err
		}
		h := raw.Header{Tag: string(tag)}
		if !validTag(tag) {
			return h, fmt.Errorf("tag % x: %w", tag, raw.ErrIllegalRecord)
		}
		if version >= 2 {
			id, err := c.U32()
			if err != nil {
				return h, err
			}
			h.ID = int64(id)
		}
		length, err := c.U32()
		if err != nil {
			return h, err
		}
		h.Length = int64(length)
		if h.Tag == TagEnd {
			if length != 0 {
				return h, fmt.Errorf("end record with %d bytes: %w", length, raw.ErrBadLength)
			}
			h.End = true
		}
		return h, nil
	}
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
	id.Version, id.Kind = h.version, h.kind.semantic()
	id.Confidence = formats.ConfidencePoor
	w := raw.NewWalker(c, recordHeader(h.version), 0)
	w.Strict = true
	master := false
	for w.Next() {
		switch w.Record().Tag {
		case TagDocInfo, TagPacked:
			master = true
		}
	}
	if w.Err() == nil && w.Offset() == c.Size() && master {
		id.Confidence = formats.ConfidenceExcellent
	}
	return id
}

// record is one collected record. Records from a PACK container carry the
// offset of the outermost PACK record and a nil entry.
type record struct {
	tag    string
	id     int
	offset int64
	depth  int
	body   *scanner.Cursor
	entry  *raw.Entry
}

func (r record) component() string {
	if r.depth > 0 {
		return TagPacked + "/" + r.tag
	}
	return r.tag
}

type collector struct {
	s       *formats.Session
	ctx     context.Context
	read    raw.HeaderFunc
	version int
	records []record
}

// walk collects the records of one container. A broken record ends the walk
// of its container only.
func (col *collector) walk(c *scanner.Cursor, depth int, outer int64) error {
	w := col.s.Walker(c, col.read)
	for w.Next() {
		if err := col.ctx.Err(); err != nil {
			return err
		}
		rec := w.Record()
		offset := rec.Offset
		if depth > 0 {
			offset = outer
		}
		r := record{tag: rec.Tag, id: int(rec.ID), offset: offset, depth: depth}
		if depth == 0 {
			if e, ok := col.s.Table.Insert(rec.Tag, raw.Entry{Begin: rec.Payload, Length: rec.Length, ID: int(rec.ID)}); ok {
				r.entry = e
			} else {
				continue
			}
		}
		body, err := rec.Body(c)
		if err == nil && col.version < 2 && zoneTags[rec.Tag] {
			var id uint32
			if id, err = body.U32(); err == nil {
				r.id = int(id)
				body, err = body.Section(body.Tell(), body.Size())
			}
		}
		if err != nil {
			if ferr := col.s.Anomaly(r.component(), offset, rec.Skip(err)); ferr != nil {
				return ferr
			}
			continue
		}
		r.body = body
		if rec.Tag == TagPacked {
			if err := col.unpack(r); err != nil {
				return err
			}
			continue
		}
		col.records = append(col.records, r)
	}
	if err := w.Err(); err != nil {
		// Records read before the break stay.
		at := w.Offset()
		if depth > 0 {
			at = outer
		}
		if ferr := col.s.Anomaly("records", at, err); ferr != nil {
			return ferr
		}
	}
	return nil
}

// unpack decompresses a PACK container and walks the chain inside it.
// A container that fails to decompress is skipped on its own.
func (col *collector) unpack(r record) error {
	fail := func(err error) error { return col.s.Anomaly(r.component(), r.offset, err) }
	if r.depth+1 > col.s.Limits.MaxZoneDepth {
		return fail(fmt.Errorf("containers nested deeper than %d", col.s.Limits.MaxZoneDepth))
	}
	n, err := r.body.U32()
	if err != nil {
		return fail(err)
	}
	if int64(n) > col.s.Limits.MaxDecompressedSize {
		return fail(fmt.Errorf("unpacked length %d: %w", n, filters.ErrOutputLimit))
	}
	data, err := r.body.ReadBytes(r.body.Remaining())
	if err != nil {
		return fail(err)
	}
	out, err := col.s.Filters.Decode(col.ctx, data, []string{"LZW"}, []filters.Params{{ExpectedSize: int(n)}})
	if err != nil {
		return fail(err)
	}
	col.s.Log.Debug("unpacked container",
		observability.Int64("offset", r.offset),
		observability.Int("depth", r.depth+1),
		observability.Int("packed", len(data)),
		observability.Int("unpacked", len(out)))
	before := len(col.records)
	if err := col.walk(scanner.FromBytes(out), r.depth+1, r.offset); err != nil {
		return err
	}
	if r.entry != nil && len(col.records) > before {
		col.s.Table.MarkParsed(r.entry)
	}
	return nil
}

// Records are decoded by kind in this order so every lookup finds its target.
var order = []string{
	TagPrintInfo, TagColors, TagPatterns, TagFonts, TagCharStyles, TagParaStyles,
	TagDocInfo, TagText, TagPicture, TagSheet, TagFrames, TagLayout, TagHeaders,
}

var known = func() map[string]bool {
	m := map[string]bool{TagPacked: true}
	for _, t := range order {
		m[t] = true
	}
	return m
}()

func (d *Decoder) Decode(ctx context.Context, s *formats.Session) (*semantic.Document, error) {
	c := s.Input.Clone()
	if err := c.Seek(0); err != nil {
		return nil, s.Structural("ragtime header: %v", err)
	}
	h, err := readHeader(c)
	if err != nil {
		return nil, s.Structural("ragtime header: %v", err)
	}
	doc := semantic.NewDocument(Name, h.version)
	doc.Kind = h.kind.semantic()
	doc.Controls = controls
	s.Reserved(doc, "header", 12, h.reserved)

	col := &collector{s: s, ctx: ctx, read: recordHeader(h.version), version: h.version}
	if err := col.walk(c, 0, 0); err != nil {
		return nil, err
	}

	byTag := make(map[string][]record)
	for _, r := range col.records {
		if !known[r.tag] {
			s.Log.Debug("unknown record skipped",
				observability.String("tag", fmt.Sprintf("%q", r.tag)),
				observability.Int64("offset", r.offset),
				observability.Int64("length", r.body.Size()-r.body.Begin()))
			continue
		}
		byTag[r.tag] = append(byTag[r.tag], r)
	}

	st := newState(s, doc)
	for _, tag := range order {
		for _, r := range byTag[tag] {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := st.record(r); err != nil {
				if ferr := s.Anomaly(r.component(), r.offset, err); ferr != nil {
					return nil, ferr
				}
				continue
			}
			if r.entry != nil {
				s.Table.MarkParsed(r.entry)
			}
		}
		if tag == TagText {
			st.resolveAnchors()
		}
	}
	if !st.docInfo {
		return nil, s.Structural("ragtime: document info record missing")
	}
	st.buildHeaders()
	doc.ResolveFrameLinks(s.Log)
	s.Finish()
	return doc, nil
}

func (st *state) record(r record) error {
	switch r.tag {
	case TagPrintInfo:
		if err := st.s.ReadPrintInfo(r.body, st.doc); err != nil {
			return err
		}
		st.printInfo = true
		return nil
	case TagColors:
		return st.s.ReadColors(r.body, st.doc)
	case TagPatterns:
		return st.s.ReadPatterns(r.body, st.doc)
	case TagFonts:
		return st.s.ReadFonts(r.body, st.doc)
	case TagCharStyles:
		return st.readCharStyles(r.body)
	case TagParaStyles:
		return st.s.ReadFixedStyles(r.body, st.paraStyles)
	case TagDocInfo:
		return st.readDocInfo(r.body)
	case TagText:
		return st.readText(r.id, r.body)
	case TagPicture:
		pic, err := st.s.ReadPicture(r.body, r.id)
		if err != nil {
			return err
		}
		st.doc.Pictures[pic.ID] = pic
		return nil
	case TagSheet:
		return st.readSheet(r.id, r.body)
	case TagFrames:
		return st.readFrames(r.body)
	case TagLayout:
		return st.readLayout(r.body)
	case TagHeaders:
		return st.readHeaders(r.body)
	}
	return fmt.Errorf("unhandled record %q", r.tag)
}
