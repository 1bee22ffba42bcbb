package ragtime

import (
	"errors"
	"fmt"
	"math"

	"github.com/wudi/legacydoc/formats"
	"github.com/wudi/legacydoc/ir/semantic"
	"github.com/wudi/legacydoc/observability"
	"github.com/wudi/legacydoc/scanner"
)

const (
	frameSize   = 46
	masterPage  = 0xFFFF
	cellText    = 2
	cellNumber  = 1
	contentNone = 0
	contentText = 1
	contentPict = 2
	contentSht  = 3
)

var errDuplicateDocInfo = errors.New("second document info record")

type anchor struct {
	zone int
	pos  int
	note int
}

type hdrRange struct {
	from, to       int
	header, footer int
}

type state struct {
	s          *formats.Session
	doc        *semantic.Document
	paraStyles map[int]semantic.ParagraphStyle
	charStyles map[int]semantic.Font
	anchors    []anchor
	hdrs       []hdrRange
	docInfo    bool
	printInfo  bool
}

func newState(s *formats.Session, doc *semantic.Document) *state {
	return &state{
		s:          s,
		doc:        doc,
		paraStyles: make(map[int]semantic.ParagraphStyle),
		charStyles: make(map[int]semantic.Font),
	}
}

func link32(v uint32) int {
	if v == none32 {
		return semantic.NoLink
	}
	return int(v)
}

// readDocInfo reads `u16 numPages; fix32 width; fix32 height; u16 firstPage;
// u16 flags`. The page size only applies when no print record was found.
func (st *state) readDocInfo(c *scanner.Cursor) error {
	if st.docInfo {
		return errDuplicateDocInfo
	}
	fs := c.Fields()
	pages := fs.U16()
	w := fs.Fixed32()
	h := fs.Fixed32()
	first := fs.U16()
	flags := fs.U16()
	if err := fs.Err(); err != nil {
		return err
	}
	st.doc.PageCount = int(pages)
	if first > 0 {
		st.doc.FirstPageNumber = int(first)
	}
	if !st.printInfo && w > 0 && h > 0 {
		st.doc.Layout.PaperWidth, st.doc.Layout.PaperHeight = w, h
	}
	if flags != 0 {
		st.s.Log.Debug("document flags", observability.Int("flags", int(flags)))
	}
	st.docInfo = true
	return nil
}

// readCharStyles reads `u16 n; n x {u16 id; u16 fontId; fix32 size; u16 style; u16 colorId}`.
func (st *state) readCharStyles(c *scanner.Cursor) error {
	n, err := c.U16()
	if err != nil {
		return err
	}
	if err := st.s.CheckCount(c, int(n), 12); err != nil {
		return err
	}
	for i := 0; i < int(n); i++ {
		fs := c.Fields()
		id := fs.U16()
		font := fs.U16()
		size := fs.Fixed32()
		style := fs.U16()
		color := fs.U16()
		if err := fs.Err(); err != nil {
			return err
		}
		st.charStyles[int(id)] = formats.MakeFont(st.doc, int(font), size, style, st.doc.PaletteColor(int(color), st.s.Log))
	}
	return nil
}

func (st *state) readText(id int, c *scanner.Cursor) error {
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
	z := semantic.NewTextZone(id, chars)

	nr, err := c.U16()
	if err != nil {
		return err
	}
	if err := st.s.CheckCount(c, int(nr), 6); err != nil {
		return err
	}
	for i := 0; i < int(nr); i++ {
		fs := c.Fields()
		pos := fs.U32()
		cs := fs.U16()
		if err := fs.Err(); err != nil {
			return err
		}
		font, ok := st.charStyles[int(cs)]
		if !ok {
			st.s.Log.Warn("unknown character style", observability.Int("zone", id), observability.Int("style", int(cs)))
			font = semantic.DefaultFont()
		}
		z.AddFont(int(pos), font)
	}

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
		ps := fs.U16()
		if err := fs.Err(); err != nil {
			return err
		}
		style, ok := st.paraStyles[int(ps)]
		if !ok {
			st.s.Log.Warn("unknown paragraph style", observability.Int("zone", id), observability.Int("style", int(ps)))
			style = semantic.DefaultParagraph()
		}
		z.AddParagraph(int(pos), style)
	}

	na, err := c.U16()
	if err != nil {
		return err
	}
	if err := st.s.CheckCount(c, int(na), 8); err != nil {
		return err
	}
	for i := 0; i < int(na); i++ {
		fs := c.Fields()
		pos := fs.U32()
		note := fs.U32()
		if err := fs.Err(); err != nil {
			return err
		}
		st.anchors = append(st.anchors, anchor{zone: id, pos: int(pos), note: link32(note)})
	}

	if _, dup := st.doc.Zones[id]; dup {
		st.s.Log.Warn("duplicate text zone replaced", observability.Int("zone", id))
	}
	st.doc.AddZone(z)
	return nil
}

// resolveAnchors attaches footnotes once every text zone is known.
func (st *state) resolveAnchors() {
	for _, a := range st.anchors {
		z, ok := st.doc.Zones[a.zone]
		if !ok {
			continue
		}
		if a.pos < 0 || a.pos >= z.Len() {
			st.s.Log.Warn("footnote anchor outside zone", observability.Int("zone", a.zone), observability.Int("pos", a.pos))
			continue
		}
		if a.note == a.zone {
			st.s.Log.Warn("footnote refers to its own zone", observability.Int("zone", a.zone))
			continue
		}
		if _, ok := st.doc.Zones[a.note]; !ok {
			st.s.Log.Warn("footnote zone missing", observability.Int("zone", a.note))
			continue
		}
		z.AddAnchor(a.pos, semantic.SubDocument{Kind: semantic.SubText, ID: a.note, Note: semantic.NoteFootnote})
	}
	st.anchors = nil
}

// readSheet reads `u16 rows; u16 cols; u32 nCells` and the cells. Each cell
// is `{u16 cellLen; u16 row; u16 col; u8 type; u8 reserved; value}` with
// cellLen counting the bytes after itself.
func (st *state) readSheet(id int, c *scanner.Cursor) error {
	fs := c.Fields()
	rows := fs.U16()
	cols := fs.U16()
	n := fs.U32()
	if err := fs.Err(); err != nil {
		return err
	}
	if int(rows) > st.s.Limits.MaxListSize || int(cols) > st.s.Limits.MaxListSize {
		return fmt.Errorf("sheet of %dx%d cells exceeds limit %d", rows, cols, st.s.Limits.MaxListSize)
	}
	if n > uint32(st.s.Limits.MaxListSize) {
		return fmt.Errorf("sheet with %d cells exceeds limit %d", n, st.s.Limits.MaxListSize)
	}
	if err := st.s.CheckCount(c, int(n), 8); err != nil {
		return err
	}
	t := &semantic.Table{ID: id, Rows: int(rows), Cols: int(cols)}
	for i := 0; i < int(n); i++ {
		start := c.Tell()
		cellLen, err := c.U16()
		if err != nil {
			return err
		}
		end := c.Tell() + int64(cellLen)
		body, err := c.Section(c.Tell(), end)
		if err != nil {
			return fmt.Errorf("cell %d at %d: %w", i, start, err)
		}
		cell, err := readCell(body)
		switch {
		case err != nil:
			if ferr := st.s.Anomaly("cell", start, err); ferr != nil {
				return ferr
			}
		case cell.Row >= t.Rows || cell.Col >= t.Cols:
			st.s.Log.Warn("cell outside sheet", observability.Int("sheet", id), observability.Int("row", cell.Row), observability.Int("col", cell.Col))
		default:
			t.Cells = append(t.Cells, cell)
		}
		if err := c.Seek(end); err != nil {
			return err
		}
	}
	if _, dup := st.doc.Tables[id]; dup {
		st.s.Log.Warn("duplicate sheet replaced", observability.Int("sheet", id))
	}
	st.doc.AddTable(t)
	return nil
}

func readCell(c *scanner.Cursor) (semantic.Cell, error) {
	var cell semantic.Cell
	fs := c.Fields()
	row := fs.U16()
	col := fs.U16()
	typ := fs.U8()
	fs.U8()
	if err := fs.Err(); err != nil {
		return cell, err
	}
	cell.Row, cell.Col = int(row), int(col)
	switch typ {
	case cellNumber:
		bits, err := c.ReadUint(8)
		if err != nil {
			return cell, err
		}
		cell.Kind, cell.Number = semantic.CellNumber, math.Float64frombits(bits)
	case cellText:
		n, err := c.U16()
		if err != nil {
			return cell, err
		}
		b, err := c.ReadBytes(int64(n))
		if err != nil {
			return cell, err
		}
		cell.Kind, cell.Text = semantic.CellText, b
	case 0:
		cell.Kind = semantic.CellEmpty
	default:
		return cell, fmt.Errorf("cell type %d", typ)
	}
	return cell, nil
}

// readFrames reads `u16 n` and n 46-byte frame records.
func (st *state) readFrames(c *scanner.Cursor) error {
	n, err := c.U16()
	if err != nil {
		return err
	}
	if err := st.s.CheckCount(c, int(n), frameSize); err != nil {
		return err
	}
	for i := 0; i < int(n); i++ {
		fs := c.Fields()
		id := fs.U32()
		page := fs.U16()
		kind := fs.U8()
		wrap := fs.U8()
		if err := fs.Err(); err != nil {
			return err
		}
		box, err := formats.ReadBoxFixed(c)
		if err != nil {
			return err
		}
		content := fs.U32()
		contentKind := fs.U8()
		pattern := fs.U8()
		lc := fs.U16()
		fc := fs.U16()
		lw := fs.Fixed32()
		prev := fs.U32()
		next := fs.U32()
		if err := fs.Err(); err != nil {
			return err
		}

		pageIdx := int(page)
		if page == masterPage {
			pageIdx = semantic.NoLink
		} else if pageIdx >= st.s.Limits.MaxListSize {
			st.s.Log.Warn("frame page out of range", observability.Int64("frame", int64(id)), observability.Int("page", pageIdx))
			continue
		}
		f := semantic.NewFrame(int(id), pageIdx)
		f.Kind = formats.FrameKind(kind)
		f.Box = box
		f.Style.Wrap = formats.Wrap(wrap)
		if lw > 0 {
			f.Style.LineWidth = lw
			f.Style.LineColor = st.doc.PaletteColor(int(lc), st.s.Log)
		}
		f.Style.FillColor, f.Style.Filled = st.s.Fill(st.doc, int(pattern), st.doc.PaletteColor(int(fc), st.s.Log))
		f.Prev, f.Next = link32(prev), link32(next)
		st.content(f, contentKind, link32(content))

		if _, dup := st.doc.Frames[f.ID]; dup {
			st.s.Log.Warn("duplicate frame id", observability.Int("frame", f.ID))
			continue
		}
		st.doc.AddFrame(f)
	}
	return nil
}

// content binds the zone a frame shows, warning when it does not exist.
func (st *state) content(f *semantic.Frame, kind uint8, id int) {
	if kind == contentNone || id == semantic.NoLink {
		return
	}
	missing := func(what string) {
		st.s.Log.Warn("frame "+what+" missing", observability.Int("frame", f.ID), observability.Int("zone", id))
	}
	switch kind {
	case contentText:
		if _, ok := st.doc.Zones[id]; !ok {
			missing("text zone")
			return
		}
		f.TextZone = id
		f.Kind = semantic.FrameText
	case contentPict:
		if _, ok := st.doc.Pictures[id]; !ok {
			missing("picture")
			return
		}
		f.Picture = id
		f.Kind = semantic.FramePicture
	case contentSht:
		t, ok := st.doc.Tables[id]
		if !ok {
			missing("sheet")
			return
		}
		t.Owned = true
		f.Table = id
		f.Kind = semantic.FrameTable
	default:
		st.s.Log.Warn("unknown frame content", observability.Int("frame", f.ID), observability.Int("kind", int(kind)))
	}
}

// readLayout reads `u16 n; n x {u16 page; u8 usesMaster; u8 reserved; u16
// nFrames; nFrames x u32 frameId}`. The listed order replaces declaration
// order; frames of the page missing from the list keep their place after it.
func (st *state) readLayout(c *scanner.Cursor) error {
	n, err := c.U16()
	if err != nil {
		return err
	}
	if err := st.s.CheckCount(c, int(n), 6); err != nil {
		return err
	}
	for i := 0; i < int(n); i++ {
		fs := c.Fields()
		page := fs.U16()
		master := fs.U8()
		fs.U8()
		nf := fs.U16()
		if err := fs.Err(); err != nil {
			return err
		}
		if err := st.s.CheckCount(c, int(nf), 4); err != nil {
			return err
		}
		ids := make([]int, 0, nf)
		for k := 0; k < int(nf); k++ {
			id, err := c.U32()
			if err != nil {
				return err
			}
			ids = append(ids, int(id))
		}
		if page == masterPage {
			st.doc.Master = reorder(st.s, st.doc.Master, ids)
			continue
		}
		if int(page) >= st.s.Limits.MaxListSize {
			st.s.Log.Warn("layout page out of range", observability.Int("page", int(page)))
			continue
		}
		p := st.doc.Page(int(page))
		p.UsesMaster = master != 0
		p.Frames = reorder(st.s, p.Frames, ids)
	}
	return nil
}

func reorder(s *formats.Session, current, want []int) []int {
	on := make(map[int]bool, len(current))
	for _, id := range current {
		on[id] = true
	}
	out := make([]int, 0, len(current))
	used := make(map[int]bool, len(want))
	for _, id := range want {
		if !on[id] || used[id] {
			s.Log.Warn("layout names a frame not on its page", observability.Int("frame", id))
			continue
		}
		used[id] = true
		out = append(out, id)
	}
	for _, id := range current {
		if !used[id] {
			out = append(out, id)
		}
	}
	return out
}

// readHeaders reads `u16 n; n x {u16 from; u16 to; u32 header; u32 footer}`.
func (st *state) readHeaders(c *scanner.Cursor) error {
	n, err := c.U16()
	if err != nil {
		return err
	}
	if err := st.s.CheckCount(c, int(n), 12); err != nil {
		return err
	}
	for i := 0; i < int(n); i++ {
		fs := c.Fields()
		from := fs.U16()
		to := fs.U16()
		hdr := fs.U32()
		ftr := fs.U32()
		if err := fs.Err(); err != nil {
			return err
		}
		st.hdrs = append(st.hdrs, hdrRange{from: int(from), to: int(to), header: link32(hdr), footer: link32(ftr)})
	}
	return nil
}

func (st *state) buildHeaders() {
	add := func(kind semantic.HeaderFooterKind, r hdrRange, zone int) {
		if zone == semantic.NoLink {
			return
		}
		if _, ok := st.doc.Zones[zone]; !ok {
			st.s.Log.Warn("header/footer zone missing", observability.Int("zone", zone))
			return
		}
		st.doc.HeaderFooters = append(st.doc.HeaderFooters, semantic.HeaderFooter{Kind: kind, FromPage: r.from, ToPage: r.to, Zone: zone})
	}
	for _, r := range st.hdrs {
		add(semantic.Header, r, r.header)
		add(semantic.Footer, r, r.footer)
	}
}
