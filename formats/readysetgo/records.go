package readysetgo

import (
	"errors"
	"fmt"

	"github.com/wudi/legacydoc/coords"
	"github.com/wudi/legacydoc/formats"
	"github.com/wudi/legacydoc/ir/semantic"
	"github.com/wudi/legacydoc/observability"
	"github.com/wudi/legacydoc/scanner"
)

var errNoPage = errors.New("shape before any page record")

const (
	shapeSize1 = 20
	shapeSize2 = 38
)

type shape struct {
	offset      int64
	id          int
	page        int
	kind        uint8
	wrap        uint8
	box         coords.Box
	lineWidth   float64
	linePattern int
	lineColor   int
	fillColor   int
	fillPattern int
	textZone    int
	picture     int
	prev, next  int
	corner      float64
}

type fontRun struct {
	pos, font int
	size      float64
	style     uint16
	color     int
}

type paraRun struct{ pos, style int }

type text struct {
	offset int64
	zone   int
	chars  []byte
	fonts  []fontRun
	paras  []paraRun
}

type hdrRange struct {
	from, to       int
	header, footer int
}

func link(v int16) int {
	if v < 0 {
		return semantic.NoLink
	}
	return int(v)
}

func (st *state) readShape(c *scanner.Cursor) error {
	size := int64(shapeSize1)
	if st.gen == Gen2 {
		size = shapeSize2
	}
	if c.Remaining() < size {
		return fmt.Errorf("shape needs %d bytes, %d left: %w", size, c.Remaining(), scanner.ErrOutOfBounds)
	}
	if !st.pageSet {
		return errNoPage
	}
	sh := shape{offset: c.Tell(), page: st.page, prev: semantic.NoLink, next: semantic.NoLink}
	fs := c.Fields()
	id := fs.U16()
	sh.kind = fs.U8()
	sh.wrap = fs.U8()
	if err := fs.Err(); err != nil {
		return err
	}
	sh.id = int(id)
	var err error
	if st.gen == Gen1 {
		if sh.box, err = formats.ReadBox16(c); err != nil {
			return err
		}
		lw := fs.U8()
		lp := fs.U8()
		fp := fs.U8()
		res := fs.Bytes(1)
		if err := fs.Err(); err != nil {
			return err
		}
		st.s.Reserved(st.doc, "shape", c.Tell()-1, res)
		sh.lineWidth, sh.linePattern, sh.fillPattern = float64(lw), int(lp), int(fp)
		sh.lineColor, sh.fillColor = 0, 0
	} else {
		if sh.box, err = formats.ReadBoxDecimal(c); err != nil {
			return err
		}
		lw := fs.U16()
		lc := fs.U16()
		fc := fs.U16()
		fp := fs.U16()
		if err := fs.Err(); err != nil {
			return err
		}
		sh.lineWidth = float64(lw) / 256
		sh.lineColor, sh.fillColor, sh.fillPattern = int(lc), int(fc), int(fp)
		sh.linePattern = 1
	}
	tz := fs.I16()
	pic := fs.I16()
	if err := fs.Err(); err != nil {
		return err
	}
	sh.textZone, sh.picture = link(tz), link(pic)
	if st.gen == Gen2 {
		prev := fs.I16()
		next := fs.I16()
		corner := fs.U16()
		if err := fs.Err(); err != nil {
			return err
		}
		sh.prev, sh.next, sh.corner = link(prev), link(next), float64(corner)
	}
	st.shapes = append(st.shapes, sh)
	return nil
}

func (st *state) readText(c *scanner.Cursor) error {
	t := text{offset: c.Tell()}
	zone, err := c.U16()
	if err != nil {
		return err
	}
	n, err := c.U16()
	if err != nil {
		return err
	}
	t.zone = int(zone)
	if t.chars, err = c.ReadBytes(int64(n)); err != nil {
		return err
	}
	if err := formats.SkipPad(c, int64(n)); err != nil {
		return err
	}
	runSize := 6
	if st.gen == Gen2 {
		runSize = 8
	}
	nf, err := c.U16()
	if err != nil {
		return err
	}
	if err := st.s.CheckCount(c, int(nf), runSize); err != nil {
		return err
	}
	for i := 0; i < int(nf); i++ {
		fs := c.Fields()
		pos := fs.U16()
		font := fs.U16()
		size := fs.U8()
		style := fs.U8()
		r := fontRun{pos: int(pos), font: int(font), size: float64(size), style: uint16(style)}
		if st.gen == Gen2 {
			r.color = int(fs.U16())
		}
		if err := fs.Err(); err != nil {
			return fmt.Errorf("font run %d: %w", i, err)
		}
		t.fonts = append(t.fonts, r)
	}
	np, err := c.U16()
	if err != nil {
		return err
	}
	if err := st.s.CheckCount(c, int(np), 4); err != nil {
		return err
	}
	for i := 0; i < int(np); i++ {
		fs := c.Fields()
		pos := fs.U16()
		style := fs.U16()
		if err := fs.Err(); err != nil {
			return fmt.Errorf("paragraph run %d: %w", i, err)
		}
		t.paras = append(t.paras, paraRun{pos: int(pos), style: int(style)})
	}
	st.texts = append(st.texts, t)
	return nil
}

func (st *state) measure(c *scanner.Cursor) (float64, error) {
	if st.gen == Gen1 {
		v, err := c.I16()
		return float64(v), err
	}
	return c.DecimalFixed()
}

func (st *state) readParaStyles(c *scanner.Cursor) error {
	n, err := c.U16()
	if err != nil {
		return err
	}
	if err := st.s.CheckCount(c, int(n), 4); err != nil {
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
			return fmt.Errorf("paragraph style %d at %d: %w", i, start, err)
		}
		id, style, err := st.readParaStyle(body)
		if err != nil {
			if ferr := st.s.Anomaly("paragraph style", start, err); ferr != nil {
				return ferr
			}
		} else {
			st.styles[id] = style
		}
		if err := c.Seek(end); err != nil {
			return err
		}
	}
	return nil
}

func (st *state) readParaStyle(c *scanner.Cursor) (int, semantic.ParagraphStyle, error) {
	p := semantic.DefaultParagraph()
	id, err := c.U16()
	if err != nil {
		return 0, p, err
	}
	var m [3]float64
	for i := range m {
		if m[i], err = st.measure(c); err != nil {
			return 0, p, err
		}
	}
	p.LeftMargin, p.FirstLineOffset, p.RightMargin = m[0], m[1], m[2]
	fs := c.Fields()
	just := fs.U8()
	nTabs := fs.U8()
	interline := fs.I16()
	before := fs.I16()
	after := fs.I16()
	if err := fs.Err(); err != nil {
		return 0, p, err
	}
	p.Justify = formats.Justify(just)
	if interline > 0 {
		p.Interline = float64(interline) / 100
	}
	p.SpaceBefore, p.SpaceAfter = float64(before), float64(after)
	for i := 0; i < int(nTabs); i++ {
		pos, err := st.measure(c)
		if err != nil {
			return 0, p, err
		}
		fs := c.Fields()
		align := fs.U8()
		leader := fs.U8()
		if err := fs.Err(); err != nil {
			return 0, p, err
		}
		p.Tabs = append(p.Tabs, semantic.Tab{Pos: pos, Align: formats.TabAlign(align), Leader: leader})
	}
	return int(id), p, nil
}

func (st *state) readHeaders(c *scanner.Cursor) error {
	n, err := c.U16()
	if err != nil {
		return err
	}
	if err := st.s.CheckCount(c, int(n), 8); err != nil {
		return err
	}
	for i := 0; i < int(n); i++ {
		fs := c.Fields()
		from := fs.U16()
		to := fs.U16()
		hdr := fs.I16()
		ftr := fs.I16()
		if err := fs.Err(); err != nil {
			return err
		}
		st.hdrs = append(st.hdrs, hdrRange{from: int(from), to: int(to), header: link(hdr), footer: link(ftr)})
	}
	return nil
}

func (st *state) buildZones() {
	for _, t := range st.texts {
		z := semantic.NewTextZone(t.zone, t.chars)
		for _, r := range t.fonts {
			color := semantic.Black
			if st.gen == Gen2 {
				color = st.doc.PaletteColor(r.color, st.s.Log)
			}
			z.AddFont(r.pos, formats.MakeFont(st.doc, r.font, r.size, r.style, color))
		}
		for _, r := range t.paras {
			style, ok := st.styles[r.style]
			if !ok {
				st.s.Log.Warn("unknown paragraph style", observability.Int("zone", t.zone), observability.Int("style", r.style))
				style = semantic.DefaultParagraph()
			}
			z.AddParagraph(r.pos, style)
		}
		if _, dup := st.doc.Zones[t.zone]; dup {
			st.s.Log.Warn("duplicate text zone replaced", observability.Int("zone", t.zone), observability.Int64("offset", t.offset))
		}
		st.doc.AddZone(z)
	}
}

func (st *state) buildFrames() {
	for _, sh := range st.shapes {
		f := semantic.NewFrame(sh.id, sh.page)
		f.Kind = formats.FrameKind(sh.kind)
		f.Box = sh.box
		f.Prev, f.Next = sh.prev, sh.next
		f.Style.Wrap = formats.Wrap(sh.wrap)
		f.Style.CornerRadius = sh.corner
		if line, ok := st.s.Fill(st.doc, sh.linePattern, st.doc.PaletteColor(sh.lineColor, st.s.Log)); ok {
			f.Style.LineWidth, f.Style.LineColor = sh.lineWidth, line
		}
		f.Style.FillColor, f.Style.Filled = st.s.Fill(st.doc, sh.fillPattern, st.doc.PaletteColor(sh.fillColor, st.s.Log))
		if sh.textZone != semantic.NoLink {
			if _, ok := st.doc.Zones[sh.textZone]; ok {
				f.TextZone = sh.textZone
			} else {
				st.s.Log.Warn("shape text zone missing", observability.Int("shape", sh.id), observability.Int("zone", sh.textZone))
			}
		}
		if sh.picture != semantic.NoLink {
			if _, ok := st.doc.Pictures[sh.picture]; ok {
				f.Picture = sh.picture
			} else {
				st.s.Log.Warn("shape picture missing", observability.Int("shape", sh.id), observability.Int("picture", sh.picture))
			}
		}
		if _, dup := st.doc.Frames[f.ID]; dup {
			st.s.Log.Warn("duplicate shape id", observability.Int("shape", f.ID), observability.Int64("offset", sh.offset))
			continue
		}
		st.doc.AddFrame(f)
	}
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
