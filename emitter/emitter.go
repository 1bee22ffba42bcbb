// Package emitter walks a decoded document and replays it into a Sink.
//
// Order: header/footer definitions, the body flow zone, free tables, then each
// page with its master frames first. Zones are emitted on demand through
// EmitZone, which refuses to re-enter a zone that is already being emitted.
package emitter

import (
	"errors"
	"fmt"

	"github.com/wudi/legacydoc/fonts"
	"github.com/wudi/legacydoc/ir/semantic"
	"github.com/wudi/legacydoc/observability"
	"github.com/wudi/legacydoc/recovery"
)

var (
	ErrMissingZone = errors.New("zone not found")
	ErrEmitDepth   = errors.New("sub-document nesting too deep")
)

type Options struct {
	Logger  observability.Logger
	Charset *fonts.Charset
	// MaxDepth bounds nested sub-documents. Default: 32.
	MaxDepth int
}

type Emitter struct {
	doc      *semantic.Document
	sink     Sink
	log      observability.Logger
	cs       *fonts.Charset
	maxDepth int
	emitting map[int]bool
	depth    int
}

func New(doc *semantic.Document, sink Sink, opts Options) *Emitter {
	e := &Emitter{
		doc:      doc,
		sink:     sink,
		log:      opts.Logger,
		cs:       opts.Charset,
		maxDepth: opts.MaxDepth,
		emitting: make(map[int]bool),
	}
	if e.log == nil {
		e.log = observability.NopLogger{}
	}
	if e.cs == nil {
		e.cs = fonts.MacRoman
	}
	if e.maxDepth <= 0 {
		e.maxDepth = 32
	}
	return e
}

// Emit replays the whole document.
func (e *Emitter) Emit() error {
	d := e.doc
	e.sink.OpenDocument(DocumentInfo{
		Format:    d.Format,
		Version:   d.Version,
		Kind:      d.Kind,
		Layout:    d.Layout,
		PageCount: d.NumPages(),
		FirstPage: d.FirstPageNumber,
	})
	for _, hf := range d.HeaderFooters {
		e.sink.OpenHeaderFooter(hf)
		e.report(e.EmitZone(hf.Zone))
		e.sink.CloseHeaderFooter()
	}
	if d.BodyZone != semantic.NoLink {
		if err := e.EmitZone(d.BodyZone); err != nil {
			return fmt.Errorf("body zone: %w", err)
		}
	}
	for _, id := range d.TableOrder {
		if t := d.Tables[id]; !t.Owned {
			e.emitTable(t)
		}
	}
	for _, p := range d.Pages {
		e.sink.OpenPage(PageInfo{Index: p.Index, Number: d.FirstPageNumber + p.Index, UsesMaster: p.UsesMaster})
		if p.UsesMaster {
			for _, f := range d.MasterFrames() {
				e.emitFrame(f)
			}
		}
		for _, f := range d.FramesOf(p.Index) {
			e.emitFrame(f)
		}
		e.sink.ClosePage()
	}
	e.sink.CloseDocument()
	return nil
}

func (e *Emitter) report(err error) {
	if err != nil {
		e.log.Warn("sub-document not emitted", observability.Error("error", err))
	}
}

// EmitZone emits text zone id now. Re-entering a zone that is being emitted
// returns an error wrapping recovery.ErrLoopDetected and emits nothing.
func (e *Emitter) EmitZone(id int) error {
	if e.emitting[id] {
		return fmt.Errorf("zone %d: %w", id, recovery.ErrLoopDetected)
	}
	if e.depth >= e.maxDepth {
		return fmt.Errorf("zone %d at depth %d: %w", id, e.depth, ErrEmitDepth)
	}
	z, ok := e.doc.Zones[id]
	if !ok {
		return fmt.Errorf("zone %d: %w", id, ErrMissingZone)
	}
	e.emitting[id] = true
	e.depth++
	defer func() {
		delete(e.emitting, id)
		e.depth--
	}()
	e.walk(z)
	return nil
}

// EmitSubDocument resolves a deferred reference.
func (e *Emitter) EmitSubDocument(sub semantic.SubDocument) error {
	switch sub.Kind {
	case semantic.SubText:
		return e.EmitZone(sub.ID)
	case semantic.SubFrame:
		f, ok := e.doc.Frames[sub.ID]
		if !ok {
			return fmt.Errorf("frame %d: %w", sub.ID, ErrMissingZone)
		}
		e.emitFrame(f)
	case semantic.SubSpace:
		e.sink.InsertText(" ")
	}
	return nil
}

func (e *Emitter) walk(z *semantic.TextZone) {
	text := z.Text
	var pending []byte
	flush := func() {
		if len(pending) > 0 {
			e.sink.InsertText(e.cs.Decode(pending))
			pending = pending[:0]
		}
	}
	var font semantic.Font
	fontEnd := -1
	inPara := false
	for pos := 0; pos < len(text); pos++ {
		if !inPara {
			style := z.ParagraphStyleAt(pos)
			if style.BreakBefore && pos > 0 {
				e.sink.InsertPageBreak()
			}
			e.sink.OpenParagraph(style)
			inPara = true
			if pos >= fontEnd {
				font, fontEnd = z.FontAt(pos), z.NextFontChange(pos)
			}
			e.sink.SetFont(font)
		} else if pos >= fontEnd {
			flush()
			font, fontEnd = z.FontAt(pos), z.NextFontChange(pos)
			e.sink.SetFont(font)
		}
		if sub, ok := z.Anchors[pos]; ok {
			flush()
			e.sink.OpenNote(sub.Note)
			e.report(e.EmitSubDocument(sub))
			e.sink.CloseNote()
			e.sink.SetFont(font)
		}
		b := text[pos]
		ctl, isCtl := e.doc.Controls[b]
		if !isCtl {
			if b < 0x20 {
				flush()
				e.log.Warn("control byte dropped",
					observability.Int("zone", z.ID),
					observability.Int("pos", pos),
					observability.Int("byte", int(b)))
				continue
			}
			pending = append(pending, b)
			continue
		}
		flush()
		switch ctl.Kind {
		case semantic.CtrlTab:
			e.sink.InsertTab()
		case semantic.CtrlParagraph:
			e.sink.CloseParagraph()
			inPara = false
		case semantic.CtrlLineBreak:
			e.sink.InsertLineBreak()
		case semantic.CtrlPageBreak:
			e.sink.InsertPageBreak()
		case semantic.CtrlField:
			e.sink.InsertField(ctl.Field)
		case semantic.CtrlAnchor:
			if _, ok := z.Anchors[pos]; !ok {
				e.log.Debug("anchor byte without note", observability.Int("zone", z.ID), observability.Int("pos", pos))
			}
		}
	}
	flush()
	if inPara {
		e.sink.CloseParagraph()
	}
}

func (e *Emitter) emitFrame(f *semantic.Frame) {
	e.sink.OpenFrame(FrameInfo{ID: f.ID, Page: f.Page, Kind: f.Kind, Box: f.Box, Style: f.Style, Master: f.Page == semantic.NoLink})
	// A chain's text flows through every frame; it is emitted once, in the head.
	if f.TextZone != semantic.NoLink && f.IsChainHead() {
		e.report(e.EmitZone(f.TextZone))
	}
	if f.Picture != semantic.NoLink {
		if pic, ok := e.doc.Pictures[f.Picture]; ok {
			e.sink.InsertPicture(pic)
		} else {
			e.log.Warn("frame picture missing", observability.Int("frame", f.ID), observability.Int("picture", f.Picture))
		}
	}
	if f.Table != semantic.NoLink {
		if t, ok := e.doc.Tables[f.Table]; ok {
			e.emitTable(t)
		}
	}
	e.sink.CloseFrame()
}

func (e *Emitter) emitTable(t *semantic.Table) {
	e.sink.OpenTable(TableInfo{ID: t.ID, Rows: t.Rows, Cols: t.Cols})
	for r, row := range t.Grid() {
		e.sink.OpenRow(r)
		for c, cell := range row {
			info := CellInfo{Row: r, Col: c, Kind: semantic.CellEmpty}
			if cell != nil {
				info.Kind, info.Number = cell.Kind, cell.Number
			}
			e.sink.OpenCell(info)
			if cell != nil && cell.Kind == semantic.CellText && len(cell.Text) > 0 {
				e.sink.InsertText(e.cs.Decode(cell.Text))
			}
			e.sink.CloseCell()
		}
		e.sink.CloseRow()
	}
	e.sink.CloseTable()
}
