package writer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/wudi/legacydoc/emitter"
	"github.com/wudi/legacydoc/ir/semantic"
)

// rawSink dumps every sink call as one indented line.
type rawSink struct {
	b     strings.Builder
	depth int
	flat  bool
	open  bool
}

func newRawSink(flat bool) *rawSink { return &rawSink{flat: flat} }

func (r *rawSink) line(format string, args ...any) {
	if !r.flat {
		r.b.WriteString(strings.Repeat("  ", r.depth))
	}
	fmt.Fprintf(&r.b, format, args...)
	r.b.WriteByte('\n')
}

func (r *rawSink) in(format string, args ...any) {
	r.line(format, args...)
	r.depth++
}

func (r *rawSink) out() {
	if r.depth > 0 {
		r.depth--
	}
}

func (r *rawSink) OpenDocument(info emitter.DocumentInfo) {
	r.open = true
	r.in("document format=%s version=%d kind=%s pages=%d first=%d paper=%gx%g",
		info.Format, info.Version, info.Kind, info.PageCount, info.FirstPage,
		info.Layout.PaperWidth, info.Layout.PaperHeight)
}

func (r *rawSink) CloseDocument() { r.out() }

func (r *rawSink) OpenPage(info emitter.PageInfo) {
	r.in("page index=%d number=%d master=%t", info.Index, info.Number, info.UsesMaster)
}

func (r *rawSink) ClosePage() { r.out() }

func (r *rawSink) OpenHeaderFooter(hf semantic.HeaderFooter) {
	r.in("%s pages=%d-%d zone=%d", hf.Kind, hf.FromPage, hf.ToPage, hf.Zone)
}

func (r *rawSink) CloseHeaderFooter() { r.out() }

func (r *rawSink) OpenParagraph(s semantic.ParagraphStyle) {
	r.in("paragraph justify=%s left=%g right=%g first=%g interline=%g before=%g after=%g tabs=%d",
		s.Justify, s.LeftMargin, s.RightMargin, s.FirstLineOffset, s.Interline, s.SpaceBefore, s.SpaceAfter, len(s.Tabs))
}

func (r *rawSink) CloseParagraph() { r.out() }

func (r *rawSink) SetFont(f semantic.Font) {
	r.line("font id=%d name=%q size=%g flags=%#x color=%s", f.ID, f.Name, f.Size, uint16(f.Flags), f.Color.Hex())
}

func (r *rawSink) InsertText(text string) { r.line("text %q", text) }
func (r *rawSink) InsertTab()              { r.line("tab") }
func (r *rawSink) InsertLineBreak()        { r.line("linebreak") }
func (r *rawSink) InsertPageBreak()        { r.line("pagebreak") }

func (r *rawSink) InsertField(kind semantic.FieldKind) { r.line("field %s", kind) }

func (r *rawSink) InsertPicture(p *semantic.Picture) {
	r.line("picture id=%d kind=%s box=%s bytes=%d", p.ID, p.Kind, p.Box, len(p.Data))
}

func (r *rawSink) OpenFrame(info emitter.FrameInfo) {
	r.in("frame id=%d page=%d kind=%s box=%s master=%t", info.ID, info.Page, info.Kind, info.Box, info.Master)
}

func (r *rawSink) CloseFrame() { r.out() }

func (r *rawSink) OpenTable(info emitter.TableInfo) {
	r.in("table id=%d rows=%d cols=%d", info.ID, info.Rows, info.Cols)
}

func (r *rawSink) OpenRow(row int) { r.in("row %d", row) }

func (r *rawSink) OpenCell(info emitter.CellInfo) {
	switch info.Kind {
	case semantic.CellNumber:
		r.in("cell %d,%d number=%g", info.Row, info.Col, info.Number)
	case semantic.CellText:
		r.in("cell %d,%d text", info.Row, info.Col)
	default:
		r.in("cell %d,%d", info.Row, info.Col)
	}
}

func (r *rawSink) CloseCell()  { r.out() }
func (r *rawSink) CloseRow()   { r.out() }
func (r *rawSink) CloseTable() { r.out() }

func (r *rawSink) OpenNote(kind semantic.NoteKind) { r.in("note %s", kind) }
func (r *rawSink) CloseNote()                      { r.out() }

func (r *rawSink) finish(out *bytes.Buffer) error {
	if !r.open {
		return fmt.Errorf("raw: document was never opened")
	}
	_, err := out.WriteString(r.b.String())
	return err
}

var _ emitter.Sink = (*rawSink)(nil)
