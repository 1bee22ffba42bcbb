package writer

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/wudi/legacydoc/emitter"
	"github.com/wudi/legacydoc/images"
	"github.com/wudi/legacydoc/ir/semantic"
	"github.com/wudi/legacydoc/observability"
)

const stylesheet = `.page{position:relative;border:1px solid #ccc;margin:1em auto}
.frame{position:absolute;overflow:hidden}
.header,.footer{color:#555}
.tab{display:inline-block;min-width:2em}
.page-break{display:block;break-after:page}
.notes{border-top:1px solid #999;margin-top:2em}
table.sheet{border-collapse:collapse}
table.sheet td{border:1px solid #999;padding:0 .3em}
`

// htmlSink builds the page as a node tree and renders it on finish.
type htmlSink struct {
	images *images.Converter
	now    func() time.Time
	log    observability.Logger

	info  emitter.DocumentInfo
	root  *html.Node
	body  *html.Node
	notes *html.Node

	cur   *html.Node
	stack []*html.Node
	para  *html.Node
	span  *html.Node
	font  semantic.Font

	page   int
	inPage bool
	nNotes int
	saved  []htmlState
}

// htmlState is the insertion point put aside while a note is written.
type htmlState struct {
	cur   *html.Node
	stack []*html.Node
	para  *html.Node
	span  *html.Node
	font  semantic.Font
}

func newHTMLSink(conv *images.Converter, now func() time.Time, log observability.Logger) *htmlSink {
	return &htmlSink{images: conv, now: now, log: log}
}

func elem(a atom.Atom, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

func textNode(s string) *html.Node { return &html.Node{Type: html.TextNode, Data: s} }

func pt(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) + "pt" }

func (h *htmlSink) push(n *html.Node) {
	h.cur.AppendChild(n)
	h.stack = append(h.stack, h.cur)
	h.cur = n
	h.para, h.span = nil, nil
}

func (h *htmlSink) pop() {
	if len(h.stack) == 0 {
		return
	}
	h.cur = h.stack[len(h.stack)-1]
	h.stack = h.stack[:len(h.stack)-1]
	h.para, h.span = nil, nil
}

// inline returns the node receiving inline content.
func (h *htmlSink) inline() *html.Node {
	if h.para != nil {
		return h.para
	}
	return h.cur
}

func (h *htmlSink) OpenDocument(info emitter.DocumentInfo) {
	h.info = info
	h.root = &html.Node{Type: html.DocumentNode}
	h.root.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	doc := elem(atom.Html)
	head := elem(atom.Head)
	head.AppendChild(elem(atom.Meta, "charset", "utf-8"))
	title := elem(atom.Title)
	title.AppendChild(textNode(fmt.Sprintf("%s %d document", info.Format, info.Version)))
	head.AppendChild(title)
	style := elem(atom.Style)
	style.AppendChild(textNode(stylesheet))
	head.AppendChild(style)
	doc.AppendChild(head)
	h.body = elem(atom.Body, "class", info.Kind.String())
	doc.AppendChild(h.body)
	h.root.AppendChild(doc)
	h.cur = h.body
}

func (h *htmlSink) CloseDocument() {
	if h.notes != nil {
		h.body.AppendChild(h.notes)
	}
}

func (h *htmlSink) OpenPage(info emitter.PageInfo) {
	l := h.info.Layout
	h.push(elem(atom.Section, "class", "page", "id", "page-"+strconv.Itoa(info.Number),
		"style", "width:"+pt(l.PaperWidth)+";height:"+pt(l.PaperHeight)))
	h.page, h.inPage = info.Number, true
}

func (h *htmlSink) ClosePage() {
	h.pop()
	h.inPage = false
}

func (h *htmlSink) OpenHeaderFooter(hf semantic.HeaderFooter) {
	attrs := []string{"class", hf.Kind.String()}
	if hf.FromPage > 0 || hf.ToPage > 0 {
		attrs = append(attrs, "data-pages", fmt.Sprintf("%d-%d", hf.FromPage, hf.ToPage))
	}
	h.push(elem(atom.Div, attrs...))
}

func (h *htmlSink) CloseHeaderFooter() { h.pop() }

func paragraphCSS(s semantic.ParagraphStyle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "text-align:%s", s.Justify)
	if s.LeftMargin != 0 {
		b.WriteString(";margin-left:" + pt(s.LeftMargin))
	}
	if s.RightMargin != 0 {
		b.WriteString(";margin-right:" + pt(s.RightMargin))
	}
	if s.FirstLineOffset != 0 {
		b.WriteString(";text-indent:" + pt(s.FirstLineOffset))
	}
	if s.Interline > 0 && s.Interline != 1 {
		b.WriteString(";line-height:" + strconv.FormatFloat(s.Interline, 'f', -1, 64))
	}
	if s.SpaceBefore != 0 {
		b.WriteString(";margin-top:" + pt(s.SpaceBefore))
	}
	if s.SpaceAfter != 0 {
		b.WriteString(";margin-bottom:" + pt(s.SpaceAfter))
	}
	return b.String()
}

func (h *htmlSink) OpenParagraph(style semantic.ParagraphStyle) {
	attrs := []string{"style", paragraphCSS(style)}
	if style.ListLevel > 0 {
		attrs = append(attrs, "data-level", strconv.Itoa(style.ListLevel))
	}
	p := elem(atom.P, attrs...)
	h.inline().AppendChild(p)
	h.para, h.span = p, nil
	if style.Bullet {
		p.AppendChild(textNode("• "))
	}
}

func (h *htmlSink) CloseParagraph() { h.para, h.span = nil, nil }

func fontCSS(f semantic.Font) string {
	var parts []string
	if f.Name != "" {
		parts = append(parts, "font-family:'"+strings.ReplaceAll(f.Name, "'", "")+"'")
	}
	if f.Size > 0 {
		parts = append(parts, "font-size:"+pt(f.Size))
	}
	if f.Flags.Has(semantic.Bold) {
		parts = append(parts, "font-weight:bold")
	}
	if f.Flags.Has(semantic.Italic) {
		parts = append(parts, "font-style:italic")
	}
	var deco []string
	if f.Flags.Has(semantic.Underline) {
		deco = append(deco, "underline")
	}
	if f.Flags.Has(semantic.Strike) {
		deco = append(deco, "line-through")
	}
	if len(deco) > 0 {
		parts = append(parts, "text-decoration:"+strings.Join(deco, " "))
	}
	switch {
	case f.Flags.Has(semantic.Superscript):
		parts = append(parts, "vertical-align:super")
	case f.Flags.Has(semantic.Subscript):
		parts = append(parts, "vertical-align:sub")
	}
	if !f.Color.IsBlack() {
		parts = append(parts, "color:"+f.Color.Hex())
	}
	return strings.Join(parts, ";")
}

func (h *htmlSink) SetFont(font semantic.Font) {
	h.font = font
	h.span = nil
}

func (h *htmlSink) InsertText(text string) {
	if h.span == nil {
		if css := fontCSS(h.font); css != "" {
			h.span = elem(atom.Span, "style", css)
		} else {
			h.span = elem(atom.Span)
		}
		h.inline().AppendChild(h.span)
	}
	h.span.AppendChild(textNode(text))
}

func (h *htmlSink) InsertTab() {
	h.inline().AppendChild(elem(atom.Span, "class", "tab"))
	h.span = nil
}

func (h *htmlSink) InsertLineBreak() {
	h.inline().AppendChild(elem(atom.Br))
	h.span = nil
}

func (h *htmlSink) InsertPageBreak() {
	h.inline().AppendChild(elem(atom.Span, "class", "page-break"))
	h.span = nil
}

func (h *htmlSink) InsertField(kind semantic.FieldKind) {
	var v string
	switch kind {
	case semantic.FieldPageNumber:
		v = "#"
		if h.inPage {
			v = strconv.Itoa(h.page)
		}
	case semantic.FieldPageCount:
		v = strconv.Itoa(h.info.PageCount)
	case semantic.FieldDate:
		v = h.now().Format("2006-01-02")
	case semantic.FieldTime:
		v = h.now().Format("15:04")
	}
	f := elem(atom.Span, "class", "field", "data-field", kind.String())
	f.AppendChild(textNode(v))
	h.inline().AppendChild(f)
	h.span = nil
}

func (h *htmlSink) InsertPicture(pic *semantic.Picture) {
	uri, err := h.images.DataURI(pic)
	if err != nil {
		h.log.Debug("picture kept as placeholder", observability.Int("picture", pic.ID), observability.Error("error", err))
		ph := elem(atom.Span, "class", "picture", "data-kind", pic.Kind.String(), "data-id", strconv.Itoa(pic.ID))
		h.inline().AppendChild(ph)
		return
	}
	attrs := []string{"src", uri, "alt", "picture " + strconv.Itoa(pic.ID)}
	if w, ht := pic.Box.Width(), pic.Box.Height(); w > 0 && ht > 0 {
		attrs = append(attrs, "style", "width:"+pt(w)+";height:"+pt(ht))
	}
	h.inline().AppendChild(elem(atom.Img, attrs...))
	h.span = nil
}

func frameCSS(info emitter.FrameInfo) string {
	b := info.Box
	parts := []string{
		"left:" + pt(b.Min.X), "top:" + pt(b.Min.Y),
		"width:" + pt(b.Width()), "height:" + pt(b.Height()),
	}
	s := info.Style
	if s.LineWidth > 0 {
		parts = append(parts, "border:"+pt(s.LineWidth)+" solid "+s.LineColor.Hex())
	}
	if s.Filled {
		parts = append(parts, "background:"+s.FillColor.Hex())
	}
	switch info.Kind {
	case semantic.FrameOval:
		parts = append(parts, "border-radius:50%")
	case semantic.FrameRoundRect:
		parts = append(parts, "border-radius:"+pt(s.CornerRadius))
	}
	return strings.Join(parts, ";")
}

func (h *htmlSink) OpenFrame(info emitter.FrameInfo) {
	class := "frame " + info.Kind.String()
	if info.Master {
		class += " master"
	}
	h.push(elem(atom.Div, "class", class, "id", "frame-"+strconv.Itoa(info.ID), "style", frameCSS(info)))
}

func (h *htmlSink) CloseFrame() { h.pop() }

func (h *htmlSink) OpenTable(info emitter.TableInfo) {
	h.push(elem(atom.Table, "class", "sheet", "id", "table-"+strconv.Itoa(info.ID)))
}

func (h *htmlSink) OpenRow(int) { h.push(elem(atom.Tr)) }

func (h *htmlSink) OpenCell(info emitter.CellInfo) {
	h.push(elem(atom.Td))
	if info.Kind == semantic.CellNumber {
		h.cur.Attr = append(h.cur.Attr, html.Attribute{Key: "class", Val: "number"})
		h.cur.AppendChild(textNode(strconv.FormatFloat(info.Number, 'f', -1, 64)))
	}
}

func (h *htmlSink) CloseCell()  { h.pop() }
func (h *htmlSink) CloseRow()   { h.pop() }
func (h *htmlSink) CloseTable() { h.pop() }

// OpenNote leaves a numbered reference in the text and moves the insertion
// point to a note block collected at the end of the body.
func (h *htmlSink) OpenNote(kind semantic.NoteKind) {
	h.nNotes++
	id := "note-" + strconv.Itoa(h.nNotes)
	ref := elem(atom.Sup)
	a := elem(atom.A, "href", "#"+id)
	a.AppendChild(textNode(strconv.Itoa(h.nNotes)))
	ref.AppendChild(a)
	h.inline().AppendChild(ref)

	h.saved = append(h.saved, htmlState{cur: h.cur, stack: h.stack, para: h.para, span: nil, font: h.font})
	if h.notes == nil {
		h.notes = elem(atom.Div, "class", "notes")
	}
	note := elem(atom.Div, "class", "note "+kind.String(), "id", id)
	h.notes.AppendChild(note)
	h.cur, h.stack, h.para, h.span = note, nil, nil, nil
}

func (h *htmlSink) CloseNote() {
	if len(h.saved) == 0 {
		return
	}
	st := h.saved[len(h.saved)-1]
	h.saved = h.saved[:len(h.saved)-1]
	h.cur, h.stack, h.para, h.span, h.font = st.cur, st.stack, st.para, st.span, st.font
}

func (h *htmlSink) finish(out *bytes.Buffer) error {
	if h.root == nil {
		return fmt.Errorf("html: document was never opened")
	}
	return html.Render(out, h.root)
}

var _ emitter.Sink = (*htmlSink)(nil)
