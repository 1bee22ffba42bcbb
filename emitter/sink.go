package emitter

import (
	"github.com/wudi/legacydoc/coords"
	"github.com/wudi/legacydoc/ir/semantic"
)

type DocumentInfo struct {
	Format    string
	Version   int
	Kind      semantic.DocKind
	Layout    semantic.PageLayout
	PageCount int
	FirstPage int
}

type PageInfo struct {
	Index      int
	Number     int
	UsesMaster bool
}

type FrameInfo struct {
	ID     int
	Page   int
	Kind   semantic.FrameKind
	Box    coords.Box
	Style  semantic.FrameStyle
	Master bool
}

type TableInfo struct {
	ID   int
	Rows int
	Cols int
}

// CellInfo describes a cell. Text cells receive their content through
// InsertText; number cells carry the raw value for the sink to format.
type CellInfo struct {
	Row    int
	Col    int
	Kind   semantic.CellKind
	Number float64
}

// Sink receives decoded content. Sinks own every output concern: quoting,
// markup, number and date formatting.
type Sink interface {
	OpenDocument(info DocumentInfo)
	CloseDocument()
	OpenPage(info PageInfo)
	ClosePage()
	OpenHeaderFooter(hf semantic.HeaderFooter)
	CloseHeaderFooter()
	OpenParagraph(style semantic.ParagraphStyle)
	CloseParagraph()
	SetFont(font semantic.Font)
	InsertText(text string)
	InsertTab()
	InsertLineBreak()
	InsertPageBreak()
	InsertField(kind semantic.FieldKind)
	InsertPicture(pic *semantic.Picture)
	OpenFrame(info FrameInfo)
	CloseFrame()
	OpenTable(info TableInfo)
	OpenRow(row int)
	OpenCell(info CellInfo)
	CloseCell()
	CloseRow()
	CloseTable()
	OpenNote(kind semantic.NoteKind)
	CloseNote()
}

// NopSink ignores everything. Embed it to implement only the calls a sink needs.
type NopSink struct{}

func (NopSink) OpenDocument(DocumentInfo)                {}
func (NopSink) CloseDocument()                           {}
func (NopSink) OpenPage(PageInfo)                        {}
func (NopSink) ClosePage()                               {}
func (NopSink) OpenHeaderFooter(semantic.HeaderFooter)   {}
func (NopSink) CloseHeaderFooter()                       {}
func (NopSink) OpenParagraph(semantic.ParagraphStyle)    {}
func (NopSink) CloseParagraph()                          {}
func (NopSink) SetFont(semantic.Font)                    {}
func (NopSink) InsertText(string)                        {}
func (NopSink) InsertTab()                               {}
func (NopSink) InsertLineBreak()                         {}
func (NopSink) InsertPageBreak()                         {}
func (NopSink) InsertField(semantic.FieldKind)           {}
func (NopSink) InsertPicture(*semantic.Picture)          {}
func (NopSink) OpenFrame(FrameInfo)                      {}
func (NopSink) CloseFrame()                              {}
func (NopSink) OpenTable(TableInfo)                      {}
func (NopSink) OpenRow(int)                              {}
func (NopSink) OpenCell(CellInfo)                        {}
func (NopSink) CloseCell()                               {}
func (NopSink) CloseRow()                                {}
func (NopSink) CloseTable()                              {}
func (NopSink) OpenNote(semantic.NoteKind)               {}
func (NopSink) CloseNote()                               {}

var _ Sink = NopSink{}
