package semantic

import (
	"sort"

	"github.com/wudi/legacydoc/coords"
	"github.com/wudi/legacydoc/observability"
)

// NoLink marks an absent id reference (zone, picture, table or chain neighbour).
const NoLink = -1

// DocKind is the broad shape of a decoded document.
type DocKind int

const (
	KindText DocKind = iota
	KindLayout
	KindSpreadsheet
	KindDrawing
)

func (k DocKind) String() string {
	switch k {
	case KindLayout:
		return "layout"
	case KindSpreadsheet:
		return "spreadsheet"
	case KindDrawing:
		return "drawing"
	}
	return "text"
}

// Margins are in points.
type Margins struct {
	Left, Top, Right, Bottom float64
}

// PageLayout is the paper size and the printable margins, in points.
type PageLayout struct {
	PaperWidth  float64
	PaperHeight float64
	Margins     Margins
}

func DefaultPageLayout() PageLayout {
	return PageLayout{PaperWidth: 612, PaperHeight: 792, Margins: Margins{72, 72, 72, 72}}
}

// ContentBox is the area inside the margins.
func (l PageLayout) ContentBox() coords.Box {
	return coords.BoxFromEdges(l.Margins.Top, l.Margins.Left, l.PaperHeight-l.Margins.Bottom, l.PaperWidth-l.Margins.Right)
}

// Document is the in-memory model produced by one decode pass.
type Document struct {
	Format          string
	Version         int
	Kind            DocKind
	Layout          PageLayout
	PageCount       int
	FirstPageNumber int
	// BodyZone is the main flow text zone, NoLink when the document has none.
	BodyZone      int
	Zones         map[int]*TextZone
	Frames        map[int]*Frame
	Master        []int
	Pages         []*Page
	Pictures      map[int]*Picture
	Tables        map[int]*Table
	TableOrder    []int
	HeaderFooters []HeaderFooter
	Palette       *Palette
	Fonts         map[int]string
	Controls      ControlMap
	Reserved      []Reserved
}

func NewDocument(format string, version int) *Document {
	return &Document{
		Format:          format,
		Version:         version,
		Layout:          DefaultPageLayout(),
		FirstPageNumber: 1,
		BodyZone:        NoLink,
		Zones:           make(map[int]*TextZone),
		Frames:          make(map[int]*Frame),
		Pictures:        make(map[int]*Picture),
		Tables:          make(map[int]*Table),
		Palette:         DefaultPalette(),
		Fonts:           make(map[int]string),
		Controls:        ControlMap{},
	}
}

// TextZones returns the zones sorted by id.
func (d *Document) TextZones() []*TextZone {
	out := make([]*TextZone, 0, len(d.Zones))
	for _, z := range d.Zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Document) Zone(id int) (*TextZone, bool) {
	z, ok := d.Zones[id]
	return z, ok
}

// AddZone registers a fully built zone. A later zone with the same id replaces the earlier one.
func (d *Document) AddZone(z *TextZone) {
	d.Zones[z.ID] = z
}

// Page returns page index i (0-based), growing the page list as needed.
func (d *Document) Page(i int) *Page {
	for len(d.Pages) <= i {
		d.Pages = append(d.Pages, &Page{Index: len(d.Pages)})
	}
	return d.Pages[i]
}

// NumPages is the larger of the declared page count and the pages holding content.
func (d *Document) NumPages() int {
	if len(d.Pages) > d.PageCount {
		return len(d.Pages)
	}
	return d.PageCount
}

// AddFrame registers f and appends it to its page, or to the master page when Page is NoLink.
func (d *Document) AddFrame(f *Frame) {
	if _, dup := d.Frames[f.ID]; !dup {
		if f.Page == NoLink {
			d.Master = append(d.Master, f.ID)
		} else if f.Page >= 0 {
			p := d.Page(f.Page)
			p.Frames = append(p.Frames, f.ID)
		}
	}
	d.Frames[f.ID] = f
}

// FramesOf returns the frames of page i in declaration order.
func (d *Document) FramesOf(i int) []*Frame {
	if i < 0 || i >= len(d.Pages) {
		return nil
	}
	return d.lookup(d.Pages[i].Frames)
}

// MasterFrames returns the frames drawn on every page using the master page.
func (d *Document) MasterFrames() []*Frame { return d.lookup(d.Master) }

func (d *Document) lookup(ids []int) []*Frame {
	out := make([]*Frame, 0, len(ids))
	for _, id := range ids {
		if f, ok := d.Frames[id]; ok {
			out = append(out, f)
		}
	}
	return out
}

// AddTable registers t, keeping declaration order.
func (d *Document) AddTable(t *Table) {
	if _, dup := d.Tables[t.ID]; !dup {
		d.TableOrder = append(d.TableOrder, t.ID)
	}
	d.Tables[t.ID] = t
}

// PaletteColor resolves a color id, falling back to black with a warning.
func (d *Document) PaletteColor(id int, log observability.Logger) Color {
	c, ok := d.Palette.Color(id)
	if !ok && log != nil {
		log.Warn("invalid color id", observability.Int("id", id))
	}
	return c
}

// FontName returns the document font name for id, or "" when unknown.
func (d *Document) FontName(id int) string { return d.Fonts[id] }

// Reserved keeps a field whose meaning is unknown, for diagnostics.
type Reserved struct {
	Component string
	Offset    int64
	Value     []byte
}

// Page holds the frame ids drawn on one page.
type Page struct {
	Index      int
	UsesMaster bool
	Frames     []int
}

type FrameKind int

const (
	FrameEmpty FrameKind = iota
	FrameRect
	FrameRoundRect
	FrameOval
	FrameLine
	FrameText
	FramePicture
	FrameTable
)

func (k FrameKind) String() string {
	switch k {
	case FrameRect:
		return "rect"
	case FrameRoundRect:
		return "roundrect"
	case FrameOval:
		return "oval"
	case FrameLine:
		return "line"
	case FrameText:
		return "text"
	case FramePicture:
		return "picture"
	case FrameTable:
		return "table"
	}
	return "empty"
}

// Wrap is how body text flows around a frame.
type Wrap int

const (
	WrapNone Wrap = iota
	WrapAround
	WrapThrough
)

func (w Wrap) String() string {
	switch w {
	case WrapAround:
		return "around"
	case WrapThrough:
		return "through"
	}
	return "none"
}

type FrameStyle struct {
	LineWidth    float64
	LineColor    Color
	FillColor    Color
	Filled       bool
	Wrap         Wrap
	CornerRadius float64
}

// Frame is a positioned box on a page: a shape, a text box, a picture or a table.
type Frame struct {
	ID       int
	Page     int
	Kind     FrameKind
	Box      coords.Box
	Style    FrameStyle
	TextZone int
	Picture  int
	Table    int
	Prev     int
	Next     int
}

// NewFrame returns a frame with every reference unset.
func NewFrame(id, page int) *Frame {
	return &Frame{ID: id, Page: page, TextZone: NoLink, Picture: NoLink, Table: NoLink, Prev: NoLink, Next: NoLink}
}

// IsChainHead reports whether the frame starts its text chain.
func (f *Frame) IsChainHead() bool { return f.Prev == NoLink }

type PictureKind int

const (
	PictureQuickDraw PictureKind = iota
	PictureBitmap
)

func (k PictureKind) String() string {
	if k == PictureBitmap {
		return "bitmap"
	}
	return "pict"
}

// Bitmap is an unpacked 1-bit image, most significant bit first, 1 = black.
type Bitmap struct {
	RowBytes int
	Width    int
	Height   int
	Bits     []byte
}

// Picture is either an opaque QuickDraw blob or an unpacked bitmap.
type Picture struct {
	ID     int
	Kind   PictureKind
	Box    coords.Box
	Data   []byte
	Bitmap *Bitmap
}

type CellKind int

const (
	CellEmpty CellKind = iota
	CellNumber
	CellText
)

type Cell struct {
	Row, Col int
	Kind     CellKind
	Number   float64
	Text     []byte
}

// Table is a grid of cells. Missing cells are empty.
type Table struct {
	ID    int
	Rows  int
	Cols  int
	Cells []Cell
	// Owned tables are emitted through their frame only.
	Owned bool
}

// Grid returns the cells indexed by row then column.
func (t *Table) Grid() [][]*Cell {
	g := make([][]*Cell, t.Rows)
	for r := range g {
		g[r] = make([]*Cell, t.Cols)
	}
	for i := range t.Cells {
		c := &t.Cells[i]
		if c.Row >= 0 && c.Row < t.Rows && c.Col >= 0 && c.Col < t.Cols {
			g[c.Row][c.Col] = c
		}
	}
	return g
}

type HeaderFooterKind int

const (
	Header HeaderFooterKind = iota
	Footer
)

func (k HeaderFooterKind) String() string {
	if k == Footer {
		return "footer"
	}
	return "header"
}

// HeaderFooter binds a text zone to a page range. Zero bounds mean every page.
type HeaderFooter struct {
	Kind     HeaderFooterKind
	FromPage int
	ToPage   int
	Zone     int
}

type SubKind int

const (
	SubText SubKind = iota
	SubFrame
	SubSpace
)

type NoteKind int

const (
	NoteFootnote NoteKind = iota
	NoteComment
	NoteSpeaker
)

func (k NoteKind) String() string {
	switch k {
	case NoteComment:
		return "comment"
	case NoteSpeaker:
		return "speaker"
	}
	return "footnote"
}

// SubDocument is a deferred reference the emitter resolves on demand.
type SubDocument struct {
	Kind SubKind
	ID   int
	Note NoteKind
}

type FieldKind int

const (
	FieldPageNumber FieldKind = iota
	FieldPageCount
	FieldDate
	FieldTime
)

func (k FieldKind) String() string {
	switch k {
	case FieldPageCount:
		return "pagecount"
	case FieldDate:
		return "date"
	case FieldTime:
		return "time"
	}
	return "pagenumber"
}

type ControlKind int

const (
	CtrlTab ControlKind = iota + 1
	CtrlParagraph
	CtrlLineBreak
	CtrlPageBreak
	CtrlField
	CtrlAnchor
)

type Control struct {
	Kind  ControlKind
	Field FieldKind
}

// ControlMap is a format's closed set of in-band control bytes.
type ControlMap map[byte]Control
