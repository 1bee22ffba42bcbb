package semantic

import "sort"

type Justify int

const (
	JustifyLeft Justify = iota
	JustifyCenter
	JustifyRight
	JustifyFull
)

func (j Justify) String() string {
	switch j {
	case JustifyCenter:
		return "center"
	case JustifyRight:
		return "right"
	case JustifyFull:
		return "justify"
	}
	return "left"
}

type TabAlign int

const (
	TabLeft TabAlign = iota
	TabCenter
	TabRight
	TabDecimal
)

type Tab struct {
	Pos    float64
	Align  TabAlign
	Leader byte
}

// ParagraphStyle values are in points. FirstLineOffset is relative to LeftMargin.
type ParagraphStyle struct {
	LeftMargin      float64
	RightMargin     float64
	FirstLineOffset float64
	Justify         Justify
	// Interline is a line-height multiplier; 1 is single spacing.
	Interline   float64
	SpaceBefore float64
	SpaceAfter  float64
	Tabs        []Tab
	ListLevel   int
	Bullet      bool
	BreakBefore bool
}

func DefaultParagraph() ParagraphStyle { return ParagraphStyle{Interline: 1} }

// FirstLineMargin is the absolute first-line margin.
func (p ParagraphStyle) FirstLineMargin() float64 { return p.LeftMargin + p.FirstLineOffset }

type FontFlags uint16

// Bits 0..6 match the QuickDraw style byte.
const (
	Bold FontFlags = 1 << iota
	Italic
	Underline
	Outline
	Shadow
	Condensed
	Extended
	_
	Strike
	Superscript
	Subscript
)

// FontFlagsFromMac converts a stored style word.
func FontFlagsFromMac(style uint16) FontFlags {
	return FontFlags(style) & (Bold | Italic | Underline | Outline | Shadow | Condensed | Extended | Strike | Superscript | Subscript)
}

func (f FontFlags) Has(o FontFlags) bool { return f&o != 0 }

type Font struct {
	ID    int
	Name  string
	Size  float64
	Flags FontFlags
	Color Color
}

// DefaultFont is Geneva 12 pt black.
func DefaultFont() Font { return Font{ID: 3, Name: "Geneva", Size: 12} }

type run[T any] struct {
	pos int
	v   T
}

// runs is a position map sorted by pos, one value per position.
type runs[T any] []run[T]

func (l *runs[T]) set(pos int, v T) {
	s := *l
	i := sort.Search(len(s), func(i int) bool { return s[i].pos >= pos })
	if i < len(s) && s[i].pos == pos {
		s[i].v = v
		return
	}
	s = append(s, run[T]{})
	copy(s[i+1:], s[i:])
	s[i] = run[T]{pos: pos, v: v}
	*l = s
}

// at is the lower-bound lookup: the value at the greatest position <= pos.
func (l runs[T]) at(pos int) (T, bool) {
	i := sort.Search(len(l), func(i int) bool { return l[i].pos > pos })
	if i == 0 {
		var zero T
		return zero, false
	}
	return l[i-1].v, true
}

func (l runs[T]) next(pos int) (int, bool) {
	i := sort.Search(len(l), func(i int) bool { return l[i].pos > pos })
	if i == len(l) {
		return 0, false
	}
	return l[i].pos, true
}

// TextZone is a run of Mac Roman text with sparse style maps keyed by character position.
type TextZone struct {
	ID            int
	Text          []byte
	BaseParagraph ParagraphStyle
	BaseFont      Font
	Anchors       map[int]SubDocument
	paras         runs[ParagraphStyle]
	fonts         runs[Font]
	tabs          runs[[]Tab]
}

func NewTextZone(id int, text []byte) *TextZone {
	return &TextZone{
		ID:            id,
		Text:          text,
		BaseParagraph: DefaultParagraph(),
		BaseFont:      DefaultFont(),
		Anchors:       make(map[int]SubDocument),
	}
}

func (z *TextZone) Len() int { return len(z.Text) }

// AddParagraph records a style starting at pos. Out of order positions are allowed.
func (z *TextZone) AddParagraph(pos int, s ParagraphStyle) { z.paras.set(pos, s) }

func (z *TextZone) AddFont(pos int, f Font) { z.fonts.set(pos, f) }

// AddTabs records tab stops overriding the paragraph tabs from pos on.
func (z *TextZone) AddTabs(pos int, tabs []Tab) { z.tabs.set(pos, tabs) }

// AddAnchor places a sub-document reference at pos.
func (z *TextZone) AddAnchor(pos int, sub SubDocument) { z.Anchors[pos] = sub }

// ParagraphStyleAt returns the style in effect at pos, or BaseParagraph before the first record.
func (z *TextZone) ParagraphStyleAt(pos int) ParagraphStyle {
	s, ok := z.paras.at(pos)
	if !ok {
		s = z.BaseParagraph
	}
	if tabs, ok := z.tabs.at(pos); ok {
		s.Tabs = tabs
	}
	return s
}

// FontAt returns the font in effect at pos, or BaseFont before the first record.
func (z *TextZone) FontAt(pos int) Font {
	f, ok := z.fonts.at(pos)
	if !ok {
		return z.BaseFont
	}
	return f
}

// NextFontChange returns the first font boundary after pos, or Len when there is none.
func (z *TextZone) NextFontChange(pos int) int {
	n, ok := z.fonts.next(pos)
	if !ok || n > len(z.Text) {
		return len(z.Text)
	}
	return n
}

func (z *TextZone) ParagraphCount() int { return len(z.paras) }
func (z *TextZone) FontCount() int      { return len(z.fonts) }
