package emitter

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/legacydoc/ir/semantic"
	"github.com/wudi/legacydoc/observability"
	"github.com/wudi/legacydoc/recovery"
)

type recorder struct {
	NopSink
	events []string
	fonts  int
}

func (r *recorder) add(format string, args ...any) {
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) OpenDocument(info DocumentInfo) { r.add("doc %s", info.Format) }
func (r *recorder) CloseDocument()                 { r.add("/doc") }
func (r *recorder) OpenPage(info PageInfo)         { r.add("page %d", info.Number) }
func (r *recorder) ClosePage()                     { r.add("/page") }
func (r *recorder) OpenHeaderFooter(hf semantic.HeaderFooter) {
	r.add("%s", hf.Kind)
}
func (r *recorder) CloseHeaderFooter()                         { r.add("/hf") }
func (r *recorder) OpenParagraph(s semantic.ParagraphStyle)    { r.add("p %g", s.LeftMargin) }
func (r *recorder) CloseParagraph()                            { r.add("/p") }
func (r *recorder) SetFont(f semantic.Font)                    { r.fonts++; r.add("font %s %g", f.Name, f.Size) }
func (r *recorder) InsertText(s string)                        { r.add("text %q", s) }
func (r *recorder) InsertTab()                                 { r.add("tab") }
func (r *recorder) InsertLineBreak()                           { r.add("br") }
func (r *recorder) InsertPageBreak()                           { r.add("pagebreak") }
func (r *recorder) InsertField(k semantic.FieldKind)           { r.add("field %s", k) }
func (r *recorder) InsertPicture(p *semantic.Picture)          { r.add("picture %d", p.ID) }
func (r *recorder) OpenFrame(info FrameInfo)                   { r.add("frame %d", info.ID) }
func (r *recorder) CloseFrame()                                { r.add("/frame") }
func (r *recorder) OpenTable(info TableInfo)                   { r.add("table %dx%d", info.Rows, info.Cols) }
func (r *recorder) OpenCell(info CellInfo)                     { r.add("cell %d,%d", info.Row, info.Col) }
func (r *recorder) OpenNote(k semantic.NoteKind)               { r.add("note %s", k) }
func (r *recorder) CloseNote()                                 { r.add("/note") }

type warnLog struct {
	observability.NopLogger
	warns []string
}

func (w *warnLog) Warn(msg string, _ ...observability.Field) { w.warns = append(w.warns, msg) }
func (w *warnLog) With(...observability.Field) observability.Logger {
	return w
}

func textDoc(text string) *semantic.Document {
	d := semantic.NewDocument("test", 1)
	d.Controls = semantic.ControlMap{
		0x09: {Kind: semantic.CtrlTab},
		0x0D: {Kind: semantic.CtrlParagraph},
	}
	d.AddZone(semantic.NewTextZone(1, []byte(text)))
	d.BodyZone = 1
	return d
}

func TestZoneWithoutStylesUsesDefaults(t *testing.T) {
	d := textDoc("A\tB\rC\x01D")
	rec := &recorder{}
	log := &warnLog{}
	require.NoError(t, New(d, rec, Options{Logger: log}).Emit())

	want := []string{
		"doc test",
		"p 0", "font Geneva 12", `text "A"`, "tab", `text "B"`, "/p",
		"p 0", "font Geneva 12", `text "C"`, `text "D"`, "/p",
		"/doc",
	}
	assert.Equal(t, want, rec.events)
	assert.Equal(t, []string{"control byte dropped"}, log.warns)
}

func TestFontQueriedOnlyAtBoundaries(t *testing.T) {
	d := textDoc("abcdefghij")
	z := d.Zones[1]
	z.AddFont(0, semantic.Font{Name: "Times", Size: 10})
	z.AddFont(4, semantic.Font{Name: "Times", Size: 14})
	rec := &recorder{}
	require.NoError(t, New(d, rec, Options{}).Emit())
	assert.Equal(t, 2, rec.fonts)
	assert.Contains(t, rec.events, `text "abcd"`)
	assert.Contains(t, rec.events, `text "efghij"`)
}

func TestMacRomanTextIsDecoded(t *testing.T) {
	d := textDoc("caf\x8e")
	rec := &recorder{}
	require.NoError(t, New(d, rec, Options{}).Emit())
	assert.Contains(t, rec.events, `text "café"`)
}

func TestEmitZoneRefusesReentry(t *testing.T) {
	d := textDoc("x\x1fy")
	d.Controls[0x1F] = semantic.Control{Kind: semantic.CtrlAnchor}
	// the zone's footnote points back at the zone itself
	d.Zones[1].AddAnchor(1, semantic.SubDocument{Kind: semantic.SubText, ID: 1})
	rec := &recorder{}
	log := &warnLog{}
	e := New(d, rec, Options{Logger: log})
	require.NoError(t, e.Emit())
	assert.Contains(t, strings.Join(rec.events, "|"), `text "x"|note footnote|/note|font Geneva 12|text "y"`)
	assert.Equal(t, []string{"sub-document not emitted"}, log.warns)

	e.emitting[7] = true
	err := e.EmitZone(7)
	assert.True(t, errors.Is(err, recovery.ErrLoopDetected))
}

func TestFontRestoredAfterNote(t *testing.T) {
	d := textDoc("ab\x1fcd")
	d.Controls[0x1F] = semantic.Control{Kind: semantic.CtrlAnchor}
	d.Zones[1].AddFont(0, semantic.Font{Name: "Times", Size: 10})
	note := semantic.NewTextZone(2, []byte("n"))
	note.AddFont(0, semantic.Font{Name: "Courier", Size: 9})
	d.AddZone(note)
	d.Zones[1].AddAnchor(2, semantic.SubDocument{Kind: semantic.SubText, ID: 2, Note: semantic.NoteComment})

	rec := &recorder{}
	require.NoError(t, New(d, rec, Options{}).Emit())
	got := strings.Join(rec.events, "|")
	assert.Contains(t, got, `font Times 10|text "ab"|note comment`)
	assert.Contains(t, got, `font Courier 9|text "n"`)
	assert.Contains(t, got, `/note|font Times 10|text "cd"`)
}

func TestMutuallyReferentialZones(t *testing.T) {
	d := textDoc("a\x1f")
	d.Controls[0x1F] = semantic.Control{Kind: semantic.CtrlAnchor}
	z2 := semantic.NewTextZone(2, []byte("b\x1f"))
	d.AddZone(z2)
	d.Zones[1].AddAnchor(1, semantic.SubDocument{Kind: semantic.SubText, ID: 2})
	z2.AddAnchor(1, semantic.SubDocument{Kind: semantic.SubText, ID: 1})
	rec := &recorder{}
	require.NoError(t, New(d, rec, Options{}).Emit())
	assert.Equal(t, 2, strings.Count(strings.Join(rec.events, "|"), "note footnote"))
}

func TestEmitMissingZone(t *testing.T) {
	d := textDoc("a")
	e := New(d, &recorder{}, Options{})
	assert.ErrorIs(t, e.EmitZone(42), ErrMissingZone)

	d.BodyZone = 42
	assert.ErrorIs(t, e.Emit(), ErrMissingZone)
}

func TestEmissionOrder(t *testing.T) {
	d := textDoc("body")
	d.AddZone(semantic.NewTextZone(2, []byte("head")))
	d.AddZone(semantic.NewTextZone(3, []byte("chain")))
	d.HeaderFooters = []semantic.HeaderFooter{{Kind: semantic.Header, Zone: 2}}
	d.AddTable(&semantic.Table{ID: 1, Rows: 1, Cols: 2, Cells: []semantic.Cell{{Row: 0, Col: 1, Kind: semantic.CellText, Text: []byte("t")}}})

	master := semantic.NewFrame(100, semantic.NoLink)
	master.Kind = semantic.FrameRect
	d.AddFrame(master)
	a, b := semantic.NewFrame(1, 0), semantic.NewFrame(2, 0)
	a.Kind, b.Kind = semantic.FrameText, semantic.FrameText
	a.TextZone, b.TextZone = 3, 3
	a.Next, b.Prev = 2, 1
	d.AddFrame(a)
	d.AddFrame(b)
	d.Page(0).UsesMaster = true
	pic := semantic.NewFrame(3, 1)
	pic.Kind, pic.Picture = semantic.FramePicture, 9
	d.AddFrame(pic)
	d.Pictures[9] = &semantic.Picture{ID: 9}

	rec := &recorder{}
	require.NoError(t, New(d, rec, Options{}).Emit())
	got := strings.Join(rec.events, "|")
	order := []string{
		"header", `text "head"`, "/hf",
		`text "body"`,
		"table 1x2", "cell 0,0", "cell 0,1", `text "t"`,
		"page 1", "frame 100", "/frame", "frame 1", `text "chain"`, "/frame", "frame 2", "/frame", "/page",
		"page 2", "frame 3", "picture 9", "/frame", "/page",
		"/doc",
	}
	last := -1
	for _, ev := range order {
		i := strings.Index(got[last+1:], ev)
		require.GreaterOrEqual(t, i, 0, "missing %q after position %d in %s", ev, last, got)
		last += 1 + i
	}
	assert.Equal(t, 1, strings.Count(got, `text "chain"`))
}

func TestFieldsAndBreaks(t *testing.T) {
	d := textDoc("a\x0bb\x0cc\x00")
	d.Controls[0x0B] = semantic.Control{Kind: semantic.CtrlLineBreak}
	d.Controls[0x0C] = semantic.Control{Kind: semantic.CtrlPageBreak}
	d.Controls[0x00] = semantic.Control{Kind: semantic.CtrlField, Field: semantic.FieldPageNumber}
	rec := &recorder{}
	require.NoError(t, New(d, rec, Options{}).Emit())
	got := strings.Join(rec.events, "|")
	assert.Contains(t, got, `text "a"|br|text "b"|pagebreak|text "c"|field pagenumber`)
}
