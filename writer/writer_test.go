package writer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/legacydoc/coords"
	"github.com/wudi/legacydoc/ir/semantic"
)

var fixedNow = func() time.Time { return time.Date(1991, 3, 4, 17, 30, 5, 0, time.UTC) }

func textDoc() *semantic.Document {
	d := semantic.NewDocument("More", 3)
	d.Controls = semantic.ControlMap{
		0x09: {Kind: semantic.CtrlTab},
		0x0D: {Kind: semantic.CtrlParagraph},
		0x03: {Kind: semantic.CtrlField, Field: semantic.FieldDate},
		0x1F: {Kind: semantic.CtrlAnchor},
	}
	body := semantic.NewTextZone(1, []byte("Caf\x8e <b>\x1f\t\x03\rNext"))
	body.AddParagraph(0, semantic.ParagraphStyle{Justify: semantic.JustifyCenter, Interline: 1, LeftMargin: 18, Bullet: true})
	body.AddFont(0, semantic.Font{Name: "Times", Size: 14, Flags: semantic.Bold | semantic.Underline, Color: semantic.Color{R: 255}})
	body.AddAnchor(8, semantic.SubDocument{Kind: semantic.SubText, ID: 2, Note: semantic.NoteFootnote})
	d.AddZone(body)
	d.AddZone(semantic.NewTextZone(2, []byte("the note")))
	d.BodyZone = 1
	return d
}

func sheetDoc() *semantic.Document {
	d := semantic.NewDocument("RagTime", 2)
	d.Kind = semantic.KindSpreadsheet
	d.AddTable(&semantic.Table{ID: 4, Rows: 2, Cols: 3, Cells: []semantic.Cell{
		{Row: 0, Col: 0, Kind: semantic.CellNumber, Number: 3.25},
		{Row: 0, Col: 1, Kind: semantic.CellText, Text: []byte("a,b")},
		{Row: 0, Col: 2, Kind: semantic.CellText, Text: []byte(`say "hi"`)},
		{Row: 1, Col: 1, Kind: semantic.CellNumber, Number: -2},
	}})
	d.AddTable(&semantic.Table{ID: 7, Rows: 1, Cols: 1, Cells: []semantic.Cell{
		{Row: 0, Col: 0, Kind: semantic.CellText, Text: []byte("second")},
	}})
	return d
}

func write(t *testing.T, doc *semantic.Document, cfg Config) (string, error) {
	t.Helper()
	cfg.Now = fixedNow
	var buf bytes.Buffer
	err := New().Write(context.Background(), doc, &buf, cfg)
	return buf.String(), err
}

func TestHTMLText(t *testing.T) {
	out, err := write(t, textDoc(), Config{Format: FormatHTML})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "Café &lt;b&gt;", "MacRoman decoded and escaped")
	assert.Contains(t, out, "text-align:center;margin-left:18pt")
	assert.Contains(t, out, "• ")
	assert.Contains(t, out, "font-family:&#39;Times&#39;;font-size:14pt;font-weight:bold;text-decoration:underline;color:#ff0000")
	assert.Contains(t, out, `<span class="tab"></span>`)
	assert.Contains(t, out, `data-field="date">1991-03-04</span>`)
	assert.Contains(t, out, `<sup><a href="#note-1">1</a></sup>`)
	assert.Contains(t, out, `<div class="note footnote" id="note-1">`)
	assert.Contains(t, out, "Next")

	notes := strings.Index(out, `class="notes"`)
	require.Greater(t, notes, 0)
	assert.Greater(t, strings.Index(out, "the note"), notes, "note text is moved after the body")
	assert.Less(t, strings.Index(out, "Next"), notes)
}

func TestHTMLPagesAndFrames(t *testing.T) {
	d := semantic.NewDocument("ReadySetGo", 4)
	d.Kind = semantic.KindLayout
	d.FirstPageNumber = 5
	d.Controls = semantic.ControlMap{0x02: {Kind: semantic.CtrlField, Field: semantic.FieldPageNumber}}
	d.AddZone(semantic.NewTextZone(3, []byte("p\x02")))
	f := semantic.NewFrame(10, 0)
	f.Kind, f.TextZone = semantic.FrameText, 3
	f.Box = coords.Box{Min: coords.Point{X: 10, Y: 20}, Max: coords.Point{X: 110, Y: 70}}
	f.Style = semantic.FrameStyle{LineWidth: 1, Filled: true, FillColor: semantic.Color{G: 255}}
	d.AddFrame(f)
	pic := semantic.NewFrame(11, 0)
	pic.Kind, pic.Picture = semantic.FramePicture, 1
	d.AddFrame(pic)
	d.Pictures[1] = &semantic.Picture{ID: 1, Kind: semantic.PictureQuickDraw, Data: []byte{0, 1}}

	out, err := write(t, d, Config{})
	require.NoError(t, err)
	assert.Contains(t, out, `<section class="page" id="page-5" style="width:612pt;height:792pt">`)
	assert.Contains(t, out, `class="frame text" id="frame-10" style="left:10pt;top:20pt;width:100pt;height:50pt;border:1pt solid #000000;background:#00ff00"`)
	assert.Contains(t, out, `data-field="pagenumber">5</span>`)
	assert.Contains(t, out, `<span class="picture" data-kind="pict" data-id="1"></span>`)
}

func TestHTMLBitmapPicture(t *testing.T) {
	d := semantic.NewDocument("Student Writing Center", 1)
	f := semantic.NewFrame(1, 0)
	f.Kind, f.Picture = semantic.FramePicture, 2
	d.AddFrame(f)
	d.Pictures[2] = &semantic.Picture{ID: 2, Kind: semantic.PictureBitmap,
		Bitmap: &semantic.Bitmap{RowBytes: 2, Width: 8, Height: 1, Bits: []byte{0xF0, 0}}}

	out, err := write(t, d, Config{})
	require.NoError(t, err)
	assert.Contains(t, out, `<img src="data:image/bmp;base64,`)
}

func TestRawDump(t *testing.T) {
	out, err := write(t, textDoc(), Config{Format: FormatRaw})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, "document format=More version=3 kind=text pages=0 first=1 paper=612x792", lines[0])
	assert.Contains(t, out, "\n  paragraph justify=center left=18 ")
	assert.Contains(t, out, `    text "Café <b>"`)
	assert.Contains(t, out, "    note footnote\n      paragraph")
	assert.Contains(t, out, "    field date\n")

	out, err = write(t, textDoc(), Config{Format: FormatRaw, Flat: true})
	require.NoError(t, err)
	assert.Contains(t, out, "\nparagraph justify=center left=18 ")
	assert.NotContains(t, out, "\n  ")
}

func TestCSVQuotingAndSeparators(t *testing.T) {
	out, err := write(t, sheetDoc(), Config{Format: FormatCSV})
	require.NoError(t, err)
	assert.Equal(t, "3.25,\"a,b\",\"say \"\"hi\"\"\"\n,-2,\n", out)

	out, err = write(t, sheetDoc(), Config{Format: FormatCSV, CSV: CSVOptions{FieldSeparator: ';', DecimalSeparator: ',', TextSeparator: '\''}})
	require.NoError(t, err)
	assert.Equal(t, "3,25;a,b;say \"hi\"\n;-2;\n", out)
}

func TestCSVSheetSelection(t *testing.T) {
	out, err := write(t, sheetDoc(), Config{Format: FormatCSV, CSV: CSVOptions{Sheet: 1}})
	require.NoError(t, err)
	assert.Equal(t, "second\n", out)

	_, err = write(t, sheetDoc(), Config{Format: FormatCSV, CSV: CSVOptions{Sheet: 2}})
	assert.ErrorIs(t, err, ErrNoTable)
}

func TestFailedWriteProducesNothing(t *testing.T) {
	out, err := write(t, textDoc(), Config{Format: FormatCSV})
	assert.ErrorIs(t, err, ErrNoTable)
	assert.Empty(t, out)

	out, err = write(t, textDoc(), Config{Format: "pdf"})
	assert.ErrorIs(t, err, ErrUnknownFormat)
	assert.Empty(t, out)
}

type countingInterceptor struct {
	before, after int
	n             int64
	fail          error
}

func (c *countingInterceptor) BeforeWrite(context.Context, *semantic.Document) error {
	c.before++
	return c.fail
}

func (c *countingInterceptor) AfterWrite(_ context.Context, _ *semantic.Document, n int64) error {
	c.after++
	c.n = n
	return nil
}

func TestInterceptors(t *testing.T) {
	ic := &countingInterceptor{}
	w := (&WriterBuilder{}).WithInterceptor(ic).Build()
	var buf bytes.Buffer
	require.NoError(t, w.Write(context.Background(), sheetDoc(), &buf, Config{Format: FormatCSV}))
	assert.Equal(t, 1, ic.before)
	assert.Equal(t, 1, ic.after)
	assert.Equal(t, int64(buf.Len()), ic.n)

	ic.fail = errors.New("refused")
	buf.Reset()
	err := w.Write(context.Background(), sheetDoc(), &buf, Config{Format: FormatCSV})
	assert.EqualError(t, err, "refused")
	assert.Zero(t, buf.Len())
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	err := New().Write(ctx, textDoc(), &buf, Config{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, buf.Len())
}
