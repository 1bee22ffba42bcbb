package readysetgo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/legacydoc/builder"
	"github.com/wudi/legacydoc/formats"
	"github.com/wudi/legacydoc/ir/semantic"
	"github.com/wudi/legacydoc/recovery"
	"github.com/wudi/legacydoc/scanner"
)

type file struct {
	gen Generation
	w   *builder.Buffer
}

func newFile(gen Generation, version, pages int, master bool) *file {
	m := uint8(0)
	if master {
		m = 1
	}
	w := builder.New().U16(magic).U16(uint16(version)).U16(uint16(pages)).I16(612).I16(792).U8(m).U8(0).Zeros(20)
	return &file{gen: gen, w: w}
}

// rec appends a record whose length is patched once body returns.
func (f *file) rec(typ uint16, body func(w *builder.Buffer)) *file {
	f.w.U16(typ).Mark("len")
	if f.gen == Gen1 {
		f.w.U16(0)
	} else {
		f.w.U32(0)
	}
	start := f.w.Len()
	body(f.w)
	n := f.w.Len() - start
	if f.gen == Gen1 {
		f.w.PatchU16(f.w.Offset("len"), uint16(n))
	} else {
		f.w.PatchU32(f.w.Offset("len"), uint32(n))
	}
	return f
}

func (f *file) end() []byte {
	f.rec(recEnd, func(*builder.Buffer) {})
	return f.w.Bytes()
}

func page(number, flags uint16) func(w *builder.Buffer) {
	return func(w *builder.Buffer) { w.U16(number).U16(flags) }
}

func decode(t *testing.T, d *Decoder, data []byte, strategy recovery.Strategy) (*semantic.Document, error) {
	t.Helper()
	c := scanner.FromBytes(data)
	s := formats.NewSession(context.Background(), c, d.Identify(c), formats.SessionOptions{Recovery: strategy})
	return d.Decode(context.Background(), s)
}

func gen1File() []byte {
	f := newFile(Gen1, 1, 2, true)
	f.rec(recPage, page(1, 1))
	// text box declared before its zone
	f.rec(recShape, func(w *builder.Buffer) {
		w.U16(7).U8(5).U8(1).I16(10).I16(20).I16(110).I16(220).U8(2).U8(1).U8(2).U8(0).I16(5).I16(-1)
	})
	f.rec(recShape, func(w *builder.Buffer) {
		w.U16(8).U8(6).U8(0).I16(0).I16(0).I16(2).I16(8).U8(0).U8(0).U8(0).U8(0).I16(-1).I16(3)
	})
	f.rec(recText, func(w *builder.Buffer) {
		s := "Hi\x04\rthere"
		w.U16(5).U16(uint16(len(s))).Str(s).PadEven()
		w.U16(1).U16(0).U16(20).U8(10).U8(2)
		w.U16(1).U16(0).U16(1)
	})
	f.rec(recPicture, func(w *builder.Buffer) {
		w.U16(3).I16(0).I16(0).I16(2).I16(8).U8(1).U8(0).U16(1).U16(8).U16(2).U8(1).U8(0xF0).U8(0x0F)
	})
	f.rec(recFonts, func(w *builder.Buffer) { w.U16(1).U16(20).Pstr("Palatino") })
	f.rec(recParaStyles, func(w *builder.Buffer) {
		w.U16(1).Mark("style").U16(0).U16(1).I16(36).I16(0).I16(0).U8(2).U8(0).I16(200).I16(0).I16(0)
		w.PatchU16(w.Offset("style"), uint16(w.Since("style")-2))
	})
	return f.end()
}

func gen2Shape(w *builder.Buffer, id uint16, kind uint8, zone, prev, next int16) {
	w.U16(id).U8(kind).U8(0).DFix(10, 5000).DFix(20, 0).DFix(100, 0).DFix(200, 0)
	w.U16(512).U16(20).U16(1).U16(0).I16(zone).I16(-1).I16(prev).I16(next).U16(6)
}

func gen2File() []byte {
	f := newFile(Gen2, 4, 1, false)
	f.rec(recColors, func(w *builder.Buffer) { w.U16(1).U16(20).U16(0xFFFF).U16(0).U16(0) })
	f.rec(recPage, page(0, 0))
	f.rec(recShape, func(w *builder.Buffer) { gen2Shape(w, 1, 1, -1, -1, -1) })
	f.rec(recPage, page(1, 1))
	f.rec(recShape, func(w *builder.Buffer) { gen2Shape(w, 2, 5, 1, -1, 3) })
	f.rec(recShape, func(w *builder.Buffer) { gen2Shape(w, 3, 5, 1, 2, -1) })
	f.rec(recShape, func(w *builder.Buffer) { gen2Shape(w, 4, 5, -1, 9, -1) })
	f.rec(recText, func(w *builder.Buffer) {
		s := "Flowing\x0ctext"
		w.U16(1).U16(uint16(len(s))).Str(s).PadEven()
		w.U16(1).U16(0).U16(3).U8(12).U8(0).U16(20)
		w.U16(0)
	})
	f.rec(recText, func(w *builder.Buffer) {
		w.U16(2).U16(4).Str("Head").U16(0).U16(0)
	})
	f.rec(recHeaders, func(w *builder.Buffer) { w.U16(1).U16(1).U16(1).I16(2).I16(-1) })
	f.rec(7, func(w *builder.Buffer) { w.U8(1).U8(2).U8(3) })
	return f.end()
}

func TestIdentifyByReplay(t *testing.T) {
	g1, g2 := gen1File(), gen2File()
	assert.Equal(t, formats.ConfidenceExcellent, NewGen1().Identify(scanner.FromBytes(g1)).Confidence)
	assert.Equal(t, formats.ConfidencePoor, NewGen2().Identify(scanner.FromBytes(g1)).Confidence)
	assert.Equal(t, formats.ConfidenceExcellent, NewGen2().Identify(scanner.FromBytes(g2)).Confidence)
	assert.Equal(t, formats.ConfidencePoor, NewGen1().Identify(scanner.FromBytes(g2)).Confidence)

	id := NewGen2().Identify(scanner.FromBytes(g2))
	assert.Equal(t, 4, id.Version)
	assert.Equal(t, semantic.KindLayout, id.Kind)

	// trailing bytes after the end record
	assert.Equal(t, formats.ConfidencePoor, NewGen1().Identify(scanner.FromBytes(append(g1, 0, 0))).Confidence)
	// no end record, last record ends at EOF
	noEnd := g1[:len(g1)-4]
	assert.Equal(t, formats.ConfidenceExcellent, NewGen1().Identify(scanner.FromBytes(noEnd)).Confidence)
	// illegal type
	bad := newFile(Gen1, 1, 1, false).rec(9, func(w *builder.Buffer) {}).end()
	assert.Equal(t, formats.ConfidencePoor, NewGen1().Identify(scanner.FromBytes(bad)).Confidence)

	assert.Equal(t, formats.ConfidenceNone, NewGen1().Identify(scanner.FromBytes([]byte{1, 2, 3})).Confidence)
}

func TestGen1ForwardReferences(t *testing.T) {
	doc, err := decode(t, NewGen1(), gen1File(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, doc.NumPages())
	assert.True(t, doc.Pages[0].UsesMaster)
	assert.Equal(t, 612.0, doc.Layout.PaperWidth)
	assert.Equal(t, semantic.NoLink, doc.BodyZone)

	frames := doc.FramesOf(0)
	require.Len(t, frames, 2)
	box := frames[0]
	assert.Equal(t, semantic.FrameText, box.Kind)
	assert.Equal(t, 5, box.TextZone)
	assert.Equal(t, 200.0, box.Box.Width())
	assert.Equal(t, 100.0, box.Box.Height())
	assert.Equal(t, semantic.WrapAround, box.Style.Wrap)
	assert.Equal(t, 2.0, box.Style.LineWidth)
	assert.True(t, box.Style.Filled)
	assert.Equal(t, semantic.Color{R: 128, G: 128, B: 128}, box.Style.FillColor)

	pic := frames[1]
	assert.Equal(t, 3, pic.Picture)
	require.NotNil(t, doc.Pictures[3].Bitmap)
	assert.Equal(t, []byte{0xF0, 0x0F}, doc.Pictures[3].Bitmap.Bits)

	z := doc.Zones[5]
	require.NotNil(t, z)
	font := z.FontAt(0)
	assert.Equal(t, "Palatino", font.Name)
	assert.Equal(t, 10.0, font.Size)
	assert.True(t, font.Flags.Has(semantic.Italic))
	style := z.ParagraphStyleAt(0)
	assert.Equal(t, 36.0, style.LeftMargin)
	assert.Equal(t, semantic.JustifyRight, style.Justify)
	assert.Equal(t, 2.0, style.Interline)
	assert.Equal(t, semantic.Control{Kind: semantic.CtrlField, Field: semantic.FieldPageNumber}, doc.Controls[0x04])
	_, hasDate := doc.Controls[0x03]
	assert.False(t, hasDate)
}

func TestGen2ChainsMasterAndHeaders(t *testing.T) {
	doc, err := decode(t, NewGen2(), gen2File(), nil)
	require.NoError(t, err)

	assert.Equal(t, []int{1}, doc.Master)
	require.Len(t, doc.Pages, 1)
	assert.True(t, doc.Pages[0].UsesMaster)
	assert.Equal(t, []int{2, 3, 4}, doc.Pages[0].Frames)

	assert.Equal(t, 3, doc.Frames[2].Next)
	assert.Equal(t, 2, doc.Frames[3].Prev)
	assert.Equal(t, semantic.NoLink, doc.Frames[4].Prev, "link to a missing frame is pruned")
	assert.Len(t, doc.Chain(2), 2)

	f := doc.Frames[2]
	assert.Equal(t, 10.5, f.Box.Min.Y)
	assert.Equal(t, 2.0, f.Style.LineWidth)
	assert.Equal(t, semantic.Color{R: 255}, f.Style.LineColor)
	assert.False(t, f.Style.Filled)
	assert.Equal(t, 6.0, f.Style.CornerRadius)
	assert.Equal(t, semantic.Color{R: 255}, doc.Zones[1].FontAt(0).Color)
	assert.Equal(t, "Geneva", doc.Zones[1].FontAt(0).Name)

	require.Len(t, doc.HeaderFooters, 1)
	assert.Equal(t, semantic.HeaderFooter{Kind: semantic.Header, FromPage: 1, ToPage: 1, Zone: 2}, doc.HeaderFooters[0])

	require.NotEmpty(t, doc.Reserved)
	assert.Equal(t, "Reserved7", doc.Reserved[len(doc.Reserved)-1].Component)
	assert.Equal(t, semantic.CtrlPageBreak, doc.Controls[0x0C].Kind)
}

func TestBrokenRecordKeepsEarlierOnes(t *testing.T) {
	f := newFile(Gen1, 1, 1, false)
	f.rec(recPage, page(1, 0))
	f.rec(recShape, func(w *builder.Buffer) {
		w.U16(1).U8(1).U8(0).I16(0).I16(0).I16(10).I16(10).U8(1).U8(1).U8(0).U8(0).I16(-1).I16(-1)
	})
	data := f.w.U16(recText).U16(400).U16(1).Bytes()

	doc, err := decode(t, NewGen1(), data, nil)
	require.NoError(t, err)
	assert.Contains(t, doc.Frames, 1)

	_, err = decode(t, NewGen1(), data, recovery.NewStrictStrategy())
	assert.ErrorIs(t, err, formats.ErrStructural)
}

func TestShapeBeforePageIsSkipped(t *testing.T) {
	f := newFile(Gen1, 1, 1, false)
	f.rec(recShape, func(w *builder.Buffer) {
		w.U16(1).U8(1).U8(0).I16(0).I16(0).I16(10).I16(10).U8(1).U8(1).U8(0).U8(0).I16(4).I16(-1)
	})
	doc, err := decode(t, NewGen1(), f.end(), nil)
	require.NoError(t, err)
	assert.Empty(t, doc.Frames)
}

func FuzzDecode(f *testing.F) {
	f.Add(gen1File())
	f.Add(gen2File())
	f.Fuzz(func(t *testing.T, data []byte) {
		for _, d := range []*Decoder{NewGen1(), NewGen2()} {
			c := scanner.FromBytes(data)
			id := d.Identify(c)
			if id.Confidence != formats.ConfidenceExcellent {
				continue
			}
			s := formats.NewSession(context.Background(), c, id, formats.SessionOptions{})
			_, _ = d.Decode(context.Background(), s)
		}
	})
}
