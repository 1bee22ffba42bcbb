package wordmaker

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

type tabStop struct {
	pos    int16
	align  uint8
	leader uint8
}

type fixture struct {
	printInfo        bool
	body, head, foot string
	paras            [][6]int16
	fontRuns         [][4]int
	tabRuns          map[uint32][]tabStop
	tabOrder         []uint32
	fonts            map[uint16]string
	fontOrder        []uint16
	firstPage        uint16
}

func (f *fixture) bytes() []byte {
	pi := uint8(0)
	if f.printInfo {
		pi = 1
	}
	w := builder.New().U16(magic).U16(2).U32(uint32(len(f.body)))
	w.U16(uint16(len(f.fontOrder))).U16(uint16(len(f.paras))).U16(uint16(len(f.fontRuns)))
	w.U8(pi).U8(0).U16(uint16(len(f.head))).U16(uint16(len(f.foot))).U16(f.firstPage)
	w.U16(uint16(len(f.tabOrder))).Zeros(8)
	if f.printInfo {
		w.PrintInfo(72, [4]int16{0, 0, 730, 552}, [4]int16{-41, -30, 751, 582})
	}
	w.Str(f.body).Str(f.head).Str(f.foot)
	for _, p := range f.paras {
		w.I16(p[0]).I16(p[1]).I16(p[2]).U8(uint8(p[3])).U8(uint8(p[4])).I16(p[5])
	}
	for _, r := range f.fontRuns {
		w.U32(uint32(r[0])).U16(uint16(r[1])).U8(uint8(r[2])).U8(uint8(r[3]))
	}
	for _, pos := range f.tabOrder {
		stops := f.tabRuns[pos]
		w.U32(pos).U8(uint8(len(stops))).U8(0)
		for _, s := range stops {
			w.I16(s.pos).U8(s.align).U8(s.leader)
		}
	}
	for _, id := range f.fontOrder {
		w.U16(id).Pstr(f.fonts[id])
	}
	return w.Bytes()
}

func sample() *fixture {
	return &fixture{
		printInfo: true,
		body:      "One\rTwo\x00\r",
		head:      "Head",
		paras: [][6]int16{
			{36, 18, 0, 2, 1, 6},
			{0, 0, 0, 0, 2, 0},
			{10, 10, 0, 1, 0, 0},
		},
		fontRuns:  [][4]int{{0, 21, 10, 1}, {6, 22, 14, 0}},
		tabRuns:   map[uint32][]tabStop{4: {{pos: 100, align: 1, leader: '.'}}},
		tabOrder:  []uint32{4},
		fonts:     map[uint16]string{21: "Helvetica", 22: "Times"},
		fontOrder: []uint16{21, 22},
		firstPage: 3,
	}
}

func decode(t *testing.T, data []byte, strategy recovery.Strategy) (*semantic.Document, error) {
	t.Helper()
	c := scanner.FromBytes(data)
	d := New()
	s := formats.NewSession(context.Background(), c, d.Identify(c), formats.SessionOptions{Recovery: strategy})
	return d.Decode(context.Background(), s)
}

func TestIdentify(t *testing.T) {
	data := sample().bytes()
	id := New().Identify(scanner.FromBytes(data))
	assert.Equal(t, formats.ConfidenceExcellent, id.Confidence)
	assert.Equal(t, 2, id.Version)
	assert.Equal(t, semantic.KindText, id.Kind)

	trailing := append(append([]byte(nil), data...), 0)
	assert.Equal(t, formats.ConfidencePoor, New().Identify(scanner.FromBytes(trailing)).Confidence)
	assert.Equal(t, formats.ConfidencePoor, New().Identify(scanner.FromBytes(data[:len(data)-1])).Confidence)

	data[2], data[3] = 0, 9
	assert.Equal(t, formats.ConfidenceNone, New().Identify(scanner.FromBytes(data)).Confidence)
}

func TestZonesShareOneStream(t *testing.T) {
	doc, err := decode(t, sample().bytes(), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, doc.BodyZone)
	assert.Equal(t, 3, doc.FirstPageNumber)
	require.Len(t, doc.HeaderFooters, 1)
	assert.Equal(t, semantic.HeaderFooter{Kind: semantic.Header, Zone: 1}, doc.HeaderFooters[0])
	assert.NotContains(t, doc.Zones, 2, "empty footer is not a zone")

	body := doc.Zones[0]
	require.NotNil(t, body)
	assert.Equal(t, 2, body.ParagraphCount())
	first := body.ParagraphStyleAt(0)
	assert.Equal(t, 36.0, first.LeftMargin)
	assert.Equal(t, -18.0, first.FirstLineOffset)
	assert.Equal(t, semantic.JustifyRight, first.Justify)
	assert.Equal(t, 1.5, first.Interline)
	assert.Equal(t, 6.0, first.SpaceBefore)

	second := body.ParagraphStyleAt(4)
	assert.Equal(t, 2.0, second.Interline)
	require.Len(t, second.Tabs, 1)
	assert.Equal(t, semantic.Tab{Pos: 100, Align: semantic.TabCenter, Leader: '.'}, second.Tabs[0])

	font := body.FontAt(0)
	assert.Equal(t, "Helvetica", font.Name)
	assert.Equal(t, 10.0, font.Size)
	assert.True(t, font.Flags.Has(semantic.Bold))
	assert.Equal(t, "Times", body.FontAt(6).Name)

	head := doc.Zones[1]
	require.NotNil(t, head)
	assert.Equal(t, "Head", string(head.Text))
	assert.Equal(t, 10.0, head.ParagraphStyleAt(0).LeftMargin, "third paragraph record belongs to the header")
	carried := head.FontAt(0)
	assert.Equal(t, "Times", carried.Name)
	assert.Equal(t, 14.0, carried.Size)
}

func TestPrintRecordSetsLayout(t *testing.T) {
	doc, err := decode(t, sample().bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, 612.0, doc.Layout.PaperWidth)
	assert.Equal(t, 792.0, doc.Layout.PaperHeight)
	assert.Equal(t, 14.0, doc.Layout.Margins.Left)

	f := sample()
	f.printInfo = false
	doc, err = decode(t, f.bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, semantic.DefaultPageLayout(), doc.Layout)
}

func TestTruncatedSections(t *testing.T) {
	f := sample()
	f.printInfo = false
	data := f.bytes()
	afterBody := data[:headerSize+len(f.body)+2]

	doc, err := decode(t, afterBody, nil)
	require.NoError(t, err)
	assert.Equal(t, "One\rTwo\x00\r", string(doc.Zones[0].Text))

	_, err = decode(t, afterBody, recovery.NewStrictStrategy())
	assert.ErrorIs(t, err, formats.ErrStructural)

	_, err = decode(t, data[:headerSize+3], nil)
	assert.ErrorIs(t, err, formats.ErrStructural)
}

func TestIndentsUseFullRange(t *testing.T) {
	p := paragraph(paraRec{left: -32768, firstIndent: 32767})
	assert.Equal(t, -32768.0, p.LeftMargin)
	assert.Equal(t, 65535.0, p.FirstLineOffset)

	p = paragraph(paraRec{left: 32767, firstIndent: -32768})
	assert.Equal(t, -65535.0, p.FirstLineOffset)
}

func FuzzDecode(f *testing.F) {
	f.Add(sample().bytes())
	f.Fuzz(func(t *testing.T, data []byte) {
		c := scanner.FromBytes(data)
		d := New()
		id := d.Identify(c)
		if id.Confidence == formats.ConfidenceNone {
			return
		}
		s := formats.NewSession(context.Background(), c, id, formats.SessionOptions{})
		_, _ = d.Decode(context.Background(), s)
	})
}
