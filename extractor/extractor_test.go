package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/legacydoc/ir/semantic"
)

func sampleDoc() *semantic.Document {
	d := semantic.NewDocument("Student Writing Center", 2)
	d.Kind = semantic.KindLayout
	d.Controls = semantic.ControlMap{
		0x09: {Kind: semantic.CtrlTab},
		0x0D: {Kind: semantic.CtrlParagraph},
		0x1F: {Kind: semantic.CtrlAnchor},
	}
	body := semantic.NewTextZone(1, []byte("A\tb\x1f\rC\x8e"))
	body.AddFont(0, semantic.Font{Name: "Times", Size: 12})
	body.AddFont(4, semantic.Font{Name: "Chicago", Size: 9})
	body.AddAnchor(3, semantic.SubDocument{Kind: semantic.SubText, ID: 4})
	d.AddZone(body)
	d.BodyZone = 1
	d.AddZone(semantic.NewTextZone(2, []byte("Top")))
	d.HeaderFooters = []semantic.HeaderFooter{{Kind: semantic.Footer, Zone: 2}}
	d.AddZone(semantic.NewTextZone(3, []byte("framed")))
	d.AddZone(semantic.NewTextZone(4, []byte("note")))
	d.AddZone(semantic.NewTextZone(5, []byte("")))

	head, tail := semantic.NewFrame(10, 1), semantic.NewFrame(11, 2)
	head.TextZone, tail.TextZone = 3, 3
	head.Next, tail.Prev = 11, 10
	d.AddFrame(head)
	d.AddFrame(tail)

	d.Pictures[7] = &semantic.Picture{ID: 7, Kind: semantic.PictureBitmap,
		Bitmap: &semantic.Bitmap{RowBytes: 2, Width: 9, Height: 1, Bits: []byte{0xFF, 0x80}}}
	d.Pictures[2] = &semantic.Picture{ID: 2, Kind: semantic.PictureQuickDraw, Data: []byte{1, 2, 3}}
	d.Pictures[9] = &semantic.Picture{ID: 9, Kind: semantic.PictureBitmap,
		Bitmap: &semantic.Bitmap{RowBytes: 1, Width: 16, Height: 1, Bits: []byte{0}}}
	return d
}

func TestNilDocument(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestExtractMetadata(t *testing.T) {
	e, err := New(sampleDoc())
	require.NoError(t, err)
	m := e.ExtractMetadata()
	assert.Equal(t, "Student Writing Center", m.Format)
	assert.Equal(t, semantic.KindLayout, m.Kind)
	assert.Equal(t, 3, m.PageCount)
	assert.Equal(t, 5, m.Zones)
	assert.Equal(t, 2, m.Frames)
	assert.Equal(t, 3, m.Pictures)
}

func TestExtractText(t *testing.T) {
	e, err := New(sampleDoc())
	require.NoError(t, err)
	zones, err := e.ExtractText()
	require.NoError(t, err)
	require.Len(t, zones, 5)

	assert.Equal(t, ZoneText{Zone: 1, Role: RoleBody, Content: "A\tb\nCé"}, zones[0])
	assert.Equal(t, ZoneText{Zone: 2, Role: RoleFooter, Content: "Top"}, zones[1])
	assert.Equal(t, ZoneText{Zone: 3, Role: RoleFrame, Page: 1, Content: "framed"}, zones[2])
	assert.Equal(t, ZoneText{Zone: 4, Role: RoleNote, Content: "note"}, zones[3])
	assert.Equal(t, ZoneText{Zone: 5, Role: RoleOther}, zones[4])
}

func TestExtractFonts(t *testing.T) {
	e, err := New(sampleDoc())
	require.NoError(t, err)
	fonts := e.ExtractFonts()
	require.Len(t, fonts, 3)
	assert.Equal(t, FontUsage{Name: "Geneva", Sizes: []float64{12}, Chars: 13}, fonts[0])
	assert.Equal(t, FontUsage{Name: "Times", Sizes: []float64{12}, Chars: 4}, fonts[1])
	assert.Equal(t, FontUsage{Name: "Chicago", Sizes: []float64{9}, Chars: 3}, fonts[2])
}

func TestExtractPictures(t *testing.T) {
	e, err := New(sampleDoc())
	require.NoError(t, err)
	pics, err := e.ExtractPictures(nil)
	require.NoError(t, err)
	require.Len(t, pics, 2, "the malformed bitmap is skipped")
	assert.Equal(t, 2, pics[0].ID)
	assert.Equal(t, "pict", pics[0].Extension)
	assert.Equal(t, []byte{1, 2, 3}, pics[0].Data)
	assert.Equal(t, 7, pics[1].ID)
	assert.Equal(t, "bmp", pics[1].Extension)
	assert.Equal(t, "BM", string(pics[1].Data[:2]))
}
