package images

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/wudi/legacydoc/ir/semantic"
)

func checker() *semantic.Picture {
	return &semantic.Picture{
		ID:     3,
		Kind:   semantic.PictureBitmap,
		Bitmap: &semantic.Bitmap{RowBytes: 2, Width: 9, Height: 2, Bits: []byte{0xAA, 0x80, 0x55, 0x00}},
	}
}

func TestImageBits(t *testing.T) {
	img, err := Image(checker().Bitmap)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), img.ColorIndexAt(0, 0))
	assert.Equal(t, uint8(0), img.ColorIndexAt(1, 0))
	assert.Equal(t, uint8(1), img.ColorIndexAt(8, 0))
	assert.Equal(t, uint8(1), img.ColorIndexAt(1, 1))
	assert.Equal(t, uint8(0), img.ColorIndexAt(8, 1))

	_, err = Image(&semantic.Bitmap{RowBytes: 1, Width: 9, Height: 1, Bits: []byte{0}})
	assert.ErrorIs(t, err, ErrBadBitmap)
	_, err = Image(&semantic.Bitmap{RowBytes: 1, Width: 8, Height: 2, Bits: []byte{0}})
	assert.ErrorIs(t, err, ErrBadBitmap)
}

func TestBMPIsCached(t *testing.T) {
	c, err := NewConverter(0)
	require.NoError(t, err)
	pic := checker()

	first, err := c.BMP(pic)
	require.NoError(t, err)
	img, err := bmp.Decode(bytes.NewReader(first))
	require.NoError(t, err)
	assert.Equal(t, 9, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())

	again, err := c.BMP(pic)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, c.Cached())

	uri, err := c.DataURI(pic)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/bmp;base64,Qk"))
}

func TestOpaquePicture(t *testing.T) {
	c, err := NewConverter(4)
	require.NoError(t, err)
	_, err = c.BMP(&semantic.Picture{Kind: semantic.PictureQuickDraw, Data: []byte{1, 2}})
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Zero(t, c.Cached())
}
