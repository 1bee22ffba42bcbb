// Package images turns decoded pictures into files a sink can embed.
//
// Converted bitmaps are cached per Converter: a background picture placed on
// the master page is requested once for every page.
package images

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/image/bmp"

	"github.com/wudi/legacydoc/ir/semantic"
)

var (
	// ErrUnsupported is returned for opaque QuickDraw pictures.
	ErrUnsupported = errors.New("picture cannot be converted")
	ErrBadBitmap   = errors.New("bitmap dimensions exceed its data")
)

const DefaultCacheSize = 64

var bw = color.Palette{color.White, color.Black}

type Converter struct {
	cache *lru.Cache[*semantic.Picture, []byte]
}

// NewConverter keeps up to size converted pictures; size <= 0 uses DefaultCacheSize.
func NewConverter(size int) (*Converter, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[*semantic.Picture, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("picture cache: %w", err)
	}
	return &Converter{cache: cache}, nil
}

// Image expands a 1-bit bitmap into a two-colour paletted image.
func Image(b *semantic.Bitmap) (*image.Paletted, error) {
	if b == nil || b.Width <= 0 || b.Height <= 0 || b.Width > b.RowBytes*8 || b.RowBytes*b.Height > len(b.Bits) {
		return nil, ErrBadBitmap
	}
	img := image.NewPaletted(image.Rect(0, 0, b.Width, b.Height), bw)
	for y := 0; y < b.Height; y++ {
		row := b.Bits[y*b.RowBytes : (y+1)*b.RowBytes]
		for x := 0; x < b.Width; x++ {
			if row[x>>3]&(0x80>>(x&7)) != 0 {
				img.SetColorIndex(x, y, 1)
			}
		}
	}
	return img, nil
}

// BMP encodes a bitmap picture as a BMP file.
func (c *Converter) BMP(pic *semantic.Picture) ([]byte, error) {
	if pic == nil || pic.Kind != semantic.PictureBitmap || pic.Bitmap == nil {
		return nil, ErrUnsupported
	}
	if b, ok := c.cache.Get(pic); ok {
		return b, nil
	}
	img, err := Image(pic.Bitmap)
	if err != nil {
		return nil, fmt.Errorf("picture %d: %w", pic.ID, err)
	}
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("picture %d: %w", pic.ID, err)
	}
	out := buf.Bytes()
	c.cache.Add(pic, out)
	return out, nil
}

// DataURI returns the picture as an inline image/bmp URL.
func (c *Converter) DataURI(pic *semantic.Picture) (string, error) {
	b, err := c.BMP(pic)
	if err != nil {
		return "", err
	}
	return "data:image/bmp;base64," + base64.StdEncoding.EncodeToString(b), nil
}

// Cached is the number of pictures held.
func (c *Converter) Cached() int { return c.cache.Len() }
