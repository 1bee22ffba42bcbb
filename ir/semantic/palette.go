package semantic

import (
	"fmt"
	"math/bits"
)

type Color struct{ R, G, B uint8 }

var (
	Black = Color{}
	White = Color{255, 255, 255}
)

// ColorFrom16 keeps the high byte of 16-bit channels.
func ColorFrom16(r, g, b uint16) Color {
	return Color{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
}

func (c Color) Hex() string { return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B) }

func (c Color) IsBlack() bool { return c == Black }

// Pattern is an 8x8 one-bit tile, 1 = foreground.
type Pattern [8]byte

// Coverage is the fraction of foreground pixels.
func (p Pattern) Coverage() float64 {
	n := 0
	for _, b := range p {
		n += bits.OnesCount8(b)
	}
	return float64(n) / 64
}

// Blend returns the average colour of the tile drawn with fg over bg.
func (p Pattern) Blend(fg, bg Color) Color {
	c := p.Coverage()
	mix := func(a, b uint8) uint8 { return uint8(float64(a)*c + float64(b)*(1-c) + 0.5) }
	return Color{mix(fg.R, bg.R), mix(fg.G, bg.G), mix(fg.B, bg.B)}
}

// Palette maps color and pattern ids to values. Documents may override the built-in entries.
type Palette struct {
	colors   map[int]Color
	patterns map[int]Pattern
}

func DefaultPalette() *Palette {
	p := &Palette{
		colors: map[int]Color{
			0: Black,
			1: White,
			2: {255, 0, 0},
			3: {0, 255, 0},
			4: {0, 0, 255},
			5: {0, 255, 255},
			6: {255, 0, 255},
			7: {255, 255, 0},
		},
		patterns: map[int]Pattern{
			0: {},
			1: {0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			2: {0xaa, 0x55, 0xaa, 0x55, 0xaa, 0x55, 0xaa, 0x55},
			3: {0x88, 0x22, 0x88, 0x22, 0x88, 0x22, 0x88, 0x22},
			4: {0x77, 0xdd, 0x77, 0xdd, 0x77, 0xdd, 0x77, 0xdd},
			5: {0xff, 0, 0, 0, 0xff, 0, 0, 0},
			6: {0x88, 0x88, 0x88, 0x88, 0x88, 0x88, 0x88, 0x88},
			7: {0x80, 0x40, 0x20, 0x10, 0x08, 0x04, 0x02, 0x01},
		},
	}
	for k := 1; k <= 8; k++ {
		v := uint8(255 - (255*k+4)/9)
		p.colors[7+k] = Color{v, v, v}
	}
	return p
}

func (p *Palette) SetColor(id int, c Color)     { p.colors[id] = c }
func (p *Palette) SetPattern(id int, t Pattern) { p.patterns[id] = t }

// Color returns black and false for an unknown id.
func (p *Palette) Color(id int) (Color, bool) {
	c, ok := p.colors[id]
	if !ok {
		return Black, false
	}
	return c, true
}

// Pattern returns the empty pattern and false for an unknown id.
func (p *Palette) Pattern(id int) (Pattern, bool) {
	t, ok := p.patterns[id]
	return t, ok
}

func (p *Palette) NumColors() int { return len(p.colors) }
