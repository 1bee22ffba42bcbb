// Package printinfo decodes the 120-byte Mac print record that most legacy
// documents embed and derives the page layout from it.
package printinfo

import (
	"errors"
	"fmt"

	"github.com/wudi/legacydoc/ir/semantic"
	"github.com/wudi/legacydoc/scanner"
)

// Size is the on-disk length of a print record.
const Size = 120

// ErrInvalid is returned for a record whose page or paper rectangle is empty.
var ErrInvalid = errors.New("invalid print record")

// Rect uses the QuickDraw edge order.
type Rect struct {
	Top, Left, Bottom, Right float64
}

func (r Rect) Width() float64  { return r.Right - r.Left }
func (r Rect) Height() float64 { return r.Bottom - r.Top }

type Record struct {
	Version uint16
	Device  int16
	VRes    int16
	HRes    int16
	// Page and Paper are in points.
	Page     Rect
	Paper    Rect
	Reserved []byte
}

// Read consumes exactly Size bytes. When the record is structurally readable but
// its rectangles are empty it returns the record together with ErrInvalid.
func Read(c *scanner.Cursor) (*Record, error) {
	start := c.Tell()
	if c.Remaining() < Size {
		return nil, fmt.Errorf("print record at %d: %w", start, scanner.ErrOutOfBounds)
	}
	var r Record
	var err error
	if r.Version, err = c.U16(); err != nil {
		return nil, err
	}
	words := make([]int16, 3+8)
	for i := range words {
		if words[i], err = c.I16(); err != nil {
			return nil, err
		}
	}
	r.Device, r.VRes, r.HRes = words[0], words[1], words[2]
	if r.Reserved, err = c.ReadBytes(Size - 2 - 2*int64(len(words))); err != nil {
		return nil, err
	}
	sx, sy := scale(r.HRes), scale(r.VRes)
	rect := func(w []int16) Rect {
		return Rect{Top: float64(w[0]) * sy, Left: float64(w[1]) * sx, Bottom: float64(w[2]) * sy, Right: float64(w[3]) * sx}
	}
	r.Page, r.Paper = rect(words[3:7]), rect(words[7:11])
	if !r.Valid() {
		return &r, fmt.Errorf("print record at %d: %w", start, ErrInvalid)
	}
	return &r, nil
}

// Parse reads a record from a standalone buffer.
func Parse(b []byte) (*Record, error) { return Read(scanner.FromBytes(b)) }

func scale(res int16) float64 {
	if res > 0 && res != 72 {
		return 72 / float64(res)
	}
	return 1
}

// Valid reports whether both rectangles have positive size.
func (r *Record) Valid() bool {
	return r.Page.Width() > 0 && r.Page.Height() > 0 && r.Paper.Width() > 0 && r.Paper.Height() > 0
}

// Layout derives the paper size and margins. The printable origin is moved to
// at most 14 points from the paper edge and 50 points are given back on the
// right and bottom sides.
func (r *Record) Layout() (semantic.PageLayout, error) {
	if !r.Valid() {
		return semantic.PageLayout{}, ErrInvalid
	}
	ltX, ltY := -r.Paper.Left, -r.Paper.Top
	rbX := r.Paper.Width() - r.Page.Width()
	rbY := r.Paper.Height() - r.Page.Height()
	if ltX > 14 {
		rbX += ltX - 14
		ltX = 14
	}
	if ltY > 14 {
		rbY += ltY - 14
		ltY = 14
	}
	return semantic.PageLayout{
		PaperWidth:  r.Paper.Width(),
		PaperHeight: r.Paper.Height(),
		Margins: semantic.Margins{
			Left:   max(ltX, 0),
			Top:    max(ltY, 0),
			Right:  max(rbX-50, 0),
			Bottom: max(rbY-50, 0),
		},
	}, nil
}
