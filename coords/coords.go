package coords

import "fmt"

// Matrix is an affine transform [a b c d e f].
type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{m[0]*o[0] + m[1]*o[2], m[0]*o[1] + m[1]*o[3], m[2]*o[0] + m[3]*o[2], m[2]*o[1] + m[3]*o[3], m[4]*o[0] + m[5]*o[2] + o[4], m[4]*o[1] + m[5]*o[3] + o[5]}
}

// Point is a position in points (1/72 inch), y growing downwards.
type Point struct{ X, Y float64 }

func (m Matrix) Transform(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y + m[4], Y: m[1]*p.X + m[3]*p.Y + m[5]}
}
func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }
func Scale(sx, sy float64) Matrix     { return Matrix{sx, 0, 0, sy, 0, 0} }

// Box is an axis-aligned bounding box in points.
type Box struct {
	Min, Max Point
}

// BoxFromEdges builds a box from the top/left/bottom/right order used by Mac rectangles.
// Swapped edges are normalised.
func BoxFromEdges(top, left, bottom, right float64) Box {
	if bottom < top {
		top, bottom = bottom, top
	}
	if right < left {
		left, right = right, left
	}
	return Box{Min: Point{X: left, Y: top}, Max: Point{X: right, Y: bottom}}
}

func (b Box) Width() float64  { return b.Max.X - b.Min.X }
func (b Box) Height() float64 { return b.Max.Y - b.Min.Y }

// Empty reports whether the box has no area.
func (b Box) Empty() bool { return b.Width() <= 0 || b.Height() <= 0 }

// Apply transforms both corners and re-normalises the result.
func (b Box) Apply(m Matrix) Box {
	p, q := m.Transform(b.Min), m.Transform(b.Max)
	return BoxFromEdges(p.Y, p.X, q.Y, q.X)
}

func (b Box) String() string {
	return fmt.Sprintf("(%g,%g)x(%g,%g)", b.Min.X, b.Min.Y, b.Max.X, b.Max.Y)
}
