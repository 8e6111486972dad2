// Package coords holds the affine geometry shared by every stage of the page
// pipeline. Matrices follow the PDF row-vector convention: a point p maps to
// p x M, so m.Multiply(o) applies m first and o second.
package coords

import (
	"errors"
	"math"
)

var ErrSingular = errors.New("coords: matrix singular")

// Matrix is [a b c d e f] as written in a PDF content stream.
type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

// Multiply returns m x o.
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

type Point struct{ X, Y float64 }

func (m Matrix) Transform(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y + m[4], Y: m[1]*p.X + m[3]*p.Y + m[5]}
}

// TransformVector applies the linear part only.
func (m Matrix) TransformVector(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y, Y: m[1]*p.X + m[3]*p.Y}
}

func (m Matrix) Inverse() (Matrix, error) {
	det := m.Det()
	if math.Abs(det) < 1e-10 {
		return Matrix{}, ErrSingular
	}
	return Matrix{
		m[3] / det, -m[1] / det, -m[2] / det, m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det, (m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

func (m Matrix) Det() float64 { return m[0]*m[3] - m[1]*m[2] }

// ScaleFactor is the geometric mean of the axis scales.
func (m Matrix) ScaleFactor() float64 { return math.Sqrt(math.Abs(m.Det())) }

// Linear drops the translation.
func (m Matrix) Linear() Matrix { return Matrix{m[0], m[1], m[2], m[3], 0, 0} }

// Normalize divides the linear part by s, keeping the translation.
func (m Matrix) Normalize(s float64) Matrix {
	if s == 0 {
		return m
	}
	return Matrix{m[0] / s, m[1] / s, m[2] / s, m[3] / s, m[4], m[5]}
}

// LinearEqual compares the linear parts within eps.
func (m Matrix) LinearEqual(o Matrix, eps float64) bool {
	for i := 0; i < 4; i++ {
		if math.Abs(m[i]-o[i]) > eps {
			return false
		}
	}
	return true
}

func (m Matrix) IsIdentityLinear(eps float64) bool { return m.LinearEqual(Identity(), eps) }

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }
func Scale(sx, sy float64) Matrix     { return Matrix{sx, 0, 0, sy, 0, 0} }
func Rotate(angle float64) Matrix {
	c := math.Cos(angle)
	s := math.Sin(angle)
	return Matrix{c, s, -s, c, 0, 0}
}

// Rect is an axis-aligned box with Min <= Max on both axes when non-empty.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

func RectFromPoints(points ...Point) Rect {
	r := Rect{math.MaxFloat64, math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64}
	for _, p := range points {
		r.MinX = math.Min(r.MinX, p.X)
		r.MinY = math.Min(r.MinY, p.Y)
		r.MaxX = math.Max(r.MaxX, p.X)
		r.MaxY = math.Max(r.MaxY, p.Y)
	}
	return r
}

func (r Rect) Empty() bool     { return r.MaxX <= r.MinX || r.MaxY <= r.MinY }
func (r Rect) Width() float64  { return r.MaxX - r.MinX }
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// Transform returns the bounding box of the transformed corners.
func (r Rect) Transform(m Matrix) Rect {
	return RectFromPoints(
		m.Transform(Point{r.MinX, r.MinY}),
		m.Transform(Point{r.MaxX, r.MinY}),
		m.Transform(Point{r.MinX, r.MaxY}),
		m.Transform(Point{r.MaxX, r.MaxY}),
	)
}

func (r Rect) Intersect(o Rect) Rect {
	out := Rect{
		MinX: math.Max(r.MinX, o.MinX),
		MinY: math.Max(r.MinY, o.MinY),
		MaxX: math.Min(r.MaxX, o.MaxX),
		MaxY: math.Min(r.MaxY, o.MaxY),
	}
	if out.Empty() {
		return Rect{}
	}
	return out
}

func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return Rect{
		MinX: math.Min(r.MinX, o.MinX),
		MinY: math.Min(r.MinY, o.MinY),
		MaxX: math.Max(r.MaxX, o.MaxX),
		MaxY: math.Max(r.MaxY, o.MaxY),
	}
}

// Scaled multiplies every coordinate by s.
func (r Rect) Scaled(s float64) Rect {
	return Rect{r.MinX * s, r.MinY * s, r.MaxX * s, r.MaxY * s}
}
