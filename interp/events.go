// Package interp defines what the page pipeline consumes from a PDF content
// interpreter: a document with fonts and security state, and per page a
// stream of drawing events in content-stream order. Parsing the PDF container
// itself happens outside this module.
package interp

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/wudi/pdfhtml/coords"
)

type GlyphID uint32

// Event is one drawing operation, emitted in document drawing order.
type Event interface {
	isEvent()
}

// Save pushes the graphics state (q).
type Save struct{}

// Restore pops the graphics state (Q).
type Restore struct{}

// Transform concatenates M to the CTM (cm).
type Transform struct {
	Matrix coords.Matrix
}

// Clip intersects the clip region with a user-space path (W n).
type Clip struct {
	Path    Path
	EvenOdd bool
}

type ColorTarget int

const (
	Fill ColorTarget = iota
	Stroke
)

// SetColor sets the fill or stroke colour (rg, RG and friends).
type SetColor struct {
	Target ColorTarget
	Color  RGBA
}

// SetLineWidth sets the stroke width in user space (w).
type SetLineWidth struct {
	Width float64
}

// Glyph shows one glyph. TextMatrix maps glyph space, where one em is one
// unit, to user space; it already folds in font size, horizontal scaling and
// rise. Advance is the horizontal displacement in glyph space, spacing
// included.
type Glyph struct {
	FontID     string
	Glyph      GlyphID
	Size       float64
	TextMatrix coords.Matrix
	Advance    float64
	Mode       TextRenderMode
}

// PaintPath fills and/or strokes a user-space path.
type PaintPath struct {
	Path    Path
	Fill    bool
	Stroke  bool
	EvenOdd bool
}

// DrawImage paints an image into the unit square of user space (Do on an
// image XObject).
type DrawImage struct {
	Name  string
	Image image.Image
}

// Shade paints a shading; Bounds is its user-space extent and Color the
// colour used wherever gradients are not reproduced.
type Shade struct {
	Bounds coords.Rect
	Color  RGBA
}

func (Save) isEvent()         {}
func (Restore) isEvent()      {}
func (Transform) isEvent()    {}
func (Clip) isEvent()         {}
func (SetColor) isEvent()     {}
func (SetLineWidth) isEvent() {}
func (Glyph) isEvent()        {}
func (PaintPath) isEvent()    {}
func (DrawImage) isEvent()    {}
func (Shade) isEvent()        {}

// TextRenderMode matches the PDF Tr operator.
type TextRenderMode int

const (
	TextFill TextRenderMode = iota
	TextStroke
	TextFillStroke
	TextInvisible
	TextFillClip
	TextStrokeClip
	TextFillStrokeClip
	TextClip
)

// Invisible reports modes that put no ink on the page.
func (m TextRenderMode) Invisible() bool { return m == TextInvisible || m == TextClip }

// RGBA is a colour with components in [0,1], not premultiplied.
type RGBA struct {
	R, G, B, A float64
}

var (
	Black = RGBA{0, 0, 0, 1}
	White = RGBA{1, 1, 1, 1}
)

func (c RGBA) NRGBA() color.NRGBA {
	return color.NRGBA{R: channel(c.R), G: channel(c.G), B: channel(c.B), A: channel(c.A)}
}

// Hex renders the colour as #rrggbb, ignoring alpha.
func (c RGBA) Hex() string {
	n := c.NRGBA()
	return fmt.Sprintf("#%02x%02x%02x", n.R, n.G, n.B)
}

func channel(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}

type SegmentOp int

const (
	MoveTo SegmentOp = iota
	LineTo
	CurveTo
	ClosePath
)

// Segment is one path element. CurveTo uses all three points; MoveTo and
// LineTo only the first.
type Segment struct {
	Op     SegmentOp
	Points [3]coords.Point
}

type Path struct {
	Segments []Segment
}

func (p *Path) MoveTo(x, y float64) *Path {
	p.Segments = append(p.Segments, Segment{Op: MoveTo, Points: [3]coords.Point{{X: x, Y: y}}})
	return p
}

func (p *Path) LineTo(x, y float64) *Path {
	p.Segments = append(p.Segments, Segment{Op: LineTo, Points: [3]coords.Point{{X: x, Y: y}}})
	return p
}

func (p *Path) CurveTo(x1, y1, x2, y2, x3, y3 float64) *Path {
	p.Segments = append(p.Segments, Segment{Op: CurveTo, Points: [3]coords.Point{{X: x1, Y: y1}, {X: x2, Y: y2}, {X: x3, Y: y3}}})
	return p
}

func (p *Path) Close() *Path {
	p.Segments = append(p.Segments, Segment{Op: ClosePath})
	return p
}

// Rect appends a closed rectangle subpath (re).
func (p *Path) Rect(x, y, w, h float64) *Path {
	return p.MoveTo(x, y).LineTo(x+w, y).LineTo(x+w, y+h).LineTo(x, y+h).Close()
}

// Bounds returns the control-point bounding box of the path under m.
func (p Path) Bounds(m coords.Matrix) coords.Rect {
	var pts []coords.Point
	for _, s := range p.Segments {
		n := 0
		switch s.Op {
		case MoveTo, LineTo:
			n = 1
		case CurveTo:
			n = 3
		}
		for i := 0; i < n; i++ {
			pts = append(pts, m.Transform(s.Points[i]))
		}
	}
	if len(pts) == 0 {
		return coords.Rect{}
	}
	return coords.RectFromPoints(pts...)
}

// Transformed returns a copy of p with every point mapped through m.
func (p Path) Transformed(m coords.Matrix) Path {
	out := Path{Segments: make([]Segment, len(p.Segments))}
	for i, s := range p.Segments {
		out.Segments[i] = s
		for j := range s.Points {
			out.Segments[i].Points[j] = m.Transform(s.Points[j])
		}
	}
	return out
}
