// Package textlayout turns glyph-show events into positioned text runs.
package textlayout

import (
	"math"

	"github.com/wudi/pdfhtml/coords"
	"github.com/wudi/pdfhtml/interp"
)

// Verdict is the visibility classification of a run.
type Verdict int

const (
	Visible Verdict = iota
	FullyOccluded
	PartiallyOccluded
)

func (v Verdict) String() string {
	switch v {
	case FullyOccluded:
		return "fully-occluded"
	case PartiallyOccluded:
		return "partially-occluded"
	}
	return "visible"
}

// Glyph is one glyph placed inside a run. Offset glyphs carry no ink: they
// are spaces rendered as offsets or gaps folded in by text optimization.
type Glyph struct {
	// Seq is the page-level sequence number of the glyph event; -1 for
	// synthesized offsets.
	Seq     int
	ID      interp.GlyphID
	X       float64
	Advance float64
	Offset  bool
	// Matrix maps the glyph's em space to output space.
	Matrix coords.Matrix
}

// Run is a maximal sequence of glyphs sharing font, size, colour and
// baseline. Geometry is in output pixels; X offsets are measured along the
// baseline from Origin.
type Run struct {
	Font *interp.FontResource
	// Size is the em size in output pixels; FontSize adds the multiplier.
	Size     float64
	FontSize float64
	Color    interp.RGBA
	// Linear is the run direction with unit scale (identity for upright text).
	Linear    coords.Matrix
	Origin    coords.Point
	Width     float64
	Glyphs    []Glyph
	Invisible bool
	Verdict   Verdict
}

// Frame maps run coordinates (x along the baseline, y downwards) to output space.
func (r *Run) Frame() coords.Matrix {
	m := r.Linear
	m[4], m[5] = r.Origin.X, r.Origin.Y
	return m
}

// Bounds is the output-space box covering the run's advance and the font's
// ascent and descent.
func (r *Run) Bounds() coords.Rect {
	asc, desc := r.Font.Metrics()
	local := coords.Rect{MinX: 0, MinY: -asc * r.Size, MaxX: r.Width, MaxY: -desc * r.Size}
	if local.MaxX <= local.MinX {
		local.MaxX = local.MinX + r.Size*0.01
	}
	return local.Transform(r.Frame())
}

// InkGlyphs returns the glyphs that draw something.
func (r *Run) InkGlyphs() []Glyph {
	out := make([]Glyph, 0, len(r.Glyphs))
	for _, g := range r.Glyphs {
		if !g.Offset {
			out = append(out, g)
		}
	}
	return out
}

// SpaceMarker records an explicit space between Runs[After] and Runs[After+1].
type SpaceMarker struct {
	After int
	Width float64
}

type Layout struct {
	Runs    []*Run
	Markers []SpaceMarker
}

// MarkerAfter returns the marker following run i, if any.
func (l Layout) MarkerAfter(i int) (SpaceMarker, bool) {
	for _, m := range l.Markers {
		if m.After == i {
			return m, true
		}
	}
	return SpaceMarker{}, false
}

// Claims counts how many runs claim each glyph event sequence number.
func (l Layout) Claims() map[int]int {
	out := make(map[int]int)
	for _, r := range l.Runs {
		for _, g := range r.Glyphs {
			if g.Seq >= 0 {
				out[g.Seq]++
			}
		}
	}
	return out
}

func round(v float64, precision int) float64 {
	if precision < 0 {
		return v
	}
	p := math.Pow(10, float64(precision))
	r := math.Round(v*p) / p
	if r == 0 {
		return 0
	}
	return r
}
