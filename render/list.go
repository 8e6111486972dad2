// Package render rasterizes a page's display list. The visibility analyzer
// and the background raster fallback are its only clients.
package render

import (
	"context"
	"errors"
	"image"
	"math"

	"github.com/wudi/pdfhtml/coords"
	"github.com/wudi/pdfhtml/gstate"
	"github.com/wudi/pdfhtml/interp"
)

// ErrUnavailable means the backend cannot render this page. Callers degrade
// instead of failing the conversion.
var ErrUnavailable = errors.New("render: backend unavailable")

// Item is one drawing event together with the graphics state active when it
// was emitted. Seq numbers events in page order.
type Item struct {
	Seq   int
	Event interp.Event
	State gstate.State
}

// DisplayList is a page recorded once from the interpreter so it can be
// rendered several times. Coordinates in states are CSS pixels.
type DisplayList struct {
	Info interp.PageInfo
	// Scale is CSS pixels per PDF point.
	Scale  float64
	Width  float64
	Height float64
	Items  []Item
	Fonts  map[string]*interp.FontResource
}

// NewDisplayList prepares an empty list for a page of the given output size.
func NewDisplayList(info interp.PageInfo, scale, width, height float64) *DisplayList {
	return &DisplayList{
		Info:   info,
		Scale:  scale,
		Width:  width,
		Height: height,
		Fonts:  make(map[string]*interp.FontResource),
	}
}

func (l *DisplayList) Append(seq int, ev interp.Event, s gstate.State) {
	l.Items = append(l.Items, Item{Seq: seq, Event: ev, State: s})
}

// DeviceScale is device pixels per CSS pixel at dpi.
func (l *DisplayList) DeviceScale(dpi float64) float64 {
	if l.Scale <= 0 {
		return dpi / 72
	}
	return dpi / 72 / l.Scale
}

// DeviceSize is the raster size of the page at dpi.
func (l *DisplayList) DeviceSize(dpi float64) image.Point {
	k := l.DeviceScale(dpi)
	return image.Pt(int(math.Ceil(l.Width*k)), int(math.Ceil(l.Height*k)))
}

// HasGraphics reports whether anything other than text is drawn.
func (l *DisplayList) HasGraphics() bool {
	for _, it := range l.Items {
		switch it.Event.(type) {
		case interp.PaintPath, interp.DrawImage, interp.Shade:
			return true
		}
	}
	return false
}

// HasText reports whether any glyph is shown.
func (l *DisplayList) HasText() bool {
	for _, it := range l.Items {
		if _, ok := it.Event.(interp.Glyph); ok {
			return true
		}
	}
	return false
}

// TextFilter selects which fonts' glyphs are painted.
type TextFilter func(fontID string) bool

// NoText paints no glyphs.
func NoText(string) bool { return false }

// OnlyFonts paints the glyphs of the listed fonts.
func OnlyFonts(ids map[string]bool) TextFilter {
	return func(id string) bool { return ids[id] }
}

type Options struct {
	DPI float64
	// Text is nil to paint every glyph.
	Text TextFilter
	// NoGraphics leaves out paths, images and shadings.
	NoGraphics bool
}

func (o Options) paintsText(fontID string) bool {
	return o.Text == nil || o.Text(fontID)
}

// Backend renders display lists.
type Backend interface {
	Render(ctx context.Context, list *DisplayList, opts Options) (*image.RGBA, error)
}

// Glyph is one glyph to rasterize on its own. Matrix maps glyph space (one
// em per unit) to CSS pixels.
type Glyph struct {
	Font    *interp.FontResource
	ID      interp.GlyphID
	Matrix  coords.Matrix
	Advance float64
}

// Masker rasterizes glyph ink alone, without the rest of the page.
type Masker interface {
	GlyphMask(glyphs []Glyph, deviceScale float64, bounds image.Rectangle) *image.Alpha
}
