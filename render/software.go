package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/vector"

	"github.com/wudi/pdfhtml/coords"
	"github.com/wudi/pdfhtml/interp"
)

// MaxPixels bounds the raster size of one render.
const MaxPixels = 1 << 27

// curveSteps is the number of line segments a cubic is flattened into for
// stroking.
const curveSteps = 16

// Software is the pure-Go backend. Fills use the non-zero rule for every
// path, strokes are built from one quad per flattened segment, shadings are
// flat fills of their colour and clips are the state's bounding box.
type Software struct {
	outlines *outlineCache
}

func NewSoftware() *Software {
	return &Software{outlines: newOutlineCache()}
}

func (s *Software) Render(ctx context.Context, list *DisplayList, opts Options) (*image.RGBA, error) {
	if list == nil || opts.DPI <= 0 {
		return nil, fmt.Errorf("%w: no page or dpi", ErrUnavailable)
	}
	size := list.DeviceSize(opts.DPI)
	if size.X <= 0 || size.Y <= 0 || size.X*size.Y > MaxPixels {
		return nil, fmt.Errorf("%w: raster %dx%d", ErrUnavailable, size.X, size.Y)
	}
	k := list.DeviceScale(opts.DPI)
	dev := coords.Scale(k, k)

	img := image.NewRGBA(image.Rectangle{Max: size})
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	for i, it := range list.Items {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		clip := deviceRect(it.State.Clip.Scaled(k)).Intersect(img.Bounds())
		if clip.Empty() {
			continue
		}
		m := it.State.CTM.Multiply(dev)
		switch e := it.Event.(type) {
		case interp.PaintPath:
			if opts.NoGraphics {
				continue
			}
			if e.Fill {
				fillPath(img, clip, e.Path.Transformed(m), it.State.Fill)
			}
			if e.Stroke {
				width := math.Max(it.State.LineWidth*m.ScaleFactor(), 1)
				fillPath(img, clip, strokeOutline(e.Path.Transformed(m), width), it.State.Stroke)
			}
		case interp.Shade:
			if opts.NoGraphics {
				continue
			}
			var p interp.Path
			p.Rect(e.Bounds.MinX, e.Bounds.MinY, e.Bounds.Width(), e.Bounds.Height())
			fillPath(img, clip, p.Transformed(m), e.Color)
		case interp.DrawImage:
			if opts.NoGraphics || e.Image == nil {
				continue
			}
			drawImage(img, clip, e.Image, m)
		case interp.Glyph:
			if e.Mode.Invisible() || !opts.paintsText(e.FontID) {
				continue
			}
			g := Glyph{Font: list.Fonts[e.FontID], ID: e.Glyph, Matrix: e.TextMatrix.Multiply(m), Advance: e.Advance}
			fillPath(img, clip, s.outlines.path(g), it.State.Fill)
		}
	}
	return img, nil
}

// GlyphMask rasterizes glyphs into an alpha mask covering bounds, a
// rectangle of the page raster. Glyph matrices are in CSS pixels.
func (s *Software) GlyphMask(glyphs []Glyph, deviceScale float64, bounds image.Rectangle) *image.Alpha {
	mask := image.NewAlpha(bounds)
	dev := coords.Scale(deviceScale, deviceScale)
	for _, g := range glyphs {
		g.Matrix = g.Matrix.Multiply(dev)
		fillPath(mask, mask.Bounds(), s.outlines.path(g), interp.Black)
	}
	return mask
}

func deviceRect(r coords.Rect) image.Rectangle {
	return image.Rect(
		int(math.Floor(r.MinX)), int(math.Floor(r.MinY)),
		int(math.Ceil(r.MaxX)), int(math.Ceil(r.MaxY)),
	)
}

// fillPath paints a device-space path onto dst, limited to clip.
func fillPath(dst draw.Image, clip image.Rectangle, p interp.Path, c interp.RGBA) {
	if len(p.Segments) == 0 || c.A <= 0 {
		return
	}
	r := deviceRect(p.Bounds(coords.Identity())).Intersect(clip)
	if r.Empty() {
		return
	}
	z := vector.NewRasterizer(r.Dx(), r.Dy())
	ox, oy := float64(r.Min.X), float64(r.Min.Y)
	pt := func(q coords.Point) (float32, float32) { return float32(q.X - ox), float32(q.Y - oy) }

	open := false
	for _, s := range p.Segments {
		switch s.Op {
		case interp.MoveTo:
			if open {
				z.ClosePath()
			}
			z.MoveTo(pt(s.Points[0]))
			open = true
		case interp.LineTo:
			z.LineTo(pt(s.Points[0]))
		case interp.CurveTo:
			bx, by := pt(s.Points[0])
			cx, cy := pt(s.Points[1])
			dx, dy := pt(s.Points[2])
			z.CubeTo(bx, by, cx, cy, dx, dy)
		case interp.ClosePath:
			if open {
				z.ClosePath()
				open = false
			}
		}
	}
	if open {
		z.ClosePath()
	}

	mask := image.NewAlpha(image.Rect(0, 0, r.Dx(), r.Dy()))
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	draw.DrawMask(dst, r, image.NewUniform(colorOf(c)), image.Point{}, mask, image.Point{}, draw.Over)
}

func colorOf(c interp.RGBA) color.Color { return c.NRGBA() }

// strokeOutline turns a device-space path into quads covering its stroke.
func strokeOutline(p interp.Path, width float64) interp.Path {
	var out interp.Path
	half := width / 2
	quad := func(a, b coords.Point) {
		dx, dy := b.X-a.X, b.Y-a.Y
		l := math.Hypot(dx, dy)
		if l == 0 {
			return
		}
		nx, ny := -dy/l*half, dx/l*half
		out.MoveTo(a.X+nx, a.Y+ny).
			LineTo(b.X+nx, b.Y+ny).
			LineTo(b.X-nx, b.Y-ny).
			LineTo(a.X-nx, a.Y-ny).
			Close()
	}

	var cur, start coords.Point
	for _, s := range p.Segments {
		switch s.Op {
		case interp.MoveTo:
			cur, start = s.Points[0], s.Points[0]
		case interp.LineTo:
			quad(cur, s.Points[0])
			cur = s.Points[0]
		case interp.CurveTo:
			prev := cur
			for i := 1; i <= curveSteps; i++ {
				q := cubicAt(cur, s.Points[0], s.Points[1], s.Points[2], float64(i)/curveSteps)
				quad(prev, q)
				prev = q
			}
			cur = s.Points[2]
		case interp.ClosePath:
			quad(cur, start)
			cur = start
		}
	}
	return out
}

func cubicAt(p0, p1, p2, p3 coords.Point, t float64) coords.Point {
	u := 1 - t
	a, b, c, d := u*u*u, 3*u*u*t, 3*u*t*t, t*t*t
	return coords.Point{
		X: a*p0.X + b*p1.X + c*p2.X + d*p3.X,
		Y: a*p0.Y + b*p1.Y + c*p2.Y + d*p3.Y,
	}
}

// drawImage maps src onto the unit square of user space; m is user to
// device. Row 0 of the image is the top of the square.
func drawImage(dst *image.RGBA, clip image.Rectangle, src image.Image, m coords.Matrix) {
	b := src.Bounds()
	if b.Empty() {
		return
	}
	toUnit := coords.Matrix{1 / float64(b.Dx()), 0, 0, -1 / float64(b.Dy()), 0, 1}
	s2d := coords.Translate(-float64(b.Min.X), -float64(b.Min.Y)).Multiply(toUnit).Multiply(m)
	aff := f64.Aff3{s2d[0], s2d[2], s2d[4], s2d[1], s2d[3], s2d[5]}
	sub, ok := dst.SubImage(clip).(*image.RGBA)
	if !ok {
		return
	}
	draw.ApproxBiLinear.Transform(sub, aff, src, b, draw.Over, nil)
}
