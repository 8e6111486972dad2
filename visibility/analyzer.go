// Package visibility decides which text runs the page's graphics cover.
//
// The page is rendered twice, once complete and once without text. A run's
// ink pixels are visible where the two renders differ; how many of them are
// decides the verdict.
package visibility

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/wudi/pdfhtml/config"
	"github.com/wudi/pdfhtml/coords"
	"github.com/wudi/pdfhtml/observability"
	"github.com/wudi/pdfhtml/render"
	"github.com/wudi/pdfhtml/textlayout"
)

// inkAlpha is the mask coverage from which a pixel belongs to a glyph.
const inkAlpha = 128

type Params struct {
	Mode int
	DPI  float64
	// PixelThreshold is the per-channel difference above which a pixel
	// differs between the renders.
	PixelThreshold int
	// Tolerance is the share of ink pixels ignored at either end, absorbing
	// antialiasing at glyph edges.
	Tolerance float64
}

// ParamsFromConfig derives analysis parameters from a conversion config.
func ParamsFromConfig(c config.Config) Params {
	return Params{
		Mode:           c.CorrectTextVisibility,
		DPI:            c.VisibilityDPI(),
		PixelThreshold: c.VisibilityPixelThreshold,
		Tolerance:      c.VisibilityTolerance,
	}
}

// Overlay is a corrective image drawn over a partially occluded run: the
// covering content, transparent elsewhere.
type Overlay struct {
	Run   int
	Image *image.NRGBA
	// Bounds is the overlay's placement in CSS pixels.
	Bounds coords.Rect
}

type Result struct {
	Overlays []Overlay
	// Degraded is set when the renders failed and every run was left
	// visible.
	Degraded bool
}

type Analyzer struct {
	Backend render.Backend
	Masker  render.Masker
	Logger  observability.Logger
}

func NewAnalyzer(backend render.Backend, masker render.Masker, logger observability.Logger) *Analyzer {
	return &Analyzer{Backend: backend, Masker: masker, Logger: observability.OrNop(logger)}
}

// Analyze sets the Verdict of every run. Runs drawn in an invisible render
// mode stay Visible; the text layer already draws them transparent.
func (a *Analyzer) Analyze(ctx context.Context, list *render.DisplayList, runs []*textlayout.Run, p Params) (Result, error) {
	for _, r := range runs {
		r.Verdict = textlayout.Visible
	}
	if p.Mode == config.VisibilityOff || len(runs) == 0 {
		return Result{}, nil
	}
	logger := observability.OrNop(a.Logger)

	full, err := a.Backend.Render(ctx, list, render.Options{DPI: p.DPI})
	var bg *image.RGBA
	if err == nil {
		bg, err = a.Backend.Render(ctx, list, render.Options{DPI: p.DPI, Text: render.NoText})
	}
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		logger.Warn("visibility analysis degraded, text left visible",
			observability.Int(observability.KeyPage, list.Info.Index+1),
			observability.Float64(observability.KeyDPI, p.DPI),
			observability.Bool("unavailable", errors.Is(err, render.ErrUnavailable)),
			observability.Error("error", err))
		return Result{Degraded: true}, nil
	}

	k := list.DeviceScale(p.DPI)
	var res Result
	for i, r := range runs {
		if r.Invisible {
			continue
		}
		c := a.classify(r, full, bg, k, p)
		r.Verdict = c.verdict
		if r.Verdict == textlayout.PartiallyOccluded {
			res.Overlays = append(res.Overlays, Overlay{Run: i, Image: c.overlay, Bounds: cssRect(c.overlay.Bounds(), k)})
		}
	}
	return res, nil
}

type classification struct {
	verdict textlayout.Verdict
	overlay *image.NRGBA
}

func (a *Analyzer) classify(r *textlayout.Run, full, bg *image.RGBA, k float64, p Params) classification {
	bounds := deviceBounds(r.Bounds(), k).Intersect(full.Bounds())
	if bounds.Empty() {
		return classification{verdict: textlayout.Visible}
	}
	mask := a.Masker.GlyphMask(maskGlyphs(r), k, bounds)

	ink, visible := 0, 0
	covered := image.NewNRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if mask.AlphaAt(x, y).A < inkAlpha {
				continue
			}
			ink++
			f, b := full.RGBAAt(x, y), bg.RGBAAt(x, y)
			if differs(f, b, p.PixelThreshold) {
				visible++
				continue
			}
			covered.SetNRGBA(x, y, color.NRGBA{R: f.R, G: f.G, B: f.B, A: 255})
		}
	}
	if ink == 0 {
		return classification{verdict: textlayout.Visible}
	}
	tol := p.Tolerance * float64(ink)
	switch {
	case float64(visible) <= tol:
		return classification{verdict: textlayout.FullyOccluded}
	case float64(ink-visible) <= tol:
		return classification{verdict: textlayout.Visible}
	case p.Mode == config.VisibilityPartial:
		return classification{verdict: textlayout.PartiallyOccluded, overlay: covered}
	default:
		return classification{verdict: textlayout.Visible}
	}
}

// maskGlyphs converts a run's ink glyphs; advances go back to em units.
func maskGlyphs(r *textlayout.Run) []render.Glyph {
	ink := r.InkGlyphs()
	out := make([]render.Glyph, 0, len(ink))
	for _, g := range ink {
		adv := 0.0
		if r.Size > 0 {
			adv = g.Advance / r.Size
		}
		out = append(out, render.Glyph{Font: r.Font, ID: g.ID, Matrix: g.Matrix, Advance: adv})
	}
	return out
}

func differs(a, b color.RGBA, threshold int) bool {
	d := func(x, y uint8) int {
		if x > y {
			return int(x - y)
		}
		return int(y - x)
	}
	return d(a.R, b.R) > threshold || d(a.G, b.G) > threshold || d(a.B, b.B) > threshold
}

func deviceBounds(r coords.Rect, k float64) image.Rectangle {
	s := r.Scaled(k)
	return image.Rect(int(math.Floor(s.MinX)), int(math.Floor(s.MinY)), int(math.Ceil(s.MaxX)), int(math.Ceil(s.MaxY)))
}

func cssRect(r image.Rectangle, k float64) coords.Rect {
	return coords.Rect{
		MinX: float64(r.Min.X) / k, MinY: float64(r.Min.Y) / k,
		MaxX: float64(r.Max.X) / k, MaxY: float64(r.Max.Y) / k,
	}
}
