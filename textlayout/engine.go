package textlayout

import (
	"math"

	"github.com/wudi/pdfhtml/config"
	"github.com/wudi/pdfhtml/coords"
	"github.com/wudi/pdfhtml/gstate"
	"github.com/wudi/pdfhtml/interp"
)

// referenceSize is the em size at which HorizontalEpsilon applies as is.
const referenceSize = 16.0

const (
	sizeEps   = 1e-6
	matrixEps = 1e-6
)

// UsageRecorder receives every glyph the engine places in a run.
type UsageRecorder interface {
	Register(font *interp.FontResource, glyph interp.GlyphID)
}

type Params struct {
	// HorizontalEpsilon is the gap tolerance in pixels at a 16px em,
	// scaled linearly with the run's size.
	HorizontalEpsilon float64
	// VerticalEpsilon is the baseline tolerance in pixels.
	VerticalEpsilon float64
	// SpaceThreshold is the gap, in em, beyond which a space is recorded.
	SpaceThreshold     float64
	FontSizeMultiplier float64
	Optimize           bool
	SpaceAsOffset      bool
	// Precision rounds origins, widths and sizes; negative disables.
	Precision int
}

func ParamsFromConfig(c config.Config) Params {
	return Params{
		HorizontalEpsilon:  c.HorizontalEpsilon,
		VerticalEpsilon:    c.VerticalEpsilon,
		SpaceThreshold:     c.SpaceThreshold,
		FontSizeMultiplier: c.FontSizeMultiplier,
		Optimize:           c.OptimizeText,
		SpaceAsOffset:      c.SpaceAsOffset,
		Precision:          c.PositionPrecision,
	}
}

// GlyphInput is a glyph event annotated with the state active when it was shown.
type GlyphInput struct {
	Seq   int
	Event interp.Glyph
	Font  *interp.FontResource
	State gstate.State
}

// Engine merges glyphs into runs. It is not safe for concurrent use; each
// page owns one engine.
type Engine struct {
	params Params
	usage  UsageRecorder

	runs    []*Run
	markers []SpaceMarker
	cur     *Run
	inv     coords.Matrix
}

func NewEngine(p Params, usage UsageRecorder) *Engine {
	if p.FontSizeMultiplier <= 0 {
		p.FontSizeMultiplier = 1
	}
	return &Engine{params: p, usage: usage}
}

// Add places one glyph, extending the current run or starting a new one.
func (e *Engine) Add(in GlyphInput) {
	m := in.Event.TextMatrix.Multiply(in.State.CTM)
	size := math.Hypot(m[2], m[3])
	if size == 0 {
		size = m.ScaleFactor()
	}
	linear := coords.Scale(1, -1).Multiply(m).Linear().Normalize(size)
	origin := m.Transform(coords.Point{})
	end := m.Transform(coords.Point{X: in.Event.Advance})

	g := Glyph{
		Seq:    in.Seq,
		ID:     in.Event.Glyph,
		Matrix: m,
		Offset: e.params.SpaceAsOffset && isSpace(in.Font, in.Event.Glyph),
	}
	invisible := in.Event.Mode.Invisible()

	if e.cur != nil && e.compatible(in.Font, size, in.State.Fill, linear, invisible) {
		local := e.inv.Transform(origin)
		localEnd := e.inv.Transform(end)
		gap := local.X - e.cur.Width
		switch {
		case math.Abs(local.Y) > e.params.VerticalEpsilon:
			e.close()
		case math.Abs(gap) > e.hTolerance(size):
			prev := len(e.runs)
			e.close()
			if gap > e.params.SpaceThreshold*size {
				e.markers = append(e.markers, SpaceMarker{After: prev, Width: round(gap, e.params.Precision)})
			}
		default:
			g.X = local.X
			g.Advance = localEnd.X - local.X
			e.extend(g)
			return
		}
	} else {
		e.close()
	}

	e.start(in.Font, size, in.State.Fill, linear, origin, invisible)
	g.X = 0
	g.Advance = e.inv.Transform(end).X
	e.extend(g)
}

// Finish closes the open run and returns the page layout.
func (e *Engine) Finish() Layout {
	e.close()
	l := Layout{Runs: e.runs, Markers: e.markers}
	if e.params.Optimize {
		l = e.optimize(l)
	}
	e.runs, e.markers = nil, nil
	return l
}

func (e *Engine) compatible(font *interp.FontResource, size float64, c interp.RGBA, linear coords.Matrix, invisible bool) bool {
	r := e.cur
	return r.Font == font &&
		math.Abs(r.Size-size) <= sizeEps*math.Max(1, size) &&
		r.Color == c &&
		r.Invisible == invisible &&
		r.Linear.LinearEqual(linear, matrixEps)
}

func (e *Engine) hTolerance(size float64) float64 {
	return e.params.HorizontalEpsilon * size / referenceSize
}

func (e *Engine) start(font *interp.FontResource, size float64, c interp.RGBA, linear coords.Matrix, origin coords.Point, invisible bool) {
	e.cur = &Run{
		Font:      font,
		Size:      size,
		FontSize:  size * e.params.FontSizeMultiplier,
		Color:     c,
		Linear:    linear,
		Origin:    origin,
		Invisible: invisible,
	}
	inv, err := e.cur.Frame().Inverse()
	if err != nil {
		inv = coords.Translate(-origin.X, -origin.Y)
	}
	e.inv = inv
}

func (e *Engine) extend(g Glyph) {
	e.cur.Glyphs = append(e.cur.Glyphs, g)
	if w := g.X + g.Advance; w > e.cur.Width {
		e.cur.Width = w
	}
	if !g.Offset && e.usage != nil {
		e.usage.Register(e.cur.Font, g.ID)
	}
}

func (e *Engine) close() {
	r := e.cur
	if r == nil {
		return
	}
	e.cur = nil
	p := e.params.Precision
	r.Origin = coords.Point{X: round(r.Origin.X, p), Y: round(r.Origin.Y, p)}
	r.Width = round(r.Width, p)
	r.FontSize = round(r.FontSize, p)
	for i := range r.Glyphs {
		r.Glyphs[i].X = round(r.Glyphs[i].X, p)
		r.Glyphs[i].Advance = round(r.Glyphs[i].Advance, p)
	}
	e.runs = append(e.runs, r)
}

// optimize folds B into A across a space marker when both share every style
// and B sits on A's baseline; the gap becomes an offset glyph so no glyph
// moves.
func (e *Engine) optimize(l Layout) Layout {
	if len(l.Markers) == 0 {
		return l
	}
	marked := make(map[int]SpaceMarker, len(l.Markers))
	for _, m := range l.Markers {
		marked[m.After] = m
	}

	out := Layout{}
	for i, r := range l.Runs {
		last := len(out.Runs) - 1
		if _, ok := marked[i-1]; ok && last >= 0 && e.mergeable(out.Runs[last], r) {
			merge(out.Runs[last], r, e.params.Precision)
			continue
		}
		if m, ok := marked[i-1]; ok && last >= 0 {
			out.Markers = append(out.Markers, SpaceMarker{After: last, Width: m.Width})
		}
		out.Runs = append(out.Runs, r)
	}
	return out
}

func (e *Engine) mergeable(a, b *Run) bool {
	if a.Font != b.Font || math.Abs(a.Size-b.Size) > sizeEps*math.Max(1, a.Size) ||
		a.Color != b.Color || a.Invisible != b.Invisible || !a.Linear.LinearEqual(b.Linear, matrixEps) {
		return false
	}
	inv, err := a.Frame().Inverse()
	if err != nil {
		return false
	}
	local := inv.Transform(b.Origin)
	return math.Abs(local.Y) <= e.params.VerticalEpsilon && local.X > a.Width
}

func merge(a, b *Run, precision int) {
	inv, _ := a.Frame().Inverse()
	shift := round(inv.Transform(b.Origin).X, precision)
	a.Glyphs = append(a.Glyphs, Glyph{Seq: -1, X: a.Width, Advance: round(shift-a.Width, precision), Offset: true})
	for _, g := range b.Glyphs {
		g.X = round(g.X+shift, precision)
		a.Glyphs = append(a.Glyphs, g)
	}
	a.Width = round(shift+b.Width, precision)
}

func isSpace(font *interp.FontResource, g interp.GlyphID) bool {
	if font == nil {
		return false
	}
	if u, ok := font.ToUnicode[g]; ok {
		return len(u) == 1 && u[0] == ' '
	}
	return font.Encoding[g] == ' '
}
