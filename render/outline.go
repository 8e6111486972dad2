package render

import (
	"sync"

	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"github.com/wudi/pdfhtml/coords"
	"github.com/wudi/pdfhtml/interp"
)

// outlinePPEM is the em size glyphs are loaded at before transforming.
const outlinePPEM = 1024

// outlineCache parses each embedded program once. Entries are shared by page
// workers; sfnt fonts are read-only after parsing.
type outlineCache struct {
	mu    sync.Mutex
	fonts map[string]*sfnt.Font
}

func newOutlineCache() *outlineCache {
	return &outlineCache{fonts: make(map[string]*sfnt.Font)}
}

func (c *outlineCache) font(f *interp.FontResource) *sfnt.Font {
	if f == nil || !f.Embedded() || f.Kind == interp.FontType3 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if sf, ok := c.fonts[f.ID]; ok {
		return sf
	}
	sf, err := sfnt.Parse(f.Program)
	if err != nil {
		sf = nil
	}
	c.fonts[f.ID] = sf
	return sf
}

// path returns the glyph outline in the space of g.Matrix. Glyphs without a
// usable outline become their advance box between descent and ascent.
func (c *outlineCache) path(g Glyph) interp.Path {
	if sf := c.font(g.Font); sf != nil {
		var buf sfnt.Buffer
		segs, err := sf.LoadGlyph(&buf, sfnt.GlyphIndex(g.ID), fixed.I(outlinePPEM), nil)
		if err == nil {
			return outlinePath(segs, g.Matrix)
		}
	}
	return boxPath(g)
}

func outlinePath(segs sfnt.Segments, m coords.Matrix) interp.Path {
	// sfnt outlines are y-down; glyph space is y-up
	em := func(p fixed.Point26_6) coords.Point {
		return m.Transform(coords.Point{
			X: float64(p.X) / 64 / outlinePPEM,
			Y: -float64(p.Y) / 64 / outlinePPEM,
		})
	}
	var p interp.Path
	var cur coords.Point
	for _, s := range segs {
		switch s.Op {
		case sfnt.SegmentOpMoveTo:
			cur = em(s.Args[0])
			p.MoveTo(cur.X, cur.Y)
		case sfnt.SegmentOpLineTo:
			cur = em(s.Args[0])
			p.LineTo(cur.X, cur.Y)
		case sfnt.SegmentOpQuadTo:
			// elevate to a cubic
			q, end := em(s.Args[0]), em(s.Args[1])
			c1 := coords.Point{X: cur.X + 2.0/3*(q.X-cur.X), Y: cur.Y + 2.0/3*(q.Y-cur.Y)}
			c2 := coords.Point{X: end.X + 2.0/3*(q.X-end.X), Y: end.Y + 2.0/3*(q.Y-end.Y)}
			p.CurveTo(c1.X, c1.Y, c2.X, c2.Y, end.X, end.Y)
			cur = end
		case sfnt.SegmentOpCubeTo:
			c1, c2, end := em(s.Args[0]), em(s.Args[1]), em(s.Args[2])
			p.CurveTo(c1.X, c1.Y, c2.X, c2.Y, end.X, end.Y)
			cur = end
		}
	}
	return p
}

func boxPath(g Glyph) interp.Path {
	asc, desc := 0.9, -0.2
	if g.Font != nil {
		asc, desc = g.Font.Metrics()
	}
	adv := g.Advance
	if adv <= 0 {
		adv = 0.5
	}
	corners := []coords.Point{{X: 0, Y: desc}, {X: adv, Y: desc}, {X: adv, Y: asc}, {X: 0, Y: asc}}
	var p interp.Path
	for i, c := range corners {
		d := g.Matrix.Transform(c)
		if i == 0 {
			p.MoveTo(d.X, d.Y)
		} else {
			p.LineTo(d.X, d.Y)
		}
	}
	p.Close()
	return p
}
