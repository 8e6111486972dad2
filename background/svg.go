// Package background produces the non-text layer of a page: an SVG
// document, or a raster image when SVG is not wanted or grows too large.
package background

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wudi/pdfhtml/coords"
	"github.com/wudi/pdfhtml/gstate"
	"github.com/wudi/pdfhtml/interp"
	"github.com/wudi/pdfhtml/render"
)

// ErrNodeLimit stops SVG emission once the page exceeds its node budget.
var ErrNodeLimit = errors.New("background: svg node count limit exceeded")

// Generator streams the non-text events of a page as SVG, in drawing
// order. Coordinates are CSS pixels.
type Generator struct {
	w      *bufio.Writer
	limit  int
	nodes  int
	place  ImagePlacer
	clips  map[coords.Rect]string
	page   coords.Rect
	closed bool
	err    error
}

// NewGenerator writes the SVG prologue. limit < 0 disables the node budget.
func NewGenerator(w io.Writer, width, height float64, limit int, place ImagePlacer) *Generator {
	g := &Generator{
		w:     bufio.NewWriter(w),
		limit: limit,
		place: place,
		clips: make(map[coords.Rect]string),
		page:  coords.Rect{MaxX: width, MaxY: height},
	}
	fmt.Fprintf(g.w, `<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="%s" height="%s" viewBox="0 0 %s %s">`,
		num(width), num(height), num(width), num(height))
	return g
}

// Nodes is the number of elements written so far.
func (g *Generator) Nodes() int { return g.nodes }

// Add emits one display-list item. Text and state events are skipped. Once
// Add has returned an error the generator is unusable.
func (g *Generator) Add(it render.Item) error {
	if g.err != nil {
		return g.err
	}
	if it.State.Clip.Empty() {
		return nil
	}
	var el string
	var err error
	switch e := it.Event.(type) {
	case interp.PaintPath:
		el = pathElement(e, it.State)
	case interp.Shade:
		var p interp.Path
		p.Rect(e.Bounds.MinX, e.Bounds.MinY, e.Bounds.Width(), e.Bounds.Height())
		el = fmt.Sprintf(`<path d="%s" fill="%s"%s/>`, pathData(p, it.State.CTM), e.Color.Hex(), opacity("fill-opacity", e.Color.A))
	case interp.DrawImage:
		el, err = g.imageElement(e, it.State)
	default:
		return nil
	}
	if err != nil {
		g.err = err
		return err
	}
	if el == "" {
		return nil
	}

	clip := it.State.Clip
	wrap := clip.Intersect(g.page) != g.page
	cost := 1
	id, known := g.clips[clip]
	if wrap {
		cost++ // group
		if !known {
			cost += 2 // clipPath and rect
		}
	}
	if g.limit >= 0 && g.nodes+cost > g.limit {
		g.err = ErrNodeLimit
		return g.err
	}
	g.nodes += cost

	if wrap {
		if !known {
			id = "c" + strconv.Itoa(len(g.clips))
			g.clips[clip] = id
			fmt.Fprintf(g.w, `<clipPath id="%s"><rect x="%s" y="%s" width="%s" height="%s"/></clipPath>`,
				id, num(clip.MinX), num(clip.MinY), num(clip.Width()), num(clip.Height()))
		}
		fmt.Fprintf(g.w, `<g clip-path="url(#%s)">%s</g>`, id, el)
	} else {
		g.w.WriteString(el)
	}
	return nil
}

// Close finishes the document. It must be called even after ErrNodeLimit;
// the partial output is then discarded by the caller.
func (g *Generator) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	g.w.WriteString("</svg>")
	return g.w.Flush()
}

func pathElement(e interp.PaintPath, s gstate.State) string {
	if !e.Fill && !e.Stroke {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<path d="%s"`, pathData(e.Path, s.CTM))
	if e.Fill {
		fmt.Fprintf(&b, ` fill="%s"%s`, s.Fill.Hex(), opacity("fill-opacity", s.Fill.A))
		if e.EvenOdd {
			b.WriteString(` fill-rule="evenodd"`)
		}
	} else {
		b.WriteString(` fill="none"`)
	}
	if e.Stroke {
		fmt.Fprintf(&b, ` stroke="%s" stroke-width="%s"%s`, s.Stroke.Hex(), num(s.LineWidth*s.CTM.ScaleFactor()), opacity("stroke-opacity", s.Stroke.A))
	}
	b.WriteString("/>")
	return b.String()
}

func (g *Generator) imageElement(e interp.DrawImage, s gstate.State) (string, error) {
	if e.Image == nil || g.place == nil {
		return "", nil
	}
	url, err := g.place.PlaceImage(e.Image)
	if err != nil {
		return "", err
	}
	// the image fills the unit square with its first row at the top
	m := coords.Matrix{1, 0, 0, -1, 0, 1}.Multiply(s.CTM)
	return fmt.Sprintf(`<image width="1" height="1" preserveAspectRatio="none" transform="matrix(%s %s %s %s %s %s)" xlink:href="%s"/>`,
		num(m[0]), num(m[1]), num(m[2]), num(m[3]), num(m[4]), num(m[5]), url), nil
}

func pathData(p interp.Path, m coords.Matrix) string {
	var b strings.Builder
	for _, s := range p.Segments {
		switch s.Op {
		case interp.MoveTo, interp.LineTo:
			q := m.Transform(s.Points[0])
			op := "M"
			if s.Op == interp.LineTo {
				op = "L"
			}
			fmt.Fprintf(&b, "%s%s %s", op, num(q.X), num(q.Y))
		case interp.CurveTo:
			b.WriteString("C")
			for i := 0; i < 3; i++ {
				q := m.Transform(s.Points[i])
				if i > 0 {
					b.WriteByte(' ')
				}
				fmt.Fprintf(&b, "%s %s", num(q.X), num(q.Y))
			}
		case interp.ClosePath:
			b.WriteString("Z")
		}
	}
	return b.String()
}

func opacity(attr string, a float64) string {
	if a >= 1 {
		return ""
	}
	return fmt.Sprintf(` %s="%s"`, attr, num(a))
}

// num formats a coordinate with at most three decimals.
func num(v float64) string {
	s := strconv.FormatFloat(v, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}
