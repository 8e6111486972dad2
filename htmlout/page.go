package htmlout

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/wudi/pdfhtml/background"
	"github.com/wudi/pdfhtml/coords"
	"github.com/wudi/pdfhtml/fonts"
	"github.com/wudi/pdfhtml/interp"
	"github.com/wudi/pdfhtml/textlayout"
)

// Overlay is a placed corrective image for a partially occluded run.
type Overlay struct {
	Run    int
	URL    string
	Bounds coords.Rect
}

// Page is everything the writer needs for one page.
type Page struct {
	Number        int
	Width, Height float64
	Layout        textlayout.Layout
	// FontSizeMultiplier is undone by each run's transform.
	FontSizeMultiplier float64
	Background         *background.Background
	Overlays           []Overlay
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func attr(key, val string) html.Attribute { return html.Attribute{Key: key, Val: val} }

func textNode(s string) *html.Node { return &html.Node{Type: html.TextNode, Data: s} }

func pageID(n int) string { return "pf" + strconv.Itoa(n) }

// pageNode builds the page container and returns the rules of classes it
// introduced.
func (w *Writer) pageNode(p Page) (*html.Node, []string, error) {
	prec := w.opts.Precision
	div := element(atom.Div,
		attr("id", pageID(p.Number)),
		attr("class", "pf"),
		attr("data-page-no", strconv.Itoa(p.Number)),
		attr("style", "width:"+px(p.Width, prec)+";height:"+px(p.Height, prec)),
	)
	var rules []string

	if bg := p.Background; bg != nil && bg.Kind != background.None && bg.URL != "" {
		div.AppendChild(element(atom.Img,
			attr("class", "bi"),
			attr("src", bg.URL),
			attr("alt", ""),
			attr("style", "width:"+px(bg.Width, prec)+";height:"+px(bg.Height, prec)),
		))
	}

	mult := p.FontSizeMultiplier
	if mult <= 0 {
		mult = 1
	}
	for i, r := range p.Layout.Runs {
		span, introduced, err := w.runNode(r, mult)
		if err != nil {
			return nil, nil, err
		}
		rules = append(rules, introduced...)
		// the marker closes its run so it covers the gap up to the next one
		if m, ok := p.Layout.MarkerAfter(i); ok {
			marker := element(atom.Span, attr("class", "_"), attr("style", "width:"+px(m.Width*mult, prec)))
			marker.AppendChild(textNode(" "))
			span.AppendChild(marker)
		}
		div.AppendChild(span)
	}

	for _, ov := range p.Overlays {
		b := ov.Bounds
		div.AppendChild(element(atom.Img,
			attr("class", "ov"),
			attr("src", ov.URL),
			attr("alt", ""),
			attr("style", fmt.Sprintf("left:%s;top:%s;width:%s;height:%s",
				px(b.MinX, prec), px(b.MinY, prec), px(b.Width(), prec), px(b.Height(), prec))),
		))
	}
	return div, rules, nil
}

func (w *Writer) runNode(r *textlayout.Run, mult float64) (*html.Node, []string, error) {
	prec := w.opts.Precision
	var rules []string
	intern := func(kind, key, decl string) string {
		c, fresh := w.styles.Class(kind, key, decl)
		if fresh {
			rules = append(rules, Rule{Class: c, Decl: decl}.String())
		}
		return c
	}

	out := w.fontOutput(r.Font)
	asc, desc := 0.9, -0.2
	if r.Font != nil {
		asc, desc = r.Font.Metrics()
	}

	ffKey := ""
	if r.Font != nil {
		ffKey = r.Font.ID
	}
	ffDecl := "line-height:" + num(asc-desc, prec)
	family := ""
	if out != nil && !out.Failed {
		family = fontFamily(ffKey, w)
		ffDecl = "font-family:" + family + ";" + ffDecl
		if out.NoLigatures {
			ffDecl += ";font-variant-ligatures:none"
		}
	} else {
		ffDecl = "font-family:sans-serif;" + ffDecl
	}
	classes := []string{"t"}
	ff, fresh := w.styles.Class(KindFont, ffKey, ffDecl)
	if fresh {
		if family != "" {
			face, err := w.fontFace(family, out)
			if err != nil {
				return nil, nil, err
			}
			if face != "" {
				rules = append(rules, face)
			}
		}
		rules = append(rules, Rule{Class: ff, Decl: ffDecl}.String())
	}
	classes = append(classes, ff)
	classes = append(classes, intern(KindSize, num(r.FontSize, prec), "font-size:"+px(r.FontSize, prec)))
	color := colorValue(r.Color)
	classes = append(classes, intern(KindColor, color, "color:"+color))

	style := "left:" + px(r.Origin.X, prec) + ";top:" + px(r.Origin.Y-asc*r.FontSize, prec)
	m := r.Linear.Normalize(mult)
	if !m.IsIdentityLinear(1e-9) {
		v := fmt.Sprintf("matrix(%s,%s,%s,%s,0,0)", num(m[0], 6), num(m[1], 6), num(m[2], 6), num(m[3], 6))
		classes = append(classes, intern(KindTransform, v, "transform:"+v))
		style += ";transform-origin:0 " + px(asc*r.FontSize, prec)
	}
	if r.Invisible || r.Verdict == textlayout.FullyOccluded || out == nil || out.Failed {
		classes = append(classes, "tr")
	}

	span := element(atom.Span, attr("class", strings.Join(classes, " ")), attr("style", style))
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			span.AppendChild(textNode(text.String()))
			text.Reset()
		}
	}
	for _, g := range r.Glyphs {
		if g.Offset {
			flush()
			gap := element(atom.Span, attr("class", "_"), attr("style", "width:"+px(g.Advance*mult, prec)))
			span.AppendChild(gap)
			continue
		}
		if out != nil {
			text.WriteString(out.Text(g.ID))
		}
	}
	flush()
	return span, rules, nil
}

func (w *Writer) fontOutput(f *interp.FontResource) *fonts.Output {
	if f == nil || w.fonts == nil {
		return nil
	}
	out, _ := w.fonts.Font(f.ID)
	return out
}

// fontFamily names the web font of a font id.
func fontFamily(id string, w *Writer) string {
	c, _ := w.families.Class("f", id, "")
	return c
}

func (w *Writer) fontFace(family string, out *fonts.Output) (string, error) {
	switch {
	case out.Local:
		name := strings.NewReplacer(`"`, "", `\`, "").Replace(out.Font.Name)
		if name == "" {
			return "", nil
		}
		return fmt.Sprintf(`@font-face{font-family:%s;src:local("%s")}`, family, name), nil
	case len(out.Data) == 0:
		return "", nil
	}
	format, mime := "woff", "font/woff"
	if out.Format == fonts.FormatTTF {
		format, mime = "truetype", "font/ttf"
	}
	url, err := w.fontPlace.Place(out.Data, mime, out.Format)
	if err != nil {
		return "", err
	}
	w.fontFiles[out.ID] = url
	return fmt.Sprintf(`@font-face{font-family:%s;src:url(%s)format("%s")}`, family, url, format), nil
}

func colorValue(c interp.RGBA) string {
	if c.A >= 1 {
		return c.Hex()
	}
	n := c.NRGBA()
	return fmt.Sprintf("rgba(%d,%d,%d,%s)", n.R, n.G, n.B, num(c.A, 3))
}
