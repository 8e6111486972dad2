package htmlout

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/wudi/pdfhtml/background"
	"github.com/wudi/pdfhtml/config"
	"github.com/wudi/pdfhtml/fonts"
	"github.com/wudi/pdfhtml/interp"
)

// Output file names.
const (
	DocumentName   = "index.html"
	StylesheetName = "style.css"
	OutlineName    = "outline.html"
	ScriptName     = "pdf2html.js"
	ManifestName   = "manifest.json"
)

// PageName is the fragment file of a split page.
func PageName(n int) string { return "page-" + strconv.Itoa(n) + ".html" }

type Options struct {
	Title     string
	Precision int

	EmbedCSS        bool
	EmbedFont       bool
	EmbedJavascript bool
	EmbedOutline    bool
	SplitPages      bool
	ProcessOutline  bool
	Printing        bool
}

func OptionsFromConfig(c config.Config, title string) Options {
	return Options{
		Title:           title,
		Precision:       c.PositionPrecision,
		EmbedCSS:        c.EmbedCSS,
		EmbedFont:       c.EmbedFont && c.EmbedExternalFont,
		EmbedJavascript: c.EmbedJavascript,
		EmbedOutline:    c.EmbedOutline,
		SplitPages:      c.SplitPages,
		ProcessOutline:  c.ProcessOutline,
		Printing:        c.Printing,
	}
}

// Manifest describes what a conversion wrote.
type Manifest struct {
	Title   string         `json:"title,omitempty"`
	Pages   []ManifestPage `json:"pages"`
	Fonts   []ManifestFont `json:"fonts"`
	Outline bool           `json:"outline"`
}

type ManifestPage struct {
	Number     int     `json:"number"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	File       string  `json:"file,omitempty"`
	Background string  `json:"background"`
	Runs       int     `json:"runs"`
	Overlays   int     `json:"overlays,omitempty"`
	FellBack   bool    `json:"svgFallback,omitempty"`
}

type ManifestFont struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	File   string `json:"file,omitempty"`
	Format string `json:"format,omitempty"`
	Local  bool   `json:"local,omitempty"`
	Failed bool   `json:"failed,omitempty"`
}

// Writer assembles the HTML document. Pages must be written in page order
// from a single goroutine; class names follow first use.
type Writer struct {
	sink  Sink
	fonts *fonts.Set
	opts  Options

	styles    *StyleTable
	families  *StyleTable
	fontPlace *background.Placement
	fontFiles map[string]string

	pages    []*html.Node
	rules    []string
	manifest Manifest
}

func NewWriter(sink Sink, set *fonts.Set, opts Options) *Writer {
	return &Writer{
		sink:      sink,
		fonts:     set,
		opts:      opts,
		styles:    NewStyleTable(),
		families:  NewStyleTable(),
		fontPlace: background.NewPlacement(opts.EmbedFont, sink),
		fontFiles: make(map[string]string),
		manifest:  Manifest{Title: opts.Title},
	}
}

// WritePage emits one page. Split pages go to their own file with the
// rules they introduced; the document keeps a sized placeholder and the
// full stylesheet.
func (w *Writer) WritePage(p Page) error {
	node, rules, err := w.pageNode(p)
	if err != nil {
		return fmt.Errorf("htmlout: page %d: %w", p.Number, err)
	}
	mp := ManifestPage{
		Number:   p.Number,
		Width:    p.Width,
		Height:   p.Height,
		Runs:     len(p.Layout.Runs),
		Overlays: len(p.Overlays),
	}
	mp.Background = background.None.String()
	if p.Background != nil {
		mp.Background = p.Background.Kind.String()
		mp.FellBack = p.Background.FellBack
	}

	w.rules = append(w.rules, rules...)
	if !w.opts.SplitPages {
		w.pages = append(w.pages, node)
		w.manifest.Pages = append(w.manifest.Pages, mp)
		return nil
	}

	var buf bytes.Buffer
	if len(rules) > 0 {
		style := element(atom.Style)
		style.AppendChild(textNode(joinRules(rules)))
		if err := html.Render(&buf, style); err != nil {
			return err
		}
	}
	if err := html.Render(&buf, node); err != nil {
		return err
	}
	mp.File = PageName(p.Number)
	if err := w.sink.WriteAsset(mp.File, buf.Bytes()); err != nil {
		return fmt.Errorf("htmlout: page %d: %w", p.Number, err)
	}
	prec := w.opts.Precision
	w.pages = append(w.pages, element(atom.Div,
		attr("id", pageID(p.Number)),
		attr("class", "pf"),
		attr("data-page-no", strconv.Itoa(p.Number)),
		attr("data-page-url", mp.File),
		attr("style", "width:"+px(p.Width, prec)+";height:"+px(p.Height, prec)),
	))
	w.manifest.Pages = append(w.manifest.Pages, mp)
	return nil
}

// Finish writes the document, its side files and the manifest.
func (w *Writer) Finish(outline []interp.OutlineItem) error {
	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	root := element(atom.Html)
	doc.AppendChild(root)
	head := element(atom.Head)
	body := element(atom.Body)
	root.AppendChild(head)
	root.AppendChild(body)

	head.AppendChild(element(atom.Meta, attr("charset", "utf-8")))
	head.AppendChild(element(atom.Meta, attr("name", "generator"), attr("content", "pdfhtml")))
	title := element(atom.Title)
	title.AppendChild(textNode(w.opts.Title))
	head.AppendChild(title)

	css := stylesheet(w.opts.Printing, joinRules(w.rules))
	if w.opts.EmbedCSS {
		style := element(atom.Style)
		style.AppendChild(textNode(css))
		head.AppendChild(style)
	} else {
		if err := w.sink.WriteAsset(StylesheetName, []byte(css)); err != nil {
			return err
		}
		head.AppendChild(element(atom.Link, attr("rel", "stylesheet"), attr("href", StylesheetName)))
	}

	if w.opts.ProcessOutline && len(outline) > 0 {
		w.manifest.Outline = true
		list := outlineList(outline)
		holder := element(atom.Div, attr("id", "outline"))
		if w.opts.EmbedOutline {
			holder.AppendChild(list)
		} else {
			var buf bytes.Buffer
			if err := html.Render(&buf, list); err != nil {
				return err
			}
			if err := w.sink.WriteAsset(OutlineName, buf.Bytes()); err != nil {
				return err
			}
			holder.Attr = append(holder.Attr, attr("data-outline-url", OutlineName))
		}
		body.AppendChild(holder)
	}

	container := element(atom.Div, attr("id", "page-container"))
	for _, p := range w.pages {
		container.AppendChild(p)
	}
	body.AppendChild(container)

	if w.opts.SplitPages {
		if w.opts.EmbedJavascript {
			script := element(atom.Script)
			script.AppendChild(textNode(loaderJS))
			body.AppendChild(script)
		} else {
			if err := w.sink.WriteAsset(ScriptName, []byte(loaderJS)); err != nil {
				return err
			}
			body.AppendChild(element(atom.Script, attr("src", ScriptName)))
		}
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return fmt.Errorf("htmlout: render document: %w", err)
	}
	if err := w.sink.WriteAsset(DocumentName, buf.Bytes()); err != nil {
		return err
	}
	return w.writeManifest()
}

func (w *Writer) writeManifest() error {
	w.manifest.Fonts = w.manifest.Fonts[:0]
	if w.fonts != nil {
		for _, o := range w.fonts.Fonts() {
			mf := ManifestFont{ID: o.ID, Local: o.Local, Failed: o.Failed}
			if o.Font != nil {
				mf.Name = o.Font.Name
			}
			if !o.Local && !o.Failed {
				mf.Format = o.Format
			}
			if f, ok := w.fontFiles[o.ID]; ok && !w.opts.EmbedFont {
				mf.File = f
			}
			w.manifest.Fonts = append(w.manifest.Fonts, mf)
		}
	}
	if w.manifest.Pages == nil {
		w.manifest.Pages = []ManifestPage{}
	}
	data, err := json.MarshalIndent(w.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("htmlout: manifest: %w", err)
	}
	return w.sink.WriteAsset(ManifestName, data)
}

func outlineList(items []interp.OutlineItem) *html.Node {
	ul := element(atom.Ul)
	for _, it := range items {
		li := element(atom.Li)
		a := element(atom.A, attr("href", "#"+pageID(it.Page)))
		a.AppendChild(textNode(it.Title))
		li.AppendChild(a)
		if len(it.Children) > 0 {
			li.AppendChild(outlineList(it.Children))
		}
		ul.AppendChild(li)
	}
	return ul
}

func joinRules(rules []string) string {
	var b bytes.Buffer
	for _, r := range rules {
		b.WriteString(r)
		b.WriteByte('\n')
	}
	return b.String()
}

// loaderJS fills split-page placeholders as they scroll into view.
const loaderJS = `(function(){
var load=function(el){var u=el.getAttribute("data-page-url");if(!u)return;el.removeAttribute("data-page-url");
fetch(u).then(function(r){return r.text()}).then(function(t){var d=document.createElement("div");d.innerHTML=t;
var s=d.querySelector("style");if(s)document.head.appendChild(s);var p=d.querySelector(".pf");if(p)el.replaceWith(p);});};
var els=document.querySelectorAll(".pf[data-page-url]");
if(!("IntersectionObserver" in window)){els.forEach(load);return;}
var io=new IntersectionObserver(function(es){es.forEach(function(e){if(e.isIntersecting){io.unobserve(e.target);load(e.target);}});},{rootMargin:"200px"});
els.forEach(function(el){io.observe(el);});
})();
`
