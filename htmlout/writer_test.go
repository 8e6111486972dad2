package htmlout

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/wudi/pdfhtml/background"
	"github.com/wudi/pdfhtml/coords"
	"github.com/wudi/pdfhtml/fonts"
	"github.com/wudi/pdfhtml/interp"
	"github.com/wudi/pdfhtml/textlayout"
)

var (
	fontA = &interp.FontResource{ID: "A", Name: "Demo-Regular", Kind: interp.FontTrueType, Program: []byte{1}}
	fontL = &interp.FontResource{ID: "L", Name: "Helvetica", Kind: interp.FontType1}
)

func testSet() *fonts.Set {
	return fonts.NewSet(
		&fonts.Output{
			ID: "A", Font: fontA, Data: []byte("wOFF-data"), Format: fonts.FormatWOFF,
			Mapping: &fonts.Mapping{Display: map[interp.GlyphID]rune{1: 'a', 2: 'b'}},
		},
		&fonts.Output{
			ID: "L", Font: fontL, Local: true,
			Mapping: &fonts.Mapping{Display: map[interp.GlyphID]rune{1: 'x'}, Text: map[interp.GlyphID][]rune{1: {'x'}}},
		},
	)
}

func run(f *interp.FontResource, x, y float64, ids ...interp.GlyphID) *textlayout.Run {
	r := &textlayout.Run{
		Font: f, Size: 12, FontSize: 12, Color: interp.Black,
		Linear: coords.Identity(), Origin: coords.Point{X: x, Y: y},
	}
	for i, id := range ids {
		r.Glyphs = append(r.Glyphs, textlayout.Glyph{Seq: i, ID: id, X: float64(i) * 6, Advance: 6})
	}
	r.Width = float64(len(ids)) * 6
	return r
}

func defaultOptions() Options {
	return Options{Title: "Doc", Precision: 3, EmbedCSS: true, EmbedFont: true, EmbedJavascript: true, EmbedOutline: true, ProcessOutline: true, Printing: true}
}

func convert(t *testing.T, opts Options, outline []interp.OutlineItem, pages ...Page) *MemorySink {
	t.Helper()
	sink := NewMemorySink()
	w := NewWriter(sink, testSet(), opts)
	for _, p := range pages {
		if err := w.WritePage(p); err != nil {
			t.Fatalf("WritePage: %v", err)
		}
	}
	if err := w.Finish(outline); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return sink
}

func parse(t *testing.T, sink *MemorySink, name string) *html.Node {
	t.Helper()
	data, ok := sink.File(name)
	if !ok {
		t.Fatalf("%s not written", name)
	}
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse %s: %v", name, err)
	}
	return doc
}

func findAll(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if pred(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(getAttr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func byClass(class string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Type == html.ElementNode && hasClass(n, class) }
}

func textOf(n *html.Node) string {
	var b strings.Builder
	for _, t := range findAll(n, func(n *html.Node) bool { return n.Type == html.TextNode }) {
		b.WriteString(t.Data)
	}
	return b.String()
}

func styleText(doc *html.Node) string {
	var b strings.Builder
	for _, s := range findAll(doc, func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == "style" }) {
		b.WriteString(textOf(s))
	}
	return b.String()
}

func page(n int, runs ...*textlayout.Run) Page {
	return Page{Number: n, Width: 612, Height: 792, Layout: textlayout.Layout{Runs: runs}}
}

func TestRunsArePositionedSpans(t *testing.T) {
	sink := convert(t, defaultOptions(), nil, page(1, run(fontA, 72, 92, 1, 2)))
	doc := parse(t, sink, DocumentName)

	spans := findAll(doc, byClass("t"))
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	s := spans[0]
	if got := textOf(s); got != "ab" {
		t.Fatalf("text = %q, want ab", got)
	}
	for _, c := range []string{"ff0", "fs0", "fc0"} {
		if !hasClass(s, c) {
			t.Errorf("missing class %s in %q", c, getAttr(s, "class"))
		}
	}
	// top is the baseline less the ascent: 92 - 0.9*12
	if style := getAttr(s, "style"); style != "left:72px;top:81.2px" {
		t.Fatalf("style = %q", style)
	}

	pf := findAll(doc, byClass("pf"))
	if len(pf) != 1 || getAttr(pf[0], "id") != "pf1" || getAttr(pf[0], "data-page-no") != "1" {
		t.Fatalf("page container = %+v", pf)
	}
	css := styleText(doc)
	for _, want := range []string{".fs0{font-size:12px}", ".fc0{color:#000000}", "@font-face{font-family:f0;src:url(data:font/woff;base64,", "@media print"} {
		if !strings.Contains(css, want) {
			t.Errorf("stylesheet lacks %q", want)
		}
	}
}

func TestStyleClassesAreShared(t *testing.T) {
	sink := convert(t, defaultOptions(), nil,
		page(1, run(fontA, 72, 92, 1)),
		page(2, run(fontA, 10, 40, 2)),
	)
	doc := parse(t, sink, DocumentName)
	spans := findAll(doc, byClass("t"))
	if len(spans) != 2 || getAttr(spans[0], "class") != getAttr(spans[1], "class") {
		t.Fatalf("expected identical classes, got %d spans", len(spans))
	}
	if n := strings.Count(styleText(doc), "@font-face"); n != 1 {
		t.Fatalf("font-face rules = %d, want 1", n)
	}
}

func TestHiddenRunsStaySelectable(t *testing.T) {
	occluded := run(fontA, 72, 92, 1)
	occluded.Verdict = textlayout.FullyOccluded
	invisible := run(fontA, 72, 120, 2)
	invisible.Invisible = true
	visible := run(fontA, 72, 150, 1)

	doc := parse(t, convert(t, defaultOptions(), nil, page(1, occluded, invisible, visible)), DocumentName)
	spans := findAll(doc, byClass("t"))
	if len(spans) != 3 {
		t.Fatalf("spans = %d", len(spans))
	}
	want := []bool{true, true, false}
	for i, s := range spans {
		if hasClass(s, "tr") != want[i] {
			t.Errorf("span %d transparent = %v, want %v", i, !want[i], want[i])
		}
	}
}

func TestSpaceMarkersAndOffsets(t *testing.T) {
	r := run(fontA, 72, 92, 1, 2)
	r.Glyphs = append(r.Glyphs[:1], textlayout.Glyph{Seq: -1, X: 6, Advance: 10, Offset: true}, textlayout.Glyph{Seq: 1, ID: 2, X: 16, Advance: 6})
	p := page(1, r, run(fontA, 200, 92, 1))
	p.Layout.Markers = []textlayout.SpaceMarker{{After: 0, Width: 20}}
	p.FontSizeMultiplier = 1

	doc := parse(t, convert(t, defaultOptions(), nil, p), DocumentName)
	gaps := findAll(doc, byClass("_"))
	if len(gaps) != 2 {
		t.Fatalf("offset spans = %d, want 2", len(gaps))
	}
	if getAttr(gaps[0], "style") != "width:10px" {
		t.Fatalf("offset style = %q", getAttr(gaps[0], "style"))
	}
	if textOf(gaps[1]) != " " || getAttr(gaps[1], "style") != "width:20px" {
		t.Fatalf("marker = %q %q", textOf(gaps[1]), getAttr(gaps[1], "style"))
	}
	// the marker ends the run it follows
	if runs := findAll(doc, byClass("t")); gaps[1].Parent != runs[0] || runs[0].LastChild != gaps[1] {
		t.Fatal("marker is not the last child of the preceding run")
	}
	pf := findAll(doc, byClass("pf"))[0]
	if got := textOf(pf); got != "ab a" {
		t.Fatalf("page text = %q, want %q", got, "ab a")
	}
}

func TestTransformedRunGetsMatrixClass(t *testing.T) {
	r := run(fontA, 72, 92, 1)
	r.Linear = coords.Matrix{0, -1, 1, 0, 0, 0}
	doc := parse(t, convert(t, defaultOptions(), nil, page(1, r)), DocumentName)
	s := findAll(doc, byClass("t"))[0]
	if !hasClass(s, "m0") {
		t.Fatalf("classes = %q", getAttr(s, "class"))
	}
	if !strings.Contains(getAttr(s, "style"), "transform-origin:0 10.8px") {
		t.Fatalf("style = %q", getAttr(s, "style"))
	}
	if !strings.Contains(styleText(doc), ".m0{transform:matrix(0,-1,1,0,0,0)}") {
		t.Fatal("matrix rule missing")
	}
}

func TestLocalAndFailedFonts(t *testing.T) {
	set := fonts.NewSet(
		&fonts.Output{ID: "L", Font: fontL, Local: true, Mapping: &fonts.Mapping{
			Display: map[interp.GlyphID]rune{1: 'a', 3: 0xE000},
			Text:    map[interp.GlyphID][]rune{1: {'a'}, 3: {'f', 'i'}},
		}},
		&fonts.Output{ID: "A", Font: fontA, Failed: true, Mapping: &fonts.Mapping{
			Display: map[interp.GlyphID]rune{1: 0xE001},
			Text:    map[interp.GlyphID][]rune{1: {'a'}},
		}},
	)
	sink := NewMemorySink()
	w := NewWriter(sink, set, defaultOptions())
	if err := w.WritePage(page(1, run(fontL, 10, 20, 1, 3), run(fontA, 10, 40, 1))); err != nil {
		t.Fatal(err)
	}
	if err := w.Finish(nil); err != nil {
		t.Fatal(err)
	}
	doc := parse(t, sink, DocumentName)
	css := styleText(doc)
	if !strings.Contains(css, `@font-face{font-family:f0;src:local("Helvetica")}`) {
		t.Fatalf("local font-face missing:\n%s", css)
	}
	spans := findAll(doc, byClass("t"))
	if hasClass(spans[0], "tr") || !hasClass(spans[1], "tr") {
		t.Fatal("failed-font run should be transparent, local-font run not")
	}
	// both are written as Unicode, never as private display codes
	if textOf(spans[0]) != "afi" {
		t.Fatalf("local-font text = %q, want afi", textOf(spans[0]))
	}
	if textOf(spans[1]) != "a" {
		t.Fatalf("failed-font text = %q", textOf(spans[1]))
	}
}

func TestBackgroundAndOverlays(t *testing.T) {
	p := page(1, run(fontA, 72, 92, 1))
	p.Background = &background.Background{Kind: background.Raster, URL: "bg.png", Width: 612, Height: 792}
	p.Overlays = []Overlay{{Run: 0, URL: "ov.png", Bounds: coords.Rect{MinX: 70, MinY: 80, MaxX: 80, MaxY: 95}}}

	doc := parse(t, convert(t, defaultOptions(), nil, p), DocumentName)
	bi := findAll(doc, byClass("bi"))
	if len(bi) != 1 || getAttr(bi[0], "src") != "bg.png" {
		t.Fatalf("background image = %+v", bi)
	}
	ov := findAll(doc, byClass("ov"))
	if len(ov) != 1 || getAttr(ov[0], "style") != "left:70px;top:80px;width:10px;height:15px" {
		t.Fatalf("overlay = %+v", ov)
	}
	// background first, overlays above the text layer
	pf := findAll(doc, byClass("pf"))[0]
	if pf.FirstChild != bi[0] || pf.LastChild != ov[0] {
		t.Fatal("unexpected stacking order")
	}
}

func TestExternalAssets(t *testing.T) {
	opts := defaultOptions()
	opts.EmbedCSS = false
	opts.EmbedFont = false
	opts.EmbedOutline = false
	outline := []interp.OutlineItem{{Title: "Intro", Page: 1}}
	sink := convert(t, opts, outline, page(1, run(fontA, 72, 92, 1)))

	doc := parse(t, sink, DocumentName)
	links := findAll(doc, func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == "link" })
	if len(links) != 1 || getAttr(links[0], "href") != StylesheetName {
		t.Fatalf("links = %+v", links)
	}
	css, ok := sink.File(StylesheetName)
	if !ok {
		t.Fatal("stylesheet not written")
	}
	fontFile := background.AssetName([]byte("wOFF-data"), fonts.FormatWOFF)
	if _, ok := sink.File(fontFile); !ok {
		t.Fatalf("font file %s not written", fontFile)
	}
	if !strings.Contains(string(css), "url("+fontFile+")") {
		t.Fatalf("stylesheet does not reference %s", fontFile)
	}
	if _, ok := sink.File(OutlineName); !ok {
		t.Fatal("outline not written")
	}

	var m Manifest
	data, _ := sink.File(ManifestName)
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if len(m.Fonts) != 2 || m.Fonts[0].File != fontFile || !m.Fonts[1].Local || !m.Outline {
		t.Fatalf("manifest = %+v", m)
	}
}

func TestSplitPages(t *testing.T) {
	opts := defaultOptions()
	opts.SplitPages = true
	sink := convert(t, opts, nil, page(1, run(fontA, 72, 92, 1)), page(2, run(fontA, 72, 92, 2)))

	doc := parse(t, sink, DocumentName)
	pf := findAll(doc, byClass("pf"))
	if len(pf) != 2 || getAttr(pf[1], "data-page-url") != PageName(2) || pf[1].FirstChild != nil {
		t.Fatalf("placeholders = %+v", pf)
	}
	frag := parse(t, sink, PageName(1))
	if !strings.Contains(styleText(frag), ".fs0{font-size:12px}") {
		t.Fatal("page fragment lacks its rules")
	}
	if len(findAll(frag, byClass("t"))) != 1 {
		t.Fatal("page fragment lacks its text")
	}
	if strings.Contains(styleText(parse(t, sink, PageName(2))), "fs0") {
		t.Fatal("second page repeats rules of the first")
	}
	scripts := findAll(doc, func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == "script" })
	if len(scripts) != 1 || !strings.Contains(textOf(scripts[0]), "data-page-url") {
		t.Fatal("loader script missing")
	}

	opts.EmbedJavascript = false
	sink = convert(t, opts, nil, page(1))
	if _, ok := sink.File(ScriptName); !ok {
		t.Fatal("external script not written")
	}
}

func TestOutlineNesting(t *testing.T) {
	outline := []interp.OutlineItem{
		{Title: "One", Page: 1, Children: []interp.OutlineItem{{Title: "One.A", Page: 2}}},
		{Title: "Two <b>", Page: 3},
	}
	doc := parse(t, convert(t, defaultOptions(), outline, page(1)), DocumentName)
	links := findAll(doc, func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == "a" })
	if len(links) != 3 {
		t.Fatalf("links = %d", len(links))
	}
	if getAttr(links[1], "href") != "#pf2" || textOf(links[2]) != "Two <b>" {
		t.Fatalf("unexpected outline entries")
	}
	nested := findAll(doc, func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == "ul" })
	if len(nested) != 2 {
		t.Fatalf("lists = %d, want 2", len(nested))
	}

	opts := defaultOptions()
	opts.ProcessOutline = false
	doc = parse(t, convert(t, opts, outline, page(1)), DocumentName)
	if len(findAll(doc, func(n *html.Node) bool { return getAttr(n, "id") == "outline" })) != 0 {
		t.Fatal("outline emitted while disabled")
	}
}

func TestPrintRulesFollowOption(t *testing.T) {
	for _, printing := range []bool{true, false} {
		opts := defaultOptions()
		opts.Printing = printing
		css := styleText(parse(t, convert(t, opts, nil, page(1, run(fontA, 72, 92, 1))), DocumentName))
		if got := strings.Contains(css, "@media print"); got != printing {
			t.Errorf("printing=%v: print rules present = %v", printing, got)
		}
	}
}
