package interp

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const sampleTrace = `{
  "fonts": [{"id": "F1", "name": "Sans", "kind": "truetype",
             "toUnicode": {"3": "A", "4": "fi"}, "widths": {"3": 600}}],
  "outline": [{"Title": "Intro", "Page": 1}],
  "pages": [{
    "mediaBox": [0, 0, 612, 792],
    "events": [
      {"op": "q"},
      {"op": "cm", "m": [1, 0, 0, 1, 10, 20]},
      {"op": "rg", "c": [1, 0, 0]},
      {"op": "path", "path": [["re", 0, 0, 100, 50]], "fill": true},
      {"op": "glyph", "font": "F1", "gid": 3, "size": 12, "m": [12, 0, 0, 12, 72, 700], "adv": 0.6},
      {"op": "sh", "bbox": [0, 0, 10, 10], "c": [0.5]},
      {"op": "Q"}
    ]
  }]
}`

func TestDecodeTrace(t *testing.T) {
	doc, err := DecodeTrace(strings.NewReader(sampleTrace))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.NumPages() != 1 {
		t.Fatalf("pages = %d", doc.NumPages())
	}
	f, ok := doc.Font("F1")
	if !ok {
		t.Fatal("font F1 missing")
	}
	if string(f.ToUnicode[4]) != "fi" || f.Widths[3] != 600 {
		t.Fatalf("font fields not decoded: %+v", f)
	}
	page, err := doc.Page(0)
	if err != nil {
		t.Fatal(err)
	}
	var ops []Event
	if err := page.Events(context.Background(), func(ev Event) error {
		ops = append(ops, ev)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(ops) != 7 {
		t.Fatalf("events = %d, want 7", len(ops))
	}
	pp, ok := ops[3].(PaintPath)
	if !ok || len(pp.Path.Segments) != 5 || !pp.Fill {
		t.Fatalf("rect path not decoded: %#v", ops[3])
	}
	g, ok := ops[4].(Glyph)
	if !ok || g.Glyph != 3 || g.TextMatrix[5] != 700 {
		t.Fatalf("glyph not decoded: %#v", ops[4])
	}
	if sh := ops[5].(Shade); sh.Color != (RGBA{0.5, 0.5, 0.5, 1}) {
		t.Fatalf("gray shading colour: %+v", sh.Color)
	}
}

func TestDecodeTraceRejectsUnknownOp(t *testing.T) {
	_, err := DecodeTrace(strings.NewReader(`{"pages":[{"mediaBox":[0,0,1,1],"events":[{"op":"zz"}]}]}`))
	if !errors.Is(err, ErrTrace) {
		t.Fatalf("expected ErrTrace, got %v", err)
	}
}

func TestMemoryDocumentAuthenticate(t *testing.T) {
	doc := &MemoryDocument{IsEncrypted: true, UserPassword: "u", OwnerPassword: "o"}
	if err := doc.Authenticate("", ""); !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("no password: %v", err)
	}
	if err := doc.Authenticate("", "wrong"); !errors.Is(err, ErrBadPassword) {
		t.Fatalf("wrong password: %v", err)
	}
	if err := doc.Authenticate("o", ""); err != nil {
		t.Fatalf("owner password: %v", err)
	}
}
