package fonts

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"reflect"
	"sync"
	"testing"

	"golang.org/x/image/font/gofont/goregular"

	"github.com/wudi/pdfhtml/config"
	"github.com/wudi/pdfhtml/interp"
)

type fakeTool struct {
	mu        sync.Mutex
	requests  []SubsetRequest
	fail      map[string]error
	ligatures bool
}

func (f *fakeTool) Subset(_ context.Context, req SubsetRequest) (SubsetResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err := f.fail[req.FontID]; err != nil {
		return SubsetResult{}, err
	}
	return SubsetResult{Data: []byte("font:" + req.FontID), Format: req.Format, LigaturesApplied: f.ligatures}, nil
}

func embedded(id string) *interp.FontResource {
	return &interp.FontResource{
		ID:        id,
		Kind:      interp.FontTrueType,
		Program:   []byte{1},
		ToUnicode: map[interp.GlyphID][]rune{1: {'a'}, 2: {'b'}, 3: {'c'}, 9: {0xFB01}},
		Widths:    map[interp.GlyphID]float64{1: 500, 2: 600, 3: 700},
	}
}

func baseOptions() Options {
	return OptionsFromConfig(config.Default(), nil)
}

func TestFinalizeOneRequestPerFont(t *testing.T) {
	reg := NewRegistry()
	font := embedded("f1")
	// page 1 uses three glyphs, page 2 two of them
	for _, g := range []interp.GlyphID{1, 2, 3} {
		reg.Register(font, g)
	}
	for _, g := range []interp.GlyphID{2, 3} {
		reg.Register(font, g)
	}

	tool := &fakeTool{}
	set, err := Finalize(context.Background(), reg, tool, baseOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(tool.requests) != 1 {
		t.Fatalf("tool invoked %d times, want 1", len(tool.requests))
	}
	req := tool.requests[0]
	if !reflect.DeepEqual(req.Glyphs, []interp.GlyphID{1, 2, 3}) {
		t.Fatalf("glyphs = %v", req.Glyphs)
	}
	if req.Format != FormatWOFF || req.Widths[2] != 600 || req.CMap['b'] != 2 {
		t.Fatalf("unexpected request: %+v", req)
	}
	out, ok := set.Font("f1")
	if !ok || string(out.Data) != "font:f1" || out.Text(1) != "a" {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestFinalizeFallback(t *testing.T) {
	reg := NewRegistry()
	reg.Register(embedded("bad"), 1)
	reg.Register(embedded("good"), 1)
	tool := &fakeTool{fail: map[string]error{"bad": ErrToolFailed}}

	opts := baseOptions()
	set, err := Finalize(context.Background(), reg, tool, opts)
	if err != nil {
		t.Fatalf("fallback on should not fail: %v", err)
	}
	if failed := set.Failed(); !failed["bad"] || failed["good"] {
		t.Fatalf("failed = %v", failed)
	}

	opts.Fallback = false
	_, err = Finalize(context.Background(), reg, tool, opts)
	var perr *ProcessingError
	if !errors.As(err, &perr) || perr.FontID != "bad" || !errors.Is(err, ErrToolFailed) {
		t.Fatalf("expected ProcessingError for bad, got %v", err)
	}
}

func TestFinalizeLigatureDecomposition(t *testing.T) {
	tests := []struct {
		name     string
		decomp   bool
		off      bool
		applied  bool
		wantText string
		wantReq  int
	}{
		{"decompose applied", true, false, true, "fi", 1},
		{"decompose not applied", true, false, false, "ﬁ", 1},
		{"off wins", true, true, true, "ﬁ", 0},
		{"default", false, false, true, "ﬁ", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			reg.Register(embedded("f"), 9)
			tool := &fakeTool{ligatures: tt.applied}
			opts := baseOptions()
			opts.Decompose, opts.LigaturesOff = tt.decomp, tt.off

			set, err := Finalize(context.Background(), reg, tool, opts)
			if err != nil {
				t.Fatal(err)
			}
			req := tool.requests[0]
			if len(req.Ligatures) != tt.wantReq {
				t.Fatalf("ligature rules = %v", req.Ligatures)
			}
			out, _ := set.Font("f")
			if got := out.Text(9); got != tt.wantText {
				t.Fatalf("text = %q, want %q", got, tt.wantText)
			}
			// the display mapping never changes
			if req.CMap[0xFB01] != 9 {
				t.Fatalf("cmap = %v", req.CMap)
			}
			if out.NoLigatures != tt.off || req.DropLigatures != tt.off {
				t.Fatalf("ligature suppression not propagated")
			}
		})
	}
}

func TestFinalizeSkipsNonEmbeddedFonts(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&interp.FontResource{ID: "helv", Name: "Helvetica"}, 1)
	tool := &fakeTool{}
	set, err := Finalize(context.Background(), reg, tool, baseOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(tool.requests) != 0 {
		t.Fatal("non-embedded font sent to the tool")
	}
	if out, _ := set.Font("helv"); !out.Local || out.Failed {
		t.Fatalf("unexpected output %+v", out)
	}
}

func TestFinalizeType3RequiresProcessing(t *testing.T) {
	reg := NewRegistry()
	f := embedded("t3")
	f.Kind = interp.FontType3
	reg.Register(f, 1)

	set, err := Finalize(context.Background(), reg, &fakeTool{}, baseOptions())
	if err != nil {
		t.Fatal(err)
	}
	if out, _ := set.Font("t3"); !out.Failed || !errors.Is(out.Err, ErrType3) {
		t.Fatalf("type3 font should fail over to the background: %+v", out)
	}

	opts := baseOptions()
	opts.ProcessType3 = true
	tool := &fakeTool{}
	if _, err := Finalize(context.Background(), reg, tool, opts); err != nil || len(tool.requests) != 1 {
		t.Fatalf("processType3 should send the font: %v %d", err, len(tool.requests))
	}
}

func TestLocalAndFailedFontsWriteUnicode(t *testing.T) {
	toUnicode := map[interp.GlyphID][]rune{1: {'a'}, 2: {'a'}, 3: {'f', 'i'}}
	local := &interp.FontResource{ID: "L", Name: "Helvetica", ToUnicode: toUnicode}
	bad := embedded("bad")
	bad.ToUnicode = toUnicode
	reg := NewRegistry()
	for _, g := range []interp.GlyphID{1, 2, 3} {
		reg.Register(local, g)
		reg.Register(bad, g)
	}

	opts := baseOptions()
	opts.Fallback = true
	tool := &fakeTool{fail: map[string]error{"bad": ErrToolFailed}}
	set, err := Finalize(context.Background(), reg, tool, opts)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"L", "bad"} {
		out, _ := set.Font(id)
		var got string
		for _, g := range []interp.GlyphID{1, 2, 3} {
			got += out.Text(g)
		}
		if got != "aafi" {
			t.Errorf("font %s writes %q, want %q", id, got, "aafi")
		}
	}
}

func TestSubsetFontsWriteDisplayCodes(t *testing.T) {
	reg := NewRegistry()
	f := embedded("f")
	f.ToUnicode = map[interp.GlyphID][]rune{1: {'a'}, 2: {'a'}}
	reg.Register(f, 1)
	reg.Register(f, 2)
	set, err := Finalize(context.Background(), reg, &fakeTool{}, baseOptions())
	if err != nil {
		t.Fatal(err)
	}
	out, _ := set.Font("f")
	if out.Text(1) != "a" || out.Text(2) != string(puaStart) {
		t.Fatalf("texts = %q %q", out.Text(1), out.Text(2))
	}
}

// hintRunner plays a hinting program that copies its input.
type hintRunner struct {
	names []string
	fail  bool
}

func (r *hintRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	r.names = append(r.names, name)
	if r.fail {
		return "no hinting today", errors.New("exit status 1")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", err
	}
	return "", os.WriteFile(args[1], data, 0o600)
}

func TestFinalizeHinting(t *testing.T) {
	tests := []struct {
		name       string
		autoHint   bool
		hintTool   string
		format     string
		fail       bool
		wantRun    string
		wantFormat string
	}{
		{name: "off", format: FormatWOFF, wantFormat: FormatWOFF},
		{name: "auto hint", autoHint: true, format: FormatWOFF, wantRun: DefaultAutoHinter, wantFormat: FormatWOFF},
		{name: "external tool", autoHint: true, hintTool: "myhint", format: FormatTTF, wantRun: "myhint", wantFormat: FormatTTF},
		{name: "tool fails", hintTool: "myhint", format: FormatWOFF, fail: true, wantRun: "myhint", wantFormat: FormatWOFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			reg.Register(embedded("f"), 1)
			var asked string
			tool := ToolFunc(func(_ context.Context, req SubsetRequest) (SubsetResult, error) {
				asked = req.Format
				data := goregular.TTF
				if req.Format == FormatWOFF {
					data = []byte("wOFF")
				}
				return SubsetResult{Data: data, Format: req.Format}, nil
			})
			runner := &hintRunner{fail: tt.fail}
			opts := baseOptions()
			opts.Format, opts.AutoHint, opts.HintTool = tt.format, tt.autoHint, tt.hintTool
			opts.TmpDir, opts.Runner = t.TempDir(), runner

			set, err := Finalize(context.Background(), reg, tool, opts)
			if err != nil {
				t.Fatal(err)
			}
			out, _ := set.Font("f")
			if out.Failed || out.Format != tt.wantFormat || len(out.Data) < 4 {
				t.Fatalf("output = %+v", out)
			}
			if tt.wantFormat == FormatWOFF && binary.BigEndian.Uint32(out.Data) != woffSignature {
				t.Fatal("output is not woff")
			}
			if tt.wantRun == "" {
				if len(runner.names) != 0 || asked != tt.format {
					t.Fatalf("hinter ran %v, tool asked for %q", runner.names, asked)
				}
				return
			}
			if len(runner.names) != 1 || runner.names[0] != tt.wantRun || asked != FormatTTF {
				t.Fatalf("hinter ran %v, tool asked for %q", runner.names, asked)
			}
		})
	}
}
