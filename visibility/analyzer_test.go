package visibility

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math/rand"
	"testing"

	"github.com/wudi/pdfhtml/config"
	"github.com/wudi/pdfhtml/coords"
	"github.com/wudi/pdfhtml/gstate"
	"github.com/wudi/pdfhtml/interp"
	"github.com/wudi/pdfhtml/render"
	"github.com/wudi/pdfhtml/textlayout"
)

// fakeBackend serves fixed full and background renders.
type fakeBackend struct {
	full, bg *image.RGBA
	err      error
	calls    int
}

func (f *fakeBackend) Render(_ context.Context, _ *render.DisplayList, opts render.Options) (*image.RGBA, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if opts.Text != nil {
		return f.bg, nil
	}
	return f.full, nil
}

// boxMasker treats the whole requested rectangle as ink.
type boxMasker struct{}

func (boxMasker) GlyphMask(_ []render.Glyph, _ float64, bounds image.Rectangle) *image.Alpha {
	m := image.NewAlpha(bounds)
	draw.Draw(m, bounds, image.Opaque, image.Point{}, draw.Src)
	return m
}

var font = &interp.FontResource{ID: "f", Ascent: 1}

// run covers CSS pixels x 10..30, y 10..20.
func run() *textlayout.Run {
	return &textlayout.Run{
		Font:   font,
		Size:   10,
		Linear: coords.Identity(),
		Origin: coords.Point{X: 10, Y: 20},
		Width:  20,
		Glyphs: []textlayout.Glyph{{ID: 1, Advance: 20, Matrix: coords.Matrix{10, 0, 0, -10, 10, 20}}},
	}
}

func page() *render.DisplayList {
	return render.NewDisplayList(interp.PageInfo{}, 1, 100, 100)
}

func blank() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	return img
}

func paint(img *image.RGBA, r image.Rectangle, c color.Color) *image.RGBA {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func params(mode int) Params {
	return Params{Mode: mode, DPI: 72, PixelThreshold: 16, Tolerance: 0.02}
}

var textBox = image.Rect(10, 10, 30, 20)

func TestClassification(t *testing.T) {
	gray := color.RGBA{128, 128, 128, 255}
	tests := []struct {
		name     string
		full, bg *image.RGBA
		mode     int
		want     textlayout.Verdict
		overlay  bool
	}{
		{"visible", paint(blank(), textBox, color.Black), blank(), config.VisibilityPartial, textlayout.Visible, false},
		{"covered", paint(blank(), textBox, gray), paint(blank(), textBox, gray), config.VisibilityFull, textlayout.FullyOccluded, false},
		{"covered mode 2", paint(blank(), textBox, gray), paint(blank(), textBox, gray), config.VisibilityPartial, textlayout.FullyOccluded, false},
		{"half covered", paint(paint(blank(), textBox, color.Black), image.Rect(20, 10, 30, 20), gray), paint(blank(), image.Rect(20, 10, 30, 20), gray), config.VisibilityPartial, textlayout.PartiallyOccluded, true},
		{"half covered mode 1", paint(paint(blank(), textBox, color.Black), image.Rect(20, 10, 30, 20), gray), paint(blank(), image.Rect(20, 10, 30, 20), gray), config.VisibilityFull, textlayout.Visible, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAnalyzer(&fakeBackend{full: tt.full, bg: tt.bg}, boxMasker{}, nil)
			r := run()
			res, err := a.Analyze(context.Background(), page(), []*textlayout.Run{r}, params(tt.mode))
			if err != nil {
				t.Fatal(err)
			}
			if r.Verdict != tt.want {
				t.Fatalf("verdict = %v, want %v", r.Verdict, tt.want)
			}
			if got := len(res.Overlays) == 1; got != tt.overlay {
				t.Fatalf("overlays = %d", len(res.Overlays))
			}
			if tt.overlay {
				ov := res.Overlays[0]
				if ov.Bounds != (coords.Rect{MinX: 10, MinY: 10, MaxX: 30, MaxY: 20}) {
					t.Fatalf("overlay bounds = %+v", ov.Bounds)
				}
				if ov.Image.NRGBAAt(25, 15).A != 255 || ov.Image.NRGBAAt(15, 15).A != 0 {
					t.Fatal("overlay should hold only the covered half")
				}
			}
		})
	}
}

func TestModeOffLeavesEverythingVisible(t *testing.T) {
	b := &fakeBackend{}
	r := run()
	r.Verdict = textlayout.FullyOccluded
	if _, err := NewAnalyzer(b, boxMasker{}, nil).Analyze(context.Background(), page(), []*textlayout.Run{r}, params(config.VisibilityOff)); err != nil {
		t.Fatal(err)
	}
	if r.Verdict != textlayout.Visible || b.calls != 0 {
		t.Fatalf("verdict %v, %d renders", r.Verdict, b.calls)
	}
}

func TestBackendFailureDegrades(t *testing.T) {
	r := run()
	a := NewAnalyzer(&fakeBackend{err: render.ErrUnavailable}, boxMasker{}, nil)
	res, err := a.Analyze(context.Background(), page(), []*textlayout.Run{r}, params(config.VisibilityPartial))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Degraded || r.Verdict != textlayout.Visible {
		t.Fatalf("degraded=%v verdict=%v", res.Degraded, r.Verdict)
	}
}

func TestCancellationIsReturned(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := NewAnalyzer(&fakeBackend{err: context.Canceled}, boxMasker{}, nil)
	if _, err := a.Analyze(ctx, page(), []*textlayout.Run{run()}, params(config.VisibilityFull)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestVerdictsAreMonotoneInMode(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		full, bg := blank(), blank()
		for j := 0; j < 5; j++ {
			x, y := rng.Intn(90), rng.Intn(90)
			r := image.Rect(x, y, x+rng.Intn(30)+1, y+rng.Intn(30)+1)
			c := color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255}
			paint(full, r, c)
			if rng.Intn(2) == 0 {
				paint(bg, r, c)
			}
		}
		verdicts := map[int]textlayout.Verdict{}
		for _, mode := range []int{config.VisibilityOff, config.VisibilityFull, config.VisibilityPartial} {
			r := run()
			a := NewAnalyzer(&fakeBackend{full: full, bg: bg}, boxMasker{}, nil)
			if _, err := a.Analyze(context.Background(), page(), []*textlayout.Run{r}, params(mode)); err != nil {
				t.Fatal(err)
			}
			verdicts[mode] = r.Verdict
		}
		if verdicts[config.VisibilityOff] != textlayout.Visible {
			t.Fatalf("mode 0 produced %v", verdicts[config.VisibilityOff])
		}
		if verdicts[config.VisibilityFull] == textlayout.PartiallyOccluded {
			t.Fatal("mode 1 produced a partial verdict")
		}
		// mode 2 only refines what mode 1 calls visible
		if verdicts[config.VisibilityFull] == textlayout.FullyOccluded && verdicts[config.VisibilityPartial] != textlayout.FullyOccluded {
			t.Fatalf("modes disagree on full occlusion: %v", verdicts)
		}
	}
}

func TestClassificationWithSoftwareRenders(t *testing.T) {
	l := page()
	l.Fonts["f"] = font
	s := render.NewSoftware()
	box := coords.Rect{MaxX: 100, MaxY: 100}
	state := gstate.New(gstate.PageTransform(box, 1), box).Current()

	r := run()
	// the glyph is drawn, then an opaque rectangle covers all of it
	l.Append(0, interp.Glyph{FontID: "f", Glyph: 1, TextMatrix: coords.Matrix{10, 0, 0, 10, 10, 80}, Advance: 2}, state)
	var p interp.Path
	p.Rect(0, 70, 50, 30)
	state.Fill = interp.RGBA{R: 0.5, G: 0.5, B: 0.5, A: 1}
	l.Append(1, interp.PaintPath{Path: p, Fill: true}, state)

	a := NewAnalyzer(s, s, nil)
	if _, err := a.Analyze(context.Background(), l, []*textlayout.Run{r}, params(config.VisibilityFull)); err != nil {
		t.Fatal(err)
	}
	if r.Verdict != textlayout.FullyOccluded {
		t.Fatalf("verdict = %v", r.Verdict)
	}
}
