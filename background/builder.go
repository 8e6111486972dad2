package background

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wudi/pdfhtml/config"
	"github.com/wudi/pdfhtml/interp"
	"github.com/wudi/pdfhtml/observability"
	"github.com/wudi/pdfhtml/render"
)

type Kind int

const (
	None Kind = iota
	Raster
	SVG
)

func (k Kind) String() string {
	switch k {
	case Raster:
		return "raster"
	case SVG:
		return "svg"
	}
	return "none"
}

// Background is the placed non-text layer of one page.
type Background struct {
	Kind Kind
	URL  string
	// Width and Height are the CSS size the background is displayed at.
	Width, Height float64
	Nodes         int
	// FellBack is set when SVG emission overflowed and the page was
	// rasterized instead.
	FellBack bool
	// Degraded is set when the backend could not rasterize the page.
	Degraded bool
}

// ErrScratchFull is returned by Scratch writers once the page's temporary
// space is used up. The SVG is then abandoned as on node overflow.
var ErrScratchFull = errors.New("background: scratch space exhausted")

// Scratch is page-local temporary storage.
type Scratch interface {
	Create(name string) (io.WriteCloser, error)
	ReadFile(name string) ([]byte, error)
}

type Options struct {
	Format         string
	DPI            float64
	NodeLimit      int
	ProcessNonText bool
	// TextFonts are fonts whose glyphs belong to the background because
	// their web font could not be produced.
	TextFonts map[string]bool
	// Proof paints every glyph into a raster background too.
	Proof bool
}

func OptionsFromConfig(c config.Config) Options {
	return Options{
		Format:         strings.ToLower(c.BackgroundImageFormat),
		DPI:            c.DPI,
		NodeLimit:      c.SVGNodeCountLimit,
		ProcessNonText: c.ProcessNonText,
		Proof:          c.Proof,
	}
}

type Builder struct {
	Backend render.Backend
	Place   *Placement
	// Bitmaps places images referenced from SVG backgrounds; nil uses Place.
	Bitmaps *Placement
	Logger  observability.Logger
}

const svgScratchName = "bg.svg"

// Build produces the background of a page.
func (b *Builder) Build(ctx context.Context, list *render.DisplayList, scratch Scratch, opts Options) (*Background, error) {
	logger := observability.OrNop(b.Logger)
	bg := &Background{Width: list.Width, Height: list.Height}

	text := usesFonts(list, opts.TextFonts) || (opts.Proof && list.HasText())
	graphics := opts.ProcessNonText && list.HasGraphics()
	if !graphics && !text {
		return bg, nil
	}

	format := opts.Format
	if format == FormatSVG && !text {
		cause, err := b.buildSVG(list, scratch, opts, bg)
		if err != nil {
			return nil, err
		}
		if cause == nil {
			return bg, nil
		}
		logger.Warn("svg background abandoned, rasterizing",
			observability.Int(observability.KeyPage, list.Info.Index+1),
			observability.Int(observability.KeyNodes, opts.NodeLimit),
			observability.Error("cause", cause))
		bg.FellBack = true
		format = FormatPNG
	}
	if format == FormatSVG {
		format = FormatPNG
	}

	ropts := render.Options{DPI: opts.DPI, Text: render.NoText, NoGraphics: !opts.ProcessNonText}
	switch {
	case opts.Proof:
		ropts.Text = nil
	case text:
		ropts.Text = render.OnlyFonts(opts.TextFonts)
	}
	img, err := b.Backend.Render(ctx, list, ropts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, render.ErrUnavailable) {
			logger.Warn("background raster unavailable",
				observability.Int(observability.KeyPage, list.Info.Index+1),
				observability.Error("error", err))
			bg.Degraded = true
			return bg, nil
		}
		return nil, fmt.Errorf("background: render page %d: %w", list.Info.Index+1, err)
	}
	data, mime, ext, err := Encode(img, format)
	if err != nil {
		return nil, err
	}
	if bg.URL, err = b.Place.Place(data, mime, ext); err != nil {
		return nil, err
	}
	bg.Kind = Raster
	return bg, nil
}

// buildSVG streams the page into scratch. A non-nil cause means the node
// budget or the scratch space ran out and the page must be rasterized.
func (b *Builder) buildSVG(list *render.DisplayList, scratch Scratch, opts Options, bg *Background) (cause, err error) {
	f, err := scratch.Create(svgScratchName)
	if errors.Is(err, ErrScratchFull) {
		return err, nil
	}
	if err != nil {
		return nil, err
	}
	bitmaps := b.Bitmaps
	if bitmaps == nil {
		bitmaps = b.Place
	}
	batch := bitmaps.Batch()
	gen := NewGenerator(f, list.Width, list.Height, opts.NodeLimit, batch)
	var addErr error
	for _, it := range list.Items {
		if addErr = gen.Add(it); addErr != nil {
			break
		}
	}
	closeErr := gen.Close()
	if err := f.Close(); closeErr == nil {
		closeErr = err
	}
	switch {
	case errors.Is(addErr, ErrNodeLimit):
		return addErr, nil
	case errors.Is(addErr, ErrScratchFull):
		return addErr, nil
	case addErr != nil:
		return nil, addErr
	case errors.Is(closeErr, ErrScratchFull):
		return closeErr, nil
	case closeErr != nil:
		return nil, closeErr
	}

	data, err := scratch.ReadFile(svgScratchName)
	if err != nil {
		return nil, err
	}
	if err := batch.Commit(); err != nil {
		return nil, err
	}
	if bg.URL, err = b.Place.Place(data, "image/svg+xml", "svg"); err != nil {
		return nil, err
	}
	bg.Kind = SVG
	bg.Nodes = gen.Nodes()
	return nil, nil
}

func usesFonts(list *render.DisplayList, fonts map[string]bool) bool {
	if len(fonts) == 0 {
		return false
	}
	for _, it := range list.Items {
		if g, ok := it.Event.(interp.Glyph); ok && fonts[g.FontID] && !g.Mode.Invisible() {
			return true
		}
	}
	return false
}
