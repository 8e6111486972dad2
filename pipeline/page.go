package pipeline

import (
	"context"
	"fmt"

	"github.com/wudi/pdfhtml/background"
	"github.com/wudi/pdfhtml/coords"
	"github.com/wudi/pdfhtml/gstate"
	"github.com/wudi/pdfhtml/htmlout"
	"github.com/wudi/pdfhtml/interp"
	"github.com/wudi/pdfhtml/observability"
	"github.com/wudi/pdfhtml/render"
	"github.com/wudi/pdfhtml/textlayout"
)

// pageResult is everything a page contributes once its worker is done.
type pageResult struct {
	index  int
	number int
	width  float64
	height float64
	layout textlayout.Layout
	bg     *background.Background
	// overlays are already placed.
	overlays []htmlout.Overlay
	fonts    map[string]bool
	degraded bool
}

// recorded is a page read once from the interpreter.
type recorded struct {
	list   *render.DisplayList
	layout textlayout.Layout
	fonts  map[string]bool
}

// record streams a page through the state tracker into a display list and,
// when layout is wanted, the text layout engine. usage receives every glyph
// placed in a run.
func (c *Converter) record(ctx context.Context, doc interp.Document, page interp.Page, usage textlayout.UsageRecorder, layout bool) (*recorded, error) {
	info := page.Info()
	box := info.Box(c.cfg.UseCropBox)
	scale := c.cfg.PageScale(box.Width(), box.Height())
	width, height := box.Width()*scale, box.Height()*scale

	tracker := gstate.New(gstate.PageTransform(box, scale), coords.Rect{MaxX: width, MaxY: height})
	list := render.NewDisplayList(info, scale, width, height)
	var engine *textlayout.Engine
	if layout {
		engine = textlayout.NewEngine(c.textParams, usage)
	}
	used := make(map[string]bool)

	seq := 0
	err := page.Events(ctx, func(ev interp.Event) error {
		applied, err := tracker.Apply(ev)
		if err != nil {
			return err
		}
		if applied {
			return nil
		}
		state := tracker.Current()
		s := seq
		seq++
		list.Append(s, ev, state)
		g, ok := ev.(interp.Glyph)
		if !ok {
			return nil
		}
		font, ok := list.Fonts[g.FontID]
		if !ok {
			if font, ok = doc.Font(g.FontID); !ok {
				return fmt.Errorf("%w: %s", ErrUnknownFont, g.FontID)
			}
			list.Fonts[g.FontID] = font
		}
		used[g.FontID] = true
		if engine != nil {
			engine.Add(textlayout.GlyphInput{Seq: s, Event: g, Font: font, State: state})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	rec := &recorded{list: list, fonts: used}
	if engine != nil {
		rec.layout = engine.Finish()
	}
	return rec, nil
}

// processPage runs one page through layout, visibility analysis and the
// background builder. The scratch directory is gone when it returns.
func (c *Converter) processPage(ctx context.Context, doc interp.Document, index int, env *convEnv) (res *pageResult, err error) {
	number := index + 1
	logger := c.logger.With(observability.Int(observability.KeyPage, number))
	ctx, span := c.tracer.StartSpan(ctx, observability.SpanPage)
	span.SetTag(observability.KeyPage, number)
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()

	page, err := doc.Page(index)
	if err != nil {
		return nil, err
	}
	rec, err := c.record(ctx, doc, page, env.registry, true)
	if err != nil {
		return nil, err
	}

	vis, err := c.analyzer.Analyze(ctx, rec.list, rec.layout.Runs, c.visParams)
	if err != nil {
		return nil, err
	}

	res = &pageResult{
		index:    index,
		number:   number,
		width:    rec.list.Width,
		height:   rec.list.Height,
		layout:   rec.layout,
		fonts:    rec.fonts,
		degraded: vis.Degraded,
	}
	for _, ov := range vis.Overlays {
		url, err := env.images.PlaceImage(ov.Image)
		if err != nil {
			return nil, err
		}
		res.overlays = append(res.overlays, htmlout.Overlay{Run: ov.Run, URL: url, Bounds: ov.Bounds})
	}

	res.bg, err = c.buildBackground(ctx, rec.list, env, nil)
	if err != nil {
		return nil, err
	}
	logger.Debug("page processed",
		observability.Int("runs", len(rec.layout.Runs)),
		observability.Int("overlays", len(res.overlays)),
		observability.String("background", res.bg.Kind.String()))
	return res, nil
}

// buildBackground runs the builder inside a fresh scratch directory.
func (c *Converter) buildBackground(ctx context.Context, list *render.DisplayList, env *convEnv, textFonts map[string]bool) (*background.Background, error) {
	scratch, err := newScratch(env.tmpRoot, list.Info.Index+1, c.cfg.TmpFileSizeLimit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if env.keepTmp {
			return
		}
		if rmErr := scratch.remove(); rmErr != nil {
			c.logger.Warn("removing scratch directory failed", observability.Error("error", rmErr))
		}
	}()
	opts := c.bgOptions
	opts.TextFonts = textFonts
	return env.builder.Build(ctx, list, scratch, opts)
}

// rerender rebuilds the background of a page whose text uses fonts that
// could not be produced, so that text is drawn into the image.
func (c *Converter) rerender(ctx context.Context, doc interp.Document, res *pageResult, failed map[string]bool, env *convEnv) error {
	page, err := doc.Page(res.index)
	if err != nil {
		return err
	}
	rec, err := c.record(ctx, doc, page, nil, false)
	if err != nil {
		return err
	}
	bg, err := c.buildBackground(ctx, rec.list, env, failed)
	if err != nil {
		return err
	}
	res.bg = bg
	return nil
}
