// Package pipeline converts a document page by page and assembles the HTML
// output. Pages are processed in parallel; fonts are finalized once every
// page has registered its glyphs; pages are emitted in order.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/wudi/pdfhtml/background"
	"github.com/wudi/pdfhtml/config"
	"github.com/wudi/pdfhtml/fonts"
	"github.com/wudi/pdfhtml/htmlout"
	"github.com/wudi/pdfhtml/interp"
	"github.com/wudi/pdfhtml/observability"
	"github.com/wudi/pdfhtml/render"
	"github.com/wudi/pdfhtml/textlayout"
	"github.com/wudi/pdfhtml/visibility"
)

// Converter runs conversions with one parameter set. It is safe for
// concurrent use; every Convert call has its own state.
type Converter struct {
	cfg     config.Config
	tool    fonts.Tool
	backend render.Backend
	masker  render.Masker
	logger  observability.Logger
	tracer  observability.Tracer
	title   string

	analyzer   *visibility.Analyzer
	textParams textlayout.Params
	visParams  visibility.Params
	bgOptions  background.Options
}

// Option customizes a Converter.
type Option func(*Converter)

// WithTool replaces the font subsetting tool.
func WithTool(t fonts.Tool) Option { return func(c *Converter) { c.tool = t } }

// WithBackend replaces the rendering backend. m rasterizes glyph masks for
// visibility analysis; nil keeps the software masker.
func WithBackend(b render.Backend, m render.Masker) Option {
	return func(c *Converter) {
		c.backend = b
		if m != nil {
			c.masker = m
		}
	}
}

// WithTitle sets the HTML document title.
func WithTitle(title string) Option { return func(c *Converter) { c.title = title } }

func WithLogger(l observability.Logger) Option {
	return func(c *Converter) { c.logger = observability.OrNop(l) }
}

// WithTracer opens a span per page and one around font finalization.
func WithTracer(t observability.Tracer) Option {
	return func(c *Converter) {
		if t != nil {
			c.tracer = t
		}
	}
}

// New validates cfg and builds a converter. The defaults are the font tool
// cfg.FontTool names and the software renderer.
func New(cfg config.Config, opts ...Option) (*Converter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, wrap(err, 0)
	}
	sw := render.NewSoftware()
	c := &Converter{
		cfg:     cfg,
		tool:    defaultTool(cfg),
		backend: sw,
		masker:  sw,
		logger:  observability.NopLogger{},
		tracer:  observability.NopTracer(),
	}
	for _, o := range opts {
		o(c)
	}
	c.analyzer = visibility.NewAnalyzer(c.backend, c.masker, c.logger)
	c.textParams = textlayout.ParamsFromConfig(cfg)
	c.visParams = visibility.ParamsFromConfig(cfg)
	c.bgOptions = background.OptionsFromConfig(cfg)
	return c, nil
}

func defaultTool(cfg config.Config) fonts.Tool {
	if cfg.FontTool == config.FontToolPyftsubset {
		return fonts.NewPyftsubset(cfg.TmpDir)
	}
	return fonts.NativeTool{}
}

// Result summarizes a finished conversion.
type Result struct {
	Pages int
	Fonts []*fonts.Output
	// FailedFonts were rendered into page backgrounds.
	FailedFonts []string
	// Degraded lists pages whose visibility analysis or background raster
	// could not run.
	Degraded []int
	// FellBack lists pages whose SVG background was rasterized.
	FellBack []int
}

// convEnv is the state shared by the page workers of one conversion.
type convEnv struct {
	registry *fonts.Registry
	builder  *background.Builder
	images   *background.Placement
	tmpRoot  string
	keepTmp  bool
}

// Convert writes doc as HTML into sink. Page-local problems are logged and
// absorbed; the returned error is a *ConversionError.
func (c *Converter) Convert(ctx context.Context, doc interp.Document, sink htmlout.Sink) (*Result, error) {
	first, last, err := c.prepare(doc)
	if err != nil {
		return nil, wrap(err, 0)
	}

	env := &convEnv{
		registry: fonts.NewRegistry(),
		images:   background.NewPlacement(c.cfg.EmbedImage, sink),
		keepTmp:  !c.cfg.CleanTmp || c.cfg.Debug,
	}
	env.builder = &background.Builder{
		Backend: c.backend,
		Place:   env.images,
		Bitmaps: background.NewPlacement(c.cfg.SVGEmbedBitmap, sink),
		Logger:  c.logger,
	}
	if env.tmpRoot, err = os.MkdirTemp(c.cfg.TmpDir, "pdfhtml-"); err != nil {
		return nil, wrap(fmt.Errorf("pipeline: scratch root: %w", err), 0)
	}
	defer func() {
		if env.keepTmp {
			c.logger.Info("keeping temporary files", observability.String("dir", env.tmpRoot))
			return
		}
		os.RemoveAll(env.tmpRoot)
	}()

	results, err := c.processPages(ctx, doc, first, last, env)
	if err != nil {
		return nil, err
	}

	fctx, span := c.tracer.StartSpan(ctx, observability.SpanFonts)
	set, err := fonts.Finalize(fctx, env.registry, c.tool, fonts.OptionsFromConfig(c.cfg, c.logger))
	if err != nil {
		span.SetError(err)
		span.Finish()
		return nil, wrap(err, 0)
	}
	span.SetTag("fonts", len(set.Fonts()))
	span.Finish()
	failed := set.Failed()
	if len(failed) > 0 {
		for _, res := range results {
			if !intersects(res.fonts, failed) {
				continue
			}
			c.logger.Info("rendering text of failed fonts into background",
				observability.Int(observability.KeyPage, res.number))
			if err := c.rerender(ctx, doc, res, failed, env); err != nil {
				return nil, wrap(err, res.number)
			}
		}
	}

	w := htmlout.NewWriter(sink, set, htmlout.OptionsFromConfig(c.cfg, c.title))
	out := &Result{Pages: len(results), Fonts: set.Fonts()}
	for _, res := range results {
		page := htmlout.Page{
			Number:             res.number,
			Width:              res.width,
			Height:             res.height,
			Layout:             res.layout,
			FontSizeMultiplier: c.cfg.FontSizeMultiplier,
			Background:         res.bg,
			Overlays:           res.overlays,
		}
		if err := w.WritePage(page); err != nil {
			return nil, wrap(err, res.number)
		}
		if res.degraded || (res.bg != nil && res.bg.Degraded) {
			out.Degraded = append(out.Degraded, res.number)
		}
		if res.bg != nil && res.bg.FellBack {
			out.FellBack = append(out.FellBack, res.number)
		}
	}
	if err := w.Finish(doc.Outline()); err != nil {
		return nil, wrap(err, 0)
	}
	for _, o := range out.Fonts {
		if o.Failed {
			out.FailedFonts = append(out.FailedFonts, o.ID)
		}
	}
	c.logger.Info("conversion finished",
		observability.Int("pages", out.Pages),
		observability.Int("fonts", len(out.Fonts)),
		observability.Int("failed_fonts", len(out.FailedFonts)))
	return out, nil
}

// prepare checks access to the document and resolves the page range to
// 0-based indices.
func (c *Converter) prepare(doc interp.Document) (first, last int, err error) {
	if doc.Encrypted() {
		if err := doc.Authenticate(c.cfg.OwnerPassword, c.cfg.UserPassword); err != nil {
			return 0, 0, err
		}
	}
	if c.cfg.DRM && !doc.CopyAllowed() {
		return 0, 0, ErrCopyProtected
	}
	n := doc.NumPages()
	last = c.cfg.LastPage
	if last == 0 || last > n {
		last = n
	}
	if c.cfg.FirstPage > last {
		return 0, 0, fmt.Errorf("%w: first page %d, document has %d", ErrNoPages, c.cfg.FirstPage, n)
	}
	return c.cfg.FirstPage - 1, last - 1, nil
}

// processPages fans pages out to workers. The first failure cancels the
// others; results come back in page order.
func (c *Converter) processPages(ctx context.Context, doc interp.Document, first, last int, env *convEnv) ([]*pageResult, error) {
	count := last - first + 1
	workers := c.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > count {
		workers = count
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]*pageResult, count)
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}
	jobs := make(chan int, count)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				res, err := c.processPage(ctx, doc, i, env)
				if err != nil {
					fail(wrap(err, i+1))
					continue
				}
				results[i-first] = res
			}
		}()
	}
	for i := first; i <= last; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, wrap(err, 0)
	}
	return results, nil
}

func intersects(a, b map[string]bool) bool {
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}
