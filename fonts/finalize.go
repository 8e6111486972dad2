package fonts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/wudi/pdfhtml/config"
	"github.com/wudi/pdfhtml/interp"
	"github.com/wudi/pdfhtml/observability"
)

// Options are the font-related conversion parameters.
type Options struct {
	Format         string
	ToUnicode      int
	Decompose      bool
	LigaturesOff   bool
	AutoHint       bool
	HintTool       string
	Stretch        bool
	Squeeze        bool
	OverrideFSType bool
	ProcessType3   bool
	Fallback       bool
	// TmpDir and Runner serve the hinting program.
	TmpDir string
	Runner CommandRunner
	Logger observability.Logger
}

// OptionsFromConfig extracts the font options of a conversion.
func OptionsFromConfig(c config.Config, logger observability.Logger) Options {
	decompose, off := c.LigatureMode()
	return Options{
		Format:         c.FontFormat,
		ToUnicode:      c.ToUnicode,
		Decompose:      decompose,
		LigaturesOff:   off,
		AutoHint:       c.AutoHint,
		HintTool:       c.ExternalHintTool,
		Stretch:        c.StretchNarrowGlyph,
		Squeeze:        c.SqueezeWideGlyph,
		OverrideFSType: c.OverrideFSType,
		ProcessType3:   c.ProcessType3,
		Fallback:       c.Fallback,
		TmpDir:         c.TmpDir,
		Logger:         logger,
	}
}

// Output is the finalized form of one font.
type Output struct {
	ID   string
	Font *interp.FontResource
	// Data is the subset font file; nil for local (non-embedded) fonts and
	// failed fonts.
	Data    []byte
	Format  string
	Mapping *Mapping
	// Local marks fonts referenced by name instead of embedded.
	Local bool
	// Failed fonts are rendered into the page background.
	Failed bool
	Err    error
	// NoLigatures asks the stylesheet to disable ligature formation.
	NoLigatures bool

	text map[interp.GlyphID]string
}

// Text is what the HTML text layer writes for glyph g. Subset fonts get the
// display code point their rebuilt cmap answers to; local and failed fonts
// are drawn by the browser or not at all, so they get the glyph's Unicode.
func (o *Output) Text(g interp.GlyphID) string {
	if s, ok := o.text[g]; ok {
		return s
	}
	if o.Local || o.Failed {
		return unicodeText(o.Mapping.Text[g])
	}
	if r, ok := o.Mapping.Display[g]; ok {
		return string(r)
	}
	return ""
}

func unicodeText(text []rune) string {
	var b strings.Builder
	for _, r := range text {
		if usable(r) || r == ' ' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Set is the result of font finalization.
type Set struct {
	fonts map[string]*Output
	order []string
}

// NewSet assembles a set from finished outputs.
func NewSet(outputs ...*Output) *Set {
	s := &Set{fonts: make(map[string]*Output, len(outputs))}
	for _, o := range outputs {
		if _, dup := s.fonts[o.ID]; !dup {
			s.order = append(s.order, o.ID)
		}
		s.fonts[o.ID] = o
	}
	sort.Strings(s.order)
	return s
}

func (s *Set) Font(id string) (*Output, bool) {
	o, ok := s.fonts[id]
	return o, ok
}

// Fonts returns outputs sorted by font id.
func (s *Set) Fonts() []*Output {
	out := make([]*Output, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.fonts[id])
	}
	return out
}

// Failed returns the ids of fonts whose text falls back to the background.
func (s *Set) Failed() map[string]bool {
	out := make(map[string]bool)
	for id, o := range s.fonts {
		if o.Failed {
			out[id] = true
		}
	}
	return out
}

// Finalize produces one web font per usage record. It runs once, after
// every page has registered its glyphs. A tool failure marks the font failed
// when fallback is on and aborts with a ProcessingError otherwise.
func Finalize(ctx context.Context, reg *Registry, tool Tool, opts Options) (*Set, error) {
	logger := observability.OrNop(opts.Logger)
	set := &Set{fonts: make(map[string]*Output)}

	for _, rec := range reg.Records() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := finalizeOne(ctx, rec, tool, opts, logger)
		if err != nil {
			if !opts.Fallback || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, &ProcessingError{FontID: rec.Font.ID, Err: err}
			}
			logger.Warn("font processing failed, text falls back to background",
				observability.String(observability.KeyFont, rec.Font.ID),
				observability.Error("error", err))
			out.Failed = true
			out.Err = err
		}
		set.fonts[rec.Font.ID] = out
		set.order = append(set.order, rec.Font.ID)
	}
	sort.Strings(set.order)
	return set, nil
}

func finalizeOne(ctx context.Context, rec *Record, tool Tool, opts Options, logger observability.Logger) (*Output, error) {
	font := rec.Font
	glyphs := rec.Glyphs()
	mapping := BuildMapping(font, glyphs, opts.ToUnicode)
	out := &Output{ID: font.ID, Font: font, Mapping: mapping, NoLigatures: opts.LigaturesOff}

	if font.Kind == interp.FontType3 && !opts.ProcessType3 {
		return out, ErrType3
	}
	if !font.Embedded() {
		out.Local = true
		return out, nil
	}

	req := SubsetRequest{
		FontID:         font.ID,
		Name:           font.Name,
		Kind:           font.Kind,
		Program:        font.Program,
		Glyphs:         glyphs,
		Format:         opts.Format,
		CMap:           mapping.CMap(),
		Widths:         usedWidths(font, glyphs),
		DropLigatures:  opts.LigaturesOff,
		Stretch:        opts.Stretch,
		Squeeze:        opts.Squeeze,
		OverrideFSType: opts.OverrideFSType,
	}
	if opts.Decompose && !opts.LigaturesOff {
		req.Ligatures = ligatureRules(mapping)
	}

	want := req.Format
	hinter, hinting := opts.hinter()
	if hinting {
		req.Format = FormatTTF
	}
	res, err := tool.Subset(ctx, req)
	if err != nil {
		return out, err
	}
	if len(res.Data) == 0 {
		return out, fmt.Errorf("%w: empty output", ErrToolFailed)
	}
	if res.Format == "" {
		res.Format = req.Format
	}
	if hinting && res.Format == FormatTTF {
		// an unhinted font is still usable
		if hinted, err := hinter.Hint(ctx, res.Data); err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			logger.Warn("font hinting failed, keeping unhinted font",
				observability.String(observability.KeyFont, font.ID),
				observability.Error("error", err))
		} else {
			res.Data = hinted
		}
		if want != FormatTTF {
			if res.Data, err = wrapWOFF(res.Data); err != nil {
				return out, err
			}
			res.Format = FormatWOFF
		}
	}
	out.Data = res.Data
	out.Format = res.Format
	if len(req.Ligatures) > 0 && res.LigaturesApplied {
		out.text = make(map[interp.GlyphID]string, len(req.Ligatures))
		for _, rule := range req.Ligatures {
			out.text[rule.Glyph] = string(rule.Sequence)
		}
	}
	return out, nil
}

func usedWidths(font *interp.FontResource, glyphs []interp.GlyphID) map[interp.GlyphID]float64 {
	out := make(map[interp.GlyphID]float64, len(glyphs))
	for _, g := range glyphs {
		if w, ok := font.Widths[g]; ok {
			out[g] = w
		}
	}
	return out
}

func ligatureRules(m *Mapping) []LigatureRule {
	rules := make([]LigatureRule, 0, len(m.Ligatures))
	for g, parts := range m.Ligatures {
		rules = append(rules, LigatureRule{Sequence: parts, Glyph: g})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Glyph < rules[j].Glyph })
	return rules
}
