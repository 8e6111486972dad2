// Package fonts turns per-page glyph usage into subset web fonts: a shared
// usage registry, the glyph to Unicode mapping written into the text layer,
// and the tools that produce the font files.
package fonts

import (
	"sort"
	"sync"

	"github.com/wudi/pdfhtml/interp"
)

// Record is the usage record of one font: every glyph any page placed in a
// run. Records are shared by all page workers; each guards itself.
type Record struct {
	Font *interp.FontResource

	mu     sync.Mutex
	glyphs map[interp.GlyphID]struct{}
}

func (r *Record) add(g interp.GlyphID) {
	r.mu.Lock()
	r.glyphs[g] = struct{}{}
	r.mu.Unlock()
}

// Glyphs returns the used glyph ids in ascending order.
func (r *Record) Glyphs() []interp.GlyphID {
	r.mu.Lock()
	out := make([]interp.GlyphID, 0, len(r.glyphs))
	for g := range r.glyphs {
		out = append(out, g)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Uses reports whether g was registered.
func (r *Record) Uses(g interp.GlyphID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.glyphs[g]
	return ok
}

// Registry collects glyph usage across concurrently processed pages. The map
// of records has its own lock, so registering into different fonts only
// contends while a record is first created.
type Registry struct {
	mu      sync.Mutex
	records map[string]*Record
}

func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

// Register records that glyph g of font was placed on some page.
func (r *Registry) Register(font *interp.FontResource, g interp.GlyphID) {
	if font == nil {
		return
	}
	r.record(font).add(g)
}

func (r *Registry) record(font *interp.FontResource) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[font.ID]
	if !ok {
		rec = &Record{Font: font, glyphs: make(map[interp.GlyphID]struct{})}
		r.records[font.ID] = rec
	}
	return rec
}

// Record returns the usage record of a font id.
func (r *Registry) Record(id string) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	return rec, ok
}

// Records returns all records sorted by font id.
func (r *Registry) Records() []*Record {
	r.mu.Lock()
	out := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Font.ID < out[j].Font.ID })
	return out
}
