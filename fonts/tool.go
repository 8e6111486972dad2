package fonts

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfhtml/interp"
)

// Font output formats.
const (
	FormatWOFF = "woff"
	FormatTTF  = "ttf"
)

var (
	// ErrUnsupportedOutlines means the tool cannot subset this kind of font
	// program (CFF outlines for the native tool, for instance).
	ErrUnsupportedOutlines = errors.New("fonts: unsupported font outlines")
	ErrMalformedFont       = errors.New("fonts: malformed font program")
	ErrType3               = errors.New("fonts: type3 font processing disabled")
	ErrToolFailed          = errors.New("fonts: subsetting tool failed")
)

// ProcessingError is a font that could not be produced while fallback was
// disabled. It is fatal for the conversion.
type ProcessingError struct {
	FontID string
	Err    error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("fonts: processing font %s: %v", e.FontID, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// LigatureRule asks the tool to substitute a sequence of display code
// points with one glyph.
type LigatureRule struct {
	Sequence []rune
	Glyph    interp.GlyphID
}

// SubsetRequest is everything a tool needs to produce one web font.
type SubsetRequest struct {
	FontID  string
	Name    string
	Kind    interp.FontKind
	Program []byte
	// Glyphs lists used glyph ids in ascending order.
	Glyphs []interp.GlyphID
	Format string
	// CMap maps display code points to glyphs. Display code points are
	// unique within a request.
	CMap map[rune]interp.GlyphID
	// Widths are the advances the document uses, in 1/1000 em.
	Widths        map[interp.GlyphID]float64
	Ligatures     []LigatureRule
	DropLigatures bool
	// Stretch and Squeeze scale outlines horizontally to the document
	// widths, for glyphs narrower or wider than them.
	Stretch        bool
	Squeeze        bool
	OverrideFSType bool
}

// SubsetResult is the produced font file.
type SubsetResult struct {
	Data   []byte
	Format string
	// LigaturesApplied reports that every requested ligature rule is part of
	// the produced font.
	LigaturesApplied bool
}

// Tool produces a subset web font for one request.
type Tool interface {
	Subset(ctx context.Context, req SubsetRequest) (SubsetResult, error)
}

// ToolFunc adapts a function to Tool.
type ToolFunc func(ctx context.Context, req SubsetRequest) (SubsetResult, error)

func (f ToolFunc) Subset(ctx context.Context, req SubsetRequest) (SubsetResult, error) {
	return f(ctx, req)
}
