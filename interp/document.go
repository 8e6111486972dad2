package interp

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfhtml/coords"
)

var (
	ErrPasswordRequired = errors.New("interp: document requires a password")
	ErrBadPassword      = errors.New("interp: incorrect password")
	ErrPageRange        = errors.New("interp: page index out of range")
)

// Document is the interpreter's view of an opened PDF.
type Document interface {
	NumPages() int
	// Page returns the page at a 0-based index.
	Page(index int) (Page, error)
	Font(id string) (*FontResource, bool)
	Encrypted() bool
	// Authenticate unlocks an encrypted document. It returns
	// ErrPasswordRequired or ErrBadPassword on failure.
	Authenticate(ownerPassword, userPassword string) error
	// CopyAllowed reports the content-extraction permission.
	CopyAllowed() bool
	Outline() []OutlineItem
}

type PageInfo struct {
	Index    int
	MediaBox coords.Rect
	CropBox  coords.Rect
}

// Box picks the crop box when asked and present.
func (p PageInfo) Box(useCropBox bool) coords.Rect {
	if useCropBox && !p.CropBox.Empty() {
		return p.CropBox
	}
	return p.MediaBox
}

type Page interface {
	Info() PageInfo
	// Events streams the page's drawing operations in order. A non-nil
	// error from fn stops the stream and is returned.
	Events(ctx context.Context, fn func(Event) error) error
}

type FontKind string

const (
	FontTrueType FontKind = "truetype"
	FontCFF      FontKind = "cff"
	FontType1    FontKind = "type1"
	FontType3    FontKind = "type3"
)

// FontResource is one font referenced by the document.
type FontResource struct {
	ID   string
	Name string
	Kind FontKind
	// Program is the embedded font file; empty for non-embedded fonts.
	Program []byte
	// ToUnicode is the document's glyph -> text mapping.
	ToUnicode map[GlyphID][]rune
	// Encoding is the built-in glyph -> rune mapping of simple fonts.
	Encoding map[GlyphID]rune
	// Widths are advances in 1/1000 em.
	Widths  map[GlyphID]float64
	Ascent  float64
	Descent float64
}

func (f *FontResource) Embedded() bool { return len(f.Program) > 0 }

// Metrics returns ascent and descent in em, with defaults for fonts that
// carry none.
func (f *FontResource) Metrics() (ascent, descent float64) {
	ascent, descent = f.Ascent, f.Descent
	if ascent == 0 && descent == 0 {
		return 0.9, -0.2
	}
	return ascent, descent
}

type OutlineItem struct {
	Title    string
	Page     int
	Children []OutlineItem
}

// MemoryDocument is a fully materialized Document, as produced by
// DecodeTrace or built by hand.
type MemoryDocument struct {
	Pages         []*MemoryPage
	Fonts         map[string]*FontResource
	Items         []OutlineItem
	UserPassword  string
	OwnerPassword string
	IsEncrypted   bool
	NoCopy        bool

	unlocked bool
}

func (d *MemoryDocument) NumPages() int { return len(d.Pages) }

func (d *MemoryDocument) Page(index int) (Page, error) {
	if index < 0 || index >= len(d.Pages) {
		return nil, fmt.Errorf("%w: %d", ErrPageRange, index)
	}
	return d.Pages[index], nil
}

func (d *MemoryDocument) Font(id string) (*FontResource, bool) {
	f, ok := d.Fonts[id]
	return f, ok
}

func (d *MemoryDocument) Encrypted() bool { return d.IsEncrypted }

func (d *MemoryDocument) Authenticate(owner, user string) error {
	if !d.IsEncrypted || d.unlocked {
		return nil
	}
	if owner == "" && user == "" && d.UserPassword != "" {
		return ErrPasswordRequired
	}
	if (d.OwnerPassword != "" && owner == d.OwnerPassword) || user == d.UserPassword {
		d.unlocked = true
		return nil
	}
	return ErrBadPassword
}

func (d *MemoryDocument) CopyAllowed() bool { return !d.NoCopy }

func (d *MemoryDocument) Outline() []OutlineItem { return d.Items }

type MemoryPage struct {
	PageInfo
	Ops []Event
}

func (p *MemoryPage) Info() PageInfo { return p.PageInfo }

func (p *MemoryPage) Events(ctx context.Context, fn func(Event) error) error {
	for _, ev := range p.Ops {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}
