package fonts

import (
	"bytes"
	"unicode"
	"unicode/utf8"

	gofont "github.com/go-text/typesetting/font"
	"golang.org/x/text/unicode/norm"

	"github.com/wudi/pdfhtml/config"
	"github.com/wudi/pdfhtml/interp"
)

// Private Use Area range used for glyphs without a usable code point.
const (
	puaStart rune = 0xE000
	puaEnd   rune = 0xF8FF
	// supplementary PUA-A, used once the BMP area is exhausted
	puaAStart rune = 0xF0000
	puaAEnd   rune = 0xFFFFD
)

// Mapping is the Unicode side of one font: which code point stands for each
// used glyph in the HTML text layer and what text the glyph means.
type Mapping struct {
	// Display is the code point written into the HTML for each glyph.
	Display map[interp.GlyphID]rune
	// Text is the glyph's meaning, used for ligature decomposition.
	Text map[interp.GlyphID][]rune
	// Ligatures are glyphs whose text is more than one character.
	Ligatures map[interp.GlyphID][]rune
}

// CMap inverts Display.
func (m *Mapping) CMap() map[rune]interp.GlyphID {
	out := make(map[rune]interp.GlyphID, len(m.Display))
	for g, r := range m.Display {
		if prev, ok := out[r]; !ok || g < prev {
			out[r] = g
		}
	}
	return out
}

// BuildMapping assigns display code points to glyphs, visiting them in
// ascending order so the result is deterministic. toUnicode is one of the
// config.ToUnicode modes.
func BuildMapping(font *interp.FontResource, glyphs []interp.GlyphID, toUnicode int) *Mapping {
	m := &Mapping{
		Display:   make(map[interp.GlyphID]rune, len(glyphs)),
		Text:      make(map[interp.GlyphID][]rune, len(glyphs)),
		Ligatures: make(map[interp.GlyphID][]rune),
	}
	var builtin map[interp.GlyphID]rune
	if toUnicode == config.ToUnicodeIgnore || len(font.ToUnicode) == 0 {
		builtin = BuiltinUnicode(font)
	}

	taken := make(map[rune]bool, len(glyphs))
	pua := puaStart
	nextPUA := func() rune {
		for taken[pua] {
			pua = advancePUA(pua)
		}
		r := pua
		pua = advancePUA(pua)
		return r
	}

	for _, g := range glyphs {
		text := glyphText(font, builtin, g, toUnicode)
		m.Text[g] = text
		if parts := ligatureParts(text); parts != nil {
			m.Ligatures[g] = parts
		}

		var display rune = -1
		if len(text) == 1 && usable(text[0]) {
			if toUnicode == config.ToUnicodeForce || !taken[text[0]] {
				display = text[0]
			}
		}
		if display < 0 {
			display = nextPUA()
		}
		taken[display] = true
		m.Display[g] = display
	}
	return m
}

func glyphText(font *interp.FontResource, builtin map[interp.GlyphID]rune, g interp.GlyphID, mode int) []rune {
	if mode != config.ToUnicodeIgnore {
		if u, ok := font.ToUnicode[g]; ok && len(u) > 0 {
			return u
		}
	}
	if r, ok := font.Encoding[g]; ok {
		return []rune{r}
	}
	if r, ok := builtin[g]; ok {
		return []rune{r}
	}
	return nil
}

// ligatureParts returns the constituents of a ligature glyph's text, or nil.
// Multi-character mappings are ligatures as they are; a single compatibility
// character (U+FB01 and friends) is one when its NFKD form has several
// letters.
func ligatureParts(text []rune) []rune {
	if len(text) > 1 {
		return text
	}
	if len(text) == 0 {
		return nil
	}
	d := []rune(norm.NFKD.String(string(text)))
	if len(d) < 2 {
		return nil
	}
	for _, r := range d {
		if !unicode.IsLetter(r) {
			return nil
		}
	}
	return d
}

// usable reports code points that survive being written into HTML and
// looked up in a font cmap.
func usable(r rune) bool {
	if r < 0x20 || (r >= 0x7F && r < 0xA0) || r == utf8.RuneError {
		return false
	}
	if r >= 0xD800 && r <= 0xDFFF {
		return false
	}
	if r == 0xAD || r == 0xFEFF {
		return false
	}
	return unicode.IsPrint(r) || unicode.Is(unicode.Co, r)
}

func advancePUA(r rune) rune {
	switch {
	case r == puaEnd:
		return puaAStart
	case r >= puaAEnd:
		return puaAStart
	default:
		return r + 1
	}
}

// BuiltinUnicode inverts the cmap of an embedded TrueType or OpenType
// program. It returns nil for anything that does not parse.
func BuiltinUnicode(font *interp.FontResource) map[interp.GlyphID]rune {
	if font == nil || !font.Embedded() || font.Kind == interp.FontType3 {
		return nil
	}
	face, err := gofont.ParseTTF(bytes.NewReader(font.Program))
	if err != nil || face.Cmap == nil {
		return nil
	}
	out := make(map[interp.GlyphID]rune)
	it := face.Cmap.Iter()
	for it.Next() {
		r, gid := it.Char()
		g := interp.GlyphID(gid)
		if prev, ok := out[g]; !ok || r < prev {
			out[g] = r
		}
	}
	return out
}
