package fonts

import (
	"testing"

	"github.com/wudi/pdfhtml/config"
	"github.com/wudi/pdfhtml/interp"
)

func TestBuildMappingUniqueDisplay(t *testing.T) {
	font := &interp.FontResource{
		ID: "f",
		ToUnicode: map[interp.GlyphID][]rune{
			1: {'a'},
			2: {'a'},  // duplicate meaning
			3: {0x01}, // control character
			4: {'f', 'i'},
		},
	}
	m := BuildMapping(font, []interp.GlyphID{1, 2, 3, 4, 5}, config.ToUnicodeAuto)

	if m.Display[1] != 'a' {
		t.Fatalf("glyph 1 display = %U", m.Display[1])
	}
	seen := make(map[rune]interp.GlyphID)
	for g, r := range m.Display {
		if prev, ok := seen[r]; ok {
			t.Fatalf("glyphs %d and %d share %U", prev, g, r)
		}
		seen[r] = g
	}
	for _, g := range []interp.GlyphID{2, 3, 4, 5} {
		if r := m.Display[g]; r < puaStart || r > puaEnd {
			t.Errorf("glyph %d display %U not in the private use area", g, r)
		}
	}
	if string(m.Ligatures[4]) != "fi" {
		t.Fatalf("ligature parts = %q", string(m.Ligatures[4]))
	}
	if len(m.CMap()) != 5 {
		t.Fatalf("cmap = %v", m.CMap())
	}
}

func TestBuildMappingForceKeepsToUnicode(t *testing.T) {
	font := &interp.FontResource{ToUnicode: map[interp.GlyphID][]rune{1: {'x'}, 2: {'x'}}}
	m := BuildMapping(font, []interp.GlyphID{1, 2}, config.ToUnicodeForce)
	if m.Display[1] != 'x' || m.Display[2] != 'x' {
		t.Fatalf("force mode display = %v", m.Display)
	}
	if m.CMap()['x'] != 1 {
		t.Fatalf("cmap should keep the lowest glyph, got %v", m.CMap())
	}
}

func TestBuildMappingIgnoreUsesEncoding(t *testing.T) {
	font := &interp.FontResource{
		ToUnicode: map[interp.GlyphID][]rune{1: {'z'}},
		Encoding:  map[interp.GlyphID]rune{1: 'q'},
	}
	if got := BuildMapping(font, []interp.GlyphID{1}, config.ToUnicodeIgnore).Display[1]; got != 'q' {
		t.Fatalf("ignore mode display = %U, want q", got)
	}
	if got := BuildMapping(font, []interp.GlyphID{1}, config.ToUnicodeAuto).Display[1]; got != 'z' {
		t.Fatalf("auto mode display = %U, want z", got)
	}
}

func TestLigatureParts(t *testing.T) {
	tests := []struct {
		in   []rune
		want string
	}{
		{[]rune{0xFB01}, "fi"},
		{[]rune{0xFB03}, "ffi"},
		{[]rune{'f', 'l'}, "fl"},
		{[]rune{'a'}, ""},
		{[]rune{0x00BD}, ""}, // vulgar fraction one half
		{nil, ""},
	}
	for _, tt := range tests {
		if got := string(ligatureParts(tt.in)); got != tt.want {
			t.Errorf("ligatureParts(%q) = %q, want %q", string(tt.in), got, tt.want)
		}
	}
}

func TestAdvancePUAWrapsToSupplementaryArea(t *testing.T) {
	if got := advancePUA(puaEnd); got != puaAStart {
		t.Fatalf("advancePUA(end) = %U", got)
	}
}
