package fonts

import (
	"sync"
	"testing"

	"github.com/wudi/pdfhtml/interp"
)

func TestRegistryConcurrentRegistration(t *testing.T) {
	reg := NewRegistry()
	a := &interp.FontResource{ID: "f2"}
	b := &interp.FontResource{ID: "f1"}

	var wg sync.WaitGroup
	for page := 0; page < 8; page++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			for g := 0; g < 50; g++ {
				reg.Register(a, interp.GlyphID(g))
				reg.Register(b, interp.GlyphID(page))
			}
		}(page)
	}
	wg.Wait()

	recs := reg.Records()
	if len(recs) != 2 || recs[0].Font.ID != "f1" || recs[1].Font.ID != "f2" {
		t.Fatalf("records not sorted by id: %v", recs)
	}
	if got := recs[1].Glyphs(); len(got) != 50 || got[0] != 0 || got[49] != 49 {
		t.Fatalf("font f2 glyphs = %v", got)
	}
	if got := recs[0].Glyphs(); len(got) != 8 {
		t.Fatalf("font f1 glyphs = %v", got)
	}
	if !recs[0].Uses(7) || recs[0].Uses(8) {
		t.Fatal("Uses disagrees with registration")
	}
}

func TestRegistryIgnoresNilFont(t *testing.T) {
	reg := NewRegistry()
	reg.Register(nil, 1)
	if len(reg.Records()) != 0 {
		t.Fatal("nil font should not create a record")
	}
}
