package pipeline

import (
	"errors"
	"os"
	"testing"

	"github.com/wudi/pdfhtml/background"
)

func TestScratchLimit(t *testing.T) {
	s, err := newScratch(t.TempDir(), 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	f, err := s.Create("bg.svg")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(make([]byte, 1000)); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if _, err := f.Write(make([]byte, 100)); !errors.Is(err, background.ErrScratchFull) {
		t.Fatalf("second write err = %v", err)
	}
	f.Close()
	if s.Used() != 1000 {
		t.Fatalf("used = %d", s.Used())
	}
	if err := s.remove(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(s.dir); !os.IsNotExist(err) {
		t.Fatal("scratch dir survived remove")
	}
}

func TestScratchUnlimited(t *testing.T) {
	s, err := newScratch(t.TempDir(), 1, -1)
	if err != nil {
		t.Fatal(err)
	}
	f, err := s.Create("x")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.Write(make([]byte, 1<<16)); err != nil {
		t.Fatal(err)
	}
}
