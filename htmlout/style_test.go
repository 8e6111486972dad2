package htmlout

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStyleTableFirstUseOrder(t *testing.T) {
	st := NewStyleTable()
	steps := []struct {
		kind, key string
		class     string
		fresh     bool
	}{
		{KindSize, "12", "fs0", true},
		{KindSize, "10", "fs1", true},
		{KindColor, "#000", "fc0", true},
		{KindSize, "12", "fs0", false},
	}
	for _, s := range steps {
		c, fresh := st.Class(s.kind, s.key, "x:"+s.key)
		if c != s.class || fresh != s.fresh {
			t.Fatalf("Class(%s,%s) = %s,%v want %s,%v", s.kind, s.key, c, fresh, s.class, s.fresh)
		}
	}
	if n := len(st.Rules()); n != 3 {
		t.Fatalf("rules = %d, want 3", n)
	}
}

func TestNumberFormatting(t *testing.T) {
	tests := []struct {
		v    float64
		prec int
		want string
	}{
		{1.23456, 3, "1.235"},
		{2, 3, "2"},
		{-0.0001, 3, "0"},
		{1.23456, -1, "1.23456"},
	}
	for _, tt := range tests {
		if got := num(tt.v, tt.prec); got != tt.want {
			t.Errorf("num(%v, %d) = %q, want %q", tt.v, tt.prec, got, tt.want)
		}
	}
	if px(0, 3) != "0" || px(3, 3) != "3px" {
		t.Fatal("px formatting")
	}
}

func TestDirSink(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDirSink(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.WriteAsset("fonts/a.woff", []byte("one")); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "fonts", "a.woff"))
	if err != nil || string(got) != "one" {
		t.Fatalf("read back %q, %v", got, err)
	}
	for _, name := range []string{"", "../x", "/abs"} {
		if err := s.WriteAsset(name, nil); err == nil {
			t.Errorf("WriteAsset(%q) accepted", name)
		}
	}
}
