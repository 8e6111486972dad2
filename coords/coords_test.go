package coords

import (
	"errors"
	"math"
	"testing"
)

func TestMultiplyRowVectorOrder(t *testing.T) {
	// scale first, then translate
	m := Scale(2, 3).Multiply(Translate(10, 20))
	p := m.Transform(Point{1, 1})
	if p.X != 12 || p.Y != 23 {
		t.Fatalf("got %+v, want {12 23}", p)
	}
}

func TestInverse(t *testing.T) {
	m := Rotate(math.Pi / 6).Multiply(Translate(5, -7))
	inv, err := m.Inverse()
	if err != nil {
		t.Fatalf("inverse: %v", err)
	}
	p := inv.Transform(m.Transform(Point{3, 4}))
	if math.Abs(p.X-3) > 1e-9 || math.Abs(p.Y-4) > 1e-9 {
		t.Fatalf("round trip mismatch: %+v", p)
	}
	if _, err := Scale(0, 1).Inverse(); !errors.Is(err, ErrSingular) {
		t.Fatalf("expected ErrSingular, got %v", err)
	}
}

func TestRectTransformAndIntersect(t *testing.T) {
	r := Rect{0, 0, 10, 5}.Transform(Scale(1, -1).Multiply(Translate(0, 100)))
	if r != (Rect{0, 95, 10, 100}) {
		t.Fatalf("got %+v", r)
	}
	if got := r.Intersect(Rect{5, 0, 20, 97}); got != (Rect{5, 95, 10, 97}) {
		t.Fatalf("intersect got %+v", got)
	}
	if !r.Intersect(Rect{50, 50, 60, 60}).Empty() {
		t.Fatalf("disjoint rects should intersect to empty")
	}
}

func TestScaleFactorAndNormalize(t *testing.T) {
	m := Scale(12, 12).Multiply(Rotate(math.Pi / 2))
	if math.Abs(m.ScaleFactor()-12) > 1e-9 {
		t.Fatalf("scale factor = %v", m.ScaleFactor())
	}
	n := m.Normalize(12)
	if !n.LinearEqual(Rotate(math.Pi/2), 1e-9) {
		t.Fatalf("normalize got %v", n)
	}
}
