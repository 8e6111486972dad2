// Package gstate tracks the PDF graphics state across a page's event stream.
//
// Every mutation appends a new immutable snapshot to an arena and moves the
// current index; save/restore push and pop indices. A Ref taken at any point
// keeps describing the state that was active then, so events can be
// annotated with a Ref instead of a copied state.
package gstate

import (
	"errors"

	"github.com/wudi/pdfhtml/coords"
	"github.com/wudi/pdfhtml/interp"
)

// ErrStackUnderflow means a restore without matching save. The content
// stream is malformed and the conversion cannot continue.
var ErrStackUnderflow = errors.New("gstate: restore without matching save")

// State is one graphics-state snapshot. CTM maps user space to output
// (CSS pixel) space; Clip is a bounding approximation in output space.
type State struct {
	CTM       coords.Matrix
	Clip      coords.Rect
	Fill      interp.RGBA
	Stroke    interp.RGBA
	LineWidth float64
}

// Ref identifies a snapshot in the tracker's arena.
type Ref int

type Tracker struct {
	arena []State
	saved []Ref
	cur   Ref
}

// New seeds the initial state: base is the page's user-to-output transform
// and clip its visible box in output space.
func New(base coords.Matrix, clip coords.Rect) *Tracker {
	t := &Tracker{}
	t.arena = append(t.arena, State{
		CTM:       base,
		Clip:      clip,
		Fill:      interp.Black,
		Stroke:    interp.Black,
		LineWidth: 1,
	})
	return t
}

func (t *Tracker) Current() State  { return t.arena[t.cur] }
func (t *Tracker) CurrentRef() Ref { return t.cur }
func (t *Tracker) State(r Ref) State {
	return t.arena[r]
}

// Depth is the number of unmatched saves.
func (t *Tracker) Depth() int { return len(t.saved) }

// Snapshots exposes the arena, indexed by Ref. Callers must not modify it.
func (t *Tracker) Snapshots() []State { return t.arena }

func (t *Tracker) Push() { t.saved = append(t.saved, t.cur) }

func (t *Tracker) Pop() error {
	n := len(t.saved)
	if n == 0 {
		return ErrStackUnderflow
	}
	t.cur = t.saved[n-1]
	t.saved = t.saved[:n-1]
	return nil
}

// SetTransform concatenates m in front of the CTM (cm).
func (t *Tracker) SetTransform(m coords.Matrix) {
	s := t.Current()
	s.CTM = m.Multiply(s.CTM)
	t.next(s)
}

// IntersectClip narrows the clip to the output-space bounds of a user-space path.
func (t *Tracker) IntersectClip(p interp.Path) {
	s := t.Current()
	s.Clip = s.Clip.Intersect(p.Bounds(s.CTM))
	t.next(s)
}

func (t *Tracker) SetColor(target interp.ColorTarget, c interp.RGBA) {
	s := t.Current()
	if target == interp.Stroke {
		s.Stroke = c
	} else {
		s.Fill = c
	}
	t.next(s)
}

func (t *Tracker) SetLineWidth(w float64) {
	s := t.Current()
	s.LineWidth = w
	t.next(s)
}

// Apply updates the state for graphics-state events. It reports whether ev
// was one of them.
func (t *Tracker) Apply(ev interp.Event) (bool, error) {
	switch e := ev.(type) {
	case interp.Save:
		t.Push()
	case interp.Restore:
		return true, t.Pop()
	case interp.Transform:
		t.SetTransform(e.Matrix)
	case interp.Clip:
		t.IntersectClip(e.Path)
	case interp.SetColor:
		t.SetColor(e.Target, e.Color)
	case interp.SetLineWidth:
		t.SetLineWidth(e.Width)
	default:
		return false, nil
	}
	return true, nil
}

func (t *Tracker) next(s State) {
	t.arena = append(t.arena, s)
	t.cur = Ref(len(t.arena) - 1)
}

// PageTransform maps PDF user space of a page box to output space at the
// given scale: origin at the box's top-left corner, y pointing down.
func PageTransform(box coords.Rect, scale float64) coords.Matrix {
	return coords.Translate(-box.MinX, -box.MaxY).
		Multiply(coords.Scale(scale, -scale))
}
