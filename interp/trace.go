package interp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strconv"

	"github.com/wudi/pdfhtml/coords"
)

var ErrTrace = errors.New("interp: malformed trace")

// A trace is a recorded interpreter session serialized as JSON. It lets the
// pipeline run without linking a PDF parser.
type traceDoc struct {
	Encrypted     bool          `json:"encrypted"`
	UserPassword  string        `json:"userPassword"`
	OwnerPassword string        `json:"ownerPassword"`
	NoCopy        bool          `json:"noCopy"`
	Fonts         []traceFont   `json:"fonts"`
	Outline       []OutlineItem `json:"outline"`
	Pages         []tracePage   `json:"pages"`
}

type traceFont struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Kind      FontKind           `json:"kind"`
	Program   []byte             `json:"program"`
	ToUnicode map[string]string  `json:"toUnicode"`
	Encoding  map[string]string  `json:"encoding"`
	Widths    map[string]float64 `json:"widths"`
	Ascent    float64            `json:"ascent"`
	Descent   float64            `json:"descent"`
}

type tracePage struct {
	MediaBox [4]float64   `json:"mediaBox"`
	CropBox  *[4]float64  `json:"cropBox"`
	Events   []traceEvent `json:"events"`
}

type traceEvent struct {
	Op      string      `json:"op"`
	M       *[6]float64 `json:"m"`
	C       []float64   `json:"c"`
	V       float64     `json:"v"`
	Font    string      `json:"font"`
	GID     uint32      `json:"gid"`
	Size    float64     `json:"size"`
	Adv     float64     `json:"adv"`
	Mode    int         `json:"mode"`
	Path    [][]any     `json:"path"`
	Fill    bool        `json:"fill"`
	Stroke  bool        `json:"stroke"`
	EvenOdd bool        `json:"evenOdd"`
	Name    string      `json:"name"`
	Data    []byte      `json:"data"`
	BBox    *[4]float64 `json:"bbox"`
}

// DecodeTrace reads a JSON trace into a MemoryDocument.
func DecodeTrace(r io.Reader) (*MemoryDocument, error) {
	var td traceDoc
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&td); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTrace, err)
	}

	doc := &MemoryDocument{
		Fonts:         make(map[string]*FontResource, len(td.Fonts)),
		Items:         td.Outline,
		UserPassword:  td.UserPassword,
		OwnerPassword: td.OwnerPassword,
		IsEncrypted:   td.Encrypted,
		NoCopy:        td.NoCopy,
	}
	for _, tf := range td.Fonts {
		f, err := tf.resource()
		if err != nil {
			return nil, err
		}
		doc.Fonts[f.ID] = f
	}
	for i, tp := range td.Pages {
		p := &MemoryPage{PageInfo: PageInfo{Index: i, MediaBox: box(tp.MediaBox)}}
		if tp.CropBox != nil {
			p.CropBox = box(*tp.CropBox)
		}
		for j, te := range tp.Events {
			ev, err := te.event()
			if err != nil {
				return nil, fmt.Errorf("%w: page %d event %d: %v", ErrTrace, i+1, j, err)
			}
			p.Ops = append(p.Ops, ev)
		}
		doc.Pages = append(doc.Pages, p)
	}
	return doc, nil
}

func (tf traceFont) resource() (*FontResource, error) {
	f := &FontResource{
		ID:      tf.ID,
		Name:    tf.Name,
		Kind:    tf.Kind,
		Program: tf.Program,
		Ascent:  tf.Ascent,
		Descent: tf.Descent,
	}
	if f.ID == "" {
		return nil, fmt.Errorf("%w: font without id", ErrTrace)
	}
	if len(tf.ToUnicode) > 0 {
		f.ToUnicode = make(map[GlyphID][]rune, len(tf.ToUnicode))
		for k, v := range tf.ToUnicode {
			gid, err := glyphKey(k)
			if err != nil {
				return nil, err
			}
			f.ToUnicode[gid] = []rune(v)
		}
	}
	if len(tf.Encoding) > 0 {
		f.Encoding = make(map[GlyphID]rune, len(tf.Encoding))
		for k, v := range tf.Encoding {
			gid, err := glyphKey(k)
			if err != nil {
				return nil, err
			}
			if rs := []rune(v); len(rs) > 0 {
				f.Encoding[gid] = rs[0]
			}
		}
	}
	if len(tf.Widths) > 0 {
		f.Widths = make(map[GlyphID]float64, len(tf.Widths))
		for k, v := range tf.Widths {
			gid, err := glyphKey(k)
			if err != nil {
				return nil, err
			}
			f.Widths[gid] = v
		}
	}
	return f, nil
}

func glyphKey(k string) (GlyphID, error) {
	n, err := strconv.ParseUint(k, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: glyph key %q", ErrTrace, k)
	}
	return GlyphID(n), nil
}

func (te traceEvent) event() (Event, error) {
	switch te.Op {
	case "q":
		return Save{}, nil
	case "Q":
		return Restore{}, nil
	case "cm":
		if te.M == nil {
			return nil, errors.New("cm without matrix")
		}
		return Transform{Matrix: coords.Matrix(*te.M)}, nil
	case "rg", "RG":
		c, err := rgba(te.C)
		if err != nil {
			return nil, err
		}
		target := Fill
		if te.Op == "RG" {
			target = Stroke
		}
		return SetColor{Target: target, Color: c}, nil
	case "w":
		return SetLineWidth{Width: te.V}, nil
	case "glyph":
		if te.M == nil {
			return nil, errors.New("glyph without text matrix")
		}
		return Glyph{
			FontID:     te.Font,
			Glyph:      GlyphID(te.GID),
			Size:       te.Size,
			TextMatrix: coords.Matrix(*te.M),
			Advance:    te.Adv,
			Mode:       TextRenderMode(te.Mode),
		}, nil
	case "path":
		p, err := tracePath(te.Path)
		if err != nil {
			return nil, err
		}
		return PaintPath{Path: p, Fill: te.Fill, Stroke: te.Stroke, EvenOdd: te.EvenOdd}, nil
	case "clip":
		p, err := tracePath(te.Path)
		if err != nil {
			return nil, err
		}
		return Clip{Path: p, EvenOdd: te.EvenOdd}, nil
	case "image":
		img, _, err := image.Decode(bytes.NewReader(te.Data))
		if err != nil {
			return nil, fmt.Errorf("image %s: %v", te.Name, err)
		}
		return DrawImage{Name: te.Name, Image: img}, nil
	case "sh":
		if te.BBox == nil {
			return nil, errors.New("shading without bbox")
		}
		c, err := rgba(te.C)
		if err != nil {
			return nil, err
		}
		return Shade{Bounds: box(*te.BBox), Color: c}, nil
	}
	return nil, fmt.Errorf("unknown op %q", te.Op)
}

func rgba(c []float64) (RGBA, error) {
	switch len(c) {
	case 1:
		return RGBA{c[0], c[0], c[0], 1}, nil
	case 3:
		return RGBA{c[0], c[1], c[2], 1}, nil
	case 4:
		return RGBA{c[0], c[1], c[2], c[3]}, nil
	}
	return RGBA{}, fmt.Errorf("colour needs 1, 3 or 4 components, got %d", len(c))
}

// tracePath decodes [["m",x,y],["l",x,y],["c",x1,y1,x2,y2,x3,y3],["re",x,y,w,h],["h"]].
func tracePath(items [][]any) (Path, error) {
	var p Path
	for _, it := range items {
		if len(it) == 0 {
			return p, errors.New("empty path element")
		}
		op, _ := it[0].(string)
		nums := make([]float64, 0, len(it)-1)
		for _, v := range it[1:] {
			f, ok := v.(float64)
			if !ok {
				return p, fmt.Errorf("path %s: non-numeric operand", op)
			}
			nums = append(nums, f)
		}
		want := map[string]int{"m": 2, "l": 2, "c": 6, "re": 4, "h": 0}
		n, ok := want[op]
		if !ok {
			return p, fmt.Errorf("unknown path op %q", op)
		}
		if len(nums) != n {
			return p, fmt.Errorf("path %s: want %d operands, got %d", op, n, len(nums))
		}
		switch op {
		case "m":
			p.MoveTo(nums[0], nums[1])
		case "l":
			p.LineTo(nums[0], nums[1])
		case "c":
			p.CurveTo(nums[0], nums[1], nums[2], nums[3], nums[4], nums[5])
		case "re":
			p.Rect(nums[0], nums[1], nums[2], nums[3])
		case "h":
			p.Close()
		}
	}
	return p, nil
}

func box(b [4]float64) coords.Rect {
	return coords.RectFromPoints(coords.Point{X: b[0], Y: b[1]}, coords.Point{X: b[2], Y: b[3]})
}
