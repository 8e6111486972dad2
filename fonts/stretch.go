package fonts

import (
	"bytes"
	"encoding/binary"
	"math"
	"sort"
)

// composite glyph component flags
const (
	compArgWords = 0x0001
	compArgsXY   = 0x0002
	compXYScale  = 0x0040
)

const (
	// largest F2Dot14 value
	maxF2Dot14 = 32767.0 / 16384
	// scales this close to 1 leave the glyph alone
	scaleEps = 0.01
)

// horizontalScale is the factor that fits an outline drawn for advance adv
// into the document width w, or 1 when the glyph is left as it is.
func horizontalScale(adv, w uint16, stretch, squeeze bool) float64 {
	if adv == 0 || w == 0 {
		return 1
	}
	s := float64(w) / float64(adv)
	switch {
	case s > 1+scaleEps && stretch:
	case s < 1-scaleEps && squeeze:
	default:
		return 1
	}
	return math.Min(s, maxF2Dot14)
}

// fitWidths scales kept glyphs whose document width differs from their
// advance. Glyph ids must not change, so the original outline moves to a
// new id past used and the old id becomes a one-component composite that
// draws it scaled. moved lists the original id of each new glyph.
func fitWidths(loc *glyphLocator, keep map[int]bool, used int,
	metric func(int) (uint16, int16), width func(int) (uint16, bool),
	stretch, squeeze bool) (moved []int, replaced map[int][]byte) {

	replaced = make(map[int][]byte)
	gids := make([]int, 0, len(keep))
	for gid := range keep {
		gids = append(gids, gid)
	}
	sort.Ints(gids)

	for _, gid := range gids {
		w, ok := width(gid)
		if !ok {
			continue
		}
		adv, _ := metric(gid)
		sx := horizontalScale(adv, w, stretch, squeeze)
		data := loc.glyph(gid)
		if sx == 1 || len(data) < 10 {
			continue
		}
		alias := used + len(moved)
		if alias > math.MaxUint16-1 {
			break
		}
		moved = append(moved, gid)
		replaced[gid] = scaledComposite(uint16(alias), data, sx)
	}
	return moved, replaced
}

// scaledComposite draws glyph src, whose glyf data is orig, scaled
// horizontally by sx.
func scaledComposite(src uint16, orig []byte, sx float64) []byte {
	be := binary.BigEndian
	xMin := float64(int16(be.Uint16(orig[2:])))
	yMin := int16(be.Uint16(orig[4:]))
	xMax := float64(int16(be.Uint16(orig[6:])))
	yMax := int16(be.Uint16(orig[8:]))

	var b bytes.Buffer
	for _, v := range []int16{-1, int16(math.Round(xMin * sx)), yMin, int16(math.Round(xMax * sx)), yMax} {
		binary.Write(&b, be, v)
	}
	binary.Write(&b, be, uint16(compArgWords|compArgsXY|compXYScale))
	binary.Write(&b, be, src)
	binary.Write(&b, be, [2]int16{0, 0})
	binary.Write(&b, be, [2]uint16{f2dot14(sx), f2dot14(1)})
	return b.Bytes()
}

func f2dot14(v float64) uint16 { return uint16(int16(math.Round(v * 16384))) }

// patchMaxpComposite raises the composite limits of a version 1.0 maxp so
// the added composites stay within them.
func patchMaxpComposite(maxp []byte) {
	if len(maxp) < 32 {
		return
	}
	be := binary.BigEndian
	raise := func(off int, v uint16) {
		if be.Uint16(maxp[off:]) < v {
			be.PutUint16(maxp[off:], v)
		}
	}
	raise(10, be.Uint16(maxp[6:]))    // composite points >= simple points
	raise(12, be.Uint16(maxp[8:]))    // composite contours >= simple contours
	raise(28, 1)                      // component elements
	raise(30, be.Uint16(maxp[30:])+1) // component depth
}
