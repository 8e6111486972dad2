package fonts

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/wudi/pdfhtml/interp"
)

// NativeTool subsets TrueType-flavoured programs in process. Glyph ids are
// preserved (sparse subsetting) so the document's glyph numbering stays
// valid; unused glyph data is dropped, the cmap is replaced by the display
// mapping and advances are set to the document's widths.
//
// With Stretch or Squeeze, glyphs whose document width differs from their
// advance are scaled horizontally to fit it.
//
// It cannot build ligature substitutions, so requests with ligature rules
// come back with LigaturesApplied false. CFF programs are left to
// CommandTool.
type NativeTool struct{}

func (NativeTool) Subset(ctx context.Context, req SubsetRequest) (SubsetResult, error) {
	if err := ctx.Err(); err != nil {
		return SubsetResult{}, err
	}
	switch req.Kind {
	case interp.FontType3, interp.FontType1:
		return SubsetResult{}, fmt.Errorf("%w: %s", ErrUnsupportedOutlines, req.Kind)
	}
	data, err := subsetSFNT(req, false)
	if err != nil {
		return SubsetResult{}, err
	}
	return encodeResult(data, req)
}

func encodeResult(data []byte, req SubsetRequest) (SubsetResult, error) {
	format := req.Format
	if format == "" {
		format = FormatWOFF
	}
	if format == FormatWOFF {
		var err error
		if data, err = wrapWOFF(data); err != nil {
			return SubsetResult{}, err
		}
	}
	return SubsetResult{Data: data, Format: format, LigaturesApplied: len(req.Ligatures) == 0}, nil
}

// tables copied unchanged into the subset
var keepTables = []string{"name", "cvt ", "fpgm", "prep", "gasp"}

// outline tables of CFF-flavoured programs, kept whole
var cffTables = []string{"CFF ", "CFF2", "VORG"}

const sfntVersionCFF = 0x4F54544F // "OTTO"

// subsetSFNT rebuilds a TrueType or OpenType program around the request.
// glyf programs are subset; CFF programs, accepted only with keepCFF, keep
// their outlines whole and get new metrics and cmap. Stretching and
// squeezing apply to glyf outlines only.
func subsetSFNT(req SubsetRequest, keepCFF bool) ([]byte, error) {
	p, err := parseSFNT(req.Program)
	if err != nil {
		return nil, err
	}
	glyfOutlines := p.HasTable("glyf") && p.HasTable("loca")
	cff := !glyfOutlines && (p.HasTable("CFF ") || p.HasTable("CFF2"))
	switch {
	case glyfOutlines, cff && keepCFF:
	case cff:
		return nil, fmt.Errorf("%w: CFF outlines", ErrUnsupportedOutlines)
	default:
		return nil, fmt.Errorf("%w: no glyf outlines", ErrUnsupportedOutlines)
	}
	for _, tag := range []string{"head", "maxp", "hhea", "hmtx"} {
		if !p.HasTable(tag) {
			return nil, fmt.Errorf("%w: missing %q", ErrMalformedFont, tag)
		}
	}

	head, err := p.tableCopy("head")
	if err != nil {
		return nil, err
	}
	if len(head) < 54 {
		return nil, fmt.Errorf("%w: head truncated", ErrMalformedFont)
	}
	unitsPerEm := float64(binary.BigEndian.Uint16(head[18:20]))
	if unitsPerEm == 0 {
		unitsPerEm = 1000
	}
	indexToLocFormat := int16(binary.BigEndian.Uint16(head[50:52]))

	maxp, err := p.tableCopy("maxp")
	if err != nil {
		return nil, err
	}
	if len(maxp) < 6 {
		return nil, fmt.Errorf("%w: maxp truncated", ErrMalformedFont)
	}
	numGlyphs := int(binary.BigEndian.Uint16(maxp[4:6]))

	metric, err := p.hmetrics()
	if err != nil {
		return nil, err
	}
	width := func(g int) (uint16, bool) {
		w, ok := req.Widths[interp.GlyphID(g)]
		if !ok || w < 0 || g == 0 {
			return 0, false
		}
		return uint16(math.Min(math.Round(w*unitsPerEm/1000), math.MaxUint16)), true
	}

	w := &ttWriter{}
	keep := map[int]bool{}
	used, total := numGlyphs, numGlyphs
	var moved []int
	replaced := map[int][]byte{}

	if glyfOutlines {
		loc, err := p.locator(indexToLocFormat, numGlyphs)
		if err != nil {
			return nil, err
		}
		keep[0] = true
		for _, g := range req.Glyphs {
			if int(g) < numGlyphs {
				keep[int(g)] = true
			}
		}
		loc.closure(keep)

		used = 0
		for gid := range keep {
			if gid+1 > used {
				used = gid + 1
			}
		}
		if req.Stretch || req.Squeeze {
			moved, replaced = fitWidths(loc, keep, used, metric, width, req.Stretch, req.Squeeze)
		}
		total = used + len(moved)

		glyf, locaTable := rebuildGlyfLoca(total, func(gid int) []byte {
			switch {
			case gid >= used:
				return loc.glyph(moved[gid-used])
			case !keep[gid]:
				return nil
			case replaced[gid] != nil:
				return replaced[gid]
			}
			return loc.glyph(gid)
		})
		binary.BigEndian.PutUint16(head[50:52], 1) // long loca
		binary.BigEndian.PutUint16(maxp[4:6], uint16(total))
		if len(moved) > 0 {
			patchMaxpComposite(maxp)
		}
		for gid := used; gid < total; gid++ {
			keep[gid] = true
		}
		w.AddTable("glyf", glyf)
		w.AddTable("loca", locaTable)
	} else {
		for gid := 0; gid < numGlyphs; gid++ {
			keep[gid] = true
		}
		for _, tag := range cffTables {
			if data, err := p.ReadTable(tag); err == nil {
				w.AddTable(tag, data)
			}
		}
		w.version = sfntVersionCFF
	}

	// moved glyphs keep the metrics of their original id
	hmtx, maxAdvance := buildHmtx(total, func(gid int) (uint16, int16) {
		if gid >= used {
			return metric(moved[gid-used])
		}
		if !keep[gid] {
			return 0, 0
		}
		adv, lsb := metric(gid)
		if wd, ok := width(gid); ok {
			adv = wd
		}
		if d := replaced[gid]; d != nil {
			lsb = int16(binary.BigEndian.Uint16(d[2:4]))
		}
		return adv, lsb
	})
	hhea, err := p.tableCopy("hhea")
	if err != nil {
		return nil, err
	}
	if len(hhea) < 36 {
		return nil, fmt.Errorf("%w: hhea truncated", ErrMalformedFont)
	}
	binary.BigEndian.PutUint16(hhea[10:12], maxAdvance)
	binary.BigEndian.PutUint16(hhea[34:36], uint16(total))

	cmap := make(map[rune]interp.GlyphID, len(req.CMap))
	for r, g := range req.CMap {
		if int(g) < total && keep[int(g)] {
			cmap[r] = g
		}
	}

	w.AddTable("head", head)
	w.AddTable("maxp", maxp)
	w.AddTable("hhea", hhea)
	w.AddTable("hmtx", hmtx)
	w.AddTable("cmap", buildCmap(cmap))
	if post, err := p.ReadTable("post"); err == nil && len(post) >= 32 {
		// version 3 carries no glyph names, which would index past the subset
		post = append([]byte(nil), post[:32]...)
		binary.BigEndian.PutUint32(post[0:4], 0x00030000)
		w.AddTable("post", post)
	}
	if os2, err := p.tableCopy("OS/2"); err == nil {
		w.AddTable("OS/2", patchOS2(os2, cmap, req.OverrideFSType))
	}
	for _, tag := range keepTables {
		if data, err := p.ReadTable(tag); err == nil {
			w.AddTable(tag, data)
		}
	}
	return w.Bytes(), nil
}

func rebuildGlyfLoca(numGlyphs int, glyph func(gid int) []byte) (glyf, loca []byte) {
	var g, l bytes.Buffer
	offset := uint32(0)
	for gid := 0; gid < numGlyphs; gid++ {
		binary.Write(&l, binary.BigEndian, offset)
		data := glyph(gid)
		if len(data) == 0 {
			continue
		}
		g.Write(data)
		g.Write(make([]byte, pad4(len(data))))
		offset += uint32(len(data) + pad4(len(data)))
	}
	binary.Write(&l, binary.BigEndian, offset)
	return g.Bytes(), l.Bytes()
}

// hmetrics returns the advance and left side bearing of any glyph id.
func (p *ttParser) hmetrics() (func(gid int) (uint16, int16), error) {
	hhea, err := p.ReadTable("hhea")
	if err != nil {
		return nil, err
	}
	hmtx, err := p.ReadTable("hmtx")
	if err != nil {
		return nil, err
	}
	if len(hhea) < 36 {
		return nil, fmt.Errorf("%w: hhea truncated", ErrMalformedFont)
	}
	numOfHMetrics := int(binary.BigEndian.Uint16(hhea[34:36]))
	if numOfHMetrics == 0 || len(hmtx) < numOfHMetrics*4 {
		return nil, fmt.Errorf("%w: hmtx truncated", ErrMalformedFont)
	}
	return func(gid int) (uint16, int16) {
		if gid < numOfHMetrics {
			return binary.BigEndian.Uint16(hmtx[gid*4:]), int16(binary.BigEndian.Uint16(hmtx[gid*4+2:]))
		}
		adv := binary.BigEndian.Uint16(hmtx[(numOfHMetrics-1)*4:])
		off := numOfHMetrics*4 + (gid-numOfHMetrics)*2
		if off+2 > len(hmtx) {
			return adv, 0
		}
		return adv, int16(binary.BigEndian.Uint16(hmtx[off:]))
	}, nil
}

// buildHmtx writes one explicit metric per glyph.
func buildHmtx(numGlyphs int, metric func(gid int) (uint16, int16)) ([]byte, uint16) {
	var buf bytes.Buffer
	var maxAdvance uint16
	for gid := 0; gid < numGlyphs; gid++ {
		adv, lsb := metric(gid)
		if adv > maxAdvance {
			maxAdvance = adv
		}
		binary.Write(&buf, binary.BigEndian, adv)
		binary.Write(&buf, binary.BigEndian, lsb)
	}
	return buf.Bytes(), maxAdvance
}

// patchOS2 updates the character range to the display code points and
// optionally clears the embedding restrictions.
func patchOS2(os2 []byte, cmap map[rune]interp.GlyphID, clearFSType bool) []byte {
	if clearFSType && len(os2) >= 10 {
		binary.BigEndian.PutUint16(os2[8:10], 0)
	}
	if len(os2) >= 68 && len(cmap) > 0 {
		first, last := rune(0xFFFF), rune(0)
		for r := range cmap {
			if r < first {
				first = r
			}
			if r > last {
				last = r
			}
		}
		if last > 0xFFFF {
			last = 0xFFFF
		}
		binary.BigEndian.PutUint16(os2[64:66], uint16(first))
		binary.BigEndian.PutUint16(os2[66:68], uint16(last))
	}
	return os2
}

type cmapEntry struct {
	r rune
	g interp.GlyphID
}

// buildCmap writes a cmap with a format 4 subtable for BMP code points
// (platform 3 encoding 1) and a format 12 subtable for all of them
// (platform 0 encoding 4 and platform 3 encoding 10).
func buildCmap(m map[rune]interp.GlyphID) []byte {
	entries := make([]cmapEntry, 0, len(m))
	for r, g := range m {
		entries = append(entries, cmapEntry{r, g})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].r < entries[j].r })

	f4 := cmapFormat4(entries)
	f12 := cmapFormat12(entries)

	const header = 4 + 3*8
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint16(0)) // version
	binary.Write(&buf, binary.BigEndian, uint16(3))
	records := []struct {
		platform, encoding uint16
		offset             uint32
	}{
		{0, 4, header + uint32(len(f4))},
		{3, 1, header},
		{3, 10, header + uint32(len(f4))},
	}
	for _, rec := range records {
		binary.Write(&buf, binary.BigEndian, rec.platform)
		binary.Write(&buf, binary.BigEndian, rec.encoding)
		binary.Write(&buf, binary.BigEndian, rec.offset)
	}
	buf.Write(f4)
	buf.Write(f12)
	return buf.Bytes()
}

func cmapFormat4(entries []cmapEntry) []byte {
	type segment struct {
		start, end uint16
		delta      uint16
	}
	var segs []segment
	for _, e := range entries {
		if e.r > 0xFFFE {
			break
		}
		r, g := uint16(e.r), uint16(e.g)
		if n := len(segs); n > 0 && segs[n-1].end+1 == r && segs[n-1].delta == g-r {
			segs[n-1].end = r
			continue
		}
		segs = append(segs, segment{start: r, end: r, delta: g - r})
	}
	segs = append(segs, segment{start: 0xFFFF, end: 0xFFFF, delta: 1})

	segCount := len(segs)
	entrySelector := 0
	for (1 << (entrySelector + 1)) <= segCount {
		entrySelector++
	}
	searchRange := 2 * (1 << entrySelector)

	var buf bytes.Buffer
	length := 16 + 8*segCount
	for _, v := range []uint16{4, uint16(length), 0, uint16(2 * segCount), uint16(searchRange), uint16(entrySelector), uint16(2*segCount - searchRange)} {
		binary.Write(&buf, binary.BigEndian, v)
	}
	for _, s := range segs {
		binary.Write(&buf, binary.BigEndian, s.end)
	}
	binary.Write(&buf, binary.BigEndian, uint16(0)) // reservedPad
	for _, s := range segs {
		binary.Write(&buf, binary.BigEndian, s.start)
	}
	for _, s := range segs {
		binary.Write(&buf, binary.BigEndian, s.delta)
	}
	for range segs {
		binary.Write(&buf, binary.BigEndian, uint16(0)) // idRangeOffset
	}
	return buf.Bytes()
}

func cmapFormat12(entries []cmapEntry) []byte {
	type group struct{ start, end, glyph uint32 }
	var groups []group
	for _, e := range entries {
		r, g := uint32(e.r), uint32(e.g)
		if n := len(groups); n > 0 && groups[n-1].end+1 == r && groups[n-1].glyph+(r-groups[n-1].start) == g {
			groups[n-1].end = r
			continue
		}
		groups = append(groups, group{r, r, g})
	}
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint16(12))
	binary.Write(&buf, binary.BigEndian, uint16(0))
	binary.Write(&buf, binary.BigEndian, uint32(16+12*len(groups)))
	binary.Write(&buf, binary.BigEndian, uint32(0)) // language
	binary.Write(&buf, binary.BigEndian, uint32(len(groups)))
	for _, g := range groups {
		binary.Write(&buf, binary.BigEndian, g.start)
		binary.Write(&buf, binary.BigEndian, g.end)
		binary.Write(&buf, binary.BigEndian, g.glyph)
	}
	return buf.Bytes()
}
