package fonts

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// ttParser reads the table directory of an sfnt file.
type ttParser struct {
	data    []byte
	version uint32
	tables  map[string]tableEntry
}

type tableEntry struct {
	offset uint32
	length uint32
}

func parseSFNT(data []byte) (*ttParser, error) {
	p := &ttParser{data: data}
	if err := p.ParseDirectory(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *ttParser) ParseDirectory() error {
	if len(p.data) < 12 {
		return fmt.Errorf("%w: header truncated", ErrMalformedFont)
	}
	p.version = binary.BigEndian.Uint32(p.data[0:4])
	numTables := int(binary.BigEndian.Uint16(p.data[4:6]))
	p.tables = make(map[string]tableEntry, numTables)

	offset := 12
	for i := 0; i < numTables; i++ {
		if offset+16 > len(p.data) {
			return fmt.Errorf("%w: table directory truncated", ErrMalformedFont)
		}
		tag := string(p.data[offset : offset+4])
		off := binary.BigEndian.Uint32(p.data[offset+8 : offset+12])
		length := binary.BigEndian.Uint32(p.data[offset+12 : offset+16])
		if uint64(off)+uint64(length) > uint64(len(p.data)) {
			return fmt.Errorf("%w: table %q out of bounds", ErrMalformedFont, tag)
		}
		p.tables[tag] = tableEntry{offset: off, length: length}
		offset += 16
	}
	return nil
}

func (p *ttParser) HasTable(tag string) bool {
	_, ok := p.tables[tag]
	return ok
}

func (p *ttParser) ReadTable(tag string) ([]byte, error) {
	entry, ok := p.tables[tag]
	if !ok {
		return nil, fmt.Errorf("%w: table %q not found", ErrMalformedFont, tag)
	}
	return p.data[entry.offset : entry.offset+entry.length], nil
}

// tableCopy returns a private copy of a table for patching.
func (p *ttParser) tableCopy(tag string) ([]byte, error) {
	data, err := p.ReadTable(tag)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}

// glyphLocator reads glyph extents from loca in either format.
type glyphLocator struct {
	loca   []byte
	glyf   []byte
	long   bool
	glyphs int
}

func (p *ttParser) locator(indexToLocFormat int16, numGlyphs int) (*glyphLocator, error) {
	loca, err := p.ReadTable("loca")
	if err != nil {
		return nil, err
	}
	glyf, err := p.ReadTable("glyf")
	if err != nil {
		return nil, err
	}
	l := &glyphLocator{loca: loca, glyf: glyf, long: indexToLocFormat != 0, glyphs: numGlyphs}
	need := (numGlyphs + 1) * 2
	if l.long {
		need *= 2
	}
	if len(loca) < need {
		return nil, fmt.Errorf("%w: loca shorter than %d glyphs", ErrMalformedFont, numGlyphs)
	}
	return l, nil
}

func (l *glyphLocator) loc(gid int) uint32 {
	if !l.long {
		return uint32(binary.BigEndian.Uint16(l.loca[gid*2:])) * 2
	}
	return binary.BigEndian.Uint32(l.loca[gid*4:])
}

// glyph returns the glyf bytes of gid, nil for empty or invalid entries.
func (l *glyphLocator) glyph(gid int) []byte {
	if gid < 0 || gid >= l.glyphs {
		return nil
	}
	start, end := l.loc(gid), l.loc(gid+1)
	if start >= end || end > uint32(len(l.glyf)) {
		return nil
	}
	return l.glyf[start:end]
}

// closure adds every component referenced by composite glyphs in set.
func (l *glyphLocator) closure(set map[int]bool) {
	queue := make([]int, 0, len(set))
	for gid := range set {
		queue = append(queue, gid)
	}
	for len(queue) > 0 {
		gid := queue[0]
		queue = queue[1:]

		g := l.glyph(gid)
		if len(g) < 10 || int16(binary.BigEndian.Uint16(g[0:2])) >= 0 {
			continue
		}
		offset := 10
		for offset+4 <= len(g) {
			flags := binary.BigEndian.Uint16(g[offset : offset+2])
			sub := int(binary.BigEndian.Uint16(g[offset+2 : offset+4]))
			if !set[sub] && sub < l.glyphs {
				set[sub] = true
				queue = append(queue, sub)
			}
			offset += 4
			if flags&0x0001 != 0 { // ARG_1_AND_2_ARE_WORDS
				offset += 4
			} else {
				offset += 2
			}
			switch {
			case flags&0x0008 != 0: // WE_HAVE_A_SCALE
				offset += 2
			case flags&0x0040 != 0: // WE_HAVE_AN_X_AND_Y_SCALE
				offset += 4
			case flags&0x0080 != 0: // WE_HAVE_A_TWO_BY_TWO
				offset += 8
			}
			if flags&0x0020 == 0 { // MORE_COMPONENTS
				break
			}
		}
	}
}

// ttWriter assembles an sfnt file from tables.
type ttWriter struct {
	tables []tableData
	// version is the sfnt version tag; zero writes TrueType 1.0.
	version uint32
}

type tableData struct {
	tag  string
	data []byte
}

func (w *ttWriter) AddTable(tag string, data []byte) {
	w.tables = append(w.tables, tableData{tag, data})
}

func (w *ttWriter) Bytes() []byte {
	sort.Slice(w.tables, func(i, j int) bool { return w.tables[i].tag < w.tables[j].tag })

	numTables := len(w.tables)
	offset := 12 + 16*numTables

	var buf bytes.Buffer
	version := w.version
	if version == 0 {
		version = 0x00010000
	}
	binary.Write(&buf, binary.BigEndian, version)
	binary.Write(&buf, binary.BigEndian, uint16(numTables))

	entrySelector := 0
	for (1 << (entrySelector + 1)) <= numTables {
		entrySelector++
	}
	searchRange := (1 << entrySelector) * 16
	rangeShift := numTables*16 - searchRange
	binary.Write(&buf, binary.BigEndian, uint16(searchRange))
	binary.Write(&buf, binary.BigEndian, uint16(entrySelector))
	binary.Write(&buf, binary.BigEndian, uint16(rangeShift))

	headIndex := -1
	for i, t := range w.tables {
		if t.tag == "head" {
			headIndex = i
			if len(t.data) >= 12 {
				// checksumAdjustment is computed over the file with itself zeroed
				t.data = append([]byte(nil), t.data...)
				binary.BigEndian.PutUint32(t.data[8:], 0)
				w.tables[i] = t
			}
		}
		buf.WriteString(t.tag)
		binary.Write(&buf, binary.BigEndian, calcChecksum(t.data))
		binary.Write(&buf, binary.BigEndian, uint32(offset))
		binary.Write(&buf, binary.BigEndian, uint32(len(t.data)))
		offset += len(t.data) + pad4(len(t.data))
	}

	headOffset := -1
	for i, t := range w.tables {
		if i == headIndex {
			headOffset = buf.Len()
		}
		buf.Write(t.data)
		buf.Write(make([]byte, pad4(len(t.data))))
	}

	out := buf.Bytes()
	if headOffset >= 0 && headOffset+12 <= len(out) {
		binary.BigEndian.PutUint32(out[headOffset+8:], 0xB1B0AFBA-calcChecksum(out))
	}
	return out
}

func pad4(n int) int { return (4 - n%4) % 4 }

func calcChecksum(data []byte) uint32 {
	var sum uint32
	for i := 0; i < len(data); i += 4 {
		if i+4 <= len(data) {
			sum += binary.BigEndian.Uint32(data[i : i+4])
		} else {
			var tail [4]byte
			copy(tail[:], data[i:])
			sum += binary.BigEndian.Uint32(tail[:])
		}
	}
	return sum
}
