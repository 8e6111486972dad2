package fonts

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"sort"
)

const woffSignature = 0x774F4646 // "wOFF"

// wrapWOFF packs an sfnt file into WOFF 1.0. Each table is zlib-compressed
// and kept compressed only when that makes it smaller.
func wrapWOFF(sfnt []byte) ([]byte, error) {
	p, err := parseSFNT(sfnt)
	if err != nil {
		return nil, err
	}
	tags := make([]string, 0, len(p.tables))
	for tag := range p.tables {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	type entry struct {
		tag      string
		data     []byte
		origLen  uint32
		checksum uint32
	}
	entries := make([]entry, 0, len(tags))
	totalSfnt := uint32(12 + 16*len(tags))
	for _, tag := range tags {
		orig, _ := p.ReadTable(tag)
		var z bytes.Buffer
		zw := zlib.NewWriter(&z)
		if _, err := zw.Write(orig); err != nil {
			return nil, fmt.Errorf("fonts: compress %q: %w", tag, err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("fonts: compress %q: %w", tag, err)
		}
		data := orig
		if z.Len() < len(orig) {
			data = z.Bytes()
		}
		entries = append(entries, entry{tag, data, uint32(len(orig)), calcChecksum(orig)})
		totalSfnt += uint32(len(orig) + pad4(len(orig)))
	}

	offset := uint32(44 + 20*len(entries))
	var dir, body bytes.Buffer
	for _, e := range entries {
		dir.WriteString(e.tag)
		binary.Write(&dir, binary.BigEndian, offset)
		binary.Write(&dir, binary.BigEndian, uint32(len(e.data)))
		binary.Write(&dir, binary.BigEndian, e.origLen)
		binary.Write(&dir, binary.BigEndian, e.checksum)
		body.Write(e.data)
		body.Write(make([]byte, pad4(len(e.data))))
		offset += uint32(len(e.data) + pad4(len(e.data)))
	}

	var out bytes.Buffer
	for _, v := range []uint32{woffSignature, p.version, offset} {
		binary.Write(&out, binary.BigEndian, v)
	}
	binary.Write(&out, binary.BigEndian, uint16(len(entries)))
	binary.Write(&out, binary.BigEndian, uint16(0)) // reserved
	binary.Write(&out, binary.BigEndian, totalSfnt)
	binary.Write(&out, binary.BigEndian, uint16(1)) // majorVersion
	binary.Write(&out, binary.BigEndian, uint16(0))
	// no metadata or private block
	out.Write(make([]byte, 20))
	out.Write(dir.Bytes())
	out.Write(body.Bytes())
	return out.Bytes(), nil
}
