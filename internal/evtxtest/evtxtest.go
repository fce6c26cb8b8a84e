// Package evtxtest builds synthetic EVTX buffers for tests.
package evtxtest

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/dgnsrekt/evtxcache/internal/binxml"
)

// Layout constants mirrored from the on-disk format.
const (
	ChunkSize       = 0x10000
	ChunkHeaderSize = 0x200
	FileHeaderSize  = 0x1000

	// TemplateSize is the number of bytes PutTemplate writes.
	TemplateSize = binxml.TemplateHeaderSize + templateDataSize

	templateDataSize = 4 + 11 + 1
	recordHeaderSize = 24
	pointerTableAt   = 0x180
)

// NameSize returns the number of bytes PutName writes for name.
func NameSize(name string) int {
	return 8 + 2*len(utf16.Encode([]rune(name)))
}

// PutTemplate writes a minimal template definition at offset at whose root
// element name lives at nameOffset. It returns the offset just past it.
func PutTemplate(buf []byte, at int, id binxml.GUID, nameOffset uint32) int {
	le := binary.LittleEndian
	le.PutUint32(buf[at:], 0)
	copy(buf[at+4:], id[:])
	le.PutUint32(buf[at+20:], templateDataSize)

	d := buf[at+binxml.TemplateHeaderSize:]
	copy(d, []byte{binxml.TokenFragmentHeader, 1, 1, 0})
	d[4] = binxml.TokenOpenStartElement
	le.PutUint16(d[5:], 0xffff)
	le.PutUint32(d[7:], 0)
	le.PutUint32(d[11:], nameOffset)
	d[15] = binxml.TokenEOF

	return at + TemplateSize
}

// PutName writes a string table entry at offset at and returns the offset
// just past it.
func PutName(buf []byte, at int, name string) int {
	chars := utf16.Encode([]rune(name))
	le := binary.LittleEndian
	le.PutUint32(buf[at:], 0)
	le.PutUint16(buf[at+4:], 0)
	le.PutUint16(buf[at+6:], uint16(len(chars))) //nolint:gosec
	for i, ch := range chars {
		le.PutUint16(buf[at+8+2*i:], ch)
	}
	return at + NameSize(name)
}

// SetNext overwrites the next-template link of the template at offset at.
func SetNext(buf []byte, at int, next binxml.Offset) {
	binary.LittleEndian.PutUint32(buf[at:], uint32(next))
}

// GUID returns a deterministic identifier whose bytes all equal b.
func GUID(b byte) binxml.GUID {
	var g binxml.GUID
	for i := range g {
		g[i] = b
	}
	return g
}

// ChunkBuilder assembles a chunk with records and inline templates.
type ChunkBuilder struct {
	buf        []byte
	pos        int
	firstID    uint64
	lastID     uint64
	records    int
	lastRecord int
	pointers   int
}

// NewChunk returns a builder for an empty chunk.
func NewChunk() *ChunkBuilder {
	b := &ChunkBuilder{
		buf: make([]byte, ChunkSize),
		pos: ChunkHeaderSize,
	}
	copy(b.buf, "ElfChnk\x00")
	binary.LittleEndian.PutUint32(b.buf[40:], 128)
	return b
}

// AddTemplateRecord appends a record whose template is defined inline and
// registers the template in the chunk's pointer table. It returns the
// template offset.
func (b *ChunkBuilder) AddTemplateRecord(id uint64, guid binxml.GUID, name string) binxml.Offset {
	start := b.pos
	tmpl := start + recordHeaderSize + 4 + 10
	nameAt := tmpl + TemplateSize

	PutTemplate(b.buf, tmpl, guid, uint32(nameAt)) //nolint:gosec
	end := PutName(b.buf, nameAt, name)
	b.writeRecord(start, end, id, binxml.Offset(tmpl)) //nolint:gosec

	if b.pointers < 32 {
		b.SetTemplatePointer(b.pointers, binxml.Offset(tmpl)) //nolint:gosec
		b.pointers++
	}
	return binxml.Offset(tmpl) //nolint:gosec
}

// AddRecord appends a record that references an existing template.
func (b *ChunkBuilder) AddRecord(id uint64, tmpl binxml.Offset) {
	start := b.pos
	b.writeRecord(start, start+recordHeaderSize+4+10, id, tmpl)
}

// SetTemplatePointer writes slot of the template pointer table.
func (b *ChunkBuilder) SetTemplatePointer(slot int, off binxml.Offset) {
	binary.LittleEndian.PutUint32(b.buf[pointerTableAt+4*slot:], uint32(off))
}

// Link sets the next-template link of the template at from.
func (b *ChunkBuilder) Link(from, to binxml.Offset) {
	SetNext(b.buf, int(from), to)
}

// Bytes finalizes the header and returns the chunk buffer.
func (b *ChunkBuilder) Bytes() []byte {
	le := binary.LittleEndian
	if b.records > 0 {
		le.PutUint64(b.buf[8:], 1)
		le.PutUint64(b.buf[16:], uint64(b.records)) //nolint:gosec
		le.PutUint64(b.buf[24:], b.firstID)
		le.PutUint64(b.buf[32:], b.lastID)
	}
	le.PutUint32(b.buf[44:], uint32(b.lastRecord)) //nolint:gosec
	le.PutUint32(b.buf[48:], uint32(b.pos))        //nolint:gosec
	return b.buf
}

func (b *ChunkBuilder) writeRecord(start, payloadEnd int, id uint64, tmpl binxml.Offset) {
	le := binary.LittleEndian
	size := payloadEnd - start + 4

	copy(b.buf[start:], []byte{0x2a, 0x2a, 0, 0})
	le.PutUint32(b.buf[start+4:], uint32(size)) //nolint:gosec
	le.PutUint64(b.buf[start+8:], id)
	le.PutUint64(b.buf[start+16:], 0)

	p := b.buf[start+recordHeaderSize:]
	copy(p, []byte{binxml.TokenFragmentHeader, 1, 1, 0})
	p[4] = binxml.TokenTemplateInstance
	p[5] = 1
	le.PutUint32(p[6:], 0)
	le.PutUint32(p[10:], uint32(tmpl))

	le.PutUint32(b.buf[start+size-4:], uint32(size)) //nolint:gosec

	if b.records == 0 {
		b.firstID = id
	}
	b.lastID = id
	b.records++
	b.lastRecord = start
	b.pos = start + size
}

// File wraps chunks in a file header.
func File(chunks ...[]byte) []byte {
	buf := make([]byte, FileHeaderSize, FileHeaderSize+len(chunks)*ChunkSize)
	copy(buf, "ElfFile\x00")
	binary.LittleEndian.PutUint16(buf[42:], uint16(len(chunks))) //nolint:gosec
	for _, c := range chunks {
		buf = append(buf, c...)
	}
	return buf
}
