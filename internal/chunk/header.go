package chunk

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgnsrekt/evtxcache/internal/binxml"
)

// Chunk layout.
const (
	Size       = 0x10000
	HeaderSize = 0x200

	flagsAt          = 0x78
	commonStringsAt  = 0x80
	templateTableAt  = 0x180
	commonStringSlot = 64
	templateSlots    = 32
)

// Magic starts every chunk.
var Magic = []byte("ElfChnk\x00")

// Common errors for chunk loading
var (
	// ErrBadMagic is returned when a buffer does not start with a chunk signature
	ErrBadMagic = errors.New("not an evtx chunk")

	// ErrTruncated is returned when a buffer is smaller than a chunk header
	ErrTruncated = errors.New("chunk truncated")
)

// Header is the fixed 512-byte chunk header. Checksums are read but not
// verified.
type Header struct {
	FirstRecordNumber uint64
	LastRecordNumber  uint64
	FirstRecordID     uint64
	LastRecordID      uint64
	HeaderSize        uint32
	LastRecordOffset  binxml.Offset
	FreeSpaceOffset   binxml.Offset
	RecordsChecksum   uint32
	Flags             uint32
	HeaderChecksum    uint32

	CommonStrings    [commonStringSlot]binxml.Offset
	TemplatePointers [templateSlots]binxml.Offset
}

// ParseHeader decodes the header at the start of data.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(data))
	}
	if !bytes.HasPrefix(data, Magic) {
		return nil, fmt.Errorf("%w: signature %q", ErrBadMagic, data[:len(Magic)])
	}

	le := binary.LittleEndian
	h := &Header{
		FirstRecordNumber: le.Uint64(data[8:]),
		LastRecordNumber:  le.Uint64(data[16:]),
		FirstRecordID:     le.Uint64(data[24:]),
		LastRecordID:      le.Uint64(data[32:]),
		HeaderSize:        le.Uint32(data[40:]),
		LastRecordOffset:  binxml.Offset(le.Uint32(data[44:])),
		FreeSpaceOffset:   binxml.Offset(le.Uint32(data[48:])),
		RecordsChecksum:   le.Uint32(data[52:]),
		Flags:             le.Uint32(data[flagsAt:]),
		HeaderChecksum:    le.Uint32(data[flagsAt+4:]),
	}
	for i := range h.CommonStrings {
		h.CommonStrings[i] = binxml.Offset(le.Uint32(data[commonStringsAt+4*i:]))
	}
	for i := range h.TemplatePointers {
		h.TemplatePointers[i] = binxml.Offset(le.Uint32(data[templateTableAt+4*i:]))
	}

	if h.FreeSpaceOffset > Size {
		return nil, fmt.Errorf("%w: free space offset %d past chunk end", ErrTruncated, h.FreeSpaceOffset)
	}

	return h, nil
}
