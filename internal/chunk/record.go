package chunk

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dgnsrekt/evtxcache/internal/binxml"
)

const recordHeaderSize = 24

var recordMagic = []byte{0x2a, 0x2a, 0x00, 0x00}

// ErrCorruptRecord is returned when record headers cannot be walked.
var ErrCorruptRecord = errors.New("corrupt event record")

// Record is an event record header.
type Record struct {
	Offset  binxml.Offset
	Size    uint32
	ID      uint64
	Written uint64 // raw FILETIME

	// Template is the definition offset named by the record's leading
	// template instance token, or NoTemplate.
	Template binxml.Offset
}

// ScanRecords walks the records between the chunk header and the free space
// offset.
func ScanRecords(data []byte, h *Header) ([]Record, error) {
	end := int(h.FreeSpaceOffset)
	if end > len(data) {
		return nil, fmt.Errorf("%w: free space offset %d past buffer of %d bytes", ErrCorruptRecord, end, len(data))
	}

	var records []Record
	c := binxml.NewCursor(data[:end])
	for pos := HeaderSize; pos+recordHeaderSize <= end; {
		if !bytes.Equal(data[pos:pos+4], recordMagic) {
			return nil, fmt.Errorf("%w: bad signature at offset %d", ErrCorruptRecord, pos)
		}

		size, id, written, err := readRecordHeader(c, pos)
		if err != nil {
			return nil, fmt.Errorf("%w: record at offset %d: %w", ErrCorruptRecord, pos, err)
		}

		if size < recordHeaderSize+4 || pos+int(size) > end {
			return nil, fmt.Errorf("%w: record at offset %d has size %d", ErrCorruptRecord, pos, size)
		}

		records = append(records, Record{
			Offset:   binxml.Offset(pos), //nolint:gosec
			Size:     size,
			ID:       id,
			Written:  written,
			Template: templateInstance(data[pos+recordHeaderSize : pos+int(size)]),
		})
		pos += int(size)
	}

	return records, nil
}

func readRecordHeader(c *binxml.Cursor, pos int) (size uint32, id, written uint64, err error) {
	if err = c.Seek(binxml.Offset(pos + 4)); err != nil { //nolint:gosec
		return
	}
	if size, err = c.Uint32(); err != nil {
		return
	}
	if id, err = c.Uint64(); err != nil {
		return
	}
	written, err = c.Uint64()
	return
}

// templateInstance reads the definition offset of a template instance token
// directly following the fragment header.
func templateInstance(payload []byte) binxml.Offset {
	c := binxml.NewCursor(payload)
	frag, err := c.Bytes(4)
	if err != nil || frag[0] != binxml.TokenFragmentHeader {
		return binxml.NoTemplate
	}
	if tok, err := c.Uint8(); err != nil || tok != binxml.TokenTemplateInstance {
		return binxml.NoTemplate
	}
	// unknown byte, template id
	if _, err := c.Bytes(1 + 4); err != nil {
		return binxml.NoTemplate
	}
	offset, err := c.Uint32()
	if err != nil {
		return binxml.NoTemplate
	}
	return binxml.Offset(offset)
}
