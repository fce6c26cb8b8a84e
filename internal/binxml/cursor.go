package binxml

import (
	"encoding/binary"
	"fmt"
)

// Offset is a byte position inside one chunk buffer.
type Offset uint32

// NoTemplate is the reserved offset meaning "no template referenced here".
const NoTemplate Offset = 0

// Cursor reads little-endian values from a chunk buffer. Reads past the end
// return ErrMalformed; only Seek reports an out-of-range position.
type Cursor struct {
	data []byte
	pos  int
}

// NewCursor returns a cursor positioned at the start of data.
func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Seek moves the cursor to offset. Offsets at or past the end of the buffer
// fail with ErrOutOfRange.
func (c *Cursor) Seek(offset Offset) error {
	if int64(offset) >= int64(len(c.data)) {
		return fmt.Errorf("%w: offset %d, buffer size %d", ErrOutOfRange, offset, len(c.data))
	}
	c.pos = int(offset)
	return nil
}

// Position returns the current offset.
func (c *Cursor) Position() Offset {
	return Offset(c.pos) //nolint:gosec
}

// Len returns the size of the underlying buffer.
func (c *Cursor) Len() int {
	return len(c.data)
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.data) - c.pos
}

// Bytes returns the next n bytes without copying and advances past them.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	if n < 0 || n > c.Remaining() {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformed, n, c.pos, c.Remaining())
	}
	b := c.data[c.pos : c.pos+n : c.pos+n]
	c.pos += n
	return b, nil
}

// Uint8 reads one byte.
func (c *Cursor) Uint8() (uint8, error) {
	b, err := c.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16 reads a little-endian uint16.
func (c *Cursor) Uint16() (uint16, error) {
	b, err := c.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Uint32 reads a little-endian uint32.
func (c *Cursor) Uint32() (uint32, error) {
	b, err := c.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Uint64 reads a little-endian uint64.
func (c *Cursor) Uint64() (uint64, error) {
	b, err := c.Bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}
