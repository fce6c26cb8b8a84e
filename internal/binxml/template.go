package binxml

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

// Common errors returned while reading binary XML.
var (
	// ErrOutOfRange is returned when a cursor is positioned outside the buffer.
	ErrOutOfRange = errors.New("offset outside chunk buffer")

	// ErrMalformed is returned when bytes do not form a valid token sequence.
	ErrMalformed = errors.New("malformed binary xml")
)

// Token values used by template definitions.
const (
	TokenEOF                = 0x00
	TokenOpenStartElement   = 0x01
	TokenTemplateInstance   = 0x0c
	TokenFragmentHeader     = 0x0f
	TokenOpenStartElementAt = 0x41 // open start element with attribute list
)

// TemplateHeaderSize is the fixed part preceding a template's fragment data:
// next offset, GUID and data size.
const TemplateHeaderSize = 4 + 16 + 4

// Context controls how a template definition is read.
type Context struct {
	// ResolveNames decodes the root element name through the chunk's
	// string table. Without it Name is left empty.
	ResolveNames bool
}

// DefaultContext returns the context used when populating template caches.
func DefaultContext() Context {
	return Context{ResolveNames: true}
}

// GUID is a raw 16-byte template identifier.
type GUID [16]byte

// String formats the GUID in registry form.
func (g GUID) String() string {
	return fmt.Sprintf("%08x-%04x-%04x-%x-%x",
		binary.LittleEndian.Uint32(g[0:4]),
		binary.LittleEndian.Uint16(g[4:6]),
		binary.LittleEndian.Uint16(g[6:8]),
		g[8:10],
		g[10:16])
}

// TemplateDefinition is a decoded template. Data aliases the chunk buffer.
type TemplateDefinition struct {
	Offset     Offset
	NextOffset Offset
	ID         GUID
	DataSize   uint32
	Data       []byte
	Name       string
}

// ReadTemplateDefinition decodes the template definition at the cursor's
// current position.
func ReadTemplateDefinition(c *Cursor, ctx Context) (*TemplateDefinition, error) {
	def := &TemplateDefinition{Offset: c.Position()}

	next, err := c.Uint32()
	if err != nil {
		return nil, fmt.Errorf("reading next template offset: %w", err)
	}
	def.NextOffset = Offset(next)

	id, err := c.Bytes(len(def.ID))
	if err != nil {
		return nil, fmt.Errorf("reading template guid: %w", err)
	}
	copy(def.ID[:], id)

	if def.DataSize, err = c.Uint32(); err != nil {
		return nil, fmt.Errorf("reading template data size: %w", err)
	}
	if def.Data, err = c.Bytes(int(def.DataSize)); err != nil {
		return nil, fmt.Errorf("reading template data: %w", err)
	}

	if err := checkFragment(def.Data); err != nil {
		return nil, fmt.Errorf("template at offset %d: %w", def.Offset, err)
	}

	if ctx.ResolveNames {
		name, err := rootElementName(c, def.Data)
		if err != nil {
			return nil, fmt.Errorf("template at offset %d: %w", def.Offset, err)
		}
		def.Name = name
	}

	return def, nil
}

// PeekNextOffset returns the next-template link of the definition at offset
// without decoding the rest of it.
func PeekNextOffset(data []byte, offset Offset) (Offset, error) {
	c := NewCursor(data)
	if err := c.Seek(offset); err != nil {
		return NoTemplate, err
	}
	next, err := c.Uint32()
	if err != nil {
		return NoTemplate, err
	}
	return Offset(next), nil
}

func checkFragment(data []byte) error {
	if len(data) < 5 {
		return fmt.Errorf("%w: fragment of %d bytes is too short", ErrMalformed, len(data))
	}
	if data[0] != TokenFragmentHeader {
		return fmt.Errorf("%w: expected fragment header token, got 0x%02x", ErrMalformed, data[0])
	}
	if data[1] != 1 || data[2] != 1 {
		return fmt.Errorf("%w: unsupported fragment version %d.%d", ErrMalformed, data[1], data[2])
	}
	if data[len(data)-1] != TokenEOF {
		return fmt.Errorf("%w: fragment is not terminated", ErrMalformed)
	}
	return nil
}

// rootElementName follows the name offset of the fragment's first element.
// Layout after the fragment header: token, u16 dependency id, u32 element
// size, u32 name offset.
func rootElementName(c *Cursor, data []byte) (string, error) {
	const nameOffsetAt = 4 + 1 + 2 + 4
	if len(data) < nameOffsetAt+4 {
		return "", fmt.Errorf("%w: fragment has no root element", ErrMalformed)
	}
	if tok := data[4]; tok != TokenOpenStartElement && tok != TokenOpenStartElementAt {
		return "", fmt.Errorf("%w: expected open start element, got 0x%02x", ErrMalformed, tok)
	}
	nameOffset := Offset(binary.LittleEndian.Uint32(data[nameOffsetAt:]))
	return readName(&Cursor{data: c.data}, nameOffset)
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// readName decodes a string table entry: u32 next, u16 hash, u16 char count,
// then UTF-16LE characters.
func readName(c *Cursor, offset Offset) (string, error) {
	if err := c.Seek(offset); err != nil {
		return "", fmt.Errorf("%w: element name: %w", ErrMalformed, err)
	}
	if _, err := c.Bytes(4 + 2); err != nil {
		return "", fmt.Errorf("reading element name header: %w", err)
	}
	count, err := c.Uint16()
	if err != nil {
		return "", fmt.Errorf("reading element name length: %w", err)
	}
	raw, err := c.Bytes(int(count) * 2)
	if err != nil {
		return "", fmt.Errorf("reading element name: %w", err)
	}
	name, err := utf16le.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("%w: decoding element name: %w", ErrMalformed, err)
	}
	return string(name), nil
}
