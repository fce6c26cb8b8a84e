package cache

import (
	"errors"
	"fmt"

	"github.com/dgnsrekt/evtxcache/internal/binxml"
)

// Common errors for template cache operations
var (
	// ErrPosition is returned when an offset does not resolve inside the chunk buffer
	ErrPosition = errors.New("template offset outside chunk")

	// ErrDecode is returned when the bytes at an offset are not a valid template
	ErrDecode = errors.New("template definition malformed")

	// ErrAlreadyPopulated is returned when Populate is called a second time
	ErrAlreadyPopulated = errors.New("template cache already populated")

	// ErrBuildFailed is returned when a builder is reused after a failed Populate
	ErrBuildFailed = errors.New("template cache build previously failed")
)

// ErrorCode identifies the class of a population failure
type ErrorCode string

const (
	ErrorCodePosition ErrorCode = "POSITION"
	ErrorCodeDecode   ErrorCode = "DECODE"
)

// TemplateError describes why a template offset could not be cached
type TemplateError struct {
	Code   ErrorCode
	Offset binxml.Offset
	Cause  error
}

// Error implements the error interface
func (e *TemplateError) Error() string {
	return fmt.Sprintf("%s: template at offset %d: %v", e.Code, e.Offset, e.Cause)
}

// Unwrap returns the underlying error
func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// Is matches the ErrPosition and ErrDecode sentinels by code
func (e *TemplateError) Is(target error) bool {
	switch target {
	case ErrPosition:
		return e.Code == ErrorCodePosition
	case ErrDecode:
		return e.Code == ErrorCodeDecode
	}
	return false
}

// ReaderFunc decodes the template definition at the cursor's position.
type ReaderFunc func(c *binxml.Cursor, ctx binxml.Context) (*binxml.TemplateDefinition, error)

// CacheStats holds lookup counters for a Templates view
type CacheStats struct {
	Templates int   // Number of cached definitions
	Hits      int64 // Lookups that found a definition
	Misses    int64 // Lookups that found nothing

	HitRate float64 // hits / (hits + misses)
}
