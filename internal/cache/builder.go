package cache

import (
	"errors"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/evtxcache/internal/binxml"
)

type buildState int

const (
	stateBuilding buildState = iota
	statePopulated
	stateFailed
)

// Builder decodes the templates of one chunk. It is populated once and then
// hands out an immutable Templates view; it is not safe for concurrent use.
type Builder struct {
	read   ReaderFunc
	ctx    binxml.Context
	logger *log.Logger

	state buildState
	view  *Templates
}

// Option configures a Builder.
type Option func(*Builder)

// WithReader replaces the template definition reader.
func WithReader(read ReaderFunc) Option {
	return func(b *Builder) {
		b.read = read
	}
}

// WithContext replaces the context handed to the reader.
func WithContext(ctx binxml.Context) Option {
	return func(b *Builder) {
		b.ctx = ctx
	}
}

// WithLogger sets the logger used for population diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// New creates an empty builder.
func New(opts ...Option) *Builder {
	b := &Builder{
		read:   binxml.ReadTemplateDefinition,
		ctx:    binxml.DefaultContext(),
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Populate decodes the template at every non-zero offset in data and returns
// the resulting view. Zero offsets are skipped without reading. A repeated
// offset is decoded again and the later definition wins.
//
// The first failure aborts population and nothing is published. The builder
// must then be discarded together with the chunk.
func (b *Builder) Populate(data []byte, offsets []binxml.Offset) (*Templates, error) {
	switch b.state {
	case statePopulated:
		return nil, ErrAlreadyPopulated
	case stateFailed:
		return nil, ErrBuildFailed
	}

	entries := make(map[binxml.Offset]*binxml.TemplateDefinition, len(offsets))
	cursor := binxml.NewCursor(data)
	sentinels := 0

	for _, offset := range offsets {
		if offset == binxml.NoTemplate {
			sentinels++
			continue
		}

		if err := cursor.Seek(offset); err != nil {
			return nil, b.fail(ErrorCodePosition, offset, err)
		}

		def, err := b.read(cursor, b.ctx)
		if err == nil && def == nil {
			err = errors.New("reader returned no definition")
		}
		if err != nil {
			return nil, b.fail(ErrorCodeDecode, offset, err)
		}

		entries[offset] = def
	}

	b.view = &Templates{entries: entries}
	b.state = statePopulated

	b.logger.Debug("Populated template cache",
		"templates", len(entries),
		"offsets", len(offsets),
		"sentinels", sentinels)

	return b.view, nil
}

// Len returns the number of cached templates, 0 until Populate succeeds.
func (b *Builder) Len() int {
	return b.view.Len()
}

// Templates returns the published view, or nil if Populate has not succeeded.
// The nil view is empty and safe to query.
func (b *Builder) Templates() *Templates {
	return b.view
}

func (b *Builder) fail(code ErrorCode, offset binxml.Offset, cause error) error {
	b.state = stateFailed
	err := &TemplateError{Code: code, Offset: offset, Cause: cause}
	b.logger.Warn("Template cache population failed",
		"code", code,
		"offset", offset,
		"error", cause)
	return err
}
