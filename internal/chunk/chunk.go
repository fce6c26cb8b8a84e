package chunk

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/evtxcache/internal/binxml"
	"github.com/dgnsrekt/evtxcache/internal/cache"
)

// Chunk is a loaded chunk. It owns its buffer; the template definitions in
// its cache alias that buffer and live exactly as long as the chunk.
type Chunk struct {
	header    *Header
	data      []byte
	records   []Record
	templates *cache.Templates
}

type loadConfig struct {
	followChains bool
	logger       *log.Logger
	cacheOpts    []cache.Option
}

// Option configures Load.
type Option func(*loadConfig)

// WithFollowChains also caches templates reachable through each definition's
// next-template link.
func WithFollowChains(follow bool) Option {
	return func(c *loadConfig) {
		c.followChains = follow
	}
}

// WithLogger sets the logger for the chunk and its template cache.
func WithLogger(logger *log.Logger) Option {
	return func(c *loadConfig) {
		c.logger = logger
	}
}

// WithCacheOptions passes options through to the template cache builder.
func WithCacheOptions(opts ...cache.Option) Option {
	return func(c *loadConfig) {
		c.cacheOpts = append(c.cacheOpts, opts...)
	}
}

// Load parses data as a chunk and resolves all of its templates. A template
// that cannot be decoded fails the whole load.
func Load(data []byte, opts ...Option) (*Chunk, error) {
	cfg := &loadConfig{logger: log.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	records, err := ScanRecords(data, header)
	if err != nil {
		return nil, err
	}

	offsets := CandidateOffsets(data, header, records, cfg.followChains)

	builder := cache.New(append([]cache.Option{cache.WithLogger(cfg.logger)}, cfg.cacheOpts...)...)
	templates, err := builder.Populate(data, offsets)
	if err != nil {
		return nil, fmt.Errorf("unable to load chunk templates: %w", err)
	}

	cfg.logger.Debug("Loaded chunk",
		"records", len(records),
		"templates", templates.Len(),
		"first_record", header.FirstRecordID,
		"last_record", header.LastRecordID)

	return &Chunk{
		header:    header,
		data:      data,
		records:   records,
		templates: templates,
	}, nil
}

// CandidateOffsets collects template offsets from the header's pointer table
// and from record template instances, in first-seen order without duplicates
// or sentinels. With follow set, next-template links are chased as well.
func CandidateOffsets(data []byte, h *Header, records []Record, follow bool) []binxml.Offset {
	seen := make(map[binxml.Offset]struct{})
	var offsets []binxml.Offset

	add := func(offset binxml.Offset) {
		if offset == binxml.NoTemplate {
			return
		}
		if _, ok := seen[offset]; ok {
			return
		}
		seen[offset] = struct{}{}
		offsets = append(offsets, offset)
	}

	for _, offset := range h.TemplatePointers {
		add(offset)
	}
	for _, r := range records {
		add(r.Template)
	}

	if follow {
		// offsets grows while iterating; the seen set ends cycles.
		for i := 0; i < len(offsets); i++ {
			next, err := binxml.PeekNextOffset(data, offsets[i])
			if err != nil {
				continue
			}
			add(next)
		}
	}

	return offsets
}

// Header returns the parsed chunk header.
func (c *Chunk) Header() *Header {
	return c.header
}

// Data returns the chunk buffer. It must not be modified.
func (c *Chunk) Data() []byte {
	return c.data
}

// Records returns the chunk's record headers.
func (c *Chunk) Records() []Record {
	return c.records
}

// Templates returns the chunk's template cache.
func (c *Chunk) Templates() *cache.Templates {
	return c.templates
}

// Template looks up the definition at offset.
func (c *Chunk) Template(offset binxml.Offset) (*binxml.TemplateDefinition, bool) {
	return c.templates.Get(offset)
}

// TemplateUsage counts the records that reference each template offset.
func (c *Chunk) TemplateUsage() map[binxml.Offset]int {
	usage := make(map[binxml.Offset]int)
	for _, r := range c.records {
		if r.Template != binxml.NoTemplate {
			usage[r.Template]++
		}
	}
	return usage
}
