package cache

import (
	"slices"
	"sync/atomic"

	"github.com/dgnsrekt/evtxcache/internal/binxml"
)

// Templates is the read-only view produced by Builder.Populate. It is safe
// for concurrent lookups. A nil *Templates behaves as an empty view.
type Templates struct {
	entries map[binxml.Offset]*binxml.TemplateDefinition

	hits   atomic.Int64
	misses atomic.Int64
}

// Get returns the definition cached at offset. It never decodes; offsets that
// were not populated, including NoTemplate, report false.
func (t *Templates) Get(offset binxml.Offset) (*binxml.TemplateDefinition, bool) {
	if t == nil {
		return nil, false
	}
	def, ok := t.entries[offset]
	if !ok {
		t.misses.Add(1)
		return nil, false
	}
	t.hits.Add(1)
	return def, true
}

// Contains checks if offset is cached without touching the counters.
func (t *Templates) Contains(offset binxml.Offset) bool {
	if t == nil {
		return false
	}
	_, ok := t.entries[offset]
	return ok
}

// Len returns the number of distinct cached offsets.
func (t *Templates) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Offsets returns the cached offsets in ascending order.
func (t *Templates) Offsets() []binxml.Offset {
	if t == nil {
		return nil
	}
	offsets := make([]binxml.Offset, 0, len(t.entries))
	for offset := range t.entries {
		offsets = append(offsets, offset)
	}
	slices.Sort(offsets)
	return offsets
}

// Stats returns lookup statistics.
func (t *Templates) Stats() CacheStats {
	if t == nil {
		return CacheStats{}
	}
	stats := CacheStats{
		Templates: len(t.entries),
		Hits:      t.hits.Load(),
		Misses:    t.misses.Load(),
	}
	if stats.Hits+stats.Misses > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.Hits+stats.Misses)
	}
	return stats
}
