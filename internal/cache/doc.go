// Package cache holds the per-chunk template definition cache. A Builder
// decodes every template a chunk references exactly once and publishes an
// immutable Templates view that record rendering reads from.
package cache
