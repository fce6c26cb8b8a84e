// Package chunk loads EVTX chunks. Loading parses the chunk header, walks the
// record headers, and resolves every template the chunk references into a
// template cache before any record is rendered.
package chunk
