// Package report summarizes the template caches of loaded EVTX files.
package report

import (
	"github.com/dgnsrekt/evtxcache/internal/binxml"
	"github.com/dgnsrekt/evtxcache/internal/evtxfile"
	"github.com/sahilm/fuzzy"
)

// Report describes one file.
type Report struct {
	File   string        `yaml:"file"`
	Size   int64         `yaml:"size"`
	Chunks []ChunkReport `yaml:"chunks"`
}

// ChunkReport describes one chunk and its template cache.
type ChunkReport struct {
	Index       int              `yaml:"index"`
	Offset      int64            `yaml:"offset"`
	Records     int              `yaml:"records"`
	FirstRecord uint64           `yaml:"first_record,omitempty"`
	LastRecord  uint64           `yaml:"last_record,omitempty"`
	Unresolved  int              `yaml:"unresolved,omitempty"`
	Error       string           `yaml:"error,omitempty"`
	Templates   []TemplateReport `yaml:"templates,omitempty"`
}

// TemplateReport describes one cached template.
type TemplateReport struct {
	Offset   binxml.Offset `yaml:"offset"`
	GUID     string        `yaml:"guid"`
	Name     string        `yaml:"name"`
	DataSize uint32        `yaml:"data_size"`
	Records  int           `yaml:"records"`
}

// Build summarizes f.
func Build(f *evtxfile.File) Report {
	r := Report{File: f.Path, Size: f.Size}

	for _, lc := range f.Chunks {
		cr := ChunkReport{Index: lc.Index, Offset: lc.Offset}
		if lc.Err != nil {
			cr.Error = lc.Err.Error()
			r.Chunks = append(r.Chunks, cr)
			continue
		}

		c := lc.Chunk
		cr.Records = len(c.Records())
		cr.FirstRecord = c.Header().FirstRecordID
		cr.LastRecord = c.Header().LastRecordID

		usage := c.TemplateUsage()
		for offset := range usage {
			if !c.Templates().Contains(offset) {
				cr.Unresolved += usage[offset]
			}
		}

		for _, offset := range c.Templates().Offsets() {
			def, ok := c.Template(offset)
			if !ok {
				continue
			}
			cr.Templates = append(cr.Templates, TemplateReport{
				Offset:   offset,
				GUID:     def.ID.String(),
				Name:     def.Name,
				DataSize: def.DataSize,
				Records:  usage[offset],
			})
		}

		r.Chunks = append(r.Chunks, cr)
	}

	return r
}

// TemplateCount returns the number of templates across all chunks.
func (r Report) TemplateCount() int {
	n := 0
	for _, c := range r.Chunks {
		n += len(c.Templates)
	}
	return n
}

// Filter keeps the templates whose names fuzzy-match pattern. An empty
// pattern keeps everything.
func (r Report) Filter(pattern string) Report {
	if pattern == "" {
		return r
	}

	out := r
	out.Chunks = make([]ChunkReport, len(r.Chunks))
	for i, c := range r.Chunks {
		names := make([]string, len(c.Templates))
		for j, t := range c.Templates {
			names[j] = t.Name
		}

		matches := fuzzy.Find(pattern, names)
		// fuzzy sorts by score; keep offset order instead.
		keep := make([]bool, len(names))
		for _, m := range matches {
			keep[m.Index] = true
		}

		c.Templates = nil
		for j, t := range r.Chunks[i].Templates {
			if keep[j] {
				c.Templates = append(c.Templates, t)
			}
		}
		out.Chunks[i] = c
	}
	return out
}
