package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/evtxcache/internal/chunk"
	"github.com/dgnsrekt/evtxcache/internal/evtxfile"
	"github.com/dgnsrekt/evtxcache/internal/evtxtest"
	"gopkg.in/yaml.v3"
)

func sampleFile(t *testing.T) *evtxfile.File {
	t.Helper()

	b := evtxtest.NewChunk()
	event := b.AddTemplateRecord(10, evtxtest.GUID(1), "Event")
	b.AddRecord(11, event)
	b.AddTemplateRecord(12, evtxtest.GUID(2), "SecurityAudit")

	c, err := chunk.Load(b.Bytes(), chunk.WithLogger(log.New(&bytes.Buffer{})))
	if err != nil {
		t.Fatalf("chunk.Load: %v", err)
	}

	return &evtxfile.File{
		Path: "Security.evtx",
		Size: evtxtest.FileHeaderSize + 2*evtxtest.ChunkSize,
		Chunks: []evtxfile.LoadedChunk{
			{Index: 0, Offset: evtxtest.FileHeaderSize, Chunk: c},
			{Index: 1, Offset: evtxtest.FileHeaderSize + evtxtest.ChunkSize, Err: errors.New("broken template")},
		},
	}
}

func TestBuild(t *testing.T) {
	r := Build(sampleFile(t))

	if len(r.Chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(r.Chunks))
	}

	c := r.Chunks[0]
	if c.Records != 3 || c.FirstRecord != 10 || c.LastRecord != 12 {
		t.Errorf("chunk 0 = %+v", c)
	}
	if len(c.Templates) != 2 {
		t.Fatalf("templates = %d, want 2", len(c.Templates))
	}
	if c.Templates[0].Name != "Event" || c.Templates[0].Records != 2 {
		t.Errorf("first template = %+v", c.Templates[0])
	}
	if c.Templates[1].Name != "SecurityAudit" || c.Templates[1].Records != 1 {
		t.Errorf("second template = %+v", c.Templates[1])
	}
	if c.Unresolved != 0 {
		t.Errorf("Unresolved = %d, want 0", c.Unresolved)
	}

	if r.Chunks[1].Error != "broken template" {
		t.Errorf("chunk 1 error = %q", r.Chunks[1].Error)
	}
	if r.TemplateCount() != 2 {
		t.Errorf("TemplateCount() = %d, want 2", r.TemplateCount())
	}
}

func TestFilter(t *testing.T) {
	r := Build(sampleFile(t))

	filtered := r.Filter("Sec")
	if got := filtered.Chunks[0].Templates; len(got) != 1 || got[0].Name != "SecurityAudit" {
		t.Errorf("Filter(Sec) = %+v", got)
	}
	if len(r.Chunks[0].Templates) != 2 {
		t.Error("Filter modified the original report")
	}
	if r.Filter("").TemplateCount() != 2 {
		t.Error("empty pattern should keep every template")
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"text":     FormatText,
		"YAML":     FormatYAML,
		"yml":      FormatYAML,
		"markdown": FormatMarkdown,
		"md":       FormatMarkdown,
	}
	for name, want := range tests {
		got, err := ParseFormat(name)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", name, got, err, want)
		}
	}

	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) should fail")
	}
}

func TestRender_Text(t *testing.T) {
	var buf bytes.Buffer
	reports := []Report{Build(sampleFile(t))}

	if err := Render(&buf, reports, FormatText, RenderOptions{}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"Security.evtx", "135 kB", "SecurityAudit", "broken template", "2 records"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("plain output contains escape sequences")
	}
}

func TestRender_YAML(t *testing.T) {
	var buf bytes.Buffer
	want := Build(sampleFile(t))

	if err := Render(&buf, []Report{want}, FormatYAML, RenderOptions{}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	var got Report
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	if got.File != want.File || got.TemplateCount() != want.TemplateCount() {
		t.Errorf("decoded report = %+v", got)
	}
}

func TestRender_Markdown(t *testing.T) {
	reports := []Report{Build(sampleFile(t))}

	md := Markdown(reports)
	if !strings.Contains(md, "| Offset | GUID | Name | Size | Records |") {
		t.Errorf("markdown table missing:\n%s", md)
	}

	var buf bytes.Buffer
	if err := Render(&buf, reports, FormatMarkdown, RenderOptions{Width: 120}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "SecurityAudit") {
		t.Errorf("rendered markdown missing template name:\n%s", buf.String())
	}
}
