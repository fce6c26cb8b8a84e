package chunk

import (
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/evtxcache/internal/binxml"
	"github.com/dgnsrekt/evtxcache/internal/cache"
	"github.com/dgnsrekt/evtxcache/internal/evtxtest"
	"github.com/google/go-cmp/cmp"
)

func quiet() Option {
	logger := log.New(io.Discard)
	return WithLogger(logger)
}

// twoTemplateChunk has five records over two inline templates.
func twoTemplateChunk() (data []byte, event, system binxml.Offset) {
	b := evtxtest.NewChunk()
	event = b.AddTemplateRecord(1, evtxtest.GUID(1), "Event")
	b.AddRecord(2, event)
	system = b.AddTemplateRecord(3, evtxtest.GUID(2), "System")
	b.AddRecord(4, system)
	b.AddRecord(5, event)
	return b.Bytes(), event, system
}

func TestLoad(t *testing.T) {
	data, event, system := twoTemplateChunk()

	c, err := Load(data, quiet())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.Templates().Len() != 2 {
		t.Errorf("templates = %d, want 2", c.Templates().Len())
	}

	for offset, name := range map[binxml.Offset]string{event: "Event", system: "System"} {
		def, ok := c.Template(offset)
		if !ok {
			t.Errorf("template %d missing", offset)
			continue
		}
		if def.Name != name {
			t.Errorf("template %d name = %q, want %q", offset, def.Name, name)
		}
	}

	if len(c.Records()) != 5 {
		t.Errorf("records = %d, want 5", len(c.Records()))
	}
	if c.Header().FirstRecordID != 1 || c.Header().LastRecordID != 5 {
		t.Errorf("record ids = %d..%d, want 1..5", c.Header().FirstRecordID, c.Header().LastRecordID)
	}

	want := map[binxml.Offset]int{event: 3, system: 2}
	if diff := cmp.Diff(want, c.TemplateUsage()); diff != "" {
		t.Errorf("TemplateUsage mismatch (-want +got):\n%s", diff)
	}

	if _, ok := c.Template(binxml.NoTemplate); ok {
		t.Error("Template(NoTemplate) should miss")
	}
}

func TestLoad_EmptyChunk(t *testing.T) {
	c, err := Load(evtxtest.NewChunk().Bytes(), quiet())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Templates().Len() != 0 || len(c.Records()) != 0 {
		t.Errorf("empty chunk has %d templates and %d records", c.Templates().Len(), len(c.Records()))
	}
}

func TestLoad_Header(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"truncated", []byte("ElfChnk\x00"), ErrTruncated},
		{"bad magic", make([]byte, Size), ErrBadMagic},
		{"free space past end", freeSpace(Size + 1), ErrTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.data, quiet()); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func freeSpace(offset uint32) []byte {
	data := evtxtest.NewChunk().Bytes()
	binary.LittleEndian.PutUint32(data[48:], offset)
	return data
}

func TestParseHeader(t *testing.T) {
	data, event, system := twoTemplateChunk()
	binary.LittleEndian.PutUint32(data[flagsAt:], 1)

	h, err := ParseHeader(data)
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}

	if h.FirstRecordNumber != 1 || h.LastRecordNumber != 5 {
		t.Errorf("record numbers = %d-%d, want 1-5", h.FirstRecordNumber, h.LastRecordNumber)
	}
	if h.FirstRecordID != 1 || h.LastRecordID != 5 {
		t.Errorf("record ids = %d-%d, want 1-5", h.FirstRecordID, h.LastRecordID)
	}
	if h.Flags != 1 {
		t.Errorf("Flags = %d, want 1", h.Flags)
	}

	records, err := ScanRecords(data, h)
	if err != nil {
		t.Fatalf("ScanRecords failed: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("records = %d, want 5", len(records))
	}
	if last := records[len(records)-1]; h.LastRecordOffset != last.Offset {
		t.Errorf("LastRecordOffset = %d, want %d", h.LastRecordOffset, last.Offset)
	}
	if end := recordsEnd(records); h.FreeSpaceOffset != end {
		t.Errorf("FreeSpaceOffset = %d, want %d", h.FreeSpaceOffset, end)
	}

	var pointers []binxml.Offset
	for _, p := range h.TemplatePointers {
		if p != binxml.NoTemplate {
			pointers = append(pointers, p)
		}
	}
	if diff := cmp.Diff([]binxml.Offset{event, system}, pointers); diff != "" {
		t.Errorf("template pointers mismatch (-want +got):\n%s", diff)
	}

	var templates []binxml.Offset
	for _, r := range records {
		templates = append(templates, r.Template)
	}
	if diff := cmp.Diff([]binxml.Offset{event, event, system, system, event}, templates); diff != "" {
		t.Errorf("record templates mismatch (-want +got):\n%s", diff)
	}
}

func recordsEnd(records []Record) binxml.Offset {
	r := records[len(records)-1]
	return r.Offset + binxml.Offset(r.Size)
}

func TestLoad_TemplateFailureFailsChunk(t *testing.T) {
	tests := []struct {
		name    string
		pointer binxml.Offset
		want    error
	}{
		{"zeroed bytes", 0x9000, cache.ErrDecode},
		{"past chunk", 0x20000, cache.ErrPosition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := evtxtest.NewChunk()
			b.AddTemplateRecord(1, evtxtest.GUID(1), "Event")
			b.SetTemplatePointer(5, tt.pointer)

			c, err := Load(b.Bytes(), quiet())
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if c != nil {
				t.Error("a failed load must not return a chunk")
			}
		})
	}
}

func TestLoad_FollowChains(t *testing.T) {
	b := evtxtest.NewChunk()
	event := b.AddTemplateRecord(1, evtxtest.GUID(1), "Event")
	data := b.Bytes()

	// An orphan template only reachable through event's next link.
	orphan := 0x8000
	evtxtest.PutTemplate(data, orphan, evtxtest.GUID(9), uint32(event)+evtxtest.TemplateSize)
	evtxtest.SetNext(data, int(event), binxml.Offset(orphan))

	c, err := Load(data, quiet())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Templates().Len() != 1 {
		t.Errorf("without chains: templates = %d, want 1", c.Templates().Len())
	}

	c, err = Load(data, quiet(), WithFollowChains(true))
	if err != nil {
		t.Fatalf("Load with chains failed: %v", err)
	}
	def, ok := c.Template(binxml.Offset(orphan))
	if !ok {
		t.Fatal("chained template not cached")
	}
	if def.Name != "Event" || def.ID != evtxtest.GUID(9) {
		t.Errorf("chained template = %s %q", def.ID, def.Name)
	}
}

func TestLoad_CacheOptions(t *testing.T) {
	data, event, _ := twoTemplateChunk()

	c, err := Load(data, quiet(), WithCacheOptions(cache.WithContext(binxml.Context{})))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	def, _ := c.Template(event)
	if def == nil || def.Name != "" {
		t.Errorf("names should not be resolved, got %+v", def)
	}
}

func TestCandidateOffsets(t *testing.T) {
	h := &Header{}
	h.TemplatePointers[0] = 300
	h.TemplatePointers[3] = 100
	h.TemplatePointers[4] = 300

	records := []Record{{Template: 100}, {Template: 0}, {Template: 200}}

	got := CandidateOffsets(nil, h, records, false)
	want := []binxml.Offset{300, 100, 200}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CandidateOffsets mismatch (-want +got):\n%s", diff)
	}
}

func TestScanRecords_Corrupt(t *testing.T) {
	data, _, _ := twoTemplateChunk()
	data[HeaderSize] = 0x00

	h, err := ParseHeader(data)
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}
	if _, err := ScanRecords(data, h); !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("expected ErrCorruptRecord, got %v", err)
	}
	if _, err := Load(data, quiet()); !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("Load: expected ErrCorruptRecord, got %v", err)
	}
}
