package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgnsrekt/evtxcache/internal/evtxtest"
	"github.com/dgnsrekt/evtxcache/internal/report"
)

func writeSample(t *testing.T, dir, name string) string {
	t.Helper()

	b := evtxtest.NewChunk()
	tmpl := b.AddTemplateRecord(1, evtxtest.GUID(7), "Event")
	b.AddRecord(2, tmpl)

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, evtxtest.File(b.Bytes()), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestResolvePaths(t *testing.T) {
	dir := t.TempDir()
	path := writeSample(t, dir, "System.evtx")

	got, err := resolvePaths(path)
	if err != nil {
		t.Fatalf("resolvePaths(file) failed: %v", err)
	}
	if len(got) != 1 || got[0] != path {
		t.Errorf("resolvePaths(file) = %v", got)
	}

	showAllFiles = true
	t.Cleanup(func() { showAllFiles = false })

	got, err = resolvePaths(dir)
	if err != nil {
		t.Fatalf("resolvePaths(dir) failed: %v", err)
	}
	if len(got) != 1 || filepath.Base(got[0]) != "System.evtx" {
		t.Errorf("resolvePaths(dir) = %v", got)
	}

	if _, err := resolvePaths(filepath.Join(dir, "missing.evtx")); err == nil {
		t.Error("resolvePaths should fail for a missing file")
	}
}

func TestInspectAndRender(t *testing.T) {
	path := writeSample(t, t.TempDir(), "Application.evtx")
	output = report.FormatYAML

	var buf bytes.Buffer
	if err := inspectAndRender([]string{path}, &buf); err != nil {
		t.Fatalf("inspectAndRender failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"Application.evtx", "name: Event", "records: 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
