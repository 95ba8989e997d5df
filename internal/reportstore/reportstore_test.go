package reportstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestFSWriter_Store(t *testing.T) {
	root := t.TempDir()
	w := NewFSWriter(root)
	runID := uuid.New()

	location, err := w.Store(context.Background(), runID, "summary.json", strings.NewReader(`{"ok":true}`))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	want := filepath.Join(root, runID.String(), "summary.json")
	if location != want {
		t.Fatalf("location = %q, want %q", location, want)
	}

	data, err := os.ReadFile(location)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"ok":true}` {
		t.Fatalf("content = %q", data)
	}
}

func TestFSWriter_StripsDirectoryFromName(t *testing.T) {
	root := t.TempDir()
	w := NewFSWriter(root)
	runID := uuid.New()

	location, err := w.Store(context.Background(), runID, "../escape.json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if location != filepath.Join(root, runID.String(), "escape.json") {
		t.Fatalf("name not sanitized: %q", location)
	}
}

func TestNopWriter(t *testing.T) {
	location, err := NopWriter{}.Store(context.Background(), uuid.New(), "bom.cdx.json", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if location != "bom.cdx.json" {
		t.Fatalf("location = %q", location)
	}
}

func TestNewWriterFromEnv(t *testing.T) {
	t.Setenv("CONVEYOR_REPORTS_BACKEND", "nop")
	w, err := NewWriterFromEnv()
	if err != nil {
		t.Fatalf("NewWriterFromEnv: %v", err)
	}
	if _, ok := w.(NopWriter); !ok {
		t.Fatalf("expected NopWriter, got %T", w)
	}

	t.Setenv("CONVEYOR_REPORTS_BACKEND", "ftp")
	if _, err := NewWriterFromEnv(); err != ErrUnknownBackend {
		t.Fatalf("err = %v, want ErrUnknownBackend", err)
	}
}

func TestObjectKey(t *testing.T) {
	runID := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	if got := objectKey(runID, "summary.json"); got != "6ba7b810-9dad-11d1-80b4-00c04fd430c8/summary.json" {
		t.Fatalf("objectKey = %q", got)
	}
}
