package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")
	s, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if _, ok, err := s.Read(ctx, "childminder_children"); ok || err != nil {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := s.Write(ctx, "childminder_children", []byte(`[{"id":"a"}]`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Write(ctx, "childminder_children", []byte(`[]`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, ok, err := s.Read(ctx, "childminder_children")
	if err != nil || !ok || string(got) != `[]` {
		t.Fatalf("unexpected read: %q ok=%v err=%v", got, ok, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "childminder_children.json" {
		t.Fatalf("expected a single document and no temp files, got %v", entries)
	}
}

func TestFileStoreRejectsPathKeys(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Write(context.Background(), "../escape", []byte(`[]`)); err == nil {
		t.Fatalf("expected error for key with path separators")
	}
}
