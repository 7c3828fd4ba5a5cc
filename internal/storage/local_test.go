package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	s, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func writeString(t *testing.T, s FileStore, path, data string) {
	t.Helper()
	w, err := s.Write(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(w, data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func readString(t *testing.T, s FileStore, path string) string {
	t.Helper()
	r, err := s.Read(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(got)
}

func TestLocalWriteAndRead(t *testing.T) {
	s := newTestLocal(t)
	writeString(t, s, "models/silero_vad.onnx", "onnx bytes")

	if got := readString(t, s, "models/silero_vad.onnx"); got != "onnx bytes" {
		t.Fatalf("got %q, want %q", got, "onnx bytes")
	}
}

func TestLocalReadNotExist(t *testing.T) {
	s := newTestLocal(t)
	_, err := s.Read(context.Background(), "missing.onnx")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestLocalWriteNotVisibleUntilClose(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	w, err := s.Write(ctx, "model.onnx")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(w, "partial"); err != nil {
		t.Fatal(err)
	}

	ok, err := s.Exists(ctx, "model.onnx")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("file visible before Close")
	}

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists(ctx, "model.onnx"); !ok {
		t.Fatal("file missing after Close")
	}

	entries, err := os.ReadDir(s.Location())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestLocalWriteReplaces(t *testing.T) {
	s := newTestLocal(t)
	writeString(t, s, "f", "long content here")
	writeString(t, s, "f", "short")

	if got := readString(t, s, "f"); got != "short" {
		t.Fatalf("got %q, want %q", got, "short")
	}
}

func TestLocalDeleteIdempotent(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	if err := s.Delete(ctx, "ghost"); err != nil {
		t.Fatal(err)
	}
	writeString(t, s, "tmp", "x")
	if err := s.Delete(ctx, "tmp"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists(ctx, "tmp"); ok {
		t.Fatal("file should be gone after delete")
	}
}

func TestNewLocalCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dir")
	s, err := NewLocal(dir)
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(s.Location())
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDir() {
		t.Fatal("expected directory")
	}
	if !filepath.IsAbs(s.Location()) {
		t.Errorf("Location() = %q, want an absolute path", s.Location())
	}
}
