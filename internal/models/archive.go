package models

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/chaz8081/vadsplit/internal/cache"
)

// ExtractModels copies every .onnx file directly under dir inside the zip at
// zipPath into store, keyed by base name. The archive's top-level folder is
// ignored, so "src/silero_vad/data" matches
// "silero-vad-master/src/silero_vad/data/silero_vad.onnx". An empty dir
// matches .onnx files anywhere. It returns the keys written.
func ExtractModels(ctx context.Context, zipPath, dir string, store cache.Store) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("models: open archive: %w", err)
	}
	defer r.Close()

	dir = strings.Trim(path.Clean("/"+dir), "/")
	var keys []string
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return keys, err
		}
		if f.FileInfo().IsDir() || !inArchiveDir(f.Name, dir) {
			continue
		}
		if !strings.EqualFold(path.Ext(f.Name), ".onnx") {
			continue
		}
		if f.UncompressedSize64 > maxArtifactSize {
			return keys, fmt.Errorf("models: archive member %s too large", f.Name)
		}

		data, err := readMember(f)
		if err != nil {
			return keys, fmt.Errorf("models: extract %s: %w", f.Name, err)
		}
		key := path.Base(f.Name)
		if err := store.Put(ctx, key, data); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, maxArtifactSize))
}

// inArchiveDir reports whether name sits directly in dir, optionally below a
// single top-level folder.
func inArchiveDir(name, dir string) bool {
	parent := path.Dir(path.Clean("/" + name))
	parent = strings.TrimPrefix(parent, "/")
	if dir == "" {
		return true
	}
	if parent == dir {
		return true
	}
	if i := strings.IndexByte(parent, '/'); i >= 0 {
		return parent[i+1:] == dir
	}
	return false
}
