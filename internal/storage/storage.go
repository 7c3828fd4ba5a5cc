// Package storage provides FileStore, a small file-oriented storage
// abstraction with a local-disk and an S3 implementation. The model cache
// persists artifacts through it.
package storage

import (
	"context"
	"io"
)

// FileStore reads and writes whole files addressed by slash-separated paths
// relative to the store root. Implementations are safe for concurrent use.
type FileStore interface {
	// Read opens the named file. A missing file yields an error wrapping
	// os.ErrNotExist. The caller closes the reader.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing. Nothing is visible to readers
	// until Close returns nil; a failed write never replaces an existing file.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file. Deleting a missing file is not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)

	// Location describes where files live, for display.
	Location() string
}
