package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/chaz8081/vadsplit/internal/storage"
)

// FileCache keeps one file per key in a storage.FileStore. With a Local
// store the write is a temp file plus rename, so two runs populating the
// cache at once never expose a torn artifact.
type FileCache struct {
	fs storage.FileStore
}

// NewFileCache wraps fs.
func NewFileCache(fs storage.FileStore) *FileCache {
	return &FileCache{fs: fs}
}

// Get implements Store.
func (c *FileCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	ok, err := c.fs.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("cache: stat %s: %w", key, err)
	}
	if !ok {
		return nil, ErrMiss
	}
	r, err := c.fs.Read(ctx, key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("cache: read %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("cache: read %s: %w", key, err)
	}
	if len(data) == 0 {
		return nil, ErrMiss
	}
	return data, nil
}

// Put implements Store.
func (c *FileCache) Put(ctx context.Context, key string, artifact []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	w, err := c.fs.Write(ctx, key)
	if err != nil {
		return fmt.Errorf("cache: write %s: %w", key, err)
	}
	if _, err := w.Write(artifact); err != nil {
		w.Close()
		return fmt.Errorf("cache: write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("cache: commit %s: %w", key, err)
	}
	return nil
}

// Delete removes key from the store.
func (c *FileCache) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := c.fs.Delete(ctx, key); err != nil {
		return fmt.Errorf("cache: delete %s: %w", key, err)
	}
	return nil
}

// Location returns the underlying store location.
func (c *FileCache) Location() string { return c.fs.Location() }
