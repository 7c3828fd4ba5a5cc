// Package cache stores model artifacts between runs. Backends share the
// Store interface so acquisition strategies never know where bytes live.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/chaz8081/vadsplit/internal/config"
	"github.com/chaz8081/vadsplit/internal/storage"
)

// ErrMiss is returned by Get when no artifact is stored under the key.
var ErrMiss = errors.New("cache: miss")

// Store persists model artifacts by key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, artifact []byte) error
}

// Location describes where s keeps its data, or "" if it cannot say.
func Location(s Store) string {
	if l, ok := s.(interface{ Location() string }); ok {
		return l.Location()
	}
	return ""
}

// Close releases s if the backend holds resources.
func Close(s Store) error {
	if c, ok := s.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Delete removes key from s when the backend supports eviction. It is a
// no-op otherwise.
func Delete(ctx context.Context, s Store, key string) error {
	if d, ok := s.(interface {
		Delete(ctx context.Context, key string) error
	}); ok {
		return d.Delete(ctx, key)
	}
	return nil
}

// Open builds the backend selected by cfg.Backend.
func Open(cfg config.CacheConfig, log *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "dir":
		fs, err := storage.NewLocal(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("cache: open dir: %w", err)
		}
		return NewFileCache(fs), nil
	case "s3":
		client := storage.NewS3Client(storage.S3Options{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			UsePathStyle:    cfg.S3.UsePathStyle,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		return NewFileCache(storage.NewS3(client, cfg.S3.Bucket, strings.Trim(cfg.S3.Prefix, "/"))), nil
	case "badger":
		return OpenKV(KVOptions{Dir: cfg.Dir, Logger: log})
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("cache: unknown backend %q", cfg.Backend)
	}
}

// checkKey rejects keys that could escape the cache namespace.
func checkKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("cache: invalid key %q", key)
	}
	return nil
}

// Memory is an in-process Store.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	if !ok {
		return nil, ErrMiss
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Put(_ context.Context, key string, artifact []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = append([]byte(nil), artifact...)
	return nil
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// Location implements the Location probe.
func (m *Memory) Location() string { return "memory" }
