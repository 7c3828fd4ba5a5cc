package cache

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/chaz8081/vadsplit/internal/logging"
)

const kvPrefix = "model:"

// KVOptions configures OpenKV.
type KVOptions struct {
	// Dir holds the BadgerDB files. Ignored when InMemory is set.
	Dir      string
	InMemory bool
	Logger   *zap.Logger
}

// KVCache is a Store backed by BadgerDB. Badger holds an exclusive
// directory lock, so a second process opening the same Dir fails at Open.
type KVCache struct {
	db  *badger.DB
	dir string
}

// OpenKV opens or creates a badger-backed cache.
func OpenKV(o KVOptions) (*KVCache, error) {
	if !o.InMemory && o.Dir == "" {
		return nil, errors.New("cache: badger dir is required")
	}
	opts := badger.DefaultOptions(o.Dir).
		WithLogger(logging.NewPrintf(logging.OrNop(o.Logger).Named("badger")))
	if o.InMemory {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("cache: open badger: %w", err)
	}
	dir := o.Dir
	if o.InMemory {
		dir = "badger:memory"
	}
	return &KVCache{db: db, dir: dir}, nil
}

// Get implements Store.
func (c *KVCache) Get(_ context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	var val []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(kvPrefix + key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get %s: %w", key, err)
	}
	return val, nil
}

// Put implements Store.
func (c *KVCache) Put(_ context.Context, key string, artifact []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(kvPrefix+key), artifact)
	})
	if err != nil {
		return fmt.Errorf("cache: put %s: %w", key, err)
	}
	return nil
}

// Delete removes key. A missing key is not an error.
func (c *KVCache) Delete(_ context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(kvPrefix + key))
	})
	if err != nil {
		return fmt.Errorf("cache: delete %s: %w", key, err)
	}
	return nil
}

// Location returns the badger directory.
func (c *KVCache) Location() string { return c.dir }

// Close flushes and closes the database.
func (c *KVCache) Close() error {
	return c.db.Close()
}
