package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"portfolio/api/internal/content"
)

// BadgerCache keeps the document in an embedded Badger database. It is the
// cache used when no Redis is configured.
type BadgerCache struct {
	db *badger.DB
}

// OpenBadgerCache opens (or creates) the cache under dir. An empty dir
// runs Badger in memory.
func OpenBadgerCache(dir string) (*BadgerCache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return &BadgerCache{db: db}, nil
}

func (c *BadgerCache) Get(ctx context.Context, name string) (content.Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + name))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cached document: %w", err)
	}
	return decode(name, raw)
}

func (c *BadgerCache) Set(ctx context.Context, name string, doc content.Tree) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := encode(doc)
	if err != nil {
		return err
	}
	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+name), raw)
	}); err != nil {
		return fmt.Errorf("write cached document: %w", err)
	}
	return nil
}

func (c *BadgerCache) Close() error {
	return c.db.Close()
}
