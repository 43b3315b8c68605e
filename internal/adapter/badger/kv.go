// Package badger stores reading sessions durably in an embedded BadgerDB so a
// route survives a restart.
package badger

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	badgerdb "github.com/dgraph-io/badger/v4"
)

// KV implements session.KV on a BadgerDB. Values are stored as plain strings.
type KV struct {
	db *badgerdb.DB
}

// Open opens the store at dir. An empty dir keeps everything in memory.
func Open(dir string, logger *slog.Logger) (*KV, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(slogAdapter{logger: logger})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store %q: %w", dir, err)
	}
	return &KV{db: db}, nil
}

// Close flushes and closes the database.
func (k *KV) Close() error {
	return k.db.Close()
}

// Get returns the value at key and whether it exists.
func (k *KV) Get(key string) (string, bool, error) {
	var value []byte
	err := k.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return string(value), true, nil
}

// Set writes value at key.
func (k *KV) Set(key, value string) error {
	err := k.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Delete removes keys in one transaction. Missing keys are ignored.
func (k *KV) Delete(keys ...string) error {
	err := k.db.Update(func(txn *badgerdb.Txn) error {
		for _, key := range keys {
			if err := txn.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %d keys: %w", len(keys), err)
	}
	return nil
}

// Keys lists the keys starting with prefix in sorted order.
func (k *KV) Keys(prefix string) ([]string, error) {
	var keys []string
	err := k.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list keys %q: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// slogAdapter routes badger's internal logging to slog. Badger's info
// output is chatty, so it is logged at debug.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Errorf(format string, args ...any) {
	a.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (a slogAdapter) Warningf(format string, args ...any) {
	a.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (a slogAdapter) Infof(format string, args ...any) {
	a.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (a slogAdapter) Debugf(format string, args ...any) {
	a.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
