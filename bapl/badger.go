package bapl

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore is a durable Store backed by BadgerDB.
// Writes are synced to disk before Write returns.
type BadgerStore struct {
	db   *badger.DB
	path string
}

// OpenBadgerStore opens or creates a BadgerStore under the given directory.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = true
	opts.Logger = nil
	opts.NumVersionsToKeep = 1

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %s: %w", path, err)
	}

	return &BadgerStore{db: db, path: path}, nil
}

func (s *BadgerStore) Write(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// badger may reference the slices until the txn commits
	key, value = bytes.Clone(key), bytes.Clone(value)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("writing batch %X: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) Read(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading batch %X: %w", key, err)
	}
	return value, nil
}

func (s *BadgerStore) Path() string {
	return s.path
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
