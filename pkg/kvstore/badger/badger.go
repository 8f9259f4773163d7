// Package badger is an embedded kvstore backend on badger.
//
// A badger directory can be opened by one process only,
// so this backend suits single-host runs where every task is executed locally.
package badger

import (
	"context"
	"errors"

	badger "github.com/dgraph-io/badger/v2"

	xe "github.com/roundup-project/roundup/pkg/errors"
	"github.com/roundup-project/roundup/pkg/kvstore"
)

const backendName = "badger"

type Store struct {
	db *badger.DB
}

var _ kvstore.Store = &Store{}
var _ kvstore.PrefixRemover = &Store{}

// Open opens the database in dir, creating it when missing.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, kvstore.Unavailable(backendName, "open", "", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a database without any files.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classify("get", key, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	return classify("put", key, err)
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, classify("exists", key, err)
	}
	return true, nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	return classify("remove", key, err)
}

func (s *Store) RemovePrefix(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if prefix == "" {
		return classify("remove-prefix", prefix, s.db.DropAll())
	}
	return classify("remove-prefix", prefix, s.db.DropPrefix([]byte(prefix)))
}

func classify(op, key string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, badger.ErrBlockedWrites),
		errors.Is(err, badger.ErrConflict):
		return kvstore.Unavailable(backendName, op, key, err)
	}
	return xe.WrapAsOuter(err, 1)
}
