// Package kvstore defines a small persistent key-value store.
//
// Keys are strings and values are opaque bytes.
// Every operation is atomic per key, and backends in subpackages are safe
// to use from many processes at once unless they say otherwise.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	xe "github.com/roundup-project/roundup/pkg/errors"
)

// Store is a persistent key-value store.
type Store interface {
	// Get returns the value of the key.
	//
	// # Returns
	//
	// - []byte: the value. nil when not found.
	//
	// - bool: true if the key is found.
	//
	// - error: *UnavailableError when the backend cannot answer.
	// A missing key is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put upserts the value for the key.
	Put(ctx context.Context, key string, value []byte) error

	// Exists tells whether the key has a value.
	Exists(ctx context.Context, key string) (bool, error)

	// Remove deletes the key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// PrefixRemover can remove every key starting with the prefix at once.
type PrefixRemover interface {
	RemovePrefix(ctx context.Context, prefix string) error
}

// Schema is a backend keeping values in a table, which can be created and dropped.
type Schema interface {
	// Create creates the table if not exists.
	Create(ctx context.Context) error

	// Drop drops the table with all values in it.
	Drop(ctx context.Context) error
}

// ErrUnavailable is the sentinel every *UnavailableError matches.
var ErrUnavailable = errors.New("key-value store is unavailable")

// UnavailableError reports that the backend could not be reached or could not
// commit the operation. It is transient: the operation can be retried.
type UnavailableError struct {
	Backend string
	Op      string
	Key     string
	Err     error
}

func (u *UnavailableError) Error() string {
	if u.Key == "" {
		return fmt.Sprintf("%s: %s: unavailable: %v", u.Backend, u.Op, u.Err)
	}
	return fmt.Sprintf("%s: %s %q: unavailable: %v", u.Backend, u.Op, u.Key, u.Err)
}

func (u *UnavailableError) Unwrap() []error {
	return []error{ErrUnavailable, u.Err}
}

// Unavailable builds an *UnavailableError annotated with the caller.
func Unavailable(backend, op, key string, err error) error {
	return xe.WrapAsOuter(&UnavailableError{Backend: backend, Op: op, Key: key, Err: err}, 1)
}

// IsUnavailable reports whether err says the backend is (transiently) unavailable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// GetOr returns the value of the key, or fallback when the key is missing.
func GetOr(ctx context.Context, s Store, key string, fallback []byte) ([]byte, error) {
	v, ok, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return fallback, nil
	}
	return v, nil
}

// PutJSON stores value encoded as JSON.
func PutJSON(ctx context.Context, s Store, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return xe.WrapWithNote(fmt.Sprintf("encoding value for %q", key), err)
	}
	return s.Put(ctx, key, b)
}

// GetJSON reads the value of the key as JSON into out.
//
// It returns false and leaves out untouched when the key is missing.
func GetJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	b, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return true, xe.WrapWithNote(fmt.Sprintf("decoding value of %q", key), err)
	}
	return true, nil
}

// RemovePrefix removes every key with the prefix.
//
// The store must implement PrefixRemover, otherwise ErrPrefixUnsupported is returned.
func RemovePrefix(ctx context.Context, s Store, prefix string) error {
	pr, ok := s.(PrefixRemover)
	if !ok {
		return xe.Wrap(ErrPrefixUnsupported)
	}
	return pr.RemovePrefix(ctx, prefix)
}

var ErrPrefixUnsupported = errors.New("key-value store does not support removing by prefix")
