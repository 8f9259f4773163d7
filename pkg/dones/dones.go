// Package dones remembers which tasks of a namespace have completed.
//
// A done mark is a plain fact "the task `name` in the namespace `ns` is done".
// Marks stay until they are unmarked or the namespace is reset.
package dones

import (
	"context"
	"net/url"

	xe "github.com/roundup-project/roundup/pkg/errors"
	"github.com/roundup-project/roundup/pkg/kvstore"
)

type Dones interface {
	// Done tells whether the task is marked as done.
	Done(ctx context.Context, ns, name string) (bool, error)

	// Mark marks the task as done. Marking twice is the same as marking once.
	Mark(ctx context.Context, ns, name string) error

	// Unmark removes the mark. Unmarking an unmarked task is fine.
	Unmark(ctx context.Context, ns, name string) error

	// AllDone tells whether every task is done.
	//
	// It stops at the first task not done. It is true for no names.
	AllDone(ctx context.Context, ns string, names []string) (bool, error)

	// AnyDone tells whether at least one task is done.
	//
	// It stops at the first task done. It is false for no names.
	AnyDone(ctx context.Context, ns string, names []string) (bool, error)

	// Reset removes every mark in the namespace.
	Reset(ctx context.Context, ns string) error
}

const keyRoot = "dones/"

// Prefix is the key prefix under which marks of the namespace are stored.
//
// The namespace is escaped, so prefixes of two namespaces never overlap
// even if one namespace is a prefix of the other.
func Prefix(ns string) string {
	return keyRoot + url.PathEscape(ns) + "/"
}

// Key is the key of the done mark for the task.
func Key(ns, name string) string {
	return Prefix(ns) + name
}

var doneValue = []byte("true")

type kvDones struct {
	store kvstore.Store
}

// New returns Dones storing marks in the key-value store.
//
// Reset needs the store to be a kvstore.PrefixRemover.
func New(store kvstore.Store) Dones {
	return &kvDones{store: store}
}

func (d *kvDones) Done(ctx context.Context, ns, name string) (bool, error) {
	ok, err := d.store.Exists(ctx, Key(ns, name))
	if err != nil {
		return false, xe.Wrap(err)
	}
	return ok, nil
}

func (d *kvDones) Mark(ctx context.Context, ns, name string) error {
	return xe.Wrap(d.store.Put(ctx, Key(ns, name), doneValue))
}

func (d *kvDones) Unmark(ctx context.Context, ns, name string) error {
	return xe.Wrap(d.store.Remove(ctx, Key(ns, name)))
}

func (d *kvDones) AllDone(ctx context.Context, ns string, names []string) (bool, error) {
	for _, n := range names {
		done, err := d.Done(ctx, ns, n)
		if err != nil {
			return false, err
		}
		if !done {
			return false, nil
		}
	}
	return true, nil
}

func (d *kvDones) AnyDone(ctx context.Context, ns string, names []string) (bool, error) {
	for _, n := range names {
		done, err := d.Done(ctx, ns, n)
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
	}
	return false, nil
}

func (d *kvDones) Reset(ctx context.Context, ns string) error {
	return xe.Wrap(kvstore.RemovePrefix(ctx, d.store, Prefix(ns)))
}
