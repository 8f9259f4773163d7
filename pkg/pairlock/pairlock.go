// Package pairlock is an advisory, expiring lock on the key-value store.
//
// Acquire overwrites any record unconditionally. Two workers can both acquire
// a lock if they race between IsLocked and Acquire; the lock narrows the window
// of duplicated work but does not close it.
package pairlock

import (
	"context"
	"net/url"
	"time"

	xe "github.com/roundup-project/roundup/pkg/errors"
	"github.com/roundup-project/roundup/pkg/kvstore"
)

// DefaultTimeout is long enough for the longest pair computations.
const DefaultTimeout = 3 * 24 * time.Hour

const keyPrefix = "lock/"

// Key is the store key for the lock.
func Key(lock string) string {
	return keyPrefix + url.PathEscape(lock)
}

// Record is the stored form of a lock.
type Record struct {
	AcquiredUntil time.Time `json:"acquiredUntil"`
}

type Manager struct {
	store kvstore.Store
	now   func() time.Time
}

type Option func(*Manager) *Manager

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) *Manager {
		m.now = now
		return m
	}
}

func New(store kvstore.Store, options ...Option) *Manager {
	m := &Manager{store: store, now: time.Now}
	for _, o := range options {
		m = o(m)
	}
	return m
}

// Acquire writes the lock record, valid for timeout from now.
//
// Expired or not, an existing record is overwritten.
func (m *Manager) Acquire(ctx context.Context, lock string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	rec := Record{AcquiredUntil: m.now().Add(timeout).UTC()}
	if err := kvstore.PutJSON(ctx, m.store, Key(lock), rec); err != nil {
		return xe.WrapWithNote("lock "+lock, err)
	}
	return nil
}

// Release removes the lock record. Releasing a lock not held is not an error.
func (m *Manager) Release(ctx context.Context, lock string) error {
	if err := m.store.Remove(ctx, Key(lock)); err != nil {
		return xe.WrapWithNote("lock "+lock, err)
	}
	return nil
}

// Get returns the lock record, if any. Expired records are returned as they are.
func (m *Manager) Get(ctx context.Context, lock string) (Record, bool, error) {
	var rec Record
	found, err := kvstore.GetJSON(ctx, m.store, Key(lock), &rec)
	if err != nil {
		return Record{}, false, xe.WrapWithNote("lock "+lock, err)
	}
	return rec, found, nil
}

// IsLocked tells whether the lock is held: its record exists and has not expired.
func (m *Manager) IsLocked(ctx context.Context, lock string) (bool, error) {
	rec, found, err := m.Get(ctx, lock)
	if err != nil || !found {
		return false, err
	}
	return m.now().Before(rec.AcquiredUntil), nil
}

// Guard runs fn holding the lock.
//
// If the lock is held by someone, fn is not run and ran is false.
// The lock is released after fn, even if fn fails or panics.
func (m *Manager) Guard(ctx context.Context, lock string, timeout time.Duration, fn func(context.Context) error) (ran bool, err error) {
	locked, err := m.IsLocked(ctx, lock)
	if err != nil {
		return false, err
	}
	if locked {
		return false, nil
	}
	if err := m.Acquire(ctx, lock, timeout); err != nil {
		return false, err
	}
	defer func() {
		// release even when ctx is canceled.
		if rerr := m.Release(context.WithoutCancel(ctx), lock); rerr != nil && err == nil {
			err = rerr
		}
	}()

	return true, fn(ctx)
}
