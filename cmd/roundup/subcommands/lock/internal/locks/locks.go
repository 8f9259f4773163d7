package locks

import (
	roundup "github.com/roundup-project/roundup/pkg"
	xe "github.com/roundup-project/roundup/pkg/errors"
	"github.com/roundup-project/roundup/pkg/pairlock"
)

// Of returns the lock manager on the store, even when locks are disabled in config.
func Of(r roundup.Roundup) (*pairlock.Manager, error) {
	if m := r.Locks(); m != nil {
		return m, nil
	}
	if r.Store() == nil {
		return nil, xe.WrapWithNote("locks need a key-value store", roundup.ErrNoStore)
	}
	return pairlock.New(r.Store()), nil
}
