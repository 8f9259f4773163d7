package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	xe "github.com/roundup-project/roundup/pkg/errors"
)

// Func is a function CallTasks can call.
//
// args and kwargs arrive as decoded from JSON:
// numbers are float64, objects are map[string]any.
type Func func(ctx context.Context, args []any, kwargs map[string]any) error

var (
	ErrUnknownFunc   = errors.New("function is not registered")
	ErrDuplicateFunc = errors.New("function is registered already")
)

// Registry maps stable string keys to functions.
//
// Both the process submitting tasks and the process running them
// should populate the registry the same way at startup.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: map[string]Func{}}
}

// Register adds fn under the key.
func (r *Registry) Register(key string, fn Func) error {
	if key == "" {
		return xe.New("function key is empty")
	}
	if fn == nil {
		return xe.Errorf("function for %q is nil", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.funcs[key]; ok {
		return xe.Wrap(fmt.Errorf("%w: %s", ErrDuplicateFunc, key))
	}
	r.funcs[key] = fn
	return nil
}

// MustRegister is Register which panics on error. For package initialization.
func (r *Registry) MustRegister(key string, fn Func) *Registry {
	if err := r.Register(key, fn); err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Lookup(key string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[key]
	if !ok {
		return nil, xe.Wrap(fmt.Errorf("%w: %s", ErrUnknownFunc, key))
	}
	return fn, nil
}

// Keys returns registered keys in order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.funcs))
	for k := range r.funcs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
