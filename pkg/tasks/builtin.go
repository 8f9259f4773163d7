package tasks

import (
	"context"
	"fmt"
	"os"
	"time"

	xe "github.com/roundup-project/roundup/pkg/errors"
)

// Builtins returns a new registry with functions the roundup command provides.
//
//   - "sleep" waits for args[0] seconds, or until canceled.
//   - "touch" creates each file in args, or updates its modification time.
//
// Programs embedding roundup can register more on it.
func Builtins() *Registry {
	return NewRegistry().
		MustRegister("sleep", sleep).
		MustRegister("touch", touch)
}

func sleep(ctx context.Context, args []any, kwargs map[string]any) error {
	if len(args) != 1 {
		return xe.Errorf("sleep: want 1 argument, got %d", len(args))
	}
	sec, ok := args[0].(float64)
	if !ok || sec < 0 {
		return xe.Errorf("sleep: argument should be seconds: %v", args[0])
	}

	timer := time.NewTimer(time.Duration(sec * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func touch(ctx context.Context, args []any, kwargs map[string]any) error {
	now := time.Now()
	for _, a := range args {
		path, ok := a.(string)
		if !ok || path == "" {
			return xe.Errorf("touch: argument should be a path: %v", a)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return xe.Wrap(err)
		}
		if err := f.Close(); err != nil {
			return xe.Wrap(err)
		}
		if err := os.Chtimes(path, now, now); err != nil {
			return xe.Wrap(fmt.Errorf("touch: %w", err))
		}
	}
	return nil
}
