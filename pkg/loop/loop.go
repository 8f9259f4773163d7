// Package loop repeats a step, pausing between steps, until the step breaks
// or the context is done.
package loop

import (
	"context"
	"fmt"
	"time"
)

// Next tells Start what to do after a step.
//
// The zero value continues without pause.
type Next struct {
	stop  bool
	err   error
	pause time.Duration
}

// Continue runs the next step after pause.
func Continue(pause time.Duration) Next {
	return Next{pause: pause}
}

// Break stops the loop. Start returns err as it is, nil included.
func Break(err error) Next {
	return Next{stop: true, err: err}
}

func (n Next) String() string {
	switch {
	case n.stop && n.err != nil:
		return fmt.Sprintf("break: %v", n.err)
	case n.stop:
		return "break"
	default:
		return fmt.Sprintf("continue after %s", n.pause)
	}
}

// Step receives the value the previous step returned, or the initial value.
type Step[T any] func(ctx context.Context, last T) (T, Next)

type config struct {
	delay time.Duration
}

type Option func(*config)

// WithDelay pauses before the first step.
func WithDelay(d time.Duration) Option {
	return func(c *config) {
		c.delay = d
	}
}

// Start runs step until it returns Break.
//
// It returns the value the last step returned, and the error passed to Break.
// When ctx is done, it returns ctx.Err() with the latest value without running more steps.
// A context done already means no steps run.
func Start[T any](ctx context.Context, init T, step Step[T], options ...Option) (T, error) {
	c := config{}
	for _, opt := range options {
		opt(&c)
	}

	value := init
	pause := c.delay
	for {
		if err := sleep(ctx, pause); err != nil {
			return value, err
		}
		var next Next
		value, next = step(ctx, value)
		if next.stop {
			return value, next.err
		}
		pause = next.pause
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
