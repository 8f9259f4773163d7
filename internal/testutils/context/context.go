package context

import (
	"context"
	"testing"
	"time"
)

// WithTest derives a context which ends 1 second before the deadline of the test,
// so that the test has time to clean up after a blocking call is canceled.
//
// Without test deadline (no -timeout), ctx is returned as is.
func WithTest(ctx context.Context, t *testing.T) (context.Context, func()) {
	if deadline, ok := t.Deadline(); ok {
		return context.WithDeadline(ctx, deadline.Add(-time.Second))
	}
	return ctx, func() {}
}
