package errors_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	xe "github.com/roundup-project/roundup/pkg/errors"
)

var errCause = errors.New("cause")

func TestWrap(t *testing.T) {
	t.Run("wrapped error unwraps to its cause", func(t *testing.T) {
		err := xe.Wrap(errCause)
		if !errors.Is(err, errCause) {
			t.Errorf("errors.Is(%v, cause) = false, want true", err)
		}
	})

	t.Run("wrapped error knows where it has been wrapped", func(t *testing.T) {
		err := xe.Wrap(errCause)
		var ewc *xe.ErrWithCaller
		if !errors.As(err, &ewc) {
			t.Fatalf("error is not *ErrWithCaller: %v", err)
		}
		if !strings.HasSuffix(ewc.File(), "errors_test.go") {
			t.Errorf("file = %s, want errors_test.go", ewc.File())
		}
		if !strings.HasSuffix(ewc.Func(), "TestWrap.func2") {
			t.Errorf("func = %s, want ...TestWrap.func2", ewc.Func())
		}
	})

	t.Run("nil is not wrapped", func(t *testing.T) {
		if err := xe.Wrap(nil); err != nil {
			t.Errorf("Wrap(nil) = %v, want nil", err)
		}
		if err := xe.WrapWithNote("note", nil); err != nil {
			t.Errorf("WrapWithNote(nil) = %v, want nil", err)
		}
	})

	t.Run("note is in message", func(t *testing.T) {
		err := xe.WrapWithNote("while marking", errCause)
		if !strings.Contains(err.Error(), "(while marking) <- cause") {
			t.Errorf("unexpected message: %s", err.Error())
		}
	})

	t.Run("Errorf keeps %w chain", func(t *testing.T) {
		err := xe.Errorf("outer: %w", errCause)
		if !errors.Is(err, errCause) {
			t.Errorf("errors.Is(%v, cause) = false, want true", err)
		}
	})
}

func TestTrace(t *testing.T) {
	inner := func() error { return xe.WrapWithNote("inner", errCause) }
	outer := func() error { return xe.Wrap(fmtWrap(inner())) }

	trace := xe.Trace(outer())
	if len(trace) != 2 {
		t.Fatalf("trace = %v", trace)
	}
	if !strings.Contains(trace[0], "TestTrace.func2") || strings.Contains(trace[0], "(inner)") {
		t.Errorf("trace[0] = %s", trace[0])
	}
	if !strings.Contains(trace[1], "TestTrace.func1") || !strings.HasSuffix(trace[1], "(inner)") {
		t.Errorf("trace[1] = %s", trace[1])
	}

	if trace := xe.Trace(errCause); len(trace) != 0 {
		t.Errorf("trace of a bare error = %v", trace)
	}
}

func fmtWrap(err error) error {
	return fmt.Errorf("while testing: %w", err)
}
