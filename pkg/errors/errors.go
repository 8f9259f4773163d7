// Package errors annotates errors with the places they have passed.
//
//	if err := store.Put(ctx, key, value); err != nil {
//		return xe.Wrap(err)
//	}
//
// The message of a wrapped error looks like
//
//	@ pkg.Func "path/to/file.go" l42 <- cause
//
// and Trace lists the places, outermost first.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrWithCaller is an error with the place where it has been wrapped.
type ErrWithCaller struct {
	frame runtime.Frame
	note  string
	err   error
}

func (e *ErrWithCaller) File() string {
	return e.frame.File
}

func (e *ErrWithCaller) Line() int {
	return e.frame.Line
}

func (e *ErrWithCaller) Func() string {
	return e.frame.Function
}

func (e *ErrWithCaller) place() string {
	if e.note == "" {
		return fmt.Sprintf(`%s "%s" l%d`, e.Func(), e.File(), e.Line())
	}
	return fmt.Sprintf(`%s "%s" l%d (%s)`, e.Func(), e.File(), e.Line(), e.note)
}

func (e *ErrWithCaller) Error() string {
	return "@ " + e.place() + " <- " + e.err.Error()
}

func (e *ErrWithCaller) Unwrap() error {
	return e.err
}

// New creates an error with text, annotated with the caller.
func New(text string) error {
	return wrap("", errors.New(text), 1)
}

// Errorf is fmt.Errorf annotated with the caller. %w works.
func Errorf(format string, args ...any) error {
	return wrap("", fmt.Errorf(format, args...), 1)
}

// Wrap annotates err with the caller. Wrap(nil) is nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return wrap("", err, 1)
}

// WrapAsOuter annotates err with the function `depth` frames above the caller.
//
// Helpers classifying errors use this to point their callers.
func WrapAsOuter(err error, depth int) error {
	if err == nil {
		return nil
	}
	return wrap("", err, depth+1)
}

// WrapWithNote annotates err with the caller and a note.
func WrapWithNote(note string, err error) error {
	if err == nil {
		return nil
	}
	return wrap(note, err, 1)
}

// Trace lists places err has passed, outermost first.
//
// Only the first chain of Unwrap() is followed. errors.Join-ed branches are not.
func Trace(err error) []string {
	trace := []string{}
	for err != nil {
		if e, ok := err.(*ErrWithCaller); ok {
			trace = append(trace, e.place())
		}
		err = errors.Unwrap(err)
	}
	return trace
}

func wrap(note string, err error, depth int) error {
	frame := runtime.Frame{Function: "(unknown func)", File: "?", Line: -1}
	pcs := make([]uintptr, 1)
	if runtime.Callers(depth+2, pcs) == 1 {
		frame, _ = runtime.CallersFrames(pcs).Next()
	}
	return &ErrWithCaller{frame: frame, note: note, err: err}
}
