// Package try collapses a (value, error) pair where an error should stop everything,
// like in tests or at the top of main.
//
//	r := try.To(roundup.Attach(ctx, conf)).OrFatal(t)
package try

// Fataler is *testing.T, *log.Logger and so on.
type Fataler interface {
	Fatal(...any)
}

type Result[T any] struct {
	value T
	err   error
}

func To[T any](value T, err error) Result[T] {
	return Result[T]{value: value, err: err}
}

// OrFatal returns the value, or passes the error to f.Fatal.
//
// f.Helper is called before Fatal when f has it.
func (r Result[T]) OrFatal(f Fataler) T {
	if r.err == nil {
		return r.value
	}
	if h, ok := f.(interface{ Helper() }); ok {
		h.Helper()
	}
	f.Fatal(r.err)
	return *new(T)
}
