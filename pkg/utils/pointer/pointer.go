package pointer

// Ref returns a pointer to a copy of t.
func Ref[T any](t T) *T {
	return &t
}

// ValueOr dereferences ptr, or returns fallback for nil.
func ValueOr[T any](ptr *T, fallback T) T {
	if ptr == nil {
		return fallback
	}
	return *ptr
}
