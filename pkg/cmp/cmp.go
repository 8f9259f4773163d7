// Package cmp has equality helpers for tests and value types.
package cmp

import (
	"maps"
	"slices"
)

// Eq is implemented by values which know how to compare themselves.
//
// Implementations return false for other types.
type Eq interface {
	Equal(other Eq) bool
}

func Equal[T Eq](a, b T) bool {
	return a.Equal(b)
}

// EqualEq is Equal as a function value, for SliceEqWith.
func EqualEq[T Eq](a, b T) bool {
	return a.Equal(b)
}

func SliceEq[S1, S2 ~[]E, E comparable](a S1, b S2) bool {
	return slices.Equal([]E(a), []E(b))
}

func SliceEqWith[A, B any](a []A, b []B, eq func(A, B) bool) bool {
	return slices.EqualFunc(a, b, eq)
}

// SliceContentEq tells a and b have the same items, ignoring order but counting duplicates.
func SliceContentEq[E comparable](a, b []E) bool {
	if len(a) != len(b) {
		return false
	}
	count := map[E]int{}
	for _, v := range a {
		count[v] += 1
	}
	for _, v := range b {
		if count[v] == 0 {
			return false
		}
		count[v] -= 1
	}
	return true
}

func MapEq[M1, M2 ~map[K]V, K, V comparable](a M1, b M2) bool {
	return maps.Equal(map[K]V(a), map[K]V(b))
}
