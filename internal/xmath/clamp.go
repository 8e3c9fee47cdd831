// Package xmath provides small generic numeric helpers shared across
// engine, scan and driver, grounded on the ordering-constrained generics
// catrate's ring buffer uses for its own bounds arithmetic.
package xmath

import "golang.org/x/exp/constraints"

// Clamp returns v restricted to [lo, hi]. Callers are responsible for
// ensuring lo <= hi.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Min returns the lesser of a and b.
func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// Max returns the greater of a and b.
func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}
