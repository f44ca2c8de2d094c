// Package buf holds overflow-checked size arithmetic shared by the allocator.
package buf

import "math"

// MaxOffset is the largest byte count a single mapping or block may span.
// Sizes are unsigned, but OS calls take them as signed offsets, so anything
// above math.MaxInt is rejected.
const MaxOffset = uintptr(math.MaxInt)

// AddOverflowSafe adds a and b, returning ok = false when the result would
// exceed MaxOffset.
func AddOverflowSafe(a, b uintptr) (uintptr, bool) {
	if a > MaxOffset || b > MaxOffset-a {
		return 0, false
	}
	return a + b, true
}

// IsPow2 reports whether n is a non-zero power of two.
func IsPow2(n uintptr) bool {
	return n != 0 && n&(n-1) == 0
}

// AlignUp rounds n up to the next multiple of align, which must be a power
// of two. ok is false when rounding would exceed MaxOffset.
func AlignUp(n, align uintptr) (uintptr, bool) {
	sum, ok := AddOverflowSafe(n, align-1)
	if !ok {
		return 0, false
	}
	return sum &^ (align - 1), true
}

// IsAligned reports whether n is a multiple of align (a power of two).
func IsAligned(n, align uintptr) bool {
	return n&(align-1) == 0
}
