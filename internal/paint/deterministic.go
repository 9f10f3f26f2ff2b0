package paint

import "math"

// randomishMultiplier is 2^64 divided by the golden ratio.
const randomishMultiplier = 11400714819323204462

// Randomish returns a random-looking but fully deterministic value for (x, y).
// The same pair always yields the same value on every platform.
func Randomish(x, y int32) int32 {
	v := (uint64(y)<<32 | uint64(uint32(x))) * randomishMultiplier
	return int32(uint32((v+uint64(x))>>32)) ^ int32(uint32((v+uint64(y))>>16))
}

// ChooseIndex picks an index in [0, n) keyed on (x, y).
// The sign bit is masked off rather than taking the absolute value, so
// math.MinInt32 maps to 0 instead of overflowing.
func ChooseIndex(n int, x, y int32) int {
	return int(Randomish(x, y)&math.MaxInt32) % n
}

// Choose returns the element of items selected by ChooseIndex.
// It panics if items is empty.
func Choose[T any](items []T, x, y int32) T {
	return items[ChooseIndex(len(items), x, y)]
}
