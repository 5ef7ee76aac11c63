package math

import "golang.org/x/exp/constraints"

// AlignUp rounds value up to the next multiple of alignment. An alignment of zero
// leaves the value untouched. Alignment does not need to be a power of two.
func AlignUp[T constraints.Unsigned](value, alignment T) T {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) / alignment * alignment
}

// IsAligned reports whether value is a multiple of alignment.
func IsAligned[T constraints.Unsigned](value, alignment T) bool {
	return alignment == 0 || value%alignment == 0
}

// DivRoundUp divides rounding towards positive infinity.
func DivRoundUp[T constraints.Unsigned](value, divisor T) T {
	return (value + divisor - 1) / divisor
}

// IsPowerOfTwo reports whether v is a non-zero power of two.
func IsPowerOfTwo[T constraints.Unsigned](v T) bool {
	return v != 0 && v&(v-1) == 0
}
