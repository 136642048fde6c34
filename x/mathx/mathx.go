package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CeilDiv returns ceil(a/b); b==0 yields 0.
func CeilDiv[T constraints.Unsigned](a, b T) T {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// IsMultiple reports a != 0 && b % a == 0.
func IsMultiple[T constraints.Unsigned](b, a T) bool {
	return a != 0 && b%a == 0
}

// Scale8 maps an 8-bit level onto [0..top] with rounding.
func Scale8(v uint8, top uint32) uint32 {
	if v == 0 || top == 0 {
		return 0
	}
	return (uint32(v)*top + 127) / 255
}
