package tunable

import "math/bits"

func GCD(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func LCM(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	return a / GCD(a, b) * b
}

func IsPow2(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

// NextPow2 returns the smallest power of two >= n. NextPow2(0) is 1.
func NextPow2(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len64(n-1)
}

// NextMul rounds n up to a multiple of mul.
func NextMul(n, mul uint64) uint64 {
	return (n + mul - 1) / mul * mul
}

// Log2 of a power of two. It panics for anything else.
func Log2(v uint64) uint64 {
	if !IsPow2(v) {
		panic("tunable: Log2 of non power of 2")
	}
	return uint64(bits.TrailingZeros64(v))
}
