// Package magicdiv replaces runtime unsigned 32-bit division by a known
// divisor with a multiply-high, add and shift sequence. The generated pairs
// are the ones the GPU kernels consume as launch arguments, so the host-side
// decode here is bit-identical with what every kernel thread computes.
package magicdiv

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
)

const (
	// MaxDivisor is the largest divisor New accepts.
	MaxDivisor = math.MaxInt32
	// MaxDividend is the largest dividend for which Div is exact. Above it the
	// 32-bit add of the high product and the dividend may carry out.
	MaxDividend = math.MaxInt32
)

// ErrDivisorRange reports a divisor outside [1, MaxDivisor].
var ErrDivisorRange = errors.New("magicdiv: divisor out of range")

// U32 is a magic multiplier/shift pair for one divisor.
//
//	q = (mulhi32(n, Magic) + n) >> Shift
type U32 struct {
	Magic   uint32
	Shift   uint32
	Divisor uint32
}

// New computes the magic pair for d. d must be in [1, MaxDivisor].
func New(d uint32) (U32, error) {
	if d < 1 || d > MaxDivisor {
		return U32{}, fmt.Errorf("%w: %d (expected 1..%d)", ErrDivisorRange, d, MaxDivisor)
	}
	var shift uint32
	for shift = 0; shift < 32; shift++ {
		if uint64(1)<<shift >= uint64(d) {
			break
		}
	}
	magic := ((uint64(1)<<32)*((uint64(1)<<shift)-uint64(d)))/uint64(d) + 1
	if magic > math.MaxUint32 {
		return U32{}, fmt.Errorf("%w: magic for %d does not fit 32 bits", ErrDivisorRange, d)
	}
	return U32{Magic: uint32(magic), Shift: shift, Divisor: d}, nil
}

// MustNew is New for divisors known to be valid. It panics otherwise.
func MustNew(d uint32) U32 {
	m, err := New(d)
	if err != nil {
		panic(err)
	}
	return m
}

// Div returns n / Divisor for n <= MaxDividend.
func (m U32) Div(n uint32) uint32 {
	hi, _ := bits.Mul32(n, m.Magic)
	return (hi + n) >> m.Shift
}

// DivMod returns both quotient and remainder, the remainder being derived
// from the quotient the same way the kernels do it.
func (m U32) DivMod(n uint32) (q, r uint32) {
	q = m.Div(n)
	return q, n - q*m.Divisor
}

func (m U32) String() string {
	return fmt.Sprintf("d:%d magic:%d shift:%d", m.Divisor, m.Magic, m.Shift)
}
