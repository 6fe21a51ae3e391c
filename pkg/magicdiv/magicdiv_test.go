package magicdiv

import (
	"errors"
	"math"
	"testing"
)

func TestNewRejectsOutOfRange(t *testing.T) {
	t.Parallel()
	for _, d := range []uint32{0, MaxDivisor + 1, math.MaxUint32} {
		if _, err := New(d); !errors.Is(err, ErrDivisorRange) {
			t.Errorf("New(%d): expected ErrDivisorRange, got %v", d, err)
		}
	}
}

func TestMustNewPanics(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for zero divisor")
		}
	}()
	_ = MustNew(0)
}

func TestKnownPairs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		d     uint32
		magic uint32
		shift uint32
	}{
		{1, 1, 0},
		{2, 1, 1},
		{3, 1431655766, 2},
		{7, 613566757, 3},
		{16, 1, 4},
	}
	for _, tc := range tests {
		m := MustNew(tc.d)
		if m.Magic != tc.magic || m.Shift != tc.shift {
			t.Errorf("New(%d): got magic=%d shift=%d, want magic=%d shift=%d",
				tc.d, m.Magic, m.Shift, tc.magic, tc.shift)
		}
	}
}

func TestDivMatchesIntegerDivisionSmall(t *testing.T) {
	t.Parallel()
	for d := uint32(1); d <= 512; d++ {
		m := MustNew(d)
		for n := uint32(0); n < 1<<14; n++ {
			if got := m.Div(n); got != n/d {
				t.Fatalf("Div(%d)/%d: got %d want %d", n, d, got, n/d)
			}
		}
	}
}

func TestDivMatchesIntegerDivisionEdges(t *testing.T) {
	t.Parallel()
	divisors := []uint32{1, 2, 3, 5, 6, 7, 9, 10, 13, 17, 100, 641, 1000, 65535, 65536, 65537,
		1 << 20, (1 << 20) + 1, 1<<30 - 1, 1 << 30, (1 << 30) + 3, MaxDivisor - 1, MaxDivisor}
	dividends := []uint32{0, 1, 2, 15, 16, 17, 255, 256, 65535, 65536, 1<<24 + 7,
		1<<30 - 1, 1 << 30, MaxDividend - 1, MaxDividend}
	for _, d := range divisors {
		m := MustNew(d)
		for _, base := range dividends {
			for _, delta := range []int64{-2, -1, 0, 1, 2} {
				v := int64(base) + delta
				if v < 0 || v > MaxDividend {
					continue
				}
				n := uint32(v)
				q, r := m.DivMod(n)
				if q != n/d || r != n%d {
					t.Fatalf("DivMod(%d)/%d: got (%d,%d) want (%d,%d)", n, d, q, r, n/d, n%d)
				}
			}
		}
	}
}

func TestDivAroundMultiples(t *testing.T) {
	t.Parallel()
	for _, d := range []uint32{3, 11, 24, 49, 123, 4097, 99991} {
		m := MustNew(d)
		for k := uint64(0); k*uint64(d) <= MaxDividend; k += 1 + k/3 {
			for _, off := range []int64{-1, 0, 1} {
				v := int64(k*uint64(d)) + off
				if v < 0 || v > MaxDividend {
					continue
				}
				n := uint32(v)
				if got := m.Div(n); got != n/d {
					t.Fatalf("Div(%d)/%d: got %d want %d", n, d, got, n/d)
				}
			}
		}
	}
}
