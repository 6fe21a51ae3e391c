package ndindex

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		dims []uint64
		want uint64
	}{
		{nil, 1},
		{[]uint64{7}, 7},
		{[]uint64{2, 3, 4}, 24},
		{[]uint64{1, 4, 4, 1, 2}, 32},
		{[]uint64{3, 0, 2}, 0},
	}
	for _, tc := range tests {
		if got := New(tc.dims...).Size(); got != tc.want {
			t.Errorf("Size(%v): got %d want %d", tc.dims, got, tc.want)
		}
	}
}

func TestGetIsRowMajor(t *testing.T) {
	t.Parallel()
	d := New(2, 3, 4)
	if diff := cmp.Diff([]uint64{1, 2, 3}, d.Get(23)); diff != "" {
		t.Fatalf("Get(23) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint64{0, 1, 1}, d.Get(5)); diff != "" {
		t.Fatalf("Get(5) mismatch (-want +got):\n%s", diff)
	}
	if got := d.Offset(1, 0, 2); got != 14 {
		t.Fatalf("Offset(1,0,2): got %d want 14", got)
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	shapes := [][]uint64{
		{5},
		{3, 7},
		{2, 3, 5, 7},
		{1, 4, 4, 1, 2},
		{2, 1, 3, 1, 6},
	}
	for _, dims := range shapes {
		d := New(dims...)
		for idx := uint64(0); idx < d.Size(); idx++ {
			coord := d.Get(idx)
			if !d.InRange(coord...) {
				t.Fatalf("%v: Get(%d)=%v not in range", dims, idx, coord)
			}
			if got := d.Offset(coord...); got != idx {
				t.Fatalf("%v: Offset(Get(%d))=%d", dims, idx, got)
			}
			if diff := cmp.Diff(coord, d.Get(d.Offset(coord...))); diff != "" {
				t.Fatalf("%v: Get(Offset(%v)) mismatch:\n%s", dims, coord, diff)
			}
		}
	}
}

func TestInRangeRejectsWrappedCoordinates(t *testing.T) {
	t.Parallel()
	d := New(1, 4, 4, 1, 2)
	var zero uint64
	pad := uint64(1)
	wrapped := zero - pad
	if d.InRange(0, wrapped, 0, 0, 0) {
		t.Fatal("wrapped row coordinate should be out of range")
	}
	if d.InRange(0, 0, 4, 0, 0) {
		t.Fatal("column at extent should be out of range")
	}
	if !d.InRange(0, 3, 3, 0, 1) {
		t.Fatal("last element should be in range")
	}
}

func TestGetIntoMatchesGet(t *testing.T) {
	t.Parallel()
	d := New(3, 5, 2)
	buf := make([]uint64, 3)
	for idx := uint64(0); idx < 40; idx++ {
		d.GetInto(buf, idx)
		if diff := cmp.Diff(d.Get(idx), buf); diff != "" {
			t.Fatalf("GetInto(%d) mismatch:\n%s", idx, diff)
		}
	}
}

func TestRankMismatchPanics(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on rank mismatch")
		}
	}()
	New(2, 2).Offset(1)
}

func TestDimsIsACopy(t *testing.T) {
	t.Parallel()
	src := []uint64{2, 3}
	d := New(src...)
	src[0] = 9
	dims := d.Dims()
	dims[1] = 9
	if diff := cmp.Diff([]uint64{2, 3}, d.Dims()); diff != "" {
		t.Fatalf("descriptor mutated through aliasing:\n%s", diff)
	}
}

func TestCheckedSize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		dims []uint64
		want uint64
		ok   bool
	}{
		{[]uint64{2, 3, 4}, 24, true},
		{[]uint64{1 << 32, 1 << 31}, 1 << 63, true},
		{[]uint64{1 << 32, 1 << 32}, 0, false},
		{[]uint64{1 << 30, 1 << 30, 1 << 30, 2}, 0, false},
	}
	for _, tc := range tests {
		got, ok := New(tc.dims...).CheckedSize()
		if got != tc.want || ok != tc.ok {
			t.Errorf("CheckedSize(%v): got (%d, %v) want (%d, %v)", tc.dims, got, ok, tc.want, tc.ok)
		}
	}
}

func TestGetOuterIntoKeepsOverflow(t *testing.T) {
	t.Parallel()
	d := New(2, 3, 4)
	coord := make([]uint64, 3)

	d.GetOuterInto(coord, 23)
	if diff := cmp.Diff([]uint64{1, 2, 3}, coord); diff != "" {
		t.Fatalf("GetOuterInto(23) mismatch (-want +got):\n%s", diff)
	}

	d.GetOuterInto(coord, 29)
	if diff := cmp.Diff([]uint64{2, 1, 1}, coord); diff != "" {
		t.Fatalf("GetOuterInto(29) mismatch (-want +got):\n%s", diff)
	}
	if d.InRange(coord...) {
		t.Fatal("index past Size must decode out of range")
	}

	d.GetInto(coord, 29)
	if diff := cmp.Diff([]uint64{0, 1, 1}, coord); diff != "" {
		t.Fatalf("GetInto(29) wraps the outer axis (-want +got):\n%s", diff)
	}
}
