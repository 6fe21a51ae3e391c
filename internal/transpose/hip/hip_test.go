//go:build hip

package hip

import (
	"testing"
)

func TestComputeUnits(t *testing.T) {
	drv, err := Open(0)
	if err != nil {
		t.Skipf("no hip device: %v", err)
	}
	n, err := drv.ComputeUnits()
	if err != nil {
		t.Fatalf("ComputeUnits: %v", err)
	}
	if n < 1 {
		t.Fatalf("expected at least one compute unit, got %d", n)
	}
}

func TestAllocCopyRoundTrip(t *testing.T) {
	drv, err := Open(0)
	if err != nil {
		t.Skipf("no hip device: %v", err)
	}
	in := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	p, err := drv.Alloc(len(in))
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	defer drv.Free(p)
	if err := drv.CopyToDevice(p, in); err != nil {
		t.Fatalf("CopyToDevice: %v", err)
	}
	out := make([]byte, len(in))
	if err := drv.CopyFromDevice(out, p); err != nil {
		t.Fatalf("CopyFromDevice: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("byte %d: got %d want %d", i, out[i], in[i])
		}
	}
}
