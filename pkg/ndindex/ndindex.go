// Package ndindex converts between linear indices and N-dimensional
// coordinates over a fixed, ordered list of extents (outermost first,
// row-major).
//
// Coordinates are unsigned. Callers that subtract padding from a spatial
// coordinate rely on the subtraction wrapping to a value far above any extent
// so that InRange rejects it without a separate sign test. With 64-bit
// coordinates a wrapped value is at least 2^64 - pad, which cannot collide
// with an extent as long as every extent stays below 2^63.
package ndindex

import (
	"fmt"
	"math/bits"
)

// Desc is an immutable tensor descriptor.
type Desc struct {
	dims []uint64
}

// New builds a descriptor from extents, outermost first.
func New(dims ...uint64) Desc {
	d := make([]uint64, len(dims))
	copy(d, dims)
	return Desc{dims: d}
}

// Rank is the number of axes.
func (d Desc) Rank() int { return len(d.dims) }

// Dims returns a copy of the extents.
func (d Desc) Dims() []uint64 {
	out := make([]uint64, len(d.dims))
	copy(out, d.dims)
	return out
}

// Size is the product of all extents.
func (d Desc) Size() uint64 {
	size := uint64(1)
	for _, e := range d.dims {
		size *= e
	}
	return size
}

// CheckedSize is Size with overflow detection. ok is false when the product
// does not fit in 64 bits.
func (d Desc) CheckedSize() (size uint64, ok bool) {
	size = 1
	for _, e := range d.dims {
		hi, lo := bits.Mul64(size, e)
		if hi != 0 {
			return 0, false
		}
		size = lo
	}
	return size, true
}

// Get decomposes a linear index into a coordinate, innermost axis first.
func (d Desc) Get(linear uint64) []uint64 {
	coord := make([]uint64, len(d.dims))
	d.GetInto(coord, linear)
	return coord
}

// GetInto is Get without allocating. len(coord) must equal Rank.
func (d Desc) GetInto(coord []uint64, linear uint64) {
	d.checkRank(len(coord))
	stride := uint64(1)
	for i := len(d.dims) - 1; i >= 0; i-- {
		coord[i] = (linear / stride) % d.dims[i]
		stride *= d.dims[i]
	}
}

// GetOuterInto is GetInto without reducing the outermost axis. A linear index
// at or past Size decodes to an outermost coordinate at or past its extent,
// so InRange rejects it instead of aliasing it onto the start of the tensor.
func (d Desc) GetOuterInto(coord []uint64, linear uint64) {
	d.checkRank(len(coord))
	if len(d.dims) == 0 {
		return
	}
	stride := uint64(1)
	for i := len(d.dims) - 1; i > 0; i-- {
		coord[i] = (linear / stride) % d.dims[i]
		stride *= d.dims[i]
	}
	coord[0] = linear / stride
}

// Offset is the inverse of Get. Arithmetic wraps for out-of-range
// coordinates; pair it with InRange before trusting the result.
func (d Desc) Offset(coord ...uint64) uint64 {
	d.checkRank(len(coord))
	var off uint64
	stride := uint64(1)
	for i := len(d.dims) - 1; i >= 0; i-- {
		off += coord[i] * stride
		stride *= d.dims[i]
	}
	return off
}

// InRange reports whether every component lies below its extent.
func (d Desc) InRange(coord ...uint64) bool {
	d.checkRank(len(coord))
	for i, c := range coord {
		if c >= d.dims[i] {
			return false
		}
	}
	return true
}

func (d Desc) String() string {
	return fmt.Sprint(d.dims)
}

func (d Desc) checkRank(n int) {
	if n != len(d.dims) {
		panic(fmt.Sprintf("ndindex: coordinate rank %d does not match descriptor rank %d", n, len(d.dims)))
	}
}
