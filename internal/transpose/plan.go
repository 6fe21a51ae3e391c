// Package transpose dispatches the batched 16x16-tile transpose kernels that
// convert activations between NCHW and NHWC on the device, and carries a host
// reference implementation used to validate them.
package transpose

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/samcharles93/convmap/pkg/magicdiv"
)

// Launch geometry shared with the kernel binary.
const (
	TileH     = 16
	TileW     = 16
	Occupancy = 4
	BlockSize = 256

	// KernelArgsSize is the packed size of the launch argument block.
	KernelArgsSize = 2*8 + 8*4
)

var (
	// ErrElemSize reports an element width with no kernel variant.
	ErrElemSize = errors.New("transpose: unsupported element size")
	// ErrShape reports a batch, height, width or compute unit count that
	// cannot be planned.
	ErrShape = errors.New("transpose: invalid shape")
	// ErrDevice wraps failures of the device driver.
	ErrDevice = errors.New("transpose: device error")
)

// DevicePtr is an address in device memory.
type DevicePtr uintptr

// Plan is the launch geometry of one batched transpose. Each of the
// Batch*DimH*DimW tiles is visited by exactly one block through a
// grid-stride loop of GridSize blocks.
type Plan struct {
	Batch  uint32 `json:"batch"`
	Height uint32 `json:"height"`
	Width  uint32 `json:"width"`

	DimH     uint32 `json:"dim_h"`
	DimW     uint32 `json:"dim_w"`
	DimTotal uint32 `json:"dim_total"`

	GridSize  uint32 `json:"grid_size"`
	BlockSize uint32 `json:"block_size"`

	MagicH magicdiv.U32 `json:"magic_h"`
	MagicW magicdiv.U32 `json:"magic_w"`
}

// NewPlan sizes the launch for a device with computeUnits compute units.
func NewPlan(batch, height, width uint32, computeUnits int) (Plan, error) {
	if batch == 0 || height == 0 || width == 0 {
		return Plan{}, fmt.Errorf("%w: batch %d height %d width %d must be positive", ErrShape, batch, height, width)
	}
	if computeUnits <= 0 || computeUnits > math.MaxInt32/Occupancy {
		return Plan{}, fmt.Errorf("%w: compute units %d", ErrShape, computeUnits)
	}
	p := Plan{
		Batch:     batch,
		Height:    height,
		Width:     width,
		DimH:      uint32((uint64(height) + TileH - 1) / TileH),
		DimW:      uint32((uint64(width) + TileW - 1) / TileW),
		GridSize:  uint32(computeUnits) * Occupancy,
		BlockSize: BlockSize,
	}
	total := uint64(batch) * uint64(p.DimH) * uint64(p.DimW)
	if total > magicdiv.MaxDividend {
		return Plan{}, fmt.Errorf("%w: %d tiles exceed the magic division range", ErrShape, total)
	}
	p.DimTotal = uint32(total)

	var err error
	if p.MagicH, err = magicdiv.New(p.DimH); err != nil {
		return Plan{}, err
	}
	if p.MagicW, err = magicdiv.New(p.DimW); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// Decode maps a linear tile index to (batch, tile row, tile column) with the
// same magic division sequence the kernel runs.
func (p Plan) Decode(tile uint32) (b, th, tw uint32) {
	rest, tw := p.MagicW.DivMod(tile)
	b, th = p.MagicH.DivMod(rest)
	return b, th, tw
}

// Args builds the launch argument block for the given buffers.
func (p Plan) Args(dst, src DevicePtr) KernelArgs {
	return KernelArgs{
		Dst:       dst,
		Src:       src,
		Height:    p.Height,
		Width:     p.Width,
		DimStride: p.GridSize,
		DimTotal:  p.DimTotal,
		MagicH:    p.MagicH.Magic,
		ShiftH:    p.MagicH.Shift,
		MagicW:    p.MagicW.Magic,
		ShiftW:    p.MagicW.Shift,
	}
}

// KernelArgs mirrors the packed launch argument struct of the transpose
// kernels.
type KernelArgs struct {
	Dst       DevicePtr
	Src       DevicePtr
	Height    uint32
	Width     uint32
	DimStride uint32
	DimTotal  uint32
	MagicH    uint32
	ShiftH    uint32
	MagicW    uint32
	ShiftW    uint32
}

// MarshalBinary packs the arguments little-endian with no padding.
func (a KernelArgs) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, KernelArgsSize)
	b = binary.LittleEndian.AppendUint64(b, uint64(a.Dst))
	b = binary.LittleEndian.AppendUint64(b, uint64(a.Src))
	for _, v := range [...]uint32{a.Height, a.Width, a.DimStride, a.DimTotal, a.MagicH, a.ShiftH, a.MagicW, a.ShiftW} {
		b = binary.LittleEndian.AppendUint32(b, v)
	}
	return b, nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (a *KernelArgs) UnmarshalBinary(b []byte) error {
	if len(b) != KernelArgsSize {
		return fmt.Errorf("transpose: kernel args are %d bytes, got %d", KernelArgsSize, len(b))
	}
	le := binary.LittleEndian
	a.Dst = DevicePtr(le.Uint64(b[0:]))
	a.Src = DevicePtr(le.Uint64(b[8:]))
	fields := [...]*uint32{&a.Height, &a.Width, &a.DimStride, &a.DimTotal, &a.MagicH, &a.ShiftH, &a.MagicW, &a.ShiftW}
	for i, f := range fields {
		*f = le.Uint32(b[16+4*i:])
	}
	return nil
}

func (a KernelArgs) String() string {
	return fmt.Sprintf("dst:%#x, src:%#x, h:%d, w:%d, dim_stride:%d, dim_total:%d, mh:%d, sh:%d, mw:%d, sw:%d",
		uintptr(a.Dst), uintptr(a.Src), a.Height, a.Width, a.DimStride, a.DimTotal,
		a.MagicH, a.ShiftH, a.MagicW, a.ShiftW)
}
