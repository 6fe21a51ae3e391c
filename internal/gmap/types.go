// Package gmap reproduces, on the host, the global-memory addresses every
// thread of every block of a tiled implicit-GEMM convolution kernel computes.
// Requests are deduplicated across blocks that load identical tiles, written
// out as a per-operand request log, and their coverage is compared against an
// independently derived model of which tensor elements a convolution reads.
package gmap

import (
	"errors"

	"github.com/samcharles93/convmap/pkg/ndindex"
)

// ErrUnsupported reports a layout or direction with no address model.
var ErrUnsupported = errors.New("gmap: unsupported layout or direction")

// Operand identifies one of the three GEMM operands.
type Operand int

const (
	Input Operand = iota
	Weight
	Output
	numOperands
)

// Operands lists every operand in dump order.
var Operands = [numOperands]Operand{Input, Weight, Output}

// Tag is the short name used in file names and banners.
func (o Operand) Tag() string {
	switch o {
	case Input:
		return "inp"
	case Weight:
		return "wei"
	case Output:
		return "out"
	default:
		return "unknown"
	}
}

func (o Operand) String() string {
	switch o {
	case Input:
		return "input"
	case Weight:
		return "weight"
	case Output:
		return "output"
	default:
		return "unknown"
	}
}

// ThreadRequest is the access one thread issues for one request slot.
type ThreadRequest struct {
	TID      uint64
	DataByte uint64
	Vector   uint64 // elements per access
	Offset   uint64 // byte offset of the first element
	Valid    bool
}

// BlockRequest is one request slot of a block. Blocks that issue identical
// addresses share a single BlockRequest and are listed in BlockIDs.
type BlockRequest struct {
	BlockSize uint64
	ReqIdx    uint64
	BlockIDs  []uint64
	Threads   []ThreadRequest
}

// Lanes counts valid and total element accesses of the request.
func (b *BlockRequest) Lanes() (valid, total uint64) {
	for _, t := range b.Threads {
		total += t.Vector
		if t.Valid {
			valid += t.Vector
		}
	}
	return valid, total
}

// Record has one flag per tensor element, set once any valid access touched it.
type Record []bool

// Touched counts the set flags.
func (r Record) Touched() uint64 {
	var n uint64
	for _, v := range r {
		if v {
			n++
		}
	}
	return n
}

// Stats summarises one operand of a simulation.
type Stats struct {
	Requests   int    `json:"requests"`
	ValidLanes uint64 `json:"valid_lanes"`
	TotalLanes uint64 `json:"total_lanes"`
	Elements   uint64 `json:"elements"`
	Touched    uint64 `json:"touched"`
}

// Efficiency is the fraction of issued lanes that hit the tensor.
func (s Stats) Efficiency() float64 {
	if s.TotalLanes == 0 {
		return 0
	}
	return float64(s.ValidLanes) / float64(s.TotalLanes)
}

// Result is the complete outcome of one simulation pass.
type Result struct {
	GridSize  uint64
	BlockSize uint64
	DataByte  uint64

	Requests [numOperands][]BlockRequest
	Tensors  [numOperands]ndindex.Desc
	Records  [numOperands]Record

	validH []bool
	validW []bool
}

// Stats returns the summary of one operand.
func (r *Result) Stats(op Operand) Stats {
	s := Stats{
		Requests: len(r.Requests[op]),
		Elements: uint64(len(r.Records[op])),
		Touched:  r.Records[op].Touched(),
	}
	for i := range r.Requests[op] {
		v, t := r.Requests[op][i].Lanes()
		s.ValidLanes += v
		s.TotalLanes += t
	}
	return s
}
