package gmap

import (
	"context"

	"github.com/samcharles93/convmap/internal/logger"
)

// WarningKind classifies a coverage mismatch.
type WarningKind int

const (
	// Untouched: an element the convolution needs was never read or written.
	Untouched WarningKind = iota
	// Unexpected: an input element no output depends on was read.
	Unexpected
)

func (k WarningKind) String() string {
	switch k {
	case Untouched:
		return "untouched"
	case Unexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

// Warning is one coverage mismatch at a linear tensor index.
type Warning struct {
	Tensor Operand     `json:"tensor"`
	Index  uint64      `json:"index"`
	Kind   WarningKind `json:"kind"`
}

// Message is the human readable form used in logs.
func (w Warning) Message() string {
	switch {
	case w.Tensor == Input && w.Kind == Untouched:
		return "input not touched pixel"
	case w.Tensor == Input:
		return "input touched unused pixel"
	default:
		return w.Tensor.String() + " not touched pixel"
	}
}

// Check compares the touched records against the independent access model.
// Inputs are checked in both directions; weights and outputs must be fully
// covered. Each mismatch is logged at warn level and returned. An empty
// result means the kernel reads exactly what the convolution needs.
func (r *Result) Check(ctx context.Context) []Warning {
	log := logger.FromContext(ctx)
	var out []Warning
	emit := func(w Warning) {
		log.Warn(w.Message(), "tensor", w.Tensor.Tag(), "index", w.Index, "kind", w.Kind.String())
		out = append(out, w)
	}

	inp := r.Tensors[Input]
	pos := make([]uint64, inp.Rank())
	for i, touched := range r.Records[Input] {
		idx := uint64(i)
		inp.GetInto(pos, idx)
		needed := r.validH[pos[1]] && r.validW[pos[2]]
		switch {
		case needed && !touched:
			emit(Warning{Tensor: Input, Index: idx, Kind: Untouched})
		case !needed && touched:
			emit(Warning{Tensor: Input, Index: idx, Kind: Unexpected})
		}
	}

	for _, op := range []Operand{Weight, Output} {
		for i, touched := range r.Records[op] {
			if !touched {
				emit(Warning{Tensor: op, Index: uint64(i), Kind: Untouched})
			}
		}
	}
	return out
}
