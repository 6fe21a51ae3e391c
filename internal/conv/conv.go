// Package conv describes a 2-D convolution problem: its shape, stride,
// dilation, padding and grouping, plus the derived output extents.
package conv

import (
	"errors"
	"fmt"
)

// ErrInvalid reports convolution parameters that fail validation.
var ErrInvalid = errors.New("conv: invalid parameters")

// Params holds one convolution problem. Field names follow the named integer
// fields of the driver argument set.
type Params struct {
	InH         uint64 `yaml:"in_h" json:"in_h"`
	InW         uint64 `yaml:"in_w" json:"in_w"`
	Batch       uint64 `yaml:"batchsize" json:"batchsize"`
	OutChannels uint64 `yaml:"out_channels" json:"out_channels"`
	InChannels  uint64 `yaml:"in_channels" json:"in_channels"`
	StrideH     uint64 `yaml:"conv_stride_h" json:"conv_stride_h"`
	StrideW     uint64 `yaml:"conv_stride_w" json:"conv_stride_w"`
	DilationH   uint64 `yaml:"dilation_h" json:"dilation_h"`
	DilationW   uint64 `yaml:"dilation_w" json:"dilation_w"`
	PadH        uint64 `yaml:"pad_h" json:"pad_h"`
	PadW        uint64 `yaml:"pad_w" json:"pad_w"`
	FilH        uint64 `yaml:"fil_h" json:"fil_h"`
	FilW        uint64 `yaml:"fil_w" json:"fil_w"`
	Groups      uint64 `yaml:"group_count" json:"group_count"`
}

// Lookup is the named-field argument source (parsed driver arguments, CLI
// flags, a decoded file).
type Lookup interface {
	Int(name string) (int64, bool)
}

// Fields is a map-backed Lookup.
type Fields map[string]int64

func (f Fields) Int(name string) (int64, bool) {
	v, ok := f[name]
	return v, ok
}

var required = []string{"in_h", "in_w", "batchsize", "out_channels", "in_channels", "fil_h", "fil_w"}

var defaults = map[string]int64{
	"conv_stride_h": 1,
	"conv_stride_w": 1,
	"dilation_h":    1,
	"dilation_w":    1,
	"pad_h":         0,
	"pad_w":         0,
	"group_count":   1,
}

// FromLookup reads every field from l. Stride, dilation and group count
// default to 1 and padding to 0 when absent.
func FromLookup(l Lookup) (Params, error) {
	get := func(name string) (uint64, error) {
		v, ok := l.Int(name)
		if !ok {
			d, hasDefault := defaults[name]
			if !hasDefault {
				return 0, fmt.Errorf("%w: missing %s", ErrInvalid, name)
			}
			v = d
		}
		if v < 0 {
			return 0, fmt.Errorf("%w: %s must not be negative (got %d)", ErrInvalid, name, v)
		}
		return uint64(v), nil
	}

	var p Params
	var err error
	fields := []struct {
		name string
		dst  *uint64
	}{
		{"in_h", &p.InH}, {"in_w", &p.InW}, {"batchsize", &p.Batch},
		{"out_channels", &p.OutChannels}, {"in_channels", &p.InChannels},
		{"conv_stride_h", &p.StrideH}, {"conv_stride_w", &p.StrideW},
		{"dilation_h", &p.DilationH}, {"dilation_w", &p.DilationW},
		{"pad_h", &p.PadH}, {"pad_w", &p.PadW},
		{"fil_h", &p.FilH}, {"fil_w", &p.FilW},
		{"group_count", &p.Groups},
	}
	for _, f := range fields {
		if *f.dst, err = get(f.name); err != nil {
			return Params{}, err
		}
	}
	return p, p.Validate()
}

// Fields returns p as a Lookup-compatible map.
func (p Params) Fields() Fields {
	return Fields{
		"in_h": int64(p.InH), "in_w": int64(p.InW), "batchsize": int64(p.Batch),
		"out_channels": int64(p.OutChannels), "in_channels": int64(p.InChannels),
		"conv_stride_h": int64(p.StrideH), "conv_stride_w": int64(p.StrideW),
		"dilation_h": int64(p.DilationH), "dilation_w": int64(p.DilationW),
		"pad_h": int64(p.PadH), "pad_w": int64(p.PadW),
		"fil_h": int64(p.FilH), "fil_w": int64(p.FilW),
		"group_count": int64(p.Groups),
	}
}

// WithDefaults fills zero stride, dilation and group count with 1, which is
// what a decoded file that omits them means.
func (p Params) WithDefaults() Params {
	for _, v := range []*uint64{&p.StrideH, &p.StrideW, &p.DilationH, &p.DilationW, &p.Groups} {
		if *v == 0 {
			*v = 1
		}
	}
	return p
}

// maxExtent bounds every field. Spatial coordinates are uint64 and a logically
// negative input coordinate wraps far above any valid extent.
const maxExtent = 1<<31 - 1

// Validate checks that every extent is positive and bounded, channels split
// evenly into groups and the filter fits the padded input.
func (p Params) Validate() error {
	for _, f := range []struct {
		name string
		v    uint64
	}{
		{"in_h", p.InH}, {"in_w", p.InW}, {"batchsize", p.Batch},
		{"out_channels", p.OutChannels}, {"in_channels", p.InChannels},
		{"conv_stride_h", p.StrideH}, {"conv_stride_w", p.StrideW},
		{"dilation_h", p.DilationH}, {"dilation_w", p.DilationW},
		{"fil_h", p.FilH}, {"fil_w", p.FilW}, {"group_count", p.Groups},
	} {
		if f.v == 0 {
			return fmt.Errorf("%w: %s must be > 0", ErrInvalid, f.name)
		}
		if f.v > maxExtent {
			return fmt.Errorf("%w: %s exceeds %d", ErrInvalid, f.name, maxExtent)
		}
	}
	if p.PadH > maxExtent || p.PadW > maxExtent {
		return fmt.Errorf("%w: padding exceeds %d", ErrInvalid, maxExtent)
	}
	if p.InChannels%p.Groups != 0 || p.OutChannels%p.Groups != 0 {
		return fmt.Errorf("%w: channels c=%d k=%d not divisible by group_count=%d",
			ErrInvalid, p.InChannels, p.OutChannels, p.Groups)
	}
	if p.InH+2*p.PadH < p.DilationH*(p.FilH-1)+1 {
		return fmt.Errorf("%w: filter height %d (dilation %d) exceeds padded input height %d",
			ErrInvalid, p.FilH, p.DilationH, p.InH+2*p.PadH)
	}
	if p.InW+2*p.PadW < p.DilationW*(p.FilW-1)+1 {
		return fmt.Errorf("%w: filter width %d (dilation %d) exceeds padded input width %d",
			ErrInvalid, p.FilW, p.DilationW, p.InW+2*p.PadW)
	}
	return nil
}

// OutSize is floor((in + 2*pad - dilation*(k-1) - 1) / stride) + 1.
func OutSize(in, pad, dilation, k, stride uint64) uint64 {
	return (in+2*pad-dilation*(k-1)-1)/stride + 1
}

func (p Params) OutH() uint64 { return OutSize(p.InH, p.PadH, p.DilationH, p.FilH, p.StrideH) }
func (p Params) OutW() uint64 { return OutSize(p.InW, p.PadW, p.DilationW, p.FilW, p.StrideW) }

// CPerGroup is the input channel count of one group.
func (p Params) CPerGroup() uint64 { return p.InChannels / p.Groups }

// KPerGroup is the output channel count of one group.
func (p Params) KPerGroup() uint64 { return p.OutChannels / p.Groups }

func (p Params) String() string {
	return fmt.Sprintf("n%d c%d h%d w%d k%d y%d x%d s%dx%d d%dx%d p%dx%d g%d",
		p.Batch, p.InChannels, p.InH, p.InW, p.OutChannels, p.FilH, p.FilW,
		p.StrideH, p.StrideW, p.DilationH, p.DilationW, p.PadH, p.PadW, p.Groups)
}
