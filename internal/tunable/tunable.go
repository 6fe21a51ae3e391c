// Package tunable describes one implicit-GEMM convolution kernel
// configuration: block tile sizes, per-operand thread and cluster lengths,
// and the flags that change how threads map onto the tile.
package tunable

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalid reports a configuration whose sizes are inconsistent.
	ErrInvalid = errors.New("tunable: invalid configuration")
	// ErrUnsupported reports a layout, direction or precision with no kernel.
	ErrUnsupported = errors.New("tunable: unsupported configuration")
)

const (
	// MaxBlockSize is the largest thread count of one block.
	MaxBlockSize = 1024
	maxTile      = 1 << 16
	maxLength    = 1 << 10
)

// Precision is the element type of every operand.
type Precision string

const (
	FP32 Precision = "fp32"
	FP16 Precision = "fp16"
	INT8 Precision = "int8"
)

// DataByte is the element size in bytes.
func (p Precision) DataByte() (uint64, error) {
	switch p {
	case FP32:
		return 4, nil
	case FP16:
		return 2, nil
	case INT8:
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: precision %q (expected fp32, fp16 or int8)", ErrUnsupported, string(p))
	}
}

// Layout is the activation tensor layout.
type Layout string

const (
	NCHW Layout = "nchw"
	NHWC Layout = "nhwc"
)

// Direction selects forward, backward-data or weight-update convolution.
type Direction string

const (
	Fwd Direction = "fwd"
	Bwd Direction = "bwd"
	Wrw Direction = "wrw"
)

// Lengths is a per-operand (e, c, nb0/k0, nb1/k1) vector.
type Lengths [4]uint64

func (l Lengths) Product() uint64 { return l[0] * l[1] * l[2] * l[3] }

func (l Lengths) String() string {
	parts := make([]string, len(l))
	for i, v := range l {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "x")
}

// Tunable is one kernel configuration. Operand A is the input tensor,
// operand B the weight tensor.
type Tunable struct {
	Layout    Layout    `yaml:"tensor_layout" json:"tensor_layout"`
	Precision Precision `yaml:"precision" json:"precision"`
	Direction Direction `yaml:"direction" json:"direction"`

	GemmMPerBlock uint64 `yaml:"gemm_m_per_block" json:"gemm_m_per_block"`
	GemmNPerBlock uint64 `yaml:"gemm_n_per_block" json:"gemm_n_per_block"`
	GemmKPerBlock uint64 `yaml:"gemm_k_per_block" json:"gemm_k_per_block"`

	ThreadA  Lengths `yaml:"tensor_a_thread_lengths" json:"tensor_a_thread_lengths"`
	ClusterA Lengths `yaml:"tensor_a_cluster_lengths" json:"tensor_a_cluster_lengths"`
	ThreadB  Lengths `yaml:"tensor_b_thread_lengths" json:"tensor_b_thread_lengths"`
	ClusterB Lengths `yaml:"tensor_b_cluster_lengths" json:"tensor_b_cluster_lengths"`

	GlobalSplitK bool   `yaml:"gemm_k_global_split" json:"gemm_k_global_split"`
	PassThroughA bool   `yaml:"tensor_a_pass_through" json:"tensor_a_pass_through"`
	MergeE       bool   `yaml:"merge_e" json:"merge_e"`
	VectorStore  uint64 `yaml:"vector_store" json:"vector_store"`
}

// BlockSize is the thread count of one block, taken from operand A.
func (t Tunable) BlockSize() uint64 { return t.ClusterA.Product() }

// Validate checks the configuration on its own, independent of any problem
// shape. Shape-dependent divisibility is checked by the simulator.
func (t Tunable) Validate() error {
	switch t.Layout {
	case NCHW, NHWC:
	default:
		return fmt.Errorf("%w: tensor layout %q", ErrUnsupported, string(t.Layout))
	}
	switch t.Direction {
	case Fwd, Bwd, Wrw:
	default:
		return fmt.Errorf("%w: direction %q", ErrUnsupported, string(t.Direction))
	}
	if _, err := t.Precision.DataByte(); err != nil {
		return err
	}
	if t.GemmMPerBlock == 0 || t.GemmNPerBlock == 0 || t.GemmKPerBlock == 0 {
		return fmt.Errorf("%w: gemm block tile %dx%dx%d must be positive",
			ErrInvalid, t.GemmMPerBlock, t.GemmNPerBlock, t.GemmKPerBlock)
	}
	if t.GemmMPerBlock > maxTile || t.GemmNPerBlock > maxTile || t.GemmKPerBlock > maxTile {
		return fmt.Errorf("%w: gemm block tile %dx%dx%d exceeds %d",
			ErrInvalid, t.GemmMPerBlock, t.GemmNPerBlock, t.GemmKPerBlock, maxTile)
	}
	for _, l := range []struct {
		name string
		v    Lengths
	}{
		{"tensor_a_thread_lengths", t.ThreadA}, {"tensor_a_cluster_lengths", t.ClusterA},
		{"tensor_b_thread_lengths", t.ThreadB}, {"tensor_b_cluster_lengths", t.ClusterB},
	} {
		for _, v := range l.v {
			if v == 0 || v > maxLength {
				return fmt.Errorf("%w: %s %s components must be in [1, %d]", ErrInvalid, l.name, l.v, maxLength)
			}
		}
	}
	if a, b := t.ClusterA.Product(), t.ClusterB.Product(); a != b {
		return fmt.Errorf("%w: block size mismatch, cluster a %s=%d, cluster b %s=%d",
			ErrInvalid, t.ClusterA, a, t.ClusterB, b)
	}
	if t.BlockSize() > MaxBlockSize {
		return fmt.Errorf("%w: block size %d exceeds %d", ErrInvalid, t.BlockSize(), MaxBlockSize)
	}
	if t.MergeE && (t.ThreadA[1] != 1 || t.ThreadB[1] != 1) {
		return fmt.Errorf("%w: merge_e requires thread c length 1 for both operands (a=%d, b=%d)",
			ErrInvalid, t.ThreadA[1], t.ThreadB[1])
	}
	return nil
}

// KernelName encodes the configuration into a stable identifier.
func (t Tunable) KernelName() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "igemm_%s_gtcx_%s_%s", t.Direction, t.Layout, t.Precision)
	fmt.Fprintf(&sb, "_ex%d", boolInt(t.MergeE))
	fmt.Fprintf(&sb, "_bt%dx%dx%d", t.GemmMPerBlock, t.GemmNPerBlock, t.GemmKPerBlock)
	fmt.Fprintf(&sb, "_ta%s_%s", t.ThreadA, t.ClusterA)
	fmt.Fprintf(&sb, "_tb%s_%s", t.ThreadB, t.ClusterB)
	if t.PassThroughA {
		sb.WriteString("_pta")
	}
	if t.VectorStore != 0 {
		fmt.Fprintf(&sb, "_vs%d", t.VectorStore)
	}
	if t.GlobalSplitK {
		sb.WriteString("_gkgs")
	}
	return sb.String()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
