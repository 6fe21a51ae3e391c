package api

import (
	"github.com/samcharles93/convmap/internal/conv"
	"github.com/samcharles93/convmap/internal/gmap"
	"github.com/samcharles93/convmap/internal/transpose"
	"github.com/samcharles93/convmap/internal/tunable"
)

// GmapRequest is the body of POST /v1/gmap.
type GmapRequest struct {
	Conv    conv.Params     `json:"conv"`
	Tunable tunable.Tunable `json:"tunable"`
	GKS     uint            `json:"gks"`
}

type OperandSummary struct {
	Tensor     string  `json:"tensor"`
	Requests   int     `json:"requests"`
	ValidLanes uint64  `json:"valid_lanes"`
	TotalLanes uint64  `json:"total_lanes"`
	Elements   uint64  `json:"elements"`
	Touched    uint64  `json:"touched"`
	Efficiency float64 `json:"efficiency"`
}

type CoverageWarning struct {
	Tensor string `json:"tensor"`
	Index  uint64 `json:"index"`
	Kind   string `json:"kind"`
}

// GmapRun is the stored summary of one simulation.
type GmapRun struct {
	ID           string            `json:"id"`
	Object       string            `json:"object"`
	CreatedAt    int64             `json:"created_at"`
	Kernel       string            `json:"kernel"`
	GridSize     uint64            `json:"grid_size"`
	BlockSize    uint64            `json:"block_size"`
	Conv         conv.Params       `json:"conv"`
	Tunable      tunable.Tunable   `json:"tunable"`
	GKS          uint              `json:"gks"`
	Operands     []OperandSummary  `json:"operands"`
	WarningCount int               `json:"warning_count"`
	Warnings     []CoverageWarning `json:"warnings"`
}

type DeleteResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type TransposePlanResponse struct {
	Kernel string         `json:"kernel"`
	Plan   transpose.Plan `json:"plan"`
	Args   string         `json:"args"`
	// ArgsHex is the packed launch argument block.
	ArgsHex string `json:"args_hex"`
}

type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// maxWarnings bounds the warnings returned inline; WarningCount is exact.
const maxWarnings = 100

func summarize(res *gmap.Result) []OperandSummary {
	ops := make([]OperandSummary, 0, len(gmap.Operands))
	for _, op := range gmap.Operands {
		s := res.Stats(op)
		ops = append(ops, OperandSummary{
			Tensor:     op.Tag(),
			Requests:   s.Requests,
			ValidLanes: s.ValidLanes,
			TotalLanes: s.TotalLanes,
			Elements:   s.Elements,
			Touched:    s.Touched,
			Efficiency: s.Efficiency(),
		})
	}
	return ops
}

func warningsDTO(ws []gmap.Warning) []CoverageWarning {
	out := make([]CoverageWarning, 0, min(len(ws), maxWarnings))
	for _, w := range ws[:min(len(ws), maxWarnings)] {
		out = append(out, CoverageWarning{Tensor: w.Tensor.Tag(), Index: w.Index, Kind: w.Kind.String()})
	}
	return out
}
