package gmap

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/samcharles93/convmap/internal/conv"
	"github.com/samcharles93/convmap/internal/logger"
	"github.com/samcharles93/convmap/internal/tunable"
	"github.com/samcharles93/convmap/pkg/ndindex"
)

func quietCtx() context.Context {
	return logger.WithContext(context.Background(), logger.Nop())
}

// 1x2x4x4 input, 3x3 filter, pad 1, two output channels.
func samplePad1() conv.Params {
	return conv.Params{
		InH: 4, InW: 4, Batch: 1, OutChannels: 2, InChannels: 2,
		StrideH: 1, StrideW: 1, DilationH: 1, DilationW: 1,
		PadH: 1, PadW: 1, FilH: 3, FilW: 3, Groups: 1,
	}
}

func fwdNHWC() tunable.Tunable {
	return tunable.Tunable{
		Layout:        tunable.NHWC,
		Precision:     tunable.FP32,
		Direction:     tunable.Fwd,
		GemmMPerBlock: 16,
		GemmNPerBlock: 2,
		GemmKPerBlock: 2,
		ThreadA:       tunable.Lengths{1, 1, 1, 1},
		ClusterA:      tunable.Lengths{1, 2, 1, 16},
		ThreadB:       tunable.Lengths{1, 1, 1, 1},
		ClusterB:      tunable.Lengths{1, 2, 1, 16},
	}
}

func simulate(t *testing.T, p conv.Params, tu tunable.Tunable, gks uint) *Result {
	t.Helper()
	res, err := Simulate(quietCtx(), p, tu, gks, Options{})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	return res
}

func blockIDs(reqs []BlockRequest) [][]uint64 {
	out := make([][]uint64, len(reqs))
	for i := range reqs {
		out[i] = reqs[i].BlockIDs
	}
	return out
}

func TestSimulatePaddedFullCoverage(t *testing.T) {
	t.Parallel()
	res := simulate(t, samplePad1(), fwdNHWC(), 0)

	if res.GridSize != 1 || res.BlockSize != 32 || res.DataByte != 4 {
		t.Fatalf("geometry: grid %d block %d bytes %d", res.GridSize, res.BlockSize, res.DataByte)
	}
	want := map[Operand]int{Input: 9, Weight: 9, Output: 1}
	for op, n := range want {
		if got := len(res.Requests[op]); got != n {
			t.Errorf("%s requests: got %d want %d", op, got, n)
		}
	}
	for i, r := range res.Requests[Input] {
		if r.ReqIdx != uint64(i) {
			t.Errorf("input request %d has index %d", i, r.ReqIdx)
		}
	}

	for _, op := range Operands {
		s := res.Stats(op)
		if s.Touched != s.Elements {
			t.Errorf("%s: touched %d of %d", op, s.Touched, s.Elements)
		}
	}
	if w := res.Check(quietCtx()); len(w) != 0 {
		t.Errorf("expected no coverage warnings, got %v", w)
	}
}

func TestSimulatePaddingValidity(t *testing.T) {
	t.Parallel()
	res := simulate(t, samplePad1(), fwdNHWC(), 0)

	// first k tile is filter tap (0,0): output pixels in row 0 or column 0
	// read the padding border
	r := res.Requests[Input][0]
	valid, total := r.Lanes()
	if valid != 18 || total != 32 {
		t.Fatalf("lanes: got %d/%d want 18/32", valid, total)
	}
	for _, th := range r.Threads {
		pix := th.TID / 2
		ho, wo := pix/4, pix%4
		if want := ho > 0 && wo > 0; th.Valid != want {
			t.Errorf("thread %d: valid %v want %v", th.TID, th.Valid, want)
		}
	}
	// output pixel (1,1) reads input (0,0)
	if got := r.Threads[10]; !got.Valid || got.Offset != 0 {
		t.Errorf("thread 10: %+v", got)
	}
	if got := r.Threads[11]; !got.Valid || got.Offset != 4 {
		t.Errorf("thread 11: %+v", got)
	}
}

func TestSimulateOutputWrittenOnce(t *testing.T) {
	t.Parallel()
	res := simulate(t, samplePad1(), fwdNHWC(), 0)

	hits := make(map[uint64]int)
	for _, r := range res.Requests[Output] {
		for _, th := range r.Threads {
			if th.Valid {
				hits[th.Offset]++
			}
		}
	}
	if len(hits) != 32 {
		t.Fatalf("distinct output offsets: got %d want 32", len(hits))
	}
	for off, n := range hits {
		if n != 1 {
			t.Errorf("offset %#x written %d times", off, n)
		}
	}
}

func TestSimulatePaddedGemmRowsInvalid(t *testing.T) {
	t.Parallel()
	// 3x3 output gives 9 gemm rows; the 16-row tile pads 7 more
	p := samplePad1()
	p.InH, p.InW = 3, 3
	res := simulate(t, p, fwdNHWC(), 0)

	if got := len(res.Requests[Output]); got != 1 {
		t.Fatalf("output requests: got %d want 1", got)
	}
	hits := make(map[uint64]int)
	for _, th := range res.Requests[Output][0].Threads {
		if row := th.TID / 2; th.Valid != (row < 9) {
			t.Errorf("output thread %d (row %d): valid %v", th.TID, row, th.Valid)
		}
		if th.Valid {
			hits[th.Offset]++
		}
	}
	if len(hits) != 18 {
		t.Errorf("distinct output offsets: got %d want 18", len(hits))
	}
	for off, n := range hits {
		if n != 1 {
			t.Errorf("output offset %#x written %d times", off, n)
		}
	}

	// k tile 4 is the centre tap, so only the padded rows are invalid
	centre := res.Requests[Input][4]
	if valid, total := centre.Lanes(); valid != 18 || total != 32 {
		t.Errorf("centre tap lanes: got %d/%d want 18/32", valid, total)
	}
	for _, th := range centre.Threads {
		if row := th.TID / 2; th.Valid != (row < 9) {
			t.Errorf("input thread %d (row %d): valid %v", th.TID, row, th.Valid)
		}
	}

	for _, op := range Operands {
		if s := res.Stats(op); s.Touched != s.Elements {
			t.Errorf("%s: touched %d of %d", op, s.Touched, s.Elements)
		}
	}
	if w := res.Check(quietCtx()); len(w) != 0 {
		t.Errorf("expected no coverage warnings, got %v", w)
	}
}

func TestSimulateRejectsOversizedShapes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		conv func(*conv.Params)
		tune func(*tunable.Tunable)
		want error
		msg  string
	}{
		{
			name: "tensor",
			conv: func(p *conv.Params) { p.Batch, p.InH, p.InW = 1<<30, 1<<30, 1<<30 },
			want: conv.ErrInvalid,
			msg:  "input tensor",
		},
		{
			name: "grid",
			conv: func(p *conv.Params) {
				p.InH, p.InW, p.PadH, p.PadW, p.FilH, p.FilW = 1, 1, 0, 0, 1, 1
				p.Groups, p.InChannels, p.OutChannels = 1<<25, 1<<25, 1<<25
			},
			tune: func(tu *tunable.Tunable) { tu.GemmKPerBlock = 1 },
			want: tunable.ErrInvalid,
			msg:  "grid",
		},
		{
			name: "thread requests",
			conv: func(p *conv.Params) { p.InChannels = 1 << 20 },
			want: tunable.ErrInvalid,
			msg:  "thread requests",
		},
	}
	for _, tc := range tests {
		p, tu := samplePad1(), fwdNHWC()
		if tc.conv != nil {
			tc.conv(&p)
		}
		if tc.tune != nil {
			tc.tune(&tu)
		}
		if err := p.Validate(); err != nil {
			t.Fatalf("%s: shape must pass conv validation: %v", tc.name, err)
		}
		_, err := Simulate(quietCtx(), p, tu, 0, Options{})
		if !errors.Is(err, tc.want) || !strings.Contains(err.Error(), tc.msg) {
			t.Errorf("%s: expected %v mentioning %q, got %v", tc.name, tc.want, tc.msg, err)
		}
	}
}

func TestSimulateGlobalSplitK(t *testing.T) {
	t.Parallel()
	p := samplePad1()
	p.InChannels = 4
	p.OutChannels = 4
	tu := fwdNHWC()
	tu.GlobalSplitK = true

	res := simulate(t, p, tu, 1)
	if res.GridSize != 4 {
		t.Fatalf("grid: got %d want 4", res.GridSize)
	}

	// (split, n tile) order: 0=(0,0) 1=(0,1) 2=(1,0) 3=(1,1)
	var wantInp [][]uint64
	for range 9 {
		wantInp = append(wantInp, []uint64{0, 1})
	}
	for range 9 {
		wantInp = append(wantInp, []uint64{2, 3})
	}
	if diff := cmp.Diff(wantInp, blockIDs(res.Requests[Input])); diff != "" {
		t.Errorf("input block ids (-want +got):\n%s", diff)
	}
	if got := len(res.Requests[Weight]); got != 36 {
		t.Errorf("weight requests: got %d want 36", got)
	}
	for i, r := range res.Requests[Weight] {
		if len(r.BlockIDs) != 1 {
			t.Errorf("weight request %d shared by %v", i, r.BlockIDs)
		}
	}
	wantOut := [][]uint64{{0, 2}, {1, 3}}
	if diff := cmp.Diff(wantOut, blockIDs(res.Requests[Output])); diff != "" {
		t.Errorf("output block ids (-want +got):\n%s", diff)
	}
	for i, r := range res.Requests[Input][9:] {
		if r.ReqIdx != uint64(i) {
			t.Errorf("split 1 input request %d has index %d", i, r.ReqIdx)
		}
	}
	if w := res.Check(quietCtx()); len(w) != 0 {
		t.Errorf("expected no coverage warnings, got %d", len(w))
	}
}

func TestSimulateInputIndependentOfNTiles(t *testing.T) {
	t.Parallel()
	for _, k := range []uint64{2, 4, 8} {
		p := samplePad1()
		p.OutChannels = k
		res := simulate(t, p, fwdNHWC(), 0)
		if got := len(res.Requests[Input]); got != 9 {
			t.Errorf("k=%d: input requests %d want 9", k, got)
		}
		for _, r := range res.Requests[Input] {
			if got := uint64(len(r.BlockIDs)); got != k/2 {
				t.Errorf("k=%d: request shared by %d blocks, want %d", k, got, k/2)
			}
		}
	}
}

func TestSimulateGroups(t *testing.T) {
	t.Parallel()
	p := samplePad1()
	p.Groups = 2
	p.InChannels = 4
	p.OutChannels = 4

	res := simulate(t, p, fwdNHWC(), 0)
	if res.GridSize != 2 {
		t.Fatalf("grid: got %d want 2", res.GridSize)
	}
	if got := len(res.Requests[Input]); got != 18 {
		t.Errorf("input requests: got %d want 18", got)
	}
	for _, op := range Operands {
		if s := res.Stats(op); s.Touched != s.Elements || s.Elements != res.Tensors[op].Size() {
			t.Errorf("%s: touched %d of %d", op, s.Touched, s.Elements)
		}
	}
	if w := res.Check(quietCtx()); len(w) != 0 {
		t.Errorf("expected no coverage warnings, got %d", len(w))
	}
}

func TestSimulatePassThrough(t *testing.T) {
	t.Parallel()
	plain := simulate(t, samplePad1(), fwdNHWC(), 0)
	tu := fwdNHWC()
	tu.PassThroughA = true
	pt := simulate(t, samplePad1(), tu, 0)

	if diff := cmp.Diff(plain.Records, pt.Records); diff != "" {
		t.Errorf("pass-through changed coverage (-plain +pt):\n%s", diff)
	}
	// centre tap: plain lanes interleave channels, pass-through lanes walk pixels
	if got := plain.Requests[Input][4].Threads[1].Offset; got != 4 {
		t.Errorf("plain thread 1 offset %d want 4", got)
	}
	if got := pt.Requests[Input][4].Threads[1].Offset; got != 8 {
		t.Errorf("pass-through thread 1 offset %d want 8", got)
	}
}

func TestSimulateMergeE(t *testing.T) {
	t.Parallel()
	plain := simulate(t, samplePad1(), fwdNHWC(), 0)
	tu := fwdNHWC()
	tu.MergeE = true
	merged := simulate(t, samplePad1(), tu, 0)

	// single-channel threads fold c into the k index identically
	if diff := cmp.Diff(plain.Requests, merged.Requests); diff != "" {
		t.Errorf("merge_e requests differ (-plain +merged):\n%s", diff)
	}
}

func TestSimulateWorkersDeterministic(t *testing.T) {
	t.Parallel()
	p := samplePad1()
	p.InChannels = 4
	p.OutChannels = 8
	tu := fwdNHWC()
	tu.GlobalSplitK = true

	seq, err := Simulate(quietCtx(), p, tu, 1, Options{Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	par, err := Simulate(quietCtx(), p, tu, 1, Options{Workers: 4})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(seq.Requests, par.Requests); diff != "" {
		t.Errorf("requests differ (-seq +par):\n%s", diff)
	}
	if diff := cmp.Diff(seq.Records, par.Records); diff != "" {
		t.Errorf("records differ (-seq +par):\n%s", diff)
	}
}

func TestSimulateErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		conv func(*conv.Params)
		tune func(*tunable.Tunable)
		gks  uint
		want error
	}{
		{"backward", nil, func(tu *tunable.Tunable) { tu.Direction = tunable.Bwd }, 0, ErrUnsupported},
		{"nchw", nil, func(tu *tunable.Tunable) { tu.Layout = tunable.NCHW }, 0, ErrUnsupported},
		{"gemm k", func(p *conv.Params) { p.FilH, p.FilW, p.PadH, p.PadW, p.InChannels = 1, 1, 0, 0, 1 }, nil, 0, tunable.ErrInvalid},
		{"split exponent", nil, func(tu *tunable.Tunable) { tu.GlobalSplitK = true }, 40, tunable.ErrInvalid},
		{"groups", func(p *conv.Params) { p.Groups = 3 }, nil, 0, conv.ErrInvalid},
		{"block size", nil, func(tu *tunable.Tunable) { tu.ClusterB = tunable.Lengths{1, 1, 1, 16} }, 0, tunable.ErrInvalid},
	}
	for _, tc := range tests {
		p, tu := samplePad1(), fwdNHWC()
		if tc.conv != nil {
			tc.conv(&p)
		}
		if tc.tune != nil {
			tc.tune(&tu)
		}
		if _, err := Simulate(quietCtx(), p, tu, tc.gks, Options{}); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestOutputVector(t *testing.T) {
	t.Parallel()
	wide := func(p tunable.Precision, nPer, vs uint64, gkgs bool) tunable.Tunable {
		tu := fwdNHWC()
		tu.Precision = p
		tu.GemmNPerBlock = nPer
		tu.VectorStore = vs
		tu.GlobalSplitK = gkgs
		tu.ThreadA[1] = 4
		return tu
	}
	single := fwdNHWC()
	single.Precision = tunable.FP16

	tests := []struct {
		name string
		tu   tunable.Tunable
		want uint64
	}{
		{"fp32", wide(tunable.FP32, 16, 0, false), 1},
		{"fp16 split-k", wide(tunable.FP16, 16, 0, true), 2},
		{"fp16 single c", single, 1},
		{"fp16 default", wide(tunable.FP16, 16, 0, false), 8},
		{"fp16 vector store", wide(tunable.FP16, 16, 4, false), 4},
		{"fp16 narrow tile", wide(tunable.FP16, 4, 0, false), 4},
		{"int8 default", wide(tunable.INT8, 32, 0, false), 16},
		{"int8 vector store", wide(tunable.INT8, 32, 8, false), 8},
	}
	for _, tc := range tests {
		if got := outputVector(tc.tu); got != tc.want {
			t.Errorf("%s: got %d want %d", tc.name, got, tc.want)
		}
	}
}

func TestCheckReportsMismatches(t *testing.T) {
	t.Parallel()
	// 1x3x3 input with stride 2: row 1 and column 1 are never needed
	p := conv.Params{
		InH: 3, InW: 3, Batch: 1, OutChannels: 1, InChannels: 1,
		StrideH: 2, StrideW: 2, DilationH: 1, DilationW: 1,
		FilH: 1, FilW: 1, Groups: 1,
	}
	res := &Result{}
	res.validH, res.validW = p.InputAccessMap()
	res.Tensors[Input] = ndindex.New(1, 3, 3, 1, 1)
	res.Records[Input] = Record{
		true, false, true,
		false, true, false,
		true, false, false,
	}
	res.Records[Weight] = Record{true}
	res.Records[Output] = Record{true, true, false, true}

	want := []Warning{
		{Tensor: Input, Index: 4, Kind: Unexpected},
		{Tensor: Input, Index: 8, Kind: Untouched},
		{Tensor: Output, Index: 2, Kind: Untouched},
	}
	if diff := cmp.Diff(want, res.Check(quietCtx())); diff != "" {
		t.Errorf("warnings (-want +got):\n%s", diff)
	}
}

func TestWarningMessage(t *testing.T) {
	t.Parallel()
	tests := map[Warning]string{
		{Tensor: Input, Kind: Untouched}:  "input not touched pixel",
		{Tensor: Input, Kind: Unexpected}: "input touched unused pixel",
		{Tensor: Weight, Kind: Untouched}: "weight not touched pixel",
		{Tensor: Output, Kind: Untouched}: "output not touched pixel",
	}
	for w, want := range tests {
		if got := w.Message(); got != want {
			t.Errorf("%+v: got %q want %q", w, got, want)
		}
	}
}
