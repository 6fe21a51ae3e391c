package gmap

import (
	"fmt"
	"math/bits"

	"github.com/samcharles93/convmap/internal/conv"
	"github.com/samcharles93/convmap/internal/tunable"
	"github.com/samcharles93/convmap/pkg/ndindex"
)

// plan holds the GEMM geometry and per-thread mapping constants derived from
// one (conv, tunable, gks) triple for the forward NHWC kernel.
type plan struct {
	conv conv.Params
	tu   tunable.Tunable

	dataByte uint64
	splits   uint64
	mPer     uint64
	nPer     uint64
	kPer     uint64
	gemmM    uint64
	gemmN    uint64
	gemmK    uint64

	blockSize uint64
	gridSize  uint64

	// operand A (input): thread (e, c, nb0, nb1), cluster (e, c, nb0, nb1)
	ta, ca        tunable.Lengths
	taNbPerThread uint64
	taVectorC     uint64
	taNcPerThread uint64
	taNbStride    uint64

	// operand B (weight): thread (e, c, k0, k1), cluster (e, c, k0, k1)
	tb, cb        tunable.Lengths
	tbNkPerThread uint64
	tbVectorC     uint64
	tbNcPerThread uint64
	tbNkStride    uint64

	// operand C (output)
	tcVectorK     uint64
	ccK           uint64
	ccNb          uint64
	tcNbPerThread uint64
	tcNbStride    uint64

	blockMapping ndindex.Desc // (group, split, m tile, n tile)
	gemmMTrans   ndindex.Desc // (n, ho, wo)
	gemmKTrans   ndindex.Desc // (y, x, c/group)

	tensorInp ndindex.Desc // (n, hi, wi, group, c/group)
	tensorWei ndindex.Desc // (group, k/group, y, x, c/group)
	tensorOut ndindex.Desc // (n, ho, wo, group, k/group)

	inpKeys ndindex.Desc // (group, split, m tile, k tile, nb, nc)
	weiKeys ndindex.Desc // (group, split, n tile, k tile, nk, nc)
	outKeys ndindex.Desc // (group, m tile, n tile, nb)
}

// Simulation limits. Every record, counter and thread request of a run is
// held in memory at once.
const (
	maxTensorElements = 1 << 28
	maxGridSize       = 1 << 24
	maxThreadRequests = 1 << 25
)

func newPlan(p conv.Params, t tunable.Tunable, gks uint) (*plan, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.Direction != tunable.Fwd || t.Layout != tunable.NHWC {
		return nil, fmt.Errorf("%w: %s %s", ErrUnsupported, t.Direction, t.Layout)
	}
	if gks >= 32 {
		return nil, fmt.Errorf("%w: split-k exponent %d too large", tunable.ErrInvalid, gks)
	}

	pl := &plan{conv: p, tu: t}
	pl.dataByte, _ = t.Precision.DataByte()

	ho, wo := p.OutH(), p.OutW()
	c, k, g := p.CPerGroup(), p.KPerGroup(), p.Groups

	pl.tensorInp = ndindex.New(p.Batch, p.InH, p.InW, g, c)
	pl.tensorWei = ndindex.New(g, k, p.FilH, p.FilW, c)
	pl.tensorOut = ndindex.New(p.Batch, ho, wo, g, k)
	for _, d := range []struct {
		name string
		desc ndindex.Desc
	}{{"input", pl.tensorInp}, {"weight", pl.tensorWei}, {"output", pl.tensorOut}} {
		if n, ok := d.desc.CheckedSize(); !ok || n > maxTensorElements {
			return nil, fmt.Errorf("%w: %s tensor %v exceeds %d elements",
				conv.ErrInvalid, d.name, d.desc, uint64(maxTensorElements))
		}
	}

	pl.splits = 1
	if t.GlobalSplitK {
		pl.splits = 1 << gks
	}
	pl.mPer, pl.nPer, pl.kPer = t.GemmMPerBlock, t.GemmNPerBlock, t.GemmKPerBlock
	pl.gemmM = tunable.NextMul(p.Batch*ho*wo, pl.mPer)
	pl.gemmN = tunable.NextMul(k, pl.nPer)
	if t.MergeE {
		pl.gemmK = tunable.NextMul(c*p.FilH*p.FilW, pl.kPer)
	} else {
		pl.gemmK = c * p.FilH * p.FilW / pl.splits
	}
	if pl.gemmK == 0 || pl.gemmK%pl.kPer != 0 {
		return nil, fmt.Errorf("%w: gemm_k %d not divisible by gemm_k_per_block %d",
			tunable.ErrInvalid, pl.gemmK, pl.kPer)
	}

	pl.ta, pl.ca = t.ThreadA, t.ClusterA
	pl.tb, pl.cb = t.ThreadB, t.ClusterB
	pl.blockSize = pl.ca.Product()

	vecCap := 4 * (4 / pl.dataByte)

	pl.taNbPerThread = pl.ta[3]
	if pl.ta[2] != 1 {
		pl.taNbPerThread = pl.ta[2]
	}
	pl.taVectorC = tunable.GCD(pl.ta[1], vecCap)
	pl.taNcPerThread = pl.ta[1] / pl.taVectorC
	switch {
	case t.PassThroughA:
		pl.taNbStride = pl.ca[2] * pl.ca[3]
	case pl.ta[2] != 1:
		pl.taNbStride = pl.ca[3] * pl.ta[3]
	default:
		pl.taNbStride = 1
	}

	pl.tbNkPerThread = pl.tb[3]
	if pl.tb[2] != 1 {
		pl.tbNkPerThread = pl.tb[2]
	}
	pl.tbVectorC = tunable.GCD(pl.tb[1], vecCap)
	pl.tbNcPerThread = pl.tb[1] / pl.tbVectorC
	pl.tbNkStride = 1
	if pl.tb[2] != 1 {
		pl.tbNkStride = pl.cb[3] * pl.tb[3]
	}

	pl.tcVectorK = outputVector(t)
	if pl.nPer%pl.tcVectorK != 0 {
		return nil, fmt.Errorf("%w: gemm_n_per_block %d not divisible by output vector %d",
			tunable.ErrInvalid, pl.nPer, pl.tcVectorK)
	}
	pl.ccK = pl.nPer / pl.tcVectorK
	if pl.blockSize%pl.ccK != 0 {
		return nil, fmt.Errorf("%w: block size %d not divisible by output k cluster %d",
			tunable.ErrInvalid, pl.blockSize, pl.ccK)
	}
	pl.ccNb = pl.blockSize / pl.ccK
	if pl.mPer%pl.ccNb != 0 {
		return nil, fmt.Errorf("%w: gemm_m_per_block %d not divisible by output nb cluster %d",
			tunable.ErrInvalid, pl.mPer, pl.ccNb)
	}
	pl.tcNbPerThread = pl.mPer / pl.ccNb
	pl.tcNbStride = pl.ccNb

	mTiles, nTiles, kTiles := pl.gemmM/pl.mPer, pl.gemmN/pl.nPer, pl.gemmK/pl.kPer
	pl.blockMapping = ndindex.New(g, pl.splits, mTiles, nTiles)
	grid, ok := pl.blockMapping.CheckedSize()
	if !ok || grid > maxGridSize {
		return nil, fmt.Errorf("%w: grid %v exceeds %d blocks",
			tunable.ErrInvalid, pl.blockMapping, uint64(maxGridSize))
	}
	pl.gridSize = grid
	pl.gemmMTrans = ndindex.New(p.Batch, ho, wo)
	pl.gemmKTrans = ndindex.New(p.FilH, p.FilW, c)

	pl.inpKeys = ndindex.New(g, pl.splits, mTiles, kTiles, pl.taNbPerThread, pl.taNcPerThread)
	pl.weiKeys = ndindex.New(g, pl.splits, nTiles, kTiles, pl.tbNkPerThread, pl.tbNcPerThread)
	pl.outKeys = ndindex.New(g, mTiles, nTiles, pl.tcNbPerThread)
	if err := pl.checkThreadRequests(); err != nil {
		return nil, err
	}
	return pl, nil
}

// checkThreadRequests bounds the thread requests a run can derive: one per
// thread of every possible record of every operand.
func (pl *plan) checkThreadRequests() error {
	var total uint64
	for _, keys := range []ndindex.Desc{pl.inpKeys, pl.weiKeys, pl.outKeys} {
		n, ok := keys.CheckedSize()
		if ok {
			var hi uint64
			hi, n = bits.Mul64(n, pl.blockSize)
			ok = hi == 0
		}
		if !ok || n > maxThreadRequests-total {
			return fmt.Errorf("%w: more than %d thread requests (block size %d, key space %v)",
				tunable.ErrInvalid, uint64(maxThreadRequests), pl.blockSize, keys)
		}
		total += n
	}
	return nil
}

// outputVector is the number of output channels one thread writes per
// store. fp16 and int8 store wider vectors unless both operands own a single
// channel per thread; fp16 split-k accumulation always writes pairs.
func outputVector(t tunable.Tunable) uint64 {
	vs := func(def uint64) uint64 {
		if t.VectorStore == 0 {
			return def
		}
		return t.VectorStore
	}
	singleC := t.ThreadA[1] == 1 && t.ThreadB[1] == 1
	switch t.Precision {
	case tunable.FP16:
		switch {
		case t.GlobalSplitK:
			return 2
		case singleC:
			return 1
		default:
			return tunable.GCD(t.GemmNPerBlock, vs(8))
		}
	case tunable.INT8:
		if singleC {
			return 1
		}
		return tunable.GCD(t.GemmNPerBlock, vs(16))
	default:
		return 1
	}
}
