package gmap

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/convmap/internal/conv"
	"github.com/samcharles93/convmap/internal/logger"
	"github.com/samcharles93/convmap/internal/tunable"
	"github.com/samcharles93/convmap/pkg/ndindex"
)

// Options tunes how a simulation executes. It never changes the result.
type Options struct {
	// Workers bounds the goroutines deriving thread addresses. Values <= 1
	// derive everything on the calling goroutine.
	Workers int
}

// blockCoord is the position of one block at one K-tile step. gemmM, gemmN
// and gemmK are element offsets, not tile indices.
type blockCoord struct {
	bid   uint64
	group uint64
	split uint64
	gemmM uint64
	gemmN uint64
	gemmK uint64
}

// arena owns the deduplicated requests of one operand, indexed by key.
type arena struct {
	keys ndindex.Desc
	reqs []BlockRequest
}

func newArena(keys ndindex.Desc) *arena {
	return &arena{keys: keys, reqs: make([]BlockRequest, keys.Size())}
}

// visit registers block bid as issuing the request at key. The first
// visitor creates the record and takes the block's current request index;
// later visitors only add themselves as aliases. counter is the per-block
// request counter of this operand and is advanced for every visit.
func (a *arena) visit(key, bid, blockSize uint64, counter []uint64) (created bool) {
	r := &a.reqs[key]
	created = len(r.BlockIDs) == 0
	if created {
		r.BlockSize = blockSize
		r.ReqIdx = counter[bid]
	}
	r.BlockIDs = append(r.BlockIDs, bid)
	counter[bid]++
	return created
}

// derivation is a request whose thread addresses still have to be computed.
type derivation struct {
	op   Operand
	key  uint64
	at   blockCoord
	i, j uint64 // per-thread replication indices
}

// Simulate runs the forward NHWC address model for one configuration. gks is
// the split-k exponent, used only when the tunable enables global split-k.
func Simulate(ctx context.Context, p conv.Params, t tunable.Tunable, gks uint, opts Options) (*Result, error) {
	pl, err := newPlan(p, t, gks)
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx).With("kernel", t.KernelName())
	log.Debug("gmap plan",
		"gemm_m", pl.gemmM, "gemm_n", pl.gemmN, "gemm_k", pl.gemmK,
		"grid_size", pl.gridSize, "block_size", pl.blockSize, "splits", pl.splits)

	arenas := [numOperands]*arena{
		Input:  newArena(pl.inpKeys),
		Weight: newArena(pl.weiKeys),
		Output: newArena(pl.outKeys),
	}
	var counters [numOperands][]uint64
	for op := range counters {
		counters[op] = make([]uint64, pl.gridSize)
	}

	pending := pl.assign(arenas, counters)
	if err := pl.derive(ctx, arenas, pending, opts.Workers); err != nil {
		return nil, err
	}

	res := &Result{
		GridSize:  pl.gridSize,
		BlockSize: pl.blockSize,
		DataByte:  pl.dataByte,
		Tensors:   [numOperands]ndindex.Desc{pl.tensorInp, pl.tensorWei, pl.tensorOut},
	}
	for _, op := range Operands {
		res.Requests[op] = arenas[op].reqs
		res.Records[op] = mark(res.Requests[op], res.Tensors[op].Size())
	}
	res.validH, res.validW = p.InputAccessMap()

	log.Debug("gmap simulated",
		"inp_requests", len(res.Requests[Input]),
		"wei_requests", len(res.Requests[Weight]),
		"out_requests", len(res.Requests[Output]))
	return res, nil
}

// assign walks every block and K-tile in launch order, creating or aliasing
// request records. It returns the records whose addresses must be derived.
func (pl *plan) assign(arenas [numOperands]*arena, counters [numOperands][]uint64) []derivation {
	var pending []derivation
	pos := make([]uint64, pl.blockMapping.Rank())
	for bid := range pl.gridSize {
		pl.blockMapping.GetInto(pos, bid)
		for gemmK := uint64(0); gemmK < pl.gemmK; gemmK += pl.kPer {
			at := blockCoord{
				bid:   bid,
				group: pos[0],
				split: pos[1],
				gemmM: pos[2] * pl.mPer,
				gemmN: pos[3] * pl.nPer,
				gemmK: gemmK,
			}
			pending = pl.assignInput(arenas[Input], counters[Input], at, pending)
			pending = pl.assignWeight(arenas[Weight], counters[Weight], at, pending)
			pending = pl.assignOutput(arenas[Output], counters[Output], at, pending)
		}
	}
	return pending
}

// assignInput: input addresses depend on (group, split, m, k) only, so the
// first N tile to get here owns the record.
func (pl *plan) assignInput(a *arena, counter []uint64, at blockCoord, pending []derivation) []derivation {
	for i := range pl.taNbPerThread {
		for j := range pl.taNcPerThread {
			key := a.keys.Offset(at.group, at.split, at.gemmM/pl.mPer, at.gemmK/pl.kPer, i, j)
			if a.visit(key, at.bid, pl.blockSize, counter) {
				pending = append(pending, derivation{op: Input, key: key, at: at, i: i, j: j})
			}
		}
	}
	return pending
}

// assignWeight: weight addresses depend on (group, split, n, k) only, so the
// first M tile owns the record.
func (pl *plan) assignWeight(a *arena, counter []uint64, at blockCoord, pending []derivation) []derivation {
	for i := range pl.tbNkPerThread {
		for j := range pl.tbNcPerThread {
			key := a.keys.Offset(at.group, at.split, at.gemmN/pl.nPer, at.gemmK/pl.kPer, i, j)
			if a.visit(key, at.bid, pl.blockSize, counter) {
				pending = append(pending, derivation{op: Weight, key: key, at: at, i: i, j: j})
			}
		}
	}
	return pending
}

// assignOutput: output is written once per (group, m, n) after the last K
// tile. Split-k slots alias the slot-0 store.
func (pl *plan) assignOutput(a *arena, counter []uint64, at blockCoord, pending []derivation) []derivation {
	if at.gemmK != 0 {
		return pending
	}
	for i := range pl.tcNbPerThread {
		key := a.keys.Offset(at.group, at.gemmM/pl.mPer, at.gemmN/pl.nPer, i)
		if a.visit(key, at.bid, pl.blockSize, counter) {
			pending = append(pending, derivation{op: Output, key: key, at: at, i: i})
		}
	}
	return pending
}

// derive fills in thread requests for every pending record. Each record is
// written by exactly one derivation, so workers never share state.
func (pl *plan) derive(ctx context.Context, arenas [numOperands]*arena, pending []derivation, workers int) error {
	run := func(d derivation) {
		var threads []ThreadRequest
		switch d.op {
		case Input:
			threads = pl.inputThreads(d.at, d.i, d.j)
		case Weight:
			threads = pl.weightThreads(d.at, d.i, d.j)
		case Output:
			threads = pl.outputThreads(d.at, d.i)
		}
		arenas[d.op].reqs[d.key].Threads = threads
	}

	if workers <= 1 {
		for _, d := range pending {
			run(d)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, d := range pending {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			run(d)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("gmap: derive addresses: %w", err)
	}
	return ctx.Err()
}

func (pl *plan) inputThreads(at blockCoord, tInb, tIc uint64) []ThreadRequest {
	ca, ta := pl.ca, pl.ta
	threads := make([]ThreadRequest, pl.blockSize)
	m := make([]uint64, pl.gemmMTrans.Rank())
	k := make([]uint64, pl.gemmKTrans.Rank())
	for tid := range pl.blockSize {
		var inb, ic uint64
		if pl.tu.PassThroughA {
			tmp := tid
			inb = (tmp % ca[3]) * ta[3]
			tmp /= ca[3]
			ic = (tmp % ca[1]) * pl.taVectorC
			tmp /= ca[1]
			inb += (tmp % ca[2]) * ta[2] * (ca[3] * ta[3])
		} else {
			ic = (tid % ca[1]) * ta[1]
			inb = (tid / ca[1]) * ta[3]
		}

		// rows of the padded gemm m tail decode to a batch index past n
		pl.gemmMTrans.GetOuterInto(m, at.gemmM+inb+tInb*pl.taNbStride)
		kIdx := at.gemmK + at.split*pl.gemmK
		if pl.tu.MergeE {
			kIdx += ic
		}
		pl.gemmKTrans.GetInto(k, kIdx)

		in, iho, iwo := m[0], m[1], m[2]
		iy, ix, c := k[0], k[1], k[2]
		if !pl.tu.MergeE {
			step := pl.taVectorC
			if pl.tu.PassThroughA {
				step *= ca[1]
			}
			c += ic + tIc*step
		}

		// negative positions inside the padding wrap and fail InRange
		ihi := iho*pl.conv.StrideH + iy*pl.conv.DilationH - pl.conv.PadH
		iwi := iwo*pl.conv.StrideW + ix*pl.conv.DilationW - pl.conv.PadW

		threads[tid] = ThreadRequest{
			TID:      tid,
			DataByte: pl.dataByte,
			Vector:   pl.taVectorC,
			Offset:   pl.tensorInp.Offset(in, ihi, iwi, at.group, c) * pl.dataByte,
			Valid:    pl.tensorInp.InRange(in, ihi, iwi, at.group, c),
		}
	}
	return threads
}

func (pl *plan) weightThreads(at blockCoord, tIk, tIc uint64) []ThreadRequest {
	threads := make([]ThreadRequest, pl.blockSize)
	k := make([]uint64, pl.gemmKTrans.Rank())
	for tid := range pl.blockSize {
		ic := (tid % pl.cb[1]) * pl.tb[1]
		ik := (tid/pl.cb[1])*pl.tb[3] + at.gemmN + tIk*pl.tbNkStride

		kIdx := at.gemmK + at.split*pl.gemmK
		if pl.tu.MergeE {
			kIdx += ic
		}
		pl.gemmKTrans.GetInto(k, kIdx)

		iy, ix, c := k[0], k[1], k[2]
		if !pl.tu.MergeE {
			c += ic + tIc*pl.tbVectorC
		}

		threads[tid] = ThreadRequest{
			TID:      tid,
			DataByte: pl.dataByte,
			Vector:   pl.tbVectorC,
			Offset:   pl.tensorWei.Offset(at.group, ik, iy, ix, c) * pl.dataByte,
			Valid:    pl.tensorWei.InRange(at.group, ik, iy, ix, c),
		}
	}
	return threads
}

func (pl *plan) outputThreads(at blockCoord, tInb uint64) []ThreadRequest {
	threads := make([]ThreadRequest, pl.blockSize)
	m := make([]uint64, pl.gemmMTrans.Rank())
	for tid := range pl.blockSize {
		ik := at.gemmN + (tid%pl.ccK)*pl.tcVectorK
		inb := at.gemmM + tid/pl.ccK + tInb*pl.tcNbStride
		pl.gemmMTrans.GetOuterInto(m, inb)

		threads[tid] = ThreadRequest{
			TID:      tid,
			DataByte: pl.dataByte,
			Vector:   pl.tcVectorK,
			Offset:   pl.tensorOut.Offset(m[0], m[1], m[2], at.group, ik) * pl.dataByte,
			Valid:    pl.tensorOut.InRange(m[0], m[1], m[2], at.group, ik),
		}
	}
	return threads
}

// mark builds the element bitmap of one operand. Every lane of a valid
// request counts; lanes that run past the tensor end are ignored.
func mark(reqs []BlockRequest, size uint64) Record {
	rec := make(Record, size)
	for i := range reqs {
		for _, t := range reqs[i].Threads {
			if !t.Valid {
				continue
			}
			base := t.Offset / t.DataByte
			for v := range t.Vector {
				if idx := base + v; idx < size {
					rec[idx] = true
				}
			}
		}
	}
	return rec
}
