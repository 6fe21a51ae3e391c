// Package tuning picks tunables for a convolution by simulating their
// global-memory access pattern.
package tuning

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/samcharles93/convmap/internal/conv"
	"github.com/samcharles93/convmap/internal/gmap"
	"github.com/samcharles93/convmap/internal/logger"
	"github.com/samcharles93/convmap/internal/tunable"
)

// ErrNoCandidate reports that no candidate could be simulated for a shape.
var ErrNoCandidate = errors.New("tuning: no applicable tunable")

// Score is the simulated quality of one tunable on one convolution.
type Score struct {
	Tunable    tunable.Tunable `json:"tunable"`
	Kernel     string          `json:"kernel"`
	Efficiency float64         `json:"efficiency"`
	Stats      [3]gmap.Stats   `json:"stats"`
	Warnings   int             `json:"warnings"`
}

type shapeKey struct {
	conv conv.Params
	gks  uint
}

// Ranker scores tunables and remembers the best one per convolution shape.
type Ranker struct {
	opts gmap.Options

	mu    sync.RWMutex
	cache map[shapeKey]Score
}

func NewRanker(opts gmap.Options) *Ranker {
	return &Ranker{opts: opts, cache: make(map[shapeKey]Score)}
}

// Rank simulates every candidate and returns the applicable ones ordered by
// efficiency, best first. Candidates that fail validation for this shape are
// skipped. Ties keep candidate order.
func (r *Ranker) Rank(ctx context.Context, p conv.Params, candidates []tunable.Tunable, gks uint) ([]Score, error) {
	log := logger.FromContext(ctx)
	quiet := logger.WithContext(ctx, logger.Nop())

	var scores []Score
	for _, t := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := gmap.Simulate(quiet, p, t, gks, r.opts)
		if err != nil {
			log.Debug("tunable skipped", "kernel", t.KernelName(), "error", err)
			continue
		}
		s := Score{Tunable: t, Kernel: t.KernelName()}
		var valid, total uint64
		for _, op := range gmap.Operands {
			s.Stats[op] = res.Stats(op)
			valid += s.Stats[op].ValidLanes
			total += s.Stats[op].TotalLanes
		}
		if total > 0 {
			s.Efficiency = float64(valid) / float64(total)
		}
		s.Warnings = len(res.Check(quiet))
		scores = append(scores, s)
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("%w: %d candidates for %s", ErrNoCandidate, len(candidates), p)
	}
	slices.SortStableFunc(scores, func(a, b Score) int {
		return cmp.Compare(b.Efficiency, a.Efficiency)
	})
	return scores, nil
}

// Best returns the highest scoring candidate, consulting the cache first.
// The cache is keyed by shape only, so callers are expected to pass the same
// candidate set for a given shape.
func (r *Ranker) Best(ctx context.Context, p conv.Params, candidates []tunable.Tunable, gks uint) (Score, error) {
	key := shapeKey{conv: p, gks: gks}
	r.mu.RLock()
	if s, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return s, nil
	}
	r.mu.RUnlock()

	scores, err := r.Rank(ctx, p, candidates, gks)
	if err != nil {
		return Score{}, err
	}
	best := scores[0]

	r.mu.Lock()
	r.cache[key] = best
	r.mu.Unlock()

	logger.FromContext(ctx).Debug("tunable selected", "kernel", best.Kernel, "efficiency", best.Efficiency)
	return best, nil
}
