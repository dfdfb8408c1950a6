// Package embedding trains TransE embeddings over the active triples of a
// graph snapshot.
package embedding

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/graph"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"
)

const (
	DefaultDimensions   = 50
	DefaultEpochs       = 100
	DefaultLearningRate = 0.01
	DefaultMargin       = 1.0
	DefaultPatience     = 10
	DefaultMinTriples   = 10
	DefaultSeed         = 42
	DefaultHoldOut      = 0.1
	maxHoldOut          = 0.5

	defaultNegativeAttempts = 10
	cancelCheckEvery        = 1024
)

// Params configures the trainer. Zero values select the defaults.
type Params struct {
	Dimensions   int
	Epochs       int
	LearningRate float64
	Margin       float64
	Norm         Norm
	Patience     int
	MinTriples   int
	Seed         uint64

	// NegativeAttempts caps how often a corruption is redrawn when it
	// recreates a true triple.
	NegativeAttempts int

	// HoldOut is the fraction of active triples kept out of training for
	// link prediction, capped at 0.5. A negative value trains on every
	// triple.
	HoldOut float64
}

// TrainResult is the outcome of a training run. When Skipped is set, Space
// is the prior passed in and Warning explains why.
type TrainResult struct {
	Space   *Space
	Skipped bool
	Warning error
}

// Trainer runs TransE training. It is stateless between runs and safe for
// concurrent use.
type Trainer struct {
	params Params
}

// NewTrainer creates a trainer with params, filling in defaults.
func NewTrainer(params Params) *Trainer {
	if params.Dimensions <= 0 {
		params.Dimensions = DefaultDimensions
	}
	if params.Epochs <= 0 {
		params.Epochs = DefaultEpochs
	}
	if params.LearningRate <= 0 {
		params.LearningRate = DefaultLearningRate
	}
	if params.Margin <= 0 {
		params.Margin = DefaultMargin
	}
	if params.Norm != L1 {
		params.Norm = L2
	}
	if params.Patience <= 0 {
		params.Patience = DefaultPatience
	}
	if params.MinTriples <= 0 {
		params.MinTriples = DefaultMinTriples
	}
	if params.Seed == 0 {
		params.Seed = DefaultSeed
	}
	if params.NegativeAttempts <= 0 {
		params.NegativeAttempts = defaultNegativeAttempts
	}
	switch {
	case params.HoldOut == 0:
		params.HoldOut = DefaultHoldOut
	case params.HoldOut < 0:
		params.HoldOut = 0
	}
	params.HoldOut = min(params.HoldOut, maxHoldOut)
	return &Trainer{params: params}
}

// Params returns the effective parameters.
func (tr *Trainer) Params() Params {
	return tr.params
}

type encoded struct {
	h, r, t int
}

// Train fits embeddings to the active triples of snap. With fewer than
// MinTriples active triples it returns prior unchanged with Skipped set and
// an *common.InsufficientDataError warning. A cancelled context abandons the
// run and returns the context error; nothing of the partial run escapes.
func (tr *Trainer) Train(ctx context.Context, snap *graph.Snapshot, prior *Space) (TrainResult, error) {
	p := tr.params
	triples := snap.ActiveTriples()
	if len(triples) < p.MinTriples {
		warn := &common.InsufficientDataError{Have: len(triples), Need: p.MinTriples}
		logger.Warn("[Train] Skipping embedding training", "reason", warn.Error())
		return TrainResult{Space: prior, Skipped: true, Warning: warn}, nil
	}

	entities := snap.LiveEntities()
	entityIdx := make(map[common.EntityID]int, len(entities))
	for i, e := range entities {
		entityIdx[e.ID] = i
	}
	relations := snap.Predicates()
	relationIdx := make(map[string]int, len(relations))
	for i, r := range relations {
		relationIdx[r] = i
	}

	all := make([]encoded, 0, len(triples))
	truth := make(map[encoded]struct{}, len(triples))
	for _, t := range triples {
		h, okH := entityIdx[t.Subject]
		o, okT := entityIdx[t.Object]
		if !okH || !okT {
			return TrainResult{}, &common.ConsistencyFault{TripleID: t.ID, Reason: "active triple references a redirected entity"}
		}
		e := encoded{h: h, r: relationIdx[t.Predicate], t: o}
		all = append(all, e)
		truth[e] = struct{}{}
	}
	train, heldOut := tr.split(all)

	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))
	ent := initVectors(rng, len(entities), p.Dimensions)
	rel := initVectors(rng, len(relations), p.Dimensions)
	for _, v := range rel {
		normalize(v)
	}

	start := time.Now()
	best := math.Inf(1)
	stale := 0
	epochs := 0
	loss := 0.0
	for epoch := 0; epoch < p.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return TrainResult{}, err
		}
		for _, v := range ent {
			normalize(v)
		}

		loss = 0
		for step, i := range rng.Perm(len(train)) {
			if step%cancelCheckEvery == 0 {
				if err := ctx.Err(); err != nil {
					return TrainResult{}, err
				}
			}
			pos := train[i]
			neg, ok := tr.corrupt(rng, pos, len(entities), truth)
			if !ok {
				continue
			}
			loss += tr.step(ent, rel, pos, neg)
		}
		epochs = epoch + 1

		if loss < best-1e-9 {
			best = loss
			stale = 0
		} else {
			stale++
			if stale >= p.Patience {
				logger.Debug("[Train] Early stop", "epoch", epochs, "loss", loss)
				break
			}
		}
	}

	space := &Space{
		Version:    snap.Version,
		Norm:       p.Norm,
		Dimensions: p.Dimensions,
		Entities:   make(map[common.EntityID][]float64, len(entities)),
		Relations:  make(map[string][]float64, len(relations)),
		Loss:       loss,
		Epochs:     epochs,
		TrainedAt:  time.Now(),
	}
	for _, i := range heldOut {
		t := triples[i]
		space.HeldOut = append(space.HeldOut, t.Key())
	}
	for i, e := range entities {
		space.Entities[e.ID] = ent[i]
	}
	for i, r := range relations {
		space.Relations[r] = rel[i]
	}

	logger.Info("[Train] Embeddings trained",
		"triples", len(train),
		"held_out", len(heldOut),
		"entities", len(entities),
		"relations", len(relations),
		"epochs", epochs,
		"loss", fmt.Sprintf("%.4f", loss),
		"duration", time.Since(start),
	)
	return TrainResult{Space: space}, nil
}

// split keeps a seeded sample of about HoldOut × len(all) triples out of
// training and returns the indexes of the kept-out triples in all. A triple
// is only held out while both of its entities stay in some training triple,
// so every evaluated entity has a trained vector.
func (tr *Trainer) split(all []encoded) ([]encoded, []int) {
	want := int(tr.params.HoldOut * float64(len(all)))
	if want == 0 {
		return all, nil
	}

	degree := make(map[int]int, len(all))
	for _, e := range all {
		degree[e.h]++
		degree[e.t]++
	}
	rng := rand.New(rand.NewPCG(tr.params.Seed^0x5851f42d4c957f2d, tr.params.Seed))
	held := make(map[int]struct{}, want)
	for _, i := range rng.Perm(len(all)) {
		if len(held) == want {
			break
		}
		e := all[i]
		need := 2
		if e.h == e.t {
			need = 3
		}
		if degree[e.h] < need || degree[e.t] < need {
			continue
		}
		degree[e.h]--
		degree[e.t]--
		held[i] = struct{}{}
	}

	train := make([]encoded, 0, len(all)-len(held))
	heldOut := make([]int, 0, len(held))
	for i, e := range all {
		if _, ok := held[i]; ok {
			heldOut = append(heldOut, i)
			continue
		}
		train = append(train, e)
	}
	return train, heldOut
}

func initVectors(rng *rand.Rand, n, dim int) [][]float64 {
	bound := 6 / math.Sqrt(float64(dim))
	out := make([][]float64, n)
	for i := range out {
		v := make([]float64, dim)
		for j := range v {
			v[j] = (rng.Float64()*2 - 1) * bound
		}
		out[i] = v
	}
	return out
}

func normalize(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] /= n
	}
}

// corrupt replaces the head or the tail of pos with a uniformly drawn
// entity, redrawing when the result is a known true triple.
func (tr *Trainer) corrupt(rng *rand.Rand, pos encoded, n int, truth map[encoded]struct{}) (encoded, bool) {
	if n < 2 {
		return encoded{}, false
	}
	for range tr.params.NegativeAttempts {
		neg := pos
		if rng.IntN(2) == 0 {
			neg.h = rng.IntN(n)
		} else {
			neg.t = rng.IntN(n)
		}
		if neg == pos {
			continue
		}
		if _, known := truth[neg]; known {
			continue
		}
		return neg, true
	}
	return encoded{}, false
}

// step applies one SGD update for the margin ranking loss
// max(0, margin + d(pos) - d(neg)) and returns the loss.
func (tr *Trainer) step(ent, rel [][]float64, pos, neg encoded) float64 {
	p := tr.params
	dPos := distance(p.Norm, ent[pos.h], rel[pos.r], ent[pos.t])
	dNeg := distance(p.Norm, ent[neg.h], rel[neg.r], ent[neg.t])
	l := p.Margin + dPos - dNeg
	if l <= 0 {
		return 0
	}

	gPos := gradient(p.Norm, ent[pos.h], rel[pos.r], ent[pos.t], dPos)
	gNeg := gradient(p.Norm, ent[neg.h], rel[neg.r], ent[neg.t], dNeg)
	lr := p.LearningRate
	for i := range gPos {
		ent[pos.h][i] -= lr * gPos[i]
		rel[pos.r][i] -= lr * gPos[i]
		ent[pos.t][i] += lr * gPos[i]

		ent[neg.h][i] += lr * gNeg[i]
		rel[neg.r][i] += lr * gNeg[i]
		ent[neg.t][i] -= lr * gNeg[i]
	}
	return l
}

// gradient is d||h + r - t|| / dh, which is also the gradient for r and the
// negated gradient for t.
func gradient(norm Norm, h, r, t []float64, dist float64) []float64 {
	g := make([]float64, len(h))
	for i := range h {
		d := h[i] + r[i] - t[i]
		switch {
		case norm == L1:
			if d > 0 {
				g[i] = 1
			} else if d < 0 {
				g[i] = -1
			}
		case dist > 0:
			g[i] = d / dist
		}
	}
	return g
}
