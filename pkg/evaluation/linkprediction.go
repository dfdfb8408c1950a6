package evaluation

import (
	"context"
	"math/rand/v2"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/embedding"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"

	"golang.org/x/sync/errgroup"
)

type rankSums struct {
	n      int
	rr     float64
	hits1  int
	hits3  int
	hits10 int
}

// linkPrediction ranks every live entity as the tail of each sampled triple.
// Other true tails of the same (head, relation) are filtered out. Ties count
// half, so a space that scores everything alike cannot reach a perfect rank.
func (e *Engine) linkPrediction(
	ctx context.Context,
	entities []common.Entity,
	active []common.Triple,
	space *embedding.Space,
) (*LinkPrediction, error) {
	pool, heldOut := heldOutTriples(active, space)
	if !heldOut {
		logger.Warn("[Eval] No held-out triples in embedding space, evaluating on training triples")
		pool = active
	}
	sample := e.sample(pool)

	truth := make(map[common.TripleKey]struct{}, len(active))
	for _, t := range active {
		truth[t.Key()] = struct{}{}
	}
	candidates := make([]common.EntityID, 0, len(entities))
	for _, en := range entities {
		if _, ok := space.Entities[en.ID]; ok {
			candidates = append(candidates, en.ID)
		}
	}

	chunks := (len(sample) + e.params.ChunkSize - 1) / e.params.ChunkSize
	partial := make([]rankSums, chunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.params.Parallelism)
	for c := range chunks {
		part := sample[c*e.params.ChunkSize : min((c+1)*e.params.ChunkSize, len(sample))]
		g.Go(func() error {
			var sums rankSums
			for _, t := range part {
				if err := gctx.Err(); err != nil {
					return err
				}
				rank, ok := rankTail(space, t, candidates, truth)
				if !ok {
					continue
				}
				sums.n++
				sums.rr += 1 / float64(rank)
				if rank <= 1 {
					sums.hits1++
				}
				if rank <= 3 {
					sums.hits3++
				}
				if rank <= 10 {
					sums.hits10++
				}
			}
			partial[c] = sums
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total rankSums
	for _, p := range partial {
		total.n += p.n
		total.rr += p.rr
		total.hits1 += p.hits1
		total.hits3 += p.hits3
		total.hits10 += p.hits10
	}
	if total.n == 0 {
		return nil, nil
	}
	n := float64(total.n)
	return &LinkPrediction{
		HeldOut:   heldOut,
		Evaluated: total.n,
		MRR:       total.rr / n,
		Hits1:     float64(total.hits1) / n,
		Hits3:     float64(total.hits3) / n,
		Hits10:    float64(total.hits10) / n,
	}, nil
}

// heldOutTriples returns the active triples the space was not trained on.
func heldOutTriples(active []common.Triple, space *embedding.Space) ([]common.Triple, bool) {
	if len(space.HeldOut) == 0 {
		return nil, false
	}
	keys := make(map[common.TripleKey]struct{}, len(space.HeldOut))
	for _, k := range space.HeldOut {
		keys[k] = struct{}{}
	}
	var out []common.Triple
	for _, t := range active {
		if _, ok := keys[t.Key()]; ok {
			out = append(out, t)
		}
	}
	return out, len(out) > 0
}

func rankTail(space *embedding.Space, t common.Triple, candidates []common.EntityID, truth map[common.TripleKey]struct{}) (int, bool) {
	target, ok := space.Distance(t.Subject, t.Predicate, t.Object)
	if !ok {
		return 0, false
	}
	better, ties := 0, 0
	for _, c := range candidates {
		if c == t.Object {
			continue
		}
		if _, known := truth[common.TripleKey{Subject: t.Subject, Predicate: t.Predicate, Object: c}]; known {
			continue
		}
		d, _ := space.Distance(t.Subject, t.Predicate, c)
		switch {
		case d < target:
			better++
		case d == target:
			ties++
		}
	}
	return 1 + better + ties/2, true
}

// sample draws up to SampleSize active triples with a seeded shuffle, so
// repeated evaluations of the same snapshot test the same triples.
func (e *Engine) sample(active []common.Triple) []common.Triple {
	if len(active) <= e.params.SampleSize {
		return active
	}
	out := make([]common.Triple, len(active))
	copy(out, active)
	rng := rand.New(rand.NewPCG(e.params.Seed, e.params.Seed>>1|1))
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out[:e.params.SampleSize]
}
