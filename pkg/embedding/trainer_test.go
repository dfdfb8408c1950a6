package embedding

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/graph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ringSnapshot(t *testing.T, n int) *graph.Snapshot {
	t.Helper()
	store := graph.NewTripleStore()
	ids := make([]common.EntityID, n)
	for i := range ids {
		ids[i] = store.CreateEntity(fmt.Sprintf("node %d", i), "")
	}
	for i := range ids {
		for _, edge := range []struct {
			pred string
			step int
		}{{"next", 1}, {"skip", 3}} {
			_, _, err := store.AddTriple(ids[i], edge.pred, ids[(i+edge.step)%n], common.Provenance{
				SourceTurnID: fmt.Sprintf("turn-%d", i),
				Confidence:   0.9,
				Timestamp:    time.Unix(int64(i), 0),
			})
			require.NoError(t, err)
		}
	}
	return store.Snapshot()
}

func TestTrainInsufficientData(t *testing.T) {
	snap := ringSnapshot(t, 3)
	prior := &Space{Version: 7}

	res, err := NewTrainer(Params{MinTriples: 10}).Train(context.Background(), snap, prior)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Same(t, prior, res.Space)

	var warn *common.InsufficientDataError
	require.ErrorAs(t, res.Warning, &warn)
	assert.Equal(t, 6, warn.Have)
	assert.Equal(t, 10, warn.Need)
}

func TestTrainSeedReproducible(t *testing.T) {
	snap := ringSnapshot(t, 12)
	params := Params{Dimensions: 16, Epochs: 20, Seed: 7}

	a, err := NewTrainer(params).Train(context.Background(), snap, nil)
	require.NoError(t, err)
	b, err := NewTrainer(params).Train(context.Background(), snap, nil)
	require.NoError(t, err)

	assert.Equal(t, a.Space.Entities, b.Space.Entities)
	assert.Equal(t, a.Space.Relations, b.Space.Relations)
	assert.Equal(t, snap.Version, a.Space.Version)
	assert.False(t, a.Space.Stale(snap.Version))
	assert.True(t, a.Space.Stale(snap.Version+1))

	c, err := NewTrainer(Params{Dimensions: 16, Epochs: 20, Seed: 8}).Train(context.Background(), snap, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.Space.Entities, c.Space.Entities)
}

func TestTrainSeparatesTrueTriples(t *testing.T) {
	for _, norm := range []Norm{L1, L2} {
		t.Run(string(norm), func(t *testing.T) {
			snap := ringSnapshot(t, 15)
			res, err := NewTrainer(Params{Dimensions: 24, Epochs: 200, LearningRate: 0.05, Patience: 50, Norm: norm, HoldOut: -1}).
				Train(context.Background(), snap, nil)
			require.NoError(t, err)
			require.False(t, res.Skipped)
			space := res.Space
			assert.Equal(t, norm, space.Norm)

			truth := make(map[common.TripleKey]struct{})
			var trueSum float64
			active := snap.ActiveTriples()
			for _, tr := range active {
				truth[tr.Key()] = struct{}{}
				d, ok := space.Distance(tr.Subject, tr.Predicate, tr.Object)
				require.True(t, ok)
				trueSum += d
			}

			var falseSum float64
			var falseCount int
			for _, tr := range active {
				for _, e := range snap.LiveEntities() {
					k := common.TripleKey{Subject: tr.Subject, Predicate: tr.Predicate, Object: e.ID}
					if _, ok := truth[k]; ok {
						continue
					}
					d, _ := space.Distance(k.Subject, k.Predicate, k.Object)
					falseSum += d
					falseCount++
				}
			}
			assert.Less(t, trueSum/float64(len(active)), falseSum/float64(falseCount))
		})
	}
}

func TestTrainHoldOut(t *testing.T) {
	snap := ringSnapshot(t, 20)
	params := Params{Dimensions: 8, Epochs: 5, HoldOut: 0.1}

	a, err := NewTrainer(params).Train(context.Background(), snap, nil)
	require.NoError(t, err)
	require.Len(t, a.Space.HeldOut, 4)

	active := make(map[common.TripleKey]struct{})
	for _, tr := range snap.ActiveTriples() {
		active[tr.Key()] = struct{}{}
	}
	for _, k := range a.Space.HeldOut {
		assert.Contains(t, active, k)
		assert.Contains(t, a.Space.Entities, k.Subject)
		assert.Contains(t, a.Space.Entities, k.Object)
	}

	b, err := NewTrainer(params).Train(context.Background(), snap, nil)
	require.NoError(t, err)
	assert.Equal(t, a.Space.HeldOut, b.Space.HeldOut, "the split is seeded")

	all, err := NewTrainer(Params{Dimensions: 8, Epochs: 5, HoldOut: -1}).Train(context.Background(), snap, nil)
	require.NoError(t, err)
	assert.Empty(t, all.Space.HeldOut)

	assert.Equal(t, DefaultHoldOut, NewTrainer(Params{}).Params().HoldOut)
	assert.Equal(t, 0.5, NewTrainer(Params{HoldOut: 0.9}).Params().HoldOut)
}

func TestSplitKeepsEveryEntityInTraining(t *testing.T) {
	// A star: every spoke is the only triple of its leaf.
	all := []encoded{{0, 0, 1}, {0, 0, 2}, {0, 0, 3}, {1, 1, 2}}
	tr := NewTrainer(Params{HoldOut: 0.5})
	train, held := tr.split(all)

	assert.NotEmpty(t, held)
	assert.LessOrEqual(t, len(held), 2)
	assert.Len(t, train, len(all)-len(held))
	seen := make(map[int]bool)
	for _, e := range train {
		seen[e.h], seen[e.t] = true, true
	}
	for _, e := range all {
		assert.True(t, seen[e.h] && seen[e.t])
	}
}

func TestTrainCancelled(t *testing.T) {
	snap := ringSnapshot(t, 12)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prior := &Space{Version: 1}
	res, err := NewTrainer(Params{}).Train(ctx, snap, prior)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res.Space)
}

func TestSpaceDistance(t *testing.T) {
	s := &Space{
		Norm:      L1,
		Entities:  map[common.EntityID][]float64{0: {0, 0}, 1: {1, 1}},
		Relations: map[string][]float64{"r": {1, 0}},
	}
	d, ok := s.Distance(0, "r", 1)
	require.True(t, ok)
	assert.InDelta(t, 1.0, d, 1e-9)

	s.Norm = L2
	d, _ = s.Distance(0, "r", 1)
	assert.InDelta(t, 1.0, d, 1e-9)
	score, _ := s.Score(0, "r", 1)
	assert.InDelta(t, -1.0, score, 1e-9)

	_, ok = s.Distance(0, "missing", 1)
	assert.False(t, ok)
	_, ok = (*Space)(nil).Distance(0, "r", 1)
	assert.False(t, ok)
}
