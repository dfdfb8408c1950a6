package correction

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/embedding"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/graph"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conf(v float64) *float64 { return &v }

func raw(s, p, o string, c float64, turn string, hour int) common.RawTriple {
	return common.RawTriple{
		Subject:      s,
		Predicate:    p,
		Object:       o,
		Confidence:   conf(c),
		SourceTurnID: turn,
		Timestamp:    time.Date(2024, 5, 1, hour, 0, 0, 0, time.UTC).Format(time.RFC3339),
	}
}

func newTestService() *Service {
	return NewService(schema.Default(), nil, nil, Params{
		Trainer: embedding.Params{Dimensions: 8, Epochs: 20},
	})
}

func activeObjects(views []common.TripleView) []string {
	out := make([]string, 0, len(views))
	for _, v := range views {
		out = append(out, v.Subject.Label+" "+v.Predicate+" "+v.Object.Label)
	}
	return out
}

func TestIngestRejectsInvalidTriples(t *testing.T) {
	svc := newTestService()

	missingConf := raw("User", "lives_in", "Boston", 0.9, "turn-1", 1)
	missingConf.Confidence = nil
	badTime := raw("User", "lives_in", "Boston", 0.9, "turn-1", 1)
	badTime.Timestamp = "yesterday"
	outOfRange := raw("User", "lives_in", "Boston", 1.5, "turn-1", 1)
	blankPredicate := raw("User", "  ", "Boston", 0.5, "turn-1", 1)

	res, err := svc.Ingest(context.Background(), []common.RawTriple{
		missingConf,
		raw("User", "lives in", "Boston", 0.9, "turn-1", 1),
		badTime,
		outOfRange,
		blankPredicate,
	})
	require.NoError(t, err)

	assert.Equal(t, 5, res.Received)
	assert.Equal(t, 1, res.Accepted)
	assert.Equal(t, 1, res.Created)
	assert.False(t, res.Queued)

	require.Len(t, res.Errors, 4)
	indexes := []int{}
	for _, e := range res.Errors {
		indexes = append(indexes, e.Index)
	}
	assert.Equal(t, []int{0, 2, 3, 4}, indexes)
	assert.Equal(t, "confidence", res.Errors[0].Field)
	assert.Equal(t, "timestamp", res.Errors[1].Field)
	assert.Equal(t, "confidence", res.Errors[2].Field)
	assert.Equal(t, "predicate", res.Errors[3].Field)

	assert.Equal(t, []string{"User lives_in Boston"}, activeObjects(svc.Active()))
}

func TestIngestDuplicateMergesProvenance(t *testing.T) {
	svc := newTestService()
	res, err := svc.Ingest(context.Background(), []common.RawTriple{
		raw("User", "likes", "Coffee", 0.7, "turn-1", 1),
		raw("user", "likes", "coffee", 0.9, "turn-2", 2),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Merged)

	active := svc.Active()
	require.Len(t, active, 1)
	tr, err := svc.Triple(active[0].ID)
	require.NoError(t, err)
	assert.Len(t, tr.Provenance, 2)
	assert.InDelta(t, 0.9, tr.Confidence, 1e-9)
}

func TestIngestRedeliveredBatchAddsNoEvidence(t *testing.T) {
	svc := newTestService()
	batch := []common.RawTriple{
		raw("User", "likes", "Coffee", 0.7, "turn-1", 1),
		raw("User", "likes", "Tea", 0.6, "turn-2", 2),
	}
	_, err := svc.Ingest(context.Background(), batch)
	require.NoError(t, err)
	_, err = svc.Correct(context.Background())
	require.NoError(t, err)

	batch[0].Subject = " user "
	_, err = svc.Ingest(context.Background(), batch)
	require.NoError(t, err)
	report, err := svc.Correct(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.DuplicatesMerged)

	for _, v := range svc.Active() {
		tr, err := svc.Triple(v.ID)
		require.NoError(t, err)
		assert.Len(t, tr.Provenance, 1, v.Object.Label)
	}
}

func TestCorrectRecencyScenario(t *testing.T) {
	svc := newTestService()
	_, err := svc.Ingest(context.Background(), []common.RawTriple{
		raw("User", "lives_in", "Boston", 0.9, "turn-1", 1),
		raw("User", "lives_in", "Seattle", 0.85, "turn-2", 2),
	})
	require.NoError(t, err)

	report, err := svc.Correct(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalSuperseded)
	assert.Equal(t, []string{"User lives_in Seattle"}, activeObjects(svc.Active()))
	assert.Same(t, report, svc.LastReport())

	again, err := svc.Correct(context.Background())
	require.NoError(t, err)
	assert.False(t, again.Changed())
}

func TestIngestQueuedDuringCorrection(t *testing.T) {
	svc := newTestService()
	_, err := svc.Ingest(context.Background(), []common.RawTriple{
		raw("User", "lives_in", "Boston", 0.9, "turn-1", 1),
	})
	require.NoError(t, err)
	version := svc.Version()

	// Pretend a pass is running.
	svc.pendingMu.Lock()
	svc.correcting++
	svc.pendingMu.Unlock()

	res, err := svc.Ingest(context.Background(), []common.RawTriple{
		raw("User", "lives_in", "Seattle", 0.85, "turn-2", 2),
	})
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.Equal(t, version, svc.Version(), "queued triples are not applied yet")

	svc.pendingMu.Lock()
	svc.correcting--
	svc.pendingMu.Unlock()

	report, err := svc.Correct(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.TotalSuperseded, "queued triple is applied after the pass")
	assert.Len(t, svc.Active(), 2)

	report, err = svc.Correct(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalSuperseded)
	assert.Equal(t, []string{"User lives_in Seattle"}, activeObjects(svc.Active()))
}

func TestConcurrentIngestAndCorrect(t *testing.T) {
	svc := newTestService()
	cities := []string{"Boston", "Seattle", "Denver", "Austin", "Chicago", "Phoenix"}

	var wg sync.WaitGroup
	for i, city := range cities {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.Ingest(context.Background(), []common.RawTriple{
				raw("User", "lives_in", city, 0.6+float64(i)*0.05, fmt.Sprintf("turn-%d", i), i+1),
			})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := svc.Correct(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, err := svc.Correct(context.Background())
	require.NoError(t, err)
	active := svc.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "Phoenix", active[0].Object.Label)
}

func TestMergeEntities(t *testing.T) {
	svc := newTestService()
	_, err := svc.Ingest(context.Background(), []common.RawTriple{
		raw("Bob", "works_at", "Acme", 0.8, "turn-1", 1),
		raw("Robert", "likes", "Tea", 0.8, "turn-2", 2),
	})
	require.NoError(t, err)

	var bob, robert common.EntityID
	for _, e := range svc.Entities() {
		switch e.Label {
		case "Bob":
			bob = e.ID
		case "Robert":
			robert = e.ID
		}
	}

	survivor, err := svc.MergeEntities(context.Background(), robert, bob)
	require.NoError(t, err)
	assert.Equal(t, bob, survivor)

	e, err := svc.Entity(robert)
	require.NoError(t, err)
	assert.Equal(t, bob, e.ID)
	assert.ElementsMatch(t, []string{"Bob", "Robert"}, e.Aliases)
	assert.ElementsMatch(t, []string{"Bob works_at Acme", "Bob likes Tea"}, activeObjects(svc.Active()))

	_, err = svc.MergeEntities(context.Background(), 99, bob)
	assert.Error(t, err)
}

func ringSnapshot(t *testing.T, n int) *graph.Snapshot {
	t.Helper()
	store := graph.NewTripleStore()
	ids := make([]common.EntityID, n)
	for i := range ids {
		ids[i] = store.CreateEntity(fmt.Sprintf("node %d", i), "")
	}
	for i := range ids {
		_, _, err := store.AddTriple(ids[i], "related_to", ids[(i+1)%n], common.Provenance{
			SourceTurnID: fmt.Sprintf("turn-%d", i),
			Confidence:   0.9,
			Timestamp:    time.Unix(int64(i), 0),
		})
		require.NoError(t, err)
	}
	return store.Snapshot()
}

func TestTrainAndEvaluate(t *testing.T) {
	svc := newTestService()

	res, err := svc.Train(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Nil(t, svc.Space())

	require.NoError(t, svc.Restore(ringSnapshot(t, 16), nil))

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Train(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	space := svc.Space()
	require.NotNil(t, space)
	assert.Equal(t, svc.Version(), space.Version)

	report, err := svc.Evaluate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report.LinkPrediction)
	assert.False(t, report.StaleSpace)
	assert.Greater(t, report.LinkPrediction.MRR, 0.0)
}

func TestTrainCancelledKeepsPriorSpace(t *testing.T) {
	svc := newTestService()
	prior := &embedding.Space{Version: 3}
	require.NoError(t, svc.Restore(ringSnapshot(t, 16), prior))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Train(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Same(t, prior, svc.Space())
}

func TestRestoreRoundTrip(t *testing.T) {
	svc := newTestService()
	_, err := svc.Ingest(context.Background(), []common.RawTriple{
		raw("User", "lives_in", "Boston", 0.9, "turn-1", 1),
		raw("User", "lives_in", "Seattle", 0.85, "turn-2", 2),
	})
	require.NoError(t, err)
	_, err = svc.Correct(context.Background())
	require.NoError(t, err)

	other := newTestService()
	require.NoError(t, other.Restore(svc.Snapshot(), nil))
	assert.Equal(t, svc.Active(), other.Active())
	assert.Equal(t, svc.Version(), other.Version())

	// Resolution continues against the restored aliases.
	res, err := other.Ingest(context.Background(), []common.RawTriple{
		raw("user", "likes", "Seattle", 0.7, "turn-3", 3),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Len(t, other.Entities(), 3)
}

// recordingEmbedder maps every text to one direction per initial letter and
// remembers what it embedded.
type recordingEmbedder struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (e *recordingEmbedder) GenerateEmbedding(_ context.Context, input []byte) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.seen == nil {
		e.seen = make(map[string]bool)
	}
	e.seen[string(input)] = true
	vec := make([]float32, 26)
	if len(input) > 0 {
		vec[(input[0]|0x20-'a')%26] = 1
	}
	return vec, nil
}

func (e *recordingEmbedder) embedded(text string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seen[text]
}

func TestRestoreWithEmbedderResolvesExistingEntities(t *testing.T) {
	src := newTestService()
	_, err := src.Ingest(context.Background(), []common.RawTriple{
		raw("Jonathan Smith", "lives_in", "Boston", 0.9, "turn-1", 1),
	})
	require.NoError(t, err)

	emb := &recordingEmbedder{}
	svc := NewService(schema.Default(), emb, nil, Params{})
	require.NoError(t, svc.Restore(src.Snapshot(), nil))
	assert.Eventually(t, func() bool {
		return emb.embedded("Jonathan Smith") && emb.embedded("Boston")
	}, time.Second, 10*time.Millisecond, "restored aliases are embedded")

	res, err := svc.Ingest(context.Background(), []common.RawTriple{
		raw("Jonathan Smyth", "likes", "Coffee", 0.7, "turn-2", 2),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Len(t, svc.Entities(), 3, "the mention joins the restored entity")
}

func TestCycle(t *testing.T) {
	svc := newTestService()
	require.NoError(t, svc.Restore(ringSnapshot(t, 16), nil))
	_, err := svc.Ingest(context.Background(), []common.RawTriple{
		raw("Alice", "lives_in", "Berlin", 0.9, "turn-a", 1),
		raw("Alice", "lives_in", "Hamburg", 0.4, "turn-b", 2),
	})
	require.NoError(t, err)

	cycle, err := svc.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cycle.Correction.TotalSuperseded)
	assert.Equal(t, 18, cycle.Before.Stats.ActiveTriples)
	assert.Equal(t, 17, cycle.After.Stats.ActiveTriples)
	assert.Equal(t, -1, cycle.Diff.ActiveTriples)
	assert.False(t, cycle.Training.Skipped)
	assert.NotNil(t, cycle.After.LinkPrediction)
}

func TestSimilarEntities(t *testing.T) {
	svc := newTestService()
	_, err := svc.SimilarEntities(0, 2)
	require.ErrorIs(t, err, common.ErrUnknownEntity)

	snap := ringSnapshot(t, 4)
	require.NoError(t, svc.Restore(snap, nil))
	_, err = svc.SimilarEntities(0, 2)
	require.ErrorIs(t, err, common.ErrNotFound, "no space yet")

	space := &embedding.Space{
		Version:   snap.Version,
		Norm:      embedding.L1,
		Entities:  map[common.EntityID][]float64{0: {0}, 1: {1}, 2: {5}, 3: {1.5}},
		Relations: map[string][]float64{"related_to": {1}},
	}
	require.NoError(t, svc.Restore(snap, space))

	similar, err := svc.SimilarEntities(0, 2)
	require.NoError(t, err)
	require.Len(t, similar, 2)
	assert.Equal(t, "node 1", similar[0].Label)
	assert.InDelta(t, 1.0, similar[0].Distance, 1e-9)
	assert.Equal(t, common.EntityID(3), similar[1].ID)

	_, err = svc.MergeEntities(context.Background(), 3, 1)
	require.NoError(t, err)
	similar, err = svc.SimilarEntities(0, 2)
	require.NoError(t, err)
	require.Len(t, similar, 2)
	assert.Equal(t, common.EntityID(1), similar[0].ID)
	assert.Equal(t, common.EntityID(2), similar[1].ID, "merged neighbours fold into their survivor")
}

func TestGraphAnalytics(t *testing.T) {
	svc := newTestService()
	_, err := svc.Ingest(context.Background(), []common.RawTriple{
		raw("User", "lives_in", "Boston", 0.9, "turn-1", 1),
		raw("User", "lives_in", "Seattle", 0.9, "turn-2", 2),
		raw("User", "likes", "Seattle Coffee", 0.6, "turn-3", 3),
		raw("Ann", "likes", "Seattle Coffee", 0.7, "turn-4", 4),
	})
	require.NoError(t, err)
	_, err = svc.Correct(context.Background())
	require.NoError(t, err)

	connected := svc.MostConnected(2)
	require.Len(t, connected, 2)
	assert.Equal(t, "User", connected[0].Label)
	assert.Equal(t, 2, connected[0].Degree)
	assert.Equal(t, "Seattle Coffee", connected[1].Label)
	assert.Equal(t, 2, connected[1].Incoming)

	stats := svc.PredicateStats()
	require.Len(t, stats, 2)
	assert.Equal(t, "likes", stats[0].Predicate)
	assert.Equal(t, 2, stats[0].Active)
	assert.InDelta(t, 0.65, stats[0].MeanConfidence, 1e-9)
	assert.Zero(t, stats[0].SupersededRate)
	assert.Equal(t, "lives_in", stats[1].Predicate)
	assert.InDelta(t, 0.5, stats[1].SupersededRate, 1e-9)

	found := svc.SearchEntities("seattle", 0)
	require.Len(t, found, 2)
	assert.Equal(t, "Seattle", found[0].Label, "exact match first")
	assert.Equal(t, "Seattle Coffee", found[1].Label)
	assert.Empty(t, svc.SearchEntities("  ", 0))

	user := connected[0].ID
	views, err := svc.Relationships(user)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"User lives_in Seattle", "User likes Seattle Coffee"}, activeObjects(views))
}
