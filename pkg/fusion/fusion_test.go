package fusion

import (
	"testing"
	"time"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/conflict"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/graph"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	t     *testing.T
	store *graph.TripleStore
	ids   map[string]common.EntityID
}

func newFixture(t *testing.T, names ...string) *fixture {
	f := &fixture{t: t, store: graph.NewTripleStore(), ids: make(map[string]common.EntityID)}
	for _, n := range names {
		f.ids[n] = f.store.CreateEntity(n, "")
	}
	return f
}

func (f *fixture) add(s, p, o string, conf float64, turn string, at int) common.TripleID {
	f.t.Helper()
	id, _, err := f.store.AddTriple(f.ids[s], p, f.ids[o], common.Provenance{
		SourceTurnID: turn,
		Confidence:   conf,
		Timestamp:    t0.Add(time.Duration(at) * time.Hour),
	})
	require.NoError(f.t, err)
	return id
}

func (f *fixture) triple(id common.TripleID) common.Triple {
	f.t.Helper()
	tr, err := f.store.Triple(id)
	require.NoError(f.t, err)
	return tr
}

func newEngine() *Engine {
	return NewEngine(schema.Default(), DefaultParams())
}

func TestRecencyScenario(t *testing.T) {
	f := newFixture(t, "User", "Boston", "Seattle")
	boston := f.add("User", "lives_in", "Boston", 0.9, "turn-1", 1)
	seattle := f.add("User", "lives_in", "Seattle", 0.85, "turn-2", 2)

	report, err := newEngine().ResolveAll(f.store)
	require.NoError(t, err)

	assert.Equal(t, 1, report.ConflictsResolved[StrategyRecency])
	assert.Equal(t, 1, report.TotalSuperseded)
	assert.True(t, f.triple(seattle).Active())
	assert.Equal(t, seattle, f.triple(boston).SupersededBy)
	require.Len(t, report.Active, 1)
	assert.Equal(t, "Seattle", report.Active[0].Object.Label)
}

func TestVotingScenario(t *testing.T) {
	f := newFixture(t, "User", "Boston", "Seattle")
	boston := f.add("User", "lives_in", "Boston", 0.95, "turn-1", 1)
	seattle := f.add("User", "lives_in", "Seattle", 0.5, "turn-2", 2)

	report, err := newEngine().ResolveAll(f.store)
	require.NoError(t, err)

	assert.Equal(t, 1, report.ConflictsResolved[StrategyVoting])
	assert.True(t, f.triple(boston).Active())
	assert.Equal(t, boston, f.triple(seattle).SupersededBy)
	assert.InDelta(t, 0.95, f.triple(boston).Confidence, 1e-9)
}

func TestWinnerConfidenceStableAcrossPasses(t *testing.T) {
	rivals := []string{"Austin", "Denver", "Portland", "Tampa", "Reno"}
	f := newFixture(t, append([]string{"User", "Seattle", "Miami"}, rivals...)...)
	seattle := f.add("User", "lives_in", "Seattle", 0.6, "turn-a", 10)
	f.add("User", "lives_in", "Seattle", 0.6, "turn-b", 10)
	e := newEngine()

	for i, rival := range rivals {
		f.add("User", "lives_in", rival, 0.6, "turn-r"+rival, i)
		report, err := e.ResolveAll(f.store)
		require.NoError(t, err)
		require.Len(t, report.Decisions, 1)
		assert.Equal(t, seattle, report.Decisions[0].Winner)
		assert.InDelta(t, 0.65, f.triple(seattle).Confidence, 1e-9, "pass %d", i)
	}

	miami := f.add("User", "lives_in", "Miami", 0.6, "turn-m", 50)
	report, err := e.ResolveAll(f.store)
	require.NoError(t, err)
	require.Len(t, report.Decisions, 1)
	assert.Equal(t, StrategyRecency, report.Decisions[0].Strategy)
	assert.True(t, f.triple(miami).Active())
	assert.Equal(t, miami, f.triple(seattle).SupersededBy)
}

func TestDuplicateProvenanceMerge(t *testing.T) {
	f := newFixture(t, "User", "Acme")
	a := f.add("User", "works_at", "Acme", 0.7, "turn-1", 1)
	b := f.add("User", "works at", "Acme", 0.8, "turn-2", 2)
	assert.Equal(t, a, b)

	report, err := newEngine().ResolveAll(f.store)
	require.NoError(t, err)

	assert.Equal(t, 1, report.DuplicatesMerged)
	tr := f.triple(a)
	assert.Len(t, tr.Provenance, 2)
	assert.InDelta(t, 0.8, tr.Confidence, 1e-9)
	assert.Equal(t, t0.Add(2*time.Hour), tr.Timestamp)
	require.Len(t, report.Active, 1)
	assert.Equal(t, 2, report.Active[0].Sources)
}

func TestSymmetricMirrorsFold(t *testing.T) {
	f := newFixture(t, "Ann", "Bob")
	a := f.add("Ann", "married_to", "Bob", 0.8, "turn-1", 1)
	b := f.add("Bob", "married_to", "Ann", 0.9, "turn-2", 2)

	report, err := newEngine().ResolveAll(f.store)
	require.NoError(t, err)

	assert.Equal(t, 1, report.DuplicatesMerged)
	assert.True(t, f.triple(a).Active())
	assert.Equal(t, a, f.triple(b).SupersededBy)
	assert.Len(t, f.triple(a).Provenance, 2)
}

func TestReliabilityAndTiebreak(t *testing.T) {
	t.Run("reliability", func(t *testing.T) {
		f := newFixture(t, "User", "Boston", "Seattle")
		f.add("User", "lives_in", "Boston", 0.8, "turn-1", 3)
		seattle := f.add("User", "lives_in", "Seattle", 0.8, "turn-2", 1)
		f.add("User", "lives_in", "Seattle", 0.7, "turn-3", 3)

		report, err := newEngine().ResolveAll(f.store)
		require.NoError(t, err)
		assert.Equal(t, 1, report.ConflictsResolved[StrategyReliability])
		assert.True(t, f.triple(seattle).Active())
		assert.InDelta(t, 0.85, f.triple(seattle).Confidence, 1e-9)
	})

	t.Run("tiebreak", func(t *testing.T) {
		f := newFixture(t, "User", "Boston", "Seattle")
		seattle := f.add("User", "lives_in", "Seattle", 0.8, "turn-2", 1)
		boston := f.add("User", "lives_in", "Boston", 0.8, "turn-1", 1)

		report, err := newEngine().ResolveAll(f.store)
		require.NoError(t, err)
		assert.Equal(t, 1, report.ConflictsResolved[StrategyTiebreak])
		assert.True(t, f.triple(boston).Active(), "smaller object id wins")
		assert.False(t, f.triple(seattle).Active())
	})
}

func TestStrategies(t *testing.T) {
	p := DefaultParams()
	mk := func(id common.TripleID, obj common.EntityID, conf float64, at int, turns ...string) common.Triple {
		tr := common.Triple{ID: id, Object: obj, Confidence: conf, Timestamp: t0.Add(time.Duration(at) * time.Hour), Status: common.StatusActive}
		for _, turn := range turns {
			tr.Provenance = append(tr.Provenance, common.Provenance{SourceTurnID: turn, Confidence: conf})
		}
		return tr
	}

	tests := []struct {
		name   string
		fn     strategyFunc
		set    []common.Triple
		winner common.TripleID
		ok     bool
	}{
		{"voting margin exceeded", voting, []common.Triple{mk(1, 1, 0.95, 0, "a"), mk(2, 2, 0.5, 0, "b")}, 1, true},
		{"voting within margin", voting, []common.Triple{mk(1, 1, 0.9, 0, "a"), mk(2, 2, 0.75, 0, "b")}, 0, false},
		{"recency unique latest", recency, []common.Triple{mk(1, 1, 0.9, 1, "a"), mk(2, 2, 0.8, 2, "b")}, 2, true},
		{"recency ignores low confidence", recency, []common.Triple{mk(1, 1, 0.9, 1, "a"), mk(2, 2, 0.3, 2, "b")}, 1, true},
		{"recency tie", recency, []common.Triple{mk(1, 1, 0.9, 1, "a"), mk(2, 2, 0.8, 1, "b")}, 0, false},
		{"reliability needs corroboration", reliability, []common.Triple{mk(1, 1, 0.9, 1, "a"), mk(2, 2, 0.8, 1, "b")}, 0, false},
		{"reliability corroborated", reliability, []common.Triple{mk(1, 1, 0.9, 1, "a"), mk(2, 2, 0.8, 1, "b", "c")}, 2, true},
		{"tiebreak smallest object", tiebreak, []common.Triple{mk(1, 5, 0.9, 1, "a"), mk(2, 3, 0.9, 1, "b")}, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.fn(p, tt.set)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.winner, got.ID)
			}
		})
	}
}

func TestResolveDecision(t *testing.T) {
	e := newEngine()
	set := conflict.ConflictSet{
		Kind:      conflict.KindFunctional,
		Predicate: "lives_in",
		Triples: []common.Triple{
			{ID: 1, Object: 1, Confidence: 0.95, Status: common.StatusActive, Provenance: []common.Provenance{{SourceTurnID: "a"}, {SourceTurnID: "b"}}},
			{ID: 2, Object: 2, Confidence: 0.4, Status: common.StatusActive},
			{ID: 3, Object: 3, Confidence: 0.99, Status: common.StatusSuperseded},
		},
	}
	d, err := e.Resolve(set)
	require.NoError(t, err)
	assert.Equal(t, StrategyVoting, d.Strategy)
	assert.Equal(t, common.TripleID(1), d.Winner)
	assert.Equal(t, []common.TripleID{2}, d.Losers)
	assert.InDelta(t, 1.0, d.Confidence, 1e-9)

	_, err = e.Resolve(conflict.ConflictSet{})
	assert.Error(t, err)
}

func TestResolveAllProperties(t *testing.T) {
	build := func(t *testing.T) *fixture {
		f := newFixture(t, "User", "Boston", "Seattle", "Denver", "Ann", "Bob", "Cy", "Acme", "Wing", "Building", "Campus")
		f.add("User", "lives_in", "Boston", 0.9, "turn-1", 1)
		f.add("User", "lives_in", "Seattle", 0.9, "turn-2", 2)
		f.add("User", "lives_in", "Denver", 0.4, "turn-3", 3)
		f.add("Ann", "married_to", "Bob", 0.8, "turn-4", 1)
		f.add("Cy", "married_to", "Bob", 0.6, "turn-5", 2)
		f.add("User", "likes", "Acme", 0.7, "turn-6", 1)
		f.add("User", "dislikes", "Acme", 0.9, "turn-7", 2)
		f.add("Wing", "part_of", "Building", 0.9, "turn-8", 1)
		f.add("Building", "part_of", "Campus", 0.8, "turn-9", 1)
		f.add("User", "knows", "Ann", 0.8, "turn-10", 1)
		return f
	}

	f := build(t)
	e := newEngine()
	first, err := e.ResolveAll(f.store)
	require.NoError(t, err)
	assert.True(t, first.Changed())
	assert.Equal(t, []string{"knows"}, first.SchemaGaps)
	assert.Equal(t, 1, first.Inferred)

	t.Run("conflict coverage", func(t *testing.T) {
		res := e.Detector().FindConflicts(f.store.ActiveTriples())
		for _, c := range res.Conflicts {
			assert.NotEqual(t, conflict.KindFunctional, c.Kind)
		}
		assert.Empty(t, res.Duplicates)
	})

	t.Run("audit completeness", func(t *testing.T) {
		superseded := 0
		for _, tr := range f.store.Triples() {
			if tr.Active() {
				assert.Equal(t, common.NoTriple, tr.SupersededBy)
				continue
			}
			superseded++
			winner := f.triple(tr.SupersededBy)
			assert.True(t, winner.Active(), "triple %d points at inactive %d", tr.ID, winner.ID)
		}
		assert.Equal(t, first.TotalSuperseded, superseded)
	})

	t.Run("inferred triple", func(t *testing.T) {
		tr, ok := f.store.Lookup(f.ids["Wing"], "part_of", f.ids["Campus"])
		require.True(t, ok)
		assert.True(t, tr.Inferred)
		assert.InDelta(t, 0.72, tr.Confidence, 1e-9)
	})

	t.Run("idempotence", func(t *testing.T) {
		version := f.store.Version()
		second, err := e.ResolveAll(f.store)
		require.NoError(t, err)
		assert.False(t, second.Changed())
		assert.Zero(t, second.Conflicts())
		assert.Equal(t, first.Active, second.Active)
		assert.Equal(t, version, f.store.Version())
	})

	t.Run("deterministic", func(t *testing.T) {
		g := build(t)
		again, err := newEngine().ResolveAll(g.store)
		require.NoError(t, err)
		assert.Equal(t, first.Active, again.Active)
		assert.Equal(t, first.Decisions, again.Decisions)
	})
}

func TestInferenceDisabled(t *testing.T) {
	f := newFixture(t, "Wing", "Building", "Campus")
	f.add("Wing", "part_of", "Building", 0.9, "turn-1", 1)
	f.add("Building", "part_of", "Campus", 0.8, "turn-2", 1)

	p := DefaultParams()
	p.InferTransitive = false
	report, err := NewEngine(schema.Default(), p).ResolveAll(f.store)
	require.NoError(t, err)
	assert.Zero(t, report.Inferred)
	_, ok := f.store.Lookup(f.ids["Wing"], "part_of", f.ids["Campus"])
	assert.False(t, ok)
}

func TestInferenceComposition(t *testing.T) {
	f := newFixture(t, "Ann", "Chess Club", "Students", "Everyone")
	f.add("Ann", "member_of", "Chess Club", 0.9, "turn-1", 1)
	f.add("Chess Club", "subset_of", "Students", 0.8, "turn-2", 1)
	f.add("Students", "subset_of", "Everyone", 1.0, "turn-3", 1)

	report, err := newEngine().ResolveAll(f.store)
	require.NoError(t, err)

	_, ok := f.store.Lookup(f.ids["Ann"], "member_of", f.ids["Students"])
	assert.True(t, ok)
	_, ok = f.store.Lookup(f.ids["Ann"], "member_of", f.ids["Everyone"])
	assert.True(t, ok)
	_, ok = f.store.Lookup(f.ids["Chess Club"], "subset_of", f.ids["Everyone"])
	assert.True(t, ok)
	assert.Equal(t, 3, report.Inferred)
}
