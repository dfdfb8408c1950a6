package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/graph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (m *mapEmbedder) GenerateEmbedding(_ context.Context, input []byte) ([]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	vec, ok := m.vectors[string(input)]
	if !ok {
		return []float32{0, 0, 1}, nil
	}
	return vec, nil
}

func TestJaroWinkler(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"martha", "marhta", 0.96, 0.97},
		{"dwayne", "duane", 0.84, 0.85},
		{"boston", "boston", 1, 1},
		{"boston", "", 0, 0},
		{"abc", "xyz", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			got := jaroWinkler(tt.a, tt.b)
			assert.GreaterOrEqual(t, got, tt.min)
			assert.LessOrEqual(t, got, tt.max)
			assert.InDelta(t, got, jaroWinkler(tt.b, tt.a), 1e-9)
		})
	}
}

func TestResolveExactAlias(t *testing.T) {
	store := graph.NewTripleStore()
	r := New(store, nil, nil, Params{})
	ctx := context.Background()

	a, err := r.Resolve(ctx, "Boston", MentionContext{})
	require.NoError(t, err)
	b, err := r.Resolve(ctx, "  boston ", MentionContext{Type: "city"})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	e, err := store.Entity(a)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Mentions)
	assert.Equal(t, "city", e.Type)
	assert.Equal(t, "Boston", e.Label)

	_, err = r.Resolve(ctx, "   ", MentionContext{})
	assert.Error(t, err)
}

func TestResolveFuzzy(t *testing.T) {
	store := graph.NewTripleStore()
	r := New(store, nil, nil, Params{})
	ctx := context.Background()

	jonathan, err := r.Resolve(ctx, "Jonathan Smith", MentionContext{Type: "person"})
	require.NoError(t, err)

	typo, err := r.Resolve(ctx, "Jonathon Smith", MentionContext{})
	require.NoError(t, err)
	assert.Equal(t, jonathan, typo)

	seattle, err := r.Resolve(ctx, "Seattle", MentionContext{})
	require.NoError(t, err)
	assert.NotEqual(t, jonathan, seattle)

	city, err := r.Resolve(ctx, "Jonathen Smith", MentionContext{Type: "city"})
	require.NoError(t, err)
	assert.NotEqual(t, jonathan, city, "differing known types never merge")

	e, err := store.Entity(jonathan)
	require.NoError(t, err)
	assert.Equal(t, []string{"Jonathan Smith", "Jonathon Smith"}, e.Aliases)
}

func TestResolveTies(t *testing.T) {
	t.Run("more mentions wins", func(t *testing.T) {
		store := graph.NewTripleStore()
		store.CreateEntity("Jon Smith", "")
		jan := store.CreateEntity("Jan Smith", "")
		require.NoError(t, store.RecordMention(jan))

		id, err := New(store, nil, nil, Params{}).Resolve(context.Background(), "Jen Smith", MentionContext{})
		require.NoError(t, err)
		assert.Equal(t, jan, id)
	})

	t.Run("older entity wins", func(t *testing.T) {
		store := graph.NewTripleStore()
		jon := store.CreateEntity("Jon Smith", "")
		store.CreateEntity("Jan Smith", "")

		id, err := New(store, nil, nil, Params{}).Resolve(context.Background(), "Jen Smith", MentionContext{})
		require.NoError(t, err)
		assert.Equal(t, jon, id)
	})
}

func TestResolveEmbedding(t *testing.T) {
	emb := &mapEmbedder{vectors: map[string][]float32{
		"New York City": {1, 0, 0},
		"NYC":           {0.99, 0.1, 0},
		"Boston":        {0, 1, 0},
	}}
	store := graph.NewTripleStore()
	r := New(store, emb, nil, Params{})
	ctx := context.Background()

	require.NoError(t, r.Warm(ctx, []string{"New York City", "NYC", "Boston"}))
	calls := emb.calls
	require.NoError(t, r.Warm(ctx, []string{"nyc"}))
	assert.Equal(t, calls, emb.calls, "cached texts are not embedded again")

	nyc, err := r.Resolve(ctx, "New York City", MentionContext{})
	require.NoError(t, err)
	short, err := r.Resolve(ctx, "NYC", MentionContext{})
	require.NoError(t, err)
	assert.Equal(t, nyc, short)

	boston, err := r.Resolve(ctx, "Boston", MentionContext{})
	require.NoError(t, err)
	assert.NotEqual(t, nyc, boston)
}

func TestResolveUncachedAliasWithEmbedder(t *testing.T) {
	emb := &mapEmbedder{vectors: map[string][]float32{"Jonathan Smyth": {1, 0, 0}}}
	store := graph.NewTripleStore()
	jonathan := store.CreateEntity("Jonathan Smith", "person")
	r := New(store, emb, nil, Params{})
	ctx := context.Background()

	require.NoError(t, r.Warm(ctx, r.Texts("Jonathan Smyth", MentionContext{})))
	id, err := r.Resolve(ctx, "Jonathan Smyth", MentionContext{})
	require.NoError(t, err)
	assert.Equal(t, jonathan, id)

	e, err := store.Entity(jonathan)
	require.NoError(t, err)
	assert.Contains(t, e.Aliases, "Jonathan Smyth")
}

func TestAliasTextsWarmRestoredStore(t *testing.T) {
	emb := &mapEmbedder{vectors: map[string][]float32{
		"New York City": {1, 0, 0},
		"NYC":           {0.99, 0.1, 0},
	}}
	store := graph.NewTripleStore()
	nyc := store.CreateEntity("New York City", "")
	store.CreateEntity("Boston", "")
	r := New(store, emb, nil, Params{})
	ctx := context.Background()

	assert.ElementsMatch(t, []string{"New York City", "Boston"}, r.AliasTexts())
	require.NoError(t, r.Warm(ctx, r.AliasTexts()))
	require.NoError(t, r.Warm(ctx, r.Texts("NYC", MentionContext{})))

	id, err := r.Resolve(ctx, "NYC", MentionContext{})
	require.NoError(t, err)
	assert.Equal(t, nyc, id)
}

func TestResolveEmbeddingFailureFallsBack(t *testing.T) {
	emb := &mapEmbedder{err: errors.New("provider down")}
	store := graph.NewTripleStore()
	r := New(store, emb, nil, Params{})
	ctx := context.Background()

	assert.Error(t, r.Warm(ctx, r.Texts("Jonathan Smith", MentionContext{})))

	a, err := r.Resolve(ctx, "Jonathan Smith", MentionContext{})
	require.NoError(t, err)
	b, err := r.Resolve(ctx, "Jonathon Smith", MentionContext{})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTextsWithContext(t *testing.T) {
	r := New(graph.NewTripleStore(), nil, nil, Params{UseContext: true})
	assert.Equal(t, []string{"Boston", "Boston: I moved to Boston"},
		r.Texts(" Boston ", MentionContext{Text: "I moved to  Boston"}))
	assert.Equal(t, []string{"Boston"}, r.Texts("Boston", MentionContext{}))
	assert.Nil(t, r.Texts("  ", MentionContext{}))
}

func TestMonotonicAliasing(t *testing.T) {
	store := graph.NewTripleStore()
	r := New(store, nil, nil, Params{})
	ctx := context.Background()

	var seen []string
	id, err := r.Resolve(ctx, "Jonathan Smith", MentionContext{})
	require.NoError(t, err)
	for _, m := range []string{"Jonathon Smith", "jonathan smith", "Jonathan Smyth"} {
		_, err := r.Resolve(ctx, m, MentionContext{})
		require.NoError(t, err)

		e, err := store.Entity(id)
		require.NoError(t, err)
		for _, a := range seen {
			assert.Contains(t, e.Aliases, a)
		}
		seen = e.Aliases
	}

	other := store.CreateEntity("J. Smith", "")
	_, err = store.MergeEntities(id, other)
	require.NoError(t, err)
	merged, err := store.Entity(id)
	require.NoError(t, err)
	for _, a := range seen {
		assert.Contains(t, merged.Aliases, a)
	}
	assert.Equal(t, other, merged.ID)
}
