// Package resolver maps free-text mentions onto canonical entities of a
// triple store. Exact alias hits are returned directly; everything else is
// compared against the known aliases by embedding cosine similarity when
// vectors are available, or by Jaro-Winkler similarity otherwise.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/ai"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/ai/cache"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/graph"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultMergeThreshold = 0.88
	DefaultFuzzyThreshold = 0.92

	defaultParallelism = 4
	defaultBatchSize   = 64
)

// MentionContext carries optional information about where a mention was
// seen.
type MentionContext struct {
	// Text is the surrounding sentence. It is folded into the query
	// embedding when Params.UseContext is set.
	Text string
	Type string
}

// Params configures a Resolver. Zero values select the defaults.
type Params struct {
	MergeThreshold float64
	FuzzyThreshold float64
	UseContext     bool
	Parallelism    int
	BatchSize      int
}

// Resolver assigns mentions to entities of one TripleStore. It does not lock
// the store; callers serialize Resolve with every other store access. Warm
// only touches the embedder and the vector cache and may run concurrently.
type Resolver struct {
	store    *graph.TripleStore
	embedder ai.Embedder
	vectors  cache.VectorCache
	params   Params
}

// New creates a resolver over store. embedder may be nil, in which case only
// string similarity is used. A nil vectors cache falls back to memory.
func New(store *graph.TripleStore, embedder ai.Embedder, vectors cache.VectorCache, params Params) *Resolver {
	if params.MergeThreshold <= 0 {
		params.MergeThreshold = DefaultMergeThreshold
	}
	if params.FuzzyThreshold <= 0 {
		params.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if params.Parallelism <= 0 {
		params.Parallelism = defaultParallelism
	}
	if params.BatchSize <= 0 {
		params.BatchSize = defaultBatchSize
	}
	if vectors == nil {
		vectors = cache.NewMemoryCache()
	}
	return &Resolver{store: store, embedder: embedder, vectors: vectors, params: params}
}

// Texts returns the texts Warm needs to embed so Resolve can use embedding
// similarity for this mention.
func (r *Resolver) Texts(mention string, mc MentionContext) []string {
	name := common.NormalizeName(mention)
	if name == "" {
		return nil
	}
	q := r.queryText(name, mc)
	if q == name {
		return []string{name}
	}
	return []string{name, q}
}

func (r *Resolver) queryText(name string, mc MentionContext) string {
	text := common.NormalizeName(mc.Text)
	if !r.params.UseContext || text == "" {
		return name
	}
	return name + ": " + text
}

func cacheKey(text string) string {
	return common.NormalizeKey(text)
}

// Warm embeds every text that is not cached yet. It returns nil without an
// embedder. Failures leave the affected texts uncached so Resolve degrades to
// string similarity for them.
func (r *Resolver) Warm(ctx context.Context, texts []string) error {
	if r.embedder == nil || len(texts) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(texts))
	missing := make([]string, 0, len(texts))
	for _, t := range texts {
		key := cacheKey(t)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if _, err := r.vectors.Get(key); errors.Is(err, cache.ErrKeyNotFound) {
			missing = append(missing, common.NormalizeName(t))
		}
	}
	if len(missing) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.params.Parallelism)
	for start := 0; start < len(missing); start += r.params.BatchSize {
		batch := missing[start:min(start+r.params.BatchSize, len(missing))]
		g.Go(func() error {
			vecs, err := r.embed(gctx, batch)
			if err != nil {
				return err
			}
			for i, vec := range vecs {
				if err := r.vectors.Set(cacheKey(batch[i]), vec); err != nil {
					return fmt.Errorf("failed to cache embedding: %w", err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to warm embeddings: %w", err)
	}
	logger.Debug("[Resolver] Warmed embeddings", "count", len(missing))
	return nil
}

func (r *Resolver) embed(ctx context.Context, texts []string) ([][]float32, error) {
	inputs := make([][]byte, len(texts))
	for i, t := range texts {
		inputs[i] = []byte(t)
	}
	if b, ok := r.embedder.(ai.BatchEmbedder); ok {
		return b.GenerateEmbeddings(ctx, inputs)
	}
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		vec, err := r.embedder.GenerateEmbedding(ctx, in)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Resolve returns the canonical entity for mention, creating one when no
// known entity is similar enough. Matched mentions become aliases.
func (r *Resolver) Resolve(ctx context.Context, mention string, mc MentionContext) (common.EntityID, error) {
	name := common.NormalizeName(mention)
	if name == "" {
		return 0, fmt.Errorf("mention is empty")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if id, ok := r.store.LookupAlias(name); ok {
		return id, r.count(id, mc.Type)
	}

	if id, score, ok := r.match(name, mc); ok {
		if _, err := r.store.AddAlias(id, name); err != nil {
			return 0, err
		}
		logger.Debug("[Resolver] Mention matched existing entity", "mention", name, "entity", id, "score", score)
		return id, r.count(id, mc.Type)
	}

	id := r.store.CreateEntity(name, mc.Type)
	return id, r.store.RecordMention(id)
}

func (r *Resolver) count(id common.EntityID, typ string) error {
	if err := r.store.RecordMention(id); err != nil {
		return err
	}
	if typ != "" {
		return r.store.SetEntityType(id, typ)
	}
	return nil
}

// scorer rates one alias against the mention and returns the threshold that
// score has to reach.
type scorer func(alias string) (score, threshold float64)

// scorer uses embedding similarity when the mention has a cached vector.
// Aliases without a vector, such as those of a restored store that was not
// warmed yet, are compared by string similarity instead.
func (r *Resolver) scorer(name string, mc MentionContext) scorer {
	key := common.NormalizeKey(name)
	fuzzy := func(alias string) (float64, float64) {
		return jaroWinkler(key, common.NormalizeKey(alias)), r.params.FuzzyThreshold
	}
	if r.embedder == nil {
		return fuzzy
	}

	query, err := r.vectors.Get(cacheKey(r.queryText(name, mc)))
	if err != nil {
		logger.Debug("[Resolver] No embedding for mention, using string similarity", "mention", name)
		return fuzzy
	}
	return func(alias string) (float64, float64) {
		vec, err := r.vectors.Get(cacheKey(alias))
		if err != nil {
			return fuzzy(alias)
		}
		return ai.CosineSimilarity(query, vec), r.params.MergeThreshold
	}
}

// AliasTexts lists every alias in the store. Like Resolve it reads the store
// and must be serialized with writers.
func (r *Resolver) AliasTexts() []string {
	var texts []string
	r.store.RangeEntities(func(_ common.EntityID, _ string, _ int, aliases []string) bool {
		texts = append(texts, aliases...)
		return true
	})
	return texts
}

// match finds the best scoring live entity with an alias at or above its
// threshold. Ties go to the entity with more mentions, then the older one.
func (r *Resolver) match(name string, mc MentionContext) (common.EntityID, float64, bool) {
	score := r.scorer(name, mc)
	mentionType := common.NormalizeKey(mc.Type)

	var (
		bestID       common.EntityID
		bestScore    float64
		bestMentions int
		found        bool
	)
	r.store.RangeEntities(func(id common.EntityID, typ string, mentions int, aliases []string) bool {
		if mentionType != "" && typ != "" && common.NormalizeKey(typ) != mentionType {
			return true
		}
		top, hit := 0.0, false
		for _, alias := range aliases {
			if s, threshold := score(alias); s >= threshold && (!hit || s > top) {
				top, hit = s, true
			}
		}
		if !hit {
			return true
		}
		if !found || top > bestScore || (top == bestScore && mentions > bestMentions) {
			bestID, bestScore, bestMentions, found = id, top, mentions, true
		}
		return true
	})
	return bestID, bestScore, found
}
