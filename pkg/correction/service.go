// Package correction owns one triple store and serializes every change to
// it. Ingestion, correction passes, merges and snapshots share one lock.
// Ingestion during a correction pass is queued and applied right after the
// pass. Training and evaluation run on snapshots outside the lock.
package correction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/ai"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/ai/cache"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/embedding"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/evaluation"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/fusion"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/graph"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/resolver"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/schema"

	"github.com/go-playground/validator"
	"golang.org/x/sync/singleflight"
)

const restoreWarmTimeout = 5 * time.Minute

// Params bundles the component parameters of a Service.
type Params struct {
	Resolver   resolver.Params
	Fusion     fusion.Params
	Trainer    embedding.Params
	Evaluation evaluation.Params
}

// Service is the entry point for one graph.
type Service struct {
	schema   *schema.Schema
	fusion   *fusion.Engine
	trainer  *embedding.Trainer
	eval     *evaluation.Engine
	embedder ai.Embedder
	vectors  cache.VectorCache
	params   Params
	validate *validator.Validate

	mu         sync.Mutex
	store      *graph.TripleStore
	space      *embedding.Space
	lastReport *fusion.Report
	generation uint64

	resolver atomic.Pointer[resolver.Resolver]

	pendingMu  sync.Mutex
	correcting int
	pending    []mention

	train singleflight.Group
}

// NewService creates a service with an empty store. embedder and vectors
// may be nil.
func NewService(s *schema.Schema, embedder ai.Embedder, vectors cache.VectorCache, params Params) *Service {
	if s == nil {
		s = schema.Default()
	}
	if vectors == nil {
		vectors = cache.NewMemoryCache()
	}
	svc := &Service{
		schema:   s,
		fusion:   fusion.NewEngine(s, params.Fusion),
		trainer:  embedding.NewTrainer(params.Trainer),
		eval:     evaluation.NewEngine(s, params.Evaluation),
		embedder: embedder,
		vectors:  vectors,
		params:   params,
		validate: newValidator(),
	}
	svc.setStore(graph.NewTripleStore())
	return svc
}

// setStore must be called with mu held or before the service is shared.
func (s *Service) setStore(store *graph.TripleStore) {
	s.store = store
	s.generation++
	s.resolver.Store(resolver.New(store, s.embedder, s.vectors, s.params.Resolver))
}

// Schema returns the predicate schema the service was built with.
func (s *Service) Schema() *schema.Schema {
	return s.schema
}

// Ingest validates raw, resolves the accepted triples and adds them to the
// store. Invalid triples are reported in the result and do not stop the
// batch. While a correction pass runs, accepted triples are queued and
// Queued is set; they are applied before the pass releases the store.
func (s *Service) Ingest(ctx context.Context, raw []common.RawTriple) (IngestResult, error) {
	res := IngestResult{Received: len(raw), Errors: []*common.InputError{}}

	batch := make([]mention, 0, len(raw))
	for i, r := range raw {
		m, err := s.prepare(i, r)
		if err != nil {
			var inputErr *common.InputError
			if errors.As(err, &inputErr) {
				logger.Warn("[Ingest] Rejected raw triple", "index", i, "field", inputErr.Field, "reason", inputErr.Reason)
				res.Errors = append(res.Errors, inputErr)
				continue
			}
			return res, err
		}
		batch = append(batch, m)
	}
	res.Accepted = len(batch)
	if len(batch) == 0 {
		return res, nil
	}

	s.warm(ctx, batch)

	s.pendingMu.Lock()
	s.pending = append(s.pending, batch...)
	if s.correcting > 0 {
		s.pendingMu.Unlock()
		res.Queued = true
		logger.Debug("[Ingest] Queued during correction pass", "triples", len(batch))
		return res, nil
	}
	s.pendingMu.Unlock()

	s.mu.Lock()
	created, merged := s.drainLocked(ctx)
	res.Created, res.Merged = created, merged
	res.Version = s.store.Version()
	s.unlock(ctx)
	return res, nil
}

// warm embeds the mention texts before the store lock is taken. Failures
// only degrade resolution to string similarity.
func (s *Service) warm(ctx context.Context, batch []mention) {
	if s.embedder == nil {
		return
	}
	r := s.resolver.Load()
	texts := make([]string, 0, len(batch)*4)
	for _, m := range batch {
		texts = append(texts, r.Texts(m.subject, m.subjectCtx)...)
		texts = append(texts, r.Texts(m.object, m.objectCtx)...)
	}
	if err := r.Warm(ctx, texts); err != nil {
		logger.Warn("[Ingest] Embedding warm-up failed", "err", err)
	}
}

// drainLocked applies every queued mention. mu must be held.
func (s *Service) drainLocked(ctx context.Context) (created, merged int) {
	s.pendingMu.Lock()
	batch := s.pending
	s.pending = nil
	s.pendingMu.Unlock()

	r := s.resolver.Load()
	ctx = context.WithoutCancel(ctx)
	for _, m := range batch {
		isNew, err := s.apply(ctx, r, m)
		if err != nil {
			logger.Error("[Ingest] Failed to apply raw triple", "index", m.index, "err", err)
			continue
		}
		if isNew {
			created++
		} else {
			merged++
		}
	}
	return created, merged
}

func (s *Service) apply(ctx context.Context, r *resolver.Resolver, m mention) (bool, error) {
	subject, err := r.Resolve(ctx, m.subject, m.subjectCtx)
	if err != nil {
		return false, fmt.Errorf("failed to resolve subject: %w", err)
	}
	object, err := r.Resolve(ctx, m.object, m.objectCtx)
	if err != nil {
		return false, fmt.Errorf("failed to resolve object: %w", err)
	}
	_, isNew, err := s.store.AddTriple(subject, m.predicate, object, common.Provenance{
		ID:           common.ProvenanceID(m.sourceTurn, m.subject, m.predicate, m.object, m.timestamp),
		SourceTurnID: m.sourceTurn,
		Confidence:   m.confidence,
		Timestamp:    m.timestamp,
		SourceText:   m.sourceText,
	})
	if err != nil {
		return false, fmt.Errorf("failed to add triple: %w", err)
	}
	return isNew, nil
}

// unlock releases mu and picks up mentions queued while it was held by
// someone who could not drain them.
func (s *Service) unlock(ctx context.Context) {
	for {
		s.mu.Unlock()

		s.pendingMu.Lock()
		waiting := len(s.pending) > 0 && s.correcting == 0
		s.pendingMu.Unlock()
		if !waiting || !s.mu.TryLock() {
			return
		}
		s.drainLocked(ctx)
	}
}

// Correct runs one correction pass over the store. Triples ingested while
// the pass runs are applied afterwards and are considered by the next pass.
func (s *Service) Correct(ctx context.Context) (*fusion.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.pendingMu.Lock()
	s.correcting++
	s.pendingMu.Unlock()

	s.mu.Lock()
	report, err := s.fusion.ResolveAll(s.store)
	if err == nil {
		s.lastReport = report
	}

	s.pendingMu.Lock()
	s.correcting--
	s.pendingMu.Unlock()
	s.drainLocked(ctx)
	s.unlock(ctx)

	if err != nil {
		if common.IsConsistencyFault(err) {
			logger.Error("[Correct] Correction pass aborted", "err", err)
		}
		return nil, err
	}
	return report, nil
}

// LastReport returns the report of the latest successful correction pass.
func (s *Service) LastReport() *fusion.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReport
}

// Train fits embeddings on a snapshot of the store. Concurrent calls share
// one run. The new space replaces the current one only if the store was
// not restored meanwhile; a cancelled run leaves the current space alone.
func (s *Service) Train(ctx context.Context) (embedding.TrainResult, error) {
	v, err, shared := s.train.Do("train", func() (any, error) {
		s.mu.Lock()
		snap := s.store.Snapshot()
		prior := s.space
		gen := s.generation
		s.mu.Unlock()

		res, err := s.trainer.Train(ctx, snap, prior)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Warn("[Train] Training abandoned", "err", err)
			}
			return nil, err
		}
		if res.Skipped {
			return res, nil
		}

		s.mu.Lock()
		if gen == s.generation {
			s.space = res.Space
		} else {
			logger.Warn("[Train] Store replaced during training, result dropped")
			res.Space = s.space
		}
		s.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return embedding.TrainResult{}, fmt.Errorf("failed to train embeddings: %w", err)
	}
	if shared {
		logger.Debug("[Train] Joined running training")
	}
	return v.(embedding.TrainResult), nil
}

// Space returns the current embedding space, which may be nil or stale.
func (s *Service) Space() *embedding.Space {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.space
}

// Evaluate measures the current graph with the current embedding space.
func (s *Service) Evaluate(ctx context.Context) (*evaluation.Report, error) {
	s.mu.Lock()
	snap := s.store.Snapshot()
	space := s.space
	s.mu.Unlock()

	return s.eval.Evaluate(ctx, snap, space)
}

// MergeEntities merges entity from into entity into and returns the
// survivor.
func (s *Service) MergeEntities(ctx context.Context, from, into common.EntityID) (common.EntityID, error) {
	s.mu.Lock()
	defer s.unlock(ctx)

	id, err := s.store.MergeEntities(from, into)
	if err != nil {
		return 0, fmt.Errorf("failed to merge entity %d into %d: %w", from, into, err)
	}
	logger.Info("[Merge] Entities merged", "from", from, "into", into, "survivor", id)
	return id, nil
}

// Active returns the active triples with canonical labels.
func (s *Service) Active() []common.TripleView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.ActiveViews()
}

// Entity returns the canonical entity id resolves to.
func (s *Service) Entity(id common.EntityID) (common.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Entity(id)
}

// Entities returns all live entities.
func (s *Service) Entities() []common.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Entities()
}

// Triple returns a triple with its full audit trail.
func (s *Service) Triple(id common.TripleID) (common.Triple, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Triple(id)
}

// Version returns the current store version.
func (s *Service) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Version()
}

// Snapshot copies the store.
func (s *Service) Snapshot() *graph.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Snapshot()
}

// Restore replaces the store with snap and the embedding space with space.
// space may be nil. A failed restore leaves the service unchanged.
func (s *Service) Restore(snap *graph.Snapshot, space *embedding.Space) error {
	store, err := graph.Restore(snap)
	if err != nil {
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}

	// The new store is not shared yet, so its aliases can be read unlocked.
	var aliases []string
	if s.embedder != nil {
		aliases = resolver.New(store, nil, nil, s.params.Resolver).AliasTexts()
	}

	s.mu.Lock()
	s.setStore(store)
	s.space = space
	s.lastReport = nil
	r := s.resolver.Load()
	s.unlock(context.Background())

	logger.Info("[Restore] Store restored", "version", store.Version(), "space", space != nil)
	if len(aliases) > 0 {
		go s.warmAliases(r, aliases)
	}
	return nil
}

// warmAliases embeds the aliases of a restored store. Until it finishes,
// resolution compares uncached aliases by string similarity.
func (s *Service) warmAliases(r *resolver.Resolver, aliases []string) {
	ctx, cancel := context.WithTimeout(context.Background(), restoreWarmTimeout)
	defer cancel()
	if err := r.Warm(ctx, aliases); err != nil {
		logger.Warn("[Restore] Alias embedding warm-up failed", "aliases", len(aliases), "err", err)
		return
	}
	logger.Debug("[Restore] Alias embeddings warmed", "aliases", len(aliases))
}

// Close releases the vector cache.
func (s *Service) Close() error {
	return s.vectors.Close()
}
