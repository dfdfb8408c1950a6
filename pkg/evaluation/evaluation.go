// Package evaluation measures graph quality: link prediction over a trained
// embedding space, structural statistics and schema coverage. It only reads
// snapshots and never changes a graph.
package evaluation

import (
	"context"
	"sort"
	"time"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/embedding"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/graph"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/schema"
)

const (
	DefaultSampleSize = 500
	DefaultSeed       = 42

	defaultParallelism = 4
	defaultChunkSize   = 64
)

type Params struct {
	SampleSize  int
	Seed        uint64
	Parallelism int
	ChunkSize   int
}

// LinkPrediction holds filtered tail-prediction metrics. HeldOut is false
// when the space recorded no held-out triple that is still active and the
// metrics were computed on training triples instead.
type LinkPrediction struct {
	HeldOut   bool    `json:"held_out"`
	Evaluated int     `json:"evaluated"`
	MRR       float64 `json:"mrr"`
	Hits1     float64 `json:"hits_at_1"`
	Hits3     float64 `json:"hits_at_3"`
	Hits10    float64 `json:"hits_at_10"`
}

type DegreeStats struct {
	Min    int     `json:"min"`
	Max    int     `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

type GraphStats struct {
	Entities      int         `json:"entities"`
	Predicates    int         `json:"predicates"`
	ActiveTriples int         `json:"active_triples"`
	Density       float64     `json:"density"`
	Degree        DegreeStats `json:"degree"`
}

// Report is the result of one evaluation. LinkPrediction is nil when no
// usable embedding space was supplied.
type Report struct {
	Version        uint64          `json:"version"`
	SpaceVersion   uint64          `json:"space_version"`
	StaleSpace     bool            `json:"stale_space"`
	LinkPrediction *LinkPrediction `json:"link_prediction,omitempty"`
	Stats          GraphStats      `json:"stats"`
	Coverage       float64         `json:"coverage"`
	Completeness   float64         `json:"completeness"`
	EvaluatedAt    time.Time       `json:"evaluated_at"`
}

// Engine evaluates snapshots against one predicate schema.
type Engine struct {
	schema *schema.Schema
	params Params
}

func NewEngine(s *schema.Schema, params Params) *Engine {
	if params.SampleSize <= 0 {
		params.SampleSize = DefaultSampleSize
	}
	if params.Seed == 0 {
		params.Seed = DefaultSeed
	}
	if params.Parallelism <= 0 {
		params.Parallelism = defaultParallelism
	}
	if params.ChunkSize <= 0 {
		params.ChunkSize = defaultChunkSize
	}
	return &Engine{schema: s, params: params}
}

// Evaluate computes the metrics for snap. space may be nil or stale; a stale
// space is still used and flagged in the report.
func (e *Engine) Evaluate(ctx context.Context, snap *graph.Snapshot, space *embedding.Space) (*Report, error) {
	entities := snap.LiveEntities()
	active := snap.ActiveTriples()

	report := &Report{
		Version:     snap.Version,
		Stats:       e.stats(entities, active, snap.Predicates()),
		Coverage:    e.coverage(snap.Predicates()),
		EvaluatedAt: time.Now(),
	}
	report.Completeness = completeness(entities, active)

	if space != nil {
		report.SpaceVersion = space.Version
		report.StaleSpace = space.Stale(snap.Version)
		lp, err := e.linkPrediction(ctx, entities, active, space)
		if err != nil {
			return nil, err
		}
		report.LinkPrediction = lp
	}

	logger.Debug("[Eval] Snapshot evaluated",
		"version", report.Version,
		"entities", report.Stats.Entities,
		"active", report.Stats.ActiveTriples,
		"link_prediction", report.LinkPrediction != nil,
	)
	return report, nil
}

func (e *Engine) stats(entities []common.Entity, active []common.Triple, predicates []string) GraphStats {
	st := GraphStats{
		Entities:      len(entities),
		Predicates:    len(predicates),
		ActiveTriples: len(active),
	}
	if st.Entities > 0 && st.Predicates > 0 {
		n := float64(st.Entities)
		st.Density = float64(st.ActiveTriples) / (n * float64(st.Predicates) * n)
	}

	degree := degrees(entities, active)
	if len(degree) == 0 {
		return st
	}
	values := make([]int, 0, len(degree))
	sum := 0
	for _, d := range degree {
		values = append(values, d.total())
		sum += d.total()
	}
	sort.Ints(values)
	st.Degree = DegreeStats{
		Min:  values[0],
		Max:  values[len(values)-1],
		Mean: float64(sum) / float64(len(values)),
	}
	mid := len(values) / 2
	if len(values)%2 == 1 {
		st.Degree.Median = float64(values[mid])
	} else {
		st.Degree.Median = float64(values[mid-1]+values[mid]) / 2
	}
	return st
}

// coverage is the share of declared predicates that the graph uses.
// Undeclared predicates do not count.
func (e *Engine) coverage(used []string) float64 {
	size := e.schema.Size()
	if size == 0 {
		return 0
	}
	n := 0
	for _, p := range used {
		if _, ok := e.schema.Lookup(p); ok {
			n++
		}
	}
	return float64(n) / float64(size)
}

// completeness is the share of entities with at least one outgoing and one
// incoming active relation.
func completeness(entities []common.Entity, active []common.Triple) float64 {
	if len(entities) == 0 {
		return 0
	}
	out := make(map[common.EntityID]bool)
	in := make(map[common.EntityID]bool)
	for _, t := range active {
		out[t.Subject] = true
		in[t.Object] = true
	}
	n := 0
	for _, en := range entities {
		if out[en.ID] && in[en.ID] {
			n++
		}
	}
	return float64(n) / float64(len(entities))
}
