// Package fusion settles conflicting and duplicate triples. Every conflict
// set is decided by the first applicable strategy out of voting, recency,
// reliability and tiebreak; losers are superseded and keep a reference to
// the winner.
package fusion

import (
	"fmt"
	"time"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/conflict"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/graph"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/schema"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	DefaultConfidenceMargin   = 0.2
	DefaultCorroborationBonus = 0.05
	DefaultInferenceRounds    = 8

	// inferenceDecay scales the confidence of derived triples.
	inferenceDecay = 0.9
)

// Params configures an Engine.
type Params struct {
	ConfidenceMargin   float64
	CorroborationBonus float64

	// InferTransitive enables inference over transitive predicates and
	// schema compositions after conflicts are settled.
	InferTransitive bool

	// InferenceRounds bounds the inference fixpoint.
	InferenceRounds int
}

// DefaultParams returns the documented defaults with inference enabled.
func DefaultParams() Params {
	return Params{
		ConfidenceMargin:   DefaultConfidenceMargin,
		CorroborationBonus: DefaultCorroborationBonus,
		InferTransitive:    true,
		InferenceRounds:    DefaultInferenceRounds,
	}
}

// Decision is the outcome for one conflict set.
type Decision struct {
	Kind       conflict.Kind     `json:"kind"`
	Subject    common.EntityID   `json:"subject"`
	Predicate  string            `json:"predicate"`
	Winner     common.TripleID   `json:"winner"`
	Losers     []common.TripleID `json:"losers"`
	Strategy   Strategy          `json:"strategy"`
	Confidence float64           `json:"confidence"`
}

// Engine applies fusion decisions to a TripleStore.
type Engine struct {
	schema   *schema.Schema
	detector *conflict.Detector
	params   Params
}

// NewEngine creates an engine for schema s. Negative margins and bonuses
// fall back to the defaults.
func NewEngine(s *schema.Schema, params Params) *Engine {
	if params.ConfidenceMargin < 0 {
		params.ConfidenceMargin = DefaultConfidenceMargin
	}
	if params.CorroborationBonus < 0 {
		params.CorroborationBonus = DefaultCorroborationBonus
	}
	if params.InferenceRounds <= 0 {
		params.InferenceRounds = DefaultInferenceRounds
	}
	return &Engine{schema: s, detector: conflict.NewDetector(s), params: params}
}

// Detector returns the conflict detector bound to the engine's schema.
func (e *Engine) Detector() *conflict.Detector {
	return e.detector
}

// Resolve decides a conflict set without modifying anything. Inactive
// members are ignored; a set without active members is an error.
func (e *Engine) Resolve(set conflict.ConflictSet) (Decision, error) {
	members := make([]common.Triple, 0, len(set.Triples))
	for _, t := range set.Triples {
		if t.Active() {
			members = append(members, t)
		}
	}
	if len(members) == 0 {
		return Decision{}, fmt.Errorf("conflict set for %d/%s has no active triples", set.Subject, set.Predicate)
	}

	for _, s := range strategies {
		winner, ok := s.fn(e.params, members)
		if !ok {
			continue
		}
		d := Decision{
			Kind:       set.Kind,
			Subject:    set.Subject,
			Predicate:  set.Predicate,
			Winner:     winner.ID,
			Losers:     make([]common.TripleID, 0, len(members)-1),
			Strategy:   s.name,
			Confidence: fusedConfidence(e.params, winner),
		}
		for _, t := range members {
			if t.ID != winner.ID {
				d.Losers = append(d.Losers, t.ID)
			}
		}
		return d, nil
	}
	// tiebreak always decides
	panic("fusion: no strategy produced a winner")
}

// ResolveAll runs one correction pass over store: duplicate folding,
// conflict resolution and, when enabled, inference. The store must be
// consistent beforehand; a broken invariant is returned as a
// *common.ConsistencyFault and nothing is changed.
//
// A second pass over an unchanged store changes nothing.
func (e *Engine) ResolveAll(store *graph.TripleStore) (*Report, error) {
	if err := store.CheckConsistency(); err != nil {
		return nil, err
	}

	passID, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate pass id: %w", err)
	}
	start := time.Now()
	report := newReport(passID)
	report.DuplicatesMerged = store.TakeIngestDuplicates()
	gaps := make(map[string]struct{})

	for round := 0; ; round++ {
		res := e.detector.FindConflicts(store.ActiveTriples())
		for _, p := range res.SchemaGaps {
			gaps[p] = struct{}{}
		}

		if err := e.foldDuplicates(store, res.Duplicates, report); err != nil {
			return nil, err
		}
		if err := e.resolveConflicts(store, res.Conflicts, report); err != nil {
			return nil, err
		}

		if !e.params.InferTransitive || round >= e.params.InferenceRounds {
			break
		}
		n, err := e.inferOnce(store)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		report.Inferred += n
	}

	if err := e.verify(store); err != nil {
		return nil, err
	}

	report.finish(store, gaps, time.Since(start))
	logger.Info("[Fusion] Correction pass finished",
		"pass", report.PassID,
		"duplicates", report.DuplicatesMerged,
		"superseded", report.TotalSuperseded,
		"inferred", report.Inferred,
		"active", len(report.Active),
		"duration", report.Duration,
	)
	return report, nil
}

func (e *Engine) foldDuplicates(store *graph.TripleStore, dupes []conflict.DuplicateSet, report *Report) error {
	for _, set := range dupes {
		keep := set.Triples[0].ID
		for _, t := range set.Triples[1:] {
			if err := store.FoldDuplicate(keep, t.ID); err != nil {
				return fmt.Errorf("failed to fold duplicate triple %d: %w", t.ID, err)
			}
			report.DuplicatesMerged++
			report.TotalSuperseded++
		}
	}
	return nil
}

func (e *Engine) resolveConflicts(store *graph.TripleStore, sets []conflict.ConflictSet, report *Report) error {
	for _, set := range sets {
		current := make([]common.Triple, 0, len(set.Triples))
		for _, t := range set.Triples {
			fresh, err := store.Triple(t.ID)
			if err != nil {
				return err
			}
			current = append(current, fresh)
		}
		narrowed, still := set.Narrow(current)
		if !still {
			continue
		}

		d, err := e.Resolve(narrowed)
		if err != nil {
			return err
		}
		for _, loser := range d.Losers {
			if err := store.Supersede(loser, d.Winner); err != nil {
				return fmt.Errorf("failed to supersede triple %d: %w", loser, err)
			}
		}
		if err := store.SetConfidence(d.Winner, d.Confidence); err != nil {
			return err
		}

		report.ConflictsResolved[d.Strategy]++
		report.TotalSuperseded += len(d.Losers)
		report.Decisions = append(report.Decisions, d)
		logger.Debug("[Fusion] Resolved conflict",
			"kind", d.Kind,
			"subject", d.Subject,
			"predicate", d.Predicate,
			"winner", d.Winner,
			"strategy", d.Strategy,
		)
	}
	return nil
}

// verify re-checks the store after a pass. Remaining duplicates or
// functional conflicts mean the pass itself is broken.
func (e *Engine) verify(store *graph.TripleStore) error {
	if err := store.CheckConsistency(); err != nil {
		return err
	}
	res := e.detector.FindConflicts(store.ActiveTriples())
	if len(res.Duplicates) > 0 {
		return &common.ConsistencyFault{
			TripleID: res.Duplicates[0].Triples[1].ID,
			Reason:   "duplicate triple survived correction",
		}
	}
	for _, c := range res.Conflicts {
		if c.Kind == conflict.KindFunctional {
			return &common.ConsistencyFault{
				TripleID: c.Triples[0].ID,
				Reason:   fmt.Sprintf("functional predicate %s still has %d active triples", c.Predicate, len(c.Triples)),
			}
		}
	}
	return nil
}
