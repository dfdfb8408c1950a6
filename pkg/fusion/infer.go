package fusion

import (
	"fmt"
	"sort"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/graph"
)

type hop struct {
	subject   common.EntityID
	predicate string
}

// inferOnce applies every composition rule once to the active triples and
// returns how many new triples it added. Keys that already exist, active or
// superseded, are left alone so earlier fusion decisions stand and repeated
// passes add nothing.
func (e *Engine) inferOnce(store *graph.TripleStore) (int, error) {
	rules := e.schema.Compositions()
	if len(rules) == 0 {
		return 0, nil
	}

	active := store.ActiveTriples()
	bySubject := make(map[hop][]common.Triple)
	for _, t := range active {
		k := hop{subject: t.Subject, predicate: t.Predicate}
		bySubject[k] = append(bySubject[k], t)
	}

	added := 0
	for _, rule := range rules {
		for _, first := range active {
			if first.Predicate != rule.First {
				continue
			}
			for _, second := range bySubject[hop{subject: first.Object, predicate: rule.Second}] {
				if second.ID == first.ID || second.Object == first.Subject {
					continue
				}
				if _, exists := store.Lookup(first.Subject, rule.Result, second.Object); exists {
					continue
				}
				if e.schema.Symmetric(rule.Result) {
					if _, exists := store.Lookup(second.Object, rule.Result, first.Subject); exists {
						continue
					}
				}

				prov := inferredProvenance(rule.First, rule.Second, first, second)
				if _, _, err := store.AddTriple(first.Subject, rule.Result, second.Object, prov); err != nil {
					return added, fmt.Errorf("failed to add inferred triple: %w", err)
				}
				added++
			}
		}
	}
	return added, nil
}

func inferredProvenance(firstPred, secondPred string, first, second common.Triple) common.Provenance {
	ts := first.Timestamp
	if second.Timestamp.After(ts) {
		ts = second.Timestamp
	}
	turns := make([]string, 0, 2)
	for turn := range first.SourceTurns() {
		turns = append(turns, turn)
	}
	for turn := range second.SourceTurns() {
		turns = append(turns, turn)
	}
	sort.Strings(turns)

	return common.Provenance{
		ID:           fmt.Sprintf("inferred:%d:%d", first.ID, second.ID),
		SourceTurnID: fmt.Sprintf("inferred:%d+%d", first.ID, second.ID),
		Confidence:   min(first.Confidence, second.Confidence) * inferenceDecay,
		Timestamp:    ts,
		SourceText:   fmt.Sprintf("%s then %s via turns %v", firstPred, secondPred, turns),
		Inferred:     true,
	}
}
