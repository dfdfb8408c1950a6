package evaluation

import (
	"sort"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/graph"
)

type degree struct {
	out, in int
}

func (d degree) total() int { return d.out + d.in }

// degrees counts active relations per live entity. Entities without any
// relation are present with zero.
func degrees(entities []common.Entity, active []common.Triple) map[common.EntityID]degree {
	out := make(map[common.EntityID]degree, len(entities))
	for _, en := range entities {
		out[en.ID] = degree{}
	}
	for _, t := range active {
		d := out[t.Subject]
		d.out++
		out[t.Subject] = d
		d = out[t.Object]
		d.in++
		out[t.Object] = d
	}
	return out
}

// ConnectedEntity is an entity with its active relation counts.
type ConnectedEntity struct {
	common.EntityRef
	Degree   int `json:"degree"`
	Outgoing int `json:"outgoing"`
	Incoming int `json:"incoming"`
}

// MostConnected returns up to limit live entities ordered by active degree,
// highest first and ties by id. Isolated entities are left out.
func MostConnected(snap *graph.Snapshot, limit int) []ConnectedEntity {
	entities := snap.LiveEntities()
	degree := degrees(entities, snap.ActiveTriples())

	out := make([]ConnectedEntity, 0, len(entities))
	for _, en := range entities {
		d := degree[en.ID]
		if d.total() == 0 {
			continue
		}
		out = append(out, ConnectedEntity{
			EntityRef: common.EntityRef{ID: en.ID, Label: en.Label},
			Degree:    d.total(),
			Outgoing:  d.out,
			Incoming:  d.in,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Degree > out[j].Degree
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// PredicateStats summarizes every triple, active or not, of one predicate.
type PredicateStats struct {
	Predicate      string  `json:"predicate"`
	Declared       bool    `json:"declared"`
	Triples        int     `json:"triples"`
	Active         int     `json:"active"`
	Superseded     int     `json:"superseded"`
	Inferred       int     `json:"inferred"`
	MeanConfidence float64 `json:"mean_confidence"`
	SupersededRate float64 `json:"superseded_rate"`
}

// Predicates analyses each predicate of snap, ordered by name. Mean
// confidence is taken over the active triples only.
func (e *Engine) Predicates(snap *graph.Snapshot) []PredicateStats {
	byName := make(map[string]*PredicateStats)
	confSum := make(map[string]float64)
	for _, t := range snap.Triples {
		st, ok := byName[t.Predicate]
		if !ok {
			st = &PredicateStats{Predicate: t.Predicate}
			_, st.Declared = e.schema.Lookup(t.Predicate)
			byName[t.Predicate] = st
		}
		st.Triples++
		if t.Inferred {
			st.Inferred++
		}
		if t.Active() {
			st.Active++
			confSum[t.Predicate] += t.Confidence
		} else {
			st.Superseded++
		}
	}

	out := make([]PredicateStats, 0, len(byName))
	for name, st := range byName {
		if st.Active > 0 {
			st.MeanConfidence = confSum[name] / float64(st.Active)
		}
		st.SupersededRate = float64(st.Superseded) / float64(st.Triples)
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Predicate < out[j].Predicate })
	return out
}
