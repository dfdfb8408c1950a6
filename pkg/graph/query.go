package graph

import (
	"sort"
	"strings"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
)

// Match ranks of SearchEntities, best first.
const (
	matchExact = iota
	matchPrefix
	matchWord
	matchSubstring
	noMatch
)

// SearchEntities finds live entities whose label or an alias contains query,
// case-insensitively. Exact matches come first, then prefix, word-prefix and
// substring matches; within a rank entities with more mentions win. limit
// <= 0 returns every match.
func (s *TripleStore) SearchEntities(query string, limit int) []common.Entity {
	q := common.NormalizeKey(query)
	if q == "" {
		return []common.Entity{}
	}

	type hit struct {
		rec  *entityRecord
		rank int
	}
	var hits []hit
	for _, rec := range s.entities {
		if rec.parent != rec.id {
			continue
		}
		best := matchRank(common.NormalizeKey(rec.label), q)
		for _, alias := range rec.aliases {
			best = min(best, matchRank(common.NormalizeKey(alias), q))
		}
		if best != noMatch {
			hits = append(hits, hit{rec: rec, rank: best})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].rank != hits[j].rank {
			return hits[i].rank < hits[j].rank
		}
		return hits[i].rec.mentions > hits[j].rec.mentions
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]common.Entity, len(hits))
	for i, h := range hits {
		out[i] = s.entityView(h.rec)
	}
	return out
}

func matchRank(key, q string) int {
	switch {
	case key == q:
		return matchExact
	case strings.HasPrefix(key, q):
		return matchPrefix
	case strings.Contains(key, " "+q):
		return matchWord
	case strings.Contains(key, q):
		return matchSubstring
	}
	return noMatch
}

// Relationships returns the active triples the entity id resolves to takes
// part in, as subject or object, ordered by triple id.
func (s *TripleStore) Relationships(id common.EntityID) ([]common.TripleView, error) {
	root, err := s.Find(id)
	if err != nil {
		return nil, err
	}
	rec := s.entities[root]
	ids := make(map[common.TripleID]struct{}, len(rec.outgoing)+len(rec.incoming))
	for tid := range rec.outgoing {
		ids[tid] = struct{}{}
	}
	for tid := range rec.incoming {
		ids[tid] = struct{}{}
	}

	out := make([]common.TripleView, 0, len(ids))
	for _, tid := range sortedTripleIDs(ids) {
		if t := s.triples[tid]; t.Active() {
			out = append(out, s.view(t))
		}
	}
	return out, nil
}
