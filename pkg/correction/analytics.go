package correction

import (
	"fmt"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/evaluation"
)

// SimilarEntity is a neighbour of an entity in the embedding space.
type SimilarEntity struct {
	common.EntityRef
	Distance float64 `json:"distance"`
}

// MostConnected returns the live entities with the most active relations.
func (s *Service) MostConnected(limit int) []evaluation.ConnectedEntity {
	return evaluation.MostConnected(s.Snapshot(), limit)
}

// PredicateStats analyses every predicate in the graph.
func (s *Service) PredicateStats() []evaluation.PredicateStats {
	return s.eval.Predicates(s.Snapshot())
}

// SearchEntities finds entities by label or alias.
func (s *Service) SearchEntities(query string, limit int) []common.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.SearchEntities(query, limit)
}

// Relationships returns the active triples around an entity.
func (s *Service) Relationships(id common.EntityID) ([]common.TripleView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Relationships(id)
}

// SimilarEntities returns up to k entities nearest to id in the current
// embedding space. Entities merged since training are reported under their
// canonical id and folded into one result.
func (s *Service) SimilarEntities(id common.EntityID, k int) ([]SimilarEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	root, err := s.store.Find(id)
	if err != nil {
		return nil, err
	}
	if s.space == nil {
		return nil, fmt.Errorf("no embedding space trained: %w", common.ErrNotFound)
	}
	neighbours, ok := s.space.Nearest(root, 0)
	if !ok {
		return nil, fmt.Errorf("entity %d has no embedding: %w", root, common.ErrNotFound)
	}

	seen := map[common.EntityID]bool{root: true}
	out := make([]SimilarEntity, 0, k)
	for _, n := range neighbours {
		if k > 0 && len(out) == k {
			break
		}
		canonical, err := s.store.Find(n.ID)
		if err != nil || seen[canonical] {
			continue
		}
		seen[canonical] = true
		e, err := s.store.Entity(canonical)
		if err != nil {
			continue
		}
		out = append(out, SimilarEntity{
			EntityRef: common.EntityRef{ID: canonical, Label: e.Label},
			Distance:  n.Distance,
		})
	}
	return out, nil
}
