package graph

import (
	"fmt"
	"sort"
	"time"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
)

// EntityRecord is the persisted form of an arena slot. RedirectTo equals ID
// for live entities.
type EntityRecord struct {
	common.Entity
	RedirectTo common.EntityID `json:"redirect_to"`
}

// Snapshot is an immutable, self-contained copy of a TripleStore. Training,
// evaluation and persistence work on snapshots so they never hold the store
// lock for long.
type Snapshot struct {
	Version  uint64          `json:"version"`
	TakenAt  time.Time       `json:"taken_at"`
	Entities []EntityRecord  `json:"entities"`
	Triples  []common.Triple `json:"triples"`
}

// Snapshot copies the full store state, including redirected entities and
// superseded triples.
func (s *TripleStore) Snapshot() *Snapshot {
	snap := &Snapshot{
		Version:  s.version,
		TakenAt:  s.now(),
		Entities: make([]EntityRecord, len(s.entities)),
		Triples:  s.Triples(),
	}
	for i, rec := range s.entities {
		root, _ := s.Find(rec.id)
		snap.Entities[i] = EntityRecord{Entity: s.entityView(rec), RedirectTo: root}
	}
	return snap
}

// Restore rebuilds a store from a snapshot.
func Restore(snap *Snapshot) (*TripleStore, error) {
	s := NewTripleStore()
	if snap == nil {
		return s, nil
	}

	for i, e := range snap.Entities {
		if int(e.ID) != i {
			return nil, fmt.Errorf("snapshot entity %d stored at position %d", e.ID, i)
		}
		if e.RedirectTo < 0 || int(e.RedirectTo) >= len(snap.Entities) {
			return nil, fmt.Errorf("snapshot entity %d redirects to unknown entity %d", e.ID, e.RedirectTo)
		}
		if target := snap.Entities[e.RedirectTo]; target.RedirectTo != target.ID {
			return nil, fmt.Errorf("snapshot entity %d redirects to merged entity %d", e.ID, e.RedirectTo)
		}
		rec := &entityRecord{
			id:        e.ID,
			parent:    e.RedirectTo,
			label:     e.Label,
			typ:       e.Type,
			aliasKeys: make(map[string]struct{}),
			mentions:  e.Mentions,
			createdAt: e.CreatedAt,
			outgoing:  make(map[common.TripleID]struct{}),
			incoming:  make(map[common.TripleID]struct{}),
		}
		s.entities = append(s.entities, rec)
	}
	for i, e := range snap.Entities {
		for _, alias := range e.Aliases {
			s.addAlias(s.entities[i], alias)
		}
	}

	for i, t := range snap.Triples {
		if int(t.ID) != i {
			return nil, fmt.Errorf("snapshot triple %d stored at position %d", t.ID, i)
		}
		if _, err := s.Find(t.Subject); err != nil {
			return nil, fmt.Errorf("snapshot triple %d: %w", t.ID, err)
		}
		if _, err := s.Find(t.Object); err != nil {
			return nil, fmt.Errorf("snapshot triple %d: %w", t.ID, err)
		}
		tc := t
		tc.Provenance = append([]common.Provenance(nil), t.Provenance...)
		s.triples = append(s.triples, &tc)
		s.entities[tc.Subject].outgoing[tc.ID] = struct{}{}
		s.entities[tc.Object].incoming[tc.ID] = struct{}{}
		if !tc.Active() && tc.SupersededBy != common.NoTriple {
			s.dependents[tc.SupersededBy] = append(s.dependents[tc.SupersededBy], tc.ID)
		}
	}

	// Active triples own their key; superseded ones only claim free keys.
	for _, t := range s.triples {
		if t.Active() {
			s.byKey[t.Key()] = t.ID
		}
	}
	for _, t := range s.triples {
		if _, ok := s.byKey[t.Key()]; !ok {
			s.byKey[t.Key()] = t.ID
		}
	}

	s.version = snap.Version
	if err := s.CheckConsistency(); err != nil {
		return nil, err
	}
	return s, nil
}

// LiveEntities returns the live entities of the snapshot ordered by id.
func (snap *Snapshot) LiveEntities() []common.Entity {
	out := make([]common.Entity, 0, len(snap.Entities))
	for _, e := range snap.Entities {
		if e.RedirectTo == e.ID {
			out = append(out, e.Entity)
		}
	}
	return out
}

// ActiveTriples returns the active triples of the snapshot ordered by id.
func (snap *Snapshot) ActiveTriples() []common.Triple {
	out := make([]common.Triple, 0, len(snap.Triples))
	for _, t := range snap.Triples {
		if t.Active() {
			out = append(out, t)
		}
	}
	return out
}

// Predicates returns the distinct predicates used by active triples.
func (snap *Snapshot) Predicates() []string {
	seen := make(map[string]struct{})
	for _, t := range snap.Triples {
		if t.Active() {
			seen[t.Predicate] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
