package graph

import (
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
)

// MergeEntities redirects the entity from resolves to into the entity into
// resolves to and returns the survivor. Merging is idempotent and
// transitive: once A is merged into B and B into C, all three resolve to C.
//
// Aliases, mention counts and relations move to the survivor. Triples that
// collapse onto an existing canonical key are folded into the existing
// triple so no two active triples share a key.
func (s *TripleStore) MergeEntities(from, into common.EntityID) (common.EntityID, error) {
	src, err := s.Find(from)
	if err != nil {
		return 0, err
	}
	dst, err := s.Find(into)
	if err != nil {
		return 0, err
	}
	if src == dst {
		return dst, nil
	}

	srcRec := s.entities[src]
	dstRec := s.entities[dst]

	srcRec.parent = dst
	for _, alias := range srcRec.aliases {
		s.addAlias(dstRec, alias)
	}
	dstRec.mentions += srcRec.mentions
	if dstRec.typ == "" {
		dstRec.typ = srcRec.typ
	}

	touched := make(map[common.TripleID]struct{}, len(srcRec.outgoing)+len(srcRec.incoming))
	for id := range srcRec.outgoing {
		touched[id] = struct{}{}
	}
	for id := range srcRec.incoming {
		touched[id] = struct{}{}
	}
	srcRec.outgoing = make(map[common.TripleID]struct{})
	srcRec.incoming = make(map[common.TripleID]struct{})

	// Rewrite in id order so folding is deterministic.
	for _, id := range sortedTripleIDs(touched) {
		s.rekey(s.triples[id], src, dst)
	}

	s.version++
	return dst, nil
}

func (s *TripleStore) rekey(t *common.Triple, src, dst common.EntityID) {
	oldKey := t.Key()
	if bound, ok := s.byKey[oldKey]; ok && bound == t.ID {
		delete(s.byKey, oldKey)
	}

	if t.Subject == src {
		t.Subject = dst
	}
	if t.Object == src {
		t.Object = dst
	}
	s.entities[t.Subject].outgoing[t.ID] = struct{}{}
	s.entities[t.Object].incoming[t.ID] = struct{}{}

	newKey := t.Key()
	existingID, collides := s.byKey[newKey]
	if !collides {
		s.byKey[newKey] = t.ID
		return
	}

	existing := s.triples[existingID]
	switch {
	case t.Active() && existing.Active():
		for _, p := range t.Provenance {
			appendProvenance(existing, p)
		}
		existing.Inferred = existing.Inferred && t.Inferred
		s.supersede(t, existing)
		s.pendingDuplicates++
	case t.Active():
		s.byKey[newKey] = t.ID
	}
}

// Redirects returns, for every merged entity, the live entity it resolves to.
func (s *TripleStore) Redirects() map[common.EntityID]common.EntityID {
	out := make(map[common.EntityID]common.EntityID)
	for _, rec := range s.entities {
		if rec.parent != rec.id {
			root, _ := s.Find(rec.id)
			out[rec.id] = root
		}
	}
	return out
}
