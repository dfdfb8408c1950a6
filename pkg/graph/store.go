package graph

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
)

type entityRecord struct {
	id        common.EntityID
	parent    common.EntityID
	label     string
	typ       string
	aliases   []string
	aliasKeys map[string]struct{}
	mentions  int
	createdAt time.Time
	outgoing  map[common.TripleID]struct{}
	incoming  map[common.TripleID]struct{}
}

// TripleStore is the in-memory canonical graph. Entities live in an arena
// indexed by EntityID; a merged entity keeps its record and points at the
// survivor through its parent link, which Find resolves with path
// compression.
//
// A TripleStore is not safe for concurrent use. The correction service
// serializes all access through a single store-wide lock.
type TripleStore struct {
	entities []*entityRecord
	triples  []*common.Triple
	byKey    map[common.TripleKey]common.TripleID
	aliases  map[string]common.EntityID

	// dependents maps a winning triple to the triples it superseded.
	dependents map[common.TripleID][]common.TripleID

	version           uint64
	pendingDuplicates int
	now               func() time.Time
}

// NewTripleStore creates an empty store.
func NewTripleStore() *TripleStore {
	return &TripleStore{
		byKey:      make(map[common.TripleKey]common.TripleID),
		aliases:    make(map[string]common.EntityID),
		dependents: make(map[common.TripleID][]common.TripleID),
		now:        time.Now,
	}
}

// Version increases whenever the graph changes materially: a new triple, an
// entity merge, a supersede or a reactivation.
func (s *TripleStore) Version() uint64 {
	return s.version
}

// CreateEntity adds a new live entity whose label is also its first alias.
func (s *TripleStore) CreateEntity(label, typ string) common.EntityID {
	label = common.NormalizeName(label)
	id := common.EntityID(len(s.entities))
	rec := &entityRecord{
		id:        id,
		parent:    id,
		label:     label,
		typ:       common.NormalizeName(typ),
		aliasKeys: make(map[string]struct{}),
		createdAt: s.now(),
		outgoing:  make(map[common.TripleID]struct{}),
		incoming:  make(map[common.TripleID]struct{}),
	}
	s.entities = append(s.entities, rec)
	s.addAlias(rec, label)
	s.version++
	return id
}

// Find returns the live entity an id resolves to, compressing the redirect
// path on the way.
func (s *TripleStore) Find(id common.EntityID) (common.EntityID, error) {
	if id < 0 || int(id) >= len(s.entities) {
		return 0, fmt.Errorf("%w: %d", common.ErrUnknownEntity, id)
	}
	root := id
	for s.entities[root].parent != root {
		root = s.entities[root].parent
	}
	for id != root {
		next := s.entities[id].parent
		s.entities[id].parent = root
		id = next
	}
	return root, nil
}

// IsLive reports whether id names a non-redirected entity.
func (s *TripleStore) IsLive(id common.EntityID) bool {
	if id < 0 || int(id) >= len(s.entities) {
		return false
	}
	return s.entities[id].parent == id
}

// LookupAlias resolves a mention by exact, case-insensitive alias match.
func (s *TripleStore) LookupAlias(mention string) (common.EntityID, bool) {
	id, ok := s.aliases[common.NormalizeKey(mention)]
	if !ok {
		return 0, false
	}
	root, err := s.Find(id)
	if err != nil {
		return 0, false
	}
	return root, true
}

// AddAlias records mention as an alias of the entity id resolves to. Alias
// sets only grow. It reports whether the alias was new for that entity.
func (s *TripleStore) AddAlias(id common.EntityID, mention string) (bool, error) {
	root, err := s.Find(id)
	if err != nil {
		return false, err
	}
	return s.addAlias(s.entities[root], common.NormalizeName(mention)), nil
}

func (s *TripleStore) addAlias(rec *entityRecord, alias string) bool {
	key := common.NormalizeKey(alias)
	if key == "" {
		return false
	}
	if _, ok := rec.aliasKeys[key]; ok {
		return false
	}
	rec.aliasKeys[key] = struct{}{}
	rec.aliases = append(rec.aliases, alias)
	if _, taken := s.aliases[key]; !taken {
		s.aliases[key] = rec.id
	}
	return true
}

// RecordMention counts one more mention for the entity id resolves to.
func (s *TripleStore) RecordMention(id common.EntityID) error {
	root, err := s.Find(id)
	if err != nil {
		return err
	}
	s.entities[root].mentions++
	return nil
}

// SetEntityType fills in the type of an entity that has none yet.
func (s *TripleStore) SetEntityType(id common.EntityID, typ string) error {
	root, err := s.Find(id)
	if err != nil {
		return err
	}
	rec := s.entities[root]
	if rec.typ == "" {
		rec.typ = common.NormalizeName(typ)
	}
	return nil
}

// Entity returns the canonical view of the entity id resolves to.
func (s *TripleStore) Entity(id common.EntityID) (common.Entity, error) {
	root, err := s.Find(id)
	if err != nil {
		return common.Entity{}, err
	}
	return s.entityView(s.entities[root]), nil
}

// Entities returns all live entities ordered by id.
func (s *TripleStore) Entities() []common.Entity {
	out := make([]common.Entity, 0, len(s.entities))
	for _, rec := range s.entities {
		if rec.parent == rec.id {
			out = append(out, s.entityView(rec))
		}
	}
	return out
}

// RangeEntities calls fn for every live entity in id order until fn returns
// false. The alias slice is shared with the store and must not be modified.
func (s *TripleStore) RangeEntities(fn func(id common.EntityID, typ string, mentions int, aliases []string) bool) {
	for _, rec := range s.entities {
		if rec.parent != rec.id {
			continue
		}
		if !fn(rec.id, rec.typ, rec.mentions, rec.aliases) {
			return
		}
	}
}

func (s *TripleStore) entityView(rec *entityRecord) common.Entity {
	aliases := make([]string, len(rec.aliases))
	copy(aliases, rec.aliases)
	return common.Entity{
		ID:        rec.id,
		Label:     rec.label,
		Type:      rec.typ,
		Aliases:   aliases,
		Mentions:  rec.mentions,
		CreatedAt: rec.createdAt,
		Outgoing:  sortedTripleIDs(rec.outgoing),
		Incoming:  sortedTripleIDs(rec.incoming),
	}
}

// AddTriple records one raw mention of (subject, predicate, object). A new
// canonical key creates a triple; a known key only gains provenance. New
// provenance reactivates a superseded triple so the next correction pass can
// reconsider it.
func (s *TripleStore) AddTriple(
	subject common.EntityID,
	predicate string,
	object common.EntityID,
	prov common.Provenance,
) (common.TripleID, bool, error) {
	subj, err := s.Find(subject)
	if err != nil {
		return 0, false, err
	}
	obj, err := s.Find(object)
	if err != nil {
		return 0, false, err
	}
	predicate = common.NormalizePredicate(predicate)
	if predicate == "" {
		return 0, false, fmt.Errorf("predicate is empty")
	}
	if prov.Confidence < 0 || prov.Confidence > 1 {
		return 0, false, fmt.Errorf("confidence %v out of range [0,1]", prov.Confidence)
	}
	if prov.ID == "" {
		prov.ID = common.ProvenanceID(prov.SourceTurnID,
			strconv.FormatInt(int64(subj), 10), predicate, strconv.FormatInt(int64(obj), 10), prov.Timestamp)
	}

	key := common.TripleKey{Subject: subj, Predicate: predicate, Object: obj}
	if id, ok := s.byKey[key]; ok {
		t := s.triples[id]
		// A provenance id seen before is a redelivery and carries no new
		// evidence.
		if !appendProvenance(t, prov) {
			return id, false, nil
		}
		t.Inferred = t.Inferred && prov.Inferred
		if !t.Active() {
			s.reactivate(t)
		}
		s.pendingDuplicates++
		return id, false, nil
	}

	id := common.TripleID(len(s.triples))
	t := &common.Triple{
		ID:           id,
		Subject:      subj,
		Predicate:    predicate,
		Object:       obj,
		Confidence:   prov.Confidence,
		Timestamp:    prov.Timestamp,
		Status:       common.StatusActive,
		SupersededBy: common.NoTriple,
		Inferred:     prov.Inferred,
		Provenance:   []common.Provenance{prov},
	}
	s.triples = append(s.triples, t)
	s.byKey[key] = id
	s.entities[subj].outgoing[id] = struct{}{}
	s.entities[obj].incoming[id] = struct{}{}
	s.version++
	return id, true, nil
}

func appendProvenance(t *common.Triple, prov common.Provenance) bool {
	for _, p := range t.Provenance {
		if p.ID == prov.ID {
			return false
		}
	}
	t.Provenance = append(t.Provenance, prov)
	if prov.Confidence > t.Confidence {
		t.Confidence = prov.Confidence
	}
	if prov.Timestamp.After(t.Timestamp) {
		t.Timestamp = prov.Timestamp
	}
	return true
}

func (s *TripleStore) reactivate(t *common.Triple) {
	if winner := t.SupersededBy; winner != common.NoTriple {
		s.dependents[winner] = removeTripleID(s.dependents[winner], t.ID)
	}
	t.Status = common.StatusActive
	t.SupersededBy = common.NoTriple
	s.version++
}

// TakeIngestDuplicates returns how many raw mentions were folded into
// existing triples since the last call, and resets the counter.
func (s *TripleStore) TakeIngestDuplicates() int {
	n := s.pendingDuplicates
	s.pendingDuplicates = 0
	return n
}

// Supersede marks loser as replaced by winner. Triples previously replaced
// by loser are re-pointed at winner so every audit reference stays on an
// active triple.
func (s *TripleStore) Supersede(loser, winner common.TripleID) error {
	l, err := s.triple(loser)
	if err != nil {
		return err
	}
	w, err := s.triple(winner)
	if err != nil {
		return err
	}
	if loser == winner {
		return fmt.Errorf("triple %d cannot supersede itself", loser)
	}
	if !w.Active() {
		return &common.ConsistencyFault{TripleID: winner, Reason: "winning triple is not active"}
	}
	if !l.Active() {
		return nil
	}
	s.supersede(l, w)
	return nil
}

func (s *TripleStore) supersede(l, w *common.Triple) {
	l.Status = common.StatusSuperseded
	l.SupersededBy = w.ID
	s.dependents[w.ID] = append(s.dependents[w.ID], l.ID)
	for _, dep := range s.dependents[l.ID] {
		s.triples[dep].SupersededBy = w.ID
		s.dependents[w.ID] = append(s.dependents[w.ID], dep)
	}
	delete(s.dependents, l.ID)
	s.version++
}

// FoldDuplicate moves the provenance of dup into keep and supersedes dup.
func (s *TripleStore) FoldDuplicate(keep, dup common.TripleID) error {
	k, err := s.triple(keep)
	if err != nil {
		return err
	}
	d, err := s.triple(dup)
	if err != nil {
		return err
	}
	if keep == dup {
		return nil
	}
	if !k.Active() {
		return &common.ConsistencyFault{TripleID: keep, Reason: "duplicate target is not active"}
	}
	for _, p := range d.Provenance {
		appendProvenance(k, p)
	}
	k.Inferred = k.Inferred && d.Inferred
	if d.Active() {
		s.supersede(d, k)
	}
	return nil
}

// SetConfidence overwrites the confidence of a triple, clamped to [0,1].
func (s *TripleStore) SetConfidence(id common.TripleID, confidence float64) error {
	t, err := s.triple(id)
	if err != nil {
		return err
	}
	t.Confidence = min(max(confidence, 0), 1)
	return nil
}

// Lookup returns the triple currently bound to a canonical key.
func (s *TripleStore) Lookup(subject common.EntityID, predicate string, object common.EntityID) (common.Triple, bool) {
	subj, err := s.Find(subject)
	if err != nil {
		return common.Triple{}, false
	}
	obj, err := s.Find(object)
	if err != nil {
		return common.Triple{}, false
	}
	id, ok := s.byKey[common.TripleKey{Subject: subj, Predicate: common.NormalizePredicate(predicate), Object: obj}]
	if !ok {
		return common.Triple{}, false
	}
	return copyTriple(s.triples[id]), true
}

// Triple returns a copy of a triple, active or not.
func (s *TripleStore) Triple(id common.TripleID) (common.Triple, error) {
	t, err := s.triple(id)
	if err != nil {
		return common.Triple{}, err
	}
	return copyTriple(t), nil
}

func (s *TripleStore) triple(id common.TripleID) (*common.Triple, error) {
	if id < 0 || int(id) >= len(s.triples) {
		return nil, fmt.Errorf("triple %d: %w", id, common.ErrNotFound)
	}
	return s.triples[id], nil
}

// Triples returns copies of every triple ordered by id.
func (s *TripleStore) Triples() []common.Triple {
	out := make([]common.Triple, len(s.triples))
	for i, t := range s.triples {
		out[i] = copyTriple(t)
	}
	return out
}

// ActiveTriples returns copies of the active triples ordered by id.
func (s *TripleStore) ActiveTriples() []common.Triple {
	out := make([]common.Triple, 0, len(s.triples))
	for _, t := range s.triples {
		if t.Active() {
			out = append(out, copyTriple(t))
		}
	}
	return out
}

// ActiveViews returns the active triples with canonical entity labels.
func (s *TripleStore) ActiveViews() []common.TripleView {
	out := make([]common.TripleView, 0, len(s.triples))
	for _, t := range s.triples {
		if !t.Active() {
			continue
		}
		out = append(out, s.view(t))
	}
	return out
}

func (s *TripleStore) view(t *common.Triple) common.TripleView {
	return common.TripleView{
		ID:         t.ID,
		Subject:    common.EntityRef{ID: t.Subject, Label: s.entities[t.Subject].label},
		Predicate:  t.Predicate,
		Object:     common.EntityRef{ID: t.Object, Label: s.entities[t.Object].label},
		Confidence: t.Confidence,
		Sources:    len(t.SourceTurns()),
		Inferred:   t.Inferred,
	}
}

// CheckConsistency verifies the store invariants: active triples reference
// live entities, and every superseded triple points at an active winner.
func (s *TripleStore) CheckConsistency() error {
	for _, t := range s.triples {
		if t.Active() {
			if !s.IsLive(t.Subject) {
				return &common.ConsistencyFault{TripleID: t.ID, Reason: fmt.Sprintf("subject %d is redirected", t.Subject)}
			}
			if !s.IsLive(t.Object) {
				return &common.ConsistencyFault{TripleID: t.ID, Reason: fmt.Sprintf("object %d is redirected", t.Object)}
			}
			continue
		}
		if t.SupersededBy == common.NoTriple {
			return &common.ConsistencyFault{TripleID: t.ID, Reason: "superseded triple has no winner"}
		}
		w, err := s.triple(t.SupersededBy)
		if err != nil || !w.Active() {
			return &common.ConsistencyFault{TripleID: t.ID, Reason: fmt.Sprintf("winner %d is not active", t.SupersededBy)}
		}
	}
	return nil
}

func copyTriple(t *common.Triple) common.Triple {
	out := *t
	out.Provenance = make([]common.Provenance, len(t.Provenance))
	copy(out.Provenance, t.Provenance)
	return out
}

func sortedTripleIDs(set map[common.TripleID]struct{}) []common.TripleID {
	out := make([]common.TripleID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func removeTripleID(ids []common.TripleID, id common.TripleID) []common.TripleID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
