package common

import "time"

// EntityID identifies an entity record in the triple store arena. IDs are
// handed out in creation order, so a smaller ID always belongs to an older
// entity.
type EntityID int64

// TripleID identifies a triple record in the triple store arena.
type TripleID int64

// NoTriple is the zero reference used for triples that have not been
// superseded.
const NoTriple TripleID = -1

// TripleStatus marks whether a triple takes part in the current graph.
type TripleStatus string

const (
	StatusActive     TripleStatus = "active"
	StatusSuperseded TripleStatus = "superseded"
)

// RawTriple is a single extraction result as delivered by the extraction
// layer. Subject and object are free-text mentions that still need to be
// resolved to entities.
type RawTriple struct {
	Subject      string   `json:"subject" validate:"required" jsonschema_description:"Surface text of the subject mention."`
	SubjectType  string   `json:"subject_type,omitempty" jsonschema_description:"Optional entity type of the subject."`
	Predicate    string   `json:"predicate" validate:"required" jsonschema_description:"Relation name, e.g. lives_in."`
	Object       string   `json:"object" validate:"required" jsonschema_description:"Surface text of the object mention."`
	ObjectType   string   `json:"object_type,omitempty" jsonschema_description:"Optional entity type of the object."`
	Confidence   *float64 `json:"confidence" validate:"required,gte=0,lte=1" jsonschema_description:"Extractor confidence in [0,1]."`
	SourceTurnID string   `json:"source_turn_id" validate:"required" jsonschema_description:"Conversation turn the triple was extracted from."`
	Timestamp    string   `json:"timestamp" validate:"required" jsonschema_description:"ISO-8601 time of the source turn."`
	SourceText   string   `json:"source_text,omitempty" jsonschema_description:"Sentence the triple was extracted from."`
}

// RawTripleBatch is the payload accepted by the HTTP and queue ingestion
// paths.
type RawTripleBatch struct {
	Triples []RawTriple `json:"triples" validate:"required,dive"`
}

// Provenance is one raw mention that contributed to a triple.
type Provenance struct {
	ID           string    `json:"id"`
	SourceTurnID string    `json:"source_turn_id"`
	Confidence   float64   `json:"confidence"`
	Timestamp    time.Time `json:"timestamp"`
	SourceText   string    `json:"source_text,omitempty"`
	Inferred     bool      `json:"inferred,omitempty"`
}

// Entity is the read view of a live entity.
type Entity struct {
	ID        EntityID   `json:"id"`
	Label     string     `json:"label"`
	Type      string     `json:"type,omitempty"`
	Aliases   []string   `json:"aliases"`
	Mentions  int        `json:"mentions"`
	CreatedAt time.Time  `json:"created_at"`
	Outgoing  []TripleID `json:"outgoing"`
	Incoming  []TripleID `json:"incoming"`
}

// TripleKey is the identity of a triple after entity canonicalization.
type TripleKey struct {
	Subject   EntityID `json:"subject"`
	Predicate string   `json:"predicate"`
	Object    EntityID `json:"object"`
}

// Triple is the read view of a triple including its audit trail.
//
// Confidence is the maximum confidence seen across provenance records, or
// the fused confidence once the triple has won a conflict. Timestamp is the
// latest provenance timestamp.
type Triple struct {
	ID           TripleID     `json:"id"`
	Subject      EntityID     `json:"subject"`
	Predicate    string       `json:"predicate"`
	Object       EntityID     `json:"object"`
	Confidence   float64      `json:"confidence"`
	Timestamp    time.Time    `json:"timestamp"`
	Status       TripleStatus `json:"status"`
	SupersededBy TripleID     `json:"superseded_by"`
	Inferred     bool         `json:"inferred,omitempty"`
	Provenance   []Provenance `json:"provenance"`
}

// Key returns the canonical identity of the triple.
func (t Triple) Key() TripleKey {
	return TripleKey{Subject: t.Subject, Predicate: t.Predicate, Object: t.Object}
}

// Active reports whether the triple is part of the current graph.
func (t Triple) Active() bool {
	return t.Status == StatusActive
}

// EvidenceConfidence is the highest confidence reported by any provenance
// record. Unlike Confidence it never carries a fusion bonus, so repeated
// correction passes see the same value.
func (t Triple) EvidenceConfidence() float64 {
	if len(t.Provenance) == 0 {
		return t.Confidence
	}
	best := t.Provenance[0].Confidence
	for _, p := range t.Provenance[1:] {
		best = max(best, p.Confidence)
	}
	return best
}

// SourceTurns returns the distinct source turn ids backing the triple,
// together with the highest confidence each turn contributed.
func (t Triple) SourceTurns() map[string]float64 {
	turns := make(map[string]float64, len(t.Provenance))
	for _, p := range t.Provenance {
		if c, ok := turns[p.SourceTurnID]; !ok || p.Confidence > c {
			turns[p.SourceTurnID] = p.Confidence
		}
	}
	return turns
}

// EntityRef pairs an entity id with its canonical label for output views.
type EntityRef struct {
	ID    EntityID `json:"id"`
	Label string   `json:"label"`
}

// TripleView is the externally visible form of an active triple, with both
// endpoints resolved to canonical entity ids and labels.
type TripleView struct {
	ID         TripleID  `json:"id"`
	Subject    EntityRef `json:"subject"`
	Predicate  string    `json:"predicate"`
	Object     EntityRef `json:"object"`
	Confidence float64   `json:"confidence"`
	Sources    int       `json:"sources"`
	Inferred   bool      `json:"inferred,omitempty"`
}
