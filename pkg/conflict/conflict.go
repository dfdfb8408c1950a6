// Package conflict finds triples that cannot all be true at once, and
// triples that state the same fact twice, according to a predicate schema.
package conflict

import (
	"sort"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/schema"
)

// Kind classifies why the triples of a set exclude each other.
type Kind string

const (
	// KindFunctional groups triples of a functional predicate that share an
	// endpoint but name different counterparts.
	KindFunctional Kind = "functional"

	// KindNegation groups a fact with its explicit negation.
	KindNegation Kind = "negation"
)

// ConflictSet is a group of mutually exclusive active triples. At most one
// of them survives fusion.
type ConflictSet struct {
	Kind Kind `json:"kind"`

	// Subject is the shared endpoint. For symmetric predicates this is the
	// endpoint the group was formed around, which may be either side.
	Subject   common.EntityID `json:"subject"`
	Predicate string          `json:"predicate"`

	// Object is set for negation sets only.
	Object  common.EntityID `json:"object,omitempty"`
	Triples []common.Triple `json:"triples"`
}

// DuplicateSet holds active triples with the same canonical identity, which
// for symmetric predicates ignores orientation.
type DuplicateSet struct {
	Key     common.TripleKey `json:"key"`
	Triples []common.Triple  `json:"triples"`
}

// Result is the output of one detection run.
type Result struct {
	Conflicts  []ConflictSet  `json:"conflicts"`
	Duplicates []DuplicateSet `json:"duplicates"`

	// SchemaGaps lists predicates without a schema entry. They are treated
	// as non-exclusive.
	SchemaGaps []string `json:"schema_gaps"`
}

// Detector evaluates triples against one predicate schema.
type Detector struct {
	schema *schema.Schema
}

// NewDetector creates a detector for s. A nil schema declares nothing, so
// every predicate is reported as a gap.
func NewDetector(s *schema.Schema) *Detector {
	return &Detector{schema: s}
}

type endpointKey struct {
	endpoint  common.EntityID
	predicate string
}

type negationKey struct {
	subject common.EntityID
	base    string
	object  common.EntityID
}

// FindConflicts inspects the active triples of the input. Inactive triples
// are ignored. The result is deterministic for a given input set: conflicts
// are ordered by subject, predicate, kind, then the smallest member id.
func (d *Detector) FindConflicts(triples []common.Triple) Result {
	active := make([]common.Triple, 0, len(triples))
	for _, t := range triples {
		if t.Active() {
			active = append(active, t)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	res := Result{
		Conflicts:  []ConflictSet{},
		Duplicates: []DuplicateSet{},
		SchemaGaps: []string{},
	}

	gaps := make(map[string]struct{})
	dupes := make(map[common.TripleKey][]common.Triple)
	var dupeOrder []common.TripleKey
	functional := make(map[endpointKey][]common.Triple)
	var functionalOrder []endpointKey
	negations := make(map[negationKey][]common.Triple)
	var negationOrder []negationKey

	for _, t := range active {
		prop, known := d.schema.Lookup(t.Predicate)
		if !known {
			gaps[t.Predicate] = struct{}{}
		}

		key := d.canonicalKey(t)
		if _, ok := dupes[key]; !ok {
			dupeOrder = append(dupeOrder, key)
		}
		dupes[key] = append(dupes[key], t)

		if prop.Functional {
			endpoints := []common.EntityID{t.Subject}
			if prop.Symmetric && t.Object != t.Subject {
				endpoints = append(endpoints, t.Object)
			}
			for _, e := range endpoints {
				k := endpointKey{endpoint: e, predicate: t.Predicate}
				if _, ok := functional[k]; !ok {
					functionalOrder = append(functionalOrder, k)
				}
				functional[k] = append(functional[k], t)
			}
		}

		base := t.Predicate
		if prop.Negates != "" {
			base = prop.Negates
		}
		if prop.Negates != "" || len(d.schema.NegatedBy(base)) > 0 {
			k := negationKey{subject: t.Subject, base: base, object: t.Object}
			if _, ok := negations[k]; !ok {
				negationOrder = append(negationOrder, k)
			}
			negations[k] = append(negations[k], t)
		}
	}

	for _, key := range dupeOrder {
		if group := dupes[key]; len(group) > 1 {
			res.Duplicates = append(res.Duplicates, DuplicateSet{Key: key, Triples: group})
		}
	}

	for _, k := range functionalOrder {
		group := functional[k]
		if countCounterparts(k.endpoint, group) < 2 {
			continue
		}
		res.Conflicts = append(res.Conflicts, ConflictSet{
			Kind:      KindFunctional,
			Subject:   k.endpoint,
			Predicate: k.predicate,
			Triples:   group,
		})
	}

	for _, k := range negationOrder {
		group := negations[k]
		var hasBase, hasNegation bool
		for _, t := range group {
			if t.Predicate == k.base {
				hasBase = true
			} else {
				hasNegation = true
			}
		}
		if !hasBase || !hasNegation {
			continue
		}
		res.Conflicts = append(res.Conflicts, ConflictSet{
			Kind:      KindNegation,
			Subject:   k.subject,
			Predicate: k.base,
			Object:    k.object,
			Triples:   group,
		})
	}

	sort.SliceStable(res.Conflicts, func(i, j int) bool {
		a, b := res.Conflicts[i], res.Conflicts[j]
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		if a.Predicate != b.Predicate {
			return a.Predicate < b.Predicate
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Triples[0].ID < b.Triples[0].ID
	})

	for p := range gaps {
		res.SchemaGaps = append(res.SchemaGaps, p)
	}
	sort.Strings(res.SchemaGaps)
	return res
}

// canonicalKey returns the identity used for duplicate detection. Symmetric
// predicates store the smaller entity id first.
func (d *Detector) canonicalKey(t common.Triple) common.TripleKey {
	key := t.Key()
	if d.schema.Symmetric(t.Predicate) && key.Object < key.Subject {
		key.Subject, key.Object = key.Object, key.Subject
	}
	return key
}

// countCounterparts counts the distinct entities on the other side of
// endpoint across the group.
func countCounterparts(endpoint common.EntityID, group []common.Triple) int {
	seen := make(map[common.EntityID]struct{}, len(group))
	for _, t := range group {
		other := t.Object
		if t.Subject != endpoint {
			other = t.Subject
		}
		seen[other] = struct{}{}
	}
	return len(seen)
}

// Narrow restricts the set to the members found in current, keeping only
// active ones, and reports whether the remaining triples still conflict.
// Fusion uses it to skip sets that earlier decisions already settled.
func (c ConflictSet) Narrow(current []common.Triple) (ConflictSet, bool) {
	members := make(map[common.TripleID]struct{}, len(c.Triples))
	for _, t := range c.Triples {
		members[t.ID] = struct{}{}
	}
	out := c
	out.Triples = make([]common.Triple, 0, len(c.Triples))
	for _, t := range current {
		if _, ok := members[t.ID]; ok && t.Active() {
			out.Triples = append(out.Triples, t)
		}
	}
	sort.Slice(out.Triples, func(i, j int) bool { return out.Triples[i].ID < out.Triples[j].ID })

	switch c.Kind {
	case KindFunctional:
		return out, countCounterparts(c.Subject, out.Triples) >= 2
	case KindNegation:
		var hasBase, hasNegation bool
		for _, t := range out.Triples {
			if t.Predicate == c.Predicate {
				hasBase = true
			} else {
				hasNegation = true
			}
		}
		return out, hasBase && hasNegation
	}
	return out, false
}
