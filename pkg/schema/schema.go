package schema

import (
	"fmt"
	"os"
	"sort"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"

	"gopkg.in/yaml.v3"
)

// Property describes how a predicate behaves during conflict detection and
// inference.
//
// Functional predicates allow at most one object per subject. Symmetric
// predicates hold in both directions, so (a, p, b) and (b, p, a) name the
// same fact. Transitive predicates are chained during inference. Negates
// names the predicate this one contradicts for the same subject and object.
type Property struct {
	Functional bool   `yaml:"functional" json:"functional"`
	Symmetric  bool   `yaml:"symmetric" json:"symmetric"`
	Transitive bool   `yaml:"transitive" json:"transitive"`
	Negates    string `yaml:"negates,omitempty" json:"negates,omitempty"`
}

// Composition infers (a, Result, c) from (a, First, b) and (b, Second, c).
type Composition struct {
	First  string `yaml:"first" json:"first"`
	Second string `yaml:"second" json:"second"`
	Result string `yaml:"result" json:"result"`
}

// Schema is an immutable predicate schema. A value is passed explicitly to
// the components that need it so independent graphs can use different
// schemas at the same time.
type Schema struct {
	predicates   map[string]Property
	negatedBy    map[string][]string
	compositions []Composition
}

type schemaFile struct {
	Predicates   map[string]Property `yaml:"predicates" json:"predicates"`
	Compositions []Composition       `yaml:"compositions" json:"compositions"`
}

// New builds a schema from a predicate map. Predicate names are normalized
// with common.NormalizePredicate.
func New(predicates map[string]Property, compositions ...Composition) (*Schema, error) {
	s := &Schema{
		predicates: make(map[string]Property, len(predicates)),
		negatedBy:  make(map[string][]string),
	}

	for name, prop := range predicates {
		key := common.NormalizePredicate(name)
		if key == "" {
			return nil, fmt.Errorf("predicate schema contains an empty predicate name")
		}
		if _, dup := s.predicates[key]; dup {
			return nil, fmt.Errorf("predicate %q is declared twice", key)
		}
		if prop.Functional && prop.Transitive {
			return nil, fmt.Errorf("predicate %q cannot be both functional and transitive", key)
		}
		prop.Negates = common.NormalizePredicate(prop.Negates)
		if prop.Negates == key {
			return nil, fmt.Errorf("predicate %q cannot negate itself", key)
		}
		s.predicates[key] = prop
	}

	for key, prop := range s.predicates {
		if prop.Negates != "" {
			s.negatedBy[prop.Negates] = append(s.negatedBy[prop.Negates], key)
		}
		if prop.Transitive {
			s.compositions = append(s.compositions, Composition{First: key, Second: key, Result: key})
		}
	}
	for base := range s.negatedBy {
		sort.Strings(s.negatedBy[base])
	}

	for _, c := range compositions {
		c = Composition{
			First:  common.NormalizePredicate(c.First),
			Second: common.NormalizePredicate(c.Second),
			Result: common.NormalizePredicate(c.Result),
		}
		if c.First == "" || c.Second == "" || c.Result == "" {
			return nil, fmt.Errorf("composition %v has an empty predicate", c)
		}
		if prop, ok := s.predicates[c.Result]; ok && prop.Functional {
			return nil, fmt.Errorf("composition result %q cannot be functional", c.Result)
		}
		s.compositions = append(s.compositions, c)
	}

	sort.Slice(s.compositions, func(i, j int) bool {
		a, b := s.compositions[i], s.compositions[j]
		if a.First != b.First {
			return a.First < b.First
		}
		if a.Second != b.Second {
			return a.Second < b.Second
		}
		return a.Result < b.Result
	})

	return s, nil
}

// Parse reads a schema document. YAML and JSON are both accepted.
//
// Example:
//
//	predicates:
//	  lives_in: {functional: true}
//	  married_to: {functional: true, symmetric: true}
//	  does_not_live_in: {negates: lives_in}
//	compositions:
//	  - {first: member_of, second: subset_of, result: member_of}
func Parse(data []byte) (*Schema, error) {
	var f schemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse predicate schema: %w", err)
	}
	return New(f.Predicates, f.Compositions...)
}

// LoadFile reads and parses a schema file.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read predicate schema %s: %w", path, err)
	}
	return Parse(data)
}

// Lookup returns the declared properties of a predicate.
func (s *Schema) Lookup(predicate string) (Property, bool) {
	if s == nil {
		return Property{}, false
	}
	p, ok := s.predicates[common.NormalizePredicate(predicate)]
	return p, ok
}

// Functional reports whether the predicate is declared functional.
func (s *Schema) Functional(predicate string) bool {
	p, _ := s.Lookup(predicate)
	return p.Functional
}

// Symmetric reports whether the predicate is declared symmetric.
func (s *Schema) Symmetric(predicate string) bool {
	p, _ := s.Lookup(predicate)
	return p.Symmetric
}

// NegatedBy returns the predicates that declare themselves the negation of
// base, sorted by name.
func (s *Schema) NegatedBy(base string) []string {
	if s == nil {
		return nil
	}
	return s.negatedBy[common.NormalizePredicate(base)]
}

// Compositions returns every inference rule, including the implicit
// self-composition of each transitive predicate.
func (s *Schema) Compositions() []Composition {
	if s == nil {
		return nil
	}
	out := make([]Composition, len(s.compositions))
	copy(out, s.compositions)
	return out
}

// Size is the number of declared predicates.
func (s *Schema) Size() int {
	if s == nil {
		return 0
	}
	return len(s.predicates)
}

// Predicates returns the declared predicate names in sorted order.
func (s *Schema) Predicates() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.predicates))
	for name := range s.predicates {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Document returns the schema in its file representation.
func (s *Schema) Document() map[string]any {
	preds := make(map[string]Property, s.Size())
	for _, name := range s.Predicates() {
		preds[name] = s.predicates[name]
	}
	comps := make([]Composition, 0, len(s.compositions))
	for _, c := range s.compositions {
		if c.First == c.Second && c.Second == c.Result && s.predicates[c.First].Transitive {
			continue
		}
		comps = append(comps, c)
	}
	return map[string]any{
		"predicates":   preds,
		"compositions": comps,
	}
}
