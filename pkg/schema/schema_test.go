package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	doc := `
predicates:
  Lives In: {functional: true}
  married_to: {functional: true, symmetric: true}
  does_not_live_in: {negates: lives in}
  part_of: {transitive: true}
compositions:
  - {first: member_of, second: part_of, result: member_of}
`
	s, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, 4, s.Size())
	assert.True(t, s.Functional("lives_in"))
	assert.True(t, s.Functional("lives in"))
	assert.True(t, s.Symmetric("married_to"))
	assert.False(t, s.Functional("unknown"))
	assert.Equal(t, []string{"does_not_live_in"}, s.NegatedBy("lives_in"))

	comps := s.Compositions()
	require.Len(t, comps, 2)
	assert.Equal(t, Composition{First: "member_of", Second: "part_of", Result: "member_of"}, comps[0])
	assert.Equal(t, Composition{First: "part_of", Second: "part_of", Result: "part_of"}, comps[1])
}

func TestNewRejectsInvalidSchemas(t *testing.T) {
	tests := []struct {
		name  string
		preds map[string]Property
		comps []Composition
	}{
		{
			name:  "functional and transitive",
			preds: map[string]Property{"located_in": {Functional: true, Transitive: true}},
		},
		{
			name:  "self negation",
			preds: map[string]Property{"likes": {Negates: "likes"}},
		},
		{
			name:  "duplicate after normalization",
			preds: map[string]Property{"lives_in": {}, "Lives In": {}},
		},
		{
			name:  "functional composition result",
			preds: map[string]Property{"lives_in": {Functional: true}},
			comps: []Composition{{First: "a", Second: "b", Result: "lives_in"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.preds, tt.comps...)
			assert.Error(t, err)
		})
	}
}

func TestDefault(t *testing.T) {
	s := Default()
	assert.True(t, s.Functional("lives_in"))
	assert.True(t, s.Symmetric("married_to"))
	assert.True(t, s.Functional("married_to"))

	prop, ok := s.Lookup("located_in")
	require.True(t, ok)
	assert.True(t, prop.Transitive)

	var found bool
	for _, c := range s.Compositions() {
		if c.First == "member_of" && c.Second == "subset_of" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestNilSchema(t *testing.T) {
	var s *Schema
	assert.Equal(t, 0, s.Size())
	assert.False(t, s.Functional("lives_in"))
	assert.Nil(t, s.Compositions())
}
