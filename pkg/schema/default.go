package schema

// Default returns the built-in schema used when no schema file is
// configured. It covers common personal-knowledge relations.
func Default() *Schema {
	s, err := New(map[string]Property{
		"lives_in":   {Functional: true},
		"born_in":    {Functional: true},
		"born_on":    {Functional: true},
		"died_in":    {Functional: true},
		"has_age":    {Functional: true},
		"works_at":   {},
		"studies_at": {},
		"likes":      {},
		"owns":       {},

		"married_to":    {Functional: true, Symmetric: true},
		"similar_to":    {Symmetric: true},
		"related_to":    {Symmetric: true},
		"connected_to":  {Symmetric: true},
		"friend_of":     {Symmetric: true},
		"colleague_of":  {Symmetric: true},
		"sibling_of":    {Symmetric: true},
		"same_as":       {Symmetric: true},
		"equivalent_to": {Symmetric: true},
		"same_type_as":  {Symmetric: true},

		"part_of":     {Transitive: true},
		"located_in":  {Transitive: true},
		"subclass_of": {Transitive: true},
		"is_a":        {Transitive: true},
		"owned_by":    {Transitive: true},
		"member_of":   {},
		"subset_of":   {Transitive: true},

		"does_not_live_in": {Negates: "lives_in"},
		"does_not_work_at": {Negates: "works_at"},
		"dislikes":         {Negates: "likes"},
	}, Composition{First: "member_of", Second: "subset_of", Result: "member_of"})
	if err != nil {
		panic(err)
	}
	return s
}
