package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantName string
		wantKey  string
		wantPred string
	}{
		{name: "empty", in: "   ", wantName: "", wantKey: "", wantPred: ""},
		{name: "collapse whitespace", in: "  New \n York  ", wantName: "New York", wantKey: "new york", wantPred: "new_york"},
		{name: "already normalized", in: "lives_in", wantName: "lives_in", wantKey: "lives_in", wantPred: "lives_in"},
		{name: "mixed case predicate", in: "Lives In", wantName: "Lives In", wantKey: "lives in", wantPred: "lives_in"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantName, NormalizeName(tt.in))
			assert.Equal(t, tt.wantKey, NormalizeKey(tt.in))
			assert.Equal(t, tt.wantPred, NormalizePredicate(tt.in))
		})
	}
}

func TestTripleSourceTurns(t *testing.T) {
	tr := Triple{Provenance: []Provenance{
		{SourceTurnID: "t1", Confidence: 0.4},
		{SourceTurnID: "t1", Confidence: 0.7},
		{SourceTurnID: "t2", Confidence: 0.5},
	}}

	turns := tr.SourceTurns()
	assert.Len(t, turns, 2)
	assert.InDelta(t, 0.7, turns["t1"], 1e-9)
	assert.InDelta(t, 0.5, turns["t2"], 1e-9)
}

func TestProvenanceID(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	id := ProvenanceID("turn-1", "User", "lives_in", "Boston", at)

	assert.Len(t, id, 32)
	assert.Equal(t, id, ProvenanceID(" turn-1 ", "user", "Lives In", " boston ", at.In(time.FixedZone("CET", 3600))))
	assert.NotEqual(t, id, ProvenanceID("turn-2", "User", "lives_in", "Boston", at))
	assert.NotEqual(t, id, ProvenanceID("turn-1", "User", "lives_in", "Boston", at.Add(time.Second)))
	assert.NotEqual(t, id, ProvenanceID("turn-1", "User", "lives_in", "Seattle", at))
	assert.NotEqual(t, ProvenanceID("a", "bc", "p", "d", at), ProvenanceID("ab", "c", "p", "d", at))
}
