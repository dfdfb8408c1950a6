package ai

import (
	"testing"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalFlexibleRawTriples(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "valid json",
			input: `{"triples":[{"subject":"A","predicate":"lives_in","object":"Boston","confidence":0.6,"source_turn_id":"t1","timestamp":"2024-01-01T00:00:00Z"}]}`,
		},
		{
			name:  "trailing comma",
			input: `{"triples":[{"subject":"A","predicate":"lives_in","object":"Boston","confidence":0.6,"source_turn_id":"t1","timestamp":"2024-01-01T00:00:00Z",}]}`,
		},
		{
			name:  "unquoted keys",
			input: `{triples:[{subject:"A",predicate:"lives_in",object:"Boston",confidence:0.6,source_turn_id:"t1",timestamp:"2024-01-01T00:00:00Z"}]}`,
		},
		{
			name:  "double encoded",
			input: `"{\"triples\":[{\"subject\":\"A\",\"predicate\":\"lives_in\",\"object\":\"Boston\",\"confidence\":0.6,\"source_turn_id\":\"t1\",\"timestamp\":\"2024-01-01T00:00:00Z\"}]}"`,
		},
		{
			name:  "code fence",
			input: "```json\n{\"triples\":[{\"subject\":\"A\",\"predicate\":\"lives_in\",\"object\":\"Boston\",\"confidence\":0.6,\"source_turn_id\":\"t1\",\"timestamp\":\"2024-01-01T00:00:00Z\"}]}\n```",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var batch common.RawTripleBatch
			require.NoError(t, UnmarshalFlexible(tc.input, &batch))
			require.Len(t, batch.Triples, 1)

			raw := batch.Triples[0]
			assert.Equal(t, "A", raw.Subject)
			assert.Equal(t, "Boston", raw.Object)
			require.NotNil(t, raw.Confidence)
			assert.InDelta(t, 0.6, *raw.Confidence, 1e-9)
		})
	}
}

func TestGenerateSchemaForRawTriple(t *testing.T) {
	schema := GenerateSchema(&common.RawTriple{})
	require.NotNil(t, schema)
	assert.Equal(t, "object", schema.Type)
	_, ok := schema.Properties.Get("subject")
	assert.True(t, ok)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`{"a":1}`))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

func TestMetricsTracker(t *testing.T) {
	var tr MetricsTracker
	tr.Add(ModelMetrics{InputTokens: 10, TotalTokens: 10, Requests: 1, DurationMs: 1000})
	tr.Add(ModelMetrics{InputTokens: 10, TotalTokens: 10, Requests: 1, DurationMs: 1000})

	m := tr.GetMetrics()
	assert.Equal(t, 20, m.TotalTokens)
	assert.Equal(t, 2, m.Requests)
	assert.InDelta(t, 10.0, m.TokenPerSecond, 1e-6)

	tr.ResetMetrics()
	assert.Equal(t, ModelMetrics{}, tr.GetMetrics())
}
