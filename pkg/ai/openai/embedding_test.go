package openai

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbeddings answers /embeddings with [len(text), position] per input,
// listed in reverse to check that Index is honoured.
type fakeEmbeddings struct {
	mu      sync.Mutex
	batches [][]string
}

func (f *fakeEmbeddings) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input []string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.batches = append(f.batches, req.Input)
	f.mu.Unlock()

	data := make([]map[string]any, 0, len(req.Input))
	for i := len(req.Input) - 1; i >= 0; i-- {
		data = append(data, map[string]any{
			"object":    "embedding",
			"index":     i,
			"embedding": []float64{float64(len(req.Input[i])), float64(i)},
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"model":  "test-embed",
		"data":   data,
		"usage":  map[string]any{"prompt_tokens": len(req.Input), "total_tokens": len(req.Input)},
	})
}

func newTestEmbedder(t *testing.T, batchSize int) (*OpenAIEmbedder, *fakeEmbeddings) {
	t.Helper()
	fake := &fakeEmbeddings{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	return NewOpenAIEmbedder(NewOpenAIEmbedderParams{
		Model:      "test-embed",
		BaseURL:    srv.URL + "/",
		APIKey:     "test",
		Dimensions: 3,
		BatchSize:  batchSize,
		MaxRetries: 1,
	}), fake
}

func TestGenerateEmbeddingsBatchesAndKeepsOrder(t *testing.T) {
	e, fake := newTestEmbedder(t, 2)

	inputs := [][]byte{[]byte("a"), []byte("  "), []byte("bb"), []byte("ccc"), []byte("dddd")}
	out, err := e.GenerateEmbeddings(t.Context(), inputs)
	require.NoError(t, err)
	require.Len(t, out, len(inputs))

	assert.Equal(t, []float32{0, 0, 0}, out[1])
	assert.Equal(t, float32(1), out[0][0])
	assert.Equal(t, float32(2), out[2][0])
	assert.Equal(t, float32(3), out[3][0])
	assert.Equal(t, float32(4), out[4][0])
	for _, vec := range out {
		assert.Len(t, vec, 3)
	}

	assert.Len(t, fake.batches, 2)
	assert.Equal(t, 2, e.GetMetrics().Requests)
}

func TestGenerateEmbeddingsWithoutKey(t *testing.T) {
	e := NewOpenAIEmbedder(NewOpenAIEmbedderParams{Model: "m"})
	_, err := e.GenerateEmbedding(t.Context(), []byte("x"))
	assert.ErrorIs(t, err, errNoClient)
}

func TestFitDimensions(t *testing.T) {
	assert.Equal(t, []float32{1, 2}, fitDimensions([]float64{1, 2, 3}, 2))
	assert.Equal(t, []float32{1, 0, 0}, fitDimensions([]float64{1}, 3))
}
