package ai

import (
	"context"
)

// Embedder turns text into a dense vector. Entity resolution uses it to
// compare mentions with known aliases.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error)
}

// BatchEmbedder is implemented by embedders that can embed several inputs
// in a single request. The output order matches the input order.
type BatchEmbedder interface {
	Embedder
	GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error)
}

// ModelMetrics contains usage metrics from embedding requests.
type ModelMetrics struct {
	InputTokens    int     `json:"input_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	Requests       int     `json:"requests"`
	DurationMs     int64   `json:"duration_ms"`
	TokenPerSecond float32 `json:"tokens_per_second"`
}

// MetricsReporter is implemented by embedders that track usage.
type MetricsReporter interface {
	ResetMetrics()
	GetMetrics() ModelMetrics
}
