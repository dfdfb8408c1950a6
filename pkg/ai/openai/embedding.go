package openai

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/util"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/ai"

	"github.com/openai/openai-go/v3"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDimensions = 1536
	defaultBatchSize  = 256
)

var errNoClient = errors.New("openai embedder has no api key configured")

// GenerateEmbedding embeds a single mention.
func (c *OpenAIEmbedder) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	res, err := c.GenerateEmbeddings(ctx, [][]byte{input})
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

// GenerateEmbeddings embeds inputs in order. Blank inputs become zero
// vectors without a request; the rest is sent in batches of at most
// batchSize, concurrently up to the request limit. Each batch is retried on
// its own.
func (c *OpenAIEmbedder) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	if c.Client == nil {
		return nil, errNoClient
	}

	out := make([][]float32, len(inputs))
	pending := make([]int, 0, len(inputs))
	for i, in := range inputs {
		if strings.TrimSpace(string(in)) == "" {
			out[i] = make([]float32, c.dimensions)
			continue
		}
		pending = append(pending, i)
	}

	eg, ectx := errgroup.WithContext(ctx)
	for batch := range slices.Chunk(pending, c.batchSize) {
		texts := make([]string, len(batch))
		for j, idx := range batch {
			texts[j] = string(inputs[idx])
		}
		eg.Go(func() error {
			vecs, err := util.RetryWithContext(ectx, c.maxRetries, func(ctx context.Context) ([][]float32, error) {
				return c.embed(ctx, texts)
			})
			if err != nil {
				return err
			}
			for j, idx := range batch {
				out[idx] = vecs[j]
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// embed sends one request and returns the vectors in input order, fitted
// to the configured dimensions.
func (c *OpenAIEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	rCtx, cancel := context.WithTimeout(ctx, time.Minute*time.Duration(c.timeoutMin))
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, err
	}
	defer c.reqLock.Release(1)

	start := time.Now()
	response, err := c.Client.Embeddings.New(rCtx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: c.model,
	})
	if err != nil {
		return nil, err
	}
	c.Add(ai.ModelMetrics{
		InputTokens: int(response.Usage.PromptTokens),
		TotalTokens: int(response.Usage.TotalTokens),
		Requests:    1,
		DurationMs:  time.Since(start).Milliseconds(),
	})

	if len(response.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response size mismatch: got %d want %d", len(response.Data), len(texts))
	}
	vecs := make([][]float32, len(texts))
	for _, e := range response.Data {
		if e.Index < 0 || int(e.Index) >= len(texts) || vecs[e.Index] != nil {
			return nil, util.Permanent(fmt.Errorf("embedding index out of range or repeated: %d", e.Index))
		}
		vecs[e.Index] = fitDimensions(e.Embedding, c.dimensions)
	}
	return vecs, nil
}

// fitDimensions truncates or zero-pads values to dim.
func fitDimensions(values []float64, dim int) []float32 {
	vec := make([]float32, dim)
	for i := range min(len(values), dim) {
		vec[i] = float32(values[i])
	}
	return vec
}
