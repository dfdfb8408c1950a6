package openai

import (
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// OpenAIEmbedder embeds entity mentions through an OpenAI compatible
// embeddings endpoint.
//
// An OpenAIEmbedder should be created using NewOpenAIEmbedder.
type OpenAIEmbedder struct {
	ai.MetricsTracker

	model      string
	dimensions int
	batchSize  int
	timeoutMin int
	maxRetries int

	reqLock *semaphore.Weighted

	Client *openai.Client
}

// NewOpenAIEmbedderParams defines the configuration for an OpenAIEmbedder.
//
// Model is the embedding model name. BaseURL and APIKey configure the
// endpoint; an empty BaseURL uses the public OpenAI API. Dimensions truncates
// or pads the returned vectors. BatchSize caps the inputs per request and
// MaxConcurrentRequests bounds in-flight requests.
type NewOpenAIEmbedderParams struct {
	Model   string
	BaseURL string
	APIKey  string

	Dimensions            int
	BatchSize             int
	MaxConcurrentRequests int64
	TimeoutMin            int
	MaxRetries            int
}

// NewOpenAIEmbedder creates an embedder for the configured endpoint.
//
// Example:
//
//	embedder := openai.NewOpenAIEmbedder(openai.NewOpenAIEmbedderParams{
//		Model:  "text-embedding-3-small",
//		APIKey: os.Getenv("AI_EMBED_KEY"),
//	})
//	vec, err := embedder.GenerateEmbedding(ctx, []byte("Seattle"))
func NewOpenAIEmbedder(params NewOpenAIEmbedderParams) *OpenAIEmbedder {
	if params.Dimensions <= 0 {
		params.Dimensions = defaultDimensions
	}
	if params.BatchSize <= 0 {
		params.BatchSize = defaultBatchSize
	}
	if params.MaxConcurrentRequests <= 0 {
		params.MaxConcurrentRequests = 4
	}
	if params.TimeoutMin <= 0 {
		params.TimeoutMin = 2
	}
	if params.MaxRetries <= 0 {
		params.MaxRetries = 3
	}

	return &OpenAIEmbedder{
		model:      params.Model,
		dimensions: params.Dimensions,
		batchSize:  params.BatchSize,
		timeoutMin: params.TimeoutMin,
		maxRetries: params.MaxRetries,
		reqLock:    semaphore.NewWeighted(params.MaxConcurrentRequests),
		Client:     newOpenaiClient(params.BaseURL, params.APIKey),
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}
