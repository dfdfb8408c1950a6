package ollama

import (
	"net/http"
	"net/url"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/ai"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// OllamaEmbedder implements ai.BatchEmbedder against a locally hosted or
// proxied Ollama server.
type OllamaEmbedder struct {
	ai.MetricsTracker

	model      string
	dimensions int
	timeoutMin int
	maxRetries int

	reqLock *semaphore.Weighted

	Client *api.Client
}

// NewOllamaEmbedderParams contains configuration options for creating a new
// OllamaEmbedder.
type NewOllamaEmbedderParams struct {
	Model   string
	BaseURL string
	ApiKey  string

	Dimensions            int
	MaxConcurrentRequests int64
	TimeoutMin            int
	MaxRetries            int
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

const defaultBaseURL = "http://localhost:11434"

// NewOllamaEmbedder creates a new Ollama-based embedder. It connects to the
// Ollama server at BaseURL, or a local server on the default port. ApiKey is
// sent as a bearer token for proxied servers.
func NewOllamaEmbedder(
	params NewOllamaEmbedderParams,
) (*OllamaEmbedder, error) {
	if params.BaseURL == "" {
		params.BaseURL = defaultBaseURL
	}
	u, err := url.Parse(params.BaseURL)
	if err != nil {
		return nil, err
	}

	httpClient := http.DefaultClient
	if params.ApiKey != "" {
		httpClient = &http.Client{
			Transport: &headerTransport{
				headers: map[string]string{
					"Authorization": "Bearer " + params.ApiKey,
				},
				rt: http.DefaultTransport,
			},
		}
	}

	if params.Dimensions <= 0 {
		params.Dimensions = defaultDimensions
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

	return &OllamaEmbedder{
		model:      params.Model,
		dimensions: params.Dimensions,
		timeoutMin: params.TimeoutMin,
		maxRetries: params.MaxRetries,
		reqLock:    semaphore.NewWeighted(params.MaxConcurrentRequests),
		Client:     api.NewClient(u, httpClient),
	}, nil
}
