// Package config assembles the runtime configuration of the binaries from
// the environment. Every value has a default so a bare environment yields a
// working in-memory setup.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/util"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/ai"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/ai/cache"
	oai "github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/ai/openai"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/correction"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/embedding"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/evaluation"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/fusion"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger/console"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/resolver"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/schema"
)

const (
	AdapterNone   = "none"
	AdapterOpenAI = "openai"
	AdapterOllama = "ollama"
)

type AIConfig struct {
	Adapter     string
	Model       string
	BaseURL     string
	APIKey      string
	Dimensions  int
	ParallelReq int64
	BatchSize   int

	CachePath string
	CacheTTL  time.Duration
}

type QueueConfig struct {
	RawTriples  string
	Correction  string
	Exchange    string
	Topic       string
	MaxRetries  int
	AutoCorrect bool
}

type Config struct {
	GraphID    string
	Debug      bool
	LogJSON    bool
	SchemaFile string

	Correction correction.Params
	AI         AIConfig
	Queue      QueueConfig

	// DatabaseURL enables snapshot persistence when set.
	DatabaseURL      string
	MigrationsSource string
	LeaseTTL         time.Duration

	HTTPAddr string

	Bucket       string
	ExportPrefix string
}

// Load reads the configuration from the environment. Call util.LoadEnv
// first to pick up a .env file.
func Load() Config {
	fusionParams := fusion.DefaultParams()
	fusionParams.ConfidenceMargin = util.GetEnvFloat("FUSION_CONFIDENCE_MARGIN", fusionParams.ConfidenceMargin)
	fusionParams.CorroborationBonus = util.GetEnvFloat("FUSION_CORROBORATION_BONUS", fusionParams.CorroborationBonus)
	fusionParams.InferTransitive = util.GetEnvBool("FUSION_INFER_TRANSITIVE", fusionParams.InferTransitive)
	fusionParams.InferenceRounds = util.GetEnvInt("FUSION_INFERENCE_ROUNDS", fusionParams.InferenceRounds)

	return Config{
		GraphID:    util.GetEnvString("GRAPH_ID", "default"),
		Debug:      util.GetEnvBool("DEBUG", false),
		LogJSON:    strings.EqualFold(util.GetEnv("LOG_FORMAT"), "json"),
		SchemaFile: util.GetEnv("SCHEMA_FILE"),

		Correction: correction.Params{
			Resolver: resolver.Params{
				MergeThreshold: util.GetEnvFloat("RESOLVER_MERGE_THRESHOLD", resolver.DefaultMergeThreshold),
				FuzzyThreshold: util.GetEnvFloat("RESOLVER_FUZZY_THRESHOLD", resolver.DefaultFuzzyThreshold),
				UseContext:     util.GetEnvBool("RESOLVER_USE_CONTEXT", true),
				Parallelism:    util.GetEnvInt("RESOLVER_PARALLELISM", 0),
				BatchSize:      util.GetEnvInt("RESOLVER_BATCH_SIZE", 0),
			},
			Fusion: fusionParams,
			Trainer: embedding.Params{
				Dimensions:   util.GetEnvInt("TRAIN_DIMENSIONS", embedding.DefaultDimensions),
				Epochs:       util.GetEnvInt("TRAIN_EPOCHS", embedding.DefaultEpochs),
				LearningRate: util.GetEnvFloat("TRAIN_LEARNING_RATE", embedding.DefaultLearningRate),
				Margin:       util.GetEnvFloat("TRAIN_MARGIN", embedding.DefaultMargin),
				Norm:         embedding.Norm(strings.ToLower(util.GetEnvString("TRAIN_NORM", string(embedding.L2)))),
				Patience:     util.GetEnvInt("TRAIN_PATIENCE", embedding.DefaultPatience),
				MinTriples:   util.GetEnvInt("TRAIN_MIN_TRIPLES", embedding.DefaultMinTriples),
				Seed:         uint64(util.GetEnvInt("TRAIN_SEED", embedding.DefaultSeed)),
				HoldOut:      util.GetEnvFloat("TRAIN_HOLDOUT", embedding.DefaultHoldOut),
			},
			Evaluation: evaluation.Params{
				SampleSize:  util.GetEnvInt("EVAL_SAMPLE_SIZE", evaluation.DefaultSampleSize),
				Seed:        uint64(util.GetEnvInt("EVAL_SEED", evaluation.DefaultSeed)),
				Parallelism: util.GetEnvInt("EVAL_PARALLELISM", 0),
			},
		},

		AI: AIConfig{
			Adapter:     strings.ToLower(util.GetEnvString("AI_ADAPTER", AdapterNone)),
			Model:       util.GetEnv("AI_EMBED_MODEL"),
			BaseURL:     util.GetEnv("AI_EMBED_URL"),
			APIKey:      util.GetEnv("AI_EMBED_KEY"),
			Dimensions:  util.GetEnvInt("AI_EMBED_DIMENSIONS", 0),
			ParallelReq: int64(util.GetEnvInt("AI_PARALLEL_REQ", 4)),
			BatchSize:   util.GetEnvInt("AI_EMBED_BATCH_SIZE", 0),
			CachePath:   util.GetEnv("EMBED_CACHE_PATH"),
			CacheTTL:    util.GetEnvDuration("EMBED_CACHE_TTL", 0),
		},

		Queue: QueueConfig{
			RawTriples:  util.GetEnvString("QUEUE_RAW_TRIPLES", "raw_triples_queue"),
			Correction:  util.GetEnvString("QUEUE_CORRECTION", "correction_queue"),
			Exchange:    util.GetEnvString("QUEUE_EXCHANGE", "pubsub_exchange"),
			Topic:       util.GetEnvString("QUEUE_CORRECTED_TOPIC", "graph.corrected"),
			MaxRetries:  util.GetEnvInt("QUEUE_MAX_RETRIES", 10),
			AutoCorrect: util.GetEnvBool("QUEUE_AUTO_CORRECT", false),
		},

		DatabaseURL:      util.GetEnv("DATABASE_URL"),
		MigrationsSource: util.GetEnv("MIGRATIONS_SOURCE"),
		LeaseTTL:         util.GetEnvDuration("LEASE_TTL", 5*time.Minute),

		HTTPAddr: util.GetEnvString("HTTP_ADDR", ":8080"),

		Bucket:       util.GetEnvString("AWS_BUCKET", "kgcorrect"),
		ExportPrefix: util.GetEnvString("EXPORT_PREFIX", "exports"),
	}
}

// InitLogger installs the console logger.
func (c Config) InitLogger(prefix string) {
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  c.Debug,
		JSON:   c.LogJSON,
		Prefix: prefix,
	}))
}

// Schema loads SchemaFile, or the built-in schema when it is empty.
func (c Config) Schema() (*schema.Schema, error) {
	if c.SchemaFile == "" {
		return schema.Default(), nil
	}
	s, err := schema.LoadFile(c.SchemaFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load predicate schema: %w", err)
	}
	return s, nil
}

// Embedder builds the configured embedding client. The none adapter
// returns nil and the resolver falls back to string similarity.
func (c Config) Embedder() (ai.Embedder, error) {
	switch c.AI.Adapter {
	case "", AdapterNone:
		return nil, nil
	case AdapterOllama:
		e, err := oai.NewOllamaEmbedder(oai.NewOllamaEmbedderParams{
			Model:                 c.AI.Model,
			BaseURL:               c.AI.BaseURL,
			ApiKey:                c.AI.APIKey,
			Dimensions:            c.AI.Dimensions,
			MaxConcurrentRequests: c.AI.ParallelReq,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create Ollama embedder: %w", err)
		}
		return e, nil
	case AdapterOpenAI:
		return gai.NewOpenAIEmbedder(gai.NewOpenAIEmbedderParams{
			Model:                 c.AI.Model,
			BaseURL:               c.AI.BaseURL,
			APIKey:                c.AI.APIKey,
			Dimensions:            c.AI.Dimensions,
			MaxConcurrentRequests: c.AI.ParallelReq,
			BatchSize:             c.AI.BatchSize,
		}), nil
	default:
		return nil, fmt.Errorf("unknown AI_ADAPTER %q", c.AI.Adapter)
	}
}

// VectorCache opens the Badger cache at CachePath, or an in-memory cache.
func (c Config) VectorCache() (cache.VectorCache, error) {
	if c.AI.CachePath == "" {
		return cache.NewMemoryCache(), nil
	}
	prefix := c.AI.Adapter + ":" + c.AI.Model
	return cache.NewBadgerCache(c.AI.CachePath, prefix, c.AI.CacheTTL)
}

// NewService wires a correction service from the configuration. The
// caller owns the returned service and must Close it.
func (c Config) NewService() (*correction.Service, error) {
	s, err := c.Schema()
	if err != nil {
		return nil, err
	}
	embedder, err := c.Embedder()
	if err != nil {
		return nil, err
	}
	vectors, err := c.VectorCache()
	if err != nil {
		return nil, err
	}
	return correction.NewService(s, embedder, vectors, c.Correction), nil
}
