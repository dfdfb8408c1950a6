package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/embedding"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/resolver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "default", cfg.GraphID)
	assert.Equal(t, resolver.DefaultMergeThreshold, cfg.Correction.Resolver.MergeThreshold)
	assert.True(t, cfg.Correction.Resolver.UseContext)
	assert.True(t, cfg.Correction.Fusion.InferTransitive)
	assert.Equal(t, embedding.L2, cfg.Correction.Trainer.Norm)
	assert.Equal(t, "raw_triples_queue", cfg.Queue.RawTriples)
	assert.Equal(t, "correction_queue", cfg.Queue.Correction)
	assert.Equal(t, "graph.corrected", cfg.Queue.Topic)
	assert.Equal(t, 5*time.Minute, cfg.LeaseTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GRAPH_ID", "tenant-a")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("FUSION_INFER_TRANSITIVE", "false")
	t.Setenv("FUSION_CONFIDENCE_MARGIN", "0.3")
	t.Setenv("TRAIN_NORM", "L1")
	t.Setenv("TRAIN_EPOCHS", "12")
	t.Setenv("TRAIN_HOLDOUT", "-1")
	t.Setenv("EVAL_SAMPLE_SIZE", "not-a-number")
	t.Setenv("LEASE_TTL", "90s")

	cfg := Load()

	assert.Equal(t, "tenant-a", cfg.GraphID)
	assert.True(t, cfg.LogJSON)
	assert.False(t, cfg.Correction.Fusion.InferTransitive)
	assert.InDelta(t, 0.3, cfg.Correction.Fusion.ConfidenceMargin, 1e-9)
	assert.Equal(t, embedding.L1, cfg.Correction.Trainer.Norm)
	assert.Equal(t, 12, cfg.Correction.Trainer.Epochs)
	assert.InDelta(t, -1.0, cfg.Correction.Trainer.HoldOut, 1e-9)
	assert.Equal(t, 500, cfg.Correction.Evaluation.SampleSize)
	assert.Equal(t, 90*time.Second, cfg.LeaseTTL)
}

func TestSchemaFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte("predicates:\n  works_at:\n    functional: true\n"), 0o644))

	cfg := Config{SchemaFile: path}
	s, err := cfg.Schema()
	require.NoError(t, err)
	assert.True(t, s.Functional("works_at"))

	cfg.SchemaFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = cfg.Schema()
	assert.Error(t, err)
}

func TestEmbedderAdapters(t *testing.T) {
	e, err := Config{AI: AIConfig{Adapter: AdapterNone}}.Embedder()
	require.NoError(t, err)
	assert.Nil(t, e)

	e, err = Config{AI: AIConfig{Adapter: AdapterOpenAI, Model: "text-embedding-3-small"}}.Embedder()
	require.NoError(t, err)
	assert.NotNil(t, e)

	_, err = Config{AI: AIConfig{Adapter: "bedrock"}}.Embedder()
	assert.Error(t, err)
}

func TestNewServiceWithBadgerCache(t *testing.T) {
	cfg := Load()
	cfg.AI.CachePath = t.TempDir()

	svc, err := cfg.NewService()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), svc.Version())
	require.NoError(t, svc.Close())
}
