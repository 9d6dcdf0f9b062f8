package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/policyrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	path := writeFile(t, "policyrag.yaml", "{}\n")

	cfg, err := Load(path, noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.Data.Dir)
	assert.False(t, cfg.Data.InMemory)
	assert.Equal(t, int64(10<<20), cfg.Upload.MaxBytes)
	assert.Contains(t, cfg.Upload.AllowedTypes, "application/pdf")
	assert.Equal(t, 1000, cfg.Chunking.Size)
	assert.Equal(t, 200, cfg.Chunking.Overlap)
	assert.Equal(t, 16, cfg.Ingestion.EmbedBatchSize)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, "en", cfg.Retrieval.BaseLanguage)
	assert.Equal(t, EmbedderHash, cfg.AI.Embedder)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.AI.GenerationHost)
	assert.Equal(t, "cerebras/llama3.1-70b", cfg.AI.GenerationModel)
	assert.Equal(t, 0.3, cfg.AI.Temperature)
	assert.Equal(t, 1000, cfg.AI.MaxTokens)
	assert.Equal(t, 0.9, cfg.AI.TopP)
	assert.Equal(t, 60*time.Second, cfg.AI.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "policyrag.yaml", `
data:
  inMemory: true
chunking:
  size: 500
  overlap: 50
retrieval:
  topK: 3
  baseLanguage: fr
ai:
  embedder: openai
  generationModel: openai/gpt-4o-mini
  timeout: 15s
upload:
  allowedTypes:
    - text/plain
`)

	cfg, err := Load(path, noEnvFile(t))
	require.NoError(t, err)

	assert.True(t, cfg.Data.InMemory)
	assert.Equal(t, 500, cfg.Chunking.Size)
	assert.Equal(t, 50, cfg.Chunking.Overlap)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, "fr", cfg.Retrieval.BaseLanguage)
	assert.Equal(t, EmbedderOpenAI, cfg.AI.Embedder)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.AI.GenerationModel)
	assert.Equal(t, 15*time.Second, cfg.AI.Timeout)
	assert.Equal(t, []string{"text/plain"}, cfg.Upload.AllowedTypes)
}

func TestLoad_Environment(t *testing.T) {
	path := writeFile(t, "policyrag.yaml", "retrieval:\n  topK: 3\n")
	t.Setenv("POLICYRAG_RETRIEVAL_TOPK", "9")
	t.Setenv("POLICYRAG_AI_APIKEY", "sk-test")
	t.Setenv("POLICYRAG_LOG_LEVEL", "debug")

	cfg, err := Load(path, noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Retrieval.TopK)
	assert.Equal(t, "sk-test", cfg.AI.APIKey)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_OpenRouterKeyFallback(t *testing.T) {
	path := writeFile(t, "policyrag.yaml", "{}\n")
	t.Setenv("POLICYRAG_AI_APIKEY", "")
	t.Setenv("OPENROUTER_API_KEY", "sk-or-fallback")

	cfg, err := Load(path, noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, "sk-or-fallback", cfg.AI.APIKey)
}

func TestLoad_DotEnv(t *testing.T) {
	const key = "POLICYRAG_METRICS_ADDR"
	require.Empty(t, os.Getenv(key))
	t.Cleanup(func() { os.Unsetenv(key) })

	envFile := writeFile(t, ".env", key+"=127.0.0.1:9464\n")
	path := writeFile(t, "policyrag.yaml", "{}\n")

	cfg, err := Load(path, envFile)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9464", cfg.Metrics.Addr)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), noEnvFile(t))
		assert.Error(t, err)
	})

	t.Run("invalid chunking", func(t *testing.T) {
		path := writeFile(t, "policyrag.yaml", "chunking:\n  size: 100\n  overlap: 100\n")
		_, err := Load(path, noEnvFile(t))
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("unknown embedder", func(t *testing.T) {
		path := writeFile(t, "policyrag.yaml", "ai:\n  embedder: bert\n")
		_, err := Load(path, noEnvFile(t))
		assert.ErrorIs(t, err, core.ErrValidation)
	})
}

func TestProviderConfig(t *testing.T) {
	path := writeFile(t, "policyrag.yaml", "ai:\n  apiKey: sk-abc\n  requestsPerSecond: 2\n")
	cfg, err := Load(path, noEnvFile(t))
	require.NoError(t, err)

	pc := cfg.ProviderConfig()
	assert.Equal(t, "sk-abc", pc.APIKey)
	assert.Equal(t, float64(2), pc.RequestsPerSecond)
	assert.Equal(t, cfg.AI.GenerationModel, pc.GenerationModel)
	assert.Equal(t, 1000, pc.MaxTokens)
	require.NoError(t, pc.Validate())
}
