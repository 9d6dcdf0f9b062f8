// Package config loads the policyrag binary's settings from a YAML file,
// POLICYRAG_ environment variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/policyrag/ai"
	"github.com/poiesic/policyrag/chunker"
	"github.com/poiesic/policyrag/core"
	"github.com/spf13/viper"
)

// Embedder backends selectable with ai.embedder.
const (
	EmbedderHash   = "hash"
	EmbedderOpenAI = "openai"
)

type Config struct {
	Data      DataConfig
	Upload    UploadConfig
	Chunking  ChunkingConfig
	Ingestion IngestionConfig
	Retrieval RetrievalConfig
	AI        AIConfig
	Metrics   MetricsConfig
	Log       LogConfig
}

type DataConfig struct {
	Dir      string
	InMemory bool
}

type UploadConfig struct {
	MaxBytes     int64
	AllowedTypes []string
}

type ChunkingConfig struct {
	Size    int
	Overlap int
}

type IngestionConfig struct {
	PoolSize       int
	EmbedBatchSize int
}

type RetrievalConfig struct {
	TopK         int
	BaseLanguage string
}

type AIConfig struct {
	Embedder          string
	EmbeddingHost     string
	EmbeddingModel    string
	GenerationHost    string
	GenerationModel   string
	APIKey            string
	Temperature       float64
	MaxTokens         int
	TopP              float64
	Timeout           time.Duration
	RequestsPerSecond float64
}

type MetricsConfig struct {
	Addr string
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads the configuration. An empty configFile searches policyrag.yaml
// in the standard locations; a missing file there is not an error.
// Each env file is loaded into the process environment first without
// overriding variables that are already set; missing env files are ignored.
func Load(configFile string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", file, err)
		}
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("policyrag")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.policyrag")
		v.AddConfigPath("/etc/policyrag")
	}

	v.SetEnvPrefix("POLICYRAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The key name used by OpenRouter's own tooling
	if config.AI.APIKey == "" {
		config.AI.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	aiDefaults := ai.DefaultConfig()

	v.SetDefault("data.dir", "./data")
	v.SetDefault("data.inMemory", false)

	v.SetDefault("upload.maxBytes", 10<<20)
	v.SetDefault("upload.allowedTypes", []string{
		"text/plain",
		"text/markdown",
		"text/html",
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	})

	v.SetDefault("chunking.size", chunker.DefaultSize)
	v.SetDefault("chunking.overlap", chunker.DefaultOverlap)

	v.SetDefault("ingestion.poolSize", 0)
	v.SetDefault("ingestion.embedBatchSize", 16)

	v.SetDefault("retrieval.topK", 5)
	v.SetDefault("retrieval.baseLanguage", "en")

	v.SetDefault("ai.embedder", EmbedderHash)
	v.SetDefault("ai.embeddingHost", aiDefaults.EmbeddingHost)
	v.SetDefault("ai.embeddingModel", aiDefaults.EmbeddingModel)
	v.SetDefault("ai.generationHost", aiDefaults.GenerationHost)
	v.SetDefault("ai.generationModel", aiDefaults.GenerationModel)
	v.SetDefault("ai.apiKey", "")
	v.SetDefault("ai.temperature", aiDefaults.Temperature)
	v.SetDefault("ai.maxTokens", aiDefaults.MaxTokens)
	v.SetDefault("ai.topP", aiDefaults.TopP)
	v.SetDefault("ai.timeout", aiDefaults.Timeout)
	v.SetDefault("ai.requestsPerSecond", aiDefaults.RequestsPerSecond)

	v.SetDefault("metrics.addr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks values that the components would otherwise reject late.
func (c *Config) Validate() error {
	if !c.Data.InMemory && c.Data.Dir == "" {
		return fmt.Errorf("%w: data.dir is required unless data.inMemory is set", core.ErrValidation)
	}
	if c.Upload.MaxBytes < 1 {
		return fmt.Errorf("%w: upload.maxBytes must be positive", core.ErrValidation)
	}
	if err := chunker.Validate(c.Chunking.Size, c.Chunking.Overlap); err != nil {
		return err
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("%w: retrieval.topK must be positive", core.ErrValidation)
	}
	if !slices.Contains([]string{EmbedderHash, EmbedderOpenAI}, c.AI.Embedder) {
		return fmt.Errorf("%w: unknown ai.embedder %q", core.ErrValidation, c.AI.Embedder)
	}
	return nil
}

// ProviderConfig converts the ai section to an ai.Config.
func (c *Config) ProviderConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithGenerationHost(c.AI.GenerationHost),
		ai.WithGenerationModel(c.AI.GenerationModel),
		ai.WithAPIKey(c.AI.APIKey),
		ai.WithSampling(c.AI.Temperature, c.AI.MaxTokens, c.AI.TopP),
		ai.WithTimeout(c.AI.Timeout),
		ai.WithRequestsPerSecond(c.AI.RequestsPerSecond),
	)
}
