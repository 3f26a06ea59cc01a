// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.lodestone/config.yaml)
//  3. Default values
//
// Each subsystem owns an explicit struct (chunking, indexing, search, gate,
// AI, storage) and the whole configuration is validated fail-fast at load.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// AI provider identifiers used in AIConfig.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// DefaultGeminiEmbedderModel is the default Gemini embedder model.
const DefaultGeminiEmbedderModel = "gemini-embedding-001"

// Config stores application configuration, one nested struct per subsystem.
type Config struct {
	AI       AIConfig       `mapstructure:"ai"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Chunking ChunkingConfig `mapstructure:"chunking"`
	Indexing IndexingConfig `mapstructure:"indexing"`
	Search   SearchConfig   `mapstructure:"search"`
	Gate     GateConfig     `mapstructure:"gate"`
}

// AIConfig selects the model provider and the models used for embedding,
// chat, and the retrieval gate.
type AIConfig struct {
	Provider      string `mapstructure:"provider"`
	ModelName     string `mapstructure:"model_name"`
	GateModelName string `mapstructure:"gate_model_name"`
	EmbedderModel string `mapstructure:"embedder_model"`
	OllamaHost    string `mapstructure:"ollama_host"`

	// EmbeddingDimensions fixes the embedder's output dimensionality.
	// The vector store requires a stable dimension for the lifetime of
	// an index directory. Applies to providers that support it (Gemini).
	EmbeddingDimensions int `mapstructure:"embedding_dimensions"`
}

// StorageConfig locates on-disk state. Each project gets its own index
// directory under DataDir/index; file-hash tracking lives in one shared
// SQLite database under DataDir.
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// IndexDir returns the index directory for a project.
func (s StorageConfig) IndexDir(projectID string) string {
	return filepath.Join(s.DataDir, "index", projectID)
}

// TrackingDBPath returns the path of the file-hash tracking database.
func (s StorageConfig) TrackingDBPath() string {
	return filepath.Join(s.DataDir, "tracking.db")
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".lodestone")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v, configDir)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper, configDir string) {
	// AI defaults
	v.SetDefault("ai.provider", ProviderGemini)
	v.SetDefault("ai.model_name", "gemini-2.5-flash")
	v.SetDefault("ai.gate_model_name", "gemini-2.5-flash-lite")
	v.SetDefault("ai.embedder_model", DefaultGeminiEmbedderModel)
	v.SetDefault("ai.ollama_host", "http://localhost:11434")
	v.SetDefault("ai.embedding_dimensions", 768)

	// Storage defaults
	v.SetDefault("storage.data_dir", configDir)

	// Chunking defaults
	v.SetDefault("chunking.max_chars_per_chunk", DefaultMaxCharsPerChunk)
	v.SetDefault("chunking.chunk_overlap", DefaultChunkOverlap)
	v.SetDefault("chunking.structured_extensions", defaultStructuredExtensions)

	// Indexing defaults
	v.SetDefault("indexing.max_file_bytes", DefaultMaxFileBytes)
	v.SetDefault("indexing.supported_extensions", defaultSupportedExtensions)
	v.SetDefault("indexing.binary_extensions", defaultBinaryExtensions)
	v.SetDefault("indexing.exclude_file_names", defaultExcludeFileNames)
	v.SetDefault("indexing.common_excludes", defaultCommonExcludes)
	v.SetDefault("indexing.project_excludes", defaultProjectExcludes)
	v.SetDefault("indexing.progress_update_every", DefaultProgressUpdateEvery)
	v.SetDefault("indexing.embed_rate_per_sec", DefaultEmbedRatePerSec)
	v.SetDefault("indexing.watch_queue_size", DefaultWatchQueueSize)

	// Search defaults
	v.SetDefault("search.vector_max_results", DefaultVectorMaxResults)
	v.SetDefault("search.vector_min_score", 0.0)
	v.SetDefault("search.keyword_max_results", DefaultKeywordMaxResults)
	v.SetDefault("search.hybrid_max_results", DefaultHybridMaxResults)
	v.SetDefault("search.rank_fusion_k", DefaultRankFusionK)

	// Gate defaults
	v.SetDefault("gate.timeout", 5*time.Second)
	v.SetDefault("gate.history_turns", DefaultGateHistoryTurns)
	v.SetDefault("gate.max_chars", DefaultGateMaxChars)
}

// bindEnvVariables binds environment overrides explicitly.
//
// NOTE: GEMINI_API_KEY and OPENAI_API_KEY are read directly by the Genkit
// provider plugins, not via viper.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("ai.provider", "LODESTONE_PROVIDER")
	mustBind("ai.model_name", "LODESTONE_MODEL_NAME")
	mustBind("ai.gate_model_name", "LODESTONE_GATE_MODEL_NAME")
	mustBind("ai.embedder_model", "LODESTONE_EMBEDDER_MODEL")
	mustBind("ai.ollama_host", "LODESTONE_OLLAMA_HOST")
	mustBind("ai.embedding_dimensions", "LODESTONE_EMBEDDING_DIMENSIONS")
	mustBind("storage.data_dir", "LODESTONE_DATA_DIR")
}
