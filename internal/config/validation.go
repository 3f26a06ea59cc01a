package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates a model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidDataDir indicates the data directory is empty.
	ErrInvalidDataDir = errors.New("invalid data directory")

	// ErrInvalidChunking indicates a chunking parameter is out of range.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidIndexing indicates an indexing parameter is out of range.
	ErrInvalidIndexing = errors.New("invalid indexing configuration")

	// ErrInvalidSearch indicates a search parameter is out of range.
	ErrInvalidSearch = errors.New("invalid search configuration")

	// ErrInvalidGate indicates a gate parameter is out of range.
	ErrInvalidGate = errors.New("invalid gate configuration")
)

// Validate checks the whole configuration, fail-fast with sentinel errors
// so callers can use errors.Is.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.AI.Provider {
	case ProviderGemini, ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("%w: %q (must be one of: gemini, ollama, openai)",
			ErrInvalidProvider, c.AI.Provider)
	}

	if c.AI.ModelName == "" {
		return fmt.Errorf("%w: model_name is empty", ErrInvalidModelName)
	}
	if c.AI.GateModelName == "" {
		return fmt.Errorf("%w: gate_model_name is empty", ErrInvalidModelName)
	}
	if c.AI.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model is empty", ErrInvalidModelName)
	}

	if c.Storage.DataDir == "" {
		return ErrInvalidDataDir
	}

	if err := c.Chunking.validate(); err != nil {
		return err
	}
	if err := c.Indexing.validate(); err != nil {
		return err
	}
	if err := c.Search.validate(); err != nil {
		return err
	}
	return c.Gate.validate()
}

func (c ChunkingConfig) validate() error {
	if c.MaxCharsPerChunk < 100 {
		return fmt.Errorf("%w: max_chars_per_chunk %d below minimum 100",
			ErrInvalidChunking, c.MaxCharsPerChunk)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk_overlap %d is negative",
			ErrInvalidChunking, c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.MaxCharsPerChunk {
		return fmt.Errorf("%w: chunk_overlap %d must be smaller than max_chars_per_chunk %d",
			ErrInvalidChunking, c.ChunkOverlap, c.MaxCharsPerChunk)
	}
	return nil
}

func (c IndexingConfig) validate() error {
	if c.MaxFileBytes <= 0 {
		return fmt.Errorf("%w: max_file_bytes must be positive, got %d",
			ErrInvalidIndexing, c.MaxFileBytes)
	}
	if len(c.SupportedExtensions) == 0 {
		return fmt.Errorf("%w: supported_extensions is empty", ErrInvalidIndexing)
	}
	if c.ProgressUpdateEvery <= 0 {
		return fmt.Errorf("%w: progress_update_every must be positive, got %d",
			ErrInvalidIndexing, c.ProgressUpdateEvery)
	}
	if c.EmbedRatePerSec <= 0 {
		return fmt.Errorf("%w: embed_rate_per_sec must be positive, got %v",
			ErrInvalidIndexing, c.EmbedRatePerSec)
	}
	if c.WatchQueueSize <= 0 {
		return fmt.Errorf("%w: watch_queue_size must be positive, got %d",
			ErrInvalidIndexing, c.WatchQueueSize)
	}
	return nil
}

func (c SearchConfig) validate() error {
	if c.VectorMaxResults <= 0 || c.KeywordMaxResults <= 0 || c.HybridMaxResults <= 0 {
		return fmt.Errorf("%w: result limits must be positive", ErrInvalidSearch)
	}
	if c.VectorMinScore < 0 || c.VectorMinScore > 1 {
		return fmt.Errorf("%w: vector_min_score %v outside [0, 1]",
			ErrInvalidSearch, c.VectorMinScore)
	}
	if c.RankFusionK <= 0 {
		return fmt.Errorf("%w: rank_fusion_k must be positive, got %d",
			ErrInvalidSearch, c.RankFusionK)
	}
	return nil
}

func (c GateConfig) validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalidGate, c.Timeout)
	}
	if c.HistoryTurns < 0 {
		return fmt.Errorf("%w: history_turns %d is negative", ErrInvalidGate, c.HistoryTurns)
	}
	if c.MaxChars <= 0 {
		return fmt.Errorf("%w: max_chars must be positive, got %d", ErrInvalidGate, c.MaxChars)
	}
	return nil
}
