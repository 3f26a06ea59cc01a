// Package app is the composition root: it wires configuration, the
// model provider, the tracking database, the per-project indexer
// registry, and the retrieval pipeline, and owns their teardown.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/lodestone-ai/lodestone/internal/ai"
	"github.com/lodestone-ai/lodestone/internal/chunk"
	"github.com/lodestone-ai/lodestone/internal/config"
	"github.com/lodestone-ai/lodestone/internal/database"
	"github.com/lodestone-ai/lodestone/internal/index"
	"github.com/lodestone-ai/lodestone/internal/retrieve"
	"github.com/lodestone-ai/lodestone/internal/state"
	"github.com/lodestone-ai/lodestone/internal/store"
)

// App holds the wired application.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	AI       *ai.Client
	Registry *index.Registry

	db      *sql.DB
	tracker *state.Tracker
}

// Setup builds the application. On error, everything already
// initialized is released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	db, err := database.Open(cfg.Storage.TrackingDBPath())
	if err != nil {
		return nil, err
	}
	a.db = db
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	a.tracker = state.NewTracker(db, logger)

	client, err := ai.New(ctx, cfg.AI, logger)
	if err != nil {
		return nil, err
	}
	a.AI = client

	embed, err := client.EmbeddingFunc()
	if err != nil {
		return nil, err
	}

	chunker := chunk.New(chunk.Config{
		MaxChars:             cfg.Chunking.MaxCharsPerChunk,
		Overlap:              cfg.Chunking.ChunkOverlap,
		StructuredExtensions: cfg.Chunking.StructuredExtensions,
	})

	factory := func(projectID string) (*index.Indexer, error) {
		indexDir := cfg.Storage.IndexDir(projectID)
		stores := func() (index.VectorStore, index.KeywordStore, error) {
			vector, err := store.NewVector(filepath.Join(indexDir, "vector"), embed, logger)
			if err != nil {
				return nil, nil, err
			}
			keyword, err := store.NewKeyword(filepath.Join(indexDir, "keyword"), logger)
			if err != nil {
				_ = vector.Close()
				return nil, nil, err
			}
			return vector, keyword, nil
		}
		return index.New(index.Options{
			ProjectID: projectID,
			IndexDir:  indexDir,
			Stores:    stores,
			Tracker:   a.tracker,
			Chunker:   chunker,
			Indexing:  cfg.Indexing,
			Logger:    logger,
		})
	}
	a.Registry = index.NewRegistry(factory, logger)

	return a, nil
}

// Hybrid returns the ungated hybrid retriever over a project's indexer.
func (a *App) Hybrid(projectID string) (*retrieve.Hybrid, error) {
	idx, err := a.Registry.Get(projectID)
	if err != nil {
		return nil, fmt.Errorf("getting indexer for %s: %w", projectID, err)
	}
	return retrieve.NewHybrid(
		vectorSearcher{idx}, keywordSearcher{idx},
		a.Config.Search, a.Logger), nil
}

// Coordinator returns the retrieval pipeline for a project: intent gate
// in front of the hybrid retriever.
func (a *App) Coordinator(projectID string) (*retrieve.Coordinator, error) {
	hybrid, err := a.Hybrid(projectID)
	if err != nil {
		return nil, err
	}
	gate := retrieve.NewGate(a.AI, a.Config.Gate, a.Logger)
	return retrieve.NewCoordinator(gate, hybrid), nil
}

// Close releases all resources in reverse construction order.
func (a *App) Close() error {
	var errs []error
	if a.Registry != nil {
		if err := a.Registry.CloseAll(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// vectorSearcher and keywordSearcher route queries through the owning
// indexer, which tracks store swaps across reindexes.
type vectorSearcher struct{ idx *index.Indexer }

func (s vectorSearcher) Search(ctx context.Context, query string, maxResults int, minScore float32) ([]store.ScoredChunk, error) {
	return s.idx.SearchVector(ctx, query, maxResults, minScore)
}

type keywordSearcher struct{ idx *index.Indexer }

func (s keywordSearcher) Search(ctx context.Context, query string, maxResults int) ([]store.ScoredChunk, error) {
	return s.idx.SearchKeyword(ctx, query, maxResults)
}
