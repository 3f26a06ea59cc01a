package index

import (
	"errors"
	"log/slog"
	"sync"
)

// Factory builds the Indexer for a project identifier. Supplied by the
// composition root, which knows how to wire stores and trackers.
type Factory func(projectID string) (*Indexer, error)

// Registry caches one long-lived Indexer per project. It replaces an
// implicit global cache with explicit ownership and deterministic
// teardown: the process's composition root creates it and calls
// CloseAll on shutdown.
type Registry struct {
	factory Factory
	logger  *slog.Logger

	mu       sync.Mutex
	indexers map[string]*Indexer
}

// NewRegistry creates an empty registry.
func NewRegistry(factory Factory, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factory:  factory,
		logger:   logger,
		indexers: make(map[string]*Indexer),
	}
}

// Get returns the project's Indexer, creating it on first use. The
// single cached instance is what enforces one writer per project.
func (r *Registry) Get(projectID string) (*Indexer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.indexers[projectID]; ok {
		return idx, nil
	}

	idx, err := r.factory(projectID)
	if err != nil {
		return nil, err
	}
	r.indexers[projectID] = idx
	return idx, nil
}

// Remove closes and evicts the project's Indexer. A later Get creates a
// fresh one.
func (r *Registry) Remove(projectID string) error {
	r.mu.Lock()
	idx, ok := r.indexers[projectID]
	delete(r.indexers, projectID)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return idx.Close()
}

// CloseAll closes every cached Indexer. Called once at shutdown.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	indexers := r.indexers
	r.indexers = make(map[string]*Indexer)
	r.mu.Unlock()

	var errs []error
	for id, idx := range indexers {
		if err := idx.Close(); err != nil {
			r.logger.Warn("closing indexer failed", "project", id, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
