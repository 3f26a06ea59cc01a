package retrieve

import (
	"context"

	"github.com/lodestone-ai/lodestone/internal/store"
)

// Retriever is what the coordinator runs when the gate says yes.
type Retriever interface {
	Retrieve(ctx context.Context, query string, maxResults int) ([]store.ScoredChunk, error)
}

// Gater decides whether retrieval should run for a message.
type Gater interface {
	ShouldRetrieve(ctx context.Context, message string, history []Turn) bool
}

// Coordinator composes the gate and the retriever. It holds no state:
// a negative gate decision returns an empty result without touching
// either store.
type Coordinator struct {
	gate      Gater
	retriever Retriever
}

// NewCoordinator wires a gate in front of a retriever. A nil gate means
// always retrieve.
func NewCoordinator(gate Gater, retriever Retriever) *Coordinator {
	return &Coordinator{gate: gate, retriever: retriever}
}

// Retrieve returns ranked chunks for the query, or nothing when the
// gate decides the message does not need file context.
func (c *Coordinator) Retrieve(ctx context.Context, query string, history []Turn, maxResults int) ([]store.ScoredChunk, error) {
	if c.gate != nil && !c.gate.ShouldRetrieve(ctx, query, history) {
		return nil, nil
	}
	return c.retriever.Retrieve(ctx, query, maxResults)
}
