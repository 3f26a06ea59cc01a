package index

import (
	"context"

	"github.com/lodestone-ai/lodestone/internal/store"
)

// SearchVector runs a similarity search against the project's current
// vector store. Reads are safe while background indexing writes.
func (i *Indexer) SearchVector(ctx context.Context, query string, maxResults int, minScore float32) ([]store.ScoredChunk, error) {
	vector, _ := i.stores()
	return vector.Search(ctx, query, maxResults, minScore)
}

// SearchKeyword runs a lexical search against the project's current
// keyword store.
func (i *Indexer) SearchKeyword(ctx context.Context, query string, maxResults int) ([]store.ScoredChunk, error) {
	_, keyword := i.stores()
	return keyword.Search(ctx, query, maxResults)
}

// ChunkCount returns the number of chunks in the vector store.
func (i *Indexer) ChunkCount() int {
	vector, _ := i.stores()
	return vector.Count()
}

// KeywordCount returns the number of chunks in the keyword store. The
// two counts can differ transiently when embedding a chunk failed.
func (i *Indexer) KeywordCount(ctx context.Context) (int, error) {
	_, keyword := i.stores()
	return keyword.Count(ctx)
}
