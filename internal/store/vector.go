package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	chromem "github.com/philippgille/chromem-go"
)

// collectionName is the single chromem collection per project index.
const collectionName = "chunks"

// Vector is a persistent nearest-neighbor index over chunk embeddings,
// backed by a chromem-go collection stored under the project's index
// directory. One entry per chunk, embedding plus payload.
//
// Vector tolerates concurrent reads during writes; writes must come from
// the single indexer that owns the project.
type Vector struct {
	db     *chromem.DB
	col    *chromem.Collection
	embed  chromem.EmbeddingFunc
	logger *slog.Logger
}

// NewVector opens (or creates) the vector store at dir. The embedding
// function is treated as a black box returning fixed-dimension vectors;
// the dimension must not change for the lifetime of a store directory.
func NewVector(dir string, embed chromem.EmbeddingFunc, logger *slog.Logger) (*Vector, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("opening vector store at %s: %w", dir, err)
	}

	col, err := db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("opening vector collection: %w", err)
	}

	return &Vector{db: db, col: col, embed: embed, logger: logger}, nil
}

// Add embeds and stores one chunk. Callers add a file's chunks in
// chunk-index order.
func (v *Vector) Add(ctx context.Context, c Chunk) error {
	doc := chromem.Document{
		ID:      c.ID,
		Content: c.Text,
		Metadata: map[string]string{
			metaFilePath:   c.FilePath,
			metaFileName:   c.FileName,
			metaExtension:  c.Extension,
			metaChunkIndex: strconv.Itoa(c.ChunkIndex),
		},
	}
	if err := v.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("adding chunk %s: %w", c.ID, err)
	}
	return nil
}

// Search returns up to maxResults chunks by similarity to the query,
// best first. Results below minScore are dropped before ranking
// (pre-filter, so downstream rank fusion never sees them).
func (v *Vector) Search(ctx context.Context, query string, maxResults int, minScore float32) ([]ScoredChunk, error) {
	count := v.col.Count()
	if count == 0 || maxResults <= 0 {
		return nil, nil
	}
	if maxResults > count {
		maxResults = count
	}

	results, err := v.col.Query(ctx, query, maxResults, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	chunks := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		if r.Similarity < minScore {
			continue
		}
		idx, _ := strconv.Atoi(r.Metadata[metaChunkIndex])
		chunks = append(chunks, ScoredChunk{
			Chunk: Chunk{
				ID:         r.ID,
				Text:       r.Content,
				FilePath:   r.Metadata[metaFilePath],
				FileName:   r.Metadata[metaFileName],
				Extension:  r.Metadata[metaExtension],
				ChunkIndex: idx,
			},
			Score: float64(r.Similarity),
		})
	}
	return chunks, nil
}

// DeleteByPath removes every chunk indexed for the given relative path.
func (v *Vector) DeleteByPath(ctx context.Context, filePath string) error {
	if err := v.col.Delete(ctx, map[string]string{metaFilePath: filePath}, nil); err != nil {
		return fmt.Errorf("deleting chunks for %s: %w", filePath, err)
	}
	return nil
}

// Clear drops every stored chunk by recreating the collection.
func (v *Vector) Clear() error {
	if err := v.db.DeleteCollection(collectionName); err != nil {
		return fmt.Errorf("clearing vector store: %w", err)
	}
	col, err := v.db.CreateCollection(collectionName, nil, v.embed)
	if err != nil {
		return fmt.Errorf("recreating vector collection: %w", err)
	}
	v.col = col
	return nil
}

// Count returns the number of stored chunks.
func (v *Vector) Count() int {
	return v.col.Count()
}

// Close releases the store. chromem persists on every write, so this is
// currently a no-op kept for lifecycle symmetry.
func (*Vector) Close() error {
	return nil
}
