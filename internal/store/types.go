// Package store implements the two persistent halves of a project's
// hybrid index: a vector store (nearest-neighbor over chunk embeddings)
// and a keyword store (BM25-ranked inverted index). Both live under one
// per-project index directory and are written only by that project's
// indexer; reads may come from any number of concurrent callers.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Chunk is an immutable unit of indexed text.
type Chunk struct {
	ID         string // stable identity derived from project, path, and position
	Text       string
	FilePath   string // relative to the project root
	FileName   string
	Extension  string
	ChunkIndex int // position within the source file
}

// ScoredChunk is a chunk with a retrieval score attached. Scores are
// comparable only within the result list that produced them.
type ScoredChunk struct {
	Chunk
	Score float64
}

// NewChunkID derives the stable chunk identity used by both stores and by
// rank fusion. The same (project, path, index) triple always maps to the
// same ID.
func NewChunkID(projectID, filePath string, chunkIndex int) string {
	h := sha256.Sum256([]byte(projectID + "|" + filePath + "|" + strconv.Itoa(chunkIndex)))
	return "chunk_" + hex.EncodeToString(h[:16])
}

// Metadata keys stored alongside each chunk in the vector store.
const (
	metaFilePath   = "file_path"
	metaFileName   = "file_name"
	metaExtension  = "extension"
	metaChunkIndex = "chunk_index"
)
