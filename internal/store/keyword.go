package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver with FTS5 support.
)

// keywordSchema holds the chunks table plus an external-content FTS5
// index kept in sync by triggers.
const keywordSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	chunk_id  TEXT UNIQUE NOT NULL,
	file_path TEXT NOT NULL,
	file_name TEXT NOT NULL,
	extension TEXT NOT NULL,
	chunk_idx INTEGER NOT NULL,
	text      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_file_path ON chunks(file_path);

CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	text,
	content='chunks',
	content_rowid='id',
	tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
	INSERT INTO chunks_fts(rowid, text) VALUES (new.id, new.text);
END;

CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
	INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.id, old.text);
END;

CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
	INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.id, old.text);
	INSERT INTO chunks_fts(rowid, text) VALUES (new.id, new.text);
END;
`

// Keyword is a persistent inverted index with BM25-ranked lexical search,
// backed by SQLite FTS5 in the project's keyword sub-directory.
type Keyword struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewKeyword opens (or creates) the keyword store under dir.
func NewKeyword(dir string, logger *slog.Logger) (*Keyword, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating keyword store directory: %w", err)
	}

	dbPath := filepath.Join(dir, "keyword.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening keyword store: %w", err)
	}

	if _, err := db.Exec(keywordSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing keyword schema: %w", err)
	}

	return &Keyword{db: db, logger: logger}, nil
}

// AddBatch stores all chunks of one file in a single transaction.
// An existing row with the same chunk identity is replaced.
func (k *Keyword) AddBatch(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := k.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning keyword transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Plain DELETE + INSERT rather than INSERT OR REPLACE: REPLACE does
	// not fire the delete trigger unless recursive triggers are enabled,
	// which would desynchronize the FTS index.
	del, err := tx.PrepareContext(ctx, `DELETE FROM chunks WHERE chunk_id = ?`)
	if err != nil {
		return fmt.Errorf("preparing delete: %w", err)
	}
	defer del.Close()

	ins, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (chunk_id, file_path, file_name, extension, chunk_idx, text)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer ins.Close()

	for _, c := range chunks {
		if _, err := del.ExecContext(ctx, c.ID); err != nil {
			return fmt.Errorf("replacing chunk %s: %w", c.ID, err)
		}
		if _, err := ins.ExecContext(ctx, c.ID, c.FilePath, c.FileName, c.Extension, c.ChunkIndex, c.Text); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing keyword batch: %w", err)
	}
	return nil
}

// Search returns up to maxResults chunks ranked by BM25, best first.
// Queries with no searchable tokens yield no results.
func (k *Keyword) Search(ctx context.Context, query string, maxResults int) ([]ScoredChunk, error) {
	if maxResults <= 0 {
		return nil, nil
	}
	ftsQuery := buildFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}

	rows, err := k.db.QueryContext(ctx, `
		SELECT c.chunk_id, c.file_path, c.file_name, c.extension, c.chunk_idx, c.text, rank
		FROM chunks_fts
		JOIN chunks c ON c.id = chunks_fts.rowid
		WHERE chunks_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, ftsQuery, maxResults)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var results []ScoredChunk
	for rows.Next() {
		var r ScoredChunk
		var rank float64
		if err := rows.Scan(&r.ID, &r.FilePath, &r.FileName, &r.Extension, &r.ChunkIndex, &r.Text, &rank); err != nil {
			return nil, fmt.Errorf("scanning keyword result: %w", err)
		}
		// FTS5 bm25 rank is negative, more negative = better match.
		r.Score = 1.0 / (1.0 + math.Abs(rank))
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading keyword results: %w", err)
	}
	return results, nil
}

// DeleteByPath removes every chunk indexed for the given relative path.
func (k *Keyword) DeleteByPath(ctx context.Context, filePath string) error {
	if _, err := k.db.ExecContext(ctx, `DELETE FROM chunks WHERE file_path = ?`, filePath); err != nil {
		return fmt.Errorf("deleting keyword chunks for %s: %w", filePath, err)
	}
	return nil
}

// Clear drops every stored chunk. The delete trigger keeps the FTS
// index in sync.
func (k *Keyword) Clear(ctx context.Context) error {
	if _, err := k.db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clearing keyword store: %w", err)
	}
	return nil
}

// Count returns the number of stored chunks.
func (k *Keyword) Count(ctx context.Context) (int, error) {
	var count int
	if err := k.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting keyword chunks: %w", err)
	}
	return count, nil
}

// Close closes the underlying database.
func (k *Keyword) Close() error {
	return k.db.Close()
}

// buildFTSQuery turns free text into a safe FTS5 OR-query. Operator
// characters are stripped and each token is quoted, preventing FTS5
// syntax injection from user input.
func buildFTSQuery(query string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '"', '(', ')', '*', '^', ':', '{', '}', '-', '+':
			return ' '
		default:
			return r
		}
	}, query)

	fields := strings.Fields(cleaned)
	if len(fields) == 0 {
		return ""
	}

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, `"`+f+`"`)
	}
	return strings.Join(parts, " OR ")
}
