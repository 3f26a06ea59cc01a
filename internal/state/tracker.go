// Package state tracks which file versions have been indexed. Each row
// couples a project, a source type, and a relative file path with the
// content hash seen at indexing time, so unchanged files can be skipped
// on later runs.
package state

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
)

// SourceTypeFile marks entries produced by the filesystem indexer.
// Other source types may share the table later.
const SourceTypeFile = "file"

// ErrNotFound indicates no tracked hash exists for the requested file.
var ErrNotFound = errors.New("file state not found")

// Entry is one tracked file.
type Entry struct {
	FilePath    string
	ContentHash string
}

// Tracker reads and writes file index state in the shared tracking
// database.
type Tracker struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTracker creates a tracker over an already-migrated database.
func NewTracker(db *sql.DB, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{db: db, logger: logger}
}

// HashBytes returns the content hash used for change detection.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// GetHash returns the tracked hash for one file, or ErrNotFound.
func (t *Tracker) GetHash(ctx context.Context, projectID, sourceType, filePath string) (string, error) {
	var hash string
	err := t.db.QueryRowContext(ctx, `
		SELECT content_hash FROM file_index_state
		WHERE project_id = ? AND source_type = ? AND file_path = ?`,
		projectID, sourceType, filePath).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying file state: %w", err)
	}
	return hash, nil
}

// GetAllHashes returns every tracked path for a project and source type,
// keyed by relative path.
func (t *Tracker) GetAllHashes(ctx context.Context, projectID, sourceType string) (map[string]string, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT file_path, content_hash FROM file_index_state
		WHERE project_id = ? AND source_type = ?`,
		projectID, sourceType)
	if err != nil {
		return nil, fmt.Errorf("querying file states: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, fmt.Errorf("scanning file state: %w", err)
		}
		hashes[path] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading file states: %w", err)
	}
	return hashes, nil
}

// SaveHash records (or updates) the hash for one file.
func (t *Tracker) SaveHash(ctx context.Context, projectID, sourceType, filePath, hash string) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO file_index_state (project_id, source_type, file_path, content_hash, indexed_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (project_id, source_type, file_path)
		DO UPDATE SET content_hash = excluded.content_hash, indexed_at = CURRENT_TIMESTAMP`,
		projectID, sourceType, filePath, hash)
	if err != nil {
		return fmt.Errorf("saving file state: %w", err)
	}
	return nil
}

// BatchSave replaces all tracked state for a project and source type
// with the given entries, in one transaction. Paths absent from the
// batch are dropped, so the stored state mirrors a bulk re-index
// exactly.
func (t *Tracker) BatchSave(ctx context.Context, projectID, sourceType string, entries []Entry) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning state transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM file_index_state
		WHERE project_id = ? AND source_type = ?`,
		projectID, sourceType); err != nil {
		return fmt.Errorf("clearing previous state: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO file_index_state (project_id, source_type, file_path, content_hash, indexed_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`)
	if err != nil {
		return fmt.Errorf("preparing state insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, projectID, sourceType, e.FilePath, e.ContentHash); err != nil {
			return fmt.Errorf("saving state for %s: %w", e.FilePath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing state batch: %w", err)
	}
	return nil
}

// Remove drops the tracked state for one file.
func (t *Tracker) Remove(ctx context.Context, projectID, sourceType, filePath string) error {
	_, err := t.db.ExecContext(ctx, `
		DELETE FROM file_index_state
		WHERE project_id = ? AND source_type = ? AND file_path = ?`,
		projectID, sourceType, filePath)
	if err != nil {
		return fmt.Errorf("removing file state: %w", err)
	}
	return nil
}

// RemoveDeleted drops tracked paths that are no longer present on disk
// and returns the removed paths so callers can purge the search indexes.
func (t *Tracker) RemoveDeleted(ctx context.Context, projectID, sourceType string, existing map[string]struct{}) ([]string, error) {
	tracked, err := t.GetAllHashes(ctx, projectID, sourceType)
	if err != nil {
		return nil, err
	}

	var removed []string
	for path := range tracked {
		if _, ok := existing[path]; !ok {
			removed = append(removed, path)
		}
	}
	if len(removed) == 0 {
		return nil, nil
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning state transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		DELETE FROM file_index_state
		WHERE project_id = ? AND source_type = ? AND file_path = ?`)
	if err != nil {
		return nil, fmt.Errorf("preparing state delete: %w", err)
	}
	defer stmt.Close()

	for _, path := range removed {
		if _, err := stmt.ExecContext(ctx, projectID, sourceType, path); err != nil {
			return nil, fmt.Errorf("removing state for %s: %w", path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing state removals: %w", err)
	}
	return removed, nil
}

// ClearProjectSource drops all tracked state for one project and source
// type. Used by full reindex.
func (t *Tracker) ClearProjectSource(ctx context.Context, projectID, sourceType string) error {
	_, err := t.db.ExecContext(ctx, `
		DELETE FROM file_index_state
		WHERE project_id = ? AND source_type = ?`,
		projectID, sourceType)
	if err != nil {
		return fmt.Errorf("clearing project state: %w", err)
	}
	return nil
}

// ClearProject drops all tracked state for one project across every
// source type.
func (t *Tracker) ClearProject(ctx context.Context, projectID string) error {
	_, err := t.db.ExecContext(ctx, `
		DELETE FROM file_index_state WHERE project_id = ?`, projectID)
	if err != nil {
		return fmt.Errorf("clearing project state: %w", err)
	}
	return nil
}
