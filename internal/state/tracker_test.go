package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/lodestone-ai/lodestone/internal/database"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "tracking.db"))
	if err != nil {
		t.Fatalf("opening tracking database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrating tracking database: %v", err)
	}
	return NewTracker(db, nil)
}

func TestTracker_SaveAndGet(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	if err := tr.SaveHash(ctx, "proj", SourceTypeFile, "a.md", "h1"); err != nil {
		t.Fatalf("SaveHash failed: %v", err)
	}

	hash, err := tr.GetHash(ctx, "proj", SourceTypeFile, "a.md")
	if err != nil {
		t.Fatalf("GetHash failed: %v", err)
	}
	if hash != "h1" {
		t.Errorf("hash = %q, want h1", hash)
	}
}

func TestTracker_GetMissing(t *testing.T) {
	tr := newTestTracker(t)

	_, err := tr.GetHash(context.Background(), "proj", SourceTypeFile, "nope.md")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestTracker_SaveOverwrites(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	if err := tr.SaveHash(ctx, "proj", SourceTypeFile, "a.md", "h1"); err != nil {
		t.Fatalf("SaveHash failed: %v", err)
	}
	if err := tr.SaveHash(ctx, "proj", SourceTypeFile, "a.md", "h2"); err != nil {
		t.Fatalf("SaveHash (update) failed: %v", err)
	}

	hash, err := tr.GetHash(ctx, "proj", SourceTypeFile, "a.md")
	if err != nil {
		t.Fatalf("GetHash failed: %v", err)
	}
	if hash != "h2" {
		t.Errorf("hash = %q, want h2", hash)
	}
}

func TestTracker_BatchSaveAndGetAll(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	// Pre-existing state for the same project and source type must not
	// survive a batch save: the batch is the complete new truth.
	if err := tr.SaveHash(ctx, "proj", SourceTypeFile, "stale.md", "old"); err != nil {
		t.Fatalf("SaveHash failed: %v", err)
	}

	entries := []Entry{
		{FilePath: "a.md", ContentHash: "h1"},
		{FilePath: "sub/b.go", ContentHash: "h2"},
	}
	if err := tr.BatchSave(ctx, "proj", SourceTypeFile, entries); err != nil {
		t.Fatalf("BatchSave failed: %v", err)
	}
	// A different project must not bleed in.
	if err := tr.SaveHash(ctx, "other", SourceTypeFile, "c.md", "h3"); err != nil {
		t.Fatalf("SaveHash failed: %v", err)
	}

	hashes, err := tr.GetAllHashes(ctx, "proj", SourceTypeFile)
	if err != nil {
		t.Fatalf("GetAllHashes failed: %v", err)
	}
	if len(hashes) != 2 {
		t.Fatalf("got %d hashes, want 2: %v", len(hashes), hashes)
	}
	if hashes["a.md"] != "h1" || hashes["sub/b.go"] != "h2" {
		t.Errorf("unexpected hashes: %v", hashes)
	}
	if _, ok := hashes["stale.md"]; ok {
		t.Error("path absent from the batch survived BatchSave")
	}
}

func TestTracker_RemoveDeleted(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	entries := []Entry{
		{FilePath: "keep.md", ContentHash: "h1"},
		{FilePath: "gone.md", ContentHash: "h2"},
		{FilePath: "also-gone.md", ContentHash: "h3"},
	}
	if err := tr.BatchSave(ctx, "proj", SourceTypeFile, entries); err != nil {
		t.Fatalf("BatchSave failed: %v", err)
	}

	removed, err := tr.RemoveDeleted(ctx, "proj", SourceTypeFile, map[string]struct{}{
		"keep.md": {},
	})
	if err != nil {
		t.Fatalf("RemoveDeleted failed: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("removed %d paths, want 2: %v", len(removed), removed)
	}

	hashes, err := tr.GetAllHashes(ctx, "proj", SourceTypeFile)
	if err != nil {
		t.Fatalf("GetAllHashes failed: %v", err)
	}
	if len(hashes) != 1 || hashes["keep.md"] != "h1" {
		t.Errorf("unexpected surviving state: %v", hashes)
	}
}

func TestTracker_RemoveDeletedNothingMissing(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	if err := tr.SaveHash(ctx, "proj", SourceTypeFile, "a.md", "h1"); err != nil {
		t.Fatalf("SaveHash failed: %v", err)
	}

	removed, err := tr.RemoveDeleted(ctx, "proj", SourceTypeFile, map[string]struct{}{
		"a.md": {},
	})
	if err != nil {
		t.Fatalf("RemoveDeleted failed: %v", err)
	}
	if removed != nil {
		t.Errorf("expected no removals, got %v", removed)
	}
}

func TestTracker_ClearProjectSource(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	if err := tr.SaveHash(ctx, "proj", SourceTypeFile, "a.md", "h1"); err != nil {
		t.Fatalf("SaveHash failed: %v", err)
	}
	if err := tr.SaveHash(ctx, "other", SourceTypeFile, "b.md", "h2"); err != nil {
		t.Fatalf("SaveHash failed: %v", err)
	}

	if err := tr.ClearProjectSource(ctx, "proj", SourceTypeFile); err != nil {
		t.Fatalf("ClearProjectSource failed: %v", err)
	}

	if _, err := tr.GetHash(ctx, "proj", SourceTypeFile, "a.md"); !errors.Is(err, ErrNotFound) {
		t.Errorf("cleared project still has state: %v", err)
	}
	if _, err := tr.GetHash(ctx, "other", SourceTypeFile, "b.md"); err != nil {
		t.Errorf("unrelated project lost state: %v", err)
	}
}

func TestHashBytes(t *testing.T) {
	a := HashBytes([]byte("content"))
	b := HashBytes([]byte("content"))
	if a != b {
		t.Errorf("identical content produced different hashes")
	}
	if HashBytes([]byte("changed")) == a {
		t.Error("different content must produce a different hash")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}
