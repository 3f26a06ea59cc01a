package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lodestone-ai/lodestone/internal/state"
)

func writeExpectedHash(_ *testing.T, content string) string {
	return state.HashBytes([]byte(content))
}

func trackedHash(t *testing.T, env *testEnv, rel string) string {
	t.Helper()
	h, err := env.tracker.GetHash(context.Background(), "proj", state.SourceTypeFile, rel)
	if err != nil {
		return ""
	}
	return h
}

// touchFuture bumps the file's modification time past any tracked
// entry, so the watcher's cheap modtime gate cannot mask the change.
func touchFuture(t *testing.T, path string) {
	t.Helper()
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("touching %s: %v", path, err)
	}
}

func startWatchingIndexer(t *testing.T, env *testEnv, root string) *Indexer {
	t.Helper()
	idx := env.newIndexer(t)
	t.Cleanup(func() { _ = idx.Close() })

	if err := idx.EnsureIndexed([]string{root}, true); err != nil {
		t.Fatalf("EnsureIndexed failed: %v", err)
	}
	waitForStatus(t, idx, StatusWatching)
	return idx
}

func TestWatcher_ModifiedFileReindexed(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	path := writeFile(t, root, "a.md", "original content")

	startWatchingIndexer(t, env, root)

	writeFile(t, root, "a.md", "modified content that is clearly different")
	touchFuture(t, path)

	want := writeExpectedHash(t, "modified content that is clearly different")
	waitFor(t, "modified file re-indexed", func() bool {
		return trackedHash(t, env, "a.md") == want
	})
	if got := env.vector.pathCount("a.md"); got != 1 {
		t.Errorf("a.md has %d vector chunks, want 1 (delete-before-add)", got)
	}
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	writeFile(t, root, "a.md", "existing")

	startWatchingIndexer(t, env, root)

	writeFile(t, root, "new.md", "brand new file content")

	waitFor(t, "new file indexed", func() bool {
		return env.vector.pathCount("new.md") == 1 && env.keyword.pathCount("new.md") == 1
	})
}

func TestWatcher_DeletedFilePurged(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	writeFile(t, root, "keep.md", "keep")
	gone := writeFile(t, root, "gone.md", "purge me")

	startWatchingIndexer(t, env, root)

	if err := os.Remove(gone); err != nil {
		t.Fatalf("removing file: %v", err)
	}

	waitFor(t, "deleted file purged", func() bool {
		return env.vector.pathCount("gone.md") == 0 && env.keyword.pathCount("gone.md") == 0
	})
	if env.vector.pathCount("keep.md") != 1 {
		t.Error("unrelated file was purged")
	}
}

func TestWatcher_DeletedSubdirectoryPurged(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	writeFile(t, root, "keep.md", "keep")
	writeFile(t, root, "sub/a.md", "nested one")
	writeFile(t, root, "sub/deep/b.md", "nested two")

	startWatchingIndexer(t, env, root)

	// Removing the directory emits a single event for the directory
	// path; every indexed file beneath it must still be purged.
	if err := os.RemoveAll(filepath.Join(root, "sub")); err != nil {
		t.Fatalf("removing subdirectory: %v", err)
	}

	waitFor(t, "deleted subtree purged", func() bool {
		return env.vector.pathCount("sub/a.md") == 0 &&
			env.vector.pathCount("sub/deep/b.md") == 0 &&
			env.keyword.pathCount("sub/a.md") == 0 &&
			env.keyword.pathCount("sub/deep/b.md") == 0
	})
	waitFor(t, "tracked state cleared", func() bool {
		return trackedHash(t, env, "sub/a.md") == "" &&
			trackedHash(t, env, "sub/deep/b.md") == ""
	})
	if env.vector.pathCount("keep.md") != 1 {
		t.Error("file outside the deleted subtree was purged")
	}
	if trackedHash(t, env, "keep.md") == "" {
		t.Error("file outside the deleted subtree lost its tracked state")
	}
}

func TestWatcher_NewSubdirectoryRegistered(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	writeFile(t, root, "a.md", "existing")

	startWatchingIndexer(t, env, root)

	// Create the directory first so the watcher registers it, then the
	// file inside it.
	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0o750); err != nil {
		t.Fatalf("creating subdirectory: %v", err)
	}
	// Give the create event time to land before writing into it.
	time.Sleep(200 * time.Millisecond)
	writeFile(t, root, "sub/inner.md", "content inside new directory")

	waitFor(t, "file in new subdirectory indexed", func() bool {
		return env.vector.pathCount("sub/inner.md") == 1
	})
}

func TestWatcher_UnsupportedFileIgnored(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	writeFile(t, root, "a.md", "existing")

	startWatchingIndexer(t, env, root)

	writeFile(t, root, "image.png", "binary-ish")
	writeFile(t, root, "trigger.md", "forces a later observable event")

	// Once the supported file lands, the unsupported one had its chance.
	waitFor(t, "trigger file indexed", func() bool {
		return env.vector.pathCount("trigger.md") == 1
	})
	if env.vector.pathCount("image.png") != 0 {
		t.Error("unsupported file was indexed by the watcher")
	}
}

func TestWatcher_CloseReturnsToReady(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	writeFile(t, root, "a.md", "content")

	idx := env.newIndexer(t)
	if err := idx.EnsureIndexed([]string{root}, true); err != nil {
		t.Fatalf("EnsureIndexed failed: %v", err)
	}
	waitForStatus(t, idx, StatusWatching)

	if err := idx.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := idx.Progress().Status; got != StatusReady {
		t.Errorf("status after close = %s, want READY", got)
	}
}
