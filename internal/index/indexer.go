// Package index builds and maintains one project's hybrid search index.
// An Indexer exclusively owns its project's vector store, keyword store,
// tracked file state, and file watcher. Instances are cached per project
// by the Registry and live until explicitly closed.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/time/rate"

	"github.com/lodestone-ai/lodestone/internal/chunk"
	"github.com/lodestone-ai/lodestone/internal/config"
	"github.com/lodestone-ai/lodestone/internal/extract"
	"github.com/lodestone-ai/lodestone/internal/state"
	"github.com/lodestone-ai/lodestone/internal/store"
)

var (
	// ErrIndexingFailed is returned by EnsureIndexed after a previous run
	// ended in FAILED. Recovery is ClearAndReindex.
	ErrIndexingFailed = errors.New("indexing previously failed")

	// ErrIndexLocked means another process holds the project's index lock.
	ErrIndexLocked = errors.New("index directory locked by another process")
)

// VectorStore is the vector store surface the indexer owns. Search is
// included because queries must go through the owning indexer: the
// concrete stores are swapped during ClearAndReindex.
type VectorStore interface {
	Add(ctx context.Context, c store.Chunk) error
	Search(ctx context.Context, query string, maxResults int, minScore float32) ([]store.ScoredChunk, error)
	DeleteByPath(ctx context.Context, filePath string) error
	Count() int
	Close() error
}

// KeywordStore is the keyword store surface the indexer owns.
type KeywordStore interface {
	AddBatch(ctx context.Context, chunks []store.Chunk) error
	Search(ctx context.Context, query string, maxResults int) ([]store.ScoredChunk, error)
	DeleteByPath(ctx context.Context, filePath string) error
	Count(ctx context.Context) (int, error)
	Close() error
}

// StateTracker is the slice of the state tracker the indexer needs.
type StateTracker interface {
	GetHash(ctx context.Context, projectID, sourceType, filePath string) (string, error)
	GetAllHashes(ctx context.Context, projectID, sourceType string) (map[string]string, error)
	SaveHash(ctx context.Context, projectID, sourceType, filePath, hash string) error
	Remove(ctx context.Context, projectID, sourceType, filePath string) error
	RemoveDeleted(ctx context.Context, projectID, sourceType string, existing map[string]struct{}) ([]string, error)
	ClearProjectSource(ctx context.Context, projectID, sourceType string) error
}

// StoreFactory opens (or reopens) the project's two store halves. The
// indexer closes and recreates them during ClearAndReindex, after the
// index directory has been deleted.
type StoreFactory func() (VectorStore, KeywordStore, error)

// Options configures a new Indexer.
type Options struct {
	ProjectID string
	IndexDir  string
	Stores    StoreFactory
	Tracker   StateTracker
	Chunker   *chunk.Chunker
	Extractor extract.Extractor // may be nil
	Indexing  config.IndexingConfig
	Logger    *slog.Logger
}

// fileRef locates one indexable file: the root it was found under and
// its path relative to that root.
type fileRef struct {
	root string
	rel  string
}

func (f fileRef) abs() string {
	return filepath.Join(f.root, filepath.FromSlash(f.rel))
}

// indexedFileEntry tracks a watched file's last observed modification
// time, used to drop file-system events that changed nothing.
type indexedFileEntry struct {
	lastModified time.Time
	indexedAt    time.Time
}

// Indexer drives indexing and watching for one project.
type Indexer struct {
	projectID string
	indexDir  string

	storeFactory StoreFactory
	tracker      StateTracker
	chunker      *chunk.Chunker
	extractor    extract.Extractor
	walker       *walker
	cfg          config.IndexingConfig
	limiter      *rate.Limiter
	logger       *slog.Logger

	progress *progressState
	lock     *flock.Flock

	mu      sync.Mutex // guards vector, keyword, watcher, cancel, and state transitions
	vector  VectorStore
	keyword KeywordStore
	watcher *watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	trackedMu sync.Mutex
	tracked   map[string]indexedFileEntry // keyed by absolute path
}

// New creates an Indexer and acquires the project's index lock. The lock
// enforces one writer per project across processes.
func New(opts Options) (*Indexer, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := os.MkdirAll(opts.IndexDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	lock := flock.New(filepath.Join(opts.IndexDir, ".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring index lock: %w", err)
	}
	if !locked {
		return nil, ErrIndexLocked
	}

	vector, keyword, err := opts.Stores()
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("opening stores: %w", err)
	}

	ratePerSec := opts.Indexing.EmbedRatePerSec
	if ratePerSec <= 0 {
		ratePerSec = config.DefaultEmbedRatePerSec
	}

	return &Indexer{
		projectID:    opts.ProjectID,
		indexDir:     opts.IndexDir,
		storeFactory: opts.Stores,
		tracker:      opts.Tracker,
		chunker:      opts.Chunker,
		extractor:    opts.Extractor,
		walker:       newWalker(opts.Indexing, opts.Logger),
		cfg:          opts.Indexing,
		limiter:      rate.NewLimiter(rate.Limit(ratePerSec), 1),
		logger:       opts.Logger.With("project", opts.ProjectID),
		progress:     newProgressState(),
		lock:         lock,
		vector:       vector,
		keyword:      keyword,
		tracked:      make(map[string]indexedFileEntry),
	}, nil
}

// Progress returns an atomic snapshot of indexing state.
func (i *Indexer) Progress() Progress {
	return i.progress.load()
}

// EnsureIndexed makes sure the given paths are indexed, starting a
// background run when none has happened yet. Calls during or after a
// successful run are no-ops. After a failed run it returns
// ErrIndexingFailed with the stored message.
func (i *Indexer) EnsureIndexed(paths []string, watch bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	switch p := i.progress.load(); p.Status {
	case StatusIndexing, StatusReady, StatusWatching:
		return nil
	case StatusFailed:
		return fmt.Errorf("%w: %s", ErrIndexingFailed, p.Err)
	}

	i.startIndexingLocked(paths, watch)
	return nil
}

// ClearAndReindex tears down the current index and rebuilds it from
// scratch: watching stops, in-flight work is cancelled, the index
// directory is deleted recursively, tracked hashes are cleared, and a
// fresh background run starts. This is the recovery path for a corrupted
// or stale index.
func (i *Indexer) ClearAndReindex(ctx context.Context, paths []string, watch bool) error {
	i.stopWork()

	i.mu.Lock()
	defer i.mu.Unlock()

	_ = i.vector.Close()
	_ = i.keyword.Close()

	// The lock file lives inside the index directory; delete siblings
	// only so the held lock survives.
	entries, err := os.ReadDir(i.indexDir)
	if err != nil {
		return fmt.Errorf("reading index directory: %w", err)
	}
	for _, e := range entries {
		if e.Name() == ".lock" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(i.indexDir, e.Name())); err != nil {
			return fmt.Errorf("deleting index data: %w", err)
		}
	}

	if err := i.tracker.ClearProjectSource(ctx, i.projectID, state.SourceTypeFile); err != nil {
		return fmt.Errorf("clearing tracked state: %w", err)
	}

	i.trackedMu.Lock()
	i.tracked = make(map[string]indexedFileEntry)
	i.trackedMu.Unlock()

	vector, keyword, err := i.storeFactory()
	if err != nil {
		i.progress.store(Progress{Status: StatusFailed, Err: err.Error()})
		return fmt.Errorf("reopening stores: %w", err)
	}
	i.vector = vector
	i.keyword = keyword

	i.progress.store(Progress{Status: StatusNotStarted})
	i.startIndexingLocked(paths, watch)
	return nil
}

// Close stops watching, cancels in-flight work, closes both stores, and
// releases the index lock.
func (i *Indexer) Close() error {
	i.stopWork()

	i.mu.Lock()
	defer i.mu.Unlock()

	var errs []error
	if err := i.vector.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := i.keyword.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := i.lock.Unlock(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// stopWork cancels the indexing worker, stops the watcher, and waits
// for both to exit. The watcher is stopped outside the mutex because
// its worker may itself be waiting on i.mu.
func (i *Indexer) stopWork() {
	i.mu.Lock()
	w := i.watcher
	i.watcher = nil
	if i.cancel != nil {
		i.cancel()
		i.cancel = nil
	}
	i.mu.Unlock()

	if w != nil {
		w.stop()
		i.progress.update(func(p Progress) Progress {
			if p.Status == StatusWatching {
				p.Status = StatusReady
			}
			return p
		})
	}
	i.wg.Wait()
}

// startIndexingLocked transitions to INDEXING and launches the worker.
// Callers hold i.mu.
func (i *Indexer) startIndexingLocked(paths []string, watch bool) {
	ctx, cancel := context.WithCancel(context.Background())
	i.cancel = cancel

	i.progress.store(Progress{Status: StatusIndexing})
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.runIndex(ctx, paths, watch)
	}()
}

// runIndex is the indexing worker. A failure collecting files, or a
// panic escaping the loop, transitions the whole indexer to FAILED;
// per-file failures are logged and skipped.
func (i *Indexer) runIndex(ctx context.Context, paths []string, watch bool) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("indexing panicked", "panic", r)
			i.progress.store(Progress{Status: StatusFailed, Err: fmt.Sprint(r)})
		}
	}()

	start := time.Now()
	refs, err := i.collectFiles(paths)
	if err != nil {
		i.logger.Error("collecting files failed", "error", err)
		i.progress.store(Progress{Status: StatusFailed, Err: err.Error()})
		return
	}

	i.progress.store(Progress{Status: StatusIndexing, FilesTotal: len(refs)})

	every := i.cfg.ProgressUpdateEvery
	if every <= 0 {
		every = config.DefaultProgressUpdateEvery
	}

	indexed := 0
	for _, ref := range refs {
		if ctx.Err() != nil {
			return
		}
		if err := i.indexFile(ctx, ref); err != nil {
			if ctx.Err() != nil {
				return
			}
			i.logger.Warn("indexing file failed", "path", ref.rel, "error", err)
		}
		indexed++
		if indexed%every == 0 {
			n := indexed
			i.progress.update(func(p Progress) Progress {
				p.FilesIndexed = n
				return p
			})
		}
	}

	i.removeDeleted(ctx, refs)

	final := Progress{Status: StatusReady, FilesIndexed: indexed, FilesTotal: len(refs)}
	if watch {
		if err := i.startWatching(ctx, paths); err != nil {
			i.logger.Warn("starting watcher failed", "error", err)
		} else {
			final.Status = StatusWatching
		}
	}
	i.progress.store(final)

	i.logger.Info("indexing complete",
		"files", indexed,
		"duration", time.Since(start),
		"watching", final.Status == StatusWatching)
}

// collectFiles expands the requested paths into concrete file refs.
// Directories are walked with the exclude predicate; single files only
// need to exist, be supported, and fit the size limit.
func (i *Indexer) collectFiles(paths []string) ([]fileRef, error) {
	var refs []fileRef
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", p, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}

		if info.IsDir() {
			rels, err := i.walker.walk(abs)
			if err != nil {
				return nil, err
			}
			for _, rel := range rels {
				refs = append(refs, fileRef{root: abs, rel: rel})
			}
			continue
		}

		if i.cfg.MaxFileBytes > 0 && info.Size() > i.cfg.MaxFileBytes {
			i.logger.Warn("skipping oversized file", "path", p, "size", info.Size())
			continue
		}
		refs = append(refs, fileRef{root: filepath.Dir(abs), rel: filepath.Base(abs)})
	}
	return refs, nil
}

// indexFile indexes one file: hash gate, extract, chunk, embed, store.
// Unchanged files (same content hash) are skipped entirely.
func (i *Indexer) indexFile(ctx context.Context, ref fileRef) error {
	abs := ref.abs()
	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	hash := state.HashBytes(data)
	stored, err := i.tracker.GetHash(ctx, i.projectID, state.SourceTypeFile, ref.rel)
	if err == nil && stored == hash {
		i.rememberFile(abs)
		return nil
	}
	if err != nil && !errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("checking tracked hash: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(ref.rel))
	text, err := extract.Text(ctx, i.extractor, data, ext)
	if err != nil {
		return err
	}

	vector, keyword := i.stores()

	// Stale entries go first so a changed file never has duplicates. This
	// also covers a file truncated to nothing: its old chunks must not
	// outlive the content that produced them.
	if err := vector.DeleteByPath(ctx, ref.rel); err != nil {
		return fmt.Errorf("clearing vector entries: %w", err)
	}
	if err := keyword.DeleteByPath(ctx, ref.rel); err != nil {
		return fmt.Errorf("clearing keyword entries: %w", err)
	}

	if strings.TrimSpace(text) == "" {
		return i.saveFileState(ctx, ref, abs, hash)
	}

	// The header block keeps file identity inside every chunk's text, so
	// a retrieved chunk is self-describing without a metadata lookup.
	name := filepath.Base(ref.rel)
	header := fmt.Sprintf("File: %s\nName: %s\nExtension: %s\n\n", ref.rel, name, ext)

	pieces := i.chunker.Split(header+text, ext)
	chunks := make([]store.Chunk, 0, len(pieces))
	for idx, piece := range pieces {
		chunks = append(chunks, store.Chunk{
			ID:         store.NewChunkID(i.projectID, ref.rel, idx),
			Text:       piece,
			FilePath:   ref.rel,
			FileName:   name,
			Extension:  ext,
			ChunkIndex: idx,
		})
	}

	for _, c := range chunks {
		if err := i.limiter.Wait(ctx); err != nil {
			return err
		}
		// A failed embedding drops the chunk, not the file.
		if err := vector.Add(ctx, c); err != nil {
			i.logger.Warn("embedding chunk failed",
				"path", ref.rel, "chunk", c.ChunkIndex, "error", err)
		}
	}
	if err := keyword.AddBatch(ctx, chunks); err != nil {
		return fmt.Errorf("adding keyword chunks: %w", err)
	}

	return i.saveFileState(ctx, ref, abs, hash)
}

func (i *Indexer) saveFileState(ctx context.Context, ref fileRef, abs, hash string) error {
	if err := i.tracker.SaveHash(ctx, i.projectID, state.SourceTypeFile, ref.rel, hash); err != nil {
		return fmt.Errorf("saving tracked hash: %w", err)
	}
	i.rememberFile(abs)
	return nil
}

// rememberFile records the file's modification time for the watcher's
// cheap change check.
func (i *Indexer) rememberFile(abs string) {
	info, err := os.Stat(abs)
	if err != nil {
		return
	}
	i.trackedMu.Lock()
	i.tracked[abs] = indexedFileEntry{lastModified: info.ModTime(), indexedAt: time.Now()}
	i.trackedMu.Unlock()
}

// removeDeleted purges tracked files that no longer exist on disk from
// the tracker and both stores.
func (i *Indexer) removeDeleted(ctx context.Context, refs []fileRef) {
	existing := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		existing[ref.rel] = struct{}{}
	}

	removed, err := i.tracker.RemoveDeleted(ctx, i.projectID, state.SourceTypeFile, existing)
	if err != nil {
		i.logger.Warn("removing deleted file state failed", "error", err)
		return
	}

	vector, keyword := i.stores()
	for _, rel := range removed {
		if err := vector.DeleteByPath(ctx, rel); err != nil {
			i.logger.Warn("purging vector entries failed", "path", rel, "error", err)
		}
		if err := keyword.DeleteByPath(ctx, rel); err != nil {
			i.logger.Warn("purging keyword entries failed", "path", rel, "error", err)
		}
	}
}

// stores returns the current store pair under the lock. ClearAndReindex
// swaps them, so workers must not cache the fields.
func (i *Indexer) stores() (VectorStore, KeywordStore) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.vector, i.keyword
}

// startWatching registers the watcher for every directory root.
func (i *Indexer) startWatching(ctx context.Context, paths []string) error {
	var roots []string
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			roots = append(roots, abs)
		}
	}
	if len(roots) == 0 {
		return errors.New("no directories to watch")
	}

	w, err := newWatcher(i, roots)
	if err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if ctx.Err() != nil {
		w.stop()
		return ctx.Err()
	}
	i.watcher = w
	return nil
}
