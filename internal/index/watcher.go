package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/lodestone-ai/lodestone/internal/config"
	"github.com/lodestone-ai/lodestone/internal/state"
)

// watcher keeps a project's index in sync with file-system changes.
// Events arrive on a bounded queue consumed by a single worker, so
// event arrival never blocks on indexing work; when the queue is full,
// events are dropped and logged (a later full reindex recovers them).
type watcher struct {
	idx      *Indexer
	fsw      *fsnotify.Watcher
	roots    []string
	rootCtxs map[string]*rootContext
	queue    chan fsnotify.Event
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// newWatcher registers every non-excluded subdirectory of each root and
// starts the forwarder and worker goroutines.
func newWatcher(idx *Indexer, roots []string) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	rootCtxs := make(map[string]*rootContext, len(roots))
	for _, root := range roots {
		rootCtxs[root] = idx.walker.newRootContext(root)

		dirs, err := idx.walker.watchDirs(root)
		if err != nil {
			_ = fsw.Close()
			return nil, err
		}
		for _, dir := range dirs {
			if err := fsw.Add(dir); err != nil {
				idx.logger.Warn("watching directory failed", "dir", dir, "error", err)
			}
		}
	}

	queueSize := idx.cfg.WatchQueueSize
	if queueSize <= 0 {
		queueSize = config.DefaultWatchQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &watcher{
		idx:      idx,
		fsw:      fsw,
		roots:    roots,
		rootCtxs: rootCtxs,
		queue:    make(chan fsnotify.Event, queueSize),
		ctx:      ctx,
		cancel:   cancel,
		logger:   idx.logger,
	}

	w.wg.Add(2)
	go w.forward()
	go w.work()
	return w, nil
}

// stop closes the watch handle and waits for both goroutines.
func (w *watcher) stop() {
	w.cancel()
	_ = w.fsw.Close()
	w.wg.Wait()
}

// forward moves events from fsnotify onto the bounded queue. Closing
// the fsnotify watcher ends this loop, which closes the queue and lets
// the worker drain out.
func (w *watcher) forward() {
	defer w.wg.Done()
	defer close(w.queue)

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			select {
			case w.queue <- ev:
			default:
				w.logger.Warn("watch queue full, dropping event", "event", ev.String())
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *watcher) work() {
	defer w.wg.Done()
	for ev := range w.queue {
		if w.ctx.Err() != nil {
			return
		}
		w.handle(ev)
	}
}

// resolve finds the watched root containing the path, longest match
// first, and its relative path.
func (w *watcher) resolve(path string) (root, rel string, ok bool) {
	for _, r := range w.roots {
		candidate, err := filepath.Rel(r, path)
		if err != nil || strings.HasPrefix(candidate, "..") {
			continue
		}
		if len(root) == 0 || len(r) > len(root) {
			root, rel = r, filepath.ToSlash(candidate)
		}
	}
	return root, rel, root != ""
}

func (w *watcher) handle(ev fsnotify.Event) {
	root, rel, ok := w.resolve(ev.Name)
	if !ok {
		return
	}
	rc := w.rootCtxs[root]

	switch {
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		w.handleDelete(root, rel)
	case ev.Op.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			w.registerNewDir(rc, ev.Name, rel)
			return
		}
		w.handleChange(rc, root, rel, info.Size())
	case ev.Op.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil || info.IsDir() {
			return
		}
		w.handleChange(rc, root, rel, info.Size())
	}
}

// registerNewDir adds a directory created after the watch started, so
// files appearing inside it are picked up too.
func (w *watcher) registerNewDir(rc *rootContext, abs, rel string) {
	if rc.skipDir(filepath.Base(abs), rel) {
		return
	}
	if err := w.fsw.Add(abs); err != nil {
		w.logger.Warn("watching new directory failed", "dir", abs, "error", err)
		return
	}
	w.logger.Debug("watching new directory", "dir", abs)
}

// handleChange re-indexes one created or modified file. Events whose
// modification time matches the tracked entry are dropped without
// touching the stores.
func (w *watcher) handleChange(rc *rootContext, root, rel string, size int64) {
	if !w.idx.walker.indexable(rc, rel, size) {
		return
	}

	ref := fileRef{root: root, rel: rel}
	abs := ref.abs()

	info, err := os.Stat(abs)
	if err != nil {
		return
	}
	w.idx.trackedMu.Lock()
	entry, known := w.idx.tracked[abs]
	w.idx.trackedMu.Unlock()
	if known && !info.ModTime().After(entry.lastModified) {
		return
	}

	// indexFile deletes existing entries for the path before re-adding,
	// and the content-hash gate drops touch-only events.
	if err := w.idx.indexFile(w.ctx, ref); err != nil {
		if w.ctx.Err() != nil {
			return
		}
		w.logger.Warn("re-indexing changed file failed", "path", rel, "error", err)
		return
	}

	if !known {
		w.idx.progress.update(func(p Progress) Progress {
			p.FilesIndexed++
			p.FilesTotal++
			return p
		})
	}
	w.logger.Debug("re-indexed changed file", "path", rel)
}

// handleDelete removes a deleted file's tracked state and index entries.
func (w *watcher) handleDelete(root, rel string) {
	ref := fileRef{root: root, rel: rel}
	abs := ref.abs()

	w.idx.trackedMu.Lock()
	_, known := w.idx.tracked[abs]
	delete(w.idx.tracked, abs)
	w.idx.trackedMu.Unlock()

	if _, err := w.idx.tracker.GetHash(w.ctx, w.idx.projectID, state.SourceTypeFile, rel); err != nil && !known {
		// No exact entry: a removed directory emits a single event for the
		// directory path, so purge everything tracked beneath it.
		w.handleDeleteTree(root, rel)
		return
	}

	if err := w.idx.tracker.Remove(w.ctx, w.idx.projectID, state.SourceTypeFile, rel); err != nil {
		w.logger.Warn("removing tracked state failed", "path", rel, "error", err)
	}

	vector, keyword := w.idx.stores()
	if err := vector.DeleteByPath(w.ctx, rel); err != nil {
		w.logger.Warn("purging vector entries failed", "path", rel, "error", err)
	}
	if err := keyword.DeleteByPath(w.ctx, rel); err != nil {
		w.logger.Warn("purging keyword entries failed", "path", rel, "error", err)
	}

	if known {
		w.idx.progress.update(func(p Progress) Progress {
			if p.FilesIndexed > 0 {
				p.FilesIndexed--
			}
			if p.FilesTotal > 0 {
				p.FilesTotal--
			}
			return p
		})
	}
	w.logger.Debug("removed deleted file from index", "path", rel)
}

// handleDeleteTree removes every tracked file under a deleted directory
// from the tracker, both stores, and the in-memory modtime map.
func (w *watcher) handleDeleteTree(root, rel string) {
	tracked, err := w.idx.tracker.GetAllHashes(w.ctx, w.idx.projectID, state.SourceTypeFile)
	if err != nil {
		w.logger.Warn("listing tracked state failed", "path", rel, "error", err)
		return
	}

	prefix := rel + "/"
	vector, keyword := w.idx.stores()
	removed := 0
	for path := range tracked {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		if err := w.idx.tracker.Remove(w.ctx, w.idx.projectID, state.SourceTypeFile, path); err != nil {
			w.logger.Warn("removing tracked state failed", "path", path, "error", err)
		}
		if err := vector.DeleteByPath(w.ctx, path); err != nil {
			w.logger.Warn("purging vector entries failed", "path", path, "error", err)
		}
		if err := keyword.DeleteByPath(w.ctx, path); err != nil {
			w.logger.Warn("purging keyword entries failed", "path", path, "error", err)
		}

		abs := fileRef{root: root, rel: path}.abs()
		w.idx.trackedMu.Lock()
		delete(w.idx.tracked, abs)
		w.idx.trackedMu.Unlock()
		removed++
	}
	if removed == 0 {
		return
	}

	n := removed
	w.idx.progress.update(func(p Progress) Progress {
		p.FilesIndexed -= n
		if p.FilesIndexed < 0 {
			p.FilesIndexed = 0
		}
		p.FilesTotal -= n
		if p.FilesTotal < 0 {
			p.FilesTotal = 0
		}
		return p
	})
	w.logger.Debug("removed deleted directory from index", "path", rel, "files", removed)
}
