package index

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/lodestone-ai/lodestone/internal/config"
)

// walker selects the indexable files under a project root. The predicate
// chain, applied in order: hidden-name skip, binary-extension skip,
// excluded-filename skip, common exclude skip, project-type exclude
// skip, gitignore skip, then the extension must be supported. Files
// failing any check are skipped without error.
type walker struct {
	cfg          config.IndexingConfig
	supported    map[string]bool
	binary       map[string]bool
	excludeNames map[string]bool
	logger       *slog.Logger
}

func newWalker(cfg config.IndexingConfig, logger *slog.Logger) *walker {
	toSet := func(list []string) map[string]bool {
		m := make(map[string]bool, len(list))
		for _, s := range list {
			m[strings.ToLower(s)] = true
		}
		return m
	}
	return &walker{
		cfg:          cfg,
		supported:    toSet(cfg.SupportedExtensions),
		binary:       toSet(cfg.BinaryExtensions),
		excludeNames: toSet(cfg.ExcludeFileNames),
		logger:       logger,
	}
}

// rootContext is the per-root state the predicate needs: the merged
// exclude set from common and detected project-type excludes, plus the
// compiled root .gitignore when one exists.
type rootContext struct {
	root     string
	excludes map[string]bool
	ignorer  *ignore.GitIgnore
}

// newRootContext detects the project type(s) by marker files at root and
// merges their exclude directories with the common set.
func (w *walker) newRootContext(root string) *rootContext {
	excludes := make(map[string]bool, len(w.cfg.CommonExcludes))
	for _, dir := range w.cfg.CommonExcludes {
		excludes[dir] = true
	}
	for marker, dirs := range w.cfg.ProjectExcludes {
		if _, err := os.Stat(filepath.Join(root, marker)); err == nil {
			for _, dir := range dirs {
				excludes[dir] = true
			}
		}
	}

	rc := &rootContext{root: root, excludes: excludes}
	if ign, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
		rc.ignorer = ign
	}
	return rc
}

// skipDir reports whether an entire directory subtree is excluded.
func (rc *rootContext) skipDir(name, relPath string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	if rc.excludes[name] {
		return true
	}
	if rc.ignorer != nil && rc.ignorer.MatchesPath(relPath+"/") {
		return true
	}
	return false
}

// indexable applies the file predicate chain to one regular file.
func (w *walker) indexable(rc *rootContext, relPath string, size int64) bool {
	name := filepath.Base(relPath)
	if strings.HasPrefix(name, ".") {
		return false
	}

	ext := strings.ToLower(filepath.Ext(name))
	if w.binary[ext] {
		return false
	}
	if w.excludeNames[strings.ToLower(name)] {
		return false
	}
	for _, seg := range strings.Split(filepath.ToSlash(relPath), "/") {
		if rc.excludes[seg] {
			return false
		}
	}
	if rc.ignorer != nil && rc.ignorer.MatchesPath(relPath) {
		return false
	}
	if !w.supported[ext] {
		return false
	}
	if w.cfg.MaxFileBytes > 0 && size > w.cfg.MaxFileBytes {
		w.logger.Debug("skipping oversized file", "path", relPath, "size", size)
		return false
	}
	return true
}

// walk returns the relative paths of all indexable files under root,
// in walk order.
func (w *walker) walk(root string) ([]string, error) {
	rc := w.newRootContext(root)

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			w.logger.Debug("skipping unreadable entry", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rc.skipDir(d.Name(), rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		if w.indexable(rc, rel, info.Size()) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return paths, nil
}

// watchDirs returns root plus every non-excluded subdirectory, for
// recursive watch registration.
func (w *walker) watchDirs(root string) ([]string, error) {
	rc := w.newRootContext(root)

	dirs := []string{root}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() || path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if rc.skipDir(d.Name(), filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collecting watch directories under %s: %w", root, err)
	}
	return dirs, nil
}
