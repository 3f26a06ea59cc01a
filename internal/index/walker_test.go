package index

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func newTestWalker(t *testing.T) *walker {
	t.Helper()
	return newWalker(testIndexingConfig(), slog.New(slog.DiscardHandler))
}

func TestWalker_PredicateChain(t *testing.T) {
	w := newTestWalker(t)
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/demo")
	rc := w.newRootContext(root)

	tests := []struct {
		name string
		rel  string
		size int64
		want bool
	}{
		{"supported file", "readme.md", 100, true},
		{"nested supported file", "docs/guide.txt", 100, true},
		{"hidden file", ".env", 100, false},
		{"binary extension", "logo.png", 100, false},
		{"excluded filename", "go.sum", 100, false},
		{"common exclude segment", "node_modules/pkg/index.md", 100, false},
		{"project-type exclude segment", "bin/tool.go", 100, false},
		{"unsupported extension", "archive.tar.zst", 100, false},
		{"oversized file", "big.md", 10 << 20, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.indexable(rc, tt.rel, tt.size); got != tt.want {
				t.Errorf("indexable(%q) = %v, want %v", tt.rel, got, tt.want)
			}
		})
	}
}

func TestWalker_ProjectExcludesNeedMarker(t *testing.T) {
	w := newTestWalker(t)

	// Without go.mod at the root, "bin" is not excluded.
	root := t.TempDir()
	rc := w.newRootContext(root)
	if !w.indexable(rc, "bin/tool.go", 100) {
		t.Error("project-type exclude applied without its marker file")
	}
}

func TestWalker_GitignoreRespected(t *testing.T) {
	w := newTestWalker(t)
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "generated/\nsecret.md\n")
	writeFile(t, root, "kept.md", "kept")
	writeFile(t, root, "secret.md", "ignored")
	writeFile(t, root, "generated/out.md", "ignored")

	paths, err := w.walk(root)
	if err != nil {
		t.Fatalf("walk failed: %v", err)
	}
	if !slices.Contains(paths, "kept.md") {
		t.Errorf("kept.md missing from %v", paths)
	}
	if slices.Contains(paths, "secret.md") || slices.Contains(paths, "generated/out.md") {
		t.Errorf("gitignored paths walked: %v", paths)
	}
}

func TestWalker_WalkSkipsHiddenDirs(t *testing.T) {
	w := newTestWalker(t)
	root := t.TempDir()
	writeFile(t, root, "visible.md", "ok")
	writeFile(t, root, ".git/config.md", "hidden")

	paths, err := w.walk(root)
	if err != nil {
		t.Fatalf("walk failed: %v", err)
	}
	if len(paths) != 1 || paths[0] != "visible.md" {
		t.Errorf("paths = %v, want only visible.md", paths)
	}
}

func TestWalker_WatchDirsExcludes(t *testing.T) {
	w := newTestWalker(t)
	root := t.TempDir()
	for _, dir := range []string{"src", "src/deep", "node_modules", ".git"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o750); err != nil {
			t.Fatalf("creating %s: %v", dir, err)
		}
	}

	dirs, err := w.watchDirs(root)
	if err != nil {
		t.Fatalf("watchDirs failed: %v", err)
	}

	want := []string{root, filepath.Join(root, "src"), filepath.Join(root, "src", "deep")}
	slices.Sort(dirs)
	slices.Sort(want)
	if !slices.Equal(dirs, want) {
		t.Errorf("dirs = %v, want %v", dirs, want)
	}
}
