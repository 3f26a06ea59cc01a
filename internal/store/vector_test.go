package store

import (
	"context"
	"math"
	"strings"
	"testing"

	chromem "github.com/philippgille/chromem-go"
)

// stubEmbedding maps text onto three fixed topic axes by word overlap.
// Deterministic and normalized, so similarity ordering is predictable.
func stubEmbedding(_ context.Context, text string) ([]float32, error) {
	axes := [][]string{
		{"index", "chunk", "pipeline", "file"},
		{"apple", "orange", "grocery", "flour"},
		{"engine", "wheel", "brake", "car"},
	}

	vec := []float32{0.01, 0.01, 0.01}
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,:;!?")
		for i, axis := range axes {
			for _, a := range axis {
				if strings.HasPrefix(word, a) {
					vec[i]++
				}
			}
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func newTestVector(t *testing.T) *Vector {
	t.Helper()
	v, err := NewVector(t.TempDir(), chromem.EmbeddingFunc(stubEmbedding), nil)
	if err != nil {
		t.Fatalf("NewVector failed: %v", err)
	}
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func addTestChunks(t *testing.T, v *Vector) {
	t.Helper()
	ctx := context.Background()
	for _, c := range testChunks() {
		if err := v.Add(ctx, c); err != nil {
			t.Fatalf("Add(%s) failed: %v", c.ID, err)
		}
	}
}

func TestVector_AddAndSearch(t *testing.T) {
	v := newTestVector(t)
	addTestChunks(t, v)

	results, err := v.Search(context.Background(), "apples and oranges for the grocery run", 10, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	if results[0].FilePath != "notes.txt" {
		t.Errorf("top result path = %q, want notes.txt", results[0].FilePath)
	}
}

func TestVector_SearchRoundTripsMetadata(t *testing.T) {
	v := newTestVector(t)
	addTestChunks(t, v)

	results, err := v.Search(context.Background(), "index pipeline chunks", 10, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}

	top := results[0]
	if top.FilePath != "docs/guide.md" {
		t.Fatalf("top result path = %q, want docs/guide.md", top.FilePath)
	}
	if top.FileName != "guide.md" || top.Extension != ".md" {
		t.Errorf("metadata mismatch: %+v", top.Chunk)
	}
	if top.Text == "" {
		t.Error("result text must carry the chunk content")
	}
}

func TestVector_SearchEmptyStore(t *testing.T) {
	v := newTestVector(t)

	results, err := v.Search(context.Background(), "anything", 10, 0)
	if err != nil {
		t.Fatalf("Search on empty store failed: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results, got %v", results)
	}
}

func TestVector_SearchClampsToCount(t *testing.T) {
	v := newTestVector(t)
	addTestChunks(t, v)

	// maxResults above the collection size must not error.
	results, err := v.Search(context.Background(), "index", 100, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}
}

func TestVector_SearchMinScore(t *testing.T) {
	v := newTestVector(t)
	addTestChunks(t, v)

	results, err := v.Search(context.Background(), "grocery apples oranges flour", 10, 0.9)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for _, r := range results {
		if r.Score < 0.9 {
			t.Errorf("result below threshold survived: %+v", r)
		}
	}
	// The off-topic chunks must be filtered out.
	if len(results) >= 3 {
		t.Errorf("min-score filter dropped nothing: %d results", len(results))
	}
}

func TestVector_DeleteByPath(t *testing.T) {
	v := newTestVector(t)
	addTestChunks(t, v)
	ctx := context.Background()

	if err := v.DeleteByPath(ctx, "docs/guide.md"); err != nil {
		t.Fatalf("DeleteByPath failed: %v", err)
	}
	if got := v.Count(); got != 1 {
		t.Errorf("count = %d after delete, want 1", got)
	}

	results, err := v.Search(ctx, "index pipeline", 10, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for _, r := range results {
		if r.FilePath == "docs/guide.md" {
			t.Errorf("deleted path still searchable: %+v", r)
		}
	}
}

func TestVector_Clear(t *testing.T) {
	v := newTestVector(t)
	addTestChunks(t, v)

	if err := v.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if got := v.Count(); got != 0 {
		t.Errorf("count = %d after clear, want 0", got)
	}

	// The store stays usable after a clear.
	if err := v.Add(context.Background(), testChunks()[0]); err != nil {
		t.Fatalf("Add after clear failed: %v", err)
	}
	if got := v.Count(); got != 1 {
		t.Errorf("count = %d after re-add, want 1", got)
	}
}

func TestVector_Persistence(t *testing.T) {
	dir := t.TempDir()

	v, err := NewVector(dir, chromem.EmbeddingFunc(stubEmbedding), nil)
	if err != nil {
		t.Fatalf("NewVector failed: %v", err)
	}
	addTestChunks(t, v)
	if err := v.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewVector(dir, chromem.EmbeddingFunc(stubEmbedding), nil)
	if err != nil {
		t.Fatalf("reopening vector store failed: %v", err)
	}
	defer reopened.Close()

	if got := reopened.Count(); got != 3 {
		t.Errorf("count = %d after reopen, want 3", got)
	}
}

func TestNewChunkID(t *testing.T) {
	a := NewChunkID("proj", "a.md", 0)
	b := NewChunkID("proj", "a.md", 0)
	if a != b {
		t.Errorf("identical inputs produced different IDs: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "chunk_") {
		t.Errorf("ID %q missing chunk_ prefix", a)
	}

	if NewChunkID("proj", "a.md", 1) == a {
		t.Error("chunk index must change the ID")
	}
	if NewChunkID("proj", "b.md", 0) == a {
		t.Error("file path must change the ID")
	}
	if NewChunkID("other", "a.md", 0) == a {
		t.Error("project must change the ID")
	}
}
