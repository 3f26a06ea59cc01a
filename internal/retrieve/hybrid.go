// Package retrieve ranks indexed chunks for a query. The hybrid
// retriever fuses semantic and lexical search with reciprocal rank
// fusion; the intent gate decides per message whether retrieval is
// worth running at all.
package retrieve

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/lodestone-ai/lodestone/internal/config"
	"github.com/lodestone-ai/lodestone/internal/store"
)

// VectorSearcher is the semantic half of hybrid retrieval.
type VectorSearcher interface {
	Search(ctx context.Context, query string, maxResults int, minScore float32) ([]store.ScoredChunk, error)
}

// KeywordSearcher is the lexical half of hybrid retrieval.
type KeywordSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]store.ScoredChunk, error)
}

// Hybrid merges vector and keyword search results by reciprocal rank
// fusion: each list contributes 1/(k+rank) per item, items found by
// both lists sum their contributions, and ties break by vector rank.
type Hybrid struct {
	vector  VectorSearcher
	keyword KeywordSearcher
	cfg     config.SearchConfig
	logger  *slog.Logger
}

// NewHybrid creates a hybrid retriever. Zero config fields fall back to
// defaults.
func NewHybrid(vector VectorSearcher, keyword KeywordSearcher, cfg config.SearchConfig, logger *slog.Logger) *Hybrid {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.VectorMaxResults <= 0 {
		cfg.VectorMaxResults = config.DefaultVectorMaxResults
	}
	if cfg.KeywordMaxResults <= 0 {
		cfg.KeywordMaxResults = config.DefaultKeywordMaxResults
	}
	if cfg.HybridMaxResults <= 0 {
		cfg.HybridMaxResults = config.DefaultHybridMaxResults
	}
	if cfg.RankFusionK <= 0 {
		cfg.RankFusionK = config.DefaultRankFusionK
	}
	return &Hybrid{vector: vector, keyword: keyword, cfg: cfg, logger: logger}
}

// fused accumulates one chunk's contributions from both lists.
type fused struct {
	chunk      store.Chunk
	score      float64
	vectorRank int // 1-based, 0 when absent from the vector list
}

// Retrieve runs both sub-searches in parallel and returns up to
// maxResults chunks ranked by fused score. A failing sub-search fails
// the whole call; an empty sub-result is normal.
func (h *Hybrid) Retrieve(ctx context.Context, query string, maxResults int) ([]store.ScoredChunk, error) {
	if maxResults <= 0 {
		maxResults = h.cfg.HybridMaxResults
	}

	var vecResults, kwResults []store.ScoredChunk
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vecResults, err = h.vector.Search(gctx, query, h.cfg.VectorMaxResults, h.cfg.VectorMinScore)
		return err
	})
	g.Go(func() error {
		var err error
		kwResults, err = h.keyword.Search(gctx, query, h.cfg.KeywordMaxResults)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := h.fuse(vecResults, kwResults)
	if len(merged) > maxResults {
		merged = merged[:maxResults]
	}

	h.logger.Debug("hybrid retrieval",
		"vector", len(vecResults), "keyword", len(kwResults), "fused", len(merged))
	return merged, nil
}

func (h *Hybrid) fuse(vecResults, kwResults []store.ScoredChunk) []store.ScoredChunk {
	k := float64(h.cfg.RankFusionK)
	byID := make(map[string]*fused, len(vecResults)+len(kwResults))

	for i, r := range vecResults {
		rank := i + 1
		byID[r.ID] = &fused{chunk: r.Chunk, score: 1 / (k + float64(rank)), vectorRank: rank}
	}
	for i, r := range kwResults {
		rank := i + 1
		if f, ok := byID[r.ID]; ok {
			f.score += 1 / (k + float64(rank))
			continue
		}
		byID[r.ID] = &fused{chunk: r.Chunk, score: 1 / (k + float64(rank))}
	}

	all := make([]*fused, 0, len(byID))
	for _, f := range byID {
		all = append(all, f)
	}
	sort.Slice(all, func(a, b int) bool {
		if all[a].score != all[b].score {
			return all[a].score > all[b].score
		}
		// Equal fused scores: prefer the better vector rank; absent
		// vector entries sort last.
		ra, rb := all[a].vectorRank, all[b].vectorRank
		if ra == 0 {
			return false
		}
		if rb == 0 {
			return true
		}
		return ra < rb
	})

	out := make([]store.ScoredChunk, len(all))
	for i, f := range all {
		out[i] = store.ScoredChunk{Chunk: f.chunk, Score: f.score}
	}
	return out
}
