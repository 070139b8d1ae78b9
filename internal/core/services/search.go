package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driven"
	"github.com/custodia-labs/kbengine/internal/core/ports/driving"
	"github.com/custodia-labs/kbengine/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// SearchService retrieves passages by vector similarity and reranks them.
type SearchService struct {
	collections driven.CollectionStore
	store       driven.VectorStore
	embedder    *EmbeddingClient
	reranker    driven.Reranker
}

// NewSearchService creates a new search service.
// The reranker is optional; nil behaves like an unavailable reranker.
func NewSearchService(
	collections driven.CollectionStore,
	store driven.VectorStore,
	embedder *EmbeddingClient,
	reranker driven.Reranker,
) *SearchService {
	return &SearchService{
		collections: collections,
		store:       store,
		embedder:    embedder,
		reranker:    reranker,
	}
}

// Search returns up to topK passages relevant to query.
func (s *SearchService) Search(
	ctx context.Context,
	collection, query string,
	opts domain.SearchOptions,
) ([]domain.RankedResult, error) {
	logger.Section("Search Execution")
	logger.Debug("Collection: %s, query: %q", collection, query)

	query = strings.TrimSpace(query)
	if query == "" {
		logger.Debug("Empty query, returning no results")
		return []domain.RankedResult{}, nil
	}

	cfg, err := s.collections.Get(ctx, collection)
	if err != nil {
		return nil, err
	}
	if err := cfg.CheckEmbedding(s.embedder.Model(), s.embedder.Dimensions()); err != nil {
		return nil, err
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = cfg.DefaultTopK
	}
	minScore := cfg.DefaultMinScore
	if opts.MinScore != nil {
		minScore = *opts.MinScore
	}
	topK = min(topK, domain.MaxTopK)
	fetch := fetchLimit(topK, cfg.OverFetchFactor)

	vector, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates, err := s.store.Query(ctx, collection, vector, fetch)
	if err != nil {
		return nil, err
	}
	logger.Debug("Vector search returned %d candidates (requested %d)", len(candidates), fetch)
	if len(candidates) == 0 {
		return []domain.RankedResult{}, nil
	}

	results := make([]domain.RankedResult, len(candidates))
	for i, c := range candidates {
		results[i] = domain.NewRankedResult(c)
	}
	s.rerank(ctx, collection, query, results)

	results = filterByScore(results, minScore)
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Less(results[j])
	})
	results = dedupByContent(results)
	if len(results) > topK {
		results = results[:topK]
	}

	logger.Debug("Returning %d results (top_k=%d, min_score=%.2f)", len(results), topK, minScore)
	return results, nil
}

// rerank attaches rerank scores in place. Unavailability is logged and
// leaves the vector scores in charge.
func (s *SearchService) rerank(ctx context.Context, collection, query string, results []domain.RankedResult) {
	if s.reranker == nil {
		logger.Debug("No reranker configured, using vector scores")
		return
	}

	texts := make([]string, len(results))
	for i := range results {
		texts[i] = results[i].Content
	}

	switch outcome := s.reranker.Rerank(ctx, query, texts).(type) {
	case domain.RerankScored:
		applied := applyScores(results, outcome.Scores)
		logger.Debug("Reranker scored %d of %d candidates", applied, len(results))
	case domain.RerankUnavailable:
		logger.WithFields(logger.Fields{
			"collection": collection,
			"reason":     outcome.Error(),
		}).Warn("Reranker unavailable, falling back to vector scores")
	}
}

// applyScores merges scores by index. Out-of-range, repeated and NaN
// entries are ignored. It returns the number of scores applied.
func applyScores(results []domain.RankedResult, scores []domain.RerankScore) int {
	applied := 0
	for _, sc := range scores {
		if sc.Index < 0 || sc.Index >= len(results) || math.IsNaN(sc.Score) {
			continue
		}
		if results[sc.Index].Reranked() {
			continue
		}
		results[sc.Index].RerankScore = domain.Float64(sc.Score)
		applied++
	}
	return applied
}

func filterByScore(results []domain.RankedResult, minScore float64) []domain.RankedResult {
	kept := results[:0]
	for _, r := range results {
		if r.EffectiveScore() >= minScore {
			kept = append(kept, r)
		}
	}
	return kept
}

// dedupByContent keeps the first occurrence of each text. Input must
// already be sorted.
func dedupByContent(results []domain.RankedResult) []domain.RankedResult {
	seen := make(map[string]struct{}, len(results))
	kept := results[:0]
	for _, r := range results {
		if _, ok := seen[r.Content]; ok {
			continue
		}
		seen[r.Content] = struct{}{}
		kept = append(kept, r)
	}
	return kept
}

// fetchLimit returns topK × factor, capped at domain.MaxCandidates.
func fetchLimit(topK, factor int) int {
	factor = max(factor, 1)
	if factor > domain.MaxCandidates/topK {
		return domain.MaxCandidates
	}
	return topK * factor
}
