package driven

import (
	"context"

	"github.com/custodia-labs/kbengine/internal/core/domain"
)

// Reranker scores candidate passages against a query with a relevance model.
//
// Rerank never returns an error: a missing credential, network failure,
// non-2xx status or malformed response yields domain.RerankUnavailable and
// the caller falls back to vector similarity.
type Reranker interface {
	// Rerank scores candidates in one batched call. Score indices refer to
	// positions in candidates.
	Rerank(ctx context.Context, query string, candidates []string) domain.RerankOutcome
}
