package driving

import (
	"context"

	"github.com/custodia-labs/kbengine/internal/core/domain"
)

// SearchService provides retrieval over a collection to external actors.
type SearchService interface {
	// Search returns up to TopK passages relevant to query, reranked when
	// the reranker is available and filtered by MinScore.
	Search(ctx context.Context, collection, query string, opts domain.SearchOptions) ([]domain.RankedResult, error)
}
