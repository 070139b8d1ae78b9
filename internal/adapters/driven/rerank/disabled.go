package rerank

import (
	"context"
	"errors"

	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driven"
)

var _ driven.Reranker = Disabled{}

// ErrNotConfigured is the reason reported by Disabled.
var ErrNotConfigured = errors.New("reranker not configured")

// Disabled is a Reranker that never scores.
type Disabled struct{}

// Rerank always reports the reranker as unavailable.
func (Disabled) Rerank(_ context.Context, _ string, _ []string) domain.RerankOutcome {
	return domain.RerankUnavailable{Reason: ErrNotConfigured}
}
