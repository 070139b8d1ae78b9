package driving

import (
	"context"

	"github.com/custodia-labs/kbengine/internal/core/domain"
)

// DocumentService exposes the documents stored in a collection.
type DocumentService interface {
	// List returns all documents in a collection, oldest first.
	List(ctx context.Context, collection string) ([]domain.Document, error)

	// Get retrieves a document by ID.
	Get(ctx context.Context, collection, documentID string) (*domain.Document, error)
}
