package driving

import (
	"context"

	"github.com/custodia-labs/kbengine/internal/core/domain"
)

// CollectionService manages knowledge base collections.
type CollectionService interface {
	// Create validates and stores a new collection.
	Create(ctx context.Context, cfg domain.CollectionConfig) (*domain.CollectionConfig, error)

	// Ensure returns the named collection, creating it with the engine's
	// embedding model and defaults when it does not exist.
	Ensure(ctx context.Context, name string) (*domain.CollectionConfig, error)

	// Get retrieves a collection by name.
	Get(ctx context.Context, name string) (*domain.CollectionConfig, error)

	// List returns all collections.
	List(ctx context.Context) ([]domain.CollectionConfig, error)

	// Stats returns document and chunk counts for a collection.
	Stats(ctx context.Context, name string) (*domain.CollectionStats, error)

	// Delete removes a collection with all its documents.
	Delete(ctx context.Context, name string) error
}
