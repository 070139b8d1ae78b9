package driven

import (
	"context"

	"github.com/custodia-labs/kbengine/internal/core/domain"
)

// VectorStore persists chunks with their embeddings and answers similarity
// queries within a collection.
//
// Storage failures are wrapped in domain.ErrVectorStore. After Close every
// method returns domain.ErrStoreClosed.
type VectorStore interface {
	// AddDocument commits a document record and all its chunks atomically.
	// Chunks are upserted by ID, so repeating the call is harmless.
	AddDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error

	// Add upserts a single chunk. The owning document must already exist.
	Add(ctx context.Context, collection string, chunk domain.Chunk) error

	// Query returns up to limit chunks ordered by descending cosine
	// similarity. Equal scores keep insertion order. An empty collection
	// yields an empty slice.
	Query(ctx context.Context, collection string, vector []float32, limit int) ([]domain.CandidateResult, error)

	// DeleteDocument removes a document and all of its chunks.
	DeleteDocument(ctx context.Context, collection, documentID string) error

	// HasDocument reports whether the document is committed.
	HasDocument(ctx context.Context, collection, documentID string) (bool, error)

	// GetDocument retrieves a document record.
	GetDocument(ctx context.Context, collection, documentID string) (*domain.Document, error)

	// ListDocuments returns all documents in a collection, oldest first.
	ListDocuments(ctx context.Context, collection string) ([]domain.Document, error)

	// CountChunks returns the number of chunks stored in a collection.
	CountChunks(ctx context.Context, collection string) (int, error)

	// Close releases resources.
	Close() error
}

// CollectionStore persists collection configuration.
type CollectionStore interface {
	// Create stores a new collection. Returns domain.ErrAlreadyExists if the
	// name is taken.
	Create(ctx context.Context, cfg domain.CollectionConfig) error

	// Get retrieves a collection by name.
	Get(ctx context.Context, name string) (*domain.CollectionConfig, error)

	// List returns all collections ordered by name.
	List(ctx context.Context) ([]domain.CollectionConfig, error)

	// Delete removes a collection with all its documents and chunks.
	Delete(ctx context.Context, name string) error
}
