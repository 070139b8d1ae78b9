package services

import (
	"context"

	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driven"
	"github.com/custodia-labs/kbengine/internal/core/ports/driving"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService provides read access to stored documents.
type DocumentService struct {
	store driven.VectorStore
}

// NewDocumentService creates a new document service.
func NewDocumentService(store driven.VectorStore) *DocumentService {
	return &DocumentService{store: store}
}

// List returns all documents in a collection, oldest first.
func (s *DocumentService) List(ctx context.Context, collection string) ([]domain.Document, error) {
	return s.store.ListDocuments(ctx, collection)
}

// Get retrieves a document by ID.
func (s *DocumentService) Get(ctx context.Context, collection, documentID string) (*domain.Document, error) {
	return s.store.GetDocument(ctx, collection, documentID)
}
