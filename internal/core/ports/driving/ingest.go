package driving

import (
	"context"

	"github.com/custodia-labs/kbengine/internal/core/domain"
)

// IngestService adds documents to collections.
type IngestService interface {
	// Ingest chunks, embeds and stores one document. It returns the
	// content-derived document ID; ingesting the same text twice is a no-op.
	Ingest(ctx context.Context, collection, text string, metadata map[string]any, opts domain.ChunkOptions) (string, error)

	// AddDocuments ingests documents in order and stops at the first failure.
	// The result lists the documents committed before the failure.
	AddDocuments(ctx context.Context, collection string, docs []domain.DocumentInput, opts domain.ChunkOptions) (*domain.AddDocumentsResult, error)

	// IngestFile normalises a raw file and ingests its text.
	IngestFile(ctx context.Context, collection string, raw *domain.RawDocument, opts domain.ChunkOptions) (string, error)

	// DeleteDocument removes a document and its chunks.
	DeleteDocument(ctx context.Context, collection, documentID string) error
}
