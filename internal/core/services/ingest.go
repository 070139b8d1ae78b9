package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driven"
	"github.com/custodia-labs/kbengine/internal/core/ports/driving"
	"github.com/custodia-labs/kbengine/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// IngestService chunks, embeds and stores documents.
//
// A document is committed only after every one of its chunks has a vector,
// so a failed ingestion never leaves partial state behind.
type IngestService struct {
	collections driven.CollectionStore
	store       driven.VectorStore
	embedder    *EmbeddingClient
	pipelines   driven.PipelineFactory
	normalisers driven.NormaliserRegistry
	defaults    domain.ChunkOptions
	now         func() time.Time
}

// NewIngestService creates a new ingest service.
func NewIngestService(
	collections driven.CollectionStore,
	store driven.VectorStore,
	embedder *EmbeddingClient,
	pipelines driven.PipelineFactory,
) *IngestService {
	return &IngestService{
		collections: collections,
		store:       store,
		embedder:    embedder,
		pipelines:   pipelines,
		defaults:    domain.DefaultChunkOptions(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetNormalisers enables IngestFile.
func (s *IngestService) SetNormalisers(registry driven.NormaliserRegistry) {
	s.normalisers = registry
}

// SetDefaultChunkOptions sets the options used when a call passes zero options.
func (s *IngestService) SetDefaultChunkOptions(opts domain.ChunkOptions) {
	s.defaults = opts
}

// Ingest chunks, embeds and stores one document.
func (s *IngestService) Ingest(
	ctx context.Context,
	collection, text string,
	metadata map[string]any,
	opts domain.ChunkOptions,
) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: document text is empty", domain.ErrInvalidInput)
	}

	cfg, err := s.collections.Get(ctx, collection)
	if err != nil {
		return "", err
	}
	if err := cfg.CheckEmbedding(s.embedder.Model(), s.embedder.Dimensions()); err != nil {
		return "", err
	}

	docID := domain.DocumentID(text)
	exists, err := s.store.HasDocument(ctx, collection, docID)
	if err != nil {
		return "", err
	}
	if exists {
		logger.Debug("Document %s already in %s, skipping", shortID(docID), collection)
		return docID, nil
	}

	if opts == (domain.ChunkOptions{}) {
		opts = s.defaults
	}
	pipeline, err := s.pipelines.Build(opts)
	if err != nil {
		return "", err
	}

	doc := &domain.Document{
		ID:         docID,
		Collection: collection,
		Content:    text,
		Metadata:   domain.CopyMetadata(metadata),
	}
	chunks, err := pipeline.Process(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("chunking document: %w", err)
	}
	if len(chunks) == 0 {
		return "", fmt.Errorf("%w: document produced no chunks", domain.ErrInvalidInput)
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return "", err
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	doc.ChunkCount = len(chunks)
	doc.CreatedAt = s.now()
	if err := s.store.AddDocument(ctx, doc, chunks); err != nil {
		return "", err
	}

	logger.WithFields(logger.Fields{
		"collection": collection,
		"document":   shortID(docID),
		"chunks":     len(chunks),
	}).Info("Document ingested")

	return docID, nil
}

// AddDocuments ingests docs in order and stops at the first failure.
// The returned result is never nil and lists what was committed.
func (s *IngestService) AddDocuments(
	ctx context.Context,
	collection string,
	docs []domain.DocumentInput,
	opts domain.ChunkOptions,
) (*domain.AddDocumentsResult, error) {
	result := &domain.AddDocumentsResult{
		Collection:  collection,
		DocumentIDs: make([]string, 0, len(docs)),
	}

	for i, d := range docs {
		id, err := s.Ingest(ctx, collection, d.Content, d.Metadata, opts)
		if err != nil {
			return result, fmt.Errorf("document %d: %w", i, err)
		}
		result.DocumentIDs = append(result.DocumentIDs, id)
	}

	return result, nil
}

// IngestFile normalises a raw file and ingests its text.
func (s *IngestService) IngestFile(
	ctx context.Context,
	collection string,
	raw *domain.RawDocument,
	opts domain.ChunkOptions,
) (string, error) {
	if raw == nil {
		return "", fmt.Errorf("%w: raw document is nil", domain.ErrInvalidInput)
	}
	if s.normalisers == nil {
		return "", fmt.Errorf("%w: file ingestion is not configured", domain.ErrUnsupportedType)
	}

	result, err := s.normalisers.Normalise(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("normalising %s: %w", raw.URI, err)
	}

	return s.Ingest(ctx, collection, result.Document.Content, result.Document.Metadata, opts)
}

// DeleteDocument removes a document and its chunks.
func (s *IngestService) DeleteDocument(ctx context.Context, collection, documentID string) error {
	if err := s.store.DeleteDocument(ctx, collection, documentID); err != nil {
		return err
	}
	logger.Info("Deleted document %s from %s", shortID(documentID), collection)
	return nil
}

// shortID abbreviates content hashes for log lines.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
