package services

import (
	"context"
	"errors"
	"time"

	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driven"
	"github.com/custodia-labs/kbengine/internal/core/ports/driving"
	"github.com/custodia-labs/kbengine/internal/logger"
)

// Ensure CollectionService implements the interface.
var _ driving.CollectionService = (*CollectionService)(nil)

// CollectionService manages knowledge base collections.
type CollectionService struct {
	collections driven.CollectionStore
	store       driven.VectorStore
	model       string
	dimensions  int
	search      domain.SearchSettings
	persistPath string
	now         func() time.Time
}

// NewCollectionService creates a collection service. New collections are
// bound to the given embedding model and dimensions unless their config
// says otherwise.
func NewCollectionService(
	collections driven.CollectionStore,
	store driven.VectorStore,
	model string,
	dimensions int,
) *CollectionService {
	return &CollectionService{
		collections: collections,
		store:       store,
		model:       model,
		dimensions:  dimensions,
		search: domain.SearchSettings{
			TopK:            domain.DefaultTopK,
			MinScore:        domain.DefaultMinScore,
			OverFetchFactor: domain.DefaultOverFetchFactor,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SetSearchDefaults sets the search parameters given to collections
// created by Ensure.
func (s *CollectionService) SetSearchDefaults(search domain.SearchSettings) {
	s.search = search
}

// SetPersistPath records where the backing store keeps its data.
func (s *CollectionService) SetPersistPath(path string) {
	s.persistPath = path
}

// Create validates and stores a new collection. An empty embedding model or
// zero dimensions take the service's values.
func (s *CollectionService) Create(ctx context.Context, cfg domain.CollectionConfig) (*domain.CollectionConfig, error) {
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = s.model
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = s.dimensions
	}
	if cfg.PersistPath == "" {
		cfg.PersistPath = s.persistPath
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.CreatedAt = s.now()

	if err := s.collections.Create(ctx, cfg); err != nil {
		return nil, err
	}

	logger.WithFields(logger.Fields{
		"collection": cfg.Name,
		"model":      cfg.EmbeddingModel,
		"dimensions": cfg.Dimensions,
	}).Info("Collection created")
	return &cfg, nil
}

// Ensure returns the named collection, creating it with defaults if needed.
func (s *CollectionService) Ensure(ctx context.Context, name string) (*domain.CollectionConfig, error) {
	cfg, err := s.collections.Get(ctx, name)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	fresh := domain.NewCollectionConfig(name, s.model, s.dimensions)
	fresh.DefaultTopK = s.search.TopK
	fresh.DefaultMinScore = s.search.MinScore
	fresh.OverFetchFactor = s.search.OverFetchFactor

	created, err := s.Create(ctx, fresh)
	if errors.Is(err, domain.ErrAlreadyExists) {
		// Lost a race with another writer.
		return s.collections.Get(ctx, name)
	}
	return created, err
}

// Get retrieves a collection by name.
func (s *CollectionService) Get(ctx context.Context, name string) (*domain.CollectionConfig, error) {
	return s.collections.Get(ctx, name)
}

// List returns all collections.
func (s *CollectionService) List(ctx context.Context) ([]domain.CollectionConfig, error) {
	return s.collections.List(ctx)
}

// Stats returns document and chunk counts for a collection.
func (s *CollectionService) Stats(ctx context.Context, name string) (*domain.CollectionStats, error) {
	docs, err := s.store.ListDocuments(ctx, name)
	if err != nil {
		return nil, err
	}
	chunks, err := s.store.CountChunks(ctx, name)
	if err != nil {
		return nil, err
	}
	return &domain.CollectionStats{Name: name, Documents: len(docs), Chunks: chunks}, nil
}

// Delete removes a collection with all its documents.
func (s *CollectionService) Delete(ctx context.Context, name string) error {
	if err := s.collections.Delete(ctx, name); err != nil {
		return err
	}
	logger.Info("Deleted collection %s", name)
	return nil
}
