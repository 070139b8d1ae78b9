package mcp

import (
	"context"

	"github.com/custodia-labs/kbengine/internal/core/domain"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	results []domain.RankedResult
	err     error

	gotCollection string
	gotQuery      string
	gotOpts       domain.SearchOptions
}

func (m *mockSearchService) Search(
	_ context.Context,
	collection, query string,
	opts domain.SearchOptions,
) ([]domain.RankedResult, error) {
	m.gotCollection = collection
	m.gotQuery = query
	m.gotOpts = opts
	return m.results, m.err
}

// mockIngestService is a mock implementation of driving.IngestService.
type mockIngestService struct {
	result *domain.AddDocumentsResult
	err    error

	gotCollection string
	gotDocs       []domain.DocumentInput
}

func (m *mockIngestService) Ingest(
	_ context.Context, _, _ string, _ map[string]any, _ domain.ChunkOptions,
) (string, error) {
	return "", m.err
}

func (m *mockIngestService) AddDocuments(
	_ context.Context, collection string, docs []domain.DocumentInput, _ domain.ChunkOptions,
) (*domain.AddDocumentsResult, error) {
	m.gotCollection = collection
	m.gotDocs = docs
	return m.result, m.err
}

func (m *mockIngestService) IngestFile(
	_ context.Context, _ string, _ *domain.RawDocument, _ domain.ChunkOptions,
) (string, error) {
	return "", m.err
}

func (m *mockIngestService) DeleteDocument(_ context.Context, _, _ string) error {
	return m.err
}

// mockCollectionService is a mock implementation of driving.CollectionService.
type mockCollectionService struct {
	collections []domain.CollectionConfig
	stats       map[string]domain.CollectionStats
	err         error
	ensured     []string
}

func (m *mockCollectionService) Create(_ context.Context, cfg domain.CollectionConfig) (*domain.CollectionConfig, error) {
	return &cfg, m.err
}

func (m *mockCollectionService) Ensure(_ context.Context, name string) (*domain.CollectionConfig, error) {
	m.ensured = append(m.ensured, name)
	if m.err != nil {
		return nil, m.err
	}
	return &domain.CollectionConfig{Name: name}, nil
}

func (m *mockCollectionService) Get(_ context.Context, name string) (*domain.CollectionConfig, error) {
	for i := range m.collections {
		if m.collections[i].Name == name {
			return &m.collections[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockCollectionService) List(_ context.Context) ([]domain.CollectionConfig, error) {
	return m.collections, m.err
}

func (m *mockCollectionService) Stats(_ context.Context, name string) (*domain.CollectionStats, error) {
	s := m.stats[name]
	s.Name = name
	return &s, m.err
}

func (m *mockCollectionService) Delete(_ context.Context, _ string) error {
	return m.err
}

// mockDocumentService is a mock implementation of driving.DocumentService.
type mockDocumentService struct {
	docs map[string][]domain.Document
	err  error
}

func (m *mockDocumentService) List(_ context.Context, collection string) ([]domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.docs[collection], nil
}

func (m *mockDocumentService) Get(_ context.Context, collection, id string) (*domain.Document, error) {
	for i := range m.docs[collection] {
		if m.docs[collection][i].ID == id {
			return &m.docs[collection][i], nil
		}
	}
	return nil, domain.ErrNotFound
}
