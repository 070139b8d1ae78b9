package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kbengine/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/kbengine/internal/core/domain"
)

func newCollectionService() (*CollectionService, *memory.VectorStore) {
	store := memory.NewVectorStore()
	return NewCollectionService(store, store, testModel, 4), store
}

func TestCollectionService_CreateFillsDefaults(t *testing.T) {
	svc, _ := newCollectionService()
	svc.SetPersistPath("/var/lib/kb")

	cfg, err := svc.Create(context.Background(), domain.CollectionConfig{Name: "docs"})

	require.NoError(t, err)
	assert.Equal(t, testModel, cfg.EmbeddingModel)
	assert.Equal(t, 4, cfg.Dimensions)
	assert.Equal(t, "/var/lib/kb", cfg.PersistPath)
	assert.Equal(t, domain.DefaultTopK, cfg.DefaultTopK)
	assert.Equal(t, domain.DefaultOverFetchFactor, cfg.OverFetchFactor)
	assert.False(t, cfg.CreatedAt.IsZero())
}

func TestCollectionService_CreateValidates(t *testing.T) {
	svc, _ := newCollectionService()

	tests := []struct {
		name string
		cfg  domain.CollectionConfig
	}{
		{"bad name", domain.CollectionConfig{Name: "has space"}},
		{"negative min score", domain.CollectionConfig{Name: "a", DefaultMinScore: -0.1}},
		{"negative dims", domain.CollectionConfig{Name: "a", Dimensions: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.cfg)
			assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
		})
	}
}

func TestCollectionService_CreateDuplicate(t *testing.T) {
	svc, _ := newCollectionService()
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CollectionConfig{Name: "docs"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, domain.CollectionConfig{Name: "docs"})

	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestCollectionService_Ensure(t *testing.T) {
	svc, _ := newCollectionService()
	svc.SetSearchDefaults(domain.SearchSettings{TopK: 9, MinScore: 0.4, OverFetchFactor: 2})
	ctx := context.Background()

	created, err := svc.Ensure(ctx, "kb")
	require.NoError(t, err)
	assert.Equal(t, 9, created.DefaultTopK)
	assert.InDelta(t, 0.4, created.DefaultMinScore, 1e-9)
	assert.Equal(t, 2, created.OverFetchFactor)

	again, err := svc.Ensure(ctx, "kb")
	require.NoError(t, err)
	assert.Equal(t, created.CreatedAt, again.CreatedAt)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCollectionService_StatsAndDelete(t *testing.T) {
	svc, store := newCollectionService()
	ctx := context.Background()

	_, err := svc.Ensure(ctx, "kb")
	require.NoError(t, err)
	require.NoError(t, store.AddDocument(ctx, &domain.Document{ID: "d", Collection: "kb"}, []domain.Chunk{
		{ID: "c0", DocumentID: "d", Embedding: []float32{1, 0, 0, 0}},
		{ID: "c1", DocumentID: "d", Position: 1, Embedding: []float32{0, 1, 0, 0}},
	}))

	stats, err := svc.Stats(ctx, "kb")
	require.NoError(t, err)
	assert.Equal(t, &domain.CollectionStats{Name: "kb", Documents: 1, Chunks: 2}, stats)

	require.NoError(t, svc.Delete(ctx, "kb"))
	_, err = svc.Get(ctx, "kb")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Stats(ctx, "kb")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentService(t *testing.T) {
	ctx := context.Background()
	store := memory.NewVectorStore()
	require.NoError(t, store.Create(ctx, domain.NewCollectionConfig("kb", testModel, 2)))
	require.NoError(t, store.AddDocument(ctx,
		&domain.Document{ID: "d", Collection: "kb", Metadata: map[string]any{"source": "a.md"}},
		[]domain.Chunk{{ID: "c", DocumentID: "d", Embedding: []float32{1, 0}}}))

	svc := NewDocumentService(store)

	docs, err := svc.List(ctx, "kb")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a.md", docs[0].Metadata["source"])

	doc, err := svc.Get(ctx, "kb", "d")
	require.NoError(t, err)
	assert.Equal(t, 1, doc.ChunkCount)

	_, err = svc.Get(ctx, "kb", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
