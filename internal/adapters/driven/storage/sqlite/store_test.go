package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kbengine/internal/adapters/driven/storage/storetest"
	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driven"
)

// setupTestStore creates a SQLite store in a temporary directory.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, store)

	t.Cleanup(func() { _ = store.Close() })
	return store
}

type combined struct {
	driven.VectorStore
	driven.CollectionStore
}

func TestStore_Behaviour(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store {
		s := setupTestStore(t)
		return combined{VectorStore: s.VectorStore(), CollectionStore: s.CollectionStore()}
	})
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	store, err := NewStore(dir)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, filepath.Join(dir, DatabaseFileName), store.Path())
	_, err = os.Stat(store.Path())
	assert.NoError(t, err)
}

func TestNewStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	cfg := domain.NewCollectionConfig("kb", "m", 2)
	require.NoError(t, store.CollectionStore().Create(ctx, cfg))
	require.NoError(t, store.VectorStore().AddDocument(ctx,
		&domain.Document{ID: "d", Collection: "kb", Metadata: map[string]any{"source": "a.md"}},
		[]domain.Chunk{{ID: "c", DocumentID: "d", Content: "hello", Embedding: []float32{0.5, 0.25}}},
	))
	require.NoError(t, store.Close())

	// Migrations must not run twice.
	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	doc, err := reopened.VectorStore().GetDocument(ctx, "kb", "d")
	require.NoError(t, err)
	assert.Equal(t, "a.md", doc.Metadata["source"])
	assert.Equal(t, 1, doc.ChunkCount)

	results, err := reopened.VectorStore().Query(ctx, "kb", []float32{0.5, 0.25}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].VectorScore, 1e-6)
}

func TestStore_CollectionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	cfg := domain.CollectionConfig{
		Name:            "docs",
		EmbeddingModel:  "nomic-embed-text",
		Dimensions:      768,
		PersistPath:     store.Path(),
		DefaultTopK:     8,
		DefaultMinScore: 0.35,
		OverFetchFactor: 4,
	}
	require.NoError(t, store.CollectionStore().Create(ctx, cfg))

	got, err := store.CollectionStore().Get(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, cfg.EmbeddingModel, got.EmbeddingModel)
	assert.Equal(t, cfg.Dimensions, got.Dimensions)
	assert.Equal(t, cfg.PersistPath, got.PersistPath)
	assert.Equal(t, cfg.DefaultTopK, got.DefaultTopK)
	assert.InDelta(t, cfg.DefaultMinScore, got.DefaultMinScore, 1e-9)
	assert.Equal(t, cfg.OverFetchFactor, got.OverFetchFactor)
}

func TestStore_StorageErrorsWrapped(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.db.Close())

	_, err := store.CollectionStore().List(context.Background())
	assert.ErrorIs(t, err, domain.ErrVectorStore)
}

func TestStore_CloseIdempotent(t *testing.T) {
	store := setupTestStore(t)
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestFloat32Conversion(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3.4028235e38}
	assert.Equal(t, in, bytesToFloat32Slice(float32SliceToBytes(in)))
	assert.Nil(t, float32SliceToBytes(nil))
	assert.Nil(t, bytesToFloat32Slice(nil))
}
