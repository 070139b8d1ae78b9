// Package storetest holds behaviour tests shared by every vector store
// backend. Backends call Run from their own _test.go files.
package storetest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driven"
)

// Store is a backend serving both vector and collection storage.
type Store interface {
	driven.VectorStore
	driven.CollectionStore
}

// Factory returns a fresh, empty store. Cleanup is the caller's business.
type Factory func(t *testing.T) Store

const dims = 3

// Run executes the shared suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Store)
	}{
		{"CollectionLifecycle", testCollectionLifecycle},
		{"CreateDuplicate", testCreateDuplicate},
		{"UnknownCollection", testUnknownCollection},
		{"AddDocumentAndQuery", testAddDocumentAndQuery},
		{"QueryTieBreak", testQueryTieBreak},
		{"QueryLimit", testQueryLimit},
		{"QueryDimensionMismatch", testQueryDimensionMismatch},
		{"AddDocumentDimensionMismatch", testAddDocumentDimensionMismatch},
		{"AddDocumentForeignChunk", testAddDocumentForeignChunk},
		{"ReAddDropsStaleChunks", testReAddDropsStaleChunks},
		{"AddChunk", testAddChunk},
		{"DeleteDocument", testDeleteDocument},
		{"DeleteCollectionCascades", testDeleteCollectionCascades},
		{"ListDocumentsOrder", testListDocumentsOrder},
		{"ZeroMagnitude", testZeroMagnitude},
		{"CollectionsIsolated", testCollectionsIsolated},
		{"Closed", testClosed},
		{"ConcurrentAddDocument", testConcurrentAddDocument},
		{"ConcurrentAddAndQuery", testConcurrentAddAndQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func newCollection(t *testing.T, s Store, name string) {
	t.Helper()
	cfg := domain.NewCollectionConfig(name, "test-model", dims)
	require.NoError(t, s.Create(context.Background(), cfg))
}

func document(collection, id string, metadata map[string]any) *domain.Document {
	return &domain.Document{ID: id, Collection: collection, Metadata: metadata}
}

func chunk(docID string, pos int, content string, vec ...float32) domain.Chunk {
	return domain.Chunk{
		ID:         fmt.Sprintf("%s-%d", docID, pos),
		DocumentID: docID,
		Content:    content,
		Position:   pos,
		Embedding:  vec,
		Metadata:   map[string]any{domain.MetaChunkIndex: pos},
	}
}

func testCollectionLifecycle(t *testing.T, s Store) {
	ctx := context.Background()
	newCollection(t, s, "beta")
	newCollection(t, s, "alpha")

	cfg, err := s.Get(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "test-model", cfg.EmbeddingModel)
	assert.Equal(t, dims, cfg.Dimensions)
	assert.Equal(t, domain.DefaultTopK, cfg.DefaultTopK)
	assert.InDelta(t, domain.DefaultMinScore, cfg.DefaultMinScore, 1e-9)
	assert.False(t, cfg.CreatedAt.IsZero())

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "beta", list[1].Name)

	require.NoError(t, s.Delete(ctx, "alpha"))
	_, err = s.Get(ctx, "alpha")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testCreateDuplicate(t *testing.T, s Store) {
	newCollection(t, s, "kb")
	err := s.Create(context.Background(), domain.NewCollectionConfig("kb", "test-model", dims))
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func testUnknownCollection(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Get(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "nope"), domain.ErrNotFound)
	_, err = s.Query(ctx, "nope", []float32{1, 0, 0}, 5)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	err = s.AddDocument(ctx, document("nope", "d", nil), nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testAddDocumentAndQuery(t *testing.T, s Store) {
	ctx := context.Background()
	newCollection(t, s, "kb")

	doc := document("kb", "d1", map[string]any{"source": "a.txt"})
	chunks := []domain.Chunk{
		chunk("d1", 0, "east", 1, 0, 0),
		chunk("d1", 1, "north", 0, 1, 0),
		chunk("d1", 2, "north-east", 1, 1, 0),
	}
	require.NoError(t, s.AddDocument(ctx, doc, chunks))

	has, err := s.HasDocument(ctx, "kb", "d1")
	require.NoError(t, err)
	assert.True(t, has)

	got, err := s.GetDocument(ctx, "kb", "d1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.ChunkCount)
	assert.Equal(t, "a.txt", got.Metadata["source"])

	count, err := s.CountChunks(ctx, "kb")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	results, err := s.Query(ctx, "kb", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "east", results[0].Content)
	assert.InDelta(t, 1.0, results[0].VectorScore, 1e-6)
	assert.Equal(t, "north-east", results[1].Content)
	assert.InDelta(t, 0.7071, results[1].VectorScore, 1e-3)
	assert.Equal(t, "north", results[2].Content)
	assert.InDelta(t, 0.0, results[2].VectorScore, 1e-6)

	for i, r := range results {
		assert.Equal(t, i, r.Rank)
		assert.Equal(t, "d1", r.DocumentID)
	}
	assert.Equal(t, "d1-0", results[0].ChunkID)
	assert.EqualValues(t, 0, results[0].Metadata[domain.MetaChunkIndex])
}

func testQueryTieBreak(t *testing.T, s Store) {
	ctx := context.Background()
	newCollection(t, s, "kb")

	require.NoError(t, s.AddDocument(ctx, document("kb", "first", nil), []domain.Chunk{
		chunk("first", 0, "first", 2, 0, 0),
	}))
	require.NoError(t, s.AddDocument(ctx, document("kb", "second", nil), []domain.Chunk{
		chunk("second", 0, "second", 1, 0, 0),
	}))

	results, err := s.Query(ctx, "kb", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].Content)
	assert.Equal(t, "second", results[1].Content)
}

func testQueryLimit(t *testing.T, s Store) {
	ctx := context.Background()
	newCollection(t, s, "kb")

	chunks := make([]domain.Chunk, 6)
	for i := range chunks {
		chunks[i] = chunk("d", i, fmt.Sprintf("c%d", i), 1, float32(i), 0)
	}
	require.NoError(t, s.AddDocument(ctx, document("kb", "d", nil), chunks))

	results, err := s.Query(ctx, "kb", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c0", results[0].Content)
	assert.Equal(t, "c1", results[1].Content)

	results, err = s.Query(ctx, "kb", []float32{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func testQueryDimensionMismatch(t *testing.T, s Store) {
	newCollection(t, s, "kb")
	_, err := s.Query(context.Background(), "kb", []float32{1, 0}, 5)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func testAddDocumentDimensionMismatch(t *testing.T, s Store) {
	ctx := context.Background()
	newCollection(t, s, "kb")

	err := s.AddDocument(ctx, document("kb", "d", nil), []domain.Chunk{
		chunk("d", 0, "ok", 1, 0, 0),
		chunk("d", 1, "short", 1, 0),
	})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	has, err := s.HasDocument(ctx, "kb", "d")
	require.NoError(t, err)
	assert.False(t, has, "a rejected document must not be partially stored")

	count, err := s.CountChunks(ctx, "kb")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func testAddDocumentForeignChunk(t *testing.T, s Store) {
	newCollection(t, s, "kb")
	err := s.AddDocument(context.Background(), document("kb", "d", nil), []domain.Chunk{
		chunk("other", 0, "x", 1, 0, 0),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func testReAddDropsStaleChunks(t *testing.T, s Store) {
	ctx := context.Background()
	newCollection(t, s, "kb")

	require.NoError(t, s.AddDocument(ctx, document("kb", "d", nil), []domain.Chunk{
		chunk("d", 0, "a", 1, 0, 0),
		chunk("d", 1, "b", 0, 1, 0),
		chunk("d", 2, "c", 0, 0, 1),
	}))
	require.NoError(t, s.AddDocument(ctx, document("kb", "d", nil), []domain.Chunk{
		chunk("d", 0, "a2", 1, 0, 0),
	}))

	count, err := s.CountChunks(ctx, "kb")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := s.Query(ctx, "kb", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a2", results[0].Content)

	docs, err := s.ListDocuments(ctx, "kb")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func testAddChunk(t *testing.T, s Store) {
	ctx := context.Background()
	newCollection(t, s, "kb")

	err := s.Add(ctx, "kb", chunk("d", 0, "orphan", 1, 0, 0))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.AddDocument(ctx, document("kb", "d", nil), nil))
	require.NoError(t, s.Add(ctx, "kb", chunk("d", 0, "first", 1, 0, 0)))
	require.NoError(t, s.Add(ctx, "kb", chunk("d", 0, "replaced", 1, 0, 0)))

	results, err := s.Query(ctx, "kb", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "replaced", results[0].Content)

	err = s.Add(ctx, "kb", chunk("d", 1, "bad", 1))
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func testDeleteDocument(t *testing.T, s Store) {
	ctx := context.Background()
	newCollection(t, s, "kb")

	require.NoError(t, s.AddDocument(ctx, document("kb", "keep", nil), []domain.Chunk{
		chunk("keep", 0, "keep", 1, 0, 0),
	}))
	require.NoError(t, s.AddDocument(ctx, document("kb", "drop", nil), []domain.Chunk{
		chunk("drop", 0, "drop", 1, 0, 0),
		chunk("drop", 1, "drop too", 0, 1, 0),
	}))

	require.NoError(t, s.DeleteDocument(ctx, "kb", "drop"))

	has, err := s.HasDocument(ctx, "kb", "drop")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = s.GetDocument(ctx, "kb", "drop")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	count, err := s.CountChunks(ctx, "kb")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.ErrorIs(t, s.DeleteDocument(ctx, "kb", "drop"), domain.ErrNotFound)
}

func testDeleteCollectionCascades(t *testing.T, s Store) {
	ctx := context.Background()
	newCollection(t, s, "kb")
	require.NoError(t, s.AddDocument(ctx, document("kb", "d", nil), []domain.Chunk{
		chunk("d", 0, "x", 1, 0, 0),
	}))

	require.NoError(t, s.Delete(ctx, "kb"))
	newCollection(t, s, "kb")

	count, err := s.CountChunks(ctx, "kb")
	require.NoError(t, err)
	assert.Zero(t, count)

	docs, err := s.ListDocuments(ctx, "kb")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func testListDocumentsOrder(t *testing.T, s Store) {
	ctx := context.Background()
	newCollection(t, s, "kb")

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.AddDocument(ctx, document("kb", id, nil), []domain.Chunk{
			chunk(id, 0, id, 1, 0, 0),
		}))
	}
	// Re-adding keeps the original position.
	require.NoError(t, s.AddDocument(ctx, document("kb", "c", nil), []domain.Chunk{
		chunk("c", 0, "c", 1, 0, 0),
	}))

	docs, err := s.ListDocuments(ctx, "kb")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "c", docs[0].ID)
	assert.Equal(t, "a", docs[1].ID)
	assert.Equal(t, "b", docs[2].ID)
	for _, d := range docs {
		assert.Equal(t, 1, d.ChunkCount)
		assert.Empty(t, d.Content)
	}
}

func testZeroMagnitude(t *testing.T, s Store) {
	ctx := context.Background()
	newCollection(t, s, "kb")
	require.NoError(t, s.AddDocument(ctx, document("kb", "d", nil), []domain.Chunk{
		chunk("d", 0, "zero", 0, 0, 0),
	}))

	results, err := s.Query(ctx, "kb", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Zero(t, results[0].VectorScore)

	results, err = s.Query(ctx, "kb", []float32{0, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Zero(t, results[0].VectorScore)
}

func testCollectionsIsolated(t *testing.T, s Store) {
	ctx := context.Background()
	newCollection(t, s, "one")
	newCollection(t, s, "two")

	require.NoError(t, s.AddDocument(ctx, document("one", "d", nil), []domain.Chunk{
		chunk("d", 0, "in one", 1, 0, 0),
	}))

	results, err := s.Query(ctx, "two", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	has, err := s.HasDocument(ctx, "two", "d")
	require.NoError(t, err)
	assert.False(t, has)
}

func testClosed(t *testing.T, s Store) {
	ctx := context.Background()
	newCollection(t, s, "kb")
	require.NoError(t, s.Close())

	_, err := s.Query(ctx, "kb", []float32{1, 0, 0}, 5)
	assert.ErrorIs(t, err, domain.ErrStoreClosed)
	_, err = s.List(ctx)
	assert.ErrorIs(t, err, domain.ErrStoreClosed)
	err = s.Create(ctx, domain.NewCollectionConfig("x", "m", dims))
	assert.ErrorIs(t, err, domain.ErrStoreClosed)
}

func testConcurrentAddDocument(t *testing.T, s Store) {
	ctx := context.Background()
	newCollection(t, s, "kb")

	const writers = 16
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		id := fmt.Sprintf("d%02d", i)
		g.Go(func() error {
			return s.AddDocument(ctx, document("kb", id, nil), []domain.Chunk{
				chunk(id, 0, id, 1, float32(i), 0),
			})
		})
	}
	require.NoError(t, g.Wait())

	docs, err := s.ListDocuments(ctx, "kb")
	require.NoError(t, err)
	assert.Len(t, docs, writers)

	count, err := s.CountChunks(ctx, "kb")
	require.NoError(t, err)
	assert.Equal(t, writers, count)
}

// Readers must only ever see whole documents while a writer commits.
func testConcurrentAddAndQuery(t *testing.T, s Store) {
	ctx := context.Background()
	newCollection(t, s, "kb")

	const (
		docs      = 20
		perDoc    = 4
		readers   = 4
		queryRoom = docs * perDoc
	)

	var done atomic.Bool
	var g errgroup.Group
	g.Go(func() error {
		defer done.Store(true)
		for i := 0; i < docs; i++ {
			id := fmt.Sprintf("d%02d", i)
			chunks := make([]domain.Chunk, perDoc)
			for p := range chunks {
				chunks[p] = chunk(id, p, fmt.Sprintf("%s-%d", id, p), 1, 0, 0)
			}
			if err := s.AddDocument(ctx, document("kb", id, nil), chunks); err != nil {
				return err
			}
		}
		return nil
	})

	for r := 0; r < readers; r++ {
		g.Go(func() error {
			for {
				finished := done.Load()
				results, err := s.Query(ctx, "kb", []float32{1, 0, 0}, queryRoom)
				if err != nil {
					return err
				}
				seen := make(map[string]int)
				for _, res := range results {
					seen[res.DocumentID]++
				}
				for id, n := range seen {
					if n != perDoc {
						return fmt.Errorf("document %s visible with %d of %d chunks", id, n, perDoc)
					}
				}
				if finished {
					return nil
				}
			}
		})
	}
	require.NoError(t, g.Wait())

	count, err := s.CountChunks(ctx, "kb")
	require.NoError(t, err)
	assert.Equal(t, docs*perDoc, count)
}
