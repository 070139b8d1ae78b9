package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driven"
)

const kb = domain.DefaultCollectionName

func TestIngest_StoresChunksWithMetadata(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, newVocabEmbedder(), testEmbeddingOptions())

	id, err := e.ingest.Ingest(ctx, kb, "alpha one\n\nbeta two\n\ngamma six",
		map[string]any{"source": "notes.txt"}, domain.ChunkOptions{ChunkSize: 10, Overlap: 0})

	require.NoError(t, err)
	assert.Equal(t, domain.DocumentID("alpha one\n\nbeta two\n\ngamma six"), id)

	doc, err := e.store.GetDocument(ctx, kb, id)
	require.NoError(t, err)
	assert.Equal(t, 3, doc.ChunkCount)
	assert.Equal(t, "notes.txt", doc.Metadata["source"])
	assert.False(t, doc.CreatedAt.IsZero())

	results, err := e.store.Query(ctx, kb, e.embedder.service.(*vocabEmbedder).vector("beta"), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "beta two", results[0].Content)
	assert.Equal(t, "notes.txt", results[0].Metadata["source"])
	assert.Equal(t, id, results[0].Metadata[domain.MetaDocumentID])
}

func TestIngest_Idempotent(t *testing.T) {
	ctx := context.Background()
	embedder := newVocabEmbedder()
	e := newEngine(t, embedder, testEmbeddingOptions())
	text := "Kubernetes schedules container workloads across a cluster."

	first, err := e.ingest.Ingest(ctx, kb, text, nil, domain.ChunkOptions{})
	require.NoError(t, err)
	calls := embedder.callCount()
	chunks, err := e.store.CountChunks(ctx, kb)
	require.NoError(t, err)

	second, err := e.ingest.Ingest(ctx, kb, text, map[string]any{"source": "again"}, domain.ChunkOptions{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, calls, embedder.callCount(), "re-ingesting must not re-embed")
	after, err := e.store.CountChunks(ctx, kb)
	require.NoError(t, err)
	assert.Equal(t, chunks, after)
}

func TestIngest_EmptyText(t *testing.T) {
	e := newEngine(t, newVocabEmbedder(), testEmbeddingOptions())

	for _, text := range []string{"", "   \n\t "} {
		_, err := e.ingest.Ingest(context.Background(), kb, text, nil, domain.ChunkOptions{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	}
}

func TestIngest_UnknownCollection(t *testing.T) {
	e := newEngine(t, newVocabEmbedder(), testEmbeddingOptions())

	_, err := e.ingest.Ingest(context.Background(), "missing", "text", nil, domain.ChunkOptions{})

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIngest_ModelMismatch(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, newVocabEmbedder(), testEmbeddingOptions())

	_, err := e.collections.Create(ctx, domain.NewCollectionConfig("wide", testModel, 999))
	require.NoError(t, err)
	_, err = e.ingest.Ingest(ctx, "wide", "alpha", nil, domain.ChunkOptions{})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = e.collections.Create(ctx, domain.NewCollectionConfig("other", "other-model", e.embedder.Dimensions()))
	require.NoError(t, err)
	_, err = e.ingest.Ingest(ctx, "other", "alpha", nil, domain.ChunkOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestIngest_InvalidChunkOptions(t *testing.T) {
	e := newEngine(t, newVocabEmbedder(), testEmbeddingOptions())

	_, err := e.ingest.Ingest(context.Background(), kb, "alpha", nil, domain.ChunkOptions{ChunkSize: 10, Overlap: 10})

	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestIngest_FailureOnSecondOfThreeBatchesWritesNothing(t *testing.T) {
	ctx := context.Background()
	embedder := newVocabEmbedder()
	embedder.fail = func(texts []string) error {
		for _, text := range texts {
			if strings.Contains(text, "beta") {
				return errors.New("provider rejected batch")
			}
		}
		return nil
	}
	opts := testEmbeddingOptions()
	opts.BatchSize = 1
	opts.Concurrency = 1
	e := newEngine(t, embedder, opts)

	text := "alpha one\n\nbeta two\n\ngamma six"
	_, err := e.ingest.Ingest(ctx, kb, text, nil, domain.ChunkOptions{ChunkSize: 10, Overlap: 0})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbeddingService)

	count, err := e.store.CountChunks(ctx, kb)
	require.NoError(t, err)
	assert.Zero(t, count)

	has, err := e.store.HasDocument(ctx, kb, domain.DocumentID(text))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestAddDocuments_StopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, newVocabEmbedder(), testEmbeddingOptions())

	result, err := e.ingest.AddDocuments(ctx, kb, []domain.DocumentInput{
		{Content: "pizza dough", Metadata: map[string]any{"source": "a"}},
		{Content: "   "},
		{Content: "hot oven"},
	}, domain.ChunkOptions{})

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	require.NotNil(t, result)
	assert.Equal(t, kb, result.Collection)
	assert.Equal(t, []string{domain.DocumentID("pizza dough")}, result.DocumentIDs)

	docs, err := e.store.ListDocuments(ctx, kb)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestAddDocuments_AllCommitted(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, newVocabEmbedder(), testEmbeddingOptions())

	result, err := e.ingest.AddDocuments(ctx, kb, []domain.DocumentInput{
		{Content: "pizza dough"},
		{Content: "hot oven"},
	}, domain.ChunkOptions{})

	require.NoError(t, err)
	assert.Len(t, result.DocumentIDs, 2)
}

// stubNormalisers implements driven.NormaliserRegistry for testing.
type stubNormalisers struct {
	err error
}

func (s *stubNormalisers) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &driven.NormaliseResult{Document: domain.Document{
		Content:  strings.ToUpper(string(raw.Content)),
		Metadata: map[string]any{"source": raw.URI, "format": "text"},
	}}, nil
}

func (s *stubNormalisers) Register(driven.Normaliser)   {}
func (s *stubNormalisers) SupportedMIMETypes() []string { return []string{"text/plain"} }

func TestIngestFile(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, newVocabEmbedder(), testEmbeddingOptions())
	raw := &domain.RawDocument{URI: "menu.txt", MIMEType: "text/plain", Content: []byte("pizza oven")}

	_, err := e.ingest.IngestFile(ctx, kb, raw, domain.ChunkOptions{})
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)

	e.ingest.SetNormalisers(&stubNormalisers{})
	id, err := e.ingest.IngestFile(ctx, kb, raw, domain.ChunkOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentID("PIZZA OVEN"), id)

	doc, err := e.store.GetDocument(ctx, kb, id)
	require.NoError(t, err)
	assert.Equal(t, "menu.txt", doc.Metadata["source"])

	e.ingest.SetNormalisers(&stubNormalisers{err: domain.ErrUnsupportedType})
	_, err = e.ingest.IngestFile(ctx, kb, raw, domain.ChunkOptions{})
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)

	_, err = e.ingest.IngestFile(ctx, kb, nil, domain.ChunkOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, newVocabEmbedder(), testEmbeddingOptions())

	id, err := e.ingest.Ingest(ctx, kb, "pizza dough", nil, domain.ChunkOptions{})
	require.NoError(t, err)

	require.NoError(t, e.ingest.DeleteDocument(ctx, kb, id))
	count, err := e.store.CountChunks(ctx, kb)
	require.NoError(t, err)
	assert.Zero(t, count)

	assert.ErrorIs(t, e.ingest.DeleteDocument(ctx, kb, id), domain.ErrNotFound)
}

func TestIngest_DefaultChunkOptions(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, newVocabEmbedder(), testEmbeddingOptions())
	e.ingest.SetDefaultChunkOptions(domain.ChunkOptions{ChunkSize: 10, Overlap: 0})

	id, err := e.ingest.Ingest(ctx, kb, "alpha one\n\nbeta two", nil, domain.ChunkOptions{})
	require.NoError(t, err)

	doc, err := e.store.GetDocument(ctx, kb, id)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.ChunkCount)
}
