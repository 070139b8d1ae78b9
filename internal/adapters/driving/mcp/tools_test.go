package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kbengine/internal/core/domain"
)

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestServer_handleSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("returns search results", func(t *testing.T) {
		rerank := 0.91
		mockSearch := &mockSearchService{
			results: []domain.RankedResult{
				{
					ChunkID:     "c1",
					Content:     "Kubernetes schedules containers",
					Metadata:    map[string]any{"source": "k8s.md", "chunk_index": 0},
					VectorScore: 0.72,
					RerankScore: &rerank,
				},
				{
					Content:     "Pods group containers",
					Metadata:    map[string]any{"chunk_index": 1},
					VectorScore: 0.61,
				},
			},
		}

		server, err := NewServer(&Ports{Search: mockSearch, DefaultCollection: "ops"})
		require.NoError(t, err)

		res, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "what runs containers", TopK: 2})

		require.NoError(t, err)
		assert.False(t, res.IsError)
		assert.Equal(t, 2, output.Count)
		assert.Equal(t, "Kubernetes schedules containers", output.Results[0].Content)
		assert.Equal(t, 0.72, output.Results[0].VectorScore)
		require.NotNil(t, output.Results[0].RerankScore)
		assert.Equal(t, 0.91, *output.Results[0].RerankScore)
		assert.Nil(t, output.Results[1].RerankScore)

		assert.Equal(t,
			"source: k8s.md\ncontent: Kubernetes schedules containers\n\n---\n\nsource: unknown source\ncontent: Pods group containers",
			resultText(t, res))
		assert.Equal(t, "ops", mockSearch.gotCollection)
		assert.Equal(t, 2, mockSearch.gotOpts.TopK)
	})

	t.Run("applies agent defaults", func(t *testing.T) {
		mockSearch := &mockSearchService{}
		server, err := NewServer(&Ports{Search: mockSearch})
		require.NoError(t, err)

		res, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "test"})

		require.NoError(t, err)
		assert.Equal(t, 0, output.Count)
		assert.Equal(t, noResultsText, resultText(t, res))
		assert.Equal(t, DefaultToolTopK, mockSearch.gotOpts.TopK)
		require.NotNil(t, mockSearch.gotOpts.MinScore)
		assert.Equal(t, DefaultToolMinScore, *mockSearch.gotOpts.MinScore)
	})

	t.Run("explicit zero min score is kept", func(t *testing.T) {
		mockSearch := &mockSearchService{}
		server, err := NewServer(&Ports{Search: mockSearch})
		require.NoError(t, err)

		_, _, err = server.handleSearch(ctx, nil, SearchInput{Query: "q", MinScore: domain.Float64(0)})

		require.NoError(t, err)
		assert.Equal(t, 0.0, *mockSearch.gotOpts.MinScore)
	})

	t.Run("search failure becomes a tool error", func(t *testing.T) {
		mockSearch := &mockSearchService{err: fmt.Errorf("embed query: %w", domain.ErrEmbeddingService)}
		server, err := NewServer(&Ports{Search: mockSearch})
		require.NoError(t, err)

		res, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "test"})

		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(t, res), "embedding service error")
		assert.NotNil(t, output.Results)
	})
}

func TestServer_handleAddDocuments(t *testing.T) {
	ctx := context.Background()

	t.Run("adds documents to default collection", func(t *testing.T) {
		ingest := &mockIngestService{result: &domain.AddDocumentsResult{
			Collection:  domain.DefaultCollectionName,
			DocumentIDs: []string{"d1", "d2"},
		}}
		collections := &mockCollectionService{}
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Ingest: ingest, Collections: collections})
		require.NoError(t, err)

		res, output, err := server.handleAddDocuments(ctx, nil, AddDocumentsInput{
			Documents: []DocumentInput{
				{Content: "first", Metadata: map[string]any{"source": "a.txt"}},
				{Content: "second"},
			},
		})

		require.NoError(t, err)
		assert.False(t, res.IsError)
		assert.Equal(t, []string{"d1", "d2"}, output.DocumentIDs)
		assert.Equal(t, 2, output.Count)
		assert.Equal(t, []string{domain.DefaultCollectionName}, collections.ensured)
		require.Len(t, ingest.gotDocs, 2)
		assert.Equal(t, "a.txt", ingest.gotDocs[0].Metadata["source"])
		assert.Contains(t, resultText(t, res), "Added 2 documents")
	})

	t.Run("partial failure reports committed ids", func(t *testing.T) {
		ingest := &mockIngestService{
			result: &domain.AddDocumentsResult{Collection: "kb", DocumentIDs: []string{"d1"}},
			err:    errors.New("document 1: embedding service error"),
		}
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Ingest: ingest})
		require.NoError(t, err)

		res, output, err := server.handleAddDocuments(ctx, nil, AddDocumentsInput{
			Collection: "kb",
			Documents:  []DocumentInput{{Content: "a"}, {Content: "b"}},
		})

		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Equal(t, []string{"d1"}, output.DocumentIDs)
		assert.Contains(t, resultText(t, res), "Added 1 of 2 documents to kb")
		assert.Equal(t, "kb", ingest.gotCollection)
	})

	t.Run("no documents", func(t *testing.T) {
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Ingest: &mockIngestService{}})
		require.NoError(t, err)

		res, output, err := server.handleAddDocuments(ctx, nil, AddDocumentsInput{})

		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Empty(t, output.DocumentIDs)
	})

	t.Run("collection cannot be created", func(t *testing.T) {
		ingest := &mockIngestService{}
		collections := &mockCollectionService{err: domain.ErrInvalidConfiguration}
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Ingest: ingest, Collections: collections})
		require.NoError(t, err)

		res, _, err := server.handleAddDocuments(ctx, nil, AddDocumentsInput{
			Collection: "bad name!",
			Documents:  []DocumentInput{{Content: "a"}},
		})

		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Nil(t, ingest.gotDocs)
	})
}

func TestFormatResults(t *testing.T) {
	tests := []struct {
		name     string
		results  []SearchResultOutput
		expected string
	}{
		{"empty", nil, noResultsText},
		{
			"single",
			[]SearchResultOutput{{Content: "body", Metadata: map[string]any{"source": "doc.pdf"}}},
			"source: doc.pdf\ncontent: body",
		},
		{
			"missing and empty source",
			[]SearchResultOutput{
				{Content: "one"},
				{Content: "two", Metadata: map[string]any{"source": ""}},
			},
			"source: unknown source\ncontent: one\n\n---\n\nsource: unknown source\ncontent: two",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatResults(tt.results))
		})
	}
}
