package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestDocument_Fields tests Document structure fields
func TestDocument_Fields(t *testing.T) {
	now := time.Now()

	doc := Document{
		ID:         "4f2a",
		Collection: "global_knowledge_base",
		Metadata:   map[string]any{"source": "handbook.md"},
		ChunkCount: 3,
		CreatedAt:  now,
	}

	assert.Equal(t, "4f2a", doc.ID)
	assert.Equal(t, "global_knowledge_base", doc.Collection)
	assert.Equal(t, "handbook.md", doc.Metadata[MetaSource])
	assert.Equal(t, 3, doc.ChunkCount)
	assert.Equal(t, now, doc.CreatedAt)
}

// TestChunk_Fields tests Chunk structure fields
func TestChunk_Fields(t *testing.T) {
	chunk := Chunk{
		ID:         "chunk-1",
		DocumentID: "doc-1",
		Content:    "AutoGen is a framework",
		Position:   2,
		Embedding:  []float32{0.1, 0.2},
		Metadata:   map[string]any{MetaChunkIndex: 2},
	}

	assert.Equal(t, "doc-1", chunk.DocumentID)
	assert.Equal(t, 2, chunk.Position)
	assert.Len(t, chunk.Embedding, 2)
	assert.Equal(t, 2, chunk.Metadata[MetaChunkIndex])
}

func TestCopyMetadata(t *testing.T) {
	t.Run("copies entries", func(t *testing.T) {
		src := map[string]any{"a": 1}
		dst := CopyMetadata(src)
		dst["b"] = 2

		assert.Equal(t, 1, dst["a"])
		assert.NotContains(t, src, "b")
	})

	t.Run("nil source gives empty map", func(t *testing.T) {
		dst := CopyMetadata(nil)
		assert.NotNil(t, dst)
		assert.Empty(t, dst)
	})
}

func TestDocumentID(t *testing.T) {
	a := DocumentID("AutoGen is a framework")
	assert.Len(t, a, 64)
	assert.Equal(t, a, DocumentID("AutoGen is a framework"))
	assert.NotEqual(t, a, DocumentID("AutoGen is a framework."))
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", DocumentID(""))
}
