package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Document is the logical unit submitted for ingestion.
// Once stored it is immutable; the only permitted change is deletion.
type Document struct {
	// ID is the content hash of the document text.
	ID string

	// Collection is the knowledge base the document belongs to.
	Collection string

	// Content is the full document text. It feeds the chunker during
	// ingestion and is not persisted by vector stores.
	Content string

	// Metadata contains arbitrary source key-value pairs.
	Metadata map[string]any

	// ChunkCount is the number of chunks stored for the document.
	ChunkCount int

	// CreatedAt is when the document was committed.
	CreatedAt time.Time
}

// Chunk represents a searchable unit within a document.
// A chunk is owned by exactly one Document and is removed with it.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Content is the text content of this chunk.
	Content string

	// Position is the ordinal position within the document.
	Position int

	// Embedding is the vector representation for semantic search.
	Embedding []float32

	// Metadata holds the document metadata plus chunk-specific fields.
	Metadata map[string]any
}

// Chunk metadata keys added on top of the document metadata.
const (
	MetaDocumentID = "document_id"
	MetaChunkIndex = "chunk_index"
	MetaChunkCount = "chunk_count"
	MetaSource     = "source"
)

// DocumentInput is a single document submitted to AddDocuments.
type DocumentInput struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AddDocumentsResult reports which documents were committed to a collection.
type AddDocumentsResult struct {
	Collection  string   `json:"collection"`
	DocumentIDs []string `json:"document_ids"`
}

// CopyMetadata creates a shallow copy of metadata.
func CopyMetadata(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// DocumentID derives a document's identifier from its text.
// Identical text always maps to the same ID.
func DocumentID(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
