// Package chunker provides a paragraph-aware text chunking processor.
package chunker

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driven"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = domain.DefaultChunkSize

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = domain.DefaultChunkOverlap

// chunkNamespace scopes chunk IDs so they never collide with other UUIDv5 users.
var chunkNamespace = uuid.MustParse("6f3c2f0e-4d59-5b7a-9b8e-2c1a7d4e9f10")

// Ensure Processor implements the interface.
var _ driven.PostProcessor = (*Processor)(nil)

// Processor splits document content into chunks.
// It implements the PostProcessor interface.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
// Inconsistent options are reported by Process.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Options returns the effective chunking options.
func (p *Processor) Options() domain.ChunkOptions {
	return domain.ChunkOptions{ChunkSize: p.chunkSize, Overlap: p.overlap}
}

// Process splits the document content into chunks.
// Input chunks are ignored; this processor creates new chunks from document content.
func (p *Processor) Process(_ context.Context, doc *domain.Document, _ []domain.Chunk) ([]domain.Chunk, error) {
	texts, err := Split(doc.Content, p.chunkSize, p.overlap)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		// Empty content produces no chunks
		return nil, nil
	}

	chunks := make([]domain.Chunk, 0, len(texts))
	for i, text := range texts {
		meta := domain.CopyMetadata(doc.Metadata)
		meta[domain.MetaDocumentID] = doc.ID
		meta[domain.MetaChunkIndex] = i
		meta[domain.MetaChunkCount] = len(texts)

		chunks = append(chunks, domain.Chunk{
			ID:         ChunkID(doc.ID, i),
			DocumentID: doc.ID,
			Content:    text,
			Position:   i,
			Metadata:   meta,
		})
	}

	return chunks, nil
}

// ChunkID returns the deterministic ID of the chunk at position within a document.
func ChunkID(documentID string, position int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(documentID+":"+strconv.Itoa(position))).String()
}

// String describes the processor configuration.
func (p *Processor) String() string {
	return fmt.Sprintf("chunker(size=%d, overlap=%d)", p.chunkSize, p.overlap)
}
