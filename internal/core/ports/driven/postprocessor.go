package driven

import (
	"context"

	"github.com/custodia-labs/kbengine/internal/core/domain"
)

// PostProcessor processes document content to produce chunks.
// PostProcessors are chained in a pipeline. The chunker is always first.
type PostProcessor interface {
	// Name returns the processor name for logging and configuration.
	Name() string

	// Process takes a document and returns chunks.
	// If the processor modifies chunks, it receives and returns chunks.
	// If the processor creates chunks (e.g., chunker), it receives nil and
	// returns new chunks from doc.Content.
	Process(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error)
}

// PostProcessorPipeline chains multiple PostProcessors.
type PostProcessorPipeline interface {
	// Process runs the document through all processors in order.
	// Returns the final chunks after all processing.
	Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error)
}

// PipelineFactory builds a pipeline for the given chunking options.
type PipelineFactory interface {
	// Build returns a pipeline, or domain.ErrInvalidConfiguration for bad options.
	Build(opts domain.ChunkOptions) (PostProcessorPipeline, error)
}
