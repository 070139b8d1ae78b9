// Package postprocessors turns document content into chunks ready for embedding.
package postprocessors

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driven"
	"github.com/custodia-labs/kbengine/internal/postprocessors/chunker"
)

// Ensure Pipeline implements the interface.
var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// Pipeline runs PostProcessors in order. The first one creates chunks from
// the document; later ones refine them.
type Pipeline struct {
	processors []driven.PostProcessor
}

// NewPipeline creates a pipeline running processors in the order given.
func NewPipeline(processors ...driven.PostProcessor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Process runs the document through every processor, then drops blank
// chunks. When a chunk is dropped the survivors are renumbered so positions
// stay contiguous and chunk IDs follow them.
func (p *Pipeline) Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", domain.ErrInvalidInput)
	}

	var chunks []domain.Chunk
	for _, processor := range p.processors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		chunks, err = processor.Process(ctx, doc, chunks)
		if err != nil {
			return nil, fmt.Errorf("processor %s: %w", processor.Name(), err)
		}
	}

	return compact(doc.ID, chunks), nil
}

func compact(documentID string, chunks []domain.Chunk) []domain.Chunk {
	kept := chunks[:0:0]
	for i := range chunks {
		if strings.TrimSpace(chunks[i].Content) != "" {
			kept = append(kept, chunks[i])
		}
	}
	if len(kept) == len(chunks) {
		return chunks
	}

	for i := range kept {
		kept[i].Position = i
		kept[i].ID = chunker.ChunkID(documentID, i)
		if kept[i].Metadata != nil {
			kept[i].Metadata = domain.CopyMetadata(kept[i].Metadata)
			kept[i].Metadata[domain.MetaChunkIndex] = i
			kept[i].Metadata[domain.MetaChunkCount] = len(kept)
		}
	}
	return kept
}

// Add appends a processor to the pipeline.
func (p *Pipeline) Add(processor driven.PostProcessor) {
	p.processors = append(p.processors, processor)
}

// Len returns the number of processors in the pipeline.
func (p *Pipeline) Len() int {
	return len(p.processors)
}
