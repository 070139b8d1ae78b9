package postprocessors

import (
	"fmt"

	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driven"
)

// Ensure Factory implements the interface.
var _ driven.PipelineFactory = (*Factory)(nil)

// Factory builds pipelines from registered processors for each ingestion
// call, so chunking options can vary per request.
type Factory struct {
	registry   *Registry
	processors []string
}

// NewFactory creates a factory running the named processors in order.
// With no names the pipeline only chunks.
func NewFactory(registry *Registry, processors ...string) *Factory {
	if len(processors) == 0 {
		processors = []string{"chunker"}
	}
	return &Factory{registry: registry, processors: processors}
}

// NewDefaultFactory creates a factory backed by the built-in processors.
func NewDefaultFactory() *Factory {
	r := NewRegistry()
	RegisterDefaults(r)
	return NewFactory(r)
}

// Build creates a pipeline whose chunker uses opts.
func (f *Factory) Build(opts domain.ChunkOptions) (driven.PostProcessorPipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	pipeline := NewPipeline()
	for _, name := range f.processors {
		var cfg map[string]any
		if name == "chunker" {
			cfg = map[string]any{
				"chunk_size": opts.ChunkSize,
				"overlap":    opts.Overlap,
			}
		}

		proc, err := f.registry.Build(name, cfg)
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", name, err)
		}
		pipeline.Add(proc)
	}

	return pipeline, nil
}
