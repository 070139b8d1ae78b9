package mcp

import (
	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Search provides retrieval.
	Search driving.SearchService

	// Ingest adds documents. Without it the add_documents tool is not offered.
	Ingest driving.IngestService

	// Collections manages collections. Used to create a collection on first
	// write and to list collections as a resource.
	Collections driving.CollectionService

	// Documents lists documents within a collection.
	Documents driving.DocumentService

	// DefaultCollection is used when a tool call names no collection.
	DefaultCollection string
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	return nil
}

func (p *Ports) collection(name string) string {
	if name != "" {
		return name
	}
	if p.DefaultCollection != "" {
		return p.DefaultCollection
	}
	return domain.DefaultCollectionName
}
