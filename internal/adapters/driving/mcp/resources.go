package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// uriScheme is the custom URI scheme for knowledge base resources.
	uriScheme = "kbengine://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	if s.ports.Collections != nil {
		s.server.AddResource(&mcp.Resource{
			URI:         uriScheme + "collections",
			Name:        "collections",
			Description: "Knowledge base collections with document and chunk counts",
			MIMEType:    "application/json",
		}, s.handleCollectionsResource)
	}

	if s.ports.Documents != nil {
		s.server.AddResourceTemplate(&mcp.ResourceTemplate{
			URITemplate: uriScheme + "collections/{name}/documents",
			Name:        "collection-documents",
			Description: "Documents stored in a collection",
			MIMEType:    "application/json",
		}, s.handleDocumentsResource)
	}
}

// collectionInfo is the resource view of a collection.
type collectionInfo struct {
	Name           string  `json:"name"`
	EmbeddingModel string  `json:"embedding_model"`
	Dimensions     int     `json:"dimensions"`
	DefaultTopK    int     `json:"default_top_k"`
	DefaultMin     float64 `json:"default_min_score"`
	Documents      int     `json:"documents"`
	Chunks         int     `json:"chunks"`
}

// handleCollectionsResource lists collections with their sizes.
func (s *Server) handleCollectionsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	collections, err := s.ports.Collections.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	infos := make([]collectionInfo, len(collections))
	for i, c := range collections {
		infos[i] = collectionInfo{
			Name:           c.Name,
			EmbeddingModel: c.EmbeddingModel,
			Dimensions:     c.Dimensions,
			DefaultTopK:    c.DefaultTopK,
			DefaultMin:     c.DefaultMinScore,
		}
		stats, err := s.ports.Collections.Stats(ctx, c.Name)
		if err != nil {
			return nil, fmt.Errorf("collection stats %s: %w", c.Name, err)
		}
		infos[i].Documents = stats.Documents
		infos[i].Chunks = stats.Chunks
	}

	return jsonResource(req.Params.URI, infos)
}

// handleDocumentsResource lists the documents of one collection.
func (s *Server) handleDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	name := extractCollectionName(req.Params.URI)
	if name == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	docs, err := s.ports.Documents.List(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	type docInfo struct {
		ID         string         `json:"id"`
		ChunkCount int            `json:"chunk_count"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}

	infos := make([]docInfo, len(docs))
	for i := range docs {
		infos[i] = docInfo{
			ID:         docs[i].ID,
			ChunkCount: docs[i].ChunkCount,
			Metadata:   docs[i].Metadata,
		}
	}

	return jsonResource(req.Params.URI, infos)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractCollectionName extracts the name from kbengine://collections/{name}/documents.
func extractCollectionName(uri string) string {
	const prefix = uriScheme + "collections/"
	const suffix = "/documents"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	uri = strings.TrimPrefix(uri, prefix)
	if !strings.HasSuffix(uri, suffix) {
		return ""
	}

	name := strings.TrimSuffix(uri, suffix)
	if strings.Contains(name, "/") {
		return ""
	}
	return name
}
