package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/logger"
)

// Tool defaults for agent callers.
const (
	DefaultToolTopK     = 5
	DefaultToolMinScore = 0.2
)

const (
	noResultsText = "No relevant information found in the knowledge base."
	unknownSource = "unknown source"
	resultDivider = "\n\n---\n\n"
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query      string   `json:"query" jsonschema:"the user's question, used as the search query"`
	Collection string   `json:"collection_name,omitempty" jsonschema:"knowledge base to search (default global_knowledge_base)"`
	TopK       int      `json:"top_k,omitempty" jsonschema:"maximum number of passages to return (default 5)"`
	MinScore   *float64 `json:"min_score,omitempty" jsonschema:"minimum relevance score between 0 and 1 (default 0.2)"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput represents a single search result.
type SearchResultOutput struct {
	Content     string         `json:"content"`
	Metadata    map[string]any `json:"metadata"`
	VectorScore float64        `json:"vector_score"`
	RerankScore *float64       `json:"rerank_score"`
}

// AddDocumentsInput is the input schema for the add_documents tool.
type AddDocumentsInput struct {
	Documents  []DocumentInput `json:"documents" jsonschema:"documents to add"`
	Collection string          `json:"collection_name,omitempty" jsonschema:"knowledge base to add to (default global_knowledge_base)"`
}

// DocumentInput is one document in an add_documents call.
type DocumentInput struct {
	Content  string         `json:"content" jsonschema:"document text"`
	Metadata map[string]any `json:"metadata,omitempty" jsonschema:"metadata such as source"`
}

// AddDocumentsOutput is the output schema for the add_documents tool.
type AddDocumentsOutput struct {
	Collection  string   `json:"collection"`
	DocumentIDs []string `json:"document_ids"`
	Count       int      `json:"count"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "search_knowledge_base",
		Description: "Search the knowledge base for passages relevant to a question. " +
			"Returns each passage with its source.",
	}, s.handleSearch)

	if s.ports.Ingest != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "add_documents",
			Description: "Add documents to a knowledge base. Documents already present are skipped.",
		}, s.handleAddDocuments)
	}
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	collection := s.ports.collection(input.Collection)
	logger.WithFields(logger.Fields{"collection": collection, "query": input.Query}).Info("MCP search")

	topK := input.TopK
	if topK <= 0 {
		topK = DefaultToolTopK
	}
	minScore := input.MinScore
	if minScore == nil {
		minScore = domain.Float64(DefaultToolMinScore)
	}

	results, err := s.ports.Search.Search(ctx, collection, input.Query, domain.SearchOptions{
		TopK:     topK,
		MinScore: minScore,
	})
	if err != nil {
		logger.Error("MCP search failed: %v", err)
		return errorResult(fmt.Sprintf("Knowledge base search failed: %v", err)),
			SearchOutput{Results: []SearchResultOutput{}}, nil
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(results)),
		Count:   len(results),
	}
	for i := range results {
		output.Results[i] = SearchResultOutput{
			Content:     results[i].Content,
			Metadata:    results[i].Metadata,
			VectorScore: results[i].VectorScore,
			RerankScore: results[i].RerankScore,
		}
	}

	return textResult(FormatResults(output.Results)), output, nil
}

// handleAddDocuments handles the add_documents tool invocation.
func (s *Server) handleAddDocuments(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AddDocumentsInput,
) (*mcp.CallToolResult, AddDocumentsOutput, error) {
	collection := s.ports.collection(input.Collection)
	output := AddDocumentsOutput{Collection: collection, DocumentIDs: []string{}}

	if len(input.Documents) == 0 {
		return errorResult("No documents provided."), output, nil
	}

	if s.ports.Collections != nil {
		if _, err := s.ports.Collections.Ensure(ctx, collection); err != nil {
			return errorResult(fmt.Sprintf("Cannot open collection %s: %v", collection, err)), output, nil
		}
	}

	docs := make([]domain.DocumentInput, len(input.Documents))
	for i, d := range input.Documents {
		docs[i] = domain.DocumentInput{Content: d.Content, Metadata: d.Metadata}
	}

	result, err := s.ports.Ingest.AddDocuments(ctx, collection, docs, domain.ChunkOptions{})
	if result != nil {
		output.DocumentIDs = append(output.DocumentIDs, result.DocumentIDs...)
	}
	output.Count = len(output.DocumentIDs)

	if err != nil {
		logger.Error("MCP add_documents failed: %v", err)
		msg := fmt.Sprintf("Added %d of %d documents to %s before failing: %v",
			output.Count, len(docs), collection, err)
		if errors.Is(err, domain.ErrInvalidInput) {
			msg = fmt.Sprintf("Added %d of %d documents to %s; rejected input: %v",
				output.Count, len(docs), collection, err)
		}
		return errorResult(msg), output, nil
	}

	return textResult(fmt.Sprintf("Added %d documents to %s.", output.Count, collection)), output, nil
}

// FormatResults renders results for an agent: one "source / content" block
// per passage, separated by rules.
func FormatResults(results []SearchResultOutput) string {
	if len(results) == 0 {
		return noResultsText
	}

	blocks := make([]string, len(results))
	for i, r := range results {
		source := unknownSource
		if v, ok := r.Metadata[domain.MetaSource]; ok && v != nil && fmt.Sprint(v) != "" {
			source = fmt.Sprint(v)
		}
		blocks[i] = fmt.Sprintf("source: %s\ncontent: %s", source, r.Content)
	}
	return strings.Join(blocks, resultDivider)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	r := textResult(text)
	r.IsError = true
	return r
}
