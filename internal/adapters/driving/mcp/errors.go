// Package mcp provides an MCP (Model Context Protocol) server adapter for the
// knowledge base. It lets AI agents search collections and add documents.
package mcp

import "errors"

// ErrMissingSearchService is returned when the search service is not provided.
var ErrMissingSearchService = errors.New("mcp: search service is required")
