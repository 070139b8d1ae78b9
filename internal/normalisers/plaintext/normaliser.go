// Package plaintext normalises plain text and source files.
package plaintext

import (
	"context"
	"strings"

	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles plain text documents.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{
		"text/plain",
		"text/x-go",
		"text/x-python",
		"text/x-rust",
		"text/x-java",
		"text/x-c",
		"text/x-c++",
		"text/x-shellscript",
		"text/csv",
		"text/tab-separated-values",
		"text/yaml",
		"text/toml",
		"text/javascript",
		"text/html",
		"application/json",
		"application/xml",
		"text/xml",
	}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 5 // Fallback normaliser
}

// Normalise returns the text unchanged apart from a UTF-8 BOM and CRLF line endings.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	content := strings.TrimPrefix(string(raw.Content), "\uFEFF")
	content = strings.ReplaceAll(content, "\r\n", "\n")

	metadata := domain.CopyMetadata(raw.Metadata)
	metadata["format"] = "text"

	return &driven.NormaliseResult{
		Document: domain.Document{
			Content:  content,
			Metadata: metadata,
		},
	}, nil
}
