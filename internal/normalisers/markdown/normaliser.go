// Package markdown normalises Markdown documents to plain text.
package markdown

import (
	"context"
	"regexp"
	"strings"

	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Markdown documents.
type Normaliser struct{}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser, higher than plaintext
}

// Normalise converts a markdown document to plain text.
// The first H1 heading, if any, is recorded as the title.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	rawContent := strings.ReplaceAll(string(raw.Content), "\r\n", "\n")

	metadata := domain.CopyMetadata(raw.Metadata)
	metadata["format"] = "markdown"
	if title := extractMarkdownTitle(rawContent); title != "" {
		if _, ok := metadata["title"]; !ok {
			metadata["title"] = title
		}
	}

	return &driven.NormaliseResult{
		Document: domain.Document{
			Content:  stripMarkdown(rawContent),
			Metadata: metadata,
		},
	}, nil
}

// extractMarkdownTitle returns the text of the first H1 heading.
func extractMarkdownTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "#"))
		}
	}
	return ""
}

var (
	fencedCode   = regexp.MustCompile("(?s)```[^\n]*\n(.*?)\n?```")
	inlineCode   = regexp.MustCompile("`([^`]+)`")
	images       = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	links        = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	headings     = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	emphasis     = regexp.MustCompile(`(\*\*|__)(.+?)(\*\*|__)`)
	italics      = regexp.MustCompile(`(?m)(^|[ \t(])[*_]([^*_\s][^*_\n]*?)[*_]`)
	blockquote   = regexp.MustCompile(`(?m)^>\s?`)
	horizontal   = regexp.MustCompile(`(?m)^[ \t]*([-*_][ \t]*){3,}$`)
	listMarkers  = regexp.MustCompile(`(?m)^([ \t]*)[-*+][ \t]+`)
	numberedList = regexp.MustCompile(`(?m)^([ \t]*)\d+\.[ \t]+`)
	htmlTags     = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	multiNewline = regexp.MustCompile(`\n{3,}`)
)

// stripMarkdown removes markdown formatting while keeping the text.
// Code block bodies are kept; only the fences are removed.
func stripMarkdown(content string) string {
	content = fencedCode.ReplaceAllString(content, "$1")
	content = inlineCode.ReplaceAllString(content, "$1")
	content = images.ReplaceAllString(content, "$1")
	content = links.ReplaceAllString(content, "$1")
	content = headings.ReplaceAllString(content, "")
	content = horizontal.ReplaceAllString(content, "")
	content = emphasis.ReplaceAllString(content, "$2")
	content = italics.ReplaceAllString(content, "$1$2")
	content = blockquote.ReplaceAllString(content, "")
	content = listMarkers.ReplaceAllString(content, "$1")
	content = numberedList.ReplaceAllString(content, "$1")
	content = htmlTags.ReplaceAllString(content, "")
	content = multiNewline.ReplaceAllString(content, "\n\n")

	return strings.TrimSpace(content)
}
