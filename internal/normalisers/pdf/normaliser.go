// Package pdf normalises PDF documents by extracting their text layer.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driven"
	"github.com/custodia-labs/kbengine/internal/logger"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles PDF documents.
type Normaliser struct{}

// New creates a new PDF normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"application/pdf"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise extracts the plain text of every page. Pages are joined by
// blank lines; pages without a text layer are skipped.
func (n *Normaliser) Normalise(ctx context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	pages, total, err := extractPages(ctx, raw.Content)
	if err != nil {
		return nil, err
	}

	metadata := domain.CopyMetadata(raw.Metadata)
	metadata["format"] = "pdf"
	metadata["page_count"] = total

	return &driven.NormaliseResult{
		Document: domain.Document{
			Content:  strings.Join(pages, "\n\n"),
			Metadata: metadata,
		},
	}, nil
}

// extractPages returns the non-empty page texts and the page count.
// The PDF reader panics on some malformed files, so panics become errors.
func extractPages(ctx context.Context, content []byte) (pages []string, total int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: malformed pdf: %v", domain.ErrInvalidInput, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: open pdf: %w", domain.ErrInvalidInput, err)
	}

	total = reader.NumPage()
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			logger.Debug("pdf: skipping page %d: %v", i, err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	return pages, total, nil
}
