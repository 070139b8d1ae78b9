package normalisers

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driven"
	"github.com/custodia-labs/kbengine/internal/normalisers/docx"
	"github.com/custodia-labs/kbengine/internal/normalisers/markdown"
	"github.com/custodia-labs/kbengine/internal/normalisers/pdf"
	"github.com/custodia-labs/kbengine/internal/normalisers/plaintext"
)

// Ensure Registry implements the interface.
var _ driven.NormaliserRegistry = (*Registry)(nil)

// extensionTypes covers formats that content sniffing cannot tell apart
// from plain text.
var extensionTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".mdx":      "text/markdown",
}

// Registry dispatches raw documents to normalisers by MIME type.
type Registry struct {
	mu          sync.RWMutex
	normalisers []driven.Normaliser
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Default returns a registry with the plaintext, markdown, docx and pdf
// normalisers registered.
func Default() *Registry {
	r := NewRegistry()
	r.Register(plaintext.New())
	r.Register(markdown.New())
	r.Register(docx.New())
	r.Register(pdf.New())
	return r
}

// Register adds a normaliser. Higher priorities are tried first; equal
// priorities keep registration order.
func (r *Registry) Register(n driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.normalisers = append(r.normalisers, n)
	sort.SliceStable(r.normalisers, func(i, j int) bool {
		return r.normalisers[i].Priority() > r.normalisers[j].Priority()
	})
}

// SupportedMIMETypes returns all MIME types that can be normalised.
func (r *Registry) SupportedMIMETypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var types []string
	for _, n := range r.normalisers {
		for _, t := range n.SupportedMIMETypes() {
			if !seen[t] {
				seen[t] = true
				types = append(types, t)
			}
		}
	}
	sort.Strings(types)
	return types
}

// Normalise detects the document type and runs the matching normaliser.
// The result metadata carries source (file name), format and mime_type.
func (r *Registry) Normalise(ctx context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	candidates := DetectMIMETypes(raw.URI, raw.MIMEType, raw.Content)
	n, mimeType := r.match(candidates)
	if n == nil {
		return nil, fmt.Errorf("%w: %s (%s)", domain.ErrUnsupportedType, filepath.Base(raw.URI), candidates[0])
	}

	typed := *raw
	typed.MIMEType = mimeType
	result, err := n.Normalise(ctx, &typed)
	if err != nil {
		return nil, err
	}

	doc := &result.Document
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]any)
	}
	if _, ok := doc.Metadata[domain.MetaSource]; !ok && raw.URI != "" {
		doc.Metadata[domain.MetaSource] = filepath.Base(raw.URI)
	}
	doc.Metadata["mime_type"] = mimeType
	return result, nil
}

// match returns the first normaliser, in priority order, that accepts one
// of the candidate types. Candidates are ordered most specific first, so a
// specific normaliser wins over a fallback for a parent type.
func (r *Registry) match(candidates []string) (driven.Normaliser, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, candidate := range candidates {
		for _, n := range r.normalisers {
			for _, supported := range n.SupportedMIMETypes() {
				if supported == candidate {
					return n, candidate
				}
			}
		}
	}
	return nil, ""
}

// DetectMIMETypes returns candidate MIME types for a file, most specific
// first. An explicit type wins, then the file extension for formats that
// sniffing cannot identify, then content detection and its parent types.
// The result is never empty.
func DetectMIMETypes(uri, explicit string, content []byte) []string {
	var candidates []string
	add := func(t string) {
		t = baseType(t)
		if t == "" {
			return
		}
		for _, c := range candidates {
			if c == t {
				return
			}
		}
		candidates = append(candidates, t)
	}

	add(explicit)

	ext := strings.ToLower(filepath.Ext(uri))
	add(extensionTypes[ext])

	for m := mimetype.Detect(content); m != nil; m = m.Parent() {
		add(m.String())
	}

	if ext != "" {
		add(mime.TypeByExtension(ext))
	}

	if len(candidates) == 0 {
		candidates = append(candidates, "application/octet-stream")
	}
	return candidates
}

// baseType strips parameters such as charset from a MIME type.
func baseType(t string) string {
	if t == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(t); err == nil {
		return parsed
	}
	return strings.ToLower(strings.TrimSpace(strings.SplitN(t, ";", 2)[0]))
}
