// Package openai provides an embedding service adapter for OpenAI-compatible
// APIs, including the DashScope compatible mode endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultBaseURL = domain.DefaultEmbeddingBaseURL
	DefaultModel   = domain.DefaultEmbeddingModel
	DefaultTimeout = domain.DefaultRequestTimeout
)

// clientTimeoutFactor scales Timeout into the http.Client backstop. The
// per-call context deadline fires first and is the one retried.
const clientTimeoutFactor = 2

// Models that accept a "dimensions" request parameter.
var shortenable = map[string]bool{
	"text-embedding-v3":      true,
	"text-embedding-v4":      true,
	"text-embedding-3-small": true,
	"text-embedding-3-large": true,
}

// Config holds configuration for the embedding service.
type Config struct {
	// APIKey is the provider API key (required).
	APIKey string

	// BaseURL is the API base URL (default: DashScope compatible mode).
	BaseURL string

	// Model is the embedding model to use (default: text-embedding-v4).
	Model string

	// Timeout is the expected per-request bound (default: 30s). Callers
	// enforce it with a context deadline; the HTTP client only stops
	// requests that outlive it by a wide margin.
	Timeout time.Duration

	// Dimensions is the vector size. Zero uses the known model size.
	Dimensions int
}

// EmbeddingService generates embeddings through an OpenAI-compatible API.
type EmbeddingService struct {
	client     *goopenai.Client
	httpClient *http.Client
	model      string
	dimensions int
}

// NewEmbeddingService creates a new embedding service.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai: API key is required", domain.ErrInvalidConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = domain.EmbeddingDimensions()[cfg.Model]
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: openai: unknown dimensions for model %q", domain.ErrInvalidConfiguration, cfg.Model)
	}

	httpClient := &http.Client{Timeout: clientTimeoutFactor * cfg.Timeout}
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.HTTPClient = httpClient

	return &EmbeddingService{
		client:     goopenai.NewClientWithConfig(clientCfg),
		httpClient: httpClient,
		model:      cfg.Model,
		dimensions: dimensions,
	}, nil
}

// EmbedBatch generates embeddings for texts in one request.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	req := goopenai.EmbeddingRequest{
		Input: texts,
		Model: goopenai.EmbeddingModel(s.model),
	}
	if shortenable[s.model] {
		req.Dimensions = s.dimensions
	}

	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, classify(err)
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("openai: response index %d out of range for %d inputs", data.Index, len(texts))
		}
		embeddings[data.Index] = data.Embedding
	}
	for i, e := range embeddings {
		if e == nil {
			return nil, fmt.Errorf("openai: no embedding returned for input %d", i)
		}
	}

	return embeddings, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping validates the credentials by embedding a single short text.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	if _, err := s.EmbedBatch(ctx, []string{"ping"}); err != nil {
		return fmt.Errorf("openai: ping failed: %w", err)
	}
	return nil
}

// Close releases idle connections.
func (s *EmbeddingService) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

// classify marks failures worth retrying with domain.ErrTransient.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	status := 0
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	if status != 0 {
		if retryableStatus(status) {
			return fmt.Errorf("%w: openai: status %d: %w", domain.ErrTransient, status, err)
		}
		return fmt.Errorf("openai: status %d: %w", status, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: openai: %w", domain.ErrTransient, err)
	}
	return fmt.Errorf("openai: %w", err)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
