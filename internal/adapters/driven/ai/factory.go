// Package ai provides factory functions for creating AI service adapters.
package ai

import (
	"context"
	"fmt"
	"time"

	ollamaembed "github.com/custodia-labs/kbengine/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/kbengine/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/kbengine/internal/adapters/driven/rerank"
	"github.com/custodia-labs/kbengine/internal/adapters/driven/rerank/dashscope"
	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// Services holds the AI adapters used by ingestion and search.
type Services struct {
	Embedding driven.EmbeddingService
	Reranker  driven.Reranker
}

// Close releases all resources held by Services.
func (s *Services) Close() {
	if s.Embedding != nil {
		_ = s.Embedding.Close()
	}
	if closer, ok := s.Reranker.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

// NewServices builds the embedding service and reranker from settings.
// The embedding provider must be configured; the reranker falls back to
// rerank.Disabled when it is not.
func NewServices(settings *domain.EngineSettings) (*Services, error) {
	if settings == nil {
		return nil, fmt.Errorf("%w: settings are required", domain.ErrInvalidConfiguration)
	}

	embedding, err := CreateEmbeddingService(&settings.Embedding)
	if err != nil {
		return nil, err
	}
	return &Services{
		Embedding: embedding,
		Reranker:  CreateReranker(&settings.Rerank),
	}, nil
}

// CreateEmbeddingService creates the embedding service selected by settings.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil {
		return nil, fmt.Errorf("%w: embedding settings are required", domain.ErrInvalidConfiguration)
	}
	if !settings.IsConfigured() {
		if settings.Provider.RequiresAPIKey() {
			return nil, fmt.Errorf("%w: %s provider requires an API key", domain.ErrInvalidConfiguration, settings.Provider)
		}
		return nil, fmt.Errorf("%w: unsupported embedding provider %q", domain.ErrUnsupportedType, settings.Provider)
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return createOllamaEmbedding(settings), nil

	case domain.AIProviderOpenAI:
		return createOpenAIEmbedding(settings)

	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider %q", domain.ErrUnsupportedType, settings.Provider)
	}
}

// CreateAndValidateEmbeddingService creates an embedding service and validates connectivity.
func CreateAndValidateEmbeddingService(
	ctx context.Context, settings *domain.EmbeddingSettings,
) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := svc.Ping(ctx); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w)", domain.ErrEmbeddingService, err)
	}
	return svc, nil
}

// CreateReranker creates the reranker. Without a credential it returns
// rerank.Disabled, so search ranks by vector similarity alone.
func CreateReranker(settings *domain.RerankSettings) driven.Reranker {
	if settings == nil || !settings.IsConfigured() {
		return rerank.Disabled{}
	}
	return dashscope.NewReranker(dashscope.Config{
		APIKey:       settings.APIKey,
		BaseURL:      settings.BaseURL,
		Model:        settings.Model,
		Timeout:      settings.RequestTimeout,
		MaxDocuments: settings.MaxDocuments,
	})
}

// createOllamaEmbedding creates an Ollama embedding service.
func createOllamaEmbedding(settings *domain.EmbeddingSettings) driven.EmbeddingService {
	dimensions := settings.Dimensions
	if dimensions == 0 {
		dimensions = domain.EmbeddingDimensions()[settings.Model]
	}
	if dimensions == 0 {
		dimensions = ollamaembed.DefaultDimensions
	}

	return ollamaembed.NewEmbeddingService(ollamaembed.Config{
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Timeout:    settings.RequestTimeout,
		Dimensions: dimensions,
	})
}

// createOpenAIEmbedding creates an OpenAI-compatible embedding service.
func createOpenAIEmbedding(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	svc, err := openaiembed.NewEmbeddingService(openaiembed.Config{
		APIKey:     settings.APIKey,
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Timeout:    settings.RequestTimeout,
		Dimensions: settings.Dimensions,
	})
	if err != nil {
		return nil, err
	}
	return svc, nil
}
