package domain

import (
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// Default endpoints and models.
const (
	DefaultEmbeddingBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	DefaultEmbeddingModel   = "text-embedding-v4"
	DefaultEmbeddingDims    = 1024
	DefaultRerankBaseURL    = "https://dashscope.aliyuncs.com/api/v1/services/rerank/text-rerank/text-rerank"
	DefaultRerankModel      = "gte-rerank-v2"
	DefaultOllamaBaseURL    = "http://localhost:11434"

	DefaultEmbeddingBatchSize   = 25
	DefaultEmbeddingConcurrency = 4
	DefaultRequestTimeout       = 30 * time.Second
	DefaultRerankMaxDocuments   = 50
)

// AIProvider identifies an embedding service provider.
type AIProvider string

// Available providers.
const (
	// AIProviderOllama is a local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is any OpenAI-compatible embeddings API.
	AIProviderOpenAI AIProvider = "openai"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI-compatible (cloud)"
	default:
		return unknownDescription
	}
}

// StoreBackend selects the vector store implementation.
type StoreBackend string

// Available store backends.
const (
	StoreBackendSQLite StoreBackend = "sqlite"
	StoreBackendMemory StoreBackend = "memory"
)

// IsValid returns true if the backend is recognised.
func (b StoreBackend) IsValid() bool {
	return b == StoreBackendSQLite || b == StoreBackendMemory
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	Provider AIProvider
	Model    string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is required for OpenAI-compatible providers.
	APIKey string

	// Dimensions is the vector length the model produces.
	Dimensions int

	BatchSize   int
	Concurrency int

	// RequestsPerSecond limits outbound calls. Zero disables limiting.
	RequestsPerSecond float64

	RequestTimeout time.Duration
	Retry          RetryPolicy
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// RerankSettings holds reranking service configuration.
// An empty APIKey leaves the reranker unavailable.
type RerankSettings struct {
	APIKey         string
	BaseURL        string
	Model          string
	MaxDocuments   int
	RequestTimeout time.Duration
}

// IsConfigured returns true if a credential is present.
func (r RerankSettings) IsConfigured() bool {
	return r.APIKey != ""
}

// StoreSettings holds vector store configuration.
type StoreSettings struct {
	Backend StoreBackend

	// Path is the directory holding the database.
	Path string

	DefaultCollection string
}

// SearchSettings holds default search parameters for new collections.
type SearchSettings struct {
	TopK            int
	MinScore        float64
	OverFetchFactor int
}

// LogSettings holds logging configuration.
type LogSettings struct {
	Level  string
	File   string
	Format string
}

// EngineSettings holds all engine settings.
type EngineSettings struct {
	Embedding EmbeddingSettings
	Rerank    RerankSettings
	Store     StoreSettings
	Search    SearchSettings
	Chunking  ChunkOptions
	Log       LogSettings
}

// DefaultEngineSettings returns settings with defaults.
// Credentials are left empty and come from the environment.
func DefaultEngineSettings() EngineSettings {
	return EngineSettings{
		Embedding: EmbeddingSettings{
			Provider:       AIProviderOpenAI,
			Model:          DefaultEmbeddingModel,
			BaseURL:        DefaultEmbeddingBaseURL,
			Dimensions:     DefaultEmbeddingDims,
			BatchSize:      DefaultEmbeddingBatchSize,
			Concurrency:    DefaultEmbeddingConcurrency,
			RequestTimeout: DefaultRequestTimeout,
			Retry:          DefaultRetryPolicy(),
		},
		Rerank: RerankSettings{
			BaseURL:        DefaultRerankBaseURL,
			Model:          DefaultRerankModel,
			MaxDocuments:   DefaultRerankMaxDocuments,
			RequestTimeout: DefaultRequestTimeout,
		},
		Store: StoreSettings{
			Backend:           StoreBackendSQLite,
			DefaultCollection: DefaultCollectionName,
		},
		Search: SearchSettings{
			TopK:            DefaultTopK,
			MinScore:        DefaultMinScore,
			OverFetchFactor: DefaultOverFetchFactor,
		},
		Chunking: DefaultChunkOptions(),
		Log: LogSettings{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate rejects settings the engine cannot run with.
func (s EngineSettings) Validate() error {
	e := s.Embedding
	if !e.Provider.IsValid() {
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfiguration, e.Provider)
	}
	if e.Model == "" {
		return fmt.Errorf("%w: embedding model is required", ErrInvalidConfiguration)
	}
	if e.Dimensions <= 0 {
		return fmt.Errorf("%w: embedding dimensions must be positive, got %d", ErrInvalidConfiguration, e.Dimensions)
	}
	if e.BatchSize <= 0 {
		return fmt.Errorf("%w: embedding batch size must be positive, got %d", ErrInvalidConfiguration, e.BatchSize)
	}
	if e.Concurrency <= 0 {
		return fmt.Errorf("%w: embedding concurrency must be positive, got %d", ErrInvalidConfiguration, e.Concurrency)
	}
	if e.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: requests per second must not be negative", ErrInvalidConfiguration)
	}
	if e.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request timeout must be positive", ErrInvalidConfiguration)
	}
	if err := e.Retry.Validate(); err != nil {
		return err
	}
	if s.Rerank.MaxDocuments <= 0 {
		return fmt.Errorf("%w: rerank max documents must be positive, got %d", ErrInvalidConfiguration, s.Rerank.MaxDocuments)
	}
	if !s.Store.Backend.IsValid() {
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfiguration, s.Store.Backend)
	}
	if err := ValidateCollectionName(s.Store.DefaultCollection); err != nil {
		return err
	}
	if s.Search.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidConfiguration, s.Search.TopK)
	}
	if s.Search.OverFetchFactor < 1 {
		return fmt.Errorf("%w: over-fetch factor must be at least 1, got %d", ErrInvalidConfiguration, s.Search.OverFetchFactor)
	}
	if err := s.Chunking.Validate(); err != nil {
		return err
	}
	switch s.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfiguration, s.Log.Format)
	}
	return nil
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{AIProviderOpenAI, AIProviderOllama}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// DashScope models
		"text-embedding-v4": 1024,
		"text-embedding-v3": 1024,
		"text-embedding-v2": 1536,
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}
