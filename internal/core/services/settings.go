package services

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driven"
	"github.com/custodia-labs/kbengine/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	KeyEmbedProvider     = "embedding.provider"
	KeyEmbedAPIKey       = "embedding.api_key"
	KeyEmbedBaseURL      = "embedding.base_url"
	KeyEmbedModel        = "embedding.model"
	KeyEmbedDimensions   = "embedding.dimensions"
	KeyEmbedBatchSize    = "embedding.batch_size"
	KeyEmbedConcurrency  = "embedding.concurrency"
	KeyEmbedRPS          = "embedding.requests_per_second"
	KeyEmbedTimeoutMS    = "embedding.request_timeout_ms"
	KeyRetryMaxAttempts  = "embedding.retry.max_attempts"
	KeyRetryBaseDelayMS  = "embedding.retry.base_delay_ms"
	KeyRetryMultiplier   = "embedding.retry.multiplier"
	KeyRetryMaxDelayMS   = "embedding.retry.max_delay_ms"
	KeyRerankAPIKey      = "rerank.api_key"
	KeyRerankBaseURL     = "rerank.base_url"
	KeyRerankModel       = "rerank.model"
	KeyRerankMaxDocs     = "rerank.max_documents"
	KeyStoreBackend      = "store.backend"
	KeyStorePath         = "store.path"
	KeyDefaultCollection = "store.default_collection"
	KeySearchTopK        = "search.top_k"
	KeySearchMinScore    = "search.min_score"
	KeyOverFetchFactor   = "search.over_fetch_factor"
	KeyChunkSize         = "chunking.chunk_size"
	KeyChunkOverlap      = "chunking.overlap"
	KeyLogLevel          = "log.level"
	KeyLogFile           = "log.file"
	KeyLogFormat         = "log.format"
)

// Environment variables. They take precedence over the config file.
//
//nolint:gosec // G101: These are variable names, not actual credentials.
const (
	EnvEmbedProvider     = "KB_EMBEDDING_PROVIDER"
	EnvTongyiAPIKey      = "TONGYI_API_KEY"
	EnvOpenAIAPIKey      = "OPENAI_API_KEY"
	EnvEmbedEndpoint     = "TONGYI_EMBEDDING_API_ENDPOINT"
	EnvEmbedModel        = "TONGYI_EMBEDDING_MODEL_NAME"
	EnvEmbedDimensions   = "KB_EMBEDDING_DIMENSIONS"
	EnvRerankAPIKey      = "DASHSCOPE_API_KEY"
	EnvRerankEndpoint    = "KB_RERANK_ENDPOINT"
	EnvRerankModel       = "KB_RERANK_MODEL"
	EnvStoreBackend      = "KB_STORE_BACKEND"
	EnvStorePath         = "VECTOR_DB_PATH"
	EnvDefaultCollection = "CHROMA_DEFAULT_COLLECTION_NAME"
	EnvOverFetchFactor   = "KB_OVER_FETCH_FACTOR"
	EnvChunkSize         = "MAX_CHUNK_CHAR"
	EnvChunkOverlap      = "OVERLAP"
	EnvLogLevel          = "LOG_LEVEL"
	EnvLogFile           = "LOG_FILE"
)

// defaultOllamaModel is used when the provider is ollama and no model is set.
const defaultOllamaModel = "nomic-embed-text"

// SettingsService resolves engine settings. Each value comes from the first
// source that sets it: environment, config file, then defaults.
type SettingsService struct {
	configStore driven.ConfigStore
	lookupEnv   func(string) (string, bool)
}

// NewSettingsService creates a new settings service reading the process environment.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		lookupEnv:   os.LookupEnv,
	}
}

// SetEnvLookup replaces the environment source.
func (s *SettingsService) SetEnvLookup(lookup func(string) (string, bool)) {
	s.lookupEnv = lookup
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.EngineSettings {
	return domain.DefaultEngineSettings()
}

// Set stores a single config key and persists the file.
func (s *SettingsService) Set(key string, value any) error {
	if err := s.configStore.Set(key, value); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Validate checks that the effective settings are usable.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return settings.Validate()
}

// Get returns the effective settings. Malformed numeric environment values
// are reported as domain.ErrInvalidConfiguration.
func (s *SettingsService) Get() (*domain.EngineSettings, error) {
	r := resolver{svc: s}
	d := domain.DefaultEngineSettings()

	provider := domain.AIProvider(r.strVal(d.Embedding.Provider.String(), KeyEmbedProvider, EnvEmbedProvider))
	model, modelSet := r.lookupStr(KeyEmbedModel, EnvEmbedModel)
	baseURL, baseURLSet := r.lookupStr(KeyEmbedBaseURL, EnvEmbedEndpoint)
	if !modelSet {
		model = d.Embedding.Model
		if provider == domain.AIProviderOllama {
			model = defaultOllamaModel
		}
	}
	if !baseURLSet {
		baseURL = d.Embedding.BaseURL
		if provider == domain.AIProviderOllama {
			baseURL = domain.DefaultOllamaBaseURL
		}
	}
	dimsDefault := d.Embedding.Dimensions
	if known, ok := domain.EmbeddingDimensions()[model]; ok {
		dimsDefault = known
	}

	settings := &domain.EngineSettings{
		Embedding: domain.EmbeddingSettings{
			Provider:          provider,
			Model:             model,
			BaseURL:           baseURL,
			APIKey:            r.strVal("", KeyEmbedAPIKey, EnvTongyiAPIKey, EnvOpenAIAPIKey),
			Dimensions:        r.intVal(dimsDefault, KeyEmbedDimensions, EnvEmbedDimensions),
			BatchSize:         r.intVal(d.Embedding.BatchSize, KeyEmbedBatchSize),
			Concurrency:       r.intVal(d.Embedding.Concurrency, KeyEmbedConcurrency),
			RequestsPerSecond: r.floatVal(d.Embedding.RequestsPerSecond, KeyEmbedRPS),
			RequestTimeout:    r.millis(d.Embedding.RequestTimeout, KeyEmbedTimeoutMS),
			Retry: domain.RetryPolicy{
				MaxAttempts: r.intVal(d.Embedding.Retry.MaxAttempts, KeyRetryMaxAttempts),
				BaseDelay:   r.millis(d.Embedding.Retry.BaseDelay, KeyRetryBaseDelayMS),
				Multiplier:  r.floatVal(d.Embedding.Retry.Multiplier, KeyRetryMultiplier),
				MaxDelay:    r.millis(d.Embedding.Retry.MaxDelay, KeyRetryMaxDelayMS),
			},
		},
		Rerank: domain.RerankSettings{
			APIKey:         r.strVal("", KeyRerankAPIKey, EnvRerankAPIKey),
			BaseURL:        r.strVal(d.Rerank.BaseURL, KeyRerankBaseURL, EnvRerankEndpoint),
			Model:          r.strVal(d.Rerank.Model, KeyRerankModel, EnvRerankModel),
			MaxDocuments:   r.intVal(d.Rerank.MaxDocuments, KeyRerankMaxDocs),
			RequestTimeout: d.Rerank.RequestTimeout,
		},
		Store: domain.StoreSettings{
			Backend:           domain.StoreBackend(r.strVal(string(d.Store.Backend), KeyStoreBackend, EnvStoreBackend)),
			Path:              r.strVal(d.Store.Path, KeyStorePath, EnvStorePath),
			DefaultCollection: r.strVal(d.Store.DefaultCollection, KeyDefaultCollection, EnvDefaultCollection),
		},
		Search: domain.SearchSettings{
			TopK:            r.intVal(d.Search.TopK, KeySearchTopK),
			MinScore:        r.floatVal(d.Search.MinScore, KeySearchMinScore),
			OverFetchFactor: r.intVal(d.Search.OverFetchFactor, KeyOverFetchFactor, EnvOverFetchFactor),
		},
		Chunking: domain.ChunkOptions{
			ChunkSize: r.intVal(d.Chunking.ChunkSize, KeyChunkSize, EnvChunkSize),
			Overlap:   r.intVal(d.Chunking.Overlap, KeyChunkOverlap, EnvChunkOverlap),
		},
		Log: domain.LogSettings{
			Level:  r.strVal(d.Log.Level, KeyLogLevel, EnvLogLevel),
			File:   r.strVal(d.Log.File, KeyLogFile, EnvLogFile),
			Format: r.strVal(d.Log.Format, KeyLogFormat),
		},
	}

	if r.err != nil {
		return nil, r.err
	}
	return settings, nil
}

// resolver reads one setting at a time and remembers the first parse error.
type resolver struct {
	svc *SettingsService
	err error
}

// lookupStr returns the first non-empty environment variable, else the
// config value.
func (r *resolver) lookupStr(key string, envs ...string) (string, bool) {
	for _, env := range envs {
		if v, ok := r.svc.lookupEnv(env); ok && v != "" {
			return v, true
		}
	}
	if v := r.svc.configStore.GetString(key); v != "" {
		return v, true
	}
	return "", false
}

func (r *resolver) strVal(def, key string, envs ...string) string {
	if v, ok := r.lookupStr(key, envs...); ok {
		return v
	}
	return def
}

// env returns the first non-empty environment value among envs.
func (r *resolver) env(envs []string) (string, string, bool) {
	for _, env := range envs {
		if v, ok := r.svc.lookupEnv(env); ok && v != "" {
			return env, v, true
		}
	}
	return "", "", false
}

func (r *resolver) intVal(def int, key string, envs ...string) int {
	if name, v, ok := r.env(envs); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			r.fail(fmt.Errorf("%w: %s=%q is not an integer", domain.ErrInvalidConfiguration, name, v))
			return def
		}
		return n
	}
	if _, ok := r.svc.configStore.Get(key); ok {
		return r.svc.configStore.GetInt(key)
	}
	return def
}

func (r *resolver) floatVal(def float64, key string, envs ...string) float64 {
	if name, v, ok := r.env(envs); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			r.fail(fmt.Errorf("%w: %s=%q is not a number", domain.ErrInvalidConfiguration, name, v))
			return def
		}
		return f
	}
	if _, ok := r.svc.configStore.Get(key); ok {
		return r.svc.configStore.GetFloat(key)
	}
	return def
}

func (r *resolver) millis(def time.Duration, key string) time.Duration {
	if _, ok := r.svc.configStore.Get(key); ok {
		return time.Duration(r.svc.configStore.GetInt(key)) * time.Millisecond
	}
	return def
}

func (r *resolver) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}
