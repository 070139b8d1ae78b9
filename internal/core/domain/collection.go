package domain

import (
	"fmt"
	"regexp"
	"time"
)

// Collection defaults.
const (
	DefaultCollectionName  = "global_knowledge_base"
	DefaultTopK            = 5
	DefaultMinScore        = 0.2
	DefaultOverFetchFactor = 3

	// MaxTopK bounds the results a single search returns.
	MaxTopK = 1000
	// MaxCandidates bounds the vector candidates fetched for one search.
	MaxCandidates = MaxTopK * 10
)

var collectionNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// ValidateCollectionName checks that name is usable as a collection key.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: invalid collection name %q", ErrInvalidConfiguration, name)
	}
	return nil
}

// CollectionConfig holds the per-collection settings.
// It is set once at collection creation and read-only thereafter.
type CollectionConfig struct {
	// Name identifies the collection (one logical knowledge base).
	Name string

	// EmbeddingModel is the model every vector in the collection was produced with.
	EmbeddingModel string

	// Dimensions is the fixed length of every vector in the collection.
	Dimensions int

	// PersistPath is where the backing store keeps the collection.
	// Empty for ephemeral stores.
	PersistPath string

	// DefaultTopK is used when a search does not specify topK.
	DefaultTopK int

	// DefaultMinScore is used when a search does not specify minScore.
	DefaultMinScore float64

	// OverFetchFactor multiplies topK to size the candidate pool.
	OverFetchFactor int

	// CreatedAt is when the collection was created.
	CreatedAt time.Time
}

// NewCollectionConfig returns a config with defaults applied for the given
// name and embedding model.
func NewCollectionConfig(name, model string, dimensions int) CollectionConfig {
	return CollectionConfig{
		Name:            name,
		EmbeddingModel:  model,
		Dimensions:      dimensions,
		DefaultTopK:     DefaultTopK,
		DefaultMinScore: DefaultMinScore,
		OverFetchFactor: DefaultOverFetchFactor,
	}
}

// WithDefaults fills zero-valued optional fields with their defaults.
func (c CollectionConfig) WithDefaults() CollectionConfig {
	if c.DefaultTopK == 0 {
		c.DefaultTopK = DefaultTopK
	}
	if c.OverFetchFactor == 0 {
		c.OverFetchFactor = DefaultOverFetchFactor
	}
	return c
}

// Validate checks every option. It is called at collection creation.
func (c CollectionConfig) Validate() error {
	if err := ValidateCollectionName(c.Name); err != nil {
		return err
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: embedding model is required", ErrInvalidConfiguration)
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got %d", ErrInvalidConfiguration, c.Dimensions)
	}
	if c.DefaultTopK <= 0 {
		return fmt.Errorf("%w: default top_k must be positive, got %d", ErrInvalidConfiguration, c.DefaultTopK)
	}
	if c.DefaultMinScore < 0 {
		return fmt.Errorf("%w: default min_score must not be negative", ErrInvalidConfiguration)
	}
	if c.OverFetchFactor < 1 {
		return fmt.Errorf("%w: over_fetch_factor must be at least 1, got %d",
			ErrInvalidConfiguration, c.OverFetchFactor)
	}
	return nil
}

// CheckEmbedding verifies that vectors from the given model can be stored
// in or compared against this collection.
func (c CollectionConfig) CheckEmbedding(model string, dimensions int) error {
	if dimensions != c.Dimensions {
		return fmt.Errorf("%w: collection %q expects %d dimensions, embedding model %q produces %d",
			ErrDimensionMismatch, c.Name, c.Dimensions, model, dimensions)
	}
	if model != c.EmbeddingModel {
		return fmt.Errorf("%w: collection %q was built with model %q, not %q",
			ErrInvalidConfiguration, c.Name, c.EmbeddingModel, model)
	}
	return nil
}

// ChunkOptions configures how documents are split before embedding.
type ChunkOptions struct {
	// ChunkSize is the maximum number of characters per chunk.
	ChunkSize int

	// Overlap is the number of characters repeated between consecutive chunks.
	Overlap int
}

// Chunking defaults.
const (
	DefaultChunkSize    = 1500
	DefaultChunkOverlap = 200
)

// DefaultChunkOptions returns the default chunking parameters.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{ChunkSize: DefaultChunkSize, Overlap: DefaultChunkOverlap}
}

// Validate checks the chunking parameters.
func (o ChunkOptions) Validate() error {
	if o.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfiguration, o.ChunkSize)
	}
	if o.Overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfiguration, o.Overlap)
	}
	if o.Overlap >= o.ChunkSize {
		return fmt.Errorf("%w: overlap (%d) must be smaller than chunk size (%d)",
			ErrInvalidConfiguration, o.Overlap, o.ChunkSize)
	}
	return nil
}

// CollectionStats summarises the contents of a collection.
type CollectionStats struct {
	Name      string `json:"name"`
	Documents int    `json:"documents"`
	Chunks    int    `json:"chunks"`
}
