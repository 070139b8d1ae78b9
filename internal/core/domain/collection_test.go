package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollectionConfig_Defaults(t *testing.T) {
	cfg := NewCollectionConfig("docs", "text-embedding-v4", 1024)

	assert.Equal(t, "docs", cfg.Name)
	assert.Equal(t, 5, cfg.DefaultTopK)
	assert.Equal(t, 0.2, cfg.DefaultMinScore)
	assert.Equal(t, 3, cfg.OverFetchFactor)
	require.NoError(t, cfg.Validate())
}

func TestCollectionConfig_WithDefaults(t *testing.T) {
	cfg := CollectionConfig{Name: "docs", EmbeddingModel: "m", Dimensions: 8}.WithDefaults()

	assert.Equal(t, DefaultTopK, cfg.DefaultTopK)
	assert.Equal(t, DefaultOverFetchFactor, cfg.OverFetchFactor)
}

func TestCollectionConfig_Validate(t *testing.T) {
	valid := NewCollectionConfig("docs", "m", 8)

	tests := []struct {
		name   string
		mutate func(*CollectionConfig)
	}{
		{"empty name", func(c *CollectionConfig) { c.Name = "" }},
		{"name with slash", func(c *CollectionConfig) { c.Name = "a/b" }},
		{"no model", func(c *CollectionConfig) { c.EmbeddingModel = "" }},
		{"zero dimensions", func(c *CollectionConfig) { c.Dimensions = 0 }},
		{"zero top_k", func(c *CollectionConfig) { c.DefaultTopK = 0 }},
		{"negative min score", func(c *CollectionConfig) { c.DefaultMinScore = -0.1 }},
		{"over-fetch below one", func(c *CollectionConfig) { c.OverFetchFactor = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfiguration))
		})
	}
}

func TestCollectionConfig_CheckEmbedding(t *testing.T) {
	cfg := NewCollectionConfig("docs", "text-embedding-v4", 1024)

	assert.NoError(t, cfg.CheckEmbedding("text-embedding-v4", 1024))

	err := cfg.CheckEmbedding("text-embedding-v4", 768)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))

	err = cfg.CheckEmbedding("other-model", 1024)
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
	assert.False(t, errors.Is(err, ErrDimensionMismatch))
}

func TestChunkOptions_Validate(t *testing.T) {
	tests := []struct {
		name  string
		opts  ChunkOptions
		valid bool
	}{
		{"defaults", DefaultChunkOptions(), true},
		{"no overlap", ChunkOptions{ChunkSize: 10, Overlap: 0}, true},
		{"zero size", ChunkOptions{ChunkSize: 0, Overlap: 0}, false},
		{"negative overlap", ChunkOptions{ChunkSize: 10, Overlap: -1}, false},
		{"overlap equals size", ChunkOptions{ChunkSize: 10, Overlap: 10}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidConfiguration))
			}
		})
	}
}
