package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigStore_SetAndGet(t *testing.T) {
	store := NewConfigStore()

	require.NoError(t, store.Set("embedding.model", "text-embedding-v4"))
	require.NoError(t, store.Set("search.top_k", int64(7)))
	require.NoError(t, store.Set("search.min_score", 0.4))
	require.NoError(t, store.Set("log.verbose", true))
	require.NoError(t, store.Set("watch.paths", []any{"/docs", 3}))

	assert.Equal(t, "text-embedding-v4", store.GetString("embedding.model"))
	assert.Equal(t, 7, store.GetInt("search.top_k"))
	assert.InDelta(t, 0.4, store.GetFloat("search.min_score"), 1e-9)
	assert.True(t, store.GetBool("log.verbose"))
	assert.Equal(t, []string{"/docs"}, store.GetStringSlice("watch.paths"))
}

func TestConfigStore_Missing(t *testing.T) {
	store := NewConfigStore()

	_, ok := store.Get("missing")
	assert.False(t, ok)
	assert.Empty(t, store.GetString("missing"))
	assert.Zero(t, store.GetInt("missing"))
	assert.Zero(t, store.GetFloat("missing"))
	assert.Nil(t, store.GetStringSlice("missing"))
}

func TestConfigStore_Seeded(t *testing.T) {
	store := NewConfigStore(map[string]any{"store.backend": "memory"})

	assert.Equal(t, "memory", store.GetString("store.backend"))
}

func TestConfigStore_NoOps(t *testing.T) {
	store := NewConfigStore()

	assert.NoError(t, store.Save())
	assert.NoError(t, store.Load())
	assert.Equal(t, ":memory:", store.Path())
}
