package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kbengine/internal/core/domain"
)

func TestCollectionCreate(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("collection", "create", "team_docs", "--top-k", "8", "--min-score", "0.4")
	require.NoError(t, err)

	require.Len(t, ts.collections.created, 1)
	cfg := ts.collections.created[0]
	assert.Equal(t, "team_docs", cfg.Name)
	assert.Equal(t, 8, cfg.DefaultTopK)
	assert.Equal(t, 0.4, cfg.DefaultMinScore)
	assert.Equal(t, domain.DefaultOverFetchFactor, cfg.OverFetchFactor)
	assert.Empty(t, cfg.EmbeddingModel, "model comes from the engine")
	assert.Contains(t, out, "Created collection team_docs")
}

func TestCollectionCreate_Error(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.collections.err = domain.ErrAlreadyExists

	_, err := executeCommand("collection", "create", "kb")
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestCollectionList(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.collections.collections = []domain.CollectionConfig{
		domain.NewCollectionConfig(domain.DefaultCollectionName, "text-embedding-v4", 1024),
		domain.NewCollectionConfig("other", "nomic-embed-text", 768),
	}

	out, err := executeCommand("collection", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "* "+domain.DefaultCollectionName)
	assert.Contains(t, out, "  other")
	assert.Contains(t, out, "nomic-embed-text (768 dimensions)")

	out, err = executeCommand("col", "ls", "--json")
	require.NoError(t, err)
	var decoded []domain.CollectionConfig
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Len(t, decoded, 2)
}

func TestCollectionList_Empty(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("collection", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No collections.")
}

func TestCollectionStats(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("collection", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Collection: "+domain.DefaultCollectionName)
	assert.Contains(t, out, "Documents: 2")
	assert.Contains(t, out, "Chunks:    7")

	out, err = executeCommand("collection", "stats", "other")
	require.NoError(t, err)
	assert.Contains(t, out, "Collection: other")
}

func TestCollectionDelete(t *testing.T) {
	t.Run("with --yes", func(t *testing.T) {
		ts, cleanup := setupTestServices()
		defer cleanup()

		out, err := executeCommand("collection", "delete", "kb", "--yes")
		require.NoError(t, err)
		assert.Equal(t, []string{"kb"}, ts.collections.deleted)
		assert.Contains(t, out, "Deleted collection kb")
	})

	t.Run("confirmed", func(t *testing.T) {
		ts, cleanup := setupTestServices()
		defer cleanup()

		rootCmd.SetIn(strings.NewReader("y\n"))
		_, err := executeCommand("collection", "delete", "kb")
		require.NoError(t, err)
		assert.Equal(t, []string{"kb"}, ts.collections.deleted)
	})

	t.Run("declined", func(t *testing.T) {
		ts, cleanup := setupTestServices()
		defer cleanup()

		rootCmd.SetIn(strings.NewReader("n\n"))
		_, err := executeCommand("collection", "delete", "kb")
		assert.ErrorIs(t, err, errCancelled)
		assert.Empty(t, ts.collections.deleted)
	})
}
