package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kbengine/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driven"
	"github.com/custodia-labs/kbengine/internal/postprocessors"
)

const testModel = "test-embed"

// --- Mock implementations ---

// vocabEmbedder implements driven.EmbeddingService with a bag-of-words model
// over a fixed vocabulary. Words outside the vocabulary are ignored.
type vocabEmbedder struct {
	vocab map[string]int

	mu     sync.Mutex
	calls  int
	inputs [][]string

	// fail, when set, is consulted before each batch.
	fail func(texts []string) error
}

var _ driven.EmbeddingService = (*vocabEmbedder)(nil)

func newVocabEmbedder(words ...string) *vocabEmbedder {
	if len(words) == 0 {
		words = []string{
			"autogen", "agent", "kubernetes", "container", "cluster",
			"pizza", "dough", "oven", "alpha", "beta", "gamma",
		}
	}
	vocab := make(map[string]int, len(words))
	for i, w := range words {
		vocab[w] = i
	}
	return &vocabEmbedder{vocab: vocab}
}

func (e *vocabEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.inputs = append(e.inputs, append([]string(nil), texts...))
	fail := e.fail
	e.mu.Unlock()

	if fail != nil {
		if err := fail(texts); err != nil {
			return nil, err
		}
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *vocabEmbedder) vector(text string) []float32 {
	v := make([]float32, len(e.vocab))
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if i, ok := e.vocab[w]; ok {
			v[i]++
		}
	}
	return v
}

func (e *vocabEmbedder) Dimensions() int           { return len(e.vocab) }
func (e *vocabEmbedder) ModelName() string         { return testModel }
func (e *vocabEmbedder) Ping(context.Context) error { return nil }
func (e *vocabEmbedder) Close() error              { return nil }

func (e *vocabEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// fixedEmbedder returns the same vector for every text.
type fixedEmbedder struct {
	vec []float32
	err error
}

func (e *fixedEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vec
	}
	return out, nil
}

func (e *fixedEmbedder) Dimensions() int           { return len(e.vec) }
func (e *fixedEmbedder) ModelName() string         { return testModel }
func (e *fixedEmbedder) Ping(context.Context) error { return nil }
func (e *fixedEmbedder) Close() error              { return nil }

// mockReranker implements driven.Reranker, returning a canned outcome.
type mockReranker struct {
	outcome    domain.RerankOutcome
	query      string
	candidates []string
}

func (m *mockReranker) Rerank(_ context.Context, query string, candidates []string) domain.RerankOutcome {
	m.query = query
	m.candidates = candidates
	return m.outcome
}

// recordingStore wraps a memory store and records Query limits.
type recordingStore struct {
	*memory.VectorStore
	limits []int
}

func (s *recordingStore) Query(ctx context.Context, collection string, vector []float32, limit int) ([]domain.CandidateResult, error) {
	s.limits = append(s.limits, limit)
	return s.VectorStore.Query(ctx, collection, vector, limit)
}

// --- Fixtures ---

func testEmbeddingOptions() EmbeddingOptions {
	opts := DefaultEmbeddingOptions()
	opts.Retry = domain.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 1}
	return opts
}

func newTestClient(t *testing.T, svc driven.EmbeddingService, opts EmbeddingOptions) *EmbeddingClient {
	t.Helper()
	client, err := NewEmbeddingClient(svc, opts)
	require.NoError(t, err)
	client.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return client
}

// engine bundles the services over one in-memory store.
type engine struct {
	store       *memory.VectorStore
	embedder    *EmbeddingClient
	collections *CollectionService
	ingest      *IngestService
}

func newEngine(t *testing.T, svc driven.EmbeddingService, opts EmbeddingOptions) *engine {
	t.Helper()
	store := memory.NewVectorStore()
	client := newTestClient(t, svc, opts)

	e := &engine{
		store:       store,
		embedder:    client,
		collections: NewCollectionService(store, store, client.Model(), client.Dimensions()),
		ingest:      NewIngestService(store, store, client, postprocessors.NewDefaultFactory()),
	}
	_, err := e.collections.Ensure(context.Background(), domain.DefaultCollectionName)
	require.NoError(t, err)
	return e
}

func (e *engine) search(reranker driven.Reranker) *SearchService {
	return NewSearchService(e.store, e.store, e.embedder, reranker)
}

// seedChunks stores one single-chunk document per content with the given vectors.
func seedChunks(t *testing.T, store *memory.VectorStore, collection string, contents []string, vectors [][]float32) {
	t.Helper()
	ctx := context.Background()
	for i, content := range contents {
		docID := domain.DocumentID(content + "#" + string(rune('a'+i)))
		doc := &domain.Document{ID: docID, Collection: collection}
		chunk := domain.Chunk{
			ID:         docID + "-0",
			DocumentID: docID,
			Content:    content,
			Embedding:  vectors[i],
			Metadata:   map[string]any{domain.MetaSource: content},
		}
		require.NoError(t, store.AddDocument(ctx, doc, []domain.Chunk{chunk}))
	}
}
