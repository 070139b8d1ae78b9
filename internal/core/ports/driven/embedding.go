// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import "context"

// EmbeddingService generates vector embeddings from text.
// It makes one provider call per EmbedBatch; batching, concurrency and
// retries are handled by the caller.
//
// Implementations may include:
//   - OpenAI-compatible APIs (DashScope text-embedding-v4, OpenAI text-embedding-3-small)
//   - Ollama (nomic-embed-text, all-minilm)
//
// Implementations wrap domain.ErrTransient for failures worth retrying
// (network errors, HTTP 429 and 5xx).
type EmbeddingService interface {
	// EmbedBatch generates embeddings for texts in a single request.
	// The result has one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g., 384, 1024, 1536).
	// It must match the collection the vectors are stored in.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
