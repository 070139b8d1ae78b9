// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// Ingestion and retrieval never talk to providers directly: embeddings go
// through EmbeddingClient, which owns batching, rate limiting and retries.
package services
