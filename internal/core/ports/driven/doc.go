// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the engine to function:
//
//   - EmbeddingService: Generates vector embeddings for chunks and queries
//   - VectorStore: Chunk persistence and similarity search per collection
//   - CollectionStore: Collection configuration persistence
//   - PostProcessor: Splits documents into chunks
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be absent or failing - the engine degrades gracefully:
//
//   - Reranker: Relevance scoring. When unavailable, search orders by vector similarity.
//   - Normaliser / NormaliserRegistry: Only needed for file ingestion.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven
