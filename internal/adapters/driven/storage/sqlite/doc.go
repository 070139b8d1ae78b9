// Package sqlite provides a SQLite-backed vector store.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. A single database file holds every
// collection:
//
//   - CollectionStore: collection configuration
//   - VectorStore: documents, chunks and their embeddings
//
// Similarity queries are exact. Every chunk of the collection is scanned and
// scored by cosine similarity against a precomputed norm.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.kbengine/data/kbengine.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode. Document commits run in a single transaction.
package sqlite
