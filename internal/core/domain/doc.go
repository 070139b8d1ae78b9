// Package domain defines the core business entities for kbengine.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: A logical unit submitted for ingestion
//   - Chunk: A searchable, embedded slice of a document
//   - CollectionConfig: Per-collection settings fixed at creation time
//   - CandidateResult / RankedResult: Transient and final search records
//   - RerankOutcome: Tagged result of a reranking attempt
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
