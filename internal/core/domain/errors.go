package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// Infrastructure adapters wrap these so callers can test with errors.Is.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown document format or provider.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrInvalidConfiguration indicates bad chunking parameters, settings or
	// collection options. It is fatal and never retried.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// collection's. It is a configuration error.
	ErrDimensionMismatch = fmt.Errorf("%w: dimension mismatch", ErrInvalidConfiguration)

	// ErrEmbeddingService indicates the embedding service failed after the
	// retry policy was exhausted, or failed permanently.
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrTransient marks a failure worth retrying (network error, timeout,
	// HTTP 429 or 5xx). Adapters wrap it; the embedding client checks it.
	ErrTransient = errors.New("transient failure")

	// ErrRerankUnavailable indicates the reranker is absent or failed.
	// It is expected and recoverable: search falls back to vector ordering.
	ErrRerankUnavailable = errors.New("rerank unavailable")

	// ErrVectorStore indicates a storage I/O failure in the vector store.
	ErrVectorStore = errors.New("vector store error")

	// ErrStoreClosed indicates use of a store after Close.
	ErrStoreClosed = errors.New("store closed")
)
