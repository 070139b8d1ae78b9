package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/kbengine/internal/adapters/driven/storage/vectorscan"
	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driven"
)

// Ensure VectorStore implements the interfaces.
var (
	_ driven.VectorStore     = (*VectorStore)(nil)
	_ driven.CollectionStore = (*VectorStore)(nil)
)

// VectorStore is an in-memory implementation of driven.VectorStore and
// driven.CollectionStore. Nothing survives Close.
type VectorStore struct {
	mu          sync.RWMutex
	closed      bool
	seq         int64
	collections map[string]*collection
}

type collection struct {
	cfg    domain.CollectionConfig
	docs   map[string]*docEntry
	chunks map[string]*chunkEntry
}

type docEntry struct {
	doc domain.Document
	seq int64
}

type chunkEntry struct {
	chunk domain.Chunk
	seq   int64
	mag   float64
}

// NewVectorStore creates a new in-memory vector store.
func NewVectorStore() *VectorStore {
	return &VectorStore{
		collections: make(map[string]*collection),
	}
}

// Create stores a new collection.
func (s *VectorStore) Create(_ context.Context, cfg domain.CollectionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrStoreClosed
	}
	if _, ok := s.collections[cfg.Name]; ok {
		return fmt.Errorf("collection %q: %w", cfg.Name, domain.ErrAlreadyExists)
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now().UTC()
	}
	s.collections[cfg.Name] = &collection{
		cfg:    cfg,
		docs:   make(map[string]*docEntry),
		chunks: make(map[string]*chunkEntry),
	}
	return nil
}

// Get retrieves a collection by name.
func (s *VectorStore) Get(_ context.Context, name string) (*domain.CollectionConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	cfg := c.cfg
	return &cfg, nil
}

// List returns all collections ordered by name.
func (s *VectorStore) List(_ context.Context) ([]domain.CollectionConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, domain.ErrStoreClosed
	}
	result := make([]domain.CollectionConfig, 0, len(s.collections))
	for _, c := range s.collections {
		result = append(result, c.cfg)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Delete removes a collection with all its documents and chunks.
func (s *VectorStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.collection(name); err != nil {
		return err
	}
	delete(s.collections, name)
	return nil
}

// AddDocument commits a document and its chunks in one critical section.
func (s *VectorStore) AddDocument(_ context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.collection(doc.Collection)
	if err != nil {
		return err
	}
	for i := range chunks {
		if err := c.checkChunk(doc.ID, &chunks[i]); err != nil {
			return err
		}
	}

	entry, ok := c.docs[doc.ID]
	if !ok {
		s.seq++
		entry = &docEntry{seq: s.seq}
		c.docs[doc.ID] = entry
	}
	stored := *doc
	stored.Content = ""
	stored.Metadata = domain.CopyMetadata(doc.Metadata)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	entry.doc = stored

	for _, chunk := range chunks {
		s.upsertChunk(c, chunk)
	}

	// Drop chunks left over from a previous, longer chunking of the document.
	for id, ce := range c.chunks {
		if ce.chunk.DocumentID == doc.ID && ce.chunk.Position >= len(chunks) {
			delete(c.chunks, id)
		}
	}

	return nil
}

// Add upserts a single chunk into an existing document.
func (s *VectorStore) Add(_ context.Context, collectionName string, chunk domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.collection(collectionName)
	if err != nil {
		return err
	}
	if _, ok := c.docs[chunk.DocumentID]; !ok {
		return fmt.Errorf("document %s: %w", chunk.DocumentID, domain.ErrNotFound)
	}
	if err := c.checkChunk(chunk.DocumentID, &chunk); err != nil {
		return err
	}
	s.upsertChunk(c, chunk)
	return nil
}

// Query scans the collection and returns the closest chunks.
func (s *VectorStore) Query(_ context.Context, collectionName string, vector []float32, limit int) ([]domain.CandidateResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.collection(collectionName)
	if err != nil {
		return nil, err
	}
	if len(vector) != c.cfg.Dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection %q has %d",
			domain.ErrDimensionMismatch, len(vector), c.cfg.Name, c.cfg.Dimensions)
	}

	qmag := vectorscan.Magnitude(vector)
	collector := vectorscan.NewCollector[*chunkEntry](limit)
	for _, ce := range c.chunks {
		collector.Add(ce, ce.seq, vectorscan.Cosine(vector, ce.chunk.Embedding, qmag, ce.mag))
	}

	hits := collector.Results()
	results := make([]domain.CandidateResult, len(hits))
	for i, hit := range hits {
		results[i] = domain.CandidateResult{
			ChunkID:     hit.Item.chunk.ID,
			DocumentID:  hit.Item.chunk.DocumentID,
			Content:     hit.Item.chunk.Content,
			Metadata:    domain.CopyMetadata(hit.Item.chunk.Metadata),
			VectorScore: hit.Score,
			Rank:        i,
		}
	}
	return results, nil
}

// DeleteDocument removes a document and all of its chunks.
func (s *VectorStore) DeleteDocument(_ context.Context, collectionName, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.collection(collectionName)
	if err != nil {
		return err
	}
	if _, ok := c.docs[documentID]; !ok {
		return fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	delete(c.docs, documentID)
	for id, ce := range c.chunks {
		if ce.chunk.DocumentID == documentID {
			delete(c.chunks, id)
		}
	}
	return nil
}

// HasDocument reports whether the document is committed.
func (s *VectorStore) HasDocument(_ context.Context, collectionName, documentID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.collection(collectionName)
	if err != nil {
		return false, err
	}
	_, ok := c.docs[documentID]
	return ok, nil
}

// GetDocument retrieves a document record.
func (s *VectorStore) GetDocument(_ context.Context, collectionName, documentID string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.collection(collectionName)
	if err != nil {
		return nil, err
	}
	entry, ok := c.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	doc := c.snapshot(entry)
	return &doc, nil
}

// ListDocuments returns all documents in a collection, oldest first.
func (s *VectorStore) ListDocuments(_ context.Context, collectionName string) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.collection(collectionName)
	if err != nil {
		return nil, err
	}
	entries := make([]*docEntry, 0, len(c.docs))
	for _, e := range c.docs {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	docs := make([]domain.Document, len(entries))
	for i, e := range entries {
		docs[i] = c.snapshot(e)
	}
	return docs, nil
}

// CountChunks returns the number of chunks in a collection.
func (s *VectorStore) CountChunks(_ context.Context, collectionName string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.collection(collectionName)
	if err != nil {
		return 0, err
	}
	return len(c.chunks), nil
}

// Close drops all data. Later calls return domain.ErrStoreClosed.
func (s *VectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.collections = nil
	return nil
}

// collection must be called with mu held.
func (s *VectorStore) collection(name string) (*collection, error) {
	if s.closed {
		return nil, domain.ErrStoreClosed
	}
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", name, domain.ErrNotFound)
	}
	return c, nil
}

func (s *VectorStore) upsertChunk(c *collection, chunk domain.Chunk) {
	stored := chunk
	stored.Embedding = append([]float32(nil), chunk.Embedding...)
	stored.Metadata = domain.CopyMetadata(chunk.Metadata)

	if existing, ok := c.chunks[chunk.ID]; ok {
		existing.chunk = stored
		existing.mag = vectorscan.Magnitude(stored.Embedding)
		return
	}
	s.seq++
	c.chunks[chunk.ID] = &chunkEntry{
		chunk: stored,
		seq:   s.seq,
		mag:   vectorscan.Magnitude(stored.Embedding),
	}
}

func (c *collection) checkChunk(documentID string, chunk *domain.Chunk) error {
	if chunk.ID == "" {
		return fmt.Errorf("%w: chunk without ID", domain.ErrInvalidInput)
	}
	if chunk.DocumentID != documentID {
		return fmt.Errorf("%w: chunk %s belongs to document %s, not %s",
			domain.ErrInvalidInput, chunk.ID, chunk.DocumentID, documentID)
	}
	if len(chunk.Embedding) != c.cfg.Dimensions {
		return fmt.Errorf("%w: chunk %s has %d dimensions, collection %q has %d",
			domain.ErrDimensionMismatch, chunk.ID, len(chunk.Embedding), c.cfg.Name, c.cfg.Dimensions)
	}
	return nil
}

func (c *collection) snapshot(e *docEntry) domain.Document {
	doc := e.doc
	doc.Metadata = domain.CopyMetadata(e.doc.Metadata)
	doc.ChunkCount = 0
	for _, ce := range c.chunks {
		if ce.chunk.DocumentID == doc.ID {
			doc.ChunkCount++
		}
	}
	return doc
}
