package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/kbengine/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/kbengine/internal/adapters/driven/storage/vectorscan"
	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driven"
	"github.com/custodia-labs/kbengine/internal/logger"
)

// DatabaseFileName is the name of the database file inside the data directory.
const DatabaseFileName = "kbengine.db"

// Store is a SQLite-based storage that provides access to the collection
// and vector store interfaces through wrapper types.
type Store struct {
	db     *sql.DB
	path   string
	closed atomic.Bool
}

// DefaultDataDir returns ~/.kbengine/data.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".kbengine", "data"), nil
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.kbengine/data/kbengine.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		dir, err := DefaultDataDir()
		if err != nil {
			return nil, err
		}
		dataDir = dir
	}

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: creating data directory: %w", domain.ErrVectorStore, err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFileName)

	// Pragmas in the DSN apply to every pooled connection, including
	// foreign keys which drive the cascading deletes. Transactions take the
	// write lock on BEGIN so concurrent writers wait on busy_timeout instead
	// of failing when a read is upgraded to a write.
	db, err := sql.Open("sqlite", dbPath+
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %w", domain.ErrVectorStore, err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: running migrations: %w", domain.ErrVectorStore, err)
	}

	return s, nil
}

// Close closes the database connection. Later calls return domain.ErrStoreClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return storeErr("closing database", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// VectorStore returns a VectorStore interface backed by this store.
func (s *Store) VectorStore() driven.VectorStore {
	return &vectorStore{store: s}
}

// CollectionStore returns a CollectionStore interface backed by this store.
func (s *Store) CollectionStore() driven.CollectionStore {
	return &collectionStore{store: s}
}

func (s *Store) open() error {
	if s.closed.Load() {
		return domain.ErrStoreClosed
	}
	return nil
}

// migrate runs all pending migrations. Each migration records its own version.
func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	pending, err := migrations.Up(currentVersion)
	if err != nil {
		return err
	}
	for _, m := range pending {
		if _, err := s.db.Exec(m.SQL); err != nil {
			return fmt.Errorf("executing migration %s: %w", m.Name, err)
		}
		logger.Debug("Applied migration %s", m.Name)
	}

	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// dimensions returns the vector length of a collection.
func dimensions(ctx context.Context, q querier, collection string) (int, error) {
	var dims int
	err := q.QueryRowContext(ctx, "SELECT dimensions FROM collections WHERE name = ?", collection).Scan(&dims)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("collection %q: %w", collection, domain.ErrNotFound)
	}
	if err != nil {
		return 0, storeErr("reading collection", err)
	}
	return dims, nil
}

// ==================== Collection Store ====================

// collectionStore implements driven.CollectionStore.
type collectionStore struct {
	store *Store
}

var _ driven.CollectionStore = (*collectionStore)(nil)

// Create stores a new collection.
func (s *collectionStore) Create(ctx context.Context, cfg domain.CollectionConfig) error {
	if err := s.store.open(); err != nil {
		return err
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now().UTC()
	}

	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO collections (name, embedding_model, dimensions, persist_path,
			default_top_k, default_min_score, over_fetch_factor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, cfg.Name, cfg.EmbeddingModel, cfg.Dimensions, cfg.PersistPath,
		cfg.DefaultTopK, cfg.DefaultMinScore, cfg.OverFetchFactor, cfg.CreatedAt)
	if err != nil {
		return storeErr("saving collection", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("collection %q: %w", cfg.Name, domain.ErrAlreadyExists)
	}
	return nil
}

// Get retrieves a collection by name.
func (s *collectionStore) Get(ctx context.Context, name string) (*domain.CollectionConfig, error) {
	if err := s.store.open(); err != nil {
		return nil, err
	}
	row := s.store.db.QueryRowContext(ctx, `
		SELECT name, embedding_model, dimensions, persist_path,
			default_top_k, default_min_score, over_fetch_factor, created_at
		FROM collections WHERE name = ?
	`, name)

	cfg, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("collection %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("reading collection", err)
	}
	return cfg, nil
}

// List returns all collections ordered by name.
func (s *collectionStore) List(ctx context.Context) ([]domain.CollectionConfig, error) {
	if err := s.store.open(); err != nil {
		return nil, err
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT name, embedding_model, dimensions, persist_path,
			default_top_k, default_min_score, over_fetch_factor, created_at
		FROM collections ORDER BY name
	`)
	if err != nil {
		return nil, storeErr("querying collections", err)
	}
	defer rows.Close()

	result := []domain.CollectionConfig{}
	for rows.Next() {
		cfg, err := scanCollection(rows)
		if err != nil {
			return nil, storeErr("scanning collection", err)
		}
		result = append(result, *cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterating collections", err)
	}
	return result, nil
}

// Delete removes a collection. Documents and chunks go with it by cascade.
func (s *collectionStore) Delete(ctx context.Context, name string) error {
	if err := s.store.open(); err != nil {
		return err
	}
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", name)
	if err != nil {
		return storeErr("deleting collection", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("collection %q: %w", name, domain.ErrNotFound)
	}
	return nil
}

// ==================== Vector Store ====================

// vectorStore implements driven.VectorStore.
type vectorStore struct {
	store *Store
}

var _ driven.VectorStore = (*vectorStore)(nil)

// AddDocument commits a document and its chunks in one transaction.
func (s *vectorStore) AddDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", domain.ErrInvalidInput)
	}
	if err := s.store.open(); err != nil {
		return err
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	dims, err := dimensions(ctx, tx, doc.Collection)
	if err != nil {
		return err
	}
	for i := range chunks {
		if err := checkChunk(doc.Collection, dims, doc.ID, &chunks[i]); err != nil {
			return err
		}
	}

	metadataJSON, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	// Upsert keeps the original seq, and with it the list position.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, metadata, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			metadata = excluded.metadata,
			created_at = excluded.created_at
	`, doc.Collection, doc.ID, metadataJSON, createdAt); err != nil {
		return storeErr("saving document", err)
	}

	stmt, err := tx.PrepareContext(ctx, upsertChunkSQL)
	if err != nil {
		return storeErr("preparing statement", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		if err := execUpsertChunk(ctx, stmt, doc.Collection, chunk); err != nil {
			return err
		}
	}

	// Drop chunks left over from a previous, longer chunking of the document.
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM chunks WHERE collection = ? AND document_id = ? AND position >= ?",
		doc.Collection, doc.ID, len(chunks)); err != nil {
		return storeErr("pruning chunks", err)
	}

	if err := tx.Commit(); err != nil {
		return storeErr("committing transaction", err)
	}
	return nil
}

// Add upserts a single chunk into an existing document.
func (s *vectorStore) Add(ctx context.Context, collection string, chunk domain.Chunk) error {
	if err := s.store.open(); err != nil {
		return err
	}

	dims, err := dimensions(ctx, s.store.db, collection)
	if err != nil {
		return err
	}
	has, err := s.HasDocument(ctx, collection, chunk.DocumentID)
	if err != nil {
		return err
	}
	if !has {
		return fmt.Errorf("document %s: %w", chunk.DocumentID, domain.ErrNotFound)
	}
	if err := checkChunk(collection, dims, chunk.DocumentID, &chunk); err != nil {
		return err
	}

	stmt, err := s.store.db.PrepareContext(ctx, upsertChunkSQL)
	if err != nil {
		return storeErr("preparing statement", err)
	}
	defer stmt.Close()

	return execUpsertChunk(ctx, stmt, collection, chunk)
}

// scoredRow is a chunk row held by the collector until the scan finishes.
type scoredRow struct {
	id         string
	documentID string
	content    string
	metadata   string
}

// Query scans every chunk of the collection and returns the closest ones.
func (s *vectorStore) Query(
	ctx context.Context,
	collection string,
	vector []float32,
	limit int,
) ([]domain.CandidateResult, error) {
	if err := s.store.open(); err != nil {
		return nil, err
	}

	dims, err := dimensions(ctx, s.store.db, collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection %q has %d",
			domain.ErrDimensionMismatch, len(vector), collection, dims)
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT seq, id, document_id, content, embedding, norm, metadata
		FROM chunks WHERE collection = ?
	`, collection)
	if err != nil {
		return nil, storeErr("querying chunks", err)
	}
	defer rows.Close()

	qmag := vectorscan.Magnitude(vector)
	collector := vectorscan.NewCollector[scoredRow](limit)
	for rows.Next() {
		var (
			seq  int64
			row  scoredRow
			blob []byte
			norm float64
		)
		if err := rows.Scan(&seq, &row.id, &row.documentID, &row.content, &blob, &norm, &row.metadata); err != nil {
			return nil, storeErr("scanning chunk", err)
		}
		collector.Add(row, seq, vectorscan.Cosine(vector, bytesToFloat32Slice(blob), qmag, norm))
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterating chunks", err)
	}

	hits := collector.Results()
	results := make([]domain.CandidateResult, len(hits))
	for i, hit := range hits {
		metadata, err := unmarshalMetadata(hit.Item.metadata)
		if err != nil {
			return nil, err
		}
		results[i] = domain.CandidateResult{
			ChunkID:     hit.Item.id,
			DocumentID:  hit.Item.documentID,
			Content:     hit.Item.content,
			Metadata:    metadata,
			VectorScore: hit.Score,
			Rank:        i,
		}
	}
	return results, nil
}

// DeleteDocument removes a document. Its chunks go with it by cascade.
func (s *vectorStore) DeleteDocument(ctx context.Context, collection, documentID string) error {
	if err := s.store.open(); err != nil {
		return err
	}
	if _, err := dimensions(ctx, s.store.db, collection); err != nil {
		return err
	}

	res, err := s.store.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ?", collection, documentID)
	if err != nil {
		return storeErr("deleting document", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	return nil
}

// HasDocument reports whether the document is committed.
func (s *vectorStore) HasDocument(ctx context.Context, collection, documentID string) (bool, error) {
	if err := s.store.open(); err != nil {
		return false, err
	}
	if _, err := dimensions(ctx, s.store.db, collection); err != nil {
		return false, err
	}

	var exists bool
	err := s.store.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM documents WHERE collection = ? AND id = ?)",
		collection, documentID).Scan(&exists)
	if err != nil {
		return false, storeErr("checking document", err)
	}
	return exists, nil
}

const selectDocumentSQL = `
	SELECT d.id, d.collection, d.metadata, d.created_at,
		(SELECT COUNT(*) FROM chunks c WHERE c.collection = d.collection AND c.document_id = d.id)
	FROM documents d
`

// GetDocument retrieves a document record.
func (s *vectorStore) GetDocument(ctx context.Context, collection, documentID string) (*domain.Document, error) {
	if err := s.store.open(); err != nil {
		return nil, err
	}
	if _, err := dimensions(ctx, s.store.db, collection); err != nil {
		return nil, err
	}

	row := s.store.db.QueryRowContext(ctx,
		selectDocumentSQL+" WHERE d.collection = ? AND d.id = ?", collection, documentID)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments returns all documents in a collection, oldest first.
func (s *vectorStore) ListDocuments(ctx context.Context, collection string) ([]domain.Document, error) {
	if err := s.store.open(); err != nil {
		return nil, err
	}
	if _, err := dimensions(ctx, s.store.db, collection); err != nil {
		return nil, err
	}

	rows, err := s.store.db.QueryContext(ctx,
		selectDocumentSQL+" WHERE d.collection = ? ORDER BY d.seq", collection)
	if err != nil {
		return nil, storeErr("querying documents", err)
	}
	defer rows.Close()

	docs := []domain.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterating documents", err)
	}
	return docs, nil
}

// CountChunks returns the number of chunks in a collection.
func (s *vectorStore) CountChunks(ctx context.Context, collection string) (int, error) {
	if err := s.store.open(); err != nil {
		return 0, err
	}
	if _, err := dimensions(ctx, s.store.db, collection); err != nil {
		return 0, err
	}

	var count int
	err := s.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chunks WHERE collection = ?", collection).Scan(&count)
	if err != nil {
		return 0, storeErr("counting chunks", err)
	}
	return count, nil
}

// Close closes the underlying store.
func (s *vectorStore) Close() error {
	return s.store.Close()
}

// ==================== Helper Functions ====================

const upsertChunkSQL = `
	INSERT INTO chunks (collection, id, document_id, content, position, embedding, norm, metadata)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(collection, id) DO UPDATE SET
		document_id = excluded.document_id,
		content = excluded.content,
		position = excluded.position,
		embedding = excluded.embedding,
		norm = excluded.norm,
		metadata = excluded.metadata
`

func execUpsertChunk(ctx context.Context, stmt *sql.Stmt, collection string, chunk domain.Chunk) error {
	metadataJSON, err := marshalMetadata(chunk.Metadata)
	if err != nil {
		return err
	}
	if _, err := stmt.ExecContext(ctx, collection, chunk.ID, chunk.DocumentID, chunk.Content,
		chunk.Position, float32SliceToBytes(chunk.Embedding), vectorscan.Magnitude(chunk.Embedding),
		metadataJSON); err != nil {
		return storeErr("saving chunk", err)
	}
	return nil
}

func checkChunk(collection string, dims int, documentID string, chunk *domain.Chunk) error {
	if chunk.ID == "" {
		return fmt.Errorf("%w: chunk without ID", domain.ErrInvalidInput)
	}
	if chunk.DocumentID != documentID {
		return fmt.Errorf("%w: chunk %s belongs to document %s, not %s",
			domain.ErrInvalidInput, chunk.ID, chunk.DocumentID, documentID)
	}
	if len(chunk.Embedding) != dims {
		return fmt.Errorf("%w: chunk %s has %d dimensions, collection %q has %d",
			domain.ErrDimensionMismatch, chunk.ID, len(chunk.Embedding), collection, dims)
	}
	return nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrVectorStore, op, err)
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

func marshalMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("%w: marshalling metadata: %w", domain.ErrInvalidInput, err)
	}
	return string(data), nil
}

func unmarshalMetadata(s string) (map[string]any, error) {
	m := map[string]any{}
	if s == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, storeErr("unmarshalling metadata", err)
	}
	return m, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCollection(row scanner) (*domain.CollectionConfig, error) {
	var cfg domain.CollectionConfig
	if err := row.Scan(&cfg.Name, &cfg.EmbeddingModel, &cfg.Dimensions, &cfg.PersistPath,
		&cfg.DefaultTopK, &cfg.DefaultMinScore, &cfg.OverFetchFactor, &cfg.CreatedAt); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// scanDocument returns sql.ErrNoRows unwrapped so callers can map it.
func scanDocument(row scanner) (*domain.Document, error) {
	var doc domain.Document
	var metadataJSON string

	if err := row.Scan(&doc.ID, &doc.Collection, &metadataJSON, &doc.CreatedAt, &doc.ChunkCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, storeErr("scanning document", err)
	}

	metadata, err := unmarshalMetadata(metadataJSON)
	if err != nil {
		return nil, err
	}
	doc.Metadata = metadata
	return &doc, nil
}
