package cli

import (
	"bytes"
	"context"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/kbengine/internal/core/domain"
)

type mockSearchService struct {
	results []domain.RankedResult
	err     error

	gotCollection string
	gotQuery      string
	gotOpts       domain.SearchOptions
}

func (m *mockSearchService) Search(
	_ context.Context, collection, query string, opts domain.SearchOptions,
) ([]domain.RankedResult, error) {
	m.gotCollection = collection
	m.gotQuery = query
	m.gotOpts = opts
	return m.results, m.err
}

type ingestCall struct {
	Collection string
	Text       string
	URI        string
	Metadata   map[string]any
	Opts       domain.ChunkOptions
}

type mockIngestService struct {
	mu      sync.Mutex
	calls   []ingestCall
	deleted []string
	err     error
}

func (m *mockIngestService) record(c ingestCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}

func (m *mockIngestService) Calls() []ingestCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ingestCall(nil), m.calls...)
}

func (m *mockIngestService) Ingest(
	_ context.Context, collection, text string, metadata map[string]any, opts domain.ChunkOptions,
) (string, error) {
	m.record(ingestCall{Collection: collection, Text: text, Metadata: metadata, Opts: opts})
	if m.err != nil {
		return "", m.err
	}
	return domain.DocumentID(text), nil
}

func (m *mockIngestService) AddDocuments(
	ctx context.Context, collection string, docs []domain.DocumentInput, opts domain.ChunkOptions,
) (*domain.AddDocumentsResult, error) {
	result := &domain.AddDocumentsResult{Collection: collection, DocumentIDs: []string{}}
	for _, d := range docs {
		id, err := m.Ingest(ctx, collection, d.Content, d.Metadata, opts)
		if err != nil {
			return result, err
		}
		result.DocumentIDs = append(result.DocumentIDs, id)
	}
	return result, nil
}

func (m *mockIngestService) IngestFile(
	_ context.Context, collection string, raw *domain.RawDocument, opts domain.ChunkOptions,
) (string, error) {
	m.record(ingestCall{Collection: collection, Text: string(raw.Content), URI: raw.URI, Metadata: raw.Metadata, Opts: opts})
	if m.err != nil {
		return "", m.err
	}
	return domain.DocumentID(string(raw.Content)), nil
}

func (m *mockIngestService) DeleteDocument(_ context.Context, _, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, documentID)
	return m.err
}

type mockCollectionService struct {
	collections []domain.CollectionConfig
	created     []domain.CollectionConfig
	deleted     []string
	ensured     []string
	err         error
}

func (m *mockCollectionService) Create(_ context.Context, cfg domain.CollectionConfig) (*domain.CollectionConfig, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.created = append(m.created, cfg)
	return &cfg, nil
}

func (m *mockCollectionService) Ensure(_ context.Context, name string) (*domain.CollectionConfig, error) {
	m.ensured = append(m.ensured, name)
	if m.err != nil {
		return nil, m.err
	}
	cfg := domain.NewCollectionConfig(name, "test-model", 3)
	return &cfg, nil
}

func (m *mockCollectionService) Get(_ context.Context, name string) (*domain.CollectionConfig, error) {
	for i := range m.collections {
		if m.collections[i].Name == name {
			return &m.collections[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockCollectionService) List(_ context.Context) ([]domain.CollectionConfig, error) {
	return m.collections, m.err
}

func (m *mockCollectionService) Stats(_ context.Context, name string) (*domain.CollectionStats, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.CollectionStats{Name: name, Documents: 2, Chunks: 7}, nil
}

func (m *mockCollectionService) Delete(_ context.Context, name string) error {
	m.deleted = append(m.deleted, name)
	return m.err
}

type mockDocumentService struct {
	docs []domain.Document
	err  error
}

func (m *mockDocumentService) List(_ context.Context, _ string) ([]domain.Document, error) {
	return m.docs, m.err
}

func (m *mockDocumentService) Get(_ context.Context, _, id string) (*domain.Document, error) {
	for i := range m.docs {
		if m.docs[i].ID == id {
			return &m.docs[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

type mockSettingsService struct {
	settings domain.EngineSettings
	set      map[string]any
	err      error
}

func (m *mockSettingsService) Get() (*domain.EngineSettings, error) {
	if m.err != nil {
		return nil, m.err
	}
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Set(key string, value any) error {
	if m.set == nil {
		m.set = make(map[string]any)
	}
	m.set[key] = value
	return m.err
}

func (m *mockSettingsService) GetDefaults() domain.EngineSettings {
	return domain.DefaultEngineSettings()
}

func (m *mockSettingsService) Validate() error {
	return m.err
}

// testServices holds the mocks installed by setupTestServices.
type testServices struct {
	search      *mockSearchService
	ingest      *mockIngestService
	collections *mockCollectionService
	documents   *mockDocumentService
	settings    *mockSettingsService
}

// setupTestServices installs mocks and returns them with a cleanup func
// that restores the previous services and flags.
func setupTestServices() (*testServices, func()) {
	oldSearch, oldIngest, oldCollections := searchService, ingestService, collectionService
	oldDocuments, oldSettings, oldDefault := documentService, settingsService, defaultCollection

	ts := &testServices{
		search:      &mockSearchService{},
		ingest:      &mockIngestService{},
		collections: &mockCollectionService{},
		documents:   &mockDocumentService{},
		settings:    &mockSettingsService{settings: domain.DefaultEngineSettings()},
	}
	SetServices(Services{
		Settings:          ts.settings,
		Collections:       ts.collections,
		Ingest:            ts.ingest,
		Search:            ts.search,
		Documents:         ts.documents,
		DefaultCollection: domain.DefaultCollectionName,
	})

	return ts, func() {
		searchService, ingestService, collectionService = oldSearch, oldIngest, oldCollections
		documentService, settingsService, defaultCollection = oldDocuments, oldSettings, oldDefault
		collectionFlag = ""
		resetFlags()
	}
}

// resetFlags restores every command flag to its default so values from one
// test do not leak into the next.
func resetFlags() {
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		reset(c.Flags())
		reset(c.PersistentFlags())
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(rootCmd)
}

//nolint:errcheck // defaults always parse
func reset(fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
}

// executeCommand runs the root command with args and returns its output.
func executeCommand(args ...string) (string, error) {
	return executeCommandContext(context.Background(), args...)
}

// executeCommandContext runs the root command under ctx. Cobra keeps the
// first context a command ran with, so every command is given ctx first.
func executeCommandContext(ctx context.Context, args ...string) (string, error) {
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		c.SetContext(ctx)
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(rootCmd)

	buf := new(syncBuffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}()

	err := rootCmd.ExecuteContext(ctx)
	return buf.String(), err
}

// syncBuffer is a bytes.Buffer safe for a command writing from another
// goroutine while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
