package cli

import (
	"errors"
	"fmt"

	"github.com/custodia-labs/kbengine/internal/adapters/driven/ai"
	"github.com/custodia-labs/kbengine/internal/adapters/driven/config/file"
	"github.com/custodia-labs/kbengine/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/kbengine/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driven"
	"github.com/custodia-labs/kbengine/internal/core/services"
	"github.com/custodia-labs/kbengine/internal/logger"
	"github.com/custodia-labs/kbengine/internal/normalisers"
	"github.com/custodia-labs/kbengine/internal/postprocessors"
)

// Engine holds the services built from settings and the adapters they
// depend on. Close releases the adapters.
type Engine struct {
	Settings    *domain.EngineSettings
	Config      *services.SettingsService
	Collections *services.CollectionService
	Ingest      *services.IngestService
	Search      *services.SearchService
	Documents   *services.DocumentService

	store   driven.VectorStore
	closers []func() error
}

// openEngine loads settings from configDir and the environment, then opens
// the store and AI adapters.
func openEngine(configDir string) (*Engine, error) {
	configStore, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	settingsSvc := services.NewSettingsService(configStore)

	settings, err := settingsSvc.Get()
	if err != nil {
		return nil, err
	}
	return NewEngine(settings, settingsSvc)
}

// NewEngine wires services for settings.
func NewEngine(settings *domain.EngineSettings, settingsSvc *services.SettingsService) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	if err := logger.Configure(logger.Options{
		Level:  settings.Log.Level,
		Format: settings.Log.Format,
		File:   settings.Log.File,
	}); err != nil {
		return nil, err
	}

	e := &Engine{Settings: settings, Config: settingsSvc}
	e.closers = append(e.closers, logger.Close)

	collections, err := e.openStore(settings.Store)
	if err != nil {
		_ = e.Close()
		return nil, err
	}

	aiServices, err := ai.NewServices(settings)
	if err != nil {
		_ = e.Close()
		return nil, err
	}
	e.closers = append(e.closers, func() error {
		aiServices.Close()
		return nil
	})

	embedder, err := services.NewEmbeddingClient(aiServices.Embedding,
		services.EmbeddingOptionsFromSettings(settings.Embedding))
	if err != nil {
		_ = e.Close()
		return nil, err
	}

	e.Collections = services.NewCollectionService(collections, e.store,
		aiServices.Embedding.ModelName(), aiServices.Embedding.Dimensions())
	e.Collections.SetSearchDefaults(settings.Search)
	e.Collections.SetPersistPath(settings.Store.Path)

	e.Ingest = services.NewIngestService(collections, e.store, embedder, postprocessors.NewDefaultFactory())
	e.Ingest.SetDefaultChunkOptions(settings.Chunking)
	e.Ingest.SetNormalisers(normalisers.Default())

	e.Search = services.NewSearchService(collections, e.store, embedder, aiServices.Reranker)
	e.Documents = services.NewDocumentService(e.store)

	logger.WithFields(logger.Fields{
		"store":      settings.Store.Backend,
		"model":      aiServices.Embedding.ModelName(),
		"dimensions": aiServices.Embedding.Dimensions(),
	}).Debug("Engine ready")
	return e, nil
}

func (e *Engine) openStore(s domain.StoreSettings) (driven.CollectionStore, error) {
	switch s.Backend {
	case domain.StoreBackendMemory:
		store := memory.NewVectorStore()
		e.store = store
		e.closers = append(e.closers, store.Close)
		return store, nil

	case domain.StoreBackendSQLite:
		store, err := sqlite.NewStore(s.Path)
		if err != nil {
			return nil, err
		}
		e.store = store.VectorStore()
		e.closers = append(e.closers, store.Close)
		logger.Debug("Opened vector store at %s", store.Path())
		return store.CollectionStore(), nil

	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", domain.ErrInvalidConfiguration, s.Backend)
	}
}

// Services returns the driving ports for the commands.
func (e *Engine) Services() Services {
	s := Services{
		Collections:       e.Collections,
		Ingest:            e.Ingest,
		Search:            e.Search,
		Documents:         e.Documents,
		DefaultCollection: e.Settings.Store.DefaultCollection,
	}
	if e.Config != nil {
		s.Settings = e.Config
	}
	return s
}

// Close releases adapters in reverse order of opening.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
