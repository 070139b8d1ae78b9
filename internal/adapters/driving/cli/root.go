// Package cli provides the kbengine command line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kbengine/internal/core/ports/driving"
	"github.com/custodia-labs/kbengine/internal/logger"
)

// version is set at build time with -ldflags "-X ...cli.version=...".
var version = "dev"

// Services wired into the commands. They are set by SetServices or, on
// first use, built from settings by openEngine.
var (
	settingsService   driving.SettingsService
	collectionService driving.CollectionService
	ingestService     driving.IngestService
	searchService     driving.SearchService
	documentService   driving.DocumentService

	// defaultCollection is the collection used when --collection is not given.
	defaultCollection string

	// engine owns the adapters built by openEngine.
	engine *Engine
)

// Global flags.
var (
	verbose        bool
	configDir      string
	collectionFlag string
)

// skipEngine marks commands that run without opening the engine.
const skipEngine = "skip-engine"

var rootCmd = &cobra.Command{
	Use:   "kbengine",
	Short: "Knowledge base retrieval and reranking engine",
	Long: `kbengine stores documents as embedded chunks and answers questions by
vector recall followed by relevance reranking.

Configuration is read from ~/.kbengine/config.toml and overridden by
environment variables such as TONGYI_API_KEY and DASHSCOPE_API_KEY.`,
	SilenceUsage:      true,
	PersistentPreRunE: persistentPreRun,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "configuration directory (default ~/.kbengine)")
	rootCmd.PersistentFlags().StringVarP(&collectionFlag, "collection", "c", "",
		"collection to use (default from store.default_collection)")
}

// Services groups the driving ports the commands use.
type Services struct {
	Settings          driving.SettingsService
	Collections       driving.CollectionService
	Ingest            driving.IngestService
	Search            driving.SearchService
	Documents         driving.DocumentService
	DefaultCollection string
}

// SetServices injects services, bypassing settings-based wiring.
func SetServices(s Services) {
	settingsService = s.Settings
	collectionService = s.Collections
	ingestService = s.Ingest
	searchService = s.Search
	documentService = s.Documents
	defaultCollection = s.DefaultCollection
}

// Execute runs the root command and releases the engine afterwards.
func Execute(ctx context.Context) error {
	defer closeEngine()
	rootCmd.SetOut(os.Stdout)
	return rootCmd.ExecuteContext(ctx)
}

func persistentPreRun(cmd *cobra.Command, _ []string) error {
	if verbose {
		logger.SetVerbose(true)
	}
	if cmd.Annotations[skipEngine] == "true" {
		return nil
	}
	if searchService != nil {
		return nil
	}

	e, err := openEngine(configDir)
	if err != nil {
		return err
	}
	engine = e
	SetServices(e.Services())
	return nil
}

func closeEngine() {
	if engine == nil {
		return
	}
	if err := engine.Close(); err != nil {
		logger.Warn("closing engine: %v", err)
	}
	engine = nil
}

// targetCollection resolves the --collection flag against the default.
func targetCollection() string {
	if collectionFlag != "" {
		return collectionFlag
	}
	return defaultCollection
}

// requireService returns an error naming the missing service.
func requireService(svc any, name string) error {
	if svc == nil {
		return fmt.Errorf("%s service not configured", name)
	}
	return nil
}

// errCancelled is returned when the user declines a confirmation.
var errCancelled = errors.New("cancelled")
