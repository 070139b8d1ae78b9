package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kbengine/internal/adapters/driven/ai"
	"github.com/custodia-labs/kbengine/internal/adapters/driven/config/file"
	"github.com/custodia-labs/kbengine/internal/core/domain"
	"github.com/custodia-labs/kbengine/internal/core/ports/driving"
	"github.com/custodia-labs/kbengine/internal/core/services"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change configuration",
	Long: `Shows the effective settings: defaults, overridden by the config file,
overridden by environment variables. API keys are masked.`,
	Annotations: map[string]string{skipEngine: "true"},
	RunE:        runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Store a config value",
	Long: `Stores one key in the config file.

Examples:
  kbengine settings set embedding.model text-embedding-v4
  kbengine settings set search.top_k 8
  kbengine settings set store.backend memory

Run "kbengine settings keys" for the list of keys.`,
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{skipEngine: "true"},
	RunE:        runSettingsSet,
}

var settingsKeysCmd = &cobra.Command{
	Use:         "keys",
	Short:       "List config keys",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipEngine: "true"},
	Run: func(cmd *cobra.Command, _ []string) {
		keys := make([]string, 0, len(settingKinds))
		for k := range settingKinds {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cmd.Printf("  %-32s %s\n", k, settingKinds[k])
		}
	},
}

var settingsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the embedding provider is reachable",
	Long: `Validates the effective settings and sends one lightweight request to
the embedding provider. Exits non-zero when the provider cannot be reached.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipEngine: "true"},
	RunE:        runSettingsCheck,
}

func init() {
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsKeysCmd)
	settingsCmd.AddCommand(settingsCheckCmd)
	rootCmd.AddCommand(settingsCmd)
}

type settingKind string

const (
	kindString settingKind = "string"
	kindInt    settingKind = "integer"
	kindFloat  settingKind = "number"
)

// settingKinds lists the keys "settings set" accepts and how values parse.
var settingKinds = map[string]settingKind{
	services.KeyEmbedProvider:     kindString,
	services.KeyEmbedAPIKey:       kindString,
	services.KeyEmbedBaseURL:      kindString,
	services.KeyEmbedModel:        kindString,
	services.KeyEmbedDimensions:   kindInt,
	services.KeyEmbedBatchSize:    kindInt,
	services.KeyEmbedConcurrency:  kindInt,
	services.KeyEmbedRPS:          kindFloat,
	services.KeyEmbedTimeoutMS:    kindInt,
	services.KeyRetryMaxAttempts:  kindInt,
	services.KeyRetryBaseDelayMS:  kindInt,
	services.KeyRetryMultiplier:   kindFloat,
	services.KeyRetryMaxDelayMS:   kindInt,
	services.KeyRerankAPIKey:      kindString,
	services.KeyRerankBaseURL:     kindString,
	services.KeyRerankModel:       kindString,
	services.KeyRerankMaxDocs:     kindInt,
	services.KeyStoreBackend:      kindString,
	services.KeyStorePath:         kindString,
	services.KeyDefaultCollection: kindString,
	services.KeySearchTopK:        kindInt,
	services.KeySearchMinScore:    kindFloat,
	services.KeyOverFetchFactor:   kindInt,
	services.KeyChunkSize:         kindInt,
	services.KeyChunkOverlap:      kindInt,
	services.KeyLogLevel:          kindString,
	services.KeyLogFile:           kindString,
	services.KeyLogFormat:         kindString,
}

// parseSettingValue converts raw to the type stored for key.
func parseSettingValue(key, raw string) (any, error) {
	kind, ok := settingKinds[key]
	if !ok {
		return nil, fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}

	switch kind {
	case kindInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s expects an integer, got %q", domain.ErrInvalidInput, key, raw)
		}
		return n, nil
	case kindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s expects a number, got %q", domain.ErrInvalidInput, key, raw)
		}
		return f, nil
	default:
		return raw, nil
	}
}

// loadSettingsService returns the injected settings service or one built
// from the config directory.
func loadSettingsService() (driving.SettingsService, error) {
	if settingsService != nil {
		return settingsService, nil
	}
	configStore, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return services.NewSettingsService(configStore), nil
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	svc, err := loadSettingsService()
	if err != nil {
		return err
	}
	s, err := svc.Get()
	if err != nil {
		return err
	}

	cmd.Println("Embedding:")
	cmd.Printf("  Provider:    %s\n", s.Embedding.Provider.Description())
	cmd.Printf("  Model:       %s (%d dimensions)\n", s.Embedding.Model, s.Embedding.Dimensions)
	cmd.Printf("  Endpoint:    %s\n", s.Embedding.BaseURL)
	cmd.Printf("  API key:     %s\n", keyStatus(s.Embedding.APIKey))
	cmd.Printf("  Batch size:  %d (concurrency %d)\n", s.Embedding.BatchSize, s.Embedding.Concurrency)
	cmd.Printf("  Retry:       %d attempts, %s base delay\n",
		s.Embedding.Retry.MaxAttempts, s.Embedding.Retry.BaseDelay)

	cmd.Println("\nRerank:")
	if s.Rerank.IsConfigured() {
		cmd.Printf("  Enabled: yes\n")
	} else {
		cmd.Printf("  Enabled: no (set %s)\n", services.EnvRerankAPIKey)
	}
	cmd.Printf("  Model:    %s\n", s.Rerank.Model)
	cmd.Printf("  Endpoint: %s\n", s.Rerank.BaseURL)
	cmd.Printf("  API key:  %s\n", keyStatus(s.Rerank.APIKey))

	cmd.Println("\nStore:")
	cmd.Printf("  Backend:    %s\n", s.Store.Backend)
	if s.Store.Path != "" {
		cmd.Printf("  Path:       %s\n", s.Store.Path)
	}
	cmd.Printf("  Collection: %s\n", s.Store.DefaultCollection)

	cmd.Println("\nSearch:")
	cmd.Printf("  Top K:      %d\n", s.Search.TopK)
	cmd.Printf("  Min score:  %.2f\n", s.Search.MinScore)
	cmd.Printf("  Over-fetch: %dx\n", s.Search.OverFetchFactor)

	cmd.Println("\nChunking:")
	cmd.Printf("  Size:    %d\n", s.Chunking.ChunkSize)
	cmd.Printf("  Overlap: %d\n", s.Chunking.Overlap)

	if err := s.Validate(); err != nil {
		cmd.Printf("\nWarning: %v\n", err)
	}
	return nil
}

func runSettingsCheck(cmd *cobra.Command, _ []string) error {
	svc, err := loadSettingsService()
	if err != nil {
		return err
	}
	s, err := svc.Get()
	if err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}

	cmd.Printf("Checking %s (%s)...\n", s.Embedding.Provider.Description(), s.Embedding.BaseURL)
	embedder, err := ai.CreateAndValidateEmbeddingService(cmd.Context(), &s.Embedding)
	if err != nil {
		return err
	}
	defer embedder.Close()

	cmd.Printf("Embedding: ok (%s, %d dimensions)\n", embedder.ModelName(), embedder.Dimensions())
	if s.Rerank.IsConfigured() {
		cmd.Printf("Rerank:    configured (%s)\n", s.Rerank.Model)
	} else {
		cmd.Printf("Rerank:    disabled (set %s)\n", services.EnvRerankAPIKey)
	}
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	key := strings.TrimSpace(args[0])
	value, err := parseSettingValue(key, args[1])
	if err != nil {
		return err
	}

	svc, err := loadSettingsService()
	if err != nil {
		return err
	}
	if err := svc.Set(key, value); err != nil {
		return err
	}

	shown := args[1]
	if strings.HasSuffix(key, "api_key") {
		shown = maskAPIKey(shown)
	}
	cmd.Printf("Set %s = %s\n", key, shown)
	return nil
}

func keyStatus(key string) string {
	if key == "" {
		return "not set"
	}
	return maskAPIKey(key)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
