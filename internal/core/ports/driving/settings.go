package driving

import "github.com/custodia-labs/kbengine/internal/core/domain"

// SettingsService resolves engine settings from configuration and environment.
type SettingsService interface {
	// Get returns the effective settings: defaults, then config file, then
	// environment variables.
	Get() (*domain.EngineSettings, error)

	// Set stores a single config key and persists the file.
	Set(key string, value any) error

	// GetDefaults returns default settings.
	GetDefaults() domain.EngineSettings

	// Validate checks that the effective settings are usable.
	Validate() error
}
