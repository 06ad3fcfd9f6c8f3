// Package config holds the visioncraft configuration: a YAML file under the
// workspace dot-directory, defaults for every field, and a small set of
// environment overrides for secrets and paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file location relative to the working directory.
const DefaultPath = ".visioncraft/config.yaml"

// Config holds all visioncraft configuration.
type Config struct {
	// Store configuration
	Store StoreConfig `yaml:"store"`

	// Context window configuration
	Context ContextConfig `yaml:"context"`

	// Field catalog configuration
	Catalog CatalogConfig `yaml:"catalog"`

	// LLM extraction configuration
	LLM LLMConfig `yaml:"llm"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig configures record persistence.
type StoreConfig struct {
	// DatabasePath is the SQLite file; "memory" selects the ephemeral store.
	DatabasePath string `yaml:"database_path"`
}

// ContextConfig configures the context budget optimizer.
type ContextConfig struct {
	// TokenBudget caps the assembled context size.
	TokenBudget int `yaml:"token_budget"`
}

// CatalogConfig configures the field catalog.
type CatalogConfig struct {
	// OverridePath is an optional YAML file merged over the built-in
	// catalog; when set, the watcher hot-reloads it on change.
	OverridePath string `yaml:"override_path"`
	Watch        bool   `yaml:"watch"`
}

// LLMConfig configures the extraction model.
type LLMConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// LoggingConfig configures the category file loggers. The same section is
// read independently by internal/logging, which keeps that package free of
// an import cycle with this one.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			DatabasePath: ".visioncraft/visioncraft.db",
		},
		Context: ContextConfig{
			TokenBudget: 4000,
		},
		Catalog: CatalogConfig{
			OverridePath: ".visioncraft/catalog.yaml",
			Watch:        false,
		},
		LLM: LLMConfig{
			Model: "gemini-2.0-flash",
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if cfg.Context.TokenBudget <= 0 {
		return nil, fmt.Errorf("context.token_budget must be positive, got %d", cfg.Context.TokenBudget)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file, creating the directory.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides lets the environment win for secrets and paths.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if path := os.Getenv("VISIONCRAFT_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if path := os.Getenv("VISIONCRAFT_CATALOG"); path != "" {
		c.Catalog.OverridePath = path
	}
}
