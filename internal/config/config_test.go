package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	def := DefaultConfig()
	if cfg.Store.DatabasePath != def.Store.DatabasePath {
		t.Errorf("database path = %q", cfg.Store.DatabasePath)
	}
	if cfg.Context.TokenBudget != def.Context.TokenBudget {
		t.Errorf("token budget = %d", cfg.Context.TokenBudget)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "context:\n  token_budget: 900\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Context.TokenBudget != 900 {
		t.Errorf("token budget = %d, want 900", cfg.Context.TokenBudget)
	}
	if cfg.Store.DatabasePath != DefaultConfig().Store.DatabasePath {
		t.Errorf("unset field lost its default: %q", cfg.Store.DatabasePath)
	}
}

func TestLoadRejectsNonPositiveBudget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("context:\n  token_budget: -5\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for negative token budget")
	}
}

func TestEnvOverridesWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "llm:\n  api_key: from-file\nstore:\n  database_path: file.db\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("VISIONCRAFT_DB", "env.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.LLM.APIKey != "from-env" {
		t.Errorf("api key = %q, want env override", cfg.LLM.APIKey)
	}
	if cfg.Store.DatabasePath != "env.db" {
		t.Errorf("database path = %q, want env override", cfg.Store.DatabasePath)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Context.TokenBudget = 1234
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Context.TokenBudget != 1234 {
		t.Errorf("token budget = %d, want 1234", loaded.Context.TokenBudget)
	}
}
