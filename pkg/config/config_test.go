package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func money(v float64) *float64 { return &v }

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Cache.MaxBytes != 500<<20 {
		t.Errorf("default max_bytes = %d, want 500 MiB", cfg.Cache.MaxBytes)
	}
	if cfg.Cache.MaxAgeDays != 90 {
		t.Errorf("default max_age_days = %d, want 90", cfg.Cache.MaxAgeDays)
	}
	if cfg.Cache.CleanupThreshold != 0.8 {
		t.Errorf("default cleanup_threshold = %v, want 0.8", cfg.Cache.CleanupThreshold)
	}
	if cfg.Cache.SimilarityThreshold != 0.85 {
		t.Errorf("default similarity_threshold = %v, want 0.85", cfg.Cache.SimilarityThreshold)
	}
	if cfg.Provider.MaxConcurrent != 3 || cfg.Provider.MaxRetries != 3 {
		t.Error("default provider concurrency/retries should be 3")
	}
	if cfg.Provider.PerAttemptTimeoutSeconds != 60.0 {
		t.Errorf("default per-attempt timeout = %v, want 60", cfg.Provider.PerAttemptTimeoutSeconds)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
cache:
  root_dir: /tmp/assets
  max_bytes: 1048576
budget:
  monthly_limit: 30.0
provider:
  endpoint: https://example.com/generate
  api_key: test-key
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cache.RootDir != "/tmp/assets" {
		t.Errorf("root_dir = %q", cfg.Cache.RootDir)
	}
	if cfg.Cache.MaxBytes != 1048576 {
		t.Errorf("max_bytes = %d", cfg.Cache.MaxBytes)
	}
	if cfg.Budget.Limit() != 30.0 {
		t.Errorf("monthly_limit = %v", cfg.Budget.Limit())
	}
	// Unset fields keep defaults.
	if cfg.Cache.CleanupThreshold != 0.8 {
		t.Errorf("cleanup_threshold = %v, want default 0.8", cfg.Cache.CleanupThreshold)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("ASSETGEN_TEST_KEY", "secret-from-env")
	path := writeConfig(t, `
budget:
  monthly_limit: 10.0
provider:
  endpoint: https://example.com/generate
  api_key: ${ASSETGEN_TEST_KEY}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.APIKey != "secret-from-env" {
		t.Errorf("api_key = %q, want expanded env value", cfg.Provider.APIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing endpoint", func(c *Config) { c.Provider.Endpoint = "" }},
		{"missing api key", func(c *Config) { c.Provider.APIKey = "" }},
		{"bad cleanup threshold", func(c *Config) { c.Cache.CleanupThreshold = 1.5 }},
		{"bad similarity threshold", func(c *Config) { c.Cache.SimilarityThreshold = -0.1 }},
		{"bad evict fraction", func(c *Config) { c.Cache.EvictFraction = 0 }},
		{"negative budget", func(c *Config) { c.Budget.MonthlyLimit = money(-1) }},
		{"missing budget", func(c *Config) { c.Budget.MonthlyLimit = nil }},
		{"zero max bytes", func(c *Config) { c.Cache.MaxBytes = 0 }},
		{"zero concurrency", func(c *Config) { c.Provider.MaxConcurrent = 0 }},
		{"negative retention", func(c *Config) { c.History.RetentionDays = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Budget.MonthlyLimit = money(30.0)
			cfg.Provider.Endpoint = "https://example.com"
			cfg.Provider.APIKey = "k"
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestValidateDryRunSkipsProviderCredentials(t *testing.T) {
	cfg := Default()
	cfg.Budget.MonthlyLimit = money(30.0)
	cfg.Mode.DryRun = true

	if err := cfg.Validate(); err != nil {
		t.Errorf("dry-run config should validate without credentials: %v", err)
	}
}

func TestZeroBudgetIsValid(t *testing.T) {
	// A zero monthly limit is a legal configuration: every miss is denied.
	cfg := Default()
	cfg.Mode.DryRun = true
	cfg.Budget.MonthlyLimit = money(0)

	if err := cfg.Validate(); err != nil {
		t.Errorf("zero budget should validate: %v", err)
	}
}

func TestLoadRejectsMissingMonthlyLimit(t *testing.T) {
	path := writeConfig(t, `
mode:
  dry_run: true
`)
	if _, err := Load(path); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for missing budget.monthly_limit, got %v", err)
	}
}
