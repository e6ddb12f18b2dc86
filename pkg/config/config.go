// Package config loads and validates assetgen configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps all startup configuration failures.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all assetgen configuration.
type Config struct {
	Cache    CacheConfig    `yaml:"cache"`
	Budget   BudgetConfig   `yaml:"budget"`
	Provider ProviderConfig `yaml:"provider"`
	Mode     ModeConfig     `yaml:"mode"`
	History  HistoryConfig  `yaml:"history"`
}

// CacheConfig controls the on-disk asset cache and its eviction policy.
type CacheConfig struct {
	RootDir             string  `yaml:"root_dir"`
	MaxBytes            int64   `yaml:"max_bytes"`
	MaxAgeDays          int     `yaml:"max_age_days"`
	CleanupThreshold    float64 `yaml:"cleanup_threshold"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	EvictFraction       float64 `yaml:"evict_fraction"`
}

// BudgetConfig controls the monthly spend ledger. MonthlyLimit is a
// pointer so an absent key can be told apart from an explicit zero; a
// zero limit is legal and denies every generation.
type BudgetConfig struct {
	MonthlyLimit    *float64 `yaml:"monthly_limit"`
	UnitCostDefault float64  `yaml:"unit_cost_default"`
}

// Limit returns the configured monthly limit. Call only after Validate.
func (b BudgetConfig) Limit() float64 {
	if b.MonthlyLimit == nil {
		return 0
	}
	return *b.MonthlyLimit
}

// ProviderConfig defines the upstream image generation provider.
type ProviderConfig struct {
	Endpoint                 string  `yaml:"endpoint"`
	APIKey                   string  `yaml:"api_key"`
	MaxConcurrent            int64   `yaml:"max_concurrent"`
	MaxRetries               int     `yaml:"max_retries"`
	BaseDelaySeconds         float64 `yaml:"base_delay_seconds"`
	PerAttemptTimeoutSeconds float64 `yaml:"per_attempt_timeout_seconds"`
}

// ModeConfig holds process-wide switches.
type ModeConfig struct {
	DryRun bool `yaml:"dry_run"`
}

// HistoryConfig controls the generation history log.
type HistoryConfig struct {
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Default returns a Config with sensible defaults. budget.monthly_limit,
// provider.endpoint and provider.api_key have no default and must be set.
func Default() *Config {
	rootDir := "assets"
	dbPath := "assetgen.db"
	if dir, err := os.UserCacheDir(); err == nil {
		rootDir = filepath.Join(dir, "assetgen", "assets")
		dbPath = filepath.Join(dir, "assetgen", "assetgen.db")
	}

	return &Config{
		Cache: CacheConfig{
			RootDir:             rootDir,
			MaxBytes:            500 << 20,
			MaxAgeDays:          90,
			CleanupThreshold:    0.8,
			SimilarityThreshold: 0.85,
			EvictFraction:       1.0 / 3.0,
		},
		Budget: BudgetConfig{
			UnitCostDefault: 0.039,
		},
		Provider: ProviderConfig{
			MaxConcurrent:            3,
			MaxRetries:               3,
			BaseDelaySeconds:         1.0,
			PerAttemptTimeoutSeconds: 60.0,
		},
		History: HistoryConfig{
			DBPath:        dbPath,
			RetentionDays: 90,
		},
	}
}

// Load reads a YAML config file, expands environment variables, applies
// defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for missing or out-of-range values.
func (c *Config) Validate() error {
	if c.Cache.RootDir == "" {
		return fmt.Errorf("%w: cache.root_dir must be set", ErrInvalidConfig)
	}
	if c.Cache.MaxBytes <= 0 {
		return fmt.Errorf("%w: cache.max_bytes must be positive", ErrInvalidConfig)
	}
	if c.Cache.MaxAgeDays <= 0 {
		return fmt.Errorf("%w: cache.max_age_days must be positive", ErrInvalidConfig)
	}
	if c.Cache.CleanupThreshold <= 0 || c.Cache.CleanupThreshold >= 1 {
		return fmt.Errorf("%w: cache.cleanup_threshold must be in (0, 1)", ErrInvalidConfig)
	}
	if c.Cache.SimilarityThreshold < 0 || c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: cache.similarity_threshold must be in [0, 1]", ErrInvalidConfig)
	}
	if c.Cache.EvictFraction <= 0 || c.Cache.EvictFraction >= 1 {
		return fmt.Errorf("%w: cache.evict_fraction must be in (0, 1)", ErrInvalidConfig)
	}
	if c.Budget.MonthlyLimit == nil {
		return fmt.Errorf("%w: budget.monthly_limit must be set", ErrInvalidConfig)
	}
	if *c.Budget.MonthlyLimit < 0 {
		return fmt.Errorf("%w: budget.monthly_limit must not be negative", ErrInvalidConfig)
	}
	if c.Budget.UnitCostDefault < 0 {
		return fmt.Errorf("%w: budget.unit_cost_default must not be negative", ErrInvalidConfig)
	}
	if c.Provider.MaxConcurrent <= 0 {
		return fmt.Errorf("%w: provider.max_concurrent must be positive", ErrInvalidConfig)
	}
	if c.Provider.MaxRetries <= 0 {
		return fmt.Errorf("%w: provider.max_retries must be positive", ErrInvalidConfig)
	}
	if c.History.RetentionDays < 0 {
		return fmt.Errorf("%w: history.retention_days must not be negative", ErrInvalidConfig)
	}

	// Dry-run mode needs no provider credentials.
	if !c.Mode.DryRun {
		if c.Provider.Endpoint == "" {
			return fmt.Errorf("%w: provider.endpoint must be set", ErrInvalidConfig)
		}
		if c.Provider.APIKey == "" {
			return fmt.Errorf("%w: provider.api_key must be set", ErrInvalidConfig)
		}
	}
	return nil
}
