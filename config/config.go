// Package config loads and validates the YAML configuration: provider
// accounts, sync policy, and storage locations.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full process configuration.
type Config struct {
	Version   string     `yaml:"version"`
	Providers []Provider `yaml:"providers"`
	Sync      SyncPolicy `yaml:"sync,omitempty"`
	Storage   Storage    `yaml:"storage,omitempty"`
	Telemetry Telemetry  `yaml:"telemetry,omitempty"`
}

// Provider configures one cloud account.
type Provider struct {
	ID          string            `yaml:"id"`
	Type        string            `yaml:"type"`
	Region      string            `yaml:"region,omitempty"`
	Enabled     *bool             `yaml:"enabled,omitempty"`
	Credentials map[string]string `yaml:"credentials,omitempty"`
}

// IsEnabled defaults to true when the field is omitted.
func (p Provider) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// SyncPolicy tunes reconciliation across all providers.
type SyncPolicy struct {
	// Window is the billing ledger lookback.
	Window time.Duration `yaml:"window,omitempty"`
	// Tolerance is the accepted relative delta in totals validation.
	Tolerance float64 `yaml:"tolerance,omitempty"`
	// OrphanAge is how old an unattached volume must be to be flagged.
	OrphanAge time.Duration `yaml:"orphan_age,omitempty"`
	// Concurrency bounds the batch worker pool.
	Concurrency int `yaml:"concurrency,omitempty"`
	// CallTimeout bounds every provider API call.
	CallTimeout time.Duration `yaml:"call_timeout,omitempty"`
	// Interval is the daemon sync period.
	Interval time.Duration `yaml:"interval,omitempty"`
}

// Storage locates the bbolt database and the journal directory.
type Storage struct {
	Dir        string `yaml:"dir,omitempty"`
	JournalDir string `yaml:"journal_dir,omitempty"`
	// JournalRetentionDays bounds journal file cleanup.
	JournalRetentionDays int `yaml:"journal_retention_days,omitempty"`
}

// Telemetry configures tracing.
type Telemetry struct {
	OTELEndpoint string `yaml:"otel_endpoint,omitempty"`
	Insecure     bool   `yaml:"insecure,omitempty"`
	Environment  string `yaml:"environment,omitempty"`
}

// Load reads, parses, and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Storage.Dir == "" {
		c.Storage.Dir = "data"
	}
	if c.Storage.JournalDir == "" {
		c.Storage.JournalDir = "journal"
	}
	if c.Sync.Interval <= 0 {
		c.Sync.Interval = time.Hour
	}
}

// Validate ensures the config is usable. Provider IDs must be unique:
// they key storage, locks, and metrics.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("provider %d: id is required", i)
		}
		if p.Type == "" {
			return fmt.Errorf("provider %s: type is required", p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("provider %s: duplicate id", p.ID)
		}
		seen[p.ID] = true
	}

	if c.Sync.Tolerance != 0 && (c.Sync.Tolerance < 0 || c.Sync.Tolerance >= 1) {
		return fmt.Errorf("sync.tolerance must be in (0, 1)")
	}
	if c.Sync.Concurrency < 0 {
		return fmt.Errorf("sync.concurrency must not be negative")
	}
	return nil
}
