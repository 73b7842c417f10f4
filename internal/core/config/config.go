// Package config handles configuration loading and validation for triage.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/colonyops/triage/internal/core/queue"
)

// Config holds the application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Actor      string           `yaml:"actor"`
	Categories []queue.Category `yaml:"categories"`
	Helper     HelperConfig     `yaml:"helper"`
	Sync       SyncConfig       `yaml:"sync"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Database   DatabaseConfig   `yaml:"database"`
	DataDir    string           `yaml:"-"` // set by caller, not from config file
}

// ServerConfig points at the approval backend.
type ServerConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// HelperConfig describes the background helper process.
type HelperConfig struct {
	// Categories the helper polls on the foreground's behalf. Empty
	// disables helper coordination entirely.
	Categories []queue.Category `yaml:"categories"`
	// Interval between helper poll cycles (triage watch).
	Interval time.Duration `yaml:"interval"`
	// HeartbeatWindow is the maximum heartbeat age counted as live.
	HeartbeatWindow time.Duration `yaml:"heartbeat_window"`
}

// SyncConfig tunes the fetch scheduler and the optimistic action store.
type SyncConfig struct {
	ActivePeriod     time.Duration `yaml:"active_period"`
	BackgroundPeriod time.Duration `yaml:"background_period"`
	DormantPeriod    time.Duration `yaml:"dormant_period"`
	Staleness        time.Duration `yaml:"staleness"`
	// ActionTimeout bounds how long an unresolved action may hide an item.
	ActionTimeout time.Duration `yaml:"action_timeout"`
}

// AlertsConfig tunes the notification dispatcher.
type AlertsConfig struct {
	// MarkerTTL is how long an item keeps its "new" badge.
	MarkerTTL time.Duration `yaml:"marker_ttl"`
	// Suppress holds category glob patterns that never alert.
	Suppress []string `yaml:"suppress"`
	Sound    bool     `yaml:"sound"`
	Desktop  bool     `yaml:"desktop"`
}

// DatabaseConfig tunes the local SQLite connection pool.
type DatabaseConfig struct {
	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Categories: queue.Categories(),
		Helper: HelperConfig{
			Interval:        time.Minute,
			HeartbeatWindow: 90 * time.Second,
		},
		Sync: SyncConfig{
			ActivePeriod:     30 * time.Second,
			BackgroundPeriod: 2 * time.Minute,
			DormantPeriod:    30 * time.Minute,
			Staleness:        time.Minute,
			ActionTimeout:    2 * time.Minute,
		},
		Alerts: AlertsConfig{
			MarkerTTL: 5 * time.Minute,
			Sound:     true,
			Desktop:   true,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the
// provided dataDir. TRIAGE_TOKEN overrides the config file token so the
// credential can stay out of the file.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	if token := os.Getenv("TRIAGE_TOKEN"); token != "" {
		cfg.Server.Token = token
	}

	return &cfg, nil
}
