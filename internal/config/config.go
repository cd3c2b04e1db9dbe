// Package config loads node configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the file or a field is absent.
const (
	DefaultNodeName    = "processor-github"
	DefaultIndexDBPath = "data/index.db"
	DefaultListenAddr  = ":8322"
	DefaultLockTimeout = 30 * time.Second
	DefaultPruneDays   = 90
)

// Config holds the processor node configuration.
type Config struct {
	// NodeName is this node's human-readable name on the network.
	NodeName string `yaml:"node_name"`

	// IndexDBPath is the path to the SQLite index database file.
	IndexDBPath string `yaml:"index_db_path"`

	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string `yaml:"listen_addr"`

	// LockTimeout bounds per-repository lock acquisition.
	LockTimeout time.Duration `yaml:"lock_timeout"`

	// PruneDays is the default retention window for the prune command.
	PruneDays int `yaml:"prune_days"`

	// GitHubToken authenticates backfill API requests when set.
	// Populated from the GITHUB_TOKEN environment variable only; it is
	// never read from the file so it cannot end up committed.
	GitHubToken string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		NodeName:    DefaultNodeName,
		IndexDBPath: DefaultIndexDBPath,
		ListenAddr:  DefaultListenAddr,
		LockTimeout: DefaultLockTimeout,
		PruneDays:   DefaultPruneDays,
	}
}

// Load reads configuration from path, falling back to defaults for
// absent fields, then applies environment overrides. A missing file is
// not an error: the defaults plus environment are used.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults apply.
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	if cfg.PruneDays <= 0 {
		cfg.PruneDays = DefaultPruneDays
	}
	return cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHubToken = v
	}
	if v := os.Getenv("INDEX_DB_PATH"); v != "" {
		cfg.IndexDBPath = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if _, err := strconv.Atoi(v); err == nil {
			cfg.ListenAddr = ":" + v
		}
	}
}
