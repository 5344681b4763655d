// Package config loads runtime configuration for the editing core.
//
// Configuration files are TOML or YAML, selected by extension. A
// missing file is not an error; defaults apply.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultWorkers             = 4
	DefaultHistoryLimit        = 100
	DefaultReplaceHistoryLimit = 50
	DefaultContextSize         = 30
	DefaultBackupDir           = "backups"
	DefaultMaxBackups          = 5
	DefaultCacheLimit          = 64
)

// Config holds the tunables of the core subsystems.
type Config struct {
	// Workers bounds the search engine's per-file worker pool.
	Workers int `toml:"workers" yaml:"workers"`

	// HistoryLimit caps change records kept per path in the store.
	HistoryLimit int `toml:"history_limit" yaml:"history_limit"`

	// ReplaceHistoryLimit caps the replace engine's undo buffer.
	ReplaceHistoryLimit int `toml:"replace_history_limit" yaml:"replace_history_limit"`

	// ContextSize is the default rune context around search matches.
	ContextSize int `toml:"context_size" yaml:"context_size"`

	// BackupDir receives archive backups; relative values resolve
	// against the source archive's directory.
	BackupDir string `toml:"backup_dir" yaml:"backup_dir"`

	// MaxBackups is the backup retention count per source.
	MaxBackups int `toml:"max_backups" yaml:"max_backups"`

	// CacheLimit caps the number of cached search result sets.
	CacheLimit int `toml:"cache_limit" yaml:"cache_limit"`
}

// Default returns the standard configuration.
func Default() Config {
	return Config{
		Workers:             DefaultWorkers,
		HistoryLimit:        DefaultHistoryLimit,
		ReplaceHistoryLimit: DefaultReplaceHistoryLimit,
		ContextSize:         DefaultContextSize,
		BackupDir:           DefaultBackupDir,
		MaxBackups:          DefaultMaxBackups,
		CacheLimit:          DefaultCacheLimit,
	}
}

// Load reads configuration from path. An empty path or missing file
// yields the defaults. Unknown extensions are an error. Non-positive
// values are replaced with their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config format: %s", path)
	}
	if err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.normalize()
	return cfg, nil
}

// normalize replaces non-positive values with defaults.
func (c *Config) normalize() {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.ReplaceHistoryLimit <= 0 {
		c.ReplaceHistoryLimit = DefaultReplaceHistoryLimit
	}
	if c.ContextSize <= 0 {
		c.ContextSize = DefaultContextSize
	}
	if c.BackupDir == "" {
		c.BackupDir = DefaultBackupDir
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = DefaultMaxBackups
	}
	if c.CacheLimit <= 0 {
		c.CacheLimit = DefaultCacheLimit
	}
}
