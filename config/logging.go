package config

import (
	"fmt"

	"github.com/kilianp07/fleetcore/core/factory"
)

// LoggingConfig defines the log level and the dispatch decision log storage.
type LoggingConfig struct {
	// Level is the minimum zerolog level: debug, info, warn or error.
	Level string `json:"level"`
	// Backend selects the log store type: "jsonl", "sqlite" or "nop".
	Backend string `json:"backend"`
	// Path is the file location of the log store.
	Path string `json:"path"`
	// MaxSizeMB triggers rotation when the file exceeds this size in megabytes.
	// Zero disables rotation of JSONL files.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files, or SQLite cycles, older than this
	// number of days.
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" {
		c.Path = "dispatch.log"
	}
}

// Validate checks mandatory fields.
func (c LoggingConfig) Validate() error {
	switch c.Backend {
	case "jsonl", "sqlite", "nop":
	default:
		return fmt.Errorf("logging: unknown backend %s", c.Backend)
	}
	if c.Backend != "nop" && c.Path == "" {
		return fmt.Errorf("logging: path is required")
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return fmt.Errorf("logging: rotation limits must not be negative")
	}
	return nil
}

// StoreConfig returns the dispatch log store module for the factory registry.
func (c LoggingConfig) StoreConfig() factory.ModuleConfig {
	typ := c.Backend
	conf := map[string]any{"path": c.Path}
	if typ == "jsonl" && c.MaxSizeMB > 0 {
		typ = "jsonl_rotating"
		conf["max_size_mb"] = c.MaxSizeMB
		if c.MaxBackups > 0 {
			conf["max_backups"] = c.MaxBackups
		}
		if c.MaxAgeDays > 0 {
			conf["max_age_days"] = c.MaxAgeDays
		}
	}
	if typ == "sqlite" && c.MaxAgeDays > 0 {
		conf["max_age_days"] = c.MaxAgeDays
	}
	return factory.ModuleConfig{Type: typ, Conf: conf}
}
