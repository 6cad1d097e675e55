package config

import (
	"fmt"
	"strings"

	infralogger "github.com/kilianp07/regiondispatch/infra/logger"
)

// LoggingConfig defines the log level and optional rotating log file.
type LoggingConfig struct {
	// Level is one of debug, info, warn or error. Empty defers to LOG_LEVEL.
	Level string `json:"level"`
	// File, when set, receives a copy of every entry.
	File string `json:"file"`
	// MaxSizeMB triggers rotation when the file exceeds this size in megabytes.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.File != "" && c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 10
	}
}

// Validate checks the level name.
func (c LoggingConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging: unknown level %s", c.Level)
	}
}

// Options converts the section for infra/logger.Setup.
func (c LoggingConfig) Options() infralogger.Options {
	return infralogger.Options{
		Level:      c.Level,
		File:       c.File,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
	}
}
