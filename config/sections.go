package config

import (
	"fmt"
	"time"
)

// CatalogConfig locates the zone and scenario catalog.
type CatalogConfig struct {
	Path string `json:"path"`
}

func (c CatalogConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}
	return nil
}

// RadioConfig controls the scanner advisories.
type RadioConfig struct {
	Disabled       bool `json:"disabled"`
	PumpIntervalMS int  `json:"pump_interval_ms"`
}

func (c *RadioConfig) SetDefaults() {
	if c.PumpIntervalMS <= 0 {
		c.PumpIntervalMS = 250
	}
}

func (c RadioConfig) PumpInterval() time.Duration {
	return time.Duration(c.PumpIntervalMS) * time.Millisecond
}

// NotifierConfig selects the outbound event publisher.
type NotifierConfig struct {
	// Backend is "none", "mqtt" or "kafka".
	Backend string `json:"backend"`
	// Events restricts publishing to these event names. Empty publishes all.
	Events    []string `json:"events"`
	TimeoutMS int      `json:"timeout_ms"`
}

func (c *NotifierConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "none"
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 5000
	}
}

func (c NotifierConfig) Validate() error {
	switch c.Backend {
	case "none", "mqtt", "kafka":
		return nil
	default:
		return fmt.Errorf("notifier.backend must be none, mqtt or kafka, got %s", c.Backend)
	}
}

func (c NotifierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// APIConfig controls the status HTTP API.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}
