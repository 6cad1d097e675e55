package config

import "fmt"

// SentryConfig enables error reporting to Sentry. An empty DSN disables it.
type SentryConfig struct {
	DSN              string            `json:"dsn"`
	Environment      string            `json:"environment"`
	Release          string            `json:"release"`
	ServerName       string            `json:"server_name"`
	SampleRate       float64           `json:"sample_rate"`
	TracesSampleRate float64           `json:"traces_sample_rate"`
	FlushTimeoutMS   int               `json:"flush_timeout_ms"`
	Tags             map[string]string `json:"tags"`
}

func (c *SentryConfig) SetDefaults() {
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1
	}
	if c.FlushTimeoutMS <= 0 {
		c.FlushTimeoutMS = 2000
	}
}

func (c SentryConfig) Validate() error {
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sentry.sample_rate must be between 0 and 1")
	}
	if c.TracesSampleRate < 0 || c.TracesSampleRate > 1 {
		return fmt.Errorf("sentry.traces_sample_rate must be between 0 and 1")
	}
	return nil
}
