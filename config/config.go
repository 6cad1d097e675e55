package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/regiondispatch/core/calllog"
	"github.com/kilianp07/regiondispatch/core/dispatch"
	"github.com/kilianp07/regiondispatch/core/generator"
	"github.com/kilianp07/regiondispatch/core/metrics"
	"github.com/kilianp07/regiondispatch/core/world"
	"github.com/kilianp07/regiondispatch/infra/kafka"
	"github.com/kilianp07/regiondispatch/infra/mqtt"
)

type Config struct {
	Dispatch  dispatch.Config       `json:"dispatch"`
	Generator generator.Config      `json:"generator"`
	World     world.Config          `json:"world"`
	Radio     RadioConfig           `json:"radio"`
	Catalog   CatalogConfig         `json:"catalog"`
	CallLog   calllog.Config        `json:"call_log"`
	Metrics   metrics.Config        `json:"metrics"`
	MQTT      mqtt.Config           `json:"mqtt"`
	Kafka     kafka.Config          `json:"kafka"`
	Notifier  NotifierConfig        `json:"notifier"`
	Sentry    SentryConfig          `json:"sentry"`
	API       APIConfig             `json:"api"`
	Units     dispatch.RosterConfig `json:"units"`
	Logging   LoggingConfig         `json:"logging"`
}

// Load reads a YAML or JSON file, applies K_ environment overrides
// (K_DISPATCH__TICK_INTERVAL_MS=500), fills defaults and validates every
// section.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	if !filepath.IsAbs(cfg.Catalog.Path) && cfg.Catalog.Path != "" {
		cfg.Catalog.Path = filepath.Join(filepath.Dir(path), cfg.Catalog.Path)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Dispatch.SetDefaults()
	c.Generator.SetDefaults()
	c.World.SetDefaults()
	c.Radio.SetDefaults()
	c.CallLog.SetDefaults()
	c.Notifier.SetDefaults()
	c.API.SetDefaults()
	c.Units.SetDefaults()
	c.Logging.SetDefaults()
	c.Sentry.SetDefaults()
	switch c.Notifier.Backend {
	case "mqtt":
		c.MQTT.SetDefaults()
	case "kafka":
		c.Kafka.SetDefaults()
	}
}

// Validate checks every section and joins the failures.
func (c Config) Validate() error {
	errs := []error{
		c.Dispatch.Validate(),
		c.Generator.Validate(),
		c.World.Validate(),
		c.Catalog.Validate(),
		c.CallLog.Validate(),
		c.Notifier.Validate(),
		c.Units.Validate(),
		c.Logging.Validate(),
		c.Sentry.Validate(),
	}
	switch c.Notifier.Backend {
	case "mqtt":
		errs = append(errs, c.MQTT.Validate())
	case "kafka":
		errs = append(errs, c.Kafka.Validate())
	}
	return errors.Join(errs...)
}
