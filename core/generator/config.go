package generator

import (
	"fmt"

	"github.com/kilianp07/regiondispatch/core/model"
)

// Config tunes the crime generator.
type Config struct {
	// Disabled turns generation off; calls then only come from requests.
	Disabled bool `json:"disabled"`
	// MaxAttempts bounds the resolution attempts of one generation cycle.
	MaxAttempts int `json:"max_attempts"`
	// MaxConsecutiveFailures disables the generator once reached.
	MaxConsecutiveFailures int `json:"max_consecutive_failures"`
	// Jitter spreads the delay range around the average interval, as a
	// fraction of it.
	Jitter float64 `json:"jitter"`
	// MinDelaySeconds is the shortest simulated delay between two calls.
	MinDelaySeconds int `json:"min_delay_seconds"`
	// CallsPerPatrol is the number of calls per period one patrol handles,
	// used to derive the optimum patrol count.
	CallsPerPatrol int `json:"calls_per_patrol"`
	// CrimeLevelWeights are the re-roll weights keyed by level name.
	CrimeLevelWeights map[string]float64 `json:"crime_level_weights"`
	Seed              uint64             `json:"seed"`
}

// DefaultCrimeLevelWeights favours moderate activity.
var DefaultCrimeLevelWeights = map[string]float64{
	"none":      5,
	"very_low":  10,
	"low":       20,
	"moderate":  35,
	"high":      20,
	"very_high": 10,
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = 3
	}
	if c.Jitter <= 0 {
		c.Jitter = 0.25
	}
	if c.MinDelaySeconds <= 0 {
		c.MinDelaySeconds = 30
	}
	if c.CallsPerPatrol <= 0 {
		c.CallsPerPatrol = 3
	}
	if len(c.CrimeLevelWeights) == 0 {
		c.CrimeLevelWeights = make(map[string]float64, len(DefaultCrimeLevelWeights))
		for k, v := range DefaultCrimeLevelWeights {
			c.CrimeLevelWeights[k] = v
		}
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if c.Jitter >= 1 {
		return fmt.Errorf("generator: jitter must be below 1")
	}
	total := 0.0
	for name, w := range c.CrimeLevelWeights {
		if _, err := model.ParseCrimeLevel(name); err != nil {
			return fmt.Errorf("generator: %w", err)
		}
		if w < 0 {
			return fmt.Errorf("generator: negative weight for %s", name)
		}
		total += w
	}
	if total <= 0 {
		return fmt.Errorf("generator: crime level weights must not all be zero")
	}
	return nil
}

// levelWeights orders the weights like model.CrimeLevels.
func (c Config) levelWeights() []float64 {
	out := make([]float64, len(model.CrimeLevels))
	for i, l := range model.CrimeLevels {
		out[i] = c.CrimeLevelWeights[l.String()]
	}
	return out
}
