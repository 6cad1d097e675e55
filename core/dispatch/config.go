package dispatch

import (
	"fmt"
	"time"

	"github.com/kilianp07/regiondispatch/core/model"
)

// Config tunes the assignment loop.
type Config struct {
	// TickIntervalMS is the period of Run in milliseconds.
	TickIntervalMS int `json:"tick_interval_ms"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TickIntervalMS <= 0 {
		c.TickIntervalMS = 1000
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if c.TickIntervalMS < 10 {
		return fmt.Errorf("dispatch: tick_interval_ms must be at least 10")
	}
	return nil
}

// TickInterval returns the tick period.
func (c Config) TickInterval() time.Duration {
	if c.TickIntervalMS <= 0 {
		return time.Second
	}
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

// PositionConfig is a point on the region map.
type PositionConfig struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p PositionConfig) Position() model.Position { return model.Position{X: p.X, Y: p.Y} }

// UnitConfig declares one simulated unit.
type UnitConfig struct {
	ID       string         `json:"id"`
	CallSign string         `json:"call_sign"`
	Home     PositionConfig `json:"home"`
}

// PlayerConfig declares the human-controlled unit.
type PlayerConfig struct {
	Enabled  bool           `json:"enabled"`
	ID       string         `json:"id"`
	CallSign string         `json:"call_sign"`
	Home     PositionConfig `json:"home"`
	// Autopilot drives the player with simulated timers and accepts every
	// offer, for headless runs.
	Autopilot bool `json:"autopilot"`
}

// TimingConfig bounds simulated unit timers, in simulation seconds.
type TimingConfig struct {
	TravelMinSeconds  int `json:"travel_min_seconds"`
	TravelMaxSeconds  int `json:"travel_max_seconds"`
	OnSceneMinSeconds int `json:"on_scene_min_seconds"`
	OnSceneMaxSeconds int `json:"on_scene_max_seconds"`
	CooldownSeconds   int `json:"cooldown_seconds"`
}

// Timing converts the configuration to durations.
func (t TimingConfig) Timing() Timing {
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return Timing{
		TravelMin:  sec(t.TravelMinSeconds),
		TravelMax:  sec(t.TravelMaxSeconds),
		OnSceneMin: sec(t.OnSceneMinSeconds),
		OnSceneMax: sec(t.OnSceneMaxSeconds),
		Cooldown:   sec(t.CooldownSeconds),
	}
}

// RosterConfig describes the units put on duty at the start of a session.
type RosterConfig struct {
	Seed      uint64       `json:"seed"`
	Player    PlayerConfig `json:"player"`
	Simulated []UnitConfig `json:"simulated"`
	Timing    TimingConfig `json:"timing"`
}

// SetDefaults applies sane defaults.
func (c *RosterConfig) SetDefaults() {
	if c.Player.ID == "" {
		c.Player.ID = "player"
	}
	if c.Player.CallSign == "" {
		c.Player.CallSign = "1-ADAM-12"
	}
	if c.Timing.TravelMaxSeconds == 0 && c.Timing.TravelMinSeconds == 0 {
		c.Timing.TravelMinSeconds = 120
		c.Timing.TravelMaxSeconds = 480
	}
	if c.Timing.OnSceneMaxSeconds == 0 && c.Timing.OnSceneMinSeconds == 0 {
		c.Timing.OnSceneMinSeconds = 300
		c.Timing.OnSceneMaxSeconds = 1200
	}
}

// Validate checks the roster.
func (c RosterConfig) Validate() error {
	seen := make(map[string]bool)
	if c.Player.Enabled {
		seen[c.Player.ID] = true
	}
	for i, u := range c.Simulated {
		if u.ID == "" {
			return fmt.Errorf("units: simulated[%d] id is required", i)
		}
		if seen[u.ID] {
			return fmt.Errorf("units: duplicate unit id %s", u.ID)
		}
		seen[u.ID] = true
	}
	t := c.Timing
	if t.TravelMinSeconds < 0 || t.TravelMaxSeconds < t.TravelMinSeconds {
		return fmt.Errorf("units: invalid travel time range")
	}
	if t.OnSceneMinSeconds < 0 || t.OnSceneMaxSeconds < t.OnSceneMinSeconds {
		return fmt.Errorf("units: invalid on scene time range")
	}
	if t.CooldownSeconds < 0 {
		return fmt.Errorf("units: cooldown_seconds must be positive")
	}
	return nil
}

// BuildRoster creates the configured units. pos reports the player's
// position; an autopilot player uses simulated timers instead.
func BuildRoster(cfg RosterConfig, pos PositionFunc) ([]*Unit, error) {
	timing := cfg.Timing.Timing()
	var units []*Unit
	if cfg.Player.Enabled {
		var b Behavior
		if cfg.Player.Autopilot || pos == nil {
			b = NewSimulatedBehavior(cfg.Player.Home.Position(), timing, cfg.Seed)
		} else {
			b = NewPlayerBehavior(pos)
		}
		u, err := NewUnit(cfg.Player.ID, cfg.Player.CallSign, KindPlayer, b)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	for i, uc := range cfg.Simulated {
		b := NewSimulatedBehavior(uc.Home.Position(), timing, cfg.Seed+uint64(i)+1)
		u, err := NewUnit(uc.ID, uc.CallSign, KindSimulated, b)
		if err != nil {
			return nil, fmt.Errorf("unit %d: %w", i, err)
		}
		units = append(units, u)
	}
	return units, nil
}
