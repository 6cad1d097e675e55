// Package world provides the read-only world signals the dispatch core
// consumes: simulation time, time-of-day periods and host flags.
package world

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/regiondispatch/core/events"
	"github.com/kilianp07/regiondispatch/core/logger"
	"github.com/kilianp07/regiondispatch/core/model"
	"github.com/kilianp07/regiondispatch/internal/eventbus"
)

// Clock is the simulation time source.
type Clock interface {
	Now() time.Time
	Period() model.TimePeriod
	// UntilNextPeriod is the simulation time left in the current period.
	UntilNextPeriod() time.Duration
	// Real converts a simulation duration to wall time.
	Real(d time.Duration) time.Duration
}

// Config defines the simulated clock.
type Config struct {
	// Start is the simulation time at duty start (RFC 3339). Empty means
	// today at 06:00 UTC.
	Start string `json:"start"`
	// Scale is the number of simulation seconds per wall second.
	Scale float64 `json:"scale"`
	// PollIntervalMS is how often Run checks for period changes.
	PollIntervalMS int `json:"poll_interval_ms"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Scale <= 0 {
		c.Scale = 60
	}
	if c.PollIntervalMS <= 0 {
		c.PollIntervalMS = 500
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if c.Start != "" {
		if _, err := time.Parse(time.RFC3339, c.Start); err != nil {
			return fmt.Errorf("world: invalid start: %w", err)
		}
	}
	if c.Scale <= 0 {
		return fmt.Errorf("world: scale must be positive")
	}
	return nil
}

// SimClock runs simulation time at a fixed multiple of wall time.
type SimClock struct {
	start time.Time
	scale float64
	wall  func() time.Time
	epoch time.Time
	poll  time.Duration
	log   logger.Logger
	bus   *eventbus.Bus[events.Event]

	mu     sync.Mutex
	period model.TimePeriod
	subs   []chan model.TimePeriod
}

// NewSimClock creates a clock from cfg. Period changes are published on bus
// when it is not nil.
func NewSimClock(cfg Config, log logger.Logger, bus *eventbus.Bus[events.Event]) (*SimClock, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start := time.Now().UTC().Truncate(24 * time.Hour).Add(6 * time.Hour)
	if cfg.Start != "" {
		start, _ = time.Parse(time.RFC3339, cfg.Start)
	}
	return newSimClock(start, cfg.Scale, time.Now, time.Duration(cfg.PollIntervalMS)*time.Millisecond, log, bus), nil
}

func newSimClock(start time.Time, scale float64, wall func() time.Time, poll time.Duration, log logger.Logger, bus *eventbus.Bus[events.Event]) *SimClock {
	c := &SimClock{
		start: start,
		scale: scale,
		wall:  wall,
		epoch: wall(),
		poll:  poll,
		log:   logger.OrNop(log),
		bus:   bus,
	}
	c.period = model.PeriodAt(start.Hour())
	return c
}

// Now returns the current simulation time.
func (c *SimClock) Now() time.Time {
	elapsed := c.wall().Sub(c.epoch)
	return c.start.Add(time.Duration(float64(elapsed) * c.scale))
}

// Period returns the time-of-day period of Now.
func (c *SimClock) Period() model.TimePeriod { return model.PeriodAt(c.Now().Hour()) }

// UntilNextPeriod returns the simulation time left before the next period.
func (c *SimClock) UntilNextPeriod() time.Duration {
	now := c.Now()
	return model.NextPeriodStart(now).Sub(now)
}

// Real converts a simulation duration to wall time.
func (c *SimClock) Real(d time.Duration) time.Duration {
	return time.Duration(float64(d) / c.scale)
}

// SubscribePeriods returns a channel receiving every period change.
func (c *SimClock) SubscribePeriods() <-chan model.TimePeriod {
	ch := make(chan model.TimePeriod, 4)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()
	return ch
}

// Check publishes a period change if one happened since the last check and
// reports whether it did.
func (c *SimClock) Check() bool {
	now := c.Now()
	p := model.PeriodAt(now.Hour())
	c.mu.Lock()
	prev := c.period
	if p == prev {
		c.mu.Unlock()
		return false
	}
	c.period = p
	subs := append([]chan model.TimePeriod(nil), c.subs...)
	c.mu.Unlock()

	c.log.Infof("time period changed from %s to %s", prev, p)
	for _, ch := range subs {
		select {
		case ch <- p:
		default:
			c.log.Warnf("period subscriber full, dropping %s", p)
		}
	}
	if c.bus != nil {
		c.bus.Publish(events.TimePeriodChanged{Previous: prev, Period: p, At: now})
	}
	return true
}

// Run checks for period changes until ctx is cancelled, then closes the
// period subscriptions.
func (c *SimClock) Run(ctx context.Context) {
	t := time.NewTicker(c.poll)
	defer t.Stop()
	defer c.closeSubs()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Check()
		}
	}
}

func (c *SimClock) closeSubs() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		close(ch)
	}
	c.subs = nil
}
