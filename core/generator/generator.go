// Package generator manufactures calls across the region at a rate driven by
// the time of day and a randomly evolving crime level.
package generator

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/kilianp07/regiondispatch/core/catalog"
	"github.com/kilianp07/regiondispatch/core/dispatch"
	"github.com/kilianp07/regiondispatch/core/events"
	"github.com/kilianp07/regiondispatch/core/logger"
	"github.com/kilianp07/regiondispatch/core/metrics"
	"github.com/kilianp07/regiondispatch/core/model"
	"github.com/kilianp07/regiondispatch/core/monitoring"
	"github.com/kilianp07/regiondispatch/core/world"
	"github.com/kilianp07/regiondispatch/internal/eventbus"
)

var (
	ErrNoZone           = errors.New("no zone expects calls")
	ErrNoScenario       = errors.New("no scenario can spawn")
	ErrNoFreeLocation   = errors.New("no free location")
	ErrGenerationFailed = errors.New("call generation failed")
	ErrDisabled         = errors.New("generator disabled")
)

// CallSink receives generated calls.
type CallSink interface {
	AddCall(c *dispatch.Call) error
}

// Generator is the region crime generator.
type Generator struct {
	cfg   Config
	cat   *catalog.Catalog
	res   *catalog.Reservations
	clock world.Clock
	sink  CallSink
	log   logger.Logger

	mu       sync.Mutex
	src      *rand.PCG
	rnd      *rand.Rand
	stats    map[model.TimePeriod]PeriodStats
	level    model.CrimeLevel
	period   model.TimePeriod
	minDelay time.Duration
	maxDelay time.Duration
	paused   bool
	failures int

	bus      *eventbus.Bus[events.Event]
	monitor  monitoring.Monitor
	recorder metrics.CrimeLevelRecorder

	disabled atomic.Bool
	wake     chan struct{}
}

// New creates a generator, computes the region statistics and rolls the
// initial crime level for the current period.
func New(cfg Config, cat *catalog.Catalog, res *catalog.Reservations, clock world.Clock, sink CallSink, log logger.Logger) (*Generator, error) {
	if cat == nil {
		return nil, fmt.Errorf("catalog cannot be nil")
	}
	if res == nil {
		return nil, fmt.Errorf("reservations cannot be nil")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock cannot be nil")
	}
	if sink == nil {
		return nil, fmt.Errorf("call sink cannot be nil")
	}
	if log == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	src := rand.NewPCG(cfg.Seed, cfg.Seed^0xda3e39cb94b95bdb)
	g := &Generator{
		cfg:     cfg,
		cat:     cat,
		res:     res,
		clock:   clock,
		sink:    sink,
		log:     log,
		src:     src,
		rnd:     rand.New(src),
		monitor: monitoring.NopMonitor{},
		wake:    make(chan struct{}, 1),
	}
	g.disabled.Store(cfg.Disabled)
	g.mu.Lock()
	g.stats = computeStats(cat.Zones, cfg.CallsPerPatrol)
	g.period = clock.Period()
	g.level = g.rollLocked()
	g.deriveLocked()
	g.mu.Unlock()
	crimeLevel.Set(float64(g.level))
	return g, nil
}

// SetBus configures where CrimeLevelChanged and GeneratorFault are published.
func (g *Generator) SetBus(bus *eventbus.Bus[events.Event]) {
	g.mu.Lock()
	g.bus = bus
	g.mu.Unlock()
}

// SetMonitor configures error reporting.
func (g *Generator) SetMonitor(m monitoring.Monitor) {
	g.mu.Lock()
	g.monitor = monitoring.OrNop(m)
	g.mu.Unlock()
}

// SetMetrics configures the recorder of crime level changes.
func (g *Generator) SetMetrics(r metrics.CrimeLevelRecorder) {
	g.mu.Lock()
	g.recorder = r
	g.mu.Unlock()
}

// GenerateCall builds one call for the current period. Resolution failures
// are retried up to MaxAttempts times before ErrGenerationFailed is returned.
func (g *Generator) GenerateCall() (*dispatch.Call, error) {
	now := g.clock.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	period := model.PeriodAt(now.Hour())
	var last error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		c, err := g.tryLocked(period, now)
		if err == nil {
			return c, nil
		}
		last = err
		generationFailures.WithLabelValues(failureReason(err)).Inc()
		g.log.Warnf("generation attempt %d/%d failed: %v", attempt, g.cfg.MaxAttempts, err)
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrGenerationFailed, g.cfg.MaxAttempts, last)
}

func (g *Generator) tryLocked(p model.TimePeriod, now time.Time) (*dispatch.Call, error) {
	z := g.pickZoneLocked(p)
	if z == nil {
		return nil, ErrNoZone
	}
	s := g.pickScenarioLocked(z, p)
	if s == nil {
		return nil, fmt.Errorf("%w in zone %s", ErrNoScenario, z.ID)
	}
	loc := g.pickLocationLocked(z, s)
	if loc == nil {
		return nil, fmt.Errorf("%w for %s in zone %s", ErrNoFreeLocation, s.Name, z.ID)
	}
	return dispatch.NewCall(s, z, loc, g.describeLocked(s), now), nil
}

// take draws an index proportionally to w, or -1 when every weight is zero.
func (g *Generator) take(w []float64) int {
	if len(w) == 0 {
		return -1
	}
	idx, ok := sampleuv.NewWeighted(w, g.src).Take()
	if !ok {
		return -1
	}
	return idx
}

func (g *Generator) pickZoneLocked(p model.TimePeriod) *model.Zone {
	w := make([]float64, len(g.cat.Zones))
	for i, z := range g.cat.Zones {
		w[i] = float64(z.CallsDuring(p))
	}
	if i := g.take(w); i >= 0 {
		return g.cat.Zones[i]
	}
	return nil
}

// pickScenarioLocked draws a category from the zone table, then a scenario
// of that category.
func (g *Generator) pickScenarioLocked(z *model.Zone, p model.TimePeriod) *model.Scenario {
	cats := make([]string, 0, len(z.Categories))
	for name := range z.Categories {
		cats = append(cats, name)
	}
	sort.Strings(cats)
	w := make([]float64, len(cats))
	for i, name := range cats {
		base := 0.0
		for _, s := range g.cat.ScenariosIn(name) {
			base += s.Weight(p)
		}
		w[i] = base * z.Categories[name].For(p)
	}
	ci := g.take(w)
	if ci < 0 {
		return nil
	}
	scenarios := g.cat.ScenariosIn(cats[ci])
	sw := make([]float64, len(scenarios))
	for i, s := range scenarios {
		sw[i] = s.Weight(p)
	}
	if si := g.take(sw); si >= 0 {
		return scenarios[si]
	}
	return nil
}

func (g *Generator) pickLocationLocked(z *model.Zone, s *model.Scenario) *model.Location {
	free := g.res.Free(z, s.LocationTypes)
	if len(free) == 0 {
		return nil
	}
	return free[g.rnd.IntN(len(free))]
}

func (g *Generator) describeLocked(s *model.Scenario) string {
	if len(s.Descriptions) == 0 {
		return s.Name
	}
	return s.Descriptions[g.rnd.IntN(len(s.Descriptions))]
}

// Synthesize builds a call for a named scenario in one of the zones where
// it may happen.
func (g *Generator) Synthesize(name string) (*dispatch.Call, error) {
	s, err := g.cat.Scenario(name)
	if err != nil {
		return nil, err
	}
	now := g.clock.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	zones := g.cat.ZonesFor(s)
	if len(zones) == 0 {
		return nil, fmt.Errorf("%w: no zone has category %s", ErrNoFreeLocation, s.Category)
	}
	// Zones are tried in a random order, busier zones first on average.
	w := make([]float64, len(zones))
	for i, z := range zones {
		w[i] = 1 + float64(z.CallsDuring(model.PeriodAt(now.Hour())))
	}
	order := sampleuv.NewWeighted(w, g.src)
	for {
		i, ok := order.Take()
		if !ok {
			break
		}
		if loc := g.pickLocationLocked(zones[i], s); loc != nil {
			return dispatch.NewCall(s, zones[i], loc, g.describeLocked(s), now), nil
		}
	}
	return nil, fmt.Errorf("%w for %s", ErrNoFreeLocation, s.Name)
}

// RecomputeStats rebuilds the per-period statistics, for instance after the
// zone set changed, and re-derives the delay range.
func (g *Generator) RecomputeStats() {
	g.mu.Lock()
	g.stats = computeStats(g.cat.Zones, g.cfg.CallsPerPatrol)
	g.deriveLocked()
	g.mu.Unlock()
	g.poke()
}

// Stats returns the per-period statistics.
func (g *Generator) Stats() map[model.TimePeriod]PeriodStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[model.TimePeriod]PeriodStats, len(g.stats))
	for k, v := range g.stats {
		out[k] = v
	}
	return out
}

// HandlePeriodChange re-rolls the crime level for the new period and
// re-derives the delay range.
func (g *Generator) HandlePeriodChange(p model.TimePeriod) {
	g.mu.Lock()
	g.period = p
	prev := g.level
	g.level = g.rollLocked()
	ev := g.levelChangedLocked(prev)
	g.mu.Unlock()
	g.publishLevel(ev)
	g.poke()
}

// SetCrimeLevel forces the crime level until the next period change.
func (g *Generator) SetCrimeLevel(l model.CrimeLevel) {
	g.mu.Lock()
	prev := g.level
	g.level = l
	ev := g.levelChangedLocked(prev)
	g.mu.Unlock()
	g.publishLevel(ev)
	g.poke()
}

type levelChange struct {
	ev       events.CrimeLevelChanged
	bus      *eventbus.Bus[events.Event]
	recorder metrics.CrimeLevelRecorder
}

func (g *Generator) levelChangedLocked(prev model.CrimeLevel) levelChange {
	g.deriveLocked()
	return levelChange{
		ev: events.CrimeLevelChanged{
			Period:   g.period,
			Previous: prev,
			Level:    g.level,
			MinDelay: g.minDelay,
			MaxDelay: g.maxDelay,
			At:       g.clock.Now(),
		},
		bus:      g.bus,
		recorder: g.recorder,
	}
}

func (g *Generator) publishLevel(lc levelChange) {
	ev := lc.ev
	crimeLevel.Set(float64(ev.Level))
	g.log.Infof("crime level for %s is %s (delay %s to %s)", ev.Period, ev.Level, ev.MinDelay, ev.MaxDelay)
	if lc.bus != nil {
		lc.bus.Publish(ev)
	}
	if lc.recorder != nil {
		if err := lc.recorder.RecordCrimeLevel(metrics.CrimeLevelEvent{Period: ev.Period, Level: ev.Level, Time: ev.At}); err != nil {
			g.log.Warnf("record crime level: %v", err)
		}
	}
}

func (g *Generator) rollLocked() model.CrimeLevel {
	if i := g.take(g.cfg.levelWeights()); i >= 0 {
		return model.CrimeLevels[i]
	}
	return model.CrimeModerate
}

func (g *Generator) deriveLocked() {
	st := g.stats[g.period]
	floor := time.Duration(g.cfg.MinDelaySeconds) * time.Second
	lo, hi, ok := delayRange(st.AverageInterval, g.level, g.cfg.Jitter, floor, g.clock.UntilNextPeriod())
	g.minDelay, g.maxDelay, g.paused = lo, hi, !ok
}

// CrimeLevel returns the current crime level.
func (g *Generator) CrimeLevel() model.CrimeLevel {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.level
}

// DelayRange returns the simulated delay range between calls. paused is
// true when no call is generated until the next period.
func (g *Generator) DelayRange() (lo, hi time.Duration, paused bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.minDelay, g.maxDelay, g.paused
}

// Disabled reports whether the generator stopped after repeated failures
// or by configuration.
func (g *Generator) Disabled() bool { return g.disabled.Load() }

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrNoZone):
		return "no_zone"
	case errors.Is(err, ErrNoScenario):
		return "no_scenario"
	case errors.Is(err, ErrNoFreeLocation):
		return "no_location"
	default:
		return "other"
	}
}
