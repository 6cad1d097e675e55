package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kilianp07/regiondispatch/core/catalog"
	"github.com/kilianp07/regiondispatch/core/dispatch"
	"github.com/kilianp07/regiondispatch/core/events"
	"github.com/kilianp07/regiondispatch/core/logger"
	"github.com/kilianp07/regiondispatch/core/model"
	"github.com/kilianp07/regiondispatch/internal/eventbus"
)

const regionYAML = `
scenarios:
  - name: traffic_stop_collision
    category: traffic
    priority: 3
    required_units: 1
    location_types: [street]
    descriptions: ["Fender bender blocking a lane"]
    probability: 1
  - name: shots_fired
    category: violent
    priority: 1
    location_types: [store]
    probability: 1
zones:
  - id: DOWNT
    average_calls: {morning: 4, day: 6, evening: 8, night: 6}
    categories:
      traffic: {}
    locations:
      - {id: downt-main-st, type: street, x: 100, y: 200}
  - id: HILLS
    average_calls: {morning: 0, day: 2, evening: 2, night: 1}
    categories:
      violent: {morning: 0}
    locations:
      - {id: hills-liquor, type: store, x: -400, y: 900}
`

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time                     { return c.now }
func (c *fixedClock) Period() model.TimePeriod           { return model.PeriodAt(c.now.Hour()) }
func (c *fixedClock) UntilNextPeriod() time.Duration     { return model.NextPeriodStart(c.now).Sub(c.now) }
func (c *fixedClock) Real(d time.Duration) time.Duration { return d / 100000 }

type collectSink struct {
	mu    sync.Mutex
	calls []*dispatch.Call
	err   error
}

func (s *collectSink) AddCall(c *dispatch.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, c)
	return nil
}

func (s *collectSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type captureMonitor struct {
	mu   sync.Mutex
	errs []error
}

func (m *captureMonitor) CaptureException(err error, _ map[string]string) {
	m.mu.Lock()
	m.errs = append(m.errs, err)
	m.mu.Unlock()
}
func (m *captureMonitor) Recover()            {}
func (m *captureMonitor) Flush(time.Duration) {}

// morning is 10:00, inside the morning period.
var morning = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func loadRegion(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Decode(strings.NewReader(regionYAML), "yaml")
	if err != nil {
		t.Fatalf("decode catalog: %v", err)
	}
	return cat
}

func newTestGenerator(t *testing.T, cfg Config, sink CallSink) (*Generator, *catalog.Reservations, *fixedClock) {
	t.Helper()
	ResetMetrics(prometheus.NewRegistry())
	t.Cleanup(func() { ResetMetrics(nil) })
	res := catalog.NewReservations()
	clk := &fixedClock{now: morning}
	g, err := New(cfg, loadRegion(t), res, clk, sink, logger.Nop{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g, res, clk
}

func TestNewRejectsNilDependencies(t *testing.T) {
	cat := loadRegion(t)
	res := catalog.NewReservations()
	clk := &fixedClock{now: morning}
	sink := &collectSink{}
	cases := []struct {
		name string
		fn   func() (*Generator, error)
	}{
		{"catalog", func() (*Generator, error) { return New(Config{}, nil, res, clk, sink, logger.Nop{}) }},
		{"reservations", func() (*Generator, error) { return New(Config{}, cat, nil, clk, sink, logger.Nop{}) }},
		{"clock", func() (*Generator, error) { return New(Config{}, cat, res, nil, sink, logger.Nop{}) }},
		{"sink", func() (*Generator, error) { return New(Config{}, cat, res, clk, nil, logger.Nop{}) }},
		{"logger", func() (*Generator, error) { return New(Config{}, cat, res, clk, sink, nil) }},
		{"crime weights", func() (*Generator, error) {
			return New(Config{CrimeLevelWeights: map[string]float64{"apocalyptic": 1}}, cat, res, clk, sink, logger.Nop{})
		}},
	}
	for _, tc := range cases {
		if _, err := tc.fn(); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestGenerateCallPicksWeightedScenario(t *testing.T) {
	g, _, _ := newTestGenerator(t, Config{Seed: 42}, &collectSink{})
	// HILLS expects no morning calls, so only the traffic scenario of DOWNT
	// can spawn.
	for i := 0; i < 20; i++ {
		c, err := g.GenerateCall()
		if err != nil {
			t.Fatalf("GenerateCall #%d: %v", i, err)
		}
		if c.Scenario.Name != "traffic_stop_collision" || c.Zone.ID != "DOWNT" || c.Location.ID != "downt-main-st" {
			t.Fatalf("unexpected draw %s in %s at %s", c.Scenario.Name, c.Zone.ID, c.Location.ID)
		}
		if c.Description != "Fender bender blocking a lane" {
			t.Errorf("unexpected description %q", c.Description)
		}
		if c.Priority != model.PriorityExpedited {
			t.Errorf("expected expedited got %s", c.Priority)
		}
		if !c.CreatedAt.Equal(morning) {
			t.Errorf("expected created at %v got %v", morning, c.CreatedAt)
		}
	}
}

func TestGenerateCallFailsAfterMaxAttempts(t *testing.T) {
	g, res, _ := newTestGenerator(t, Config{Seed: 1}, &collectSink{})
	if err := res.Reserve("downt-main-st", 99); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	c, err := g.GenerateCall()
	if c != nil {
		t.Fatalf("expected no call got %v", c.Scenario.Name)
	}
	if !errors.Is(err, ErrGenerationFailed) || !errors.Is(err, ErrNoFreeLocation) {
		t.Fatalf("expected ErrGenerationFailed wrapping ErrNoFreeLocation got %v", err)
	}
	if v := testutil.ToFloat64(generationFailures.WithLabelValues("no_location")); v != 5 {
		t.Errorf("expected 5 failed attempts got %v", v)
	}
}

func TestVeryHighTrafficCallDispatchedWithinOneTick(t *testing.T) {
	res := catalog.NewReservations()
	clk := &fixedClock{now: morning}
	dispatch.ResetMetrics(prometheus.NewRegistry())
	t.Cleanup(func() { dispatch.ResetMetrics(nil) })
	engine, err := dispatch.NewEngine(dispatch.Config{}, res, clk, logger.Nop{}, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ResetMetrics(prometheus.NewRegistry())
	t.Cleanup(func() { ResetMetrics(nil) })
	g, err := New(Config{Seed: 3}, loadRegion(t), res, clk, engine, logger.Nop{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g.SetCrimeLevel(model.CrimeVeryHigh)

	unit, err := dispatch.NewUnit("2-LINCOLN-4", "", dispatch.KindSimulated,
		dispatch.NewSimulatedBehavior(model.Position{X: 120, Y: 210}, dispatch.Timing{TravelMin: time.Minute, TravelMax: time.Minute}, 1))
	if err != nil {
		t.Fatalf("NewUnit: %v", err)
	}
	if err := engine.AddUnit(unit); err != nil {
		t.Fatalf("AddUnit: %v", err)
	}

	if err := g.Cycle(); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	list := engine.GetCallList(model.PriorityExpedited)
	if engine.GetCallCount() != 1 || len(list) != 1 {
		t.Fatalf("expected one expedited call got %d", engine.GetCallCount())
	}
	if list[0].Category != "traffic" {
		t.Errorf("expected traffic call got %q", list[0].Category)
	}

	engine.Tick(clk.now)

	c := engine.Call(list[0].ID)
	if c == nil {
		t.Fatal("call vanished")
	}
	if c.Status != model.CallDispatched || unit.Status != model.UnitDispatched || c.Primary() != unit {
		t.Fatalf("expected the unit dispatched within one tick, call=%s unit=%s", c.Status, unit.Status)
	}
	if v := testutil.ToFloat64(callsGenerated.WithLabelValues("expedited")); v != 1 {
		t.Errorf("expected 1 generated call got %v", v)
	}
}

func TestCompletedCallFreesLocationForGenerator(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	t.Cleanup(func() { ResetMetrics(nil) })
	res := catalog.NewReservations()
	clk := &fixedClock{now: morning}
	engine, err := dispatch.NewEngine(dispatch.Config{}, res, clk, logger.Nop{}, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	g, err := New(Config{Seed: 5, MaxAttempts: 2}, loadRegion(t), res, clk, engine, logger.Nop{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := g.Cycle(); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if _, err := g.GenerateCall(); !errors.Is(err, ErrNoFreeLocation) {
		t.Fatalf("expected ErrNoFreeLocation got %v", err)
	}

	c := engine.Call(1)
	if c == nil {
		t.Fatal("call 1 not queued")
	}
	if err := engine.CompleteCall(c, events.ClosureResolved); err != nil {
		t.Fatalf("CompleteCall: %v", err)
	}

	next, err := g.GenerateCall()
	if err != nil {
		t.Fatalf("GenerateCall: %v", err)
	}
	if next.Location.ID != "downt-main-st" {
		t.Errorf("expected the freed location got %s", next.Location.ID)
	}
}

func TestCycleDisablesAfterConsecutiveFailures(t *testing.T) {
	sink := &collectSink{err: errors.New("queue closed")}
	g, _, _ := newTestGenerator(t, Config{Seed: 9}, sink)
	bus := eventbus.New[events.Event]()
	sub := bus.Subscribe()
	mon := &captureMonitor{}
	g.SetBus(bus)
	g.SetMonitor(mon)

	for i := 0; i < 2; i++ {
		if err := g.Cycle(); err == nil {
			t.Fatalf("cycle %d: expected error", i+1)
		}
		if g.Disabled() {
			t.Fatalf("disabled after %d failures", i+1)
		}
	}
	if err := g.Cycle(); err == nil {
		t.Fatal("cycle 3: expected error")
	}
	if !g.Disabled() {
		t.Fatal("expected generator disabled after 3 failures")
	}
	if err := g.Cycle(); !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled got %v", err)
	}
	if len(mon.errs) != 1 {
		t.Errorf("expected 1 reported error got %d", len(mon.errs))
	}
	if v := testutil.ToFloat64(generatorEnabled); v != 0 {
		t.Errorf("expected enabled gauge 0 got %v", v)
	}

	fault, ok := (<-sub).(events.GeneratorFault)
	if !ok {
		t.Fatal("expected a generator fault event")
	}
	if fault.Failures != 3 || !strings.Contains(fault.Reason, "queue closed") {
		t.Errorf("unexpected fault %+v", fault)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	sink := &collectSink{err: errors.New("busy")}
	g, _, _ := newTestGenerator(t, Config{Seed: 9}, sink)
	setErr := func(err error) {
		sink.mu.Lock()
		sink.err = err
		sink.mu.Unlock()
	}
	for _, fail := range []bool{true, true, false, true, true} {
		if fail {
			setErr(errors.New("busy"))
		} else {
			setErr(nil)
		}
		if err := g.Cycle(); (err != nil) != fail {
			t.Fatalf("expected failure=%v got %v", fail, err)
		}
	}
	if g.Disabled() {
		t.Error("generator disabled although failures were not consecutive")
	}
}

// contendedSink reports the drawn location as taken for the first lost
// calls, as when a synthesized call reserves it first.
type contendedSink struct {
	collectSink
	lost int
}

func (s *contendedSink) AddCall(c *dispatch.Call) error {
	s.mu.Lock()
	if s.lost > 0 {
		s.lost--
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", catalog.ErrLocationInUse, c.Location.ID)
	}
	s.mu.Unlock()
	return s.collectSink.AddCall(c)
}

func TestCycleRedrawsLocationTakenByAnotherCall(t *testing.T) {
	sink := &contendedSink{lost: 1}
	g, _, _ := newTestGenerator(t, Config{Seed: 9}, sink)

	if err := g.Cycle(); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if n := sink.count(); n != 1 {
		t.Fatalf("expected 1 queued call got %d", n)
	}
}

func TestLostLocationRaceDoesNotDisableGenerator(t *testing.T) {
	sink := &contendedSink{lost: 100}
	g, _, _ := newTestGenerator(t, Config{Seed: 9}, sink)
	mon := &captureMonitor{}
	g.SetMonitor(mon)

	for i := 0; i < 5; i++ {
		if err := g.Cycle(); !errors.Is(err, catalog.ErrLocationInUse) {
			t.Fatalf("cycle %d: expected ErrLocationInUse got %v", i+1, err)
		}
	}
	if g.Disabled() {
		t.Fatal("lost location races counted as exhaustion")
	}
	if len(mon.errs) != 0 {
		t.Errorf("expected no reported errors got %d", len(mon.errs))
	}
}

func TestCyclePanicIsRecovered(t *testing.T) {
	g, _, _ := newTestGenerator(t, Config{}, panicSink{})
	mon := &captureMonitor{}
	g.SetMonitor(mon)
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic escaped Cycle: %v", r)
		}
	}()
	_ = g.Cycle()
	if len(mon.errs) != 1 {
		t.Errorf("expected 1 reported panic got %d", len(mon.errs))
	}
}

type panicSink struct{}

func (panicSink) AddCall(*dispatch.Call) error { panic("sink exploded") }

func TestHandlePeriodChangeRerollsLevel(t *testing.T) {
	cfg := Config{Seed: 2, CrimeLevelWeights: map[string]float64{"very_high": 1}}
	g, _, clk := newTestGenerator(t, cfg, &collectSink{})
	bus := eventbus.New[events.Event]()
	sub := bus.Subscribe()
	g.SetBus(bus)

	clk.now = time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)
	g.HandlePeriodChange(model.PeriodDay)

	if l := g.CrimeLevel(); l != model.CrimeVeryHigh {
		t.Fatalf("expected very_high got %s", l)
	}
	ev, ok := (<-sub).(events.CrimeLevelChanged)
	if !ok {
		t.Fatal("expected a crime level event")
	}
	if ev.Period != model.PeriodDay || ev.Level != model.CrimeVeryHigh {
		t.Errorf("unexpected event %+v", ev)
	}

	// Day: 8 calls over 6h gives 45m, halved by VeryHigh.
	lo, hi, paused := g.DelayRange()
	if paused {
		t.Fatal("generation should not be paused")
	}
	wantLo := time.Duration(float64(45*time.Minute) * 0.5 * 0.75)
	wantHi := time.Duration(float64(45*time.Minute) * 0.5 * 1.25)
	if lo != wantLo || hi != wantHi {
		t.Errorf("expected range [%s, %s] got [%s, %s]", wantLo, wantHi, lo, hi)
	}
}

func TestFollowPeriods(t *testing.T) {
	cfg := Config{Seed: 2, CrimeLevelWeights: map[string]float64{"low": 1}}
	g, _, _ := newTestGenerator(t, cfg, &collectSink{})
	g.SetCrimeLevel(model.CrimeHigh)
	periods := make(chan model.TimePeriod, 1)
	periods <- model.PeriodDay
	close(periods)

	g.FollowPeriods(context.Background(), periods)
	if l := g.CrimeLevel(); l != model.CrimeLow {
		t.Errorf("expected low got %s", l)
	}
}

func TestCrimeLevelNonePausesGeneration(t *testing.T) {
	g, _, _ := newTestGenerator(t, Config{Seed: 4}, &collectSink{})
	g.SetCrimeLevel(model.CrimeNone)
	if _, _, paused := g.DelayRange(); !paused {
		t.Fatal("expected generation paused at crime level none")
	}
	g.SetCrimeLevel(model.CrimeModerate)
	if _, _, paused := g.DelayRange(); paused {
		t.Fatal("expected generation resumed")
	}
}

func TestSynthesize(t *testing.T) {
	g, res, _ := newTestGenerator(t, Config{Seed: 8}, &collectSink{})
	if _, err := g.Synthesize("alien_landing"); !errors.Is(err, catalog.ErrUnknownScenario) {
		t.Fatalf("expected ErrUnknownScenario got %v", err)
	}

	c, err := g.Synthesize("shots_fired")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if c.Location.ID != "hills-liquor" || c.Priority != model.PriorityImmediate {
		t.Errorf("unexpected call at %s with %s", c.Location.ID, c.Priority)
	}
	if n := c.RequiredUnits(); n != 3 {
		t.Errorf("expected 3 required units got %d", n)
	}

	if err := res.Reserve("hills-liquor", 1); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := g.Synthesize("shots_fired"); !errors.Is(err, ErrNoFreeLocation) {
		t.Errorf("expected ErrNoFreeLocation got %v", err)
	}
}

func TestRunGeneratesCalls(t *testing.T) {
	sink := &collectSink{}
	g, _, _ := newTestGenerator(t, Config{Seed: 11, CrimeLevelWeights: map[string]float64{"very_high": 1}}, sink)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for sink.count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d calls generated", sink.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("generator did not stop")
	}
}

func TestDisabledByConfigDoesNotRun(t *testing.T) {
	g, _, _ := newTestGenerator(t, Config{Disabled: true}, &collectSink{})
	done := make(chan struct{})
	go func() {
		g.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled generator kept running")
	}
}
