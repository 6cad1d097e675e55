package world

import (
	"testing"
	"time"

	"github.com/kilianp07/regiondispatch/core/events"
	"github.com/kilianp07/regiondispatch/core/model"
	"github.com/kilianp07/regiondispatch/internal/eventbus"
)

type manualWall struct{ now time.Time }

func (w *manualWall) Now() time.Time { return w.now }

func TestSimClockScalesTime(t *testing.T) {
	wall := &manualWall{now: time.Unix(0, 0)}
	start := time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)
	c := newSimClock(start, 60, wall.Now, time.Second, nil, nil)

	if !c.Now().Equal(start) {
		t.Fatalf("expected %v got %v", start, c.Now())
	}
	if p := c.Period(); p != model.PeriodMorning {
		t.Errorf("expected morning got %s", p)
	}
	if d := c.UntilNextPeriod(); d != time.Hour {
		t.Errorf("expected 1h to the next period got %s", d)
	}

	wall.now = wall.now.Add(time.Minute)
	if want := start.Add(time.Hour); !c.Now().Equal(want) {
		t.Fatalf("one wall minute should be one simulated hour, got %v", c.Now())
	}
	if p := c.Period(); p != model.PeriodDay {
		t.Errorf("expected day got %s", p)
	}
	if d := c.Real(time.Minute); d != time.Second {
		t.Errorf("expected 1s of wall time got %s", d)
	}
}

func TestSimClockPublishesPeriodChange(t *testing.T) {
	wall := &manualWall{now: time.Unix(0, 0)}
	bus := eventbus.New[events.Event]()
	sub := bus.Subscribe()
	start := time.Date(2024, 5, 1, 17, 59, 0, 0, time.UTC)
	c := newSimClock(start, 60, wall.Now, time.Second, nil, bus)
	periods := c.SubscribePeriods()

	if c.Check() {
		t.Fatal("period changed before 18:00")
	}
	wall.now = wall.now.Add(2 * time.Second)
	if !c.Check() {
		t.Fatal("expected a period change after 18:00")
	}
	if c.Check() {
		t.Fatal("period change reported twice")
	}

	if p := <-periods; p != model.PeriodEvening {
		t.Errorf("expected evening got %s", p)
	}
	ev, ok := (<-sub).(events.TimePeriodChanged)
	if !ok {
		t.Fatal("expected a time period event")
	}
	if ev.Previous != model.PeriodDay || ev.Period != model.PeriodEvening {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Start: "yesterday"}
	cfg.SetDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for a bad start time")
	}
	cfg.Start = "2024-05-01T06:00:00Z"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Scale != 60 {
		t.Errorf("expected default scale 60 got %v", cfg.Scale)
	}
}

func TestSignals(t *testing.T) {
	var s Signals
	if s.CalloutActive() {
		t.Fatal("zero signals should be idle")
	}
	s.SetCalloutActive(true)
	s.SetChannelBusy(true)
	if !s.CalloutActive() || !s.Busy() {
		t.Errorf("signals not set: callout=%v busy=%v", s.CalloutActive(), s.Busy())
	}
}
