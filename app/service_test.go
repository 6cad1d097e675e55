package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kilianp07/regiondispatch/config"
	"github.com/kilianp07/regiondispatch/core/dispatch"
	"github.com/kilianp07/regiondispatch/core/events"
	"github.com/kilianp07/regiondispatch/core/model"
	"github.com/kilianp07/regiondispatch/core/notify"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	closed bool
}

func (p *recordingPublisher) Publish(_ context.Context, env notify.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, env.Event)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *recordingPublisher) seen(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e == name {
			return true
		}
	}
	return false
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Catalog.Path = "../configs/catalog.yaml"
	cfg.CallLog.Backend = "memory"
	cfg.Generator.Disabled = true
	// Keep the tick loop out of the way; tests drive the engine directly.
	cfg.Dispatch.TickIntervalMS = 60000
	cfg.Units.Player.Enabled = true
	cfg.Units.Simulated = []dispatch.UnitConfig{{ID: "1-A-10", Home: dispatch.PositionConfig{X: 500, Y: 500}}}
	cfg.SetDefaults()
	return cfg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", timeout)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func playerCallAssigned(svc *Service) bool {
	for _, p := range model.Priorities {
		for _, c := range svc.Engine.GetCallList(p) {
			if c.Status == model.CallAssigned.String() {
				return true
			}
		}
	}
	return false
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestNewFailsOnMissingCatalog(t *testing.T) {
	cfg := testConfig()
	cfg.Catalog.Path = "does-not-exist.yaml"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for missing catalog")
	}
}

func TestDutyLifecycle(t *testing.T) {
	svc, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pub := &recordingPublisher{}
	svc.pub = pub

	if err := svc.StartDuty(context.Background()); err != nil {
		t.Fatalf("StartDuty: %v", err)
	}
	if err := svc.StartDuty(context.Background()); !errors.Is(err, ErrOnDuty) {
		t.Fatalf("expected ErrOnDuty got %v", err)
	}
	if n := len(svc.Engine.Units()); n != 2 {
		t.Fatalf("expected 2 units on duty got %d", n)
	}
	if svc.Engine.Player() == nil {
		t.Fatal("expected a player unit")
	}

	if err := svc.HandleCommand("dance"); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand got %v", err)
	}
	if err := svc.HandleCommand(CommandAccept); !errors.Is(err, dispatch.ErrNoOffer) {
		t.Errorf("expected ErrNoOffer got %v", err)
	}

	info, err := svc.Engine.RequestCallInfo("burglary", model.Position{})
	if err != nil {
		t.Fatalf("RequestCallInfo: %v", err)
	}
	if info.Scenario != "burglary" {
		t.Fatalf("expected burglary got %q", info.Scenario)
	}

	for _, cmd := range []string{CommandInvoke, CommandAccept, CommandArrived, CommandClear} {
		if err := svc.HandleCommand(cmd); err != nil {
			t.Fatalf("%s: %v", cmd, err)
		}
	}
	if n := svc.Engine.GetCallCount(); n != 0 {
		t.Fatalf("expected no outstanding calls got %d", n)
	}

	waitFor(t, 2*time.Second, func() bool {
		return pub.seen("call_added") && pub.seen("call_completed")
	})

	if err := svc.StopDuty(); err != nil {
		t.Fatalf("StopDuty: %v", err)
	}
	if n := len(svc.Engine.Units()); n != 0 {
		t.Errorf("expected empty roster got %d", n)
	}
	pub.mu.Lock()
	closed := pub.closed
	pub.mu.Unlock()
	if !closed {
		t.Error("publisher not closed")
	}
	if err := svc.StopDuty(); err != nil {
		t.Errorf("second StopDuty: %v", err)
	}
}

func TestAutopilotAcceptsOffers(t *testing.T) {
	cfg := testConfig()
	cfg.Units.Player.Autopilot = true
	svc, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := svc.StartDuty(context.Background()); err != nil {
		t.Fatalf("StartDuty: %v", err)
	}
	t.Cleanup(func() { _ = svc.StopDuty() })

	if _, err := svc.Engine.RequestCallInfo("burglary", model.Position{}); err != nil {
		t.Fatalf("RequestCallInfo: %v", err)
	}
	if _, err := svc.Engine.InvokeCalloutForPlayer(); err != nil {
		t.Fatalf("InvokeCalloutForPlayer: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return playerCallAssigned(svc) })
}

func TestAutopilotAcceptsOfferMissedOnBus(t *testing.T) {
	svc, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := svc.StartDuty(context.Background()); err != nil {
		t.Fatalf("StartDuty: %v", err)
	}
	t.Cleanup(func() { _ = svc.StopDuty() })

	if _, err := svc.Engine.RequestCallInfo("burglary", model.Position{}); err != nil {
		t.Fatalf("RequestCallInfo: %v", err)
	}
	if _, err := svc.Engine.InvokeCalloutForPlayer(); err != nil {
		t.Fatalf("InvokeCalloutForPlayer: %v", err)
	}

	// A subscription that never delivers stands in for a dropped offer.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.autopilot(ctx, make(chan events.Event), 10*time.Millisecond)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	waitFor(t, 2*time.Second, func() bool { return playerCallAssigned(svc) })
}
