package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kilianp07/regiondispatch/core/events"
	"github.com/kilianp07/regiondispatch/core/logger"
	"github.com/kilianp07/regiondispatch/core/model"
)

type memPublisher struct {
	mu   sync.Mutex
	envs []Envelope
	err  error
}

func (m *memPublisher) Publish(_ context.Context, env Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.envs = append(m.envs, env)
	return nil
}

func (m *memPublisher) Close() error { return nil }

func (m *memPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.envs)
}

type monitorStub struct {
	mu   sync.Mutex
	errs []error
}

func (m *monitorStub) CaptureException(err error, _ map[string]string) {
	m.mu.Lock()
	m.errs = append(m.errs, err)
	m.mu.Unlock()
}
func (m *monitorStub) Recover()            {}
func (m *monitorStub) Flush(time.Duration) {}

func TestWrapKeys(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	env, err := Wrap(events.CallAdded{Call: model.CallInfo{ID: 12, Scenario: "burglary"}, At: at})
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if env.Event != "call_added" || env.Key != "call-12" {
		t.Errorf("unexpected envelope %s/%s", env.Event, env.Key)
	}
	if !env.OccurredAt.Equal(at) || env.ID == "" {
		t.Errorf("missing id or timestamp: %+v", env)
	}

	var back events.CallAdded
	if err := json.Unmarshal(env.Payload, &back); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if back.Call.Scenario != "burglary" {
		t.Errorf("expected burglary got %q", back.Call.Scenario)
	}

	for _, tc := range []struct {
		ev  events.Event
		key string
	}{
		{events.UnitRemoved{Unit: model.UnitInfo{ID: "u7"}}, "unit-u7"},
		{events.GeneratorFault{Failures: 3}, "generator_fault"},
	} {
		env, err := Wrap(tc.ev)
		if err != nil {
			t.Fatalf("Wrap %s: %v", tc.ev.Name(), err)
		}
		if env.Key != tc.key {
			t.Errorf("%s: expected key %q got %q", tc.ev.Name(), tc.key, env.Key)
		}
	}
}

func TestNewForwarderRejectsNil(t *testing.T) {
	if _, err := NewForwarder(nil, nil, nil, 0); err == nil {
		t.Fatal("expected error for nil publisher")
	}
}

func TestForwardFilter(t *testing.T) {
	pub := &memPublisher{}
	f, err := NewForwarder(pub, logger.Nop{}, nil, time.Second, "call_added")
	if err != nil {
		t.Fatalf("NewForwarder: %v", err)
	}
	for _, ev := range []events.Event{events.CallAdded{}, events.UnitRemoved{}} {
		if err := f.Forward(context.Background(), ev); err != nil {
			t.Fatalf("Forward %s: %v", ev.Name(), err)
		}
	}
	if n := pub.count(); n != 1 {
		t.Errorf("expected only call_added forwarded got %d", n)
	}
}

func TestRunReportsFailures(t *testing.T) {
	pub := &memPublisher{err: errors.New("broker down")}
	mon := &monitorStub{}
	f, err := NewForwarder(pub, logger.Nop{}, mon, time.Second)
	if err != nil {
		t.Fatalf("NewForwarder: %v", err)
	}

	sub := make(chan events.Event, 2)
	sub <- events.CallAdded{}
	sub <- events.CallCompleted{}
	close(sub)
	f.Run(context.Background(), sub)

	mon.mu.Lock()
	defer mon.mu.Unlock()
	if len(mon.errs) != 2 {
		t.Fatalf("expected 2 reported failures got %d", len(mon.errs))
	}
	if !strings.Contains(mon.errs[0].Error(), "broker down") {
		t.Errorf("unexpected error %v", mon.errs[0])
	}
}
