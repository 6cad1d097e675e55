package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/kilianp07/regiondispatch/core/factory"
	"github.com/kilianp07/regiondispatch/core/model"
)

type recordSink struct {
	calls   int
	assigns int
	fail    bool
}

func (r *recordSink) RecordCallCompleted(CallEvent) error {
	r.calls++
	if r.fail {
		return errors.New("boom")
	}
	return nil
}

func (r *recordSink) RecordAssignment(AssignmentEvent) error {
	r.assigns++
	return nil
}

type callOnlySink struct{ calls int }

func (c *callOnlySink) RecordCallCompleted(CallEvent) error { c.calls++; return nil }

func TestMultiSinkForwards(t *testing.T) {
	s1 := &recordSink{}
	s2 := &callOnlySink{}
	m := NewMultiSink(s1, s2)
	if err := m.RecordCallCompleted(CallEvent{CallID: 1}); err != nil {
		t.Fatalf("record call: %v", err)
	}
	if err := m.RecordAssignment(AssignmentEvent{CallID: 1}); err != nil {
		t.Fatalf("record assignment: %v", err)
	}
	if err := m.RecordQueueDepth(map[model.Priority]int{model.PriorityImmediate: 1}, time.Now()); err != nil {
		t.Fatalf("record depth: %v", err)
	}
	if s1.calls != 1 || s2.calls != 1 || s1.assigns != 1 {
		t.Fatalf("unexpected counts %+v %+v", s1, s2)
	}
}

func TestMultiSinkKeepsGoingOnError(t *testing.T) {
	s1 := &recordSink{fail: true}
	s2 := &callOnlySink{}
	m := NewMultiSink(s1, s2)
	if err := m.RecordCallCompleted(CallEvent{}); err == nil {
		t.Fatal("expected error")
	}
	if s2.calls != 1 {
		t.Fatal("second sink should still receive the event")
	}
}

func TestNewMetricsSinkEmpty(t *testing.T) {
	s, err := NewMetricsSink(nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := s.(NopSink); !ok {
		t.Fatalf("expected NopSink got %T", s)
	}
	if _, err := NewMetricsSink([]factory.ModuleConfig{{Type: "missing"}}); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestNewMetricsSinkBuildsEachTypeOnce(t *testing.T) {
	built := 0
	if err := RegisterMetricsSink("counting", func(map[string]any) (MetricsSink, error) {
		built++
		return &callOnlySink{}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	s, err := NewMetricsSink([]factory.ModuleConfig{{Type: "counting"}, {Type: "counting"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if built != 1 {
		t.Fatalf("expected one build, got %d", built)
	}
	if _, ok := s.(*callOnlySink); !ok {
		t.Fatalf("expected the single sink, got %T", s)
	}
	found := false
	for _, name := range SinkTypes() {
		found = found || name == "counting"
	}
	if !found {
		t.Fatalf("counting missing from %v", SinkTypes())
	}
}
