package metrics

import (
	"time"

	"github.com/kilianp07/regiondispatch/core/model"
)

// CallEvent describes a completed call.
type CallEvent struct {
	CallID       int64
	Scenario     string
	Category     string
	ZoneID       string
	Priority     model.Priority
	Closure      string
	Units        int
	Escalated    bool
	ResponseTime time.Duration
	Duration     time.Duration
	Time         time.Time
}

// MetricsSink records completed calls for observability purposes.
type MetricsSink interface {
	RecordCallCompleted(ev CallEvent) error
}

// AssignmentEvent describes one unit attached to a call.
type AssignmentEvent struct {
	CallID    int64
	UnitID    string
	Player    bool
	Priority  model.Priority
	Primary   bool
	Preempted bool
	Distance  float64
	Time      time.Time
}

// AssignmentRecorder records unit assignments.
type AssignmentRecorder interface {
	RecordAssignment(ev AssignmentEvent) error
}

// QueueDepthRecorder records the number of outstanding calls per tier.
type QueueDepthRecorder interface {
	RecordQueueDepth(depth map[model.Priority]int, at time.Time) error
}

// CrimeLevelEvent describes a crime level re-roll.
type CrimeLevelEvent struct {
	Period model.TimePeriod
	Level  model.CrimeLevel
	Time   time.Time
}

// CrimeLevelRecorder records crime level changes.
type CrimeLevelRecorder interface {
	RecordCrimeLevel(ev CrimeLevelEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordCallCompleted(CallEvent) error                      { return nil }
func (NopSink) RecordAssignment(AssignmentEvent) error                   { return nil }
func (NopSink) RecordQueueDepth(map[model.Priority]int, time.Time) error { return nil }
func (NopSink) RecordCrimeLevel(CrimeLevelEvent) error                   { return nil }
