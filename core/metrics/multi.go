package metrics

import (
	"errors"
	"time"

	"github.com/kilianp07/regiondispatch/core/model"
)

// MultiSink fans events out to several sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordCallCompleted forwards the event to every sink and joins the errors.
func (m *MultiSink) RecordCallCompleted(ev CallEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordCallCompleted(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordAssignment forwards assignments to sinks supporting them.
func (m *MultiSink) RecordAssignment(ev AssignmentEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(AssignmentRecorder); ok {
			if err := rec.RecordAssignment(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordQueueDepth forwards queue depth to sinks supporting it.
func (m *MultiSink) RecordQueueDepth(depth map[model.Priority]int, at time.Time) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(QueueDepthRecorder); ok {
			if err := rec.RecordQueueDepth(depth, at); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordCrimeLevel forwards crime level changes to sinks supporting them.
func (m *MultiSink) RecordCrimeLevel(ev CrimeLevelEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(CrimeLevelRecorder); ok {
			if err := rec.RecordCrimeLevel(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
