package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/regiondispatch/core/metrics"
	"github.com/kilianp07/regiondispatch/core/model"
)

// PromSink records completed calls and assignments in Prometheus metrics.
type PromSink struct {
	completed    *prometheus.CounterVec
	response     *prometheus.HistogramVec
	duration     *prometheus.HistogramVec
	units        *prometheus.CounterVec
	distance     *prometheus.HistogramVec
	outstanding  *prometheus.GaugeVec
	crimeByPhase *prometheus.GaugeVec
}

// NewPromSink registers the sink metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Metrics
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calls_completed_total",
			Help: "Completed calls by zone, priority and closure",
		}, []string{"zone", "priority", "closure"}),
		response: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "call_response_seconds",
			Help:    "Simulation time between call creation and first arrival",
			Buckets: []float64{60, 120, 300, 600, 900, 1200, 1800, 3600},
		}, []string{"priority"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "call_duration_seconds",
			Help:    "Simulation time between call creation and completion",
			Buckets: []float64{300, 600, 1200, 1800, 3600, 7200},
		}, []string{"priority"}),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unit_assignments_total",
			Help: "Units attached to calls",
		}, []string{"unit_id", "primary"}),
		distance: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "unit_assignment_distance",
			Help:    "Straight-line distance between unit and call when assigned",
			Buckets: prometheus.ExponentialBuckets(50, 2, 8),
		}, []string{"priority"}),
		outstanding: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "calls_outstanding",
			Help: "Calls still needing units, per priority tier",
		}, []string{"priority"}),
		crimeByPhase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "region_crime_level",
			Help: "Crime level rolled for the current period",
		}, []string{"period"}),
	}
	var err error
	if s.completed, err = register(reg, s.completed); err != nil {
		return nil, err
	}
	if s.response, err = register(reg, s.response); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, s.duration); err != nil {
		return nil, err
	}
	if s.units, err = register(reg, s.units); err != nil {
		return nil, err
	}
	if s.distance, err = register(reg, s.distance); err != nil {
		return nil, err
	}
	if s.outstanding, err = register(reg, s.outstanding); err != nil {
		return nil, err
	}
	if s.crimeByPhase, err = register(reg, s.crimeByPhase); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordCallCompleted updates the completion counters and histograms.
func (s *PromSink) RecordCallCompleted(ev coremetrics.CallEvent) error {
	prio := ev.Priority.String()
	s.completed.WithLabelValues(ev.ZoneID, prio, ev.Closure).Inc()
	if ev.ResponseTime > 0 {
		s.response.WithLabelValues(prio).Observe(ev.ResponseTime.Seconds())
	}
	if ev.Duration > 0 {
		s.duration.WithLabelValues(prio).Observe(ev.Duration.Seconds())
	}
	return nil
}

// RecordAssignment counts the assignment and its distance.
func (s *PromSink) RecordAssignment(ev coremetrics.AssignmentEvent) error {
	primary := "false"
	if ev.Primary {
		primary = "true"
	}
	s.units.WithLabelValues(ev.UnitID, primary).Inc()
	s.distance.WithLabelValues(ev.Priority.String()).Observe(ev.Distance)
	return nil
}

// RecordQueueDepth sets the outstanding gauge for every tier.
func (s *PromSink) RecordQueueDepth(depth map[model.Priority]int, _ time.Time) error {
	for _, p := range model.Priorities {
		s.outstanding.WithLabelValues(p.String()).Set(float64(depth[p]))
	}
	return nil
}

// RecordCrimeLevel sets the crime level gauge of the period.
func (s *PromSink) RecordCrimeLevel(ev coremetrics.CrimeLevelEvent) error {
	s.crimeByPhase.WithLabelValues(ev.Period.String()).Set(float64(ev.Level))
	return nil
}
