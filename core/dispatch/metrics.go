package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	tickDuration   prometheus.Histogram
	ticksSkipped   prometheus.Counter
	callsAdded     *prometheus.CounterVec
	callsCompleted *prometheus.CounterVec
	assignments    *prometheus.CounterVec
	preemptions    *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec
)

type collectors struct {
	tickDuration   prometheus.Histogram
	ticksSkipped   prometheus.Counter
	callsAdded     *prometheus.CounterVec
	callsCompleted *prometheus.CounterVec
	assignments    *prometheus.CounterVec
	preemptions    *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec
}

// newCollectors creates new metric collectors.
func newCollectors() collectors {
	return collectors{
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_tick_duration_seconds",
			Help:    "Duration of one assignment tick",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
		ticksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_ticks_skipped_total",
			Help: "Ticks skipped because the previous tick was still running",
		}),
		callsAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_calls_added_total",
			Help: "Number of calls queued",
		}, []string{"priority"}),
		callsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_calls_completed_total",
			Help: "Number of calls completed",
		}, []string{"closure"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_unit_assignments_total",
			Help: "Number of units attached to calls",
		}, []string{"priority", "preempted"}),
		preemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_preemptions_total",
			Help: "Units pulled off a call, by outcome for that call",
		}, []string{"outcome"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dispatch_queue_depth",
			Help: "Active calls per priority tier",
		}, []string{"priority"}),
	}
}

func (c collectors) install() {
	tickDuration = c.tickDuration
	ticksSkipped = c.ticksSkipped
	callsAdded = c.callsAdded
	callsCompleted = c.callsCompleted
	assignments = c.assignments
	preemptions = c.preemptions
	queueDepth = c.queueDepth
}

func init() {
	newCollectors().install()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(tickDuration, ticksSkipped, callsAdded, callsCompleted, assignments, preemptions, queueDepth)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	newCollectors().install()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
