package generator

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	callsGenerated     *prometheus.CounterVec
	generationFailures *prometheus.CounterVec
	generationInterval prometheus.Histogram
	crimeLevel         prometheus.Gauge
	generatorEnabled   prometheus.Gauge
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, prometheus.Histogram, prometheus.Gauge, prometheus.Gauge) {
	gen := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generator_calls_generated_total",
			Help: "Number of calls generated and queued",
		},
		[]string{"priority"},
	)
	fail := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generator_attempt_failures_total",
			Help: "Failed generation attempts by reason",
		},
		[]string{"reason"},
	)
	interval := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "generator_interval_seconds",
			Help:    "Simulated delay drawn between two calls",
			Buckets: prometheus.ExponentialBuckets(30, 2, 10),
		},
	)
	level := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "generator_crime_level",
			Help: "Current crime level, 0 (none) to 5 (very high)",
		},
	)
	enabled := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "generator_enabled",
			Help: "1 while the generator runs, 0 once it disabled itself",
		},
	)
	enabled.Set(1)
	return gen, fail, interval, level, enabled
}

func init() {
	callsGenerated, generationFailures, generationInterval, crimeLevel, generatorEnabled = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers generator metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(callsGenerated, generationFailures, generationInterval, crimeLevel, generatorEnabled)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	callsGenerated, generationFailures, generationInterval, crimeLevel, generatorEnabled = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
