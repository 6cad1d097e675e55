package metrics

import (
	"fmt"

	"github.com/kilianp07/regiondispatch/core/factory"
)

// Config lists the sinks fed by the engine and the generator.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PrometheusAddr serves /metrics on its own listener when the status API
	// is disabled.
	PrometheusAddr string `json:"prometheus_addr"`
}

var sinkRegistry = factory.NewRegistry[MetricsSink]()

// RegisterMetricsSink adds a metrics sink factory identified by name.
func RegisterMetricsSink(name string, f factory.Factory[MetricsSink]) error {
	return sinkRegistry.Register(name, f)
}

// SinkTypes returns the registered sink names.
func SinkTypes() []string { return sinkRegistry.Types() }

// NewMetricsSink builds every configured sink. No sink yields a NopSink and
// several are combined in a MultiSink. A type listed twice is built once.
func NewMetricsSink(cfgs []factory.ModuleConfig) (MetricsSink, error) {
	var sinks []MetricsSink
	seen := make(map[string]bool, len(cfgs))
	for i, c := range cfgs {
		if seen[c.Type] {
			continue
		}
		seen[c.Type] = true
		s, err := sinkRegistry.Create(c)
		if err != nil {
			return nil, fmt.Errorf("metrics.sinks[%d]: %w", i, err)
		}
		sinks = append(sinks, s)
	}
	switch len(sinks) {
	case 0:
		return NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return NewMultiSink(sinks...), nil
	}
}
