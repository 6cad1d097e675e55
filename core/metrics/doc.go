// Package metrics defines the sinks that observe dispatch activity. The
// engine always calls MetricsSink; optional recorder interfaces are
// detected with a type assertion so a sink only implements what it stores.
// Concrete Prometheus and InfluxDB sinks live in infra/metrics and register
// themselves with RegisterMetricsSink.
package metrics
