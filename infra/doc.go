// Package infra contains technical adapters: the MQTT and Kafka event
// publishers, the Prometheus and InfluxDB metrics sinks, the Sentry monitor
// and the zerolog logger. These packages depend only on interfaces defined
// in the core packages.
package infra
