// Package monitoring reports errors and recovered panics to Sentry.
package monitoring

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kilianp07/regiondispatch/config"
	coremon "github.com/kilianp07/regiondispatch/core/monitoring"
)

const serviceTag = "regiondispatch"

// NewSentryMonitor returns a Monitor reporting to the configured DSN. An
// empty DSN yields a NopMonitor.
func NewSentryMonitor(cfg config.SentryConfig) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	cfg.SetDefaults()
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		ServerName:       cfg.ServerName,
		SampleRate:       cfg.SampleRate,
		TracesSampleRate: cfg.TracesSampleRate,
	})
	if err != nil {
		return nil, err
	}
	scope := sentry.NewScope()
	scope.SetTag("service", serviceTag)
	for k, v := range cfg.Tags {
		scope.SetTag(k, v)
	}
	return &sentryMonitor{
		hub:   sentry.NewHub(client, scope),
		flush: time.Duration(cfg.FlushTimeoutMS) * time.Millisecond,
	}, nil
}

type sentryMonitor struct {
	hub   *sentry.Hub
	flush time.Duration
}

// CaptureException reports err with tags such as the module and call id
// added to a scope of its own.
func (s *sentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		s.hub.CaptureException(err)
	})
}

// Recover reports a panic in flight and re-panics once it is flushed.
func (s *sentryMonitor) Recover() {
	if r := recover(); r != nil {
		s.hub.Recover(r)
		s.hub.Flush(s.flush)
		panic(r)
	}
}

func (s *sentryMonitor) Flush(timeout time.Duration) {
	if timeout <= 0 {
		timeout = s.flush
	}
	s.hub.Flush(timeout)
}
