package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kilianp07/regiondispatch/config"
	coremon "github.com/kilianp07/regiondispatch/core/monitoring"
)

type memTransport struct {
	events []*sentry.Event
}

func (t *memTransport) Configure(sentry.ClientOptions) {}
func (t *memTransport) SendEvent(e *sentry.Event)      { t.events = append(t.events, e) }
func (t *memTransport) Flush(time.Duration) bool       { return true }

func TestNewSentryMonitorWithoutDSN(t *testing.T) {
	m, err := NewSentryMonitor(config.SentryConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := m.(coremon.NopMonitor); !ok {
		t.Fatalf("expected NopMonitor, got %T", m)
	}
}

func TestNewSentryMonitorInvalidDSN(t *testing.T) {
	if _, err := NewSentryMonitor(config.SentryConfig{DSN: "://bad"}); err == nil {
		t.Fatal("expected error for invalid DSN")
	}
}

func TestCaptureExceptionTags(t *testing.T) {
	tr := &memTransport{}
	client, err := sentry.NewClient(sentry.ClientOptions{Dsn: "https://key@example.com/1", SampleRate: 1, Transport: tr})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	scope := sentry.NewScope()
	scope.SetTag("service", serviceTag)
	m := &sentryMonitor{hub: sentry.NewHub(client, scope), flush: time.Second}

	m.CaptureException(errors.New("publish failed"), map[string]string{"module": "mqtt", "key": "call-4"})
	m.CaptureException(nil, nil)
	m.Flush(0)

	if len(tr.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(tr.events))
	}
	tags := tr.events[0].Tags
	if tags["service"] != serviceTag || tags["module"] != "mqtt" || tags["key"] != "call-4" {
		t.Fatalf("unexpected tags %v", tags)
	}
}
