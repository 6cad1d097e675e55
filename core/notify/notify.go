// Package notify forwards lifecycle events from the engine bus to an
// external broker.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/regiondispatch/core/events"
	"github.com/kilianp07/regiondispatch/core/logger"
	"github.com/kilianp07/regiondispatch/core/monitoring"
)

// Envelope is the wire form of an event.
type Envelope struct {
	ID         string          `json:"id"`
	Event      string          `json:"event"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Publisher delivers envelopes to a broker.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// Wrap builds the envelope of ev. The key groups events of one call, or of
// one unit when no call is involved.
func Wrap(ev events.Event) (Envelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", ev.Name(), err)
	}
	return Envelope{
		ID:         uuid.NewString(),
		Event:      ev.Name(),
		Key:        key(ev),
		OccurredAt: ev.OccurredAt(),
		Payload:    payload,
	}, nil
}

func key(ev events.Event) string {
	switch e := ev.(type) {
	case events.CallAdded:
		return callKey(e.Call.ID)
	case events.CallCompleted:
		return callKey(e.Call.ID)
	case events.CallEscalated:
		return callKey(e.Call.ID)
	case events.PlayerCallOffered:
		return callKey(e.Call.ID)
	case events.PlayerCallAccepted:
		return callKey(e.Call.ID)
	case events.PlayerCallDeclined:
		return callKey(e.Call.ID)
	case events.PlayerCallCompleted:
		return callKey(e.Call.ID)
	case events.UnitAssigned:
		return callKey(e.CallID)
	case events.UnitArrived:
		return callKey(e.CallID)
	case events.UnitStatusChanged:
		return "unit-" + e.Unit.ID
	case events.UnitRemoved:
		return "unit-" + e.Unit.ID
	default:
		return ev.Name()
	}
}

func callKey(id int64) string { return "call-" + strconv.FormatInt(id, 10) }

// Forwarder publishes every event read from a bus subscription.
type Forwarder struct {
	pub     Publisher
	log     logger.Logger
	mon     monitoring.Monitor
	timeout time.Duration
	filter  map[string]bool
}

// NewForwarder returns a forwarder for pub. When names is not empty only
// those events are published.
func NewForwarder(pub Publisher, log logger.Logger, mon monitoring.Monitor, timeout time.Duration, names ...string) (*Forwarder, error) {
	if pub == nil {
		return nil, fmt.Errorf("publisher cannot be nil")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	f := &Forwarder{pub: pub, log: logger.OrNop(log), mon: monitoring.OrNop(mon), timeout: timeout}
	if len(names) > 0 {
		f.filter = make(map[string]bool, len(names))
		for _, n := range names {
			f.filter[n] = true
		}
	}
	return f, nil
}

// Forward publishes one event. Events outside the filter are skipped.
func (f *Forwarder) Forward(ctx context.Context, ev events.Event) error {
	if f.filter != nil && !f.filter[ev.Name()] {
		return nil
	}
	env, err := Wrap(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	if err := f.pub.Publish(ctx, env); err != nil {
		published.WithLabelValues(env.Event, "error").Inc()
		return fmt.Errorf("publish %s: %w", env.Event, err)
	}
	published.WithLabelValues(env.Event, "ok").Inc()
	return nil
}

// Run forwards events from sub until ctx is cancelled or sub is closed.
// Failures are logged and reported; they never stop the loop.
func (f *Forwarder) Run(ctx context.Context, sub <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			var err error
			if gerr := monitoring.Guard(f.mon, f.log, "notifier", func() { err = f.Forward(ctx, ev) }); gerr != nil {
				continue
			}
			if err != nil {
				f.log.Warnf("%v", err)
				f.mon.CaptureException(err, map[string]string{"component": "notifier", "event": ev.Name()})
			}
		}
	}
}
