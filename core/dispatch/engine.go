// Package dispatch holds the call queue, the unit roster and the assignment
// algorithm matching units to outstanding calls.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/regiondispatch/core/calllog"
	"github.com/kilianp07/regiondispatch/core/catalog"
	"github.com/kilianp07/regiondispatch/core/events"
	"github.com/kilianp07/regiondispatch/core/logger"
	"github.com/kilianp07/regiondispatch/core/metrics"
	"github.com/kilianp07/regiondispatch/core/model"
	"github.com/kilianp07/regiondispatch/core/monitoring"
	"github.com/kilianp07/regiondispatch/internal/eventbus"
)

// Clock supplies simulation time.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// WorkGate reports whether the player is busy with host-side work, such as
// a callout already in progress, and must not receive new calls.
type WorkGate interface {
	CalloutActive() bool
}

// Synthesizer builds a call for a named scenario on demand.
type Synthesizer interface {
	Synthesize(scenario string) (*Call, error)
}

// Engine owns the four priority queues and the unit roster. Every read or
// mutation of either happens under one mutex; events raised while it is held
// are buffered and published once it is released.
type Engine struct {
	cfg   Config
	res   *catalog.Reservations
	clock Clock
	log   logger.Logger
	bus   *eventbus.Bus[events.Event]

	mu           sync.Mutex
	queues       map[model.Priority][]*Call
	calls        map[int64]*Call
	units        []*Unit
	byID         map[string]*Unit
	player       *Unit
	seq          int64
	nextToPlayer bool
	pending      []events.Event

	sink    metrics.MetricsSink
	store   calllog.Store
	synth   Synthesizer
	gate    WorkGate
	monitor monitoring.Monitor

	ticking atomic.Bool
}

// NewEngine creates an engine. A nil clock uses wall time and a nil bus
// gets a private one.
func NewEngine(cfg Config, res *catalog.Reservations, clock Clock, log logger.Logger, bus *eventbus.Bus[events.Event]) (*Engine, error) {
	if res == nil {
		return nil, fmt.Errorf("reservations cannot be nil")
	}
	if log == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if clock == nil {
		clock = wallClock{}
	}
	if bus == nil {
		bus = eventbus.New[events.Event]()
	}
	cfg.SetDefaults()
	return &Engine{
		cfg:     cfg,
		res:     res,
		clock:   clock,
		log:     log,
		bus:     bus,
		queues:  make(map[model.Priority][]*Call, len(model.Priorities)),
		calls:   make(map[int64]*Call),
		byID:    make(map[string]*Unit),
		sink:    metrics.NopSink{},
		monitor: monitoring.NopMonitor{},
	}, nil
}

// Events returns the bus lifecycle notifications are published on.
func (e *Engine) Events() *eventbus.Bus[events.Event] { return e.bus }

// SetMetrics configures the sink receiving completed calls. Sinks that also
// implement the optional recorders of core/metrics receive those too.
func (e *Engine) SetMetrics(sink metrics.MetricsSink) {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	e.mu.Lock()
	e.sink = sink
	e.mu.Unlock()
}

// SetCallLog configures the store completed calls are appended to.
func (e *Engine) SetCallLog(store calllog.Store) {
	e.mu.Lock()
	e.store = store
	e.mu.Unlock()
}

// SetSynthesizer configures on-demand call creation for RequestCallInfo.
func (e *Engine) SetSynthesizer(s Synthesizer) {
	e.mu.Lock()
	e.synth = s
	e.mu.Unlock()
}

// SetWorkGate configures the host signal telling whether the player is free.
func (e *Engine) SetWorkGate(g WorkGate) {
	e.mu.Lock()
	e.gate = g
	e.mu.Unlock()
}

// SetMonitor configures error reporting for recovered panics.
func (e *Engine) SetMonitor(m monitoring.Monitor) {
	if m == nil {
		m = monitoring.NopMonitor{}
	}
	e.mu.Lock()
	e.monitor = m
	e.mu.Unlock()
}

// outputs are the collaborators used after the lock is released.
type outputs struct {
	sink    metrics.MetricsSink
	store   calllog.Store
	monitor monitoring.Monitor
}

func (e *Engine) do(fn func(now time.Time) error) error {
	return e.doAt(time.Time{}, fn)
}

// doAt runs fn under the lock and publishes the events it raised once the
// lock is released. A zero now reads the clock.
func (e *Engine) doAt(now time.Time, fn func(now time.Time) error) error {
	pending, out, err := e.locked(now, fn)
	e.flush(pending, out)
	return err
}

func (e *Engine) locked(now time.Time, fn func(now time.Time) error) (pending []events.Event, out outputs, err error) {
	e.mu.Lock()
	defer func() {
		pending = e.pending
		e.pending = nil
		out = outputs{sink: e.sink, store: e.store, monitor: e.monitor}
		e.mu.Unlock()
	}()
	if now.IsZero() {
		now = e.clock.Now()
	}
	err = fn(now)
	return
}

func (e *Engine) emit(ev events.Event) { e.pending = append(e.pending, ev) }

func (e *Engine) flush(pending []events.Event, out outputs) {
	if len(pending) == 0 {
		return
	}
	e.bus.PublishAll(pending)
	for _, ev := range pending {
		switch ev := ev.(type) {
		case events.CallCompleted:
			e.recordCompletion(ev, out)
		case events.UnitAssigned:
			if rec, ok := out.sink.(metrics.AssignmentRecorder); ok {
				err := rec.RecordAssignment(metrics.AssignmentEvent{
					CallID:    ev.CallID,
					UnitID:    ev.Unit.ID,
					Player:    ev.Unit.Player,
					Priority:  ev.Priority,
					Primary:   ev.Primary,
					Preempted: ev.Preempted,
					Distance:  ev.Distance,
					Time:      ev.At,
				})
				if err != nil {
					e.log.Warnf("record assignment: %v", err)
				}
			}
		}
	}
}

func (e *Engine) recordCompletion(ev events.CallCompleted, out outputs) {
	rec := calllog.FromCallInfo(ev.Call)
	if out.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := out.store.Append(ctx, rec); err != nil {
			e.log.Errorf("call log append for call %d: %v", ev.Call.ID, err)
			out.monitor.CaptureException(err, map[string]string{"component": "calllog"})
		}
		cancel()
	}
	err := out.sink.RecordCallCompleted(metrics.CallEvent{
		CallID:       ev.Call.ID,
		Scenario:     ev.Call.Scenario,
		Category:     ev.Call.Category,
		ZoneID:       ev.Call.ZoneID,
		Priority:     ev.Call.Priority,
		Closure:      string(ev.Closure),
		Units:        len(ev.Call.Units),
		Escalated:    ev.Call.Escalated,
		ResponseTime: rec.ResponseTime(),
		Duration:     ev.Call.CompletedAt.Sub(ev.Call.CreatedAt),
		Time:         ev.At,
	})
	if err != nil {
		e.log.Warnf("record call completion: %v", err)
	}
}

// AddCall queues a call and reserves its location. A call without an id
// receives the next sequence number.
func (e *Engine) AddCall(c *Call) error {
	return e.do(func(now time.Time) error { return e.addLocked(c, now) })
}

func (e *Engine) addLocked(c *Call, now time.Time) error {
	if c == nil {
		e.log.Errorf("add call: %v", ErrNilCall)
		return ErrNilCall
	}
	if c.Location == nil {
		e.log.Errorf("add call %d: %v", c.ID, ErrNoLocation)
		return ErrNoLocation
	}
	if !c.Priority.Valid() {
		e.log.Errorf("add call %d: priority %d: %v", c.ID, c.Priority, ErrInvalidPriority)
		return ErrInvalidPriority
	}
	if c.Status == model.CallCompleted {
		return ErrCallCompleted
	}
	id := c.ID
	if id == 0 {
		id = e.seq + 1
	} else if _, ok := e.calls[id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateCall, id)
	}
	if err := e.res.Reserve(c.Location.ID, id); err != nil {
		e.log.Errorf("add call %d: %v", id, err)
		return err
	}
	c.ID = id
	if id > e.seq {
		e.seq = id
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.OriginalPriority == 0 {
		c.OriginalPriority = c.Priority
	}
	c.Status = model.CallWaiting
	e.calls[c.ID] = c
	e.queues[c.Priority] = append(e.queues[c.Priority], c)
	callsAdded.WithLabelValues(c.Priority.String()).Inc()
	e.log.Infof("call %d added: %s in %s (%s)", c.ID, scenarioName(c), zoneID(c), c.Priority)
	e.emit(events.CallAdded{Call: c.Info(), At: now})

	if e.nextToPlayer && e.playerFreeLocked() {
		e.nextToPlayer = false
		e.offerLocked(e.player, c, now)
	}
	return nil
}

// CompleteCall removes the call from its queue, releases its location and
// frees every attached unit.
func (e *Engine) CompleteCall(c *Call, closure events.Closure) error {
	return e.do(func(now time.Time) error {
		if c == nil {
			e.log.Errorf("complete call: %v", ErrNilCall)
			return ErrNilCall
		}
		if c.Status == model.CallCompleted {
			return ErrCallCompleted
		}
		if e.calls[c.ID] != c {
			return fmt.Errorf("%w: %d", ErrUnknownCall, c.ID)
		}
		if closure == "" {
			closure = events.ClosureResolved
		}
		e.completeLocked(c, closure, now, nil)
		return nil
	})
}

// completeLocked finishes c. keep is a unit being moved to another call by
// preemption; it is detached but not released.
func (e *Engine) completeLocked(c *Call, closure events.Closure, now time.Time, keep *Unit) {
	e.removeFromQueueLocked(c)
	delete(e.calls, c.ID)
	e.res.Release(c.Location.ID)

	c.Status = model.CallCompleted
	c.Closure = closure
	c.CompletedAt = now
	c.offered = false
	info := c.Info()
	playerPrimary := c.primary != nil && c.primary.IsPlayer()

	for _, u := range c.attached {
		u.call = nil
		if u != keep && !u.removed {
			e.releaseLocked(u, now)
		}
	}
	c.attached = nil
	c.primary = nil

	callsCompleted.WithLabelValues(string(closure)).Inc()
	e.log.Infof("call %d completed (%s)", c.ID, closure)
	e.emit(events.CallCompleted{Call: info, Closure: closure, At: now})
	if playerPrimary {
		e.emit(events.PlayerCallCompleted{Call: info, Closure: closure, At: now})
	}
}

// releaseLocked moves a unit that just left its call to its idle status.
func (e *Engine) releaseLocked(u *Unit, now time.Time) {
	st := u.behavior.Released(now)
	if u.IsPlayer() {
		st = model.UnitAvailable
	}
	u.setStatus(st, now)
}

func (e *Engine) removeFromQueueLocked(c *Call) {
	q := e.queues[c.Priority]
	for i, qc := range q {
		if qc == c {
			e.queues[c.Priority] = append(q[:i:i], q[i+1:]...)
			return
		}
	}
}

// EscalateCall raises the priority of an active call and moves it to the
// matching queue. Priorities never go down.
func (e *Engine) EscalateCall(c *Call, p model.Priority) error {
	return e.do(func(now time.Time) error {
		if c == nil {
			return ErrNilCall
		}
		if e.calls[c.ID] != c {
			return fmt.Errorf("%w: %d", ErrUnknownCall, c.ID)
		}
		if !p.Valid() {
			return ErrInvalidPriority
		}
		if !p.Outranks(c.Priority) {
			return fmt.Errorf("%w: %s to %s", ErrNotEscalation, c.Priority, p)
		}
		from := c.Priority
		e.removeFromQueueLocked(c)
		c.Priority = p
		c.Escalated = true
		e.queues[p] = append(e.queues[p], c)
		e.log.Infof("call %d escalated from %s to %s", c.ID, from, p)
		e.emit(events.CallEscalated{Call: c.Info(), From: from, At: now})
		return nil
	})
}

// Tick advances unit timers and assigns units to outstanding calls. It is
// not re-entrant: a call made while another tick runs returns immediately.
func (e *Engine) Tick(now time.Time) {
	if !e.ticking.CompareAndSwap(false, true) {
		ticksSkipped.Inc()
		return
	}
	defer e.ticking.Store(false)
	start := time.Now()
	var depth map[model.Priority]int
	err := e.doAt(now, func(now time.Time) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("tick panic: %v", r)
			}
		}()
		e.pollUnitsLocked(now)
		e.assignLocked(now)
		depth = e.depthLocked()
		return nil
	})
	tickDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		e.log.Errorf("%v", err)
		e.mu.Lock()
		mon := e.monitor
		e.mu.Unlock()
		mon.CaptureException(err, map[string]string{"component": "dispatch"})
		return
	}
	e.recordDepth(depth, now)
}

func (e *Engine) depthLocked() map[model.Priority]int {
	depth := make(map[model.Priority]int, len(model.Priorities))
	for _, p := range model.Priorities {
		depth[p] = len(e.queues[p])
	}
	return depth
}

func (e *Engine) recordDepth(depth map[model.Priority]int, now time.Time) {
	for p, n := range depth {
		queueDepth.WithLabelValues(p.String()).Set(float64(n))
	}
	e.mu.Lock()
	sink := e.sink
	e.mu.Unlock()
	if rec, ok := sink.(metrics.QueueDepthRecorder); ok {
		if err := rec.RecordQueueDepth(depth, now); err != nil {
			e.log.Warnf("record queue depth: %v", err)
		}
	}
}

// Run ticks at the configured interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	t := time.NewTicker(e.cfg.TickInterval())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.Tick(e.clock.Now())
		}
	}
}

// EndDuty cancels every active call and removes every unit.
func (e *Engine) EndDuty() {
	_ = e.do(func(now time.Time) error {
		for _, p := range model.Priorities {
			for _, c := range append([]*Call(nil), e.queues[p]...) {
				e.completeLocked(c, events.ClosureCancelled, now, nil)
			}
		}
		for _, u := range append([]*Unit(nil), e.units...) {
			e.removeLocked(u, now)
		}
		e.nextToPlayer = false
		return nil
	})
}

// GetCallList returns the active calls of a tier, oldest first.
func (e *Engine) GetCallList(p model.Priority) []model.CallInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	calls := sortedCalls(e.queues[p])
	out := make([]model.CallInfo, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Info())
	}
	return out
}

// GetCallCount returns the number of active calls across all tiers.
func (e *Engine) GetCallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// QueueDepth returns the number of active calls per tier.
func (e *Engine) QueueDepth() map[model.Priority]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.depthLocked()
}

// CallInfo returns a snapshot of an active call.
func (e *Engine) CallInfo(id int64) (model.CallInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.calls[id]
	if !ok {
		return model.CallInfo{}, false
	}
	return c.Info(), true
}

// Call returns the active call with the given id for use with the
// lifecycle methods, or nil.
func (e *Engine) Call(id int64) *Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[id]
}

// RequestCallInfo returns the active call of the named scenario nearest to
// pos. When there is none a call is synthesized and queued.
func (e *Engine) RequestCallInfo(scenario string, pos model.Position) (model.CallInfo, error) {
	e.mu.Lock()
	var best *Call
	bestDist := 0.0
	for _, c := range e.calls {
		if c.Scenario == nil || c.Scenario.Name != scenario || c.Status == model.CallCompleted {
			continue
		}
		d := pos.Distance(c.Location.Position)
		if best == nil || d < bestDist || (d == bestDist && c.ID < best.ID) {
			best, bestDist = c, d
		}
	}
	synth := e.synth
	if best != nil {
		info := best.Info()
		e.mu.Unlock()
		return info, nil
	}
	e.mu.Unlock()

	if synth == nil {
		return model.CallInfo{}, ErrNoSynthesizer
	}
	c, err := synth.Synthesize(scenario)
	if err != nil {
		return model.CallInfo{}, fmt.Errorf("synthesize %s: %w", scenario, err)
	}
	var info model.CallInfo
	err = e.do(func(now time.Time) error {
		if err := e.addLocked(c, now); err != nil {
			return err
		}
		info = c.Info()
		return nil
	})
	return info, err
}

// sortedCalls orders calls by priority, creation time and id.
func sortedCalls(calls []*Call) []*Call {
	out := append([]*Call(nil), calls...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

func scenarioName(c *Call) string {
	if c.Scenario == nil {
		return "unknown"
	}
	return c.Scenario.Name
}

func zoneID(c *Call) string {
	if c.Zone != nil {
		return c.Zone.ID
	}
	return c.Location.ZoneID
}

// IsLifecycleError reports whether err is one of the sentinel errors returned
// for invalid lifecycle requests rather than an internal failure.
func IsLifecycleError(err error) bool {
	for _, target := range []error{
		ErrNilCall, ErrNilUnit, ErrNoLocation, ErrInvalidPriority, ErrUnknownCall,
		ErrDuplicateCall, ErrCallCompleted, ErrNoCall, ErrCallFull, ErrUnitRemoved, ErrDuplicateUnit,
		ErrUnitAssigned, ErrInvalidTransition, ErrNotEscalation, ErrNoPlayer,
		ErrPlayerExists, ErrPlayerBusy, ErrNoOffer, ErrNoCallAvailable, catalog.ErrLocationInUse,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
