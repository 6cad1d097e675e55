package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/regiondispatch/core/catalog"
	"github.com/kilianp07/regiondispatch/core/dispatch"
	"github.com/kilianp07/regiondispatch/core/events"
	"github.com/kilianp07/regiondispatch/core/model"
	"github.com/kilianp07/regiondispatch/core/monitoring"
)

// Run generates calls until ctx is cancelled or the generator disables
// itself. It sleeps a random delay within DelayRange between two calls and
// waits for the next period while generation is paused.
func (g *Generator) Run(ctx context.Context) {
	if g.Disabled() {
		g.log.Infof("generator disabled, not starting")
		return
	}
	g.log.Infof("generator started")
	for {
		wait := g.nextWait()
		timer := time.NewTimer(g.clock.Real(wait))
		select {
		case <-ctx.Done():
			timer.Stop()
			g.log.Infof("generator stopped")
			return
		case <-g.wake:
			timer.Stop()
			continue
		case <-timer.C:
		}
		if _, _, paused := g.DelayRange(); paused {
			continue
		}
		g.Cycle()
		if g.Disabled() {
			return
		}
	}
}

// nextWait picks the delay before the next call, or the time left in the
// period while paused.
func (g *Generator) nextWait() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		d := g.clock.UntilNextPeriod()
		if d <= 0 {
			d = time.Minute
		}
		return d
	}
	d := g.minDelay
	if g.maxDelay > g.minDelay {
		d += time.Duration(g.rnd.Int64N(int64(g.maxDelay-g.minDelay) + 1))
	}
	if until := g.clock.UntilNextPeriod(); until > 0 && d > until {
		d = until
	}
	generationInterval.Observe(d.Seconds())
	return d
}

// Cycle generates one call and hands it to the sink. Consecutive failures
// are counted; reaching MaxConsecutiveFailures disables the generator.
func (g *Generator) Cycle() error {
	if g.Disabled() {
		return ErrDisabled
	}
	var err error
	if perr := monitoring.Guard(g.currentMonitor(), g.log, "generator", func() { err = g.emitOne() }); perr != nil {
		err = perr
	}
	if errors.Is(err, catalog.ErrLocationInUse) {
		// Another caller reserved the drawn location first.
		g.log.Warnf("generation cycle lost its location: %v", err)
		return err
	}
	g.mu.Lock()
	if err == nil {
		g.failures = 0
		g.mu.Unlock()
		return nil
	}
	g.failures++
	failures := g.failures
	g.mu.Unlock()

	g.log.Errorf("generation cycle failed (%d in a row): %v", failures, err)
	if failures >= g.cfg.MaxConsecutiveFailures {
		g.disable(failures, err)
	}
	return err
}

// emitOne draws a call and queues it. A location taken between the draw and
// the reservation is redrawn once.
func (g *Generator) emitOne() error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var c *dispatch.Call
		c, err = g.GenerateCall()
		if err != nil {
			return err
		}
		if err = g.sink.AddCall(c); err == nil {
			callsGenerated.WithLabelValues(c.Priority.String()).Inc()
			return nil
		}
		if !errors.Is(err, catalog.ErrLocationInUse) {
			break
		}
	}
	return fmt.Errorf("queue call: %w", err)
}

func (g *Generator) currentMonitor() monitoring.Monitor {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.monitor
}

func (g *Generator) disable(failures int, cause error) {
	if !g.disabled.CompareAndSwap(false, true) {
		return
	}
	generatorEnabled.Set(0)
	err := fmt.Errorf("%w after %d consecutive failures: %w", ErrDisabled, failures, cause)
	g.log.Errorf("%v", err)
	g.mu.Lock()
	bus, mon := g.bus, g.monitor
	g.mu.Unlock()
	mon.CaptureException(err, map[string]string{"component": "generator"})
	if bus != nil {
		bus.Publish(events.GeneratorFault{Failures: failures, Reason: cause.Error(), At: g.clock.Now()})
	}
}

// FollowPeriods calls HandlePeriodChange for every period received until
// ctx is cancelled or the channel is closed.
func (g *Generator) FollowPeriods(ctx context.Context, periods <-chan model.TimePeriod) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-periods:
			if !ok {
				return
			}
			g.HandlePeriodChange(p)
		}
	}
}

// poke interrupts the current wait of Run so the new timing applies.
func (g *Generator) poke() {
	select {
	case g.wake <- struct{}{}:
	default:
	}
}
