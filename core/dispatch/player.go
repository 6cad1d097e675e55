package dispatch

import (
	"time"

	"github.com/kilianp07/regiondispatch/core/events"
	"github.com/kilianp07/regiondispatch/core/model"
)

// playerFreeLocked reports whether the player can take new work.
func (e *Engine) playerFreeLocked() bool {
	p := e.player
	if p == nil || p.removed || p.call != nil || p.Status != model.UnitAvailable {
		return false
	}
	return e.gate == nil || !e.gate.CalloutActive()
}

// AcceptCall accepts the call offered to the player.
func (e *Engine) AcceptCall() (model.CallInfo, error) {
	var info model.CallInfo
	err := e.do(func(now time.Time) error {
		c, err := e.offeredLocked()
		if err != nil {
			return err
		}
		e.acceptLocked(c, now)
		info = c.Info()
		return nil
	})
	return info, err
}

func (e *Engine) acceptLocked(c *Call, now time.Time) {
	c.offered = false
	if c.Status == model.CallDispatched || c.Status == model.CallWaiting {
		c.Status = model.CallAssigned
	}
	e.log.Infof("player accepted call %d", c.ID)
	e.emit(events.PlayerCallAccepted{Call: c.Info(), At: now})
}

// DeclineCall declines the call offered to the player. The player becomes
// Available and is never offered that call again.
func (e *Engine) DeclineCall() (model.CallInfo, error) {
	var info model.CallInfo
	err := e.do(func(now time.Time) error {
		c, err := e.offeredLocked()
		if err != nil {
			return err
		}
		c.DeclinedByPlayer = true
		e.detachLocked(e.player)
		e.player.setStatus(model.UnitAvailable, now)
		info = c.Info()
		e.log.Infof("player declined call %d", c.ID)
		e.emit(events.PlayerCallDeclined{Call: info, At: now})
		return nil
	})
	return info, err
}

func (e *Engine) offeredLocked() (*Call, error) {
	if e.player == nil {
		return nil, ErrNoPlayer
	}
	c := e.player.call
	if c == nil || !c.offered {
		return nil, ErrNoOffer
	}
	return c, nil
}

// InvokeCalloutForPlayer offers the most urgent suitable call to the idle
// player right away. Routine calls qualify here even though the tick never
// offers them.
func (e *Engine) InvokeCalloutForPlayer() (model.CallInfo, error) {
	var info model.CallInfo
	err := e.do(func(now time.Time) error {
		if e.player == nil {
			return ErrNoPlayer
		}
		if !e.playerFreeLocked() {
			return ErrPlayerBusy
		}
		pos := e.player.Position()
		for _, p := range model.Priorities {
			var best *Call
			bestDist := 0.0
			for _, c := range sortedCalls(e.queues[p]) {
				if c.DeclinedByPlayer || c.Status == model.CallCompleted {
					continue
				}
				d := pos.Distance(c.Location.Position)
				if best == nil || (best.NeedsMoreOfficers() == c.NeedsMoreOfficers() && d < bestDist) ||
					(!best.NeedsMoreOfficers() && c.NeedsMoreOfficers()) {
					best, bestDist = c, d
				}
			}
			if best != nil {
				e.nextToPlayer = false
				e.offerLocked(e.player, best, now)
				info = best.Info()
				return nil
			}
		}
		return ErrNoCallAvailable
	})
	return info, err
}

// InvokeNextCalloutForPlayer offers the next call added to the queue to the
// player, provided it is idle at that moment.
func (e *Engine) InvokeNextCalloutForPlayer() error {
	return e.do(func(time.Time) error {
		if e.player == nil {
			return ErrNoPlayer
		}
		e.nextToPlayer = true
		return nil
	})
}

// NextCalloutPending reports whether the next added call is earmarked for
// the player.
func (e *Engine) NextCalloutPending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextToPlayer
}
