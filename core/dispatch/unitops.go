package dispatch

import (
	"fmt"
	"time"

	"github.com/kilianp07/regiondispatch/core/events"
	"github.com/kilianp07/regiondispatch/core/model"
)

// sideTransitions lists the status changes hosts may signal directly.
// Dispatched and OnScene are only reached through assignment and arrival.
var sideTransitions = map[model.UnitStatus]map[model.UnitStatus]bool{
	model.UnitAvailable: {
		model.UnitBusy: true, model.UnitOnStop: true, model.UnitMealBreak: true,
		model.UnitReturningToStation: true, model.UnitEndingDuty: true,
	},
	model.UnitBusy: {
		model.UnitAvailable: true, model.UnitOnStop: true, model.UnitEndingDuty: true,
	},
	model.UnitOnStop: {
		model.UnitAvailable: true, model.UnitBusy: true, model.UnitEndingDuty: true,
	},
	model.UnitMealBreak: {
		model.UnitAvailable: true, model.UnitEndingDuty: true,
	},
	model.UnitReturningToStation: {
		model.UnitAvailable: true, model.UnitBusy: true, model.UnitOnStop: true,
		model.UnitMealBreak: true, model.UnitEndingDuty: true,
	},
	model.UnitDispatched: {model.UnitEndingDuty: true},
	model.UnitOnScene:    {model.UnitEndingDuty: true},
	model.UnitEndingDuty: {model.UnitAvailable: true},
}

// CanTransition reports whether a host may move a unit from one status to
// another.
func CanTransition(from, to model.UnitStatus) bool { return sideTransitions[from][to] }

// AddUnit puts a unit on the roster. At most one player unit may be on duty.
func (e *Engine) AddUnit(u *Unit) error {
	return e.do(func(now time.Time) error {
		if u == nil {
			return ErrNilUnit
		}
		if u.removed {
			return ErrUnitRemoved
		}
		if _, ok := e.byID[u.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateUnit, u.ID)
		}
		if u.IsPlayer() {
			if e.player != nil {
				return ErrPlayerExists
			}
			e.player = u
		}
		if u.LastStatusChange.IsZero() {
			u.LastStatusChange = now
		}
		e.units = append(e.units, u)
		e.byID[u.ID] = u
		e.log.Infof("unit %s (%s) on duty", u.ID, u.Kind)
		return nil
	})
}

// RemoveUnit takes a unit off the roster, detaching it from its call.
// Removing a unit twice is a no-op.
func (e *Engine) RemoveUnit(u *Unit) error {
	return e.do(func(now time.Time) error {
		if u == nil {
			e.log.Errorf("remove unit: %v", ErrNilUnit)
			return ErrNilUnit
		}
		e.removeLocked(u, now)
		return nil
	})
}

func (e *Engine) removeLocked(u *Unit, now time.Time) {
	if u.removed || e.byID[u.ID] != u {
		return
	}
	e.detachLocked(u)
	u.removed = true
	delete(e.byID, u.ID)
	for i, ru := range e.units {
		if ru == u {
			e.units = append(e.units[:i:i], e.units[i+1:]...)
			break
		}
	}
	if e.player == u {
		e.player = nil
		e.nextToPlayer = false
	}
	e.log.Infof("unit %s removed", u.ID)
	e.emit(events.UnitRemoved{Unit: u.Info(), At: now})
}

// AssignUnit sends u to c outside the regular tick. The player is always
// attached as primary. A call that already has its required units only
// takes a new primary, which displaces the current one unless that is the
// player; otherwise ErrCallFull is returned.
func (e *Engine) AssignUnit(u *Unit, c *Call, forcePrimary bool) error {
	return e.do(func(now time.Time) error {
		if err := e.checkUnitLocked(u); err != nil {
			return err
		}
		if c == nil {
			e.log.Errorf("assign unit %s: %v", u.ID, ErrNilCall)
			return ErrNilCall
		}
		if e.calls[c.ID] != c {
			return fmt.Errorf("%w: %d", ErrUnknownCall, c.ID)
		}
		if u.call == c {
			if forcePrimary {
				c.primary = u
			}
			return nil
		}
		if !c.NeedsMoreOfficers() {
			if err := e.makeRoomLocked(u, c, forcePrimary, now); err != nil {
				return err
			}
		}
		e.attachLocked(u, c, forcePrimary, now)
		return nil
	})
}

func (e *Engine) makeRoomLocked(u *Unit, c *Call, forcePrimary bool, now time.Time) error {
	old := c.primary
	if !(forcePrimary || u.IsPlayer()) || old == nil || old.IsPlayer() {
		return fmt.Errorf("%w: call %d has %d of %d units", ErrCallFull, c.ID, len(c.attached), c.RequiredUnits())
	}
	e.detachLocked(old)
	from := old.Status
	old.setStatus(model.UnitAvailable, now)
	e.log.Infof("unit %s displaced from call %d by %s", old.ID, c.ID, u.ID)
	e.emit(events.UnitStatusChanged{Unit: old.Info(), From: from.String(), At: now})
	return nil
}

// UnitArrived puts the unit and its call on scene. For the player this also
// accepts a pending offer.
func (e *Engine) UnitArrived(u *Unit) error {
	return e.do(func(now time.Time) error {
		if err := e.checkUnitLocked(u); err != nil {
			return err
		}
		if u.call == nil {
			e.log.Errorf("unit %s arrived: %v", u.ID, ErrNoCall)
			return ErrNoCall
		}
		e.arriveLocked(u, now)
		return nil
	})
}

func (e *Engine) arriveLocked(u *Unit, now time.Time) {
	c := u.call
	if u.IsPlayer() && c.offered {
		e.acceptLocked(c, now)
	}
	u.setStatus(model.UnitOnScene, now)
	u.behavior.Arrived(now)
	if c.Status != model.CallOnScene {
		c.Status = model.CallOnScene
		c.ArrivedAt = now
	}
	e.log.Debugf("unit %s on scene at call %d", u.ID, c.ID)
	e.emit(events.UnitArrived{Unit: u.Info(), CallID: c.ID, At: now})
}

// UnitCompleted ends the unit's work on its call. The primary completes the
// whole call; a secondary unit is released alone.
func (e *Engine) UnitCompleted(u *Unit, closure events.Closure) error {
	return e.do(func(now time.Time) error {
		if err := e.checkUnitLocked(u); err != nil {
			return err
		}
		if u.call == nil {
			e.log.Errorf("unit %s completed: %v", u.ID, ErrNoCall)
			return ErrNoCall
		}
		if closure == "" {
			closure = events.ClosureResolved
		}
		e.unitCompletedLocked(u, closure, now)
		return nil
	})
}

func (e *Engine) unitCompletedLocked(u *Unit, closure events.Closure, now time.Time) {
	c := u.call
	if c.primary == u {
		e.completeLocked(c, closure, now, nil)
		return
	}
	e.detachLocked(u)
	e.releaseLocked(u, now)
	e.log.Debugf("unit %s cleared call %d", u.ID, c.ID)
}

// DetachUnit removes the unit from its call without completing the call.
// The unit becomes Available.
func (e *Engine) DetachUnit(u *Unit) error {
	return e.do(func(now time.Time) error {
		if err := e.checkUnitLocked(u); err != nil {
			return err
		}
		if u.call == nil {
			return ErrNoCall
		}
		c := e.detachLocked(u)
		u.setStatus(model.UnitAvailable, now)
		e.log.Infof("unit %s detached from call %d", u.ID, c.ID)
		return nil
	})
}

// SetUnitStatus applies a host signal such as a traffic stop or meal break.
// Assigned units only accept EndingDuty, which detaches them first.
func (e *Engine) SetUnitStatus(u *Unit, s model.UnitStatus) error {
	return e.do(func(now time.Time) error {
		if err := e.checkUnitLocked(u); err != nil {
			return err
		}
		if u.Status == s {
			return nil
		}
		if !CanTransition(u.Status, s) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, u.Status, s)
		}
		if u.call != nil {
			if s != model.UnitEndingDuty {
				return ErrUnitAssigned
			}
			e.detachLocked(u)
		}
		from := u.Status
		u.setStatus(s, now)
		e.emit(events.UnitStatusChanged{Unit: u.Info(), From: from.String(), At: now})
		return nil
	})
}

func (e *Engine) checkUnitLocked(u *Unit) error {
	if u == nil {
		e.log.Errorf("%v", ErrNilUnit)
		return ErrNilUnit
	}
	if u.removed || e.byID[u.ID] != u {
		return fmt.Errorf("%w: %s", ErrUnitRemoved, u.ID)
	}
	return nil
}

// Units returns a snapshot of the roster.
func (e *Engine) Units() []model.UnitInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.UnitInfo, 0, len(e.units))
	for _, u := range e.units {
		out = append(out, u.Info())
	}
	return out
}

// Unit returns the unit with the given id, or nil.
func (e *Engine) Unit(id string) *Unit {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.byID[id]
}

// Player returns the player unit, or nil when none is on duty.
func (e *Engine) Player() *Unit {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.player
}
