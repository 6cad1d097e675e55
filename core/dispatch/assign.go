package dispatch

import (
	"sort"
	"strconv"
	"time"

	"github.com/kilianp07/regiondispatch/core/events"
	"github.com/kilianp07/regiondispatch/core/model"
)

// candidate is a unit considered for a call together with its distance.
type candidate struct {
	unit *Unit
	dist float64
}

// assignLocked runs one assignment pass over every tier, most urgent first.
// A unit is assigned at most once per pass.
func (e *Engine) assignLocked(now time.Time) int {
	used := make(map[*Unit]bool)
	assigned := 0
	for _, tier := range model.Priorities {
		calls := e.outstandingLocked(tier)
		if len(calls) == 0 {
			continue
		}
		for _, c := range calls {
			need := c.RequiredUnits() - len(c.attached)
			if need <= 0 {
				continue
			}
			chosen := e.selectLocked(c, tier, need, used)
			if len(chosen) == 0 {
				continue
			}
			if player := playerIn(chosen); player != nil {
				used[player.unit] = true
				e.offerLocked(player.unit, c, now)
				assigned++
				continue
			}
			for _, cand := range chosen {
				used[cand.unit] = true
				e.attachLocked(cand.unit, c, false, now)
				assigned++
			}
		}
	}
	return assigned
}

// outstandingLocked returns the calls of a tier that still need units,
// oldest first. Calls awaiting the player's answer stay in the set so the
// rest of their requirement is filled on later ticks.
func (e *Engine) outstandingLocked(tier model.Priority) []*Call {
	var out []*Call
	for _, c := range e.queues[tier] {
		if c.Status == model.CallCompleted || !c.NeedsMoreOfficers() {
			continue
		}
		out = append(out, c)
	}
	return sortedCalls(out)
}

// eligible applies the tier rules. Tiers 1 and 2 may pull units from side
// states and from calls of tier 3 or 4; tiers 3 and 4 only take idle units.
func eligible(u *Unit, tier model.Priority) bool {
	if u.removed {
		return false
	}
	if tier.CanPreempt() {
		if u.call != nil {
			return !u.call.Priority.CanPreempt()
		}
		return u.Status.Preemptible()
	}
	return u.call == nil && u.Status == model.UnitAvailable
}

// selectLocked picks up to need units for c ordered by distance, then by
// oldest status change.
func (e *Engine) selectLocked(c *Call, tier model.Priority, need int, used map[*Unit]bool) []candidate {
	var pool []candidate
	for _, u := range e.units {
		if used[u] || u.call == c || !eligible(u, tier) {
			continue
		}
		if u.IsPlayer() && !e.playerMayTakeLocked(c) {
			continue
		}
		pool = append(pool, candidate{unit: u, dist: u.Position().Distance(c.Location.Position)})
	}
	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		if a.dist != b.dist {
			return a.dist < b.dist
		}
		if !a.unit.LastStatusChange.Equal(b.unit.LastStatusChange) {
			return a.unit.LastStatusChange.Before(b.unit.LastStatusChange)
		}
		return a.unit.ID < b.unit.ID
	})
	if len(pool) > need {
		pool = pool[:need]
	}
	return pool
}

// playerMayTakeLocked excludes the player from calls it declined, from
// routine calls and while the host reports it busy.
func (e *Engine) playerMayTakeLocked(c *Call) bool {
	if c.DeclinedByPlayer || c.Priority == model.PriorityRoutine {
		return false
	}
	return e.gate == nil || !e.gate.CalloutActive()
}

func playerIn(chosen []candidate) *candidate {
	for i := range chosen {
		if chosen[i].unit.IsPlayer() {
			return &chosen[i]
		}
	}
	return nil
}

// attachLocked sends u to c. A unit holding another call leaves it first,
// which may force-complete that call.
func (e *Engine) attachLocked(u *Unit, c *Call, forcePrimary bool, now time.Time) {
	preempted := false
	if u.call != nil && u.call != c {
		preempted = true
		e.abandonLocked(u, c, now)
	}
	c.attach(u, forcePrimary || u.IsPlayer())
	u.call = c
	u.setStatus(model.UnitDispatched, now)
	u.behavior.Assigned(c.Location.Position, now)
	if c.Status == model.CallWaiting || c.Status == model.CallCreated {
		c.Status = model.CallDispatched
		c.DispatchedAt = now
	}
	dist := u.Position().Distance(c.Location.Position)
	assignments.WithLabelValues(c.Priority.String(), strconv.FormatBool(preempted)).Inc()
	e.log.Debugw("unit assigned", map[string]any{
		"unit":      u.ID,
		"call":      c.ID,
		"priority":  c.Priority.String(),
		"primary":   c.primary == u,
		"preempted": preempted,
		"distance":  dist,
	})
	e.emit(events.UnitAssigned{
		Unit:      u.Info(),
		CallID:    c.ID,
		Priority:  c.Priority,
		Primary:   c.primary == u,
		Preempted: preempted,
		Distance:  dist,
		At:        now,
	})
}

// abandonLocked takes u off its current call on behalf of next. A primary
// leaving a call that is already on scene force-completes it; otherwise the
// unit is detached and the call stays queued.
func (e *Engine) abandonLocked(u *Unit, next *Call, now time.Time) {
	prev := u.call
	if prev.primary == u && prev.Status == model.CallOnScene {
		closure := events.ClosureOverride
		if next.Priority.Outranks(prev.Priority) {
			closure = events.ClosureForced
		}
		e.log.Warnf("call %d abandoned on scene by %s for call %d (%s)", prev.ID, u.ID, next.ID, closure)
		preemptions.WithLabelValues(string(closure)).Inc()
		e.completeLocked(prev, closure, now, u)
		return
	}
	e.detachLocked(u)
	preemptions.WithLabelValues("detached").Inc()
	e.log.Infof("unit %s pulled from call %d for call %d", u.ID, prev.ID, next.ID)
}

// detachLocked removes u from its call without touching the unit status.
// A call left without units goes back to waiting.
func (e *Engine) detachLocked(u *Unit) *Call {
	c := u.call
	if c == nil {
		return nil
	}
	c.detach(u)
	u.call = nil
	if u.IsPlayer() {
		c.offered = false
	}
	if len(c.attached) == 0 && c.Status != model.CallCompleted {
		c.Status = model.CallWaiting
	}
	return c
}

// offerLocked earmarks c for the player, who takes the primary slot. Other
// units join as secondaries on later ticks while the offer is open.
func (e *Engine) offerLocked(player *Unit, c *Call, now time.Time) {
	e.attachLocked(player, c, true, now)
	c.offered = true
	e.log.Infof("call %d offered to player %s", c.ID, player.ID)
	e.emit(events.PlayerCallOffered{Call: c.Info(), At: now})
}

// pollUnitsLocked applies the timers of every behaviour.
func (e *Engine) pollUnitsLocked(now time.Time) {
	for _, u := range append([]*Unit(nil), e.units...) {
		if u.removed {
			continue
		}
		switch u.behavior.Update(u.Status, now) {
		case ActionArrive:
			if u.call != nil {
				e.arriveLocked(u, now)
			}
		case ActionComplete:
			if u.call != nil {
				e.unitCompletedLocked(u, events.ClosureResolved, now)
			}
		case ActionAvailable:
			if u.call == nil {
				from := u.Status
				u.setStatus(model.UnitAvailable, now)
				e.emit(events.UnitStatusChanged{Unit: u.Info(), From: from.String(), At: now})
			}
		}
	}
}
