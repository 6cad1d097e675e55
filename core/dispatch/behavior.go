package dispatch

import (
	"math/rand/v2"
	"time"

	"github.com/kilianp07/regiondispatch/core/model"
)

// Action is what a behaviour asks the engine to do on a tick.
type Action int

const (
	ActionNone Action = iota
	// ActionArrive moves the unit on scene.
	ActionArrive
	// ActionComplete finishes the unit's work on its call.
	ActionComplete
	// ActionAvailable ends a cooldown.
	ActionAvailable
)

// Behavior is the variant-specific part of a unit. The engine calls it with
// its lock held, so implementations must not call back into the engine.
type Behavior interface {
	Position() model.Position
	// Assigned is called when the unit is sent to dest.
	Assigned(dest model.Position, now time.Time)
	Arrived(now time.Time)
	// Released returns the status the unit takes once it leaves its call.
	Released(now time.Time) model.UnitStatus
	// Update is polled at the start of every tick.
	Update(status model.UnitStatus, now time.Time) Action
}

// Timing bounds the random timers of simulated units.
type Timing struct {
	TravelMin  time.Duration
	TravelMax  time.Duration
	OnSceneMin time.Duration
	OnSceneMax time.Duration
	Cooldown   time.Duration
}

// SimulatedBehavior drives an AI unit with random travel and on-scene
// timers. It teleports to the call on arrival and back home once available.
type SimulatedBehavior struct {
	home   model.Position
	pos    model.Position
	dest   model.Position
	timing Timing
	rnd    *rand.Rand

	arriveAt    time.Time
	completeAt  time.Time
	availableAt time.Time
}

// NewSimulatedBehavior returns a behaviour seeded with seed.
func NewSimulatedBehavior(home model.Position, timing Timing, seed uint64) *SimulatedBehavior {
	return &SimulatedBehavior{
		home:   home,
		pos:    home,
		timing: timing,
		rnd:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (b *SimulatedBehavior) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(b.rnd.Int64N(int64(hi-lo)+1))
}

func (b *SimulatedBehavior) Position() model.Position { return b.pos }

func (b *SimulatedBehavior) Assigned(dest model.Position, now time.Time) {
	b.dest = dest
	b.arriveAt = now.Add(b.between(b.timing.TravelMin, b.timing.TravelMax))
	b.completeAt = time.Time{}
	b.availableAt = time.Time{}
}

func (b *SimulatedBehavior) Arrived(now time.Time) {
	b.pos = b.dest
	b.arriveAt = time.Time{}
	b.completeAt = now.Add(b.between(b.timing.OnSceneMin, b.timing.OnSceneMax))
}

func (b *SimulatedBehavior) Released(now time.Time) model.UnitStatus {
	b.arriveAt = time.Time{}
	b.completeAt = time.Time{}
	if b.timing.Cooldown > 0 {
		b.availableAt = now.Add(b.timing.Cooldown)
		return model.UnitReturningToStation
	}
	b.pos = b.home
	return model.UnitAvailable
}

func (b *SimulatedBehavior) Update(status model.UnitStatus, now time.Time) Action {
	switch status {
	case model.UnitDispatched:
		if !b.arriveAt.IsZero() && !now.Before(b.arriveAt) {
			return ActionArrive
		}
	case model.UnitOnScene:
		if !b.completeAt.IsZero() && !now.Before(b.completeAt) {
			return ActionComplete
		}
	case model.UnitReturningToStation:
		if !b.availableAt.IsZero() && !now.Before(b.availableAt) {
			b.availableAt = time.Time{}
			b.pos = b.home
			return ActionAvailable
		}
	}
	return ActionNone
}

// PositionFunc reports a position owned by the host.
type PositionFunc func() model.Position

// PlayerBehavior is the human-controlled unit: the host reports its
// position and drives arrival and completion explicitly.
type PlayerBehavior struct {
	pos PositionFunc
}

// NewPlayerBehavior returns a behaviour reading its position from pos.
func NewPlayerBehavior(pos PositionFunc) *PlayerBehavior { return &PlayerBehavior{pos: pos} }

func (b *PlayerBehavior) Position() model.Position {
	if b.pos == nil {
		return model.Position{}
	}
	return b.pos()
}

func (*PlayerBehavior) Assigned(model.Position, time.Time)        {}
func (*PlayerBehavior) Arrived(time.Time)                         {}
func (*PlayerBehavior) Released(time.Time) model.UnitStatus       { return model.UnitAvailable }
func (*PlayerBehavior) Update(model.UnitStatus, time.Time) Action { return ActionNone }
