package dispatch

import (
	"errors"
	"time"

	"github.com/kilianp07/regiondispatch/core/model"
)

// Kind distinguishes the human-controlled unit from simulated ones.
type Kind int

const (
	KindSimulated Kind = iota
	KindPlayer
)

func (k Kind) String() string {
	if k == KindPlayer {
		return "player"
	}
	return "simulated"
}

// Unit is a responding unit. Like Call, its state belongs to the Engine.
type Unit struct {
	ID               string
	CallSign         string
	Kind             Kind
	Status           model.UnitStatus
	LastStatusChange time.Time

	behavior Behavior
	call     *Call
	removed  bool
}

// NewUnit creates an Available unit driven by b.
func NewUnit(id, callSign string, kind Kind, b Behavior) (*Unit, error) {
	if id == "" {
		return nil, errors.New("unit id is required")
	}
	if b == nil {
		return nil, errors.New("unit behavior is required")
	}
	if callSign == "" {
		callSign = id
	}
	return &Unit{ID: id, CallSign: callSign, Kind: kind, Status: model.UnitAvailable, behavior: b}, nil
}

// IsPlayer reports whether the unit is human-controlled.
func (u *Unit) IsPlayer() bool { return u.Kind == KindPlayer }

// Call returns the call the unit is attached to, or nil.
func (u *Unit) Call() *Call { return u.call }

// Position is the current world position reported by the behaviour.
func (u *Unit) Position() model.Position { return u.behavior.Position() }

// Removed reports whether the unit left the roster.
func (u *Unit) Removed() bool { return u.removed }

func (u *Unit) setStatus(s model.UnitStatus, now time.Time) {
	if u.Status == s {
		return
	}
	u.Status = s
	u.LastStatusChange = now
}

// Info returns a snapshot of the unit.
func (u *Unit) Info() model.UnitInfo {
	info := model.UnitInfo{
		ID:               u.ID,
		CallSign:         u.CallSign,
		Player:           u.IsPlayer(),
		Status:           u.Status.String(),
		Position:         u.Position(),
		LastStatusChange: u.LastStatusChange,
	}
	if u.call != nil {
		info.CallID = u.call.ID
		info.Primary = u.call.primary == u
	}
	return info
}
