package events

import (
	"time"

	"github.com/kilianp07/regiondispatch/core/model"
)

// Event is implemented by every notification published on the bus.
type Event interface {
	Name() string
	OccurredAt() time.Time
}

// Closure explains why a call was completed.
type Closure string

const (
	// ClosureResolved is a normal completion by the primary unit.
	ClosureResolved Closure = "resolved"
	// ClosureForced is set when the primary was pulled onto a more urgent call.
	ClosureForced Closure = "forced"
	// ClosureOverride is set when the primary was pulled onto a call of equal
	// or lower urgency.
	ClosureOverride Closure = "override"
	// ClosureCancelled is used when the call is withdrawn or duty ends.
	ClosureCancelled Closure = "cancelled"
)

// CallAdded is published when a call enters the queue.
type CallAdded struct {
	Call model.CallInfo
	At   time.Time
}

func (CallAdded) Name() string            { return "call_added" }
func (e CallAdded) OccurredAt() time.Time { return e.At }

// CallCompleted is published when a call leaves the queue.
type CallCompleted struct {
	Call    model.CallInfo
	Closure Closure
	At      time.Time
}

func (CallCompleted) Name() string            { return "call_completed" }
func (e CallCompleted) OccurredAt() time.Time { return e.At }

// CallEscalated is published when a call's priority is raised.
type CallEscalated struct {
	Call model.CallInfo
	From model.Priority
	At   time.Time
}

func (CallEscalated) Name() string            { return "call_escalated" }
func (e CallEscalated) OccurredAt() time.Time { return e.At }

// UnitAssigned is published for every unit attached to a call.
type UnitAssigned struct {
	Unit      model.UnitInfo
	CallID    int64
	Priority  model.Priority
	Primary   bool
	Preempted bool
	Distance  float64
	At        time.Time
}

func (UnitAssigned) Name() string            { return "unit_assigned" }
func (e UnitAssigned) OccurredAt() time.Time { return e.At }

// UnitArrived is published when a unit reaches its call.
type UnitArrived struct {
	Unit   model.UnitInfo
	CallID int64
	At     time.Time
}

func (UnitArrived) Name() string            { return "unit_arrived" }
func (e UnitArrived) OccurredAt() time.Time { return e.At }

// UnitStatusChanged is published for side state changes driven by the host.
type UnitStatusChanged struct {
	Unit model.UnitInfo
	From string
	At   time.Time
}

func (UnitStatusChanged) Name() string            { return "unit_status_changed" }
func (e UnitStatusChanged) OccurredAt() time.Time { return e.At }

// UnitRemoved is published once when a unit leaves the roster.
type UnitRemoved struct {
	Unit model.UnitInfo
	At   time.Time
}

func (UnitRemoved) Name() string            { return "unit_removed" }
func (e UnitRemoved) OccurredAt() time.Time { return e.At }

// PlayerCallOffered is published when a call is earmarked for the player.
type PlayerCallOffered struct {
	Call model.CallInfo
	At   time.Time
}

func (PlayerCallOffered) Name() string            { return "player_call_offered" }
func (e PlayerCallOffered) OccurredAt() time.Time { return e.At }

// PlayerCallAccepted is published when the player accepts an offer.
type PlayerCallAccepted struct {
	Call model.CallInfo
	At   time.Time
}

func (PlayerCallAccepted) Name() string            { return "player_call_accepted" }
func (e PlayerCallAccepted) OccurredAt() time.Time { return e.At }

// PlayerCallDeclined is published when the player declines an offer.
type PlayerCallDeclined struct {
	Call model.CallInfo
	At   time.Time
}

func (PlayerCallDeclined) Name() string            { return "player_call_declined" }
func (e PlayerCallDeclined) OccurredAt() time.Time { return e.At }

// PlayerCallCompleted is published when a call the player led is completed.
type PlayerCallCompleted struct {
	Call    model.CallInfo
	Closure Closure
	At      time.Time
}

func (PlayerCallCompleted) Name() string            { return "player_call_completed" }
func (e PlayerCallCompleted) OccurredAt() time.Time { return e.At }

// CrimeLevelChanged is published after every re-roll.
type CrimeLevelChanged struct {
	Period   model.TimePeriod
	Previous model.CrimeLevel
	Level    model.CrimeLevel
	MinDelay time.Duration
	MaxDelay time.Duration
	At       time.Time
}

func (CrimeLevelChanged) Name() string            { return "crime_level_changed" }
func (e CrimeLevelChanged) OccurredAt() time.Time { return e.At }

// TimePeriodChanged is published by the world clock.
type TimePeriodChanged struct {
	Previous model.TimePeriod
	Period   model.TimePeriod
	At       time.Time
}

func (TimePeriodChanged) Name() string            { return "time_period_changed" }
func (e TimePeriodChanged) OccurredAt() time.Time { return e.At }

// GeneratorFault is published once when the generator disables itself.
type GeneratorFault struct {
	Failures int
	Reason   string
	At       time.Time
}

func (GeneratorFault) Name() string            { return "generator_fault" }
func (e GeneratorFault) OccurredAt() time.Time { return e.At }
