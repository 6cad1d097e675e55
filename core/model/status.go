package model

// CallStatus is the lifecycle state of a call.
type CallStatus int

const (
	CallCreated CallStatus = iota
	CallWaiting
	CallDispatched
	// CallAssigned means the player unit accepted the call.
	CallAssigned
	CallOnScene
	CallCompleted
)

func (s CallStatus) String() string {
	switch s {
	case CallCreated:
		return "created"
	case CallWaiting:
		return "waiting"
	case CallDispatched:
		return "dispatched"
	case CallAssigned:
		return "assigned"
	case CallOnScene:
		return "on_scene"
	case CallCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Active reports whether the call still holds its location.
func (s CallStatus) Active() bool { return s != CallCompleted }

// UnitStatus is the state of a responding unit.
type UnitStatus int

const (
	UnitAvailable UnitStatus = iota
	UnitDispatched
	UnitOnScene
	UnitBusy
	UnitOnStop
	UnitMealBreak
	UnitReturningToStation
	UnitEndingDuty
)

func (s UnitStatus) String() string {
	switch s {
	case UnitAvailable:
		return "available"
	case UnitDispatched:
		return "dispatched"
	case UnitOnScene:
		return "on_scene"
	case UnitBusy:
		return "busy"
	case UnitOnStop:
		return "on_stop"
	case UnitMealBreak:
		return "meal_break"
	case UnitReturningToStation:
		return "returning"
	case UnitEndingDuty:
		return "ending_duty"
	default:
		return "unknown"
	}
}

// SideState reports whether the status is entered through an external
// signal rather than by call assignment.
func (s UnitStatus) SideState() bool {
	switch s {
	case UnitBusy, UnitOnStop, UnitMealBreak, UnitReturningToStation, UnitEndingDuty:
		return true
	}
	return false
}

// Preemptible reports whether a unit in this status may be pulled onto a
// high-priority call.
func (s UnitStatus) Preemptible() bool {
	switch s {
	case UnitAvailable, UnitBusy, UnitMealBreak, UnitReturningToStation, UnitOnStop:
		return true
	}
	return false
}

// ParseUnitStatus maps a status name to its value.
func ParseUnitStatus(s string) (UnitStatus, bool) {
	for st := UnitAvailable; st <= UnitEndingDuty; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}
