package model

import "fmt"

// Priority is the urgency tier of a call. Lower numbers are more urgent.
type Priority int

const (
	PriorityImmediate Priority = iota + 1
	PriorityEmergency
	PriorityExpedited
	PriorityRoutine
)

// Priorities lists every tier from most to least urgent.
var Priorities = []Priority{PriorityImmediate, PriorityEmergency, PriorityExpedited, PriorityRoutine}

// String returns a human-readable representation of the priority tier.
func (p Priority) String() string {
	switch p {
	case PriorityImmediate:
		return "immediate"
	case PriorityEmergency:
		return "emergency"
	case PriorityExpedited:
		return "expedited"
	case PriorityRoutine:
		return "routine"
	default:
		return "unknown"
	}
}

// Valid reports whether p is one of the four tiers.
func (p Priority) Valid() bool { return p >= PriorityImmediate && p <= PriorityRoutine }

// CanPreempt reports whether calls of this tier may pull units off
// lower-priority work.
func (p Priority) CanPreempt() bool { return p == PriorityImmediate || p == PriorityEmergency }

// RequiredUnits is the default number of units a call of this tier needs.
func (p Priority) RequiredUnits() int {
	switch p {
	case PriorityImmediate:
		return 3
	case PriorityEmergency:
		return 2
	default:
		return 1
	}
}

// Outranks reports whether p is more urgent than o.
func (p Priority) Outranks(o Priority) bool { return p < o }

// ParsePriority converts either a tier number or a tier name.
func ParsePriority(s string) (Priority, error) {
	for _, p := range Priorities {
		if s == p.String() || s == fmt.Sprint(int(p)) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

// ResponseCode tells responding units whether to run lights and siren.
type ResponseCode int

const (
	// Code2 is a normal response.
	Code2 ResponseCode = iota + 2
	// Code3 is an expedited response.
	Code3
)

func (c ResponseCode) String() string {
	switch c {
	case Code2:
		return "code2"
	case Code3:
		return "code3"
	default:
		return "unknown"
	}
}

// ParseResponseCode accepts "code2", "code3", "2" or "3".
func ParseResponseCode(s string) (ResponseCode, error) {
	switch s {
	case "", "2", "code2":
		return Code2, nil
	case "3", "code3":
		return Code3, nil
	default:
		return 0, fmt.Errorf("unknown response code %q", s)
	}
}
