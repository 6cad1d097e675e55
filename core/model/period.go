package model

import (
	"fmt"
	"strings"
	"time"
)

// TimePeriod is a six hour slice of the simulated day.
type TimePeriod int

const (
	PeriodMorning TimePeriod = iota
	PeriodDay
	PeriodEvening
	PeriodNight
)

// PeriodLength is the simulated duration of every TimePeriod.
const PeriodLength = 6 * time.Hour

// Periods lists the time periods in day order starting at midnight.
var Periods = []TimePeriod{PeriodNight, PeriodMorning, PeriodDay, PeriodEvening}

func (p TimePeriod) String() string {
	switch p {
	case PeriodMorning:
		return "morning"
	case PeriodDay:
		return "day"
	case PeriodEvening:
		return "evening"
	case PeriodNight:
		return "night"
	default:
		return "unknown"
	}
}

// StartHour is the first hour of the period.
func (p TimePeriod) StartHour() int {
	switch p {
	case PeriodMorning:
		return 6
	case PeriodDay:
		return 12
	case PeriodEvening:
		return 18
	default:
		return 0
	}
}

// PeriodAt returns the period containing the given hour of day.
func PeriodAt(hour int) TimePeriod {
	switch {
	case hour >= 6 && hour < 12:
		return PeriodMorning
	case hour >= 12 && hour < 18:
		return PeriodDay
	case hour >= 18 && hour < 24:
		return PeriodEvening
	default:
		return PeriodNight
	}
}

// NextPeriodStart returns the instant the period following t begins.
func NextPeriodStart(t time.Time) time.Time {
	p := PeriodAt(t.Hour())
	start := time.Date(t.Year(), t.Month(), t.Day(), p.StartHour(), 0, 0, 0, t.Location())
	return start.Add(PeriodLength)
}

// ParseTimePeriod accepts a period name, case-insensitive.
func ParseTimePeriod(s string) (TimePeriod, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range Periods {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown time period %q", s)
}

// CrimeLevel scales how frequently calls are generated.
type CrimeLevel int

const (
	CrimeNone CrimeLevel = iota
	CrimeVeryLow
	CrimeLow
	CrimeModerate
	CrimeHigh
	CrimeVeryHigh
)

// CrimeLevels lists every level from calmest to busiest.
var CrimeLevels = []CrimeLevel{CrimeNone, CrimeVeryLow, CrimeLow, CrimeModerate, CrimeHigh, CrimeVeryHigh}

func (l CrimeLevel) String() string {
	switch l {
	case CrimeNone:
		return "none"
	case CrimeVeryLow:
		return "very_low"
	case CrimeLow:
		return "low"
	case CrimeModerate:
		return "moderate"
	case CrimeHigh:
		return "high"
	case CrimeVeryHigh:
		return "very_high"
	default:
		return "unknown"
	}
}

// IntervalMultiplier scales the average time between calls. A zero value
// means no calls are generated at this level.
func (l CrimeLevel) IntervalMultiplier() float64 {
	switch l {
	case CrimeVeryLow:
		return 2
	case CrimeLow:
		return 1.5
	case CrimeModerate:
		return 1
	case CrimeHigh:
		return 0.75
	case CrimeVeryHigh:
		return 0.5
	default:
		return 0
	}
}

// ParseCrimeLevel maps a level name to its value.
func ParseCrimeLevel(s string) (CrimeLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, l := range CrimeLevels {
		if l.String() == s {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown crime level %q", s)
}
