package model

import (
	"testing"
	"time"
)

func TestPriorityRequiredUnits(t *testing.T) {
	want := map[Priority]int{PriorityImmediate: 3, PriorityEmergency: 2, PriorityExpedited: 1, PriorityRoutine: 1}
	for p, n := range want {
		if got := p.RequiredUnits(); got != n {
			t.Errorf("%s: expected %d units got %d", p, n, got)
		}
	}
	if !PriorityImmediate.Outranks(PriorityExpedited) || PriorityRoutine.Outranks(PriorityRoutine) {
		t.Fatalf("unexpected ordering")
	}
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("2")
	if err != nil || p != PriorityEmergency {
		t.Fatalf("expected emergency got %v %v", p, err)
	}
	p, err = ParsePriority("routine")
	if err != nil || p != PriorityRoutine {
		t.Fatalf("expected routine got %v %v", p, err)
	}
	if _, err := ParsePriority("7"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPeriodAt(t *testing.T) {
	cases := map[int]TimePeriod{0: PeriodNight, 5: PeriodNight, 6: PeriodMorning, 11: PeriodMorning, 12: PeriodDay, 18: PeriodEvening, 23: PeriodEvening}
	for h, want := range cases {
		if got := PeriodAt(h); got != want {
			t.Errorf("hour %d: expected %s got %s", h, want, got)
		}
	}
}

func TestNextPeriodStart(t *testing.T) {
	now := time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC)
	next := NextPeriodStart(now)
	if want := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("expected %v got %v", want, next)
	}
	now = time.Date(2024, 5, 1, 7, 15, 0, 0, time.UTC)
	if got := NextPeriodStart(now); got.Hour() != 12 {
		t.Fatalf("expected noon got %v", got)
	}
}

func TestCrimeLevelMultiplier(t *testing.T) {
	if CrimeVeryHigh.IntervalMultiplier() != 0.5 || CrimeVeryLow.IntervalMultiplier() != 2 {
		t.Fatalf("unexpected multipliers")
	}
	if CrimeNone.IntervalMultiplier() != 0 {
		t.Fatalf("none should pause generation")
	}
	l, err := ParseCrimeLevel("Very_High")
	if err != nil || l != CrimeVeryHigh {
		t.Fatalf("parse: %v %v", l, err)
	}
}

func TestScenarioUnitsAndWeight(t *testing.T) {
	s := &Scenario{Priority: PriorityImmediate, BaseProbability: 2, Multipliers: Multipliers{PeriodNight: 3}}
	if s.Units() != 3 {
		t.Fatalf("expected tier default")
	}
	s.RequiredUnits = 1
	if s.Units() != 1 {
		t.Fatalf("expected scenario override")
	}
	if s.Weight(PeriodNight) != 6 || s.Weight(PeriodDay) != 2 {
		t.Fatalf("unexpected weights")
	}
}

func TestZoneLocationsOfType(t *testing.T) {
	z := &Zone{Locations: []*Location{{ID: "a", Type: "street"}, {ID: "b", Type: "store"}, {ID: "c", Type: "street"}}}
	if got := z.LocationsOfType([]string{"street"}); len(got) != 2 {
		t.Fatalf("expected 2 streets got %d", len(got))
	}
	if got := z.LocationsOfType(nil); len(got) != 3 {
		t.Fatalf("expected all locations got %d", len(got))
	}
}
