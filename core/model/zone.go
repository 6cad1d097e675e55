package model

import "math"

// Position is a point on the region map in meters.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Distance returns the straight-line distance between two positions.
func (p Position) Distance(o Position) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// Location is a concrete place a call can happen at.
type Location struct {
	ID       string
	Type     string
	Position Position
	ZoneID   string
}

// Multipliers holds a probability multiplier per time period. Missing
// periods count as 1.
type Multipliers map[TimePeriod]float64

// For returns the multiplier for p.
func (m Multipliers) For(p TimePeriod) float64 {
	if v, ok := m[p]; ok {
		return v
	}
	return 1
}

// Zone is a region area with its own crime statistics and location pool.
// Zones are immutable once loaded.
type Zone struct {
	ID           string
	Name         string
	Size         string
	Population   string
	SocialClass  string
	AverageCalls map[TimePeriod]int
	Locations    []*Location
	// Categories maps a scenario category to its per-period multiplier.
	Categories map[string]Multipliers
}

// CallsDuring returns the average number of calls in p.
func (z *Zone) CallsDuring(p TimePeriod) int {
	if z == nil {
		return 0
	}
	return z.AverageCalls[p]
}

// LocationsOfType returns the locations matching any of the given types.
// An empty type list matches every location.
func (z *Zone) LocationsOfType(types []string) []*Location {
	if len(types) == 0 {
		return append([]*Location(nil), z.Locations...)
	}
	var out []*Location
	for _, l := range z.Locations {
		for _, t := range types {
			if l.Type == t {
				out = append(out, l)
				break
			}
		}
	}
	return out
}

// Scenario is an immutable template describing one kind of incident.
type Scenario struct {
	Name            string
	Category        string
	Priority        Priority
	RequiredUnits   int
	ResponseCode    ResponseCode
	LocationTypes   []string
	Descriptions    []string
	BaseProbability float64
	Multipliers     Multipliers
}

// Weight returns the scenario draw weight during p.
func (s *Scenario) Weight(p TimePeriod) float64 {
	return s.BaseProbability * s.Multipliers.For(p)
}

// Units returns the number of units calls of this scenario need.
func (s *Scenario) Units() int {
	if s.RequiredUnits > 0 {
		return s.RequiredUnits
	}
	return s.Priority.RequiredUnits()
}
