package dispatch

import (
	"time"

	"github.com/kilianp07/regiondispatch/core/events"
	"github.com/kilianp07/regiondispatch/core/model"
)

// Call is a single incident instance derived from a scenario. Its state is
// owned by the Engine: fields may only be changed through Engine methods
// and are only safe to read while the call is not queued or from the
// goroutine driving the engine. Other goroutines should use CallInfo.
type Call struct {
	ID               int64
	Scenario         *model.Scenario
	Zone             *model.Zone
	Location         *model.Location
	Description      string
	Priority         model.Priority
	OriginalPriority model.Priority
	ResponseCode     model.ResponseCode
	Status           model.CallStatus
	CreatedAt        time.Time
	DispatchedAt     time.Time
	ArrivedAt        time.Time
	CompletedAt      time.Time
	DeclinedByPlayer bool
	Escalated        bool
	Closure          events.Closure

	primary  *Unit
	attached []*Unit
	// offered is set while the player unit has not answered the offer.
	offered bool
}

// NewCall creates a call in the Created state. The engine assigns the id
// when the call is added.
func NewCall(s *model.Scenario, z *model.Zone, loc *model.Location, description string, createdAt time.Time) *Call {
	c := &Call{
		Scenario:     s,
		Zone:         z,
		Location:     loc,
		Description:  description,
		Priority:     model.PriorityRoutine,
		ResponseCode: model.Code2,
		Status:       model.CallCreated,
		CreatedAt:    createdAt,
	}
	if s != nil {
		c.Priority = s.Priority
		c.ResponseCode = s.ResponseCode
	}
	c.OriginalPriority = c.Priority
	return c
}

// RequiredUnits is the number of units the call needs. A scenario count
// wins over the tier default, but an escalated call needs at least what its
// new tier requires.
func (c *Call) RequiredUnits() int {
	n := c.Priority.RequiredUnits()
	if c.Scenario != nil && c.Scenario.RequiredUnits > 0 {
		n = c.Scenario.RequiredUnits
		if c.Escalated && c.Priority.RequiredUnits() > n {
			n = c.Priority.RequiredUnits()
		}
	}
	return n
}

// NeedsMoreOfficers reports whether fewer units than required are attached.
func (c *Call) NeedsMoreOfficers() bool { return len(c.attached) < c.RequiredUnits() }

// Primary returns the unit accountable for the call, or nil.
func (c *Call) Primary() *Unit { return c.primary }

// Attached returns a copy of the attached units, primary included.
func (c *Call) Attached() []*Unit { return append([]*Unit(nil), c.attached...) }

// Offered reports whether the call awaits the player's decision.
func (c *Call) Offered() bool { return c.offered }

func (c *Call) has(u *Unit) bool {
	for _, a := range c.attached {
		if a == u {
			return true
		}
	}
	return false
}

// attach adds u. The first unit, or any unit attached as primary, holds the
// primary slot.
func (c *Call) attach(u *Unit, primary bool) {
	if !c.has(u) {
		c.attached = append(c.attached, u)
	}
	if primary || c.primary == nil {
		c.primary = u
	}
}

// detach removes u and promotes the next attached unit when u was primary.
func (c *Call) detach(u *Unit) (wasPrimary bool) {
	for i, a := range c.attached {
		if a == u {
			c.attached = append(c.attached[:i], c.attached[i+1:]...)
			break
		}
	}
	if c.primary != u {
		return false
	}
	c.primary = nil
	if len(c.attached) > 0 {
		c.primary = c.attached[0]
	}
	return true
}

// Info returns a snapshot of the call.
func (c *Call) Info() model.CallInfo {
	info := model.CallInfo{
		ID:               c.ID,
		Description:      c.Description,
		Priority:         c.Priority,
		OriginalPriority: c.OriginalPriority,
		ResponseCode:     c.ResponseCode,
		Status:           c.Status.String(),
		RequiredUnits:    c.RequiredUnits(),
		NeedsMoreUnits:   c.Status != model.CallCompleted && c.NeedsMoreOfficers(),
		DeclinedByPlayer: c.DeclinedByPlayer,
		Escalated:        c.Escalated,
		Closure:          string(c.Closure),
		CreatedAt:        c.CreatedAt,
		DispatchedAt:     c.DispatchedAt,
		ArrivedAt:        c.ArrivedAt,
		CompletedAt:      c.CompletedAt,
	}
	if c.Scenario != nil {
		info.Scenario = c.Scenario.Name
		info.Category = c.Scenario.Category
	}
	if c.Zone != nil {
		info.ZoneID = c.Zone.ID
	}
	if c.Location != nil {
		info.LocationID = c.Location.ID
		info.Position = c.Location.Position
		if info.ZoneID == "" {
			info.ZoneID = c.Location.ZoneID
		}
	}
	if c.primary != nil {
		info.PrimaryUnit = c.primary.ID
	}
	for _, u := range c.attached {
		info.Units = append(info.Units, u.ID)
	}
	return info
}
