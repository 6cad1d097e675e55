package dispatch

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/regiondispatch/core/catalog"
	"github.com/kilianp07/regiondispatch/core/events"
	"github.com/kilianp07/regiondispatch/core/logger"
	"github.com/kilianp07/regiondispatch/core/model"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) time.Time {
	c.now = c.now.Add(d)
	return c.now
}

// stillBehavior stays where it is and never fires timers.
type stillBehavior struct{ pos model.Position }

func (b *stillBehavior) Position() model.Position                { return b.pos }
func (*stillBehavior) Assigned(model.Position, time.Time)        {}
func (*stillBehavior) Arrived(time.Time)                         {}
func (*stillBehavior) Released(time.Time) model.UnitStatus       { return model.UnitAvailable }
func (*stillBehavior) Update(model.UnitStatus, time.Time) Action { return ActionNone }

type gate struct{ active bool }

func (g *gate) CalloutActive() bool { return g.active }

func newTestEngine(t *testing.T) (*Engine, *catalog.Reservations, *fakeClock) {
	t.Helper()
	ResetMetrics(prometheus.NewRegistry())
	t.Cleanup(func() { ResetMetrics(nil) })
	res := catalog.NewReservations()
	clk := &fakeClock{now: t0}
	e, err := NewEngine(Config{}, res, clk, logger.Nop{}, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e, res, clk
}

func testScenario(name string, p model.Priority, units int) *model.Scenario {
	return &model.Scenario{Name: name, Category: "traffic", Priority: p, RequiredUnits: units, BaseProbability: 1}
}

func testCall(locID string, s *model.Scenario, x, y float64) *Call {
	loc := &model.Location{ID: locID, Type: "street", Position: model.Position{X: x, Y: y}, ZoneID: "Z"}
	return NewCall(s, &model.Zone{ID: "Z", Locations: []*model.Location{loc}}, loc, "test call", time.Time{})
}

func addCall(t *testing.T, e *Engine, c *Call) *Call {
	t.Helper()
	if err := e.AddCall(c); err != nil {
		t.Fatalf("AddCall: %v", err)
	}
	return c
}

func simUnit(t *testing.T, e *Engine, id string, x, y float64) *Unit {
	t.Helper()
	u, err := NewUnit(id, id, KindSimulated, &stillBehavior{pos: model.Position{X: x, Y: y}})
	if err != nil {
		t.Fatalf("NewUnit: %v", err)
	}
	if err := e.AddUnit(u); err != nil {
		t.Fatalf("AddUnit: %v", err)
	}
	return u
}

func playerUnit(t *testing.T, e *Engine, x, y float64) *Unit {
	t.Helper()
	pos := model.Position{X: x, Y: y}
	u, err := NewUnit("player", "1-ADAM-12", KindPlayer, NewPlayerBehavior(func() model.Position { return pos }))
	if err != nil {
		t.Fatalf("NewUnit: %v", err)
	}
	if err := e.AddUnit(u); err != nil {
		t.Fatalf("AddUnit: %v", err)
	}
	return u
}

// drain returns the events currently buffered on sub.
func drain(sub <-chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-sub:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func countEvents[T events.Event](evs []events.Event) int {
	n := 0
	for _, ev := range evs {
		if _, ok := ev.(T); ok {
			n++
		}
	}
	return n
}

// checkCallInvariants verifies the primary and capacity invariants of c.
func checkCallInvariants(t *testing.T, c *Call) {
	t.Helper()
	att := c.Attached()
	if len(att) > c.RequiredUnits() {
		t.Fatalf("call %d has %d units, requires %d", c.ID, len(att), c.RequiredUnits())
	}
	if len(att) == 0 {
		if c.Primary() != nil {
			t.Fatalf("call %d has a primary but no attached units", c.ID)
		}
		return
	}
	if c.Primary() == nil {
		t.Fatalf("call %d has attached units but no primary", c.ID)
	}
	found := 0
	for _, u := range att {
		if u == c.Primary() {
			found++
		}
		if u.Call() != c {
			t.Fatalf("unit %s attached to call %d points elsewhere", u.ID, c.ID)
		}
	}
	if found != 1 {
		t.Fatalf("primary of call %d attached %d times", c.ID, found)
	}
}
