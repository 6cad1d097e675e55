package dispatch

import (
	"errors"
	"testing"
	"time"

	"github.com/kilianp07/regiondispatch/core/events"
	"github.com/kilianp07/regiondispatch/core/model"
)

func TestPlayerPreemptedFromOnSceneCallForcesCompletion(t *testing.T) {
	e, res, clk := newTestEngine(t)
	sub := e.Events().SubscribeBuffered(64)
	player := playerUnit(t, e, 0, 0)

	low := addCall(t, e, testCall("low", testScenario("theft", model.PriorityExpedited, 1), 10, 0))
	e.Tick(clk.advance(time.Second))
	if low.Primary() != player || !low.Offered() {
		t.Fatalf("expected low call offered to the player")
	}
	if err := e.UnitArrived(player); err != nil {
		t.Fatalf("UnitArrived: %v", err)
	}
	if low.Status != model.CallOnScene || low.Offered() {
		t.Fatalf("arrival should accept the offer, status=%s", low.Status)
	}

	high := addCall(t, e, testCall("high", testScenario("shooting", model.PriorityImmediate, 0), 50, 0))
	e.Tick(clk.advance(time.Second))

	if high.Primary() != player || player.Call() != high {
		t.Fatalf("expected the player pulled to the high call")
	}
	if low.Status != model.CallCompleted || low.Closure != events.ClosureForced {
		t.Errorf("expected low call force-completed got %s/%s", low.Status, low.Closure)
	}
	if res.InUse("low") {
		t.Error("low location still reserved")
	}
	// No other units on duty: the rest of the requirement waits.
	if n := len(high.Attached()); n != 1 || !high.NeedsMoreOfficers() {
		t.Errorf("expected the player alone on the high call got %d units", n)
	}

	var closures []events.Closure
	for _, ev := range drain(sub) {
		if cc, ok := ev.(events.CallCompleted); ok {
			closures = append(closures, cc.Closure)
		}
	}
	if len(closures) != 1 || closures[0] != events.ClosureForced {
		t.Errorf("expected one forced completion got %v", closures)
	}
}

func TestPreemptionOfEqualTierCallIsOverride(t *testing.T) {
	e, _, clk := newTestEngine(t)
	u := simUnit(t, e, "a", 0, 0)
	first := addCall(t, e, testCall("first", testScenario("s", model.PriorityExpedited, 1), 0, 0))
	e.Tick(clk.advance(time.Second))
	if err := e.UnitArrived(u); err != nil {
		t.Fatalf("UnitArrived: %v", err)
	}

	second := addCall(t, e, testCall("second", testScenario("s", model.PriorityExpedited, 1), 0, 0))
	if err := e.AssignUnit(u, second, false); err != nil {
		t.Fatalf("AssignUnit: %v", err)
	}

	if first.Closure != events.ClosureOverride {
		t.Errorf("expected override closure got %q", first.Closure)
	}
	if second.Primary() != u {
		t.Errorf("expected unit a on the second call")
	}
}

func TestOfferedCallTakesSecondariesWhileOfferIsOpen(t *testing.T) {
	e, _, clk := newTestEngine(t)
	player := playerUnit(t, e, 0, 0)
	a := simUnit(t, e, "a", 10, 0)
	b := simUnit(t, e, "b", 20, 0)
	c := addCall(t, e, testCall("bank", testScenario("robbery", model.PriorityImmediate, 3), 1, 0))

	e.Tick(clk.advance(time.Second))
	if c.Primary() != player || !c.Offered() {
		t.Fatalf("expected the call offered to the player")
	}
	if n := len(c.Attached()); n != 1 {
		t.Fatalf("expected the player alone on the first tick got %d", n)
	}

	e.Tick(clk.advance(time.Second))
	if n := len(c.Attached()); n != 3 {
		t.Fatalf("expected 3 units while the offer is open got %d", n)
	}
	if c.Primary() != player || !c.Offered() {
		t.Fatalf("player should keep the primary slot and the open offer")
	}
	if a.Call() != c || b.Call() != c {
		t.Errorf("simulated units not attached to the call")
	}
	if c.NeedsMoreOfficers() {
		t.Error("call should be fully staffed")
	}
	checkCallInvariants(t, c)

	if _, err := e.DeclineCall(); err != nil {
		t.Fatalf("DeclineCall: %v", err)
	}
	if c.Primary() != a {
		t.Fatalf("expected unit a promoted after the decline got %v", c.Primary())
	}
	if c.Status != model.CallDispatched {
		t.Errorf("expected dispatched got %s", c.Status)
	}
	checkCallInvariants(t, c)
}

func TestPlayerKeepsPrimaryAfterAccept(t *testing.T) {
	e, _, _ := newTestEngine(t)
	player := playerUnit(t, e, 0, 0)
	simUnit(t, e, "a", 1, 0)
	simUnit(t, e, "b", 2, 0)
	c := addCall(t, e, testCall("loc", testScenario("s", model.PriorityEmergency, 0), 0, 0))

	e.Tick(t0)
	if c.Primary() != player || len(c.Attached()) != 1 {
		t.Fatalf("expected the player alone after the offer got %d units", len(c.Attached()))
	}

	if _, err := e.AcceptCall(); err != nil {
		t.Fatalf("AcceptCall: %v", err)
	}
	if c.Status != model.CallAssigned {
		t.Errorf("expected assigned got %s", c.Status)
	}

	e.Tick(t0.Add(time.Second))
	if n := len(c.Attached()); n != 2 {
		t.Fatalf("expected 2 units got %d", n)
	}
	if c.Primary() != player {
		t.Errorf("player lost the primary slot")
	}
	checkCallInvariants(t, c)
}

func TestPlayerDeclineExcludesCall(t *testing.T) {
	e, _, _ := newTestEngine(t)
	sub := e.Events().Subscribe()
	player := playerUnit(t, e, 0, 0)
	c := addCall(t, e, testCall("loc", testScenario("s", model.PriorityExpedited, 1), 0, 0))

	e.Tick(t0)
	if c.Primary() != player {
		t.Fatalf("expected the call offered to the player")
	}

	info, err := e.DeclineCall()
	if err != nil {
		t.Fatalf("DeclineCall: %v", err)
	}
	if !info.DeclinedByPlayer || !c.DeclinedByPlayer {
		t.Error("call not flagged as declined")
	}
	if player.Status != model.UnitAvailable || c.Status != model.CallWaiting {
		t.Errorf("unexpected statuses player=%s call=%s", player.Status, c.Status)
	}

	e.Tick(t0.Add(time.Second))
	if c.Primary() != nil || player.Call() != nil {
		t.Fatalf("declined call offered to the player again")
	}

	if _, err := e.DeclineCall(); !errors.Is(err, ErrNoOffer) {
		t.Errorf("expected ErrNoOffer got %v", err)
	}
	evs := drain(sub)
	if n := countEvents[events.PlayerCallOffered](evs); n != 1 {
		t.Errorf("expected 1 offer got %d", n)
	}
	if n := countEvents[events.PlayerCallDeclined](evs); n != 1 {
		t.Errorf("expected 1 decline got %d", n)
	}
}

func TestPlayerSkippedForRoutineAndWhenBusy(t *testing.T) {
	e, _, _ := newTestEngine(t)
	player := playerUnit(t, e, 0, 0)
	routine := addCall(t, e, testCall("r", testScenario("noise", model.PriorityRoutine, 1), 0, 0))
	e.Tick(t0)
	if len(routine.Attached()) != 0 {
		t.Fatal("routine call offered to the player")
	}

	g := &gate{active: true}
	e.SetWorkGate(g)
	urgent := addCall(t, e, testCall("u", testScenario("s", model.PriorityEmergency, 1), 0, 0))
	e.Tick(t0.Add(time.Second))
	if len(urgent.Attached()) != 0 {
		t.Fatal("call offered while a callout is active")
	}

	g.active = false
	e.Tick(t0.Add(2 * time.Second))
	if urgent.Primary() != player {
		t.Fatal("expected the call offered once the callout ended")
	}
}

func TestInvokeNextCalloutForPlayer(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if err := e.InvokeNextCalloutForPlayer(); !errors.Is(err, ErrNoPlayer) {
		t.Fatalf("expected ErrNoPlayer got %v", err)
	}
	player := playerUnit(t, e, 0, 0)

	if err := e.InvokeNextCalloutForPlayer(); err != nil {
		t.Fatalf("InvokeNextCalloutForPlayer: %v", err)
	}
	if !e.NextCalloutPending() {
		t.Fatal("expected a pending callout")
	}
	c := addCall(t, e, testCall("loc", testScenario("noise", model.PriorityRoutine, 1), 0, 0))

	if c.Primary() != player || !c.Offered() {
		t.Fatal("expected the next call offered to the player")
	}
	if e.NextCalloutPending() {
		t.Error("pending callout not cleared")
	}
}

func TestInvokeCalloutForPlayer(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if _, err := e.InvokeCalloutForPlayer(); !errors.Is(err, ErrNoPlayer) {
		t.Fatalf("expected ErrNoPlayer got %v", err)
	}
	player := playerUnit(t, e, 0, 0)

	if _, err := e.InvokeCalloutForPlayer(); !errors.Is(err, ErrNoCallAvailable) {
		t.Fatalf("expected ErrNoCallAvailable got %v", err)
	}

	routine := addCall(t, e, testCall("r", testScenario("noise", model.PriorityRoutine, 1), 0, 0))
	urgent := addCall(t, e, testCall("u", testScenario("s", model.PriorityExpedited, 1), 500, 0))
	info, err := e.InvokeCalloutForPlayer()
	if err != nil {
		t.Fatalf("InvokeCalloutForPlayer: %v", err)
	}
	if info.ID != urgent.ID || urgent.Primary() != player {
		t.Fatalf("expected the more urgent call %d got %d", urgent.ID, info.ID)
	}
	if len(routine.Attached()) != 0 {
		t.Error("routine call should be untouched")
	}

	if _, err := e.InvokeCalloutForPlayer(); !errors.Is(err, ErrPlayerBusy) {
		t.Errorf("expected ErrPlayerBusy got %v", err)
	}
}

func TestPlayerCompletionEvents(t *testing.T) {
	e, _, _ := newTestEngine(t)
	sub := e.Events().Subscribe()
	player := playerUnit(t, e, 0, 0)
	c := addCall(t, e, testCall("loc", testScenario("s", model.PriorityExpedited, 1), 0, 0))
	e.Tick(t0)
	if _, err := e.AcceptCall(); err != nil {
		t.Fatalf("AcceptCall: %v", err)
	}

	if err := e.UnitCompleted(player, events.ClosureResolved); err != nil {
		t.Fatalf("UnitCompleted: %v", err)
	}
	if c.Status != model.CallCompleted || player.Status != model.UnitAvailable {
		t.Fatalf("unexpected statuses call=%s player=%s", c.Status, player.Status)
	}

	evs := drain(sub)
	for name, n := range map[string]int{
		"accepted":         countEvents[events.PlayerCallAccepted](evs),
		"player completed": countEvents[events.PlayerCallCompleted](evs),
		"call completed":   countEvents[events.CallCompleted](evs),
	} {
		if n != 1 {
			t.Errorf("expected 1 %s event got %d", name, n)
		}
	}
}

func TestSecondPlayerRejected(t *testing.T) {
	e, _, _ := newTestEngine(t)
	playerUnit(t, e, 0, 0)
	u, err := NewUnit("p2", "", KindPlayer, NewPlayerBehavior(nil))
	if err != nil {
		t.Fatalf("NewUnit: %v", err)
	}
	if err := e.AddUnit(u); !errors.Is(err, ErrPlayerExists) {
		t.Fatalf("expected ErrPlayerExists got %v", err)
	}
}
