package radio

import (
	"context"
	"fmt"

	"github.com/kilianp07/regiondispatch/core/events"
	"github.com/kilianp07/regiondispatch/core/model"
)

// Advise turns a lifecycle event into an advisory. Events without a radio
// counterpart are ignored.
func (s *Scanner) Advise(ev events.Event) {
	m, ok := advisory(ev)
	if !ok {
		return
	}
	if _, err := s.Enqueue(m); err != nil {
		s.log.Warnf("advise %s: %v", ev.Name(), err)
	}
}

func advisory(ev events.Event) (Message, bool) {
	switch e := ev.(type) {
	case events.CallAdded:
		lvl := LevelLow
		switch e.Call.Priority {
		case model.PriorityImmediate:
			lvl = LevelEmergency
		case model.PriorityEmergency:
			lvl = LevelHigh
		}
		return Message{Level: lvl, CallID: e.Call.ID, At: e.At, Text: describe(e.Call)}, true
	case events.CallEscalated:
		return Message{Level: LevelHigh, CallID: e.Call.ID, At: e.At,
			Text: fmt.Sprintf("Update on call %d, now %s", e.Call.ID, e.Call.Priority)}, true
	case events.PlayerCallOffered:
		return Message{Level: LevelOverride, CallID: e.Call.ID, At: e.At,
			Text: "Respond " + describe(e.Call)}, true
	case events.GeneratorFault:
		return Message{Level: LevelHigh, At: e.At, Text: "Dispatch is experiencing technical difficulties"}, true
	}
	return Message{}, false
}

func describe(c model.CallInfo) string {
	code := "code 2"
	if c.ResponseCode == model.Code3 {
		code = "code 3"
	}
	desc := c.Description
	if desc == "" {
		desc = c.Scenario
	}
	return fmt.Sprintf("%s, %s at %s in %s, %s", c.Priority, desc, c.LocationID, c.ZoneID, code)
}

// Follow advises every event received on sub until ctx is cancelled or sub
// is closed.
func (s *Scanner) Follow(ctx context.Context, sub <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			s.Advise(ev)
		}
	}
}
