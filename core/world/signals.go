package world

import "sync/atomic"

// Signals holds the boolean flags a host raises for the core.
type Signals struct {
	callout     atomic.Bool
	channelBusy atomic.Bool
}

// SetCalloutActive marks the player as busy with a callout.
func (s *Signals) SetCalloutActive(v bool) { s.callout.Store(v) }

// CalloutActive reports whether the player is busy with a callout.
func (s *Signals) CalloutActive() bool { return s.callout.Load() }

// SetChannelBusy marks the audio channel as in use.
func (s *Signals) SetChannelBusy(v bool) { s.channelBusy.Store(v) }

// Busy reports whether the audio channel is in use.
func (s *Signals) Busy() bool { return s.channelBusy.Load() }
