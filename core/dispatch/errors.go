package dispatch

import "errors"

var (
	ErrNilCall           = errors.New("nil call")
	ErrNilUnit           = errors.New("nil unit")
	ErrNoLocation        = errors.New("call has no location")
	ErrInvalidPriority   = errors.New("invalid priority")
	ErrUnknownCall       = errors.New("call not in queue")
	ErrDuplicateCall     = errors.New("duplicate call id")
	ErrCallCompleted     = errors.New("call already completed")
	ErrNoCall            = errors.New("unit has no call")
	ErrCallFull          = errors.New("call has all required units")
	ErrUnitRemoved       = errors.New("unit removed")
	ErrDuplicateUnit     = errors.New("duplicate unit id")
	ErrUnitAssigned      = errors.New("unit is assigned to a call")
	ErrInvalidTransition = errors.New("invalid unit status transition")
	ErrNotEscalation     = errors.New("priority can only be raised")
	ErrNoPlayer          = errors.New("no player unit on duty")
	ErrPlayerExists      = errors.New("player unit already on duty")
	ErrPlayerBusy        = errors.New("player unit is busy")
	ErrNoOffer           = errors.New("no call offered to player")
	ErrNoCallAvailable   = errors.New("no suitable call available")
	ErrNoSynthesizer     = errors.New("no call synthesizer configured")
)
