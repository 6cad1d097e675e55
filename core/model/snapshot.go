package model

import "time"

// CallInfo is a read-only copy of a call, safe to share across goroutines.
type CallInfo struct {
	ID               int64        `json:"id"`
	Scenario         string       `json:"scenario"`
	Category         string       `json:"category"`
	Description      string       `json:"description"`
	ZoneID           string       `json:"zone_id"`
	LocationID       string       `json:"location_id"`
	Position         Position     `json:"position"`
	Priority         Priority     `json:"priority"`
	OriginalPriority Priority     `json:"original_priority"`
	ResponseCode     ResponseCode `json:"response_code"`
	Status           string       `json:"status"`
	RequiredUnits    int          `json:"required_units"`
	PrimaryUnit      string       `json:"primary_unit,omitempty"`
	Units            []string     `json:"units,omitempty"`
	NeedsMoreUnits   bool         `json:"needs_more_units"`
	DeclinedByPlayer bool         `json:"declined_by_player"`
	Escalated        bool         `json:"escalated"`
	Closure          string       `json:"closure,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	DispatchedAt     time.Time    `json:"dispatched_at,omitempty"`
	ArrivedAt        time.Time    `json:"arrived_at,omitempty"`
	CompletedAt      time.Time    `json:"completed_at,omitempty"`
}

// UnitInfo is a read-only copy of a unit.
type UnitInfo struct {
	ID               string    `json:"id"`
	CallSign         string    `json:"call_sign"`
	Player           bool      `json:"player"`
	Status           string    `json:"status"`
	CallID           int64     `json:"call_id,omitempty"`
	Primary          bool      `json:"primary"`
	Position         Position  `json:"position"`
	LastStatusChange time.Time `json:"last_status_change"`
}
