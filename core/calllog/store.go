// Package calllog persists a record of every completed call so duty
// sessions can be reviewed and exported after the fact.
package calllog

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/regiondispatch/core/model"
)

// Record captures one completed call.
type Record struct {
	CallID           int64          `json:"call_id"`
	Scenario         string         `json:"scenario"`
	Category         string         `json:"category"`
	Description      string         `json:"description"`
	ZoneID           string         `json:"zone_id"`
	LocationID       string         `json:"location_id"`
	Priority         model.Priority `json:"priority"`
	OriginalPriority model.Priority `json:"original_priority"`
	Escalated        bool           `json:"escalated"`
	Closure          string         `json:"closure"`
	PrimaryUnit      string         `json:"primary_unit,omitempty"`
	Units            []string       `json:"units,omitempty"`
	DeclinedByPlayer bool           `json:"declined_by_player"`
	CreatedAt        time.Time      `json:"created_at"`
	DispatchedAt     time.Time      `json:"dispatched_at"`
	ArrivedAt        time.Time      `json:"arrived_at"`
	CompletedAt      time.Time      `json:"completed_at"`
}

// ResponseTime is the delay between creation and the first arrival. It is
// zero for calls nobody reached.
func (r Record) ResponseTime() time.Duration {
	if r.ArrivedAt.IsZero() || r.ArrivedAt.Before(r.CreatedAt) {
		return 0
	}
	return r.ArrivedAt.Sub(r.CreatedAt)
}

// FromCallInfo builds a record from a completed call snapshot.
func FromCallInfo(c model.CallInfo) Record {
	return Record{
		CallID:           c.ID,
		Scenario:         c.Scenario,
		Category:         c.Category,
		Description:      c.Description,
		ZoneID:           c.ZoneID,
		LocationID:       c.LocationID,
		Priority:         c.Priority,
		OriginalPriority: c.OriginalPriority,
		Escalated:        c.Escalated,
		Closure:          c.Closure,
		PrimaryUnit:      c.PrimaryUnit,
		Units:            append([]string(nil), c.Units...),
		DeclinedByPlayer: c.DeclinedByPlayer,
		CreatedAt:        c.CreatedAt,
		DispatchedAt:     c.DispatchedAt,
		ArrivedAt:        c.ArrivedAt,
		CompletedAt:      c.CompletedAt,
	}
}

// Query defines filters for retrieving records. Zero values match all.
type Query struct {
	Start    time.Time
	End      time.Time
	ZoneID   string
	Priority model.Priority
	UnitID   string
	Closure  string
}

// Match reports whether r satisfies q. Start and End bound CompletedAt.
func (q Query) Match(r Record) bool {
	if !q.Start.IsZero() && r.CompletedAt.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.CompletedAt.After(q.End) {
		return false
	}
	if q.ZoneID != "" && r.ZoneID != q.ZoneID {
		return false
	}
	if q.Priority != 0 && r.Priority != q.Priority {
		return false
	}
	if q.Closure != "" && r.Closure != q.Closure {
		return false
	}
	if q.UnitID != "" {
		for _, id := range r.Units {
			if id == q.UnitID {
				return true
			}
		}
		return false
	}
	return true
}

// Store persists records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// Config selects and tunes the call log backend.
type Config struct {
	// Backend selects the store: "jsonl", "sqlite", "memory" or "none".
	Backend string `json:"backend"`
	// Path is the file location of the store.
	Path string `json:"path"`
	// MaxSizeMB triggers rotation when the file exceeds this size.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
	// Compress gzips rotated files.
	Compress bool `json:"compress"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" {
		switch c.Backend {
		case "sqlite":
			c.Path = "calls.db"
		default:
			c.Path = "calls.jsonl"
		}
	}
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 10
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	switch c.Backend {
	case "jsonl", "sqlite":
		if c.Path == "" {
			return fmt.Errorf("call_log: path is required")
		}
	case "memory", "none":
	default:
		return fmt.Errorf("call_log: unknown backend %s", c.Backend)
	}
	return nil
}

// New opens the store selected by cfg. The "none" backend returns nil.
func New(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "jsonl":
		return NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays, cfg.Compress)
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	case "memory":
		return NewMemoryStore(), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown call log backend %s", cfg.Backend)
	}
}
