// Package radio serializes scanner advisories on the shared audio channel.
package radio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/regiondispatch/core/logger"
)

// ErrUnknownMessage is returned when cancelling an id never enqueued.
var ErrUnknownMessage = errors.New("unknown message")

// Level orders advisories.
type Level int

const (
	LevelLow Level = iota
	LevelHigh
	// LevelOverride is the single player callout slot, played before both
	// queues.
	LevelOverride
	// LevelEmergency skips queueing and plays at once.
	LevelEmergency
)

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelHigh:
		return "high"
	case LevelOverride:
		return "override"
	case LevelEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// Message is one advisory.
type Message struct {
	ID     string
	Level  Level
	CallID int64
	Text   string
	At     time.Time
}

// Channel reports whether the audio channel is in use.
type Channel interface {
	Busy() bool
}

// Speaker plays a message.
type Speaker interface {
	Play(m Message) error
}

// keepPlayed bounds the memory of played ids used by Cancel.
const keepPlayed = 256

// Scanner holds the advisory queues. Its mutex is independent of the
// dispatch engine lock.
type Scanner struct {
	ch  Channel
	out Speaker
	log logger.Logger

	mu         sync.Mutex
	override   *Message
	high       []Message
	low        []Message
	played     map[string]bool
	playedList []string
	wake       chan struct{}
}

// NewScanner creates a scanner gated by ch and playing through out.
func NewScanner(ch Channel, out Speaker, log logger.Logger) (*Scanner, error) {
	if ch == nil {
		return nil, fmt.Errorf("channel cannot be nil")
	}
	if out == nil {
		return nil, fmt.Errorf("speaker cannot be nil")
	}
	return &Scanner{
		ch:     ch,
		out:    out,
		log:    logger.OrNop(log),
		played: make(map[string]bool),
		wake:   make(chan struct{}, 1),
	}, nil
}

// Enqueue queues m and returns its id. Emergency messages are played
// immediately; an override replaces any override still waiting.
func (s *Scanner) Enqueue(m Message) (string, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.At.IsZero() {
		m.At = time.Now()
	}
	if m.Level == LevelEmergency {
		return m.ID, s.play(m)
	}
	s.mu.Lock()
	switch m.Level {
	case LevelOverride:
		if s.override != nil {
			s.log.Debugf("override %s replaced by %s", s.override.ID, m.ID)
		}
		s.override = &m
	case LevelHigh:
		s.high = append(s.high, m)
	default:
		s.low = append(s.low, m)
	}
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return m.ID, nil
}

// Cancel drops a queued message. Cancelling a message that already played
// succeeds without effect.
func (s *Scanner) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.played[id] {
		return nil
	}
	if s.override != nil && s.override.ID == id {
		s.override = nil
		return nil
	}
	if q, ok := remove(s.high, id); ok {
		s.high = q
		return nil
	}
	if q, ok := remove(s.low, id); ok {
		s.low = q
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownMessage, id)
}

func remove(q []Message, id string) ([]Message, bool) {
	for i, m := range q {
		if m.ID == id {
			return append(q[:i:i], q[i+1:]...), true
		}
	}
	return q, false
}

// Pump plays the next queued message if the channel is free. It returns
// false when nothing was played.
func (s *Scanner) Pump() bool {
	if s.ch.Busy() {
		return false
	}
	s.mu.Lock()
	var next Message
	switch {
	case s.override != nil:
		next = *s.override
		s.override = nil
	case len(s.high) > 0:
		next, s.high = s.high[0], s.high[1:]
	case len(s.low) > 0:
		next, s.low = s.low[0], s.low[1:]
	default:
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()
	if err := s.play(next); err != nil {
		s.log.Warnf("play %s: %v", next.ID, err)
	}
	return true
}

func (s *Scanner) play(m Message) error {
	s.mu.Lock()
	s.played[m.ID] = true
	s.playedList = append(s.playedList, m.ID)
	if len(s.playedList) > keepPlayed {
		delete(s.played, s.playedList[0])
		s.playedList = s.playedList[1:]
	}
	s.mu.Unlock()
	return s.out.Play(m)
}

// Pending returns the number of queued messages per level.
func (s *Scanner) Pending() (override bool, high, low int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.override != nil, len(s.high), len(s.low)
}

// Run pumps the queues every interval, and whenever a message is enqueued,
// until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		case <-s.wake:
		}
		for s.Pump() {
		}
	}
}
