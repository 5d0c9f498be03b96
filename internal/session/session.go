// Package session holds the in-flight state of report generation runs. Each
// run owns one Session, written field-by-field so concurrent workers never
// overwrite each other's results.
package session

import (
	"encoding/json"
	"time"
)

// Session lifecycle states. Transitions only move forward: pending to
// generating to one of the terminal states.
const (
	StatusPending    = "pending"
	StatusGenerating = "generating"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// statusRank orders states for forward-only transition checks.
var statusRank = map[string]int{
	StatusPending:    0,
	StatusGenerating: 1,
	StatusCompleted:  2,
	StatusError:      2,
}

// Terminal reports whether a status admits no further transitions.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusError
}

// ChatTurn is one message in a session's follow-up conversation.
type ChatTurn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Session is the full state of one report generation run. Partial results
// are keyed by "category.signal", category results by category id; values
// are serialized results so the memory and redis stores carry identical
// shapes.
type Session struct {
	ID              string
	FixtureID       string
	Status          string
	Error           string
	CollectedData   map[string]json.RawMessage
	PartialResults  map[string]json.RawMessage
	CategoryResults map[string]json.RawMessage
	FinalArtifact   json.RawMessage
	ChatHistory     []ChatTurn
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// New creates a pending session for a fixture.
func New(id, fixtureID string, now time.Time) *Session {
	return &Session{
		ID:              id,
		FixtureID:       fixtureID,
		Status:          StatusPending,
		CollectedData:   make(map[string]json.RawMessage),
		PartialResults:  make(map[string]json.RawMessage),
		CategoryResults: make(map[string]json.RawMessage),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Clone returns a deep copy, so callers can read a snapshot without racing
// the writers.
func (s *Session) Clone() *Session {
	c := *s
	c.CollectedData = cloneRawMap(s.CollectedData)
	c.PartialResults = cloneRawMap(s.PartialResults)
	c.CategoryResults = cloneRawMap(s.CategoryResults)
	if s.FinalArtifact != nil {
		c.FinalArtifact = append(json.RawMessage(nil), s.FinalArtifact...)
	}
	if s.ChatHistory != nil {
		c.ChatHistory = append([]ChatTurn(nil), s.ChatHistory...)
	}
	return &c
}

func cloneRawMap(m map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
