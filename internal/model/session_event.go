package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// SessionEventKind classifies audit events of a test session.
type SessionEventKind string

const (
	SessionEventTransition SessionEventKind = "transition"
	SessionEventViolation  SessionEventKind = "violation"
	SessionEventOutcome    SessionEventKind = "outcome"
)

// SessionEvent is one audit record queued for the session_events table.
type SessionEvent struct {
	SessionID uuid.UUID        `json:"session_id"`
	UserID    string           `json:"user_id"`
	Kind      SessionEventKind `json:"kind"`
	// Timestamp is in unix milliseconds.
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}
