package proctor

import (
	"errors"
	"fmt"

	"github.com/skillsense/assessment-backend/internal/model"
)

// ValidationError rejects user input without touching session state.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// ErrNoSelection is returned when a submission carries no selected option.
var ErrNoSelection = &ValidationError{Field: "selected_option", Reason: "an option must be selected"}

// NetworkError is a failed or non-success call to the scoring service.
// The session is left unchanged and the submission may be repeated.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IntegrityViolation describes one loss of focus or fullscreen.
type IntegrityViolation struct {
	Signal Signal
	Count  int
}

func (v IntegrityViolation) Error() string {
	return fmt.Sprintf("integrity violation: %s (#%d)", v.Signal, v.Count)
}

// ErrTimeoutExpiry matches any error caused by the session clock running out.
var ErrTimeoutExpiry = errors.New("session time expired")

// SessionEndedError is returned for any interaction with a terminal session.
type SessionEndedError struct {
	Status model.SessionStatus
}

func (e *SessionEndedError) Error() string {
	return fmt.Sprintf("session already ended: %s", e.Status)
}

// Is makes errors.Is(err, ErrTimeoutExpiry) true for timed-out sessions.
func (e *SessionEndedError) Is(target error) bool {
	return target == ErrTimeoutExpiry && e.Status == model.SessionStatusTimedOut
}

var (
	ErrAlreadyStarted    = errors.New("session already started")
	ErrNotStarted        = errors.New("session not started")
	ErrSessionClosed     = errors.New("session closed")
	ErrSessionPaused     = errors.New("session paused: acknowledge the integrity warning first")
	ErrNotPaused         = errors.New("session is not paused")
	ErrSubmissionPending = errors.New("a submission is already in flight")
	ErrNoExitRequest     = errors.New("no exit request to confirm")
	ErrStaleResponse     = errors.New("response arrived after the session ended and was discarded")
)
