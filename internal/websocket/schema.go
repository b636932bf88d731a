package websocket

import (
	"github.com/skillsense/assessment-backend/internal/model"
	"github.com/skillsense/assessment-backend/internal/proctor"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionStart            Action = "start"
	ActionSelect           Action = "select"
	ActionClear            Action = "clear"
	ActionSubmit           Action = "submit"
	ActionFocusLost        Action = "focus_lost"
	ActionFullscreenExited Action = "fullscreen_exited"
	ActionAcknowledge      Action = "acknowledge"
	ActionExitRequest      Action = "exit_request"
	ActionExitCancel       Action = "exit_cancel"
	ActionExitConfirm      Action = "exit_confirm"
	ActionPing             Action = "ping"
)

// RequestPayload is every client message. Option is only read by select.
type RequestPayload struct {
	Action Action `json:"action"`
	Option string `json:"option,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventQuestion          Event = "question"
	EventTick              Event = "tick"
	EventPaused            Event = "paused"
	EventResumed           Event = "resumed"
	EventExitPrompt        Event = "exit_prompt"
	EventExitDismissed     Event = "exit_dismissed"
	EventRequestFullscreen Event = "request_fullscreen"
	EventExitFullscreen    Event = "exit_fullscreen"
	EventTerminated        Event = "terminated"
	EventError             Event = "error"
	EventPong              Event = "pong"
)

type QuestionResponse struct {
	Event    Event                      `json:"event"`
	Question model.QuestionForCandidate `json:"question"`
	Index    int                        `json:"index"`
	Total    int                        `json:"total"`
}

type TickResponse struct {
	Event            Event `json:"event"`
	TimeRemainingSec int   `json:"time_remaining_sec"`
}

type PausedResponse struct {
	Event  Event          `json:"event"`
	Signal proctor.Signal `json:"signal"`
	Count  int            `json:"count"`
}

type TerminatedResponse struct {
	Event   Event           `json:"event"`
	Outcome proctor.Outcome `json:"outcome"`
}

type ErrorResponse struct {
	Event  Event  `json:"event"`
	Action Action `json:"action,omitempty"`
	Code   string `json:"code"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// SignalResponse carries events without a payload.
type SignalResponse struct {
	Event Event `json:"event"`
}
