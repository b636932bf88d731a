package proctor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/skillsense/assessment-backend/internal/model"
)

// View names the screen a terminated session hands off to.
type View string

const (
	ViewSummary    View = "summary"
	ViewTerminated View = "terminated"
)

// Reason explains why the session terminated.
type Reason string

const (
	ReasonCompleted           Reason = "completed"
	ReasonTimeExpired         Reason = "time_expired"
	ReasonUserExit            Reason = "user_exit"
	ReasonIntegrityEscalation Reason = "integrity_escalation"
)

// Outcome is what the Termination Dispatcher hands off to the next view.
type Outcome struct {
	SessionID   uuid.UUID            `json:"session_id"`
	Status      model.SessionStatus  `json:"status"`
	Reason      Reason               `json:"reason"`
	View        View                 `json:"view"`
	Forfeited   bool                 `json:"forfeited"`
	ResultID    *uuid.UUID           `json:"result_id,omitempty"`
	Score       *float64             `json:"score,omitempty"`
	DurationSec int                  `json:"duration_sec"`
	Answers     []model.AnswerRecord `json:"answers"`
	History     []model.HistoryEntry `json:"history,omitempty"`
	PersistErr  error                `json:"-"`
}

// Dispatcher performs exactly one exit per session.
type Dispatcher struct {
	results   ResultStore
	presenter Presenter
	log       zerolog.Logger
	timeout   time.Duration
	fired     bool
}

func newDispatcher(results ResultStore, presenter Presenter, log zerolog.Logger, timeout time.Duration) *Dispatcher {
	return &Dispatcher{results: results, presenter: presenter, log: log, timeout: timeout}
}

// claim reports true exactly once.
func (d *Dispatcher) claim() bool {
	if d.fired {
		return false
	}
	d.fired = true
	return true
}

// finish runs after the controller released its lock: it persists completed
// attempts and hands the outcome to the presenter.
func (d *Dispatcher) finish(s model.TestSession, o Outcome) Outcome {
	if o.Status == model.SessionStatusCompleted && d.results != nil {
		res := &model.TestResult{
			UserID:          s.UserID,
			SkillID:         s.SkillID,
			Score:           *o.Score,
			DurationSeconds: o.DurationSec,
			History:         o.History,
		}

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.results.SaveResult(ctx, res)
		cancel()

		if err != nil {
			o.PersistErr = err
			d.log.Error().Err(err).
				Str("session_id", s.ID.String()).
				Msg("Failed to persist completed result")
		} else {
			id := res.ID
			o.ResultID = &id
		}
	}

	d.presenter.HandOff(o)

	d.log.Info().
		Str("session_id", s.ID.String()).
		Str("status", string(o.Status)).
		Str("reason", string(o.Reason)).
		Int("answers", len(o.Answers)).
		Msg("Session terminated")

	return o
}
