package proctor

import (
	"context"

	"github.com/skillsense/assessment-backend/internal/model"
	"github.com/skillsense/assessment-backend/internal/retrieval"
)

// Retriever is the adaptive question service as seen by the controller.
type Retriever interface {
	StartTest(ctx context.Context, req retrieval.StartTestRequest) (model.Question, error)
	NextQuestion(ctx context.Context, req retrieval.NextQuestionRequest) (model.Question, error)
	EndTest(ctx context.Context, req retrieval.EndTestRequest) (retrieval.EndTestResponse, error)
}

// ResultStore persists completed attempts. SaveResult sets res.ID.
type ResultStore interface {
	SaveResult(ctx context.Context, res *model.TestResult) error
}

// TickSource delivers one tick per elapsed second until stop is called.
// stop must be safe to call more than once and from inside tick.
type TickSource interface {
	Start(tick func()) (stop func())
}

// Signal is an integrity event raised by the candidate's environment.
type Signal string

const (
	SignalFocusLost        Signal = "focus_lost"
	SignalFullscreenExited Signal = "fullscreen_exited"
)

// IntegritySource delivers focus and fullscreen signals until unsubscribed.
type IntegritySource interface {
	Subscribe(handle func(Signal)) (unsubscribe func())
}

// Presenter renders controller output. Calls are made while the controller
// holds its lock, so a Presenter must never call back into the controller.
type Presenter interface {
	ShowQuestion(q model.QuestionForCandidate, index, total int)
	ShowTime(remainingSec int)
	ShowIntegrityWarning(v IntegrityViolation)
	HideIntegrityWarning()
	PromptExitConfirmation()
	DismissExitConfirmation()
	RequestFullscreen()
	ExitFullscreen()
	HandOff(o Outcome)
}

// Observer receives audit notifications. Same locking rule as Presenter.
type Observer interface {
	Transitioned(s model.TestSession, from model.SessionStatus)
	Violated(s model.TestSession, v IntegrityViolation)
}

type nopObserver struct{}

func (nopObserver) Transitioned(model.TestSession, model.SessionStatus) {}
func (nopObserver) Violated(model.TestSession, IntegrityViolation)      {}
