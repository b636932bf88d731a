// Package proctor governs one proctored adaptive test attempt: the countdown,
// integrity monitoring, question delivery and submission, and the single
// terminal exit.
//
// The Controller owns the TestSession. Ticks, integrity signals, user input
// and scoring-service responses may arrive on different goroutines; every one
// of them is applied under the controller's lock, so the session moves through
// one serialized sequence of transitions. The lock is released while a
// scoring-service call is in flight, which lets ticks and integrity signals
// interleave with the pending response.
package proctor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/skillsense/assessment-backend/internal/model"
	"github.com/skillsense/assessment-backend/internal/retrieval"
)

const defaultPersistTimeout = 10 * time.Second

// Deps are the collaborators of a Controller. Observer may be nil.
type Deps struct {
	Retriever Retriever
	Results   ResultStore
	Ticks     TickSource
	Signals   IntegritySource
	Presenter Presenter
	Observer  Observer
	Log       zerolog.Logger
}

// Option customizes a Controller.
type Option func(*Controller)

// WithIntegrityPolicy sets the repeated-violation policy.
func WithIntegrityPolicy(p IntegrityPolicy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithNow replaces the wall clock used for per-question timing.
func WithNow(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithPersistTimeout bounds the result store call on completion.
func WithPersistTimeout(d time.Duration) Option {
	return func(c *Controller) { c.persistTimeout = d }
}

// Controller is the state machine of one test attempt.
type Controller struct {
	mu      sync.Mutex
	session model.TestSession

	retriever Retriever
	presenter Presenter
	observer  Observer
	log       zerolog.Logger

	clock      *Clock
	monitor    *Monitor
	cursor     *Cursor
	dispatcher *Dispatcher

	policy         IntegrityPolicy
	now            func() time.Time
	persistTimeout time.Duration

	// ctx lives until the session terminates or is closed; in-flight calls
	// are cancelled with it.
	ctx    context.Context
	cancel context.CancelFunc

	starting      bool
	inFlight      bool
	exitRequested bool
	closed        bool
	outcome       *Outcome
	done          chan struct{}
	doneOnce      sync.Once
}

// New builds a controller for s in NotStarted. s.BudgetSec and
// s.TotalQuestions must be positive.
func New(s model.TestSession, deps Deps, opts ...Option) (*Controller, error) {
	if s.BudgetSec <= 0 {
		return nil, fmt.Errorf("budget must be positive, got %d", s.BudgetSec)
	}
	if s.TotalQuestions <= 0 {
		return nil, fmt.Errorf("total questions must be positive, got %d", s.TotalQuestions)
	}
	if deps.Retriever == nil || deps.Ticks == nil || deps.Signals == nil || deps.Presenter == nil {
		return nil, errors.New("retriever, ticks, signals and presenter are required")
	}

	s.Status = model.SessionStatusNotStarted
	s.TimeRemainingSec = s.BudgetSec
	s.CurrentQuestionIndex = 0

	c := &Controller{
		session:        s,
		retriever:      deps.Retriever,
		presenter:      deps.Presenter,
		observer:       deps.Observer,
		policy:         DefaultIntegrityPolicy,
		now:            time.Now,
		persistTimeout: defaultPersistTimeout,
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}

	c.log = deps.Log.With().
		Str("component", "proctor").
		Str("session_id", s.ID.String()).
		Logger()
	c.clock = newClock(deps.Ticks)
	c.monitor = newMonitor(deps.Signals, c.policy)
	c.cursor = newCursor(c.now)
	c.dispatcher = newDispatcher(deps.Results, deps.Presenter, c.log, c.persistTimeout)
	c.ctx, c.cancel = context.WithCancel(context.Background())

	return c, nil
}

// ─── Initiation ─────────────────────────────────────────────────────

// Start fetches the first question and, on success, activates the clock and
// integrity monitor. A failed start leaves the session NotStarted.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.session.Status != model.SessionStatusNotStarted || c.starting {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.starting = true
	req := retrieval.StartTestRequest{
		UserID:     c.session.UserID,
		Skill:      c.session.SkillName,
		SelfRating: c.session.InitialSelfRating,
	}
	callCtx, release := c.callContext(ctx)
	c.mu.Unlock()

	q, err := c.retriever.StartTest(callCtx, req)
	release()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.starting = false

	if c.closed {
		return fmt.Errorf("%w: %w", ErrStaleResponse, ErrSessionClosed)
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("start_test failed")
		return &NetworkError{Op: "start_test", Err: err}
	}

	c.cursor.display(q, false)
	c.setStatus(model.SessionStatusActive)
	c.clock.start(c.Tick)
	c.monitor.attach(c.HandleSignal)

	c.presenter.RequestFullscreen()
	c.presenter.ShowQuestion(q.ForCandidate(), 0, c.session.TotalQuestions)
	c.presenter.ShowTime(c.session.TimeRemainingSec)

	c.log.Info().
		Str("skill", c.session.SkillName).
		Int("budget_sec", c.session.BudgetSec).
		Int("total_questions", c.session.TotalQuestions).
		Msg("Session started")
	return nil
}

// ─── Session Clock ──────────────────────────────────────────────────

// Tick applies one elapsed second. It is a no-op unless the session is
// Active; reaching zero terminates the session as TimedOut.
func (c *Controller) Tick() {
	var finish func()

	c.mu.Lock()
	if c.session.Status == model.SessionStatusActive && c.clock.counting() && c.session.TimeRemainingSec > 0 {
		c.session.TimeRemainingSec--
		c.presenter.ShowTime(c.session.TimeRemainingSec)
		if c.session.TimeRemainingSec == 0 {
			finish = c.terminate(termination{status: model.SessionStatusTimedOut, reason: ReasonTimeExpired})
		}
	}
	c.mu.Unlock()

	if finish != nil {
		finish()
	}
}

// ─── Integrity Monitor ──────────────────────────────────────────────

// HandleSignal applies an integrity signal. Only an Active session reacts:
// it pauses, freezes the clock and raises the blocking warning.
func (c *Controller) HandleSignal(sig Signal) {
	var finish func()

	c.mu.Lock()
	if c.session.Status == model.SessionStatusActive && !c.closed {
		v, escalate := c.monitor.record(sig)
		c.observer.Violated(c.session, v)
		c.log.Warn().Str("signal", string(sig)).Int("count", v.Count).Msg("Integrity violation")

		if escalate {
			finish = c.terminate(termination{status: model.SessionStatusForfeited, reason: ReasonIntegrityEscalation})
		} else {
			c.setStatus(model.SessionStatusPaused)
			c.clock.pause()
			c.cursor.pause()
			c.presenter.ShowIntegrityWarning(v)
		}
	}
	c.mu.Unlock()

	if finish != nil {
		finish()
	}
}

// Acknowledge dismisses the integrity warning: fullscreen is requested again
// and the clock resumes from its frozen value.
func (c *Controller) Acknowledge() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardLive(); err != nil {
		return err
	}
	if c.session.Status != model.SessionStatusPaused {
		return ErrNotPaused
	}

	c.presenter.RequestFullscreen()
	c.presenter.HideIntegrityWarning()
	c.setStatus(model.SessionStatusActive)
	c.clock.resume()
	c.cursor.resume()
	return nil
}

// ─── Question Cursor ────────────────────────────────────────────────

// Select marks key as the answer to the current question.
func (c *Controller) Select(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardInteractive(); err != nil {
		return err
	}
	return c.cursor.selectOption(key)
}

// ClearSelection removes the current selection.
func (c *Controller) ClearSelection() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardInteractive(); err != nil {
		return err
	}
	c.cursor.clearSelection()
	return nil
}

// Submit sends the selected answer. Non-final answers fetch the next
// question; the final answer ends the test and completes the session.
// A failed call leaves the session untouched so the answer can be resubmitted.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if err := c.guardInteractive(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.inFlight {
		c.mu.Unlock()
		return ErrSubmissionPending
	}
	rec, err := c.cursor.answer()
	if err != nil {
		c.mu.Unlock()
		return err
	}

	q := *c.cursor.current
	final := c.session.CurrentQuestionIndex == c.session.TotalQuestions-1
	userID, skill := c.session.UserID, c.session.SkillName
	c.inFlight = true
	callCtx, release := c.callContext(ctx)
	c.mu.Unlock()

	if final {
		res, err := c.retriever.EndTest(callCtx, retrieval.EndTestRequest{UserID: userID, Skill: skill})
		release()
		return c.applyFinal(rec, res, err)
	}

	next, err := c.retriever.NextQuestion(callCtx, retrieval.NextQuestionRequest{
		UserID:         userID,
		QuestionID:     q.ID,
		SelectedOption: *rec.SelectedOptionKey,
		TimeTaken:      rec.TimeTakenSec,
		PreviousLevel:  q.Difficulty,
		CorrectAnswer:  q.CorrectAnswer,
	})
	release()
	return c.applyNext(rec, next, err)
}

func (c *Controller) applyNext(rec model.AnswerRecord, next model.Question, callErr error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false

	if err := c.staleErr(); err != nil {
		c.log.Debug().Int("question_id", rec.QuestionID).Msg("Discarded next_question response")
		return err
	}
	if callErr != nil {
		c.log.Warn().Err(callErr).Int("question_id", rec.QuestionID).Msg("next_question failed")
		return &NetworkError{Op: "next_question", Err: callErr}
	}

	c.cursor.accept(rec)
	c.session.CurrentQuestionIndex++
	c.cursor.display(next, c.session.Status == model.SessionStatusPaused)
	c.presenter.ShowQuestion(next.ForCandidate(), c.session.CurrentQuestionIndex, c.session.TotalQuestions)
	return nil
}

func (c *Controller) applyFinal(rec model.AnswerRecord, res retrieval.EndTestResponse, callErr error) error {
	c.mu.Lock()
	c.inFlight = false

	if err := c.staleErr(); err != nil {
		c.mu.Unlock()
		c.log.Debug().Msg("Discarded end_test response")
		return err
	}
	if callErr != nil {
		c.mu.Unlock()
		c.log.Warn().Err(callErr).Msg("end_test failed")
		return &NetworkError{Op: "end_test", Err: callErr}
	}

	c.cursor.accept(rec)
	c.session.CurrentQuestionIndex++
	score := res.FinalScore
	finish := c.terminate(termination{
		status:  model.SessionStatusCompleted,
		reason:  ReasonCompleted,
		score:   &score,
		history: res.History,
	})
	c.mu.Unlock()

	if finish != nil {
		finish()
	}
	return nil
}

// ─── Forfeiture ─────────────────────────────────────────────────────

// RequestExit asks the candidate to confirm leaving the test.
func (c *Controller) RequestExit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardLive(); err != nil {
		return err
	}
	c.exitRequested = true
	c.presenter.PromptExitConfirmation()
	return nil
}

// CancelExit withdraws a pending exit request.
func (c *Controller) CancelExit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardLive(); err != nil {
		return err
	}
	if !c.exitRequested {
		return ErrNoExitRequest
	}
	c.exitRequested = false
	c.presenter.DismissExitConfirmation()
	return nil
}

// ConfirmExit forfeits the session. No score is requested or persisted.
func (c *Controller) ConfirmExit() error {
	c.mu.Lock()
	if err := c.guardLive(); err != nil {
		c.mu.Unlock()
		return err
	}
	if !c.exitRequested {
		c.mu.Unlock()
		return ErrNoExitRequest
	}
	finish := c.terminate(termination{status: model.SessionStatusForfeited, reason: ReasonUserExit})
	c.mu.Unlock()

	if finish != nil {
		finish()
	}
	return nil
}

// ─── Teardown & inspection ──────────────────────────────────────────

// Close tears the session down without a terminal transition: the clock
// stops, the monitor detaches and later responses are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.clock.halt()
	c.monitor.detach()
	c.cancel()
	if !c.session.Status.Terminal() {
		c.cursor.disable()
		c.log.Info().Str("status", string(c.session.Status)).Msg("Session closed before termination")
		c.doneOnce.Do(func() { close(c.done) })
	}
}

// Done is closed once the session has been handed off or closed.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Outcome returns the hand-off result once the session terminated.
func (c *Controller) Outcome() (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcome == nil {
		return Outcome{}, false
	}
	return *c.outcome, true
}

// Snapshot is a consistent copy of the controller state.
type Snapshot struct {
	Session       model.TestSession           `json:"session"`
	History       []model.AnswerRecord        `json:"history"`
	Question      *model.QuestionForCandidate `json:"question,omitempty"`
	Selected      *string                     `json:"selected,omitempty"`
	Violations    int                         `json:"violations"`
	ExitRequested bool                        `json:"exit_requested"`
	Pending       bool                        `json:"pending"`
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Session:       c.session,
		History:       c.cursor.historyCopy(),
		Violations:    c.monitor.violations,
		ExitRequested: c.exitRequested,
		Pending:       c.inFlight,
	}
	if c.cursor.current != nil {
		q := c.cursor.current.ForCandidate()
		snap.Question = &q
	}
	if c.cursor.selected != nil {
		sel := *c.cursor.selected
		snap.Selected = &sel
	}
	return snap
}

// ─── Transition helpers (caller holds c.mu) ────────────────────────

func (c *Controller) setStatus(to model.SessionStatus) {
	from := c.session.Status
	if from == to {
		return
	}
	c.session.Status = to
	c.observer.Transitioned(c.session, from)
}

func (c *Controller) guardLive() error {
	if c.session.Status.Terminal() {
		return &SessionEndedError{Status: c.session.Status}
	}
	if c.closed {
		return ErrSessionClosed
	}
	if c.session.Status == model.SessionStatusNotStarted {
		return ErrNotStarted
	}
	return nil
}

func (c *Controller) guardInteractive() error {
	if err := c.guardLive(); err != nil {
		return err
	}
	if c.session.Status == model.SessionStatusPaused {
		return ErrSessionPaused
	}
	return nil
}

func (c *Controller) staleErr() error {
	if c.session.Status.Terminal() {
		return fmt.Errorf("%w: %w", ErrStaleResponse, &SessionEndedError{Status: c.session.Status})
	}
	if c.closed {
		return fmt.Errorf("%w: %w", ErrStaleResponse, ErrSessionClosed)
	}
	return nil
}

// callContext derives a call context that is also cancelled when the
// session ends.
func (c *Controller) callContext(ctx context.Context) (context.Context, func()) {
	callCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	return callCtx, func() {
		stop()
		cancel()
	}
}

type termination struct {
	status  model.SessionStatus
	reason  Reason
	score   *float64
	history []model.HistoryEntry
}

// terminate performs the terminal transition and disables every producer.
// The returned function must be run after c.mu is released; it is nil when
// a terminal transition already happened.
func (c *Controller) terminate(t termination) func() {
	if !c.dispatcher.claim() {
		return nil
	}

	c.setStatus(t.status)
	c.clock.halt()
	c.monitor.detach()
	c.cursor.disable()
	c.exitRequested = false
	c.cancel()
	c.presenter.ExitFullscreen()

	view := ViewSummary
	if t.status == model.SessionStatusTimedOut {
		view = ViewTerminated
	}
	o := Outcome{
		SessionID:   c.session.ID,
		Status:      t.status,
		Reason:      t.reason,
		View:        view,
		Forfeited:   t.status == model.SessionStatusForfeited,
		Score:       t.score,
		DurationSec: c.session.BudgetSec - c.session.TimeRemainingSec,
		Answers:     c.cursor.historyCopy(),
		History:     t.history,
	}
	s := c.session

	return func() {
		final := c.dispatcher.finish(s, o)
		c.mu.Lock()
		c.outcome = &final
		c.mu.Unlock()
		c.doneOnce.Do(func() { close(c.done) })
	}
}
