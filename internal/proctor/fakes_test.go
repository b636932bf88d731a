package proctor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/skillsense/assessment-backend/internal/model"
	"github.com/skillsense/assessment-backend/internal/retrieval"
	"github.com/stretchr/testify/require"
)

func testQuestion(id int) model.Question {
	return model.Question{
		ID:    id,
		Title: fmt.Sprintf("Question %d", id),
		Options: model.Options{
			{Key: "opt1", Text: "first"},
			{Key: "opt2", Text: "second"},
			{Key: "opt3", Text: "third"},
			{Key: "opt4", Text: "fourth"},
		},
		Difficulty:    40 + id,
		CorrectAnswer: "opt1",
	}
}

type fakeRetriever struct {
	mu       sync.Mutex
	startErr error
	nextErr  error
	endErr   error
	gate     chan struct{}
	score    float64

	starts []retrieval.StartTestRequest
	nexts  []retrieval.NextQuestionRequest
	ends   []retrieval.EndTestRequest
}

func (f *fakeRetriever) wait(ctx context.Context) error {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeRetriever) StartTest(ctx context.Context, req retrieval.StartTestRequest) (model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, req)
	if f.startErr != nil {
		return model.Question{}, f.startErr
	}
	return testQuestion(1), nil
}

func (f *fakeRetriever) NextQuestion(ctx context.Context, req retrieval.NextQuestionRequest) (model.Question, error) {
	if err := f.wait(ctx); err != nil {
		return model.Question{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nexts = append(f.nexts, req)
	if f.nextErr != nil {
		return model.Question{}, f.nextErr
	}
	return testQuestion(req.QuestionID + 1), nil
}

func (f *fakeRetriever) EndTest(ctx context.Context, req retrieval.EndTestRequest) (retrieval.EndTestResponse, error) {
	if err := f.wait(ctx); err != nil {
		return retrieval.EndTestResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends = append(f.ends, req)
	if f.endErr != nil {
		return retrieval.EndTestResponse{}, f.endErr
	}
	history := make([]model.HistoryEntry, 0, len(f.nexts)+1)
	for i := 0; i <= len(f.nexts); i++ {
		ans := "opt1"
		history = append(history, model.HistoryEntry{
			QuestionID:    i + 1,
			QuestionTitle: fmt.Sprintf("Question %d", i+1),
			UserAnswer:    &ans,
			CorrectAnswer: "opt1",
		})
	}
	return retrieval.EndTestResponse{
		UserID:     req.UserID,
		Skill:      req.Skill,
		FinalScore: f.score,
		History:    history,
	}, nil
}

func (f *fakeRetriever) counts() (starts, nexts, ends int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts), len(f.nexts), len(f.ends)
}

func (f *fakeRetriever) setGate(gate chan struct{}) {
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
}

func (f *fakeRetriever) setEndErr(err error) {
	f.mu.Lock()
	f.endErr = err
	f.mu.Unlock()
}

type fakeStore struct {
	mu    sync.Mutex
	err   error
	saved []model.TestResult
}

func (s *fakeStore) SaveResult(ctx context.Context, res *model.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	res.ID = uuid.New()
	s.saved = append(s.saved, *res)
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

type recordingPresenter struct {
	mu        sync.Mutex
	events    []string
	questions []model.QuestionForCandidate
	outcomes  []Outcome
	lastTime  int
}

func (p *recordingPresenter) record(ev string) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *recordingPresenter) ShowQuestion(q model.QuestionForCandidate, index, total int) {
	p.mu.Lock()
	p.questions = append(p.questions, q)
	p.mu.Unlock()
	p.record("question")
}

func (p *recordingPresenter) ShowTime(remainingSec int) {
	p.mu.Lock()
	p.lastTime = remainingSec
	p.mu.Unlock()
}

func (p *recordingPresenter) ShowIntegrityWarning(v IntegrityViolation) { p.record("warning") }
func (p *recordingPresenter) HideIntegrityWarning()                     { p.record("warning_hidden") }
func (p *recordingPresenter) PromptExitConfirmation()                   { p.record("exit_prompt") }
func (p *recordingPresenter) DismissExitConfirmation()                  { p.record("exit_dismissed") }
func (p *recordingPresenter) RequestFullscreen()                        { p.record("request_fullscreen") }
func (p *recordingPresenter) ExitFullscreen()                           { p.record("exit_fullscreen") }

func (p *recordingPresenter) HandOff(o Outcome) {
	p.mu.Lock()
	p.outcomes = append(p.outcomes, o)
	p.mu.Unlock()
	p.record("handoff")
}

func (p *recordingPresenter) count(ev string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == ev {
			n++
		}
	}
	return n
}

type recordingObserver struct {
	mu          sync.Mutex
	transitions []string
	violations  []IntegrityViolation
}

func (o *recordingObserver) Transitioned(s model.TestSession, from model.SessionStatus) {
	o.mu.Lock()
	o.transitions = append(o.transitions, string(from)+"->"+string(s.Status))
	o.mu.Unlock()
}

func (o *recordingObserver) Violated(s model.TestSession, v IntegrityViolation) {
	o.mu.Lock()
	o.violations = append(o.violations, v)
	o.mu.Unlock()
}

type harness struct {
	c     *Controller
	ret   *fakeRetriever
	store *fakeStore
	ticks *ManualTicks
	feed  *SignalFeed
	pres  *recordingPresenter
	obs   *recordingObserver
}

func newHarness(t *testing.T, total, budget int, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		ret:   &fakeRetriever{score: 640},
		store: &fakeStore{},
		ticks: &ManualTicks{},
		feed:  &SignalFeed{},
		pres:  &recordingPresenter{},
		obs:   &recordingObserver{},
	}
	s := model.TestSession{
		ID:                uuid.New(),
		UserID:            "user-1",
		SkillID:           "go",
		SkillName:         "Go",
		InitialSelfRating: 40,
		BudgetSec:         budget,
		TotalQuestions:    total,
	}
	c, err := New(s, Deps{
		Retriever: h.ret,
		Results:   h.store,
		Ticks:     h.ticks,
		Signals:   h.feed,
		Presenter: h.pres,
		Observer:  h.obs,
		Log:       zerolog.Nop(),
	}, opts...)
	require.NoError(t, err)
	h.c = c
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.c.Start(context.Background()))
}

func (h *harness) answer(t *testing.T, key string) error {
	t.Helper()
	require.NoError(t, h.c.Select(key))
	return h.c.Submit(context.Background())
}

var errBoom = errors.New("connection refused")
