package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skillsense/assessment-backend/internal/model"
	"github.com/skillsense/assessment-backend/internal/proctor"
	"github.com/skillsense/assessment-backend/internal/repository"
	"github.com/skillsense/assessment-backend/internal/retrieval"
)

type fakeSkills struct {
	skills map[string]model.Skill
	recs   []model.SkillRecommendation
	recErr error
}

func newFakeSkills() *fakeSkills {
	return &fakeSkills{skills: map[string]model.Skill{
		"go":     {ID: "go", Name: "Go"},
		"python": {ID: "python", Name: "Python"},
	}}
}

func (f *fakeSkills) GetByID(_ context.Context, id string) (*model.Skill, error) {
	s, ok := f.skills[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (f *fakeSkills) Recommendations(_ context.Context, _ string, limit int) ([]model.SkillRecommendation, error) {
	if f.recErr != nil {
		return nil, f.recErr
	}
	if len(f.recs) > limit {
		return f.recs[:limit], nil
	}
	return f.recs, nil
}

type memGuard struct {
	mu     sync.Mutex
	active map[string]uuid.UUID
	ttls   []time.Duration
}

func newMemGuard() *memGuard {
	return &memGuard{active: make(map[string]uuid.UUID)}
}

func (g *memGuard) Acquire(_ context.Context, userID string, id uuid.UUID, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.active[userID]; ok {
		return false, nil
	}
	g.active[userID] = id
	g.ttls = append(g.ttls, ttl)
	return true, nil
}

func (g *memGuard) Current(_ context.Context, userID string) (uuid.UUID, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.active[userID]
	return id, ok, nil
}

func (g *memGuard) Release(_ context.Context, userID string, id uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[userID] == id {
		delete(g.active, userID)
	}
	return nil
}

func (g *memGuard) held(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.active[userID]
	return ok
}

type stubRetriever struct{}

func stubQuestion(id int) model.Question {
	return model.Question{
		ID:            id,
		Title:         fmt.Sprintf("Question %d", id),
		Options:       model.Options{{Key: "a", Text: "alpha"}, {Key: "b", Text: "beta"}},
		Difficulty:    30,
		CorrectAnswer: "a",
	}
}

func (stubRetriever) StartTest(context.Context, retrieval.StartTestRequest) (model.Question, error) {
	return stubQuestion(1), nil
}

func (stubRetriever) NextQuestion(_ context.Context, req retrieval.NextQuestionRequest) (model.Question, error) {
	return stubQuestion(req.QuestionID + 1), nil
}

func (stubRetriever) EndTest(context.Context, retrieval.EndTestRequest) (retrieval.EndTestResponse, error) {
	return retrieval.EndTestResponse{FinalScore: 640}, nil
}

type memResults struct {
	mu    sync.Mutex
	saved []model.TestResult
}

func (m *memResults) SaveResult(_ context.Context, res *model.TestResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	res.ID = uuid.New()
	m.saved = append(m.saved, *res)
	return nil
}

type nopPresenter struct{}

func (nopPresenter) ShowQuestion(model.QuestionForCandidate, int, int) {}
func (nopPresenter) ShowTime(int)                                      {}
func (nopPresenter) ShowIntegrityWarning(proctor.IntegrityViolation)   {}
func (nopPresenter) HideIntegrityWarning()                             {}
func (nopPresenter) PromptExitConfirmation()                           {}
func (nopPresenter) DismissExitConfirmation()                          {}
func (nopPresenter) RequestFullscreen()                                {}
func (nopPresenter) ExitFullscreen()                                   {}
func (nopPresenter) HandOff(proctor.Outcome)                           {}

type memSink struct {
	mu    sync.Mutex
	items [][]byte
	err   error
}

func (s *memSink) Push(_ context.Context, items ...[]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.items = append(s.items, items...)
	return nil
}

func (s *memSink) all() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.items...)
}

type fakeResults struct {
	results map[uuid.UUID]*model.TestResult
	list    []model.TestResultListItem
}

func (f *fakeResults) GetByID(_ context.Context, id uuid.UUID) (*model.TestResult, error) {
	res, ok := f.results[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return res, nil
}

func (f *fakeResults) ListByUser(_ context.Context, userID string, limit int) ([]model.TestResultListItem, error) {
	return f.list, nil
}

type fakeExplainer struct {
	reqs []retrieval.ExplainMistakeRequest
	err  error
}

func (f *fakeExplainer) ExplainMistake(_ context.Context, req retrieval.ExplainMistakeRequest) (retrieval.ExplainMistakeResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return retrieval.ExplainMistakeResponse{}, f.err
	}
	return retrieval.ExplainMistakeResponse{Explanation: "because " + req.CorrectOptionText}, nil
}
