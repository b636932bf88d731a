package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/skillsense/assessment-backend/internal/config"
	"github.com/skillsense/assessment-backend/internal/metrics"
	"github.com/skillsense/assessment-backend/internal/middleware"
	"github.com/skillsense/assessment-backend/internal/model"
	"github.com/skillsense/assessment-backend/internal/proctor"
	"github.com/skillsense/assessment-backend/internal/repository"
	"github.com/skillsense/assessment-backend/internal/retrieval"
	"github.com/skillsense/assessment-backend/internal/service"
	"github.com/skillsense/assessment-backend/internal/validator"
	"github.com/stretchr/testify/require"
)

type catalog struct{}

func (catalog) GetByID(_ context.Context, id string) (*model.Skill, error) {
	if id != "go" {
		return nil, repository.ErrNotFound
	}
	return &model.Skill{ID: "go", Name: "Go"}, nil
}

func (catalog) Recommendations(context.Context, string, int) ([]model.SkillRecommendation, error) {
	return []model.SkillRecommendation{{Skill: "Docker", Frequency: 4, ScoreRatio: 0.8}}, nil
}

type guard struct {
	mu     sync.Mutex
	active map[string]uuid.UUID
}

func (g *guard) Acquire(_ context.Context, userID string, id uuid.UUID, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.active[userID]; ok {
		return false, nil
	}
	g.active[userID] = id
	return true, nil
}

func (g *guard) Current(_ context.Context, userID string) (uuid.UUID, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.active[userID]
	return id, ok, nil
}

func (g *guard) Release(_ context.Context, userID string, id uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[userID] == id {
		delete(g.active, userID)
	}
	return nil
}

// scorer answers every question with the next one and scores 720. It
// rejects opt2 on any question but the last.
type scorer struct{}

func question(id int) model.Question {
	return model.Question{
		ID:            id,
		Title:         "What runs concurrently?",
		Options:       model.Options{{Key: "opt1", Text: "goroutine"}, {Key: "opt2", Text: "thread"}},
		Difficulty:    50,
		CorrectAnswer: "opt1",
	}
}

func (scorer) StartTest(context.Context, retrieval.StartTestRequest) (model.Question, error) {
	return question(1), nil
}

func (scorer) NextQuestion(_ context.Context, req retrieval.NextQuestionRequest) (model.Question, error) {
	if req.SelectedOption == "opt2" {
		return model.Question{}, &retrieval.StatusError{Path: "/next_question", Status: http.StatusBadRequest, Detail: "Question ID mismatch."}
	}
	return question(req.QuestionID + 1), nil
}

func (scorer) EndTest(context.Context, retrieval.EndTestRequest) (retrieval.EndTestResponse, error) {
	return retrieval.EndTestResponse{FinalScore: 720}, nil
}

func (scorer) ExplainMistake(_ context.Context, req retrieval.ExplainMistakeRequest) (retrieval.ExplainMistakeResponse, error) {
	return retrieval.ExplainMistakeResponse{Explanation: "The answer is " + req.CorrectOptionText}, nil
}

type resultStore struct {
	mu      sync.Mutex
	results map[uuid.UUID]*model.TestResult
}

func (s *resultStore) SaveResult(_ context.Context, res *model.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res.ID = uuid.New()
	res.CreatedAt = time.Now()
	stored := *res
	s.results[res.ID] = &stored
	return nil
}

func (s *resultStore) GetByID(_ context.Context, id uuid.UUID) (*model.TestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.results[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return res, nil
}

func (s *resultStore) ListByUser(_ context.Context, userID string, _ int) ([]model.TestResultListItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := []model.TestResultListItem{}
	for _, r := range s.results {
		if r.UserID == userID {
			items = append(items, model.TestResultListItem{ID: r.ID, SkillID: r.SkillID, SkillName: "Go", Score: r.Score})
		}
	}
	return items, nil
}

func (s *resultStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

type discard struct{}

func (discard) Push(context.Context, ...[]byte) error { return nil }

type testServer struct {
	*httptest.Server
	auth     *service.AuthService
	sessions *service.TestSessionService
	results  *resultStore
	guard    *guard
}

func newTestServer(t *testing.T, budget time.Duration) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validator.Setup()

	log := zerolog.Nop()
	m := metrics.New()
	auth := service.NewAuthService(&config.Config{JWTSecret: "handler-test-secret"})
	g := &guard{active: make(map[string]uuid.UUID)}
	store := &resultStore{results: make(map[uuid.UUID]*model.TestResult)}
	pub := service.NewEventPublisher(discard{}, 64, log)

	sessions := service.NewTestSessionService(catalog{}, g, scorer{}, store, pub, m, service.SessionConfig{
		Budget:            budget,
		Questions:         2,
		DefaultSelfRating: 20,
		Policy:            proctor.DefaultIntegrityPolicy,
		AttachTimeout:     time.Minute,
	}, log)
	results := service.NewResultService(store, catalog{}, scorer{}, log)

	tests := NewTestHandler(sessions, log)
	res := NewResultHandler(results, log)
	stream := NewWSHandler(sessions, proctor.Ticker{Interval: 20 * time.Millisecond}, log, nil)

	r := gin.New()
	api := r.Group("/api/v1", middleware.RequireJWT(auth))
	api.POST("/tests", tests.CreateTest)
	api.GET("/tests/active", tests.GetActiveTest)
	api.GET("/tests/:session_id", tests.GetTest)
	api.GET("/results", res.ListResults)
	api.GET("/results/:result_id", res.GetResult)
	api.POST("/results/:result_id/explain", res.ExplainMistake)
	r.GET("/ws/v1/tests/:session_id/stream", middleware.RequireJWT(auth), stream.TestStream)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		sessions.Shutdown(ctx)
		srv.Close()
	})

	return &testServer{Server: srv, auth: auth, sessions: sessions, results: store, guard: g}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := s.auth.IssueToken(userID, userID+"@example.com", time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, userID string, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, userID))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}
