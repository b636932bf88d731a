package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/skillsense/assessment-backend/internal/model"
	"github.com/skillsense/assessment-backend/internal/proctor"
	"github.com/skillsense/assessment-backend/internal/repository"
	"github.com/skillsense/assessment-backend/internal/retrieval"
)

var (
	ErrResultNotFound   = errors.New("test result not found")
	ErrQuestionNotFound = errors.New("question is not part of this result")
)

const (
	recommendationLimit = 3
	historyLimit        = 50
	skippedOptionText   = "Skipped"
)

// ResultReader reads stored attempts.
type ResultReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.TestResult, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]model.TestResultListItem, error)
}

// SkillCatalog resolves skill names and related skills.
type SkillCatalog interface {
	GetByID(ctx context.Context, id string) (*model.Skill, error)
	Recommendations(ctx context.Context, skillID string, limit int) ([]model.SkillRecommendation, error)
}

// Explainer asks the scoring service to explain an answer.
type Explainer interface {
	ExplainMistake(ctx context.Context, req retrieval.ExplainMistakeRequest) (retrieval.ExplainMistakeResponse, error)
}

// ResultView is a stored result with its summary.
type ResultView struct {
	Result          *model.TestResult           `json:"result"`
	Summary         model.ResultSummary         `json:"summary"`
	Recommendations []model.SkillRecommendation `json:"recommendations"`
}

// Explanation answers an explain request.
type Explanation struct {
	QuestionID  int    `json:"question_id"`
	Explanation string `json:"explanation"`
}

// ResultService serves the summary and history views.
type ResultService struct {
	results   ResultReader
	skills    SkillCatalog
	explainer Explainer
	log       zerolog.Logger
}

// NewResultService creates a new ResultService.
func NewResultService(results ResultReader, skills SkillCatalog, explainer Explainer, log zerolog.Logger) *ResultService {
	return &ResultService{
		results:   results,
		skills:    skills,
		explainer: explainer,
		log:       log.With().Str("component", "results").Logger(),
	}
}

// Get returns one of the user's results with its summary and recommendations.
func (s *ResultService) Get(ctx context.Context, userID string, id uuid.UUID) (*ResultView, error) {
	res, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	skillName := res.SkillID
	if skill, err := s.skills.GetByID(ctx, res.SkillID); err == nil {
		skillName = skill.Name
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("get skill: %w", err)
	}

	recs, err := s.skills.Recommendations(ctx, res.SkillID, recommendationLimit)
	if err != nil {
		s.log.Warn().Err(err).Str("skill_id", res.SkillID).Msg("Failed to load recommendations")
		recs = []model.SkillRecommendation{}
	}

	return &ResultView{
		Result:          res,
		Summary:         model.Summarize(skillName, res.Score, res.History, false),
		Recommendations: recs,
	}, nil
}

// List returns the user's test history, newest first.
func (s *ResultService) List(ctx context.Context, userID string) ([]model.TestResultListItem, error) {
	items, err := s.results.ListByUser(ctx, userID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return items, nil
}

// Explain returns an explanation for one question of a stored result.
// Explanations already present in the history are returned as is.
func (s *ResultService) Explain(ctx context.Context, userID string, id uuid.UUID, questionID int) (*Explanation, error) {
	res, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	var entry *model.HistoryEntry
	for i := range res.History {
		if res.History[i].QuestionID == questionID {
			entry = &res.History[i]
			break
		}
	}
	if entry == nil {
		return nil, ErrQuestionNotFound
	}
	if entry.Explanation != "" {
		return &Explanation{QuestionID: questionID, Explanation: entry.Explanation}, nil
	}

	out, err := s.explainer.ExplainMistake(ctx, explainRequest(*entry))
	if err != nil {
		return nil, &proctor.NetworkError{Op: "explain_mistake", Err: err}
	}
	return &Explanation{QuestionID: questionID, Explanation: out.Explanation}, nil
}

func (s *ResultService) owned(ctx context.Context, userID string, id uuid.UUID) (*model.TestResult, error) {
	res, err := s.results.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("get result: %w", err)
	}
	if res.UserID != userID {
		return nil, ErrResultNotFound
	}
	return res, nil
}

func explainRequest(h model.HistoryEntry) retrieval.ExplainMistakeRequest {
	req := retrieval.ExplainMistakeRequest{
		QuestionTitle:  h.QuestionTitle,
		CorrectAnswer:  h.CorrectAnswer,
		UserOptionText: skippedOptionText,
	}
	req.CorrectOptionText, _ = h.Options.Text(h.CorrectAnswer)
	if h.UserAnswer != nil {
		req.UserAnswer = *h.UserAnswer
		if text, ok := h.Options.Text(*h.UserAnswer); ok && text != "" {
			req.UserOptionText = text
		}
	}
	return req
}
