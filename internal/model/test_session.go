package model

import (
	"github.com/google/uuid"
)

// SessionStatus enumerates the states of one test attempt.
type SessionStatus string

const (
	SessionStatusNotStarted SessionStatus = "NOT_STARTED"
	SessionStatusActive     SessionStatus = "ACTIVE"
	SessionStatusPaused     SessionStatus = "PAUSED"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
	SessionStatusTimedOut   SessionStatus = "TIMED_OUT"
	SessionStatusForfeited  SessionStatus = "FORFEITED"
)

// Terminal reports whether no further transition may leave s.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusTimedOut, SessionStatusForfeited:
		return true
	}
	return false
}

// Live reports whether the session is running (Active or Paused).
func (s SessionStatus) Live() bool {
	return s == SessionStatusActive || s == SessionStatusPaused
}

// TestSession is the state of a single proctored test attempt.
type TestSession struct {
	ID                   uuid.UUID     `json:"session_id"`
	UserID               string        `json:"user_id"`
	SkillID              string        `json:"skill_id"`
	SkillName            string        `json:"skill_name"`
	InitialSelfRating    int           `json:"initial_self_rating"`
	Status               SessionStatus `json:"status"`
	BudgetSec            int           `json:"budget_sec"`
	TimeRemainingSec     int           `json:"time_remaining_sec"`
	CurrentQuestionIndex int           `json:"current_question_index"`
	TotalQuestions       int           `json:"total_questions"`
}

// AnswerRecord is one accepted submission. Records are append-only.
type AnswerRecord struct {
	QuestionID         int     `json:"question_id"`
	SelectedOptionKey  *string `json:"selected_option_key"`
	TimeTakenSec       float64 `json:"time_taken_sec"`
	DifficultyAtAnswer int     `json:"difficulty_at_answer"`
}

// StartTestRequest is the payload for creating a test session.
type StartTestRequest struct {
	SkillID    string `json:"skill_id" binding:"required,max=64,skill_slug"`
	SelfRating *int   `json:"self_rating" binding:"omitempty,min=0,max=100"`
}

// ExplainMistakeRequest asks for an explanation of one question of a stored result.
type ExplainMistakeRequest struct {
	QuestionID int `json:"question_id" binding:"required,min=1"`
}
