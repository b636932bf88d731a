package model

import (
	"time"

	"github.com/google/uuid"
)

// TestResult is the persisted record of a completed attempt.
type TestResult struct {
	ID              uuid.UUID      `json:"id"`
	UserID          string         `json:"user_id"`
	SkillID         string         `json:"skill_id"`
	Score           float64        `json:"score"`
	DurationSeconds int            `json:"duration_seconds"`
	History         []HistoryEntry `json:"history"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Skill is the read-only view of a tracked skill.
type Skill struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ResultSummary is derived from a result for the summary view.
type ResultSummary struct {
	Skill              string  `json:"skill"`
	FinalScore         float64 `json:"final_score"`
	QuestionsAttempted int     `json:"questions_attempted"`
	AccuracyPercent    int     `json:"accuracy_percent"`
	Tier               string  `json:"tier"`
	Forfeited          bool    `json:"forfeited"`
}

const (
	TierPrincipal = "Principal / Architect"
	TierSenior    = "Senior Developer"
	TierJunior    = "Junior Developer"
	TierIntern    = "Intern / Trainee"
)

// TierForScore maps a final score to a career tier.
func TierForScore(score float64) string {
	switch {
	case score >= 800:
		return TierPrincipal
	case score >= 600:
		return TierSenior
	case score >= 300:
		return TierJunior
	default:
		return TierIntern
	}
}

// Accuracy returns the rounded percentage of correctly answered entries.
func Accuracy(history []HistoryEntry) int {
	if len(history) == 0 {
		return 0
	}
	correct := 0
	for _, h := range history {
		if h.Correct() {
			correct++
		}
	}
	return int(float64(correct)/float64(len(history))*100 + 0.5)
}

// Summarize builds the summary view of a stored result.
func Summarize(skill string, score float64, history []HistoryEntry, forfeited bool) ResultSummary {
	return ResultSummary{
		Skill:              skill,
		FinalScore:         score,
		QuestionsAttempted: len(history),
		AccuracyPercent:    Accuracy(history),
		Tier:               TierForScore(score),
		Forfeited:          forfeited,
	}
}

// TestResultListItem is one row of a user's test history.
type TestResultListItem struct {
	ID              uuid.UUID `json:"id"`
	SkillID         string    `json:"skill_id"`
	SkillName       string    `json:"skill_name"`
	Score           float64   `json:"score"`
	DurationSeconds int       `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
}

// SkillRecommendation is a skill frequently assessed together with another.
type SkillRecommendation struct {
	Skill      string  `json:"skill"`
	Frequency  int     `json:"frequency"`
	ScoreRatio float64 `json:"score_ratio"`
}
