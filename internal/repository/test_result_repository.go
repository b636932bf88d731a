package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skillsense/assessment-backend/internal/model"
)

// TestResultRepository stores completed attempts.
type TestResultRepository struct {
	pool *pgxpool.Pool
}

// NewTestResultRepository creates a new TestResultRepository.
func NewTestResultRepository(pool *pgxpool.Pool) *TestResultRepository {
	return &TestResultRepository{pool: pool}
}

// SaveResult inserts a completed attempt and fills in its ID and CreatedAt.
func (r *TestResultRepository) SaveResult(ctx context.Context, res *model.TestResult) error {
	history, err := json.Marshal(res.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	return r.pool.QueryRow(ctx,
		`INSERT INTO test_results (user_id, skill_id, score, duration_seconds, history)
		 VALUES ($1, $2, $3, $4, $5::jsonb)
		 RETURNING id, created_at`,
		res.UserID, res.SkillID, res.Score, res.DurationSeconds, history,
	).Scan(&res.ID, &res.CreatedAt)
}

// GetByID retrieves one stored result.
func (r *TestResultRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.TestResult, error) {
	res := &model.TestResult{}
	var history []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, skill_id, score, duration_seconds, history, created_at
		 FROM test_results
		 WHERE id = $1`, id,
	).Scan(&res.ID, &res.UserID, &res.SkillID, &res.Score, &res.DurationSeconds, &history, &res.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}

	if len(history) > 0 {
		if err := json.Unmarshal(history, &res.History); err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
	}
	return res, nil
}

// ListByUser returns a user's results, newest first.
func (r *TestResultRepository) ListByUser(ctx context.Context, userID string, limit int) ([]model.TestResultListItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT t.id, t.skill_id, COALESCE(s.name, ''), t.score, t.duration_seconds, t.created_at
		 FROM test_results t
		 LEFT JOIN skills s ON s.id = t.skill_id
		 WHERE t.user_id = $1
		 ORDER BY t.created_at DESC
		 LIMIT $2`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.TestResultListItem, 0)
	for rows.Next() {
		var it model.TestResultListItem
		if err := rows.Scan(&it.ID, &it.SkillID, &it.SkillName, &it.Score, &it.DurationSeconds, &it.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
