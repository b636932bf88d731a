package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skillsense/assessment-backend/internal/model"
)

// SkillRepository reads the skill catalogue. Skills are managed elsewhere.
type SkillRepository struct {
	pool *pgxpool.Pool
}

// NewSkillRepository creates a new SkillRepository.
func NewSkillRepository(pool *pgxpool.Pool) *SkillRepository {
	return &SkillRepository{pool: pool}
}

// GetByID retrieves a skill by its identifier.
func (r *SkillRepository) GetByID(ctx context.Context, id string) (*model.Skill, error) {
	s := &model.Skill{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name FROM skills WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// Recommendations lists the skills most often paired with skillID, best
// score ratio first.
func (r *SkillRepository) Recommendations(ctx context.Context, skillID string, limit int) ([]model.SkillRecommendation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.name, p.frequency, p.score_ratio
		 FROM skill_pairs p
		 JOIN skills s ON s.id = p.skill_b
		 WHERE p.skill_a = $1
		 ORDER BY p.score_ratio DESC
		 LIMIT $2`, skillID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recommendations: %w", err)
	}
	defer rows.Close()

	recs := make([]model.SkillRecommendation, 0, limit)
	for rows.Next() {
		var rec model.SkillRecommendation
		if err := rows.Scan(&rec.Skill, &rec.Frequency, &rec.ScoreRatio); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
