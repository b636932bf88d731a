package repository

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skillsense/assessment-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFoundMapping(t *testing.T) {
	assert.ErrorIs(t, notFound(pgx.ErrNoRows), ErrNotFound)

	other := errors.New("conn reset")
	assert.Equal(t, other, notFound(other))
}

// testPool connects to TEST_DATABASE_URL, a database migrated with
// migrations/. The test is skipped when it is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestTestResultRepository_RoundTrip(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	skillID := "repo-test-" + uuid.NewString()[:8]
	_, err := pool.Exec(ctx, `INSERT INTO skills (id, name) VALUES ($1, 'Repo Test')`, skillID)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM test_results WHERE skill_id = $1`, skillID)
		_, _ = pool.Exec(context.Background(), `DELETE FROM skills WHERE id = $1`, skillID)
	})

	skills := NewSkillRepository(pool)
	got, err := skills.GetByID(ctx, skillID)
	require.NoError(t, err)
	assert.Equal(t, "Repo Test", got.Name)

	_, err = skills.GetByID(ctx, "missing-"+skillID)
	assert.ErrorIs(t, err, ErrNotFound)

	repo := NewTestResultRepository(pool)
	ans := "opt2"
	res := &model.TestResult{
		UserID:          "user-" + skillID,
		SkillID:         skillID,
		Score:           712.5,
		DurationSeconds: 640,
		History: []model.HistoryEntry{{
			QuestionID:    3,
			QuestionTitle: "Q",
			Options:       model.Options{{Key: "opt2", Text: "b"}, {Key: "opt1", Text: "a"}},
			UserAnswer:    &ans,
			CorrectAnswer: "opt1",
		}},
	}
	require.NoError(t, repo.SaveResult(ctx, res))
	require.NotEqual(t, uuid.Nil, res.ID)
	assert.False(t, res.CreatedAt.IsZero())

	loaded, err := repo.GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Score, loaded.Score)
	require.Len(t, loaded.History, 1)
	assert.Equal(t, "opt2", loaded.History[0].Options[0].Key)

	items, err := repo.ListByUser(ctx, res.UserID, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Repo Test", items[0].SkillName)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
