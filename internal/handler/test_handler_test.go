package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/skillsense/assessment-backend/internal/model"
	"github.com/skillsense/assessment-backend/internal/proctor"
	"github.com/skillsense/assessment-backend/internal/response"
	"github.com/skillsense/assessment-backend/internal/retrieval"
	"github.com/skillsense/assessment-backend/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestCreateTest(t *testing.T) {
	s := newTestServer(t, time.Minute)

	tests := []struct {
		name   string
		user   string
		body   string
		status int
		code   string
	}{
		{"no token", "", `{"skill_id":"go"}`, http.StatusUnauthorized, "TOKEN_REQUIRED"},
		{"missing skill", "user-1", `{}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad slug", "user-1", `{"skill_id":"Go Lang"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"rating out of range", "user-1", `{"skill_id":"go","self_rating":101}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown skill", "user-1", `{"skill_id":"cobol"}`, http.StatusNotFound, "SKILL_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.do(t, http.MethodPost, "/api/v1/tests", tt.user, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, gjson.GetBytes(body, "error.code").String())
		})
	}

	resp, body := s.do(t, http.MethodPost, "/api/v1/tests", "user-1", `{"skill_id":"go","self_rating":60}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "NOT_STARTED", gjson.GetBytes(body, "data.session.status").String())
	assert.Equal(t, int64(60), gjson.GetBytes(body, "data.session.initial_self_rating").Int())
	assert.Equal(t, int64(60), gjson.GetBytes(body, "data.session.budget_sec").Int())
	id := gjson.GetBytes(body, "data.session.session_id").String()

	resp, body = s.do(t, http.MethodPost, "/api/v1/tests", "user-1", `{"skill_id":"go"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "TEST_ALREADY_ACTIVE", gjson.GetBytes(body, "error.code").String())

	resp, body = s.do(t, http.MethodGet, "/api/v1/tests/active", "user-1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, gjson.GetBytes(body, "data.session_id").String())

	resp, _ = s.do(t, http.MethodGet, "/api/v1/tests/active", "user-2", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetTest(t *testing.T) {
	s := newTestServer(t, time.Minute)
	_, body := s.do(t, http.MethodPost, "/api/v1/tests", "user-1", `{"skill_id":"go"}`)
	id := gjson.GetBytes(body, "data.session.session_id").String()

	resp, body := s.do(t, http.MethodGet, "/api/v1/tests/"+id, "user-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "NOT_STARTED", gjson.GetBytes(body, "data.session.status").String())
	assert.Equal(t, "Go", gjson.GetBytes(body, "data.session.skill_name").String())

	resp, body = s.do(t, http.MethodGet, "/api/v1/tests/"+id, "user-2", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "SESSION_NOT_FOUND", gjson.GetBytes(body, "error.code").String())

	resp, body = s.do(t, http.MethodGet, "/api/v1/tests/not-a-uuid", "user-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_ID", gjson.GetBytes(body, "error.code").String())
}

func TestResultEndpoints(t *testing.T) {
	s := newTestServer(t, time.Minute)
	res := &model.TestResult{
		UserID:  "user-1",
		SkillID: "go",
		Score:   720,
		History: []model.HistoryEntry{
			{QuestionID: 7, QuestionTitle: "What runs concurrently?", Options: question(7).Options, CorrectAnswer: "opt1"},
		},
	}
	require.NoError(t, s.results.SaveResult(context.Background(), res))
	path := "/api/v1/results/" + res.ID.String()

	resp, body := s.do(t, http.MethodGet, path, "user-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.TierSenior, gjson.GetBytes(body, "data.summary.tier").String())
	assert.Equal(t, "Go", gjson.GetBytes(body, "data.summary.skill").String())
	assert.Equal(t, "Docker", gjson.GetBytes(body, "data.recommendations.0.skill").String())

	resp, _ = s.do(t, http.MethodGet, path, "user-2", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/api/v1/results", "user-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), gjson.GetBytes(body, "data.results.#").Int())

	resp, body = s.do(t, http.MethodPost, path+"/explain", "user-1", `{"question_id":7}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "The answer is goroutine", gjson.GetBytes(body, "data.explanation").String())

	resp, body = s.do(t, http.MethodPost, path+"/explain", "user-1", `{"question_id":8}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "QUESTION_NOT_FOUND", gjson.GetBytes(body, "error.code").String())

	resp, body = s.do(t, http.MethodPost, path+"/explain", "user-1", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", gjson.GetBytes(body, "error.code").String())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   response.ErrCode
	}{
		{proctor.ErrNoSelection, http.StatusBadRequest, response.ErrNoSelection},
		{&proctor.ValidationError{Field: "option", Reason: "unknown"}, http.StatusBadRequest, response.ErrValidation},
		{&proctor.NetworkError{Op: "next_question", Err: errors.New("boom")}, http.StatusBadGateway, response.ErrNetwork},
		{&proctor.SessionEndedError{Status: model.SessionStatusTimedOut}, http.StatusConflict, response.ErrSessionEnded},
		{fmt.Errorf("%w: %w", proctor.ErrStaleResponse, &proctor.SessionEndedError{Status: model.SessionStatusTimedOut}), http.StatusConflict, response.ErrStaleResponse},
		{proctor.ErrSessionPaused, http.StatusConflict, response.ErrSessionPaused},
		{proctor.ErrNotPaused, http.StatusConflict, response.ErrSessionNotPaused},
		{proctor.ErrNotStarted, http.StatusConflict, response.ErrSessionNotStarted},
		{proctor.ErrAlreadyStarted, http.StatusConflict, response.ErrSessionStarted},
		{proctor.ErrSubmissionPending, http.StatusConflict, response.ErrSubmissionPending},
		{proctor.ErrNoExitRequest, http.StatusConflict, response.ErrNoExitRequest},
		{service.ErrAlreadyAttached, http.StatusConflict, response.ErrSessionAttached},
		{fmt.Errorf("get result: %w", errors.New("db")), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tt := range tests {
		status, code := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}

func TestErrorDetail(t *testing.T) {
	rejected := &retrieval.StatusError{Path: "/next_question", Status: http.StatusUnprocessableEntity, Detail: "Question ID mismatch."}

	assert.Equal(t, "Question ID mismatch.", errorDetail(&proctor.NetworkError{Op: "next_question", Err: fmt.Errorf("call: %w", rejected)}))
	assert.Empty(t, errorDetail(&proctor.NetworkError{Op: "next_question", Err: errors.New("connection refused")}))
	assert.Empty(t, errorDetail(proctor.ErrNoSelection))
}

func TestResultInvalidID(t *testing.T) {
	s := newTestServer(t, time.Minute)
	resp, _ := s.do(t, http.MethodGet, "/api/v1/results/"+uuid.NewString()[:8], "user-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
