package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/skillsense/assessment-backend/internal/middleware"
	"github.com/skillsense/assessment-backend/internal/model"
	"github.com/skillsense/assessment-backend/internal/response"
	"github.com/skillsense/assessment-backend/internal/service"
	"github.com/skillsense/assessment-backend/internal/validator"
)

// TestHandler handles test session creation and inspection.
type TestHandler struct {
	sessions *service.TestSessionService
	log      zerolog.Logger
}

// NewTestHandler creates a new TestHandler.
func NewTestHandler(sessions *service.TestSessionService, log zerolog.Logger) *TestHandler {
	return &TestHandler{
		sessions: sessions,
		log:      log.With().Str("component", "test_handler").Logger(),
	}
}

// CreateTest godoc
// POST /api/v1/tests
// Creates a NotStarted session for the caller. The test starts over the stream.
func (h *TestHandler) CreateTest(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.StartTestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	session, err := h.sessions.Create(c.Request.Context(), claims.UserID(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": session})
}

// GetActiveTest godoc
// GET /api/v1/tests/active
func (h *TestHandler) GetActiveTest(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id, err := h.sessions.Active(c.Request.Context(), claims.UserID())
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session_id": id})
}

// GetTest godoc
// GET /api/v1/tests/:session_id
// Returns the current snapshot of one of the caller's sessions.
func (h *TestHandler) GetTest(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	snap, err := h.sessions.Get(claims.UserID(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, snap)
}

func (h *TestHandler) fail(c *gin.Context, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Test request failed")
	}
	if detail := errorDetail(err); detail != "" {
		response.FailWithDetail(c, status, code, detail)
		return
	}
	response.Fail(c, status, code)
}
