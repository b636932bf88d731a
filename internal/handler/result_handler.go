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

// ResultHandler serves stored results.
type ResultHandler struct {
	results *service.ResultService
	log     zerolog.Logger
}

// NewResultHandler creates a new ResultHandler.
func NewResultHandler(results *service.ResultService, log zerolog.Logger) *ResultHandler {
	return &ResultHandler{
		results: results,
		log:     log.With().Str("component", "result_handler").Logger(),
	}
}

// ListResults godoc
// GET /api/v1/results
func (h *ResultHandler) ListResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	items, err := h.results.List(c.Request.Context(), claims.UserID())
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"results": items})
}

// GetResult godoc
// GET /api/v1/results/:result_id
// Returns the result with its summary and related skill recommendations.
func (h *ResultHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id, err := uuid.Parse(c.Param("result_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	view, err := h.results.Get(c.Request.Context(), claims.UserID(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// ExplainMistake godoc
// POST /api/v1/results/:result_id/explain
func (h *ResultHandler) ExplainMistake(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id, err := uuid.Parse(c.Param("result_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.ExplainMistakeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	out, err := h.results.Explain(c.Request.Context(), claims.UserID(), id, req.QuestionID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, out)
}

func (h *ResultHandler) fail(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Result request failed")
	}
	if detail := errorDetail(err); detail != "" {
		response.FailWithDetail(c, status, code, detail)
		return
	}
	response.Fail(c, status, code)
}
