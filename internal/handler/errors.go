package handler

import (
	"errors"
	"net/http"

	"github.com/skillsense/assessment-backend/internal/proctor"
	"github.com/skillsense/assessment-backend/internal/response"
	"github.com/skillsense/assessment-backend/internal/retrieval"
	"github.com/skillsense/assessment-backend/internal/service"
)

// classify maps service and controller errors to an HTTP status and code.
func classify(err error) (int, response.ErrCode) {
	var validation *proctor.ValidationError
	var network *proctor.NetworkError
	var ended *proctor.SessionEndedError

	switch {
	case errors.Is(err, proctor.ErrStaleResponse):
		return http.StatusConflict, response.ErrStaleResponse
	case errors.Is(err, proctor.ErrNoSelection):
		return http.StatusBadRequest, response.ErrNoSelection
	case errors.As(err, &validation):
		return http.StatusBadRequest, response.ErrValidation
	case errors.As(err, &network):
		return http.StatusBadGateway, response.ErrNetwork
	case errors.As(err, &ended):
		return http.StatusConflict, response.ErrSessionEnded
	case errors.Is(err, proctor.ErrSessionPaused):
		return http.StatusConflict, response.ErrSessionPaused
	case errors.Is(err, proctor.ErrNotPaused):
		return http.StatusConflict, response.ErrSessionNotPaused
	case errors.Is(err, proctor.ErrNotStarted):
		return http.StatusConflict, response.ErrSessionNotStarted
	case errors.Is(err, proctor.ErrAlreadyStarted):
		return http.StatusConflict, response.ErrSessionStarted
	case errors.Is(err, proctor.ErrSessionClosed):
		return http.StatusConflict, response.ErrSessionClosed
	case errors.Is(err, proctor.ErrSubmissionPending):
		return http.StatusConflict, response.ErrSubmissionPending
	case errors.Is(err, proctor.ErrNoExitRequest):
		return http.StatusConflict, response.ErrNoExitRequest

	case errors.Is(err, service.ErrSkillNotFound):
		return http.StatusNotFound, response.ErrSkillNotFound
	case errors.Is(err, service.ErrTestAlreadyActive):
		return http.StatusConflict, response.ErrTestAlreadyActive
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, response.ErrSessionNotFound
	case errors.Is(err, service.ErrAlreadyAttached):
		return http.StatusConflict, response.ErrSessionAttached
	case errors.Is(err, service.ErrResultNotFound):
		return http.StatusNotFound, response.ErrResultNotFound
	case errors.Is(err, service.ErrQuestionNotFound):
		return http.StatusNotFound, response.ErrQuestionNotFound
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// errorDetail is the scoring service's own message when it rejected a call.
func errorDetail(err error) string {
	var se *retrieval.StatusError
	if errors.As(err, &se) {
		return se.Detail
	}
	return ""
}
