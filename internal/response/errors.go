package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound         ErrCode = "NOT_FOUND"
	ErrSkillNotFound    ErrCode = "SKILL_NOT_FOUND"
	ErrResultNotFound   ErrCode = "RESULT_NOT_FOUND"
	ErrQuestionNotFound ErrCode = "QUESTION_NOT_FOUND"

	// ─── Test session ──────────────────────────────────────────────────
	ErrTestAlreadyActive ErrCode = "TEST_ALREADY_ACTIVE"
	ErrSessionNotFound   ErrCode = "SESSION_NOT_FOUND"
	ErrSessionNotStarted ErrCode = "SESSION_NOT_STARTED"
	ErrSessionStarted    ErrCode = "SESSION_ALREADY_STARTED"
	ErrSessionAttached   ErrCode = "SESSION_ALREADY_ATTACHED"
	ErrSessionNotPaused  ErrCode = "SESSION_NOT_PAUSED"
	ErrSessionPaused     ErrCode = "SESSION_PAUSED"
	ErrSessionEnded      ErrCode = "SESSION_ENDED"
	ErrSessionClosed     ErrCode = "SESSION_CLOSED"
	ErrSubmissionPending ErrCode = "SUBMISSION_PENDING"
	ErrNoSelection       ErrCode = "NO_SELECTION"
	ErrNoExitRequest     ErrCode = "NO_EXIT_REQUEST"
	ErrStaleResponse     ErrCode = "STALE_RESPONSE"

	// ─── Upstream ──────────────────────────────────────────────────────
	ErrNetwork ErrCode = "NETWORK_ERROR"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have access to this resource."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrSkillNotFound:
		return "The requested skill does not exist."
	case ErrResultNotFound:
		return "Test result not found."
	case ErrQuestionNotFound:
		return "The question is not part of this result."

	// ─── Test session ──────────────────────────────────────────────────
	case ErrTestAlreadyActive:
		return "You already have a test in progress."
	case ErrSessionNotFound:
		return "Test session not found."
	case ErrSessionNotStarted:
		return "The test has not started yet."
	case ErrSessionStarted:
		return "The test has already started."
	case ErrSessionAttached:
		return "The test is already open in another window."
	case ErrSessionNotPaused:
		return "The test is not paused."
	case ErrSessionPaused:
		return "The test is paused. Acknowledge the integrity warning to continue."
	case ErrSessionEnded:
		return "The test has already ended."
	case ErrSessionClosed:
		return "The test session was closed."
	case ErrSubmissionPending:
		return "An answer is already being submitted."
	case ErrNoSelection:
		return "Select an option before submitting."
	case ErrNoExitRequest:
		return "There is no exit request to confirm."
	case ErrStaleResponse:
		return "The response arrived after the test ended and was discarded."

	// ─── Upstream ──────────────────────────────────────────────────────
	case ErrNetwork:
		return "The scoring service could not be reached. Please try again."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
