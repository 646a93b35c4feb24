package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/examly/examly-backend/internal/middleware"
	"github.com/examly/examly-backend/internal/model"
	"github.com/examly/examly-backend/internal/repository"
	"github.com/examly/examly-backend/internal/response"
	"github.com/examly/examly-backend/internal/service"
	"github.com/examly/examly-backend/internal/validator"
)

// AttemptHandler exposes the student attempt lifecycle over HTTP.
type AttemptHandler struct {
	attempts *service.AttemptService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attempts *service.AttemptService) *AttemptHandler {
	return &AttemptHandler{attempts: attempts}
}

// Join godoc
// POST /api/v1/exam-sessions/:session_id/join
// Window-checks the session and returns its metadata plus the caller's
// attempt standing.
func (h *AttemptHandler) Join(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID, ok := pathUUID(c, "session_id")
	if !ok {
		return
	}

	info, err := h.attempts.Join(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failAttempt(c, err)
		return
	}
	response.Success(c, http.StatusOK, info)
}

// Start godoc
// POST /api/v1/exam-sessions/:session_id/start
// Begins a new attempt or resumes the running one.
func (h *AttemptHandler) Start(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID, ok := pathUUID(c, "session_id")
	if !ok {
		return
	}

	result, err := h.attempts.Start(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failAttempt(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// Answer godoc
// POST /api/v1/exam-sessions/:session_id/answer
// Saves one answer against the caller's running attempt.
func (h *AttemptHandler) Answer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID, ok := pathUUID(c, "session_id")
	if !ok {
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	count, err := h.attempts.AnswerInSession(c.Request.Context(), sessionID, claims.UserID, &req)
	if err != nil {
		failAttempt(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"answered_count": count})
}

// Progress godoc
// GET /api/v1/exam-sessions/:session_id/progress
// Read-only projection of the caller's attempt; runs lazy expiry first.
func (h *AttemptHandler) Progress(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID, ok := pathUUID(c, "session_id")
	if !ok {
		return
	}

	progress, err := h.attempts.ProgressInSession(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failAttempt(c, err)
		return
	}
	response.Success(c, http.StatusOK, progress)
}

// Submit godoc
// POST /api/v1/exam-sessions/:session_id/submit
// Also mounted at /exam/complete for older clients.
func (h *AttemptHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.attempts.Submit(c.Request.Context(), req.RecordID, claims.UserID)
	if err != nil {
		failAttempt(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// History godoc
// GET /api/v1/exam-records
// Lists the caller's attempts, newest first. Preview attempts never appear
// here; they are not stored in the record tables at all.
func (h *AttemptHandler) History(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, err := h.attempts.History(c.Request.Context(), claims.UserID, limit, offset)
	if err != nil {
		failAttempt(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"records": records})
}

// RecordDetail godoc
// GET /api/v1/exam-records/:record_id
// Full review of one finished attempt, gated by the session settings.
func (h *AttemptHandler) RecordDetail(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	recordID, ok := pathUUID(c, "record_id")
	if !ok {
		return
	}

	review, err := h.attempts.Review(c.Request.Context(), recordID, claims.UserID)
	if err != nil {
		failAttempt(c, err)
		return
	}
	response.Success(c, http.StatusOK, review)
}

// RecordResult godoc
// GET /api/v1/exam-records/:record_id/result
// Just the score, gated by the session's show_results setting.
func (h *AttemptHandler) RecordResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	recordID, ok := pathUUID(c, "record_id")
	if !ok {
		return
	}

	result, err := h.attempts.Result(c.Request.Context(), recordID, claims.UserID)
	if err != nil {
		failAttempt(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// pathUUID parses a UUID path param, failing the request on bad input.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// failAttempt maps service errors onto the response taxonomy.
func failAttempt(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotOwner):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	case errors.Is(err, service.ErrSessionNotAvailable):
		response.Fail(c, http.StatusForbidden, response.ErrSessionNotAvailable)
	case errors.Is(err, service.ErrNotStartedYet):
		response.Fail(c, http.StatusForbidden, response.ErrNotStartedYet)
	case errors.Is(err, service.ErrSessionClosed):
		response.Fail(c, http.StatusForbidden, response.ErrSessionExpired)
	case errors.Is(err, service.ErrAttemptExpired):
		response.Fail(c, http.StatusConflict, response.ErrAttemptExpired)
	case errors.Is(err, service.ErrMaxAttemptsExceeded):
		response.Fail(c, http.StatusConflict, response.ErrMaxAttemptsExceeded)
	case errors.Is(err, service.ErrInvalidState):
		response.Fail(c, http.StatusConflict, response.ErrInvalidState)
	case errors.Is(err, service.ErrReviewNotAllowed):
		response.Fail(c, http.StatusForbidden, response.ErrReviewNotAllowed)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
