package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/examly/examly-backend/internal/model"
	"github.com/examly/examly-backend/internal/response"
	"github.com/examly/examly-backend/internal/service"
	"github.com/examly/examly-backend/internal/validator"
)

// PreviewHandler exposes the author dry-run flow. Same operation shapes as
// the student flow, different storage: everything lands in the TTL store.
type PreviewHandler struct {
	previews *service.PreviewService
}

// NewPreviewHandler creates a new PreviewHandler.
func NewPreviewHandler(previews *service.PreviewService) *PreviewHandler {
	return &PreviewHandler{previews: previews}
}

// Start godoc
// POST /api/v1/exam-sessions/:session_id/preview-start
// Every call mints a fresh preview id. No window check and no attempt
// limit, so a draft session can be dry-run before it opens.
func (h *PreviewHandler) Start(c *gin.Context) {
	sessionID, ok := pathUUID(c, "session_id")
	if !ok {
		return
	}

	result, err := h.previews.Start(c.Request.Context(), sessionID)
	if err != nil {
		failAttempt(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// Answer godoc
// POST /api/v1/exam-sessions/:session_id/preview-answer
func (h *PreviewHandler) Answer(c *gin.Context) {
	var req model.PreviewAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.previews.Answer(c.Request.Context(), &req); err != nil {
		failAttempt(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// AnswerBatch godoc
// POST /api/v1/exam-sessions/:session_id/preview-batch-answer
func (h *PreviewHandler) AnswerBatch(c *gin.Context) {
	var req model.PreviewBatchAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.previews.AnswerBatch(c.Request.Context(), &req); err != nil {
		failAttempt(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// Submit godoc
// POST /api/v1/exam-sessions/:session_id/preview-submit
func (h *PreviewHandler) Submit(c *gin.Context) {
	var req model.PreviewSubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.previews.Submit(c.Request.Context(), req.PreviewID)
	if err != nil {
		failAttempt(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// Result godoc
// GET /api/v1/exam-sessions/:session_id/preview-result/:preview_id
// An expired TTL reads the same as an unknown id: NOT_FOUND.
func (h *PreviewHandler) Result(c *gin.Context) {
	previewID, ok := pathUUID(c, "preview_id")
	if !ok {
		return
	}

	result, err := h.previews.Result(c.Request.Context(), previewID)
	if err != nil {
		failAttempt(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// Discard godoc
// DELETE /api/v1/exam-sessions/:session_id/preview/:preview_id
func (h *PreviewHandler) Discard(c *gin.Context) {
	previewID, ok := pathUUID(c, "preview_id")
	if !ok {
		return
	}

	if err := h.previews.Discard(c.Request.Context(), previewID); err != nil {
		failAttempt(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}
