package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quizdesk/quizdesk-backend/internal/middleware"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/response"
	"github.com/quizdesk/quizdesk-backend/internal/service"
	"github.com/quizdesk/quizdesk-backend/internal/validator"
)

// AttemptHandler handles the student-facing attempt lifecycle endpoints:
// start, content, state, violations, submit.
type AttemptHandler struct {
	attemptService   *service.AttemptService
	violationService *service.ViolationService
	coordinator      *service.SubmissionCoordinator
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(
	attemptService *service.AttemptService,
	violationService *service.ViolationService,
	coordinator *service.SubmissionCoordinator,
) *AttemptHandler {
	return &AttemptHandler{
		attemptService:   attemptService,
		violationService: violationService,
		coordinator:      coordinator,
	}
}

// Start godoc
// POST /api/v1/student/quizzes/:quiz_id/attempt
// Starts the attempt, or returns the running one unchanged (reload).
func (h *AttemptHandler) Start(c *gin.Context) {
	claims, quizID, ok := h.identify(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Start(c.Request.Context(), claims.UserID, quizID, time.Now())
	if err != nil {
		h.failLifecycle(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// GetContent godoc
// GET /api/v1/student/quizzes/:quiz_id/content
// Serves the question payload for a live attempt. Hard denial once the
// attempt is terminal.
func (h *AttemptHandler) GetContent(c *gin.Context) {
	claims, quizID, ok := h.identify(c)
	if !ok {
		return
	}

	payload, err := h.attemptService.GetContent(c.Request.Context(), claims.UserID, quizID)
	if err != nil {
		if errors.Is(err, service.ErrNoQuestions) {
			response.Fail(c, http.StatusNotFound, response.ErrQuizNoQuestions)
			return
		}
		h.failLifecycle(c, err)
		return
	}

	response.Success(c, http.StatusOK, payload)
}

// GetState godoc
// GET /api/v1/student/quizzes/:quiz_id/state
// Reload view: remaining time and autosaved answers.
func (h *AttemptHandler) GetState(c *gin.Context) {
	claims, quizID, ok := h.identify(c)
	if !ok {
		return
	}

	state, err := h.attemptService.GetState(c.Request.Context(), claims.UserID, quizID, time.Now())
	if err != nil {
		h.failLifecycle(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// RecordViolation godoc
// POST /api/v1/student/quizzes/:quiz_id/violations
// Appends an integrity event and returns the server-authoritative count.
// A terminal attempt returns the unchanged count with HTTP 200.
func (h *AttemptHandler) RecordViolation(c *gin.Context) {
	claims, quizID, ok := h.identify(c)
	if !ok {
		return
	}

	var req model.RecordViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	count, err := h.violationService.Record(c.Request.Context(), claims.UserID, quizID, req.Message, req.ClientReportedAt, time.Now())
	if err != nil {
		h.failLifecycle(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"violation_count": count})
}

// Submit godoc
// POST /api/v1/student/quizzes/:quiz_id/submit
// User-triggered terminal transition. Safe to retry after a timeout.
func (h *AttemptHandler) Submit(c *gin.Context) {
	claims, quizID, ok := h.identify(c)
	if !ok {
		return
	}

	result, err := h.coordinator.Submit(c.Request.Context(), quizID, claims.UserID, service.TriggerUser, time.Now())
	if err != nil {
		h.failLifecycle(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// identify extracts the student claims and quiz ID shared by every route.
func (h *AttemptHandler) identify(c *gin.Context) (*service.Claims, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, uuid.Nil, false
	}

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, uuid.Nil, false
	}

	return claims, quizID, true
}

// failLifecycle maps service errors to lifecycle error codes. Policy
// denials get specific codes the UI acts on; everything else is a 500.
func (h *AttemptHandler) failLifecycle(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrQuizNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrWindowNotOpen):
		response.Fail(c, http.StatusForbidden, response.ErrWindowNotOpen)
	case errors.Is(err, service.ErrAlreadyTerminal):
		response.Fail(c, http.StatusConflict, response.ErrAlreadyTerminal)
	case errors.Is(err, service.ErrNotStarted):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotStarted)
	case errors.Is(err, service.ErrWindowExpired):
		response.Fail(c, http.StatusConflict, response.ErrWindowExpired)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
