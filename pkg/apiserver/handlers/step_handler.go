package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/apiserver/middleware"
	"github.com/guidepath/guidepath/pkg/workflow"
)

type StepHandler struct {
	services *workflow.Services
	logger   *zap.Logger
}

func NewStepHandler(services *workflow.Services, logger *zap.Logger) *StepHandler {
	return &StepHandler{services: services, logger: logger}
}

// stepRef identifies the step in the client's own terms; only the index is authoritative.
type stepRef struct {
	StepID string `json:"step_id"`
	Label  string `json:"label"`
}

type snoozeRequest struct {
	stepRef
	Until  *time.Time `json:"until"`
	Days   int        `json:"days"`
	Reason string     `json:"reason"`
}

type skipStepRequest struct {
	stepRef
	Reason string `json:"reason"`
}

type completeRequest struct {
	stepRef
	Notes string `json:"notes"`
}

type escalateRequest struct {
	stepRef
	EscalateTo string `json:"escalate_to" binding:"required"`
	Reason     string `json:"reason"`
}

type reviewCreateRequest struct {
	ReviewerID string `json:"reviewer_id" binding:"required"`
	Notes      string `json:"notes"`
}

func (h *StepHandler) States(c *gin.Context) {
	id, _, ok := executionParams(c, false)
	if !ok {
		return
	}
	states, err := h.services.Steps.GetStepStates(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	success(c, http.StatusOK, gin.H{"steps": states})
}

func (h *StepHandler) Snooze(c *gin.Context) {
	id, index, ok := executionParams(c, true)
	if !ok {
		return
	}
	var req snoozeRequest
	if !bindOptionalJSON(c, h.logger, &req) {
		return
	}
	state, err := h.services.Steps.SnoozeStep(c.Request.Context(), workflow.SnoozeStepInput{
		ExecutionID: id,
		StepIndex:   index,
		StepID:      req.StepID,
		Label:       req.Label,
		ActorID:     middleware.Actor(c),
		Until:       req.Until,
		Days:        req.Days,
		Reason:      req.Reason,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	success(c, http.StatusOK, gin.H{"step": state})
}

func (h *StepHandler) Resume(c *gin.Context) {
	id, index, ok := executionParams(c, true)
	if !ok {
		return
	}
	state, err := h.services.Steps.ResumeStep(c.Request.Context(), id, index, middleware.Actor(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	success(c, http.StatusOK, gin.H{"step": state})
}

func (h *StepHandler) Skip(c *gin.Context) {
	id, index, ok := executionParams(c, true)
	if !ok {
		return
	}
	var req skipStepRequest
	if !bindOptionalJSON(c, h.logger, &req) {
		return
	}
	state, err := h.services.Steps.SkipStep(c.Request.Context(), workflow.SkipStepInput{
		ExecutionID: id,
		StepIndex:   index,
		StepID:      req.StepID,
		Label:       req.Label,
		ActorID:     middleware.Actor(c),
		Reason:      req.Reason,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	success(c, http.StatusOK, gin.H{"step": state})
}

func (h *StepHandler) Complete(c *gin.Context) {
	id, index, ok := executionParams(c, true)
	if !ok {
		return
	}
	var req completeRequest
	if !bindOptionalJSON(c, h.logger, &req) {
		return
	}
	state, err := h.services.Steps.CompleteStep(c.Request.Context(), workflow.CompleteStepInput{
		ExecutionID: id,
		StepIndex:   index,
		StepID:      req.StepID,
		Label:       req.Label,
		ActorID:     middleware.Actor(c),
		Notes:       req.Notes,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	success(c, http.StatusOK, gin.H{"step": state})
}

func (h *StepHandler) Escalate(c *gin.Context) {
	id, index, ok := executionParams(c, true)
	if !ok {
		return
	}
	var req escalateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	exec, err := h.services.Escalation.EscalateStep(c.Request.Context(), workflow.EscalateStepInput{
		ExecutionID: id,
		StepIndex:   index,
		StepID:      req.StepID,
		Label:       req.Label,
		ActorID:     middleware.Actor(c),
		EscalateTo:  req.EscalateTo,
		Reason:      req.Reason,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	success(c, http.StatusOK, gin.H{"execution": exec})
}

func (h *StepHandler) RequestReview(c *gin.Context) {
	id, index, ok := executionParams(c, true)
	if !ok {
		return
	}
	var req reviewCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	review, err := h.services.Reviews.RequestReview(c.Request.Context(), workflow.RequestReviewInput{
		ExecutionID: id,
		StepIndex:   index,
		RequestedBy: middleware.Actor(c),
		ReviewerID:  req.ReviewerID,
		Notes:       req.Notes,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	success(c, http.StatusCreated, gin.H{"review": review})
}

// DueSnoozed lists the caller's snoozed steps whose wake time has passed.
func (h *StepHandler) DueSnoozed(c *gin.Context) {
	due, err := h.services.Steps.GetSnoozedStepsDue(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	success(c, http.StatusOK, gin.H{"steps": due})
}
