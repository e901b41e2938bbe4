package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/apiserver/middleware"
	"github.com/guidepath/guidepath/pkg/model"
	"github.com/guidepath/guidepath/pkg/workflow"
)

type ExecutionHandler struct {
	services *workflow.Services
	logger   *zap.Logger
}

func NewExecutionHandler(services *workflow.Services, logger *zap.Logger) *ExecutionHandler {
	return &ExecutionHandler{services: services, logger: logger}
}

type executionCreateRequest struct {
	WorkflowConfigID string                 `json:"workflow_config_id" binding:"required"`
	WorkflowName     string                 `json:"workflow_name" binding:"required"`
	WorkflowType     string                 `json:"workflow_type"`
	CustomerID       string                 `json:"customer_id" binding:"required"`
	UserID           string                 `json:"user_id"`
	AssignedTo       string                 `json:"assigned_to"`
	TotalSteps       int                    `json:"total_steps" binding:"required"`
	PriorityScore    int                    `json:"priority_score"`
	Variables        map[string]interface{} `json:"variables"`
}

type executionUpdateRequest struct {
	Status      *model.ExecutionStatus `json:"status"`
	CurrentStep *int                   `json:"current_step"`
}

type executionSkipRequest struct {
	Reason   string                  `json:"reason"`
	Triggers []workflow.TriggerInput `json:"triggers"`
}

func (h *ExecutionHandler) Create(c *gin.Context) {
	var req executionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		badRequest(c, "invalid customer_id")
		return
	}
	userID := req.UserID
	if userID == "" {
		userID = middleware.Actor(c)
	}

	exec, err := h.services.Executions.CreateExecution(c.Request.Context(), workflow.CreateExecutionInput{
		WorkflowConfigID: req.WorkflowConfigID,
		WorkflowName:     req.WorkflowName,
		WorkflowType:     req.WorkflowType,
		CustomerID:       customerID,
		UserID:           userID,
		AssignedTo:       req.AssignedTo,
		TotalSteps:       req.TotalSteps,
		PriorityScore:    req.PriorityScore,
		Variables:        req.Variables,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	success(c, http.StatusCreated, gin.H{"execution": exec})
}

func (h *ExecutionHandler) List(c *gin.Context) {
	filter := workflow.ListExecutionsFilter{
		UserID: strings.TrimSpace(c.Query("user_id")),
		Limit:  parseLimit(c.Query("limit"), 0),
		Offset: parseOffset(c.Query("offset")),
	}
	if value := strings.TrimSpace(c.Query("customer_id")); value != "" {
		customerID, err := uuid.Parse(value)
		if err != nil {
			badRequest(c, "invalid customer_id")
			return
		}
		filter.CustomerID = &customerID
	}
	if value := strings.TrimSpace(c.Query("status")); value != "" {
		status := model.ExecutionStatus(value)
		if !status.Valid() {
			badRequest(c, "invalid status")
			return
		}
		filter.Status = &status
	}

	executions, total, err := h.services.Executions.ListExecutions(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	success(c, http.StatusOK, gin.H{
		"executions": executions,
		"total":      total,
	})
}

func (h *ExecutionHandler) Get(c *gin.Context) {
	id, _, ok := executionParams(c, false)
	if !ok {
		return
	}
	exec, err := h.services.Executions.GetExecution(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	success(c, http.StatusOK, gin.H{"execution": exec})
}

func (h *ExecutionHandler) Update(c *gin.Context) {
	id, _, ok := executionParams(c, false)
	if !ok {
		return
	}
	var req executionUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	exec, err := h.services.Executions.UpdateExecution(c.Request.Context(), id, workflow.UpdateExecutionInput{
		Status:      req.Status,
		CurrentStep: req.CurrentStep,
		ActorID:     middleware.Actor(c),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	success(c, http.StatusOK, gin.H{"execution": exec})
}

func (h *ExecutionHandler) Skip(c *gin.Context) {
	id, _, ok := executionParams(c, false)
	if !ok {
		return
	}
	var req executionSkipRequest
	if !bindOptionalJSON(c, h.logger, &req) {
		return
	}
	exec, triggers, err := h.services.Skips.SkipExecution(c.Request.Context(), workflow.SkipExecutionInput{
		ExecutionID: id,
		ActorID:     middleware.Actor(c),
		Reason:      req.Reason,
		Triggers:    req.Triggers,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	success(c, http.StatusOK, gin.H{
		"execution": exec,
		"triggers":  triggers,
	})
}

// FireCustomerEvent reactivates skipped executions of the customer waiting on the named event.
func (h *ExecutionHandler) FireCustomerEvent(c *gin.Context) {
	customerID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	name := strings.TrimSpace(c.Param("name"))
	reactivated, err := h.services.Skips.FireEvent(c.Request.Context(), customerID, name)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	success(c, http.StatusOK, gin.H{"reactivated": reactivated})
}
