package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/apiserver/middleware"
	"github.com/guidepath/guidepath/pkg/workflow"
)

type ReviewHandler struct {
	reviews *workflow.ReviewService
	logger  *zap.Logger
}

func NewReviewHandler(reviews *workflow.ReviewService, logger *zap.Logger) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, logger: logger}
}

type reviewDecisionRequest struct {
	Notes string `json:"notes"`
}

func (h *ReviewHandler) Approve(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req reviewDecisionRequest
	if !bindOptionalJSON(c, h.logger, &req) {
		return
	}
	review, err := h.reviews.Approve(c.Request.Context(), id, middleware.Actor(c), req.Notes)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	success(c, http.StatusOK, gin.H{"review": review})
}

func (h *ReviewHandler) Reject(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req reviewDecisionRequest
	if !bindOptionalJSON(c, h.logger, &req) {
		return
	}
	review, err := h.reviews.Reject(c.Request.Context(), id, middleware.Actor(c), req.Notes)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	success(c, http.StatusOK, gin.H{"review": review})
}
