package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/logging"
)

func parseLimit(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func parseOffset(value string) int {
	if value == "" {
		return 0
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return 0
	}
	return parsed
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// executionParams reads :id and :index and tags the request context with both.
func executionParams(c *gin.Context, withStep bool) (uuid.UUID, int, bool) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return uuid.Nil, 0, false
	}
	ctx := logging.WithExecution(c.Request.Context(), id.String())
	index := 0
	if withStep {
		parsed, err := strconv.Atoi(c.Param("index"))
		if err != nil || parsed < 0 {
			badRequest(c, "invalid step index")
			return uuid.Nil, 0, false
		}
		index = parsed
		ctx = logging.WithStep(ctx, index)
	}
	c.Request = c.Request.WithContext(ctx)
	return id, index, true
}

// bindOptionalJSON binds a JSON body when one is present.
func bindOptionalJSON(c *gin.Context, logger *zap.Logger, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		logging.From(c.Request.Context(), logger).Debug("invalid request body", zap.Error(err))
		badRequest(c, "invalid request: "+err.Error())
		return false
	}
	return true
}
