package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/eventbus"
	"github.com/guidepath/guidepath/pkg/logging"
	"github.com/guidepath/guidepath/pkg/workflow"
)

type EventsHandler struct {
	executions *workflow.ExecutionService
	bus        *eventbus.Bus
	logger     *zap.Logger
}

// NewEventsHandler builds the live events endpoint. bus may be nil when redis is not configured.
func NewEventsHandler(executions *workflow.ExecutionService, bus *eventbus.Bus, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{executions: executions, bus: bus, logger: logger}
}

// Stream follows an execution's live events as server-sent events until the client disconnects.
func (h *EventsHandler) Stream(c *gin.Context) {
	id, _, ok := executionParams(c, false)
	if !ok {
		return
	}
	if h.bus == nil {
		writeProblem(c, http.StatusServiceUnavailable, "unavailable", "live events are not enabled")
		return
	}
	ctx := c.Request.Context()
	if _, err := h.executions.GetExecution(ctx, id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Transfer-Encoding", "chunked")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	log := logging.From(ctx, h.logger)
	log.Debug("event stream opened")
	events := h.bus.Subscribe(ctx, eventbus.ExecutionChannel(id))
	for {
		select {
		case event, open := <-events:
			if !open {
				return
			}
			c.SSEvent(event.Type, event)
			c.Writer.Flush()
		case <-ctx.Done():
			log.Debug("event stream closed")
			return
		}
	}
}
