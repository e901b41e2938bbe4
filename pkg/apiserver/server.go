package apiserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/apiserver/handlers"
	"github.com/guidepath/guidepath/pkg/apiserver/middleware"
	"github.com/guidepath/guidepath/pkg/auth"
	"github.com/guidepath/guidepath/pkg/chat"
	"github.com/guidepath/guidepath/pkg/composer"
	"github.com/guidepath/guidepath/pkg/eventbus"
	"github.com/guidepath/guidepath/pkg/store"
	"github.com/guidepath/guidepath/pkg/workflow"
)

// Dependencies are the collaborators the HTTP layer delegates to. Bus is optional. Files holds the
// file-backed definitions that take precedence over stored ones, if any.
type Dependencies struct {
	Store    store.Store
	Services *workflow.Services
	Composer *composer.Composer
	Files    composer.DefinitionSource
	Resolver *chat.Resolver
	Tokens   *auth.TokenManager
	Bus      *eventbus.Bus
}

type Server struct {
	router *gin.Engine
	deps   Dependencies
	logger *zap.Logger
}

func NewServer(deps Dependencies, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:   deps,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS())

	r.GET("/health", s.health)

	api := r.Group("/api/v1")
	{
		api.Use(middleware.Auth(s.deps.Tokens))

		executionHandler := handlers.NewExecutionHandler(s.deps.Services, s.logger)
		api.POST("/executions", executionHandler.Create)
		api.GET("/executions", executionHandler.List)
		api.GET("/executions/:id", executionHandler.Get)
		api.PATCH("/executions/:id", executionHandler.Update)
		api.POST("/executions/:id/skip", executionHandler.Skip)
		api.POST("/customers/:id/events/:name", executionHandler.FireCustomerEvent)

		stepHandler := handlers.NewStepHandler(s.deps.Services, s.logger)
		api.GET("/executions/:id/steps", stepHandler.States)
		api.POST("/executions/:id/steps/:index/snooze", stepHandler.Snooze)
		api.POST("/executions/:id/steps/:index/resume", stepHandler.Resume)
		api.POST("/executions/:id/steps/:index/skip", stepHandler.Skip)
		api.POST("/executions/:id/steps/:index/complete", stepHandler.Complete)
		api.POST("/executions/:id/steps/:index/escalate", stepHandler.Escalate)
		api.POST("/executions/:id/steps/:index/reviews", stepHandler.RequestReview)
		api.GET("/steps/snoozed/due", stepHandler.DueSnoozed)

		reviewHandler := handlers.NewReviewHandler(s.deps.Services.Reviews, s.logger)
		api.POST("/reviews/:id/approve", reviewHandler.Approve)
		api.POST("/reviews/:id/reject", reviewHandler.Reject)

		eventsHandler := handlers.NewEventsHandler(s.deps.Services.Executions, s.deps.Bus, s.logger)
		api.GET("/executions/:id/events", eventsHandler.Stream)

		composeHandler := handlers.NewComposeHandler(s.deps.Composer, s.deps.Resolver, s.deps.Files, s.deps.Store.Definitions(), s.logger)
		api.POST("/compose", composeHandler.Compose)
		api.POST("/chat/advance", composeHandler.Advance)
		api.POST("/definitions", middleware.RequireRole(auth.RoleAdmin), composeHandler.SaveDefinition)
	}

	s.router = r
}

// health reports ok when the store answers a ping. A failing event bus only degrades live events
// and is reported without failing the check.
func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.deps.Store.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	events := "disabled"
	if s.deps.Bus != nil {
		events = "ok"
		if err := s.deps.Bus.Ping(ctx); err != nil {
			s.logger.Warn("event bus ping failed", zap.Error(err))
			events = "unavailable"
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "events": events})
}

func (s *Server) Router() *gin.Engine {
	return s.router
}
