package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/apperr"
	"github.com/guidepath/guidepath/pkg/chat"
	"github.com/guidepath/guidepath/pkg/composer"
	"github.com/guidepath/guidepath/pkg/model"
	"github.com/guidepath/guidepath/pkg/store"
)

type ComposeHandler struct {
	composer    *composer.Composer
	resolver    *chat.Resolver
	files       composer.DefinitionSource
	definitions store.DefinitionRepository
	logger      *zap.Logger
}

// NewComposeHandler builds the compose endpoints. files may be nil when no definitions directory
// is loaded.
func NewComposeHandler(c *composer.Composer, resolver *chat.Resolver, files composer.DefinitionSource, definitions store.DefinitionRepository, logger *zap.Logger) *ComposeHandler {
	return &ComposeHandler{composer: c, resolver: resolver, files: files, definitions: definitions, logger: logger}
}

type composeRequest struct {
	WorkflowID string                 `json:"workflow_id" binding:"required"`
	CustomerID string                 `json:"customer_id" binding:"required"`
	Variables  map[string]interface{} `json:"variables"`
}

type chatAdvanceRequest struct {
	composeRequest
	SlideID string      `json:"slide_id" binding:"required"`
	State   *chat.State `json:"state"`
	Input   chat.Input  `json:"input"`
}

func (r composeRequest) input() (composer.ComposeInput, error) {
	customerID, err := uuid.Parse(strings.TrimSpace(r.CustomerID))
	if err != nil {
		return composer.ComposeInput{}, err
	}
	return composer.ComposeInput{
		WorkflowID: strings.TrimSpace(r.WorkflowID),
		CustomerID: customerID,
		Variables:  r.Variables,
	}, nil
}

func (h *ComposeHandler) Compose(c *gin.Context) {
	var req composeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	in, err := req.input()
	if err != nil {
		badRequest(c, "invalid customer_id")
		return
	}
	composition, err := h.composer.Compose(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	success(c, http.StatusOK, gin.H{
		"workflow": composition.Workflow,
		"customer": composition.Customer,
		"slides":   composition.Slides,
	})
}

// Advance composes the workflow against current customer data and resolves one chat turn on the
// requested slide. Without a state the slide's chat starts at its initial branch.
func (h *ComposeHandler) Advance(c *gin.Context) {
	var req chatAdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	in, err := req.input()
	if err != nil {
		badRequest(c, "invalid customer_id")
		return
	}
	if req.State != nil && len(req.State.Variables) > 0 {
		in.Variables = mergeVariables(in.Variables, req.State.Variables)
	}

	ctx := c.Request.Context()
	composition, err := h.composer.Compose(ctx, in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	slide, ok := composition.Slide(req.SlideID)
	if !ok {
		writeProblem(c, http.StatusNotFound, "not_found", "slide "+req.SlideID+" not found in workflow")
		return
	}

	var result *chat.Result
	if req.State == nil {
		result, err = h.resolver.Start(ctx, slide, in.Variables)
	} else {
		result, err = h.resolver.Advance(ctx, slide, *req.State, req.Input)
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	success(c, http.StatusOK, gin.H{"result": result})
}

// SaveDefinition validates a workflow definition against the stage registry and persists it. Ids
// owned by a definition file are rejected since the file would always win the lookup.
func (h *ComposeHandler) SaveDefinition(c *gin.Context) {
	const op = "SaveDefinition"
	var def model.WorkflowDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.composer.ValidateDefinition(&def); err != nil {
		respondError(c, h.logger, err)
		return
	}
	ctx := c.Request.Context()
	if h.files != nil {
		_, err := h.files.Definition(ctx, def.ID)
		switch {
		case err == nil:
			respondError(c, h.logger, apperr.Newf(op, apperr.KindConflict, "definition %q is loaded from a definition file", def.ID))
			return
		case !errors.Is(err, composer.ErrDefinitionNotFound):
			respondError(c, h.logger, apperr.Wrap(op, apperr.KindInternal, err))
			return
		}
	}
	if err := h.definitions.Save(ctx, &def); err != nil {
		respondError(c, h.logger, err)
		return
	}
	success(c, http.StatusCreated, gin.H{"definition": def})
}

func mergeVariables(base, overlay map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}
