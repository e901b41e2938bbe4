// Package composer turns a workflow definition plus live customer data into hydrated slides.
package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/apperr"
	"github.com/guidepath/guidepath/pkg/logging"
	"github.com/guidepath/guidepath/pkg/metrics"
	"github.com/guidepath/guidepath/pkg/model"
	"github.com/guidepath/guidepath/pkg/store"
)

type ComposeInput struct {
	WorkflowID string                 `json:"workflow_id"`
	CustomerID uuid.UUID              `json:"customer_id"`
	Variables  map[string]interface{} `json:"variables,omitempty"`
}

type WorkflowSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

type Composition struct {
	Workflow WorkflowSummary `json:"workflow"`
	Customer *CustomerData   `json:"customer"`
	Slides   []Slide         `json:"slides"`
}

type Composer struct {
	stages      *StageRegistry
	definitions DefinitionSource
	customers   CustomerDataProvider
	logger      *zap.Logger

	mu       sync.RWMutex
	programs map[string]*vm.Program
}

func New(stages *StageRegistry, definitions DefinitionSource, customers CustomerDataProvider, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{
		stages:      stages,
		definitions: definitions,
		customers:   customers,
		logger:      logger,
		programs:    make(map[string]*vm.Program),
	}
}

func (c *Composer) Compose(ctx context.Context, in ComposeInput) (*Composition, error) {
	const op = "Compose"
	if strings.TrimSpace(in.WorkflowID) == "" || in.CustomerID == uuid.Nil {
		return nil, apperr.Validation(op, "workflow_id and customer_id are required")
	}
	start := time.Now()
	defer func() {
		metrics.ComposeDuration.WithLabelValues(in.WorkflowID).Observe(time.Since(start).Seconds())
	}()
	log := logging.From(ctx, c.logger).With(
		zap.String("workflow_id", in.WorkflowID),
		zap.String("customer_id", in.CustomerID.String()),
	)

	def, err := c.definitions.Definition(ctx, in.WorkflowID)
	if err != nil {
		if errors.Is(err, ErrDefinitionNotFound) {
			return nil, apperr.Wrap(op, apperr.KindNotFound, err)
		}
		return nil, apperr.Persistence(op, err)
	}

	data, err := c.customers.CustomerData(ctx, in.CustomerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound(op, "customer not found")
		}
		return nil, apperr.Persistence(op, err)
	}

	summary := WorkflowSummary{ID: def.ID, Name: def.Name, Type: def.Type}
	hydrator, err := NewHydrator(hydrationContext(summary, data, in.Variables))
	if err != nil {
		return nil, apperr.Wrap(op, apperr.KindInternal, err)
	}
	env := hydrator.Document()

	slides := make([]Slide, 0, len(def.Stages))
	for i, ref := range def.Stages {
		stage, err := c.stages.Lookup(ref.Stage)
		if err != nil {
			return nil, apperr.Wrap(op, apperr.KindConfiguration, err).
				WithDetails(map[string]any{"workflow_id": def.ID, "position": i})
		}
		if ref.When != "" {
			include, err := c.evaluate(ref.When, env)
			if err != nil {
				return nil, apperr.Wrap(op, apperr.KindConfiguration, fmt.Errorf("stage %d (%s) when: %w", i, ref.Stage, err))
			}
			if !include {
				log.Debug("stage omitted by condition", zap.String("stage", ref.Stage))
				continue
			}
		}

		cfg := stage.Merge(ref.Config)
		if err := stage.Validate(cfg); err != nil {
			return nil, apperr.Wrap(op, apperr.KindConfiguration, err)
		}
		built := stage.Build(cfg)
		slide, err := hydrator.Slide(built)
		if err != nil {
			return nil, apperr.Wrap(op, apperr.KindInternal, err)
		}
		slides = append(slides, slide.withTemplates(built, env))
	}

	log.Info("workflow composed", zap.Int("slides", len(slides)))
	return &Composition{Workflow: summary, Customer: data, Slides: slides}, nil
}

// ValidateDefinition checks that every stage is registered, every merged config satisfies its
// stage schema and every condition compiles.
func (c *Composer) ValidateDefinition(def *model.WorkflowDefinition) error {
	const op = "ValidateDefinition"
	if def == nil || strings.TrimSpace(def.ID) == "" || strings.TrimSpace(def.Name) == "" {
		return apperr.Validation(op, "definition id and name are required")
	}
	if len(def.Stages) == 0 {
		return apperr.Validation(op, "definition has no stages")
	}
	for i, ref := range def.Stages {
		stage, err := c.stages.Lookup(ref.Stage)
		if err != nil {
			return apperr.Newf(op, apperr.KindValidation, "stage %d: %v", i, err)
		}
		if err := stage.Validate(stage.Merge(ref.Config)); err != nil {
			return apperr.Newf(op, apperr.KindValidation, "stage %d: %v", i, err)
		}
		if ref.When != "" {
			if _, err := c.program(ref.When); err != nil {
				return apperr.Newf(op, apperr.KindValidation, "stage %d when: %v", i, err)
			}
		}
	}
	return nil
}

func (c *Composer) evaluate(expression string, env map[string]interface{}) (bool, error) {
	program, err := c.program(expression)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	include, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q returned %T, want bool", expression, out)
	}
	return include, nil
}

// program compiles against an untyped environment so one compiled condition serves every
// customer context.
func (c *Composer) program(expression string) (*vm.Program, error) {
	c.mu.RLock()
	program, ok := c.programs[expression]
	c.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.Env(map[string]interface{}{}), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.programs[expression] = program
	c.mu.Unlock()
	return program, nil
}

func hydrationContext(workflow WorkflowSummary, data *CustomerData, variables map[string]interface{}) map[string]interface{} {
	if variables == nil {
		variables = map[string]interface{}{}
	}
	return map[string]interface{}{
		"workflow":   workflow,
		"customer":   data.Customer,
		"contacts":   data.Contacts,
		"contract":   data.Contract,
		"renewal":    data.Renewal,
		"operations": data.Operations,
		"tickets":    data.Tickets,
		"properties": data.Properties,
		"variables":  variables,
	}
}

// Slide returns the composed slide with the given id.
func (c *Composition) Slide(id string) (Slide, bool) {
	for _, s := range c.Slides {
		if s.ID == id {
			return s, true
		}
	}
	return Slide{}, false
}
