package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/apperr"
	"github.com/guidepath/guidepath/pkg/logging"
	"github.com/guidepath/guidepath/pkg/metrics"
	"github.com/guidepath/guidepath/pkg/model"
	"github.com/guidepath/guidepath/pkg/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	systemActor      = "system"
)

type CreateExecutionInput struct {
	WorkflowConfigID string                 `json:"workflow_config_id" validate:"required"`
	WorkflowName     string                 `json:"workflow_name" validate:"required"`
	WorkflowType     string                 `json:"workflow_type"`
	CustomerID       uuid.UUID              `json:"customer_id" validate:"required"`
	UserID           string                 `json:"user_id" validate:"required"`
	AssignedTo       string                 `json:"assigned_to"`
	TotalSteps       int                    `json:"total_steps" validate:"gt=0"`
	PriorityScore    int                    `json:"priority_score"`
	Variables        map[string]interface{} `json:"variables"`
}

type UpdateExecutionInput struct {
	Status      *model.ExecutionStatus `json:"status"`
	CurrentStep *int                   `json:"current_step"`
	ActorID     string                 `json:"-"`
}

type ListExecutionsFilter struct {
	UserID     string
	CustomerID *uuid.UUID
	Status     *model.ExecutionStatus
	Limit      int
	Offset     int
}

type ExecutionService struct {
	base
}

func NewExecutionService(st store.Store, logger *zap.Logger, opts ...Option) *ExecutionService {
	return &ExecutionService{base: newBase(st, logger, opts)}
}

func (s *ExecutionService) CreateExecution(ctx context.Context, in CreateExecutionInput) (*model.Execution, error) {
	const op = "CreateExecution"
	if err := validate.Struct(in); err != nil {
		return nil, validationError(op, err)
	}
	ctx = logging.WithActor(ctx, in.UserID)

	var created *model.Execution
	var events []pendingEvent
	err := s.store.Transaction(ctx, func(tx store.Repositories) error {
		exec, ev, err := s.insertExecution(ctx, tx, op, in)
		if err != nil {
			return err
		}
		created = exec
		events = append(events, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events...)
	metrics.ExecutionsTotal.WithLabelValues(string(created.Status)).Inc()
	logging.From(logging.WithExecution(ctx, created.ID.String()), s.logger).Info("execution created",
		zap.String("workflow_config_id", created.WorkflowConfigID),
		zap.String("customer_id", created.CustomerID.String()),
		zap.Int("total_steps", created.TotalSteps),
	)
	return created, nil
}

// insertExecution creates an in_progress execution inside tx after checking the customer exists.
func (s *ExecutionService) insertExecution(ctx context.Context, tx store.Repositories, op string, in CreateExecutionInput) (*model.Execution, pendingEvent, error) {
	if _, err := tx.Customers().GetByID(ctx, in.CustomerID); err != nil {
		return nil, pendingEvent{}, s.storeError(ctx, op, "customer", err)
	}

	now := s.now()
	exec := &model.Execution{
		ID:               uuid.New(),
		WorkflowConfigID: in.WorkflowConfigID,
		WorkflowName:     in.WorkflowName,
		WorkflowType:     in.WorkflowType,
		CustomerID:       in.CustomerID,
		UserID:           in.UserID,
		AssignedTo:       in.AssignedTo,
		Status:           model.ExecutionInProgress,
		TotalSteps:       in.TotalSteps,
		PriorityScore:    in.PriorityScore,
		Variables:        model.JSONB(in.Variables).Clone(),
		Version:          1,
		StartedAt:        &now,
		LastActivityAt:   &now,
	}
	if exec.Variables == nil {
		exec.Variables = model.JSONB{}
	}
	if err := tx.Executions().Create(ctx, exec); err != nil {
		return nil, pendingEvent{}, s.storeError(ctx, op, "execution", err)
	}

	ev := pendingEvent{
		executionID: exec.ID,
		eventType:   EventExecutionCreated,
		payload: model.JSONB{
			"workflow_config_id": exec.WorkflowConfigID,
			"customer_id":        exec.CustomerID.String(),
			"user_id":            exec.UserID,
			"total_steps":        exec.TotalSteps,
		},
	}
	if err := s.enqueue(ctx, tx, ev); err != nil {
		return nil, pendingEvent{}, s.storeError(ctx, op, "outbox", err)
	}
	return exec, ev, nil
}

// GetExecution returns the execution with its step states and step actions.
func (s *ExecutionService) GetExecution(ctx context.Context, id uuid.UUID) (*model.Execution, error) {
	const op = "GetExecution"
	if id == uuid.Nil {
		return nil, apperr.Validation(op, "execution id is required")
	}
	exec, err := s.store.Executions().GetWithHistory(ctx, id)
	if err != nil {
		return nil, s.storeError(ctx, op, "execution", err)
	}
	return exec, nil
}

func (s *ExecutionService) UpdateExecution(ctx context.Context, id uuid.UUID, in UpdateExecutionInput) (*model.Execution, error) {
	const op = "UpdateExecution"
	if id == uuid.Nil {
		return nil, apperr.Validation(op, "execution id is required")
	}
	if in.Status == nil && in.CurrentStep == nil {
		return nil, apperr.Validation(op, "status or current_step is required")
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, apperr.Newf(op, apperr.KindValidation, "unknown status %q", *in.Status)
	}
	actor := in.ActorID
	if actor == "" {
		actor = systemActor
	}
	ctx = logging.WithActor(logging.WithExecution(ctx, id.String()), actor)

	var updated *model.Execution
	var from model.ExecutionStatus
	var events []pendingEvent
	err := s.store.Transaction(ctx, func(tx store.Repositories) error {
		exec, err := tx.Executions().GetByID(ctx, id)
		if err != nil {
			return s.storeError(ctx, op, "execution", err)
		}
		from = exec.Status
		expected := exec.Version
		now := s.now()
		changed := false

		if in.Status != nil && *in.Status != exec.Status {
			if !canTransitionExecution(exec.Status, *in.Status) {
				return apperr.InvalidTransition(op, string(exec.Status), string(*in.Status))
			}
			setExecutionStatus(exec, *in.Status, now)
			changed = true
		}

		if in.CurrentStep != nil {
			if from.IsTerminal() {
				return apperr.Newf(op, apperr.KindInvalidTransition, "execution is %s", from).
					WithDetails(map[string]any{"status": string(from)})
			}
			if err := checkStepIndex(op, exec, *in.CurrentStep); err != nil {
				return err
			}
			if exec.CurrentStepIndex != *in.CurrentStep {
				exec.CurrentStepIndex = *in.CurrentStep
				changed = true
			}
		}

		if !changed {
			updated = exec
			return nil
		}

		exec.LastActivityAt = &now
		if err := tx.Executions().Update(ctx, exec, expected); err != nil {
			return s.storeError(ctx, op, "execution", err)
		}
		if exec.Status != from {
			if err := s.recordStatusChange(ctx, tx, exec, from, actor, ""); err != nil {
				return err
			}
		}

		ev := pendingEvent{
			executionID: exec.ID,
			eventType:   executionEventType(exec.Status, from),
			payload: model.JSONB{
				"from_status":        string(from),
				"status":             string(exec.Status),
				"current_step_index": exec.CurrentStepIndex,
			},
		}
		if err := s.enqueue(ctx, tx, ev); err != nil {
			return s.storeError(ctx, op, "outbox", err)
		}
		events = append(events, ev)
		updated = exec
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(events) > 0 {
		s.publish(ctx, events...)
		if updated.Status != from {
			metrics.ExecutionsTotal.WithLabelValues(string(updated.Status)).Inc()
		}
		logging.From(ctx, s.logger).Info("execution updated",
			zap.String("from_status", string(from)),
			zap.String("status", string(updated.Status)),
			zap.Int("current_step_index", updated.CurrentStepIndex),
		)
	}
	return updated, nil
}

func (s *ExecutionService) ListExecutions(ctx context.Context, filter ListExecutionsFilter) ([]model.Execution, int64, error) {
	const op = "ListExecutions"
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, 0, apperr.Newf(op, apperr.KindValidation, "unknown status %q", *filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	executions, total, err := s.store.Executions().List(ctx, store.ExecutionFilter{
		UserID:     filter.UserID,
		CustomerID: filter.CustomerID,
		Status:     filter.Status,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, 0, s.storeError(ctx, op, "execution", err)
	}
	return executions, total, nil
}

func (b *base) recordStatusChange(ctx context.Context, tx store.Repositories, exec *model.Execution, from model.ExecutionStatus, actor, notes string) error {
	action := &model.ExecutionAction{
		ExecutionID: exec.ID,
		PerformedBy: actor,
		ActionType:  model.ExecutionActionStatusChange,
		FromStatus:  from,
		ToStatus:    exec.Status,
		ActionData:  model.JSONB{},
		Notes:       notes,
	}
	if err := tx.ExecutionActions().Append(ctx, action); err != nil {
		return b.storeError(ctx, "RecordStatusChange", "execution_action", err)
	}
	return nil
}

func setExecutionStatus(exec *model.Execution, status model.ExecutionStatus, now time.Time) {
	exec.Status = status
	switch status {
	case model.ExecutionInProgress:
		if exec.StartedAt == nil {
			exec.StartedAt = &now
		}
	case model.ExecutionCompleted:
		exec.CompletedAt = &now
		exec.CompletionPercentage = 100
	case model.ExecutionSkipped:
		exec.SkippedAt = &now
	}
}

func executionEventType(status, from model.ExecutionStatus) string {
	if status == from {
		return EventExecutionUpdated
	}
	switch status {
	case model.ExecutionCompleted:
		return EventExecutionCompleted
	case model.ExecutionSkipped:
		return EventExecutionSkipped
	default:
		return EventExecutionUpdated
	}
}

// applyProgress recomputes completion from the step states. Completion never decreases, the
// current step moves to the lowest non-terminal step, and an execution whose steps are all terminal
// becomes completed. It reports whether the execution completed.
func applyProgress(exec *model.Execution, states []model.StepState, now time.Time) bool {
	terminal := make(map[int]bool, len(states))
	for _, st := range states {
		if st.StepIndex >= 0 && st.StepIndex < exec.TotalSteps && st.Status.IsTerminal() {
			terminal[st.StepIndex] = true
		}
	}

	pct := 100 * len(terminal) / exec.TotalSteps
	if pct > exec.CompletionPercentage {
		exec.CompletionPercentage = pct
	}

	if exec.Status == model.ExecutionNotStarted {
		setExecutionStatus(exec, model.ExecutionInProgress, now)
	}

	for i := 0; i < exec.TotalSteps; i++ {
		if !terminal[i] {
			exec.CurrentStepIndex = i
			return false
		}
	}

	exec.CurrentStepIndex = exec.TotalSteps - 1
	setExecutionStatus(exec, model.ExecutionCompleted, now)
	return true
}
