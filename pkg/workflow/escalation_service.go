package workflow

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/apperr"
	"github.com/guidepath/guidepath/pkg/logging"
	"github.com/guidepath/guidepath/pkg/metrics"
	"github.com/guidepath/guidepath/pkg/model"
	"github.com/guidepath/guidepath/pkg/store"
)

type EscalateStepInput struct {
	ExecutionID uuid.UUID `json:"execution_id" validate:"required"`
	StepIndex   int       `json:"step_index" validate:"gte=0"`
	StepID      string    `json:"step_id"`
	Label       string    `json:"label"`
	ActorID     string    `json:"actor_id" validate:"required"`
	EscalateTo  string    `json:"escalate_to" validate:"required"`
	Reason      string    `json:"reason"`
}

// EscalationService hands an execution to another user without changing any step status.
type EscalationService struct {
	steps *StepService
}

func NewEscalationService(steps *StepService) *EscalationService {
	return &EscalationService{steps: steps}
}

func (s *EscalationService) EscalateStep(ctx context.Context, in EscalateStepInput) (*model.Execution, error) {
	const op = "EscalateStep"
	if err := validate.Struct(in); err != nil {
		return nil, validationError(op, err)
	}
	b := &s.steps.base
	ctx = logging.WithActor(logging.WithStep(logging.WithExecution(ctx, in.ExecutionID.String()), in.StepIndex), in.ActorID)
	reason := strings.TrimSpace(in.Reason)

	var escalated *model.Execution
	var events []pendingEvent
	err := b.store.Transaction(ctx, func(tx store.Repositories) error {
		exec, err := tx.Executions().GetByID(ctx, in.ExecutionID)
		if err != nil {
			return b.storeError(ctx, op, "execution", err)
		}
		if err := checkStepIndex(op, exec, in.StepIndex); err != nil {
			return err
		}
		if err := ensureActive(op, exec); err != nil {
			return err
		}
		if exec.Assignee() == in.EscalateTo {
			return apperr.Validation(op, "execution is already assigned to "+in.EscalateTo)
		}

		state, _, err := s.steps.loadState(ctx, tx, op, exec.ID, in.StepIndex)
		if err != nil {
			return err
		}
		if in.StepID != "" {
			state.StepID = in.StepID
		}

		previous := exec.Assignee()
		expected := exec.Version
		now := b.now()
		exec.AssignedTo = in.EscalateTo
		exec.LastActivityAt = &now
		if err := tx.Executions().Update(ctx, exec, expected); err != nil {
			return b.storeError(ctx, op, "execution", err)
		}

		data := model.JSONB{"from": previous, "to": in.EscalateTo}
		if reason != "" {
			data["reason"] = reason
		}
		if in.Label != "" {
			data["label"] = in.Label
		}
		stepAction := &model.StepAction{
			ExecutionID: exec.ID,
			StepIndex:   in.StepIndex,
			StepID:      state.StepID,
			PerformedBy: in.ActorID,
			ActionType:  model.ActionEscalate,
			NewStatus:   state.Status,
			ActionData:  data,
			Notes:       reason,
		}
		if err := tx.StepActions().Append(ctx, stepAction); err != nil {
			return b.storeError(ctx, op, "step_action", err)
		}

		execAction := &model.ExecutionAction{
			ExecutionID: exec.ID,
			PerformedBy: in.ActorID,
			ActionType:  model.ExecutionActionEscalate,
			FromStatus:  exec.Status,
			ToStatus:    exec.Status,
			ActionData:  model.JSONB{"from": previous, "to": in.EscalateTo, "step_index": in.StepIndex},
			Notes:       reason,
		}
		if err := tx.ExecutionActions().Append(ctx, execAction); err != nil {
			return b.storeError(ctx, op, "execution_action", err)
		}

		ev := pendingEvent{
			executionID: exec.ID,
			eventType:   EventExecutionEscalated,
			payload: model.JSONB{
				"step_index": in.StepIndex,
				"from":       previous,
				"to":         in.EscalateTo,
			},
		}
		if err := b.enqueue(ctx, tx, ev); err != nil {
			return b.storeError(ctx, op, "outbox", err)
		}
		events = append(events, ev)
		escalated = exec
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.publish(ctx, events...)
	metrics.StepTransitionsTotal.WithLabelValues(string(model.ActionEscalate), "unchanged").Inc()
	logging.From(ctx, b.logger).Info("step escalated", zap.String("escalate_to", in.EscalateTo))
	return escalated, nil
}
