package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/apperr"
	"github.com/guidepath/guidepath/pkg/logging"
	"github.com/guidepath/guidepath/pkg/metrics"
	"github.com/guidepath/guidepath/pkg/model"
	"github.com/guidepath/guidepath/pkg/store"
)

type TriggerInput struct {
	Kind      model.TriggerKind `json:"kind" validate:"required,oneof=date event"`
	FireAt    *time.Time        `json:"fire_at"`
	EventName string            `json:"event_name"`
}

type SkipExecutionInput struct {
	ExecutionID uuid.UUID      `json:"execution_id" validate:"required"`
	ActorID     string         `json:"actor_id" validate:"required"`
	Reason      string         `json:"reason"`
	Triggers    []TriggerInput `json:"triggers" validate:"dive"`
}

// SkipService skips whole executions and reactivates them when one of their triggers fires.
// Skipped is terminal, so reactivation starts a new execution for the same workflow and customer.
type SkipService struct {
	base
	executions *ExecutionService
}

func NewSkipService(st store.Store, executions *ExecutionService, logger *zap.Logger, opts ...Option) *SkipService {
	return &SkipService{base: newBase(st, logger, opts), executions: executions}
}

func (s *SkipService) SkipExecution(ctx context.Context, in SkipExecutionInput) (*model.Execution, []model.SkipTrigger, error) {
	const op = "SkipExecution"
	if err := validate.Struct(in); err != nil {
		return nil, nil, validationError(op, err)
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, nil, apperr.Validation(op, "skip reason is required")
	}
	now := s.now()
	for i, t := range in.Triggers {
		switch t.Kind {
		case model.TriggerDate:
			if t.FireAt == nil || !t.FireAt.After(now) {
				return nil, nil, apperr.Newf(op, apperr.KindValidation, "trigger %d: fire_at must be in the future", i)
			}
		case model.TriggerEvent:
			if strings.TrimSpace(t.EventName) == "" {
				return nil, nil, apperr.Newf(op, apperr.KindValidation, "trigger %d: event_name is required", i)
			}
		}
	}
	ctx = logging.WithActor(logging.WithExecution(ctx, in.ExecutionID.String()), in.ActorID)

	var skipped *model.Execution
	var triggers []model.SkipTrigger
	var events []pendingEvent
	err := s.store.Transaction(ctx, func(tx store.Repositories) error {
		exec, err := tx.Executions().GetByID(ctx, in.ExecutionID)
		if err != nil {
			return s.storeError(ctx, op, "execution", err)
		}
		if !canTransitionExecution(exec.Status, model.ExecutionSkipped) {
			return apperr.InvalidTransition(op, string(exec.Status), string(model.ExecutionSkipped))
		}

		from := exec.Status
		expected := exec.Version
		setExecutionStatus(exec, model.ExecutionSkipped, now)
		exec.SkipReason = reason
		exec.LastActivityAt = &now
		if err := tx.Executions().Update(ctx, exec, expected); err != nil {
			return s.storeError(ctx, op, "execution", err)
		}

		triggerIDs := make([]string, 0, len(in.Triggers))
		for _, t := range in.Triggers {
			trigger := model.SkipTrigger{
				ID:          uuid.New(),
				ExecutionID: exec.ID,
				CustomerID:  exec.CustomerID,
				Kind:        t.Kind,
				FireAt:      t.FireAt,
				EventName:   strings.TrimSpace(t.EventName),
			}
			if err := tx.SkipTriggers().Create(ctx, &trigger); err != nil {
				return s.storeError(ctx, op, "skip_trigger", err)
			}
			triggers = append(triggers, trigger)
			triggerIDs = append(triggerIDs, trigger.ID.String())
		}

		action := &model.ExecutionAction{
			ExecutionID: exec.ID,
			PerformedBy: in.ActorID,
			ActionType:  model.ExecutionActionSkip,
			FromStatus:  from,
			ToStatus:    exec.Status,
			ActionData:  model.JSONB{"reason": reason, "trigger_ids": triggerIDs},
			Notes:       reason,
		}
		if err := tx.ExecutionActions().Append(ctx, action); err != nil {
			return s.storeError(ctx, op, "execution_action", err)
		}

		ev := pendingEvent{
			executionID: exec.ID,
			eventType:   EventExecutionSkipped,
			payload: model.JSONB{
				"from_status": string(from),
				"reason":      reason,
				"triggers":    len(triggers),
			},
		}
		if err := s.enqueue(ctx, tx, ev); err != nil {
			return s.storeError(ctx, op, "outbox", err)
		}
		events = append(events, ev)
		skipped = exec
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.publish(ctx, events...)
	metrics.ExecutionsTotal.WithLabelValues(string(model.ExecutionSkipped)).Inc()
	logging.From(ctx, s.logger).Info("execution skipped",
		zap.String("reason", reason),
		zap.Int("triggers", len(triggers)),
	)
	return skipped, triggers, nil
}

// FireEvent fires every unfired event trigger named eventName for the customer and returns the
// executions created by reactivation.
func (s *SkipService) FireEvent(ctx context.Context, customerID uuid.UUID, eventName string) ([]model.Execution, error) {
	const op = "FireEvent"
	eventName = strings.TrimSpace(eventName)
	if customerID == uuid.Nil || eventName == "" {
		return nil, apperr.Validation(op, "customer id and event name are required")
	}

	triggers, err := s.store.SkipTriggers().ListPendingEvent(ctx, customerID, eventName)
	if err != nil {
		return nil, s.storeError(ctx, op, "skip_trigger", err)
	}
	return s.fireAll(ctx, op, triggers)
}

// FireDueDateTriggers fires every unfired date trigger whose fire_at is at or before now.
func (s *SkipService) FireDueDateTriggers(ctx context.Context, now time.Time) ([]model.Execution, error) {
	const op = "FireDueDateTriggers"
	triggers, err := s.store.SkipTriggers().ListDueDate(ctx, now)
	if err != nil {
		return nil, s.storeError(ctx, op, "skip_trigger", err)
	}
	return s.fireAll(ctx, op, triggers)
}

// fireAll reactivates each trigger in its own transaction. A trigger fired concurrently elsewhere
// is skipped; the first other failure stops the batch.
func (s *SkipService) fireAll(ctx context.Context, op string, triggers []model.SkipTrigger) ([]model.Execution, error) {
	reactivated := make([]model.Execution, 0, len(triggers))
	for _, trigger := range triggers {
		exec, err := s.reactivate(ctx, op, trigger)
		if apperr.IsKind(err, apperr.KindConflict) {
			continue
		}
		if err != nil {
			return reactivated, err
		}
		reactivated = append(reactivated, *exec)
	}
	return reactivated, nil
}

func (s *SkipService) reactivate(ctx context.Context, op string, trigger model.SkipTrigger) (*model.Execution, error) {
	ctx = logging.WithExecution(ctx, trigger.ExecutionID.String())

	var created *model.Execution
	var events []pendingEvent
	err := s.store.Transaction(ctx, func(tx store.Repositories) error {
		old, err := tx.Executions().GetByID(ctx, trigger.ExecutionID)
		if err != nil {
			return s.storeError(ctx, op, "execution", err)
		}

		exec, ev, err := s.executions.insertExecution(ctx, tx, op, CreateExecutionInput{
			WorkflowConfigID: old.WorkflowConfigID,
			WorkflowName:     old.WorkflowName,
			WorkflowType:     old.WorkflowType,
			CustomerID:       old.CustomerID,
			UserID:           old.UserID,
			AssignedTo:       old.AssignedTo,
			TotalSteps:       old.TotalSteps,
			PriorityScore:    old.PriorityScore,
			Variables:        old.Variables,
		})
		if err != nil {
			return err
		}
		events = append(events, ev)

		if err := tx.SkipTriggers().MarkFired(ctx, trigger.ID, s.now(), exec.ID); err != nil {
			return s.storeError(ctx, op, "skip_trigger", err)
		}

		action := &model.ExecutionAction{
			ExecutionID: old.ID,
			PerformedBy: systemActor,
			ActionType:  model.ExecutionActionReactivate,
			FromStatus:  old.Status,
			ToStatus:    old.Status,
			ActionData: model.JSONB{
				"trigger_id":               trigger.ID.String(),
				"trigger_kind":             string(trigger.Kind),
				"reactivated_execution_id": exec.ID.String(),
			},
		}
		if err := tx.ExecutionActions().Append(ctx, action); err != nil {
			return s.storeError(ctx, op, "execution_action", err)
		}

		reEv := pendingEvent{
			executionID: old.ID,
			eventType:   EventExecutionReactivated,
			payload: model.JSONB{
				"trigger_id":               trigger.ID.String(),
				"reactivated_execution_id": exec.ID.String(),
			},
		}
		if err := s.enqueue(ctx, tx, reEv); err != nil {
			return s.storeError(ctx, op, "outbox", err)
		}
		events = append(events, reEv)
		created = exec
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events...)
	metrics.ExecutionsTotal.WithLabelValues(string(created.Status)).Inc()
	logging.From(ctx, s.logger).Info("execution reactivated",
		zap.String("trigger_id", trigger.ID.String()),
		zap.String("reactivated_execution_id", created.ID.String()),
	)
	return created, nil
}
