package workflow

import (
	"context"
	"errors"
	"fmt"
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

type SnoozeStepInput struct {
	ExecutionID uuid.UUID  `json:"execution_id" validate:"required"`
	StepIndex   int        `json:"step_index" validate:"gte=0"`
	StepID      string     `json:"step_id"`
	Label       string     `json:"label"`
	ActorID     string     `json:"actor_id" validate:"required"`
	Until       *time.Time `json:"until"`
	Days        int        `json:"days" validate:"gte=0"`
	Reason      string     `json:"reason"`
}

type SkipStepInput struct {
	ExecutionID uuid.UUID `json:"execution_id" validate:"required"`
	StepIndex   int       `json:"step_index" validate:"gte=0"`
	StepID      string    `json:"step_id"`
	Label       string    `json:"label"`
	ActorID     string    `json:"actor_id" validate:"required"`
	Reason      string    `json:"reason"`
}

type CompleteStepInput struct {
	ExecutionID uuid.UUID `json:"execution_id" validate:"required"`
	StepIndex   int       `json:"step_index" validate:"gte=0"`
	StepID      string    `json:"step_id"`
	Label       string    `json:"label"`
	ActorID     string    `json:"actor_id" validate:"required"`
	Notes       string    `json:"notes"`
}

// stepChange describes one step transition. guard runs inside the transaction before the write.
type stepChange struct {
	op         string
	action     model.ActionType
	target     model.StepStatus
	stepID     string
	label      string
	actionData model.JSONB
	notes      string
	eventType  string
	advance    bool
	guard      func(ctx context.Context, tx store.Repositories, exec *model.Execution, state *model.StepState) error
	apply      func(state *model.StepState, now time.Time)
}

type StepService struct {
	base
}

func NewStepService(st store.Store, logger *zap.Logger, opts ...Option) *StepService {
	return &StepService{base: newBase(st, logger, opts)}
}

func (s *StepService) SnoozeStep(ctx context.Context, in SnoozeStepInput) (*model.StepState, error) {
	const op = "SnoozeStep"
	if err := validate.Struct(in); err != nil {
		return nil, validationError(op, err)
	}

	now := s.now()
	var until time.Time
	switch {
	case in.Until != nil:
		until = *in.Until
	case in.Days > 0:
		until = now.AddDate(0, 0, in.Days)
	default:
		return nil, apperr.Validation(op, "until or days is required")
	}
	if !until.After(now) {
		return nil, apperr.Validation(op, "snooze must end in the future")
	}

	var days *int
	if in.Days > 0 {
		d := in.Days
		days = &d
	}
	data := model.JSONB{"snooze_until": until.UTC().Format(time.RFC3339)}
	if days != nil {
		data["snooze_days"] = *days
	}
	if in.Reason != "" {
		data["reason"] = in.Reason
	}

	return s.transition(ctx, in.ExecutionID, in.StepIndex, in.ActorID, stepChange{
		op:         op,
		action:     model.ActionSnooze,
		target:     model.StepSnoozed,
		stepID:     in.StepID,
		label:      in.Label,
		actionData: data,
		notes:      in.Reason,
		eventType:  EventStepSnoozed,
		apply: func(state *model.StepState, _ time.Time) {
			u := until
			state.SnoozeUntil = &u
			state.SnoozeDays = days
			state.DueNotifiedAt = nil
		},
	})
}

// ResumeStep moves a snoozed step back to pending and clears its snooze fields.
func (s *StepService) ResumeStep(ctx context.Context, executionID uuid.UUID, stepIndex int, actorID string) (*model.StepState, error) {
	const op = "ResumeStep"
	if err := requireStepRef(op, executionID, stepIndex, actorID); err != nil {
		return nil, err
	}

	return s.transition(ctx, executionID, stepIndex, actorID, stepChange{
		op:         op,
		action:     model.ActionUnsnooze,
		target:     model.StepPending,
		actionData: model.JSONB{},
		eventType:  EventStepResumed,
		apply: func(state *model.StepState, _ time.Time) {
			state.SnoozeUntil = nil
			state.SnoozeDays = nil
			state.DueNotifiedAt = nil
		},
	})
}

func (s *StepService) SkipStep(ctx context.Context, in SkipStepInput) (*model.StepState, error) {
	const op = "SkipStep"
	if err := validate.Struct(in); err != nil {
		return nil, validationError(op, err)
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, apperr.Validation(op, "skip reason is required")
	}

	return s.transition(ctx, in.ExecutionID, in.StepIndex, in.ActorID, stepChange{
		op:         op,
		action:     model.ActionSkip,
		target:     model.StepSkipped,
		stepID:     in.StepID,
		label:      in.Label,
		actionData: model.JSONB{"reason": reason},
		notes:      reason,
		eventType:  EventStepSkipped,
		advance:    true,
		apply: func(state *model.StepState, _ time.Time) {
			r := reason
			state.SkipReason = &r
			state.SnoozeUntil = nil
			state.SnoozeDays = nil
			state.DueNotifiedAt = nil
		},
	})
}

func (s *StepService) CompleteStep(ctx context.Context, in CompleteStepInput) (*model.StepState, error) {
	const op = "CompleteStep"
	if err := validate.Struct(in); err != nil {
		return nil, validationError(op, err)
	}

	return s.transition(ctx, in.ExecutionID, in.StepIndex, in.ActorID, stepChange{
		op:         op,
		action:     model.ActionComplete,
		target:     model.StepCompleted,
		stepID:     in.StepID,
		label:      in.Label,
		actionData: model.JSONB{},
		notes:      in.Notes,
		eventType:  EventStepCompleted,
		advance:    true,
		guard: func(ctx context.Context, tx store.Repositories, exec *model.Execution, state *model.StepState) error {
			_, err := tx.Reviews().FindPending(ctx, exec.ID, state.StepIndex)
			switch {
			case err == nil:
				return apperr.New(op, apperr.KindInvalidTransition, "step has a pending review").
					WithDetails(map[string]any{"step_index": state.StepIndex})
			case errors.Is(err, store.ErrNotFound):
				return nil
			default:
				return s.storeError(ctx, op, "review", err)
			}
		},
		apply: func(state *model.StepState, now time.Time) {
			state.CompletedAt = &now
			state.SnoozeUntil = nil
			state.SnoozeDays = nil
			state.DueNotifiedAt = nil
		},
	})
}

// GetStepStates returns every stored step state of the execution ordered by step index. Steps
// without a row are pending and are not returned.
func (s *StepService) GetStepStates(ctx context.Context, executionID uuid.UUID) ([]model.StepState, error) {
	const op = "GetStepStates"
	if executionID == uuid.Nil {
		return nil, apperr.Validation(op, "execution id is required")
	}
	if _, err := s.store.Executions().GetByID(ctx, executionID); err != nil {
		return nil, s.storeError(ctx, op, "execution", err)
	}
	states, err := s.store.StepStates().ListByExecution(ctx, executionID)
	if err != nil {
		return nil, s.storeError(ctx, op, "step_state", err)
	}
	return states, nil
}

// GetSnoozedStepsDue returns snoozed steps whose snooze has ended across the active executions
// assigned to actorID.
func (s *StepService) GetSnoozedStepsDue(ctx context.Context, actorID string) ([]model.DueStep, error) {
	const op = "GetSnoozedStepsDue"
	if strings.TrimSpace(actorID) == "" {
		return nil, apperr.Validation(op, "actor id is required")
	}
	due, err := s.store.StepStates().ListSnoozedDue(ctx, actorID, s.now())
	if err != nil {
		return nil, s.storeError(ctx, op, "step_state", err)
	}
	return due, nil
}

func (s *StepService) transition(ctx context.Context, executionID uuid.UUID, stepIndex int, actorID string, ch stepChange) (*model.StepState, error) {
	ctx = logging.WithActor(logging.WithStep(logging.WithExecution(ctx, executionID.String()), stepIndex), actorID)
	now := s.now()

	var result model.StepState
	var from model.StepStatus
	var completed bool
	var events []pendingEvent
	err := s.store.Transaction(ctx, func(tx store.Repositories) error {
		exec, err := tx.Executions().GetByID(ctx, executionID)
		if err != nil {
			return s.storeError(ctx, ch.op, "execution", err)
		}
		if err := checkStepIndex(ch.op, exec, stepIndex); err != nil {
			return err
		}
		if err := ensureActive(ch.op, exec); err != nil {
			return err
		}

		state, expected, err := s.loadState(ctx, tx, ch.op, exec.ID, stepIndex)
		if err != nil {
			return err
		}
		from = state.Status
		if !canTransitionStep(from, ch.target) {
			return apperr.InvalidTransition(ch.op, string(from), string(ch.target))
		}
		if ch.guard != nil {
			if err := ch.guard(ctx, tx, exec, &state); err != nil {
				return err
			}
		}

		if ch.stepID != "" {
			state.StepID = ch.stepID
		}
		if ch.label != "" {
			state.StepLabel = ch.label
		}
		state.Status = ch.target
		ch.apply(&state, now)
		if err := tx.StepStates().Upsert(ctx, &state, expected); err != nil {
			return s.storeError(ctx, ch.op, "step_state", err)
		}

		action := &model.StepAction{
			ExecutionID: exec.ID,
			StepIndex:   stepIndex,
			StepID:      state.StepID,
			PerformedBy: actorID,
			ActionType:  ch.action,
			NewStatus:   state.Status,
			ActionData:  ch.actionData,
			Notes:       ch.notes,
		}
		if err := tx.StepActions().Append(ctx, action); err != nil {
			return s.storeError(ctx, ch.op, "step_action", err)
		}

		execFrom := exec.Status
		execVersion := exec.Version
		exec.LastActivityAt = &now
		if ch.advance {
			states, err := tx.StepStates().ListByExecution(ctx, exec.ID)
			if err != nil {
				return s.storeError(ctx, ch.op, "step_state", err)
			}
			completed = applyProgress(exec, states, now)
		}
		if err := tx.Executions().Update(ctx, exec, execVersion); err != nil {
			return s.storeError(ctx, ch.op, "execution", err)
		}

		ev := pendingEvent{
			executionID: exec.ID,
			eventType:   ch.eventType,
			payload: model.JSONB{
				"step_index":            stepIndex,
				"step_id":               state.StepID,
				"from_status":           string(from),
				"status":                string(state.Status),
				"actor_id":              actorID,
				"completion_percentage": exec.CompletionPercentage,
				"current_step_index":    exec.CurrentStepIndex,
			},
		}
		if err := s.enqueue(ctx, tx, ev); err != nil {
			return s.storeError(ctx, ch.op, "outbox", err)
		}
		events = append(events, ev)

		if exec.Status != execFrom {
			if err := s.recordStatusChange(ctx, tx, exec, execFrom, actorID, fmt.Sprintf("step %d %s", stepIndex, ch.action)); err != nil {
				return err
			}
			statusEv := pendingEvent{
				executionID: exec.ID,
				eventType:   executionEventType(exec.Status, execFrom),
				payload: model.JSONB{
					"from_status": string(execFrom),
					"status":      string(exec.Status),
				},
			}
			if err := s.enqueue(ctx, tx, statusEv); err != nil {
				return s.storeError(ctx, ch.op, "outbox", err)
			}
			events = append(events, statusEv)
		}

		result = state
		return nil
	})
	if err != nil {
		logging.From(ctx, s.logger).Info("step transition rejected",
			zap.String("op", ch.op),
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err),
		)
		return nil, err
	}

	s.publish(ctx, events...)
	metrics.StepTransitionsTotal.WithLabelValues(string(ch.action), string(result.Status)).Inc()
	if completed {
		metrics.ExecutionsTotal.WithLabelValues(string(model.ExecutionCompleted)).Inc()
	}
	logging.From(ctx, s.logger).Info("step transitioned",
		zap.String("action", string(ch.action)),
		zap.String("from_status", string(from)),
		zap.String("status", string(result.Status)),
		zap.Bool("execution_completed", completed),
	)
	return &result, nil
}

// loadState returns the stored state or a fresh pending one. The returned version is 0 when no row
// exists yet.
func (s *StepService) loadState(ctx context.Context, tx store.Repositories, op string, executionID uuid.UUID, stepIndex int) (model.StepState, int64, error) {
	current, err := tx.StepStates().Get(ctx, executionID, stepIndex)
	switch {
	case err == nil:
		return *current, current.Version, nil
	case errors.Is(err, store.ErrNotFound):
		return model.StepState{
			ExecutionID: executionID,
			StepIndex:   stepIndex,
			StepID:      fmt.Sprintf("step-%d", stepIndex),
			Status:      model.StepPending,
		}, 0, nil
	default:
		return model.StepState{}, 0, s.storeError(ctx, op, "step_state", err)
	}
}

func requireStepRef(op string, executionID uuid.UUID, stepIndex int, actorID string) error {
	switch {
	case executionID == uuid.Nil:
		return apperr.Validation(op, "execution id is required")
	case stepIndex < 0:
		return apperr.Validation(op, "step index must not be negative")
	case strings.TrimSpace(actorID) == "":
		return apperr.Validation(op, "actor id is required")
	}
	return nil
}

// NotifySnoozesDue emits one step_snooze_due event per snoozed step whose snooze has ended and
// that has not been notified since it was snoozed. It returns the number of notifications.
func (s *StepService) NotifySnoozesDue(ctx context.Context) (int, error) {
	const op = "NotifySnoozesDue"
	now := s.now()
	due, err := s.store.StepStates().ListSnoozedDue(ctx, "", now)
	if err != nil {
		return 0, s.storeError(ctx, op, "step_state", err)
	}

	notified := 0
	for _, d := range due {
		if d.State.DueNotifiedAt != nil {
			continue
		}
		ev := pendingEvent{
			executionID: d.State.ExecutionID,
			eventType:   EventStepSnoozeDue,
			payload: model.JSONB{
				"step_index":    d.State.StepIndex,
				"step_id":       d.State.StepID,
				"workflow_name": d.WorkflowName,
				"customer_id":   d.CustomerID.String(),
				"assigned_to":   d.AssignedTo,
			},
		}
		var moved bool
		err := s.store.Transaction(ctx, func(tx store.Repositories) error {
			err := tx.StepStates().MarkDueNotified(ctx, d.State.ID, now)
			switch {
			case errors.Is(err, store.ErrVersionConflict):
				// the step moved on after the due list was read
				moved = true
				return nil
			case err != nil:
				return s.storeError(ctx, op, "step_state", err)
			}
			if err := s.enqueue(ctx, tx, ev); err != nil {
				return s.storeError(ctx, op, "outbox", err)
			}
			return nil
		})
		if err != nil {
			return notified, err
		}
		if moved {
			logging.From(ctx, s.logger).Debug("snoozed step changed before notification, skipping",
				zap.String("execution_id", d.State.ExecutionID.String()), zap.Int("step_index", d.State.StepIndex))
			continue
		}
		s.publish(logging.WithExecution(ctx, d.State.ExecutionID.String()), ev)
		metrics.SnoozeDueNotifications.Inc()
		notified++
	}
	return notified, nil
}
