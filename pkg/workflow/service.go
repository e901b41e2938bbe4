// Package workflow implements the execution and step state machines and the services that move
// executions through them.
//
// Every transition is written as one store transaction holding the new state, its audit row and an
// outbox event. Live events are published on the event bus only after the transaction commits.
package workflow

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/apperr"
	"github.com/guidepath/guidepath/pkg/logging"
	"github.com/guidepath/guidepath/pkg/metrics"
	"github.com/guidepath/guidepath/pkg/model"
	"github.com/guidepath/guidepath/pkg/store"
)

// Event types written to the outbox and published on the bus.
const (
	EventExecutionCreated     = "execution_created"
	EventExecutionUpdated     = "execution_updated"
	EventExecutionCompleted   = "execution_completed"
	EventExecutionSkipped     = "execution_skipped"
	EventExecutionEscalated   = "execution_escalated"
	EventStepSnoozed          = "step_snoozed"
	EventStepResumed          = "step_resumed"
	EventStepSkipped          = "step_skipped"
	EventStepCompleted        = "step_completed"
	EventStepSnoozeDue        = "step_snooze_due"
	EventReviewRequested      = "review_requested"
	EventReviewDecided        = "review_decided"
	EventExecutionReactivated = "execution_reactivated"
)

// EventPublisher delivers live execution events. Delivery is best effort; the outbox carries the
// durable copy.
type EventPublisher interface {
	PublishExecutionEvent(ctx context.Context, executionID uuid.UUID, eventType string, payload map[string]interface{}) error
}

type nopPublisher struct{}

func (nopPublisher) PublishExecutionEvent(context.Context, uuid.UUID, string, map[string]interface{}) error {
	return nil
}

var validate = newValidator()

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type base struct {
	store     store.Store
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*base)

func WithPublisher(p EventPublisher) Option {
	return func(b *base) {
		if p != nil {
			b.publisher = p
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *base) {
		b.now = now
	}
}

func newBase(st store.Store, logger *zap.Logger, opts []Option) base {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := base{store: st, publisher: nopPublisher{}, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

type pendingEvent struct {
	executionID uuid.UUID
	eventType   string
	payload     model.JSONB
}

func (b *base) enqueue(ctx context.Context, tx store.Repositories, ev pendingEvent) error {
	return tx.Outbox().Enqueue(ctx, &model.OutboxEvent{
		EventType:   ev.eventType,
		ExecutionID: ev.executionID,
		Payload:     ev.payload,
	})
}

// publish fans committed events out to the live bus.
func (b *base) publish(ctx context.Context, events ...pendingEvent) {
	for _, ev := range events {
		if err := b.publisher.PublishExecutionEvent(ctx, ev.executionID, ev.eventType, ev.payload); err != nil {
			logging.From(ctx, b.logger).Warn("failed to publish live event",
				zap.String("event_type", ev.eventType),
				zap.Error(err),
			)
		}
	}
}

// storeError converts a store failure into the service error taxonomy.
func (b *base) storeError(ctx context.Context, op, entity string, err error) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound(op, entity+" not found")
	case errors.Is(err, store.ErrVersionConflict):
		metrics.TransitionConflictsTotal.WithLabelValues(entity).Inc()
		return apperr.New(op, apperr.KindConflict, entity+" was modified concurrently").
			WithDetails(map[string]any{"entity": entity})
	default:
		logging.From(ctx, b.logger).Error("store operation failed", zap.String("op", op), zap.Error(err))
		return apperr.Persistence(op, err)
	}
}

func validationError(op string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(op, apperr.KindValidation, err)
	}
	fields := make([]string, 0, len(verrs))
	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
		details[fe.Field()] = fe.Tag()
	}
	return apperr.Newf(op, apperr.KindValidation, "invalid fields: %s", strings.Join(fields, ", ")).
		WithDetails(details)
}

func checkStepIndex(op string, exec *model.Execution, stepIndex int) error {
	if stepIndex < 0 || stepIndex >= exec.TotalSteps {
		return apperr.Newf(op, apperr.KindValidation, "step index %d out of range [0,%d)", stepIndex, exec.TotalSteps).
			WithDetails(map[string]any{"step_index": stepIndex, "total_steps": exec.TotalSteps})
	}
	return nil
}

func ensureActive(op string, exec *model.Execution) error {
	if exec.IsTerminal() {
		return apperr.Newf(op, apperr.KindInvalidTransition, "execution is %s", exec.Status).
			WithDetails(map[string]any{"status": string(exec.Status)})
	}
	return nil
}

// Services bundles the workflow services sharing one store, publisher and clock.
type Services struct {
	Executions *ExecutionService
	Steps      *StepService
	Skips      *SkipService
	Reviews    *ReviewService
	Escalation *EscalationService
}

func NewServices(st store.Store, logger *zap.Logger, opts ...Option) *Services {
	executions := NewExecutionService(st, logger, opts...)
	steps := NewStepService(st, logger, opts...)
	return &Services{
		Executions: executions,
		Steps:      steps,
		Skips:      NewSkipService(st, executions, logger, opts...),
		Reviews:    NewReviewService(st, logger, opts...),
		Escalation: NewEscalationService(steps),
	}
}
