package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/guidepath/guidepath/pkg/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict is returned when a compare-and-swap write lost the race.
	ErrVersionConflict = errors.New("version conflict")
)

type ExecutionFilter struct {
	UserID     string
	CustomerID *uuid.UUID
	Status     *model.ExecutionStatus
	Limit      int
	Offset     int
}

type ExecutionRepository interface {
	Create(ctx context.Context, execution *model.Execution) error

	GetByID(ctx context.Context, id uuid.UUID) (*model.Execution, error)

	// GetWithHistory loads the execution with its step states and step actions.
	GetWithHistory(ctx context.Context, id uuid.UUID) (*model.Execution, error)

	// Update writes the mutable columns only if the stored version equals expectedVersion,
	// then sets execution.Version to expectedVersion+1.
	Update(ctx context.Context, execution *model.Execution, expectedVersion int64) error

	List(ctx context.Context, filter ExecutionFilter) ([]model.Execution, int64, error)
}

type StepStateRepository interface {
	Get(ctx context.Context, executionID uuid.UUID, stepIndex int) (*model.StepState, error)

	// Upsert keys on (execution_id, step_index). expectedVersion 0 inserts a new row; any other
	// value updates the existing row only if its version matches.
	Upsert(ctx context.Context, state *model.StepState, expectedVersion int64) error

	ListByExecution(ctx context.Context, executionID uuid.UUID) ([]model.StepState, error)

	// ListSnoozedDue returns snoozed steps of non-terminal executions whose snooze_until is at or
	// before now. An empty assignee matches every assignee.
	ListSnoozedDue(ctx context.Context, assignee string, now time.Time) ([]model.DueStep, error)

	// MarkDueNotified stamps due_notified_at on a step that is still snoozed, due at at and not yet
	// notified. Any other state yields ErrVersionConflict.
	MarkDueNotified(ctx context.Context, id uuid.UUID, at time.Time) error
}

type StepActionRepository interface {
	Append(ctx context.Context, action *model.StepAction) error
	ListByExecution(ctx context.Context, executionID uuid.UUID) ([]model.StepAction, error)
}

type ExecutionActionRepository interface {
	Append(ctx context.Context, action *model.ExecutionAction) error
	ListByExecution(ctx context.Context, executionID uuid.UUID) ([]model.ExecutionAction, error)
}

type ReviewRepository interface {
	Create(ctx context.Context, review *model.Review) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Review, error)
	FindPending(ctx context.Context, executionID uuid.UUID, stepIndex int) (*model.Review, error)

	// Decide moves a pending review to its decided status; ErrVersionConflict if it was not pending.
	Decide(ctx context.Context, review *model.Review) error
}

type SkipTriggerRepository interface {
	Create(ctx context.Context, trigger *model.SkipTrigger) error
	ListDueDate(ctx context.Context, now time.Time) ([]model.SkipTrigger, error)
	ListPendingEvent(ctx context.Context, customerID uuid.UUID, eventName string) ([]model.SkipTrigger, error)
	MarkFired(ctx context.Context, id uuid.UUID, firedAt time.Time, reactivatedID uuid.UUID) error
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, event *model.OutboxEvent) error
	ListPending(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkPublished(ctx context.Context, eventID uuid.UUID, publishedAt time.Time) error
	MarkFailed(ctx context.Context, eventID uuid.UUID) error
}

type CustomerRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Customer, error)
	Contacts(ctx context.Context, customerID uuid.UUID) ([]model.Contact, error)
	ActiveContract(ctx context.Context, customerID uuid.UUID) (*model.Contract, error)
	UpcomingRenewal(ctx context.Context, customerID uuid.UUID) (*model.Renewal, error)
	RecentOperations(ctx context.Context, customerID uuid.UUID, limit int) ([]model.Operation, error)
	OpenTickets(ctx context.Context, customerID uuid.UUID) ([]model.SupportTicket, error)
	Properties(ctx context.Context, customerID uuid.UUID) (*model.CustomerProperties, error)
}

type DefinitionRepository interface {
	Get(ctx context.Context, id string) (*model.WorkflowDefinition, error)
	Save(ctx context.Context, definition *model.WorkflowDefinition) error
}

// Repositories groups every repository bound to the same connection or transaction.
type Repositories interface {
	Executions() ExecutionRepository
	StepStates() StepStateRepository
	StepActions() StepActionRepository
	ExecutionActions() ExecutionActionRepository
	Reviews() ReviewRepository
	SkipTriggers() SkipTriggerRepository
	Outbox() OutboxRepository
	Customers() CustomerRepository
	Definitions() DefinitionRepository
}

// Store is the persistence boundary used by the services.
type Store interface {
	Repositories

	// Transaction runs fn against repositories bound to one transaction. A non-nil error from fn
	// rolls every write back.
	Transaction(ctx context.Context, fn func(tx Repositories) error) error

	Ping(ctx context.Context) error
	Close() error
}
