// Package memory implements the store interfaces in process. It backs the service tests and the
// "memory" storage driver used for local development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guidepath/guidepath/pkg/model"
	"github.com/guidepath/guidepath/pkg/store"
)

type stepKey struct {
	executionID uuid.UUID
	stepIndex   int
}

type dataset struct {
	executions  map[uuid.UUID]model.Execution
	stepStates  map[stepKey]model.StepState
	stepActions []model.StepAction
	execActions []model.ExecutionAction
	reviews     map[uuid.UUID]model.Review
	triggers    map[uuid.UUID]model.SkipTrigger
	outbox      []model.OutboxEvent
	customers   map[uuid.UUID]model.Customer
	contacts    []model.Contact
	contracts   []model.Contract
	renewals    []model.Renewal
	operations  []model.Operation
	tickets     []model.SupportTicket
	properties  map[uuid.UUID]model.CustomerProperties
	definitions map[string]model.WorkflowDefinition
}

func newDataset() *dataset {
	return &dataset{
		executions:  make(map[uuid.UUID]model.Execution),
		stepStates:  make(map[stepKey]model.StepState),
		reviews:     make(map[uuid.UUID]model.Review),
		triggers:    make(map[uuid.UUID]model.SkipTrigger),
		customers:   make(map[uuid.UUID]model.Customer),
		properties:  make(map[uuid.UUID]model.CustomerProperties),
		definitions: make(map[string]model.WorkflowDefinition),
	}
}

// clone copies every table. Row values are copied; JSONB maps are shared and treated as immutable.
func (d *dataset) clone() *dataset {
	c := newDataset()
	for k, v := range d.executions {
		c.executions[k] = v
	}
	for k, v := range d.stepStates {
		c.stepStates[k] = v
	}
	for k, v := range d.reviews {
		c.reviews[k] = v
	}
	for k, v := range d.triggers {
		c.triggers[k] = v
	}
	for k, v := range d.customers {
		c.customers[k] = v
	}
	for k, v := range d.properties {
		c.properties[k] = v
	}
	for k, v := range d.definitions {
		c.definitions[k] = v
	}
	c.stepActions = append([]model.StepAction(nil), d.stepActions...)
	c.execActions = append([]model.ExecutionAction(nil), d.execActions...)
	c.outbox = append([]model.OutboxEvent(nil), d.outbox...)
	c.contacts = append([]model.Contact(nil), d.contacts...)
	c.contracts = append([]model.Contract(nil), d.contracts...)
	c.renewals = append([]model.Renewal(nil), d.renewals...)
	c.operations = append([]model.Operation(nil), d.operations...)
	c.tickets = append([]model.SupportTicket(nil), d.tickets...)
	return c
}

// Store is safe for concurrent use. Transactions hold the store lock for their whole duration and
// run against a copy of the data that replaces the live copy only on success.
type Store struct {
	mu   sync.Mutex
	data *dataset
	now  func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{data: newDataset(), now: time.Now}
}

// SetClock overrides the time source used for timestamps and due-date queries.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) Transaction(ctx context.Context, fn func(tx store.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.data.clone()
	tx := &repositories{access: func(f func(d *dataset) error) error { return f(working) }, now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = working
	return nil
}

func (s *Store) withData(f func(d *dataset) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return f(s.data)
}

// repos binds to the live dataset. now is only invoked inside access, with the lock held.
func (s *Store) repos() *repositories {
	return &repositories{access: s.withData, now: func() time.Time { return s.now() }}
}

func (s *Store) Executions() store.ExecutionRepository             { return executions{s.repos()} }
func (s *Store) StepStates() store.StepStateRepository             { return stepStates{s.repos()} }
func (s *Store) StepActions() store.StepActionRepository           { return stepActions{s.repos()} }
func (s *Store) ExecutionActions() store.ExecutionActionRepository { return execActions{s.repos()} }
func (s *Store) Reviews() store.ReviewRepository                   { return reviews{s.repos()} }
func (s *Store) SkipTriggers() store.SkipTriggerRepository         { return triggers{s.repos()} }
func (s *Store) Outbox() store.OutboxRepository                    { return outbox{s.repos()} }
func (s *Store) Customers() store.CustomerRepository               { return customers{s.repos()} }
func (s *Store) Definitions() store.DefinitionRepository           { return definitions{s.repos()} }

// repositories is bound either to the live dataset (locking per call) or to a transaction copy.
type repositories struct {
	access func(f func(d *dataset) error) error
	now    func() time.Time
}

func (r *repositories) Executions() store.ExecutionRepository             { return executions{r} }
func (r *repositories) StepStates() store.StepStateRepository             { return stepStates{r} }
func (r *repositories) StepActions() store.StepActionRepository           { return stepActions{r} }
func (r *repositories) ExecutionActions() store.ExecutionActionRepository { return execActions{r} }
func (r *repositories) Reviews() store.ReviewRepository                   { return reviews{r} }
func (r *repositories) SkipTriggers() store.SkipTriggerRepository         { return triggers{r} }
func (r *repositories) Outbox() store.OutboxRepository                    { return outbox{r} }
func (r *repositories) Customers() store.CustomerRepository               { return customers{r} }
func (r *repositories) Definitions() store.DefinitionRepository           { return definitions{r} }

// Executions

type executions struct{ *repositories }

func (r executions) Create(ctx context.Context, execution *model.Execution) error {
	return r.access(func(d *dataset) error {
		if execution.ID == uuid.Nil {
			execution.ID = uuid.New()
		}
		if _, exists := d.executions[execution.ID]; exists {
			return store.ErrVersionConflict
		}
		now := r.now()
		if execution.Version == 0 {
			execution.Version = 1
		}
		execution.CreatedAt = now
		execution.UpdatedAt = now
		row := *execution
		row.Customer = nil
		row.StepStates = nil
		row.StepActions = nil
		row.Variables = execution.Variables.Clone()
		d.executions[row.ID] = row
		return nil
	})
}

func (r executions) GetByID(ctx context.Context, id uuid.UUID) (*model.Execution, error) {
	var out model.Execution
	err := r.access(func(d *dataset) error {
		row, ok := d.executions[id]
		if !ok {
			return store.ErrNotFound
		}
		out = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r executions) GetWithHistory(ctx context.Context, id uuid.UUID) (*model.Execution, error) {
	var out model.Execution
	err := r.access(func(d *dataset) error {
		row, ok := d.executions[id]
		if !ok {
			return store.ErrNotFound
		}
		out = row
		out.StepStates = d.statesFor(id)
		out.StepActions = d.stepActionsFor(id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r executions) Update(ctx context.Context, execution *model.Execution, expectedVersion int64) error {
	return r.access(func(d *dataset) error {
		row, ok := d.executions[execution.ID]
		if !ok || row.Version != expectedVersion {
			return store.ErrVersionConflict
		}
		now := r.now()
		row.Status = execution.Status
		row.AssignedTo = execution.AssignedTo
		row.CurrentStepIndex = execution.CurrentStepIndex
		row.CompletionPercentage = execution.CompletionPercentage
		row.PriorityScore = execution.PriorityScore
		row.Variables = execution.Variables.Clone()
		row.SkipReason = execution.SkipReason
		row.StartedAt = execution.StartedAt
		row.LastActivityAt = execution.LastActivityAt
		row.CompletedAt = execution.CompletedAt
		row.SkippedAt = execution.SkippedAt
		row.Version = expectedVersion + 1
		row.UpdatedAt = now
		d.executions[row.ID] = row

		execution.Version = row.Version
		execution.UpdatedAt = now
		return nil
	})
}

func (r executions) List(ctx context.Context, filter store.ExecutionFilter) ([]model.Execution, int64, error) {
	var page []model.Execution
	var total int64
	err := r.access(func(d *dataset) error {
		matched := make([]model.Execution, 0)
		for _, e := range d.executions {
			if filter.UserID != "" && e.UserID != filter.UserID && e.AssignedTo != filter.UserID {
				continue
			}
			if filter.CustomerID != nil && e.CustomerID != *filter.CustomerID {
				continue
			}
			if filter.Status != nil && e.Status != *filter.Status {
				continue
			}
			matched = append(matched, e)
		}
		sort.Slice(matched, func(i, j int) bool {
			if matched[i].PriorityScore != matched[j].PriorityScore {
				return matched[i].PriorityScore > matched[j].PriorityScore
			}
			if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
				return matched[i].CreatedAt.After(matched[j].CreatedAt)
			}
			return matched[i].ID.String() < matched[j].ID.String()
		})
		total = int64(len(matched))
		page = paginate(matched, filter.Limit, filter.Offset)
		return nil
	})
	return page, total, err
}

func paginate[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return []T{}
	}
	if offset > 0 {
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func (d *dataset) statesFor(executionID uuid.UUID) []model.StepState {
	states := make([]model.StepState, 0)
	for k, v := range d.stepStates {
		if k.executionID == executionID {
			states = append(states, v)
		}
	}
	sort.Slice(states, func(i, j int) bool { return states[i].StepIndex < states[j].StepIndex })
	return states
}

func (d *dataset) stepActionsFor(executionID uuid.UUID) []model.StepAction {
	actions := make([]model.StepAction, 0)
	for _, a := range d.stepActions {
		if a.ExecutionID == executionID {
			actions = append(actions, a)
		}
	}
	return actions
}

// Step states

type stepStates struct{ *repositories }

func (r stepStates) Get(ctx context.Context, executionID uuid.UUID, stepIndex int) (*model.StepState, error) {
	var out model.StepState
	err := r.access(func(d *dataset) error {
		row, ok := d.stepStates[stepKey{executionID, stepIndex}]
		if !ok {
			return store.ErrNotFound
		}
		out = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r stepStates) Upsert(ctx context.Context, state *model.StepState, expectedVersion int64) error {
	return r.access(func(d *dataset) error {
		key := stepKey{state.ExecutionID, state.StepIndex}
		existing, exists := d.stepStates[key]
		now := r.now()

		if expectedVersion == 0 {
			if exists {
				return store.ErrVersionConflict
			}
			if state.ID == uuid.Nil {
				state.ID = uuid.New()
			}
			state.Version = 1
			state.CreatedAt = now
			state.UpdatedAt = now
			d.stepStates[key] = *state
			return nil
		}

		if !exists || existing.Version != expectedVersion {
			return store.ErrVersionConflict
		}
		state.ID = existing.ID
		state.CreatedAt = existing.CreatedAt
		state.Version = expectedVersion + 1
		state.UpdatedAt = now
		d.stepStates[key] = *state
		return nil
	})
}

func (r stepStates) ListByExecution(ctx context.Context, executionID uuid.UUID) ([]model.StepState, error) {
	var out []model.StepState
	err := r.access(func(d *dataset) error {
		out = d.statesFor(executionID)
		return nil
	})
	return out, err
}

func (r stepStates) ListSnoozedDue(ctx context.Context, assignee string, now time.Time) ([]model.DueStep, error) {
	var due []model.DueStep
	err := r.access(func(d *dataset) error {
		due = make([]model.DueStep, 0)
		for k, s := range d.stepStates {
			if s.Status != model.StepSnoozed || s.SnoozeUntil == nil || s.SnoozeUntil.After(now) {
				continue
			}
			e, ok := d.executions[k.executionID]
			if !ok || e.IsTerminal() {
				continue
			}
			if assignee != "" && e.Assignee() != assignee {
				continue
			}
			due = append(due, model.DueStep{
				State:        s,
				WorkflowName: e.WorkflowName,
				CustomerID:   e.CustomerID,
				AssignedTo:   e.Assignee(),
			})
		}
		sort.Slice(due, func(i, j int) bool {
			return due[i].State.SnoozeUntil.Before(*due[j].State.SnoozeUntil)
		})
		return nil
	})
	return due, err
}

func (r stepStates) MarkDueNotified(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.access(func(d *dataset) error {
		for k, s := range d.stepStates {
			if s.ID == id {
				if s.Status != model.StepSnoozed || s.DueNotifiedAt != nil || s.SnoozeUntil == nil || s.SnoozeUntil.After(at) {
					return store.ErrVersionConflict
				}
				s.DueNotifiedAt = &at
				d.stepStates[k] = s
				return nil
			}
		}
		return store.ErrNotFound
	})
}

// Audit

type stepActions struct{ *repositories }

func (r stepActions) Append(ctx context.Context, action *model.StepAction) error {
	return r.access(func(d *dataset) error {
		if action.ID == uuid.Nil {
			action.ID = uuid.New()
		}
		action.CreatedAt = r.now()
		d.stepActions = append(d.stepActions, *action)
		return nil
	})
}

func (r stepActions) ListByExecution(ctx context.Context, executionID uuid.UUID) ([]model.StepAction, error) {
	var out []model.StepAction
	err := r.access(func(d *dataset) error {
		out = d.stepActionsFor(executionID)
		return nil
	})
	return out, err
}

type execActions struct{ *repositories }

func (r execActions) Append(ctx context.Context, action *model.ExecutionAction) error {
	return r.access(func(d *dataset) error {
		if action.ID == uuid.Nil {
			action.ID = uuid.New()
		}
		action.CreatedAt = r.now()
		d.execActions = append(d.execActions, *action)
		return nil
	})
}

func (r execActions) ListByExecution(ctx context.Context, executionID uuid.UUID) ([]model.ExecutionAction, error) {
	var out []model.ExecutionAction
	err := r.access(func(d *dataset) error {
		out = make([]model.ExecutionAction, 0)
		for _, a := range d.execActions {
			if a.ExecutionID == executionID {
				out = append(out, a)
			}
		}
		return nil
	})
	return out, err
}

// Reviews

type reviews struct{ *repositories }

func (r reviews) Create(ctx context.Context, review *model.Review) error {
	return r.access(func(d *dataset) error {
		if review.ID == uuid.Nil {
			review.ID = uuid.New()
		}
		now := r.now()
		review.CreatedAt = now
		review.UpdatedAt = now
		d.reviews[review.ID] = *review
		return nil
	})
}

func (r reviews) GetByID(ctx context.Context, id uuid.UUID) (*model.Review, error) {
	var out model.Review
	err := r.access(func(d *dataset) error {
		row, ok := d.reviews[id]
		if !ok {
			return store.ErrNotFound
		}
		out = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r reviews) FindPending(ctx context.Context, executionID uuid.UUID, stepIndex int) (*model.Review, error) {
	var out *model.Review
	err := r.access(func(d *dataset) error {
		for _, rv := range d.reviews {
			if rv.ExecutionID == executionID && rv.StepIndex == stepIndex && rv.Status == model.ReviewPending {
				rv := rv
				out = &rv
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (r reviews) Decide(ctx context.Context, review *model.Review) error {
	return r.access(func(d *dataset) error {
		row, ok := d.reviews[review.ID]
		if !ok || row.Status != model.ReviewPending {
			return store.ErrVersionConflict
		}
		row.Status = review.Status
		row.DecisionNotes = review.DecisionNotes
		row.DecidedAt = review.DecidedAt
		row.UpdatedAt = r.now()
		d.reviews[row.ID] = row
		review.UpdatedAt = row.UpdatedAt
		return nil
	})
}

// Skip triggers

type triggers struct{ *repositories }

func (r triggers) Create(ctx context.Context, trigger *model.SkipTrigger) error {
	return r.access(func(d *dataset) error {
		if trigger.ID == uuid.Nil {
			trigger.ID = uuid.New()
		}
		trigger.CreatedAt = r.now()
		d.triggers[trigger.ID] = *trigger
		return nil
	})
}

func (r triggers) ListDueDate(ctx context.Context, now time.Time) ([]model.SkipTrigger, error) {
	return r.filter(func(t model.SkipTrigger) bool {
		return t.Kind == model.TriggerDate && t.FiredAt == nil && t.FireAt != nil && !t.FireAt.After(now)
	})
}

func (r triggers) ListPendingEvent(ctx context.Context, customerID uuid.UUID, eventName string) ([]model.SkipTrigger, error) {
	return r.filter(func(t model.SkipTrigger) bool {
		return t.Kind == model.TriggerEvent && t.FiredAt == nil && t.CustomerID == customerID && t.EventName == eventName
	})
}

func (r triggers) filter(match func(model.SkipTrigger) bool) ([]model.SkipTrigger, error) {
	var out []model.SkipTrigger
	err := r.access(func(d *dataset) error {
		out = make([]model.SkipTrigger, 0)
		for _, t := range d.triggers {
			if match(t) {
				out = append(out, t)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
		return nil
	})
	return out, err
}

func (r triggers) MarkFired(ctx context.Context, id uuid.UUID, firedAt time.Time, reactivatedID uuid.UUID) error {
	return r.access(func(d *dataset) error {
		t, ok := d.triggers[id]
		if !ok || t.FiredAt != nil {
			return store.ErrVersionConflict
		}
		t.FiredAt = &firedAt
		t.ReactivatedExecutionID = &reactivatedID
		d.triggers[id] = t
		return nil
	})
}

// Outbox

type outbox struct{ *repositories }

func (r outbox) Enqueue(ctx context.Context, event *model.OutboxEvent) error {
	return r.access(func(d *dataset) error {
		if event.EventID == uuid.Nil {
			event.EventID = uuid.New()
		}
		if event.Status == "" {
			event.Status = model.OutboxStatusPending
		}
		event.CreatedAt = r.now()
		d.outbox = append(d.outbox, *event)
		return nil
	})
}

func (r outbox) ListPending(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []model.OutboxEvent
	err := r.access(func(d *dataset) error {
		out = make([]model.OutboxEvent, 0)
		for _, e := range d.outbox {
			if e.Status == model.OutboxStatusPending {
				out = append(out, e)
				if len(out) == limit {
					break
				}
			}
		}
		return nil
	})
	return out, err
}

func (r outbox) MarkPublished(ctx context.Context, eventID uuid.UUID, publishedAt time.Time) error {
	return r.setStatus(eventID, model.OutboxStatusPublished, &publishedAt)
}

func (r outbox) MarkFailed(ctx context.Context, eventID uuid.UUID) error {
	return r.setStatus(eventID, model.OutboxStatusFailed, nil)
}

func (r outbox) setStatus(eventID uuid.UUID, status string, publishedAt *time.Time) error {
	return r.access(func(d *dataset) error {
		for i := range d.outbox {
			if d.outbox[i].EventID == eventID {
				d.outbox[i].Status = status
				d.outbox[i].PublishedAt = publishedAt
				return nil
			}
		}
		return store.ErrNotFound
	})
}

// Customers

type customers struct{ *repositories }

func (r customers) GetByID(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	var out model.Customer
	err := r.access(func(d *dataset) error {
		row, ok := d.customers[id]
		if !ok {
			return store.ErrNotFound
		}
		out = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r customers) Contacts(ctx context.Context, customerID uuid.UUID) ([]model.Contact, error) {
	var out []model.Contact
	err := r.access(func(d *dataset) error {
		out = make([]model.Contact, 0)
		for _, c := range d.contacts {
			if c.CustomerID == customerID {
				out = append(out, c)
			}
		}
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].IsPrimary != out[j].IsPrimary {
				return out[i].IsPrimary
			}
			return strings.Compare(out[i].Name, out[j].Name) < 0
		})
		return nil
	})
	return out, err
}

func (r customers) ActiveContract(ctx context.Context, customerID uuid.UUID) (*model.Contract, error) {
	var out *model.Contract
	err := r.access(func(d *dataset) error {
		for _, c := range d.contracts {
			if c.CustomerID != customerID || c.Status != "active" {
				continue
			}
			if out == nil || c.StartDate.After(out.StartDate) {
				c := c
				out = &c
			}
		}
		if out == nil {
			return store.ErrNotFound
		}
		return nil
	})
	return out, err
}

func (r customers) UpcomingRenewal(ctx context.Context, customerID uuid.UUID) (*model.Renewal, error) {
	var out *model.Renewal
	err := r.access(func(d *dataset) error {
		now := r.now()
		for _, rn := range d.renewals {
			if rn.CustomerID != customerID || rn.RenewalDate.Before(now) {
				continue
			}
			if out == nil || rn.RenewalDate.Before(out.RenewalDate) {
				rn := rn
				out = &rn
			}
		}
		if out == nil {
			return store.ErrNotFound
		}
		return nil
	})
	return out, err
}

func (r customers) RecentOperations(ctx context.Context, customerID uuid.UUID, limit int) ([]model.Operation, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []model.Operation
	err := r.access(func(d *dataset) error {
		out = make([]model.Operation, 0)
		for _, op := range d.operations {
			if op.CustomerID == customerID {
				out = append(out, op)
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
		out = paginate(out, limit, 0)
		return nil
	})
	return out, err
}

func (r customers) OpenTickets(ctx context.Context, customerID uuid.UUID) ([]model.SupportTicket, error) {
	var out []model.SupportTicket
	err := r.access(func(d *dataset) error {
		out = make([]model.SupportTicket, 0)
		for _, t := range d.tickets {
			if t.CustomerID == customerID && t.ClosedAt == nil {
				out = append(out, t)
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].OpenedAt.After(out[j].OpenedAt) })
		return nil
	})
	return out, err
}

func (r customers) Properties(ctx context.Context, customerID uuid.UUID) (*model.CustomerProperties, error) {
	var out model.CustomerProperties
	err := r.access(func(d *dataset) error {
		row, ok := d.properties[customerID]
		if !ok {
			return store.ErrNotFound
		}
		out = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Definitions

type definitions struct{ *repositories }

func (r definitions) Get(ctx context.Context, id string) (*model.WorkflowDefinition, error) {
	var out model.WorkflowDefinition
	err := r.access(func(d *dataset) error {
		row, ok := d.definitions[id]
		if !ok {
			return store.ErrNotFound
		}
		out = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r definitions) Save(ctx context.Context, definition *model.WorkflowDefinition) error {
	return r.access(func(d *dataset) error {
		now := r.now()
		if existing, ok := d.definitions[definition.ID]; ok {
			definition.CreatedAt = existing.CreatedAt
		} else {
			definition.CreatedAt = now
		}
		definition.UpdatedAt = now
		d.definitions[definition.ID] = *definition
		return nil
	})
}
