package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/guidepath/guidepath/pkg/model"
	"github.com/guidepath/guidepath/pkg/store"
)

type StepStateRepository struct {
	db *gorm.DB
}

func NewStepStateRepository(db *gorm.DB) *StepStateRepository {
	return &StepStateRepository{db: db}
}

func (r *StepStateRepository) Get(ctx context.Context, executionID uuid.UUID, stepIndex int) (*model.StepState, error) {
	var state model.StepState
	err := r.db.WithContext(ctx).
		Where("execution_id = ? AND step_index = ?", executionID, stepIndex).
		First(&state).Error
	if err != nil {
		return nil, translate(err)
	}
	return &state, nil
}

func (r *StepStateRepository) Upsert(ctx context.Context, state *model.StepState, expectedVersion int64) error {
	if expectedVersion == 0 {
		state.Version = 1
		res := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "execution_id"}, {Name: "step_index"}},
				DoNothing: true,
			}).
			Create(state)
		if res.Error != nil {
			return translate(res.Error)
		}
		if res.RowsAffected == 0 {
			return store.ErrVersionConflict
		}
		return nil
	}

	now := time.Now()
	updates := map[string]interface{}{
		"step_id":         state.StepID,
		"step_label":      state.StepLabel,
		"status":          state.Status,
		"snooze_until":    state.SnoozeUntil,
		"snooze_days":     state.SnoozeDays,
		"skip_reason":     state.SkipReason,
		"completed_at":    state.CompletedAt,
		"due_notified_at": state.DueNotifiedAt,
		"version":         expectedVersion + 1,
		"updated_at":      now,
	}
	res := r.db.WithContext(ctx).
		Model(&model.StepState{}).
		Where("execution_id = ? AND step_index = ? AND version = ?", state.ExecutionID, state.StepIndex, expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrVersionConflict
	}

	state.Version = expectedVersion + 1
	state.UpdatedAt = now
	return nil
}

func (r *StepStateRepository) ListByExecution(ctx context.Context, executionID uuid.UUID) ([]model.StepState, error) {
	var states []model.StepState
	err := r.db.WithContext(ctx).
		Where("execution_id = ?", executionID).
		Order("step_index ASC").
		Find(&states).Error
	return states, err
}

type dueStepRow struct {
	model.StepState `gorm:"embedded"`
	WorkflowName    string
	ExecCustomerID  uuid.UUID
	Assignee        string
}

func (r *StepStateRepository) ListSnoozedDue(ctx context.Context, assignee string, now time.Time) ([]model.DueStep, error) {
	const assigneeExpr = "COALESCE(NULLIF(e.assigned_to, ''), e.user_id)"

	query := r.db.WithContext(ctx).
		Table("workflow_step_states AS s").
		Select("s.*, e.workflow_name, e.customer_id AS exec_customer_id, "+assigneeExpr+" AS assignee").
		Joins("JOIN workflow_executions e ON e.id = s.execution_id").
		Where("s.status = ? AND s.snooze_until <= ?", model.StepSnoozed, now).
		Where("e.status IN ?", []model.ExecutionStatus{model.ExecutionNotStarted, model.ExecutionInProgress})
	if assignee != "" {
		query = query.Where(assigneeExpr+" = ?", assignee)
	}

	var rows []dueStepRow
	if err := query.Order("s.snooze_until ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}

	due := make([]model.DueStep, 0, len(rows))
	for _, row := range rows {
		due = append(due, model.DueStep{
			State:        row.StepState,
			WorkflowName: row.WorkflowName,
			CustomerID:   row.ExecCustomerID,
			AssignedTo:   row.Assignee,
		})
	}
	return due, nil
}

func (r *StepStateRepository) MarkDueNotified(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&model.StepState{}).
		Where("id = ? AND status = ? AND due_notified_at IS NULL AND snooze_until <= ?", id, model.StepSnoozed, at).
		Update("due_notified_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrVersionConflict
	}
	return nil
}

type StepActionRepository struct {
	db *gorm.DB
}

func NewStepActionRepository(db *gorm.DB) *StepActionRepository {
	return &StepActionRepository{db: db}
}

func (r *StepActionRepository) Append(ctx context.Context, action *model.StepAction) error {
	return translate(r.db.WithContext(ctx).Create(action).Error)
}

func (r *StepActionRepository) ListByExecution(ctx context.Context, executionID uuid.UUID) ([]model.StepAction, error) {
	var actions []model.StepAction
	err := r.db.WithContext(ctx).
		Where("execution_id = ?", executionID).
		Order("created_at ASC").
		Find(&actions).Error
	return actions, err
}
