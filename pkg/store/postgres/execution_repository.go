package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/guidepath/guidepath/pkg/model"
	"github.com/guidepath/guidepath/pkg/store"
)

type ExecutionRepository struct {
	db *gorm.DB
}

func NewExecutionRepository(db *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

func (r *ExecutionRepository) Create(ctx context.Context, execution *model.Execution) error {
	if execution.Version == 0 {
		execution.Version = 1
	}
	return translate(r.db.WithContext(ctx).Omit("Customer", "StepStates", "StepActions").Create(execution).Error)
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Execution, error) {
	var execution model.Execution
	if err := r.db.WithContext(ctx).First(&execution, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &execution, nil
}

func (r *ExecutionRepository) GetWithHistory(ctx context.Context, id uuid.UUID) (*model.Execution, error) {
	var execution model.Execution
	err := r.db.WithContext(ctx).
		Preload("StepStates", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_index ASC")
		}).
		Preload("StepActions", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		First(&execution, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &execution, nil
}

func (r *ExecutionRepository) Update(ctx context.Context, execution *model.Execution, expectedVersion int64) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":                execution.Status,
		"assigned_to":           execution.AssignedTo,
		"current_step_index":    execution.CurrentStepIndex,
		"completion_percentage": execution.CompletionPercentage,
		"priority_score":        execution.PriorityScore,
		"variables":             execution.Variables,
		"skip_reason":           execution.SkipReason,
		"started_at":            execution.StartedAt,
		"last_activity_at":      execution.LastActivityAt,
		"completed_at":          execution.CompletedAt,
		"skipped_at":            execution.SkippedAt,
		"version":               expectedVersion + 1,
		"updated_at":            now,
	}

	res := r.db.WithContext(ctx).
		Model(&model.Execution{}).
		Where("id = ? AND version = ?", execution.ID, expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrVersionConflict
	}

	execution.Version = expectedVersion + 1
	execution.UpdatedAt = now
	return nil
}

func (r *ExecutionRepository) List(ctx context.Context, filter store.ExecutionFilter) ([]model.Execution, int64, error) {
	var executions []model.Execution
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Execution{})

	if filter.UserID != "" {
		query = query.Where("user_id = ? OR assigned_to = ?", filter.UserID, filter.UserID)
	}
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("priority_score DESC, created_at DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	err := query.Offset(filter.Offset).Find(&executions).Error

	return executions, total, err
}

type ExecutionActionRepository struct {
	db *gorm.DB
}

func NewExecutionActionRepository(db *gorm.DB) *ExecutionActionRepository {
	return &ExecutionActionRepository{db: db}
}

func (r *ExecutionActionRepository) Append(ctx context.Context, action *model.ExecutionAction) error {
	return translate(r.db.WithContext(ctx).Create(action).Error)
}

func (r *ExecutionActionRepository) ListByExecution(ctx context.Context, executionID uuid.UUID) ([]model.ExecutionAction, error) {
	var actions []model.ExecutionAction
	err := r.db.WithContext(ctx).
		Where("execution_id = ?", executionID).
		Order("created_at ASC").
		Find(&actions).Error
	return actions, err
}
