package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/guidepath/guidepath/pkg/model"
	"github.com/guidepath/guidepath/pkg/store"
)

type ReviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

func (r *ReviewRepository) Create(ctx context.Context, review *model.Review) error {
	return translate(r.db.WithContext(ctx).Create(review).Error)
}

func (r *ReviewRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Review, error) {
	var review model.Review
	if err := r.db.WithContext(ctx).First(&review, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &review, nil
}

func (r *ReviewRepository) FindPending(ctx context.Context, executionID uuid.UUID, stepIndex int) (*model.Review, error) {
	var review model.Review
	err := r.db.WithContext(ctx).
		Where("execution_id = ? AND step_index = ? AND status = ?", executionID, stepIndex, model.ReviewPending).
		Order("created_at DESC").
		First(&review).Error
	if err != nil {
		return nil, translate(err)
	}
	return &review, nil
}

func (r *ReviewRepository) Decide(ctx context.Context, review *model.Review) error {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&model.Review{}).
		Where("id = ? AND status = ?", review.ID, model.ReviewPending).
		Updates(map[string]interface{}{
			"status":         review.Status,
			"decision_notes": review.DecisionNotes,
			"decided_at":     review.DecidedAt,
			"updated_at":     now,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrVersionConflict
	}
	review.UpdatedAt = now
	return nil
}

type SkipTriggerRepository struct {
	db *gorm.DB
}

func NewSkipTriggerRepository(db *gorm.DB) *SkipTriggerRepository {
	return &SkipTriggerRepository{db: db}
}

func (r *SkipTriggerRepository) Create(ctx context.Context, trigger *model.SkipTrigger) error {
	return translate(r.db.WithContext(ctx).Create(trigger).Error)
}

func (r *SkipTriggerRepository) ListDueDate(ctx context.Context, now time.Time) ([]model.SkipTrigger, error) {
	var triggers []model.SkipTrigger
	err := r.db.WithContext(ctx).
		Where("kind = ? AND fired_at IS NULL AND fire_at <= ?", model.TriggerDate, now).
		Order("fire_at ASC").
		Find(&triggers).Error
	return triggers, err
}

func (r *SkipTriggerRepository) ListPendingEvent(ctx context.Context, customerID uuid.UUID, eventName string) ([]model.SkipTrigger, error) {
	var triggers []model.SkipTrigger
	err := r.db.WithContext(ctx).
		Where("kind = ? AND fired_at IS NULL AND customer_id = ? AND event_name = ?", model.TriggerEvent, customerID, eventName).
		Order("created_at ASC").
		Find(&triggers).Error
	return triggers, err
}

func (r *SkipTriggerRepository) MarkFired(ctx context.Context, id uuid.UUID, firedAt time.Time, reactivatedID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&model.SkipTrigger{}).
		Where("id = ? AND fired_at IS NULL", id).
		Updates(map[string]interface{}{
			"fired_at":                 firedAt,
			"reactivated_execution_id": reactivatedID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrVersionConflict
	}
	return nil
}
