package postgres

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/guidepath/guidepath/pkg/model"
)

type DefinitionRepository struct {
	db *gorm.DB
}

func NewDefinitionRepository(db *gorm.DB) *DefinitionRepository {
	return &DefinitionRepository{db: db}
}

func (r *DefinitionRepository) Get(ctx context.Context, id string) (*model.WorkflowDefinition, error) {
	var def model.WorkflowDefinition
	if err := r.db.WithContext(ctx).First(&def, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &def, nil
}

func (r *DefinitionRepository) Save(ctx context.Context, definition *model.WorkflowDefinition) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "type", "description", "stages", "tags", "updated_at"}),
		}).
		Create(definition).Error
}
