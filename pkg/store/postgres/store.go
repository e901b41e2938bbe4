package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/guidepath/guidepath/pkg/config"
	"github.com/guidepath/guidepath/pkg/model"
	"github.com/guidepath/guidepath/pkg/store"
)

type Store struct {
	*repositories
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

func NewStore(cfg *config.DatabaseConfig) (*Store, error) {
	logMode := logger.Warn
	if cfg.LogQueries {
		logMode = logger.Info
	}
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logMode),
		TranslateError: true,
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)

	return &Store{repositories: &repositories{db: db}, db: db}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&model.Customer{},
		&model.Contact{},
		&model.Contract{},
		&model.Renewal{},
		&model.Operation{},
		&model.SupportTicket{},
		&model.CustomerProperties{},
		&model.WorkflowDefinition{},
		&model.Execution{},
		&model.StepState{},
		&model.StepAction{},
		&model.ExecutionAction{},
		&model.Review{},
		&model.SkipTrigger{},
		&model.OutboxEvent{},
	)
}

func (s *Store) Transaction(ctx context.Context, fn func(tx store.Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repositories{db: tx})
	})
}

// repositories binds every repository to one *gorm.DB, which is either the pool or a transaction.
type repositories struct {
	db *gorm.DB
}

func (r *repositories) Executions() store.ExecutionRepository {
	return NewExecutionRepository(r.db)
}

func (r *repositories) StepStates() store.StepStateRepository {
	return NewStepStateRepository(r.db)
}

func (r *repositories) StepActions() store.StepActionRepository {
	return NewStepActionRepository(r.db)
}

func (r *repositories) ExecutionActions() store.ExecutionActionRepository {
	return NewExecutionActionRepository(r.db)
}

func (r *repositories) Reviews() store.ReviewRepository {
	return NewReviewRepository(r.db)
}

func (r *repositories) SkipTriggers() store.SkipTriggerRepository {
	return NewSkipTriggerRepository(r.db)
}

func (r *repositories) Outbox() store.OutboxRepository {
	return NewOutboxRepository(r.db)
}

func (r *repositories) Customers() store.CustomerRepository {
	return NewCustomerRepository(r.db)
}

func (r *repositories) Definitions() store.DefinitionRepository {
	return NewDefinitionRepository(r.db)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return store.ErrVersionConflict
	default:
		return err
	}
}
