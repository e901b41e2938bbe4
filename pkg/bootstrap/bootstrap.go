// Package bootstrap assembles the store and composer shared by the guidepath binaries.
package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/composer"
	"github.com/guidepath/guidepath/pkg/config"
	"github.com/guidepath/guidepath/pkg/store"
	"github.com/guidepath/guidepath/pkg/store/memory"
	"github.com/guidepath/guidepath/pkg/store/postgres"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// OpenStore opens the configured storage driver. The memory driver is seeded from
// storage.fixtures when set; postgres migrates its schema when database.auto_migrate is on.
func OpenStore(cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch strings.ToLower(cfg.Storage.Driver) {
	case "", DriverPostgres:
		db, err := postgres.NewStore(&cfg.Database)
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			logger.Info("running database migrations")
			if err := db.AutoMigrate(); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to migrate database: %w", err)
			}
		}
		return db, nil
	case DriverMemory:
		st := memory.New()
		if cfg.Storage.Fixtures != "" {
			if err := st.LoadFixtures(cfg.Storage.Fixtures); err != nil {
				return nil, err
			}
			logger.Info("loaded fixtures", zap.String("path", cfg.Storage.Fixtures))
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// LoadDefinitionFiles reads every definition in the configured definitions directory. A missing
// directory yields an empty registry.
func LoadDefinitionFiles(cfg config.WorkflowConfig, logger *zap.Logger) (*composer.DefinitionRegistry, error) {
	files := composer.NewDefinitionRegistry()
	if cfg.DefinitionsDir == "" {
		return files, nil
	}
	n, err := files.LoadDir(cfg.DefinitionsDir)
	switch {
	case err == nil:
		logger.Info("loaded workflow definitions", zap.String("dir", cfg.DefinitionsDir), zap.Int("count", n))
	case errors.Is(err, os.ErrNotExist):
		logger.Warn("definitions dir not found", zap.String("dir", cfg.DefinitionsDir))
	default:
		return nil, err
	}
	return files, nil
}

// Definitions resolves workflow definitions from the definition files first and the store second.
func Definitions(files *composer.DefinitionRegistry, st store.Store) composer.DefinitionSource {
	return composer.Fallback(files, composer.NewStoredDefinitions(st.Definitions()))
}

// NewComposer wires the default stages, the given definitions and store-backed customer data.
func NewComposer(files *composer.DefinitionRegistry, st store.Store, logger *zap.Logger) *composer.Composer {
	return composer.New(
		composer.NewDefaultStageRegistry(),
		Definitions(files, st),
		composer.NewStoreCustomerData(st.Customers(), logger),
		logger,
	)
}
