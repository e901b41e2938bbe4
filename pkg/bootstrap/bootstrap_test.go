package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/composer"
	"github.com/guidepath/guidepath/pkg/config"
)

const fixtures = `
customers:
  - id: 6f1c2a5e-3b7d-4c1a-9e2f-0a1b2c3d4e5f
    name: Acme
    tier: enterprise
definitions:
  - id: stored-flow
    name: Stored flow
    stages:
      - stage: summary
`

const fileDefinition = `
id: renewal-prep
name: Renewal prep
type: renewal
stages:
  - stage: welcome
  - stage: pricing
    config:
      increase_cap: 5
`

func TestOpenMemoryStoreWithFixtures(t *testing.T) {
	dir := t.TempDir()
	fixturesPath := filepath.Join(dir, "fixtures.yaml")
	require.NoError(t, os.WriteFile(fixturesPath, []byte(fixtures), 0o600))
	defsDir := filepath.Join(dir, "definitions")
	require.NoError(t, os.Mkdir(defsDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(defsDir, "renewal.yaml"), []byte(fileDefinition), 0o600))

	cfg := &config.Config{
		Storage:  config.StorageConfig{Driver: "memory", Fixtures: fixturesPath},
		Workflow: config.WorkflowConfig{DefinitionsDir: defsDir},
	}
	st, err := OpenStore(cfg, zap.NewNop())
	require.NoError(t, err)
	defer st.Close()

	files, err := LoadDefinitionFiles(cfg.Workflow, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, files.List(), 1)
	require.NotNil(t, NewComposer(files, st, zap.NewNop()))

	defs := Definitions(files, st)

	fromFile, err := defs.Definition(context.Background(), "renewal-prep")
	require.NoError(t, err)
	assert.Len(t, fromFile.Stages, 2)

	fromStore, err := defs.Definition(context.Background(), "stored-flow")
	require.NoError(t, err)
	assert.Equal(t, "Stored flow", fromStore.Name)

	_, err = defs.Definition(context.Background(), "missing")
	assert.ErrorIs(t, err, composer.ErrDefinitionNotFound)
}

func TestMissingDefinitionsDirFallsBackToStore(t *testing.T) {
	cfg := &config.Config{
		Storage:  config.StorageConfig{Driver: "memory"},
		Workflow: config.WorkflowConfig{DefinitionsDir: filepath.Join(t.TempDir(), "absent")},
	}
	st, err := OpenStore(cfg, zap.NewNop())
	require.NoError(t, err)

	files, err := LoadDefinitionFiles(cfg.Workflow, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, files.List())

	_, err = Definitions(files, st).Definition(context.Background(), "anything")
	assert.ErrorIs(t, err, composer.ErrDefinitionNotFound)
}

func TestUnknownStorageDriver(t *testing.T) {
	_, err := OpenStore(&config.Config{Storage: config.StorageConfig{Driver: "sqlite"}}, zap.NewNop())
	assert.Error(t, err)
}
