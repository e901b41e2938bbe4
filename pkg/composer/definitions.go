package composer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/guidepath/guidepath/pkg/model"
	"github.com/guidepath/guidepath/pkg/store"
)

// DefinitionSource resolves a workflow definition by id. Implementations return an error wrapping
// ErrDefinitionNotFound when the id is unknown.
type DefinitionSource interface {
	Definition(ctx context.Context, id string) (*model.WorkflowDefinition, error)
}

// DefinitionRegistry holds static definitions loaded from YAML files.
type DefinitionRegistry struct {
	mu   sync.RWMutex
	defs map[string]model.WorkflowDefinition
}

func NewDefinitionRegistry() *DefinitionRegistry {
	return &DefinitionRegistry{defs: make(map[string]model.WorkflowDefinition)}
}

func (r *DefinitionRegistry) Add(def model.WorkflowDefinition) error {
	if strings.TrimSpace(def.ID) == "" {
		return errors.New("definition id is required")
	}
	if len(def.Stages) == 0 {
		return fmt.Errorf("definition %q has no stages", def.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.ID]; exists {
		return fmt.Errorf("definition %q already loaded", def.ID)
	}
	r.defs[def.ID] = def
	return nil
}

// LoadFile reads one YAML file holding a single definition.
func (r *DefinitionRegistry) LoadFile(path string) error {
	def, err := ReadDefinitionFile(path)
	if err != nil {
		return err
	}
	return r.Add(*def)
}

// LoadDir loads every *.yaml and *.yml file in dir, in name order.
func (r *DefinitionRegistry) LoadDir(dir string) (int, error) {
	paths, err := DefinitionFiles(dir)
	if err != nil {
		return 0, err
	}
	for _, path := range paths {
		if err := r.LoadFile(path); err != nil {
			return 0, err
		}
	}
	return len(paths), nil
}

func (r *DefinitionRegistry) Definition(_ context.Context, id string) (*model.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, id)
	}
	return &def, nil
}

func (r *DefinitionRegistry) List() []model.WorkflowDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.WorkflowDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func DefinitionFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func ReadDefinitionFile(path string) (*model.WorkflowDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}
	var def model.WorkflowDefinition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("failed to parse definition %s: %w", path, err)
	}
	return &def, nil
}

// StoredDefinitions resolves definitions persisted in workflow_definitions.
type StoredDefinitions struct {
	repo store.DefinitionRepository
}

func NewStoredDefinitions(repo store.DefinitionRepository) *StoredDefinitions {
	return &StoredDefinitions{repo: repo}
}

func (s *StoredDefinitions) Definition(ctx context.Context, id string) (*model.WorkflowDefinition, error) {
	def, err := s.repo.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, id)
	}
	return def, err
}

// Fallback tries each source in order and returns the first definition found.
func Fallback(sources ...DefinitionSource) DefinitionSource {
	return fallback(sources)
}

type fallback []DefinitionSource

func (f fallback) Definition(ctx context.Context, id string) (*model.WorkflowDefinition, error) {
	for _, src := range f {
		def, err := src.Definition(ctx, id)
		if errors.Is(err, ErrDefinitionNotFound) {
			continue
		}
		return def, err
	}
	return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, id)
}
