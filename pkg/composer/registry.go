package composer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrStageNotFound      = errors.New("stage not registered")
	ErrDefinitionNotFound = errors.New("workflow definition not found")
)

// Config is a stage configuration after the definition override has been merged over the
// stage defaults.
type Config map[string]interface{}

func (c Config) String(key string) string {
	if s, ok := c[key].(string); ok {
		return s
	}
	return ""
}

func (c Config) Bool(key string) bool {
	b, _ := c[key].(bool)
	return b
}

func (c Config) Int(key string, def int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func (c Config) Strings(key string) []string {
	switch v := c[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Stage builds the unhydrated slide for a stage id. Schema, when set, is a JSON schema the merged
// config must satisfy.
type Stage struct {
	ID            string
	DefaultConfig Config
	Schema        string
	Build         func(cfg Config) Slide

	schema *gojsonschema.Schema
}

// StageRegistry maps stable stage ids to stages. It is built once at startup and passed to the
// composer.
type StageRegistry struct {
	mu     sync.RWMutex
	stages map[string]*Stage
}

func NewStageRegistry() *StageRegistry {
	return &StageRegistry{stages: make(map[string]*Stage)}
}

func (r *StageRegistry) Register(stage Stage) error {
	if strings.TrimSpace(stage.ID) == "" {
		return errors.New("stage id is required")
	}
	if stage.Build == nil {
		return fmt.Errorf("stage %q has no builder", stage.ID)
	}
	if stage.Schema != "" {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(stage.Schema))
		if err != nil {
			return fmt.Errorf("stage %q has an invalid schema: %w", stage.ID, err)
		}
		stage.schema = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.stages[stage.ID]; exists {
		return fmt.Errorf("stage %q already registered", stage.ID)
	}
	r.stages[stage.ID] = &stage
	return nil
}

// MustRegister panics on duplicate ids or invalid schemas.
func (r *StageRegistry) MustRegister(stages ...Stage) *StageRegistry {
	for _, s := range stages {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	return r
}

func (r *StageRegistry) Lookup(id string) (*Stage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stage, ok := r.stages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStageNotFound, id)
	}
	return stage, nil
}

func (r *StageRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.stages))
	for id := range r.stages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Merge lays override over the stage defaults. Keys in override replace defaults wholesale;
// nested maps are not merged.
func (s *Stage) Merge(override map[string]interface{}) Config {
	merged := make(Config, len(s.DefaultConfig)+len(override))
	for k, v := range s.DefaultConfig {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// Validate checks cfg against the stage schema.
func (s *Stage) Validate(cfg Config) error {
	if s.schema == nil {
		return nil
	}
	result, err := s.schema.Validate(gojsonschema.NewGoLoader(map[string]interface{}(cfg)))
	if err != nil {
		return err
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return fmt.Errorf("stage %q config is invalid: %s", s.ID, strings.Join(problems, "; "))
	}
	return nil
}
