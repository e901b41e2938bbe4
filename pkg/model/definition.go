package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// StageRef points at a registered stage, optionally overriding its default config.
// When, if set, is an expression evaluated against the composition context; the stage is
// omitted when it evaluates to false.
type StageRef struct {
	Stage  string `json:"stage" yaml:"stage"`
	Config JSONB  `json:"config,omitempty" yaml:"config,omitempty"`
	When   string `json:"when,omitempty" yaml:"when,omitempty"`
}

type StageRefs []StageRef

func (s StageRefs) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

func (s *StageRefs) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan stage refs: %w", err)
	}
	return json.Unmarshal(bytes, s)
}

func (StageRefs) GormDataType() string {
	return "jsonb"
}

// WorkflowDefinition is an ordered list of stage references.
type WorkflowDefinition struct {
	ID          string         `gorm:"primaryKey;type:varchar(100)" json:"id" yaml:"id"`
	Name        string         `gorm:"not null" json:"name" yaml:"name"`
	Type        string         `gorm:"type:varchar(50)" json:"type" yaml:"type"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Stages      StageRefs      `gorm:"type:jsonb;not null" json:"stages" yaml:"stages"`
	Tags        pq.StringArray `gorm:"type:text[]" json:"tags,omitempty" yaml:"tags,omitempty"`
	CreatedAt   time.Time      `json:"-" yaml:"-"`
	UpdatedAt   time.Time      `json:"-" yaml:"-"`
}

func (WorkflowDefinition) TableName() string {
	return "workflow_definitions"
}
