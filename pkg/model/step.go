package model

import (
	"time"

	"github.com/google/uuid"
)

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepSnoozed   StepStatus = "snoozed"
	StepSkipped   StepStatus = "skipped"
	StepCompleted StepStatus = "completed"
)

// IsTerminal reports whether the step counts as done for progress.
func (s StepStatus) IsTerminal() bool {
	return s == StepSkipped || s == StepCompleted
}

// StepState is unique per (execution_id, step_index). Rows are created lazily on the first
// transition and never deleted.
type StepState struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ExecutionID   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_step_state_execution_step,priority:1" json:"execution_id"`
	StepIndex     int        `gorm:"not null;uniqueIndex:idx_step_state_execution_step,priority:2" json:"step_index"`
	StepID        string     `gorm:"not null" json:"step_id"`
	StepLabel     string     `json:"step_label,omitempty"`
	Status        StepStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	SnoozeUntil   *time.Time `gorm:"index" json:"snooze_until,omitempty"`
	SnoozeDays    *int       `json:"snooze_days,omitempty"`
	SkipReason    *string    `json:"skip_reason,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	DueNotifiedAt *time.Time `json:"due_notified_at,omitempty"`
	Version       int64      `gorm:"not null;default:1" json:"version"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (StepState) TableName() string {
	return "workflow_step_states"
}

type ActionType string

const (
	ActionSnooze   ActionType = "snooze"
	ActionUnsnooze ActionType = "unsnooze"
	ActionSkip     ActionType = "skip"
	ActionComplete ActionType = "complete"
	ActionEscalate ActionType = "escalate"
)

// StepAction is immutable once written; one row per step transition.
type StepAction struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ExecutionID uuid.UUID  `gorm:"type:uuid;not null;index:idx_step_actions_execution_step,priority:1" json:"execution_id"`
	StepIndex   int        `gorm:"not null;index:idx_step_actions_execution_step,priority:2" json:"step_index"`
	StepID      string     `gorm:"not null" json:"step_id"`
	PerformedBy string     `gorm:"not null;index" json:"performed_by"`
	ActionType  ActionType `gorm:"type:varchar(20);not null" json:"action_type"`
	NewStatus   StepStatus `gorm:"type:varchar(20);not null" json:"new_status"`
	ActionData  JSONB      `gorm:"type:jsonb;default:'{}'" json:"action_data,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

func (StepAction) TableName() string {
	return "workflow_step_actions"
}

// DueStep is a snoozed step whose snooze_until has passed, joined with its execution.
type DueStep struct {
	State        StepState `json:"state"`
	WorkflowName string    `json:"workflow_name"`
	CustomerID   uuid.UUID `json:"customer_id"`
	AssignedTo   string    `json:"assigned_to"`
}
