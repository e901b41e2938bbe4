package model

import (
	"time"

	"github.com/google/uuid"
)

type ExecutionStatus string

const (
	ExecutionNotStarted ExecutionStatus = "not_started"
	ExecutionInProgress ExecutionStatus = "in_progress"
	ExecutionCompleted  ExecutionStatus = "completed"
	ExecutionSkipped    ExecutionStatus = "skipped"
)

func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionCompleted || s == ExecutionSkipped
}

func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionNotStarted, ExecutionInProgress, ExecutionCompleted, ExecutionSkipped:
		return true
	default:
		return false
	}
}

// Execution is one run of a workflow definition against one customer.
type Execution struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	WorkflowConfigID     string          `gorm:"not null;index" json:"workflow_config_id"`
	WorkflowName         string          `gorm:"not null" json:"workflow_name"`
	WorkflowType         string          `gorm:"type:varchar(50)" json:"workflow_type,omitempty"`
	CustomerID           uuid.UUID       `gorm:"type:uuid;not null;index" json:"customer_id"`
	Customer             *Customer       `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	UserID               string          `gorm:"not null;index" json:"user_id"`
	AssignedTo           string          `gorm:"index" json:"assigned_to,omitempty"`
	Status               ExecutionStatus `gorm:"type:varchar(20);default:'not_started';index" json:"status"`
	CurrentStepIndex     int             `gorm:"not null;default:0" json:"current_step_index"`
	TotalSteps           int             `gorm:"not null" json:"total_steps"`
	CompletionPercentage int             `gorm:"not null;default:0" json:"completion_percentage"`
	PriorityScore        int             `gorm:"default:0;index" json:"priority_score"`
	Variables            JSONB           `gorm:"type:jsonb;default:'{}'" json:"variables,omitempty"`
	SkipReason           string          `json:"skip_reason,omitempty"`
	Version              int64           `gorm:"not null;default:1" json:"version"`
	StartedAt            *time.Time      `json:"started_at,omitempty"`
	LastActivityAt       *time.Time      `json:"last_activity_at,omitempty"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
	SkippedAt            *time.Time      `json:"skipped_at,omitempty"`
	StepStates           []StepState     `gorm:"foreignKey:ExecutionID" json:"step_states,omitempty"`
	StepActions          []StepAction    `gorm:"foreignKey:ExecutionID" json:"step_actions,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func (Execution) TableName() string {
	return "workflow_executions"
}

// Assignee is the user currently responsible for the execution.
func (e *Execution) Assignee() string {
	if e.AssignedTo != "" {
		return e.AssignedTo
	}
	return e.UserID
}

func (e *Execution) IsTerminal() bool {
	return e.Status.IsTerminal()
}

// ExecutionActionType enumerates execution-level audit entries.
type ExecutionActionType string

const (
	ExecutionActionSkip            ExecutionActionType = "skip"
	ExecutionActionEscalate        ExecutionActionType = "escalate"
	ExecutionActionStatusChange    ExecutionActionType = "status_change"
	ExecutionActionReviewRequested ExecutionActionType = "review_requested"
	ExecutionActionReviewApproved  ExecutionActionType = "review_approved"
	ExecutionActionReviewRejected  ExecutionActionType = "review_rejected"
	ExecutionActionReactivate      ExecutionActionType = "reactivate"
)

// ExecutionAction is the append-only audit log at whole-workflow granularity.
type ExecutionAction struct {
	ID          uuid.UUID           `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ExecutionID uuid.UUID           `gorm:"type:uuid;not null;index" json:"execution_id"`
	PerformedBy string              `gorm:"not null" json:"performed_by"`
	ActionType  ExecutionActionType `gorm:"type:varchar(30);not null" json:"action_type"`
	FromStatus  ExecutionStatus     `gorm:"type:varchar(20)" json:"from_status,omitempty"`
	ToStatus    ExecutionStatus     `gorm:"type:varchar(20)" json:"to_status,omitempty"`
	ActionData  JSONB               `gorm:"type:jsonb;default:'{}'" json:"action_data,omitempty"`
	Notes       string              `json:"notes,omitempty"`
	CreatedAt   time.Time           `gorm:"autoCreateTime;index" json:"created_at"`
}

func (ExecutionAction) TableName() string {
	return "workflow_actions"
}
