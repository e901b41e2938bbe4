package model

import (
	"time"

	"github.com/google/uuid"
)

type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

type Review struct {
	ID            uuid.UUID    `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ExecutionID   uuid.UUID    `gorm:"type:uuid;not null;index:idx_reviews_execution_step,priority:1" json:"execution_id"`
	StepIndex     int          `gorm:"not null;index:idx_reviews_execution_step,priority:2" json:"step_index"`
	RequestedBy   string       `gorm:"not null" json:"requested_by"`
	ReviewerID    string       `gorm:"not null;index" json:"reviewer_id"`
	Status        ReviewStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	RequestNotes  string       `json:"request_notes,omitempty"`
	DecisionNotes string       `json:"decision_notes,omitempty"`
	DecidedAt     *time.Time   `json:"decided_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func (Review) TableName() string {
	return "workflow_reviews"
}

type TriggerKind string

const (
	TriggerDate  TriggerKind = "date"
	TriggerEvent TriggerKind = "event"
)

// SkipTrigger reactivates a skipped workflow for the same customer once it fires.
type SkipTrigger struct {
	ID                     uuid.UUID   `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ExecutionID            uuid.UUID   `gorm:"type:uuid;not null;index" json:"execution_id"`
	CustomerID             uuid.UUID   `gorm:"type:uuid;not null;index" json:"customer_id"`
	Kind                   TriggerKind `gorm:"type:varchar(10);not null" json:"kind"`
	FireAt                 *time.Time  `gorm:"index" json:"fire_at,omitempty"`
	EventName              string      `gorm:"index" json:"event_name,omitempty"`
	FiredAt                *time.Time  `json:"fired_at,omitempty"`
	ReactivatedExecutionID *uuid.UUID  `gorm:"type:uuid" json:"reactivated_execution_id,omitempty"`
	CreatedAt              time.Time   `json:"created_at"`
}

func (SkipTrigger) TableName() string {
	return "workflow_skip_triggers"
}
