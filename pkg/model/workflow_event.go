package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	OutboxStatusPending   = "pending"
	OutboxStatusPublished = "published"
	OutboxStatusFailed    = "failed"
)

// OutboxEvent is written in the same transaction as the state change it describes.
type OutboxEvent struct {
	EventID     uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"event_id"`
	EventType   string     `gorm:"not null" json:"event_type"`
	ExecutionID uuid.UUID  `gorm:"type:uuid;index" json:"execution_id"`
	Payload     JSONB      `gorm:"type:jsonb;not null" json:"payload"`
	Status      string     `gorm:"not null;default:'pending';index" json:"status"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;not null" json:"created_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

func (OutboxEvent) TableName() string {
	return "workflow_events"
}
