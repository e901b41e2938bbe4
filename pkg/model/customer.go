package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type Customer struct {
	ID          uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Name        string         `gorm:"not null" json:"name"`
	Domain      string         `json:"domain,omitempty"`
	Industry    string         `json:"industry,omitempty"`
	Tier        string         `gorm:"type:varchar(30)" json:"tier,omitempty"`
	ARR         float64        `gorm:"column:arr;default:0" json:"arr"`
	HealthScore int            `gorm:"default:0" json:"health_score"`
	OwnerID     string         `gorm:"index" json:"owner_id,omitempty"`
	Tags        pq.StringArray `gorm:"type:text[]" json:"tags,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"-"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Customer) TableName() string {
	return "customers"
}

type Contact struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	CustomerID uuid.UUID `gorm:"type:uuid;not null;index" json:"customer_id"`
	Name       string    `gorm:"not null" json:"name"`
	Email      string    `json:"email,omitempty"`
	Title      string    `json:"title,omitempty"`
	IsPrimary  bool      `gorm:"default:false" json:"is_primary"`
	CreatedAt  time.Time `json:"-"`
}

func (Contact) TableName() string {
	return "contacts"
}

type Contract struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	CustomerID uuid.UUID  `gorm:"type:uuid;not null;index" json:"customer_id"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	ARR        float64    `gorm:"column:arr;default:0" json:"arr"`
	Seats      int        `gorm:"default:0" json:"seats"`
	AutoRenew  bool       `gorm:"default:false" json:"auto_renew"`
	Status     string     `gorm:"type:varchar(20);default:'active'" json:"status"`
	CreatedAt  time.Time  `json:"-"`
}

func (Contract) TableName() string {
	return "contracts"
}

type Renewal struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	CustomerID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"customer_id"`
	ContractID  *uuid.UUID `gorm:"type:uuid" json:"contract_id,omitempty"`
	RenewalDate time.Time  `gorm:"index" json:"renewal_date"`
	Stage       string     `gorm:"type:varchar(30)" json:"stage"`
	Probability int        `gorm:"default:0" json:"probability"`
	ExpectedARR float64    `gorm:"column:expected_arr;default:0" json:"expected_arr"`
	CreatedAt   time.Time  `json:"-"`
}

func (Renewal) TableName() string {
	return "renewals"
}

// Operation is an account activity entry (meeting, QBR, usage review) surfaced to workflows.
type Operation struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	CustomerID uuid.UUID `gorm:"type:uuid;not null;index" json:"customer_id"`
	Kind       string    `gorm:"type:varchar(30)" json:"kind"`
	Summary    string    `json:"summary"`
	OccurredAt time.Time `gorm:"index" json:"occurred_at"`
}

func (Operation) TableName() string {
	return "customer_operations"
}

type SupportTicket struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	CustomerID uuid.UUID  `gorm:"type:uuid;not null;index" json:"customer_id"`
	Subject    string     `json:"subject"`
	Priority   string     `gorm:"type:varchar(20)" json:"priority"`
	Status     string     `gorm:"type:varchar(20);index" json:"status"`
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
}

func (SupportTicket) TableName() string {
	return "support_tickets"
}

// CustomerProperties holds computed properties (usage, adoption, sentiment).
type CustomerProperties struct {
	CustomerID uuid.UUID `gorm:"type:uuid;primaryKey" json:"customer_id"`
	Properties JSONB     `gorm:"type:jsonb;default:'{}'" json:"properties"`
	ComputedAt time.Time `json:"computed_at"`
}

func (CustomerProperties) TableName() string {
	return "customer_properties"
}
