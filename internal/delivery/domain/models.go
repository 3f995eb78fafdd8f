package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EntityType string

const (
	EntityInvoice   EntityType = "invoice"
	EntityTimesheet EntityType = "timesheet"
)

func (t EntityType) Valid() bool {
	return t == EntityInvoice || t == EntityTimesheet
}

type Status string

const (
	StatusQueued  Status = "QUEUED"
	StatusSending Status = "SENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// QueueItem is one document awaiting delivery. Status only moves
// QUEUED -> SENDING -> SENT|FAILED; FAILED returns to QUEUED only via Requeue.
type QueueItem struct {
	ID           snowflake.ID                `gorm:"primaryKey" json:"id"`
	EntityType   EntityType                  `gorm:"not null" json:"entity_type"`
	EntityID     snowflake.ID                `gorm:"not null" json:"entity_id"`
	Status       Status                      `gorm:"not null" json:"status"`
	Recipients   datatypes.JSONSlice[string] `gorm:"type:jsonb;not null" json:"recipients"`
	QueuedAt     time.Time                   `gorm:"not null" json:"queued_at"`
	ClaimToken   *string                     `json:"-"`
	ClaimedAt    *time.Time                  `json:"claimed_at,omitempty"`
	SentAt       *time.Time                  `json:"sent_at,omitempty"`
	BatchID      *string                     `json:"batch_id,omitempty"`
	ErrorMessage *string                     `json:"error_message,omitempty"`
	Attempts     int                         `gorm:"not null" json:"attempts"`
	CreatedAt    time.Time                   `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time                   `gorm:"not null" json:"updated_at"`
	DeletedAt    gorm.DeletedAt              `json:"-"`
}

func (QueueItem) TableName() string { return "queue_items" }
