package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

// AuditLog is one append-only record of a state change.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	Action     string            `gorm:"not null" json:"action"`
	EntityType string            `gorm:"not null" json:"entity_type"`
	EntityID   string            `gorm:"not null" json:"entity_id"`
	ActorType  string            `gorm:"not null" json:"actor_type"`
	ActorID    string            `gorm:"not null" json:"actor_id,omitempty"`
	RequestID  string            `gorm:"not null" json:"request_id,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
