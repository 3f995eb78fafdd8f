package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type ListFilter struct {
	EntityType string
	EntityID   string
	Action     string
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]AuditLog, error)
}

// Service records audit events. Callers treat Record failures as non-fatal.
type Service interface {
	Record(ctx context.Context, action, entityType, entityID, actorID string, metadata map[string]any) error
	List(ctx context.Context, filter ListFilter) ([]AuditLog, error)
}

var (
	ErrInvalidAction     = errors.New("invalid_action")
	ErrInvalidEntityType = errors.New("invalid_entity_type")
)
