package authorization

import (
	"context"
	"errors"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidAction = errors.New("invalid_action")
)

const (
	RoleAdmin    = "admin"
	RoleBiller   = "biller"
	RoleProvider = "provider"
	RoleSystem   = "system"
)

// Service answers capability checks for the caller identified by userID.
type Service interface {
	CanPerform(ctx context.Context, userID, action string) (bool, error)
	Authorize(ctx context.Context, userID, action string) error
	AssignRole(ctx context.Context, userID, role string) error
}
