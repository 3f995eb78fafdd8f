package seed

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/carebill/internal/authorization"
	"github.com/smallbiznis/carebill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("seed",
	fx.Invoke(bootstrap),
)

func bootstrap(lc fx.Lifecycle, cfg config.Config, db *gorm.DB, authz authorization.Service, log *zap.Logger) {
	userID := strings.TrimSpace(cfg.BootstrapAdmin)
	if userID == "" {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			created, err := EnsureAdmin(ctx, db, authz, userID)
			if err != nil {
				return err
			}
			if created {
				log.Info("bootstrap admin granted", zap.String("user_id", userID))
			}
			return nil
		},
	})
}

// EnsureAdmin grants the admin role to userID unless the user already holds a role.
func EnsureAdmin(ctx context.Context, db *gorm.DB, authz authorization.Service, userID string) (bool, error) {
	if db == nil || authz == nil {
		return false, errors.New("seed requires a database and authorization service")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, authorization.ErrInvalidActor
	}

	var count int64
	if err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM practice_members WHERE user_id = ?`,
		userID,
	).Scan(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if err := authz.AssignRole(ctx, userID, authorization.RoleAdmin); err != nil {
		return false, err
	}
	return true, nil
}
