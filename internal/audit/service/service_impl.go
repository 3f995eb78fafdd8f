package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	"github.com/smallbiznis/carebill/internal/clock"
	obsctx "github.com/smallbiznis/carebill/internal/observability/context"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
	clock clock.Clock
}

func NewService(p Params) auditdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: clk,
	}
}

func (s *Service) Record(ctx context.Context, action, entityType, entityID, actorID string, metadata map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	entityType = strings.TrimSpace(entityType)
	if entityType == "" {
		return auditdomain.ErrInvalidEntityType
	}

	actorType, resolvedActorID := resolveActor(ctx, strings.TrimSpace(actorID))

	payload := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}

	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		Action:     action,
		EntityType: entityType,
		EntityID:   strings.TrimSpace(entityID),
		ActorType:  actorType,
		ActorID:    resolvedActorID,
		RequestID:  obsctx.RequestIDFromContext(ctx),
		Metadata:   datatypes.JSONMap(payload),
		CreatedAt:  s.clock.Now().UTC(),
	}

	// Audit writes never ride inside the caller's transaction.
	if err := s.repo.Insert(context.WithoutCancel(ctx), s.db, &entry); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.String("entity_id", entry.EntityID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, filter auditdomain.ListFilter) ([]auditdomain.AuditLog, error) {
	return s.repo.List(ctx, s.db, filter)
}

func resolveActor(ctx context.Context, actorID string) (string, string) {
	ctxType, ctxID := obsctx.ActorFromContext(ctx)
	if actorID == "" {
		actorID = ctxID
	}
	if ctxType != "" {
		return ctxType, actorID
	}
	if actorID == "" || actorID == string(auditdomain.ActorTypeSystem) {
		return string(auditdomain.ActorTypeSystem), actorID
	}
	return string(auditdomain.ActorTypeUser), actorID
}
