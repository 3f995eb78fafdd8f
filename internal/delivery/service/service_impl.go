package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	"github.com/smallbiznis/carebill/internal/delivery/domain"
	"github.com/smallbiznis/carebill/internal/observability/metrics"
	"github.com/smallbiznis/carebill/internal/providers/email"
	"github.com/smallbiznis/carebill/internal/providers/slack"
	"github.com/smallbiznis/carebill/internal/providers/storage"
	"github.com/smallbiznis/carebill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Config   config.Config
	Repo     domain.Repository
	Renderer domain.Renderer
	Sender   email.Provider
	Archiver storage.Archiver    `optional:"true"`
	Alerter  *slack.Alerter      `optional:"true"`
	AuditSvc auditdomain.Service `optional:"true"`
	Clock    clock.Clock         `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      config.DispatchConfig
	repo     domain.Repository
	renderer domain.Renderer
	sender   email.Provider
	archiver storage.Archiver
	alerter  *slack.Alerter
	auditSvc auditdomain.Service
	clock    clock.Clock
	delivery *metrics.DeliveryMetrics
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	archiver := p.Archiver
	if archiver == nil {
		archiver = storage.NoOpArchiver{}
	}
	cfg := p.Config.Dispatch
	if cfg.RenderConcurrency <= 0 {
		cfg.RenderConcurrency = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("delivery.dispatcher"),
		cfg:      cfg,
		repo:     p.Repo,
		renderer: p.Renderer,
		sender:   p.Sender,
		archiver: archiver,
		alerter:  p.Alerter,
		auditSvc: p.AuditSvc,
		clock:    clk,
		delivery: metrics.Delivery(),
	}
}

// Remove soft-deletes a QUEUED item without sending it.
func (s *Service) Remove(ctx context.Context, id snowflake.ID) error {
	if id == 0 {
		return domain.ErrInvalidID
	}
	now := s.clock.Now()

	var item *domain.QueueItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if found == nil {
			return domain.ErrItemNotFound
		}
		if found.Status != domain.StatusQueued {
			return domain.ErrInvalidTransition
		}
		ok, err := s.repo.SoftDelete(ctx, tx, id, now)
		if err != nil {
			return err
		}
		if !ok {
			// Claimed between the read and the update.
			return domain.ErrInvalidTransition
		}
		item = found
		return nil
	})
	if err != nil {
		return err
	}

	s.emitItemAudit(ctx, "queue.item_removed", item, nil)
	return nil
}

// Requeue returns a FAILED item to QUEUED for another dispatch.
func (s *Service) Requeue(ctx context.Context, id snowflake.ID) (domain.QueueItem, error) {
	if id == 0 {
		return domain.QueueItem{}, domain.ErrInvalidID
	}
	now := s.clock.Now()

	var item *domain.QueueItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if found == nil {
			return domain.ErrItemNotFound
		}
		if found.Status != domain.StatusFailed {
			return domain.ErrInvalidTransition
		}
		ok, err := s.repo.Requeue(ctx, tx, id, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		item, err = s.repo.FindByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return domain.QueueItem{}, err
	}
	if item == nil {
		return domain.QueueItem{}, domain.ErrItemNotFound
	}

	s.emitItemAudit(ctx, "queue.item_requeued", item, map[string]any{"attempts": item.Attempts})
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	if req.Status != "" {
		switch req.Status {
		case domain.StatusQueued, domain.StatusSending, domain.StatusSent, domain.StatusFailed:
		default:
			return domain.ListResponse{}, domain.ErrInvalidStatus
		}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	filter := domain.ListFilter{Status: req.Status, Limit: pageSize + 1}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		queuedAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		beforeID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		filter.BeforeQueued = &queuedAt
		filter.BeforeID = beforeID
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListResponse{}, err
	}
	items, hasMore := pagination.Trim(items, pageSize)

	resp := domain.ListResponse{Items: items, HasMore: hasMore}
	if resp.Items == nil {
		resp.Items = []domain.QueueItem{}
	}
	if hasMore {
		last := items[len(items)-1]
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        strconv.FormatInt(last.ID.Int64(), 10),
			CreatedAt: last.QueuedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return domain.ListResponse{}, err
		}
		resp.NextPageToken = token
	}
	return resp, nil
}

// ListStuck returns SENDING items claimed longer ago than threshold. Nothing is re-claimed.
func (s *Service) ListStuck(ctx context.Context, threshold time.Duration) ([]domain.QueueItem, error) {
	if threshold <= 0 {
		return nil, domain.ErrInvalidThreshold
	}
	items, err := s.repo.ListStuck(ctx, s.db, s.clock.Now().Add(-threshold))
	if err != nil {
		return nil, err
	}
	s.delivery.SetStuckSending(len(items))
	if items == nil {
		items = []domain.QueueItem{}
	}
	return items, nil
}

// FailStuck moves stuck SENDING items to FAILED. An empty id list fails every
// item past the threshold.
func (s *Service) FailStuck(ctx context.Context, ids []snowflake.ID, threshold time.Duration, reason string) (int64, error) {
	if threshold <= 0 {
		return 0, domain.ErrInvalidThreshold
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "manually failed after stuck in SENDING"
	}
	now := s.clock.Now()

	failed, err := s.repo.FailStuck(ctx, s.db, ids, now.Add(-threshold), reason, now)
	if err != nil {
		return 0, err
	}
	s.delivery.AddItemsResolved(string(domain.StatusFailed), int(failed))
	s.log.Warn("failed stuck queue items",
		zap.Int64("count", failed),
		zap.Int("requested", len(ids)),
		zap.String("reason", reason),
	)

	if s.auditSvc != nil && failed > 0 {
		itemIDs := make([]string, 0, len(ids))
		for _, id := range ids {
			itemIDs = append(itemIDs, id.String())
		}
		_ = s.auditSvc.Record(ctx, "queue.stuck_failed", "queue_item", "stuck", "", map[string]any{
			"count":    failed,
			"item_ids": itemIDs,
			"reason":   reason,
		})
	}
	return failed, nil
}

func (s *Service) emitItemAudit(ctx context.Context, action string, item *domain.QueueItem, extra map[string]any) {
	if s.auditSvc == nil || item == nil {
		return
	}
	metadata := map[string]any{
		"entity_type": string(item.EntityType),
		"entity_id":   item.EntityID.String(),
		"status":      string(item.Status),
	}
	for key, value := range extra {
		metadata[key] = value
	}
	_ = s.auditSvc.Record(ctx, action, "queue_item", item.ID.String(), "", metadata)
}
