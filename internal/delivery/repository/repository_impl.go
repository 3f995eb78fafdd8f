package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/delivery/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct {
	genID *snowflake.Node
}

func Provide(genID *snowflake.Node) domain.Repository {
	return &repo{genID: genID}
}

// ProvideEnqueuer exposes the repository to packages that only add items.
func ProvideEnqueuer(r domain.Repository) domain.Enqueuer {
	return r
}

const queueColumns = `id, entity_type, entity_id, status, recipients, queued_at, claim_token, claimed_at,
	sent_at, batch_id, error_message, attempts, created_at, updated_at, deleted_at`

func (r *repo) Enqueue(ctx context.Context, tx *gorm.DB, req domain.EnqueueRequest) (*domain.QueueItem, bool, error) {
	if !req.EntityType.Valid() {
		return nil, false, domain.ErrInvalidEntityType
	}
	if req.EntityID == 0 {
		return nil, false, domain.ErrInvalidID
	}

	recipients := make([]string, 0, len(req.Recipients))
	for _, recipient := range req.Recipients {
		if recipient = strings.TrimSpace(recipient); recipient != "" {
			recipients = append(recipients, recipient)
		}
	}

	now := req.At
	if now.IsZero() {
		now = time.Now().UTC()
	}
	// The partial unique index on pending (entity_type, entity_id) absorbs duplicates.
	res := tx.WithContext(ctx).Exec(
		`INSERT INTO queue_items (
			id, entity_type, entity_id, status, recipients, queued_at, attempts, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT DO NOTHING`,
		r.genID.Generate(),
		req.EntityType,
		req.EntityID,
		domain.StatusQueued,
		datatypes.NewJSONSlice(recipients),
		now,
		now,
		now,
	)
	if res.Error != nil {
		return nil, false, res.Error
	}

	var items []domain.QueueItem
	if err := tx.WithContext(ctx).Raw(
		`SELECT `+queueColumns+` FROM queue_items
		 WHERE entity_type = ? AND entity_id = ? AND deleted_at IS NULL AND status IN ?
		 ORDER BY queued_at DESC
		 LIMIT 1`,
		req.EntityType,
		req.EntityID,
		[]domain.Status{domain.StatusQueued, domain.StatusSending},
	).Scan(&items).Error; err != nil {
		return nil, false, err
	}
	if len(items) == 0 {
		return nil, false, domain.ErrItemNotFound
	}
	return &items[0], res.RowsAffected == 1, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.QueueItem, error) {
	var items []domain.QueueItem
	if err := db.WithContext(ctx).Raw(
		`SELECT `+queueColumns+` FROM queue_items WHERE id = ? AND deleted_at IS NULL`,
		id,
	).Scan(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.QueueItem, error) {
	stmt := `SELECT ` + queueColumns + ` FROM queue_items WHERE deleted_at IS NULL`
	args := []any{}
	if filter.Status != "" {
		stmt += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.BeforeQueued != nil {
		stmt += ` AND (queued_at < ? OR (queued_at = ? AND id < ?))`
		args = append(args, *filter.BeforeQueued, *filter.BeforeQueued, filter.BeforeID)
	}
	stmt += ` ORDER BY queued_at DESC, id DESC`
	if filter.Limit > 0 {
		stmt += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	var items []domain.QueueItem
	if err := db.WithContext(ctx).Raw(stmt, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

type claimCandidate struct {
	ID         snowflake.ID      `gorm:"column:id"`
	EntityType domain.EntityType `gorm:"column:entity_type"`
	EntityID   snowflake.ID      `gorm:"column:entity_id"`
	Present    int64             `gorm:"column:present"`
}

func (r *repo) Claim(ctx context.Context, db *gorm.DB, req domain.ClaimRequest, token string, at time.Time) (domain.ClaimResult, error) {
	result := domain.ClaimResult{Token: token}
	if !req.All && len(req.IDs) == 0 {
		return result, domain.ErrEmptySelection
	}

	stmt := `SELECT q.id, q.entity_type, q.entity_id,
			CASE q.entity_type
				WHEN 'invoice' THEN (SELECT COUNT(1) FROM invoices i WHERE i.id = q.entity_id AND i.deleted_at IS NULL)
				WHEN 'timesheet' THEN (SELECT COUNT(1) FROM timesheets t WHERE t.id = q.entity_id AND t.deleted_at IS NULL)
				ELSE 0
			END AS present
		 FROM queue_items q
		 WHERE q.status = ? AND q.deleted_at IS NULL`
	args := []any{domain.StatusQueued}
	if !req.All {
		stmt += ` AND q.id IN ?`
		args = append(args, req.IDs)
	}
	stmt += ` ORDER BY q.queued_at, q.id`
	if req.Limit > 0 {
		stmt += ` LIMIT ?`
		args = append(args, req.Limit)
	}
	stmt += ` FOR UPDATE SKIP LOCKED`

	var candidates []claimCandidate
	if err := db.WithContext(ctx).Raw(stmt, args...).Scan(&candidates).Error; err != nil {
		return result, err
	}

	ids := make([]snowflake.ID, 0, len(candidates))
	for _, c := range candidates {
		if c.Present == 0 {
			result.Excluded = append(result.Excluded, domain.ExcludedItem{
				ItemID:     c.ID,
				EntityType: c.EntityType,
				EntityID:   c.EntityID,
				Reason:     "source " + string(c.EntityType) + " missing or deleted",
			})
			continue
		}
		ids = append(ids, c.ID)
	}
	if len(ids) == 0 {
		return result, nil
	}

	// The status predicate is the mutual-exclusion point between concurrent dispatchers.
	if err := db.WithContext(ctx).Exec(
		`UPDATE queue_items
		 SET status = ?, claim_token = ?, claimed_at = ?, attempts = attempts + 1,
			error_message = NULL, updated_at = ?
		 WHERE id IN ? AND status = ? AND deleted_at IS NULL`,
		domain.StatusSending,
		token,
		at,
		at,
		ids,
		domain.StatusQueued,
	).Error; err != nil {
		return result, err
	}

	if err := db.WithContext(ctx).Raw(
		`SELECT `+queueColumns+` FROM queue_items
		 WHERE claim_token = ? AND status = ?
		 ORDER BY queued_at, id`,
		token,
		domain.StatusSending,
	).Scan(&result.Items).Error; err != nil {
		return result, err
	}
	return result, nil
}

func (r *repo) Resolve(ctx context.Context, db *gorm.DB, token string, res domain.Resolution) (int64, error) {
	if !res.Status.Terminal() {
		return 0, domain.ErrInvalidTransition
	}

	var batchID, sentAt, errMessage any
	if res.Status == domain.StatusSent {
		batchID = res.BatchID
		sentAt = res.SentAt
	} else {
		errMessage = res.Error
	}

	out := db.WithContext(ctx).Exec(
		`UPDATE queue_items
		 SET status = ?, batch_id = ?, sent_at = ?, error_message = ?, updated_at = ?
		 WHERE claim_token = ? AND status = ?`,
		res.Status,
		batchID,
		sentAt,
		errMessage,
		res.SentAt,
		token,
		domain.StatusSending,
	)
	return out.RowsAffected, out.Error
}

func (r *repo) SoftDelete(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE queue_items SET deleted_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND deleted_at IS NULL`,
		at,
		at,
		id,
		domain.StatusQueued,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) Requeue(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE queue_items
		 SET status = ?, claim_token = NULL, claimed_at = NULL, batch_id = NULL, sent_at = NULL,
			error_message = NULL, queued_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND deleted_at IS NULL`,
		domain.StatusQueued,
		at,
		at,
		id,
		domain.StatusFailed,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ListStuck(ctx context.Context, db *gorm.DB, claimedBefore time.Time) ([]domain.QueueItem, error) {
	var items []domain.QueueItem
	if err := db.WithContext(ctx).Raw(
		`SELECT `+queueColumns+` FROM queue_items
		 WHERE status = ? AND deleted_at IS NULL AND claimed_at < ?
		 ORDER BY claimed_at, id`,
		domain.StatusSending,
		claimedBefore,
	).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FailStuck(ctx context.Context, db *gorm.DB, ids []snowflake.ID, claimedBefore time.Time, reason string, at time.Time) (int64, error) {
	stmt := `UPDATE queue_items SET status = ?, error_message = ?, updated_at = ?
		 WHERE status = ? AND deleted_at IS NULL AND claimed_at < ?`
	args := []any{domain.StatusFailed, reason, at, domain.StatusSending, claimedBefore}
	if len(ids) > 0 {
		stmt += ` AND id IN ?`
		args = append(args, ids)
	}
	res := db.WithContext(ctx).Exec(stmt, args...)
	return res.RowsAffected, res.Error
}

func (r *repo) MarkEntitiesEmailed(ctx context.Context, db *gorm.DB, items []domain.QueueItem, at time.Time) error {
	var invoiceIDs, timesheetIDs []snowflake.ID
	for _, item := range items {
		switch item.EntityType {
		case domain.EntityInvoice:
			invoiceIDs = append(invoiceIDs, item.EntityID)
		case domain.EntityTimesheet:
			timesheetIDs = append(timesheetIDs, item.EntityID)
		}
	}

	if len(invoiceIDs) > 0 {
		if err := db.WithContext(ctx).Exec(
			`UPDATE invoices SET status = 'emailed', updated_at = ?
			 WHERE id IN ? AND status = 'approved' AND deleted_at IS NULL`,
			at,
			invoiceIDs,
		).Error; err != nil {
			return err
		}
	}
	if len(timesheetIDs) > 0 {
		if err := db.WithContext(ctx).Exec(
			`UPDATE timesheets SET status = 'emailed', updated_at = ?
			 WHERE id IN ? AND status = 'approved' AND deleted_at IS NULL`,
			at,
			timesheetIDs,
		).Error; err != nil {
			return err
		}
	}
	return nil
}
