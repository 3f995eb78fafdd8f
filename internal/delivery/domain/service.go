package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type EnqueueRequest struct {
	EntityType EntityType
	EntityID   snowflake.ID
	Recipients []string
	At         time.Time
}

// Enqueuer adds items from inside the caller's transaction.
type Enqueuer interface {
	// Enqueue returns the pending item for the entity; created is false when
	// one was already QUEUED or SENDING.
	Enqueue(ctx context.Context, tx *gorm.DB, req EnqueueRequest) (item *QueueItem, created bool, err error)
}

// ClaimRequest selects QUEUED items by id, or every eligible item when All is set.
type ClaimRequest struct {
	IDs   []snowflake.ID
	All   bool
	Limit int
}

// ExcludedItem is a selected item whose invoice or timesheet is gone. It stays QUEUED.
type ExcludedItem struct {
	ItemID     snowflake.ID `json:"item_id"`
	EntityType EntityType   `json:"entity_type"`
	EntityID   snowflake.ID `json:"entity_id"`
	Reason     string       `json:"reason"`
}

type ClaimResult struct {
	Token    string         `json:"-"`
	Items    []QueueItem    `json:"items"`
	Excluded []ExcludedItem `json:"excluded,omitempty"`
}

// Resolution is the shared outcome applied to every item of a claim.
type Resolution struct {
	Status  Status
	BatchID string
	SentAt  time.Time
	Error   string
}

type DispatchRequest struct {
	IDs        []snowflake.ID `json:"ids"`
	All        bool           `json:"all"`
	Recipients []string       `json:"recipients"`
}

type ItemError struct {
	ItemID     snowflake.ID `json:"item_id"`
	EntityType EntityType   `json:"entity_type"`
	EntityID   snowflake.ID `json:"entity_id"`
	Error      string       `json:"error"`
}

type DispatchResult struct {
	Status       Status         `json:"status"`
	SentCount    int            `json:"sent_count"`
	FailedCount  int            `json:"failed_count"`
	BatchID      string         `json:"batch_id,omitempty"`
	Error        string         `json:"error,omitempty"`
	RenderErrors []ItemError    `json:"render_errors,omitempty"`
	Excluded     []ExcludedItem `json:"excluded,omitempty"`
}

type ListRequest struct {
	Status    Status
	PageToken string
	PageSize  int
}

type ListResponse struct {
	Items         []QueueItem `json:"items"`
	NextPageToken string      `json:"next_page_token,omitempty"`
	HasMore       bool        `json:"has_more"`
}

type ListFilter struct {
	Status       Status
	BeforeQueued *time.Time
	BeforeID     snowflake.ID
	Limit        int
}

type Repository interface {
	Enqueuer
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*QueueItem, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]QueueItem, error)
	// Claim flips selected QUEUED items to SENDING under a fresh token.
	Claim(ctx context.Context, db *gorm.DB, req ClaimRequest, token string, at time.Time) (ClaimResult, error)
	// Resolve moves every SENDING item held by token to the resolution status.
	Resolve(ctx context.Context, db *gorm.DB, token string, res Resolution) (int64, error)
	SoftDelete(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	Requeue(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	ListStuck(ctx context.Context, db *gorm.DB, claimedBefore time.Time) ([]QueueItem, error)
	FailStuck(ctx context.Context, db *gorm.DB, ids []snowflake.ID, claimedBefore time.Time, reason string, at time.Time) (int64, error)
	MarkEntitiesEmailed(ctx context.Context, db *gorm.DB, items []QueueItem, at time.Time) error
}

type Service interface {
	ClaimAndSend(ctx context.Context, req DispatchRequest) (DispatchResult, error)
	Remove(ctx context.Context, id snowflake.ID) error
	Requeue(ctx context.Context, id snowflake.ID) (QueueItem, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	ListStuck(ctx context.Context, threshold time.Duration) ([]QueueItem, error)
	FailStuck(ctx context.Context, ids []snowflake.ID, threshold time.Duration, reason string) (int64, error)
}
