package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateTimesheetRequest struct {
	ProviderID    string       `json:"provider_id" binding:"required"`
	ClientID      string       `json:"client_id" binding:"required"`
	StartDate     string       `json:"start_date"`
	EndDate       string       `json:"end_date"`
	IsSupervisory bool         `json:"is_supervisory"`
	Entries       []EntryInput `json:"entries" binding:"required,min=1,dive"`
}

// UpdateTimesheetRequest is a partial update; nil fields are left unchanged.
type UpdateTimesheetRequest struct {
	StartDate     *string       `json:"start_date"`
	EndDate       *string       `json:"end_date"`
	IsSupervisory *bool         `json:"is_supervisory"`
	Entries       *[]EntryInput `json:"entries"`
}

// OverlapRequest asks whether candidate entries collide with recorded standard time.
type OverlapRequest struct {
	ProviderID         snowflake.ID
	ClientID           snowflake.ID
	Entries            []EntryInput
	ExcludeTimesheetID *snowflake.ID
	Supervisory        bool
}

// ExistingInterval is a recorded entry considered by the overlap detector.
type ExistingInterval struct {
	EntryID     snowflake.ID `gorm:"column:entry_id"`
	TimesheetID snowflake.ID `gorm:"column:timesheet_id"`
	ProviderID  snowflake.ID `gorm:"column:provider_id"`
	ClientID    snowflake.ID `gorm:"column:client_id"`
	EntryDate   time.Time    `gorm:"column:entry_date"`
	StartTime   string       `gorm:"column:start_time"`
	EndTime     string       `gorm:"column:end_time"`
}

type OverlapQuery struct {
	ProviderID         snowflake.ID
	ClientID           snowflake.ID
	Dates              []time.Time
	ExcludeTimesheetID *snowflake.ID
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, ts *Timesheet) error
	InsertEntries(ctx context.Context, db *gorm.DB, entries []TimeEntry) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Timesheet, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Timesheet, error)
	ListEntries(ctx context.Context, db *gorm.DB, timesheetID snowflake.ID) ([]TimeEntry, error)
	UpdateHeader(ctx context.Context, db *gorm.DB, ts *Timesheet) error
	DeleteUnbilledEntries(ctx context.Context, db *gorm.DB, timesheetID snowflake.ID) error
	CountBilledEntries(ctx context.Context, db *gorm.DB, timesheetID snowflake.ID) (int64, error)
	TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, at time.Time) (bool, error)
	SoftDelete(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	ListStandardIntervals(ctx context.Context, db *gorm.DB, q OverlapQuery) ([]ExistingInterval, error)
	ClientExists(ctx context.Context, db *gorm.DB, clientID snowflake.ID) (bool, error)
}

type Service interface {
	Create(ctx context.Context, req CreateTimesheetRequest) (Timesheet, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateTimesheetRequest) (Timesheet, error)
	Approve(ctx context.Context, id snowflake.ID) (Timesheet, error)
	Delete(ctx context.Context, id snowflake.ID) error
	Get(ctx context.Context, id snowflake.ID) (Timesheet, error)
	CheckOverlaps(ctx context.Context, req OverlapRequest) ([]Conflict, error)
}
