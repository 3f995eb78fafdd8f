package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type GenerateRequest struct {
	TimesheetIDs []string `json:"timesheet_ids" binding:"required,min=1"`
	StandardOnly bool     `json:"standard_only"`
}

type CreatedInvoice struct {
	InvoiceID     snowflake.ID    `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	ClientID      snowflake.ID    `json:"client_id"`
	WeekStart     string          `json:"week_start"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	TotalUnits    decimal.Decimal `json:"total_units"`
	EntryCount    int             `json:"entry_count"`
}

type SkippedGroup struct {
	ClientID      snowflake.ID `json:"client_id"`
	WeekStart     string       `json:"week_start"`
	Reason        string       `json:"reason"`
	InvoiceNumber string       `json:"invoice_number,omitempty"`
}

type GroupError struct {
	ClientID  snowflake.ID `json:"client_id"`
	WeekStart string       `json:"week_start"`
	Code      string       `json:"code"`
	Error     string       `json:"error"`
}

// GenerateResult always reports every group; it is never all-or-nothing.
type GenerateResult struct {
	Created []CreatedInvoice `json:"created"`
	Skipped []SkippedGroup   `json:"skipped"`
	Errors  []GroupError     `json:"errors"`
}

// UpdateBalanceRequest is a partial update; nil fields are left unchanged.
type UpdateBalanceRequest struct {
	PaidAmount  *decimal.Decimal `json:"paid_amount"`
	Adjustments *decimal.Decimal `json:"adjustments"`
}

type VoidRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type RecalculateResult struct {
	Invoice        Invoice         `json:"invoice"`
	PreviousAmount decimal.Decimal `json:"previous_amount"`
	ChangedLines   int             `json:"changed_lines"`
}

// TimesheetProgram tells whether a billed timesheet is on the supervisory track.
type TimesheetProgram struct {
	ID            snowflake.ID `gorm:"column:id"`
	IsSupervisory bool         `gorm:"column:is_supervisory"`
}

// InvoicedTimesheet is a requested timesheet already linked to a live invoice.
type InvoicedTimesheet struct {
	TimesheetID    snowflake.ID `gorm:"column:timesheet_id"`
	ClientID       snowflake.ID `gorm:"column:client_id"`
	TimesheetStart time.Time    `gorm:"column:timesheet_start"`
	InvoiceNumber  string       `gorm:"column:invoice_number"`
}

type Repository interface {
	ListEligibleEntries(ctx context.Context, db *gorm.DB, timesheetIDs []snowflake.ID, standardOnly bool) ([]EligibleEntry, error)
	ListInvoicedTimesheets(ctx context.Context, db *gorm.DB, timesheetIDs []snowflake.ID) ([]InvoicedTimesheet, error)
	// FindOverlapping returns a live invoice of the client whose week intersects [start, end].
	FindOverlapping(ctx context.Context, db *gorm.DB, clientID snowflake.ID, start, end time.Time) (*Invoice, error)
	NextSequence(ctx context.Context, db *gorm.DB, year int) (int64, error)
	// Insert reports false when a unique index absorbed the row.
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) (bool, error)
	InsertLines(ctx context.Context, db *gorm.DB, lines []InvoiceEntry) error
	MarkEntriesBilled(ctx context.Context, db *gorm.DB, entryIDs []snowflake.ID, at time.Time) (int64, error)
	LinkTimesheets(ctx context.Context, db *gorm.DB, timesheetIDs []snowflake.ID, invoiceID snowflake.ID, at time.Time) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	ListLines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceEntry, error)
	TimesheetPrograms(ctx context.Context, db *gorm.DB, timesheetIDs []snowflake.ID) (map[snowflake.ID]bool, error)
	UpdateLine(ctx context.Context, db *gorm.DB, line InvoiceEntry) error
	UpdateAmounts(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to InvoiceStatus, at time.Time) (bool, error)
	LockTimesheets(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, at time.Time) error
	UnbillEntries(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, at time.Time) error
	DeleteLines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) error
	UnlinkTimesheets(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, at time.Time) error
	Void(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, at time.Time) (bool, error)
}

type Service interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
	Approve(ctx context.Context, id snowflake.ID) (Invoice, error)
	UpdateBalance(ctx context.Context, id snowflake.ID, req UpdateBalanceRequest) (Invoice, error)
	Recalculate(ctx context.Context, id snowflake.ID) (RecalculateResult, error)
	Void(ctx context.Context, id snowflake.ID, req VoidRequest) error
	GetByID(ctx context.Context, id snowflake.ID) (Invoice, error)
}
