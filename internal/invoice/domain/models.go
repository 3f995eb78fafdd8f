// Package domain contains the persistence models and contracts for weekly invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft    InvoiceStatus = "draft"
	InvoiceStatusApproved InvoiceStatus = "approved"
	InvoiceStatusEmailed  InvoiceStatus = "emailed"
	InvoiceStatusPaid     InvoiceStatus = "paid"
)

// Invoice is one client's bill for one ISO week (Monday to Sunday).
type Invoice struct {
	ID                 snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceNumber      string          `gorm:"type:text;not null;uniqueIndex" json:"invoice_number"`
	ClientID           snowflake.ID    `gorm:"not null;index" json:"client_id"`
	WeekStart          time.Time       `gorm:"type:date;not null" json:"week_start"`
	WeekEnd            time.Time       `gorm:"type:date;not null" json:"week_end"`
	TotalAmount        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	TotalUnits         decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"total_units"`
	PaidAmount         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"paid_amount"`
	Adjustments        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"adjustments"`
	OutstandingBalance decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"outstanding_balance"`
	Status             InvoiceStatus   `gorm:"type:text;not null;default:'draft'" json:"status"`
	VoidReason         string          `gorm:"type:text;not null" json:"void_reason,omitempty"`
	CreatedBy          string          `gorm:"type:text;not null" json:"created_by"`
	CreatedAt          time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"not null" json:"updated_at"`
	DeletedAt          gorm.DeletedAt  `json:"-"`

	Lines []InvoiceEntry `gorm:"-" json:"lines,omitempty"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceEntry is the billed form of exactly one time entry.
type InvoiceEntry struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	TimeEntryID snowflake.ID    `gorm:"not null;uniqueIndex" json:"time_entry_id"`
	TimesheetID snowflake.ID    `gorm:"not null" json:"timesheet_id"`
	ProviderID  snowflake.ID    `gorm:"not null" json:"provider_id"`
	PayerID     *snowflake.ID   `json:"payer_id,omitempty"`
	ServiceDate time.Time       `gorm:"type:date;not null" json:"service_date"`
	ServiceTag  string          `gorm:"type:text;not null" json:"service_tag"`
	Minutes     int             `gorm:"not null" json:"minutes"`
	Units       decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"units"`
	Rate        decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"rate"`
	Amount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Suppressed  bool            `gorm:"not null" json:"suppressed"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceEntry) TableName() string { return "invoice_entries" }

// EligibleEntry is an unbilled time entry of an approved or emailed timesheet.
type EligibleEntry struct {
	EntryID         snowflake.ID `gorm:"column:entry_id"`
	TimesheetID     snowflake.ID `gorm:"column:timesheet_id"`
	ProviderID      snowflake.ID `gorm:"column:provider_id"`
	ClientID        snowflake.ID `gorm:"column:client_id"`
	IsSupervisory   bool         `gorm:"column:is_supervisory"`
	TimesheetStart  time.Time    `gorm:"column:timesheet_start"`
	EntryDate       time.Time    `gorm:"column:entry_date"`
	DurationMinutes int          `gorm:"column:duration_minutes"`
	ServiceTag      string       `gorm:"column:service_tag"`
}

// GroupKey identifies one invoice: a client and the Monday of a week.
type GroupKey struct {
	ClientID  snowflake.ID
	WeekStart time.Time
}

// WeekEnd is the Sunday closing the group's week.
func (k GroupKey) WeekEnd() time.Time {
	return k.WeekStart.AddDate(0, 0, 6)
}

// WeekStartOf returns the ISO week Monday of t as a UTC date.
func WeekStartOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
