package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Status string

const (
	StatusDraft    Status = "draft"
	StatusApproved Status = "approved"
	StatusEmailed  Status = "emailed"
	StatusLocked   Status = "locked"
)

// Billable reports whether entries of a timesheet in this status may be invoiced.
func (s Status) Billable() bool {
	return s == StatusApproved || s == StatusEmailed
}

type Timesheet struct {
	ID            snowflake.ID   `gorm:"primaryKey" json:"id"`
	ProviderID    snowflake.ID   `gorm:"not null" json:"provider_id"`
	ClientID      snowflake.ID   `gorm:"not null" json:"client_id"`
	StartDate     time.Time      `gorm:"type:date;not null" json:"start_date"`
	EndDate       time.Time      `gorm:"type:date;not null" json:"end_date"`
	Status        Status         `gorm:"not null" json:"status"`
	IsSupervisory bool           `gorm:"not null" json:"is_supervisory"`
	InvoiceID     *snowflake.ID  `json:"invoice_id,omitempty"`
	CreatedBy     string         `gorm:"not null" json:"created_by"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-"`

	Entries []TimeEntry `gorm:"-" json:"entries,omitempty"`
}

func (Timesheet) TableName() string { return "timesheets" }

// TimeEntry is one contiguous interval of service. Times are wall-clock "HH:MM".
type TimeEntry struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	TimesheetID     snowflake.ID `gorm:"not null" json:"timesheet_id"`
	EntryDate       time.Time    `gorm:"type:date;not null" json:"entry_date"`
	StartTime       string       `gorm:"not null" json:"start_time"`
	EndTime         string       `gorm:"not null" json:"end_time"`
	DurationMinutes int          `gorm:"not null" json:"duration_minutes"`
	ServiceTag      string       `gorm:"not null" json:"service_tag"`
	Billed          bool         `gorm:"not null" json:"billed"`
	CreatedAt       time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null" json:"updated_at"`
}

func (TimeEntry) TableName() string { return "time_entries" }
