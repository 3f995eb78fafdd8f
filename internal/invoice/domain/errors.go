package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidInvoiceID    = errors.New("invalid_invoice_id")
	ErrInvoiceNotFound     = errors.New("invoice_not_found")
	ErrInvalidStatus       = errors.New("invalid_invoice_status")
	ErrEmptySelection      = errors.New("empty_selection")
	ErrInvalidTimesheetID  = errors.New("invalid_timesheet_id")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrEmptyUpdate         = errors.New("empty_update")
	ErrVoidReasonRequired  = errors.New("void_reason_required")
	ErrDuplicateInvoice    = errors.New("invoice_already_exists")
	ErrConcurrencyConflict = errors.New("concurrency_conflict")
)

// DuplicateInvoiceError is raised by the idempotency guard; callers report it as a skip.
type DuplicateInvoiceError struct {
	ClientID      snowflake.ID
	WeekStart     time.Time
	InvoiceNumber string
}

func (e *DuplicateInvoiceError) Error() string {
	return fmt.Sprintf("invoice %s already exists for client %s week %s",
		e.InvoiceNumber, e.ClientID, e.WeekStart.Format("2006-01-02"))
}

func (e *DuplicateInvoiceError) Is(target error) bool { return target == ErrDuplicateInvoice }

// ConcurrencyConflict reports a write that lost a race after bounded retries.
type ConcurrencyConflict struct {
	Op       string
	Attempts int
}

func (e *ConcurrencyConflict) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("concurrency conflict during %s after %d attempts", e.Op, e.Attempts)
	}
	return fmt.Sprintf("concurrency conflict during %s", e.Op)
}

func (e *ConcurrencyConflict) Is(target error) bool { return target == ErrConcurrencyConflict }
