package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidID       = errors.New("invalid_id")
	ErrNotFound        = errors.New("timesheet_not_found")
	ErrInvalidStatus   = errors.New("invalid_timesheet_status")
	ErrTimesheetLocked = errors.New("timesheet_locked")
	ErrTimesheetBilled = errors.New("timesheet_has_billed_entries")
	ErrOverlapDetected = errors.New("overlap_detected")
	ErrClientNotFound  = errors.New("client_not_found")
	ErrValidation      = errors.New("validation_failed")
)

type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError lists every malformed field of a request.
type ValidationError struct {
	Errors []FieldError
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, code, message string) *ValidationError {
	verr := &ValidationError{}
	verr.add(field, code, message)
	return verr
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) add(field, code, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Code: code, Message: message})
}

func (e *ValidationError) orNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

// OverlapError carries every conflict found for a submission.
type OverlapError struct {
	Conflicts []Conflict
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("overlap detected: %d conflicting entries", len(e.Conflicts))
}

func (e *OverlapError) Is(target error) bool {
	return target == ErrOverlapDetected
}
