package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/carebill/internal/authorization"
	clientdomain "github.com/smallbiznis/carebill/internal/client/domain"
	deliverydomain "github.com/smallbiznis/carebill/internal/delivery/domain"
	invoicedomain "github.com/smallbiznis/carebill/internal/invoice/domain"
	timesheetdomain "github.com/smallbiznis/carebill/internal/timesheet/domain"
	"github.com/smallbiznis/carebill/pkg/db"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type      string                     `json:"type"`
	Message   string                     `json:"message"`
	Errors    []ValidationError          `json:"errors,omitempty"`
	Conflicts []timesheetdomain.Conflict `json:"conflicts,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// Domain sentinels that are reported to callers as a malformed request.
var validationSentinels = []error{
	ErrInvalidRequest,
	invoicedomain.ErrInvalidInvoiceID,
	invoicedomain.ErrEmptySelection,
	invoicedomain.ErrInvalidTimesheetID,
	invoicedomain.ErrInvalidAmount,
	invoicedomain.ErrEmptyUpdate,
	invoicedomain.ErrVoidReasonRequired,
	timesheetdomain.ErrInvalidID,
	deliverydomain.ErrInvalidID,
	deliverydomain.ErrInvalidEntityType,
	deliverydomain.ErrEmptySelection,
	deliverydomain.ErrInvalidStatus,
	deliverydomain.ErrInvalidPageToken,
	deliverydomain.ErrInvalidThreshold,
	clientdomain.ErrInvalidName,
	clientdomain.ErrInvalidEmail,
	clientdomain.ErrInvalidID,
	clientdomain.ErrInvalidRate,
}

var notFoundSentinels = []error{
	ErrNotFound,
	invoicedomain.ErrInvoiceNotFound,
	timesheetdomain.ErrNotFound,
	timesheetdomain.ErrClientNotFound,
	deliverydomain.ErrItemNotFound,
	clientdomain.ErrNotFound,
	clientdomain.ErrPayerNotFound,
	gorm.ErrRecordNotFound,
}

var conflictSentinels = []error{
	ErrConflict,
	invoicedomain.ErrInvalidStatus,
	invoicedomain.ErrDuplicateInvoice,
	invoicedomain.ErrConcurrencyConflict,
	timesheetdomain.ErrInvalidStatus,
	timesheetdomain.ErrTimesheetLocked,
	timesheetdomain.ErrTimesheetBilled,
	deliverydomain.ErrInvalidTransition,
	deliverydomain.ErrNothingToClaim,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// bindError turns a gin binding failure into field errors.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalidRequestError()
	}
	out := &ValidationErrors{}
	for _, fe := range verrs {
		field := toSnake(fe.Field())
		out.Errors = append(out.Errors, ValidationError{
			Field:   field,
			Code:    fe.Tag(),
			Message: fmt.Sprintf("%s failed on %s", field, fe.Tag()),
		})
	}
	return out
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var tsErr *timesheetdomain.ValidationError
	if errors.As(err, &tsErr) {
		payload := errorPayload{Type: "validation_error", Message: "validation error"}
		for _, fe := range tsErr.Errors {
			payload.Errors = append(payload.Errors, ValidationError(fe))
		}
		return http.StatusBadRequest, payload
	}

	var overlapErr *timesheetdomain.OverlapError
	if errors.As(err, &overlapErr) {
		return http.StatusConflict, errorPayload{
			Type:      "overlap_detected",
			Message:   overlapErr.Error(),
			Conflicts: overlapErr.Conflicts,
		}
	}

	if code, ok := matchSentinel(err, validationSentinels); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	}

	if code, ok := matchSentinel(err, notFoundSentinels); ok {
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: code,
		}
	}
	if code, ok := matchSentinel(err, conflictSentinels); ok {
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: code,
		}
	}
	if db.IsDuplicateKeyErr(err) {
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "duplicate_resource",
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

func matchSentinel(err error, sentinels []error) (string, bool) {
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}
	return "", false
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

// classifyErrorForLog reports the error type and code the request logger attaches.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	} else if status != http.StatusInternalServerError {
		code = payload.Message
	}
	return payload.Type, code
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "empty_selection":
		return "select at least one item"
	case "empty_update":
		return "nothing to update"
	case "void_reason_required":
		return "a reason is required to void an invoice"
	default:
		return "invalid value"
	}
}

func toSnake(name string) string {
	var b strings.Builder
	var prev rune
	for _, r := range name {
		if r >= 'A' && r <= 'Z' {
			if prev >= 'a' && prev <= 'z' {
				b.WriteByte('_')
			}
			prev = r
			r += 'a' - 'A'
		} else {
			prev = r
		}
		b.WriteRune(r)
	}
	return b.String()
}
