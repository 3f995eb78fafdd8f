package domain

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidEntityType = errors.New("invalid_entity_type")
	ErrItemNotFound      = errors.New("queue_item_not_found")
	ErrInvalidTransition = errors.New("invalid_queue_transition")
	ErrNothingToClaim    = errors.New("nothing_to_claim")
	ErrNoRecipients      = errors.New("no_recipients")
	ErrEmptySelection    = errors.New("empty_selection")
	ErrRender            = errors.New("render_failed")
	ErrDelivery          = errors.New("delivery_failed")
	ErrAllRendersFailed  = errors.New("all document generation failed")
	ErrInvalidStatus     = errors.New("invalid_queue_status")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
	ErrInvalidThreshold  = errors.New("invalid_threshold")
)

// RenderError reports a document that could not be produced for one queue item.
type RenderError struct {
	EntityType EntityType
	EntityID   snowflake.ID
	Err        error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s %s: %v", e.EntityType, e.EntityID, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

func (e *RenderError) Is(target error) bool { return target == ErrRender }

// DeliveryError fails every item of the batch it was raised for.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string { return fmt.Sprintf("delivery failed: %v", e.Err) }

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool { return target == ErrDelivery }
