package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Document is the rendered attachment for one queue item.
type Document struct {
	EntityType  EntityType
	EntityID    snowflake.ID
	Title       string
	Summary     string
	FileName    string
	ContentType string
	Content     []byte
}

// Renderer produces the document behind a queue item. Missing or deleted
// sources and empty output are reported as *RenderError.
type Renderer interface {
	Render(ctx context.Context, item QueueItem) (Document, error)
}
