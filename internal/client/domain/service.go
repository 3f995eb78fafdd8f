package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	InsertPayer(ctx context.Context, db *gorm.DB, payer *Payer) error
	InsertClient(ctx context.Context, db *gorm.DB, client *Client) error
	FindClient(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Client, error)
	FindPayer(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payer, error)
	// FindPayerForClient returns nil when the client has no payer.
	FindPayerForClient(ctx context.Context, db *gorm.DB, clientID snowflake.ID) (*Payer, error)
}

type CreatePayerRequest struct {
	Name                      string           `json:"name" binding:"required"`
	RatePerUnit               *decimal.Decimal `json:"rate_per_unit"`
	MinutesPerUnit            *int             `json:"minutes_per_unit"`
	StandardRatePerUnit       *decimal.Decimal `json:"standard_rate_per_unit"`
	StandardMinutesPerUnit    *int             `json:"standard_minutes_per_unit"`
	SupervisoryRatePerUnit    *decimal.Decimal `json:"supervisory_rate_per_unit"`
	SupervisoryMinutesPerUnit *int             `json:"supervisory_minutes_per_unit"`
}

type CreateClientRequest struct {
	Name         string `json:"name" binding:"required"`
	BillingEmail string `json:"billing_email"`
	PayerID      string `json:"payer_id"`
}

type Service interface {
	CreatePayer(ctx context.Context, req CreatePayerRequest) (Payer, error)
	CreateClient(ctx context.Context, req CreateClientRequest) (Client, error)
	GetClient(ctx context.Context, id snowflake.ID) (Client, error)
}

var (
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidEmail  = errors.New("invalid_email")
	ErrInvalidID     = errors.New("invalid_id")
	ErrInvalidRate   = errors.New("invalid_rate")
	ErrNotFound      = errors.New("client_not_found")
	ErrPayerNotFound = errors.New("payer_not_found")
)
