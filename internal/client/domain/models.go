package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ratingdomain "github.com/smallbiznis/carebill/internal/rating/domain"
	"gorm.io/gorm"
)

// Payer is an insurance program with its per-unit rates.
type Payer struct {
	ID                        snowflake.ID        `gorm:"primaryKey" json:"id"`
	Name                      string              `gorm:"not null" json:"name"`
	RatePerUnit               decimal.NullDecimal `gorm:"type:numeric(12,4)" json:"rate_per_unit"`
	MinutesPerUnit            *int                `json:"minutes_per_unit,omitempty"`
	StandardRatePerUnit       decimal.NullDecimal `gorm:"type:numeric(12,4)" json:"standard_rate_per_unit"`
	StandardMinutesPerUnit    *int                `json:"standard_minutes_per_unit,omitempty"`
	SupervisoryRatePerUnit    decimal.NullDecimal `gorm:"type:numeric(12,4)" json:"supervisory_rate_per_unit"`
	SupervisoryMinutesPerUnit *int                `json:"supervisory_minutes_per_unit,omitempty"`
	CreatedAt                 time.Time           `gorm:"not null" json:"created_at"`
	UpdatedAt                 time.Time           `gorm:"not null" json:"updated_at"`
}

func (Payer) TableName() string { return "payers" }

// Rates projects the payer onto the rate resolver's input.
func (p Payer) Rates() ratingdomain.PayerRates {
	return ratingdomain.PayerRates{
		PayerID:            p.ID,
		LegacyRate:         p.RatePerUnit,
		LegacyMinutes:      p.MinutesPerUnit,
		StandardRate:       p.StandardRatePerUnit,
		StandardMinutes:    p.StandardMinutesPerUnit,
		SupervisoryRate:    p.SupervisoryRatePerUnit,
		SupervisoryMinutes: p.SupervisoryMinutesPerUnit,
	}
}

type Client struct {
	ID           snowflake.ID   `gorm:"primaryKey" json:"id"`
	Name         string         `gorm:"not null" json:"name"`
	BillingEmail string         `gorm:"not null" json:"billing_email"`
	PayerID      *snowflake.ID  `json:"payer_id,omitempty"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-"`
}

func (Client) TableName() string { return "clients" }
