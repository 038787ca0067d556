package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

// DiscountCode is stored with its code trimmed and upper-cased; lookups
// normalize input the same way. MaxUses == 0 means unlimited, and an empty
// TicketTierID means the code applies to every tier.
type DiscountCode struct {
	bun.BaseModel `bun:"table:discount_codes"`

	ID            string          `bun:"id,pk" json:"id"`
	Code          string          `bun:"code,notnull,unique" json:"code"`
	Description   string          `bun:"description" json:"description"`
	DiscountType  DiscountType    `bun:"discount_type,notnull" json:"discount_type"`
	DiscountValue decimal.Decimal `bun:"discount_value,notnull" json:"discount_value"`
	ValidFrom     time.Time       `bun:"valid_from,nullzero" json:"valid_from,omitempty"`
	ValidUntil    time.Time       `bun:"valid_until,nullzero" json:"valid_until,omitempty"`
	MaxUses       int             `bun:"max_uses" json:"max_uses"`
	CurrentUses   int             `bun:"current_uses,notnull" json:"current_uses"`
	TicketTierID  string          `bun:"ticket_tier_id,nullzero" json:"ticket_tier_id,omitempty"`
	IsActive      bool            `bun:"is_active,notnull" json:"is_active"`
	CreatedAt     time.Time       `bun:"created_at,notnull" json:"created_at"`
}
