package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type TierStatus string

const (
	TierAvailable  TierStatus = "AVAILABLE"
	TierSoldOut    TierStatus = "SOLD_OUT"
	TierComingSoon TierStatus = "COMING_SOON"
)

// TicketTier is a purchasable category of ticket with its own price and
// capacity. SoldQuantity is mutated only through the inventory ledger.
type TicketTier struct {
	bun.BaseModel `bun:"table:ticket_tiers"`

	ID            string          `bun:"id,pk" json:"id"`
	Name          string          `bun:"name,notnull" json:"name"`
	Slug          string          `bun:"slug,notnull,unique" json:"slug"`
	Description   string          `bun:"description" json:"description"`
	Tagline       string          `bun:"tagline,nullzero" json:"tagline,omitempty"`
	Price         decimal.Decimal `bun:"price,notnull" json:"price"`
	Currency      string          `bun:"currency,notnull" json:"currency"`
	Status        TierStatus      `bun:"status,notnull" json:"status"`
	TotalQuantity int             `bun:"total_quantity,notnull" json:"total_quantity"`
	SoldQuantity  int             `bun:"sold_quantity,notnull" json:"sold_quantity"`
	SortOrder     int             `bun:"sort_order" json:"sort_order"`
	CreatedAt     time.Time       `bun:"created_at,notnull" json:"created_at"`
}

// Available returns the quantity still open for reservation.
func (t *TicketTier) Available() int {
	remaining := t.TotalQuantity - t.SoldQuantity
	if remaining < 0 {
		return 0
	}
	return remaining
}
