package db

import (
	"context"
	"log"
	"time"

	"kcd-ticketing/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Migrate creates the schema and seeds the initial tiers and discount codes
// when the tables are empty.
func Migrate(bunDB *bun.DB) {
	ctx := context.Background()

	tables := []interface{}{
		(*models.TicketTier)(nil),
		(*models.DiscountCode)(nil),
		(*models.Order)(nil),
		(*models.OrderItem)(nil),
		(*models.Attendee)(nil),
	}
	for _, model := range tables {
		if _, err := bunDB.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			log.Fatalf("create table failed: %v", err)
		}
	}

	count, err := bunDB.NewSelect().Model((*models.TicketTier)(nil)).Count(ctx)
	if err != nil {
		log.Fatalf("count tiers failed: %v", err)
	}
	if count > 0 {
		return
	}

	now := time.Now()
	tiers := []models.TicketTier{
		{
			ID:            uuid.NewString(),
			Name:          "Alpha",
			Slug:          "alpha",
			Description:   "The alpha release of tickets: limited, cheapest, and first to land.",
			Tagline:       "Republic Day Special",
			Price:         decimal.NewFromInt(2000),
			Currency:      "USD",
			Status:        models.TierSoldOut,
			TotalQuantity: 100,
			SoldQuantity:  100,
			SortOrder:     0,
			CreatedAt:     now,
		},
		{
			ID:            uuid.NewString(),
			Name:          "Beta",
			Slug:          "beta",
			Description:   "The beta release: not first, not last, no regrets.",
			Price:         decimal.NewFromInt(2500),
			Currency:      "USD",
			Status:        models.TierAvailable,
			TotalQuantity: 200,
			SoldQuantity:  0,
			SortOrder:     1,
			CreatedAt:     now,
		},
		{
			ID:            uuid.NewString(),
			Name:          "GA",
			Slug:          "ga",
			Description:   "The GA release: price and time reach maturity.",
			Price:         decimal.NewFromInt(3000),
			Currency:      "USD",
			Status:        models.TierComingSoon,
			TotalQuantity: 300,
			SoldQuantity:  0,
			SortOrder:     2,
			CreatedAt:     now,
		},
	}
	if _, err := bunDB.NewInsert().Model(&tiers).Exec(ctx); err != nil {
		log.Fatalf("seed tiers failed: %v", err)
	}

	codes := []models.DiscountCode{
		{
			ID:            uuid.NewString(),
			Code:          "REPUBLIC26",
			Description:   "Republic Day Special - 26% off Alpha tier",
			DiscountType:  models.DiscountPercentage,
			DiscountValue: decimal.NewFromInt(26),
			MaxUses:       100,
			TicketTierID:  tiers[0].ID,
			IsActive:      true,
			CreatedAt:     now,
		},
	}
	if _, err := bunDB.NewInsert().Model(&codes).Exec(ctx); err != nil {
		log.Fatalf("seed discount codes failed: %v", err)
	}

	log.Println("ticketing schema created and seeded")
}
