package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kcd-ticketing/internal/logger"
	"kcd-ticketing/internal/models"

	"github.com/uptrace/bun"
)

var (
	ErrTierNotFound      = errors.New("ticket tier not found")
	ErrTierUnavailable   = errors.New("ticket tier is not available for purchase")
	ErrInsufficientStock = errors.New("not enough tickets available")
)

// Ledger tracks total vs. sold quantity per ticket tier. Every method runs on
// the bun.IDB it is handed, so callers decide the transaction scope.
type Ledger struct {
	logger *logger.Logger
}

func NewLedger(l *logger.Logger) *Ledger {
	return &Ledger{logger: l}
}

// Reserve claims quantity from a tier with a single guarded update: the
// availability check and the increment happen in one statement, so two
// concurrent reservations can never both observe sufficient stock and
// collectively oversell.
func (l *Ledger) Reserve(ctx context.Context, idb bun.IDB, tierID string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("reserve quantity must be positive, got %d", quantity)
	}

	res, err := idb.NewUpdate().
		Model((*models.TicketTier)(nil)).
		Set("sold_quantity = sold_quantity + ?", quantity).
		Where("id = ?", tierID).
		Where("status = ?", models.TierAvailable).
		Where("sold_quantity + ? <= total_quantity", quantity).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reserve tier %s: %w", tierID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve tier %s: %w", tierID, err)
	}
	if rows == 1 {
		return nil
	}

	// The guarded update matched nothing; re-read the row to report why.
	tier, err := l.GetTierByID(ctx, idb, tierID)
	if err != nil {
		return err
	}
	if tier.Status != models.TierAvailable {
		return fmt.Errorf("tier %s: %w", tier.Slug, ErrTierUnavailable)
	}
	return fmt.Errorf("tier %s has %d left, requested %d: %w",
		tier.Slug, tier.Available(), quantity, ErrInsufficientStock)
}

// Release returns quantity to a tier, floored at zero. Callers track whether
// a release already happened (via order status), so the floor should never
// actually trigger.
func (l *Ledger) Release(ctx context.Context, idb bun.IDB, tierID string, quantity int) error {
	if quantity <= 0 {
		return nil
	}

	_, err := idb.NewUpdate().
		Model((*models.TicketTier)(nil)).
		Set("sold_quantity = CASE WHEN sold_quantity >= ? THEN sold_quantity - ? ELSE 0 END",
			quantity, quantity).
		Where("id = ?", tierID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("release tier %s: %w", tierID, err)
	}
	return nil
}

func (l *Ledger) GetTierByID(ctx context.Context, idb bun.IDB, tierID string) (*models.TicketTier, error) {
	var tier models.TicketTier
	err := idb.NewSelect().
		Model(&tier).
		Where("id = ?", tierID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTierNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

// GetTiersBySlugs resolves tiers for an order's selections. Unknown slugs are
// reported by the caller comparing lengths against its request.
func (l *Ledger) GetTiersBySlugs(ctx context.Context, idb bun.IDB, slugs []string) ([]models.TicketTier, error) {
	var tiers []models.TicketTier
	if len(slugs) == 0 {
		return tiers, nil
	}
	err := idb.NewSelect().
		Model(&tiers).
		Where("slug IN (?)", bun.In(slugs)).
		Order("sort_order").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tiers, nil
}

// ListTiers returns every tier ordered for display.
func (l *Ledger) ListTiers(ctx context.Context, idb bun.IDB) ([]models.TicketTier, error) {
	var tiers []models.TicketTier
	err := idb.NewSelect().
		Model(&tiers).
		Order("sort_order").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tiers, nil
}
