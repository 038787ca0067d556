// Package discount validates and redeems discount codes. Validation is a
// read-only eligibility check; redemption is the durable usage increment and
// only ever happens inside the order-creation transaction. Usage is not
// returned when an order is later cancelled or expires.
package discount

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"kcd-ticketing/internal/logger"
	"kcd-ticketing/internal/models"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Machine-readable reasons for a failed validation, in check order.
const (
	ReasonNotFound       = "not-found"
	ReasonInactive       = "inactive"
	ReasonExhausted      = "exhausted"
	ReasonNotYetValid    = "not-yet-valid"
	ReasonExpired        = "expired"
	ReasonTierRestricted = "tier-restricted"
)

// ValidationError reports the first failing eligibility check; later checks
// are not evaluated, so the reason is deterministic.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type Service struct {
	logger *logger.Logger
}

func NewService(l *logger.Logger) *Service {
	return &Service{logger: l}
}

// NormalizeCode is the canonical code form: trimmed and upper-cased. Storage
// uses the same form, which makes matching case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks a code against the selected tiers. The checks run in a
// fixed order and short-circuit on the first failure: existence, active flag,
// usage limit, validity window, tier restriction.
func (s *Service) Validate(ctx context.Context, idb bun.IDB, code string, selectedTiers []models.TicketTier) (*models.DiscountCode, error) {
	normalized := NormalizeCode(code)

	var dc models.DiscountCode
	err := idb.NewSelect().
		Model(&dc).
		Where("code = ?", normalized).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ValidationError{Reason: ReasonNotFound, Message: "Invalid discount code"}
	}
	if err != nil {
		return nil, fmt.Errorf("lookup discount code %s: %w", normalized, err)
	}

	if !dc.IsActive {
		return nil, &ValidationError{Reason: ReasonInactive, Message: "This discount code is no longer active"}
	}

	if dc.MaxUses > 0 && dc.CurrentUses >= dc.MaxUses {
		return nil, &ValidationError{Reason: ReasonExhausted, Message: "This discount code has reached its maximum uses"}
	}

	now := time.Now()
	if !dc.ValidFrom.IsZero() && now.Before(dc.ValidFrom) {
		return nil, &ValidationError{Reason: ReasonNotYetValid, Message: "This discount code is not yet valid"}
	}
	if !dc.ValidUntil.IsZero() && now.After(dc.ValidUntil) {
		return nil, &ValidationError{Reason: ReasonExpired, Message: "This discount code has expired"}
	}

	if dc.TicketTierID != "" {
		restricted := false
		for _, tier := range selectedTiers {
			if tier.ID == dc.TicketTierID {
				restricted = true
				break
			}
		}
		if !restricted {
			return nil, &ValidationError{Reason: ReasonTierRestricted, Message: "This discount code is not valid for the selected tickets"}
		}
	}

	return &dc, nil
}

// Calculate returns the discount amount for a subtotal. PERCENTAGE takes
// value% of the subtotal; FIXED takes the value capped at the subtotal, so
// the total never goes negative.
func (s *Service) Calculate(subtotal decimal.Decimal, dc *models.DiscountCode) decimal.Decimal {
	var amount decimal.Decimal
	switch dc.DiscountType {
	case models.DiscountPercentage:
		amount = subtotal.Mul(dc.DiscountValue).Div(decimal.NewFromInt(100))
	case models.DiscountFixed:
		amount = dc.DiscountValue
	default:
		return decimal.Zero
	}

	if amount.GreaterThan(subtotal) {
		amount = subtotal
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

// Redeem durably increments current_uses. The max-uses bound is re-checked
// inside the update itself rather than trusting the earlier Validate read,
// which closes the race between two concurrent orders redeeming a
// near-exhausted code.
func (s *Service) Redeem(ctx context.Context, idb bun.IDB, codeID string) error {
	res, err := idb.NewUpdate().
		Model((*models.DiscountCode)(nil)).
		Set("current_uses = current_uses + 1").
		Where("id = ?", codeID).
		Where("is_active = ?", true).
		Where("(max_uses = 0 OR current_uses < max_uses)").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("redeem discount %s: %w", codeID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("redeem discount %s: %w", codeID, err)
	}
	if rows == 0 {
		return &ValidationError{Reason: ReasonExhausted, Message: "This discount code has reached its maximum uses"}
	}
	return nil
}
