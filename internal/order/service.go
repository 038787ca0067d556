package order

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"kcd-ticketing/internal/discount"
	"kcd-ticketing/internal/inventory"
	"kcd-ticketing/internal/logger"
	"kcd-ticketing/internal/models"
	"kcd-ticketing/internal/order/db"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Lifecycle event types published to Kafka.
const (
	EventOrderCreated         = "order.created"
	EventOrderAwaitingPayment = "order.awaiting-payment"
	EventOrderPaid            = "order.paid"
	EventOrderCancelled       = "order.cancelled"
	EventOrderExpired         = "order.expired"
)

type EventPublisher interface {
	PublishOrderEvent(eventType string, order models.Order) error
}

// OrderService owns the order state machine:
//
//	PENDING -> AWAITING_PAYMENT -> PAID
//	PENDING | AWAITING_PAYMENT -> CANCELLED | EXPIRED
//
// PAID, CANCELLED and EXPIRED are terminal. Calls that target a terminal
// order either no-op idempotently or fail with ErrInvalidState.
type OrderService struct {
	DB        *db.DB
	Inventory *inventory.Ledger
	Discounts *discount.Service
	Kafka     EventPublisher

	Window   time.Duration
	Currency string
	logger   *logger.Logger
}

func NewOrderService(database *db.DB, inv *inventory.Ledger, disc *discount.Service, kafka EventPublisher, window time.Duration, currency string, log *logger.Logger) *OrderService {
	return &OrderService{
		DB:        database,
		Inventory: inv,
		Discounts: disc,
		Kafka:     kafka,
		Window:    window,
		Currency:  currency,
		logger:    log,
	}
}

// ---------------- QUERIES ----------------

func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.OrderWithDetails, error) {
	return s.DB.GetOrderWithDetails(ctx, id)
}

func (s *OrderService) ListTiers(ctx context.Context) ([]models.TicketTier, error) {
	return s.Inventory.ListTiers(ctx, s.DB.Bun)
}

// ---------------- CREATE ----------------

// CreateOrder validates the selections, reserves inventory, applies an
// optional discount code and writes the order, its items and the attendee in
// a single transaction. Any failure rolls back everything, so a partially
// reserved order can never exist. An invalid discount code fails the whole
// creation rather than being silently dropped.
func (s *OrderService) CreateOrder(ctx context.Context, req models.OrderRequest) (*models.OrderWithDetails, error) {
	selections := make(map[string]int, len(req.Selections))
	for slug, qty := range req.Selections {
		if qty > 0 {
			selections[slug] = qty
		}
	}
	if len(selections) == 0 {
		return nil, ErrNoTicketsSelected
	}
	if req.Attendee.Name == "" || req.Attendee.Email == "" {
		return nil, ErrMissingAttendee
	}

	slugs := make([]string, 0, len(selections))
	for slug := range selections {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	var result *models.OrderWithDetails
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		tiers, err := s.Inventory.GetTiersBySlugs(ctx, tx, slugs)
		if err != nil {
			return err
		}
		if len(tiers) != len(slugs) {
			resolved := make(map[string]bool, len(tiers))
			for _, tier := range tiers {
				resolved[tier.Slug] = true
			}
			for _, slug := range slugs {
				if !resolved[slug] {
					return fmt.Errorf("tier %q: %w", slug, ErrUnknownTier)
				}
			}
		}

		now := time.Now()
		orderID := uuid.NewString()
		subtotal := decimal.Zero
		items := make([]models.OrderItem, 0, len(tiers))

		for _, tier := range tiers {
			qty := selections[tier.Slug]
			if err := s.Inventory.Reserve(ctx, tx, tier.ID, qty); err != nil {
				return err
			}
			lineTotal := tier.Price.Mul(decimal.NewFromInt(int64(qty)))
			subtotal = subtotal.Add(lineTotal)
			items = append(items, models.OrderItem{
				ID:           uuid.NewString(),
				OrderID:      orderID,
				TicketTierID: tier.ID,
				TierSlug:     tier.Slug,
				TierName:     tier.Name,
				Quantity:     qty,
				UnitPrice:    tier.Price,
				TotalPrice:   lineTotal,
			})
		}

		discountAmount := decimal.Zero
		discountCodeID := ""
		if req.DiscountCode != "" {
			dc, err := s.Discounts.Validate(ctx, tx, req.DiscountCode, tiers)
			if err != nil {
				return err
			}
			discountAmount = s.Discounts.Calculate(subtotal, dc)
			if err := s.Discounts.Redeem(ctx, tx, dc.ID); err != nil {
				return err
			}
			discountCodeID = dc.ID
		}

		total := subtotal.Sub(discountAmount)
		if total.IsNegative() {
			total = decimal.Zero
		}

		newOrder := models.Order{
			ID:             orderID,
			Status:         models.OrderPending,
			SubtotalAmount: subtotal,
			DiscountAmount: discountAmount,
			TotalAmount:    total,
			Currency:       s.Currency,
			DiscountCodeID: discountCodeID,
			ExpiresAt:      now.Add(s.Window),
			CreatedAt:      now,
		}
		if err := s.DB.InsertOrder(ctx, tx, &newOrder); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if err := s.DB.InsertOrderItems(ctx, tx, items); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}

		attendee := models.Attendee{
			ID:              uuid.NewString(),
			OrderID:         orderID,
			Name:            req.Attendee.Name,
			Email:           req.Attendee.Email,
			Country:         req.Attendee.Country,
			JobTitle:        req.Attendee.JobTitle,
			Company:         req.Attendee.Company,
			Industry:        req.Attendee.Industry,
			OrgType:         req.Attendee.OrgType,
			CNCFConsent:     req.Attendee.CNCFConsent,
			WhatsappUpdates: req.Attendee.WhatsappUpdates,
			CreatedAt:       now,
		}
		if err := s.DB.InsertAttendee(ctx, tx, &attendee); err != nil {
			return fmt.Errorf("insert attendee: %w", err)
		}

		result = &models.OrderWithDetails{Order: newOrder, Items: items, Attendee: &attendee}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogOrder("CREATE", result.Order.ID, fmt.Sprintf("total %s %s", result.Order.TotalAmount, result.Order.Currency))
	s.publish(EventOrderCreated, result.Order)
	return result, nil
}

// ---------------- TRANSITIONS ----------------

// MoveToAwaitingPayment is legal from PENDING. An order already awaiting
// payment is a no-op success, so a retried payment-link request converges.
func (s *OrderService) MoveToAwaitingPayment(ctx context.Context, id string) error {
	var moved bool
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		ok, err := s.DB.TransitionStatus(ctx, tx, id,
			[]models.OrderStatus{models.OrderPending}, models.OrderAwaitingPayment)
		if err != nil {
			return err
		}
		if ok {
			moved = true
			return nil
		}

		current, err := s.DB.GetOrderByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status == models.OrderAwaitingPayment {
			return nil
		}
		return fmt.Errorf("order %s is %s: %w", id, current.Status, ErrInvalidState)
	})
	if err != nil {
		return err
	}

	if moved {
		s.logger.LogOrder("AWAITING_PAYMENT", id, "payment link issued")
		s.publishByID(ctx, EventOrderAwaitingPayment, id)
	}
	return nil
}

// MarkPaid transitions to PAID and records the payment fields. Marking an
// already-PAID order succeeds without rewriting anything, so duplicate
// webhook deliveries cannot corrupt paidAt or the stored payment payload.
// Payments for CANCELLED or EXPIRED orders are rejected with ErrInvalidState.
func (s *OrderService) MarkPaid(ctx context.Context, id, paymentID, method string, result json.RawMessage) error {
	var paid bool
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		ok, err := s.DB.MarkOrderPaid(ctx, tx, id, paymentID, method, result, time.Now())
		if err != nil {
			return err
		}
		if ok {
			paid = true
			return nil
		}

		current, err := s.DB.GetOrderByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status == models.OrderPaid {
			return nil
		}
		return fmt.Errorf("order %s is %s: %w", id, current.Status, ErrInvalidState)
	})
	if err != nil {
		return err
	}

	if paid {
		s.logger.LogOrder("PAID", id, fmt.Sprintf("payment %s via %s", paymentID, method))
		s.publishByID(ctx, EventOrderPaid, id)
	}
	return nil
}

// Cancel releases each item's quantity back to its tier and transitions to
// CANCELLED. Cancelling a PAID order fails; an order already CANCELLED or
// EXPIRED is a no-op success (its inventory was already returned). Discount
// usage is deliberately not released.
func (s *OrderService) Cancel(ctx context.Context, id string) error {
	var cancelled bool
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		items, err := s.DB.GetOrderItems(ctx, tx, id)
		if err != nil {
			return err
		}

		ok, err := s.DB.TransitionStatus(ctx, tx, id,
			[]models.OrderStatus{models.OrderPending, models.OrderAwaitingPayment}, models.OrderCancelled)
		if err != nil {
			return err
		}
		if ok {
			for _, item := range items {
				if err := s.Inventory.Release(ctx, tx, item.TicketTierID, item.Quantity); err != nil {
					return err
				}
			}
			cancelled = true
			return nil
		}

		current, err := s.DB.GetOrderByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status == models.OrderCancelled || current.Status == models.OrderExpired {
			return nil
		}
		return fmt.Errorf("order %s is %s: %w", id, current.Status, ErrInvalidState)
	})
	if err != nil {
		return err
	}

	if cancelled {
		s.logger.LogOrder("CANCEL", id, "inventory released")
		s.publishByID(ctx, EventOrderCancelled, id)
	}
	return nil
}

// Expire is legal for live orders whose reservation window lapsed. Both the
// window and the status are re-checked inside the transaction, so a payment
// confirmation processed first wins and the subsequent expire observes PAID
// and no-ops, while a genuinely expired order cannot be paid afterward.
func (s *OrderService) Expire(ctx context.Context, id string) error {
	var expired bool
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		items, err := s.DB.GetOrderItems(ctx, tx, id)
		if err != nil {
			return err
		}

		ok, err := s.DB.ExpireOrder(ctx, tx, id, time.Now())
		if err != nil {
			return err
		}
		if ok {
			for _, item := range items {
				if err := s.Inventory.Release(ctx, tx, item.TicketTierID, item.Quantity); err != nil {
					return err
				}
			}
			expired = true
			return nil
		}

		current, err := s.DB.GetOrderByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return nil
		}
		return fmt.Errorf("order %s expires at %s: %w", id, current.ExpiresAt.Format(time.RFC3339), ErrNotYetExpired)
	})
	if err != nil {
		return err
	}

	if expired {
		s.logger.LogOrder("EXPIRE", id, "reservation window lapsed, inventory released")
		s.publishByID(ctx, EventOrderExpired, id)
	}
	return nil
}

// ExpireDue expires every live order whose window lapsed. Returns the number
// of orders expired; individual failures are logged and skipped so one bad
// row does not stall the sweep.
func (s *OrderService) ExpireDue(ctx context.Context) (int, error) {
	ids, err := s.DB.ListDueOrderIDs(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		if err := s.Expire(ctx, id); err != nil {
			s.logger.Error("ORDER", fmt.Sprintf("sweep: expire %s: %v", id, err))
			continue
		}
		expired++
	}
	return expired, nil
}

// RecordPaymentLink stores the provider's correlation token and opaque
// response payload on the order after a successful link request.
func (s *OrderService) RecordPaymentLink(ctx context.Context, id, providerCode, method string, result json.RawMessage) error {
	return s.DB.SetPaymentLink(ctx, s.DB.Bun, id, providerCode, method, result)
}

// ---------------- EVENTS ----------------

func (s *OrderService) publish(eventType string, o models.Order) {
	if s.Kafka == nil {
		return
	}
	if err := s.Kafka.PublishOrderEvent(eventType, o); err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("publish %s for order %s: %v", eventType, o.ID, err))
	}
}

func (s *OrderService) publishByID(ctx context.Context, eventType, id string) {
	if s.Kafka == nil {
		return
	}
	current, err := s.DB.GetOrderByID(ctx, s.DB.Bun, id)
	if err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("load order %s for %s event: %v", id, eventType, err))
		return
	}
	s.publish(eventType, *current)
}
