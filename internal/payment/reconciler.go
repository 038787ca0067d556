package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"kcd-ticketing/internal/logger"
	"kcd-ticketing/internal/models"
	"kcd-ticketing/internal/order"
)

var (
	// ErrAmountMismatch rejects confirmations whose amount differs from the
	// order's total. The amounts must match exactly.
	ErrAmountMismatch = errors.New("payment amount does not match order total")

	// ErrMissingIdentifiers rejects confirmations without an order or
	// transaction id.
	ErrMissingIdentifiers = errors.New("missing order or transaction identifier")

	// ErrLinkRequestInFlight means another payment-link request for the same
	// order currently holds the lock.
	ErrLinkRequestInFlight = errors.New("a payment link request for this order is already in progress")
)

// OrderEngine is the slice of the order service the reconciler drives.
type OrderEngine interface {
	GetOrder(ctx context.Context, id string) (*models.OrderWithDetails, error)
	MoveToAwaitingPayment(ctx context.Context, id string) error
	MarkPaid(ctx context.Context, id, paymentID, method string, result json.RawMessage) error
	RecordPaymentLink(ctx context.Context, id, providerCode, method string, result json.RawMessage) error
}

type LinkRequester interface {
	CreatePaymentLink(ctx context.Context, order models.Order, items []models.OrderItem) (*models.PaymentLink, error)
}

type OrderLocker interface {
	LockPaymentLink(orderID string) (bool, error)
	UnlockPaymentLink(orderID string) error
}

// Outcome reports what a reconciliation did. Replaying the same confirmation
// for an already-PAID order yields the same successful outcome with no
// duplicate side effects.
type Outcome struct {
	Applied bool   `json:"success"`
	Message string `json:"message"`
}

// Reconciler consumes external payment confirmations and drives the order
// engine's mark-paid transition; it also creates outbound payment-link
// requests toward the provider.
type Reconciler struct {
	Orders OrderEngine
	Links  LinkRequester
	Locks  OrderLocker
	logger *logger.Logger
}

func NewReconciler(orders OrderEngine, links LinkRequester, locks OrderLocker, log *logger.Logger) *Reconciler {
	return &Reconciler{Orders: orders, Links: links, Locks: locks, logger: log}
}

// RequestPaymentLink builds a provider link for a live order and moves a
// PENDING order to AWAITING_PAYMENT. Provider failures surface as
// ProviderError and leave the order untouched, so the caller can retry.
func (r *Reconciler) RequestPaymentLink(ctx context.Context, orderID string) (string, error) {
	if r.Locks != nil {
		ok, err := r.Locks.LockPaymentLink(orderID)
		if err != nil {
			return "", fmt.Errorf("acquire payment link lock: %w", err)
		}
		if !ok {
			return "", ErrLinkRequestInFlight
		}
		defer func() {
			if err := r.Locks.UnlockPaymentLink(orderID); err != nil {
				r.logger.Error("PAYMENT", fmt.Sprintf("unlock payment link for order %s: %v", orderID, err))
			}
		}()
	}

	details, err := r.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	if details.Order.Status.Terminal() {
		return "", fmt.Errorf("order %s is %s: %w", orderID, details.Order.Status, order.ErrInvalidState)
	}

	link, err := r.Links.CreatePaymentLink(ctx, details.Order, details.Items)
	if err != nil {
		return "", err
	}

	if err := r.Orders.RecordPaymentLink(ctx, orderID, link.Code, MethodPagueloFacil, link.Raw); err != nil {
		return "", fmt.Errorf("record payment link: %w", err)
	}
	if details.Order.Status == models.OrderPending {
		if err := r.Orders.MoveToAwaitingPayment(ctx, orderID); err != nil {
			return "", err
		}
	}

	return link.URL, nil
}

// Reconcile verifies a confirmation and applies the paid transition exactly
// once. Non-approved statuses are reported, not applied; approved amounts
// must match the order total to the cent.
func (r *Reconciler) Reconcile(ctx context.Context, conf models.PaymentConfirmation) (*Outcome, error) {
	if conf.OrderID == "" || conf.TransactionID == "" {
		return nil, ErrMissingIdentifiers
	}

	if !conf.Approved() {
		r.logger.Warn("PAYMENT", fmt.Sprintf("order %s: non-approved confirmation status %q", conf.OrderID, conf.Status))
		return &Outcome{Applied: false, Message: fmt.Sprintf("Payment status: %s", conf.Status)}, nil
	}

	details, err := r.Orders.GetOrder(ctx, conf.OrderID)
	if err != nil {
		return nil, err
	}

	if !conf.Amount.Equal(details.Order.TotalAmount) {
		r.logger.Error("PAYMENT", fmt.Sprintf("order %s: confirmed amount %s != total %s",
			conf.OrderID, conf.Amount, details.Order.TotalAmount))
		return nil, fmt.Errorf("confirmed %s, order total %s: %w",
			conf.Amount, details.Order.TotalAmount, ErrAmountMismatch)
	}

	raw := conf.Raw
	if raw == nil {
		raw, _ = json.Marshal(conf)
	}
	if err := r.Orders.MarkPaid(ctx, conf.OrderID, conf.TransactionID, MethodPagueloFacil, raw); err != nil {
		return nil, err
	}

	r.logger.LogPayment("RECONCILE", conf.OrderID, fmt.Sprintf("transaction %s applied", conf.TransactionID))
	return &Outcome{Applied: true, Message: "Your order has been completed successfully."}, nil
}
