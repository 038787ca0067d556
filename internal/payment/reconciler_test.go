package payment_test

import (
	"context"
	"encoding/json"
	"testing"

	"kcd-ticketing/internal/logger"
	"kcd-ticketing/internal/models"
	"kcd-ticketing/internal/order"
	"kcd-ticketing/internal/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// fakeEngine mimics the order service's transition semantics in memory.
type fakeEngine struct {
	orders        map[string]*models.OrderWithDetails
	markPaidCalls int
	recordedLink  string
}

func newFakeEngine(orders ...models.Order) *fakeEngine {
	engine := &fakeEngine{orders: map[string]*models.OrderWithDetails{}}
	for _, o := range orders {
		o := o
		engine.orders[o.ID] = &models.OrderWithDetails{Order: o}
	}
	return engine
}

func (f *fakeEngine) GetOrder(ctx context.Context, id string) (*models.OrderWithDetails, error) {
	details, ok := f.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	copied := *details
	return &copied, nil
}

func (f *fakeEngine) MoveToAwaitingPayment(ctx context.Context, id string) error {
	details, ok := f.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if details.Order.Status == models.OrderAwaitingPayment {
		return nil
	}
	if details.Order.Status != models.OrderPending {
		return order.ErrInvalidState
	}
	details.Order.Status = models.OrderAwaitingPayment
	return nil
}

func (f *fakeEngine) MarkPaid(ctx context.Context, id, paymentID, method string, result json.RawMessage) error {
	f.markPaidCalls++
	details, ok := f.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if details.Order.Status == models.OrderPaid {
		return nil
	}
	if details.Order.Status.Terminal() {
		return order.ErrInvalidState
	}
	details.Order.Status = models.OrderPaid
	details.Order.PaymentID = paymentID
	details.Order.PaymentMethod = method
	details.Order.PaymentResult = result
	return nil
}

func (f *fakeEngine) RecordPaymentLink(ctx context.Context, id, providerCode, method string, result json.RawMessage) error {
	f.recordedLink = providerCode
	return nil
}

type fakeLinks struct {
	link *models.PaymentLink
	err  error
}

func (f *fakeLinks) CreatePaymentLink(ctx context.Context, order models.Order, items []models.OrderItem) (*models.PaymentLink, error) {
	return f.link, f.err
}

type fakeLocks struct {
	granted  bool
	unlocked bool
}

func (f *fakeLocks) LockPaymentLink(orderID string) (bool, error) { return f.granted, nil }
func (f *fakeLocks) UnlockPaymentLink(orderID string) error {
	f.unlocked = true
	return nil
}

func pendingOrder(id string, total int64) models.Order {
	return models.Order{
		ID:          id,
		Status:      models.OrderPending,
		TotalAmount: decimal.NewFromInt(total),
		Currency:    "USD",
	}
}

func TestReconcileApproved(t *testing.T) {
	engine := newFakeEngine(pendingOrder("order-1", 5000))
	rec := payment.NewReconciler(engine, nil, nil, logger.NewLogger())

	raw := json.RawMessage(`{"Oper":"TX-1"}`)
	outcome, err := rec.Reconcile(context.Background(), models.PaymentConfirmation{
		OrderID:       "order-1",
		TransactionID: "TX-1",
		Status:        "COMPLETED",
		Amount:        decimal.NewFromInt(5000),
		Raw:           raw,
	})

	assert.NoError(t, err)
	assert.True(t, outcome.Applied)
	assert.Equal(t, models.OrderPaid, engine.orders["order-1"].Order.Status)
	assert.Equal(t, "TX-1", engine.orders["order-1"].Order.PaymentID)
	assert.Equal(t, payment.MethodPagueloFacil, engine.orders["order-1"].Order.PaymentMethod)
	assert.JSONEq(t, string(raw), string(engine.orders["order-1"].Order.PaymentResult))
}

func TestReconcileReplayIsIdempotent(t *testing.T) {
	engine := newFakeEngine(pendingOrder("order-1", 5000))
	rec := payment.NewReconciler(engine, nil, nil, logger.NewLogger())

	conf := models.PaymentConfirmation{
		OrderID:       "order-1",
		TransactionID: "TX-1",
		Status:        "APPROVED",
		Amount:        decimal.NewFromInt(5000),
	}

	outcome, err := rec.Reconcile(context.Background(), conf)
	assert.NoError(t, err)
	assert.True(t, outcome.Applied)

	// The provider redelivers the same confirmation
	outcome, err = rec.Reconcile(context.Background(), conf)
	assert.NoError(t, err)
	assert.True(t, outcome.Applied)
	assert.Equal(t, "TX-1", engine.orders["order-1"].Order.PaymentID)
}

func TestReconcileAmountMismatch(t *testing.T) {
	engine := newFakeEngine(pendingOrder("order-1", 5000))
	rec := payment.NewReconciler(engine, nil, nil, logger.NewLogger())

	_, err := rec.Reconcile(context.Background(), models.PaymentConfirmation{
		OrderID:       "order-1",
		TransactionID: "TX-1",
		Status:        "APPROVED",
		Amount:        decimal.NewFromInt(4999),
	})

	assert.ErrorIs(t, err, payment.ErrAmountMismatch)
	// The order was not touched
	assert.Equal(t, 0, engine.markPaidCalls)
	assert.Equal(t, models.OrderPending, engine.orders["order-1"].Order.Status)
}

func TestReconcileNonApprovedStatus(t *testing.T) {
	engine := newFakeEngine(pendingOrder("order-1", 5000))
	rec := payment.NewReconciler(engine, nil, nil, logger.NewLogger())

	outcome, err := rec.Reconcile(context.Background(), models.PaymentConfirmation{
		OrderID:       "order-1",
		TransactionID: "TX-1",
		Status:        "DECLINED",
		Amount:        decimal.NewFromInt(5000),
	})

	assert.NoError(t, err)
	assert.False(t, outcome.Applied)
	assert.Contains(t, outcome.Message, "DECLINED")
	assert.Equal(t, 0, engine.markPaidCalls)
	assert.Equal(t, models.OrderPending, engine.orders["order-1"].Order.Status)
}

func TestReconcileMissingIdentifiers(t *testing.T) {
	engine := newFakeEngine()
	rec := payment.NewReconciler(engine, nil, nil, logger.NewLogger())

	_, err := rec.Reconcile(context.Background(), models.PaymentConfirmation{
		TransactionID: "TX-1",
		Status:        "APPROVED",
	})
	assert.ErrorIs(t, err, payment.ErrMissingIdentifiers)

	_, err = rec.Reconcile(context.Background(), models.PaymentConfirmation{
		OrderID: "order-1",
		Status:  "APPROVED",
	})
	assert.ErrorIs(t, err, payment.ErrMissingIdentifiers)
}

func TestReconcileUnknownOrder(t *testing.T) {
	engine := newFakeEngine()
	rec := payment.NewReconciler(engine, nil, nil, logger.NewLogger())

	_, err := rec.Reconcile(context.Background(), models.PaymentConfirmation{
		OrderID:       "ghost",
		TransactionID: "TX-1",
		Status:        "APPROVED",
	})
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestApprovedStatusSynonyms(t *testing.T) {
	for _, status := range []string{"COMPLETED", "SUCCESS", "APPROVED", "Aprobada", "aprobada"} {
		conf := models.PaymentConfirmation{Status: status}
		assert.True(t, conf.Approved(), "expected %q to be approved", status)
	}
	for _, status := range []string{"", "DECLINED", "PENDING", "Rechazada"} {
		conf := models.PaymentConfirmation{Status: status}
		assert.False(t, conf.Approved(), "expected %q to not be approved", status)
	}
}

func TestRequestPaymentLink(t *testing.T) {
	engine := newFakeEngine(pendingOrder("order-1", 5000))
	links := &fakeLinks{link: &models.PaymentLink{
		URL:  "https://pay.example/abc",
		Code: "LINK-1",
		Raw:  json.RawMessage(`{"data":{}}`),
	}}
	locks := &fakeLocks{granted: true}
	rec := payment.NewReconciler(engine, links, locks, logger.NewLogger())

	url, err := rec.RequestPaymentLink(context.Background(), "order-1")
	assert.NoError(t, err)
	assert.Equal(t, "https://pay.example/abc", url)
	assert.Equal(t, "LINK-1", engine.recordedLink)
	assert.Equal(t, models.OrderAwaitingPayment, engine.orders["order-1"].Order.Status)
	assert.True(t, locks.unlocked)

	// Test case: requesting again for an AWAITING_PAYMENT order still works
	url, err = rec.RequestPaymentLink(context.Background(), "order-1")
	assert.NoError(t, err)
	assert.Equal(t, "https://pay.example/abc", url)
}

func TestRequestPaymentLinkLockHeld(t *testing.T) {
	engine := newFakeEngine(pendingOrder("order-1", 5000))
	links := &fakeLinks{link: &models.PaymentLink{URL: "https://pay.example/abc"}}
	rec := payment.NewReconciler(engine, links, &fakeLocks{granted: false}, logger.NewLogger())

	_, err := rec.RequestPaymentLink(context.Background(), "order-1")
	assert.ErrorIs(t, err, payment.ErrLinkRequestInFlight)
	assert.Equal(t, models.OrderPending, engine.orders["order-1"].Order.Status)
}

func TestRequestPaymentLinkTerminalOrder(t *testing.T) {
	paid := pendingOrder("order-1", 5000)
	paid.Status = models.OrderPaid
	engine := newFakeEngine(paid)
	rec := payment.NewReconciler(engine, &fakeLinks{}, &fakeLocks{granted: true}, logger.NewLogger())

	_, err := rec.RequestPaymentLink(context.Background(), "order-1")
	assert.ErrorIs(t, err, order.ErrInvalidState)
}

func TestRequestPaymentLinkProviderFailure(t *testing.T) {
	engine := newFakeEngine(pendingOrder("order-1", 5000))
	links := &fakeLinks{err: &payment.ProviderError{Message: "INSUFFICIENT MERCHANT FUNDS"}}
	rec := payment.NewReconciler(engine, links, &fakeLocks{granted: true}, logger.NewLogger())

	_, err := rec.RequestPaymentLink(context.Background(), "order-1")

	var providerErr *payment.ProviderError
	assert.ErrorAs(t, err, &providerErr)
	// The order stays PENDING and records nothing
	assert.Equal(t, models.OrderPending, engine.orders["order-1"].Order.Status)
	assert.Equal(t, "", engine.recordedLink)
}
